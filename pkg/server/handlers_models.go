package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ivanvihe/jarvis-core/pkg/apperrors"
	"github.com/ivanvihe/jarvis-core/pkg/registry"
)

// listModels handles GET /models.
func (s *Server) listModels(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"models": s.registry.ListModels()})
}

// getModel handles GET /models/:id.
func (s *Server) getModel(c *gin.Context) {
	meta, err := s.registry.GetMetadata(c.Param("id"))
	if err != nil {
		apperrors.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, meta)
}

type startDownloadRequest struct {
	RepoID   string   `json:"repo_id" binding:"required"`
	Filename string   `json:"filename" binding:"required"`
	HFToken  string   `json:"hf_token"`
	Checksum string   `json:"checksum"`
	Tags     []string `json:"tags"`
}

// startDownload handles POST /models/:id/download.
func (s *Server) startDownload(c *gin.Context) {
	var req startDownloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.Abort(c, apperrors.Wrap(apperrors.Validation, "invalid download request body", err))
		return
	}

	modelID := c.Param("id")
	err := s.registry.StartDownload(c.Request.Context(), modelID, req.RepoID, req.Filename, registry.StartDownloadOptions{
		HFToken:  req.HFToken,
		Checksum: req.Checksum,
		Tags:     req.Tags,
	})
	if err != nil {
		apperrors.Abort(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"model_id": modelID, "status": "queued"})
}

// getProgress handles GET /models/:id/progress.
func (s *Server) getProgress(c *gin.Context) {
	c.JSON(http.StatusOK, s.registry.GetProgress(c.Param("id")))
}

// activateModel handles POST /models/:id/activate. The backend is
// loaded before the registry flips the model to Active, so a load
// failure never leaves the catalogue pointing at a model with no
// running backend.
func (s *Server) activateModel(c *gin.Context) {
	modelID := c.Param("id")
	meta, err := s.registry.GetMetadata(modelID)
	if err != nil {
		apperrors.Abort(c, err)
		return
	}
	if meta.State != registry.Ready && meta.State != registry.Active {
		apperrors.Abort(c, apperrors.NewConflict(fmt.Sprintf("model %q is not ready to activate (state=%s)", modelID, meta.State)))
		return
	}

	if loadErr := s.generation.LoadFromMetadata(c.Request.Context(), meta); loadErr != nil {
		apperrors.Abort(c, loadErr)
		return
	}

	activated, err := s.registry.ActivateModel(modelID)
	if err != nil {
		apperrors.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, activated)
}

// removeModel handles DELETE /models/:id.
func (s *Server) removeModel(c *gin.Context) {
	if err := s.registry.RemoveModel(c.Param("id")); err != nil {
		apperrors.Abort(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
