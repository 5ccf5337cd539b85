package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ivanvihe/jarvis-core/pkg/apperrors"
	"github.com/ivanvihe/jarvis-core/pkg/sandbox"
)

type pathRequest struct {
	Path string `json:"path" binding:"required"`
}

// openAction handles POST /actions/open.
func (s *Server) openAction(c *gin.Context) {
	var req pathRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.Abort(c, apperrors.Wrap(apperrors.Validation, "invalid open request body", err))
		return
	}
	result, err := s.executor.Open(req.Path)
	if err != nil {
		apperrors.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type readRequest struct {
	Path     string `json:"path" binding:"required"`
	Encoding string `json:"encoding"`
	Offset   int64  `json:"offset"`
	Length   *int64 `json:"length"`
	MaxBytes int64  `json:"max_bytes"`
}

// readAction handles POST /actions/read.
func (s *Server) readAction(c *gin.Context) {
	var req readRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.Abort(c, apperrors.Wrap(apperrors.Validation, "invalid read request body", err))
		return
	}
	result, err := s.executor.Read(req.Path, req.Encoding, req.Offset, req.Length, req.MaxBytes)
	if err != nil {
		apperrors.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// commandValue binds a run request's "command" field, which the
// contract allows as either a JSON array of strings or a single shell
// string.
type commandValue struct {
	Argv  []string
	Shell string
}

func (c *commandValue) UnmarshalJSON(data []byte) error {
	var argv []string
	if err := json.Unmarshal(data, &argv); err == nil {
		c.Argv = argv
		return nil
	}
	var shell string
	if err := json.Unmarshal(data, &shell); err != nil {
		return err
	}
	c.Shell = shell
	return nil
}

func (c commandValue) empty() bool {
	return len(c.Argv) == 0 && c.Shell == ""
}

type runRequest struct {
	Command commandValue `json:"command"`
	Cwd     string       `json:"cwd"`
	Timeout float64      `json:"timeout"`
	Shell   bool         `json:"shell"`
}

// runAction handles POST /actions/run.
func (s *Server) runAction(c *gin.Context) {
	var req runRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.Abort(c, apperrors.Wrap(apperrors.Validation, "invalid run request body", err))
		return
	}
	if req.Command.empty() {
		apperrors.Abort(c, apperrors.NewValidation("command must be a non-empty list of strings or a non-empty shell string"))
		return
	}

	cwd, err := s.executor.ResolveRunDir(req.Cwd)
	if err != nil {
		apperrors.Abort(c, err)
		return
	}

	var timeout time.Duration
	if req.Timeout > 0 {
		timeout = time.Duration(req.Timeout * float64(time.Second))
	}

	var echoed any
	if req.Command.Shell != "" {
		echoed = req.Command.Shell
	} else {
		echoed = req.Command.Argv
	}

	result, err := s.executor.Run(c.Request.Context(), sandbox.RunSpec{
		Command:  echoed,
		Argv:     req.Command.Argv,
		Shell:    req.Command.Shell,
		UseShell: req.Shell,
		Cwd:      cwd,
		Timeout:  timeout,
	})
	if err != nil {
		apperrors.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
