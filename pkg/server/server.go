// Package server wires the gin HTTP engine for Jarvis Core: model
// registry routes, chat completion routes, the sandboxed action
// surface, and system/diagnostic routes, all behind a shared-secret
// auth middleware.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ivanvihe/jarvis-core/pkg/config"
	"github.com/ivanvihe/jarvis-core/pkg/generation"
	"github.com/ivanvihe/jarvis-core/pkg/logging"
	"github.com/ivanvihe/jarvis-core/pkg/registry"
	"github.com/ivanvihe/jarvis-core/pkg/sandbox"
)

// Server bundles the HTTP engine with the core components it delegates
// to, as a struct holding the *gin.Engine alongside its dependencies
// rather than a package of free functions.
type Server struct {
	engine     *gin.Engine
	httpServer *http.Server

	cfg        config.Config
	log        *logging.Logger
	recorder   *logging.Recorder
	registry   *registry.Registry
	generation *generation.Manager
	executor   *sandbox.Executor
}

// New builds a Server ready to Run. Routes are registered flat, without
// an /api/v1 prefix, matching the bare paths the service contract
// defines, since this is a single local daemon with no versioned
// compatibility window to manage.
func New(cfg config.Config, log *logging.Logger, rec *logging.Recorder, reg *registry.Registry, gen *generation.Manager, exec *sandbox.Executor) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		engine:     engine,
		cfg:        cfg,
		log:        log,
		recorder:   rec,
		registry:   reg,
		generation: gen,
		executor:   exec,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.engine.Use(authMiddleware(s.cfg.Token))

	s.engine.GET("/health", s.health)
	s.engine.GET("/config", s.getConfig)
	s.engine.GET("/logs", s.getLogs)
	s.engine.GET("/status", s.runtimeStatus)

	s.engine.GET("/models", s.listModels)
	s.engine.GET("/models/:id", s.getModel)
	s.engine.POST("/models/:id/download", s.startDownload)
	s.engine.GET("/models/:id/progress", s.getProgress)
	s.engine.POST("/models/:id/activate", s.activateModel)
	s.engine.DELETE("/models/:id", s.removeModel)
	s.engine.GET("/models/stream", s.streamProgress)

	s.engine.POST("/chat/completions", s.chatCompletions)
	s.engine.POST("/runtime/unload", s.unloadModel)

	s.engine.POST("/actions/open", s.openAction)
	s.engine.POST("/actions/read", s.readAction)
	s.engine.POST("/actions/run", s.runAction)
}

// Run starts the HTTP server and blocks until ctx is cancelled, then
// performs a graceful shutdown followed by releasing the registry and
// generation manager's background resources.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.httpServer = &http.Server{Addr: addr, Handler: s.engine}

	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("listening on %s", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s.log.Infof("shutting down")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	s.registry.Shutdown()
	if err := s.generation.Unload(); err != nil {
		s.log.Warningf("unload backend during shutdown: %v", err)
	}
	return nil
}
