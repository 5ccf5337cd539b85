package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"k8s.io/klog/v2"

	"github.com/ivanvihe/jarvis-core/pkg/config"
	"github.com/ivanvihe/jarvis-core/pkg/generation"
	"github.com/ivanvihe/jarvis-core/pkg/logging"
	"github.com/ivanvihe/jarvis-core/pkg/registry"
	"github.com/ivanvihe/jarvis-core/pkg/sandbox"
	"github.com/ivanvihe/jarvis-core/pkg/server"
)

func main() {
	klog.InitFlags(nil)
	defer klog.Flush()

	cmd := config.BuildRootCommand(run)
	if err := cmd.Execute(); err != nil {
		klog.Errorf("jarvis-core exited with error: %v", err)
		os.Exit(1)
	}
}

func run(cfg config.Config) error {
	recorder := logging.NewRecorder()
	log := logging.New("jarvis-core", recorder)

	bus := registry.NewBus()
	reg, err := registry.New(cfg.ModelsDir, log, bus, nil)
	if err != nil {
		return fmt.Errorf("init registry: %w", err)
	}

	gen := generation.NewManager(log, generation.LaunchCommand{
		GGUFCommand:         cfg.GGUFCommand,
		TransformersCommand: cfg.TransformersCommand,
	})

	sb, err := sandbox.New(cfg.SandboxRoots)
	if err != nil {
		return fmt.Errorf("init sandbox: %w", err)
	}
	exec := sandbox.NewExecutor(sb, cfg.AllowedCmds)

	srv := server.New(cfg, log, recorder, reg, gen, exec)

	if !cfg.AutoStart {
		log.Infof("auto_start disabled, exiting without listening")
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return srv.Run(ctx)
}
