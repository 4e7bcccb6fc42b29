package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Roelanb/churnboard/internal/api"
	"github.com/Roelanb/churnboard/internal/backend"
	"github.com/Roelanb/churnboard/internal/config"
	"github.com/Roelanb/churnboard/internal/observability"
	"github.com/Roelanb/churnboard/internal/task"
	"github.com/Roelanb/churnboard/internal/watch"
)

// controlPlane applies config changes to the running components.
type controlPlane struct {
	logger  *observability.Logger
	client  *backend.Client
	manager *task.Manager
	server  *api.Server
	cfgPath string

	mu  sync.RWMutex
	cfg *config.Config
}

func (c *controlPlane) ActionsSnapshot() any {
	if c.manager == nil {
		return []any{}
	}
	return c.manager.ActionsSnapshot()
}

func (c *controlPlane) BackendURL() string {
	return c.client.BaseURL()
}

func (c *controlPlane) Reload(ctx context.Context) error {
	cfg, err := config.Load(c.cfgPath)
	if err != nil {
		return err
	}
	return c.apply(ctx, cfg)
}

func (c *controlPlane) GetConfig() any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg
}

// ApplyConfig saves raw to the config file and applies it. Environment and
// flag overrides take effect live but are never written to the file.
func (c *controlPlane) ApplyConfig(ctx context.Context, raw []byte) error {
	cfg, err := config.Parse(raw)
	if err != nil {
		return err
	}
	onDisk, err := config.ParseFile(raw)
	if err != nil {
		return err
	}
	if err := config.Save(c.cfgPath, onDisk); err != nil {
		return err
	}
	return c.apply(ctx, cfg)
}

func (c *controlPlane) apply(ctx context.Context, cfg *config.Config) error {
	c.client.Configure(cfg.Backend.BaseURL, time.Duration(cfg.Backend.TimeoutSec)*time.Second)
	if err := c.manager.ApplyConfig(ctx, cfg); err != nil {
		return err
	}
	c.logger.SetLevel(cfg.Logging.Level)
	if c.server != nil {
		c.server.SetTimings(
			time.Duration(cfg.UI.MessageTTLMs)*time.Millisecond,
			time.Duration(cfg.UI.DownloadTTLSec)*time.Second,
		)
	}

	c.mu.Lock()
	prev := c.cfg
	c.cfg = cfg
	c.mu.Unlock()
	if prev != nil && prev.UI.Listen != cfg.UI.Listen {
		c.logger.Warnw("listen address change needs a restart", "current", prev.UI.Listen, "configured", cfg.UI.Listen)
	}
	c.logger.Infow("config applied", "backend", cfg.Backend.BaseURL, "version", cfg.Version)
	return nil
}

// openStore opens the bbolt state file, or keeps state in memory when no path is set.
func openStore(cfg *config.Config) (task.StateStore, error) {
	if cfg.Runtime.StateDbPath == "" {
		return task.NewMemoryStore(), nil
	}
	return task.OpenBBolt(cfg.Runtime.StateDbPath)
}

func newServeCmd(a *app) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the dashboard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if listen != "" {
				_ = os.Setenv(config.EnvListen, listen)
			}
			cfg, err := a.loadConfig()
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			return serve(cmd.Context(), a.configPath, cfg)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "Dashboard listen address (host:port)")
	return cmd
}

func serve(parent context.Context, cfgPath string, cfg *config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	logger := observability.NewLogger(cfg.Logging.Level, "stdout")
	defer logger.Sync() //nolint:errcheck
	logger.Infow("config loaded", "path", cfgPath, "backend", cfg.Backend.BaseURL, "version", cfg.Version)

	store, err := openStore(cfg)
	if err != nil {
		logger.Errorw("failed to open state store", "path", cfg.Runtime.StateDbPath, "error", err)
		return fmt.Errorf("state store error: %w", err)
	}
	defer store.Close()

	client := backend.NewClient(logger, cfg.Backend.BaseURL, time.Duration(cfg.Backend.TimeoutSec)*time.Second)
	manager := task.NewManager(logger, store, client)

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	ctrl := &controlPlane{logger: logger, client: client, manager: manager, cfgPath: cfgPath}
	srv := api.New(logger, ctrl, manager, api.Options{
		Addr:        cfg.UI.Listen,
		MessageTTL:  time.Duration(cfg.UI.MessageTTLMs) * time.Millisecond,
		DownloadTTL: time.Duration(cfg.UI.DownloadTTLSec) * time.Second,
	})
	ctrl.server = srv
	if err := ctrl.apply(ctx, cfg); err != nil {
		return fmt.Errorf("apply config error: %w", err)
	}

	if err := srv.Start(ctx); err != nil {
		logger.Errorw("failed to start dashboard server", "addr", cfg.UI.Listen, "error", err)
		return fmt.Errorf("server error: %w", err)
	}

	if cfg.Runtime.WatchConfig {
		if err := watchConfig(ctx, ctrl, cfgPath, time.Duration(cfg.Runtime.DebounceMs)*time.Millisecond); err != nil {
			logger.Warnw("config watch disabled", "path", cfgPath, "error", err)
		}
	}

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	select {
	case sig := <-sigCh:
		logger.Infow("signal received, shutting down", "signal", sig.String())
	case <-ctx.Done():
		logger.Infow("context done, shutting down")
	}

	shCtx, shCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shCancel()
	if err := srv.Shutdown(shCtx); err != nil {
		logger.Errorw("graceful shutdown failed", "error", err)
	}
	cancel()
	logger.Infow("shutdown complete")
	return nil
}

// watchConfig reloads the config whenever its file changes.
func watchConfig(ctx context.Context, ctrl *controlPlane, path string, debounce time.Duration) error {
	w, err := watch.New(watch.Options{Path: path, Debounce: debounce, Stabilization: debounce})
	if err != nil {
		return err
	}
	events, err := w.Start(ctx)
	if err != nil {
		return err
	}
	go func() {
		defer w.Close()
		for ev := range events {
			if err := ctrl.Reload(ctx); err != nil {
				ctrl.logger.Warnw("config reload failed", "path", ev.Path, "error", err)
				continue
			}
			ctrl.logger.Infow("config reloaded", "path", ev.Path)
		}
	}()
	return nil
}
