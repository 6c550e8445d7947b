package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"git.home.luguber.info/inful/laundrycycle/internal/daemon"
)

// ServeCmd implements the 'serve' command.
type ServeCmd struct {
	NoWatch bool `name:"no-watch" help:"Do not reload the configuration file when it changes"`
}

func (s *ServeCmd) Run(g *Global, root *CLI) error {
	cfg, err := loadConfig(g, root)
	if err != nil {
		return err
	}

	configPath := root.Config
	if s.NoWatch {
		configPath = ""
	}
	d, err := daemon.New(cfg, configPath,
		daemon.WithClock(g.Clock),
		daemon.WithLogger(g.Logger),
		daemon.WithLevelVar(g.Level),
	)
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	g.Logger.Info("Starting daemon", "config", root.Config)
	return d.Run(ctx)
}
