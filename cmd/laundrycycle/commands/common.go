package commands

import (
	"context"
	"io"
	"log/slog"

	"github.com/alecthomas/kong"
	"github.com/jonboulle/clockwork"

	"git.home.luguber.info/inful/laundrycycle/internal/config"
	"git.home.luguber.info/inful/laundrycycle/internal/daemon"
)

// Global carries state shared by every subcommand.
type Global struct {
	Logger *slog.Logger
	Level  *slog.LevelVar
	Clock  clockwork.Clock
	Out    io.Writer
	Err    io.Writer
}

// NewGlobal returns the shared state with a real clock writing to out and
// logging to errOut.
func NewGlobal(out, errOut io.Writer) *Global {
	return &Global{
		Level: new(slog.LevelVar),
		Clock: clockwork.NewRealClock(),
		Out:   out,
		Err:   errOut,
	}
}

// CLI definition & global flags - used by commands that need access to root config.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path" default:"config.yaml" env:"LAUNDRYCYCLE_CONFIG"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Serve       ServeCmd       `cmd:"" help:"Run the daemon: timers, maintenance tick and HTTP API"`
	Init        InitCmd        `cmd:"" help:"Initialize a new configuration file"`
	Register    RegisterCmd    `cmd:"" help:"Register a new laundry category"`
	Transition  TransitionCmd  `cmd:"" help:"Move a category to another stage"`
	CancelTimer CancelTimerCmd `cmd:"" name:"cancel-timer" help:"Finish the running wash or dry timer now"`
	Escalate    EscalateCmd    `cmd:"" help:"Mark a category as abandoned"`
	Status      StatusCmd      `cmd:"" help:"Show the state of one or all categories"`
	History     HistoryCmd     `cmd:"" help:"Show the transition log of a category"`
	Tick        TickCmd        `cmd:"" help:"Run one maintenance tick (dirtiness sweep and recovery)"`
}

// AfterApply runs after flag parsing; setup logging once. The level is
// refined from the configuration once a command loads it.
func (c *CLI) AfterApply(g *Global) error {
	if c.Verbose {
		g.Level.Set(slog.LevelDebug)
	}
	g.Logger = slog.New(slog.NewTextHandler(g.Err, &slog.HandlerOptions{Level: g.Level}))
	slog.SetDefault(g.Logger)
	return nil
}

// loadConfig reads the configuration file and rebuilds the logger from its
// logging section.
func loadConfig(g *Global, root *CLI) (*config.Config, error) {
	cfg, err := config.Load(root.Config)
	if err != nil {
		return nil, err
	}
	g.Logger = config.NewLogger(g.Err, cfg.Logging, g.Level)
	if root.Verbose {
		g.Level.Set(slog.LevelDebug)
	}
	slog.SetDefault(g.Logger)
	return cfg, nil
}

// withRuntime opens the stores for a one-shot command, runs fn and closes
// everything again. Timers that expired while no process was running are
// caught up before fn sees the entities.
func withRuntime(g *Global, root *CLI, fn func(ctx context.Context, rt *daemon.Runtime) error) error {
	cfg, err := loadConfig(g, root)
	if err != nil {
		return err
	}
	ctx := context.Background()
	rt, err := daemon.OpenRuntime(ctx, cfg, daemon.RuntimeOptions{Clock: g.Clock, Logger: g.Logger})
	if err != nil {
		return err
	}
	runErr := fn(ctx, rt)

	closeCtx, cancel := context.WithTimeout(ctx, cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := rt.Close(closeCtx); err != nil && runErr == nil {
		return err
	}
	return runErr
}
