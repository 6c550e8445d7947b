package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"git.home.luguber.info/inful/laundrycycle/internal/coordinator"
	"git.home.luguber.info/inful/laundrycycle/internal/cycle"
	"git.home.luguber.info/inful/laundrycycle/internal/daemon"
)

// RegisterCmd implements the 'register' command. Durations left at zero use
// the configured defaults.
type RegisterCmd struct {
	Name         string        `arg:"" help:"Category name"`
	WashInterval time.Duration `name:"wash-interval" help:"Time a clean category stays clean"`
	WashDuration time.Duration `name:"wash-duration" help:"Length of the wash timer"`
	DryDuration  time.Duration `name:"dry-duration" help:"Length of the dry timer"`
	JSON         bool          `help:"Print the result as JSON"`
}

func (c *RegisterCmd) Run(g *Global, root *CLI) error {
	return withRuntime(g, root, func(ctx context.Context, rt *daemon.Runtime) error {
		d := rt.Defaults
		cfg := cycle.Config{
			Name:         c.Name,
			WashInterval: orDefault(c.WashInterval, d.WashInterval),
			WashDuration: orDefault(c.WashDuration, d.WashDuration),
			DryDuration:  orDefault(c.DryDuration, d.DryDuration),
		}
		id, err := rt.Coordinator.Register(ctx, cfg)
		if err != nil {
			return err
		}
		snap, err := rt.Coordinator.Snapshot(id)
		if err != nil {
			return err
		}
		return printSnapshots(g.Out, c.JSON, snap)
	})
}

func orDefault(v, d time.Duration) time.Duration {
	if v == 0 {
		return d
	}
	return v
}

// TransitionCmd implements the 'transition' command.
type TransitionCmd struct {
	Entity string `arg:"" help:"Category id or name"`
	Stage  string `arg:"" help:"Target stage (clean, dirty, washing, wet_waiting_for_dryer, drying, ready_to_fold, folded, abandoned)"`
	JSON   bool   `help:"Print the result as JSON"`
}

func (c *TransitionCmd) Run(g *Global, root *CLI) error {
	stage, err := cycle.ParseStage(c.Stage)
	if err != nil {
		return err
	}
	return withRuntime(g, root, func(ctx context.Context, rt *daemon.Runtime) error {
		id, err := rt.Coordinator.Resolve(c.Entity)
		if err != nil {
			return err
		}
		snap, err := rt.Coordinator.RequestTransition(ctx, id, stage)
		if err != nil {
			return err
		}
		return printSnapshots(g.Out, c.JSON, snap)
	})
}

// CancelTimerCmd implements the 'cancel-timer' command.
type CancelTimerCmd struct {
	Entity string `arg:"" help:"Category id or name"`
	JSON   bool   `help:"Print the result as JSON"`
}

func (c *CancelTimerCmd) Run(g *Global, root *CLI) error {
	return withRuntime(g, root, func(ctx context.Context, rt *daemon.Runtime) error {
		id, err := rt.Coordinator.Resolve(c.Entity)
		if err != nil {
			return err
		}
		snap, err := rt.Coordinator.CancelActiveTimer(ctx, id)
		if err != nil {
			return err
		}
		return printSnapshots(g.Out, c.JSON, snap)
	})
}

// EscalateCmd implements the 'escalate' command.
type EscalateCmd struct {
	Entity string `arg:"" help:"Category id or name"`
	JSON   bool   `help:"Print the result as JSON"`
}

func (c *EscalateCmd) Run(g *Global, root *CLI) error {
	return withRuntime(g, root, func(ctx context.Context, rt *daemon.Runtime) error {
		id, err := rt.Coordinator.Resolve(c.Entity)
		if err != nil {
			return err
		}
		snap, err := rt.Coordinator.Escalate(ctx, id)
		if err != nil {
			return err
		}
		return printSnapshots(g.Out, c.JSON, snap)
	})
}

// StatusCmd implements the 'status' command.
type StatusCmd struct {
	Entity string `arg:"" optional:"" help:"Category id or name (all when omitted)"`
	JSON   bool   `help:"Print the result as JSON"`
}

func (c *StatusCmd) Run(g *Global, root *CLI) error {
	return withRuntime(g, root, func(_ context.Context, rt *daemon.Runtime) error {
		if c.Entity == "" {
			return printSnapshots(g.Out, c.JSON, rt.Coordinator.Snapshots()...)
		}
		id, err := rt.Coordinator.Resolve(c.Entity)
		if err != nil {
			return err
		}
		snap, err := rt.Coordinator.Snapshot(id)
		if err != nil {
			return err
		}
		return printSnapshots(g.Out, c.JSON, snap)
	})
}

// HistoryCmd implements the 'history' command.
type HistoryCmd struct {
	Entity string `arg:"" help:"Category id or name"`
	JSON   bool   `help:"Print the result as JSON"`
}

func (c *HistoryCmd) Run(g *Global, root *CLI) error {
	return withRuntime(g, root, func(ctx context.Context, rt *daemon.Runtime) error {
		id, err := rt.Coordinator.Resolve(c.Entity)
		if err != nil {
			return err
		}
		entries, err := rt.Coordinator.History(ctx, id)
		if err != nil {
			return err
		}
		if c.JSON {
			return writeJSON(g.Out, entries)
		}
		tw := tabwriter.NewWriter(g.Out, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(tw, "AT\tFROM\tTO\tCAUSE")
		for _, e := range entries {
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.At.Format(time.RFC3339), e.From, e.To, e.Cause)
		}
		return tw.Flush()
	})
}

// TickCmd implements the 'tick' command.
type TickCmd struct {
	JSON bool `help:"Print the result as JSON"`
}

func (c *TickCmd) Run(g *Global, root *CLI) error {
	return withRuntime(g, root, func(ctx context.Context, rt *daemon.Runtime) error {
		report, err := rt.Coordinator.RunMaintenanceTick(ctx)
		if c.JSON {
			if werr := writeJSON(g.Out, report); werr != nil {
				return werr
			}
		} else {
			_, _ = fmt.Fprintf(g.Out, "promoted %d, recovered %d in %s\n",
				len(report.Promoted), len(report.Recovered), report.Duration.Round(time.Millisecond))
		}
		return err
	})
}

func printSnapshots(w io.Writer, asJSON bool, snaps ...coordinator.Snapshot) error {
	if asJSON {
		if len(snaps) == 1 {
			return writeJSON(w, snaps[0])
		}
		return writeJSON(w, snaps)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tNAME\tSTAGE\tTIMER\tHAPPINESS\tOVERDUE\tCYCLES")
	for _, s := range snaps {
		timer := "-"
		if s.RemainingTimerSeconds != nil {
			timer = (time.Duration(*s.RemainingTimerSeconds) * time.Second).String()
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%d\n",
			s.ID, s.Name, s.Stage, timer, s.Happiness, strconv.FormatBool(s.IsOverdue), s.CompletedCycles)
	}
	return tw.Flush()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
