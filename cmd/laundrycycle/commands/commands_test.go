package commands

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alecthomas/kong"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/laundrycycle/internal/coordinator"
	"git.home.luguber.info/inful/laundrycycle/internal/cycle"
	foundationerrors "git.home.luguber.info/inful/laundrycycle/internal/foundation/errors"
)

type cliEnv struct {
	dir    string
	config string
	clock  *clockwork.FakeClock
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	content := "version: \"1\"\n" +
		"storage:\n  path: " + filepath.Join(dir, "laundry.db") + "\n" +
		"logging:\n  level: error\n" +
		"categories:\n  - name: Towels\n    wash_interval: 1h\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0o600))
	return &cliEnv{
		dir:    dir,
		config: cfgPath,
		clock:  clockwork.NewFakeClockAt(time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)),
	}
}

// run parses args like main does and returns stdout.
func (e *cliEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	g := NewGlobal(&out, &errOut)
	g.Clock = e.clock

	var cli CLI
	parser, err := kong.New(&cli, kong.Bind(g), kong.Vars{"version": "test"})
	require.NoError(t, err)
	ctx, err := parser.Parse(append([]string{"-c", e.config}, args...))
	require.NoError(t, err)
	runErr := ctx.Run(g, &cli)
	return out.String(), runErr
}

func (e *cliEnv) snapshot(t *testing.T, args ...string) coordinator.Snapshot {
	t.Helper()
	out, err := e.run(t, append(args, "--json")...)
	require.NoError(t, err)
	var snap coordinator.Snapshot
	require.NoError(t, json.Unmarshal([]byte(out), &snap))
	return snap
}

func TestInit_WritesConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "laundry.yaml")
	env := &cliEnv{config: path, clock: clockwork.NewFakeClock()}

	out, err := env.run(t, "init")
	require.NoError(t, err)
	require.Contains(t, out, "initialized successfully")
	require.FileExists(t, path)

	_, err = env.run(t, "init")
	require.Error(t, err, "existing file without --force")
	_, err = env.run(t, "init", "--force")
	require.NoError(t, err)
}

func TestStatus_ListsSeededCategories(t *testing.T) {
	env := newCLIEnv(t)
	out, err := env.run(t, "status")
	require.NoError(t, err)
	require.Contains(t, out, "Towels")
	require.Contains(t, out, string(cycle.StageClean))

	snap := env.snapshot(t, "status", "towels")
	require.Equal(t, "Towels", snap.Name)
}

func TestRegisterAndTransition(t *testing.T) {
	env := newCLIEnv(t)

	snap := env.snapshot(t, "register", "Gym clothes", "--wash-duration", "40m")
	require.Equal(t, cycle.StageClean, snap.Stage)

	env.snapshot(t, "transition", "Gym clothes", "dirty")
	snap = env.snapshot(t, "transition", snap.ID, "washing")
	require.Equal(t, cycle.StageWashing, snap.Stage)
	require.NotNil(t, snap.RemainingTimerSeconds)
	require.Equal(t, int64(40*60), *snap.RemainingTimerSeconds)

	// The wash finished while no process was running.
	env.clock.Advance(time.Hour)
	snap = env.snapshot(t, "status", "Gym clothes")
	require.Equal(t, cycle.StageWetWaitingForDryer, snap.Stage)

	out, err := env.run(t, "history", "Gym clothes")
	require.NoError(t, err)
	require.Contains(t, out, string(cycle.CauseTimerCompletion))
}

func TestCancelTimerAndEscalate(t *testing.T) {
	env := newCLIEnv(t)
	env.snapshot(t, "transition", "Towels", "dirty")
	env.snapshot(t, "transition", "Towels", "washing")

	snap := env.snapshot(t, "cancel-timer", "Towels")
	require.Equal(t, cycle.StageWetWaitingForDryer, snap.Stage)
	require.Nil(t, snap.RemainingTimerSeconds)

	snap = env.snapshot(t, "escalate", "Towels")
	require.Equal(t, cycle.StageAbandoned, snap.Stage)
}

func TestTick_PromotesOverdue(t *testing.T) {
	env := newCLIEnv(t)
	_, err := env.run(t, "status")
	require.NoError(t, err)

	env.clock.Advance(2 * time.Hour)
	out, err := env.run(t, "tick")
	require.NoError(t, err)
	require.Contains(t, out, "promoted 1")

	snap := env.snapshot(t, "status", "Towels")
	require.Equal(t, cycle.StageDirty, snap.Stage)
}

func TestErrorsMapToExitCodes(t *testing.T) {
	env := newCLIEnv(t)
	adapter := foundationerrors.NewCLIErrorAdapter(false, nil)

	_, err := env.run(t, "status", "Socks")
	require.Error(t, err)
	require.Equal(t, 3, adapter.ExitCodeFor(err))

	_, err = env.run(t, "transition", "Towels", "folded")
	require.Error(t, err)
	require.Equal(t, 4, adapter.ExitCodeFor(err))

	_, err = env.run(t, "transition", "Towels", "sparkling")
	require.Error(t, err)
	require.Equal(t, 2, adapter.ExitCodeFor(err))

	_, err = env.run(t, "register", "towels")
	require.Error(t, err)
	require.Equal(t, 4, adapter.ExitCodeFor(err))

	missing := &cliEnv{config: filepath.Join(t.TempDir(), "missing.yaml"), clock: env.clock}
	_, err = missing.run(t, "status")
	require.Error(t, err)
	require.Equal(t, 7, adapter.ExitCodeFor(err))
}
