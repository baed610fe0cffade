package commands

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scenario = `
[maxsum]
start_every = 10
iterations = 8

[simulation]
ticks = 30

[[planes]]
id = "p1"
x = 0
y = 0

[[planes]]
id = "p2"
x = 10
y = 0

[[tasks]]
id = "t1"
x = 11
y = 0
owner = "p1"

[[tasks]]
id = "t2"
x = 1
y = 0
owner = "p2"
`

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd("test")
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func writeScenario(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.toml")
	require.NoError(t, os.WriteFile(path, []byte(scenario), 0o644))
	return path
}

func TestRunPrintsAssignmentsAndJournals(t *testing.T) {
	path := writeScenario(t)
	db := filepath.Join(t.TempDir(), "data", "journal.db")

	out, err := execute(t, "run", "--config", path, "--db", db, "--run-id", "r1")
	require.NoError(t, err)
	assert.Contains(t, out, "run r1 after 30 ticks")
	assert.Regexp(t, `t1\s+p2\s+1\.000`, out)
	assert.Regexp(t, `t2\s+p1\s+1\.000`, out)
	assert.Contains(t, out, "total cost 2.000")

	out, err = execute(t, "journal", "--db", db, "--run", "r1", "--task", "t1")
	require.NoError(t, err)
	assert.Contains(t, out, "total cost 2.000")
	assert.Contains(t, out, "task_handed_off")
	assert.Contains(t, out, "task_incorporated")
	assert.NotContains(t, out, "graph_refreshed")

	out, err = execute(t, "journal", "--db", db, "--run", "r1")
	require.NoError(t, err)
	assert.Contains(t, out, "graph_refreshed")

	out, err = execute(t, "journal", "--db", db, "--run", "nope")
	require.NoError(t, err)
	assert.Contains(t, out, "run nope has no summary")
}

func TestRunPublishesToRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	path := writeScenario(t)

	out, err := execute(t, "run", "--config", path, "--redis", mr.Addr(), "--parallel", "--ticks", "12")
	require.NoError(t, err)
	assert.Contains(t, out, "after 12 ticks")
}

func TestRunRejectsBadInput(t *testing.T) {
	_, err := execute(t, "run")
	assert.Error(t, err)

	_, err = execute(t, "run", "--config", filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)

	_, err = execute(t, "run", "--config", writeScenario(t), "--log-level", "loud")
	assert.Error(t, err)

	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	_, err = execute(t, "run", "--config", writeScenario(t), "--redis", addr)
	assert.Error(t, err)
}

func TestWatchStopsWithContext(t *testing.T) {
	mr := miniredis.RunT(t)
	root := NewRootCmd("test")
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"watch", "--redis", mr.Addr(), "--run", "r1"})
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, root.ExecuteContext(ctx), context.DeadlineExceeded)
}
