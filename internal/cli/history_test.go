package cli

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/jpegconform/internal/harness"
	"github.com/roach88/jpegconform/internal/store"
	"github.com/roach88/jpegconform/internal/testutil"
)

// seedHistory writes two runs with fixed timestamps and returns their IDs.
func seedHistory(t *testing.T) (string, []store.Run) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "history.db")
	st, err := store.Open(path, store.WithClock(testutil.NewStepClock(time.Hour).Now))
	require.NoError(t, err)
	defer st.Close()

	pass := harness.NewResult("default")
	pass.Pass, pass.State = true, harness.StatePass
	fail := harness.NewResult("default")
	fail.AddError("step 0: Assertion failed: file_smaller")

	var runs []store.Run
	for _, r := range []*harness.Result{pass, fail} {
		run, err := st.WriteRun(context.Background(), store.Run{Program: "/usr/bin/jpegoptim", ToolVersion: "1.5.6"}, []*harness.Result{r})
		require.NoError(t, err)
		runs = append(runs, run)
	}
	return path, runs
}

func TestHistoryCommand_ListRuns(t *testing.T) {
	db, runs := seedHistory(t)

	out, err := executeRoot(t, "--db", db, "history")
	require.NoError(t, err)
	assert.Regexp(t, `\|\s*2\s*\|\s*`+runs[1].ID+`\s*\|\s*2024-01-01T01:00:00Z\s*\|\s*/usr/bin/jpegoptim\s*\|\s*1\.5\.6\s*\|\s*0\s*\|\s*1\s*\|`, out)
	assert.Regexp(t, `\|\s*1\s*\|\s*`+runs[0].ID+`\s*\|\s*2024-01-01T00:00:00Z\s*\|`, out)

	out, err = executeRoot(t, "--db", db, "--format", "json", "history", "--limit", "1")
	require.NoError(t, err)
	var resp struct {
		Data []store.Run `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, runs[1].ID, resp.Data[0].ID)
}

func TestHistoryCommand_Scenario(t *testing.T) {
	db, runs := seedHistory(t)

	out, err := executeRoot(t, "--db", db, "history", "--scenario", "default")
	require.NoError(t, err)
	assert.Regexp(t, `\|\s*2\s*\|\s*`+runs[1].ID+`\s*\|.*\|\s*FAIL\s*\|\s*1\s*\|`, out)
	assert.Regexp(t, `\|\s*1\s*\|\s*`+runs[0].ID+`\s*\|.*\|\s*PASS\s*\|\s*0\s*\|`, out)

	out, err = executeRoot(t, "--db", db, "history", "--scenario", "lossy")
	require.NoError(t, err)
	assert.Equal(t, "No recorded results for scenario \"lossy\".\n", out)
}

func TestHistoryCommand_Run(t *testing.T) {
	db, runs := seedHistory(t)

	out, err := executeRoot(t, "--db", db, "history", "--run", "latest")
	require.NoError(t, err)
	assert.Contains(t, out, "Run "+runs[1].ID+" (#2) started 2024-01-01T01:00:00Z")
	assert.Contains(t, out, "Program: /usr/bin/jpegoptim (jpegoptim v1.5.6)")
	assert.Contains(t, out, "✗ default\n  step 0: Assertion failed: file_smaller")
	assert.Contains(t, out, "0 passed, 1 failed, 1 total")

	out, err = executeRoot(t, "--db", db, "--format", "json", "history", "--run", runs[0].ID)
	require.NoError(t, err)
	var resp struct {
		Data RunDetail `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, runs[0], resp.Data.Run)
	require.Len(t, resp.Data.Scenarios, 1)
	assert.True(t, resp.Data.Scenarios[0].Pass)
}

func TestHistoryCommand_Errors(t *testing.T) {
	_, err := executeRoot(t, "history")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "--db is required")

	_, err = executeRoot(t, "--db", filepath.Join(t.TempDir(), "none.db"), "history")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "database not found")

	db, _ := seedHistory(t)
	_, err = executeRoot(t, "--db", db, "history", "--run", "no-such-run")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.ErrorIs(t, err, store.ErrRunNotFound)

	_, err = executeRoot(t, "--db", db, "history", "--run", "latest", "--scenario", "default")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestHistoryCommand_Delete(t *testing.T) {
	db, runs := seedHistory(t)

	out, err := executeRoot(t, "--db", db, "history", "--delete", runs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "Deleted run "+runs[0].ID+"\n", out)

	out, err = executeRoot(t, "--db", db, "--format", "json", "history")
	require.NoError(t, err)
	var resp struct {
		Data []store.Run `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, runs[1].ID, resp.Data[0].ID)

	_, err = executeRoot(t, "--db", db, "history", "--delete", runs[0].ID)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.ErrorIs(t, err, store.ErrRunNotFound)

	_, err = executeRoot(t, "--db", db, "history", "--delete", runs[1].ID, "--run", "latest")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestHistoryCommand_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.db")
	st, err := store.Open(path)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	out, err := executeRoot(t, "--db", path, "history")
	require.NoError(t, err)
	assert.Equal(t, "No runs recorded in "+path+".\n", out)
}
