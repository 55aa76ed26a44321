package harness

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/jpegconform/internal/config"
	"github.com/roach88/jpegconform/internal/invoke"
	"github.com/roach88/jpegconform/internal/testutil"
)

func TestMain(m *testing.M) {
	if testutil.IsFakeToolProcess() {
		os.Exit(testutil.RunFakeTool(os.Args[1:], os.Stdout, os.Stderr))
	}
	os.Exit(m.Run())
}

func newHarness(t *testing.T, extraEnv ...string) (*Harness, config.Config) {
	t.Helper()
	cfg := testutil.FakeToolConfig(t, extraEnv...)
	return New(invoke.NewRunner(cfg, nil), cfg.FixtureDir, nil), cfg
}

func scenarioByName(t *testing.T, name string) *Scenario {
	t.Helper()
	for _, s := range BuiltinSuite(testutil.FakeVersion) {
		if s.Name == name {
			return s
		}
	}
	t.Fatalf("no builtin scenario %q", name)
	return nil
}

func TestRun_BuiltinSuite(t *testing.T) {
	h, _ := newHarness(t)

	for _, s := range BuiltinSuite(testutil.FakeVersion) {
		t.Run(s.Name, func(t *testing.T) {
			r := h.Run(context.Background(), s)
			require.True(t, r.Pass, "errors: %v", r.Errors)
			assert.Equal(t, StatePass, r.State)
			assert.False(t, r.ExecutionFailed)
			assert.Empty(t, r.Errors)
			assert.Len(t, r.Steps, len(s.Steps))
		})
	}
}

func TestRun_DefaultWritesOutputDir(t *testing.T) {
	h, cfg := newHarness(t)

	r := h.Run(context.Background(), scenarioByName(t, "default"))
	require.True(t, r.Pass, "errors: %v", r.Errors)

	produced, err := os.Stat(filepath.Join(cfg.WorkDir, "tmp", "default", testutil.FixtureUnoptimized))
	require.NoError(t, err)
	original, err := os.Stat(filepath.Join(cfg.WorkDir, testutil.FixtureUnoptimized))
	require.NoError(t, err)
	assert.Less(t, produced.Size(), original.Size())

	// The input is never touched.
	assert.Equal(t, int64(len(testutil.UnoptimizedJPEG())), original.Size())

	assert.Equal(t, []string{testutil.FixtureUnoptimized, "-o", "-d", "tmp/default"}, r.Steps[0].Args)
	assert.Equal(t, []string{"-n", "tmp/default/" + testutil.FixtureUnoptimized}, r.Steps[1].Args)
}

func TestRun_ToleratesExistingOutput(t *testing.T) {
	h, cfg := newHarness(t)

	dir := filepath.Join(cfg.WorkDir, "tmp", "default")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, testutil.FixtureUnoptimized), []byte("stale"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "unrelated.txt"), []byte("keep"), 0o644))

	s := scenarioByName(t, "default")
	for i := 0; i < 2; i++ {
		r := h.Run(context.Background(), s)
		require.True(t, r.Pass, "run %d errors: %v", i, r.Errors)
	}

	data, err := os.ReadFile(filepath.Join(dir, "unrelated.txt"))
	require.NoError(t, err)
	assert.Equal(t, "keep", string(data))
}

func TestRun_ExecutionFailure(t *testing.T) {
	h, _ := newHarness(t, testutil.FakeModeEnv+"="+testutil.FakeModeCrash)

	r := h.Run(context.Background(), scenarioByName(t, "default"))
	assert.False(t, r.Pass)
	assert.Equal(t, StateFail, r.State)
	assert.True(t, r.ExecutionFailed)

	// The scenario stops at the failing step, and no assertion runs.
	require.Len(t, r.Steps, 1)
	assert.Equal(t, 3, r.Steps[0].ExitCode)
	assert.Empty(t, r.Steps[0].Errors)
	require.Len(t, r.Errors, 1)
	assert.Contains(t, r.Errors[0], "step 0: execution failed")
	assert.Contains(t, r.Errors[0], "simulated crash")
}

func TestRun_UncheckedStepIsNotExecutionFailure(t *testing.T) {
	h, _ := newHarness(t, testutil.FakeModeEnv+"="+testutil.FakeModeCrash)

	// noarguments does not require success; the crash only shows up as
	// assertion failures.
	r := h.Run(context.Background(), scenarioByName(t, "noarguments"))
	assert.False(t, r.Pass)
	assert.False(t, r.ExecutionFailed)
	require.Len(t, r.Steps, 1)
	assert.Len(t, r.Steps[0].Errors, 2)
}

func TestRun_MissingProgram(t *testing.T) {
	cfg := testutil.FakeToolConfig(t)
	cfg.Program = filepath.Join(cfg.WorkDir, "no-such-jpegoptim")
	h := New(invoke.NewRunner(cfg, nil), cfg.FixtureDir, nil)

	r := h.Run(context.Background(), scenarioByName(t, "version"))
	assert.False(t, r.Pass)
	assert.True(t, r.ExecutionFailed)
	assert.Empty(t, r.Steps)
	require.Len(t, r.Errors, 1)
	assert.Contains(t, r.Errors[0], "no-such-jpegoptim")
}

func TestRun_CanceledContext(t *testing.T) {
	h, _ := newHarness(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := h.Run(ctx, scenarioByName(t, "version"))
	assert.False(t, r.Pass)
	assert.True(t, r.ExecutionFailed)
}

func TestRun_OutputNotShrunk(t *testing.T) {
	h, _ := newHarness(t, testutil.FakeModeEnv+"="+testutil.FakeModeGrow)

	r := h.Run(context.Background(), scenarioByName(t, "default"))
	assert.False(t, r.Pass)
	assert.False(t, r.ExecutionFailed)

	require.Len(t, r.Steps, 1, "scenario must stop at the failing step")
	require.Len(t, r.Steps[0].Errors, 1)
	assert.Contains(t, r.Steps[0].Errors[0], "Assertion failed: file_smaller")
	assert.Contains(t, r.Errors[0], "step 0: ")
}

func TestRun_StatusLineMissing(t *testing.T) {
	h, _ := newHarness(t, testutil.FakeModeEnv+"="+testutil.FakeModeSilent)

	r := h.Run(context.Background(), scenarioByName(t, "lossy"))
	assert.False(t, r.Pass)
	assert.False(t, r.ExecutionFailed)

	require.Len(t, r.Steps, 1)
	require.Len(t, r.Steps[0].Errors, 1)
	msg := r.Steps[0].Errors[0]
	assert.Contains(t, msg, "Assertion failed: status_line")
	assert.Contains(t, msg, "[OK] ... optimized.")
	// The report carries the captured output.
	assert.Contains(t, msg, "bytes (33.68%), done")
}

func TestRun_RecheckNotIdempotent(t *testing.T) {
	h, _ := newHarness(t, testutil.FakeModeEnv+"="+testutil.FakeModeShrink)

	r := h.Run(context.Background(), scenarioByName(t, "default"))
	assert.False(t, r.Pass)
	assert.False(t, r.ExecutionFailed)

	require.Len(t, r.Steps, 2)
	assert.Empty(t, r.Steps[0].Errors)
	require.Len(t, r.Steps[1].Errors, 1)
	msg := r.Steps[1].Errors[0]
	assert.Contains(t, msg, "Assertion failed: status_line")
	assert.Contains(t, msg, "[OK] ... skipped.")
	assert.Contains(t, msg, "515 --> 514 bytes (0.19%), optimized.")
}

func TestRun_YAMLScenario(t *testing.T) {
	h, _ := newHarness(t)

	s, err := LoadScenario("testdata/scenarios/lossy_quality.yaml")
	require.NoError(t, err)

	r := h.Run(context.Background(), s)
	require.True(t, r.Pass, "errors: %v", r.Errors)
	assert.Equal(t, []string{"-m", "50", testutil.FixtureUnoptimized, "-o", "-d", "tmp/lossy_quality"}, r.Steps[0].Args)
}

func TestRun_Logs(t *testing.T) {
	cfg := testutil.FakeToolConfig(t)
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	h := New(invoke.NewRunner(cfg, logger), cfg.FixtureDir, logger)

	r := h.Run(context.Background(), scenarioByName(t, "version"))
	require.True(t, r.Pass)

	logs := buf.String()
	assert.Contains(t, logs, "scenario started")
	assert.Contains(t, logs, "program="+cfg.Program)
	assert.Contains(t, logs, "run command")
	assert.Contains(t, logs, "step completed")
	assert.Contains(t, logs, "scenario finished")
	assert.Contains(t, logs, "scenario=version")
}

func TestRunAll_PreservesOrder(t *testing.T) {
	for _, parallel := range []int{1, 4} {
		h, _ := newHarness(t)
		suite := BuiltinSuite(testutil.FakeVersion)

		results := h.RunAll(context.Background(), suite, parallel)
		require.Len(t, results, len(suite))
		for i, r := range results {
			assert.Equal(t, suite[i].Name, r.Scenario)
			assert.True(t, r.Pass, "parallel=%d %s: %v", parallel, r.Scenario, r.Errors)
		}

		passed, failed := Summary(results)
		assert.Equal(t, len(suite), passed)
		assert.Zero(t, failed)
	}
}

func TestSummary(t *testing.T) {
	ok := NewResult("a")
	ok.State = StateAsserted
	ok.finish()

	bad := NewResult("b")
	bad.AddError("boom")
	bad.finish()

	never := NewResult("c")
	never.finish()

	passed, failed := Summary([]*Result{ok, bad, never})
	assert.Equal(t, 1, passed)
	assert.Equal(t, 2, failed)
	assert.Equal(t, StatePass, ok.State)
	assert.Equal(t, StateFail, bad.State)
	assert.Equal(t, StateFail, never.State)
}

// TestConformance_RealTool runs the built-in suite against an installed
// jpegoptim. It needs JPEGOPTIM and a directory of real fixture images in
// JPEGCONFORM_FIXTURES.
func TestConformance_RealTool(t *testing.T) {
	program := os.Getenv(config.EnvProgram)
	fixtures := os.Getenv("JPEGCONFORM_FIXTURES")
	if program == "" || fixtures == "" {
		t.Skip("set JPEGOPTIM and JPEGCONFORM_FIXTURES to run against a real jpegoptim")
	}

	fixtures, err := filepath.Abs(fixtures)
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Program = program
	cfg.WorkDir = t.TempDir()
	cfg.FixtureDir = fixtures

	h := New(invoke.NewRunner(cfg, nil), cfg.FixtureDir, nil)
	for _, r := range h.RunAll(context.Background(), BuiltinSuite(""), 1) {
		assert.True(t, r.Pass, "%s:\n%s", r.Scenario, strings.Join(r.Errors, "\n"))
	}
}
