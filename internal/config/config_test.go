package config

import (
	"bytes"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	t.Setenv(EnvProgram, "")
	t.Setenv(EnvDebug, "")
}

func newFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String(KeyProgram, DefaultProgram, "")
	fs.Bool(KeyVerbose, false, "")
	fs.String(KeyFixtures, ".", "")
	fs.String(KeyWorkDir, ".", "")
	fs.String(KeyDB, "", "")
	fs.Int(KeyParallel, 1, "")
	fs.String(KeyMinVersion, "", "")
	return fs
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, DefaultProgram, cfg.Program)
	assert.False(t, cfg.Debug)
	assert.Equal(t, ".", cfg.FixtureDir)
	assert.Equal(t, ".", cfg.WorkDir)
	assert.Equal(t, 1, cfg.Parallel)
	assert.Empty(t, cfg.DBPath)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvProgram, "/usr/local/bin/jpegoptim")
	t.Setenv(EnvDebug, "yes please")

	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, "/usr/local/bin/jpegoptim", cfg.Program)
	assert.True(t, cfg.Debug, "any non-empty DEBUG value enables diagnostics")
}

func TestLoad_EmptyEnvironmentIsUnset(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvDebug, "0")

	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, DefaultProgram, cfg.Program, "empty JPEGOPTIM keeps the default")
	assert.True(t, cfg.Debug, "DEBUG=0 is non-empty")
}

func TestLoad_FlagsBeatEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvProgram, "/from/env")

	fs := newFlags()
	require.NoError(t, fs.Parse([]string{"--program", "/from/flag", "--verbose", "--parallel", "3"}))

	cfg, err := Load(fs)
	require.NoError(t, err)

	assert.Equal(t, "/from/flag", cfg.Program)
	assert.True(t, cfg.Debug)
	assert.Equal(t, 3, cfg.Parallel)
}

func TestLoad_UnchangedFlagsKeepEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvProgram, "/from/env")

	fs := newFlags()
	require.NoError(t, fs.Parse(nil))

	cfg, err := Load(fs)
	require.NoError(t, err)
	assert.Equal(t, "/from/env", cfg.Program)
}

func TestLoad_RejectsBadParallel(t *testing.T) {
	clearEnv(t)

	fs := newFlags()
	require.NoError(t, fs.Parse([]string{"--parallel", "0"}))

	_, err := Load(fs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--parallel")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "default is valid", mutate: func(*Config) {}},
		{name: "empty program", mutate: func(c *Config) { c.Program = "" }, wantErr: "program path is empty"},
		{name: "bad min version", mutate: func(c *Config) { c.MinVersion = "one.two" }, wantErr: "invalid --min-version"},
		{name: "good min version", mutate: func(c *Config) { c.MinVersion = "1.5.0" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLogger_DebugWritesDiagnostics(t *testing.T) {
	var buf bytes.Buffer

	cfg := Default()
	cfg.Logger(&buf).Debug("hidden")
	assert.Empty(t, buf.String())

	cfg.Debug = true
	cfg.Logger(&buf).Debug("shown", "exit_code", 0)
	assert.Contains(t, buf.String(), "shown")
	assert.Contains(t, buf.String(), "exit_code=0")
}
