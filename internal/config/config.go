// Package config resolves the harness configuration once at start-up.
//
// Values come from command-line flags, then the environment, then
// defaults. The resulting Config is immutable and passed by value to
// every component that needs it; nothing reads the environment after
// Load returns.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/Masterminds/semver/v3"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Environment variables read by Load.
const (
	EnvProgram = "JPEGOPTIM" // path to the executable under test
	EnvDebug   = "DEBUG"     // any non-empty value enables diagnostics
)

// Configuration keys. Flags with the same name are bound to them.
const (
	KeyProgram    = "program"
	KeyDebug      = "debug"
	KeyVerbose    = "verbose"
	KeyFixtures   = "fixtures"
	KeyWorkDir    = "workdir"
	KeyDB         = "db"
	KeyParallel   = "parallel"
	KeyMinVersion = "min-version"
)

// DefaultProgram is the executable path used when neither --program nor
// JPEGOPTIM is set. It is relative to the working directory.
const DefaultProgram = "../jpegoptim"

// Config is the process-wide harness configuration.
type Config struct {
	// Program is the path to the jpegoptim executable under test.
	Program string

	// Debug enables per-invocation diagnostics (command line before,
	// exit code and output after). It never changes a verdict.
	Debug bool

	// FixtureDir holds the read-only input images and is substituted for
	// ${FIXTURES} in scenario arguments. Relative paths are relative to
	// WorkDir, since that is where the tool runs.
	FixtureDir string

	// WorkDir is the directory the tool runs in and the root of the
	// tmp/<scenario> output tree.
	WorkDir string

	// DBPath enables run history when non-empty.
	DBPath string

	// Parallel is the maximum number of scenarios run at once.
	Parallel int

	// MinVersion, when set, is the lowest acceptable tool version.
	MinVersion string

	// Env is appended to the inherited environment of every child process.
	Env []string
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Program:    DefaultProgram,
		FixtureDir: ".",
		WorkDir:    ".",
		Parallel:   1,
	}
}

// Load resolves the configuration from flags and the environment.
// flags may be nil, in which case only the environment is consulted.
func Load(flags *pflag.FlagSet) (Config, error) {
	def := Default()

	v := viper.New()
	v.SetDefault(KeyProgram, def.Program)
	v.SetDefault(KeyFixtures, def.FixtureDir)
	v.SetDefault(KeyWorkDir, def.WorkDir)
	v.SetDefault(KeyParallel, def.Parallel)

	// Empty variables count as unset (viper's AllowEmptyEnv is off).
	if err := v.BindEnv(KeyProgram, EnvProgram); err != nil {
		return Config{}, fmt.Errorf("bind %s: %w", EnvProgram, err)
	}
	if err := v.BindEnv(KeyDebug, EnvDebug); err != nil {
		return Config{}, fmt.Errorf("bind %s: %w", EnvDebug, err)
	}

	if flags != nil {
		for _, key := range []string{KeyProgram, KeyVerbose, KeyFixtures, KeyWorkDir, KeyDB, KeyParallel, KeyMinVersion} {
			f := flags.Lookup(key)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return Config{}, fmt.Errorf("bind flag --%s: %w", key, err)
			}
		}
	}

	cfg := Config{
		Program:    v.GetString(KeyProgram),
		Debug:      v.GetString(KeyDebug) != "" || v.GetBool(KeyVerbose),
		FixtureDir: v.GetString(KeyFixtures),
		WorkDir:    v.GetString(KeyWorkDir),
		DBPath:     v.GetString(KeyDB),
		Parallel:   v.GetInt(KeyParallel),
		MinVersion: v.GetString(KeyMinVersion),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if c.Program == "" {
		return fmt.Errorf("program path is empty (set --%s or %s)", KeyProgram, EnvProgram)
	}
	if c.Parallel < 1 {
		return fmt.Errorf("--%s must be at least 1, got %d", KeyParallel, c.Parallel)
	}
	if c.MinVersion != "" {
		if _, err := semver.NewVersion(c.MinVersion); err != nil {
			return fmt.Errorf("invalid --%s %q: %w", KeyMinVersion, c.MinVersion, err)
		}
	}
	return nil
}

// Logger returns the logger for this configuration. Diagnostics are
// written to w at debug level when Debug is set and discarded otherwise.
func (c Config) Logger(w io.Writer) *slog.Logger {
	if !c.Debug {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if w == nil {
		w = os.Stderr
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
}
