// Package testutil provides helpers shared by the package tests: a fake
// jpegoptim served by the test binary itself, fixture images and a
// deterministic clock.
package testutil

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/roach88/jpegconform/internal/config"
)

// Environment variables understood by the fake tool.
const (
	// FakeToolEnv marks a test binary re-executed as the fake tool.
	FakeToolEnv = "JPEGCONFORM_FAKE_TOOL"

	// FakeModeEnv selects a misbehaviour, see the FakeMode* constants.
	FakeModeEnv = "JPEGCONFORM_FAKE_MODE"
)

// Fake tool modes.
const (
	FakeModeNormal = ""
	FakeModeCrash  = "crash" // every run dies with exit status 3
	FakeModeGrow   = "grow"  // "optimized" output is larger than the input
	FakeModeSilent = "silent"
	FakeModeShrink = "shrink" // every run drops a byte, so nothing is ever a fixed point
)

// FakeVersion is the version reported by the fake tool.
const FakeVersion = "1.5.6"

// IsFakeToolProcess reports whether this process was started as the fake
// tool. Call it first thing in TestMain:
//
//	func TestMain(m *testing.M) {
//		if testutil.IsFakeToolProcess() {
//			os.Exit(testutil.RunFakeTool(os.Args[1:], os.Stdout, os.Stderr))
//		}
//		os.Exit(m.Run())
//	}
func IsFakeToolProcess() bool {
	return os.Getenv(FakeToolEnv) == "1"
}

// FakeToolConfig returns a configuration that runs the current test
// binary as the tool, inside a fresh work directory holding the fixtures.
// extraEnv is passed to the child, e.g. FakeModeEnv+"=crash".
func FakeToolConfig(t *testing.T, extraEnv ...string) config.Config {
	t.Helper()

	exe, err := os.Executable()
	if err != nil {
		t.Fatalf("locate test binary: %v", err)
	}

	dir := t.TempDir()
	WriteFixtures(t, dir)

	cfg := config.Default()
	cfg.Program = exe
	cfg.WorkDir = dir
	cfg.FixtureDir = "."
	cfg.Env = append([]string{FakeToolEnv + "=1"}, extraEnv...)
	return cfg
}

type fakeOptions struct {
	dest      string
	overwrite bool
	noAction  bool
	quality   int
	files     []string
}

// RunFakeTool emulates the jpegoptim command-line contract closely enough
// for the harness tests and returns the process exit status.
//
// A file is valid when it starts with SOI (FF D8) and contains EOI
// (FF D9). "Optimizing" drops everything after the first EOI, so a file
// with trailing bytes shrinks and a file without them is skipped.
func RunFakeTool(args []string, stdout, stderr io.Writer) int {
	mode := os.Getenv(FakeModeEnv)
	if mode == FakeModeCrash {
		fmt.Fprintln(stderr, "jpegoptim: fatal error: simulated crash")
		return 3
	}

	if len(args) == 0 {
		fmt.Fprintln(stderr, "jpegoptim: file argument(s) missing")
		fmt.Fprintln(stderr, "Try 'jpegoptim --help' for more information.")
		return 1
	}

	opts := fakeOptions{quality: -1}
	for i := 0; i < len(args); i++ {
		switch arg := args[i]; arg {
		case "-V", "--version":
			fmt.Fprintf(stdout, "jpegoptim v%s  x86_64-pc-linux-gnu\n", FakeVersion)
			fmt.Fprintln(stdout, "Copyright (C) 1996-2025, Timo Kokkonen")
			fmt.Fprintln(stdout, "This program comes with ABSOLUTELY NO WARRANTY. This is free software,")
			fmt.Fprintln(stdout, "and you are welcome to redistribute it under certain conditions.")
			fmt.Fprintln(stdout, "See the GNU General Public License for more details.")
			return 0
		case "-o", "--overwrite":
			opts.overwrite = true
		case "-n", "--noaction":
			opts.noAction = true
		case "-d", "--dest", "-m", "--max":
			if i+1 >= len(args) {
				fmt.Fprintf(stderr, "jpegoptim: option requires an argument -- '%s'\n", strings.TrimLeft(arg, "-"))
				return 1
			}
			i++
			if arg == "-d" || arg == "--dest" {
				if info, err := os.Stat(args[i]); err != nil || !info.IsDir() {
					fmt.Fprintln(stderr, "jpegoptim: invalid argument for option -d, --dest")
					return 3
				}
				opts.dest = args[i]
				continue
			}
			q, err := strconv.Atoi(args[i])
			if err != nil {
				fmt.Fprintln(stderr, "jpegoptim: invalid argument for -m, --max")
				return 3
			}
			opts.quality = min(max(q, 0), 100)
		default:
			opts.files = append(opts.files, arg)
		}
	}

	if len(opts.files) == 0 {
		fmt.Fprintln(stderr, "jpegoptim: file argument(s) missing")
		return 1
	}

	status := 0
	for _, file := range opts.files {
		if !fakeOptimize(file, opts, mode, stdout, stderr) {
			status = 2
		}
	}
	return status
}

// fakeOptimize handles one file and reports whether it was processed
// without warnings.
func fakeOptimize(file string, opts fakeOptions, mode string, stdout, stderr io.Writer) bool {
	data, err := os.ReadFile(file)
	if err != nil {
		fmt.Fprintf(stderr, "jpegoptim: cannot open file: %s\n", file)
		return false
	}

	fmt.Fprintf(stdout, "%s 64x64 24bit N JFIF ", file)

	eoi := bytes.Index(data, []byte{0xFF, 0xD9})
	if !bytes.HasPrefix(data, []byte{0xFF, 0xD8}) || eoi < 0 {
		fmt.Fprintf(stderr, "jpegoptim: Premature end of JPEG file (%s)\n", file)
		fmt.Fprintf(stdout, " [WARNING] %d --> %d bytes (0.00%%), skipped.\n", len(data), len(data))
		return false
	}

	out := data[:eoi+2]
	if opts.quality >= 0 && opts.quality < 100 && len(out) > 8 {
		// Lossy mode also throws away a slice of the scan data.
		out = append(append([]byte{}, out[:len(out)-6]...), 0xFF, 0xD9)
	}
	switch {
	case mode == FakeModeGrow:
		out = append(append([]byte{}, data...), make([]byte, 64)...)
	case mode == FakeModeShrink && len(out) > 4:
		out = append(append([]byte{}, out[:len(out)-3]...), 0xFF, 0xD9)
	}

	target := file
	if opts.dest != "" {
		target = filepath.Join(opts.dest, filepath.Base(file))
		if _, err := os.Stat(target); err == nil && !opts.overwrite && !opts.noAction {
			fmt.Fprintln(stderr, "target file already exists!")
			return false
		}
	}

	ratio := float64(len(data)-len(out)) * 100 / float64(len(data))
	fmt.Fprintf(stdout, " [OK] %d --> %d bytes (%0.2f%%), ", len(data), len(out), ratio)

	if len(out) < len(data) || mode == FakeModeGrow {
		if mode == FakeModeSilent {
			fmt.Fprintln(stdout, "done")
		} else {
			fmt.Fprintln(stdout, "optimized.")
		}
		if opts.noAction {
			return true
		}
		if err := os.WriteFile(target, out, 0o644); err != nil {
			fmt.Fprintf(stderr, "jpegoptim: error writing to file: %s\n", target)
			return false
		}
		return true
	}

	fmt.Fprintln(stdout, "skipped.")
	return true
}
