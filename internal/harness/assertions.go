package harness

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/afero"

	"github.com/roach88/jpegconform/internal/invoke"
)

// AssertionError is returned when an assertion fails.
// It carries the captured output so the failure can be diagnosed from the
// report alone.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
	Output   string // Captured tool output
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if e.Output != "" {
		fmt.Fprintf(&buf, "\nOutput:\n---\n%s", e.Output)
		if !strings.HasSuffix(e.Output, "\n") {
			buf.WriteByte('\n')
		}
		buf.WriteString("---\n")
	}

	return buf.String()
}

// AssertionContext provides what assertions need beyond the invocation
// result: where files live and how to reach them.
type AssertionContext struct {
	Fs         afero.Fs
	WorkDir    string
	FixtureDir string
}

// path resolves an assertion path against the work dir.
func (c *AssertionContext) path(p string) string {
	p = expand(p, c.FixtureDir)
	if filepath.IsAbs(p) || c.WorkDir == "" {
		return p
	}
	return filepath.Join(c.WorkDir, p)
}

func assertOutputContains(res *invoke.Result, a Assertion) error {
	if strings.Contains(res.Output, a.Pattern) {
		return nil
	}
	return &AssertionError{
		Type:     AssertOutputContains,
		Expected: fmt.Sprintf("output containing %q", a.Pattern),
		Actual:   "not found",
		Output:   res.Output,
	}
}

func assertOutputMatches(res *invoke.Result, a Assertion) error {
	re, err := regexp.Compile(a.Pattern)
	if err != nil {
		return fmt.Errorf("%s: invalid pattern: %w", AssertOutputMatches, err)
	}
	if re.MatchString(res.Output) {
		return nil
	}
	return &AssertionError{
		Type:     AssertOutputMatches,
		Expected: fmt.Sprintf("output matching /%s/", a.Pattern),
		Actual:   "no match",
		Output:   res.Output,
	}
}

func assertOutputNotMatches(res *invoke.Result, a Assertion) error {
	re, err := regexp.Compile(a.Pattern)
	if err != nil {
		return fmt.Errorf("%s: invalid pattern: %w", AssertOutputNotMatches, err)
	}
	loc := re.FindStringIndex(res.Output)
	if loc == nil {
		return nil
	}
	return &AssertionError{
		Type:     AssertOutputNotMatches,
		Expected: fmt.Sprintf("output not matching /%s/", a.Pattern),
		Actual:   fmt.Sprintf("matched %q", res.Output[loc[0]:loc[1]]),
		Output:   res.Output,
	}
}

// assertStatusLine checks the output against the status-line contract.
// With Absent set the line must not appear anywhere in the output, not
// just at the end.
func assertStatusLine(res *invoke.Result, a Assertion) error {
	line := StatusLine{Severity: a.Severity, Verb: a.Verb}
	if err := line.Validate(); err != nil {
		return fmt.Errorf("%s: %w", AssertStatusLine, err)
	}

	if a.Absent {
		for _, l := range strings.Split(res.Output, "\n") {
			if line.Match(l) {
				return &AssertionError{
					Type:     AssertStatusLine,
					Expected: fmt.Sprintf("no %s line", line),
					Actual:   fmt.Sprintf("found %q", strings.TrimSpace(l)),
					Output:   res.Output,
				}
			}
		}
		return nil
	}

	if line.Match(res.Output) {
		return nil
	}
	return &AssertionError{
		Type:     AssertStatusLine,
		Expected: fmt.Sprintf("output ending in a %s line (contract v%d)", line, StatusLineContractVersion),
		Actual:   fmt.Sprintf("last line %q", lastLine(res.Output)),
		Output:   res.Output,
	}
}

func assertExitCode(res *invoke.Result, a Assertion) error {
	if a.Code == nil {
		return fmt.Errorf("%s: code is required", AssertExitCode)
	}
	if res.ExitCode == *a.Code {
		return nil
	}
	return &AssertionError{
		Type:     AssertExitCode,
		Expected: fmt.Sprintf("exit code %d", *a.Code),
		Actual:   fmt.Sprintf("exit code %d", res.ExitCode),
		Output:   res.Output,
	}
}

func assertExitCodeNonZero(res *invoke.Result) error {
	if res.ExitCode != 0 {
		return nil
	}
	return &AssertionError{
		Type:     AssertExitCodeNonZero,
		Expected: "non-zero exit code",
		Actual:   "exit code 0",
		Output:   res.Output,
	}
}

func assertFileExists(actx *AssertionContext, a Assertion) error {
	ok, err := afero.Exists(actx.Fs, actx.path(a.Path))
	if err != nil {
		return fmt.Errorf("%s: stat %s: %w", AssertFileExists, a.Path, err)
	}
	if ok {
		return nil
	}
	return &AssertionError{
		Type:     AssertFileExists,
		Expected: fmt.Sprintf("file %s to exist", a.Path),
		Actual:   "not found",
	}
}

// assertFileSmaller requires size(Path) < size(Than), strictly.
func assertFileSmaller(actx *AssertionContext, a Assertion) error {
	got, err := actx.Fs.Stat(actx.path(a.Path))
	if err != nil {
		return &AssertionError{
			Type:     AssertFileSmaller,
			Expected: fmt.Sprintf("file %s to exist", a.Path),
			Actual:   err.Error(),
		}
	}
	ref, err := actx.Fs.Stat(actx.path(a.Than))
	if err != nil {
		return &AssertionError{
			Type:     AssertFileSmaller,
			Expected: fmt.Sprintf("reference file %s to exist", a.Than),
			Actual:   err.Error(),
		}
	}
	if got.Size() < ref.Size() {
		return nil
	}
	return &AssertionError{
		Type:     AssertFileSmaller,
		Expected: fmt.Sprintf("%s smaller than %s (%d bytes)", a.Path, a.Than, ref.Size()),
		Actual:   fmt.Sprintf("%d bytes", got.Size()),
	}
}

func assertVersionAtLeast(res *invoke.Result, a Assertion) error {
	want, err := semver.NewVersion(a.Version)
	if err != nil {
		return fmt.Errorf("%s: invalid version %q: %w", AssertVersionAtLeast, a.Version, err)
	}

	m := VersionPattern.FindStringSubmatch(res.Output)
	if m == nil {
		return &AssertionError{
			Type:     AssertVersionAtLeast,
			Expected: fmt.Sprintf("version banner matching /%s/", VersionPattern),
			Actual:   "no version found",
			Output:   res.Output,
		}
	}
	got, err := semver.NewVersion(m[1])
	if err != nil {
		return fmt.Errorf("%s: parse reported version %q: %w", AssertVersionAtLeast, m[1], err)
	}
	if got.LessThan(want) {
		return &AssertionError{
			Type:     AssertVersionAtLeast,
			Expected: fmt.Sprintf("version >= %s", want),
			Actual:   fmt.Sprintf("version %s", got),
			Output:   res.Output,
		}
	}
	return nil
}

// EvaluateAssertions evaluates all assertions against one invocation.
// Every assertion runs; failures are aggregated into a *multierror.Error.
func EvaluateAssertions(res *invoke.Result, assertions []Assertion, actx *AssertionContext) error {
	var result *multierror.Error

	for i, a := range assertions {
		var err error

		switch a.Type {
		case AssertOutputContains:
			err = assertOutputContains(res, a)
		case AssertOutputMatches:
			err = assertOutputMatches(res, a)
		case AssertOutputNotMatches:
			err = assertOutputNotMatches(res, a)
		case AssertStatusLine:
			err = assertStatusLine(res, a)
		case AssertExitCode:
			err = assertExitCode(res, a)
		case AssertExitCodeNonZero:
			err = assertExitCodeNonZero(res)
		case AssertFileExists, AssertFileSmaller:
			if actx == nil || actx.Fs == nil {
				err = fmt.Errorf("assertion[%d]: %s requires filesystem context", i, a.Type)
			} else if a.Type == AssertFileExists {
				err = assertFileExists(actx, a)
			} else {
				err = assertFileSmaller(actx, a)
			}
		case AssertVersionAtLeast:
			err = assertVersionAtLeast(res, a)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, a.Type)
		}

		if err != nil {
			result = multierror.Append(result, err)
		}
	}

	return result.ErrorOrNil()
}

func lastLine(s string) string {
	s = strings.TrimRight(s, " \t\n")
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
