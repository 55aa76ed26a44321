package harness

import (
	"fmt"
	"regexp"
)

// StatusLineContractVersion identifies the status-line grammar below.
// Bump it whenever the grammar changes so reports make the break explicit.
const StatusLineContractVersion = 1

// Severity is the bracketed tag of a status line.
type Severity string

const (
	SeverityOK      Severity = "OK"
	SeverityWarning Severity = "WARNING"
)

// Verb is the terminal word of a status line, without the period.
type Verb string

const (
	VerbOptimized Verb = "optimized"
	VerbSkipped   Verb = "skipped"
)

// Fixed fragments of the tool's output relied on by the built-in suite.
const (
	LicenseNotice      = "GNU General Public License"
	MissingArgsPattern = `file argument\(?s\)? missing`
)

// VersionPattern matches the version banner and captures the semver part.
var VersionPattern = regexp.MustCompile(`jpegoptim v(\d+\.\d+\.\d+)`)

// StatusLine is one entry of the status-line contract: the tool reports
// each file as
//
//	<whitespace>[<SEVERITY>]<whitespace><anything><whitespace><verb>.
//
// and the matching line must end the output (trailing whitespace allowed).
type StatusLine struct {
	Severity Severity
	Verb     Verb
}

// Status line shorthands used by the built-in suite.
var (
	OKOptimized    = StatusLine{Severity: SeverityOK, Verb: VerbOptimized}
	OKSkipped      = StatusLine{Severity: SeverityOK, Verb: VerbSkipped}
	WarningSkipped = StatusLine{Severity: SeverityWarning, Verb: VerbSkipped}
)

// Validate rejects severities and verbs outside the contract.
func (s StatusLine) Validate() error {
	switch s.Severity {
	case SeverityOK, SeverityWarning:
	default:
		return fmt.Errorf("unknown status severity %q", s.Severity)
	}
	switch s.Verb {
	case VerbOptimized, VerbSkipped:
	default:
		return fmt.Errorf("unknown status verb %q", s.Verb)
	}
	return nil
}

// Pattern returns the regular expression for this status line.
func (s StatusLine) Pattern() *regexp.Regexp {
	return regexp.MustCompile(fmt.Sprintf(`\s\[%s\]\s.*\s%s\.\s*$`,
		regexp.QuoteMeta(string(s.Severity)), regexp.QuoteMeta(string(s.Verb))))
}

// Match reports whether output ends with this status line.
func (s StatusLine) Match(output string) bool {
	return s.Pattern().MatchString(output)
}

// String renders the line the way reports show it.
func (s StatusLine) String() string {
	return fmt.Sprintf("[%s] ... %s.", s.Severity, s.Verb)
}
