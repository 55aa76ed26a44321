package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"
)

// Scenario is one independent conformance check: a sequence of tool
// invocations, each followed by assertions on what it produced.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the output
	// directory (tmp/<name>) by convention.
	Name string `yaml:"name" json:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description" json:"description"`

	// Steps run in order. A failing step ends the scenario.
	Steps []Step `yaml:"steps" json:"steps"`
}

// Step is a single invocation of the tool plus its assertions.
type Step struct {
	// Args are passed to the tool. ${FIXTURES} expands to the fixture dir.
	Args []string `yaml:"args" json:"args"`

	// Dir, when set, is created if missing and the tool writes its output
	// there (-o -d <dir>) instead of overwriting the input.
	Dir string `yaml:"dir,omitempty" json:"dir,omitempty"`

	// Check treats a non-zero exit as an execution failure. Leave it off
	// for steps that deliberately exercise an error path.
	Check bool `yaml:"check" json:"check"`

	// Assertions are all evaluated; every failure is reported.
	Assertions []Assertion `yaml:"assertions" json:"assertions"`
}

// Assertion checks one property of a step's outcome.
type Assertion struct {
	// Type selects the check, see the Assert* constants.
	Type string `yaml:"type" json:"type"`

	// Pattern is a substring (output_contains) or regular expression
	// (output_matches, output_not_matches).
	Pattern string `yaml:"pattern,omitempty" json:"pattern,omitempty"`

	// Severity and Verb select the status line (status_line).
	Severity Severity `yaml:"severity,omitempty" json:"severity,omitempty"`
	Verb     Verb     `yaml:"verb,omitempty" json:"verb,omitempty"`

	// Absent inverts status_line: the line must not appear.
	Absent bool `yaml:"absent,omitempty" json:"absent,omitempty"`

	// Code is the expected exit code (exit_code).
	Code *int `yaml:"code,omitempty" json:"code,omitempty"`

	// Path is the file checked by file_exists and file_smaller. Than is
	// the reference file for file_smaller. Both expand ${FIXTURES} and
	// are relative to the work dir.
	Path string `yaml:"path,omitempty" json:"path,omitempty"`
	Than string `yaml:"than,omitempty" json:"than,omitempty"`

	// Version is the minimum accepted tool version (version_at_least).
	Version string `yaml:"version,omitempty" json:"version,omitempty"`
}

// Assertion type constants.
const (
	AssertOutputContains   = "output_contains"
	AssertOutputMatches    = "output_matches"
	AssertOutputNotMatches = "output_not_matches"
	AssertStatusLine       = "status_line"
	AssertExitCode         = "exit_code"
	AssertExitCodeNonZero  = "exit_code_nonzero"
	AssertFileExists       = "file_exists"
	AssertFileSmaller      = "file_smaller"
	AssertVersionAtLeast   = "version_at_least"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or does not satisfy the schema.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates a scenario document.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict decoding catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := ValidateSchema(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// LoadScenarios loads every .yaml/.yml file under dir, sorted by path.
// Loading stops at the first invalid file.
func LoadScenarios(dir string) ([]*Scenario, error) {
	files, err := FindScenarioFiles(dir)
	if err != nil {
		return nil, err
	}

	scenarios := make([]*Scenario, 0, len(files))
	seen := make(map[string]string)
	for _, file := range files {
		s, err := LoadScenario(file)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", file, err)
		}
		if prev, dup := seen[s.Name]; dup {
			return nil, fmt.Errorf("%s: duplicate scenario name %q (also in %s)", file, s.Name, prev)
		}
		seen[s.Name] = file
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

// FindScenarioFiles walks dir and returns all YAML file paths, sorted.
func FindScenarioFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if ext := filepath.Ext(path); ext == ".yaml" || ext == ".yml" {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan scenarios in %s: %w", dir, err)
	}
	sort.Strings(files)
	return files, nil
}

// Filter returns the scenarios whose name matches the glob pattern.
// An empty pattern matches everything.
func Filter(scenarios []*Scenario, pattern string) ([]*Scenario, error) {
	if pattern == "" {
		return scenarios, nil
	}
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("invalid filter pattern: %w", err)
	}

	var out []*Scenario
	for _, s := range scenarios {
		if ok, _ := filepath.Match(pattern, s.Name); ok {
			out = append(out, s)
		}
	}
	return out, nil
}

// validateScenario checks what the schema cannot: regular expressions
// compile, versions parse and status lines are part of the contract.
func validateScenario(s *Scenario) error {
	for i, step := range s.Steps {
		for j, a := range step.Assertions {
			if err := validateAssertion(a); err != nil {
				return fmt.Errorf("steps[%d].assertions[%d]: %w", i, j, err)
			}
		}
	}
	return nil
}

func validateAssertion(a Assertion) error {
	switch a.Type {
	case AssertOutputMatches, AssertOutputNotMatches:
		if _, err := regexp.Compile(a.Pattern); err != nil {
			return fmt.Errorf("invalid pattern: %w", err)
		}
	case AssertStatusLine:
		return StatusLine{Severity: a.Severity, Verb: a.Verb}.Validate()
	case AssertVersionAtLeast:
		if _, err := semver.NewVersion(a.Version); err != nil {
			return fmt.Errorf("invalid version %q: %w", a.Version, err)
		}
	}
	return nil
}

// expand substitutes ${FIXTURES} in s. Expanded paths are cleaned so a
// fixture dir of "." yields plain file names.
func expand(s, fixtureDir string) string {
	const token = "${FIXTURES}"
	if !strings.Contains(s, token) {
		return s
	}
	if fixtureDir == "" {
		fixtureDir = "."
	}
	return filepath.Clean(strings.ReplaceAll(s, token, fixtureDir))
}
