package harness

import "path/filepath"

// Fixture file names used by the built-in suite.
const (
	FixtureUnoptimized = "jpegoptim_test1.jpg"
	FixtureOptimized   = "jpegoptim_test2.jpg"
	FixtureBroken      = "jpegoptim_test2-broken.jpg"
)

// OutputRoot is the directory that holds one subdirectory per scenario.
const OutputRoot = "tmp"

func fixture(name string) string {
	return "${FIXTURES}/" + name
}

func outputDir(scenario string) string {
	return filepath.Join(OutputRoot, scenario)
}

func exitCode(c int) *int {
	return &c
}

// BuiltinSuite returns the standard jpegoptim conformance scenarios.
// When minVersion is non-empty the version scenario also requires the
// reported version to be at least minVersion.
func BuiltinSuite(minVersion string) []*Scenario {
	version := &Scenario{
		Name:        "version",
		Description: "version banner carries the license notice and a semantic version",
		Steps: []Step{{
			Args:  []string{"--version"},
			Check: true,
			Assertions: []Assertion{
				{Type: AssertOutputContains, Pattern: LicenseNotice},
				{Type: AssertOutputMatches, Pattern: VersionPattern.String()},
			},
		}},
	}
	if minVersion != "" {
		version.Steps[0].Assertions = append(version.Steps[0].Assertions,
			Assertion{Type: AssertVersionAtLeast, Version: minVersion})
	}

	return []*Scenario{
		version,
		{
			Name:        "noarguments",
			Description: "running without file arguments is a usage error",
			Steps: []Step{{
				Args:  []string{},
				Check: false,
				Assertions: []Assertion{
					{Type: AssertExitCode, Code: exitCode(1)},
					{Type: AssertOutputMatches, Pattern: MissingArgsPattern},
				},
			}},
		},
		optimizeScenario("default", "lossless optimization shrinks the image and is idempotent", nil),
		optimizeScenario("lossy", "lossy optimization shrinks the image and is idempotent", []string{"-m", "10"}),
		{
			Name:        "optimized",
			Description: "an already optimized image is left alone",
			Steps: []Step{{
				Args:  []string{fixture(FixtureOptimized)},
				Dir:   outputDir("optimized"),
				Check: true,
				Assertions: []Assertion{
					statusLine(OKSkipped),
				},
			}},
		},
		{
			Name:        "broken",
			Description: "a corrupt image is reported as a warning, never as a success",
			Steps: []Step{{
				Args:  []string{fixture(FixtureBroken)},
				Dir:   outputDir("broken"),
				Check: false,
				Assertions: []Assertion{
					statusLine(WarningSkipped),
					{Type: AssertExitCodeNonZero},
					{Type: AssertStatusLine, Severity: SeverityOK, Verb: VerbOptimized, Absent: true},
				},
			}},
		},
	}
}

// optimizeScenario builds the optimize-then-recheck scenario shared by the
// default and lossy cases. The second step runs in dry-run mode (-n) on
// the produced file, which must already be a fixed point.
func optimizeScenario(name, description string, extraArgs []string) *Scenario {
	dir := outputDir(name)
	produced := filepath.Join(dir, FixtureUnoptimized)

	args := append(append([]string{}, extraArgs...), fixture(FixtureUnoptimized))

	return &Scenario{
		Name:        name,
		Description: description,
		Steps: []Step{
			{
				Args:  args,
				Dir:   dir,
				Check: true,
				Assertions: []Assertion{
					{Type: AssertFileExists, Path: produced},
					statusLine(OKOptimized),
					{Type: AssertFileSmaller, Path: produced, Than: fixture(FixtureUnoptimized)},
				},
			},
			{
				Args:  []string{"-n", produced},
				Check: false,
				Assertions: []Assertion{
					statusLine(OKSkipped),
				},
			},
		},
	}
}

func statusLine(l StatusLine) Assertion {
	return Assertion{Type: AssertStatusLine, Severity: l.Severity, Verb: l.Verb}
}
