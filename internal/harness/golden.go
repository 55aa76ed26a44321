package harness

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// SuiteSnapshot is the stable projection of a run used for golden
// comparison. It leaves out anything that varies between machines: the
// program path, durations and all but the final line of output.
type SuiteSnapshot struct {
	ContractVersion int                `json:"contract_version"`
	Scenarios       []ScenarioSnapshot `json:"scenarios"`
}

// ScenarioSnapshot is one scenario inside a SuiteSnapshot.
type ScenarioSnapshot struct {
	Name  string         `json:"name"`
	Pass  bool           `json:"pass"`
	Steps []StepSnapshot `json:"steps"`
}

// StepSnapshot is one step inside a ScenarioSnapshot.
type StepSnapshot struct {
	Args     []string `json:"args"`
	ExitCode int      `json:"exit_code"`
	LastLine string   `json:"last_line"`
}

// Snapshot projects results into a SuiteSnapshot.
func Snapshot(results []*Result) SuiteSnapshot {
	snap := SuiteSnapshot{
		ContractVersion: StatusLineContractVersion,
		Scenarios:       make([]ScenarioSnapshot, 0, len(results)),
	}
	for _, r := range results {
		sc := ScenarioSnapshot{Name: r.Scenario, Pass: r.Pass, Steps: make([]StepSnapshot, 0, len(r.Steps))}
		for _, st := range r.Steps {
			sc.Steps = append(sc.Steps, StepSnapshot{
				Args:     append([]string{}, st.Args...),
				ExitCode: st.ExitCode,
				LastLine: strings.TrimSpace(lastLine(st.Output)),
			})
		}
		snap.Scenarios = append(snap.Scenarios, sc)
	}
	return snap
}

// MarshalSnapshot renders a snapshot as indented JSON without HTML
// escaping, so status lines ("772 --> 516 bytes") stay readable.
func MarshalSnapshot(snap SuiteSnapshot) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// AssertGolden compares the snapshot of results against
// testdata/golden/{name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func AssertGolden(t *testing.T, name string, results []*Result) error {
	t.Helper()

	data, err := MarshalSnapshot(Snapshot(results))
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)

	return nil
}
