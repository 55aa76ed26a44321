package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/jpegconform/internal/harness"
)

// timeLayout is used for every stored timestamp. Times are always UTC.
const timeLayout = time.RFC3339Nano

// marshalJSON converts v to JSON TEXT for storage.
// HTML escaping is disabled so tool output ("772 --> 516 bytes") is stored
// as the tool printed it.
func marshalJSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	// Encoder adds a trailing newline, remove it
	return strings.TrimSpace(buf.String()), nil
}

func marshalSteps(steps []harness.StepResult) (string, error) {
	if steps == nil {
		steps = []harness.StepResult{}
	}
	data, err := marshalJSON(steps)
	if err != nil {
		return "", fmt.Errorf("marshal steps: %w", err)
	}
	return data, nil
}

func marshalErrors(errs []string) (string, error) {
	if errs == nil {
		errs = []string{}
	}
	data, err := marshalJSON(errs)
	if err != nil {
		return "", fmt.Errorf("marshal errors: %w", err)
	}
	return data, nil
}

func unmarshalSteps(data string) ([]harness.StepResult, error) {
	steps := []harness.StepResult{}
	if data == "" {
		return steps, nil
	}
	if err := json.Unmarshal([]byte(data), &steps); err != nil {
		return nil, fmt.Errorf("unmarshal steps: %w", err)
	}
	return steps, nil
}

func unmarshalErrors(data string) ([]string, error) {
	errs := []string{}
	if data == "" {
		return errs, nil
	}
	if err := json.Unmarshal([]byte(data), &errs); err != nil {
		return nil, fmt.Errorf("unmarshal errors: %w", err)
	}
	return errs, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
