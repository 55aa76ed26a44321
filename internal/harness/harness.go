package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/jpegconform/internal/invoke"
)

// Harness is the test execution engine. It holds no per-scenario state:
// every scenario gets its own Result and its own invocations.
type Harness struct {
	runner     *invoke.Runner
	fixtureDir string
	logger     *slog.Logger
}

// New creates a harness that invokes the tool through runner. Fixture
// references (${FIXTURES}) expand to fixtureDir.
func New(runner *invoke.Runner, fixtureDir string, logger *slog.Logger) *Harness {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if fixtureDir == "" {
		fixtureDir = "."
	}
	return &Harness{
		runner:     runner,
		fixtureDir: fixtureDir,
		logger:     logger,
	}
}

// Run executes a scenario and returns its result.
//
// Execution flow, per step:
//  1. Expand fixture references and invoke the tool (NOT RUN -> INVOKED)
//  2. Evaluate every assertion of the step (INVOKED -> ASSERTED)
//  3. Stop at the first step that failed to execute or assert
//
// An execution failure ends the scenario immediately without evaluating
// assertions. Run never returns an error; everything that went wrong is
// recorded in the Result.
func (h *Harness) Run(ctx context.Context, scenario *Scenario) *Result {
	start := time.Now()
	result := NewResult(scenario.Name)
	h.logger.Debug("scenario started",
		"scenario", scenario.Name,
		"program", h.runner.Program(),
		"steps", len(scenario.Steps),
	)
	defer func() {
		result.finish()
		result.Duration = time.Since(start)
		h.logger.Info("scenario finished",
			"scenario", scenario.Name,
			"pass", result.Pass,
			"duration", result.Duration,
		)
	}()

	actx := &AssertionContext{
		Fs:         h.runner.Fs(),
		WorkDir:    h.runner.WorkDir(),
		FixtureDir: h.fixtureDir,
	}

	for i, step := range scenario.Steps {
		inv := invoke.Invocation{
			Args:  h.expandArgs(step.Args),
			Dir:   step.Dir,
			Check: step.Check,
		}

		res, err := h.runner.Run(ctx, inv)
		if res != nil {
			result.State = StateInvoked
			result.Steps = append(result.Steps, StepResult{
				Args:     append([]string{}, res.Command[1:]...),
				ExitCode: res.ExitCode,
				Output:   res.Output,
			})
		}
		if err != nil {
			result.ExecutionFailed = invoke.IsExecutionError(err)
			result.AddError(fmt.Sprintf("step %d: %v", i, err))
			return result
		}

		err = EvaluateAssertions(res, step.Assertions, actx)
		result.State = StateAsserted
		if err != nil {
			msgs := errorMessages(err)
			result.Steps[len(result.Steps)-1].Errors = msgs
			for _, msg := range msgs {
				result.AddError(fmt.Sprintf("step %d: %s", i, msg))
			}
			return result
		}

		h.logger.Info("step completed",
			"scenario", scenario.Name,
			"step", i,
			"cmd", res.CommandLine(),
			"exit_code", res.ExitCode,
		)
	}

	return result
}

// RunAll runs scenarios with at most parallel of them in flight and
// returns their results in input order. parallel <= 1 runs them one at a
// time, in order.
func (h *Harness) RunAll(ctx context.Context, scenarios []*Scenario, parallel int) []*Result {
	results := make([]*Result, len(scenarios))

	if parallel <= 1 {
		for i, s := range scenarios {
			results[i] = h.Run(ctx, s)
		}
		return results
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for i, s := range scenarios {
		g.Go(func() error {
			results[i] = h.Run(gctx, s)
			return nil
		})
	}
	_ = g.Wait() // scenario failures live in the results, never in the group

	return results
}

func (h *Harness) expandArgs(args []string) []string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = expand(a, h.fixtureDir)
	}
	return out
}

// errorMessages flattens an aggregated assertion error.
func errorMessages(err error) []string {
	var merr *multierror.Error
	if errors.As(err, &merr) {
		msgs := make([]string, 0, len(merr.Errors))
		for _, e := range merr.Errors {
			msgs = append(msgs, e.Error())
		}
		return msgs
	}
	return []string{err.Error()}
}

// Summary counts passed and failed results.
func Summary(results []*Result) (passed, failed int) {
	for _, r := range results {
		if r.Pass {
			passed++
		} else {
			failed++
		}
	}
	return passed, failed
}
