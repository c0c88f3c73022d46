package harness

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/roach88/strata/internal/engine"
	"github.com/roach88/strata/internal/fixture"
	"github.com/roach88/strata/internal/hydrate"
	"github.com/roach88/strata/internal/ir"
	"github.com/roach88/strata/internal/schema"
	"github.com/roach88/strata/internal/store"
	"github.com/roach88/strata/internal/testutil"
)

// Harness is the scenario execution engine.
type Harness struct {
	store  *store.Store
	engine *engine.Engine
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
//
// Execution flow:
// 1. Load the CUE schema and create its tables
// 2. Apply fixtures in order
// 3. Execute steps, one request each, checking expectations
// 4. Evaluate assertions
//
// The error is non-nil only when the scenario could not be executed;
// failed expectations are reported in Result.Errors.
func Run(scenario *Scenario) (*Result, error) {
	reg, err := schema.LoadDir(scenario.Schema)
	if err != nil {
		return nil, fmt.Errorf("failed to load schema: %w", err)
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h := &Harness{
		store: st,
		// One request id per scenario keeps snapshots reproducible
		engine: engine.New(st, reg, engine.WithRequestIDGenerator(testutil.NewFixedRequestIDGenerator())),
	}

	ctx := context.Background()
	if err := h.engine.ApplySchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	for _, path := range scenario.Fixtures {
		f, err := fixture.Load(path)
		if err != nil {
			return nil, err
		}
		if _, err := h.engine.Seed(ctx, f); err != nil {
			return nil, fmt.Errorf("failed to apply fixture %s: %w", path, err)
		}
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		sr, err := h.executeStep(ctx, i, step)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		result.Steps = append(result.Steps, sr)
		for _, msg := range checkExpect(sr, step.Expect) {
			result.AddError(fmt.Sprintf("step %d (%s): %s", i, step.Get, msg))
		}
	}

	for _, msg := range EvaluateAssertions(ctx, st, result, scenario.Assertions) {
		result.AddError(msg)
	}

	return result, nil
}

// executeStep runs one step in its own request. Expected error kinds are
// recorded in the step result; other errors abort the scenario.
func (h *Harness) executeStep(ctx context.Context, index int, step Step) (StepResult, error) {
	sr := StepResult{Step: index, Get: step.Get, ID: step.ID, Records: []map[string]any{}}

	err := h.engine.Request(ctx, func(ctx context.Context, s *engine.Session) error {
		// Stats are read even when the lookup fails
		defer func() { sr.Stats = s.Stats() }()

		if step.ID != "" {
			rec, err := s.Get(ctx, step.Get, uuid.MustParse(step.ID))
			if err != nil {
				return err
			}
			sr.Records = append(sr.Records, ir.ToMap(rec))
			return nil
		}

		records, err := s.All(ctx, step.Get, step.Limit)
		if err != nil {
			return err
		}
		for _, rec := range records {
			sr.Records = append(sr.Records, ir.ToMap(rec))
		}
		return nil
	})
	if err != nil {
		kind, ok := errorKind(err)
		if !ok {
			return sr, err
		}
		sr.Error = kind
	}
	return sr, nil
}

// errorKind classifies the errors a scenario may expect.
func errorKind(err error) (string, bool) {
	var unknown *engine.UnknownTypeError
	switch {
	case engine.IsNotFound(err):
		return ErrorNotFound, true
	case errors.As(err, &unknown):
		return ErrorUnknownType, true
	case hydrate.IsIntegrityError(err):
		return ErrorIntegrity, true
	default:
		return "", false
	}
}

// checkExpect compares a step result with its expect clause.
// A nil clause expects success.
func checkExpect(sr StepResult, expect *ExpectClause) []string {
	if expect == nil {
		if sr.Error != "" {
			return []string{fmt.Sprintf("unexpected error %s", sr.Error)}
		}
		return nil
	}

	if sr.Error != expect.Error {
		want, got := expect.Error, sr.Error
		if want == "" {
			want = "success"
		}
		if got == "" {
			got = "success"
		}
		return []string{fmt.Sprintf("expected %s, got %s", want, got)}
	}

	var errs []string
	if expect.Count != nil && len(sr.Records) != *expect.Count {
		errs = append(errs, fmt.Sprintf("expected %d record(s), got %d", *expect.Count, len(sr.Records)))
	}
	if expect.Record != nil {
		if len(sr.Records) == 0 {
			errs = append(errs, "expected a record, got none")
		} else if path, ok := matchSubset(expect.Record, sr.Records[0], ""); !ok {
			errs = append(errs, fmt.Sprintf("record mismatch at %s", path))
		}
	}
	return errs
}
