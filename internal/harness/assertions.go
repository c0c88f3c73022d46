package harness

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/roach88/strata/internal/store"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s", e.Actual)
	return buf.String()
}

// EvaluateAssertions checks all assertions and returns failure messages.
func EvaluateAssertions(ctx context.Context, st *store.Store, result *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertMaterialized:
			err = assertMaterialized(result, a)
		case AssertRowCount:
			err = assertRowCount(ctx, st, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

// assertMaterialized checks how many records a step's request constructed.
func assertMaterialized(result *Result, a Assertion) error {
	if a.Step < 0 || a.Step >= len(result.Steps) {
		return fmt.Errorf("step %d out of range", a.Step)
	}
	got := result.Steps[a.Step].Stats.Misses
	if got != a.Count {
		return &AssertionError{
			Type:     AssertMaterialized,
			Expected: fmt.Sprintf("%d record(s) materialized by step %d", a.Count, a.Step),
			Actual:   fmt.Sprintf("%d record(s)", got),
		}
	}
	return nil
}

// assertRowCount checks the number of rows of a table.
func assertRowCount(ctx context.Context, st *store.Store, a Assertion) error {
	var got int
	err := st.WithTx(ctx, func(tx *store.Tx) error {
		var err error
		got, err = tx.Count(ctx, a.Table)
		return err
	})
	if err != nil {
		return &AssertionError{
			Type:     AssertRowCount,
			Expected: fmt.Sprintf("count rows of %s", a.Table),
			Actual:   fmt.Sprintf("query error: %v", err),
		}
	}
	if got != a.Count {
		return &AssertionError{
			Type:     AssertRowCount,
			Expected: fmt.Sprintf("%d row(s) in %s", a.Count, a.Table),
			Actual:   fmt.Sprintf("%d row(s)", got),
		}
	}
	return nil
}

// matchSubset reports whether every key of expected matches actual,
// recursively. On mismatch it returns the path of the first difference,
// visiting keys in sorted order.
func matchSubset(expected, actual map[string]any, path string) (string, bool) {
	keys := make([]string, 0, len(expected))
	for k := range expected {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		p := k
		if path != "" {
			p = path + "." + k
		}
		got, ok := actual[k]
		if !ok {
			return p, false
		}
		if diff, ok := matchValue(expected[k], got, p); !ok {
			return diff, false
		}
	}
	return "", true
}

// matchValue compares one expected YAML value with a rendered value.
// Maps match by subset, lists element-wise with equal length, numbers by
// value regardless of integer or float representation.
func matchValue(expected, actual any, path string) (string, bool) {
	switch want := expected.(type) {
	case nil:
		return path, actual == nil
	case map[string]any:
		got, ok := actual.(map[string]any)
		if !ok {
			return path, false
		}
		return matchSubset(want, got, path)
	case []any:
		got, ok := actual.([]any)
		if !ok || len(got) != len(want) {
			return path, false
		}
		for i := range want {
			if diff, ok := matchValue(want[i], got[i], fmt.Sprintf("%s[%d]", path, i)); !ok {
				return diff, false
			}
		}
		return "", true
	}

	if w, ok := toFloat(expected); ok {
		g, ok := toFloat(actual)
		return path, ok && w == g
	}
	return path, reflect.DeepEqual(expected, actual)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
