package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Scenario defines a materialization scenario.
type Scenario struct {
	// Name uniquely identifies this scenario. Also names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Schema is the CUE schema package directory.
	Schema string `yaml:"schema"`

	// Fixtures lists fixture files applied in order before the steps.
	Fixtures []string `yaml:"fixtures,omitempty"`

	// Steps are the lookups, each run in its own request.
	Steps []Step `yaml:"steps"`

	// Assertions validate request statistics and the final database.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step loads one record by identity, or all records of a type.
type Step struct {
	// Get is the record type name.
	Get string `yaml:"get"`

	// ID selects one record. Empty loads all records of the type.
	ID string `yaml:"id,omitempty"`

	// Limit bounds the records loaded without ID (0 = all).
	Limit int `yaml:"limit,omitempty"`

	// Expect validates the outcome. If nil, the step must succeed.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies the expected outcome of a step.
type ExpectClause struct {
	// Error is the expected error kind: not_found, unknown_type or integrity.
	Error string `yaml:"error,omitempty"`

	// Count is the expected number of records.
	Count *int `yaml:"count,omitempty"`

	// Record is matched against the first record (subset semantics).
	Record map[string]any `yaml:"record,omitempty"`
}

// Assertion validates request statistics or final state.
type Assertion struct {
	// Type is "materialized" or "row_count".
	Type string `yaml:"type"`

	// Step is the step index (used by materialized).
	Step int `yaml:"step,omitempty"`

	// Table is the table name (used by row_count).
	Table string `yaml:"table,omitempty"`

	// Count is the expected number.
	Count int `yaml:"count"`
}

// Assertion type constants.
const (
	AssertMaterialized = "materialized"
	AssertRowCount     = "row_count"
)

// LoadScenario reads and parses a scenario YAML file.
// Schema and fixture paths are resolved relative to the scenario file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data, filepath.Dir(path))
}

// ParseScenario parses scenario YAML, resolving relative paths against
// basePath (ignored when empty).
func ParseScenario(data []byte, basePath string) (*Scenario, error) {
	// Strict field validation catches typos like "step:" vs "steps:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	// Resolve paths relative to base path BEFORE validation
	if basePath != "" {
		scenario.Schema = resolve(basePath, scenario.Schema)
		for i, f := range scenario.Fixtures {
			scenario.Fixtures[i] = resolve(basePath, f)
		}
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func resolve(base, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Schema == "" {
		return fmt.Errorf("schema is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	// Validate paths exist
	if _, err := os.Stat(s.Schema); os.IsNotExist(err) {
		return fmt.Errorf("schema directory not found: %s", s.Schema)
	}
	for _, f := range s.Fixtures {
		if _, err := os.Stat(f); os.IsNotExist(err) {
			return fmt.Errorf("fixture file not found: %s", f)
		}
	}

	for i, step := range s.Steps {
		if step.Get == "" {
			return fmt.Errorf("steps[%d]: get is required", i)
		}
		if step.ID != "" {
			if _, err := uuid.Parse(step.ID); err != nil {
				return fmt.Errorf("steps[%d]: invalid id %q: %w", i, step.ID, err)
			}
		}
		if step.Limit < 0 {
			return fmt.Errorf("steps[%d]: limit must be non-negative", i)
		}
		if step.Expect != nil {
			switch step.Expect.Error {
			case "", ErrorNotFound, ErrorUnknownType, ErrorIntegrity:
			default:
				return fmt.Errorf("steps[%d].expect: unknown error kind %q", i, step.Expect.Error)
			}
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, a, len(s.Steps)); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a Assertion, steps int) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}
	if a.Count < 0 {
		return fmt.Errorf("assertions[%d]: count must be non-negative", index)
	}

	switch a.Type {
	case AssertMaterialized:
		if a.Step < 0 || a.Step >= steps {
			return fmt.Errorf("assertions[%d]: step %d out of range", index, a.Step)
		}
	case AssertRowCount:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for row_count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
