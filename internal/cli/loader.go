package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/roach88/strata/internal/schema"
)

// Error codes for CLI output.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load or compile failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBinding     = "E006" // Unsupported binding in the schema
	ErrCodeDatabase    = "E007" // Database open, schema or transaction error
	ErrCodeConfig      = "E008" // Config file unreadable or invalid
	ErrCodeFixture     = "E009" // Fixture unreadable or invalid
	ErrCodeUnknownType = "E010" // Record type not registered
	ErrCodeNoRecord    = "E011" // Record not found
	ErrCodeIntegrity   = "E012" // Stored data violates the schema
	ErrCodeScenario    = "E013" // One or more scenarios failed
)

// LoadError represents an error that prevented a schema from loading at all.
type LoadError struct {
	Code    string
	Message string
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// SchemaProblem is one problem found in a schema that did load.
type SchemaProblem struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Type     string `json:"type,omitempty"`
	Property string `json:"property,omitempty"`
	Reason   string `json:"reason,omitempty"`
	Line     int    `json:"line,omitempty"`
}

// LoadResult contains the results of loading a schema directory.
type LoadResult struct {
	Registry  *schema.Registry
	FileCount int // Number of CUE files found
}

// LoadSchema loads the CUE schema package of dir.
//
// A *LoadError is returned when the directory cannot be used at all.
// Otherwise problems in the schema itself are returned as SchemaProblems
// with a nil result.
func LoadSchema(dir string) (*LoadResult, []SchemaProblem, error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("schema directory not found: %s", dir)}
	}
	if err != nil {
		return nil, nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing schema directory: %v", err)}
	}
	if !info.IsDir() {
		return nil, nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}
	}

	cueFiles, err := filepath.Glob(filepath.Join(dir, "*.cue"))
	if err != nil {
		return nil, nil, &LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}
	}
	if len(cueFiles) == 0 {
		return nil, nil, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}
	}

	reg, err := schema.LoadDir(dir)
	if err != nil {
		return nil, problemsOf(err), nil
	}
	if len(reg.Types()) == 0 {
		return nil, []SchemaProblem{{Code: ErrCodeGeneric, Message: "no record types found in schema"}}, nil
	}

	return &LoadResult{Registry: reg, FileCount: len(cueFiles)}, nil, nil
}

// problemsOf flattens a registry or compile error into problems.
func problemsOf(err error) []SchemaProblem {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		var problems []SchemaProblem
		for _, e := range joined.Unwrap() {
			problems = append(problems, problemsOf(e)...)
		}
		return problems
	}

	var ube *schema.UnsupportedBindingError
	if errors.As(err, &ube) {
		return []SchemaProblem{{
			Code:     ErrCodeBinding,
			Message:  ube.Message,
			Type:     ube.Type,
			Property: ube.Property,
			Reason:   string(ube.Reason),
		}}
	}

	var ce *schema.CompileError
	if errors.As(err, &ce) {
		p := SchemaProblem{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("%s: %s", ce.Field, ce.Message)}
		if ce.Pos.IsValid() {
			p.Line = ce.Pos.Line()
		}
		return []SchemaProblem{p}
	}

	return []SchemaProblem{{Code: ErrCodeLoadFailed, Message: err.Error()}}
}
