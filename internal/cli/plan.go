package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/roach88/strata/internal/ir"
	"github.com/roach88/strata/internal/plan"
	"github.com/roach88/strata/internal/queryir"
	"github.com/roach88/strata/internal/querysql"
	"github.com/roach88/strata/internal/schema"
)

// PlannedQuery is one SQL statement issued when a record is loaded.
type PlannedQuery struct {
	Property string `json:"property,omitempty"` // Empty for the base fetch
	Kind     string `json:"kind"`               // "fetch" | "collection" | "aggregate"
	Comment  string `json:"comment"`
	SQL      string `json:"sql"`
	Params   int    `json:"params"`
}

// PlanResult is the output of the plan command.
type PlanResult struct {
	Type    string         `json:"type"`
	Table   string         `json:"table"`
	Joins   []string       `json:"joins"`
	Queries []PlannedQuery `json:"queries"`
}

// NewPlanCommand creates the plan command.
func NewPlanCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan <schema-dir> <type>",
		Short: "Print the SQL issued to load a record",
		Long: `Print the SQL statements issued to load one record of a type by identity.

The first statement is the join plan: the base table and one LEFT JOIN per
single reference. Collections and aggregates follow, one statement each.

Example:
  strata plan ./schema Order
  strata plan ./schema Order --format json`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(rootOpts, args[0], args[1], cmd)
		},
	}

	return cmd
}

func runPlan(opts *RootOptions, schemaDir, typeName string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	reg, err := loadRegistry(formatter, schemaDir)
	if err != nil {
		return err
	}
	rt, ok := reg.Type(typeName)
	if !ok {
		return formatter.Fail(ExitFailure, ErrCodeUnknownType, fmt.Sprintf("unknown record type %q", typeName), nil)
	}

	result, err := explain(reg, rt)
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeBinding, "failed to plan "+typeName, err)
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	var b strings.Builder
	for i, q := range result.Queries {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "-- %s\n%s;\n", q.Comment, q.SQL)
	}
	fmt.Fprint(formatter.Writer, b.String())
	return nil
}

// explain compiles the statements a Load of rt issues, with placeholder
// identities.
func explain(reg *schema.Registry, rt *schema.RecordType) (*PlanResult, error) {
	cache := plan.NewCache(reg)
	compiler := querysql.NewSQLCompiler()
	owner := ir.UUID(uuid.Nil)

	p, err := cache.Get(rt)
	if err != nil {
		return nil, err
	}

	result := &PlanResult{Type: rt.Name, Table: rt.Table.Name, Joins: p.Aliases()}
	add := func(prop, kind, comment string, q queryir.Query) error {
		sql, params, err := compiler.Compile(q)
		if err != nil {
			return err
		}
		result.Queries = append(result.Queries, PlannedQuery{Property: prop, Kind: kind, Comment: comment, SQL: sql, Params: len(params)})
		return nil
	}

	if err := add("", "fetch", fmt.Sprintf("%s: %s, %d join(s)", rt.Name, rt.Table.Name, len(p.Joins)), p.Select(p.IdentityEquals(owner))); err != nil {
		return nil, err
	}

	for _, b := range rt.Bindings {
		switch bind := b.(type) {
		case schema.CollectionBinding:
			target, ok := reg.Type(bind.Target)
			if !ok {
				return nil, fmt.Errorf("collection target %q is not registered", bind.Target)
			}
			tp, err := cache.Get(target)
			if err != nil {
				return nil, err
			}
			fk, ok := tp.Column(bind.ForeignKey)
			if !ok {
				return nil, fmt.Errorf("foreign key %q not found on table %s", bind.ForeignKey, target.Table.Name)
			}
			comment := fmt.Sprintf("%s.%s: collection of %s", rt.Name, bind.Prop, target.Name)
			if err := add(bind.Prop, "collection", comment, tp.Select(queryir.Equals{Column: fk, Value: owner})); err != nil {
				return nil, err
			}

		case schema.AggregateBinding:
			table, ok := reg.Table(bind.Table)
			if !ok {
				return nil, fmt.Errorf("aggregate table %q is not registered", bind.Table)
			}
			col, _ := table.Column(bind.Column)
			fk, _ := table.Column(bind.ForeignKey)
			q := queryir.Aggregate{
				Func:   string(bind.Func),
				Table:  table.Name,
				Column: queryir.Col(table.Name, col.Name, col.Kind),
				Filter: queryir.Equals{Column: queryir.Col(table.Name, fk.Name, fk.Kind), Value: owner},
			}
			comment := fmt.Sprintf("%s.%s: %s over %s.%s", rt.Name, bind.Prop, bind.Func, table.Name, col.Name)
			if err := add(bind.Prop, "aggregate", comment, q); err != nil {
				return nil, err
			}
		}
	}

	return result, nil
}

// loadRegistry loads a schema directory, printing load errors and schema
// problems through formatter.
func loadRegistry(formatter *OutputFormatter, schemaDir string) (*schema.Registry, error) {
	loadResult, problems, err := LoadSchema(schemaDir)
	if err != nil {
		var loadErr *LoadError
		if errors.As(err, &loadErr) {
			return nil, formatter.Fail(ExitCommandError, loadErr.Code, loadErr.Message, nil)
		}
		return nil, formatter.Fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil)
	}
	if len(problems) > 0 {
		return nil, outputValidationErrors(formatter, problems)
	}
	formatter.VerboseLog("Loaded %d type(s) from %d CUE file(s) in %s", len(loadResult.Registry.Types()), loadResult.FileCount, schemaDir)
	return loadResult.Registry, nil
}
