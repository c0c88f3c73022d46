package cli

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/strata/internal/engine"
	"github.com/roach88/strata/internal/ir"
)

// GetOptions holds flags for the get command.
type GetOptions struct {
	DatabaseOptions
	Limit int
}

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GetOptions{DatabaseOptions: DatabaseOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "get <schema-dir> <type> [id]",
		Short: "Materialize records from the database",
		Long: `Materialize one record by identity, or all records of a type ordered by
identity, and print the record tree. References are printed inline; a
reference back to a record already being printed shows as {$ref: Type/id}.

Example:
  strata get --db ./shop.db ./schema Order 0191c1a0-0000-7000-8000-000000000001
  strata get --db ./shop.db ./schema Customer --limit 10 --format json`,
		Args:          cobra.RangeArgs(2, 3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(opts, args, cmd)
		},
	}

	opts.addFlags(cmd)
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of records without id (0 = all)")
	return cmd
}

func runGet(opts *GetOptions, args []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	schemaDir, typeName := args[0], args[1]

	var id uuid.UUID
	single := len(args) == 3
	if single {
		var err error
		if id, err = uuid.Parse(args[2]); err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeGeneric, "invalid id "+args[2], err)
		}
	}
	if opts.Limit < 0 {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, fmt.Sprintf("invalid limit %d", opts.Limit), nil)
	}

	reg, err := loadRegistry(formatter, schemaDir)
	if err != nil {
		return err
	}

	eng, closeFn, err := openEngine(&opts.DatabaseOptions, formatter, cmd, reg, true)
	if err != nil {
		return err
	}
	defer closeFn()

	var out any
	err = eng.Request(commandContext(cmd), func(ctx context.Context, s *engine.Session) error {
		formatter.RequestID = s.RequestID().String()
		if single {
			rec, err := s.Get(ctx, typeName, id)
			if err != nil {
				return err
			}
			out = ir.ToMap(rec)
			return nil
		}

		records, err := s.All(ctx, typeName, opts.Limit)
		if err != nil {
			return err
		}
		items := make([]map[string]any, len(records))
		for i, rec := range records {
			items[i] = ir.ToMap(rec)
		}
		out = items
		return nil
	})
	if err != nil {
		return failRequest(formatter, "failed to load "+typeName, err)
	}

	if formatter.Format == "json" {
		return formatter.Success(out)
	}
	data, err := yaml.Marshal(out)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "failed to render records", err)
	}
	fmt.Fprint(formatter.Writer, string(data))
	return nil
}
