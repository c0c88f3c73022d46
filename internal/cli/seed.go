package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/strata/internal/fixture"
)

// SeedResult is the output of the seed command.
type SeedResult struct {
	Fixture string `json:"fixture"`
	Rows    int    `json:"rows"`
}

// NewSeedCommand creates the seed command.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DatabaseOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "seed <schema-dir> <fixture.yaml>",
		Short: "Create tables and load a YAML fixture",
		Long: `Create the tables of a schema (if missing) and insert the rows of a
YAML fixture in one transaction. The database is created if it does not exist.

Example:
  strata seed --db ./shop.db ./schema ./fixtures/shop.yaml`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(opts, args[0], args[1], cmd)
		},
	}

	opts.addFlags(cmd)
	return cmd
}

func runSeed(opts *DatabaseOptions, schemaDir, fixturePath string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	reg, err := loadRegistry(formatter, schemaDir)
	if err != nil {
		return err
	}

	f, err := fixture.Load(fixturePath)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeFixture, "failed to load fixture", err)
	}

	eng, closeFn, err := openEngine(opts, formatter, cmd, reg, false)
	if err != nil {
		return err
	}
	defer closeFn()

	ctx := commandContext(cmd)
	if err := eng.ApplySchema(ctx); err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeDatabase, "failed to create tables", err)
	}

	n, err := eng.Seed(ctx, f)
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeFixture, "failed to apply fixture "+f.Name, err)
	}

	if formatter.Format == "json" {
		return formatter.Success(SeedResult{Fixture: f.Name, Rows: n})
	}
	fmt.Fprintf(formatter.Writer, "✓ Seeded %d row(s) from fixture %s\n", n, f.Name)
	return nil
}
