package cli

import (
	"context"
	"errors"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roach88/strata/internal/engine"
	"github.com/roach88/strata/internal/hydrate"
	"github.com/roach88/strata/internal/schema"
	"github.com/roach88/strata/internal/store"
)

// DatabaseOptions holds the flags of commands that open a database.
type DatabaseOptions struct {
	*RootOptions
	Database string // Overrides the database of the config file
}

func (o *DatabaseOptions) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.Database, "db", "", "path to SQLite database (default from config)")
}

// openEngine opens the configured database and builds an engine over reg.
// With mustExist set a missing database file is an error instead of being
// created. The returned close function releases the store and flushes the
// logger.
func openEngine(opts *DatabaseOptions, formatter *OutputFormatter, cmd *cobra.Command, reg *schema.Registry, mustExist bool) (*engine.Engine, func(), error) {
	cfg, err := opts.loadConfig()
	if err != nil {
		return nil, nil, formatter.Fail(ExitCommandError, ErrCodeConfig, "failed to load config", err)
	}
	if opts.Database != "" {
		cfg.Database = opts.Database
	}

	logger, err := newLogger(cmd.ErrOrStderr(), opts.Verbose, cfg)
	if err != nil {
		return nil, nil, formatter.Fail(ExitCommandError, ErrCodeConfig, "failed to build logger", err)
	}

	if mustExist {
		if _, err := os.Stat(cfg.Database); err != nil {
			_ = logger.Sync()
			return nil, nil, formatter.Fail(ExitCommandError, ErrCodeNotFound, "database not found: "+cfg.Database, nil)
		}
	}

	formatter.VerboseLog("Opening database %s", cfg.Database)
	st, err := store.Open(cfg.Database, store.WithLogger(logger))
	if err != nil {
		_ = logger.Sync()
		return nil, nil, formatter.Fail(ExitCommandError, ErrCodeDatabase, "failed to open database", err)
	}

	eng := engine.New(st, reg,
		engine.WithLogger(logger),
		engine.WithMaxConcurrency(cfg.MaxConcurrency),
	)
	closeFn := func() {
		if err := st.Close(); err != nil {
			logger.Error("error closing database", zap.Error(err))
		}
		_ = logger.Sync()
	}
	return eng, closeFn, nil
}

// commandContext returns the command's context, or a background context when
// the command runs outside Execute (tests).
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// failRequest maps an engine error to an error code and exit code.
func failRequest(formatter *OutputFormatter, message string, err error) error {
	var unknown *engine.UnknownTypeError
	switch {
	case engine.IsNotFound(err):
		return formatter.Fail(ExitFailure, ErrCodeNoRecord, message, err)
	case errors.As(err, &unknown):
		return formatter.Fail(ExitFailure, ErrCodeUnknownType, message, err)
	case hydrate.IsIntegrityError(err):
		return formatter.Fail(ExitFailure, ErrCodeIntegrity, message, err)
	default:
		return formatter.Fail(ExitCommandError, ErrCodeDatabase, message, err)
	}
}
