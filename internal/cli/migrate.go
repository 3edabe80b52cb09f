package cli

import (
	"github.com/spf13/cobra"
)

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Provision tables and indexes in the configured store",
		Long: `Create the collections, tables and indexes the engine needs.
Migrations are idempotent; running migrate twice is safe.

Example:
  bookstore migrate --config bookstore.yaml
  BOOKSTORE_STORE_DRIVER=sqlite BOOKSTORE_STORE_URI=./bookstore.db bookstore migrate`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd, rootOpts)
		},
	}
}

func runMigrate(cmd *cobra.Command, rootOpts *RootOptions) error {
	cfg, err := loadConfig(rootOpts)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			logger.Warn("store close failed", "error", cerr)
		}
	}()

	if err := st.Migrate(ctx); err != nil {
		return WrapExitError(ExitFailure, "migration failed", err)
	}

	return printResult(cmd.OutOrStdout(), cfg.Log.Format,
		map[string]string{"driver": cfg.Store.Driver},
		"migrations applied ("+cfg.Store.Driver+")",
	)
}
