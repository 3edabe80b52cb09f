package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/xraph/bookstore"
)

// SweepOptions holds flags for the sweep command.
type SweepOptions struct {
	*RootOptions
	Threshold time.Duration
}

// NewSweepCommand creates the sweep command.
func NewSweepCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SweepOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Cancel expired unpaid orders once",
		Long: `Run one expiry sweep: every unpaid order older than the threshold
is cancelled and its reserved stock returned to the store.

Example:
  bookstore sweep --config bookstore.yaml
  bookstore sweep --threshold 30m --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSweep(cmd, opts)
		},
	}

	cmd.Flags().DurationVar(&opts.Threshold, "threshold", 0, "order age after which unpaid orders expire (default from config)")

	return cmd
}

func runSweep(cmd *cobra.Command, opts *SweepOptions) error {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	if opts.Threshold > 0 {
		cfg.Sweeper.Threshold = opts.Threshold
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

	eng := bookstore.New(st, append(engineOptions(cfg, logger, nil), bookstore.WithoutSweeper())...)
	defer func() {
		if serr := eng.Stop(); serr != nil {
			logger.Warn("engine stop failed", "error", serr)
		}
	}()

	n, err := eng.SweepExpired(ctx, time.Now(), cfg.Sweeper.Threshold)
	if err != nil {
		return WrapExitError(ExitFailure, "sweep failed", err)
	}

	return printResult(cmd.OutOrStdout(), cfg.Log.Format,
		map[string]any{"cancelled": n, "threshold": cfg.Sweeper.Threshold.String()},
		fmt.Sprintf("cancelled %d expired order(s)", n),
	)
}
