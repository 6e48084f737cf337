package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"reebill/internal/config"
	"reebill/internal/observability/metrics"
)

// rootOptions holds the state shared by every subcommand. It is filled in by
// the root command's PersistentPreRunE.
type rootOptions struct {
	debug       bool
	configPath  string
	metricsFile string

	cfg    config.Config
	logger zerolog.Logger
}

// NewRootCmd creates the root command for the reebill CLI.
func NewRootCmd(ver string) *cobra.Command {
	opts := &rootOptions{logger: zerolog.Nop()}

	cmd := &cobra.Command{
		Use:           "reebill",
		Short:         "Utility bill charges and renewable energy bills",
		Long:          "reebill: compute utility bill charges and the renewable energy bills derived from them",
		Version:       ver,
		Example:       rootCmdExample,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.setup(cmd)
		},
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			return opts.writeMetrics()
		},
	}

	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "enable debug logging")
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "YAML config overlay (default $REEBILL_CONFIG)")
	cmd.PersistentFlags().StringVar(&opts.metricsFile, "metrics-file", "", "write Prometheus metrics to this textfile on exit")
	cmd.AddCommand(
		newComputeCmd(opts),
		newChargesCmd(opts),
		newRecomputeCmd(opts),
		newIssueCmd(opts),
		newCorrectCmd(opts),
		newPaymentCmd(opts),
		newRateClassesCmd(opts),
	)
	return cmd
}

const rootCmdExample = `  # Price an offline bill document
  reebill compute bill.yaml

  # Recompute every unissued reebill of an account
  reebill recompute --account 10003

  # Issue the next reebill
  reebill issue --account 10003 --sequence 4

  # List the configured rate classes
  reebill rate-classes`

func (o *rootOptions) setup(cmd *cobra.Command) error {
	path := o.configPath
	if path == "" {
		path = os.Getenv("REEBILL_CONFIG")
	}
	cfg, err := config.LoadFile(path)
	if err != nil {
		return err
	}
	if o.metricsFile == "" {
		o.metricsFile = cfg.MetricsFile
	}
	if o.debug {
		cfg.LogLevel = zerolog.DebugLevel.String()
	}
	o.cfg = cfg
	o.logger = config.NewLogger(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())
	o.logger.Debug().Str("config", path).Bool("database", cfg.DatabaseURL != "").Msg("configuration loaded")
	return nil
}

func (o *rootOptions) writeMetrics() error {
	if strings.TrimSpace(o.metricsFile) == "" {
		return nil
	}
	if err := metrics.WriteTextfile(o.metricsFile); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	o.logger.Debug().Str("path", o.metricsFile).Msg("metrics written")
	return nil
}
