package cli

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/me/lazyjs/internal/config"
	"github.com/me/lazyjs/internal/logging"
)

var (
	flagConfig    string
	flagDebug     bool
	flagLogLevel  string
	flagLogFormat string
	flagTrace     bool
	flagWorkers   int
	flagStackKB   int
	flagTraceDB   string

	cfg    config.Config
	logger *slog.Logger
)

// NewRootCmd creates the root cobra command for the lazyjs CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "lazyjs",
		Short: "lazyjs — deferred JavaScript compilation dispatcher",
		Long:  "lazyjs compiles script functions lazily on idle time and background workers.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg = config.DefaultConfig()
			if flagConfig != "" {
				loaded, err := config.Load(flagConfig)
				if err != nil {
					return err
				}
				cfg = loaded
			}
			applyFlags(cmd)
			if flagDebug {
				cfg.LogLevel = "debug"
			}
			logger = logging.NewLogger(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat)
			return nil
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to a YAML config file")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "text", "Log format (text, json)")
	root.PersistentFlags().BoolVar(&flagTrace, "trace", false, "Emit stage timings")
	root.PersistentFlags().IntVar(&flagWorkers, "workers", 2, "Background worker count")
	root.PersistentFlags().IntVar(&flagStackKB, "stack-size", 984, "Background stack budget in KB (0 disables background compile)")
	root.PersistentFlags().StringVar(&flagTraceDB, "trace-db", "", "SQLite path for recorded stage samples")

	root.AddCommand(
		newRunCmd(),
		newServeCmd(),
	)

	return root
}

// applyFlags overrides config-file values with explicitly set flags.
func applyFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	if f.Changed("log-level") || cfg.LogLevel == "" {
		cfg.LogLevel = flagLogLevel
	}
	if f.Changed("log-format") || cfg.LogFormat == "" {
		cfg.LogFormat = flagLogFormat
	}
	if f.Changed("trace") {
		cfg.Trace = flagTrace
	}
	if f.Changed("workers") {
		cfg.Workers = flagWorkers
	}
	if f.Changed("stack-size") {
		cfg.StackSizeKB = flagStackKB
	}
	if f.Changed("trace-db") {
		cfg.TraceDB = flagTraceDB
	}
}
