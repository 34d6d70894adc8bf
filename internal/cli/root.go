// Package cli provides the command-line interface of telreg.
package cli

import (
	"fmt"
	"os"

	logging "github.com/ipfs/go-log/v2"
	"github.com/spf13/cobra"

	"github.com/hedeqiang/telreg/internal/config"
)

var log = logging.Logger("telreg/cli")

var (
	cfgFile string
	cfg     *config.Config
)

// Version information (set at build time).
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
)

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "telreg",
		Short: "telreg - telephony state registry",
		Long: `telreg keeps the last known telephony state and pushes every change to
the subscribers interested in it.

Run "telreg serve" to start the registry, then report changes with
"telreg notify" and follow them with "telreg watch".`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}

			var err error
			cfg, err = config.Load(cfgFile, cmd.Flags())
			if err != nil {
				return err
			}
			if err := logging.SetLogLevelRegex("^telreg", cfg.LogLevel); err != nil {
				return fmt.Errorf("log level: %w", err)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./"+config.DefaultFile+")")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().String("server", "", "Registry base URL used by client commands")
	rootCmd.PersistentFlags().String("token", "", "Capability token sent as a bearer token")
	rootCmd.PersistentFlags().String("codec", "", "WebSocket frame codec (json|cbor)")

	_ = rootCmd.RegisterFlagCompletionFunc("codec", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"json", "cbor"}, cobra.ShellCompDirectiveNoFileComp
	})

	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newNotifyCommand())
	rootCmd.AddCommand(newWatchCommand())
	rootCmd.AddCommand(newDumpCommand())
	rootCmd.AddCommand(newStickyCommand())
	rootCmd.AddCommand(newHashTokenCommand())
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "telreg %s (%s)\n", Version, GitCommit)
			return err
		},
	}
}
