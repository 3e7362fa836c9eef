// Package cli provides the command-line interface for voxrecon.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/voxrecon/internal/client"
	"github.com/raphaelgruber/voxrecon/internal/config"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose   bool
	serverURL string

	// Global config, logger and server client
	cfg         config.Config
	logger      = slog.Default()
	closeLogger = func() error { return nil }
	apiClient   *client.Client
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "voxrecon",
	Short: "Speaker attribution and reporting for recorded discussions",
	Long: `voxrecon reconciles transcripts, voice embeddings and external speaker
events into a speaker-attributed transcript with talk-time statistics,
evidence and a narrative report.

Offline commands (process, cluster, schedule, cache) work on local files.
The sessions and stats commands talk to a running voxrecon-server.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config for version and help commands
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		logger, closeLogger = config.SetupLogger(cfg.LogFile, level)
		apiClient = client.New(serverURL)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if err := closeLogger(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close log file: %v\n", err)
		}
	},
}

// Execute adds all child commands to the root command and runs it.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "voxrecon server URL (default $VOXRECON_SERVER_URL or http://localhost:8080)")

	rootCmd.AddCommand(processCmd)
	rootCmd.AddCommand(clusterCmd)
	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(versionCmd)
}
