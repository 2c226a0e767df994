// Superdaddy is a retrieval-augmented parenting assistant backed by a
// guidebook corpus.
//
// The serve command starts the HTTP API (chat, ingestion trigger, health,
// metrics); the ingest command runs a one-shot document ingestion.
//
// Configuration is loaded from a YAML file and overridden by environment
// variables. See internal/config for details.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zoontopia/superdaddy/internal/ingest"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "superdaddy",
	Short:         "Retrieval-augmented parenting assistant",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(versionCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Start the superdaddy HTTP server.

Examples:
  # Start with the default config file
  superdaddy serve

  # Start with an explicit config
  superdaddy serve --config ./config.yaml

  # Override settings via environment
  SERVER_PORT=9090 superdaddy serve`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()
		return runServe(ctx)
	},
}

var (
	ingestForce bool
	ingestID    string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [file]",
	Short: "Ingest a guidebook into the vector store",
	Long: `Ingest a guidebook text file into the vector store.

Without arguments the configured source is ingested. Ingestion is
idempotent: a source that is already present is skipped unless --force is
set.

Examples:
  # Ingest the configured source
  superdaddy ingest

  # Ingest a specific file, replacing any previous version
  superdaddy ingest --force ./guidebook.txt`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		path := ""
		if len(args) == 1 {
			path = args[0]
		}
		report, err := runIngest(ctx, path, ingestID, ingestForce)
		if err != nil {
			return err
		}
		printReport(report)
		if report.Status == ingest.StatusFailed {
			return fmt.Errorf("ingestion failed: %s", report.Error)
		}
		return nil
	},
}

func init() {
	ingestCmd.Flags().BoolVar(&ingestForce, "force", false, "re-ingest even if the source is already present")
	ingestCmd.Flags().StringVar(&ingestID, "source-id", "", "override the source identifier")
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(*cobra.Command, []string) {
		fmt.Printf("superdaddy\n")
		fmt.Printf("Version:    %s\n", version)
		fmt.Printf("Commit:     %s\n", gitCommit)
		fmt.Printf("Build Date: %s\n", buildDate)
	},
}

func printReport(report ingest.Report) {
	encoded, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		fmt.Printf("%+v\n", report)
		return
	}
	fmt.Println(string(encoded))
}
