package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/roasbeef/learnhub/internal/apiclient"
	"github.com/spf13/cobra"
)

var (
	// serverURL is the learnhubd base URL.
	serverURL string

	// outputFormat controls output format (text, json).
	outputFormat string

	// timeout bounds a single command.
	timeout time.Duration
)

// rootCmd is the base command for the CLI.
var rootCmd = &cobra.Command{
	Use:   "learnhub",
	Short: "learnhub command line client",
	Long: `learnhub talks to a running learnhubd to summarize videos, fetch
transcripts and request personalized learning plans.`,
	SilenceUsage: true,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	defaultURL := os.Getenv("LEARNHUB_SERVER")
	if defaultURL == "" {
		defaultURL = apiclient.DefaultBaseURL
	}

	rootCmd.PersistentFlags().StringVar(
		&serverURL, "server", defaultURL,
		"learnhubd base URL (default from $LEARNHUB_SERVER)",
	)
	rootCmd.PersistentFlags().StringVar(
		&outputFormat, "format", "text",
		"Output format: text, json (plan show also accepts html)",
	)
	rootCmd.PersistentFlags().DurationVar(
		&timeout, "timeout", 5*time.Minute,
		"Overall command timeout",
	)

	// Add subcommands.
	rootCmd.AddCommand(summarizeCmd)
	rootCmd.AddCommand(transcriptCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(versionCmd)
}

// newClient returns a client for the configured server.
func newClient() *apiclient.Client {
	return apiclient.New(serverURL)
}

// commandContext returns the command's context bounded by --timeout.
func commandContext(cmd *cobra.Command) (context.Context,
	context.CancelFunc) {

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	return context.WithTimeout(ctx, timeout)
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}

// wantJSON reports whether JSON output was requested.
func wantJSON() bool {
	return outputFormat == "json"
}

// printf writes formatted text, ignoring write errors to the terminal.
func printf(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
