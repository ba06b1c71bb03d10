// Package cli provides the command-line interface for scribe.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/raphaelgruber/scribe-go/internal/client"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	configPath string
	serverURL  string
	verbose    bool
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "scribe",
	Short: "Turn voice recordings into structured documents",
	Long: `Scribe transcribes audio recordings, cleans up the raw transcript and
structures it into a readable Markdown document.

Run 'scribe serve' to start the processing server, then submit recordings
with 'scribe process' or by dropping files into the watched input folder.
Interrupted jobs resume from their last checkpoint.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// newClient builds the REST client for commands that talk to a running server.
func newClient() *client.Client {
	return client.New(serverURL)
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (YAML)")
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "", "server URL (default http://localhost:8686)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
