// Package cli provides the command-line interface for speechkit.
package cli

import (
	"fmt"
	"os"

	"github.com/raphaelgruber/speechkit-go/internal/client"
	"github.com/raphaelgruber/speechkit-go/internal/config"
	"github.com/spf13/cobra"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	serverURL string
	verbose   bool

	apiClient *client.Client
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "speechkit",
	Short: "Transcribe recordings with two speech providers and an LLM cleanup",
	Long: `speechkit submits audio to the speechkit server and follows the pipeline:
download, normalize, transcribe with Yandex SpeechKit and SaluteSpeech,
merge, clean up with an LLM and deliver the final transcript.

The server address comes from --server, SPEECHKIT_SERVER_URL or .env.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		url := serverURL
		if url == "" {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			url = cfg.ServerURL
		}
		if verbose {
			fmt.Fprintf(os.Stderr, "server: %s\n", url)
		}
		apiClient = client.New(url)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "speechkit server URL")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(confirmCmd)
	rootCmd.AddCommand(rejectCmd)
	rootCmd.AddCommand(jobsCmd)
	rootCmd.AddCommand(watchCmd)
}
