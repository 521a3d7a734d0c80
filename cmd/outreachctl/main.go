// Package main implements outreachctl, a command-line client for the
// outreach API.
package main

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"

	"outreach/client"
	"outreach/utils"
)

var (
	// apiURL is the base URL of the API, including the version prefix
	apiURL string
	// apiToken is the bearer token sent with every request
	apiToken string
	timeout  time.Duration
)

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "outreachctl",
	Short: "CLI for the outreach API",
	Long: `outreachctl inspects connections, edits drafts and sends outreach email
through the outreach HTTP API.

The API location and token default to OUTREACH_API_URL and OUTREACH_TOKEN.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&apiURL, "server", envOr("OUTREACH_API_URL", "http://localhost:5000/api/v1"), "outreach API URL")
	rootCmd.PersistentFlags().StringVar(&apiToken, "token", os.Getenv("OUTREACH_TOKEN"), "API bearer token")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 15*time.Second, "request timeout")
}

func newClient() *client.Client {
	return client.New(apiURL, apiToken, client.WithTimeout(timeout))
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseID(arg string) (uint, error) {
	id := utils.ParseUint(arg)
	if id == 0 {
		return 0, errInvalidID
	}
	return id, nil
}
