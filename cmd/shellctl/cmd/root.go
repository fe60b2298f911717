package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/shellbot/shellbot/pkg/client"
	"github.com/spf13/cobra"
)

var (
	baseURL string
	apiKey  string
)

var rootCmd = &cobra.Command{
	Use:   "shellctl",
	Short: "shellctl - Drive the shellbot sandbox from the command line",
	Long: `shellctl talks to the shellbot HTTP API. It runs commands in the shared
Linux sandbox, lists the supported distros and switches between them.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&baseURL, "url", getEnvOrDefault("SHELLBOT_API_URL", "http://localhost:8080"), "shellbot API base URL")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", os.Getenv("SHELLBOT_API_KEY"), "shellbot API key")
}

func getEnvOrDefault(key, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultValue
}

func newClient() *client.Client {
	return client.NewClient(baseURL, apiKey)
}

func printJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(w, string(data))
	return nil
}
