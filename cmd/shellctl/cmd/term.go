package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
)

var termCmd = &cobra.Command{
	Use:   "term <command...>",
	Short: "Execute a shell command in the sandbox",
	Long: `Execute a shell command (wrapped in /bin/sh -c) in the sandbox and print
its combined output. Arguments are joined with spaces.
Example: shellctl term "uname -a && cat /etc/os-release"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		result, err := newClient().Term(ctx, strings.Join(args, " "))
		if err != nil {
			return fmt.Errorf("failed to execute command: %w", err)
		}

		jsonOutput, _ := cmd.Flags().GetBool("json")
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), result)
		}

		if result.Notice != "" {
			fmt.Fprintln(cmd.ErrOrStderr(), result.Notice)
		}
		fmt.Fprint(cmd.OutOrStdout(), result.Output)
		if result.Output != "" && !strings.HasSuffix(result.Output, "\n") {
			fmt.Fprintln(cmd.OutOrStdout())
		}

		if result.TimedOut {
			return fmt.Errorf("command timed out")
		}
		if result.ExitCode != 0 {
			return fmt.Errorf("command exited with code %d", result.ExitCode)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(termCmd)

	termCmd.Flags().Bool("json", false, "Output as JSON")
	// Stop parsing flags after the first non-flag arg so that
	// arguments like -la are passed to the sandbox command.
	termCmd.Flags().SetInterspersed(false)
}
