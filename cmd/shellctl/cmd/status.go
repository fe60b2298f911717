package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the sandbox status",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		st, err := newClient().Status(ctx)
		if err != nil {
			return fmt.Errorf("failed to get status: %w", err)
		}

		jsonOutput, _ := cmd.Flags().GetBool("json")
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), st)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Distro:    %s (%s)\n", st.Distro, st.Image)
		fmt.Fprintf(out, "Phase:     %s\n", st.Phase)
		fmt.Fprintf(out, "Container: %s\n", st.ContainerName)
		if st.ContainerID != "" {
			id := st.ContainerID
			if len(id) > 12 {
				id = id[:12]
			}
			fmt.Fprintf(out, "ID:        %s\n", id)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().Bool("json", false, "Output as JSON")
}
