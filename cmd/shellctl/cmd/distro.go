package cmd

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var distrosCmd = &cobra.Command{
	Use:   "distros",
	Short: "List supported distros",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		listings, err := newClient().Distros(ctx)
		if err != nil {
			return fmt.Errorf("failed to list distros: %w", err)
		}

		jsonOutput, _ := cmd.Flags().GetBool("json")
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), listings)
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tIMAGE\tACTIVE")
		for _, l := range listings {
			active := ""
			if l.Active {
				active = "*"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", l.Name, l.Image, active)
		}
		return w.Flush()
	},
}

var distroCmd = &cobra.Command{
	Use:   "distro <name>",
	Short: "Switch the sandbox to another distro",
	Long: `Replace the sandbox container with one running the named distro.
The previous container is removed; files in it are lost.
Example: shellctl distro alpine`,
	Args: cobra.ExactArgs(1),
	ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		if len(args) > 0 {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		names, err := newClient().CompleteDistro(ctx, toComplete)
		if err != nil {
			return nil, cobra.ShellCompDirectiveError
		}
		return names, cobra.ShellCompDirectiveNoFileComp
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		resp, err := newClient().SwitchDistro(ctx, args[0])
		if err != nil {
			return fmt.Errorf("failed to switch distro: %w", err)
		}

		jsonOutput, _ := cmd.Flags().GetBool("json")
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), resp)
		}
		fmt.Fprintln(cmd.OutOrStdout(), resp.Message)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(distrosCmd)
	rootCmd.AddCommand(distroCmd)

	distrosCmd.Flags().Bool("json", false, "Output as JSON")
	distroCmd.Flags().Bool("json", false, "Output as JSON")
}
