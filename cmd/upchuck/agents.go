package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Strob0t/Upchuck/internal/service"
)

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "Inspect and seed agent configurations",
}

var agentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List agent configurations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		pool, store, err := openStore(cmd.Context(), cfg.Postgres)
		if err != nil {
			return err
		}
		defer pool.Close()

		configs, err := service.NewAgentConfigService(store, nil, 0).List(cmd.Context())
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "AGENT TYPE\tENABLED\tAUTONOMY\tTHRESHOLD\tVERSION")
		for _, c := range configs {
			fmt.Fprintf(tw, "%s\t%t\t%s\t%s\t%d\n", c.AgentType, c.IsEnabled, c.AutonomyLevel, c.ConfidenceThreshold, c.Version)
		}
		return tw.Flush()
	},
}

var agentsSeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create missing agent configurations from the config file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		pool, store, err := openStore(cmd.Context(), cfg.Postgres)
		if err != nil {
			return err
		}
		defer pool.Close()

		created, err := service.NewAgentConfigService(store, nil, 0).Seed(cmd.Context(), cfg.Agents)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "seeded %d agent configuration(s)\n", len(created))
		for _, name := range created {
			fmt.Fprintln(cmd.OutOrStdout(), "  "+name)
		}
		return nil
	},
}

func init() {
	agentsCmd.AddCommand(agentsListCmd, agentsSeedCmd)
	rootCmd.AddCommand(agentsCmd)
}
