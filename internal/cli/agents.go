package cli

import (
	"fmt"
	"strings"

	"github.com/nanda/kirana/pkg/assistant"
	"github.com/spf13/cobra"
)

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "Show the agents a fresh core would register",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, lg, err := loadEnvironment()
		if err != nil {
			return err
		}
		defer lg.Close()

		a, err := assistant.New(cfg, assistant.Options{Logger: lg.GetZerolog(), InMemoryHistory: true})
		if err != nil {
			return err
		}
		defer a.Close()

		for _, p := range a.Registry().List() {
			caps := make([]string, len(p.Capabilities))
			for i, c := range p.Capabilities {
				caps[i] = string(c)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%-16s %-14s %-8s %s\n",
				p.AgentID, p.Role, p.Health.State, strings.Join(caps, ","))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(agentsCmd)
}
