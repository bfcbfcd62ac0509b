package cli

import (
	"fmt"

	"github.com/nanda/kirana/pkg/toolkit"
	"github.com/spf13/cobra"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the registered tools",
	RunE: func(cmd *cobra.Command, args []string) error {
		m := toolkit.NewManager()
		if err := toolkit.RegisterBuiltinToolkits(m); err != nil {
			return err
		}

		for _, def := range m.List() {
			fmt.Fprintf(cmd.OutOrStdout(), "%-12s %-8s %s\n", def.Name, def.Category, def.Description)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(toolsCmd)
}
