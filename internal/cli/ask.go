package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/nanda/kirana/pkg/assistant"
	"github.com/spf13/cobra"
)

var askUser string

var askCmd = &cobra.Command{
	Use:   "ask [query]",
	Short: "Ask the assistant a single question",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, lg, err := loadEnvironment()
		if err != nil {
			return err
		}
		defer lg.Close()

		a, err := assistant.New(cfg, assistant.Options{Logger: lg.GetZerolog()})
		if err != nil {
			return err
		}
		defer a.Close()

		query := strings.Join(args, " ")
		answer, err := a.Ask(cmd.Context(), askUser, query)
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), answer.Text)
		if len(answer.ToolsUsed) > 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "(tools: %s)\n", strings.Join(answer.ToolsUsed, ", "))
		}
		if !answer.Success {
			os.Exit(1)
		}
		return nil
	},
}

func init() {
	askCmd.Flags().StringVar(&askUser, "user", "local", "user ID for session and history")
	rootCmd.AddCommand(askCmd)
}
