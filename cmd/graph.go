package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Print the review pipeline as a mermaid flowchart",
	RunE: func(cmd *cobra.Command, args []string) error {
		return graphRun()
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
}

func graphRun() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	exec, _, err := newExecutor(cfg, nil)
	if err != nil {
		return err
	}
	fmt.Fprint(ui.Out, exec.Describe())
	return nil
}
