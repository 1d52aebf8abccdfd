package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/joescharf/codereview/internal/extract"
	"github.com/joescharf/codereview/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This lets an MCP client run reviews directly. Configure it with:

  {
    "mcpServers": {
      "codereview": { "command": "codereview", "args": ["mcp"] }
    }
  }

Available tools: review_run, review_scan, review_extract_json, review_graph`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		// stdout carries the protocol.
		ui.Out = os.Stderr

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		producer, closer, err := newProducer(ctx, cfg)
		if err != nil {
			return err
		}
		defer func() { _ = closer.Close() }()

		exec, scanner, err := newExecutor(cfg, producer)
		if err != nil {
			return err
		}

		srv := mcp.NewServer(exec, scanner, extract.New(logger), buildVersion)
		return srv.ServeStdio(ctx)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
