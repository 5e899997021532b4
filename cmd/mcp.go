package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/joescharf/trackflow/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server for Claude Code integration",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This lets an MCP client read and update the board. Configure with:

  {
    "mcpServers": {
      "trackflow": { "command": "trackflow", "args": ["mcp"] }
    }
  }

Available tools: tf_list_issues, tf_get_issue, tf_create_issue,
tf_update_issue, tf_move_issue, tf_delete_issue, tf_list_users,
tf_list_labels, tf_analytics`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := getStore()
		if err != nil {
			return err
		}
		logger.Debug("starting mcp server")
		return mcp.NewServer(s, newAggregator()).ServeStdio(context.Background())
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
