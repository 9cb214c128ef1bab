package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/trk-project/trk/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server for agent integration",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This lets MCP clients manage issues through trk. Configure with:

  {
    "mcpServers": {
      "trk": { "command": "trk", "args": ["mcp"] }
    }
  }

Available tools: trk_list_issues, trk_create_issue, trk_update_issue,
trk_assign_issue, trk_set_status, trk_archive_issue, trk_add_comment,
trk_list_users. Each tool takes an optional "actor" handle; the
configured 'actor' is used when omitted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := getService()
		if err != nil {
			return err
		}

		defaultActor := actAs
		if defaultActor == "" {
			defaultActor = viper.GetString("actor")
		}

		srv := mcp.NewServer(svc, defaultActor)
		return srv.ServeStdio(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
