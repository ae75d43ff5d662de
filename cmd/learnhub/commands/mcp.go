package commands

import (
	"os"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/roasbeef/learnhub/internal/build"
	"github.com/roasbeef/learnhub/internal/mcp"
	"github.com/spf13/cobra"
)

// mcpCmd serves MCP tools on stdio, backed by a running learnhubd.
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve learnhub tools over MCP on stdio",
	Long: `Run an MCP server on stdin/stdout whose tools call the learnhubd at
--server. Register this command with an MCP capable assistant.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		// Stdout carries the protocol; keep logs off it.
		logCfg := build.DefaultLogConfig()
		logCfg.Level = "warn"
		log, closeLog, err := build.NewLogger(logCfg, os.Stderr)
		if err != nil {
			return err
		}
		defer closeLog()

		server := mcp.NewServer(mcp.Config{
			Version: build.Version(),
		}, newClient(), log)

		return server.Run(cmd.Context(), &sdkmcp.StdioTransport{})
	},
}
