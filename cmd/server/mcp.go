package main

import (
	"github.com/spf13/cobra"

	"insight-gateway/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the retrieval tools over MCP on stdin/stdout",
	Long: `mcp loads the configured source once and serves the retrieval, aggregate,
verification and summary tools over the MCP stdio transport. Logs go to stderr.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		a.loadInitial(cmd.Context())

		server := mcp.NewMCPServer(a.cfg.MCP.Name, a.cfg.MCP.Version, a.engine, a.verifier, a.reports, a.logger)
		a.logger.Info("serving MCP over stdio", "generation", a.engine.Generation())
		return server.ServeStdio()
	},
}
