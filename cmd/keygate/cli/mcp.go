package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	kmcp "github.com/faucetdb/keygate/internal/mcp"
)

func newMCPCmd() *cobra.Command {
	var (
		transport string
		port      int
	)

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start the MCP server for AI agents",
		Long: `Start a Model Context Protocol (MCP) server that exposes API key management
as tools for AI agents. Supports stdio (default) and HTTP transports.

In stdio mode, the MCP server communicates over stdin/stdout using JSON-RPC,
suitable for desktop MCP clients that launch keygate as a subprocess.

In HTTP mode, the server listens on the specified port using the Streamable
HTTP transport.`,
		Example: `  keygate mcp                              # stdio mode
  keygate mcp --transport http --port 3001  # Streamable HTTP mode`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMCP(transport, port)
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "stdio", "Transport mode: stdio or http")
	cmd.Flags().IntVar(&port, "port", 3001, "HTTP port (only used with --transport http)")

	return cmd
}

func runMCP(transport string, port int) error {
	keys, store, cfg, err := openKeyService()
	if err != nil {
		return err
	}
	defer store.Close()

	// stdout carries the stdio protocol, so logs always go to stderr.
	logger := newLogger(os.Stderr, cfg.Logging, false)

	mcpSrv := kmcp.NewMCPServer(keys, versionString(), logger)

	switch transport {
	case "stdio":
		return mcpSrv.ServeStdio()
	case "http":
		return mcpSrv.ServeHTTP(fmt.Sprintf(":%d", port))
	default:
		return fmt.Errorf("unsupported transport %q; use 'stdio' or 'http'", transport)
	}
}
