package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MrWong99/voxdesk/internal/mcp"
)

func newMCPCmd(flags *rootFlags) *cobra.Command {
	var transport string
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Expose the weather and calendar tools as an MCP server",
		Long: `Mcp serves get_weather and manage_calendar over the Model Context
Protocol. The stdio transport is meant to be launched by an MCP client; the
http transport listens on mcp.listen_addr at mcp.path.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			t := mcp.Transport(transport)
			if !t.IsValid() {
				return fmt.Errorf("unknown transport %q; valid values: %s, %s", transport, mcp.TransportStdio, mcp.TransportStreamableHTTP)
			}

			ctx := cmd.Context()
			e, err := bootstrap(ctx, cmd, flags)
			if err != nil {
				return err
			}
			defer e.close()

			server := e.app.MCPServer(version)
			if t == mcp.TransportStdio {
				return mcp.ServeStdio(ctx, server)
			}
			addr := e.cfg.MCP.ListenAddr
			if addr == "" {
				addr = e.cfg.Server.ListenAddr
			}
			return mcp.ListenAndServe(ctx, server, addr, e.cfg.MCP.Path, e.cfg.Server.ShutdownTimeout)
		},
	}
	cmd.Flags().StringVar(&transport, "transport", string(mcp.TransportStdio), "stdio or streamable-http")
	return cmd
}
