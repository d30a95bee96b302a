package main

import (
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/voxdesk/internal/mcp"
)

func newServeCmd(flags *rootFlags) *cobra.Command {
	var listenAddr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the /process HTTP endpoint",
		Long: `Serve accepts WAV uploads on POST /process and answers with the
synthesised reply. When mcp.listen_addr is set the MCP tool server runs
alongside on its own address. The config file is watched and hot-reloadable
settings are applied without a restart.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			e, err := bootstrap(ctx, cmd, flags)
			if err != nil {
				return err
			}
			defer e.close()

			cfg := e.cfg
			addr := cfg.Server.ListenAddr
			if listenAddr != "" {
				addr = listenAddr
			}
			w, err := e.watcher()
			if err != nil {
				return err
			}

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return e.app.HTTPServer().ListenAndServe(ctx, addr, cfg.Server.ShutdownTimeout)
			})
			if cfg.MCP.ListenAddr != "" {
				g.Go(func() error {
					return mcp.ListenAndServe(ctx, e.app.MCPServer(version), cfg.MCP.ListenAddr, cfg.MCP.Path, cfg.Server.ShutdownTimeout)
				})
			}
			if w != nil {
				g.Go(func() error { return w.Run(ctx) })
			}
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&listenAddr, "listen", "", "override server.listen_addr")
	return cmd
}
