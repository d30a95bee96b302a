// Command voxdesk is a voice assistant for weather and team-calendar
// questions.
//
// Usage:
//
//	voxdesk serve    [--config voxdesk.yaml]   HTTP /process endpoint
//	voxdesk listen   [--config voxdesk.yaml]   microphone loop
//	voxdesk mcp      [--transport stdio|http]  MCP tool server
//	voxdesk devices                            list input devices
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MrWong99/voxdesk/internal/app"
	"github.com/MrWong99/voxdesk/internal/config"
	"github.com/MrWong99/voxdesk/internal/observe"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const defaultConfigPath = "voxdesk.yaml"

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "voxdesk: %v\n", err)
		return 1
	}
	return 0
}

type rootFlags struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:           "voxdesk",
		Short:         "Voice assistant for weather and calendar requests",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", defaultConfigPath, "path to the YAML or TOML configuration file")

	root.AddCommand(
		newServeCmd(flags),
		newListenCmd(flags),
		newMCPCmd(flags),
		newDevicesCmd(),
	)
	return root
}

// env is what every long-running command needs: the loaded config, the
// assembled App and the log level the config watcher adjusts.
type env struct {
	cfg   *config.Config
	app   *app.App
	level *slog.LevelVar

	// configPath is empty when running on built-in defaults.
	configPath string

	shutdownTelemetry func(context.Context) error
}

// bootstrap loads the configuration, installs the logger and telemetry and
// builds the App. A missing config file is tolerated only for the default
// path; the built-in defaults are used then.
func bootstrap(ctx context.Context, cmd *cobra.Command, flags *rootFlags) (*env, error) {
	e := &env{level: new(slog.LevelVar), configPath: flags.configPath}

	cfg, err := config.Load(flags.configPath)
	switch {
	case errors.Is(err, os.ErrNotExist) && !cmd.Flags().Changed("config"):
		cfg = &config.Config{}
		config.ApplyDefaults(cfg)
		e.configPath = ""
	case errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("config file %q not found", flags.configPath)
	case err != nil:
		return nil, err
	}
	e.cfg = cfg

	e.level.Set(app.SlogLevel(cfg.Server.LogLevel))
	slog.SetDefault(newLogger(e.level))
	if e.configPath == "" {
		slog.Warn("no config file found, using built-in defaults", "path", flags.configPath)
	}
	slog.Info("voxdesk starting",
		"version", version,
		"config", e.configPath,
		"llm", cfg.Providers.LLM.Name+"/"+cfg.Providers.LLM.Model,
		"stt", cfg.Providers.STT.Name,
		"tts", cfg.Providers.TTS.Name,
		"turnlog", string(cfg.Turnlog.Backend),
	)

	e.shutdownTelemetry, err = observe.InitProvider(version)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	reg := config.NewRegistry()
	app.RegisterBuiltins(reg)
	providers, err := app.BuildProviders(cfg, reg, observe.DefaultMetrics())
	if err != nil {
		_ = e.shutdownTelemetry(ctx)
		return nil, err
	}

	e.app, err = app.New(ctx, cfg, providers, app.WithLogLevel(e.level))
	if err != nil {
		_ = e.shutdownTelemetry(ctx)
		return nil, err
	}
	return e, nil
}

// watcher returns a config watcher feeding App.Reload, or nil when running on
// defaults.
func (e *env) watcher() (*config.Watcher, error) {
	if e.configPath == "" {
		return nil, nil
	}
	return config.NewWatcher(e.configPath, e.app.Reload)
}

// close shuts the App and telemetry down within the configured timeout.
func (e *env) close() error {
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.Server.ShutdownTimeout)
	defer cancel()
	err := e.app.Shutdown(ctx)
	if terr := e.shutdownTelemetry(ctx); terr != nil {
		slog.Warn("telemetry shutdown", "err", terr)
	}
	return err
}

func newLogger(level *slog.LevelVar) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
