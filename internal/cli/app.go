package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/Bibi40k/subchunker/internal/benchmark"
	"github.com/Bibi40k/subchunker/internal/config"
	"github.com/Bibi40k/subchunker/internal/fetch"
	"github.com/Bibi40k/subchunker/internal/jvm"
	"github.com/Bibi40k/subchunker/internal/pipeline"
	"github.com/Bibi40k/subchunker/internal/plugins"
	"github.com/Bibi40k/subchunker/internal/server"
	"github.com/Bibi40k/subchunker/internal/supervisor"
	"github.com/Bibi40k/subchunker/internal/workspace"
)

// app is the set of components one command works with, built from config.
type app struct {
	cfg        config.Config
	layout     workspace.Layout
	client     *fetch.Client
	supervisor *supervisor.Supervisor
	servers    *server.Provisioner
	runtimes   *jvm.Provisioner
	runner     *benchmark.Runner
	catalog    plugins.Catalog
	logger     *slog.Logger
}

type appOptions struct {
	// quiet keeps the children's own output off the terminal.
	quiet bool
}

func newApp(cfg config.Config, logger *slog.Logger, opts appOptions) *app {
	layout := workspace.New(cfg.Workspace)
	client := fetch.New(cfg.Timeouts.HTTPDuration(), logger)

	sup := supervisor.New(logger)
	if opts.quiet {
		sup.Stdin = strings.NewReader("")
		sup.Stdout = io.Discard
		sup.Stderr = io.Discard
	}

	return &app{
		cfg:        cfg,
		layout:     layout,
		client:     client,
		supervisor: sup,
		servers: &server.Provisioner{
			Layout:           layout,
			Client:           client,
			Launcher:         sup,
			MetaURL:          cfg.Metadata.FabricMetaURL,
			InstallerVersion: cfg.Server.InstallerVersion,
			Logger:           logger,
		},
		runtimes: &jvm.Provisioner{
			Layout:   layout,
			Client:   client,
			Platform: jvm.HostPlatform(),
			Logger:   logger,
		},
		runner: &benchmark.Runner{
			Launcher: sup,
			Layout:   layout,
			Workload: benchmark.Workload{
				Marker:       cfg.Benchmark.Marker,
				ReadyMarker:  cfg.Benchmark.ReadyMarker,
				Commands:     cfg.Benchmark.Commands,
				StopCommand:  cfg.Benchmark.StopCommand,
				ExtraArgs:    cfg.Benchmark.ExtraArgs,
				HeadlessFlag: cfg.Benchmark.HeadlessFlag,
			},
			Logger: logger,
		},
		catalog: plugins.DefaultCatalog(),
		logger:  logger,
	}
}

func (a *app) coordinator() *pipeline.Coordinator {
	return &pipeline.Coordinator{
		Layout:    a.layout,
		Runtimes:  a.runtimes,
		Servers:   a.servers,
		Benchmark: a.runner,
		Catalog:   a.catalog,
		Logger:    a.logger,
	}
}

// resolveVersions fills the configured versions from the metadata service
// when they are empty.
func (a *app) resolveVersions(ctx context.Context) (string, string, error) {
	game, loader, err := a.servers.ResolveVersions(ctx, a.cfg.Server.Version, a.cfg.Server.LoaderVersion)
	if err != nil {
		return "", "", &userError{
			msg:  fmt.Sprintf("resolve server versions: %v", err),
			hint: "Set server.version and server.loader_version in the config or pass --version/--loader to run offline.",
		}
	}
	return game, loader, nil
}

func loadConfig(path string) (config.Config, error) {
	cfg, _, err := config.LoadOrDefault(path)
	if err != nil {
		return config.Config{}, &userError{
			msg:  err.Error(),
			hint: "Run `subchunker config` to create or fix the config file.",
		}
	}
	return cfg, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode json output: %w", err)
	}
	return nil
}
