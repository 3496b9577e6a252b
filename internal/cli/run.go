package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Bibi40k/subchunker/internal/config"
	"github.com/Bibi40k/subchunker/internal/pipeline"
	"github.com/Bibi40k/subchunker/internal/workspace"
	"github.com/Bibi40k/subchunker/pkg/model"
)

const logFileName = "subchunker.log"

type runFlags struct {
	version       string
	loader        string
	runtime       string
	extraRuntimes []string
	memoryGB      int
	skip          []string
}

// apply copies set flags over cfg.
func (f runFlags) apply(cfg *config.Config) error {
	if f.version != "" {
		cfg.Server.Version = f.version
	}
	if f.loader != "" {
		cfg.Server.LoaderVersion = f.loader
	}
	if f.runtime != "" {
		cfg.Runtime.Distribution = f.runtime
	}
	if len(f.extraRuntimes) > 0 {
		cfg.Runtime.Additional = f.extraRuntimes
	}
	if f.memoryGB > 0 {
		cfg.MemoryGB = f.memoryGB
	}
	for _, id := range f.skip {
		id = strings.ToLower(strings.TrimSpace(id))
		if cfg.Plugins.Optional == nil {
			cfg.Plugins.Optional = map[string]bool{}
		}
		cfg.Plugins.Optional[id] = false
	}
	if err := cfg.Validate(); err != nil {
		return &userError{msg: err.Error(), hint: "Check the command flags against `subchunker run --help`."}
	}
	return nil
}

func newRunCmd() *cobra.Command {
	var (
		configPath string
		flags      runFlags
		jsonOut    bool
		useTUI     bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Install what is missing and run the chunk generation benchmark",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := newLogger(logFormat, logLevel)
			if err != nil {
				return err
			}

			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if err := flags.apply(&cfg); err != nil {
				return err
			}

			interactive := isTerminal(os.Stdin) && isTerminal(os.Stdout)
			human := !jsonOut && strings.EqualFold(logFormat, "text") && isTerminal(os.Stdout)
			if useTUI && !interactive {
				return &userError{msg: "--tui needs an interactive terminal", hint: "Drop --tui to get line-based progress."}
			}

			componentLogger := logger
			switch {
			case useTUI:
				l, closeLog, err := fileLogger(workspace.New(cfg.Workspace).Data(), logFormat, logLevel)
				if err != nil {
					return err
				}
				defer closeLog()
				componentLogger = l
			case jsonOut:
				// Keep stdout for the result document.
				if logger, err = newLoggerTo(os.Stderr, logFormat, logLevel); err != nil {
					return err
				}
				componentLogger = logger
			case human && !strings.EqualFold(logLevel, "debug"):
				componentLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
			}

			a := newApp(cfg, componentLogger, appOptions{quiet: useTUI || jsonOut})
			if err := a.layout.EnsureDirs(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			if d := cfg.Timeouts.TotalDuration(); d > 0 {
				var cancelTimeout context.CancelFunc
				ctx, cancelTimeout = context.WithTimeout(ctx, d)
				defer cancelTimeout()
			}
			ctx, cancel := context.WithCancel(ctx)
			defer cancel()

			version, loader, err := a.resolveVersions(ctx)
			if err != nil {
				return err
			}
			job := &pipeline.Job{
				ServerVersion:      version,
				LoaderVersion:      loader,
				Runtime:            cfg.Runtime.Distribution,
				AdditionalRuntimes: cfg.Runtime.Additional,
				MemoryGB:           cfg.MemoryGB,
				Optional:           cfg.Plugins.Optional,
			}
			run, err := a.coordinator().Start(ctx, job)
			if err != nil {
				return err
			}

			pluginsDir := a.layout.PluginsDir(version)
			header := fmt.Sprintf("%s (loader %s) on %s, %d GB", version, loader, strings.ToLower(cfg.Runtime.Distribution), cfg.MemoryGB)
			var obsErr error
			if useTUI {
				obsErr = runTUI(run, cancel, cfg.Timeouts.PollInterval(), header, pluginsDir)
			} else {
				if human {
					fmt.Printf("\n\033[1msubchunker\033[0m %s\n", header)
				}
				obsErr = observe(run, cancel, observerOptions{
					poll:        cfg.Timeouts.PollInterval(),
					interactive: interactive && !jsonOut,
					pluginsDir:  pluginsDir,
					progress:    newStageProgress(os.Stdout, 3, human),
					logger:      logger,
				})
			}
			res, runErr := run.Wait()

			if jsonOut {
				if err := printJSON(res); err != nil {
					return err
				}
			}
			if obsErr != nil {
				return obsErr
			}
			if runErr != nil {
				if errors.Is(runErr, context.Canceled) {
					return &userError{msg: "benchmark cancelled", hint: "Installed artifacts are kept; the next run resumes from them."}
				}
				if errors.Is(runErr, context.DeadlineExceeded) {
					return &userError{msg: "benchmark timed out", hint: "Raise timeouts.total_minutes or set it to 0 for no limit."}
				}
				return runErr
			}
			if !jsonOut {
				printSummary(logger, res, human || useTUI)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ./subchunker.yaml if present)")
	cmd.Flags().StringVar(&flags.version, "version", "", "Server game version (default: latest stable)")
	cmd.Flags().StringVar(&flags.loader, "loader", "", "Fabric loader version (default: latest stable)")
	cmd.Flags().StringVar(&flags.runtime, "runtime", "", "Java distribution to run under: azul|adoptium|graalvm")
	cmd.Flags().StringSliceVar(&flags.extraRuntimes, "also-install", nil, "Additional Java distributions to provision")
	cmd.Flags().IntVar(&flags.memoryGB, "memory", 0, "Server heap size in GB")
	cmd.Flags().StringSliceVar(&flags.skip, "skip-plugin", nil, "Optional plugin IDs to leave out")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print machine-readable result JSON")
	cmd.Flags().BoolVar(&useTUI, "tui", false, "Show a full-screen progress view")
	cmd.MarkFlagsMutuallyExclusive("json", "tui")

	return cmd
}

// fileLogger appends component logs to a file in dir so they stay off the
// full-screen view.
func fileLogger(dir, format, level string) (*slog.Logger, func(), error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log dir: %w", err)
	}
	path := filepath.Join(dir, logFileName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file %s: %w", path, err)
	}
	logger, err := newLoggerTo(f, format, level)
	if err != nil {
		_ = f.Close()
		return nil, nil, err
	}
	return logger, func() { _ = f.Close() }, nil
}

func printSummary(logger *slog.Logger, res model.BenchmarkResult, human bool) {
	total := res.EndedAt.Sub(res.StartedAt).Truncate(time.Millisecond)
	if human {
		fmt.Printf("\n\033[32m✓ benchmark completed\033[0m\n")
		fmt.Printf("  Server:  \033[36m%s\033[0m (loader %s)\n", res.ServerVersion, res.LoaderVersion)
		fmt.Printf("  Runtime: \033[36m%s\033[0m, %d GB\n", res.Runtime, res.MemoryGB)
		fmt.Printf("  Score:   \033[36m%.2f chunks/s\033[0m over %d samples\n", res.Score, res.Samples)
		fmt.Printf("  Total:   \033[36m%s\033[0m\n", total)
		return
	}
	logger.Info("benchmark completed",
		"version", res.ServerVersion,
		"loader", res.LoaderVersion,
		"runtime", res.Runtime,
		"memory_gb", res.MemoryGB,
		"score", res.Score,
		"samples", res.Samples,
		"duration", total.String(),
	)
}
