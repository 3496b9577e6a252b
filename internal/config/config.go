package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Bibi40k/subchunker/internal/benchmark"
	"github.com/Bibi40k/subchunker/internal/jvm"
	"github.com/Bibi40k/subchunker/internal/plugins"
	"github.com/Bibi40k/subchunker/internal/server"
	"github.com/Bibi40k/subchunker/internal/supervisor"
	"github.com/Bibi40k/subchunker/internal/workspace"
)

// DefaultPaths are searched in order when no --config is given.
var DefaultPaths = []string{"subchunker.yaml", "subchunker.yml"}

// Config holds subchunker settings.
type Config struct {
	Workspace string          `yaml:"workspace"`
	Server    ServerConfig    `yaml:"server"`
	Runtime   RuntimeConfig   `yaml:"runtime"`
	MemoryGB  int             `yaml:"memory_gb"`
	Plugins   PluginsConfig   `yaml:"plugins"`
	Benchmark BenchmarkConfig `yaml:"benchmark"`
	Metadata  MetadataConfig  `yaml:"metadata"`
	Timeouts  TimeoutsConfig  `yaml:"timeouts"`
}

var safeVersionTokenRE = regexp.MustCompile(`^[A-Za-z0-9._+-]+$`)

// ServerConfig selects the server build. Empty versions mean "latest stable".
type ServerConfig struct {
	Version          string `yaml:"version"`
	LoaderVersion    string `yaml:"loader_version"`
	InstallerVersion string `yaml:"installer_version"`
}

type RuntimeConfig struct {
	Distribution string   `yaml:"distribution"`
	Additional   []string `yaml:"additional"`
}

type PluginsConfig struct {
	// Optional toggles optional catalog plugins by ID. Missing IDs default on.
	Optional map[string]bool `yaml:"optional"`
}

type BenchmarkConfig struct {
	Marker       string   `yaml:"marker"`
	ReadyMarker  string   `yaml:"ready_marker"`
	Commands     []string `yaml:"commands"`
	StopCommand  string   `yaml:"stop_command"`
	ExtraArgs    []string `yaml:"extra_args"`
	HeadlessFlag string   `yaml:"headless_flag"`
}

type MetadataConfig struct {
	FabricMetaURL string `yaml:"fabric_meta_url"`
}

type TimeoutsConfig struct {
	HTTPSeconds    int `yaml:"http_seconds"`
	PollIntervalMS int `yaml:"poll_interval_ms"`
	TotalMinutes   int `yaml:"total_minutes"`
}

func (t TimeoutsConfig) HTTPDuration() time.Duration {
	return time.Duration(t.HTTPSeconds) * time.Second
}

func (t TimeoutsConfig) PollInterval() time.Duration {
	return time.Duration(t.PollIntervalMS) * time.Millisecond
}

// TotalDuration is zero when runs are unbounded.
func (t TimeoutsConfig) TotalDuration() time.Duration {
	return time.Duration(t.TotalMinutes) * time.Minute
}

func Default() Config {
	return Config{
		Workspace: workspace.DefaultRoot,
		Server:    ServerConfig{InstallerVersion: server.DefaultInstallerVersion},
		Runtime:   RuntimeConfig{Distribution: "azul"},
		MemoryGB:  4,
		Plugins:   PluginsConfig{Optional: plugins.DefaultCatalog().DefaultToggles()},
		Benchmark: BenchmarkConfig{
			Marker:       benchmark.DefaultMarker,
			ReadyMarker:  benchmark.DefaultReadyMarker,
			Commands:     append([]string(nil), benchmark.DefaultCommands...),
			StopCommand:  supervisor.DefaultStopCommand,
			HeadlessFlag: supervisor.DefaultHeadlessFlag,
		},
		Metadata: MetadataConfig{FabricMetaURL: server.DefaultMetaURL},
		Timeouts: TimeoutsConfig{
			HTTPSeconds:    30,
			PollIntervalMS: 50,
		},
	}
}

// FindDefault returns the first of DefaultPaths that exists.
func FindDefault() (string, bool) {
	for _, p := range DefaultPaths {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p, true
		}
	}
	return "", false
}

// LoadOrDefault loads path, or the first default file found, or the built-in
// defaults when path is empty and no file exists. Env overrides apply in all
// cases. It returns the file actually used ("" for built-in defaults).
func LoadOrDefault(path string) (Config, string, error) {
	if path == "" {
		if found, ok := FindDefault(); ok {
			path = found
		}
	}
	if path != "" {
		cfg, err := Load(path)
		return cfg, path, err
	}
	cfg := Default()
	if err := applyEnvOverrides(&cfg); err != nil {
		return Config{}, "", err
	}
	expandHomePaths(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, "", err
	}
	return cfg, "", nil
}

func Load(path string) (Config, error) {
	cfg := Default()

	content, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	expanded := os.ExpandEnv(string(content))
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return Config{}, err
	}
	expandHomePaths(&cfg)
	normalizePluginKeys(&cfg)
	fillPluginDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("SUBCHUNKER_WORKSPACE"); v != "" {
		cfg.Workspace = v
	}
	if v := os.Getenv("SUBCHUNKER_SERVER_VERSION"); v != "" {
		cfg.Server.Version = v
	}
	if v := os.Getenv("SUBCHUNKER_LOADER_VERSION"); v != "" {
		cfg.Server.LoaderVersion = v
	}
	if v := os.Getenv("SUBCHUNKER_RUNTIME"); v != "" {
		cfg.Runtime.Distribution = v
	}
	if v := os.Getenv("SUBCHUNKER_MEMORY_GB"); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("SUBCHUNKER_MEMORY_GB must be an integer: %w", err)
		}
		cfg.MemoryGB = n
	}
	return nil
}

// normalizePluginKeys lower-cases optional plugin ids so they match catalog
// ids. When two spellings of one id disagree, off wins.
func normalizePluginKeys(cfg *Config) {
	if len(cfg.Plugins.Optional) == 0 {
		return
	}
	out := make(map[string]bool, len(cfg.Plugins.Optional))
	for id, on := range cfg.Plugins.Optional {
		key := strings.ToLower(strings.TrimSpace(id))
		if prev, seen := out[key]; seen {
			on = prev && on
		}
		out[key] = on
	}
	cfg.Plugins.Optional = out
}

// fillPluginDefaults turns on optional plugins the file does not mention.
func fillPluginDefaults(cfg *Config) {
	if cfg.Plugins.Optional == nil {
		cfg.Plugins.Optional = map[string]bool{}
	}
	for id, on := range plugins.DefaultCatalog().DefaultToggles() {
		if _, set := cfg.Plugins.Optional[id]; !set {
			cfg.Plugins.Optional[id] = on
		}
	}
}

func expandHomePaths(cfg *Config) {
	cfg.Workspace = expandHome(cfg.Workspace)
}

func expandHome(path string) string {
	p := strings.TrimSpace(path)
	if p == "" || !strings.HasPrefix(p, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return path
	}
	if p == "~" {
		return home
	}
	if strings.HasPrefix(p, "~/") {
		return filepath.Join(home, strings.TrimPrefix(p, "~/"))
	}
	return path
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Workspace) == "" {
		return fmt.Errorf("workspace is required")
	}
	if v := c.Server.Version; v != "" && !isSafeVersionToken(v) {
		return fmt.Errorf("server.version has invalid characters")
	}
	if v := c.Server.LoaderVersion; v != "" && !isSafeVersionToken(v) {
		return fmt.Errorf("server.loader_version has invalid characters")
	}
	if v := c.Server.InstallerVersion; v != "" && !isSafeVersionToken(v) {
		return fmt.Errorf("server.installer_version has invalid characters")
	}
	if strings.TrimSpace(c.Runtime.Distribution) == "" {
		return fmt.Errorf("runtime.distribution is required")
	}
	for _, d := range append([]string{c.Runtime.Distribution}, c.Runtime.Additional...) {
		if !jvm.Known(d) {
			return fmt.Errorf("runtime distribution %q is not supported (expected one of: %s)", d, strings.Join(jvm.Names(), ", "))
		}
	}
	if c.MemoryGB <= 0 {
		return fmt.Errorf("memory_gb must be > 0")
	}
	catalog := plugins.DefaultCatalog()
	var unknown []error
	for id := range c.Plugins.Optional {
		p, ok := catalog.Lookup(id)
		if !ok {
			unknown = append(unknown, fmt.Errorf("plugins.optional: unknown plugin %q", id))
			continue
		}
		if p.Required {
			unknown = append(unknown, fmt.Errorf("plugins.optional: %q is required and cannot be toggled", id))
		}
	}
	if err := errors.Join(unknown...); err != nil {
		return err
	}
	if strings.TrimSpace(c.Benchmark.Marker) == "" {
		return fmt.Errorf("benchmark.marker is required")
	}
	if strings.TrimSpace(c.Benchmark.ReadyMarker) == "" {
		return fmt.Errorf("benchmark.ready_marker is required")
	}
	if strings.TrimSpace(c.Benchmark.StopCommand) == "" {
		return fmt.Errorf("benchmark.stop_command is required")
	}
	if u := strings.TrimSpace(c.Metadata.FabricMetaURL); u == "" ||
		!(strings.HasPrefix(u, "https://") || strings.HasPrefix(u, "http://")) {
		return fmt.Errorf("metadata.fabric_meta_url must be an http(s) URL")
	}
	if c.Timeouts.HTTPSeconds <= 0 {
		return fmt.Errorf("timeouts.http_seconds must be > 0")
	}
	if c.Timeouts.PollIntervalMS <= 0 {
		return fmt.Errorf("timeouts.poll_interval_ms must be > 0")
	}
	if c.Timeouts.TotalMinutes < 0 {
		return fmt.Errorf("timeouts.total_minutes must be >= 0")
	}
	return nil
}

func isSafeVersionToken(v string) bool {
	return safeVersionTokenRE.MatchString(v)
}

// Save writes cfg as YAML.
func Save(path string, cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}
