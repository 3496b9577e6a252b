package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid defaults, got error: %v", err)
	}
	if cfg.Server.Version != "" || cfg.Server.LoaderVersion != "" {
		t.Fatalf("defaults must resolve the latest stable versions at run time")
	}
	if !cfg.Plugins.Optional["lithium"] || len(cfg.Plugins.Optional) != 7 {
		t.Fatalf("expected every optional plugin on by default: %v", cfg.Plugins.Optional)
	}
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "subchunker.yaml")
	content := []byte(`
workspace: /srv/bench
server:
  version: "1.21.4"
  loader_version: "0.16.10"
runtime:
  distribution: GraalVM
  additional: [adoptium]
memory_gb: 8
plugins:
  optional:
    c2me: false
benchmark:
  commands: ["chunky radius 500", "chunky start"]
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write cfg: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Workspace != "/srv/bench" || cfg.Server.Version != "1.21.4" || cfg.MemoryGB != 8 {
		t.Fatalf("file values not applied: %#v", cfg)
	}
	if cfg.Runtime.Distribution != "GraalVM" || len(cfg.Runtime.Additional) != 1 {
		t.Fatalf("runtime not applied: %#v", cfg.Runtime)
	}
	if cfg.Plugins.Optional["c2me"] || !cfg.Plugins.Optional["lithium"] {
		t.Fatalf("plugin toggles not merged: %v", cfg.Plugins.Optional)
	}
	if cfg.Benchmark.Commands[0] != "chunky radius 500" || cfg.Benchmark.StopCommand != "stop" {
		t.Fatalf("benchmark not merged: %#v", cfg.Benchmark)
	}
	if cfg.Server.InstallerVersion != "1.1.0" || cfg.Timeouts.PollIntervalMS != 50 {
		t.Fatalf("defaults lost: %#v", cfg)
	}
}

func TestLoadMatchesPluginKeysCaseInsensitively(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "subchunker.yaml")
	if err := os.WriteFile(path, []byte("plugins:\n  optional:\n    Lithium: false\n    \" C2ME \": true\n"), 0o600); err != nil {
		t.Fatalf("write cfg: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Plugins.Optional["lithium"] {
		t.Fatalf("lithium opt-out ignored: %v", cfg.Plugins.Optional)
	}
	if !cfg.Plugins.Optional["c2me"] {
		t.Fatalf("c2me toggle lost: %v", cfg.Plugins.Optional)
	}
	if _, ok := cfg.Plugins.Optional["Lithium"]; ok {
		t.Fatalf("mixed-case key kept: %v", cfg.Plugins.Optional)
	}
	if len(cfg.Plugins.Optional) != 7 {
		t.Fatalf("expected one entry per optional plugin: %v", cfg.Plugins.Optional)
	}
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.yaml")
	content := []byte(`
workspace: ${BENCH_ROOT}/subchunker
server:
  version: "1.20.1"
memory_gb: 2
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write cfg: %v", err)
	}

	t.Setenv("BENCH_ROOT", "/data")
	t.Setenv("SUBCHUNKER_SERVER_VERSION", "1.21.4")
	t.Setenv("SUBCHUNKER_LOADER_VERSION", "0.16.10")
	t.Setenv("SUBCHUNKER_RUNTIME", "adoptium")
	t.Setenv("SUBCHUNKER_MEMORY_GB", "6")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Workspace != "/data/subchunker" {
		t.Fatalf("env expansion not applied: %q", cfg.Workspace)
	}
	if cfg.Server.Version != "1.21.4" || cfg.Server.LoaderVersion != "0.16.10" {
		t.Fatalf("version overrides not applied: %#v", cfg.Server)
	}
	if cfg.Runtime.Distribution != "adoptium" || cfg.MemoryGB != 6 {
		t.Fatalf("runtime/memory overrides not applied: %#v", cfg)
	}

	t.Setenv("SUBCHUNKER_WORKSPACE", "/override")
	cfg, err = Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Workspace != "/override" {
		t.Fatalf("workspace override not applied: %q", cfg.Workspace)
	}
}

func TestLoadRejectsBadMemoryEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	if err := os.WriteFile(path, []byte("memory_gb: 2\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SUBCHUNKER_MEMORY_GB", "lots")
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "SUBCHUNKER_MEMORY_GB") {
		t.Fatalf("expected memory env error, got %v", err)
	}
}

func TestLoadExpandsHomePaths(t *testing.T) {
	dir := t.TempDir()
	home := filepath.Join(dir, "home")
	if err := os.MkdirAll(home, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", home)

	path := filepath.Join(dir, "cfg.yaml")
	if err := os.WriteFile(path, []byte("workspace: ~/subchunker\n"), 0o600); err != nil {
		t.Fatalf("write cfg: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Workspace != filepath.Join(home, "subchunker") {
		t.Fatalf("workspace not expanded: %q", cfg.Workspace)
	}
}

func TestLoadOrDefaultSearchesDefaultPaths(t *testing.T) {
	dir := t.TempDir()
	orig := DefaultPaths
	t.Cleanup(func() { DefaultPaths = orig })
	DefaultPaths = []string{filepath.Join(dir, "subchunker.yaml"), filepath.Join(dir, "subchunker.yml")}

	cfg, used, err := LoadOrDefault("")
	if err != nil {
		t.Fatalf("LoadOrDefault without files: %v", err)
	}
	if used != "" || cfg.MemoryGB != Default().MemoryGB {
		t.Fatalf("expected built-in defaults, got used=%q", used)
	}

	if err := os.WriteFile(DefaultPaths[1], []byte("memory_gb: 12\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, used, err = LoadOrDefault("")
	if err != nil {
		t.Fatalf("LoadOrDefault: %v", err)
	}
	if used != DefaultPaths[1] || cfg.MemoryGB != 12 {
		t.Fatalf("expected yml fallback, got used=%q mem=%d", used, cfg.MemoryGB)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "subchunker.yaml")
	cfg := Default()
	cfg.Server.Version = "1.21.4"
	cfg.Plugins.Optional["scalablelux"] = false
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Server.Version != "1.21.4" || got.Plugins.Optional["scalablelux"] {
		t.Fatalf("saved values lost: %#v", got)
	}
}

func TestTimeoutDurations(t *testing.T) {
	tm := TimeoutsConfig{HTTPSeconds: 3, PollIntervalMS: 50, TotalMinutes: 2}
	if tm.HTTPDuration() != 3*time.Second {
		t.Fatalf("unexpected http duration")
	}
	if tm.PollInterval() != 50*time.Millisecond {
		t.Fatalf("unexpected poll interval")
	}
	if tm.TotalDuration() != 2*time.Minute {
		t.Fatalf("unexpected total duration")
	}
}

func TestValidateErrorBranches(t *testing.T) {
	tests := []struct {
		name string
		mut  func(*Config)
	}{
		{name: "missing workspace", mut: func(c *Config) { c.Workspace = " " }},
		{name: "unsafe server version", mut: func(c *Config) { c.Server.Version = "1.21;rm -rf /" }},
		{name: "unsafe loader version", mut: func(c *Config) { c.Server.LoaderVersion = "0.16/../x" }},
		{name: "unknown runtime", mut: func(c *Config) { c.Runtime.Distribution = "openj9" }},
		{name: "unknown additional runtime", mut: func(c *Config) { c.Runtime.Additional = []string{"corretto"} }},
		{name: "zero memory", mut: func(c *Config) { c.MemoryGB = 0 }},
		{name: "unknown plugin", mut: func(c *Config) { c.Plugins.Optional = map[string]bool{"optifine": true} }},
		{name: "required plugin toggled", mut: func(c *Config) { c.Plugins.Optional = map[string]bool{"chunky": false} }},
		{name: "missing marker", mut: func(c *Config) { c.Benchmark.Marker = "" }},
		{name: "missing ready marker", mut: func(c *Config) { c.Benchmark.ReadyMarker = "" }},
		{name: "missing stop command", mut: func(c *Config) { c.Benchmark.StopCommand = "" }},
		{name: "bad meta url", mut: func(c *Config) { c.Metadata.FabricMetaURL = "meta.fabricmc.net" }},
		{name: "invalid http timeout", mut: func(c *Config) { c.Timeouts.HTTPSeconds = 0 }},
		{name: "invalid poll interval", mut: func(c *Config) { c.Timeouts.PollIntervalMS = 0 }},
		{name: "negative total minutes", mut: func(c *Config) { c.Timeouts.TotalMinutes = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mut(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}
