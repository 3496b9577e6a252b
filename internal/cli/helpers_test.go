package cli

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/klauspost/compress/zip"

	"github.com/Bibi40k/subchunker/internal/benchmark"
	"github.com/Bibi40k/subchunker/internal/pipeline"
	"github.com/Bibi40k/subchunker/internal/plugins"
	"github.com/Bibi40k/subchunker/internal/workspace"
)

const testVersion = "1.21.4"

type nopRuntimes struct{}

func (nopRuntimes) Ensure(context.Context, string) error { return nil }

type nopServers struct{}

func (nopServers) Ensure(context.Context, string, string) error { return nil }

func (nopServers) AcceptLicense(context.Context, string, string, int) error { return nil }

type scriptedBenchmark struct {
	samples []benchmark.Sample
	score   float64
}

func (s scriptedBenchmark) Run(_ context.Context, _, _ string, _ int, emit func(benchmark.Sample)) (benchmark.Result, error) {
	var rates uint64
	for _, x := range s.samples {
		emit(x)
		if x.Kind == benchmark.SampleRate {
			rates++
		}
	}
	return benchmark.Result{Score: s.score, Samples: rates}, nil
}

var testSamples = []benchmark.Sample{
	{Kind: benchmark.SampleProgress, Value: 0.5},
	{Kind: benchmark.SampleRate, Value: 10},
	{Kind: benchmark.SampleProgress, Value: 1},
	{Kind: benchmark.SampleRate, Value: 15},
}

func startTestRun(t *testing.T, layout workspace.Layout, toggles map[string]bool) (*pipeline.Run, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	c := &pipeline.Coordinator{
		Layout:    layout,
		Runtimes:  nopRuntimes{},
		Servers:   nopServers{},
		Benchmark: scriptedBenchmark{samples: testSamples, score: 12.5},
		Catalog:   plugins.DefaultCatalog(),
	}
	run, err := c.Start(ctx, &pipeline.Job{
		ServerVersion: testVersion,
		LoaderVersion: "0.16.10",
		Runtime:       "azul",
		MemoryGB:      2,
		Optional:      toggles,
	})
	if err != nil {
		t.Fatalf("start run: %v", err)
	}
	return run, cancel
}

func testLayout(t *testing.T) workspace.Layout {
	t.Helper()
	layout := workspace.New(t.TempDir())
	if err := layout.EnsureDirs(); err != nil {
		t.Fatal(err)
	}
	return layout
}

func writePluginJar(t *testing.T, dir, id string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	f, err := os.Create(filepath.Join(dir, id+".jar"))
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(f)
	w, err := zw.Create(plugins.ManifestName)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = w.Write([]byte(`{"schemaVersion": 1, "id": "` + id + `"}`))
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
}

// recordOpens swaps startCommand for one that records the opened targets.
func recordOpens(t *testing.T) func() []string {
	t.Helper()
	var (
		mu     sync.Mutex
		opened []string
	)
	orig := startCommand
	t.Cleanup(func() { startCommand = orig })
	startCommand = func(_ string, args ...string) error {
		mu.Lock()
		defer mu.Unlock()
		opened = append(opened, args[len(args)-1])
		return nil
	}
	return func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), opened...)
	}
}

func allOff() map[string]bool {
	out := map[string]bool{}
	for id := range plugins.DefaultCatalog().DefaultToggles() {
		out[id] = false
	}
	return out
}
