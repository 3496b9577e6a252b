package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	survey "github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"
	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Bibi40k/subchunker/internal/config"
	"github.com/Bibi40k/subchunker/internal/jvm"
	"github.com/Bibi40k/subchunker/internal/plugins"
)

const (
	latestStableLabel = "latest stable (resolved at run time)"
	otherVersionLabel = "other..."
	versionChoices    = 15
	versionLookup     = 10 * time.Second
)

var stdinReader = bufio.NewReader(os.Stdin)
var ansiEscapeRE = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]`)
var caretEscapeRE = regexp.MustCompile(`\^\[\[[0-9;?]*[ -/]*[@-~]`)

// draftDir holds interrupted config edits.
var draftDir = "tmp"

func newConfigCmd() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Interactive config manager",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runConfigManager(path)
		},
	}

	cmd.Flags().StringVar(&path, "config", config.DefaultPaths[0], "Path to the config file to create or edit")
	return cmd
}

func runConfigManager(path string) error {
	fmt.Println()
	fmt.Println("\033[1msubchunker · Config Manager\033[0m")
	fmt.Println(strings.Repeat("─", 50))

	for {
		exists := fileExists(path)

		options := []string{}
		actions := map[string]func() error{}

		if exists {
			label := fmt.Sprintf("Edit %s", filepath.Base(path))
			options = append(options, label)
			actions[label] = func() error { return upsertConfig(path, true, "") }

			showLabel := fmt.Sprintf("Show %s", filepath.Base(path))
			options = append(options, showLabel)
			actions[showLabel] = func() error { return showConfig(path) }
		} else {
			label := fmt.Sprintf("[+] Create %s", filepath.Base(path))
			options = append(options, label)
			actions[label] = func() error { return upsertConfig(path, false, "") }
		}

		for _, d := range listDrafts(path) {
			draftPath := d
			resumeLabel := fmt.Sprintf("\033[33m[draft]\033[0m Resume %s", filepath.Base(draftPath))
			deleteLabel := fmt.Sprintf("\033[31m[draft]\033[0m Delete %s", filepath.Base(draftPath))
			options = append(options, resumeLabel, deleteLabel)
			actions[resumeLabel] = func() error { return upsertConfig(path, exists, draftPath) }
			actions[deleteLabel] = func() error {
				if err := os.Remove(draftPath); err != nil && !errors.Is(err, os.ErrNotExist) {
					return err
				}
				fmt.Printf("  \033[32m✓ Draft deleted:\033[0m %s\n\n", draftPath)
				return nil
			}
		}

		options = append(options, "Exit")

		var choice string
		prompt := &survey.Select{
			Message: "Select:",
			Options: options,
		}
		if err := survey.AskOne(prompt, &choice); err != nil {
			return nil // Ctrl+C / EOF
		}
		drainStdin()
		if choice == "Exit" {
			fmt.Println()
			return nil
		}
		if fn := actions[choice]; fn != nil {
			if err := fn(); err != nil {
				return err
			}
		}
	}
}

func showConfig(path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return &userError{msg: err.Error(), hint: "Choose Edit to fix the file."}
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	fmt.Printf("\n\033[90m# %s (with defaults and env overrides)\033[0m\n%s\n", path, data)
	return nil
}

func upsertConfig(path string, edit bool, draftPath string) error {
	cfg := config.Default()
	switch {
	case draftPath != "":
		if err := loadYAML(draftPath, &cfg); err != nil {
			return fmt.Errorf("load draft %s: %w", draftPath, err)
		}
		fmt.Printf("\n\033[33m⚠ Resuming draft:\033[0m %s\n", filepath.Base(draftPath))
	case edit:
		if err := loadYAML(path, &cfg); err != nil {
			return err
		}
	}
	if cfg.Plugins.Optional == nil {
		cfg.Plugins.Optional = plugins.DefaultCatalog().DefaultToggles()
	}

	fmt.Printf("\n%s: %s\n", map[bool]string{true: "Edit", false: "Create"}[edit], filepath.Base(path))
	fmt.Println(strings.Repeat("─", 40))
	draft := &draftSnapshot{}
	draft.record(cfg)
	stopInterruptHandler := startDraftInterruptHandler(path, draft.data)
	defer stopInterruptHandler()

	cfg.Workspace = askString("Workspace directory", cfg.Workspace)
	draft.record(cfg)

	game, loaders := lookupStableVersions(cfg)
	cfg.Server.Version = askVersion("Server version", game, cfg.Server.Version)
	draft.record(cfg)
	cfg.Server.LoaderVersion = askVersion("Loader version", loaders, cfg.Server.LoaderVersion)
	draft.record(cfg)

	cfg.Runtime.Distribution = askSelect("Java distribution", jvm.Names(), strings.ToLower(cfg.Runtime.Distribution))
	cfg.Runtime.Additional = askMultiSelect("Also install", otherDistributions(cfg.Runtime.Distribution), cfg.Runtime.Additional)
	draft.record(cfg)
	cfg.MemoryGB = askInt("Server memory (GB)", cfg.MemoryGB)
	draft.record(cfg)

	catalog := plugins.DefaultCatalog()
	chosen := askMultiSelect("Optional plugins", pluginNames(catalog), enabledPluginNames(catalog, cfg.Plugins.Optional))
	cfg.Plugins.Optional = togglesFromNames(catalog, chosen)
	draft.record(cfg)

	if askBool("Customize benchmark workload (advanced)", false) {
		cfg.Benchmark.Commands = askStringList("Console commands after startup", cfg.Benchmark.Commands)
		cfg.Benchmark.StopCommand = askString("Stop command", cfg.Benchmark.StopCommand)
		draft.record(cfg)
		cfg.Benchmark.Marker = askString("Progress line marker", cfg.Benchmark.Marker)
		cfg.Benchmark.ReadyMarker = askString("Server ready marker", cfg.Benchmark.ReadyMarker)
		cfg.Benchmark.ExtraArgs = askStringList("Extra JVM arguments", cfg.Benchmark.ExtraArgs)
		draft.record(cfg)
	}
	if askBool("Customize timeouts (advanced)", false) {
		cfg.Timeouts.HTTPSeconds = askInt("HTTP response timeout seconds", cfg.Timeouts.HTTPSeconds)
		cfg.Timeouts.TotalMinutes = askInt("Total run timeout minutes (0 = none)", cfg.Timeouts.TotalMinutes)
		draft.record(cfg)
	}

	if err := cfg.Validate(); err != nil {
		if draft, werr := writeDraft(path, mustYAML(cfg)); werr == nil {
			fmt.Printf("  \033[33m⚠ Not saved, draft kept:\033[0m %s\n", draft)
		}
		return &userError{msg: err.Error(), hint: "Resume the draft from the config manager to fix it."}
	}
	if err := config.Save(path, cfg); err != nil {
		return err
	}
	_ = cleanupDrafts(path)
	fmt.Printf("  \033[32m✓ Saved:\033[0m %s\n\n", path)
	return nil
}

// lookupStableVersions returns nil lists when the metadata service cannot be
// reached; the prompts then fall back to free text.
func lookupStableVersions(cfg config.Config) ([]string, []string) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	a := newApp(cfg, logger, appOptions{quiet: true})
	ctx, cancel := context.WithTimeout(context.Background(), versionLookup)
	defer cancel()

	game, err := a.servers.StableGameVersions(ctx)
	if err != nil {
		fmt.Printf("  \033[33m⚠ Could not list versions:\033[0m %v\n", err)
		return nil, nil
	}
	loaders, err := a.servers.StableLoaderVersions(ctx)
	if err != nil {
		fmt.Printf("  \033[33m⚠ Could not list loader versions:\033[0m %v\n", err)
		return game, nil
	}
	return game, loaders
}

// versionOptions puts the "latest" choice first, then the current value if
// the service no longer lists it, then up to versionChoices known versions.
func versionOptions(known []string, current string) []string {
	out := []string{latestStableLabel}
	listed := head(known, versionChoices)
	if current != "" && !contains(listed, current) {
		out = append(out, current)
	}
	out = append(out, listed...)
	return append(out, otherVersionLabel)
}

// versionFromChoice maps a selected option back to a config value.
func versionFromChoice(choice string) (string, bool) {
	switch choice {
	case latestStableLabel:
		return "", true
	case otherVersionLabel:
		return "", false
	}
	return choice, true
}

func askVersion(msg string, known []string, current string) string {
	if len(known) == 0 {
		return askString(msg+" (empty = latest stable)", current)
	}
	def := current
	if def == "" {
		def = latestStableLabel
	}
	choice := askSelect(msg, versionOptions(known, current), def)
	if v, ok := versionFromChoice(choice); ok {
		return v
	}
	return askString(msg, current)
}

func otherDistributions(primary string) []string {
	var out []string
	for _, n := range jvm.Names() {
		if !strings.EqualFold(n, primary) {
			out = append(out, n)
		}
	}
	return out
}

func pluginNames(c plugins.Catalog) []string {
	var out []string
	for _, p := range c.Optional() {
		out = append(out, p.Name)
	}
	return out
}

func enabledPluginNames(c plugins.Catalog, toggles map[string]bool) []string {
	var out []string
	for _, p := range c.Optional() {
		if toggles[p.ID] {
			out = append(out, p.Name)
		}
	}
	return out
}

// togglesFromNames records every optional plugin, on when its name was chosen.
func togglesFromNames(c plugins.Catalog, names []string) map[string]bool {
	out := make(map[string]bool, c.Len())
	for _, p := range c.Optional() {
		out[p.ID] = contains(names, p.Name)
	}
	return out
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func askSelect(msg string, options []string, def string) string {
	if !contains(options, def) && len(options) > 0 {
		def = options[0]
	}
	var choice string
	prompt := &survey.Select{Message: msg + ":", Options: options, Default: def}
	if err := survey.AskOne(prompt, &choice); err != nil {
		interruptSelf(err)
		return def
	}
	drainStdin()
	return choice
}

func askMultiSelect(msg string, options, defaults []string) []string {
	if len(options) == 0 {
		return nil
	}
	var valid []string
	for _, d := range defaults {
		if contains(options, d) {
			valid = append(valid, d)
		}
	}
	chosen := []string{}
	prompt := &survey.MultiSelect{Message: msg + ":", Options: options, Default: valid}
	if err := survey.AskOne(prompt, &chosen); err != nil {
		interruptSelf(err)
		return valid
	}
	drainStdin()
	return chosen
}

// interruptSelf turns a Ctrl+C inside a survey prompt into SIGINT so the
// draft handler runs.
func interruptSelf(err error) {
	if !errors.Is(err, terminal.InterruptErr) {
		return
	}
	if p, findErr := os.FindProcess(os.Getpid()); findErr == nil {
		_ = p.Signal(os.Interrupt)
	}
}

func askString(msg, def string) string {
	def = sanitizeSuggestion(def)
	prompt := ""
	if def != "" {
		prompt = fmt.Sprintf("  %s [\033[36m%s\033[0m]: ", msg, def)
	} else {
		prompt = fmt.Sprintf("  %s: ", msg)
	}
	s := readLineClean(prompt)
	if s == "" {
		return def
	}
	return s
}

func askInt(msg string, def int) int {
	for {
		raw := readLineClean(fmt.Sprintf("  %s [\033[36m%d\033[0m]: ", msg, def))
		if raw == "" {
			return def
		}
		v, err := strconv.Atoi(raw)
		if err == nil {
			return v
		}
		fmt.Println("  Invalid number.")
	}
}

func askBool(msg string, def bool) bool {
	hint := "[y/N]"
	if def {
		hint = "[Y/n]"
	}
	for {
		s := strings.ToLower(readLineClean(fmt.Sprintf("  %s %s: ", msg, hint)))
		switch s {
		case "":
			return def
		case "y", "yes":
			return true
		case "n", "no":
			return false
		}
		fmt.Println("  Please answer yes or no.")
	}
}

// askStringList reads a ';'-separated list. A single "-" clears it.
func askStringList(msg string, def []string) []string {
	defVal := strings.Join(def, "; ")
	prompt := fmt.Sprintf("  %s (';'-separated, '-' for none): ", msg)
	if defVal != "" {
		prompt = fmt.Sprintf("  %s (';'-separated, '-' for none) [\033[36m%s\033[0m]: ", msg, defVal)
	}
	raw := readLineClean(prompt)
	return parseStringList(raw, def)
}

func parseStringList(raw string, def []string) []string {
	switch strings.TrimSpace(raw) {
	case "":
		return def
	case "-":
		return []string{}
	}
	var out []string
	for _, part := range strings.Split(raw, ";") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func readLineClean(prompt string) string {
	return stripTerminalNoise(readLineEditable(prompt))
}

// stripTerminalNoise drops escape sequences and control characters that
// terminals sometimes echo into a read line.
func stripTerminalNoise(raw string) string {
	raw = ansiEscapeRE.ReplaceAllString(raw, "")
	raw = caretEscapeRE.ReplaceAllString(raw, "")
	raw = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, raw)
	return strings.TrimSpace(raw)
}

func readLineEditable(prompt string) string {
	rl, err := readline.NewEx(&readline.Config{Prompt: prompt})
	if err == nil {
		cleanup := func() {
			_ = rl.Close()
			// readline may have consumed bytes the bufio reader still buffers.
			stdinReader.Reset(os.Stdin)
		}
		line, err := rl.Readline()
		if err == nil {
			cleanup()
			return line
		}
		if errors.Is(err, readline.ErrInterrupt) {
			// Restore the terminal first; the interrupt handler exits without
			// running defers.
			cleanup()
			if p, findErr := os.FindProcess(os.Getpid()); findErr == nil {
				_ = p.Signal(os.Interrupt)
			}
			return ""
		}
		cleanup()
	}
	fmt.Print(prompt)
	raw, _ := stdinReader.ReadString('\n')
	return raw
}

func loadYAML(path string, out any) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(content, out); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func mustYAML(v any) []byte {
	data, _ := yaml.Marshal(v)
	return data
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// sanitizeSuggestion hides defaults that still reference unset variables.
func sanitizeSuggestion(in string) string {
	in = strings.TrimSpace(os.ExpandEnv(in))
	if strings.Contains(in, "${") {
		return ""
	}
	return in
}

func draftPath(targetPath string) string {
	return filepath.Join(draftDir, filepath.Base(targetPath)+".draft.yaml")
}

// listDrafts returns drafts for targetPath, newest first.
func listDrafts(targetPath string) []string {
	pattern := filepath.Join(draftDir, filepath.Base(targetPath)+".draft*.yaml")
	matches, err := filepath.Glob(pattern)
	if err != nil || len(matches) == 0 {
		return nil
	}
	sort.Slice(matches, func(i, j int) bool {
		ii, errI := os.Stat(matches[i])
		jj, errJ := os.Stat(matches[j])
		if errI != nil || errJ != nil {
			return matches[i] > matches[j]
		}
		return ii.ModTime().After(jj.ModTime())
	})
	return matches
}

func cleanupDrafts(targetPath string) error {
	for _, p := range listDrafts(targetPath) {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}

func writeDraft(targetPath string, data []byte) (string, error) {
	if err := os.MkdirAll(draftDir, 0o700); err != nil {
		return "", err
	}
	p := draftPath(targetPath)
	if err := os.WriteFile(p, data, 0o600); err != nil {
		return "", err
	}
	return p, nil
}

// draftSnapshot holds the last recorded state of a config being edited. The
// prompt goroutine records; the interrupt handler reads.
type draftSnapshot struct {
	mu  sync.Mutex
	buf []byte
}

func (d *draftSnapshot) record(cfg config.Config) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return
	}
	d.mu.Lock()
	d.buf = data
	d.mu.Unlock()
}

func (d *draftSnapshot) data() ([]byte, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.buf, d.buf != nil
}

// exitOnInterrupt ends the process after a draft is written.
var exitOnInterrupt = func() {
	restoreTTYOnExit()
	os.Exit(0)
}

// startDraftInterruptHandler writes a draft on Ctrl-C. The returned func
// stops the handler and waits for its goroutine to finish.
func startDraftInterruptHandler(targetPath string, dataFn func() ([]byte, bool)) func() {
	localSigCh := make(chan os.Signal, 1)
	signal.Notify(localSigCh, os.Interrupt)
	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		select {
		case <-done:
			return
		case <-localSigCh:
		}
		if data, ok := dataFn(); ok {
			if p, err := writeDraft(targetPath, data); err == nil {
				fmt.Printf("\n\033[33m⚠ Interrupted\033[0m\n")
				fmt.Printf("  Draft saved: %s\n", p)
			}
		}
		fmt.Println("Cancelled.")
		exitOnInterrupt()
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			signal.Stop(localSigCh)
			close(done)
		})
		<-exited
	}
}
