package supervisor

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Bibi40k/subchunker/internal/failure"
)

func writeScript(t *testing.T, dir, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell stand-in executables need a POSIX shell")
	}
	p := filepath.Join(dir, "fake-java")
	if err := os.WriteFile(p, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return p
}

func TestBuildArgs(t *testing.T) {
	got := BuildArgs(Spec{MemoryGB: 4, Args: []string{"-XX:+UseZGC"}, Headless: true})
	want := "-Xms4G -Xmx4G -XX:+UseZGC -jar fabric-server.jar nogui"
	if strings.Join(got, " ") != want {
		t.Fatalf("got %q, want %q", strings.Join(got, " "), want)
	}
	got = BuildArgs(Spec{MemoryGB: 2, Jar: "server.jar"})
	if strings.Join(got, " ") != "-Xms2G -Xmx2G -jar server.jar" {
		t.Fatalf("unexpected warm launch args %q", got)
	}
}

func TestLaunchInheritsOutputWithoutCapture(t *testing.T) {
	dir := t.TempDir()
	java := writeScript(t, dir, `echo "args: $*"; echo "eula=false" > eula.txt`)
	var out bytes.Buffer
	s := &Supervisor{Stdout: &out, Stderr: &out, Stdin: strings.NewReader("")}

	status, err := s.Launch(context.Background(), Spec{Dir: dir, Java: java, MemoryGB: 1})
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	if !status.Success() {
		t.Fatalf("unexpected exit %d", status.Code)
	}
	if !strings.Contains(out.String(), "args: -Xms1G -Xmx1G -jar fabric-server.jar") {
		t.Fatalf("unexpected output %q", out.String())
	}
	if _, err := os.Stat(filepath.Join(dir, "eula.txt")); err != nil {
		t.Fatalf("expected child to run in Dir: %v", err)
	}
}

func TestLaunchCapturesLinesAndDrivesConsole(t *testing.T) {
	dir := t.TempDir()
	java := writeScript(t, dir, `mkdir -p world
echo "Done (1.5s)! For help, type \"help\""
read cmd
echo "console: $cmd"
echo "last line"
`)
	var mu sync.Mutex
	var lines []string
	var console *Console
	spec := Spec{
		Dir:      dir,
		Java:     java,
		MemoryGB: 1,
		Headless: true,
		OnStart:  func(c *Console) { console = c },
		OnLine: func(line string) {
			mu.Lock()
			lines = append(lines, line)
			mu.Unlock()
			if strings.HasPrefix(line, "Done (") {
				_ = console.Send("chunky start")
			}
		},
		CleanupDir: filepath.Join(dir, "world"),
	}
	s := &Supervisor{Stderr: &bytes.Buffer{}}
	if _, err := s.Launch(context.Background(), spec); err != nil {
		t.Fatalf("Launch: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(lines) != 3 || lines[1] != "console: chunky start" || lines[2] != "last line" {
		t.Fatalf("unexpected lines %q", lines)
	}
	if _, err := os.Stat(filepath.Join(dir, "world")); !os.IsNotExist(err) {
		t.Fatalf("expected world dir removed after run")
	}
}

func TestLaunchMissingWorldIsFatal(t *testing.T) {
	dir := t.TempDir()
	java := writeScript(t, dir, `exit 0`)
	s := &Supervisor{Stdout: &bytes.Buffer{}, Stderr: &bytes.Buffer{}, Stdin: strings.NewReader("")}
	_, err := s.Launch(context.Background(), Spec{
		Dir:        dir,
		Java:       java,
		MemoryGB:   1,
		OnLine:     func(string) {},
		CleanupDir: filepath.Join(dir, "world"),
	})
	if !errors.Is(err, failure.ErrIO) {
		t.Fatalf("expected io failure for missing world, got %v", err)
	}
}

func TestLaunchMissingExecutable(t *testing.T) {
	s := &Supervisor{Stdout: &bytes.Buffer{}, Stderr: &bytes.Buffer{}}
	_, err := s.Launch(context.Background(), Spec{
		Dir:      t.TempDir(),
		Java:     filepath.Join(t.TempDir(), "no-such-java"),
		MemoryGB: 1,
	})
	if !errors.Is(err, failure.ErrLaunch) {
		t.Fatalf("expected launch failure, got %v", err)
	}
}

func TestLaunchNonZeroExitIsNotAnError(t *testing.T) {
	dir := t.TempDir()
	java := writeScript(t, dir, `exit 3`)
	s := &Supervisor{Stdout: &bytes.Buffer{}, Stderr: &bytes.Buffer{}, Stdin: strings.NewReader("")}
	status, err := s.Launch(context.Background(), Spec{Dir: dir, Java: java, MemoryGB: 1})
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	if status.Code != 3 || status.Success() {
		t.Fatalf("unexpected status %+v", status)
	}
}

func TestLaunchCancelSendsStopCommand(t *testing.T) {
	dir := t.TempDir()
	java := writeScript(t, dir, `echo ready
while read line; do
  if [ "$line" = "halt" ]; then echo "stopping"; exit 0; fi
done
exit 9
`)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var got []string
	var mu sync.Mutex
	spec := Spec{
		Dir:         dir,
		Java:        java,
		MemoryGB:    1,
		StopCommand: "halt",
		StopGrace:   5 * time.Second,
		OnStart:     func(*Console) {},
		OnLine: func(line string) {
			mu.Lock()
			got = append(got, line)
			mu.Unlock()
			if line == "ready" {
				cancel()
			}
		},
	}
	s := &Supervisor{Stderr: &bytes.Buffer{}}
	status, err := s.Launch(ctx, spec)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if status.Code != 0 {
		t.Fatalf("expected clean exit after stop command, got %d", status.Code)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 || got[1] != "stopping" {
		t.Fatalf("unexpected lines %q", got)
	}
}
