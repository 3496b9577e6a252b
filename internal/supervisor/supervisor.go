// Package supervisor launches the server JVM as a child process, feeds its
// console, streams its output line by line and cleans up after benchmark runs.
package supervisor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Bibi40k/subchunker/internal/failure"
	"github.com/Bibi40k/subchunker/internal/workspace"
)

const (
	DefaultHeadlessFlag = "nogui"
	DefaultStopCommand  = "stop"
	DefaultStopGrace    = 30 * time.Second

	maxLineBytes = 1 << 20
)

// Spec describes one launch.
type Spec struct {
	// Dir is the server version directory and the child's working directory.
	Dir      string
	Java     string
	MemoryGB int
	Args     []string
	// Jar defaults to workspace.ServerJarName.
	Jar string
	// Headless appends HeadlessFlag (default "nogui") after the jar.
	Headless     bool
	HeadlessFlag string

	// OnLine turns on output capture: stdout is piped and every decoded line
	// is passed to OnLine from the reader goroutine. Without it stdout is
	// inherited.
	OnLine func(line string)
	// OnStart turns on console control: stdin is piped and the console is
	// handed over once the child has started. Without it stdin is inherited.
	OnStart func(console *Console)

	// StopCommand is written to the console when ctx is cancelled. Children
	// without a piped console get an interrupt instead.
	StopCommand string
	StopGrace   time.Duration

	// CleanupDir is removed after the child exits. It must exist.
	CleanupDir string
}

// BuildArgs returns the JVM argument vector:
// -Xms{n}G -Xmx{n}G <args...> -jar <jar> [headless flag].
func BuildArgs(s Spec) []string {
	jar := s.Jar
	if jar == "" {
		jar = workspace.ServerJarName
	}
	out := make([]string, 0, len(s.Args)+5)
	out = append(out, fmt.Sprintf("-Xms%dG", s.MemoryGB), fmt.Sprintf("-Xmx%dG", s.MemoryGB))
	out = append(out, s.Args...)
	out = append(out, "-jar", jar)
	if s.Headless {
		flag := s.HeadlessFlag
		if flag == "" {
			flag = DefaultHeadlessFlag
		}
		out = append(out, flag)
	}
	return out
}

type ExitStatus struct {
	Code     int
	Duration time.Duration
}

func (e ExitStatus) Success() bool { return e.Code == 0 }

// Launcher is implemented by Supervisor; provisioning code depends on it so
// tests can stand in for a JVM.
type Launcher interface {
	Launch(ctx context.Context, spec Spec) (ExitStatus, error)
}

// Supervisor runs children attached to the given standard streams. Nil streams
// fall back to the process's own.
type Supervisor struct {
	Logger *slog.Logger
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

func New(logger *slog.Logger) *Supervisor {
	return &Supervisor{Logger: logger}
}

func (s *Supervisor) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// Launch starts the child and blocks until it exits. A non-zero exit is
// reported through ExitStatus, not as an error. If ctx is cancelled the child
// is asked to stop and the context error is returned once it has exited.
func (s *Supervisor) Launch(ctx context.Context, spec Spec) (ExitStatus, error) {
	logger := s.logger()
	args := BuildArgs(spec)
	cmd := exec.Command(spec.Java, args...)
	cmd.Dir = spec.Dir
	cmd.Stderr = orWriter(s.Stderr, os.Stderr)

	var stdout io.ReadCloser
	var err error
	if spec.OnLine != nil {
		stdout, err = cmd.StdoutPipe()
		if err != nil {
			return ExitStatus{}, failure.Wrap(failure.KindLaunch, "pipe stdout", err)
		}
	} else {
		cmd.Stdout = orWriter(s.Stdout, os.Stdout)
	}

	var console *Console
	if spec.OnStart != nil {
		stdin, err := cmd.StdinPipe()
		if err != nil {
			return ExitStatus{}, failure.Wrap(failure.KindLaunch, "pipe stdin", err)
		}
		console = &Console{w: stdin}
	} else if s.Stdin != nil {
		cmd.Stdin = s.Stdin
	} else {
		cmd.Stdin = os.Stdin
	}

	logger.Info("launch server", "java", spec.Java, "dir", spec.Dir, "args", strings.Join(args, " "), "capture", spec.OnLine != nil)
	started := time.Now()
	if err := cmd.Start(); err != nil {
		logger.Error("launch failed", "java", spec.Java, "error", err)
		return ExitStatus{}, failure.Wrap(failure.KindLaunch, "start "+spec.Java, err)
	}

	done := make(chan struct{})
	go s.stopOnCancel(ctx, cmd, console, spec, done)

	if console != nil {
		spec.OnStart(console)
	}

	var g errgroup.Group
	if stdout != nil {
		g.Go(func() error { return readLines(stdout, spec.OnLine) })
	}
	readErr := g.Wait()
	waitErr := cmd.Wait()
	close(done)
	if console != nil {
		_ = console.Close()
	}

	status := ExitStatus{Code: exitCode(cmd, waitErr), Duration: time.Since(started)}
	logger.Info("server exited", "code", status.Code, "elapsed", status.Duration.Truncate(time.Millisecond).String())

	if waitErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			return status, failure.Wrap(failure.KindLaunch, "wait for "+spec.Java, waitErr)
		}
	}
	if readErr != nil {
		return status, failure.Wrap(failure.KindIO, "read server output", readErr)
	}

	if spec.CleanupDir != "" {
		if err := removeGenerated(spec.CleanupDir); err != nil {
			if ctx.Err() == nil {
				return status, err
			}
			logger.Warn("cleanup after cancelled run failed", "dir", spec.CleanupDir, "error", err)
		}
	}
	if ctx.Err() != nil {
		return status, ctx.Err()
	}
	return status, nil
}

func (s *Supervisor) stopOnCancel(ctx context.Context, cmd *exec.Cmd, console *Console, spec Spec, done <-chan struct{}) {
	select {
	case <-done:
		return
	case <-ctx.Done():
	}
	logger := s.logger()
	stop := spec.StopCommand
	if stop == "" {
		stop = DefaultStopCommand
	}
	if console != nil {
		logger.Info("stopping server", "command", stop)
		if err := console.Send(stop); err != nil {
			logger.Warn("send stop command failed", "error", err)
		}
	} else if runtime.GOOS != "windows" {
		logger.Info("interrupting server")
		_ = cmd.Process.Signal(os.Interrupt)
	} else {
		_ = cmd.Process.Kill()
		return
	}

	grace := spec.StopGrace
	if grace <= 0 {
		grace = DefaultStopGrace
	}
	t := time.NewTimer(grace)
	defer t.Stop()
	select {
	case <-done:
	case <-t.C:
		logger.Warn("server ignored stop request, killing", "grace", grace.String())
		_ = cmd.Process.Kill()
	}
}

func readLines(r io.Reader, fn func(string)) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64<<10), maxLineBytes)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		fn(strings.ToValidUTF8(line, "\uFFFD"))
	}
	if err := sc.Err(); err != nil {
		// Keep draining so the child never blocks on a full pipe.
		_, _ = io.Copy(io.Discard, r)
		return err
	}
	return nil
}

func removeGenerated(dir string) error {
	if _, err := os.Stat(dir); err != nil {
		return failure.Wrap(failure.KindIO, "locate generated world "+dir, err)
	}
	if err := os.RemoveAll(dir); err != nil {
		return failure.Wrap(failure.KindIO, "remove generated world "+dir, err)
	}
	return nil
}

func exitCode(cmd *exec.Cmd, waitErr error) int {
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	if waitErr != nil {
		return -1
	}
	return 0
}

func orWriter(w, fallback io.Writer) io.Writer {
	if w != nil {
		return w
	}
	return fallback
}

// Console is the write side of a child's stdin. Send is safe for concurrent
// use and becomes a no-op once the console is closed.
type Console struct {
	mu     sync.Mutex
	w      io.WriteCloser
	closed bool
}

// NewConsole wraps w, typically for tests.
func NewConsole(w io.WriteCloser) *Console { return &Console{w: w} }

func (c *Console) Send(command string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	_, err := io.WriteString(c.w, command+"\n")
	return err
}

func (c *Console) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.w.Close()
}
