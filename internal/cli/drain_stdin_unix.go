//go:build !windows

package cli

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
	"time"
)

// stdinQuietWindow is how long stdin must stay silent before a drain ends.
const stdinQuietWindow = 80 * time.Millisecond

// drainStdin discards bytes a prompt left behind on the terminal (cursor
// position reports and the like) so the next prompt starts clean.
func drainStdin() {
	fd := int(os.Stdin.Fd())
	defer stdinReader.Reset(os.Stdin)
	if err := syscall.SetNonblock(fd, true); err != nil {
		return
	}
	defer func() { _ = syscall.SetNonblock(fd, false) }()

	buf := make([]byte, 256)
	quietUntil := time.Now().Add(stdinQuietWindow)
	for time.Now().Before(quietUntil) {
		n, err := syscall.Read(fd, buf)
		switch {
		case n > 0:
			quietUntil = time.Now().Add(stdinQuietWindow)
		case errors.Is(err, syscall.EAGAIN), errors.Is(err, syscall.EWOULDBLOCK):
			time.Sleep(10 * time.Millisecond)
		default:
			return
		}
	}
}

// restoreTTYOnExit puts the terminal back into cooked mode before a signal
// handler exits the process.
func restoreTTYOnExit() {
	_ = syscall.SetNonblock(int(os.Stdin.Fd()), false)
	stdinReader.Reset(os.Stdin)

	cmd := exec.Command("stty", "sane")
	cmd.Stdin = os.Stdin
	_ = cmd.Run()
}
