//go:build windows

package cli

// Windows consoles do not echo terminal reports into stdin.
func drainStdin() {}

func restoreTTYOnExit() {}
