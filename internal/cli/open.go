package cli

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
)

// startCommand launches a detached helper process. Tests replace it.
var startCommand = func(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() { _ = cmd.Wait() }()
	return nil
}

// openerFor returns the desktop command that opens target with the default
// application on goos.
func openerFor(goos, target string) (string, []string) {
	switch goos {
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler", target}
	case "darwin":
		return "open", []string{target}
	default:
		return "xdg-open", []string{target}
	}
}

func openURL(url string) error {
	name, args := openerFor(runtime.GOOS, url)
	if err := startCommand(name, args...); err != nil {
		return fmt.Errorf("open %s: %w", url, err)
	}
	return nil
}

// openDir creates dir if needed and shows it in the file manager.
func openDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	name, args := openerFor(runtime.GOOS, dir)
	if err := startCommand(name, args...); err != nil {
		return fmt.Errorf("open %s: %w", dir, err)
	}
	return nil
}
