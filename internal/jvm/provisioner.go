package jvm

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/Bibi40k/subchunker/internal/archive"
	"github.com/Bibi40k/subchunker/internal/failure"
	"github.com/Bibi40k/subchunker/internal/fetch"
	"github.com/Bibi40k/subchunker/internal/workspace"
)

// Provisioner installs runtimes under Layout.Runtimes().
type Provisioner struct {
	Layout   workspace.Layout
	Client   *fetch.Client
	Platform Platform
	Logger   *slog.Logger
}

func (p *Provisioner) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

// Ensure makes the named distribution available. It is a no-op when the
// runtime directory already exists. name must satisfy Known; the CLI and
// config validation guard this, so an unknown name panics.
//
// A failure after extraction started leaves the partial directory behind and
// the next Ensure will treat it as installed; remove it by hand to retry.
func (p *Provisioner) Ensure(ctx context.Context, name string) error {
	key := strings.ToLower(name)
	resolve, ok := distributions[key]
	if !ok {
		panic(fmt.Sprintf("jvm: unknown distribution %q", name))
	}

	dir := p.Layout.RuntimeDir(key)
	present, err := workspace.Exists(dir)
	if err != nil {
		return failure.Wrap(failure.KindIO, "stat "+dir, err)
	}
	if present {
		p.logger().Debug("runtime already installed", "distribution", key, "dir", dir)
		return nil
	}

	plat := p.Platform
	if plat.OS == "" {
		plat = HostPlatform()
	}
	url, err := resolve(ctx, p.Client, plat)
	if err != nil {
		return err
	}
	p.logger().Info("installing runtime", "distribution", key, "os", plat.OS, "arch", plat.Arch, "url", url)

	zipPath := p.Layout.RuntimeArchive(key)
	if _, err := p.Client.Download(ctx, url, zipPath, key+" runtime"); err != nil {
		return err
	}
	if err := archive.ExtractStripped(zipPath, dir); err != nil {
		return fmt.Errorf("unpack %s runtime: %w", key, err)
	}
	if err := os.Remove(zipPath); err != nil {
		return failure.Wrap(failure.KindIO, "remove "+zipPath, err)
	}
	p.logger().Info("runtime installed", "distribution", key, "java", p.Layout.JavaBinary(key))
	return nil
}
