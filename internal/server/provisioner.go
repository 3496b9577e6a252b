// Package server installs Fabric server builds and satisfies their license
// gate.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/Bibi40k/subchunker/internal/failure"
	"github.com/Bibi40k/subchunker/internal/fetch"
	"github.com/Bibi40k/subchunker/internal/supervisor"
	"github.com/Bibi40k/subchunker/internal/workspace"
)

const (
	DefaultMetaURL          = "https://meta.fabricmc.net"
	DefaultInstallerVersion = "1.1.0"

	licenseKey      = "eula="
	licenseAccepted = "eula=true"
)

type Provisioner struct {
	Layout           workspace.Layout
	Client           *fetch.Client
	Launcher         supervisor.Launcher
	MetaURL          string
	InstallerVersion string
	Logger           *slog.Logger
}

func (p *Provisioner) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

func (p *Provisioner) metaURL() string {
	if p.MetaURL != "" {
		return strings.TrimRight(p.MetaURL, "/")
	}
	return DefaultMetaURL
}

// JarURL is the metadata service's server launcher download for a game and
// loader version pair.
func (p *Provisioner) JarURL(game, loader string) string {
	installer := p.InstallerVersion
	if installer == "" {
		installer = DefaultInstallerVersion
	}
	return fmt.Sprintf("%s/v2/versions/loader/%s/%s/%s/server/jar", p.metaURL(), game, loader, installer)
}

// Ensure installs the server jar for version unless its directory exists.
// The jar is downloaded before the directory is created, so a failed
// download never leaves a directory that looks installed.
func (p *Provisioner) Ensure(ctx context.Context, version, loader string) error {
	dir := p.Layout.VersionDir(version)
	present, err := workspace.Exists(dir)
	if err != nil {
		return failure.Wrap(failure.KindIO, "stat "+dir, err)
	}
	if present {
		p.logger().Debug("server already installed", "version", version, "dir", dir)
		return nil
	}

	staging := p.Layout.VersionDir(version) + "-" + workspace.ServerJarName
	p.logger().Info("installing server", "version", version, "loader", loader)
	if _, err := p.Client.Download(ctx, p.JarURL(version, loader), staging, "server "+version); err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		_ = os.Remove(staging)
		return failure.Wrap(failure.KindIO, "create "+dir, err)
	}
	if err := os.Rename(staging, p.Layout.ServerJar(version)); err != nil {
		_ = os.Remove(staging)
		return failure.Wrap(failure.KindIO, "install server jar", err)
	}
	return nil
}

// AcceptLicense makes sure the version's license file exists and is
// accepted. When the file is missing the server is launched once, without
// output capture, so that it writes the file; an existing unaccepted file is
// rewritten directly.
func (p *Provisioner) AcceptLicense(ctx context.Context, version, distribution string, memoryGB int) error {
	path := p.Layout.LicenseFile(version)
	present, err := workspace.Exists(path)
	if err != nil {
		return failure.Wrap(failure.KindIO, "stat "+path, err)
	}
	if !present {
		p.logger().Info("first launch to generate license file", "version", version, "runtime", strings.ToLower(distribution))
		spec := supervisor.Spec{
			Dir:      p.Layout.VersionDir(version),
			Java:     p.Layout.JavaBinary(distribution),
			MemoryGB: memoryGB,
		}
		if _, err := p.Launcher.Launch(ctx, spec); err != nil {
			return err
		}
		present, err = workspace.Exists(path)
		if err != nil {
			return failure.Wrap(failure.KindIO, "stat "+path, err)
		}
		if !present {
			return failure.Newf(failure.KindLicenseMissing, "%s was not created by the first launch of %s", workspace.LicenseFileName, version)
		}
	}
	changed, err := RewriteLicense(path)
	if err != nil {
		return err
	}
	if changed {
		p.logger().Info("license accepted", "version", version, "file", path)
	}
	return nil
}

// RewriteLicense sets every line starting with "eula=" to "eula=true".
// Other lines, line order and line endings are preserved. It reports whether
// the file changed.
func RewriteLicense(path string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return false, failure.Wrap(failure.KindIO, "read "+path, err)
	}
	lines := strings.Split(string(data), "\n")
	changed := false
	for i, line := range lines {
		if !strings.HasPrefix(strings.TrimSpace(line), licenseKey) {
			continue
		}
		want := licenseAccepted
		if strings.HasSuffix(line, "\r") {
			want += "\r"
		}
		if line != want {
			lines[i] = want
			changed = true
		}
	}
	if !changed {
		return false, nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return false, failure.Wrap(failure.KindIO, "stat "+path, err)
	}
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")), info.Mode().Perm()); err != nil {
		return false, failure.Wrap(failure.KindIO, "write "+path, err)
	}
	return true, nil
}
