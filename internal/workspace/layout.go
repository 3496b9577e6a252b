package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

const (
	DefaultRoot = "subchunker"

	ServerJarName   = "fabric-server.jar"
	LicenseFileName = "eula.txt"
	PluginsDirName  = "mods"
	WorldDirName    = "world"

	serversDirName  = "server"
	runtimesDirName = "java"
	dataDirName     = "data"
)

// Layout resolves every path the pipeline touches from a single root:
//
//	<root>/server/<version>/{fabric-server.jar,eula.txt,mods/,world/}
//	<root>/java/<distribution>/bin/java
//	<root>/data/
type Layout struct {
	Root string
}

func New(root string) Layout {
	if strings.TrimSpace(root) == "" {
		root = DefaultRoot
	}
	return Layout{Root: filepath.Clean(root)}
}

func (l Layout) Servers() string  { return filepath.Join(l.Root, serversDirName) }
func (l Layout) Runtimes() string { return filepath.Join(l.Root, runtimesDirName) }
func (l Layout) Data() string     { return filepath.Join(l.Root, dataDirName) }

func (l Layout) VersionDir(version string) string {
	return filepath.Join(l.Servers(), version)
}

func (l Layout) ServerJar(version string) string {
	return filepath.Join(l.VersionDir(version), ServerJarName)
}

func (l Layout) LicenseFile(version string) string {
	return filepath.Join(l.VersionDir(version), LicenseFileName)
}

func (l Layout) PluginsDir(version string) string {
	return filepath.Join(l.VersionDir(version), PluginsDirName)
}

func (l Layout) WorldDir(version string) string {
	return filepath.Join(l.VersionDir(version), WorldDirName)
}

// RuntimeDir is keyed by the lower-cased distribution name.
func (l Layout) RuntimeDir(distribution string) string {
	return filepath.Join(l.Runtimes(), strings.ToLower(distribution))
}

func (l Layout) RuntimeArchive(distribution string) string {
	return filepath.Join(l.Runtimes(), strings.ToLower(distribution)+".zip")
}

func (l Layout) JavaBinary(distribution string) string {
	name := "java"
	if runtime.GOOS == "windows" {
		name = "javaw.exe"
	}
	return filepath.Join(l.RuntimeDir(distribution), "bin", name)
}

// EnsureDirs creates the root and its three subtrees. It is a no-op when they
// already exist.
func (l Layout) EnsureDirs() error {
	for _, dir := range []string{l.Root, l.Servers(), l.Runtimes(), l.Data()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create workspace dir %s: %w", dir, err)
		}
	}
	return nil
}

// Exists reports whether path exists. Stat errors other than "not exist" are
// returned so permission problems are not mistaken for a missing install.
func Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}
