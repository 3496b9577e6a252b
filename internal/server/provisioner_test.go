package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Bibi40k/subchunker/internal/failure"
	"github.com/Bibi40k/subchunker/internal/fetch"
	"github.com/Bibi40k/subchunker/internal/supervisor"
	"github.com/Bibi40k/subchunker/internal/workspace"
)

type fakeLauncher struct {
	calls int
	run   func(spec supervisor.Spec) error
}

func (f *fakeLauncher) Launch(_ context.Context, spec supervisor.Spec) (supervisor.ExitStatus, error) {
	f.calls++
	if f.run != nil {
		if err := f.run(spec); err != nil {
			return supervisor.ExitStatus{}, err
		}
	}
	return supervisor.ExitStatus{}, nil
}

func TestJarURL(t *testing.T) {
	p := &Provisioner{}
	want := "https://meta.fabricmc.net/v2/versions/loader/1.21.4/0.16.10/1.1.0/server/jar"
	if got := p.JarURL("1.21.4", "0.16.10"); got != want {
		t.Fatalf("got %q", got)
	}
	p = &Provisioner{MetaURL: "http://meta.local/", InstallerVersion: "1.0.3"}
	if got := p.JarURL("1.20.1", "0.15.0"); got != "http://meta.local/v2/versions/loader/1.20.1/0.15.0/1.0.3/server/jar" {
		t.Fatalf("got %q", got)
	}
}

func TestEnsureDownloadsOnceIntoVersionDir(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if r.URL.Path != "/v2/versions/loader/1.21.4/0.16.10/1.1.0/server/jar" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte("PK-jar"))
	}))
	defer srv.Close()

	layout := workspace.New(t.TempDir())
	p := &Provisioner{Layout: layout, Client: fetch.New(time.Second, nil), MetaURL: srv.URL}
	for i := 0; i < 2; i++ {
		if err := p.Ensure(context.Background(), "1.21.4", "0.16.10"); err != nil {
			t.Fatalf("Ensure pass %d: %v", i+1, err)
		}
	}
	data, err := os.ReadFile(layout.ServerJar("1.21.4"))
	if err != nil || string(data) != "PK-jar" {
		t.Fatalf("unexpected jar (err=%v data=%q)", err, data)
	}
	if hits != 1 {
		t.Fatalf("expected single download, got %d", hits)
	}
}

func TestEnsureFailedDownloadLeavesNoVersionDir(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	layout := workspace.New(t.TempDir())
	p := &Provisioner{Layout: layout, Client: fetch.New(time.Second, nil), MetaURL: srv.URL}
	err := p.Ensure(context.Background(), "9.9.9", "0.0.1")
	if !errors.Is(err, failure.ErrDownload) {
		t.Fatalf("expected download error, got %v", err)
	}
	if _, statErr := os.Stat(layout.VersionDir("9.9.9")); !os.IsNotExist(statErr) {
		t.Fatalf("version dir must not exist after failed download")
	}
}

func TestAcceptLicenseWarmLaunch(t *testing.T) {
	layout := workspace.New(t.TempDir())
	if err := os.MkdirAll(layout.VersionDir("1.21.4"), 0o755); err != nil {
		t.Fatal(err)
	}
	l := &fakeLauncher{run: func(spec supervisor.Spec) error {
		if spec.OnLine != nil || spec.Headless || len(spec.Args) != 0 {
			t.Errorf("warm launch must not capture output or add args: %+v", spec)
		}
		content := "#By changing the setting below to TRUE you are indicating your agreement to our EULA.\n#Mon Jan 01 00:00:00 UTC 2026\neula=false\n"
		return os.WriteFile(filepath.Join(spec.Dir, workspace.LicenseFileName), []byte(content), 0o644)
	}}
	p := &Provisioner{Layout: layout, Launcher: l}
	if err := p.AcceptLicense(context.Background(), "1.21.4", "Azul", 2); err != nil {
		t.Fatalf("AcceptLicense: %v", err)
	}
	data, _ := os.ReadFile(layout.LicenseFile("1.21.4"))
	if !strings.Contains(string(data), "\neula=true\n") {
		t.Fatalf("license not accepted: %q", data)
	}

	if err := p.AcceptLicense(context.Background(), "1.21.4", "Azul", 2); err != nil {
		t.Fatalf("second AcceptLicense: %v", err)
	}
	if l.calls != 1 {
		t.Fatalf("expected one warm launch, got %d", l.calls)
	}
}

func TestAcceptLicenseMissingAfterLaunch(t *testing.T) {
	layout := workspace.New(t.TempDir())
	p := &Provisioner{Layout: layout, Launcher: &fakeLauncher{}}
	err := p.AcceptLicense(context.Background(), "1.21.4", "azul", 2)
	if !errors.Is(err, failure.ErrLicenseMissing) {
		t.Fatalf("expected license missing, got %v", err)
	}
}

func TestAcceptLicenseRewritesExistingWithoutLaunch(t *testing.T) {
	layout := workspace.New(t.TempDir())
	if err := os.MkdirAll(layout.VersionDir("1.21.4"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(layout.LicenseFile("1.21.4"), []byte("eula=false\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	l := &fakeLauncher{}
	p := &Provisioner{Layout: layout, Launcher: l}
	if err := p.AcceptLicense(context.Background(), "1.21.4", "azul", 2); err != nil {
		t.Fatalf("AcceptLicense: %v", err)
	}
	if l.calls != 0 {
		t.Fatalf("expected no launch, got %d", l.calls)
	}
}

func TestRewriteLicensePreservesOtherLines(t *testing.T) {
	in := "#comment one\r\n#Thu Oct 16 2026\r\neula=false\r\nmotd=eula=false\r\n\r\nlast"
	path := filepath.Join(t.TempDir(), "eula.txt")
	if err := os.WriteFile(path, []byte(in), 0o600); err != nil {
		t.Fatal(err)
	}
	changed, err := RewriteLicense(path)
	if err != nil || !changed {
		t.Fatalf("RewriteLicense changed=%v err=%v", changed, err)
	}
	out, _ := os.ReadFile(path)
	inLines := strings.Split(in, "\n")
	outLines := strings.Split(string(out), "\n")
	if len(inLines) != len(outLines) {
		t.Fatalf("line count changed: %d -> %d", len(inLines), len(outLines))
	}
	diffs := 0
	for i := range inLines {
		if inLines[i] != outLines[i] {
			diffs++
			if outLines[i] != "eula=true\r" {
				t.Fatalf("unexpected rewritten line %q", outLines[i])
			}
		}
	}
	if diffs != 1 {
		t.Fatalf("expected exactly one changed line, got %d", diffs)
	}

	changed, err = RewriteLicense(path)
	if err != nil || changed {
		t.Fatalf("second rewrite should be a no-op, changed=%v err=%v", changed, err)
	}
	info, _ := os.Stat(path)
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("expected mode preserved, got %v", info.Mode().Perm())
	}
}

func TestStableVersionsAndResolve(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v2/versions/game":
			_, _ = w.Write([]byte(`[{"version":"25w10a","stable":false},{"version":"1.21.4","stable":true},{"version":"1.21.3","stable":true}]`))
		case "/v2/versions/loader":
			_, _ = w.Write([]byte(`[{"separator":".","build":11,"maven":"net.fabricmc:fabric-loader:0.16.11","version":"0.16.11","stable":false},{"version":"0.16.10","stable":true}]`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	p := &Provisioner{Client: fetch.New(time.Second, nil), MetaURL: srv.URL}
	games, err := p.StableGameVersions(context.Background())
	if err != nil {
		t.Fatalf("StableGameVersions: %v", err)
	}
	if strings.Join(games, ",") != "1.21.4,1.21.3" {
		t.Fatalf("unexpected games %v", games)
	}
	game, loader, err := p.ResolveVersions(context.Background(), "", "")
	if err != nil {
		t.Fatalf("ResolveVersions: %v", err)
	}
	if game != "1.21.4" || loader != "0.16.10" {
		t.Fatalf("resolved %s/%s", game, loader)
	}
	game, loader, err = p.ResolveVersions(context.Background(), "1.20.1", "0.15.0")
	if err != nil || game != "1.20.1" || loader != "0.15.0" {
		t.Fatalf("explicit versions must pass through, got %s/%s err=%v", game, loader, err)
	}
}
