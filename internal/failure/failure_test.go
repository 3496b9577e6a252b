package failure

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"
)

func TestWrapMatchesKindSentinel(t *testing.T) {
	err := Wrap(KindDownload, "download server jar", errors.New("503 Service Unavailable"))
	if !errors.Is(err, ErrDownload) {
		t.Fatalf("expected download sentinel match")
	}
	if errors.Is(err, ErrArchive) {
		t.Fatalf("download error must not match archive sentinel")
	}
	if got := err.Error(); got != "download server jar: 503 Service Unavailable" {
		t.Fatalf("unexpected message: %q", got)
	}
}

func TestKindOfThroughWrapping(t *testing.T) {
	inner := Wrap(KindIO, "create version dir", fs.ErrPermission)
	outer := fmt.Errorf("ensure server: %w", inner)
	if got := KindOf(outer); got != KindIO {
		t.Fatalf("KindOf=%q, want %q", got, KindIO)
	}
	if !errors.Is(outer, fs.ErrPermission) {
		t.Fatalf("expected underlying cause to stay reachable")
	}
	if got := KindOf(errors.New("plain")); got != "" {
		t.Fatalf("expected empty kind for unclassified error, got %q", got)
	}
}

func TestNewfWithoutCause(t *testing.T) {
	err := Newf(KindLicenseMissing, "license file %s not created", "eula.txt")
	if !errors.Is(err, ErrLicenseMissing) {
		t.Fatalf("expected license sentinel match")
	}
	if err.Error() != "license file eula.txt not created" {
		t.Fatalf("unexpected message: %q", err.Error())
	}
}
