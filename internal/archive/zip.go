// Package archive unpacks runtime distributions and reads single entries out
// of plugin jars.
package archive

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/klauspost/compress/zip"

	"github.com/Bibi40k/subchunker/internal/failure"
)

// ErrEntryNotFound is returned by ReadEntry when the archive lacks the entry.
var ErrEntryNotFound = errors.New("entry not found")

// ExtractStripped unpacks zipPath into dest, dropping the first path component
// of every entry so that "jdk-25.0.1/bin/java" lands at dest/bin/java. On
// POSIX hosts the stored permission bits are applied.
func ExtractStripped(zipPath, dest string) error {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return failure.Wrap(failure.KindArchive, "open "+zipPath, err)
	}
	defer func() { _ = r.Close() }()

	if len(r.File) == 0 {
		return failure.Newf(failure.KindArchive, "archive %s is empty", zipPath)
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return failure.Wrap(failure.KindIO, "create "+dest, err)
	}

	root, err := filepath.Abs(dest)
	if err != nil {
		return failure.Wrap(failure.KindIO, "resolve "+dest, err)
	}

	written := 0
	for _, f := range r.File {
		rel := stripFirst(f.Name)
		if rel == "" {
			continue
		}
		target := filepath.Join(root, filepath.FromSlash(rel))
		if !within(root, target) {
			return failure.Newf(failure.KindArchive, "entry %q escapes destination", f.Name)
		}
		if linked, ok := symlinkedParent(root, target); ok {
			return failure.Newf(failure.KindArchive, "entry %q is below symlink %s", f.Name, linked)
		}
		if err := extractOne(f, root, target); err != nil {
			return err
		}
		written++
	}
	if written == 0 {
		return failure.Newf(failure.KindArchive, "archive %s has no entries below its top-level directory", zipPath)
	}
	return nil
}

func stripFirst(name string) string {
	name = strings.TrimLeft(path.Clean("/"+name), "/")
	_, rest, ok := strings.Cut(name, "/")
	if !ok {
		return ""
	}
	return rest
}

func within(root, target string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// symlinkedParent reports the first directory between root and target that
// is a symlink.
func symlinkedParent(root, target string) (string, bool) {
	rel, err := filepath.Rel(root, filepath.Dir(target))
	if err != nil || rel == "." {
		return "", false
	}
	dir := root
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		dir = filepath.Join(dir, part)
		info, err := os.Lstat(dir)
		if err != nil {
			return "", false
		}
		if info.Mode()&os.ModeSymlink != 0 {
			return dir, true
		}
	}
	return "", false
}

func extractOne(f *zip.File, root, target string) error {
	mode := f.Mode()
	if mode.IsDir() {
		if err := os.MkdirAll(target, 0o755); err != nil {
			return failure.Wrap(failure.KindIO, "create "+target, err)
		}
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return failure.Wrap(failure.KindIO, "create "+filepath.Dir(target), err)
	}

	rc, err := f.Open()
	if err != nil {
		return failure.Wrap(failure.KindArchive, "open entry "+f.Name, err)
	}
	defer func() { _ = rc.Close() }()

	if mode&os.ModeSymlink != 0 && runtime.GOOS != "windows" {
		link, err := io.ReadAll(rc)
		if err != nil {
			return failure.Wrap(failure.KindArchive, "read link "+f.Name, err)
		}
		resolved := string(link)
		if !filepath.IsAbs(resolved) {
			resolved = filepath.Join(filepath.Dir(target), resolved)
		}
		if !within(root, resolved) {
			return failure.Newf(failure.KindArchive, "link %q points outside destination", f.Name)
		}
		_ = os.Remove(target)
		if err := os.Symlink(string(link), target); err != nil {
			return failure.Wrap(failure.KindIO, "symlink "+target, err)
		}
		return nil
	}

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return failure.Wrap(failure.KindIO, "create "+target, err)
	}
	if _, err := io.Copy(out, rc); err != nil {
		_ = out.Close()
		return failure.Wrap(failure.KindArchive, "extract "+f.Name, err)
	}
	if err := out.Close(); err != nil {
		return failure.Wrap(failure.KindIO, "write "+target, err)
	}
	if runtime.GOOS != "windows" {
		if perm := mode.Perm(); perm != 0 {
			if err := os.Chmod(target, perm); err != nil {
				return failure.Wrap(failure.KindIO, "chmod "+target, err)
			}
		}
	}
	return nil
}

// ReadEntry returns the contents of the entry called name. A missing entry
// yields an archive failure wrapping ErrEntryNotFound.
func ReadEntry(zipPath, name string) ([]byte, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, failure.Wrap(failure.KindArchive, "open "+zipPath, err)
	}
	defer func() { _ = r.Close() }()

	for _, f := range r.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, failure.Wrap(failure.KindArchive, "open entry "+name, err)
		}
		data, err := io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			return nil, failure.Wrap(failure.KindArchive, "read entry "+name, err)
		}
		return data, nil
	}
	return nil, failure.Wrap(failure.KindArchive, fmt.Sprintf("%s in %s", name, filepath.Base(zipPath)), ErrEntryNotFound)
}
