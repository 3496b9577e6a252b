package plugins

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tidwall/jsonc"

	"github.com/Bibi40k/subchunker/internal/archive"
	"github.com/Bibi40k/subchunker/internal/failure"
	"github.com/Bibi40k/subchunker/internal/workspace"
)

const (
	ManifestName = "fabric.mod.json"
	jarExt       = ".jar"
)

// Inspector discovers installed plugins by reading each jar's manifest.
type Inspector struct {
	Layout workspace.Layout
	Logger *slog.Logger
}

func (i Inspector) logger() *slog.Logger {
	if i.Logger != nil {
		return i.Logger
	}
	return slog.Default()
}

// Installed returns the lower-cased IDs of the plugins in version's plugin
// directory. A missing directory means nothing is installed. A jar that
// cannot be opened or has no manifest fails the whole call; a manifest that
// does not parse is skipped.
func (i Inspector) Installed(version string) (map[string]bool, error) {
	dir := i.Layout.PluginsDir(version)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]bool{}, nil
		}
		return nil, failure.Wrap(failure.KindIO, "list "+dir, err)
	}
	sort.Slice(entries, func(a, b int) bool { return entries[a].Name() < entries[b].Name() })

	out := make(map[string]bool, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), jarExt) {
			continue
		}
		jar := filepath.Join(dir, e.Name())
		data, err := archive.ReadEntry(jar, ManifestName)
		if err != nil {
			return nil, err
		}
		id, err := manifestID(data)
		if err != nil {
			i.logger().Warn("skip plugin with unreadable manifest", "jar", e.Name(), "error", err)
			continue
		}
		out[id] = true
	}
	return out, nil
}

// manifestID tolerates comments and trailing commas, which some plugin
// manifests ship with.
func manifestID(data []byte) (string, error) {
	var m struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(jsonc.ToJSON(data), &m); err != nil {
		return "", failure.Wrap(failure.KindParse, "decode "+ManifestName, err)
	}
	if strings.TrimSpace(m.ID) == "" {
		return "", failure.Newf(failure.KindParse, "%s has no id", ManifestName)
	}
	return strings.ToLower(strings.TrimSpace(m.ID)), nil
}
