package plugins

import (
	"errors"
	"fmt"
	"strings"
)

// ErrRequired is returned when skipping a plugin the benchmark cannot run
// without.
var ErrRequired = errors.New("plugin is required")

// Gap is a wanted plugin that is not installed. Index is the plugin's
// position in the catalog.
type Gap struct {
	Index   int
	Plugin  Plugin
	Toggled bool
	URL     string
}

// ComputeGaps lists toggled-on optional plugins that are missing, then missing
// required plugins, each group in catalog order. It has no side effects.
func ComputeGaps(c Catalog, toggles map[string]bool, installed map[string]bool, version string) []Gap {
	var gaps []Gap
	for _, p := range c.Optional() {
		if toggles[p.ID] && !installed[p.ID] {
			gaps = append(gaps, Gap{Index: c.index(p.ID), Plugin: p, Toggled: true, URL: InstallURL(p, version)})
		}
	}
	for _, p := range c.Required() {
		if !installed[p.ID] {
			gaps = append(gaps, Gap{Index: c.index(p.ID), Plugin: p, URL: InstallURL(p, version)})
		}
	}
	return gaps
}

// Reconciler iterates over the gaps of one server version. Installs happen
// out of band; callers report them with AcknowledgeInstalled, which
// re-inspects the plugin directory before moving on.
type Reconciler struct {
	Catalog   Catalog
	Inspector Inspector
	Version   string
	Toggles   map[string]bool

	gaps      []Gap
	pos       int
	installed map[string]bool
}

// Refresh recomputes the gaps from disk and rewinds to the first one.
func (r *Reconciler) Refresh() ([]Gap, error) {
	installed, err := r.Inspector.Installed(r.Version)
	if err != nil {
		return nil, fmt.Errorf("inspect installed plugins: %w", err)
	}
	r.installed = installed
	r.gaps = ComputeGaps(r.Catalog, r.Toggles, installed, r.Version)
	r.pos = 0
	return append([]Gap(nil), r.gaps...), nil
}

// Current returns the gap awaiting action.
func (r *Reconciler) Current() (Gap, bool) {
	if r.pos >= len(r.gaps) {
		return Gap{}, false
	}
	return r.gaps[r.pos], true
}

func (r *Reconciler) Done() bool { return r.pos >= len(r.gaps) }

// Advance moves past the current gap and any later gap that the last
// inspection found installed.
func (r *Reconciler) Advance() (Gap, bool) {
	if r.pos < len(r.gaps) {
		r.pos++
	}
	for r.pos < len(r.gaps) && r.installed[r.gaps[r.pos].Plugin.ID] {
		r.pos++
	}
	return r.Current()
}

// AcknowledgeInstalled re-inspects the plugin directory and reports whether
// id is now installed. When it is and id is the current gap, the reconciler
// advances.
func (r *Reconciler) AcknowledgeInstalled(id string) (bool, error) {
	installed, err := r.Inspector.Installed(r.Version)
	if err != nil {
		return false, fmt.Errorf("inspect installed plugins: %w", err)
	}
	r.installed = installed
	id = strings.ToLower(id)
	if !installed[id] {
		return false, nil
	}
	if cur, ok := r.Current(); ok && cur.Plugin.ID == id {
		r.Advance()
	}
	return true, nil
}

// Skip moves past the current gap without installing it. Required plugins
// cannot be skipped.
func (r *Reconciler) Skip(id string) error {
	cur, ok := r.Current()
	if !ok || cur.Plugin.ID != strings.ToLower(id) {
		return fmt.Errorf("plugin %q is not the pending install", id)
	}
	if cur.Plugin.Required {
		return fmt.Errorf("skip %s: %w", cur.Plugin.Name, ErrRequired)
	}
	r.Advance()
	return nil
}
