// Package plugins knows which server plugins a benchmark wants, which ones a
// server version already has, and walks the user through installing the rest.
package plugins

import (
	"net/url"
	"strings"
)

// Plugin is one catalog record. ID is the lower-cased identifier found in the
// plugin's fabric.mod.json.
type Plugin struct {
	ID       string
	Name     string
	URL      string
	Required bool
}

// Catalog is an ordered set of plugins keyed by ID.
type Catalog struct {
	order []string
	byID  map[string]Plugin
}

// NewCatalog keeps the given order. A repeated ID replaces the earlier record
// in place.
func NewCatalog(plugins ...Plugin) Catalog {
	c := Catalog{byID: make(map[string]Plugin, len(plugins))}
	for _, p := range plugins {
		p.ID = strings.ToLower(p.ID)
		if _, dup := c.byID[p.ID]; !dup {
			c.order = append(c.order, p.ID)
		}
		c.byID[p.ID] = p
	}
	return c
}

func DefaultCatalog() Catalog {
	return NewCatalog(
		Plugin{ID: "lithium", Name: "Lithium", URL: "https://modrinth.com/mod/lithium/versions"},
		Plugin{ID: "fabric-api", Name: "Fabric-Api", URL: "https://modrinth.com/mod/fabric-api/versions"},
		Plugin{ID: "ferritecore", Name: "Ferritecore", URL: "https://modrinth.com/mod/ferrite-core/versions"},
		Plugin{ID: "c2me", Name: "C2me", URL: "https://modrinth.com/mod/c2me-fabric/versions"},
		Plugin{ID: "servercore", Name: "Servercore", URL: "https://modrinth.com/mod/servercore/versions"},
		Plugin{ID: "structure_layout_optimizer", Name: "Structure_Layout_Optimizer", URL: "https://modrinth.com/mod/structure-layout-optimizer/versions"},
		Plugin{ID: "scalablelux", Name: "ScalableLux", URL: "https://modrinth.com/mod/scalablelux/versions"},
		Plugin{ID: "chunky", Name: "Chunky", URL: "https://modrinth.com/plugin/chunky/versions", Required: true},
	)
}

func (c Catalog) Lookup(id string) (Plugin, bool) {
	p, ok := c.byID[strings.ToLower(id)]
	return p, ok
}

func (c Catalog) Len() int { return len(c.order) }

// All returns every plugin in catalog order.
func (c Catalog) All() []Plugin {
	out := make([]Plugin, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.byID[id])
	}
	return out
}

func (c Catalog) Optional() []Plugin { return c.filter(false) }
func (c Catalog) Required() []Plugin { return c.filter(true) }

func (c Catalog) filter(required bool) []Plugin {
	var out []Plugin
	for _, id := range c.order {
		if p := c.byID[id]; p.Required == required {
			out = append(out, p)
		}
	}
	return out
}

func (c Catalog) index(id string) int {
	for i, v := range c.order {
		if v == id {
			return i
		}
	}
	return -1
}

// DefaultToggles turns every optional plugin on.
func (c Catalog) DefaultToggles() map[string]bool {
	out := make(map[string]bool)
	for _, p := range c.Optional() {
		out[p.ID] = true
	}
	return out
}

// InstallURL is the plugin's download page filtered to a game version.
func InstallURL(p Plugin, version string) string {
	return p.URL + "?g=" + url.QueryEscape(version)
}
