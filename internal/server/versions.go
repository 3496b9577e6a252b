package server

import (
	"context"
	"fmt"
)

type versionEntry struct {
	Version string `json:"version"`
	Stable  bool   `json:"stable"`
}

// StableGameVersions lists stable game versions, newest first as the
// metadata service orders them.
func (p *Provisioner) StableGameVersions(ctx context.Context) ([]string, error) {
	return p.stable(ctx, "/v2/versions/game")
}

// StableLoaderVersions lists stable loader versions, newest first.
func (p *Provisioner) StableLoaderVersions(ctx context.Context) ([]string, error) {
	return p.stable(ctx, "/v2/versions/loader")
}

func (p *Provisioner) stable(ctx context.Context, path string) ([]string, error) {
	var entries []versionEntry
	if err := p.Client.GetJSON(ctx, p.metaURL()+path, &entries); err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Stable && e.Version != "" {
			out = append(out, e.Version)
		}
	}
	return out, nil
}

// ResolveVersions fills empty game or loader versions with the newest stable
// release.
func (p *Provisioner) ResolveVersions(ctx context.Context, game, loader string) (string, string, error) {
	if game == "" {
		versions, err := p.StableGameVersions(ctx)
		if err != nil {
			return "", "", err
		}
		if len(versions) == 0 {
			return "", "", fmt.Errorf("metadata service lists no stable game versions")
		}
		game = versions[0]
	}
	if loader == "" {
		versions, err := p.StableLoaderVersions(ctx)
		if err != nil {
			return "", "", err
		}
		if len(versions) == 0 {
			return "", "", fmt.Errorf("metadata service lists no stable loader versions")
		}
		loader = versions[0]
	}
	return game, loader, nil
}
