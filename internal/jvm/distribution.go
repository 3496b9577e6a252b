// Package jvm provisions the Java runtimes the server is launched under.
package jvm

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"strings"

	"github.com/Bibi40k/subchunker/internal/fetch"
)

const (
	FeatureVersion = 25
	GraalVMRelease = "25.0.1"
)

// Platform is the host as the distribution vendors name it: OS is one of
// windows|linux|mac and Arch one of x64|aarch64.
type Platform struct {
	OS   string
	Arch string
}

func HostPlatform() Platform {
	return platformFor(runtime.GOOS, runtime.GOARCH)
}

func platformFor(goos, goarch string) Platform {
	p := Platform{OS: goos, Arch: goarch}
	if goos == "darwin" {
		p.OS = "mac"
	}
	switch goarch {
	case "amd64":
		p.Arch = "x64"
	case "arm64":
		p.Arch = "aarch64"
	}
	return p
}

// resolver produces the archive URL for a platform. Some distributions need a
// metadata round trip to find it.
type resolver func(ctx context.Context, c *fetch.Client, p Platform) (string, error)

var distributions = map[string]resolver{
	"azul":     azulURL,
	"adoptium": adoptiumURL,
	"graalvm":  graalvmURL,
}

// Known reports whether name (case-insensitive) is a supported distribution.
func Known(name string) bool {
	_, ok := distributions[strings.ToLower(name)]
	return ok
}

// Names lists supported distributions in lexical order.
func Names() []string {
	out := make([]string, 0, len(distributions))
	for n := range distributions {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

var azulAPI = "https://api.azul.com/zulu/download/community/v1.0/bundles/latest"

func azulURL(ctx context.Context, c *fetch.Client, p Platform) (string, error) {
	u := fmt.Sprintf("%s?java_version=%d&os=%s&arch=%s&ext=zip&bundle_type=jdk", azulAPI, FeatureVersion, p.OS, p.Arch)
	var bundle struct {
		URL string `json:"url"`
	}
	if err := c.GetJSON(ctx, u, &bundle); err != nil {
		return "", fmt.Errorf("resolve azul bundle: %w", err)
	}
	if bundle.URL == "" {
		return "", fmt.Errorf("resolve azul bundle: response has no url")
	}
	return bundle.URL, nil
}

func adoptiumURL(_ context.Context, _ *fetch.Client, p Platform) (string, error) {
	return fmt.Sprintf("https://api.adoptium.net/v3/binary/latest/%d/ga/%s/%s/jdk/hotspot/normal/eclipse?project=jdk",
		FeatureVersion, p.OS, p.Arch), nil
}

func graalvmURL(_ context.Context, _ *fetch.Client, p Platform) (string, error) {
	goos := p.OS
	if goos == "mac" {
		goos = "darwin"
	}
	return fmt.Sprintf("https://github.com/graalvm/graalvm-ce-builds/releases/download/jdk-%s/graalvm-community-jdk-%s_%s-%s_bin.zip",
		GraalVMRelease, GraalVMRelease, goos, p.Arch), nil
}
