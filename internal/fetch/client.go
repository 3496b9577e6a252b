// Package fetch performs the pipeline's HTTP work: small JSON metadata lookups
// and large artifact downloads with throttled progress reporting.
package fetch

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"hash"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/Bibi40k/subchunker/internal/failure"
)

const userAgent = "subchunker/1 (+https://github.com/Bibi40k/subchunker)"

// Client is safe for concurrent use.
type Client struct {
	HTTP   *http.Client
	Logger *slog.Logger
}

// New returns a client whose header timeout is bounded by headerTimeout.
// Bodies are not bounded so multi-hundred-megabyte runtime archives can
// stream; cancel the request context to stop a stalled transfer.
func New(headerTimeout time.Duration, logger *slog.Logger) *Client {
	if headerTimeout <= 0 {
		headerTimeout = 30 * time.Second
	}
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   headerTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   headerTimeout,
		ResponseHeaderTimeout: headerTimeout,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConns:          4,
	}
	return &Client{HTTP: &http.Client{Transport: tr}, Logger: logger}
}

func (c *Client) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return http.DefaultClient
}

func (c *Client) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, failure.Wrap(failure.KindDownload, "build request", err)
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, failure.Wrap(failure.KindDownload, "GET "+url, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		_ = resp.Body.Close()
		return nil, failure.Wrap(failure.KindDownload, "GET "+url, fmt.Errorf("unexpected status %s", resp.Status))
	}
	return resp, nil
}

// GetJSON decodes the JSON body at url into out.
func (c *Client) GetJSON(ctx context.Context, url string, out any) error {
	c.logger().Debug("fetch metadata", "url", url)
	resp, err := c.get(ctx, url)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return failure.Wrap(failure.KindParse, "decode "+url, err)
	}
	return nil
}

// Artifact describes a completed download.
type Artifact struct {
	Path   string
	Size   int64
	Digest string // blake2b-256, hex
}

// Download streams url into dest. The body is written to dest+".part" and
// renamed into place only after the transfer completes, so an interrupted
// download never leaves a truncated file at dest. label names the artifact
// in progress reports.
func (c *Client) Download(ctx context.Context, url, dest, label string) (Artifact, error) {
	started := time.Now()
	c.logger().Debug("download start", "artifact", label, "url", url, "dest", dest)

	resp, err := c.get(ctx, url)
	if err != nil {
		return Artifact{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return Artifact{}, failure.Wrap(failure.KindIO, "create download dir", err)
	}
	part := dest + ".part"
	f, err := os.Create(part)
	if err != nil {
		return Artifact{}, failure.Wrap(failure.KindIO, "create "+part, err)
	}
	cleanup := func() {
		_ = f.Close()
		_ = os.Remove(part)
	}

	h, err := blake2b.New256(nil)
	if err != nil {
		cleanup()
		return Artifact{}, fmt.Errorf("init digest: %w", err)
	}
	pw := newProgressWriter(ctx, label, resp.ContentLength)
	n, err := io.Copy(io.MultiWriter(f, h, pw), resp.Body)
	if err != nil {
		cleanup()
		if ctx.Err() != nil {
			return Artifact{}, failure.Wrap(failure.KindDownload, "download "+label, ctx.Err())
		}
		return Artifact{}, failure.Wrap(failure.KindDownload, "download "+label, err)
	}
	pw.finish()
	if err := f.Close(); err != nil {
		_ = os.Remove(part)
		return Artifact{}, failure.Wrap(failure.KindIO, "write "+part, err)
	}
	if err := os.Rename(part, dest); err != nil {
		_ = os.Remove(part)
		return Artifact{}, failure.Wrap(failure.KindIO, "move download into place", err)
	}

	art := Artifact{Path: dest, Size: n, Digest: digestHex(h)}
	c.logger().Info("download complete",
		"artifact", label,
		"size", n,
		"blake2b", art.Digest,
		"elapsed", time.Since(started).Truncate(time.Millisecond).String(),
	)
	return art, nil
}

func digestHex(h hash.Hash) string {
	return hex.EncodeToString(h.Sum(nil))
}
