// Package modelcache manages on-disk whisper model artifacts keyed by tier.
//
// The cache is represented as an explicit [Store] interface rather than
// implicit filesystem state so the recognition adapter can be tested without
// real downloads. [DiskCache] is the production implementation: on a miss it
// downloads the artifact over HTTP and verifies its SHA-256 digest before
// handing the path to the caller. A digest mismatch is reported as
// [ErrChecksumMismatch]; the user must clear the cache directory and retry.
package modelcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/MrWong99/loquax/internal/tier"
)

// ErrChecksumMismatch is returned when a fetched model artifact does not
// match its published SHA-256 digest. It is non-retryable: the corrupt file
// is removed but the run must be restarted after the cause is resolved.
var ErrChecksumMismatch = errors.New("model artifact checksum mismatch")

// Store is the model artifact cache consumed by the recognition adapter.
type Store interface {
	// Has reports whether the artifact for t is already cached.
	Has(t tier.Tier) bool

	// Fetch returns the local path of the artifact for t, downloading it
	// first when absent. A digest failure is reported as an error wrapping
	// [ErrChecksumMismatch].
	Fetch(ctx context.Context, t tier.Tier) (string, error)
}

// Option is a functional option for configuring a [DiskCache].
type Option func(*DiskCache)

// WithHTTPClient overrides the HTTP client used for artifact downloads.
// Mainly useful in tests pointing at an httptest server.
func WithHTTPClient(c *http.Client) Option {
	return func(d *DiskCache) {
		d.client = c
	}
}

// WithBaseURL rewrites artifact URLs to be relative to base, preserving only
// the final path element. Used to point the cache at a mirror.
func WithBaseURL(base string) Option {
	return func(d *DiskCache) {
		d.baseURL = base
	}
}

// WithChecksum overrides the expected SHA-256 digest for one tier. Mirrors
// occasionally repack artifacts; tests use it to serve synthetic payloads.
func WithChecksum(t tier.Tier, sha256Hex string) Option {
	return func(d *DiskCache) {
		if d.checksums == nil {
			d.checksums = map[tier.Tier]string{}
		}
		d.checksums[t] = sha256Hex
	}
}

// DiskCache is the filesystem-backed [Store]. It is safe for concurrent use
// in the read path; concurrent fetches of the same tier from multiple
// processes are not coordinated (last write wins, both verify).
type DiskCache struct {
	dir       string
	client    *http.Client
	baseURL   string
	checksums map[tier.Tier]string
}

// Compile-time interface assertion.
var _ Store = (*DiskCache)(nil)

// NewDiskCache creates a [DiskCache] rooted at dir, creating the directory
// if needed.
func NewDiskCache(dir string, opts ...Option) (*DiskCache, error) {
	if dir == "" {
		return nil, errors.New("modelcache: dir must not be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("modelcache: create dir %q: %w", dir, err)
	}
	d := &DiskCache{
		dir:    dir,
		client: http.DefaultClient,
	}
	for _, o := range opts {
		o(d)
	}
	return d, nil
}

// Has implements [Store].
func (d *DiskCache) Has(t tier.Tier) bool {
	info, err := os.Stat(d.path(t))
	return err == nil && info.Size() > 0
}

// Fetch implements [Store]. Cached artifacts are trusted without
// re-hashing; only freshly downloaded files are verified.
func (d *DiskCache) Fetch(ctx context.Context, t tier.Tier) (string, error) {
	spec, ok := tier.Lookup(t)
	if !ok {
		return "", fmt.Errorf("modelcache: unknown tier %q", t)
	}

	path := d.path(t)
	if d.Has(t) {
		return path, nil
	}

	url := spec.ArtifactURL
	if d.baseURL != "" {
		url = d.baseURL + "/" + filepath.Base(spec.ArtifactURL)
	}

	want := spec.ArtifactSHA256
	if override, ok := d.checksums[t]; ok {
		want = override
	}

	slog.Info("downloading model artifact", "tier", t, "url", url)
	if err := d.download(ctx, url, path, want); err != nil {
		return "", err
	}
	return path, nil
}

// download streams the artifact to a temporary file, hashing as it writes,
// and renames it into place only after the digest matches.
func (d *DiskCache) download(ctx context.Context, url, dest, wantSHA256 string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("modelcache: create request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("modelcache: download %q: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("modelcache: download %q: HTTP %d", url, resp.StatusCode)
	}

	tmp, err := os.CreateTemp(d.dir, filepath.Base(dest)+".partial-*")
	if err != nil {
		return fmt.Errorf("modelcache: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	h := sha256.New()
	if _, err := io.Copy(io.MultiWriter(tmp, h), resp.Body); err != nil {
		tmp.Close()
		return fmt.Errorf("modelcache: write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("modelcache: close artifact: %w", err)
	}

	if got := hex.EncodeToString(h.Sum(nil)); got != wantSHA256 {
		return fmt.Errorf("modelcache: %q: got sha256 %s, want %s: %w",
			filepath.Base(dest), got, wantSHA256, ErrChecksumMismatch)
	}

	if err := os.Rename(tmp.Name(), dest); err != nil {
		return fmt.Errorf("modelcache: install artifact: %w", err)
	}
	return nil
}

// path returns the canonical artifact location for t inside the cache dir.
func (d *DiskCache) path(t tier.Tier) string {
	return filepath.Join(d.dir, fmt.Sprintf("ggml-%s.bin", t))
}
