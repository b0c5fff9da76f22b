package audio

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"bharatvista/pkg/request"
)

// ErrAssetNotFound is returned when a site-relative reference has no local file
// and no remote base is configured.
var ErrAssetNotFound = errors.New("audio asset not found")

// LocalFiles resolves file:// URIs and absolute paths only.
type LocalFiles struct{}

func (LocalFiles) Fetch(ctx context.Context, uri string) (string, error) {
	p, ok := localPath(uri)
	if !ok {
		if !filepath.IsAbs(uri) {
			return "", fmt.Errorf("%w: %s", ErrAssetNotFound, uri)
		}
		p = uri
	}
	if _, err := os.Stat(p); err != nil {
		return "", fmt.Errorf("%w: %s", ErrAssetNotFound, uri)
	}
	return p, nil
}

func localPath(uri string) (string, bool) {
	if strings.HasPrefix(uri, "file://") {
		u, err := url.Parse(uri)
		if err != nil {
			return "", false
		}
		return filepath.FromSlash(u.Path), true
	}
	if filepath.IsAbs(uri) && !strings.HasPrefix(uri, "/") {
		return uri, true
	}
	return "", false
}

// Resolver turns narration audio references into local files:
//   - file:// URIs and drive-letter paths are used as they are
//   - http(s) URLs are downloaded once into the clip cache directory
//   - site-relative paths ("/audio/taj.mp3") come from the bundled asset
//     directory, then the literal path, else the remote base URL
type Resolver struct {
	client     *request.Client
	localDir   string
	cacheDir   string
	remoteBase string
}

// NewResolver creates a resolver. client may be nil when no remote assets are used.
func NewResolver(client *request.Client, localDir, cacheDir, remoteBase string) *Resolver {
	return &Resolver{
		client:     client,
		localDir:   localDir,
		cacheDir:   cacheDir,
		remoteBase: strings.TrimRight(remoteBase, "/"),
	}
}

func (r *Resolver) Fetch(ctx context.Context, uri string) (string, error) {
	if p, ok := localPath(uri); ok {
		return LocalFiles{}.Fetch(ctx, "file://"+filepath.ToSlash(p))
	}

	if strings.HasPrefix(uri, "http://") || strings.HasPrefix(uri, "https://") {
		return r.download(ctx, uri)
	}

	rel := path.Clean("/" + uri)
	if r.localDir != "" {
		p := filepath.Join(r.localDir, filepath.FromSlash(strings.TrimPrefix(rel, "/")))
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	if filepath.IsAbs(uri) {
		if _, err := os.Stat(uri); err == nil {
			return uri, nil
		}
	}
	if r.remoteBase == "" {
		return "", fmt.Errorf("%w: %s", ErrAssetNotFound, uri)
	}
	return r.download(ctx, r.remoteBase+rel)
}

// download stores the body under a name derived from the URL, so later sessions
// reuse the file without a request.
func (r *Resolver) download(ctx context.Context, u string) (string, error) {
	if r.client == nil {
		return "", fmt.Errorf("remote audio disabled: %s", u)
	}
	if r.cacheDir == "" {
		return "", errors.New("no clip cache directory configured")
	}

	sum := sha1.Sum([]byte(u))
	name := hex.EncodeToString(sum[:]) + assetExt(u)
	dest := filepath.Join(r.cacheDir, name)
	if st, err := os.Stat(dest); err == nil && st.Size() > 0 {
		return dest, nil
	}

	body, err := r.client.Get(ctx, u, "")
	if err != nil {
		return "", fmt.Errorf("failed to fetch audio: %w", err)
	}
	if err := os.MkdirAll(r.cacheDir, 0o755); err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(r.cacheDir, name+".*.part")
	if err != nil {
		return "", err
	}
	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return dest, nil
}

func assetExt(u string) string {
	parsed, err := url.Parse(u)
	if err != nil {
		return ".mp3"
	}
	switch ext := strings.ToLower(path.Ext(parsed.Path)); ext {
	case ".mp3", ".wav":
		return ext
	}
	return ".mp3"
}
