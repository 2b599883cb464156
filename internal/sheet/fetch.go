package sheet

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"calsync/internal/log"
)

// cacheEntry holds HTTP cache metadata for a single sheet URL.
type cacheEntry struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Fetcher downloads remote sheets with ETag / Last-Modified revalidation and
// keeps the last good copy on disk.
type Fetcher struct {
	client   *http.Client
	cacheDir string
	log      *log.Logger
}

// NewFetcher creates a Fetcher caching under cacheDir.
func NewFetcher(cacheDir string, l *log.Logger) *Fetcher {
	if cacheDir == "" {
		cacheDir = "./var/sheet-cache"
	}
	if l == nil {
		l = log.Nop()
	}
	return &Fetcher{
		client:   &http.Client{Timeout: 30 * time.Second},
		cacheDir: cacheDir,
		log:      l,
	}
}

// IsRemote reports whether p names an http(s) resource.
func IsRemote(p string) bool {
	return strings.HasPrefix(p, "http://") || strings.HasPrefix(p, "https://")
}

// Fetch returns a local file path holding the sheet at rawURL. On network
// errors or non-OK responses the cached copy is used when one exists.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	if rawURL == "" {
		return "", errors.New("sheet URL is empty")
	}

	cachePath, err := f.cachePathForURL(rawURL)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(cachePath, 0o700); err != nil {
		return "", err
	}

	bodyFile := filepath.Join(cachePath, "body"+extForURL(rawURL))
	meta, _ := f.loadCacheMeta(cachePath)
	_, statErr := os.Stat(bodyFile)
	haveCache := statErr == nil

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	if haveCache {
		if meta.ETag != "" {
			req.Header.Set("If-None-Match", meta.ETag)
		}
		if meta.LastModified != "" {
			req.Header.Set("If-Modified-Since", meta.LastModified)
		}
	}

	f.log.Info("sheet fetch start", "url", redactURL(rawURL))

	resp, err := f.client.Do(req)
	if err != nil {
		if haveCache {
			f.log.Error("sheet fetch network error, using cached copy", err, "url", redactURL(rawURL))
			return bodyFile, nil
		}
		return "", err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return "", err
		}
		newMeta := cacheEntry{
			URL:          rawURL,
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
		}
		if err := f.saveCache(cachePath, bodyFile, newMeta, body); err != nil {
			return "", err
		}
		f.log.Info("sheet fetch success", "url", redactURL(rawURL), "bytes", len(body))
		return bodyFile, nil

	case http.StatusNotModified:
		if !haveCache {
			return "", errors.New("received 304 Not Modified but no cached copy available")
		}
		f.log.Info("sheet not modified; using cache", "url", redactURL(rawURL))
		return bodyFile, nil

	default:
		if haveCache {
			f.log.Error("sheet fetch non-OK, using cached copy", errors.New(resp.Status), "url", redactURL(rawURL), "status", resp.StatusCode)
			return bodyFile, nil
		}
		return "", errors.New(resp.Status)
	}
}

func (f *Fetcher) cachePathForURL(u string) (string, error) {
	if u == "" {
		return "", errors.New("empty url")
	}
	sum := sha256.Sum256([]byte(u))
	return filepath.Join(f.cacheDir, hex.EncodeToString(sum[:8])), nil
}

func (f *Fetcher) loadCacheMeta(cachePath string) (cacheEntry, error) {
	var meta cacheEntry
	data, err := os.ReadFile(filepath.Join(cachePath, "meta.json"))
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return cacheEntry{}, err
	}
	return meta, nil
}

func (f *Fetcher) saveCache(cachePath, bodyFile string, meta cacheEntry, body []byte) error {
	// Write body first so meta never points at a missing body.
	if err := os.WriteFile(bodyFile, body, 0o600); err != nil {
		return err
	}
	meta.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(cachePath, "meta.json"), data, 0o600)
}

// extForURL picks the cached file extension: the URL path's own extension,
// else a format=csv|xlsx query parameter, else .csv.
func extForURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ".csv"
	}
	switch ext := strings.ToLower(path.Ext(u.Path)); ext {
	case ".csv", ".xlsx", ".xlsm":
		return ext
	}
	if f := strings.ToLower(u.Query().Get("format")); f == "xlsx" || f == "csv" {
		return "." + f
	}
	return ".csv"
}

// redactURL keeps only scheme and host; sheet export links often embed
// access tokens.
func redactURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "sheet://...(redacted)"
	}
	return u.Scheme + "://" + u.Host + "/...(redacted)"
}
