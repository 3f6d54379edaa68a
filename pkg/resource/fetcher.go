// Package resource retrieves markup, tag tables and images by URI.
package resource

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

const userAgent = "boxmark/1.0 (compatible; Go)"

// ResourcesScheme addresses bundled assets, e.g. resources://Views/List/DepthAssetList.
const ResourcesScheme = "resources://"

// ErrUnsupportedScheme is returned when no fetcher handles a URI.
var ErrUnsupportedScheme = errors.New("resource: unsupported scheme")

// Fetcher retrieves resources by URI.
type Fetcher interface {
	Fetch(ctx context.Context, uri string) (body []byte, contentType string, err error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, uri string) ([]byte, string, error)

func (f FetcherFunc) Fetch(ctx context.Context, uri string) ([]byte, string, error) {
	return f(ctx, uri)
}

// HTTPFetcher fetches resources over HTTP/HTTPS with retries.
type HTTPFetcher struct {
	client *retryablehttp.Client
}

// NewHTTPFetcher creates an HTTPFetcher. retryMax bounds the number of
// retries per request; a nil logger falls back to slog.Default().
func NewHTTPFetcher(retryMax int, logger *slog.Logger) *HTTPFetcher {
	if logger == nil {
		logger = slog.Default()
	}
	cl := retryablehttp.NewClient()
	cl.RetryMax = retryMax
	cl.RetryWaitMin = 200 * time.Millisecond
	cl.RetryWaitMax = 2 * time.Second
	cl.Logger = logger
	return &HTTPFetcher{client: cl}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, string, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetching %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("HTTP %d fetching %s", resp.StatusCode, rawURL)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("reading response body: %w", err)
	}
	return body, resp.Header.Get("Content-Type"), nil
}

// FSFetcher serves resources:// URIs from a file system. When the named
// file does not exist, the extensions in Extensions are tried in order.
type FSFetcher struct {
	FS         fs.FS
	Extensions []string
}

// NewFSFetcher creates an FSFetcher that also looks for table files.
func NewFSFetcher(fsys fs.FS) *FSFetcher {
	return &FSFetcher{FS: fsys, Extensions: []string{".yaml", ".yml", ".json"}}
}

func (f *FSFetcher) Fetch(_ context.Context, uri string) ([]byte, string, error) {
	name := path.Clean(strings.TrimPrefix(uri, ResourcesScheme))
	name = strings.TrimPrefix(name, "/")
	body, err := fs.ReadFile(f.FS, name)
	if err == nil {
		return body, contentTypeFor(name), nil
	}
	if !errors.Is(err, fs.ErrNotExist) || path.Ext(name) != "" {
		return nil, "", fmt.Errorf("reading %s: %w", uri, err)
	}
	for _, ext := range f.Extensions {
		if body, err := fs.ReadFile(f.FS, name+ext); err == nil {
			return body, contentTypeFor(name + ext), nil
		}
	}
	return nil, "", fmt.Errorf("reading %s: %w", uri, fs.ErrNotExist)
}

func contentTypeFor(name string) string {
	switch path.Ext(name) {
	case ".yaml", ".yml":
		return "application/yaml"
	case ".json":
		return "application/json"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".gif":
		return "image/gif"
	}
	return ""
}

// IsDataURI reports whether s is a data: URI.
func IsDataURI(s string) bool {
	return strings.HasPrefix(s, "data:")
}

// DecodeDataURI decodes a data: URI (base64 or percent-encoded payload).
func DecodeDataURI(uri string) ([]byte, string, error) {
	if !IsDataURI(uri) {
		return nil, "", fmt.Errorf("not a data URI: %.32s", uri)
	}
	meta, payload, ok := strings.Cut(uri[len("data:"):], ",")
	if !ok {
		return nil, "", errors.New("data URI missing ','")
	}
	contentType, isBase64 := strings.CutSuffix(meta, ";base64")
	if isBase64 {
		body, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, "", fmt.Errorf("decoding base64 payload: %w", err)
		}
		return body, contentType, nil
	}
	decoded, err := url.PathUnescape(payload)
	if err != nil {
		return nil, "", fmt.Errorf("decoding payload: %w", err)
	}
	return []byte(decoded), contentType, nil
}

// Mux dispatches on URI scheme. Relative references are resolved against
// BaseURL before dispatch.
type Mux struct {
	BaseURL   string
	HTTP      Fetcher
	Resources Fetcher
}

func (m *Mux) Fetch(ctx context.Context, uri string) ([]byte, string, error) {
	uri = strings.TrimSpace(uri)
	switch {
	case IsDataURI(uri):
		return DecodeDataURI(uri)
	case strings.HasPrefix(uri, ResourcesScheme):
		if m.Resources == nil {
			return nil, "", fmt.Errorf("%w: %s", ErrUnsupportedScheme, uri)
		}
		return m.Resources.Fetch(ctx, uri)
	}

	resolved := uri
	if !IsNetworkURL(uri) && m.BaseURL != "" {
		resolved = ResolveURL(m.BaseURL, uri)
	}
	if !IsNetworkURL(resolved) || m.HTTP == nil {
		return nil, "", fmt.Errorf("%w: %s", ErrUnsupportedScheme, resolved)
	}
	return m.HTTP.Fetch(ctx, resolved)
}

// ResolveURL resolves a possibly-relative URI against a base URL.
// If ref is already absolute, it is returned as-is.
func ResolveURL(base, ref string) string {
	baseURL, err := url.Parse(base)
	if err != nil {
		return ref
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return baseURL.ResolveReference(refURL).String()
}

// IsNetworkURL returns true if the string looks like an HTTP or HTTPS URL.
func IsNetworkURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
