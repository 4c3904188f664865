package schema

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/workgraph/pkg/buildinfo"
	"github.com/matzehuels/workgraph/pkg/cache"
)

// Provider supplies node-type metadata. It is consulted only to seed widget
// defaults and names; graph structure never depends on it.
type Provider interface {
	FetchTypeSchema(ctx context.Context) (Catalog, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context) (Catalog, error)

// FetchTypeSchema calls f.
func (f ProviderFunc) FetchTypeSchema(ctx context.Context) (Catalog, error) { return f(ctx) }

// =============================================================================
// Static / File
// =============================================================================

// StaticProvider serves a fixed catalog.
type StaticProvider struct {
	Catalog Catalog
}

// FetchTypeSchema returns the fixed catalog.
func (p StaticProvider) FetchTypeSchema(context.Context) (Catalog, error) {
	return p.Catalog, nil
}

// FileProvider reads a saved object_info response from disk.
type FileProvider struct {
	Path string
}

// FetchTypeSchema reads and parses the file.
func (p FileProvider) FetchTypeSchema(ctx context.Context) (Catalog, error) {
	data, err := os.ReadFile(p.Path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", p.Path, err)
	}
	return Parse(data)
}

// =============================================================================
// HTTP
// =============================================================================

// ObjectInfoPath is the endpoint serving the schema catalog.
const ObjectInfoPath = "/object_info"

// HTTPProvider fetches the catalog from an execution server.
type HTTPProvider struct {
	baseURL string
	http    *http.Client
	logger  *log.Logger
}

// NewHTTPProvider creates a provider for the server at baseURL
// (e.g. "http://127.0.0.1:8188"). A nil logger uses log.Default().
func NewHTTPProvider(baseURL string, timeout time.Duration, logger *log.Logger) *HTTPProvider {
	if logger == nil {
		logger = log.Default()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				DialContext:         (&net.Dialer{Timeout: 5 * time.Second}).DialContext,
				MaxIdleConnsPerHost: 2,
			},
		},
		logger: logger,
	}
}

// BaseURL returns the server URL the provider queries.
func (p *HTTPProvider) BaseURL() string { return p.baseURL }

// FetchTypeSchema downloads and parses the catalog.
func (p *HTTPProvider) FetchTypeSchema(ctx context.Context) (Catalog, error) {
	body, err := p.Raw(ctx)
	if err != nil {
		return nil, err
	}
	return Parse(body)
}

// Raw downloads the catalog without parsing it, retrying transient failures.
func (p *HTTPProvider) Raw(ctx context.Context) ([]byte, error) {
	var body []byte
	err := cache.RetryWithBackoff(ctx, func() error {
		var err error
		body, err = p.get(ctx, p.baseURL+ObjectInfoPath)
		if err != nil && cache.IsRetryable(err) {
			p.logger.Debug("retrying schema fetch", "url", p.baseURL, "err", err)
		}
		return err
	})
	return body, err
}

func (p *HTTPProvider) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", buildinfo.UserAgent())

	resp, err := p.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, cache.Retryable(fmt.Errorf("%w: %v", cache.ErrNetwork, err))
	}
	defer resp.Body.Close()

	if err := checkStatus(resp.StatusCode); err != nil {
		return nil, err
	}
	return io.ReadAll(resp.Body)
}

func checkStatus(code int) error {
	switch {
	case code == http.StatusOK:
		return nil
	case code == http.StatusNotFound:
		return cache.ErrNotFound
	case code >= 500:
		return cache.Retryable(fmt.Errorf("%w: status %d", cache.ErrNetwork, code))
	default:
		return fmt.Errorf("%w: status %d", cache.ErrNetwork, code)
	}
}

// =============================================================================
// Cached
// =============================================================================

// RawSource is a provider that can return the undecoded catalog, which is
// what CachedProvider stores.
type RawSource interface {
	Raw(ctx context.Context) ([]byte, error)
	BaseURL() string
}

// CachedProvider keeps the raw catalog of a server in a cache.Cache.
type CachedProvider struct {
	source  RawSource
	cache   cache.Cache
	keyer   cache.Keyer
	ttl     time.Duration
	refresh bool
	logger  *log.Logger
}

// CachedOptions configures a CachedProvider.
type CachedOptions struct {
	Cache   cache.Cache // nil disables caching
	Keyer   cache.Keyer // nil uses cache.NewDefaultKeyer()
	TTL     time.Duration
	Refresh bool // bypass cached entries but still store the fresh result
	Logger  *log.Logger
}

// NewCachedProvider wraps source with a cache.
func NewCachedProvider(source RawSource, opts CachedOptions) *CachedProvider {
	if opts.Cache == nil {
		opts.Cache = cache.NewNullCache()
	}
	if opts.Keyer == nil {
		opts.Keyer = cache.NewDefaultKeyer()
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &CachedProvider{
		source:  source,
		cache:   opts.Cache,
		keyer:   opts.Keyer,
		ttl:     opts.TTL,
		refresh: opts.Refresh,
		logger:  opts.Logger,
	}
}

// FetchTypeSchema serves the catalog from cache when possible.
func (p *CachedProvider) FetchTypeSchema(ctx context.Context) (Catalog, error) {
	key := p.keyer.SchemaKey(p.source.BaseURL())

	if !p.refresh {
		data, hit, err := p.cache.Get(ctx, key)
		if err != nil {
			p.logger.Warn("schema cache read failed", "err", err)
		}
		if hit {
			if c, err := Parse(data); err == nil {
				p.logger.Debug("schema cache hit", "types", len(c))
				return c, nil
			}
			_ = p.cache.Delete(ctx, key)
		}
	}

	data, err := p.source.Raw(ctx)
	if err != nil {
		return nil, err
	}
	c, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if err := p.cache.Set(ctx, key, data, p.ttl); err != nil {
		p.logger.Warn("schema cache write failed", "err", err)
	}
	return c, nil
}

var (
	_ Provider  = StaticProvider{}
	_ Provider  = FileProvider{}
	_ Provider  = (*HTTPProvider)(nil)
	_ Provider  = (*CachedProvider)(nil)
	_ RawSource = (*HTTPProvider)(nil)
)
