package samples

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const (
	DefaultRepo    = "github-linguist/linguist"
	DefaultRef     = "HEAD"
	DefaultAPIBase = "https://api.github.com"
	DefaultRawBase = "https://raw.githubusercontent.com"

	samplesPrefix  = "samples/"
	maxSampleBytes = 4 << 20
)

// GitHubOptions configures a GitHub provider. Zero values select the
// public Linguist repository.
type GitHubOptions struct {
	Repo    string
	Ref     string
	APIBase string
	RawBase string
	// Token is sent as a bearer token to the API when set.
	Token  string
	Client *http.Client
	// RequestsPerSecond limits outgoing requests (2 by default).
	RequestsPerSecond float64
	Logger            slog.Handler
}

// GitHub fetches samples from the samples/ folder of a Linguist repository.
// The tree listing is fetched once and shared; concurrent requests for the
// same language are collapsed.
type GitHub struct {
	opts    GitHubOptions
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
	flight  singleflight.Group

	mu    sync.Mutex
	index map[string]string
}

// NewGitHub creates a GitHub provider.
func NewGitHub(opts GitHubOptions) *GitHub {
	if opts.Repo == "" {
		opts.Repo = DefaultRepo
	}
	if opts.Ref == "" {
		opts.Ref = DefaultRef
	}
	if opts.APIBase == "" {
		opts.APIBase = DefaultAPIBase
	}
	if opts.RawBase == "" {
		opts.RawBase = DefaultRawBase
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 2
	}
	if opts.Logger == nil {
		opts.Logger = slog.NewTextHandler(os.Stderr, nil)
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &GitHub{
		opts:    opts,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1),
		logger:  slog.New(opts.Logger).With(slog.String("component", "samples.github")),
	}
}

// Sample implements Provider.
func (g *GitHub) Sample(ctx context.Context, language string) (string, bool, error) {
	index, err := g.loadIndex(ctx)
	if err != nil {
		return "", false, err
	}
	path, ok := index[language]
	if !ok {
		return "", false, nil
	}
	v, err, _ := g.flight.Do("sample:"+path, func() (any, error) {
		return g.get(ctx, g.rawURL(path), false)
	})
	if err != nil {
		return "", false, err
	}
	return string(v.([]byte)), true, nil
}

type treeResponse struct {
	Tree []struct {
		Path string `json:"path"`
		Type string `json:"type"`
	} `json:"tree"`
	Truncated bool `json:"truncated"`
}

func (g *GitHub) loadIndex(ctx context.Context) (map[string]string, error) {
	g.mu.Lock()
	index := g.index
	g.mu.Unlock()
	if index != nil {
		return index, nil
	}
	v, err, _ := g.flight.Do("tree", func() (any, error) {
		u := fmt.Sprintf("%s/repos/%s/git/trees/%s?recursive=1", g.opts.APIBase, g.opts.Repo, url.PathEscape(g.opts.Ref))
		raw, err := g.get(ctx, u, true)
		if err != nil {
			return nil, err
		}
		var tree treeResponse
		if err := json.Unmarshal(raw, &tree); err != nil {
			return nil, fmt.Errorf("%w: decode tree: %v", ErrFetch, err)
		}
		if tree.Truncated {
			g.logger.Warn("Sample tree listing is truncated; some languages will have no sample")
		}
		idx := make(map[string]string)
		for _, entry := range tree.Tree {
			if entry.Type != "blob" || !strings.HasPrefix(entry.Path, samplesPrefix) {
				continue
			}
			rest := strings.TrimPrefix(entry.Path, samplesPrefix)
			lang, file, found := strings.Cut(rest, "/")
			if !found || file == "" {
				continue
			}
			if _, seen := idx[lang]; !seen {
				idx[lang] = entry.Path
			}
		}
		g.logger.Debug("Loaded sample index", slog.Int("languages", len(idx)))
		g.mu.Lock()
		g.index = idx
		g.mu.Unlock()
		return idx, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(map[string]string), nil
}

func (g *GitHub) rawURL(path string) string {
	parts := strings.Split(path, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return fmt.Sprintf("%s/%s/%s/%s", g.opts.RawBase, g.opts.Repo, url.PathEscape(g.opts.Ref), strings.Join(parts, "/"))
}

func (g *GitHub) get(ctx context.Context, u string, api bool) ([]byte, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	if api {
		req.Header.Set("Accept", "application/vnd.github+json")
		if g.opts.Token != "" {
			req.Header.Set("Authorization", "Bearer "+g.opts.Token)
		}
	}
	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	defer resp.Body.Close()
	g.logger.Debug("Fetched", slog.String("url", u), slog.Int("status", resp.StatusCode), slog.Duration("duration", time.Since(start)))
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: GET %s: %s", ErrFetch, u, resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSampleBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrFetch, u, err)
	}
	return body, nil
}
