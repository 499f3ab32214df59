// Package releases resolves app download links in the catalog against the
// latest GitHub releases of each referenced repository.
package releases

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"regexp"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Release is the subset of a GitHub release the resolver reads.
type Release struct {
	TagName string  `json:"tag_name"`
	Assets  []Asset `json:"assets"`
}

type Asset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
}

// DownloadLink replaces a githubReleases entry in the resolved catalog.
// Fields are null when the release or asset could not be found.
type DownloadLink struct {
	URL     *string `json:"url"`
	Label   *string `json:"label"`
	Version *string `json:"version"`
}

type releaseSource struct {
	Repo         string  `json:"repo"`
	AssetPattern string  `json:"assetPattern"`
	Label        *string `json:"label"`
}

type Resolver struct {
	apiBase string
	token   string
	http    *http.Client
	log     zerolog.Logger
}

func NewResolver(apiBase, token string, hc *http.Client, log zerolog.Logger) *Resolver {
	if apiBase == "" {
		apiBase = "https://api.github.com"
	}
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Resolver{apiBase: strings.TrimRight(apiBase, "/"), token: token, http: hc, log: log}
}

// Resolve rewrites every app carrying githubReleases so it carries
// resolvedDownloadLinks instead. Other catalog fields pass through untouched
// and keep their order. A repo whose release can't be fetched resolves to null
// links, not an error.
func (r *Resolver) Resolve(ctx context.Context, data []byte) ([]byte, error) {
	doc, err := parseCatalog(data)
	if err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	repos := collectRepos(doc)
	if len(repos) == 0 {
		r.log.Info().Msg("no githubReleases entries found, catalog written as is")
		return doc.encode()
	}

	releases := r.fetchAll(ctx, repos)

	var encodeErr error
	doc.eachApp(func(app *object) {
		sources := releaseSources(app)
		if len(sources) == 0 {
			return
		}

		links := make([]DownloadLink, 0, len(sources))
		for _, src := range sources {
			rel := releases[src.Repo]
			link := DownloadLink{Label: src.Label}
			if rel != nil {
				link.URL = r.findAssetURL(rel, src.AssetPattern)
				tag := rel.TagName
				link.Version = &tag
			}
			links = append(links, link)
		}
		b, err := marshal(links)
		if err != nil {
			encodeErr = err
			return
		}
		app.Delete("githubReleases")
		app.Set("resolvedDownloadLinks", b)
	})
	if encodeErr != nil {
		return nil, fmt.Errorf("encode download links: %w", encodeErr)
	}

	return doc.encode()
}

// ResolveFile reads the catalog at in and writes the resolved catalog to out.
func (r *Resolver) ResolveFile(ctx context.Context, in, out string) ([]byte, error) {
	catalog, err := os.ReadFile(in)
	if err != nil {
		return nil, fmt.Errorf("read catalog %q: %w", in, err)
	}
	resolved, err := r.Resolve(ctx, catalog)
	if err != nil {
		return nil, err
	}
	if out != "" {
		if err := os.WriteFile(out, resolved, 0o644); err != nil {
			return nil, fmt.Errorf("write resolved catalog %q: %w", out, err)
		}
	}
	return resolved, nil
}

func (r *Resolver) fetchAll(ctx context.Context, repos []string) map[string]*Release {
	out := make(map[string]*Release, len(repos))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)

	for _, repo := range repos {
		repo := repo
		g.Go(func() error {
			rel, err := r.fetchRelease(gctx, repo)
			if err != nil {
				r.log.Warn().Err(err).Str("repo", repo).Msg("release lookup failed")
			} else {
				r.log.Info().Str("repo", repo).Str("tag", rel.TagName).Msg("release resolved")
			}
			mu.Lock()
			out[repo] = rel
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (r *Resolver) fetchRelease(ctx context.Context, repo string) (*Release, error) {
	url := fmt.Sprintf("%s/repos/%s/releases/latest", r.apiBase, repo)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	resp, err := r.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("github api %d for %s", resp.StatusCode, repo)
	}

	var rel Release
	if err := json.NewDecoder(resp.Body).Decode(&rel); err != nil {
		return nil, fmt.Errorf("decode release: %w", err)
	}
	return &rel, nil
}

func (r *Resolver) findAssetURL(rel *Release, pattern string) *string {
	re, err := regexp.Compile(pattern)
	if err != nil {
		r.log.Warn().Err(err).Str("pattern", pattern).Msg("invalid asset pattern")
		return nil
	}
	for _, a := range rel.Assets {
		if re.MatchString(a.Name) {
			u := a.BrowserDownloadURL
			return &u
		}
	}
	return nil
}

func releaseSources(app *object) []releaseSource {
	raw, ok := app.Get("githubReleases")
	if !ok {
		return nil
	}
	var sources []releaseSource
	_ = json.Unmarshal(raw, &sources)
	return sources
}

func collectRepos(doc *catalog) []string {
	seen := make(map[string]struct{})
	var repos []string
	doc.eachApp(func(app *object) {
		for _, src := range releaseSources(app) {
			if src.Repo == "" {
				continue
			}
			if _, dup := seen[src.Repo]; dup {
				continue
			}
			seen[src.Repo] = struct{}{}
			repos = append(repos, src.Repo)
		}
	})
	return repos
}
