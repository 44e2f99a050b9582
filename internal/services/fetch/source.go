package fetch

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/go-github/v57/github"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/migro/internal/interfaces"
	"github.com/ternarybob/migro/internal/models"
	"golang.org/x/oauth2"
)

// SourceFetcher acquires pages from a static-site source repository
// instead of crawling the live site: either a local directory or a
// GitHub repo ("owner/repo" or "owner/repo@ref"). Pages are keyed by
// pseudo-URLs rooted at the site origin so the rest of the pipeline
// never knows the difference.
type SourceFetcher struct {
	origin *url.URL
	logger arbor.ILogger

	// pages maps pseudo-URL -> HTML, loaded once up front
	pages map[string]string
}

// NewSourceFetcher loads the source repository and indexes its HTML
// files by pseudo-URL. A location containing a path separator that
// exists on disk is treated as a local directory; otherwise it is
// parsed as a GitHub repository.
func NewSourceFetcher(ctx context.Context, location, origin, githubToken string, logger arbor.ILogger) (*SourceFetcher, error) {
	originURL, err := url.Parse(origin)
	if err != nil {
		return nil, fmt.Errorf("invalid origin: %w", err)
	}

	f := &SourceFetcher{
		origin: originURL,
		logger: logger,
		pages:  make(map[string]string),
	}

	if info, statErr := os.Stat(location); statErr == nil && info.IsDir() {
		if err := f.loadLocalDir(location); err != nil {
			return nil, err
		}
	} else {
		if err := f.loadGithubRepo(ctx, location, githubToken); err != nil {
			return nil, err
		}
	}

	if len(f.pages) == 0 {
		return nil, fmt.Errorf("source location %s contains no HTML files", location)
	}

	logger.Info().
		Str("location", location).
		Int("pages", len(f.pages)).
		Msg("Source repository indexed")

	return f, nil
}

func (f *SourceFetcher) loadLocalDir(dir string) error {
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !isHTMLFile(path) {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		f.pages[f.pseudoURL(filepath.ToSlash(rel))] = string(data)
		return nil
	})
}

func (f *SourceFetcher) loadGithubRepo(ctx context.Context, location, token string) error {
	owner, repo, ref, err := parseRepoLocation(location)
	if err != nil {
		return err
	}

	client := github.NewClient(nil)
	if token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		client = github.NewClient(oauth2.NewClient(ctx, ts))
	}

	if ref == "" {
		repoInfo, _, err := client.Repositories.Get(ctx, owner, repo)
		if err != nil {
			return fmt.Errorf("failed to resolve repository %s/%s: %w", owner, repo, err)
		}
		ref = repoInfo.GetDefaultBranch()
	}

	tree, _, err := client.Git.GetTree(ctx, owner, repo, ref, true)
	if err != nil {
		return fmt.Errorf("failed to fetch repo tree %s/%s@%s: %w", owner, repo, ref, err)
	}

	for _, entry := range tree.Entries {
		if entry.GetType() != "blob" || !isHTMLFile(entry.GetPath()) {
			continue
		}
		content, _, _, err := client.Repositories.GetContents(ctx, owner, repo, entry.GetPath(), &github.RepositoryContentGetOptions{Ref: ref})
		if err != nil {
			f.logger.Warn().Err(err).Str("path", entry.GetPath()).Msg("Failed to fetch file from repo, skipping")
			continue
		}
		decoded, err := content.GetContent()
		if err != nil {
			f.logger.Warn().Err(err).Str("path", entry.GetPath()).Msg("Failed to decode repo file, skipping")
			continue
		}
		f.pages[f.pseudoURL(entry.GetPath())] = decoded
	}
	return nil
}

// pseudoURL maps a repository file path onto the site origin:
// index.html -> origin root, about/index.html and about.html -> /about
func (f *SourceFetcher) pseudoURL(relPath string) string {
	path := strings.TrimSuffix(relPath, filepath.Ext(relPath))
	path = strings.TrimSuffix(path, "/index")
	if path == "index" || path == "" {
		return strings.TrimRight(f.origin.String(), "/")
	}
	return strings.TrimRight(f.origin.String(), "/") + "/" + strings.Trim(path, "/")
}

func (f *SourceFetcher) Fetch(ctx context.Context, target string) (*interfaces.FetchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	html, ok := f.pages[strings.TrimRight(target, "/")]
	if !ok {
		return &interfaces.FetchResult{URL: target, StatusCode: 404}, nil
	}

	result := &interfaces.FetchResult{
		URL:         target,
		StatusCode:  200,
		HTML:        html,
		ContentType: "text/html",
		Duration:    time.Since(start),
	}
	populateDocumentFields(result)
	return result, nil
}

func (f *SourceFetcher) Strategy() models.FetchStrategy {
	return models.StrategySource
}

func (f *SourceFetcher) Close() error {
	return nil
}

// PageURLs returns every pseudo-URL in the index, letting the crawl
// engine seed its frontier with the full repository even when pages do
// not cross-link.
func (f *SourceFetcher) PageURLs() []string {
	urls := make([]string, 0, len(f.pages))
	for u := range f.pages {
		urls = append(urls, u)
	}
	return urls
}

func isHTMLFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".html" || ext == ".htm"
}

// parseRepoLocation splits "owner/repo" or "owner/repo@ref"
func parseRepoLocation(location string) (owner, repo, ref string, err error) {
	spec := location
	if at := strings.LastIndex(spec, "@"); at > 0 {
		ref = spec[at+1:]
		spec = spec[:at]
	}
	parts := strings.Split(strings.Trim(spec, "/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", "", fmt.Errorf("source location %q is not a directory or owner/repo reference", location)
	}
	return parts[0], parts[1], ref, nil
}
