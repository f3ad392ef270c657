package reap

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"
)

const (
	aurRPCBase  = "https://aur.archlinux.org/rpc/?v=5"
	aurCgitBase = "https://aur.archlinux.org/cgit/aur.git/plain"
)

// SearchResult is one row of merged search output. Set semantics:
// deduplicated by name, highest-priority source retained.
type SearchResult struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description"`
	Source      Source `json:"source"`
}

// AurPackage is the subset of AUR RPC v5 fields reap consumes.
type AurPackage struct {
	Name        string `json:"Name"`
	Version     string `json:"Version"`
	Description string `json:"Description"`
	Maintainer  string `json:"Maintainer"`
	URL         string `json:"URL"`
	NumVotes    uint32 `json:"NumVotes"`
}

type aurResponse struct {
	Type    string       `json:"type"`
	Results []AurPackage `json:"results"`
}

// AurClient talks to the AUR RPC and cgit endpoints. All requests carry
// the 30 second network timeout.
type AurClient struct {
	HTTP *http.Client
	Base string
	Cgit string
	Log  *LogPane
}

func NewAurClient(log *LogPane) *AurClient {
	return &AurClient{
		HTTP: &http.Client{Timeout: 30 * time.Second},
		Base: aurRPCBase,
		Cgit: aurCgitBase,
		Log:  log,
	}
}

func (c *AurClient) get(rawURL string) ([]byte, error) {
	resp, err := c.HTTP.Get(rawURL)
	if err != nil {
		return nil, stepError(KindFetchFailed, StepFetch, "", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, stepError(KindFetchFailed, StepFetch, "", fmt.Errorf("GET %s: %s", rawURL, resp.Status))
	}
	return io.ReadAll(io.LimitReader(resp.Body, 8<<20))
}

// Search queries the RPC search endpoint. Results are cached on disk
// when caching is enabled; the cache is advisory and never invalidated
// except by `perf clear-cache`.
func (c *AurClient) Search(query string) ([]SearchResult, error) {
	if cached := loadSearchCache(query); cached != nil {
		return cached, nil
	}
	data, err := c.get(c.Base + "&type=search&arg=" + url.QueryEscape(query))
	if err != nil {
		return nil, err
	}
	var resp aurResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, stepError(KindFetchFailed, StepFetch, "", fmt.Errorf("AUR RPC returned invalid JSON: %w", err))
	}
	results := make([]SearchResult, 0, len(resp.Results))
	for _, r := range resp.Results {
		results = append(results, SearchResult{
			Name:        r.Name,
			Version:     r.Version,
			Description: r.Description,
			Source:      Source{Kind: SourceAur},
		})
	}
	saveSearchCache(query, results)
	return results, nil
}

// Info fetches exact-name package info; nil means the package does not
// exist in the AUR.
func (c *AurClient) Info(pkg string) (*AurPackage, error) {
	data, err := c.get(c.Base + "&type=info&arg[]=" + url.QueryEscape(pkg))
	if err != nil {
		return nil, err
	}
	var resp aurResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, stepError(KindFetchFailed, StepFetch, pkg, fmt.Errorf("AUR RPC returned invalid JSON: %w", err))
	}
	for _, r := range resp.Results {
		if r.Name == pkg {
			rr := r
			return &rr, nil
		}
	}
	return nil, nil
}

// PkgbuildURL is the cgit raw endpoint for a package's PKGBUILD.
func (c *AurClient) PkgbuildURL(pkg string) string {
	return c.Cgit + "/PKGBUILD?h=" + url.QueryEscape(pkg)
}

// FetchPkgbuild downloads the raw PKGBUILD text.
func (c *AurClient) FetchPkgbuild(pkg string) (string, error) {
	data, err := c.get(c.PkgbuildURL(pkg))
	if err != nil {
		return "", stepError(KindFetchFailed, StepFetch, pkg, fmt.Errorf("PKGBUILD for %s: %w", pkg, err))
	}
	return string(data), nil
}

// FetchSignature downloads PKGBUILD.sig bytes; nil with no error means
// the package is unsigned.
func (c *AurClient) FetchSignature(pkg string) ([]byte, error) {
	data, err := c.get(c.Cgit + "/PKGBUILD.sig?h=" + url.QueryEscape(pkg))
	if err != nil {
		return nil, nil // absence of a sig is not an error
	}
	if len(data) == 0 {
		return nil, nil
	}
	return data, nil
}

// CloneURL is the git remote for an AUR package's source repository.
func (c *AurClient) CloneURL(pkg string) string {
	return "https://aur.archlinux.org/" + url.PathEscape(pkg) + ".git"
}

// --- search result cache ---

func searchCachePath(query string) string {
	return filepath.Join(searchCacheDir(), hashKey(query)+".json")
}

func loadSearchCache(query string) []SearchResult {
	data, err := os.ReadFile(searchCachePath(query))
	if err != nil {
		return nil
	}
	var results []SearchResult
	if json.Unmarshal(data, &results) != nil {
		return nil
	}
	return results
}

func saveSearchCache(query string, results []SearchResult) {
	if err := os.MkdirAll(searchCacheDir(), 0o755); err != nil {
		return
	}
	data, err := json.Marshal(results)
	if err != nil {
		return
	}
	os.WriteFile(searchCachePath(query), data, 0o644)
}
