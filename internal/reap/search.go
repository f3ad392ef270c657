package reap

import (
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"github.com/sahilm/fuzzy"
)

// Searcher fans a query out to every available backend and merges the
// results into one ranked list.
type Searcher struct {
	Config *GlobalConfig
	Exec   *Executor
	Log    *LogPane
	AUR    *AurClient
	Taps   *TapManager
}

// Search queries all backends concurrently, deduplicates by package
// name keeping the highest-priority source, and ranks by fuzzy match
// quality against the query.
func (s *Searcher) Search(query string) ([]SearchResult, error) {
	type backendOut struct {
		results []SearchResult
		err     error
		backend string
	}

	backends := []struct {
		name string
		run  func() ([]SearchResult, error)
	}{
		{"tap", func() ([]SearchResult, error) { return s.searchTaps(query) }},
		{"aur", func() ([]SearchResult, error) { return s.AUR.Search(query) }},
		{"pacman", func() ([]SearchResult, error) { return s.searchPacman(query) }},
		{"flatpak", func() ([]SearchResult, error) { return s.searchFlatpak(query) }},
		{"apt", func() ([]SearchResult, error) { return s.searchApt(query) }},
	}

	out := make(chan backendOut, len(backends))
	var wg sync.WaitGroup
	for _, b := range backends {
		wg.Add(1)
		go func(name string, run func() ([]SearchResult, error)) {
			defer wg.Done()
			r, err := run()
			out <- backendOut{results: r, err: err, backend: name}
		}(b.name, b.run)
	}
	wg.Wait()
	close(out)

	var merged []SearchResult
	for o := range out {
		if o.err != nil {
			// One dead backend never sinks the whole search.
			s.Log.Warnf("", StepFetch, "%s search failed: %v", o.backend, o.err)
			continue
		}
		merged = append(merged, o.results...)
	}
	return rankResults(query, dedupeResults(merged)), nil
}

// dedupeResults keeps one entry per name, preferring the
// higher-priority source.
func dedupeResults(results []SearchResult) []SearchResult {
	best := make(map[string]SearchResult, len(results))
	for _, r := range results {
		prev, seen := best[r.Name]
		if !seen || r.Source.priorityClass() > prev.Source.priorityClass() {
			best[r.Name] = r
		}
	}
	out := make([]SearchResult, 0, len(best))
	for _, r := range best {
		out = append(out, r)
	}
	return out
}

type resultNames []SearchResult

func (r resultNames) String(i int) string { return r[i].Name }
func (r resultNames) Len() int            { return len(r) }

// rankResults orders results by fuzzy match score against the query.
// Results the matcher rejects entirely sink to the bottom in original
// order rather than being dropped; backends already filtered by the
// query, so a non-matching name usually means a description hit.
func rankResults(query string, results []SearchResult) []SearchResult {
	matches := fuzzy.FindFrom(query, resultNames(results))
	ranked := make([]SearchResult, 0, len(results))
	matched := make(map[int]bool, len(matches))
	for _, m := range matches {
		ranked = append(ranked, results[m.Index])
		matched[m.Index] = true
	}
	for i, r := range results {
		if !matched[i] {
			ranked = append(ranked, r)
		}
	}
	return ranked
}

func (s *Searcher) searchTaps(query string) ([]SearchResult, error) {
	return s.Taps.SearchIndexes(query), nil
}

// searchPacman parses pacman -Ss output pairs (header line, indented
// description line).
func (s *Searcher) searchPacman(query string) ([]SearchResult, error) {
	out, err := s.Exec.Output(exec.Command("pacman", "-Ss", query))
	if err != nil {
		// pacman exits nonzero on zero matches.
		return nil, nil
	}
	return parsePacmanSearch(string(out)), nil
}

func parsePacmanSearch(out string) []SearchResult {
	var results []SearchResult
	lines := strings.Split(out, "\n")
	for i := 0; i < len(lines); i++ {
		line := lines[i]
		if line == "" || strings.HasPrefix(line, " ") {
			continue
		}
		// "core/foo 1.2-1 [installed]"
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		name := fields[0]
		if idx := strings.IndexByte(name, '/'); idx >= 0 {
			name = name[idx+1:]
		}
		r := SearchResult{Name: name, Version: fields[1], Source: Source{Kind: SourcePacman}}
		if i+1 < len(lines) && strings.HasPrefix(lines[i+1], " ") {
			r.Description = strings.TrimSpace(lines[i+1])
			i++
		}
		results = append(results, r)
	}
	return results
}

// searchFlatpak parses tab-separated flatpak search columns.
func (s *Searcher) searchFlatpak(query string) ([]SearchResult, error) {
	if !commandOnPath("flatpak") {
		return nil, nil
	}
	cmd := exec.Command("flatpak", "search", "--columns=application,version,description", query)
	out, err := s.Exec.Output(cmd)
	if err != nil {
		return nil, nil
	}
	var results []SearchResult
	for _, line := range strings.Split(string(out), "\n") {
		cols := strings.Split(line, "\t")
		if len(cols) < 1 || strings.TrimSpace(cols[0]) == "" {
			continue
		}
		r := SearchResult{Name: strings.TrimSpace(cols[0]), Source: Source{Kind: SourceFlatpak}}
		if len(cols) > 1 {
			r.Version = strings.TrimSpace(cols[1])
		}
		if len(cols) > 2 {
			r.Description = strings.TrimSpace(cols[2])
		}
		results = append(results, r)
	}
	return results, nil
}

// searchApt parses apt-cache search "name - description" lines. Every
// result is tagged with the apt source so mixed-distro output stays
// attributable.
func (s *Searcher) searchApt(query string) ([]SearchResult, error) {
	if !commandOnPath("apt-cache") {
		return nil, nil
	}
	out, err := s.Exec.Output(exec.Command("apt-cache", "search", query))
	if err != nil {
		return nil, nil
	}
	var results []SearchResult
	for _, line := range strings.Split(string(out), "\n") {
		name, desc, ok := strings.Cut(line, " - ")
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		r := SearchResult{Name: name, Source: Source{Kind: SourceApt}}
		if ok {
			r.Description = strings.TrimSpace(desc)
		}
		results = append(results, r)
	}
	return results, nil
}

// PrintResults renders ranked search output.
func PrintResults(results []SearchResult) {
	if len(results) == 0 {
		fmt.Println("no packages found")
		return
	}
	for _, r := range results {
		colArrow.Printf("%s ", r.Source.Label())
		fmt.Printf("%s", r.Name)
		if r.Version != "" {
			fmt.Printf(" %s", r.Version)
		}
		fmt.Println()
		if r.Description != "" {
			fmt.Printf("    %s\n", r.Description)
		}
	}
}
