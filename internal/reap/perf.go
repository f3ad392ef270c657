package reap

import (
	"fmt"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
)

// WarmCache pre-fetches PKGBUILDs for every installed foreign package so
// later upgrade checks hit disk instead of the network.
func WarmCache(ex *Executor, log *LogPane, store *PkgbuildStore, reg *Registry, jobs int) error {
	foreign, err := pacmanForeign(ex)
	if err != nil {
		return err
	}
	if len(foreign) == 0 {
		fmt.Println("no foreign packages to warm")
		return nil
	}
	pkgs := make([]string, 0, len(foreign))
	for p := range foreign {
		pkgs = append(pkgs, p)
	}

	if jobs < 1 {
		jobs = 1
	}
	sem := make(chan struct{}, jobs)
	bar := progressbar.Default(int64(len(pkgs)), "warming cache")
	var wg sync.WaitGroup
	start := time.Now()
	for _, pkg := range pkgs {
		wg.Add(1)
		go func(pkg string) {
			defer wg.Done()
			defer bar.Add(1)
			sem <- struct{}{}
			defer func() { <-sem }()
			cand, err := reg.Resolve(pkg, "")
			if err != nil {
				return
			}
			if _, err := store.Get(pkg, cand.Source); err != nil {
				log.Warnf(pkg, StepFetch, "warm failed: %v", err)
			}
		}(pkg)
	}
	wg.Wait()
	colSuccess.Printf("warmed %d package(s) in %s\n", len(pkgs), time.Since(start).Round(time.Millisecond))
	return nil
}

// ParallelSearch runs several queries concurrently and prints each
// merged result set as it completes.
func ParallelSearch(s *Searcher, queries []string) error {
	type out struct {
		query   string
		results []SearchResult
		err     error
	}
	ch := make(chan out, len(queries))
	var wg sync.WaitGroup
	for _, q := range queries {
		wg.Add(1)
		go func(q string) {
			defer wg.Done()
			r, err := s.Search(q)
			ch <- out{query: q, results: r, err: err}
		}(q)
	}
	wg.Wait()
	close(ch)

	collected := make(map[string]out, len(queries))
	for o := range ch {
		collected[o.query] = o
	}
	// Print in request order, not completion order.
	for _, q := range queries {
		o := collected[q]
		colInfo.Printf("=== %s ===\n", q)
		if o.err != nil {
			colError.Printf("search failed: %v\n", o.err)
			continue
		}
		PrintResults(o.results)
	}
	return nil
}

// ParallelFetch downloads PKGBUILDs for the named packages concurrently,
// bounded by jobs.
func ParallelFetch(store *PkgbuildStore, reg *Registry, log *LogPane, pkgs []string, jobs int) error {
	if jobs < 1 {
		jobs = 4
	}
	sem := make(chan struct{}, jobs)
	var wg sync.WaitGroup
	var mu sync.Mutex
	failed := 0
	for _, pkg := range pkgs {
		wg.Add(1)
		go func(pkg string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			cand, err := reg.Resolve(pkg, "")
			if err == nil {
				_, err = store.Raw(pkg, cand.Source)
			}
			if err != nil {
				log.Warnf(pkg, StepFetch, "fetch failed: %v", err)
				mu.Lock()
				failed++
				mu.Unlock()
				return
			}
			colSuccess.Printf("fetched %s\n", pkg)
		}(pkg)
	}
	wg.Wait()
	if failed > 0 {
		return stepError(KindFetchFailed, StepFetch, "", fmt.Errorf("%d of %d fetch(es) failed", failed, len(pkgs)))
	}
	return nil
}

// ClearCaches drops the in-memory PKGBUILD memo and every disk cache.
func ClearCaches(log *LogPane, store *PkgbuildStore) error {
	store.ClearMemo()
	reclaimed, err := CleanCaches(log, true)
	if err != nil {
		return err
	}
	colSuccess.Printf("caches cleared (%s reclaimed)\n", humanBytes(reclaimed))
	return nil
}
