package reap

import (
	"fmt"
	"sync"

	"github.com/schollz/progressbar/v3"
)

// BatchResult is the outcome of one package in a parallel install.
type BatchResult struct {
	Pkg string
	Err error
}

// pkgLocks serializes concurrent work on the same package name across
// batch workers.
type pkgLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newPkgLocks() *pkgLocks {
	return &pkgLocks{locks: make(map[string]*sync.Mutex)}
}

func (p *pkgLocks) lock(pkg string) func() {
	p.mu.Lock()
	m, ok := p.locks[pkg]
	if !ok {
		m = &sync.Mutex{}
		p.locks[pkg] = m
	}
	p.mu.Unlock()
	m.Lock()
	return m.Unlock
}

// InstallBatch installs the plan's pending nodes with up to
// parallel_jobs workers. Order within a dependency chain is preserved by
// running each node only after its in-plan dependencies finished; a
// failed dependency fails its dependents without running them.
func (o *Orchestrator) InstallBatch(plan *Plan, opts InstallOptions) []BatchResult {
	pending := plan.ToInstall()
	if len(pending) == 0 {
		return nil
	}

	jobs := o.Config.ParallelJobs
	if jobs < 1 {
		jobs = 1
	}
	sem := make(chan struct{}, jobs)
	locks := newPkgLocks()

	// done closes when a package finishes; failed records its error.
	done := make(map[string]chan struct{}, len(pending))
	inPlan := make(map[string]bool, len(pending))
	for _, n := range pending {
		done[n.Pkg] = make(chan struct{})
		inPlan[n.Pkg] = true
	}
	var failedMu sync.Mutex
	failed := make(map[string]error)

	bar := progressbar.Default(int64(len(pending)), "installing")

	var wg sync.WaitGroup
	for _, node := range pending {
		wg.Add(1)
		go func(node *PlanNode) {
			defer wg.Done()
			defer close(done[node.Pkg])
			defer bar.Add(1)

			for _, dep := range depNames(node) {
				if !inPlan[dep] {
					continue
				}
				<-done[dep]
				failedMu.Lock()
				depErr := failed[dep]
				failedMu.Unlock()
				if depErr != nil {
					failedMu.Lock()
					failed[node.Pkg] = stepError(KindDepConflict, StepInstall, node.Pkg,
						fmt.Errorf("dependency %s failed: %v", dep, depErr))
					failedMu.Unlock()
					return
				}
			}

			sem <- struct{}{}
			unlock := locks.lock(node.Pkg)
			err := o.InstallOne(node, opts)
			unlock()
			<-sem

			if err != nil {
				failedMu.Lock()
				failed[node.Pkg] = err
				failedMu.Unlock()
			}
		}(node)
	}
	wg.Wait()

	results := make([]BatchResult, 0, len(pending))
	for _, n := range pending {
		results = append(results, BatchResult{Pkg: n.Pkg, Err: failed[n.Pkg]})
	}
	return results
}

// ReportBatch prints the per-package outcomes and returns an error when
// any package failed, carrying the first failure's kind.
func ReportBatch(results []BatchResult) error {
	var firstErr error
	failures := 0
	for _, r := range results {
		if r.Err != nil {
			failures++
			colError.Printf("  %-24s %v\n", r.Pkg, r.Err)
			if firstErr == nil {
				firstErr = r.Err
			}
		}
	}
	if failures == 0 {
		return nil
	}
	ok := len(results) - failures
	colWarn.Printf("%d of %d package(s) failed (%d succeeded)\n", failures, len(results), ok)
	if ErrKind(firstErr) == KindCancelled {
		return firstErr
	}
	if ok > 0 {
		return fmt.Errorf("%w: %d of %d", errPartialBatch, failures, len(results))
	}
	return firstErr
}
