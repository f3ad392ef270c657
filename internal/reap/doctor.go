package reap

import (
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Doctor runs environment health checks and prints a pass/fail report.
// The returned count is the number of failed checks.
func Doctor(ex *Executor, cfg *GlobalConfig, taps *TapManager) int {
	failures := 0
	check := func(name string, ok bool, detail string) {
		if ok {
			colSuccess.Printf("  ok    %s\n", name)
			return
		}
		failures++
		colError.Printf("  FAIL  %s", name)
		if detail != "" {
			fmt.Printf(" (%s)", detail)
		}
		fmt.Println()
	}

	colInfo.Printf("reap doctor\n")

	check("pacman on PATH", commandOnPath("pacman"), "required for installs")
	check("makepkg on PATH", commandOnPath("makepkg"), "required for source builds")
	check("git on PATH", commandOnPath("git"), "required for AUR and taps")
	check("gpg on PATH", commandOnPath("gpg"), "required for signature checks")
	if commandOnPath("flatpak") {
		check("flatpak on PATH", true, "")
	} else {
		colWarn.Printf("  skip  flatpak not installed (flatpak backend disabled)\n")
	}

	check("pacman database unlocked", !fileExists("/var/lib/pacman/db.lck"),
		"remove /var/lib/pacman/db.lck if no pacman is running")

	for _, dir := range []string{ConfigDir(), CacheDir(), DataDir()} {
		err := os.MkdirAll(dir, 0o755)
		check("writable "+dir, err == nil && writable(dir), "")
	}

	_, err := exec.LookPath("sudo")
	check("sudo available", err == nil, "privileged installs need sudo")

	for _, tap := range taps.Discover() {
		if !tap.Enabled {
			continue
		}
		clone := taps.ClonePath(&tap)
		check("tap "+tap.Name+" cloned", dirExists(filepath.Join(clone, ".git")),
			"run: reap tap sync")
	}

	if len(cfg.BackendOrder) == 0 {
		check("backend_order configured", false, "empty backend_order in reap.toml")
	} else {
		check("backend_order configured", true, "")
	}

	if failures == 0 {
		colSuccess.Printf("all checks passed\n")
	} else {
		colWarn.Printf("%d check(s) failed\n", failures)
	}
	return failures
}

func writable(dir string) bool {
	probe := filepath.Join(dir, ".reap-doctor")
	if err := os.WriteFile(probe, nil, 0o644); err != nil {
		return false
	}
	os.Remove(probe)
	return true
}

// CleanCaches removes build scratch space and, when deep, every cached
// download and parsed PKGBUILD. Returns bytes reclaimed.
func CleanCaches(log *LogPane, deep bool) (int64, error) {
	// Scratch dirs left behind by interrupted builds.
	targets, _ := filepath.Glob(filepath.Join(CacheDir(), "reap-aur-*"))
	targets = append(targets, filepath.Join(CacheDir(), "edit"))
	if deep {
		targets = append(targets,
			filepath.Join(CacheDir(), "bin"),
			filepath.Join(CacheDir(), "pkg"),
			aurCacheDir(),
			searchCacheDir(),
		)
	}
	var reclaimed int64
	for _, dir := range targets {
		size := dirSize(dir)
		if err := os.RemoveAll(dir); err != nil {
			return reclaimed, stepError(KindIO, StepCleanup, "", err)
		}
		if size > 0 {
			log.Infof("", StepCleanup, "removed %s (%s)", dir, humanBytes(size))
			reclaimed += size
		}
	}
	return reclaimed, nil
}

func dirSize(dir string) int64 {
	var total int64
	filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			total += info.Size()
		}
		return nil
	})
	return total
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// RemoveOrphans deletes dependency packages nothing requires anymore,
// after confirmation.
func RemoveOrphans(ex *Executor, log *LogPane, noconfirm bool) error {
	orphans := orphanPackages(ex)
	if len(orphans) == 0 {
		colSuccess.Printf("no orphaned packages\n")
		return nil
	}
	colInfo.Printf("orphaned packages:\n")
	for _, p := range orphans {
		fmt.Printf("  %s\n", p)
	}
	if !noconfirm && !promptYesNo(fmt.Sprintf("Remove %d orphan(s)?", len(orphans))) {
		return nil
	}
	args := append([]string{"-Rns", "--noconfirm"}, orphans...)
	cmd := exec.Command("pacman", args...)
	if err := ex.RunStreamed(cmd, log, "", StepInstall); err != nil {
		return installErr("", err)
	}
	colSuccess.Printf("removed %d orphan(s)\n", len(orphans))
	return nil
}

// CacheStats prints per-cache entry counts and sizes.
func CacheStats() {
	caches := []struct {
		name string
		dir  string
	}{
		{"aur pkgbuilds", aurCacheDir()},
		{"search results", searchCacheDir()},
		{"trust reports", trustCacheDir()},
		{"built packages", filepath.Join(CacheDir(), "pkg")},
		{"binary downloads", filepath.Join(CacheDir(), "bin")},
		{"tap clones", tapCloneDir()},
	}
	colInfo.Printf("cache statistics\n")
	for _, c := range caches {
		count := 0
		filepath.WalkDir(c.dir, func(path string, d fs.DirEntry, err error) error {
			if err == nil && !d.IsDir() {
				count++
			}
			return nil
		})
		fmt.Printf("  %-18s %5d file(s)  %s\n", c.name, count, humanBytes(dirSize(c.dir)))
	}
}

// PackageInfo prints everything known about one package.
func PackageInfo(ex *Executor, reg *Registry, store *PkgbuildStore, trust *TrustEngine, pkg string) error {
	if pacmanInstalled(ex, pkg) {
		out, err := ex.Output(exec.Command("pacman", "-Qi", pkg))
		if err == nil {
			fmt.Print(string(out))
		}
	}
	cand, err := reg.Resolve(pkg, "")
	if err != nil {
		return err
	}
	colInfo.Printf("source: %s\n", cand.Source.Label())
	if info, err := store.Get(pkg, cand.Source); err == nil && info != nil {
		fmt.Printf("version: %s\n", info.Version)
		if info.Description != "" {
			fmt.Printf("description: %s\n", info.Description)
		}
		if len(info.Dependencies) > 0 {
			fmt.Printf("depends: %s\n", strings.Join(info.Dependencies, " "))
		}
		if len(info.MakeDependencies) > 0 {
			fmt.Printf("makedepends: %s\n", strings.Join(info.MakeDependencies, " "))
		}
	}
	if report := trust.CachedReport(pkg); report != nil {
		badgeColor(report.Badge)("trust: %.1f/10 [%s]\n", report.Score, report.Badge)
	}
	if IsPinned(pkg) {
		colWarn.Printf("pinned: yes\n")
	}
	return nil
}
