package reap

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// PackageSnapshot records the state of a package before a mutating
// operation, enough to undo it: the file list from the package db plus
// an on-disk backup of the package's well-known paths.
type PackageSnapshot struct {
	ID             string    `json:"id"`
	Pkg            string    `json:"pkg"`
	Operation      string    `json:"operation"` // install, upgrade, remove, rollback
	Source         string    `json:"source"`
	PriorVersion   string    `json:"prior_version"` // "" when not installed
	NewVersion     string    `json:"new_version,omitempty"`
	InstalledFiles []string  `json:"installed_files,omitempty"`
	Dependencies   []string  `json:"dependencies,omitempty"`
	BackupPath     string    `json:"backup_path,omitempty"`
	ConfigDigest   string    `json:"config_digest,omitempty"`
	TakenAt        time.Time `json:"taken_at"`
}

// PackageHistory is the per-package snapshot log, stored as one JSON
// file under <data>/history/<pkg>/.
type PackageHistory struct {
	Snapshots      []*PackageSnapshot `json:"snapshots"`
	CurrentVersion string             `json:"current_version"`
}

func packageHistoryDir(pkg string) string {
	return filepath.Join(historyDir(), pkg)
}

func historyFilePath(pkg string) string {
	return filepath.Join(packageHistoryDir(pkg), "history.json")
}

func loadHistory(pkg string) *PackageHistory {
	h := &PackageHistory{}
	b, err := os.ReadFile(historyFilePath(pkg))
	if err != nil {
		return h
	}
	if json.Unmarshal(b, h) != nil {
		return &PackageHistory{}
	}
	return h
}

func saveHistory(pkg string, h *PackageHistory) error {
	if err := os.MkdirAll(packageHistoryDir(pkg), 0o755); err != nil {
		return stepError(KindIO, "snapshot", pkg, err)
	}
	b, err := json.MarshalIndent(h, "", "  ")
	if err != nil {
		return stepError(KindIO, "snapshot", pkg, err)
	}
	return os.WriteFile(historyFilePath(pkg), b, 0o644)
}

// TakeSnapshot captures the pre-operation state and persists it. For an
// installed package that means the pacman -Ql file list, the declared
// dependencies, and a file backup under the history dir.
func TakeSnapshot(ex *Executor, pkg, operation string, src Source) (*PackageSnapshot, error) {
	now := time.Now()
	snap := &PackageSnapshot{
		ID:           fmt.Sprintf("%s-%s-%s", now.Format("20060102-150405"), operation, pkg),
		Pkg:          pkg,
		Operation:    operation,
		Source:       src.String(),
		PriorVersion: pacmanVersion(ex, pkg),
		TakenAt:      now,
	}
	if digest, err := fileDigest(configPath()); err == nil {
		snap.ConfigDigest = digest
	}
	if snap.PriorVersion != "" {
		snap.InstalledFiles = pacmanOwnedFiles(ex, pkg)
		snap.Dependencies = pacmanDeclaredDeps(ex, pkg)
		snap.BackupPath = backupPackageFiles(ex, pkg, snap.PriorVersion, now)
	}
	if err := upsertSnapshot(snap, snap.PriorVersion); err != nil {
		return nil, err
	}
	return snap, nil
}

// upsertSnapshot writes snap into its package history, replacing any
// entry with the same ID.
func upsertSnapshot(s *PackageSnapshot, currentVersion string) error {
	h := loadHistory(s.Pkg)
	replaced := false
	for i, existing := range h.Snapshots {
		if existing.ID == s.ID {
			h.Snapshots[i] = s
			replaced = true
			break
		}
	}
	if !replaced {
		h.Snapshots = append(h.Snapshots, s)
	}
	h.CurrentVersion = currentVersion
	return saveHistory(s.Pkg, h)
}

// FinishSnapshot records the post-operation version on an existing
// snapshot and advances the package's current version.
func FinishSnapshot(s *PackageSnapshot, newVersion string) {
	s.NewVersion = newVersion
	_ = upsertSnapshot(s, newVersion)
}

// backupPackageFiles copies the package's well-known paths and its
// pacman metadata into <history>/<pkg>/<version>-<timestamp>/. Returns
// "" when nothing could be backed up; a snapshot without a file backup
// is still usable for archive rollback.
func backupPackageFiles(ex *Executor, pkg, version string, t time.Time) string {
	dir := filepath.Join(packageHistoryDir(pkg), version+"-"+t.Format("20060102150405"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return ""
	}
	wrote := false
	if out, err := ex.Output(exec.Command("pacman", "-Qi", pkg)); err == nil && len(out) > 0 {
		if os.WriteFile(filepath.Join(dir, "pacman-info.txt"), out, 0o644) == nil {
			wrote = true
		}
	}
	for _, src := range []string{
		"/usr/bin/" + pkg,
		"/usr/share/" + pkg,
		"/etc/" + pkg,
	} {
		if copyPath(src, filepath.Join(dir, filepath.Base(src))) == nil {
			wrote = true
		}
	}
	if !wrote {
		os.Remove(dir)
		return ""
	}
	return dir
}

// copyPath copies a file or directory tree. A missing source is an
// error so callers can tell nothing was copied.
func copyPath(src, dest string) error {
	st, err := os.Stat(src)
	if err != nil {
		return err
	}
	if st.IsDir() {
		return copyTree(src, dest)
	}
	b, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dest, b, st.Mode().Perm())
}

// ListSnapshots returns history newest first, optionally filtered by
// package.
func ListSnapshots(pkg string) ([]*PackageSnapshot, error) {
	var snaps []*PackageSnapshot
	if pkg != "" {
		snaps = loadHistory(pkg).Snapshots
	} else {
		entries, err := os.ReadDir(historyDir())
		if err != nil {
			if os.IsNotExist(err) {
				return nil, nil
			}
			return nil, stepError(KindIO, "snapshot", "", err)
		}
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			snaps = append(snaps, loadHistory(e.Name()).Snapshots...)
		}
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].TakenAt.After(snaps[j].TakenAt) })
	return snaps, nil
}

// LatestSnapshot returns the newest snapshot for pkg, or nil.
func LatestSnapshot(pkg string) (*PackageSnapshot, error) {
	snaps, err := ListSnapshots(pkg)
	if err != nil {
		return nil, err
	}
	if len(snaps) == 0 {
		return nil, nil
	}
	return snaps[0], nil
}

// snapshotForVersion finds the newest snapshot that recorded pkg at
// exactly version.
func snapshotForVersion(pkg, version string) (*PackageSnapshot, error) {
	snaps, err := ListSnapshots(pkg)
	if err != nil {
		return nil, err
	}
	for _, s := range snaps {
		if s.PriorVersion == version {
			return s, nil
		}
	}
	return nil, nil
}

// Rollback reverts pkg to a snapshotted state. An empty targetVersion
// means the most recent snapshot; otherwise the newest snapshot taken
// at exactly that version. A prior version of "" means the package did
// not exist and is removed; otherwise the recorded version is
// reinstalled from the package cache.
func Rollback(ex *Executor, log *LogPane, pkg, targetVersion string) error {
	var snap *PackageSnapshot
	var err error
	if targetVersion == "" {
		snap, err = LatestSnapshot(pkg)
	} else {
		snap, err = snapshotForVersion(pkg, targetVersion)
	}
	if err != nil {
		return err
	}
	if snap == nil {
		if targetVersion != "" {
			return stepError(KindNotFound, "rollback", pkg,
				fmt.Errorf("no snapshot of %s at version %s", pkg, targetVersion))
		}
		return stepError(KindNotFound, "rollback", pkg,
			fmt.Errorf("no history recorded for %s", pkg))
	}
	if snap.PriorVersion == "" {
		colInfo.Printf("%s was not installed before %s; removing\n", pkg, snap.ID)
		return removePackage(ex, log, pkg, Source{Kind: SourcePacman})
	}
	cached := findCachedArchive(pkg, snap.PriorVersion)
	if cached == "" {
		detail := fmt.Sprintf("no cached archive for %s %s; cannot roll back", pkg, snap.PriorVersion)
		if snap.BackupPath != "" {
			detail += fmt.Sprintf(" (file backup kept at %s)", snap.BackupPath)
		}
		return stepError(KindNotFound, "rollback", pkg, fmt.Errorf("%s", detail))
	}
	log.Infof(pkg, StepInstall, "rolling back to %s via %s", snap.PriorVersion, cached)
	if err := pacmanU(ex, log, pkg, cached); err != nil {
		return err
	}
	h := loadHistory(pkg)
	h.CurrentVersion = snap.PriorVersion
	return saveHistory(pkg, h)
}

// findCachedArchive searches the build cache and the system package
// cache for pkg at an exact version.
func findCachedArchive(pkg, version string) string {
	dirs := []string{
		filepath.Join(CacheDir(), "pkg"),
		"/var/cache/pacman/pkg",
	}
	for _, dir := range dirs {
		matches, _ := filepath.Glob(filepath.Join(dir, pkg+"-"+version+"-*.pkg.tar.*"))
		for _, m := range matches {
			if !strings.HasSuffix(m, ".sig") {
				return m
			}
		}
	}
	return ""
}

// PrintHistory renders the snapshot log.
func PrintHistory(pkg string, limit int) error {
	snaps, err := ListSnapshots(pkg)
	if err != nil {
		return err
	}
	if len(snaps) == 0 {
		fmt.Println("no history recorded")
		return nil
	}
	if pkg != "" {
		if cur := loadHistory(pkg).CurrentVersion; cur != "" {
			colInfo.Printf("%s current version: %s\n", pkg, cur)
		}
	}
	if limit > 0 && len(snaps) > limit {
		snaps = snaps[:limit]
	}
	for _, s := range snaps {
		from := s.PriorVersion
		if from == "" {
			from = "(none)"
		}
		to := s.NewVersion
		if to == "" {
			to = "(none)"
		}
		fmt.Printf("%s  %-8s %-20s %s -> %s  %s\n",
			s.TakenAt.Format("2006-01-02 15:04"), s.Operation, s.Pkg, from, to, s.Source)
	}
	return nil
}
