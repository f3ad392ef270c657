package reap

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestSnapshotLifecycle(t *testing.T) {
	setTestDirs(t.TempDir())
	ex := NewExecutor(context.Background())

	snap, err := TakeSnapshot(ex, "demo", "install", Source{Kind: SourceAur})
	if err != nil {
		t.Fatalf("TakeSnapshot: %v", err)
	}
	if snap.Pkg != "demo" || snap.Operation != "install" || snap.Source != "aur" {
		t.Errorf("snapshot = %+v", snap)
	}
	if !fileExists(historyFilePath("demo")) {
		t.Fatal("history file not persisted")
	}

	FinishSnapshot(snap, "1.2-1")
	reloaded, err := LatestSnapshot("demo")
	if err != nil {
		t.Fatalf("LatestSnapshot: %v", err)
	}
	if reloaded == nil || reloaded.NewVersion != "1.2-1" {
		t.Errorf("reloaded = %+v, want NewVersion 1.2-1", reloaded)
	}
	if got := loadHistory("demo").CurrentVersion; got != "1.2-1" {
		t.Errorf("current version = %q, want 1.2-1", got)
	}
	if n := len(loadHistory("demo").Snapshots); n != 1 {
		t.Errorf("history has %d snapshots, want 1 after finish", n)
	}
}

func TestListSnapshotsFilterAndOrder(t *testing.T) {
	setTestDirs(t.TempDir())

	base := time.Now()
	for i, pkg := range []string{"alpha", "beta", "alpha"} {
		s := &PackageSnapshot{
			ID:        time.Now().Format("20060102-150405") + "-install-" + pkg + string(rune('a'+i)),
			Pkg:       pkg,
			Operation: "install",
			TakenAt:   base.Add(time.Duration(i) * time.Minute),
		}
		if err := upsertSnapshot(s, ""); err != nil {
			t.Fatal(err)
		}
	}

	all, err := ListSnapshots("")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("ListSnapshots returned %d, want 3", len(all))
	}
	if !all[0].TakenAt.After(all[1].TakenAt) || !all[1].TakenAt.After(all[2].TakenAt) {
		t.Error("snapshots not newest first")
	}

	alphas, err := ListSnapshots("alpha")
	if err != nil {
		t.Fatal(err)
	}
	if len(alphas) != 2 {
		t.Errorf("filter by pkg returned %d, want 2", len(alphas))
	}
	for _, s := range alphas {
		if s.Pkg != "alpha" {
			t.Errorf("filter leaked %s", s.Pkg)
		}
	}
}

func TestListSnapshotsEmpty(t *testing.T) {
	setTestDirs(t.TempDir())
	snaps, err := ListSnapshots("")
	if err != nil {
		t.Fatalf("missing history dir: %v", err)
	}
	if len(snaps) != 0 {
		t.Errorf("got %d snapshots from empty dir", len(snaps))
	}
	latest, err := LatestSnapshot("anything")
	if err != nil || latest != nil {
		t.Errorf("LatestSnapshot = %+v, %v", latest, err)
	}
}

func TestListSnapshotsSkipsGarbage(t *testing.T) {
	setTestDirs(t.TempDir())
	if err := os.MkdirAll(filepath.Join(historyDir(), "corrupt"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(historyDir(), "corrupt", "history.json"), []byte("not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(historyDir(), "README"), []byte("ignore"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := upsertSnapshot(&PackageSnapshot{ID: "x", Pkg: "real", TakenAt: time.Now()}, ""); err != nil {
		t.Fatal(err)
	}
	snaps, err := ListSnapshots("")
	if err != nil {
		t.Fatal(err)
	}
	if len(snaps) != 1 || snaps[0].Pkg != "real" {
		t.Errorf("snaps = %+v", snaps)
	}
}

func TestSnapshotForVersionPicksExactMatch(t *testing.T) {
	setTestDirs(t.TempDir())
	for i, ver := range []string{"1.0-1", "1.1-1", "1.2-1"} {
		s := &PackageSnapshot{
			ID:           "snap-" + ver,
			Pkg:          "demo",
			Operation:    "upgrade",
			PriorVersion: ver,
			TakenAt:      time.Now().Add(time.Duration(i) * time.Minute),
		}
		if err := upsertSnapshot(s, ver); err != nil {
			t.Fatal(err)
		}
	}
	snap, err := snapshotForVersion("demo", "1.1-1")
	if err != nil {
		t.Fatal(err)
	}
	if snap == nil || snap.PriorVersion != "1.1-1" {
		t.Errorf("snapshotForVersion = %+v", snap)
	}
	missing, err := snapshotForVersion("demo", "9.9-9")
	if err != nil || missing != nil {
		t.Errorf("unknown version returned %+v, %v", missing, err)
	}
}

func TestRollbackTargetVersionNotSnapshotted(t *testing.T) {
	setTestDirs(t.TempDir())
	ex := NewExecutor(context.Background())
	log := NewLogPane(nil)

	if err := upsertSnapshot(&PackageSnapshot{
		ID: "snap-1", Pkg: "demo", PriorVersion: "1.0-1", TakenAt: time.Now(),
	}, "1.0-1"); err != nil {
		t.Fatal(err)
	}
	err := Rollback(ex, log, "demo", "2.0-1")
	if ErrKind(err) != KindNotFound {
		t.Fatalf("rollback to unknown version: %v", err)
	}
	if !strings.Contains(err.Error(), "2.0-1") {
		t.Errorf("error does not name the version: %v", err)
	}
}

func TestRollbackNoHistory(t *testing.T) {
	setTestDirs(t.TempDir())
	err := Rollback(NewExecutor(context.Background()), NewLogPane(nil), "ghost", "")
	if ErrKind(err) != KindNotFound {
		t.Errorf("rollback without history: %v", err)
	}
}

func TestBackupPackageFilesSkipsMissingPaths(t *testing.T) {
	setTestDirs(t.TempDir())
	ex := NewExecutor(context.Background())
	// Nothing under /usr/bin, /usr/share or /etc matches this name and
	// pacman has no entry for it, so no backup dir should remain.
	got := backupPackageFiles(ex, "reaptest-no-such-pkg", "1.0-1", time.Now())
	if got != "" {
		t.Errorf("backup dir = %q, want none", got)
	}
	entries, _ := os.ReadDir(packageHistoryDir("reaptest-no-such-pkg"))
	if len(entries) != 0 {
		t.Errorf("stray backup entries: %v", entries)
	}
}

func TestCopyPathFileAndTree(t *testing.T) {
	base := t.TempDir()
	src := filepath.Join(base, "src")
	if err := os.MkdirAll(filepath.Join(src, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "sub", "conf"), []byte("k=v"), 0o600); err != nil {
		t.Fatal(err)
	}
	dest := filepath.Join(base, "dest")
	if err := copyPath(src, dest); err != nil {
		t.Fatalf("copyPath tree: %v", err)
	}
	b, err := os.ReadFile(filepath.Join(dest, "sub", "conf"))
	if err != nil || string(b) != "k=v" {
		t.Errorf("copied tree content = %q, %v", b, err)
	}
	if err := copyPath(filepath.Join(base, "missing"), filepath.Join(base, "x")); err == nil {
		t.Error("copying a missing path succeeded")
	}
}
