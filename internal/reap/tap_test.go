package reap

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func newTestTapManager(t *testing.T) *TapManager {
	t.Helper()
	setTestDirs(t.TempDir())
	t.Setenv("XDG_DATA_HOME", "")
	return NewTapManager(NewLogPane(nil), NewExecutor(context.Background()))
}

func TestTapAddDiscoverFind(t *testing.T) {
	m := newTestTapManager(t)

	if err := m.Add("utils", "https://example.org/utils.git", 5, true); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := m.Add("themes", "https://example.org/themes.git", 9, false); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := m.Add("extra", "https://example.org/extra.git", 5, true); err != nil {
		t.Fatalf("Add: %v", err)
	}

	taps := m.Discover()
	if len(taps) != 3 {
		t.Fatalf("Discover returned %d taps, want 3", len(taps))
	}
	// descending priority, then ascending name
	if taps[0].Name != "themes" || taps[1].Name != "extra" || taps[2].Name != "utils" {
		t.Errorf("order = %s, %s, %s", taps[0].Name, taps[1].Name, taps[2].Name)
	}

	found := m.Find("utils")
	if found == nil || found.URL != "https://example.org/utils.git" || !found.Enabled {
		t.Errorf("Find(utils) = %+v", found)
	}
	if m.Find("ghost") != nil {
		t.Error("Find returned a tap that was never added")
	}
}

func TestTapDiscoverSkipsMalformed(t *testing.T) {
	m := newTestTapManager(t)
	if err := os.MkdirAll(tapConfigDir(), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(tapConfigDir(), "broken.toml"), []byte("name = [not toml"), 0o644); err != nil {
		t.Fatal(err)
	}
	// descriptor without a URL is incomplete
	if err := os.WriteFile(filepath.Join(tapConfigDir(), "nameless.toml"), []byte("name = \"x\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := m.Add("good", "https://example.org/good.git", 1, true); err != nil {
		t.Fatal(err)
	}

	taps := m.Discover()
	if len(taps) != 1 || taps[0].Name != "good" {
		t.Errorf("Discover = %+v, want only good", taps)
	}
}

func TestTapSetEnabled(t *testing.T) {
	m := newTestTapManager(t)
	if err := m.SetEnabled("ghost", false); err == nil {
		t.Error("SetEnabled on a missing tap succeeded")
	}
	if err := m.Add("utils", "https://example.org/utils.git", 5, true); err != nil {
		t.Fatal(err)
	}
	if err := m.SetEnabled("utils", false); err != nil {
		t.Fatalf("SetEnabled: %v", err)
	}
	if tap := m.Find("utils"); tap == nil || tap.Enabled {
		t.Errorf("tap = %+v, want disabled", tap)
	}
	if tap := m.Find("utils"); tap.Priority != 5 || tap.URL != "https://example.org/utils.git" {
		t.Errorf("toggle lost fields: %+v", tap)
	}
}

func TestTapRemove(t *testing.T) {
	m := newTestTapManager(t)
	if err := m.Add("utils", "https://example.org/utils.git", 5, true); err != nil {
		t.Fatal(err)
	}
	clone := filepath.Join(tapCloneDir(), "utils")
	if err := os.MkdirAll(clone, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := m.Remove("utils"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if m.Find("utils") != nil {
		t.Error("descriptor survived removal")
	}
	if dirExists(clone) {
		t.Error("clone survived removal")
	}
	if err := m.Remove("utils"); err != nil {
		t.Errorf("second Remove should be a no-op: %v", err)
	}
}

func TestTapSyncIntervalGate(t *testing.T) {
	m := newTestTapManager(t)
	cfg := DefaultConfig()

	// No taps configured: a sync is a no-op either way, but the manual
	// path must stamp the sync state while the gated path must not run
	// again inside the interval.
	if err := m.SyncEnabled(cfg, true); err != nil {
		t.Fatalf("manual sync: %v", err)
	}
	st := loadSyncState()
	if st.LastSync.IsZero() {
		t.Fatal("manual sync did not record a timestamp")
	}

	cfg.AutoSync = false
	if err := m.SyncEnabled(cfg, false); err != nil {
		t.Errorf("auto sync with auto_sync=false: %v", err)
	}

	cfg.AutoSync = true
	before := loadSyncState().LastSync
	if err := m.SyncEnabled(cfg, false); err != nil {
		t.Errorf("gated sync: %v", err)
	}
	if !loadSyncState().LastSync.Equal(before) {
		t.Error("sync ran inside the configured interval")
	}
}
