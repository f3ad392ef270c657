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

	"github.com/BurntSushi/toml"
	"golang.org/x/sys/unix"
)

// Tap is a user-registered third-party package repository backed by git.
type Tap struct {
	Name     string `toml:"name"`
	URL      string `toml:"url"`
	Priority uint32 `toml:"priority"`
	Enabled  bool   `toml:"enabled"`
}

// Publisher is the signing identity shipped at a tap's root as
// publisher.toml. Absence is a trust signal, not an error.
type Publisher struct {
	Name     string `toml:"name"`
	GPGKeyID string `toml:"gpg_key"`
	Email    string `toml:"email"`
	URL      string `toml:"url"`
	Verified bool   `toml:"verified"`
}

// tapIndexEntry is one value of a tap's index.json object.
type tapIndexEntry struct {
	Desc string `json:"desc"`
	Repo string `json:"repo"`
}

type syncState struct {
	LastSync time.Time `json:"last_sync"`
}

// TapManager discovers, materializes and syncs taps. Clone directories
// are single-writer per tap, serialized with a file lock.
type TapManager struct {
	Log  *LogPane
	Exec *Executor
}

func NewTapManager(log *LogPane, ex *Executor) *TapManager {
	return &TapManager{Log: log, Exec: ex}
}

// tapDirs lists the directories scanned for *.toml tap descriptors.
func tapDirs() []string {
	dirs := []string{tapConfigDir()}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		dirs = append(dirs, filepath.Join(xdg, "reap", "taps"))
	}
	return dirs
}

// Discover scans descriptor directories and returns enabled and disabled
// taps sorted by descending priority, then ascending name.
func (m *TapManager) Discover() []Tap {
	var taps []Tap
	seen := map[string]bool{}
	for _, dir := range tapDirs() {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if !strings.HasSuffix(e.Name(), ".toml") {
				continue
			}
			var t Tap
			if _, err := toml.DecodeFile(filepath.Join(dir, e.Name()), &t); err != nil {
				m.Log.Warnf("", StepPriority, "skipping malformed tap descriptor %s: %v", e.Name(), err)
				continue
			}
			if t.Name == "" || t.URL == "" || seen[t.Name] {
				continue
			}
			seen[t.Name] = true
			taps = append(taps, t)
		}
	}
	sort.Slice(taps, func(i, j int) bool {
		if taps[i].Priority != taps[j].Priority {
			return taps[i].Priority > taps[j].Priority
		}
		return taps[i].Name < taps[j].Name
	})
	return taps
}

// Find returns the named tap or nil.
func (m *TapManager) Find(name string) *Tap {
	for _, t := range m.Discover() {
		if t.Name == name {
			tt := t
			return &tt
		}
	}
	return nil
}

func tapDescriptorPath(name string) string {
	return filepath.Join(tapConfigDir(), name+".toml")
}

// Add writes or updates a tap descriptor.
func (m *TapManager) Add(name, url string, priority uint32, enabled bool) error {
	if err := os.MkdirAll(tapConfigDir(), 0o755); err != nil {
		return stepError(KindIO, "tap", "", err)
	}
	t := Tap{Name: name, URL: url, Priority: priority, Enabled: enabled}
	f, err := os.Create(tapDescriptorPath(name))
	if err != nil {
		return stepError(KindIO, "tap", "", err)
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(t)
}

// Remove deletes both the descriptor and the local clone.
func (m *TapManager) Remove(name string) error {
	if err := os.Remove(tapDescriptorPath(name)); err != nil && !os.IsNotExist(err) {
		return stepError(KindIO, "tap", "", err)
	}
	return os.RemoveAll(filepath.Join(tapCloneDir(), name))
}

// SetEnabled toggles a tap in place.
func (m *TapManager) SetEnabled(name string, enabled bool) error {
	t := m.Find(name)
	if t == nil {
		return stepError(KindNotFound, "tap", "", fmt.Errorf("tap %q is not configured", name))
	}
	return m.Add(t.Name, t.URL, t.Priority, enabled)
}

// ClonePath returns the tap's local clone location.
func (m *TapManager) ClonePath(t *Tap) string {
	return filepath.Join(tapCloneDir(), t.Name)
}

// withTapLock serializes writers on one tap clone.
func (m *TapManager) withTapLock(name string, fn func() error) error {
	if err := os.MkdirAll(tapCloneDir(), 0o755); err != nil {
		return stepError(KindIO, "tap", "", err)
	}
	lockPath := filepath.Join(tapCloneDir(), "."+name+".lock")
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return stepError(KindIO, "tap", "", err)
	}
	defer f.Close()
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		return stepError(KindIO, "tap", "", err)
	}
	defer unix.Flock(int(f.Fd()), unix.LOCK_UN)
	return fn()
}

// EnsureCloned returns the local path for a tap, cloning on first use.
// Idempotent.
func (m *TapManager) EnsureCloned(t *Tap) (string, error) {
	path := m.ClonePath(t)
	err := m.withTapLock(t.Name, func() error {
		if dirExists(filepath.Join(path, ".git")) {
			return nil
		}
		m.Log.Infof("", StepClone, "cloning tap %s from %s", t.Name, t.URL)
		cmd := exec.Command("git", "clone", "--depth=1", t.URL, path)
		if err := m.Exec.Run(cmd); err != nil {
			return stepError(KindFetchFailed, "clone", "", fmt.Errorf("git clone %s: %w", t.URL, err))
		}
		return nil
	})
	return path, err
}

// Pull refreshes an existing clone.
func (m *TapManager) Pull(t *Tap) error {
	path, err := m.EnsureCloned(t)
	if err != nil {
		return err
	}
	return m.withTapLock(t.Name, func() error {
		cmd := exec.Command("git", "-C", path, "pull", "--ff-only")
		if err := m.Exec.Run(cmd); err != nil {
			return stepError(KindFetchFailed, "clone", "", fmt.Errorf("git pull %s: %w", t.Name, err))
		}
		return nil
	})
}

func loadSyncState() syncState {
	var st syncState
	data, err := os.ReadFile(syncStatePath())
	if err == nil {
		json.Unmarshal(data, &st)
	}
	return st
}

func saveSyncState(st syncState) {
	os.MkdirAll(DataDir(), 0o755)
	data, _ := json.Marshal(st)
	os.WriteFile(syncStatePath(), data, 0o644)
}

// SyncEnabled pulls every enabled tap. When manual is false the sync is
// skipped unless auto_sync is on and the configured interval has elapsed
// since the last run.
func (m *TapManager) SyncEnabled(cfg *GlobalConfig, manual bool) error {
	st := loadSyncState()
	if !manual {
		if !cfg.AutoSync {
			return nil
		}
		interval := time.Duration(cfg.SyncIntervalHours) * time.Hour
		if !st.LastSync.IsZero() && time.Since(st.LastSync) < interval {
			return nil
		}
	}
	var firstErr error
	for _, t := range m.Discover() {
		if !t.Enabled {
			continue
		}
		if err := m.Pull(&t); err != nil {
			m.Log.Warnf("", StepClone, "tap %s sync failed: %v", t.Name, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	saveSyncState(syncState{LastSync: time.Now()})
	return firstErr
}

// HasPackage tests <clone>/<pkg>/PKGBUILD existence after ensuring the
// clone.
func (m *TapManager) HasPackage(t *Tap, pkg string) bool {
	path, err := m.EnsureCloned(t)
	if err != nil {
		return false
	}
	return fileExists(pkgbuildPathIn(path, pkg))
}

// PublisherInfo loads <clone>/publisher.toml; a missing file yields nil.
func (m *TapManager) PublisherInfo(t *Tap) (*Publisher, error) {
	path, err := m.EnsureCloned(t)
	if err != nil {
		return nil, err
	}
	pubPath := filepath.Join(path, "publisher.toml")
	if !fileExists(pubPath) {
		return nil, nil
	}
	var p Publisher
	if _, err := toml.DecodeFile(pubPath, &p); err != nil {
		return nil, stepError(KindConfigError, "tap", "", fmt.Errorf("malformed publisher.toml in %s: %w", t.Name, err))
	}
	return &p, nil
}

// SearchIndexes merges every enabled tap's index.json in priority order,
// discarding later duplicates, and filters by query substring.
func (m *TapManager) SearchIndexes(query string) []SearchResult {
	var results []SearchResult
	seen := map[string]bool{}
	for _, t := range m.Discover() {
		if !t.Enabled {
			continue
		}
		path, err := m.EnsureCloned(&t)
		if err != nil {
			continue
		}
		data, err := os.ReadFile(filepath.Join(path, "index.json"))
		if err != nil {
			continue
		}
		var idx map[string]tapIndexEntry
		if err := json.Unmarshal(data, &idx); err != nil {
			m.Log.Warnf("", StepPriority, "tap %s ships a malformed index.json: %v", t.Name, err)
			continue
		}
		names := make([]string, 0, len(idx))
		for name := range idx {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if seen[name] {
				continue
			}
			entry := idx[name]
			if query != "" && !strings.Contains(name, query) && !strings.Contains(entry.Desc, query) {
				continue
			}
			seen[name] = true
			results = append(results, SearchResult{
				Name:        name,
				Description: entry.Desc,
				Source:      Source{Kind: SourceTap, Name: t.Name},
			})
		}
	}
	return results
}

// List prints every discovered tap.
func (m *TapManager) List() {
	for _, t := range m.Discover() {
		fmt.Printf("%s | %s | enabled=%v | priority=%d\n", t.Name, t.URL, t.Enabled, t.Priority)
	}
}
