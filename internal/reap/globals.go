package reap

import (
	"bufio"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/gookit/color"
)

// Global variables
var (
	arch      = runtime.GOARCH
	version   = "dev"     // overridden at build time
	buildDate = "unknown" // overridden at build time

	// Global executors (assigned in Main)
	UserExec *Executor
	RootExec *Executor

	pathsOnce sync.Once
	configDir string
	cacheDir  string
	dataDir   string
)

// color helpers
var (
	colInfo    = color.Info
	colWarn    = color.Warn
	colError   = color.Error
	colSuccess = color.HEX("#1976D2")
	colArrow   = color.HEX("#FFEB3B")
)

func initPaths() {
	pathsOnce.Do(func() {
		if d, err := os.UserConfigDir(); err == nil {
			configDir = filepath.Join(d, "reap")
		} else {
			configDir = "/tmp/reap-config"
		}
		if d, err := os.UserCacheDir(); err == nil {
			cacheDir = filepath.Join(d, "reap")
		} else {
			cacheDir = "/tmp/reap-cache"
		}
		if d := os.Getenv("XDG_DATA_HOME"); d != "" {
			dataDir = filepath.Join(d, "reap")
		} else if home, err := os.UserHomeDir(); err == nil {
			dataDir = filepath.Join(home, ".local", "share", "reap")
		} else {
			dataDir = "/tmp/reap-data"
		}
	})
}

// ConfigDir returns the reap configuration directory (XDG config based).
func ConfigDir() string {
	initPaths()
	return configDir
}

// CacheDir returns the reap cache directory (XDG cache based).
func CacheDir() string {
	initPaths()
	return cacheDir
}

// DataDir returns the reap data directory (XDG data based).
func DataDir() string {
	initPaths()
	return dataDir
}

// setTestDirs points every data root at a scratch directory. Tests only.
func setTestDirs(base string) {
	initPaths()
	configDir = filepath.Join(base, "config", "reap")
	cacheDir = filepath.Join(base, "cache", "reap")
	dataDir = filepath.Join(base, "data", "reap")
}

// promptYesNo asks on stdout and reads a y/n answer. Anything but an
// explicit yes counts as no.
func promptYesNo(question string) bool {
	colArrow.Printf("%s [y/N] ", question)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

func tapConfigDir() string   { return filepath.Join(ConfigDir(), "taps") }
func tapCloneDir() string    { return filepath.Join(CacheDir(), "taps") }
func aurCacheDir() string    { return filepath.Join(CacheDir(), "aur") }
func trustCacheDir() string  { return filepath.Join(CacheDir(), "trust") }
func searchCacheDir() string { return filepath.Join(CacheDir(), "search") }
func historyDir() string     { return filepath.Join(DataDir(), "history") }
func metricsDir() string     { return filepath.Join(DataDir(), "metrics") }
func hooksDir() string       { return filepath.Join(ConfigDir(), "hooks") }
func profilesDir() string    { return filepath.Join(ConfigDir(), "profiles") }
func syncStatePath() string  { return filepath.Join(DataDir(), ".sync-state.json") }
