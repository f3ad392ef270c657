package reap

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// GlobalConfig is the validated shape of <config>/reap/reap.toml.
type GlobalConfig struct {
	BackendOrder      []string `toml:"backend_order"`
	AutoResolveDeps   bool     `toml:"auto_resolve_deps"`
	NoConfirm         bool     `toml:"noconfirm"`
	LogVerbose        bool     `toml:"log_verbose"`
	Theme             string   `toml:"theme,omitempty"`
	ShowTips          bool     `toml:"show_tips,omitempty"`
	EnableCache       bool     `toml:"enable_cache,omitempty"`
	EnableLuaHooks    bool     `toml:"enable_lua_hooks"`
	ParallelJobs      int      `toml:"parallel_jobs,omitempty"`
	StrictSignatures  bool     `toml:"strict_signatures,omitempty"`
	AutoSync          bool     `toml:"auto_sync,omitempty"`
	SyncIntervalHours int      `toml:"sync_interval_hours,omitempty"`
	GPGKeyserver      string   `toml:"gpg_keyserver,omitempty"`
	BackupBucket      string   `toml:"backup_bucket,omitempty"`
	BackupEndpoint    string   `toml:"backup_endpoint,omitempty"`
	BackupAccessKey   string   `toml:"backup_access_key,omitempty"`
	BackupSecretKey   string   `toml:"backup_secret_key,omitempty"`

	// BinaryRepos maps a repo name to the base URL packages are served from.
	BinaryRepos map[string]string `toml:"binary_repos,omitempty"`
}

// DefaultConfig mirrors the documented defaults for a missing reap.toml.
func DefaultConfig() *GlobalConfig {
	return &GlobalConfig{
		BackendOrder:      []string{"tap", "aur", "pacman", "flatpak"},
		AutoResolveDeps:   true,
		NoConfirm:         true,
		EnableLuaHooks:    true,
		LogVerbose:        true,
		Theme:             "dark",
		EnableCache:       true,
		ParallelJobs:      4,
		AutoSync:          true,
		SyncIntervalHours: 12,
	}
}

func configPath() string { return filepath.Join(ConfigDir(), "reap.toml") }

// LoadConfig reads reap.toml, applies defaults for absent fields, and
// merges REAP_* environment overrides. A malformed file is a ConfigError;
// the caller falls back to defaults but must surface the warning.
func LoadConfig() (*GlobalConfig, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(configPath())
	if err != nil {
		if os.IsNotExist(err) {
			mergeEnvOverrides(cfg)
			return cfg, nil
		}
		return cfg, stepError(KindIO, "config", "", err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return DefaultConfig(), stepError(KindConfigError, "config", "", fmt.Errorf("malformed reap.toml: %w", err))
	}
	if len(cfg.BackendOrder) == 0 {
		cfg.BackendOrder = DefaultConfig().BackendOrder
	}
	if cfg.ParallelJobs <= 0 {
		cfg.ParallelJobs = 4
	}
	if cfg.SyncIntervalHours <= 0 {
		cfg.SyncIntervalHours = 12
	}
	mergeEnvOverrides(cfg)
	return cfg, nil
}

// mergeEnvOverrides applies REAP_* environment variables over the file.
func mergeEnvOverrides(cfg *GlobalConfig) {
	if v := os.Getenv("REAP_BACKEND_ORDER"); v != "" {
		cfg.BackendOrder = strings.Split(v, ",")
	}
	if v := os.Getenv("REAP_PARALLEL_JOBS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ParallelJobs = n
		}
	}
	if v := os.Getenv("REAP_GPG_KEYSERVER"); v != "" {
		cfg.GPGKeyserver = v
	}
	if v := os.Getenv("REAP_NOCONFIRM"); v != "" {
		cfg.NoConfirm = v == "1" || v == "true"
	}
}

// Save writes the config back to reap.toml.
func (c *GlobalConfig) Save() error {
	if err := os.MkdirAll(ConfigDir(), 0o755); err != nil {
		return stepError(KindIO, "config", "", err)
	}
	f, err := os.Create(configPath())
	if err != nil {
		return stepError(KindIO, "config", "", err)
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(c)
}

// settable scalar keys for `config set` / `config get`.
var configKeys = map[string]struct {
	get func(*GlobalConfig) string
	set func(*GlobalConfig, string) error
}{
	"auto_resolve_deps": {
		get: func(c *GlobalConfig) string { return strconv.FormatBool(c.AutoResolveDeps) },
		set: func(c *GlobalConfig, v string) error { return setBool(&c.AutoResolveDeps, v) },
	},
	"noconfirm": {
		get: func(c *GlobalConfig) string { return strconv.FormatBool(c.NoConfirm) },
		set: func(c *GlobalConfig, v string) error { return setBool(&c.NoConfirm, v) },
	},
	"log_verbose": {
		get: func(c *GlobalConfig) string { return strconv.FormatBool(c.LogVerbose) },
		set: func(c *GlobalConfig, v string) error { return setBool(&c.LogVerbose, v) },
	},
	"enable_lua_hooks": {
		get: func(c *GlobalConfig) string { return strconv.FormatBool(c.EnableLuaHooks) },
		set: func(c *GlobalConfig, v string) error { return setBool(&c.EnableLuaHooks, v) },
	},
	"strict_signatures": {
		get: func(c *GlobalConfig) string { return strconv.FormatBool(c.StrictSignatures) },
		set: func(c *GlobalConfig, v string) error { return setBool(&c.StrictSignatures, v) },
	},
	"auto_sync": {
		get: func(c *GlobalConfig) string { return strconv.FormatBool(c.AutoSync) },
		set: func(c *GlobalConfig, v string) error { return setBool(&c.AutoSync, v) },
	},
	"theme": {
		get: func(c *GlobalConfig) string { return c.Theme },
		set: func(c *GlobalConfig, v string) error { c.Theme = v; return nil },
	},
	"gpg_keyserver": {
		get: func(c *GlobalConfig) string { return c.GPGKeyserver },
		set: func(c *GlobalConfig, v string) error { c.GPGKeyserver = v; return nil },
	},
	"parallel_jobs": {
		get: func(c *GlobalConfig) string { return strconv.Itoa(c.ParallelJobs) },
		set: func(c *GlobalConfig, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				return stepError(KindConfigError, "config", "", fmt.Errorf("parallel_jobs wants a positive integer, got %q", v))
			}
			c.ParallelJobs = n
			return nil
		},
	},
	"sync_interval_hours": {
		get: func(c *GlobalConfig) string { return strconv.Itoa(c.SyncIntervalHours) },
		set: func(c *GlobalConfig, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				return stepError(KindConfigError, "config", "", fmt.Errorf("sync_interval_hours wants a positive integer, got %q", v))
			}
			c.SyncIntervalHours = n
			return nil
		},
	},
	"backend_order": {
		get: func(c *GlobalConfig) string { return strings.Join(c.BackendOrder, ",") },
		set: func(c *GlobalConfig, v string) error {
			parts := strings.Split(v, ",")
			for _, p := range parts {
				if _, err := ParseSource(strings.TrimSpace(p)); err != nil {
					return stepError(KindConfigError, "config", "", fmt.Errorf("unknown backend %q", p))
				}
			}
			c.BackendOrder = parts
			return nil
		},
	},
}

func setBool(dst *bool, v string) error {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return stepError(KindConfigError, "config", "", fmt.Errorf("expected true/false, got %q", v))
	}
	*dst = b
	return nil
}

// ConfigGet returns the string form of a scalar key.
func ConfigGet(cfg *GlobalConfig, key string) (string, error) {
	k, ok := configKeys[key]
	if !ok {
		return "", stepError(KindConfigError, "config", "", fmt.Errorf("unknown config key %q", key))
	}
	return k.get(cfg), nil
}

// ConfigSet validates and updates a scalar key, persisting the result.
func ConfigSet(cfg *GlobalConfig, key, value string) error {
	k, ok := configKeys[key]
	if !ok {
		return stepError(KindConfigError, "config", "", fmt.Errorf("unknown config key %q", key))
	}
	if err := k.set(cfg, value); err != nil {
		return err
	}
	return cfg.Save()
}

// ConfigReset restores defaults and persists them.
func ConfigReset() (*GlobalConfig, error) {
	cfg := DefaultConfig()
	return cfg, cfg.Save()
}

// ConfigShow prints all recognized keys in sorted order.
func ConfigShow(cfg *GlobalConfig) {
	keys := make([]string, 0, len(configKeys))
	for k := range configKeys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v, _ := ConfigGet(cfg, k)
		fmt.Printf("%-22s = %s\n", k, v)
	}
}

// --- pins ---

func pinnedPath() string { return filepath.Join(ConfigDir(), "pinned.toml") }

// LoadPinned reads the pin list, one package name per line.
func LoadPinned() []string {
	data, err := os.ReadFile(pinnedPath())
	if err != nil {
		return nil
	}
	var pins []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "#") {
			pins = append(pins, line)
		}
	}
	return pins
}

// PinPackage appends pkg to the pin list. Idempotent.
func PinPackage(pkg string) error {
	for _, p := range LoadPinned() {
		if p == pkg {
			return nil
		}
	}
	if err := os.MkdirAll(ConfigDir(), 0o755); err != nil {
		return stepError(KindIO, "pin", pkg, err)
	}
	f, err := os.OpenFile(pinnedPath(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return stepError(KindIO, "pin", pkg, err)
	}
	defer f.Close()
	_, err = fmt.Fprintln(f, pkg)
	return err
}

// UnpinPackage removes pkg from the pin list.
func UnpinPackage(pkg string) error {
	pins := LoadPinned()
	var kept []string
	for _, p := range pins {
		if p != pkg {
			kept = append(kept, p)
		}
	}
	if len(kept) == len(pins) {
		return nil
	}
	return os.WriteFile(pinnedPath(), []byte(strings.Join(kept, "\n")+"\n"), 0o644)
}

// IsPinned reports whether pkg is excluded from automatic upgrades.
func IsPinned(pkg string) bool {
	for _, p := range LoadPinned() {
		if p == pkg {
			return true
		}
	}
	return false
}
