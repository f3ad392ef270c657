package reap

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// ProfileConfig is an overlay applied on top of the global config.
// Unset optional fields inherit the global value.
type ProfileConfig struct {
	Name             string   `toml:"name"`
	BackendOrder     []string `toml:"backend_order"`
	AutoInstallDeps  []string `toml:"auto_install_deps"`
	PinnedPackages   []string `toml:"pinned_packages"`
	IgnoredPackages  []string `toml:"ignored_packages"`
	ParallelJobs     *int     `toml:"parallel_jobs"`
	FastMode         *bool    `toml:"fast_mode"`
	StrictSignatures *bool    `toml:"strict_signatures"`
	AutoResolveDeps  *bool    `toml:"auto_resolve_deps"`
}

// DefaultProfile matches what `profile create` writes with no template.
func DefaultProfile(name string) *ProfileConfig {
	jobs := 4
	f := false
	t := true
	return &ProfileConfig{
		Name:             name,
		BackendOrder:     []string{"tap", "aur", "pacman"},
		ParallelJobs:     &jobs,
		FastMode:         &f,
		StrictSignatures: &f,
		AutoResolveDeps:  &t,
	}
}

// Built-in profile templates restored from upstream.
func profileTemplate(name string) *ProfileConfig {
	switch name {
	case "developer":
		p := DefaultProfile(name)
		p.BackendOrder = []string{"tap", "aur", "flatpak"}
		p.AutoInstallDeps = []string{"base-devel", "git", "rust", "nodejs", "python"}
		p.PinnedPackages = []string{"linux-lts"}
		jobs := 8
		strict := true
		p.ParallelJobs = &jobs
		p.StrictSignatures = &strict
		return p
	case "gaming":
		p := DefaultProfile(name)
		p.BackendOrder = []string{"flatpak", "aur"}
		p.AutoInstallDeps = []string{"steam", "lutris", "wine", "gamemode"}
		jobs := 6
		fast := true
		p.ParallelJobs = &jobs
		p.FastMode = &fast
		return p
	case "minimal":
		p := DefaultProfile(name)
		p.BackendOrder = []string{"pacman", "aur"}
		jobs := 2
		fast := true
		noResolve := false
		p.ParallelJobs = &jobs
		p.FastMode = &fast
		p.AutoResolveDeps = &noResolve
		return p
	default:
		return DefaultProfile(name)
	}
}

func profilePath(name string) string {
	return filepath.Join(profilesDir(), name+".toml")
}

func activeProfilePath() string {
	return filepath.Join(profilesDir(), ".active")
}

// SaveProfile persists a profile as TOML.
func SaveProfile(p *ProfileConfig) error {
	if err := os.MkdirAll(profilesDir(), 0o755); err != nil {
		return stepError(KindIO, "profile", "", err)
	}
	f, err := os.Create(profilePath(p.Name))
	if err != nil {
		return stepError(KindIO, "profile", "", err)
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(p)
}

// LoadProfile reads one profile; a missing file yields the default shape.
func LoadProfile(name string) (*ProfileConfig, error) {
	data, err := os.ReadFile(profilePath(name))
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultProfile(name), nil
		}
		return nil, stepError(KindIO, "profile", "", err)
	}
	p := &ProfileConfig{}
	if err := toml.Unmarshal(data, p); err != nil {
		return nil, stepError(KindConfigError, "profile", "", fmt.Errorf("malformed profile %s: %w", name, err))
	}
	if p.Name == "" {
		p.Name = name
	}
	return p, nil
}

// ActiveProfileName reads the .active marker; empty means no overlay.
func ActiveProfileName() string {
	data, err := os.ReadFile(activeProfilePath())
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// SwitchProfile validates the target exists and updates the marker.
func SwitchProfile(name string) error {
	if _, err := os.Stat(profilePath(name)); err != nil {
		return stepError(KindNotFound, "profile", "", fmt.Errorf("profile %q does not exist", name))
	}
	if err := os.MkdirAll(profilesDir(), 0o755); err != nil {
		return stepError(KindIO, "profile", "", err)
	}
	return os.WriteFile(activeProfilePath(), []byte(name), 0o644)
}

// ListProfiles returns profile names sorted ascending.
func ListProfiles() []string {
	entries, err := os.ReadDir(profilesDir())
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".toml") {
			names = append(names, strings.TrimSuffix(e.Name(), ".toml"))
		}
	}
	sort.Strings(names)
	return names
}

// DeleteProfile removes a profile. The default profile is protected.
func DeleteProfile(name string) error {
	if name == "default" {
		return stepError(KindConfigError, "profile", "", fmt.Errorf("cannot delete the default profile"))
	}
	if err := os.Remove(profilePath(name)); err != nil && !os.IsNotExist(err) {
		return stepError(KindIO, "profile", "", err)
	}
	if ActiveProfileName() == name {
		os.Remove(activeProfilePath())
	}
	return nil
}

// EffectiveConfig applies the active profile overlay over the global
// config. CLI flags are applied later, on top of the result.
func EffectiveConfig(cfg *GlobalConfig) *GlobalConfig {
	name := ActiveProfileName()
	if name == "" {
		return cfg
	}
	prof, err := LoadProfile(name)
	if err != nil {
		return cfg
	}
	out := *cfg
	if len(prof.BackendOrder) > 0 {
		out.BackendOrder = prof.BackendOrder
	}
	if prof.ParallelJobs != nil {
		out.ParallelJobs = *prof.ParallelJobs
	}
	if prof.StrictSignatures != nil {
		out.StrictSignatures = *prof.StrictSignatures
	}
	if prof.AutoResolveDeps != nil {
		out.AutoResolveDeps = *prof.AutoResolveDeps
	}
	return &out
}

// ProfileIgnored reports whether the active profile ignores pkg.
func ProfileIgnored(pkg string) bool {
	name := ActiveProfileName()
	if name == "" {
		return false
	}
	prof, err := LoadProfile(name)
	if err != nil {
		return false
	}
	for _, p := range prof.IgnoredPackages {
		if p == pkg {
			return true
		}
	}
	return false
}

// ProfilePinned reports whether the active profile pins pkg.
func ProfilePinned(pkg string) bool {
	name := ActiveProfileName()
	if name == "" {
		return false
	}
	prof, err := LoadProfile(name)
	if err != nil {
		return false
	}
	for _, p := range prof.PinnedPackages {
		if p == pkg {
			return true
		}
	}
	return false
}
