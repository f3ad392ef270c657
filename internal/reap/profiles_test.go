package reap

import (
	"reflect"
	"testing"
)

func TestProfileSaveLoadRoundTrip(t *testing.T) {
	setTestDirs(t.TempDir())

	p := profileTemplate("developer")
	if err := SaveProfile(p); err != nil {
		t.Fatalf("SaveProfile: %v", err)
	}
	loaded, err := LoadProfile("developer")
	if err != nil {
		t.Fatalf("LoadProfile: %v", err)
	}
	if loaded.Name != p.Name {
		t.Errorf("Name = %q, want %q", loaded.Name, p.Name)
	}
	if !reflect.DeepEqual(loaded.BackendOrder, p.BackendOrder) {
		t.Errorf("BackendOrder = %v, want %v", loaded.BackendOrder, p.BackendOrder)
	}
	if !reflect.DeepEqual(loaded.AutoInstallDeps, p.AutoInstallDeps) {
		t.Errorf("AutoInstallDeps = %v, want %v", loaded.AutoInstallDeps, p.AutoInstallDeps)
	}
	if !reflect.DeepEqual(loaded.PinnedPackages, p.PinnedPackages) {
		t.Errorf("PinnedPackages = %v, want %v", loaded.PinnedPackages, p.PinnedPackages)
	}
	if loaded.ParallelJobs == nil || *loaded.ParallelJobs != *p.ParallelJobs {
		t.Errorf("ParallelJobs = %v, want %d", loaded.ParallelJobs, *p.ParallelJobs)
	}
	if loaded.StrictSignatures == nil || *loaded.StrictSignatures != *p.StrictSignatures {
		t.Errorf("StrictSignatures = %v", loaded.StrictSignatures)
	}
}

func TestLoadProfileMissingYieldsDefault(t *testing.T) {
	setTestDirs(t.TempDir())
	p, err := LoadProfile("nonexistent")
	if err != nil {
		t.Fatalf("LoadProfile: %v", err)
	}
	if p.Name != "nonexistent" {
		t.Errorf("Name = %q", p.Name)
	}
	if len(p.BackendOrder) == 0 {
		t.Error("default profile missing backend order")
	}
}

func TestProfileTemplates(t *testing.T) {
	dev := profileTemplate("developer")
	if dev.StrictSignatures == nil || !*dev.StrictSignatures {
		t.Error("developer template should enforce signatures")
	}
	if dev.ParallelJobs == nil || *dev.ParallelJobs != 8 {
		t.Error("developer template should run 8 jobs")
	}

	gaming := profileTemplate("gaming")
	if gaming.BackendOrder[0] != "flatpak" {
		t.Errorf("gaming backend order = %v", gaming.BackendOrder)
	}

	minimal := profileTemplate("minimal")
	if minimal.AutoResolveDeps == nil || *minimal.AutoResolveDeps {
		t.Error("minimal template should disable dep resolution")
	}

	plain := profileTemplate("custom-name")
	if plain.Name != "custom-name" {
		t.Errorf("fallback template Name = %q", plain.Name)
	}
}

func TestSwitchListDeleteProfile(t *testing.T) {
	setTestDirs(t.TempDir())

	if err := SwitchProfile("ghost"); err == nil {
		t.Error("switched to a profile that does not exist")
	}

	for _, name := range []string{"work", "home"} {
		if err := SaveProfile(DefaultProfile(name)); err != nil {
			t.Fatal(err)
		}
	}
	if got := ListProfiles(); !reflect.DeepEqual(got, []string{"home", "work"}) {
		t.Errorf("ListProfiles = %v", got)
	}

	if err := SwitchProfile("work"); err != nil {
		t.Fatalf("SwitchProfile: %v", err)
	}
	if ActiveProfileName() != "work" {
		t.Errorf("active = %q, want work", ActiveProfileName())
	}

	if err := DeleteProfile("default"); err == nil {
		t.Error("default profile deletion allowed")
	}
	if err := DeleteProfile("work"); err != nil {
		t.Fatalf("DeleteProfile: %v", err)
	}
	if ActiveProfileName() != "" {
		t.Error("deleting the active profile left the marker behind")
	}
	if got := ListProfiles(); !reflect.DeepEqual(got, []string{"home"}) {
		t.Errorf("ListProfiles after delete = %v", got)
	}
}

func TestEffectiveConfigOverlay(t *testing.T) {
	setTestDirs(t.TempDir())

	cfg := DefaultConfig()
	if got := EffectiveConfig(cfg); got != cfg {
		t.Error("no active profile should return the config unchanged")
	}

	jobs := 12
	strict := true
	p := &ProfileConfig{
		Name:             "ci",
		BackendOrder:     []string{"pacman"},
		ParallelJobs:     &jobs,
		StrictSignatures: &strict,
		PinnedPackages:   []string{"linux"},
		IgnoredPackages:  []string{"chromium"},
	}
	if err := SaveProfile(p); err != nil {
		t.Fatal(err)
	}
	if err := SwitchProfile("ci"); err != nil {
		t.Fatal(err)
	}

	eff := EffectiveConfig(cfg)
	if eff == cfg {
		t.Fatal("overlay should copy, not mutate, the global config")
	}
	if eff.ParallelJobs != 12 || !eff.StrictSignatures {
		t.Errorf("overlay not applied: %+v", eff)
	}
	if !reflect.DeepEqual(eff.BackendOrder, []string{"pacman"}) {
		t.Errorf("BackendOrder = %v", eff.BackendOrder)
	}
	if cfg.ParallelJobs == 12 {
		t.Error("global config mutated by overlay")
	}

	if !ProfilePinned("linux") || ProfilePinned("vim") {
		t.Error("ProfilePinned wrong")
	}
	if !ProfileIgnored("chromium") || ProfileIgnored("vim") {
		t.Error("ProfileIgnored wrong")
	}
}
