package reap

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"REAP_BACKEND_ORDER", "REAP_PARALLEL_JOBS", "REAP_GPG_KEYSERVER", "REAP_NOCONFIRM"} {
		t.Setenv(k, "")
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	setTestDirs(t.TempDir())
	clearConfigEnv(t)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig on missing file: %v", err)
	}
	want := DefaultConfig()
	if !reflect.DeepEqual(cfg, want) {
		t.Errorf("cfg = %+v, want defaults %+v", cfg, want)
	}
}

func TestHooksEnabledByDefaultAndTogglable(t *testing.T) {
	setTestDirs(t.TempDir())
	clearConfigEnv(t)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if !cfg.EnableLuaHooks {
		t.Fatal("hooks disabled out of the box")
	}
	if err := ConfigSet(cfg, "enable_lua_hooks", "false"); err != nil {
		t.Fatalf("ConfigSet: %v", err)
	}
	loaded, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig after set: %v", err)
	}
	if loaded.EnableLuaHooks {
		t.Error("disabling hooks did not survive a reload")
	}
}

func TestLoadConfigMalformed(t *testing.T) {
	setTestDirs(t.TempDir())
	clearConfigEnv(t)

	if err := os.MkdirAll(ConfigDir(), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(ConfigDir(), "reap.toml"), []byte("backend_order = [unclosed"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig()
	if err == nil {
		t.Fatal("malformed reap.toml accepted")
	}
	var re *ReapError
	if !errors.As(err, &re) || re.Kind != KindConfigError {
		t.Errorf("error = %v, want KindConfigError", err)
	}
	if cfg == nil || len(cfg.BackendOrder) == 0 {
		t.Error("malformed config did not fall back to defaults")
	}
}

func TestLoadConfigPartialFile(t *testing.T) {
	setTestDirs(t.TempDir())
	clearConfigEnv(t)

	if err := os.MkdirAll(ConfigDir(), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(ConfigDir(), "reap.toml"), []byte("parallel_jobs = 8\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.ParallelJobs != 8 {
		t.Errorf("ParallelJobs = %d, want 8", cfg.ParallelJobs)
	}
	if len(cfg.BackendOrder) == 0 {
		t.Error("BackendOrder default not applied")
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	setTestDirs(t.TempDir())
	clearConfigEnv(t)
	t.Setenv("REAP_PARALLEL_JOBS", "16")
	t.Setenv("REAP_GPG_KEYSERVER", "hkps://example.org")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.ParallelJobs != 16 {
		t.Errorf("ParallelJobs = %d, want 16 from env", cfg.ParallelJobs)
	}
	if cfg.GPGKeyserver != "hkps://example.org" {
		t.Errorf("GPGKeyserver = %q", cfg.GPGKeyserver)
	}
}

func TestConfigSetGetRoundTrip(t *testing.T) {
	setTestDirs(t.TempDir())
	clearConfigEnv(t)

	cfg := DefaultConfig()
	if err := ConfigSet(cfg, "parallel_jobs", "6"); err != nil {
		t.Fatalf("ConfigSet: %v", err)
	}
	if v, err := ConfigGet(cfg, "parallel_jobs"); err != nil || v != "6" {
		t.Errorf("ConfigGet = %q, %v", v, err)
	}

	// the set persisted to disk
	loaded, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig after set: %v", err)
	}
	if loaded.ParallelJobs != 6 {
		t.Errorf("persisted ParallelJobs = %d, want 6", loaded.ParallelJobs)
	}

	if err := ConfigSet(cfg, "parallel_jobs", "zero"); err == nil {
		t.Error("non-numeric parallel_jobs accepted")
	}
	if err := ConfigSet(cfg, "no_such_key", "x"); err == nil {
		t.Error("unknown key accepted")
	}
	if _, err := ConfigGet(cfg, "no_such_key"); err == nil {
		t.Error("unknown key read")
	}
	if err := ConfigSet(cfg, "strict_signatures", "true"); err != nil {
		t.Errorf("ConfigSet bool: %v", err)
	}
	if !cfg.StrictSignatures {
		t.Error("strict_signatures not applied")
	}
	if err := ConfigSet(cfg, "backend_order", "aur,nonsense"); err == nil {
		t.Error("invalid backend in order accepted")
	}
}

func TestPins(t *testing.T) {
	setTestDirs(t.TempDir())

	if IsPinned("linux") {
		t.Error("pinned before any pin")
	}
	if err := PinPackage("linux"); err != nil {
		t.Fatalf("PinPackage: %v", err)
	}
	if err := PinPackage("linux"); err != nil {
		t.Fatalf("repeated PinPackage: %v", err)
	}
	if err := PinPackage("grub"); err != nil {
		t.Fatalf("PinPackage: %v", err)
	}
	if pins := LoadPinned(); !reflect.DeepEqual(pins, []string{"linux", "grub"}) {
		t.Errorf("LoadPinned = %v", pins)
	}
	if !IsPinned("linux") {
		t.Error("linux not pinned")
	}
	if err := UnpinPackage("linux"); err != nil {
		t.Fatalf("UnpinPackage: %v", err)
	}
	if IsPinned("linux") {
		t.Error("linux still pinned after unpin")
	}
	if !IsPinned("grub") {
		t.Error("unpin removed the wrong package")
	}
}
