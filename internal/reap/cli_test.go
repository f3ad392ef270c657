package reap

import (
	"testing"
)

func newTestApp(t *testing.T) *app {
	t.Helper()
	setTestDirs(t.TempDir())
	cfg := DefaultConfig()
	log := NewLogPane(nil)
	return &app{
		cfg: cfg,
		log: log,
		gpg: &GpgClient{Log: log},
	}
}

func TestInstallFlagsParse(t *testing.T) {
	a := newTestApp(t)
	fs, opts := a.installFlags("install")
	err := fs.Parse([]string{
		"-backend", "aur",
		"-resolve-deps=false",
		"-gpg-keyserver", "hkps://keys.example.org",
		"-yes",
		"-audit",
		"-min-score", "6.5",
		"yay",
	})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if opts.Backend != "aur" || opts.ResolveDeps || opts.GPGKeyserver != "hkps://keys.example.org" {
		t.Errorf("opts = %+v", opts)
	}
	if !opts.NoConfirm || !opts.Audit || opts.MinScore != 6.5 {
		t.Errorf("opts = %+v", opts)
	}
	if fs.NArg() != 1 || fs.Arg(0) != "yay" {
		t.Errorf("positional args = %v", fs.Args())
	}
}

func TestInstallFlagsDefaultsFollowConfig(t *testing.T) {
	a := newTestApp(t)
	a.cfg.AutoResolveDeps = false
	a.cfg.NoConfirm = false
	fs, opts := a.installFlags("install")
	if err := fs.Parse([]string{"yay"}); err != nil {
		t.Fatal(err)
	}
	if opts.ResolveDeps || opts.NoConfirm {
		t.Errorf("opts = %+v, want config defaults", opts)
	}
}

func TestApplyInstallOverrides(t *testing.T) {
	t.Run("backend narrows the order", func(t *testing.T) {
		a := newTestApp(t)
		opts := &InstallOptions{Backend: "flatpak"}
		if err := a.applyInstallOverrides(opts); err != nil {
			t.Fatal(err)
		}
		if len(a.cfg.BackendOrder) != 1 || a.cfg.BackendOrder[0] != "flatpak" {
			t.Errorf("backend order = %v", a.cfg.BackendOrder)
		}
	})
	t.Run("named tap becomes forced tap", func(t *testing.T) {
		a := newTestApp(t)
		before := len(a.cfg.BackendOrder)
		opts := &InstallOptions{Backend: "tap:mytap"}
		if err := a.applyInstallOverrides(opts); err != nil {
			t.Fatal(err)
		}
		if opts.ForcedTap != "mytap" {
			t.Errorf("forced tap = %q", opts.ForcedTap)
		}
		if len(a.cfg.BackendOrder) != before {
			t.Errorf("backend order changed: %v", a.cfg.BackendOrder)
		}
	})
	t.Run("unknown backend rejected", func(t *testing.T) {
		a := newTestApp(t)
		err := a.applyInstallOverrides(&InstallOptions{Backend: "snap"})
		if ErrKind(err) != KindConfigError {
			t.Errorf("unknown backend: %v", err)
		}
	})
	t.Run("keyserver override reaches the gpg client", func(t *testing.T) {
		a := newTestApp(t)
		opts := &InstallOptions{GPGKeyserver: "hkps://keys.example.org"}
		if err := a.applyInstallOverrides(opts); err != nil {
			t.Fatal(err)
		}
		if a.gpg.Keyserver != "hkps://keys.example.org" {
			t.Errorf("keyserver = %q", a.gpg.Keyserver)
		}
	})
}

func TestCompletionKnowsEveryGroup(t *testing.T) {
	for _, cmd := range []string{"security", "aur", "trust", "tap", "gpg"} {
		found := false
		for _, top := range topCommands {
			if top == cmd {
				found = true
			}
		}
		if !found {
			t.Errorf("%s missing from completion top-level commands", cmd)
		}
		if _, ok := subCommands[cmd]; !ok {
			t.Errorf("%s has no completion subcommands", cmd)
		}
	}
}
