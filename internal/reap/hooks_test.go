package reap

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestHookRunner(t *testing.T) *HookRunner {
	t.Helper()
	setTestDirs(t.TempDir())
	return &HookRunner{
		Exec:    NewExecutor(context.Background()),
		Log:     NewLogPane(nil),
		Enabled: true,
	}
}

func writeHook(t *testing.T, phase, name, body string) {
	t.Helper()
	dir := filepath.Join(hooksDir(), phase)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), []byte("#!/bin/bash\n"+body), 0o755); err != nil {
		t.Fatal(err)
	}
}

func TestHookRunEnvAndOrder(t *testing.T) {
	h := newTestHookRunner(t)
	marker := filepath.Join(t.TempDir(), "out")
	writeHook(t, HookPostInstall, "10-first.sh", `echo "first $REAP_PKG $REAP_VERSION $REAP_SOURCE" >> `+marker)
	writeHook(t, HookPostInstall, "20-second.sh", `echo second >> `+marker)

	err := h.Run(HookPostInstall, HookContext{
		Pkg:     "demo",
		Version: "1.0-1",
		Source:  Source{Kind: SourceAur},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	b, err := os.ReadFile(marker)
	if err != nil {
		t.Fatalf("hooks did not run: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	if len(lines) != 2 {
		t.Fatalf("hook output = %q", b)
	}
	if lines[0] != "first demo 1.0-1 aur" {
		t.Errorf("env not passed: %q", lines[0])
	}
	if lines[1] != "second" {
		t.Errorf("hooks ran out of order: %q", lines)
	}
}

func TestHookFailureNeverAborts(t *testing.T) {
	h := newTestHookRunner(t)
	marker := filepath.Join(t.TempDir(), "out")
	writeHook(t, HookPreInstall, "10-fail.sh", "exit 3")
	writeHook(t, HookPreInstall, "20-next.sh", "echo ran >> "+marker)

	if err := h.Run(HookPreInstall, HookContext{Pkg: "demo"}); err != nil {
		t.Fatalf("failing pre_install hook aborted the run: %v", err)
	}
	if _, err := os.ReadFile(marker); err != nil {
		t.Error("later hook did not run after a failure")
	}
	warned := false
	for _, l := range h.Log.Snapshot() {
		if l.Level == "warn" && strings.Contains(l.Msg, "10-fail.sh") {
			warned = true
		}
	}
	if !warned {
		t.Error("hook failure was not logged")
	}
}

func TestHookPostFailureWarnsOnly(t *testing.T) {
	h := newTestHookRunner(t)
	writeHook(t, HookPostInstall, "fail.sh", "exit 1")

	if err := h.Run(HookPostInstall, HookContext{Pkg: "demo"}); err != nil {
		t.Errorf("post hook failure should not abort: %v", err)
	}
	warned := false
	for _, l := range h.Log.Snapshot() {
		if l.Level == "warn" && strings.Contains(l.Msg, "fail.sh") {
			warned = true
		}
	}
	if !warned {
		t.Error("post hook failure was not logged")
	}
}

func TestHookDisabledRunsNothing(t *testing.T) {
	h := newTestHookRunner(t)
	h.Enabled = false
	writeHook(t, HookPreInstall, "fail.sh", "exit 1")

	if err := h.Run(HookPreInstall, HookContext{Pkg: "demo"}); err != nil {
		t.Errorf("disabled runner executed hooks: %v", err)
	}
}

func TestHookSkipsNonExecutable(t *testing.T) {
	h := newTestHookRunner(t)
	dir := filepath.Join(hooksDir(), HookPostInstall)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("not a script"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := h.scripts(HookPostInstall); len(got) != 0 {
		t.Errorf("non-executable file listed as hook: %v", got)
	}
}

func TestHookRunAppendsLog(t *testing.T) {
	h := newTestHookRunner(t)
	writeHook(t, HookPostInstall, "ok.sh", "true")

	if err := h.Run(HookPostInstall, HookContext{Pkg: "demo"}); err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(hookLogPath())
	if err != nil {
		t.Fatalf("hooks.log missing: %v", err)
	}
	if !strings.Contains(string(b), "post_install ok.sh pkg=demo") {
		t.Errorf("hooks.log = %q", b)
	}
}

func TestAddRemoveHook(t *testing.T) {
	h := newTestHookRunner(t)
	src := filepath.Join(t.TempDir(), "myhook.sh")
	if err := os.WriteFile(src, []byte("#!/bin/bash\ntrue\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := h.AddHook("no_such_phase", src); err == nil {
		t.Error("unknown phase accepted")
	}
	if err := h.AddHook(HookPreRemove, src); err != nil {
		t.Fatalf("AddHook: %v", err)
	}
	installed := filepath.Join(hooksDir(), HookPreRemove, "myhook.sh")
	st, err := os.Stat(installed)
	if err != nil {
		t.Fatalf("hook not installed: %v", err)
	}
	if st.Mode()&0o111 == 0 {
		t.Error("installed hook is not executable")
	}
	if err := h.RemoveHook(HookPreRemove, "myhook.sh"); err != nil {
		t.Fatalf("RemoveHook: %v", err)
	}
	if fileExists(installed) {
		t.Error("hook still present after removal")
	}
	if err := h.RemoveHook(HookPreRemove, "myhook.sh"); err == nil {
		t.Error("removing a missing hook succeeded")
	}
}
