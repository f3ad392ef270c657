package reap

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestBuildDirPerAttempt(t *testing.T) {
	setTestDirs(t.TempDir())
	at := time.Date(2025, 3, 7, 14, 30, 0, 0, time.UTC)
	dir := buildDirFor("yay", at)
	if filepath.Dir(dir) != CacheDir() {
		t.Errorf("build dir %s not under the cache dir", dir)
	}
	base := filepath.Base(dir)
	if base != "reap-aur-yay-20250307143000" {
		t.Errorf("build dir name = %s", base)
	}
	if !strings.HasPrefix(base, "reap-aur-yay-") {
		t.Errorf("build dir not namespaced per package: %s", base)
	}
	later := buildDirFor("yay", at.Add(time.Second))
	if later == dir {
		t.Error("retried build reuses the same scratch dir")
	}
}

func TestOrchestratorExecutorSplit(t *testing.T) {
	setTestDirs(t.TempDir())
	UserExec = &Executor{Context: context.Background()}
	RootExec = &Executor{Context: context.Background(), ShouldRunAsRoot: true}
	a := buildApp(DefaultConfig())
	if a.orch.Exec.ShouldRunAsRoot {
		t.Error("build executor elevates; makepkg refuses to run as root")
	}
	if a.orch.Root == nil || !a.orch.Root.ShouldRunAsRoot {
		t.Error("install executor does not elevate")
	}
}
