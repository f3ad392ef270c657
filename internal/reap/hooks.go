package reap

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Hook phases. A hook is an executable script at
// <config>/reap/hooks/<phase>/<name>; every script in a phase directory
// runs in lexical order.
const (
	HookPreInstall  = "pre_install"
	HookPostInstall = "post_install"
	HookPreUpgrade  = "pre_upgrade"
	HookPostUpgrade = "post_upgrade"
	HookPreRemove   = "pre_remove"
	HookPostRemove  = "post_remove"
	HookOnConflict  = "on_conflict"
	HookOnError     = "on_error"
)

var hookPhases = []string{
	HookPreInstall, HookPostInstall,
	HookPreUpgrade, HookPostUpgrade,
	HookPreRemove, HookPostRemove,
	HookOnConflict, HookOnError,
}

// HookContext is the package state handed to hook scripts through the
// environment.
type HookContext struct {
	Pkg         string
	Version     string
	Source      Source
	InstallPath string
	Tap         string
	Error       string // set for on_error only
}

func (c HookContext) env() []string {
	env := append(os.Environ(),
		"REAP_PKG="+c.Pkg,
		"REAP_VERSION="+c.Version,
		"REAP_SOURCE="+c.Source.String(),
		"REAP_INSTALL_PATH="+c.InstallPath,
		"REAP_TAP="+c.Tap,
	)
	if c.Error != "" {
		env = append(env, "REAP_ERROR="+c.Error)
	}
	return env
}

// HookRunner discovers and executes phase scripts, appending every run
// to hooks.log.
type HookRunner struct {
	Exec    *Executor
	Log     *LogPane
	Enabled bool
}

func NewHookRunner(ex *Executor, log *LogPane, cfg *GlobalConfig) *HookRunner {
	return &HookRunner{Exec: ex, Log: log, Enabled: cfg.EnableLuaHooks}
}

func hookLogPath() string {
	return filepath.Join(DataDir(), "hooks.log")
}

// scripts lists the runnable hook files for a phase, sorted by name.
func (h *HookRunner) scripts(phase string) []string {
	entries, err := os.ReadDir(filepath.Join(hooksDir(), phase))
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		p := filepath.Join(hooksDir(), phase, e.Name())
		if st, err := os.Stat(p); err == nil && st.Mode()&0o111 != 0 {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

// Run executes all scripts for a phase. A failing hook is logged and
// skipped; hooks observe the pipeline, they never gate it.
func (h *HookRunner) Run(phase string, ctx HookContext) error {
	if !h.Enabled {
		return nil
	}
	for _, script := range h.scripts(phase) {
		start := time.Now()
		h.Log.Infof(ctx.Pkg, StepHook, "running %s hook %s", phase, filepath.Base(script))
		cmd := exec.Command("bash", script)
		cmd.Env = ctx.env()
		out, err := cmd.CombinedOutput()
		h.appendLog(phase, script, ctx, time.Since(start), err, out)
		if err != nil {
			h.Log.Warnf(ctx.Pkg, StepHook, "%s hook %s failed: %v", phase, filepath.Base(script), err)
		}
	}
	return nil
}

func (h *HookRunner) appendLog(phase, script string, ctx HookContext, dur time.Duration, runErr error, output []byte) {
	if err := os.MkdirAll(filepath.Dir(hookLogPath()), 0o755); err != nil {
		return
	}
	f, err := os.OpenFile(hookLogPath(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer f.Close()
	status := "ok"
	if runErr != nil {
		status = "failed: " + runErr.Error()
	}
	fmt.Fprintf(f, "%s %s %s pkg=%s dur=%s %s\n",
		time.Now().Format(time.RFC3339), phase, filepath.Base(script), ctx.Pkg, dur.Round(time.Millisecond), status)
	if runErr != nil && len(output) > 0 {
		fmt.Fprintf(f, "  output: %s\n", strings.TrimSpace(string(output)))
	}
}

// ListHooks prints the installed hook scripts per phase.
func (h *HookRunner) ListHooks() {
	any := false
	for _, phase := range hookPhases {
		scripts := h.scripts(phase)
		if len(scripts) == 0 {
			continue
		}
		any = true
		colInfo.Printf("%s:\n", phase)
		for _, s := range scripts {
			fmt.Printf("  %s\n", filepath.Base(s))
		}
	}
	if !any {
		fmt.Printf("no hooks installed under %s\n", hooksDir())
	}
}

// AddHook installs a script into a phase directory and marks it
// executable.
func (h *HookRunner) AddHook(phase, srcPath string) error {
	valid := false
	for _, p := range hookPhases {
		if p == phase {
			valid = true
			break
		}
	}
	if !valid {
		return stepError(KindConfigError, StepHook, "",
			fmt.Errorf("unknown hook phase %q (valid: %s)", phase, strings.Join(hookPhases, ", ")))
	}
	b, err := os.ReadFile(srcPath)
	if err != nil {
		return stepError(KindIO, StepHook, "", err)
	}
	dir := filepath.Join(hooksDir(), phase)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return stepError(KindIO, StepHook, "", err)
	}
	dest := filepath.Join(dir, filepath.Base(srcPath))
	if err := os.WriteFile(dest, b, 0o755); err != nil {
		return stepError(KindIO, StepHook, "", err)
	}
	colSuccess.Printf("Installed %s hook %s\n", phase, filepath.Base(srcPath))
	return nil
}

// RemoveHook deletes a named script from a phase directory.
func (h *HookRunner) RemoveHook(phase, name string) error {
	p := filepath.Join(hooksDir(), phase, name)
	if !fileExists(p) {
		return stepError(KindNotFound, StepHook, "", fmt.Errorf("no %s hook named %s", phase, name))
	}
	return os.Remove(p)
}

// TailHookLog prints the last n lines of hooks.log.
func TailHookLog(n int) error {
	b, err := os.ReadFile(hookLogPath())
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Println("no hook runs recorded")
			return nil
		}
		return stepError(KindIO, StepHook, "", err)
	}
	lines := strings.Split(strings.TrimRight(string(b), "\n"), "\n")
	if n > 0 && len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	for _, l := range lines {
		fmt.Println(l)
	}
	return nil
}
