package reap

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// InstallState tracks a package's progress through the pipeline.
type InstallState int

const (
	StatePlanned InstallState = iota
	StateResolved
	StateVerified
	StatePrepared
	StateBuilding
	StateInstalling
	StateRecorded
	StateDone
	StateFailed
)

func (s InstallState) String() string {
	switch s {
	case StatePlanned:
		return "planned"
	case StateResolved:
		return "resolved"
	case StateVerified:
		return "verified"
	case StatePrepared:
		return "prepared"
	case StateBuilding:
		return "building"
	case StateInstalling:
		return "installing"
	case StateRecorded:
		return "recorded"
	case StateDone:
		return "done"
	default:
		return "failed"
	}
}

// InstallOptions carries the per-invocation flags for an install.
type InstallOptions struct {
	Insecure     bool // tolerate a missing (never an invalid) signature
	Edit         bool // open the PKGBUILD in $EDITOR before building
	Diff         bool // show the PKGBUILD diff against the cached copy
	DryRun       bool // resolve and report, change nothing
	Strict       bool // refuse any package scoring below the gate
	Audit        bool // print the static PKGBUILD audit before installing
	NoConfirm    bool
	ForcedTap    string // pin resolution to one tap
	Backend      string // pin resolution to one backend token
	SkipDeps     bool
	ResolveDeps  bool    // expand the dependency graph before installing
	MinScore     float64 // trust gate threshold under Strict; 0 means default
	GPGKeyserver string  // keyserver override for this run
	Upgrade      bool    // record the operation as an upgrade
}

// Orchestrator runs the full install pipeline for resolved plan nodes.
// Exec runs the unprivileged steps (clone, makepkg, queries); Root runs
// the package-manager transactions. makepkg refuses to run as root, so
// the two must stay separate.
type Orchestrator struct {
	Config   *GlobalConfig
	Exec     *Executor
	Root     *Executor
	Log      *LogPane
	Registry *Registry
	Resolver *Resolver
	Store    *PkgbuildStore
	Trust    *TrustEngine
	GPG      *GpgClient
	Hooks    *HookRunner
	AUR      *AurClient
	Metrics  *MetricsRecorder
}

const defaultTrustGate = 4.0

// InstallOne drives a single plan node through the state machine. The
// build directory is removed on every exit path.
func (o *Orchestrator) InstallOne(node *PlanNode, opts InstallOptions) (err error) {
	pkg := node.Pkg
	state := StatePlanned
	start := time.Now()

	defer func() {
		outcome := "success"
		if err != nil {
			outcome = "failure"
			state = StateFailed
			hookErr := o.Hooks.Run(HookOnError, HookContext{
				Pkg: pkg, Version: node.Version, Source: node.Source, Error: err.Error(),
			})
			if hookErr != nil {
				o.Log.Warnf(pkg, StepHook, "on_error hook: %v", hookErr)
			}
		}
		o.Metrics.Record(BuildMetric{
			Pkg: pkg, Source: node.Source.String(), Outcome: outcome,
			State: state.String(), Duration: time.Since(start),
		})
	}()

	o.Log.Infof(pkg, StepResolve, "install %s from %s", pkg, node.Source.Label())
	state = StateResolved

	// Signature and trust gates apply to sources that ship a PKGBUILD.
	buildFromSource := node.Source.Kind == SourceAur || node.Source.Kind == SourceTap || node.Source.Kind == SourceCustom
	if buildFromSource {
		if err = o.verify(node, opts); err != nil {
			return err
		}
	}
	state = StateVerified

	if opts.DryRun {
		colInfo.Printf("dry-run: would install %s %s from %s\n", pkg, node.Version, node.Source.Label())
		state = StateDone
		return nil
	}

	phase := HookPreInstall
	postPhase := HookPostInstall
	operation := "install"
	if opts.Upgrade {
		phase, postPhase, operation = HookPreUpgrade, HookPostUpgrade, "upgrade"
	}
	hctx := HookContext{Pkg: pkg, Version: node.Version, Source: node.Source, Tap: node.Source.Name}
	if err = o.Hooks.Run(phase, hctx); err != nil {
		return err
	}

	snap, snapErr := TakeSnapshot(o.Exec, pkg, operation, node.Source)
	if snapErr != nil {
		o.Log.Warnf(pkg, StepInstall, "snapshot failed: %v", snapErr)
	}
	state = StatePrepared

	switch node.Source.Kind {
	case SourcePacman:
		state = StateInstalling
		err = installPacman(o.Root, o.Log, pkg)
	case SourceFlatpak:
		state = StateInstalling
		err = installFlatpak(o.Root, o.Log, pkg)
	case SourceApt:
		state = StateInstalling
		err = installApt(o.Root, o.Log, pkg)
	case SourceBinaryRepo:
		state = StateInstalling
		err = installBinaryRepo(o.Root, o.Log, o.Config, node.Source.Name, pkg)
	default:
		state = StateBuilding
		var archive string
		archive, err = o.buildFromSource(node, opts)
		if err == nil {
			state = StateInstalling
			err = pacmanU(o.Root, o.Log, pkg, archive)
		}
	}
	if err != nil {
		return err
	}

	if snap != nil {
		FinishSnapshot(snap, node.Version)
	}
	state = StateRecorded

	if err = o.Hooks.Run(postPhase, hctx); err != nil {
		o.Log.Warnf(pkg, StepHook, "post hook: %v", err)
		err = nil
	}
	state = StateDone
	colSuccess.Printf("Installed %s %s %s\n", pkg, node.Version, node.Source.Label())
	return nil
}

// verify runs the signature gate, then the trust gate, then optional
// PKGBUILD review.
func (o *Orchestrator) verify(node *PlanNode, opts InstallOptions) error {
	pkg := node.Pkg
	raw, err := o.Store.Raw(pkg, node.Source)
	if err != nil {
		return err
	}

	sigFor := func() ([]byte, error) {
		switch node.Source.Kind {
		case SourceAur:
			return o.AUR.FetchSignature(pkg)
		default:
			tap := o.Registry.Taps.Find(node.Source.Name)
			if tap == nil {
				return nil, nil
			}
			sigPath := pkgbuildPathIn(o.Registry.Taps.ClonePath(tap), pkg) + ".sig"
			if !fileExists(sigPath) {
				return nil, nil
			}
			return os.ReadFile(sigPath)
		}
	}
	if err := o.GPG.VerifyPkgbuild(pkg, node.Source, raw, sigFor, o.Config.StrictSignatures, opts.Insecure); err != nil {
		return err
	}

	if opts.Audit {
		flags := AuditPkgbuild(raw)
		if len(flags) == 0 {
			colSuccess.Printf("%s: audit found nothing\n", pkg)
		}
		for _, f := range flags {
			colWarn.Printf("%s line %d [%s]: %s\n", pkg, f.Line, f.Kind, f.Excerpt)
		}
	}

	report, err := o.Trust.Score(pkg, node.Source)
	if err != nil {
		return err
	}
	badgeColor(report.Badge)("%s  trust %.1f/10 [%s]\n", pkg, report.Score, report.Badge)
	for _, f := range report.Flags {
		colWarn.Printf("  %s line %d: %s\n", f.Kind, f.Line, f.Excerpt)
	}
	gate := opts.MinScore
	if gate == 0 {
		gate = defaultTrustGate
	}
	if opts.Strict && report.Score < gate {
		return stepError(KindGateRejected, StepVerify, pkg,
			fmt.Errorf("trust score %.1f below threshold %.1f", report.Score, gate))
	}
	if !opts.Strict && report.Score < gate && !opts.NoConfirm && !o.Config.NoConfirm {
		if !promptYesNo(fmt.Sprintf("%s scores %.1f/10 [%s]. Install anyway?", pkg, report.Score, report.Badge)) {
			return stepError(KindGateRejected, StepVerify, pkg,
				fmt.Errorf("install declined at trust prompt"))
		}
	}

	if opts.Diff {
		o.showPkgbuildDiff(pkg, raw)
	}
	if opts.Edit {
		if err := o.editPkgbuild(pkg, node.Source, raw); err != nil {
			return err
		}
	}
	return nil
}

// buildDirFor allocates a scratch dir for one build attempt. The
// timestamp keeps concurrent and retried builds of the same package
// from trampling each other.
func buildDirFor(pkg string, t time.Time) string {
	return filepath.Join(CacheDir(), fmt.Sprintf("reap-aur-%s-%s", pkg, t.Format("20060102150405")))
}

// buildFromSource clones or caches the package recipe and runs makepkg,
// returning the built archive path. The build dir is always cleaned up.
func (o *Orchestrator) buildFromSource(node *PlanNode, opts InstallOptions) (string, error) {
	pkg := node.Pkg
	buildDir := buildDirFor(pkg, time.Now())
	defer func() {
		if err := os.RemoveAll(buildDir); err != nil {
			o.Log.Warnf(pkg, StepCleanup, "cleanup %s: %v", buildDir, err)
		}
	}()

	switch node.Source.Kind {
	case SourceAur:
		if err := cloneRepo(o.Exec, o.Log, o.AUR.CloneURL(pkg), buildDir); err != nil {
			return "", err
		}
	default:
		tap := o.Registry.Taps.Find(node.Source.Name)
		if tap == nil {
			return "", stepError(KindNotFound, StepBuild, pkg,
				fmt.Errorf("tap %q is not configured", node.Source.Name))
		}
		// Tap recipes build out of a copy so edits never touch the clone.
		src := filepath.Dir(pkgbuildPathIn(o.Registry.Taps.ClonePath(tap), pkg))
		if err := copyTree(src, buildDir); err != nil {
			return "", stepError(KindIO, StepBuild, pkg, err)
		}
	}

	// An edited PKGBUILD replaces the checked-out one.
	if edited := o.editedPkgbuildPath(pkg); opts.Edit && fileExists(edited) {
		b, err := os.ReadFile(edited)
		if err != nil {
			return "", stepError(KindIO, StepBuild, pkg, err)
		}
		if err := os.WriteFile(filepath.Join(buildDir, "PKGBUILD"), b, 0o644); err != nil {
			return "", stepError(KindIO, StepBuild, pkg, err)
		}
	}

	// -s pulls build deps but stops short of installing the result; the
	// archive goes through pacman -U under Root so it is kept for
	// rollback first.
	args := []string{"-s", "--noconfirm", "--needed"}
	if opts.SkipDeps {
		args = []string{"--nodeps", "--noconfirm"}
	}
	o.Log.Infof(pkg, StepBuild, "makepkg %s in %s", strings.Join(args, " "), buildDir)
	cmd := exec.Command("makepkg", args...)
	cmd.Dir = buildDir
	if err := o.Exec.RunStreamed(cmd, o.Log, pkg, StepBuild); err != nil {
		if ErrKind(err) == KindCancelled {
			return "", err
		}
		return "", stepError(KindBuildFailed, StepBuild, pkg, err)
	}

	matches, _ := filepath.Glob(filepath.Join(buildDir, pkg+"-*.pkg.tar.*"))
	for _, m := range matches {
		if strings.HasSuffix(m, ".sig") {
			continue
		}
		// Keep the archive for rollback before the build dir goes away.
		kept := filepath.Join(CacheDir(), "pkg", filepath.Base(m))
		if err := os.MkdirAll(filepath.Dir(kept), 0o755); err == nil {
			if b, err := os.ReadFile(m); err == nil {
				_ = os.WriteFile(kept, b, 0o644)
				return kept, nil
			}
		}
		return m, nil
	}
	return "", stepError(KindBuildFailed, StepBuild, pkg,
		fmt.Errorf("makepkg finished but produced no package archive"))
}

func (o *Orchestrator) editedPkgbuildPath(pkg string) string {
	return filepath.Join(CacheDir(), "edit", pkg+".PKGBUILD")
}

// editPkgbuild opens the recipe in $EDITOR and stores the result for the
// build step.
func (o *Orchestrator) editPkgbuild(pkg string, src Source, raw string) error {
	path := o.editedPkgbuildPath(pkg)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return stepError(KindIO, StepEdit, pkg, err)
	}
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		return stepError(KindIO, StepEdit, pkg, err)
	}
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = "vi"
	}
	o.Log.Infof(pkg, StepEdit, "opening PKGBUILD in %s", editor)
	cmd := exec.Command(editor, path)
	cmd.Stdin, cmd.Stdout, cmd.Stderr = os.Stdin, os.Stdout, os.Stderr
	if err := cmd.Run(); err != nil {
		return stepError(KindIO, StepEdit, pkg, fmt.Errorf("%s exited: %w", editor, err))
	}
	return nil
}

// showPkgbuildDiff diffs the fresh recipe against the cached copy from
// the previous install, if any.
func (o *Orchestrator) showPkgbuildDiff(pkg, raw string) {
	cached := rawCachePath(pkg)
	if !fileExists(cached) {
		colInfo.Printf("no cached PKGBUILD for %s; showing full recipe\n", pkg)
		fmt.Println(raw)
		return
	}
	tmp, err := os.CreateTemp("", "reap-diff-")
	if err != nil {
		return
	}
	defer os.Remove(tmp.Name())
	tmp.WriteString(raw)
	tmp.Close()
	out, _ := exec.Command("diff", "-u", cached, tmp.Name()).CombinedOutput()
	if len(out) == 0 {
		colInfo.Printf("PKGBUILD for %s is unchanged\n", pkg)
		return
	}
	fmt.Print(string(out))
}

// copyTree recursively copies a directory, following the recipe layout
// (regular files and subdirs only).
func copyTree(src, dest string) error {
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dest, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		b, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		return os.WriteFile(target, b, info.Mode().Perm())
	})
}
