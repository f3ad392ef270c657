package reap

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gookit/color"
	"golang.org/x/term"
)

// isCriticalAtomic is 1 while an install is mutating the system; the
// first interrupt during that window only warns.
var isCriticalAtomic atomic.Int32

// app bundles the wired components behind every command.
type app struct {
	cfg      *GlobalConfig
	log      *LogPane
	taps     *TapManager
	aur      *AurClient
	store    *PkgbuildStore
	registry *Registry
	resolver *Resolver
	gpg      *GpgClient
	trust    *TrustEngine
	hooks    *HookRunner
	metrics  *MetricsRecorder
	orch     *Orchestrator
	searcher *Searcher
	upgrader *Upgrader
}

func printUsage() {
	fmt.Println("Usage: reap <command> [args...]")
	fmt.Println()
	fmt.Println("Package operations:")
	fmt.Println("  install <pkg...>      resolve, verify and install packages")
	fmt.Println("  remove <pkg...>       remove installed packages")
	fmt.Println("  local <archive>       install a package archive from disk")
	fmt.Println("  search <query>        search all backends")
	fmt.Println("  info <pkg>            show package details and trust score")
	fmt.Println("  upgrade               upgrade foreign packages (alias: update)")
	fmt.Println("  upgrade-check         list available upgrades without installing")
	fmt.Println("  pin | unpin <pkg>     exclude/include a package in upgrades")
	fmt.Println("  rollback <pkg> [ver]  revert a package to a snapshotted version")
	fmt.Println("  history [pkg]         show the operation history")
	fmt.Println()
	fmt.Println("Sources and trust:")
	fmt.Println("  tap <subcommand>      manage git package repositories")
	fmt.Println("  trust <subcommand>    score, scan-all, stats")
	fmt.Println("  security <subcommand> audit, scan-all, stats, update-rules")
	fmt.Println("  aur <subcommand>      fetch, edit, deps on raw AUR recipes")
	fmt.Println("  audit <pkg>           static PKGBUILD scan only")
	fmt.Println("  rate <pkg> <score>    record a community rating (1-10)")
	fmt.Println("  gpg <subcommand>      key import, verify, keyserver selection")
	fmt.Println()
	fmt.Println("Dependencies and hooks:")
	fmt.Println("  deps tree <pkg>       print the dependency tree")
	fmt.Println("  deps check <pkg...>   dry-run resolution with conflict report")
	fmt.Println("  hook <subcommand>     list, add, remove, log")
	fmt.Println()
	fmt.Println("Maintenance:")
	fmt.Println("  profile <subcommand>  named configuration overlays")
	fmt.Println("  config <subcommand>   show, get, set, reset")
	fmt.Println("  backup <subcommand>   push, list, restore (S3-compatible)")
	fmt.Println("  orphan                remove unneeded dependency packages")
	fmt.Println("  clean [--deep]        remove build scratch (and caches with --deep)")
	fmt.Println("  doctor                environment health checks")
	fmt.Println("  analytics             build time and failure statistics")
	fmt.Println("  perf <subcommand>     warm-cache, parallel-search, parallel-fetch,")
	fmt.Println("                        cache-stats, clear-cache")
	fmt.Println("  logs [pkg]            open the live log viewer")
	fmt.Println("  completion <shell>    print bash/zsh/fish completion")
	fmt.Println("  version               print version")
}

// Main is the CLI entry point; the returned value is the process exit
// code.
func Main() int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)

	go func() {
		for {
			select {
			case sig := <-sigs:
				if isCriticalAtomic.Load() == 1 {
					colWarn.Printf("\ninstall in progress; press Ctrl+C again to force exit\n")
					select {
					case <-sigs:
						os.Exit(130)
					case <-time.After(5 * time.Second):
						continue
					case <-ctx.Done():
						return
					}
				}
				colInfo.Printf("\nreceived %v, cancelling\n", sig)
				cancel()
				time.Sleep(100 * time.Millisecond)
				select {
				case <-sigs:
					os.Exit(130)
				case <-time.After(500 * time.Millisecond):
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	if !term.IsTerminal(int(os.Stdout.Fd())) {
		color.Disable()
	}

	if len(os.Args) < 2 {
		printUsage()
		return ExitFailure
	}

	cfg, err := LoadConfig()
	if err != nil {
		colWarn.Printf("%v\n", err)
	}
	cfg = EffectiveConfig(cfg)

	UserExec = &Executor{Context: ctx, ShouldRunAsRoot: false}
	RootExec = &Executor{Context: ctx, ShouldRunAsRoot: true}

	a := buildApp(cfg)

	if cfg.AutoSync && mutatingCommand(os.Args[1]) {
		if err := a.taps.SyncEnabled(cfg, false); err != nil {
			a.log.Warnf("", StepClone, "tap auto-sync: %v", err)
		}
	}

	err = a.dispatch(os.Args[1], os.Args[2:])
	if err != nil {
		colError.Printf("Error: %v\n", err)
	}
	return ExitCodeFor(err)
}

func buildApp(cfg *GlobalConfig) *app {
	log := NewLogPane(func(l LogLine) {
		if cfg.LogVerbose || l.Level != "info" {
			fmt.Println(l.String())
		}
	})
	registry := NewRegistry(cfg, log, UserExec)
	taps := registry.Taps
	aur := registry.AUR
	store := NewPkgbuildStore(aur, taps, log)
	resolver := NewResolver(registry, store, UserExec, log, cfg)
	gpg := NewGpgClient(UserExec, log, cfg)
	trust := &TrustEngine{AUR: aur, Taps: taps, Store: store, GPG: gpg, Log: log}
	hooks := NewHookRunner(UserExec, log, cfg)
	metrics := &MetricsRecorder{Log: log}
	orch := &Orchestrator{
		Config: cfg, Exec: UserExec, Root: RootExec, Log: log, Registry: registry,
		Resolver: resolver, Store: store, Trust: trust, GPG: gpg,
		Hooks: hooks, AUR: aur, Metrics: metrics,
	}
	searcher := &Searcher{Config: cfg, Exec: UserExec, Log: log, AUR: aur, Taps: taps}
	upgrader := &Upgrader{
		Config: cfg, Exec: UserExec, Log: log, AUR: aur, Taps: taps,
		Registry: registry, Store: store, Orch: orch,
		Profiles: func() *ProfileConfig {
			prof, _ := LoadProfile(ActiveProfileName())
			return prof
		},
	}
	return &app{
		cfg: cfg, log: log, taps: taps, aur: aur, store: store,
		registry: registry, resolver: resolver, gpg: gpg, trust: trust,
		hooks: hooks, metrics: metrics, orch: orch, searcher: searcher,
		upgrader: upgrader,
	}
}

// mutatingCommand reports whether a command benefits from fresh taps.
func mutatingCommand(cmd string) bool {
	switch cmd {
	case "install", "upgrade", "update", "upgrade-check", "search":
		return true
	}
	return false
}

func (a *app) dispatch(cmd string, args []string) error {
	switch cmd {
	case "version":
		fmt.Printf("reap %s (%s, %s)\n", version, buildDate, arch)
		return nil
	case "help", "-h", "--help":
		printUsage()
		return nil
	case "install":
		return a.cmdInstall(args)
	case "remove":
		return a.cmdRemove(args)
	case "local":
		if len(args) < 1 {
			return usageErr("reap local <archive>")
		}
		return InstallLocal(RootExec, a.log, args[0])
	case "search":
		if len(args) < 1 {
			return usageErr("reap search <query>")
		}
		results, err := a.searcher.Search(args[0])
		if err != nil {
			return err
		}
		PrintResults(results)
		return nil
	case "info":
		if len(args) < 1 {
			return usageErr("reap info <pkg>")
		}
		return PackageInfo(UserExec, a.registry, a.store, a.trust, args[0])
	case "upgrade", "update":
		return a.cmdUpgrade(args)
	case "upgrade-check":
		candidates, err := a.upgrader.Check()
		if err != nil {
			return err
		}
		PrintCheck(candidates)
		return nil
	case "pin":
		if len(args) < 1 {
			return usageErr("reap pin <pkg>")
		}
		return PinPackage(args[0])
	case "unpin":
		if len(args) < 1 {
			return usageErr("reap unpin <pkg>")
		}
		return UnpinPackage(args[0])
	case "rollback":
		if len(args) < 1 {
			return usageErr("reap rollback <pkg> [version]")
		}
		version := ""
		if len(args) > 1 {
			version = args[1]
		}
		return Rollback(RootExec, a.log, args[0], version)
	case "history":
		pkg := ""
		if len(args) > 0 {
			pkg = args[0]
		}
		return PrintHistory(pkg, 50)
	case "tap":
		return a.cmdTap(args)
	case "trust":
		return a.cmdTrust(args)
	case "security":
		return a.cmdSecurity(args)
	case "aur":
		return a.cmdAur(args)
	case "audit":
		return a.cmdAudit(args)
	case "rate":
		return a.cmdRate(args)
	case "gpg":
		return a.cmdGpg(args)
	case "deps":
		return a.cmdDeps(args)
	case "hook":
		return a.cmdHook(args)
	case "profile":
		return a.cmdProfile(args)
	case "config":
		return a.cmdConfig(args)
	case "backup":
		return a.cmdBackup(args)
	case "orphan":
		return RemoveOrphans(RootExec, a.log, a.cfg.NoConfirm)
	case "clean":
		deep := len(args) > 0 && args[0] == "--deep"
		reclaimed, err := CleanCaches(a.log, deep)
		if err != nil {
			return err
		}
		colSuccess.Printf("reclaimed %s\n", humanBytes(reclaimed))
		return nil
	case "doctor":
		if Doctor(UserExec, a.cfg, a.taps) > 0 {
			return stepError(KindConfigError, "doctor", "", fmt.Errorf("health checks failed"))
		}
		return nil
	case "analytics":
		return PrintAnalytics()
	case "perf":
		return a.cmdPerf(args)
	case "logs", "tui":
		pkg := ""
		if len(args) > 0 {
			pkg = args[0]
		}
		return RunLogViewer(a.log, pkg)
	case "completion":
		if len(args) < 1 {
			return usageErr("reap completion <bash|zsh|fish>")
		}
		return Completion(args[0])
	default:
		printUsage()
		return stepError(KindConfigError, "cli", "", fmt.Errorf("unknown command %q", cmd))
	}
}

func usageErr(usage string) error {
	return stepError(KindConfigError, "cli", "", fmt.Errorf("usage: %s", usage))
}

func (a *app) installFlags(name string) (*flag.FlagSet, *InstallOptions) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	opts := &InstallOptions{NoConfirm: a.cfg.NoConfirm, ResolveDeps: a.cfg.AutoResolveDeps}
	fs.BoolVar(&opts.Insecure, "insecure", false, "allow packages without a PKGBUILD signature")
	fs.BoolVar(&opts.Edit, "edit", false, "open each PKGBUILD in $EDITOR before building")
	fs.BoolVar(&opts.Diff, "diff", false, "show PKGBUILD changes since the last install")
	fs.BoolVar(&opts.DryRun, "dry-run", false, "resolve and report without installing")
	fs.BoolVar(&opts.Strict, "strict", false, "refuse packages below the trust threshold")
	fs.BoolVar(&opts.Audit, "audit", false, "print the PKGBUILD audit before installing")
	fs.BoolVar(&opts.NoConfirm, "noconfirm", opts.NoConfirm, "never prompt")
	fs.BoolVar(&opts.NoConfirm, "yes", opts.NoConfirm, "never prompt (alias of -noconfirm)")
	fs.BoolVar(&opts.SkipDeps, "nodeps", false, "skip dependency resolution")
	fs.BoolVar(&opts.ResolveDeps, "resolve-deps", opts.ResolveDeps, "resolve and install dependencies")
	fs.StringVar(&opts.ForcedTap, "tap", "", "resolve only against the named tap")
	fs.StringVar(&opts.Backend, "backend", "", "resolve only against one backend (pacman, aur, flatpak, apt, tap[:name], repo:name)")
	fs.StringVar(&opts.GPGKeyserver, "gpg-keyserver", "", "keyserver for key receive during this run")
	fs.Float64Var(&opts.MinScore, "min-score", 0, "trust threshold (default 4.0)")
	return fs, opts
}

// applyInstallOverrides maps per-invocation flags onto the wired
// components before resolution starts.
func (a *app) applyInstallOverrides(opts *InstallOptions) error {
	if opts.GPGKeyserver != "" {
		a.gpg.Keyserver = opts.GPGKeyserver
	}
	if opts.Backend == "" {
		return nil
	}
	src, err := ParseSource(opts.Backend)
	if err != nil {
		return stepError(KindConfigError, "cli", "", err)
	}
	if src.Kind == SourceTap && src.Name != "" {
		opts.ForcedTap = src.Name
		return nil
	}
	a.cfg.BackendOrder = []string{src.String()}
	return nil
}

func (a *app) cmdInstall(args []string) error {
	fs, opts := a.installFlags("install")
	if err := fs.Parse(args); err != nil {
		return stepError(KindConfigError, "cli", "", err)
	}
	pkgs := fs.Args()
	if len(pkgs) == 0 {
		return usageErr("reap install [flags] <pkg...>")
	}
	if err := a.applyInstallOverrides(opts); err != nil {
		return err
	}

	requested := pkgs
	if opts.SkipDeps || !opts.ResolveDeps {
		var nodes []*PlanNode
		for _, pkg := range requested {
			cand, err := a.registry.Resolve(pkg, opts.ForcedTap)
			if err != nil {
				return err
			}
			nodes = append(nodes, &PlanNode{Pkg: pkg, Source: cand.Source, Version: cand.Version, Explicit: true})
		}
		return a.runPlan(&Plan{Nodes: nodes}, opts)
	}

	plan, err := a.resolver.Resolve(requested, opts.ForcedTap)
	if err != nil {
		return err
	}
	if len(plan.Conflicts) > 0 {
		for _, c := range plan.Conflicts {
			colError.Printf("%s\n", c)
		}
		hctx := HookContext{Pkg: requested[0]}
		if herr := a.hooks.Run(HookOnConflict, hctx); herr != nil {
			a.log.Warnf("", StepHook, "on_conflict hook: %v", herr)
		}
		return stepError(KindDepConflict, StepResolve, "",
			fmt.Errorf("%d unresolved conflict(s)", len(plan.Conflicts)))
	}
	for _, n := range plan.Nodes {
		if n.Installed && n.Explicit {
			colInfo.Printf("%s %s is already installed\n", n.Pkg, n.Version)
		}
	}
	return a.runPlan(plan, opts)
}

func (a *app) runPlan(plan *Plan, opts *InstallOptions) error {
	pending := plan.ToInstall()
	if len(pending) == 0 {
		colSuccess.Printf("nothing to do\n")
		return nil
	}
	if !opts.DryRun {
		isCriticalAtomic.Store(1)
		defer isCriticalAtomic.Store(0)
	}
	if len(pending) == 1 {
		return a.orch.InstallOne(pending[0], *opts)
	}
	return ReportBatch(a.orch.InstallBatch(plan, *opts))
}

func (a *app) cmdRemove(args []string) error {
	if len(args) == 0 {
		return usageErr("reap remove <pkg...>")
	}
	isCriticalAtomic.Store(1)
	defer isCriticalAtomic.Store(0)
	for _, pkg := range args {
		src := Source{Kind: SourcePacman}
		hctx := HookContext{Pkg: pkg, Version: pacmanVersion(UserExec, pkg), Source: src}
		if err := a.hooks.Run(HookPreRemove, hctx); err != nil {
			return err
		}
		snap, err := TakeSnapshot(UserExec, pkg, "remove", src)
		if err != nil {
			a.log.Warnf(pkg, StepInstall, "snapshot failed: %v", err)
		}
		if err := removePackage(RootExec, a.log, pkg, src); err != nil {
			return err
		}
		if snap != nil {
			FinishSnapshot(snap, "")
		}
		if err := a.hooks.Run(HookPostRemove, hctx); err != nil {
			a.log.Warnf(pkg, StepHook, "post_remove hook: %v", err)
		}
		colSuccess.Printf("Removed %s\n", pkg)
	}
	return nil
}

func (a *app) cmdUpgrade(args []string) error {
	fs, opts := a.installFlags("upgrade")
	system := fs.Bool("system", false, "also run the native system upgrade")
	flatpaks := fs.Bool("flatpak", false, "also update flatpak applications")
	if err := fs.Parse(args); err != nil {
		return stepError(KindConfigError, "cli", "", err)
	}
	if err := a.applyInstallOverrides(opts); err != nil {
		return err
	}
	if !opts.DryRun {
		isCriticalAtomic.Store(1)
		defer isCriticalAtomic.Store(0)
	}
	return a.upgrader.Run(*opts, *system, *flatpaks)
}

func (a *app) cmdTap(args []string) error {
	if len(args) == 0 {
		return usageErr("reap tap <add|remove|list|enable|disable|sync|search> ...")
	}
	switch args[0] {
	case "add":
		fs := flag.NewFlagSet("tap add", flag.ContinueOnError)
		priority := fs.Uint("priority", 100, "resolution priority (higher wins)")
		if err := fs.Parse(args[1:]); err != nil {
			return stepError(KindConfigError, "cli", "", err)
		}
		rest := fs.Args()
		if len(rest) < 2 {
			return usageErr("reap tap add [--priority N] <name> <url>")
		}
		if err := a.taps.Add(rest[0], rest[1], uint32(*priority), true); err != nil {
			return err
		}
		colSuccess.Printf("Added tap %s\n", rest[0])
		return nil
	case "remove":
		if len(args) < 2 {
			return usageErr("reap tap remove <name>")
		}
		return a.taps.Remove(args[1])
	case "list":
		a.taps.List()
		return nil
	case "enable", "disable":
		if len(args) < 2 {
			return usageErr("reap tap " + args[0] + " <name>")
		}
		return a.taps.SetEnabled(args[1], args[0] == "enable")
	case "sync":
		return a.taps.SyncEnabled(a.cfg, true)
	case "search":
		if len(args) < 2 {
			return usageErr("reap tap search <query>")
		}
		PrintResults(a.taps.SearchIndexes(args[1]))
		return nil
	default:
		return usageErr("reap tap <add|remove|list|enable|disable|sync|search> ...")
	}
}

func (a *app) cmdTrust(args []string) error {
	if len(args) == 0 {
		return usageErr("reap trust <score|scan-all|stats> ...")
	}
	switch args[0] {
	case "score":
		if len(args) < 2 {
			return usageErr("reap trust score <pkg>")
		}
		cand, err := a.registry.Resolve(args[1], "")
		if err != nil {
			return err
		}
		report, err := a.trust.Score(args[1], cand.Source)
		if err != nil {
			return err
		}
		badgeColor(report.Badge)("%s  %.1f/10 [%s]\n", report.Pkg, report.Score, report.Badge)
		fmt.Printf("  signature valid:    %v\n", report.SignatureValid)
		fmt.Printf("  publisher verified: %v\n", report.PublisherVerified)
		fmt.Printf("  votes:              %d\n", report.Votes)
		fmt.Printf("  reputation:         %.1f\n", report.Reputation)
		for _, f := range report.Flags {
			colWarn.Printf("  %s line %d: %s\n", f.Kind, f.Line, f.Excerpt)
		}
		return nil
	case "scan-all":
		reports, err := a.trust.ScanAll(func(pkg string) (Source, error) {
			cand, err := a.registry.Resolve(pkg, "")
			if err != nil {
				return Source{}, err
			}
			return cand.Source, nil
		})
		if err != nil {
			return err
		}
		for _, r := range reports {
			badgeColor(r.Badge)("%-24s %.1f/10 [%s]\n", r.Pkg, r.Score, r.Badge)
		}
		return nil
	case "stats":
		stats, total := TrustStats()
		if total == 0 {
			fmt.Println("no trust reports cached yet")
			return nil
		}
		for _, badge := range []string{BadgeTrusted, BadgeVerified, BadgeCaution, BadgeRisky, BadgeUnsafe} {
			if stats[badge] > 0 {
				badgeColor(badge)("  %-8s %d\n", badge, stats[badge])
			}
		}
		fmt.Printf("  total    %d\n", total)
		return nil
	default:
		return usageErr("reap trust <score|scan-all|stats> ...")
	}
}

// cmdSecurity groups the trust tooling under one verb. audit, scan-all
// and stats share their implementations with the audit and trust
// commands.
func (a *app) cmdSecurity(args []string) error {
	if len(args) == 0 {
		return usageErr("reap security <audit|scan-all|stats|update-rules> ...")
	}
	switch args[0] {
	case "audit":
		return a.cmdAudit(args[1:])
	case "scan-all", "stats":
		return a.cmdTrust(args[:1])
	case "update-rules":
		total := 0
		for _, rule := range auditRules {
			total += len(rule.patterns)
		}
		colInfo.Printf("audit rules ship with reap: %d patterns in %d categories\n", total, len(auditRules))
		for _, rule := range auditRules {
			fmt.Printf("  %-16s %s\n", rule.kind, strings.Join(rule.patterns, ", "))
		}
		fmt.Println("upgrade reap to pick up new rules")
		return nil
	default:
		return usageErr("reap security <audit|scan-all|stats|update-rules> ...")
	}
}

// cmdAur works on raw AUR recipes without starting an install.
func (a *app) cmdAur(args []string) error {
	if len(args) < 2 {
		return usageErr("reap aur <fetch|edit|deps> <pkg>")
	}
	pkg := args[1]
	src := Source{Kind: SourceAur}
	switch args[0] {
	case "fetch":
		if _, err := a.store.Raw(pkg, src); err != nil {
			return err
		}
		colSuccess.Printf("PKGBUILD cached at %s\n", rawCachePath(pkg))
		return nil
	case "edit":
		raw, err := a.store.Raw(pkg, src)
		if err != nil {
			return err
		}
		return a.orch.editPkgbuild(pkg, src, raw)
	case "deps":
		info, err := a.store.Get(pkg, src)
		if err != nil {
			return err
		}
		if len(info.Dependencies) == 0 && len(info.MakeDependencies) == 0 {
			fmt.Printf("%s declares no dependencies\n", pkg)
			return nil
		}
		for _, d := range info.Dependencies {
			fmt.Printf("  %s\n", d)
		}
		for _, d := range info.MakeDependencies {
			fmt.Printf("  %s (make)\n", d)
		}
		return nil
	default:
		return usageErr("reap aur <fetch|edit|deps> <pkg>")
	}
}

func (a *app) cmdAudit(args []string) error {
	if len(args) < 1 {
		return usageErr("reap audit <pkg>")
	}
	pkg := args[0]
	cand, err := a.registry.Resolve(pkg, "")
	if err != nil {
		return err
	}
	raw, err := a.store.Raw(pkg, cand.Source)
	if err != nil {
		return err
	}
	flags := AuditPkgbuild(raw)
	if len(flags) == 0 {
		colSuccess.Printf("%s: no findings\n", pkg)
		return nil
	}
	for _, f := range flags {
		colWarn.Printf("%s line %d [%s]: %s\n", pkg, f.Line, f.Kind, f.Excerpt)
	}
	return nil
}

func (a *app) cmdRate(args []string) error {
	if len(args) < 2 {
		return usageErr("reap rate <pkg> <score 1-10> [comment]")
	}
	score, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return stepError(KindConfigError, "rate", args[0], fmt.Errorf("invalid score %q", args[1]))
	}
	comment := ""
	if len(args) > 2 {
		comment = args[2]
	}
	if err := RatePackage(args[0], score, comment); err != nil {
		return err
	}
	colSuccess.Printf("rated %s %.1f/10\n", args[0], score)
	return nil
}

func (a *app) cmdGpg(args []string) error {
	if len(args) == 0 {
		return usageErr("reap gpg <import|show|check|verify|refresh|list|remove|set-keyserver> ...")
	}
	switch args[0] {
	case "import":
		if len(args) < 2 {
			return usageErr("reap gpg import <key-id>")
		}
		return a.gpg.ImportKey(args[1])
	case "show":
		if len(args) < 2 {
			return usageErr("reap gpg show <key-id>")
		}
		return a.gpg.ShowKey(args[1])
	case "check":
		if len(args) < 2 {
			return usageErr("reap gpg check <key-id>")
		}
		if a.gpg.HaveKey(args[1]) {
			colSuccess.Printf("key %s is in the keyring\n", args[1])
			return nil
		}
		return stepError(KindNotFound, StepGpg, "", fmt.Errorf("key %s not in keyring", args[1]))
	case "verify":
		if len(args) < 2 {
			return usageErr("reap gpg verify <pkg>")
		}
		pkg := args[1]
		cand, err := a.registry.Resolve(pkg, "")
		if err != nil {
			return err
		}
		raw, err := a.store.Raw(pkg, cand.Source)
		if err != nil {
			return err
		}
		var sig []byte
		if cand.Source.Kind == SourceAur {
			sig, err = a.aur.FetchSignature(pkg)
			if err != nil {
				return err
			}
		}
		if sig == nil {
			return stepError(KindSignatureMissing, StepGpg, pkg,
				fmt.Errorf("no signature published for %s", pkg))
		}
		if err := a.gpg.VerifyDetached([]byte(raw), sig, pkg); err != nil {
			return err
		}
		colSuccess.Printf("signature for %s is valid\n", pkg)
		return nil
	case "refresh":
		return a.gpg.RefreshKeys()
	case "list":
		return a.gpg.ListKeys()
	case "remove":
		if len(args) < 2 {
			return usageErr("reap gpg remove <key-id>")
		}
		return a.gpg.RemoveKey(args[1])
	case "set-keyserver":
		if len(args) < 2 {
			return usageErr("reap gpg set-keyserver <url>")
		}
		if err := ConfigSet(a.cfg, "gpg_keyserver", args[1]); err != nil {
			return err
		}
		colSuccess.Printf("keyserver set to %s\n", args[1])
		return nil
	default:
		return usageErr("reap gpg <import|show|check|verify|refresh|list|remove|set-keyserver> ...")
	}
}

func (a *app) cmdDeps(args []string) error {
	if len(args) == 0 {
		return usageErr("reap deps <tree|check> ...")
	}
	switch args[0] {
	case "tree":
		fs := flag.NewFlagSet("deps tree", flag.ContinueOnError)
		depth := fs.Int("depth", 20, "maximum tree depth")
		if err := fs.Parse(args[1:]); err != nil {
			return stepError(KindConfigError, "cli", "", err)
		}
		if fs.NArg() < 1 {
			return usageErr("reap deps tree [--depth N] <pkg>")
		}
		return a.resolver.PrintTree(fs.Arg(0), *depth)
	case "check":
		if len(args) < 2 {
			return usageErr("reap deps check <pkg...>")
		}
		plan, err := a.resolver.Resolve(args[1:], "")
		if err != nil {
			return err
		}
		for _, c := range plan.Conflicts {
			colError.Printf("%s\n", c)
		}
		for _, n := range plan.Nodes {
			marker := "+"
			if n.Installed {
				marker = "="
			}
			fmt.Printf("  %s %s %s %s\n", marker, n.Pkg, n.Version, n.Source.Label())
		}
		if len(plan.Conflicts) > 0 {
			return stepError(KindDepConflict, StepResolve, "",
				fmt.Errorf("%d conflict(s) found", len(plan.Conflicts)))
		}
		colSuccess.Printf("no conflicts\n")
		return nil
	default:
		return usageErr("reap deps <tree|check> ...")
	}
}

func (a *app) cmdHook(args []string) error {
	if len(args) == 0 {
		return usageErr("reap hook <list|add|remove|log> ...")
	}
	switch args[0] {
	case "list":
		a.hooks.ListHooks()
		return nil
	case "add":
		if len(args) < 3 {
			return usageErr("reap hook add <phase> <script>")
		}
		return a.hooks.AddHook(args[1], args[2])
	case "remove":
		if len(args) < 3 {
			return usageErr("reap hook remove <phase> <name>")
		}
		return a.hooks.RemoveHook(args[1], args[2])
	case "log":
		return TailHookLog(50)
	default:
		return usageErr("reap hook <list|add|remove|log> ...")
	}
}

func (a *app) cmdProfile(args []string) error {
	if len(args) == 0 {
		return usageErr("reap profile <list|show|create|switch|delete> ...")
	}
	switch args[0] {
	case "list":
		active := ActiveProfileName()
		for _, name := range ListProfiles() {
			if name == active {
				colSuccess.Printf("* %s\n", name)
			} else {
				fmt.Printf("  %s\n", name)
			}
		}
		return nil
	case "show":
		name := ActiveProfileName()
		if len(args) > 1 {
			name = args[1]
		}
		prof, err := LoadProfile(name)
		if err != nil {
			return err
		}
		printProfile(prof)
		return nil
	case "create":
		if len(args) < 2 {
			return usageErr("reap profile create <name> [template]")
		}
		template := args[1]
		if len(args) > 2 {
			template = args[2]
		}
		prof := profileTemplate(template)
		prof.Name = args[1]
		if err := SaveProfile(prof); err != nil {
			return err
		}
		colSuccess.Printf("created profile %s\n", args[1])
		return nil
	case "switch":
		if len(args) < 2 {
			return usageErr("reap profile switch <name>")
		}
		if err := SwitchProfile(args[1]); err != nil {
			return err
		}
		colSuccess.Printf("switched to profile %s\n", args[1])
		return nil
	case "delete":
		if len(args) < 2 {
			return usageErr("reap profile delete <name>")
		}
		return DeleteProfile(args[1])
	default:
		return usageErr("reap profile <list|show|create|switch|delete> ...")
	}
}

func printProfile(p *ProfileConfig) {
	colInfo.Printf("profile %s\n", p.Name)
	fmt.Printf("  backend_order:     %v\n", p.BackendOrder)
	if p.ParallelJobs != nil {
		fmt.Printf("  parallel_jobs:     %d\n", *p.ParallelJobs)
	}
	if p.StrictSignatures != nil {
		fmt.Printf("  strict_signatures: %v\n", *p.StrictSignatures)
	}
	if p.AutoResolveDeps != nil {
		fmt.Printf("  auto_resolve_deps: %v\n", *p.AutoResolveDeps)
	}
	if p.FastMode != nil {
		fmt.Printf("  fast_mode:         %v\n", *p.FastMode)
	}
	if len(p.AutoInstallDeps) > 0 {
		fmt.Printf("  auto_install_deps: %v\n", p.AutoInstallDeps)
	}
	if len(p.PinnedPackages) > 0 {
		fmt.Printf("  pinned_packages:   %v\n", p.PinnedPackages)
	}
	if len(p.IgnoredPackages) > 0 {
		fmt.Printf("  ignored_packages:  %v\n", p.IgnoredPackages)
	}
}

func (a *app) cmdConfig(args []string) error {
	if len(args) == 0 {
		return usageErr("reap config <show|get|set|reset> ...")
	}
	switch args[0] {
	case "show":
		ConfigShow(a.cfg)
		return nil
	case "get":
		if len(args) < 2 {
			return usageErr("reap config get <key>")
		}
		val, err := ConfigGet(a.cfg, args[1])
		if err != nil {
			return err
		}
		fmt.Println(val)
		return nil
	case "set":
		if len(args) < 3 {
			return usageErr("reap config set <key> <value>")
		}
		return ConfigSet(a.cfg, args[1], args[2])
	case "reset":
		_, err := ConfigReset()
		return err
	default:
		return usageErr("reap config <show|get|set|reset> ...")
	}
}

func (a *app) cmdBackup(args []string) error {
	if len(args) == 0 {
		return usageErr("reap backup <push|list|restore> ...")
	}
	client, err := NewBackupClient(a.cfg)
	if err != nil {
		return err
	}
	ctx := UserExec.Context
	switch args[0] {
	case "push":
		return client.Push(ctx, a.log)
	case "list":
		return client.List(ctx)
	case "restore":
		if len(args) < 2 {
			return usageErr("reap backup restore <set>")
		}
		return client.Restore(ctx, a.log, args[1])
	default:
		return usageErr("reap backup <push|list|restore> ...")
	}
}

func (a *app) cmdPerf(args []string) error {
	if len(args) == 0 {
		return usageErr("reap perf <warm-cache|parallel-search|parallel-fetch|cache-stats|clear-cache> ...")
	}
	switch args[0] {
	case "warm-cache":
		return WarmCache(UserExec, a.log, a.store, a.registry, a.cfg.ParallelJobs)
	case "parallel-search":
		if len(args) < 2 {
			return usageErr("reap perf parallel-search <query...>")
		}
		return ParallelSearch(a.searcher, args[1:])
	case "parallel-fetch":
		if len(args) < 2 {
			return usageErr("reap perf parallel-fetch <pkg...>")
		}
		return ParallelFetch(a.store, a.registry, a.log, args[1:], a.cfg.ParallelJobs)
	case "cache-stats":
		CacheStats()
		return nil
	case "clear-cache":
		return ClearCaches(a.log, a.store)
	default:
		return usageErr("reap perf <warm-cache|parallel-search|parallel-fetch|cache-stats|clear-cache> ...")
	}
}
