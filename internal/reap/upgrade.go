package reap

import (
	"fmt"
	"os/exec"
	"sort"
)

// UpgradeCandidate is one foreign package with a newer version
// available.
type UpgradeCandidate struct {
	Pkg       string
	Installed string
	Available string
	Source    Source
	Pinned    bool
	Ignored   bool
}

// Upgrader finds and applies updates for packages outside the native
// sync repositories.
type Upgrader struct {
	Config   *GlobalConfig
	Exec     *Executor
	Log      *LogPane
	AUR      *AurClient
	Taps     *TapManager
	Registry *Registry
	Store    *PkgbuildStore
	Orch     *Orchestrator
	Profiles func() *ProfileConfig // active profile, nil when unset
}

// Check builds the upgrade candidate list: every pacman -Qm package is
// compared against its best source version. Pinned and ignored packages
// stay in the list, marked, so the report can show what was skipped.
func (u *Upgrader) Check() ([]UpgradeCandidate, error) {
	foreign, err := pacmanForeign(u.Exec)
	if err != nil {
		return nil, err
	}

	pinned := make(map[string]bool)
	for _, p := range LoadPinned() {
		pinned[p] = true
	}
	var ignored []string
	if u.Profiles != nil {
		if prof := u.Profiles(); prof != nil {
			ignored = prof.IgnoredPackages
			for _, p := range prof.PinnedPackages {
				pinned[p] = true
			}
		}
	}
	isIgnored := func(pkg string) bool {
		for _, p := range ignored {
			if p == pkg {
				return true
			}
		}
		return false
	}

	var candidates []UpgradeCandidate
	for pkg, installed := range foreign {
		avail, src := u.availableVersion(pkg)
		if avail == "" || VerCmp(avail, installed) <= 0 {
			continue
		}
		candidates = append(candidates, UpgradeCandidate{
			Pkg:       pkg,
			Installed: installed,
			Available: avail,
			Source:    src,
			Pinned:    pinned[pkg],
			Ignored:   isIgnored(pkg),
		})
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Pkg < candidates[j].Pkg })
	return candidates, nil
}

// availableVersion finds the newest version any source offers for pkg.
// Taps win over the AUR when both carry it, matching install-time
// priority.
func (u *Upgrader) availableVersion(pkg string) (string, Source) {
	for _, tap := range u.Taps.Discover() {
		if !u.Taps.HasPackage(&tap, pkg) {
			continue
		}
		src := Source{Kind: SourceTap, Name: tap.Name}
		if info, err := u.Store.Get(pkg, src); err == nil && info != nil && info.Version != "" {
			return info.Version, src
		}
	}
	if info, err := u.AUR.Info(pkg); err == nil && info != nil {
		return info.Version, Source{Kind: SourceAur}
	}
	return "", Source{}
}

// Run upgrades every non-pinned, non-ignored candidate through the
// normal install pipeline, then system packages and flatpaks.
func (u *Upgrader) Run(opts InstallOptions, includeSystem, includeFlatpak bool) error {
	candidates, err := u.Check()
	if err != nil {
		return err
	}

	var nodes []*PlanNode
	for _, c := range candidates {
		switch {
		case c.Pinned:
			colWarn.Printf("skipping %s %s -> %s (pinned)\n", c.Pkg, c.Installed, c.Available)
		case c.Ignored:
			colWarn.Printf("skipping %s %s -> %s (ignored by profile)\n", c.Pkg, c.Installed, c.Available)
		default:
			colArrow.Printf("-> ")
			fmt.Printf("%s %s -> %s %s\n", c.Pkg, c.Installed, c.Available, c.Source.Label())
			nodes = append(nodes, &PlanNode{
				Pkg: c.Pkg, Source: c.Source, Version: c.Available, Explicit: true,
			})
		}
	}

	if len(nodes) == 0 {
		colSuccess.Printf("all foreign packages are up to date\n")
	} else if opts.DryRun {
		colInfo.Printf("dry-run: %d package(s) would be upgraded\n", len(nodes))
	} else {
		opts.Upgrade = true
		results := u.Orch.InstallBatch(&Plan{Nodes: nodes}, opts)
		if err := ReportBatch(results); err != nil {
			return err
		}
	}

	if opts.DryRun {
		return nil
	}
	if includeSystem {
		u.Log.Infof("", StepInstall, "sudo pacman -Syu")
		cmd := exec.Command("pacman", "-Syu", "--noconfirm")
		if err := u.Exec.RunStreamed(cmd, u.Log, "", StepInstall); err != nil {
			return installErr("", err)
		}
	}
	if includeFlatpak && commandOnPath("flatpak") {
		if err := upgradeFlatpak(u.Exec, u.Log); err != nil {
			return err
		}
	}
	return nil
}

// PrintCheck renders the candidate list without changing anything.
func PrintCheck(candidates []UpgradeCandidate) {
	if len(candidates) == 0 {
		colSuccess.Printf("all foreign packages are up to date\n")
		return
	}
	for _, c := range candidates {
		note := ""
		if c.Pinned {
			note = " (pinned)"
		} else if c.Ignored {
			note = " (ignored)"
		}
		fmt.Printf("%-24s %s -> %s %s%s\n", c.Pkg, c.Installed, c.Available, c.Source.Label(), note)
	}
}
