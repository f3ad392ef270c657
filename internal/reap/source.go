package reap

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// SourceKind is the closed set of package backends.
type SourceKind string

const (
	SourcePacman     SourceKind = "pacman"
	SourceAur        SourceKind = "aur"
	SourceFlatpak    SourceKind = "flatpak"
	SourceApt        SourceKind = "apt"
	SourceBinaryRepo SourceKind = "binary"
	SourceTap        SourceKind = "tap"
	SourceCustom     SourceKind = "custom"
)

// Source identifies where a package comes from. Tap, BinaryRepo and
// Custom carry a name payload.
type Source struct {
	Kind SourceKind `json:"kind"`
	Name string     `json:"name,omitempty"`
}

// Label renders the bracketed display tag used in log lines and search
// output, e.g. "[AUR]" or "[CUSTOM]mytap".
func (s Source) Label() string {
	switch s.Kind {
	case SourcePacman:
		return "[PACMAN]"
	case SourceAur:
		return "[AUR]"
	case SourceFlatpak:
		return "[FLATPAK]"
	case SourceApt:
		return "[APT]"
	case SourceBinaryRepo:
		return "[REPO]" + s.Name
	case SourceTap:
		return "[CUSTOM]" + s.Name
	case SourceCustom:
		return "[CUSTOM]" + s.Name
	}
	return "[?]"
}

func (s Source) String() string {
	if s.Name != "" {
		return string(s.Kind) + ":" + s.Name
	}
	return string(s.Kind)
}

// priorityClass orders backends. Higher wins. An explicitly forced tap
// outranks everything; generic taps outrank native repos.
func (s Source) priorityClass() int {
	switch s.Kind {
	case SourceTap, SourceCustom:
		return 50
	case SourceBinaryRepo:
		return 45
	case SourcePacman:
		return 40
	case SourceAur:
		return 30
	case SourceFlatpak:
		return 20
	case SourceApt:
		return 10
	}
	return 0
}

// ParseSource converts a config/CLI backend token into a Source. The
// mapping is total over known tokens and rejects everything else.
func ParseSource(tok string) (Source, error) {
	tok = strings.TrimSpace(strings.ToLower(tok))
	switch {
	case tok == "pacman":
		return Source{Kind: SourcePacman}, nil
	case tok == "aur":
		return Source{Kind: SourceAur}, nil
	case tok == "flatpak":
		return Source{Kind: SourceFlatpak}, nil
	case tok == "apt":
		return Source{Kind: SourceApt}, nil
	case tok == "tap":
		return Source{Kind: SourceTap}, nil
	case strings.HasPrefix(tok, "tap:"):
		return Source{Kind: SourceTap, Name: tok[len("tap:"):]}, nil
	case strings.HasPrefix(tok, "repo:"):
		return Source{Kind: SourceBinaryRepo, Name: tok[len("repo:"):]}, nil
	default:
		return Source{}, fmt.Errorf("unknown source %q", tok)
	}
}

// Candidate pairs a source with the metadata the registry learned while
// probing it.
type Candidate struct {
	Source      Source
	Tap         *Tap   // set for tap candidates
	Version     string // set when the probe reported one
	Description string
	TapPriority int
	declIndex   int
}

// Registry ranks and probes backends for a requested package.
type Registry struct {
	Config *GlobalConfig
	Log    *LogPane
	Exec   *Executor
	AUR    *AurClient
	Taps   *TapManager
}

// NewRegistry wires a registry over the ambient collaborators.
func NewRegistry(cfg *GlobalConfig, log *LogPane, ex *Executor) *Registry {
	return &Registry{
		Config: cfg,
		Log:    log,
		Exec:   ex,
		AUR:    NewAurClient(log),
		Taps:   NewTapManager(log, ex),
	}
}

// Resolve returns the highest-priority viable source offering pkg.
// forcedTap, when non-empty, restricts the tap probe to that tap and
// ranks it above everything else. A backend whose probe fails with a
// network error degrades to unavailable rather than masking others.
func (r *Registry) Resolve(pkg, forcedTap string) (*Candidate, error) {
	candidates := r.rank(pkg, forcedTap)
	for _, c := range candidates {
		ok, err := r.viable(pkg, c)
		if err != nil {
			r.Log.Warnf(pkg, StepPriority, "backend %s unavailable: %v", c.Source, err)
			continue
		}
		if ok {
			if c.Source.Kind == SourceTap {
				r.Log.Infof(pkg, StepPriority, "Resolved source for '%s': %s (priority %d)", pkg, c.Source.Label(), c.TapPriority)
			} else {
				r.Log.Infof(pkg, StepPriority, "Resolved source for '%s': %s", pkg, c.Source.Label())
			}
			return c, nil
		}
	}
	return nil, stepError(KindNotFound, "resolve", pkg, errPackageNotFound)
}

// rank builds the candidate list ordered by
// (-priority_class, -tap_priority, declaration_index).
func (r *Registry) rank(pkg, forcedTap string) []*Candidate {
	var out []*Candidate

	if forcedTap != "" {
		if tap := r.Taps.Find(forcedTap); tap != nil {
			return []*Candidate{{
				Source:      Source{Kind: SourceTap, Name: tap.Name},
				Tap:         tap,
				TapPriority: int(tap.Priority),
			}}
		}
		r.Log.Warnf(pkg, StepPriority, "forced tap %q is not configured", forcedTap)
		return nil
	}

	for i, tok := range r.Config.BackendOrder {
		src, err := ParseSource(tok)
		if err != nil {
			r.Log.Warnf("", StepPriority, "ignoring unknown backend %q in backend_order", tok)
			continue
		}
		switch src.Kind {
		case SourceTap:
			taps := r.Taps.Discover()
			for _, tap := range taps {
				if src.Name != "" && tap.Name != src.Name {
					continue
				}
				t := tap
				out = append(out, &Candidate{
					Source:      Source{Kind: SourceTap, Name: t.Name},
					Tap:         &t,
					TapPriority: int(t.Priority),
					declIndex:   i,
				})
			}
		default:
			out = append(out, &Candidate{Source: src, declIndex: i})
		}
	}

	// Stable insertion order already follows backend_order; sort by the
	// lexicographic priority rule.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && candidateLess(out[j], out[j-1]); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

func candidateLess(a, b *Candidate) bool {
	if a.Source.priorityClass() != b.Source.priorityClass() {
		return a.Source.priorityClass() > b.Source.priorityClass()
	}
	if a.TapPriority != b.TapPriority {
		return a.TapPriority > b.TapPriority
	}
	return a.declIndex < b.declIndex
}

// viable probes whether a backend actually offers pkg. Probe failures
// caused by missing driver binaries are not errors, only non-viability.
func (r *Registry) viable(pkg string, c *Candidate) (bool, error) {
	switch c.Source.Kind {
	case SourcePacman:
		if !commandOnPath("pacman") {
			return false, nil
		}
		out, err := r.Exec.Output(exec.Command("pacman", "-Si", pkg))
		return err == nil && len(out) > 0, nil
	case SourceAur:
		info, err := r.AUR.Info(pkg)
		if err != nil {
			return false, err
		}
		if info == nil {
			return false, nil
		}
		c.Version = info.Version
		c.Description = info.Description
		return true, nil
	case SourceFlatpak:
		if !commandOnPath("flatpak") {
			return false, nil
		}
		out, err := r.Exec.Output(exec.Command("flatpak", "search", pkg))
		if err != nil {
			return false, nil
		}
		return strings.TrimSpace(string(out)) != "" &&
			!strings.Contains(string(out), "No matches found"), nil
	case SourceApt:
		if !commandOnPath("apt-cache") {
			return false, nil
		}
		out, err := r.Exec.Output(exec.Command("apt-cache", "show", pkg))
		return err == nil && strings.TrimSpace(string(out)) != "", nil
	case SourceTap:
		if c.Tap == nil || !c.Tap.Enabled {
			return false, nil
		}
		return r.Taps.HasPackage(c.Tap, pkg), nil
	case SourceBinaryRepo:
		base, ok := r.Config.BinaryRepos[c.Source.Name]
		return ok && base != "", nil
	}
	return false, nil
}

// fileExists is a tiny helper shared by the tap and snapshot code.
func fileExists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && !st.IsDir()
}

func dirExists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && st.IsDir()
}

// pkgbuildPathIn returns <dir>/<pkg>/PKGBUILD.
func pkgbuildPathIn(dir, pkg string) string {
	return filepath.Join(dir, pkg, "PKGBUILD")
}
