package reap

import (
	"fmt"
	"strings"
)

// ConflictKind classifies resolver failures.
type ConflictKind string

const (
	ConflictCircular ConflictKind = "CircularDependency"
	ConflictPackage  ConflictKind = "PackageConflict"
	ConflictVersion  ConflictKind = "VersionConflict"
	ConflictFile     ConflictKind = "FileConflict"
)

// Conflict is one resolver finding; a plan with conflicts never runs.
type Conflict struct {
	Kind   ConflictKind
	Pkg    string
	Other  string
	Detail string
}

func (c Conflict) String() string {
	return fmt.Sprintf("%s: %s vs %s: %s", c.Kind, c.Pkg, c.Other, c.Detail)
}

// PlanNode is one package in the resolved install order.
type PlanNode struct {
	Pkg       string
	Source    Source
	Version   string
	Depends   []string // resolved dependency names, constraints stripped
	MakeDeps  []string
	Explicit  bool // named on the command line, not pulled in as a dep
	Installed bool // already present, kept in the plan for reporting
}

// Plan is the dependency-ordered set of packages to install. Order is
// reverse topological: every node's dependencies precede it.
type Plan struct {
	Nodes     []*PlanNode
	Conflicts []Conflict
}

// sourceResolver picks the winning backend candidate for a package.
type sourceResolver interface {
	Resolve(pkg, forcedTap string) (*Candidate, error)
}

// metadataStore fetches parsed PKGBUILD metadata for a candidate.
type metadataStore interface {
	Get(pkg string, src Source) (*PkgbuildInfo, error)
}

// Resolver expands a requested package set into a full install plan.
type Resolver struct {
	Registry sourceResolver
	Store    metadataStore
	Exec     *Executor
	Log      *LogPane
	Config   *GlobalConfig

	// MaxDepth bounds the dependency walk; chains deeper than this are
	// treated as cycles gone undetected.
	MaxDepth int
}

func NewResolver(reg *Registry, store *PkgbuildStore, ex *Executor, log *LogPane, cfg *GlobalConfig) *Resolver {
	return &Resolver{Registry: reg, Store: store, Exec: ex, Log: log, Config: cfg, MaxDepth: 64}
}

type workItem struct {
	pkg      string
	spec     string // original dep spec with any version constraint
	depth    int
	parent   string
	explicit bool
}

// Resolve walks the dependency graph of the requested packages with an
// explicit work stack. Already-installed dependencies are recorded but
// not expanded; version constraints in dep specs are checked against
// the candidate version.
func (r *Resolver) Resolve(requested []string, forcedTap string) (*Plan, error) {
	plan := &Plan{}
	nodes := make(map[string]*PlanNode)
	// onPath tracks the chain from each root for cycle reporting.
	path := make(map[string][]string)

	stack := make([]workItem, 0, len(requested))
	for i := len(requested) - 1; i >= 0; i-- {
		stack = append(stack, workItem{pkg: depName(requested[i]), spec: requested[i], explicit: true})
		path[depName(requested[i])] = []string{depName(requested[i])}
	}

	for len(stack) > 0 {
		item := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if item.depth > r.MaxDepth {
			plan.Conflicts = append(plan.Conflicts, Conflict{
				Kind: ConflictCircular, Pkg: item.pkg, Other: item.parent,
				Detail: fmt.Sprintf("dependency chain exceeds depth %d", r.MaxDepth),
			})
			continue
		}

		if node, seen := nodes[item.pkg]; seen {
			node.Explicit = node.Explicit || item.explicit
			// A revisit through a node still on the current walk path
			// is a cycle.
			for _, ancestor := range path[item.parent] {
				if ancestor == item.pkg {
					plan.Conflicts = append(plan.Conflicts, Conflict{
						Kind: ConflictCircular, Pkg: item.pkg, Other: item.parent,
						Detail: strings.Join(append(path[item.parent], item.pkg), " -> "),
					})
					break
				}
			}
			continue
		}

		node, err := r.expand(item, forcedTap, plan)
		if err != nil {
			return nil, err
		}
		nodes[item.pkg] = node
		plan.Nodes = append(plan.Nodes, node)
		if node.Installed && !item.explicit {
			continue
		}

		chain := append(append([]string(nil), path[item.parent]...), item.pkg)
		path[item.pkg] = chain
		deps := append(append([]string(nil), node.Depends...), node.MakeDeps...)
		for i := len(deps) - 1; i >= 0; i-- {
			stack = append(stack, workItem{
				pkg: depName(deps[i]), spec: deps[i],
				depth: item.depth + 1, parent: item.pkg,
			})
		}
	}

	r.checkDeclaredConflicts(plan, nodes)
	r.checkFileConflicts(plan)
	orderPlan(plan, nodes)
	return plan, nil
}

// expand resolves one work item to a plan node: source lookup, metadata
// fetch, dep extraction, and version-constraint checking.
func (r *Resolver) expand(item workItem, forcedTap string, plan *Plan) (*PlanNode, error) {
	name := item.pkg

	if pacmanInstalled(r.Exec, name) {
		node := &PlanNode{Pkg: name, Installed: true, Explicit: item.explicit,
			Version: pacmanVersion(r.Exec, name),
			Source:  Source{Kind: SourcePacman}}
		r.checkConstraint(item, node.Version, plan)
		return node, nil
	}

	cand, err := r.Registry.Resolve(name, forcedTap)
	if err != nil {
		if item.parent != "" {
			return nil, stepError(KindNotFound, StepResolve, name,
				fmt.Errorf("dependency %q of %q not found in any source", name, item.parent))
		}
		return nil, err
	}

	node := &PlanNode{Pkg: name, Source: cand.Source, Version: cand.Version, Explicit: item.explicit}
	switch cand.Source.Kind {
	case SourceAur, SourceTap, SourceCustom:
		info, err := r.Store.Get(name, cand.Source)
		if err != nil {
			return nil, err
		}
		if info != nil {
			node.Version = info.Version
			node.Depends = info.Dependencies
			node.MakeDeps = info.MakeDependencies
		}
	case SourcePacman:
		node.Depends = pacmanSyncDeps(r.Exec, name)
	}
	r.checkConstraint(item, node.Version, plan)
	return node, nil
}

func (r *Resolver) checkConstraint(item workItem, version string, plan *Plan) {
	_, cons := SplitDepSpec(item.spec)
	if cons.Op == "" || version == "" {
		return
	}
	if !cons.Satisfies(version) {
		plan.Conflicts = append(plan.Conflicts, Conflict{
			Kind: ConflictVersion, Pkg: item.pkg, Other: item.parent,
			Detail: fmt.Sprintf("%s requires %s%s%s, candidate is %s",
				item.parent, item.pkg, cons.Op, cons.Version, version),
		})
	}
}

// checkDeclaredConflicts cross-checks each node's conflicts= array
// against the plan and the installed set.
func (r *Resolver) checkDeclaredConflicts(plan *Plan, nodes map[string]*PlanNode) {
	for _, node := range plan.Nodes {
		if node.Installed {
			continue
		}
		info, err := r.Store.Get(node.Pkg, node.Source)
		if err != nil || info == nil {
			continue
		}
		for _, spec := range info.Conflicts {
			other := depName(spec)
			if other == node.Pkg {
				continue
			}
			if _, planned := nodes[other]; planned || pacmanInstalled(r.Exec, other) {
				plan.Conflicts = append(plan.Conflicts, Conflict{
					Kind: ConflictPackage, Pkg: node.Pkg, Other: other,
					Detail: fmt.Sprintf("%s declares a conflict with %s", node.Pkg, other),
				})
			}
		}
	}
}

// checkFileConflicts asks the package database who owns the binary path
// each new package is about to claim.
func (r *Resolver) checkFileConflicts(plan *Plan) {
	for _, node := range plan.Nodes {
		if node.Installed || node.Source.Kind == SourceFlatpak {
			continue
		}
		owner := pacmanFileOwner(r.Exec, "/usr/bin/"+node.Pkg)
		if owner != "" && owner != node.Pkg {
			plan.Conflicts = append(plan.Conflicts, Conflict{
				Kind: ConflictFile, Pkg: node.Pkg, Other: owner,
				Detail: fmt.Sprintf("/usr/bin/%s is owned by %s", node.Pkg, owner),
			})
		}
	}
}

// orderPlan rewrites plan.Nodes into reverse topological order via an
// iterative DFS; cycle edges were already reported, so they are skipped
// rather than re-walked.
func orderPlan(plan *Plan, nodes map[string]*PlanNode) {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(nodes))
	var ordered []*PlanNode

	var frames []string
	for _, root := range plan.Nodes {
		if state[root.Pkg] != unvisited {
			continue
		}
		frames = append(frames[:0], root.Pkg)
		for len(frames) > 0 {
			pkg := frames[len(frames)-1]
			node := nodes[pkg]
			if state[pkg] == unvisited {
				state[pkg] = visiting
				for _, dep := range depNames(node) {
					if d, ok := nodes[dep]; ok && state[dep] == unvisited {
						frames = append(frames, d.Pkg)
					}
				}
				continue
			}
			frames = frames[:len(frames)-1]
			if state[pkg] == visiting {
				state[pkg] = done
				ordered = append(ordered, node)
			}
		}
	}
	plan.Nodes = ordered
}

func depNames(node *PlanNode) []string {
	out := make([]string, 0, len(node.Depends)+len(node.MakeDeps))
	for _, d := range node.Depends {
		out = append(out, depName(d))
	}
	for _, d := range node.MakeDeps {
		out = append(out, depName(d))
	}
	return out
}

// depName strips any version constraint from a dep spec.
func depName(spec string) string {
	name, _ := SplitDepSpec(spec)
	return name
}

// ToInstall filters the plan to nodes that actually need work.
func (p *Plan) ToInstall() []*PlanNode {
	var out []*PlanNode
	for _, n := range p.Nodes {
		if !n.Installed {
			out = append(out, n)
		}
	}
	return out
}

// PrintTree renders the dependency tree of pkg to stdout, depth-limited
// so a pathological graph stays readable.
func (r *Resolver) PrintTree(pkg string, maxDepth int) error {
	if maxDepth <= 0 {
		maxDepth = 20
	}
	seen := make(map[string]bool)
	var walk func(name, prefix string, depth int) error
	walk = func(name, prefix string, depth int) error {
		if depth > maxDepth {
			fmt.Printf("%s...\n", prefix)
			return nil
		}
		var deps []string
		if pacmanInstalled(r.Exec, name) {
			deps = pacmanDeclaredDeps(r.Exec, name)
		} else {
			cand, err := r.Registry.Resolve(name, "")
			if err != nil {
				return err
			}
			if info, err := r.Store.Get(name, cand.Source); err == nil && info != nil {
				deps = info.Dependencies
			}
		}
		for i, spec := range deps {
			dep := depName(spec)
			connector, childPrefix := "├── ", prefix+"│   "
			if i == len(deps)-1 {
				connector, childPrefix = "└── ", prefix+"    "
			}
			if seen[dep] {
				fmt.Printf("%s%s%s (seen)\n", prefix, connector, dep)
				continue
			}
			seen[dep] = true
			fmt.Printf("%s%s%s\n", prefix, connector, dep)
			if err := walk(dep, childPrefix, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	fmt.Println(pkg)
	seen[pkg] = true
	return walk(pkg, "", 1)
}
