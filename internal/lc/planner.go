package lc

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Planner derives dependency-ordered build plans from the spec files of the
// forges registered in a repository. BuildRequires are resolved against the
// repository's own artifact index plus the forge names themselves; anything
// satisfiable only by the distribution is ignored, the chain does not
// rebuild the whole world.
type Planner struct {
	RepoDir string
	Config  *Config

	// queryBuildRequires extracts the BuildRequires capabilities of one
	// spec file. Swapped out in tests to avoid the rpm toolchain.
	queryBuildRequires func(ctx context.Context, specPath string) ([]string, error)
}

func NewPlanner(repoDir string, cfg *Config) *Planner {
	return &Planner{
		RepoDir:            repoDir,
		Config:             cfg,
		queryBuildRequires: rpmspecBuildRequires,
	}
}

func rpmspecBuildRequires(ctx context.Context, specPath string) ([]string, error) {
	e := NewExecutor(ctx)
	out, err := e.CaptureOutput("rpmspec", "-q", "--buildrequires", specPath)
	if err != nil {
		return nil, fmt.Errorf("rpmspec failed for %s: %w", specPath, err)
	}
	var caps []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			caps = append(caps, line)
		}
	}
	return caps, nil
}

// capabilityName strips any version constraint from a dependency string:
// "pkgconfig(foo) >= 1.2" becomes "pkgconfig(foo)".
func capabilityName(dep string) string {
	if i := strings.IndexAny(dep, " \t<>="); i >= 0 {
		return strings.TrimSpace(dep[:i])
	}
	return dep
}

// internalCapability reports whether a capability is satisfied by rpm
// itself rather than any package.
func internalCapability(cap string) bool {
	return strings.HasPrefix(cap, "rpmlib(") || strings.HasPrefix(cap, "config(")
}

// providerIndex maps capability names to the local package providing them.
// Population order matters: artifact names first, then forge names, so a
// renamed subpackage recorded in the index wins over a plain forge match.
// Within a source both are inserted in ascending name order, first writer
// wins, giving deterministic resolution.
type providerIndex map[string]string

func (p providerIndex) add(capability, pkg string) {
	if _, ok := p[capability]; !ok {
		p[capability] = pkg
	}
}

// buildProviderIndex scans the artifact index and forge directory.
// Artifact binary names map back to their source forge when one exists
// with that exact name; otherwise the binary name itself is used.
func (pl *Planner) buildProviderIndex(forges []string) (providerIndex, error) {
	idx := make(providerIndex)

	entries, err := loadArtifactIndex(pl.RepoDir)
	if err != nil {
		return nil, err
	}
	forgeSet := make(map[string]bool, len(forges))
	for _, f := range forges {
		forgeSet[f] = true
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name)
	}
	sort.Strings(names)
	for _, n := range names {
		src := n
		if !forgeSet[n] {
			// Subpackage heuristic: foo-devel built from forge foo.
			for cut := strings.LastIndex(n, "-"); cut > 0; cut = strings.LastIndex(n[:cut], "-") {
				if forgeSet[n[:cut]] {
					src = n[:cut]
					break
				}
			}
		}
		idx.add(n, src)
	}
	for _, f := range forges {
		idx.add(f, f)
	}
	return idx, nil
}

// listForgeNames returns the forge directory names under forges/, sorted.
func (pl *Planner) listForgeNames() ([]string, error) {
	dir := forgesDir(pl.RepoDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// forgeSpecPath locates the single spec file of a forge working tree.
func (pl *Planner) forgeSpecPath(forge string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(forgePath(pl.RepoDir, forge), "*.spec"))
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("forge %s has no spec file", forge)
	}
	sort.Strings(matches)
	return matches[0], nil
}

// BuildGraph queries every forge's BuildRequires and assembles the local
// dependency graph. Capabilities no local package provides are dropped.
func (pl *Planner) BuildGraph(ctx context.Context) (*DepGraph, error) {
	forges, err := pl.listForgeNames()
	if err != nil {
		return nil, err
	}
	providers, err := pl.buildProviderIndex(forges)
	if err != nil {
		return nil, err
	}

	g := NewDepGraph()
	for _, forge := range forges {
		g.AddNode(forge)
		spec, err := pl.forgeSpecPath(forge)
		if err != nil {
			colWarn.Printf("Skipping dependencies of %s: %v\n", forge, err)
			continue
		}
		caps, err := pl.queryBuildRequires(ctx, spec)
		if err != nil {
			return nil, err
		}
		for _, c := range caps {
			name := capabilityName(c)
			if internalCapability(name) {
				continue
			}
			if provider, ok := providers[name]; ok {
				g.AddEdge(forge, provider)
			}
		}
	}
	return g, nil
}

// MakePlan computes the dependency-ordered plan for a trigger set.
func (pl *Planner) MakePlan(ctx context.Context, triggers []string) (*Plan, error) {
	g, err := pl.BuildGraph(ctx)
	if err != nil {
		return nil, err
	}
	affected, err := g.AffectedBy(triggers)
	if err != nil {
		return nil, err
	}
	order, err := g.TopoSort(affected)
	if err != nil {
		return nil, err
	}

	triggerSet := make(map[string]bool, len(triggers))
	for _, t := range triggers {
		triggerSet[t] = true
	}
	pkgConf, err := LoadPackageConfig(filepath.Join(forgesDir(pl.RepoDir), PackageConfName))
	if err != nil {
		return nil, err
	}

	plan := &Plan{
		CreatedAt: nowFunc(),
		Engine:    "lc/" + version,
		Triggers:  append([]string{}, triggers...),
	}
	sort.Strings(plan.Triggers)
	for _, pkg := range order {
		reason := "prerequisite"
		switch {
		case triggerSet[pkg]:
			reason = "trigger"
		case affected[pkg] > 0:
			reason = "dependent"
		}
		step := PlanStep{Package: pkg, Level: affected[pkg], Reason: reason}
		if opts, ok := pkgConf[pkg]; ok {
			step.Options = opts
		}
		plan.Steps = append(plan.Steps, step)
	}
	return plan, nil
}
