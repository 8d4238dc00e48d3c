package lc

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"
)

// StepStatus is the outcome of one chain step.
type StepStatus string

const (
	StepSucceeded StepStatus = "SUCCEEDED"
	StepFailed    StepStatus = "FAILED"
	StepSkipped   StepStatus = "SKIPPED"
)

// StepResult reports one executed (or skipped) plan step.
type StepResult struct {
	Package  string
	Status   StepStatus
	BuildID  int64
	Err      error
	Duration time.Duration
}

// ChainResult reports a whole chain run. Failed is set when any step
// failed; the remaining steps are present with StepSkipped.
type ChainResult struct {
	Steps  []StepResult
	Failed bool
}

// ChainExecutor runs a plan's steps in order. Each successful step's
// artifacts are staged into a scratch repository that later steps consume
// as an extra input repo, so a chain builds against its own fresh output
// before anything lands in the target repository's index for installers.
type ChainExecutor struct {
	RepoDir string
	Config  *Config

	// buildFn runs one package build, reindex refreshes a repo's metadata.
	// Both swapped out in tests.
	buildFn func(ctx context.Context, cfg *Config, req BuildRequest) (*BuildResult, error)
	reindex func(e *Executor, dir string) error
}

func NewChainExecutor(repoDir string, cfg *Config) *ChainExecutor {
	return &ChainExecutor{
		RepoDir: repoDir,
		Config:  cfg,
		buildFn: ExecuteBuild,
		reindex: regenerateIndex,
	}
}

// stageScratchArtifacts copies a step's freshly built rpms into the scratch
// repo and reindexes it, so the next step resolves against them.
func (ce *ChainExecutor) stageScratchArtifacts(ctx context.Context, scratchDir string, artifacts []string) error {
	for _, rpm := range artifacts {
		dest := filepath.Join(scratchDir, filepath.Base(rpm))
		if err := copyFile(rpm, dest); err != nil {
			return fmt.Errorf("failed to stage %s into scratch repo: %w", filepath.Base(rpm), err)
		}
	}
	e := NewExecutor(ctx)
	e.Quiet = true
	return ce.reindex(e, scratchDir)
}

// Execute runs every step of the plan. The first failure halts the chain
// and marks the remaining steps skipped; partial progress stays in the
// repository, rerunning the plan rebuilds only what is asked again.
func (ce *ChainExecutor) Execute(ctx context.Context, plan *Plan, base BuildOptions) (*ChainResult, error) {
	scratchDir, err := os.MkdirTemp("", "lc-chain-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(scratchDir)
	e := NewExecutor(ctx)
	e.Quiet = true
	if err := ce.reindex(e, scratchDir); err != nil {
		return nil, fmt.Errorf("failed to initialize scratch repo: %w", err)
	}

	var bar *progressbar.ProgressBar
	if term.IsTerminal(int(os.Stderr.Fd())) && !base.Quiet {
		bar = progressbar.NewOptions(len(plan.Steps),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetDescription("chain"),
			progressbar.OptionShowCount(),
			progressbar.OptionOnCompletion(func() { fmt.Fprintln(os.Stderr) }),
		)
	}

	pkgConf, err := LoadPackageConfig(filepath.Join(forgesDir(ce.RepoDir), PackageConfName))
	if err != nil {
		return nil, err
	}

	res := &ChainResult{}
	for i, step := range plan.Steps {
		if res.Failed {
			res.Steps = append(res.Steps, StepResult{Package: step.Package, Status: StepSkipped})
			continue
		}
		if err := ctx.Err(); err != nil {
			res.Failed = true
			res.Steps = append(res.Steps, StepResult{Package: step.Package, Status: StepSkipped, Err: err})
			continue
		}

		colArrow.Printf("=> [%d/%d] Building %s\n", i+1, len(plan.Steps), step.Package)
		opts := pkgConf.Resolve(step.Package, base)
		opts.AddRepos = append(append([]string{}, opts.AddRepos...), scratchDir)

		start := time.Now()
		result, buildErr := ce.buildFn(ctx, ce.Config, BuildRequest{
			SourceDir: forgePath(ce.RepoDir, step.Package),
			RepoDir:   ce.RepoDir,
			Options:   opts,
		})
		sr := StepResult{Package: step.Package, Duration: time.Since(start)}
		if buildErr != nil {
			sr.Status = StepFailed
			sr.Err = buildErr
			res.Failed = true
			colError.Printf("Chain halted: %s failed: %v\n", step.Package, buildErr)
		} else {
			sr.Status = StepSucceeded
			sr.BuildID = result.BuildID
			if err := ce.stageScratchArtifacts(ctx, scratchDir, result.Artifacts); err != nil {
				sr.Status = StepFailed
				sr.Err = err
				res.Failed = true
			}
		}
		res.Steps = append(res.Steps, sr)
		if bar != nil {
			_ = bar.Add(1)
		}
	}

	reportChain(res)
	return res, nil
}

func reportChain(res *ChainResult) {
	for _, sr := range res.Steps {
		switch sr.Status {
		case StepSucceeded:
			colSuccess.Printf("  %-28s ok (build %d, %s)\n", sr.Package, sr.BuildID, sr.Duration.Round(time.Second))
		case StepFailed:
			colError.Printf("  %-28s failed: %v\n", sr.Package, sr.Err)
		case StepSkipped:
			colWarn.Printf("  %-28s skipped\n", sr.Package)
		}
	}
}
