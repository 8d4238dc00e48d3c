package lc

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// BuildRequest names one unit of work for the Build Executor.
type BuildRequest struct {
	SourceDir string   // directory holding the spec and sources
	RepoDir   string   // target repository
	SpecFile  string   // optional explicit spec, else first *.spec in SourceDir
	AddRepos  []string // extra input repositories (paths or URLs)
	Options   BuildOptions
}

// BuildResult reports a successful build.
type BuildResult struct {
	Package    string
	BuildID    int64
	Artifacts  []string // paths of rpms now in the repository
	Transcript string   // archived transcript in .build_logs
	Duration   time.Duration
}

// ExecuteBuild runs one isolated build: stage sources into a workspace,
// fetch remote sources, build the SRPM and then the binary rpms in the
// sandbox, and on success install the artifacts into the target repository
// and regenerate its metadata under the build lock. The transcript archive
// is written whatever happens.
func ExecuteBuild(ctx context.Context, cfg *Config, req BuildRequest) (*BuildResult, error) {
	startTime := time.Now()

	sourceDir, err := filepath.Abs(req.SourceDir)
	if err != nil {
		return nil, err
	}
	repoDir, err := filepath.Abs(req.RepoDir)
	if err != nil {
		return nil, err
	}
	if !dirExists(sourceDir) {
		return nil, &PreconditionError{Reason: fmt.Sprintf("source dir %s does not exist", sourceDir)}
	}
	if !dirExists(repoDir) {
		return nil, &PreconditionError{Reason: fmt.Sprintf("target repo %s does not exist", repoDir)}
	}

	repoCfg, err := LoadRepoConfig(repoDir)
	if err != nil {
		return nil, err
	}

	// Resolve the spec before creating any state.
	specPath := req.SpecFile
	if specPath == "" {
		specs, _ := filepath.Glob(filepath.Join(sourceDir, "*.spec"))
		if len(specs) == 0 {
			return nil, &PreconditionError{Reason: fmt.Sprintf("no .spec file found in %s", sourceDir)}
		}
		specPath = specs[0]
	}
	pkgName := strings.TrimSuffix(filepath.Base(specPath), ".spec")

	// Validate resource preconditions and assemble the sandbox prefix
	// before the workspace exists: fail fast, no side effects.
	baseArgs, err := mockBaseArgs(cfg.MockConfig(repoCfg), req.Options)
	if err != nil {
		return nil, err
	}

	buildID, err := nextBuildID(repoDir, pkgName)
	if err != nil {
		return nil, err
	}
	baseArgs = append(baseArgs, buildIDDefines(buildID)...)

	workDir, err := os.MkdirTemp("", "lc-build-")
	if err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}
	defer os.RemoveAll(workDir)

	e := NewExecutor(ctx)
	e.Quiet = req.Options.Quiet

	// Transcript of everything the build printed, kept in the workspace
	// so the archive picks it up on both paths.
	transcriptPath := filepath.Join(workDir, "lc-build.log")
	transcript, err := os.Create(transcriptPath)
	if err != nil {
		return nil, err
	}
	defer transcript.Close()
	if req.Options.Quiet {
		e.Output = transcript
	} else {
		e.Output = io.MultiWriter(os.Stdout, transcript)
	}

	result, buildErr := runBuildPhases(e, repoCfg, buildPhaseInput{
		pkgName:   pkgName,
		sourceDir: sourceDir,
		specPath:  specPath,
		repoDir:   repoDir,
		workDir:   workDir,
		baseArgs:  baseArgs,
		addRepos:  append(append([]string{}, req.AddRepos...), req.Options.AddRepos...),
		buildID:   buildID,
	})

	// Archive the transcript whatever happened. On success only the rpm
	// result dir matters, on failure keep the whole workspace for diagnosis.
	status := "SUCCESS"
	logSource := filepath.Join(workDir, "rpm_result")
	if buildErr != nil {
		status = "FAILED"
		logSource = workDir
	} else if !dirExists(logSource) {
		logSource = workDir
	}
	archivePath, archErr := archiveTranscript(cfg, repoDir, pkgName, status, logSource)
	if archErr != nil {
		colWarn.Printf("Failed to archive build transcript: %v\n", archErr)
	}

	if buildErr != nil {
		return nil, buildErr
	}
	result.Package = pkgName
	result.BuildID = buildID
	result.Transcript = archivePath
	result.Duration = time.Since(startTime)
	return result, nil
}

type buildPhaseInput struct {
	pkgName   string
	sourceDir string
	specPath  string
	repoDir   string
	workDir   string
	baseArgs  []string
	addRepos  []string
	buildID   int64
}

func runBuildPhases(e *Executor, repoCfg *RepoConfig, in buildPhaseInput) (*BuildResult, error) {
	// Phase 0: stage a clean copy of the sources, VCS metadata excluded.
	cleanSrc := filepath.Join(in.workDir, "clean_sources")
	if err := os.MkdirAll(cleanSrc, 0o755); err != nil {
		return nil, err
	}
	if err := copyTree(in.sourceDir, cleanSrc, ".git", ".svn"); err != nil {
		return nil, fmt.Errorf("failed to stage sources: %w", err)
	}
	relSpec, err := filepath.Rel(in.sourceDir, in.specPath)
	if err != nil {
		relSpec = filepath.Base(in.specPath)
	}
	stagedSpec := filepath.Join(cleanSrc, relSpec)

	// Phase A: fetch remote sources named by the spec.
	cmd := exec.Command("spectool", "-g", "-C", cleanSrc, stagedSpec)
	cmd.Dir = cleanSrc
	if err := e.Run(cmd); err != nil {
		return nil, fmt.Errorf("spectool failed for %s: %w", in.pkgName, err)
	}

	// Phase B: build the SRPM.
	srpmDir := filepath.Join(in.workDir, "srpm_result")
	if err := os.MkdirAll(srpmDir, 0o755); err != nil {
		return nil, err
	}
	srpmArgs := append(append([]string{}, in.baseArgs[1:]...),
		"--buildsrpm", "--spec", stagedSpec, "--sources", cleanSrc, "--resultdir", srpmDir)
	if err := e.Run(exec.Command(in.baseArgs[0], srpmArgs...)); err != nil {
		return nil, fmt.Errorf("SRPM build failed for %s: %w", in.pkgName, err)
	}
	srpms, _ := filepath.Glob(filepath.Join(srpmDir, "*.src.rpm"))
	if len(srpms) == 0 {
		return nil, fmt.Errorf("SRPM build for %s produced no .src.rpm", in.pkgName)
	}

	// Phase C: the sandboxed binary build, with every input repository
	// visible to dependency resolution inside the chroot.
	rpmDir := filepath.Join(in.workDir, "rpm_result")
	if err := os.MkdirAll(rpmDir, 0o755); err != nil {
		return nil, err
	}
	rpmArgs := append(append([]string{}, in.baseArgs[1:]...),
		"--rebuild", srpms[0], "--resultdir", rpmDir)
	for _, repo := range in.addRepos {
		rpmArgs = append(rpmArgs, "--addrepo="+repoURL(repo))
	}
	if err := e.Run(exec.Command(in.baseArgs[0], rpmArgs...)); err != nil {
		return nil, fmt.Errorf("build failed for %s: %w", in.pkgName, err)
	}

	// Phase D: install artifacts into the repository and regenerate the
	// index, all under the build lock. A failure after this point must not
	// leave a half-updated repo: artifacts are copied first, the index is
	// regenerated from the full artifact set, and signatures come last so
	// a signing failure surfaces before the lock is released.
	built, _ := filepath.Glob(filepath.Join(rpmDir, "*.rpm"))
	var toInstall []string
	for _, rpm := range built {
		base := filepath.Base(rpm)
		if strings.Contains(base, "debuginfo") || strings.Contains(base, "debugsource") || strings.HasSuffix(base, ".src.rpm") {
			continue
		}
		toInstall = append(toInstall, rpm)
	}
	if len(toInstall) == 0 {
		return nil, fmt.Errorf("build for %s produced no installable rpms", in.pkgName)
	}

	lock, err := acquireBuildLock(in.repoDir)
	if err != nil {
		return nil, err
	}
	defer lock.Release()

	var installed []string
	for _, rpm := range toInstall {
		dest := filepath.Join(in.repoDir, filepath.Base(rpm))
		if err := copyFile(rpm, dest); err != nil {
			return nil, fmt.Errorf("failed to install artifact %s: %w", filepath.Base(rpm), err)
		}
		installed = append(installed, dest)
		fmt.Fprintf(e.Output, "[lc] -> Saved RPM: %s\n", filepath.Base(rpm))
	}

	if repoCfg.GPGKeyID != "" {
		if err := signRPMs(e, repoCfg.GPGKeyID, installed); err != nil {
			return nil, err
		}
	}
	if err := recordArtifacts(in.repoDir, installed, in.buildID); err != nil {
		return nil, err
	}
	if err := regenerateIndex(e, in.repoDir); err != nil {
		return nil, err
	}
	if repoCfg.GPGKeyID != "" {
		if err := signRepodata(e, in.repoDir, repoCfg.GPGKeyID); err != nil {
			return nil, err
		}
	}

	return &BuildResult{Artifacts: installed}, nil
}

// repoURL turns a local path into a file:// URL; anything else passes
// through as-is.
func repoURL(repo string) string {
	if dirExists(repo) {
		abs, err := filepath.Abs(repo)
		if err == nil {
			return "file://" + abs
		}
	}
	return repo
}

// archiveTranscript packs the build transcript directory into .build_logs
// as <pkg>-<STATUS>-<timestamp>.tar.<format>.
func archiveTranscript(cfg *Config, repoDir, pkgName, status, srcDir string) (string, error) {
	dir := logsDir(repoDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	ext, err := archiveExt(cfg.Values["LC_ARCHIVE_FORMAT"])
	if err != nil {
		return "", err
	}
	name := fmt.Sprintf("%s-%s-%s%s", pkgName, status, nowFunc().Format("20060102-150405"), ext)
	dest := filepath.Join(dir, name)
	if err := createArchive(srcDir, dest, "build-logs-"+status); err != nil {
		return "", err
	}
	return dest, nil
}
