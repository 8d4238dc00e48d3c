package lc

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// ErrRepositoryBusy rejects a trigger while another triggered run holds the
// busy lock. The caller (a git hook) just drops the event; the running
// chain will rebuild from whatever state the forge is in when it next
// fires.
var ErrRepositoryBusy = errors.New("repository busy: a triggered build is already running")

// TriggerEvent is one forge mutation reported by a git hook.
type TriggerEvent struct {
	RepoDir string
	Package string
	Commit  string
	Kind    string // push, merge, commit
}

// Admission reports an accepted trigger: where its log lives and the
// supervisor process now responsible for finalizing it.
type Admission struct {
	LogPath string
	PID     int
}

// TriggerController admits events and spawns detached supervisors. The
// busy lock descriptor is inherited by the supervisor so the kernel
// releases it whenever the supervisor dies, cleanly or not.
type TriggerController struct {
	Config *Config

	// spawn launches the detached supervisor for an admitted event,
	// returning its PID. Swapped out in tests.
	spawn func(ev TriggerEvent, logPath string, busy *FileLock) (int, error)
}

func NewTriggerController(cfg *Config) *TriggerController {
	return &TriggerController{Config: cfg, spawn: spawnSupervisor}
}

func shortCommit(commit string) string {
	if len(commit) > 8 {
		return commit[:8]
	}
	if commit == "" {
		return "none"
	}
	return commit
}

// pendingLogPath names a trigger log: <pkg>-PENDING-<ts>-<shortsha>.log.
// The PENDING token is renamed to the final status when the run ends.
func pendingLogPath(repoDir, pkg, commit string) string {
	name := fmt.Sprintf("%s-PENDING-%s-%s.log", pkg, nowFunc().Format("20060102-150405"), shortCommit(commit))
	return filepath.Join(logsDir(repoDir), name)
}

// OnEvent admits or rejects one trigger. On admission the busy lock is
// handed to a detached supervisor and this call returns immediately; the
// build proceeds without the git hook waiting on it.
func (tc *TriggerController) OnEvent(ev TriggerEvent) (*Admission, error) {
	if !IsRepo(ev.RepoDir) {
		return nil, fmt.Errorf("%s is not an lc repository", ev.RepoDir)
	}
	if !dirExists(forgePath(ev.RepoDir, ev.Package)) {
		return nil, fmt.Errorf("%w: %s", errForgeNotFound, ev.Package)
	}

	// Finalize logs orphaned by a killed supervisor before judging busy
	// state, so a stale PENDING entry can never mask a free repository.
	if n, err := ReapOrphanLogs(ev.RepoDir); err != nil {
		return nil, err
	} else if n > 0 {
		debugf("reaped %d orphaned trigger log(s)\n", n)
	}

	busy, err := tryAcquireBusy(ev.RepoDir)
	if err != nil {
		if errors.Is(err, ErrLocked) {
			return nil, ErrRepositoryBusy
		}
		return nil, err
	}

	if err := os.MkdirAll(logsDir(ev.RepoDir), 0o755); err != nil {
		busy.Release()
		return nil, err
	}
	logPath := pendingLogPath(ev.RepoDir, ev.Package, ev.Commit)
	pid, err := tc.spawn(ev, logPath, busy)
	if err != nil {
		busy.Release()
		return nil, fmt.Errorf("failed to start build supervisor: %w", err)
	}
	// The supervisor's duplicate keeps the flock alive; drop ours so the
	// lock lifetime tracks the supervisor alone.
	busy.DropHandle()
	return &Admission{LogPath: logPath, PID: pid}, nil
}

// spawnSupervisor re-executes the current binary in supervise mode,
// detached from the hook's session, with the log as stdout/stderr and the
// busy lock on fd 3.
func spawnSupervisor(ev TriggerEvent, logPath string, busy *FileLock) (int, error) {
	self, err := os.Executable()
	if err != nil {
		return 0, err
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, err
	}
	defer logFile.Close()

	cmd := exec.Command(self, "trigger", "--supervise",
		"--repo", ev.RepoDir,
		"--package", ev.Package,
		"--commit", ev.Commit,
		"--kind", ev.Kind,
		"--log", logPath,
	)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.Stdin = nil
	cmd.ExtraFiles = []*os.File{busy.File()} // becomes fd 3 in the child
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return 0, err
	}
	// Deliberately not waited on: the supervisor outlives the hook.
	cmd.Process.Release()
	return cmd.Process.Pid, nil
}

// inheritedBusyLock re-wraps the busy lock descriptor passed by the
// admitting process on fd 3.
func inheritedBusyLock(repoDir string) *FileLock {
	f := os.NewFile(3, filepath.Join(repoDir, BusyLockName))
	if f == nil {
		return nil
	}
	return &FileLock{f: f, path: filepath.Join(repoDir, BusyLockName)}
}

// RunSupervised is the body of the detached supervisor. Stdout and stderr
// already point at the pending log; everything the build prints lands
// there. The pending log is renamed to its final status before exit.
func RunSupervised(ctx context.Context, cfg *Config, ev TriggerEvent, logPath string) error {
	busy := inheritedBusyLock(ev.RepoDir)
	defer busy.Release()

	fmt.Printf("lc trigger supervisor\n")
	fmt.Printf("supervisor pid: %d\n", os.Getpid())
	fmt.Printf("package: %s\ncommit: %s\nkind: %s\nstarted: %s\n\n",
		ev.Package, ev.Commit, ev.Kind, nowFunc().Format(time.RFC3339))

	status := "SUCCESS"
	if err := runTriggeredBuild(ctx, cfg, ev); err != nil {
		colError.Printf("Triggered build failed: %v\n", err)
		status = "FAILED"
	}
	fmt.Printf("\nfinished: %s status: %s\n", nowFunc().Format(time.RFC3339), status)

	if err := finalizeLog(logPath, status); err != nil {
		return err
	}
	if status == "FAILED" {
		return fmt.Errorf("triggered build of %s failed", ev.Package)
	}
	return nil
}

// runTriggeredBuild builds the triggering package, and with auto_rebuild
// enabled plans and runs the dependent chain instead. A planning failure
// falls back to the single-package build rather than dropping the event.
func runTriggeredBuild(ctx context.Context, cfg *Config, ev TriggerEvent) error {
	rc, err := LoadRepoConfig(ev.RepoDir)
	if err != nil {
		return err
	}
	pkgConf, err := LoadPackageConfig(filepath.Join(forgesDir(ev.RepoDir), PackageConfName))
	if err != nil {
		return err
	}
	base := BuildOptions{Quiet: false}

	if rc.AutoRebuild {
		planner := NewPlanner(ev.RepoDir, cfg)
		plan, err := planner.MakePlan(ctx, []string{ev.Package})
		if err != nil {
			colWarn.Printf("Planning failed (%v), falling back to single build\n", err)
		} else if len(plan.Steps) > 1 {
			PrintPlan(plan)
			res, err := NewChainExecutor(ev.RepoDir, cfg).Execute(ctx, plan, base)
			if err != nil {
				return err
			}
			if res.Failed {
				return fmt.Errorf("chain failed")
			}
			return nil
		}
	}

	opts := pkgConf.Resolve(ev.Package, base)
	_, err = ExecuteBuild(ctx, cfg, BuildRequest{
		SourceDir: forgePath(ev.RepoDir, ev.Package),
		RepoDir:   ev.RepoDir,
		Options:   opts,
	})
	return err
}

// finalizeLog renames a PENDING log to its terminal status.
func finalizeLog(logPath, status string) error {
	final := strings.Replace(filepath.Base(logPath), "-PENDING-", "-"+status+"-", 1)
	if final == filepath.Base(logPath) {
		return fmt.Errorf("log %s has no PENDING marker", logPath)
	}
	return os.Rename(logPath, filepath.Join(filepath.Dir(logPath), final))
}

var supervisorPIDRe = regexp.MustCompile(`(?m)^supervisor pid: (\d+)$`)

// logSupervisorPID extracts the supervisor PID a log recorded about itself.
func logSupervisorPID(logPath string) (int, bool) {
	f, err := os.Open(logPath)
	if err != nil {
		return 0, false
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for i := 0; sc.Scan() && i < 10; i++ {
		if m := supervisorPIDRe.FindStringSubmatch(sc.Text()); m != nil {
			pid, err := strconv.Atoi(m[1])
			return pid, err == nil
		}
	}
	return 0, false
}

func pidAlive(pid int) bool {
	return syscall.Kill(pid, 0) == nil
}

// ReapOrphanLogs finalizes PENDING logs whose supervisor died without
// renaming them. A log is an orphan only when its recorded PID is gone AND
// the busy lock is free; a log too new to have recorded a PID is left
// alone. Returns the number of logs reaped.
func ReapOrphanLogs(repoDir string) (int, error) {
	matches, err := filepath.Glob(filepath.Join(logsDir(repoDir), "*-PENDING-*.log"))
	if err != nil {
		return 0, err
	}
	if len(matches) == 0 {
		return 0, nil
	}
	sort.Strings(matches)

	reaped := 0
	for _, logPath := range matches {
		pid, ok := logSupervisorPID(logPath)
		if !ok || pidAlive(pid) {
			continue
		}
		busy, err := tryAcquireBusy(repoDir)
		if err != nil {
			if errors.Is(err, ErrLocked) {
				// A live supervisor holds the lock; its own log is not
				// ours to touch, and neither is any other right now.
				return reaped, nil
			}
			return reaped, err
		}
		err = finalizeLog(logPath, "FAILED")
		busy.Release()
		if err != nil {
			return reaped, err
		}
		colWarn.Printf("Reaped orphaned trigger log: %s\n", filepath.Base(logPath))
		reaped++
	}
	return reaped, nil
}
