package lc

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gookit/color"
)

// printHelp prints the commands table
func printHelp() {
	colSuccess.Println("Usage: lc <command> [arguments]")
	colSuccess.Println("Run 'lc <command>' for advanced options")
	fmt.Println()
	color.Info.Println("Available Commands:")

	type cmdInfo struct {
		Cmd  string
		Args string
		Desc string
	}
	cmds := []cmdInfo{
		{"version, --version", "", "Version information"},
		{"init", "<dir>", "Initialize a build repository"},
		{"remove", "<dir>", "Delete a build repository"},
		{"build, b", "[options] <srcdir>", "Build a package from a source directory"},
		{"plan", "[options] <pkg...>", "Compute the dependency-ordered rebuild plan"},
		{"chain", "[options] [pkg...]", "Run a chain rebuild (from triggers or a saved plan)"},
		{"forge", "create|delete|list", "Manage package source trees with build hooks"},
		{"trigger", "[options]", "Admit a build event (called by forge git hooks)"},
		{"register", "add|remove|list", "Wire a repository into the system package manager"},
		{"log", "[dir]", "TUI build log viewer"},
		{"logs", "[--reap] [dir]", "List build logs, optionally finalize orphans"},
	}

	maxLen := 0
	for _, c := range cmds {
		length := len(c.Cmd) + len(c.Args)
		if c.Args != "" {
			length++
		}
		if length > maxLen {
			maxLen = length
		}
	}
	columnWidth := maxLen + 4

	for _, c := range cmds {
		var usageString string
		if c.Args != "" {
			usageString = fmt.Sprintf("  %s %s", c.Cmd, c.Args)
		} else {
			usageString = fmt.Sprintf("  %s", c.Cmd)
		}

		fmt.Print("  ")
		color.Bold.Print(c.Cmd)
		if c.Args != "" {
			fmt.Print(" ")
			color.Cyan.Print(c.Args)
		}

		pad := columnWidth - len(usageString)
		if pad < 1 {
			pad = 1
		}
		fmt.Print(strings.Repeat(" ", pad))
		color.Info.Println(c.Desc)
	}

	fmt.Println()
}

// repoDirArg resolves the repository directory argument, defaulting to the
// current directory when it is itself a repository.
func repoDirArg(args []string) (string, error) {
	if len(args) > 0 {
		return filepath.Abs(args[0])
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	if !IsRepo(cwd) {
		return "", fmt.Errorf("%s is not an lc repository (pass the repository directory)", cwd)
	}
	return cwd, nil
}

// Main is the CLI entrypoint for cmd/lc.
func Main() {
	// 1. CONTEXT AND SIGNAL SETUP
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. SIGNAL CHANNEL SETUP
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)

	// 3. SIGNAL HANDLING GOROUTINE
	go func() {
		for {
			select {
			case sig := <-sigs:
				colArrow.Print("\n-> ")
				color.Danger.Printf("Received %v. Cancelling process gracefully\n", sig)
				cancel()

				// Give the sandbox a moment to die and flush its buffers
				time.Sleep(100 * time.Millisecond)

				select {
				case <-sigs:
					colArrow.Print("\n-> ")
					color.Danger.Printf("Second interrupt received. Forcing immediate exit.")
					os.Exit(130)
				case <-time.After(2 * time.Second):
					colArrow.Print("\n-> ")
					color.Danger.Printf("Graceful shutdown timeout. Exiting.")
					os.Exit(0)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	// 4. MAIN LOGIC EXECUTION
	if ctx.Err() != nil {
		return
	}

	if len(os.Args) < 2 {
		printHelp()
		return
	}

	configPath := ConfigFile
	if path := os.Getenv("LC_CONFIG"); path != "" {
		configPath = path
	}
	cfg, err := LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	mergeEnvOverrides(cfg)
	Debug = cfg.Values["LC_DEBUG"] == "1"

	e := NewExecutor(ctx)

	// 5. MAIN LOGIC
	var exitCode int

	switch os.Args[1] {
	case "init":
		initCmd := flag.NewFlagSet("init", flag.ExitOnError)
		var gpgKey = initCmd.String("gpg-key", "", "GPG key ID used to sign packages and repodata")
		var autoRebuild = initCmd.Bool("auto-rebuild", false, "Rebuild dependent packages on forge triggers")
		if err := initCmd.Parse(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error parsing init flags: %v\n", err)
			os.Exit(1)
		}
		if initCmd.NArg() < 1 {
			fmt.Println("Usage: lc init [--gpg-key <id>] [--auto-rebuild] <dir>")
			os.Exit(1)
		}
		if err := InitRepo(e, initCmd.Arg(0), *gpgKey, *autoRebuild); err != nil {
			fmt.Fprintf(os.Stderr, "Init failed: %v\n", err)
			os.Exit(1)
		}

	case "remove":
		if len(os.Args) < 3 {
			fmt.Println("Usage: lc remove <dir>")
			os.Exit(1)
		}
		if err := RemoveRepo(os.Args[2]); err != nil {
			fmt.Fprintf(os.Stderr, "Remove failed: %v\n", err)
			os.Exit(1)
		}

	case "build", "b":
		if err := handleBuildCommand(ctx, cfg, os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Build failed: %v\n", err)
			os.Exit(1)
		}

	case "plan":
		if err := handlePlanCommand(ctx, cfg, os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Plan failed: %v\n", err)
			os.Exit(1)
		}

	case "chain":
		if err := handleChainCommand(ctx, cfg, os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Chain failed: %v\n", err)
			os.Exit(1)
		}

	case "forge":
		if err := handleForgeCommand(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Forge command failed: %v\n", err)
			os.Exit(1)
		}

	case "trigger":
		code, err := handleTriggerCommand(ctx, cfg, os.Args[2:])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Trigger failed: %v\n", err)
		}
		exitCode = code

	case "register":
		if err := handleRegisterCommand(e, os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Register command failed: %v\n", err)
			os.Exit(1)
		}

	case "log":
		repoDir, err := repoDirArg(os.Args[2:])
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
			os.Exit(1)
		}
		exitCode = RunLogTUI(repoDir)

	case "logs":
		logsCmd := flag.NewFlagSet("logs", flag.ExitOnError)
		var reap = logsCmd.Bool("reap", false, "Finalize logs orphaned by dead supervisors")
		if err := logsCmd.Parse(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error parsing logs flags: %v\n", err)
			os.Exit(1)
		}
		repoDir, err := repoDirArg(logsCmd.Args())
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
			os.Exit(1)
		}
		if *reap {
			n, err := ReapOrphanLogs(repoDir)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Reap failed: %v\n", err)
				os.Exit(1)
			}
			colSuccess.Printf("Reaped %d orphaned log(s)\n", n)
		}
		items, err := ListBuildLogs(repoDir)
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
			os.Exit(1)
		}
		PrintBuildLogs(repoDir, items)

	case "version", "--version":
		colSuccess.Printf("lc %s (%s) built %s\n", version, arch, buildDate)

	default:
		printHelp()
		exitCode = 1
	}
	os.Exit(exitCode)
}

func handleBuildCommand(ctx context.Context, cfg *Config, args []string) error {
	fs := flag.NewFlagSet("build", flag.ExitOnError)
	var repoFlag = fs.String("repo", "", "Target repository directory")
	var specFlag = fs.String("spec", "", "Explicit spec file (default: first *.spec in srcdir)")
	var jobs = fs.Int("j", 0, "Limit sandbox build parallelism to N jobs")
	var maxMem = fs.String("max-mem", "", "Cap sandbox memory (e.g. 4G), requires systemd-run")
	var network = fs.Bool("network", false, "Allow network access inside the sandbox")
	var quiet = fs.Bool("quiet", false, "Suppress live build output (transcript still kept)")
	var storage = fs.String("storage", "", "Sandbox storage strategy: full, persistent, hybrid")
	var addRepos []string
	fs.Func("addrepo", "Extra input repository (repeatable)", func(v string) error {
		addRepos = append(addRepos, v)
		return nil
	})
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		fmt.Println("Usage: lc build [options] <srcdir>")
		fs.PrintDefaults()
		os.Exit(1)
	}
	repoDir, err := repoDirArgFromFlag(*repoFlag)
	if err != nil {
		return err
	}

	res, err := ExecuteBuild(ctx, cfg, BuildRequest{
		SourceDir: fs.Arg(0),
		RepoDir:   repoDir,
		SpecFile:  *specFlag,
		AddRepos:  addRepos,
		Options: BuildOptions{
			Jobs:          *jobs,
			MaxMem:        *maxMem,
			EnableNetwork: *network,
			Storage:       StorageStrategy(*storage),
			Quiet:         *quiet,
		},
	})
	if err != nil {
		var pre *PreconditionError
		if errors.As(err, &pre) {
			colError.Printf("Precondition not met: %s\n", pre.Reason)
			os.Exit(1)
		}
		return err
	}
	colArrow.Print("-> ")
	colSuccess.Printf("Built %s (build %d, %d artifact(s), %s)\n",
		res.Package, res.BuildID, len(res.Artifacts), res.Duration.Round(time.Second))
	return nil
}

func repoDirArgFromFlag(repoFlag string) (string, error) {
	if repoFlag != "" {
		return filepath.Abs(repoFlag)
	}
	return repoDirArg(nil)
}

func handlePlanCommand(ctx context.Context, cfg *Config, args []string) error {
	fs := flag.NewFlagSet("plan", flag.ExitOnError)
	var repoFlag = fs.String("repo", "", "Repository directory")
	var outFlag = fs.String("o", "", "Write the plan as JSON to a file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		fmt.Println("Usage: lc plan [-repo <dir>] [-o plan.json] <pkg> [pkg...]")
		os.Exit(1)
	}
	repoDir, err := repoDirArgFromFlag(*repoFlag)
	if err != nil {
		return err
	}

	plan, err := NewPlanner(repoDir, cfg).MakePlan(ctx, fs.Args())
	if err != nil {
		return err
	}
	PrintPlan(plan)
	if *outFlag != "" {
		if err := WritePlan(*outFlag, plan); err != nil {
			return err
		}
		colSuccess.Printf("Plan written to %s\n", *outFlag)
	}
	return nil
}

func handleChainCommand(ctx context.Context, cfg *Config, args []string) error {
	fs := flag.NewFlagSet("chain", flag.ExitOnError)
	var repoFlag = fs.String("repo", "", "Repository directory")
	var planFlag = fs.String("plan", "", "Execute a previously saved plan file")
	var quiet = fs.Bool("quiet", false, "Suppress live build output")
	if err := fs.Parse(args); err != nil {
		return err
	}
	repoDir, err := repoDirArgFromFlag(*repoFlag)
	if err != nil {
		return err
	}

	var plan *Plan
	switch {
	case *planFlag != "":
		plan, err = ReadPlan(*planFlag)
	case fs.NArg() > 0:
		plan, err = NewPlanner(repoDir, cfg).MakePlan(ctx, fs.Args())
	default:
		fmt.Println("Usage: lc chain [-repo <dir>] (-plan plan.json | <pkg> [pkg...])")
		os.Exit(1)
	}
	if err != nil {
		return err
	}

	PrintPlan(plan)
	res, err := NewChainExecutor(repoDir, cfg).Execute(ctx, plan, BuildOptions{Quiet: *quiet})
	if err != nil {
		return err
	}
	if res.Failed {
		return fmt.Errorf("chain failed")
	}
	return nil
}

func handleForgeCommand(args []string) error {
	if len(args) < 1 {
		fmt.Println("Usage: lc forge <create|delete|list> [arguments]")
		os.Exit(1)
	}
	switch args[0] {
	case "create":
		fs := flag.NewFlagSet("forge create", flag.ExitOnError)
		var repoFlag = fs.String("repo", "", "Repository directory")
		var cloneURL = fs.String("clone", "", "Clone an existing git repository instead of starting empty")
		var branch = fs.String("branch", "", "Branch to clone (default: remote HEAD)")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if fs.NArg() < 1 {
			fmt.Println("Usage: lc forge create [-repo <dir>] [-clone <url>] [-branch <b>] <pkg>")
			os.Exit(1)
		}
		repoDir, err := repoDirArgFromFlag(*repoFlag)
		if err != nil {
			return err
		}
		return CreateForge(repoDir, fs.Arg(0), *cloneURL, *branch)

	case "delete":
		fs := flag.NewFlagSet("forge delete", flag.ExitOnError)
		var repoFlag = fs.String("repo", "", "Repository directory")
		var yes = fs.Bool("y", false, "Assume 'yes' to all prompts")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if fs.NArg() < 1 {
			fmt.Println("Usage: lc forge delete [-repo <dir>] [-y] <pkg>")
			os.Exit(1)
		}
		repoDir, err := repoDirArgFromFlag(*repoFlag)
		if err != nil {
			return err
		}
		return DeleteForge(repoDir, fs.Arg(0), *yes)

	case "list", "ls":
		fs := flag.NewFlagSet("forge list", flag.ExitOnError)
		var repoFlag = fs.String("repo", "", "Repository directory")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		repoDir, err := repoDirArgFromFlag(*repoFlag)
		if err != nil {
			return err
		}
		infos, err := ListForges(repoDir)
		if err != nil {
			return err
		}
		PrintForges(infos)
		return nil

	default:
		fmt.Println("Usage: lc forge <create|delete|list> [arguments]")
		os.Exit(1)
	}
	return nil
}

func handleTriggerCommand(ctx context.Context, cfg *Config, args []string) (int, error) {
	fs := flag.NewFlagSet("trigger", flag.ExitOnError)
	var repoFlag = fs.String("repo", "", "Repository directory")
	var pkg = fs.String("package", "", "Package whose forge fired the event")
	var commit = fs.String("commit", "", "Commit hash of the triggering revision")
	var kind = fs.String("kind", "push", "Event kind: push, merge, commit")
	var supervise = fs.Bool("supervise", false, "Internal: run as the detached build supervisor")
	var logFlag = fs.String("log", "", "Internal: pending log path (supervise mode)")
	if err := fs.Parse(args); err != nil {
		return 1, err
	}
	if *pkg == "" {
		fmt.Println("Usage: lc trigger -repo <dir> -package <pkg> [-commit <sha>] [-kind push|merge|commit]")
		return 1, nil
	}
	repoDir, err := repoDirArgFromFlag(*repoFlag)
	if err != nil {
		return 1, err
	}

	ev := TriggerEvent{RepoDir: repoDir, Package: *pkg, Commit: *commit, Kind: *kind}
	if *supervise {
		if err := RunSupervised(ctx, cfg, ev, *logFlag); err != nil {
			return 1, err
		}
		return 0, nil
	}

	adm, err := NewTriggerController(cfg).OnEvent(ev)
	if err != nil {
		if errors.Is(err, ErrRepositoryBusy) {
			colWarn.Println("Repository busy, trigger dropped.")
			return 0, nil
		}
		return 1, err
	}
	colSuccess.Printf("Build admitted: supervisor %d, log %s\n", adm.PID, adm.LogPath)
	return 0, nil
}

func handleRegisterCommand(e *Executor, args []string) error {
	if len(args) < 1 {
		fmt.Println("Usage: lc register <add|remove|list> [arguments]")
		os.Exit(1)
	}
	switch args[0] {
	case "add":
		fs := flag.NewFlagSet("register add", flag.ExitOnError)
		var name = fs.String("name", "", "Repository name (default: directory basename)")
		var force = fs.Bool("force", false, "Overwrite an existing registration")
		var refresh = fs.Bool("refresh", true, "Refresh the package manager cache afterwards")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if fs.NArg() < 1 {
			fmt.Println("Usage: lc register add [-name <n>] [-force] <dir>")
			os.Exit(1)
		}
		repoDir, err := filepath.Abs(fs.Arg(0))
		if err != nil {
			return err
		}
		regName := *name
		if regName == "" {
			regName = filepath.Base(repoDir)
		}
		return RegisterRepo(e, repoDir, regName, *force, *refresh)

	case "remove":
		fs := flag.NewFlagSet("register remove", flag.ExitOnError)
		var refresh = fs.Bool("refresh", true, "Refresh the package manager cache afterwards")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if fs.NArg() < 1 {
			fmt.Println("Usage: lc register remove <name>")
			os.Exit(1)
		}
		return UnregisterRepo(e, fs.Arg(0), *refresh)

	case "list", "ls":
		return ListRegistered()

	default:
		fmt.Println("Usage: lc register <add|remove|list> [arguments]")
		os.Exit(1)
	}
	return nil
}
