package lc

import (
	"bufio"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"golang.org/x/term"
)

// forbiddenRepoRoots are paths lc refuses to create or delete a repository
// at, whatever the caller says.
var forbiddenRepoRoots = []string{"/", "/home", "/usr", "/var", "/etc"}

func isForbiddenRoot(path string) bool {
	for _, p := range forbiddenRepoRoots {
		if path == p {
			return true
		}
	}
	home, err := os.UserHomeDir()
	return err == nil && path == home
}

// IsRepo reports whether dir looks like an lc-managed repository.
func IsRepo(dir string) bool {
	return fileExists(filepath.Join(dir, RepoConfigName))
}

func logsDir(repoDir string) string   { return filepath.Join(repoDir, LogsDirName) }
func forgesDir(repoDir string) string { return filepath.Join(repoDir, ForgesDirName) }

// forgePath returns the source directory for one managed package.
func forgePath(repoDir, pkg string) string {
	return filepath.Join(forgesDir(repoDir), pkg)
}

// InitRepo initializes a repository directory: records the configuration,
// exports the signing public key, generates the metadata index and writes
// the .repo template consumers can install.
func InitRepo(e *Executor, repoDir, gpgKey string, autoRebuild bool) error {
	repoDir, err := filepath.Abs(repoDir)
	if err != nil {
		return err
	}
	if isForbiddenRoot(repoDir) {
		return fmt.Errorf("refusing to initialize a repository at %s", repoDir)
	}

	colArrow.Print("-> ")
	colSuccess.Printf("Initializing repo at: %s\n", repoDir)

	if err := os.MkdirAll(repoDir, 0o755); err != nil {
		return fmt.Errorf("failed to create repo dir: %w", err)
	}

	rc := &RepoConfig{GPGKeyID: gpgKey, AutoRebuild: autoRebuild}
	if gpgKey != "" {
		colArrow.Print("-> ")
		colSuccess.Printf("GPG signing enabled, key ID: %s\n", gpgKey)
		if err := exportPublicKey(e, gpgKey, filepath.Join(repoDir, PublicKeyName)); err != nil {
			return err
		}
	}
	if err := SaveRepoConfig(repoDir, rc); err != nil {
		return err
	}

	for _, sub := range []string{LogsDirName, ForgesDirName} {
		if err := os.MkdirAll(filepath.Join(repoDir, sub), 0o755); err != nil {
			return err
		}
	}

	lock, err := acquireBuildLock(repoDir)
	if err != nil {
		return err
	}
	defer lock.Release()

	if err := regenerateIndex(e, repoDir); err != nil {
		return err
	}
	if gpgKey != "" {
		if err := signRepodata(e, repoDir, gpgKey); err != nil {
			return err
		}
	}

	if err := writeRepoTemplate(repoDir, rc, ""); err != nil {
		return err
	}
	colArrow.Print("-> ")
	colSuccess.Printf("Repo config template saved to %s\n", filepath.Join(repoDir, RepoTemplateName))
	return nil
}

// repoFileContent renders the dnf .repo stanza for a repository.
func repoFileContent(repoDir string, rc *RepoConfig, name string) string {
	if name == "" {
		name = filepath.Base(repoDir)
	}
	gpgBlock := "gpgcheck=0"
	if rc.GPGKeyID != "" {
		gpgBlock = fmt.Sprintf("gpgcheck=1\nrepo_gpgcheck=1\ngpgkey=file://%s", filepath.Join(repoDir, PublicKeyName))
	}
	return fmt.Sprintf("[%s]\nname=Local Copr - %s\nbaseurl=file://%s\nenabled=1\n%s\n", name, name, repoDir, gpgBlock)
}

func writeRepoTemplate(repoDir string, rc *RepoConfig, name string) error {
	return os.WriteFile(filepath.Join(repoDir, RepoTemplateName), []byte(repoFileContent(repoDir, rc, name)), 0o644)
}

// confirm prompts for the literal word "yes" on a terminal. Anything else,
// or a non-interactive stdin, declines.
func confirm(prompt string) bool {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		colWarn.Println("stdin is not a terminal, refusing destructive operation")
		return false
	}
	fmt.Printf("%s Type 'yes': ", prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	return strings.TrimSpace(strings.ToLower(line)) == "yes"
}

// RemoveRepo deletes a repository directory after confirmation. Busy
// repositories are not deleted from under a running build.
func RemoveRepo(repoDir string) error {
	repoDir, err := filepath.Abs(repoDir)
	if err != nil {
		return err
	}
	if isForbiddenRoot(repoDir) {
		return fmt.Errorf("refusing to delete %s", repoDir)
	}
	if !dirExists(repoDir) {
		return fmt.Errorf("repo %s does not exist", repoDir)
	}

	busy, err := tryAcquireBusy(repoDir)
	if err == ErrLocked {
		return fmt.Errorf("repo %s has a build in flight", repoDir)
	}
	if err != nil {
		return err
	}
	defer busy.Release()

	if !confirm(fmt.Sprintf("!!! WARNING !!! Delete %s?", repoDir)) {
		colInfo.Println("Aborted.")
		return nil
	}
	if err := os.RemoveAll(repoDir); err != nil {
		return fmt.Errorf("failed to delete repo: %w", err)
	}
	colSuccess.Println("Deleted.")
	return nil
}

// --- system registration (the lc-add-repo surface) ---

const systemRepoDir = "/etc/yum.repos.d"

func requireRoot() error {
	if os.Geteuid() != 0 {
		return fmt.Errorf("this operation must be run as root")
	}
	return nil
}

// RegisterRepo installs a repository's .repo stanza into the system
// package manager, importing the signing key first when one is configured.
func RegisterRepo(e *Executor, repoDir, name string, force, refresh bool) error {
	if err := requireRoot(); err != nil {
		return err
	}
	repoDir, err := filepath.Abs(repoDir)
	if err != nil {
		return err
	}
	if !IsRepo(repoDir) {
		return fmt.Errorf("%s is not an lc-managed repository (missing %s)", repoDir, RepoConfigName)
	}
	if !dirExists(filepath.Join(repoDir, "repodata")) {
		return fmt.Errorf("%s has no repodata, run 'lc init' first", repoDir)
	}

	rc, err := LoadRepoConfig(repoDir)
	if err != nil {
		return err
	}
	if rc.GPGKeyID != "" {
		keyPath := filepath.Join(repoDir, PublicKeyName)
		if !fileExists(keyPath) {
			return fmt.Errorf("signing key file missing at %s", keyPath)
		}
		colArrow.Print("-> ")
		colSuccess.Printf("Importing GPG key from %s\n", keyPath)
		if err := e.Run(exec.Command("rpm", "--import", keyPath)); err != nil {
			return fmt.Errorf("failed to import GPG key: %w", err)
		}
	}

	if name == "" {
		name = filepath.Base(repoDir)
	}
	target := filepath.Join(systemRepoDir, name+".repo")
	if fileExists(target) && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", target)
	}
	if err := os.WriteFile(target, []byte(repoFileContent(repoDir, rc, name)), 0o644); err != nil {
		return fmt.Errorf("failed to write repo file: %w", err)
	}
	colArrow.Print("-> ")
	colSuccess.Printf("Repository configuration installed to %s\n", target)

	if refresh {
		refreshSystemCache(e)
	}
	return nil
}

// UnregisterRepo removes a previously installed .repo stanza.
func UnregisterRepo(e *Executor, name string, refresh bool) error {
	if err := requireRoot(); err != nil {
		return err
	}
	target := filepath.Join(systemRepoDir, name+".repo")
	if !fileExists(target) {
		return fmt.Errorf("repository %q not found in %s", name, systemRepoDir)
	}
	if err := os.Remove(target); err != nil {
		return fmt.Errorf("failed to remove repository: %w", err)
	}
	colSuccess.Printf("Repository %q removed\n", name)
	if refresh {
		refreshSystemCache(e)
	}
	return nil
}

// ListRegistered prints system repo files pointing at local lc repos.
func ListRegistered() error {
	entries, err := os.ReadDir(systemRepoDir)
	if err != nil {
		return err
	}
	found := false
	for _, ent := range entries {
		if !strings.HasSuffix(ent.Name(), ".repo") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(systemRepoDir, ent.Name()))
		if err != nil {
			continue
		}
		if strings.Contains(string(data), "Local Copr") {
			fmt.Printf("  %s\n", ent.Name())
			found = true
		}
	}
	if !found {
		fmt.Println("  (none found)")
	}
	return nil
}

func refreshSystemCache(e *Executor) {
	pkgMgr := "dnf"
	if _, err := exec.LookPath(pkgMgr); err != nil {
		pkgMgr = "yum"
	}
	colArrow.Print("-> ")
	colSuccess.Println("Refreshing package manager cache")
	if err := e.Run(exec.Command(pkgMgr, "makecache")); err != nil {
		colWarn.Printf("Failed to refresh cache: %v (run '%s makecache' manually)\n", err, pkgMgr)
	}
}
