package lc

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// Forge hook scripts. Every mutation of a forge working tree, whether a
// push into it, a pull inside it, or a local commit, funnels into
// `lc trigger` which serializes admission behind the repository busy lock.
const (
	hookPostReceive = `#!/bin/sh
# installed by lc, do not edit
while read old new ref; do
	lc trigger --repo "%s" --package "%s" --commit "$new" --kind push
done
exit 0
`
	hookPostMerge = `#!/bin/sh
# installed by lc, do not edit
lc trigger --repo "%s" --package "%s" --commit "$(git rev-parse HEAD)" --kind merge
exit 0
`
	hookPostCommit = `#!/bin/sh
# installed by lc, do not edit
lc trigger --repo "%s" --package "%s" --commit "$(git rev-parse HEAD)" --kind commit
exit 0
`
)

// validForgeName rejects names that would escape forges/ or collide with
// repository metadata.
func validForgeName(pkg string) error {
	if pkg == "" || pkg == "." || pkg == ".." {
		return fmt.Errorf("invalid forge name %q", pkg)
	}
	if strings.ContainsAny(pkg, "/\\") {
		return fmt.Errorf("invalid forge name %q: path separators not allowed", pkg)
	}
	if strings.HasPrefix(pkg, ".") {
		return fmt.Errorf("invalid forge name %q: must not start with a dot", pkg)
	}
	return nil
}

// CreateForge sets up a package working tree under forges/: a git
// repository accepting pushes into its checked-out branch, wired with
// trigger hooks. With a non-empty cloneURL the upstream history is cloned
// (optionally a specific branch), otherwise an empty repository is
// initialized.
func CreateForge(repoDir, pkg, cloneURL, branch string) error {
	if !IsRepo(repoDir) {
		return fmt.Errorf("%s is not an lc repository", repoDir)
	}
	if err := validForgeName(pkg); err != nil {
		return err
	}
	path := forgePath(repoDir, pkg)
	if dirExists(path) {
		return fmt.Errorf("forge %s already exists", pkg)
	}
	if err := os.MkdirAll(forgesDir(repoDir), 0o755); err != nil {
		return err
	}

	var (
		r   *git.Repository
		err error
	)
	if cloneURL != "" {
		colArrow.Printf("=> Cloning %s into forge %s\n", cloneURL, pkg)
		opts := &git.CloneOptions{
			URL:      cloneURL,
			Progress: os.Stdout,
		}
		if branch != "" {
			opts.ReferenceName = plumbing.NewBranchReferenceName(branch)
			opts.SingleBranch = true
		}
		r, err = git.PlainClone(path, false, opts)
	} else {
		colArrow.Printf("=> Initializing empty forge %s\n", pkg)
		r, err = git.PlainInit(path, false)
	}
	if err != nil {
		return fmt.Errorf("failed to create forge %s: %w", pkg, err)
	}

	// Allow pushing into the checked-out branch; the working tree is the
	// build source, a push must update it in place.
	cfg, err := r.Config()
	if err != nil {
		return err
	}
	cfg.Raw.Section("receive").SetOption("denyCurrentBranch", "updateInstead")
	if err := r.SetConfig(cfg); err != nil {
		return fmt.Errorf("failed to configure forge %s: %w", pkg, err)
	}

	if err := installHooks(repoDir, pkg, path); err != nil {
		return err
	}
	// Seed an empty per-package config so the file is there to edit.
	confPath := filepath.Join(forgesDir(repoDir), PackageConfName)
	if !fileExists(confPath) {
		if err := os.WriteFile(confPath, []byte("{}\n"), 0o644); err != nil {
			return err
		}
	}
	colSuccess.Printf("Forge %s ready at %s\n", pkg, path)
	return nil
}

func installHooks(repoDir, pkg, path string) error {
	hooksDir := filepath.Join(path, ".git", "hooks")
	if err := os.MkdirAll(hooksDir, 0o755); err != nil {
		return err
	}
	absRepo, err := filepath.Abs(repoDir)
	if err != nil {
		return err
	}
	for name, tmpl := range map[string]string{
		"post-receive": hookPostReceive,
		"post-merge":   hookPostMerge,
		"post-commit":  hookPostCommit,
	} {
		script := fmt.Sprintf(tmpl, absRepo, pkg)
		dest := filepath.Join(hooksDir, name)
		if err := os.WriteFile(dest, []byte(script), 0o755); err != nil {
			return fmt.Errorf("failed to install %s hook: %w", name, err)
		}
	}
	return nil
}

// DeleteForge removes a forge working tree after confirmation. Built
// artifacts stay in the repository; only the source tree and its hooks go.
func DeleteForge(repoDir, pkg string, assumeYes bool) error {
	path := forgePath(repoDir, pkg)
	if !dirExists(path) {
		return fmt.Errorf("%w: %s", errForgeNotFound, pkg)
	}
	if !assumeYes && !confirm(fmt.Sprintf("Delete forge %s and its git history?", pkg)) {
		colWarn.Println("Aborted.")
		return nil
	}
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("failed to delete forge %s: %w", pkg, err)
	}
	colSuccess.Printf("Forge %s deleted\n", pkg)
	return nil
}

// ForgeInfo is one row of `lc forge list`.
type ForgeInfo struct {
	Name   string
	Head   string // short commit hash, or "-" before first commit
	Spec   bool   // working tree has a spec file
	Hooked bool   // trigger hooks installed
}

// ListForges inspects every forge working tree under forges/.
func ListForges(repoDir string) ([]ForgeInfo, error) {
	dir := forgesDir(repoDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []ForgeInfo
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		info := ForgeInfo{Name: e.Name(), Head: "-"}
		path := filepath.Join(dir, e.Name())
		if r, err := git.PlainOpen(path); err == nil {
			if head, err := r.Head(); err == nil {
				info.Head = head.Hash().String()[:8]
			}
		}
		if matches, _ := filepath.Glob(filepath.Join(path, "*.spec")); len(matches) > 0 {
			info.Spec = true
		}
		info.Hooked = fileExists(filepath.Join(path, ".git", "hooks", "post-receive"))
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// PrintForges renders forge list output.
func PrintForges(infos []ForgeInfo) {
	if len(infos) == 0 {
		colWarn.Println("No forges.")
		return
	}
	for _, f := range infos {
		spec := " "
		if f.Spec {
			spec = "*"
		}
		hooked := "no hooks"
		if f.Hooked {
			hooked = "hooked"
		}
		fmt.Printf("  %s %-28s %-10s %s\n", spec, f.Name, f.Head, hooked)
	}
}
