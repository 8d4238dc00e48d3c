package lc

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// Signing is delegated to the system gpg/rpm binaries: dnf verifies GPG
// signatures, so producing anything else would sign artifacts nothing can
// check. All three helpers need a working gpg-agent for the key.

// exportPublicKey writes the ASCII-armored public key for keyID to dest.
func exportPublicKey(e *Executor, keyID, dest string) error {
	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create key file %s: %w", dest, err)
	}
	defer f.Close()

	cmd := exec.Command("gpg", "--export", "--armor", keyID)
	cmd.Stdout = f
	if err := e.Run(cmd); err != nil {
		return fmt.Errorf("failed to export public key %s: %w", keyID, err)
	}
	return nil
}

// signRPMs attaches signatures to the given rpm files in place.
func signRPMs(e *Executor, keyID string, rpmFiles []string) error {
	if len(rpmFiles) == 0 {
		return nil
	}
	args := []string{"--addsign", "--define", fmt.Sprintf("_gpg_name %s", keyID)}
	args = append(args, rpmFiles...)
	if err := e.Run(exec.Command("rpm", args...)); err != nil {
		return fmt.Errorf("failed to sign %d rpms with key %s: %w", len(rpmFiles), keyID, err)
	}
	return nil
}

// signRepodata produces a detached armored signature next to repomd.xml.
// --yes overwrites the previous signature.
func signRepodata(e *Executor, repoDir, keyID string) error {
	repomd := filepath.Join(repoDir, "repodata", "repomd.xml")
	if !fileExists(repomd) {
		return nil
	}
	cmd := exec.Command("gpg", "--detach-sign", "--armor", "--yes", "--default-key", keyID, repomd)
	if err := e.Run(cmd); err != nil {
		return fmt.Errorf("failed to sign repodata with key %s: %w", keyID, err)
	}
	return nil
}
