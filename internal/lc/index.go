package lc

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"lukechampine.com/blake3"
)

// ArtifactEntry describes one built rpm tracked in artifacts.json. The
// repodata index is createrepo_c's; this one is lc's own record of what it
// built, with checksums and the release identifier that produced it.
type ArtifactEntry struct {
	Name     string    `json:"name"`
	Version  string    `json:"version"`
	Release  string    `json:"release"`
	Arch     string    `json:"arch"`
	Filename string    `json:"filename"`
	Size     int64     `json:"size"`
	B3Sum    string    `json:"b3sum"`
	BuildID  int64     `json:"build_id"`
	Built    time.Time `json:"built"`
}

// loadArtifactIndex reads artifacts.json from a repository root. Missing
// file is an empty index.
func loadArtifactIndex(repoDir string) ([]ArtifactEntry, error) {
	data, err := os.ReadFile(filepath.Join(repoDir, ArtifactIndexName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read artifact index: %w", err)
	}
	var entries []ArtifactEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("malformed artifact index: %w", err)
	}
	return entries, nil
}

func saveArtifactIndex(repoDir string, entries []ArtifactEntry) error {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Name != entries[j].Name {
			return entries[i].Name < entries[j].Name
		}
		return entries[i].Filename < entries[j].Filename
	})
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	// Write then rename so a reader never sees a torn index.
	tmp := filepath.Join(repoDir, ArtifactIndexName+".tmp")
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, filepath.Join(repoDir, ArtifactIndexName))
}

// recordArtifacts computes checksums for freshly copied rpms and merges
// them into the index, replacing entries for the same filename. Caller
// holds the repository build lock.
func recordArtifacts(repoDir string, rpmPaths []string, buildID int64) error {
	entries, err := loadArtifactIndex(repoDir)
	if err != nil {
		return err
	}
	existing := make(map[string]int, len(entries))
	for i, ent := range entries {
		existing[ent.Filename] = i
	}

	for _, path := range rpmPaths {
		ent, err := artifactEntryFor(path, buildID)
		if err != nil {
			return err
		}
		if i, ok := existing[ent.Filename]; ok {
			entries[i] = ent
		} else {
			entries = append(entries, ent)
		}
	}
	return saveArtifactIndex(repoDir, entries)
}

func artifactEntryFor(path string, buildID int64) (ArtifactEntry, error) {
	ent := ArtifactEntry{
		Filename: filepath.Base(path),
		BuildID:  buildID,
		Built:    time.Now().UTC(),
	}
	info, err := os.Stat(path)
	if err != nil {
		return ent, err
	}
	ent.Size = info.Size()

	sum, err := blake3SumFile(path)
	if err != nil {
		return ent, fmt.Errorf("failed to checksum %s: %w", path, err)
	}
	ent.B3Sum = sum

	ent.Name, ent.Version, ent.Release, ent.Arch = parseRPMFilename(ent.Filename)
	return ent, nil
}

func blake3SumFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := blake3.New(32, nil)
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

// parseRPMFilename splits name-version-release.arch.rpm. Filenames that
// do not match the convention yield the whole stem as the name.
func parseRPMFilename(filename string) (name, version, release, arch string) {
	stem := strings.TrimSuffix(filename, ".rpm")
	if i := strings.LastIndex(stem, "."); i > 0 {
		arch = stem[i+1:]
		stem = stem[:i]
	}
	if i := strings.LastIndex(stem, "-"); i > 0 {
		release = stem[i+1:]
		stem = stem[:i]
	}
	if i := strings.LastIndex(stem, "-"); i > 0 {
		version = stem[i+1:]
		stem = stem[:i]
	}
	name = stem
	return
}

// maxRecordedBuildID returns the highest build id the index has seen for a
// package, 0 when unknown. The planner's monotonicity guarantee also
// consults .lc_buildids.json; this is the backstop when that record is lost.
func maxRecordedBuildID(repoDir, pkg string) (int64, error) {
	entries, err := loadArtifactIndex(repoDir)
	if err != nil {
		return 0, err
	}
	var max int64
	for _, ent := range entries {
		if ent.Name == pkg && ent.BuildID > max {
			max = ent.BuildID
		}
	}
	return max, nil
}

// regenerateIndex runs createrepo_c over the repository. createrepo_c
// writes the new repodata atomically: the old index stays valid until the
// new one is complete. Caller holds the repository build lock.
func regenerateIndex(e *Executor, repoDir string) error {
	args := []string{repoDir}
	if dirExists(filepath.Join(repoDir, "repodata")) {
		args = []string{"--update", repoDir}
	}
	if err := e.Run(exec.Command("createrepo_c", args...)); err != nil {
		return fmt.Errorf("failed to regenerate repodata for %s: %w", repoDir, err)
	}
	return nil
}
