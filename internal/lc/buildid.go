package lc

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Build identifiers make repeated builds of unchanged sources installable
// as upgrades: each build of a package against a repository gets an id
// strictly greater than any id ever recorded for that package there. The
// record lives in .lc_buildids.json and is bumped under the build lock.

type buildIDRecord map[string]int64

func loadBuildIDs(repoDir string) (buildIDRecord, error) {
	data, err := os.ReadFile(filepath.Join(repoDir, BuildIDsName))
	if err != nil {
		if os.IsNotExist(err) {
			return buildIDRecord{}, nil
		}
		return nil, fmt.Errorf("failed to read build id record: %w", err)
	}
	rec := buildIDRecord{}
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("malformed build id record: %w", err)
	}
	return rec, nil
}

func saveBuildIDs(repoDir string, rec buildIDRecord) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	tmp := filepath.Join(repoDir, BuildIDsName+".tmp")
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, filepath.Join(repoDir, BuildIDsName))
}

// nextBuildID allocates the next release identifier for pkg. It briefly
// takes the repository build lock: id allocation is a metadata mutation.
// The artifact index is consulted as a floor in case the id record was
// deleted while artifacts survived.
func nextBuildID(repoDir, pkg string) (int64, error) {
	lock, err := acquireBuildLock(repoDir)
	if err != nil {
		return 0, err
	}
	defer lock.Release()

	rec, err := loadBuildIDs(repoDir)
	if err != nil {
		return 0, err
	}
	last := rec[pkg]
	if floor, err := maxRecordedBuildID(repoDir, pkg); err == nil && floor > last {
		last = floor
	}
	next := last + 1
	rec[pkg] = next
	if err := saveBuildIDs(repoDir, rec); err != nil {
		return 0, err
	}
	return next, nil
}
