package lc

import (
	"fmt"
	"os/exec"

	"golang.org/x/sys/unix"
)

// PreconditionError is a failure detected before any side effect: missing
// host tooling, insufficient resources, invalid option combinations.
type PreconditionError struct {
	Reason string
}

func (e *PreconditionError) Error() string {
	return "precondition failed: " + e.Reason
}

// hybridMinRAMMiB is the free-memory floor for the hybrid storage
// strategy: mounting /tmp on tmpfs on a starved host just moves the OOM
// into the build.
const hybridMinRAMMiB = 4096

// availableRAMMiB is swappable in tests.
var availableRAMMiB = func() (int64, error) {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return 0, err
	}
	return int64(info.Freeram) * int64(info.Unit) / (1024 * 1024), nil
}

// lookPath is swappable in tests.
var lookPath = exec.LookPath

// mockBaseArgs assembles the sandbox invocation prefix for one build:
// optional systemd-run memory scope, the mock profile, storage strategy
// plugins, network policy and core limits. Resource preconditions are
// validated here, before anything touches the filesystem.
func mockBaseArgs(mockProfile string, opts BuildOptions) ([]string, error) {
	args := []string{"mock", "-r", mockProfile, "--define", "_changelog_date_check 0"}

	if opts.MaxMem != "" {
		if _, err := lookPath("systemd-run"); err != nil {
			return nil, &PreconditionError{Reason: "--max-mem requires systemd-run, which is not installed"}
		}
		// systemd-run --scope enforces MemoryMax via cgroups: a build
		// exceeding the limit is killed instead of destabilizing the host.
		wrapper := []string{"systemd-run", "--scope", "--user", "--quiet", "-p", "MemoryMax=" + opts.MaxMem}
		args = append(wrapper, args...)
	}

	storage := opts.Storage
	if storage == "" {
		storage = StorageFull
	}
	switch storage {
	case StorageFull:
		args = append(args, "--enable-plugin=tmpfs")
	case StoragePersistent:
		// mock's default root stays on disk; nothing to add.
	case StorageHybrid:
		free, err := availableRAMMiB()
		if err != nil {
			return nil, fmt.Errorf("failed to query available memory: %w", err)
		}
		if free < hybridMinRAMMiB {
			return nil, &PreconditionError{
				Reason: fmt.Sprintf("hybrid storage needs %d MiB free RAM, host has %d MiB", hybridMinRAMMiB, free),
			}
		}
		args = append(args, "--enable-plugin=tmpfs_tmponly")
	default:
		return nil, &PreconditionError{Reason: fmt.Sprintf("unknown storage strategy %q", storage)}
	}

	if opts.EnableNetwork {
		args = append(args, "--enable-network")
	}
	if opts.Jobs > 0 {
		args = append(args, "--define", fmt.Sprintf("_smp_mflags -j%d", opts.Jobs))
	}
	return args, nil
}

// buildIDDefines returns the rpm macro overrides that stamp the release
// identifier into built packages. Relies on the conventional %{?dist}
// suffix in Release tags; two builds of identical sources then compare as
// upgrades by their .lc<N> suffix.
func buildIDDefines(buildID int64) []string {
	return []string{
		"--define", fmt.Sprintf("lc_buildid %d", buildID),
		"--define", fmt.Sprintf("dist %%{?distprefix}.lc%d", buildID),
	}
}
