package lc

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Config holds the tool-level configuration loaded from /etc/lc.conf with
// LC_* environment overrides merged on top.
type Config struct {
	Values map[string]string
}

// Load /etc/lc.conf and apply defaults
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{Values: make(map[string]string)}

	// Attempt to read the file
	file, err := os.Open(path)
	if err == nil {
		defer file.Close()
		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			parts := strings.SplitN(line, "=", 2)
			if len(parts) != 2 {
				continue
			}
			key := strings.TrimSpace(parts[0])
			val := strings.TrimSpace(parts[1])
			val = strings.Trim(val, `"'`)
			cfg.Values[key] = val
		}
		if err := scanner.Err(); err != nil {
			return cfg, err
		}
	}

	// Merge LC_* env overrides
	mergeEnvOverrides(cfg)

	if cfg.Values["LC_MOCK_CONFIG"] == "" {
		cfg.Values["LC_MOCK_CONFIG"] = "fedora-43-x86_64"
	}
	if cfg.Values["LC_ARCHIVE_FORMAT"] == "" {
		cfg.Values["LC_ARCHIVE_FORMAT"] = "gz"
	}

	return cfg, nil
}

// Merge LC_* env overrides
func mergeEnvOverrides(cfg *Config) {
	for _, env := range os.Environ() {
		if strings.HasPrefix(env, "LC_") {
			parts := strings.SplitN(env, "=", 2)
			if len(parts) == 2 {
				cfg.Values[parts[0]] = parts[1]
			}
		}
	}
}

// MockConfig returns the mock chroot profile to build against, preferring
// the repository record over the tool configuration.
func (c *Config) MockConfig(rc *RepoConfig) string {
	if rc != nil && rc.MockConfig != "" {
		return rc.MockConfig
	}
	return c.Values["LC_MOCK_CONFIG"]
}

// RepoConfig is the per-repository configuration record persisted as
// .lc_config in the repository root.
type RepoConfig struct {
	GPGKeyID    string `json:"gpg_key_id,omitempty"`
	AutoRebuild bool   `json:"auto_rebuild,omitempty"`
	MockConfig  string `json:"mock_config,omitempty"`
}

// LoadRepoConfig reads the .lc_config record from a repository root.
// A missing record yields an empty config: signing off, rebuild off.
func LoadRepoConfig(repoDir string) (*RepoConfig, error) {
	rc := &RepoConfig{}
	data, err := os.ReadFile(filepath.Join(repoDir, RepoConfigName))
	if err != nil {
		if os.IsNotExist(err) {
			return rc, nil
		}
		return nil, fmt.Errorf("failed to read repo config: %w", err)
	}
	if err := json.Unmarshal(data, rc); err != nil {
		return nil, fmt.Errorf("malformed repo config %s: %w", RepoConfigName, err)
	}
	return rc, nil
}

// SaveRepoConfig writes the .lc_config record into a repository root.
func SaveRepoConfig(repoDir string, rc *RepoConfig) error {
	data, err := json.MarshalIndent(rc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(repoDir, RepoConfigName), append(data, '\n'), 0o644)
}

// StorageStrategy selects where the sandbox build root lives.
type StorageStrategy string

const (
	// StorageFull keeps the whole build root on tmpfs. Fast, volatile.
	StorageFull StorageStrategy = "full"
	// StoragePersistent keeps the build root on disk.
	StoragePersistent StorageStrategy = "persistent"
	// StorageHybrid keeps only /tmp on tmpfs. Needs enough free RAM.
	StorageHybrid StorageStrategy = "hybrid"
)

var validMaxMem = regexp.MustCompile(`^[0-9]+[KMGT]?$`)

// PackageOptions are the per-package overrides from forges/conf.json.
// Pointer fields distinguish "absent, use default" from an explicit value.
type PackageOptions struct {
	MaxMem        *string  `json:"max_mem,omitempty"`
	Jobs          *int     `json:"jobs,omitempty"`
	EnableNetwork *bool    `json:"enable_network,omitempty"`
	Storage       *string  `json:"storage,omitempty"`
	AddRepos      []string `json:"addrepo,omitempty"`
}

func (o *PackageOptions) validate(pkg string) error {
	if o.MaxMem != nil && !validMaxMem.MatchString(*o.MaxMem) {
		return fmt.Errorf("package %s: invalid max_mem %q (expected e.g. 4G, 512M)", pkg, *o.MaxMem)
	}
	if o.Jobs != nil && *o.Jobs < 1 {
		return fmt.Errorf("package %s: jobs must be >= 1, got %d", pkg, *o.Jobs)
	}
	if o.Storage != nil {
		switch StorageStrategy(*o.Storage) {
		case StorageFull, StoragePersistent, StorageHybrid:
		default:
			return fmt.Errorf("package %s: unknown storage strategy %q", pkg, *o.Storage)
		}
	}
	return nil
}

// PackageConfig maps package name -> option overrides.
type PackageConfig map[string]PackageOptions

// LoadPackageConfig reads and validates a forges/conf.json file. Malformed
// entries are a configuration error, never a silent default. A missing file
// is an empty config.
func LoadPackageConfig(path string) (PackageConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return PackageConfig{}, nil
		}
		return nil, fmt.Errorf("failed to read package config: %w", err)
	}

	conf := PackageConfig{}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&conf); err != nil {
		return nil, fmt.Errorf("malformed package config %s: %w", path, err)
	}
	for pkg, opts := range conf {
		if err := opts.validate(pkg); err != nil {
			return nil, fmt.Errorf("package config %s: %w", path, err)
		}
	}
	return conf, nil
}

// BuildOptions is the fully resolved option set for one build.
type BuildOptions struct {
	Jobs          int // 0 means no core limit
	MaxMem        string
	EnableNetwork bool
	Storage       StorageStrategy
	AddRepos      []string
	Quiet         bool
}

// Resolve merges per-package overrides for pkg over the given base options.
// Defaults: full tmpfs storage, network off, no resource limits.
func (c PackageConfig) Resolve(pkg string, base BuildOptions) BuildOptions {
	out := base
	if out.Storage == "" {
		out.Storage = StorageFull
	}
	opts, ok := c[pkg]
	if !ok {
		return out
	}
	if opts.MaxMem != nil {
		out.MaxMem = *opts.MaxMem
	}
	if opts.Jobs != nil {
		out.Jobs = *opts.Jobs
	}
	if opts.EnableNetwork != nil {
		out.EnableNetwork = *opts.EnableNetwork
	}
	if opts.Storage != nil {
		out.Storage = StorageStrategy(*opts.Storage)
	}
	out.AddRepos = append(out.AddRepos, opts.AddRepos...)
	return out
}
