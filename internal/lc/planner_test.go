package lc

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *Config {
	return &Config{Values: map[string]string{
		"LC_MOCK_CONFIG":    "fedora-43-x86_64",
		"LC_ARCHIVE_FORMAT": "gz",
	}}
}

// newTestRepo lays out a repository directory with the given forges, each
// holding one empty spec file.
func newTestRepo(t *testing.T, forges ...string) string {
	t.Helper()
	repoDir := t.TempDir()
	for _, f := range forges {
		dir := forgePath(repoDir, f)
		require.NoError(t, os.MkdirAll(dir, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, f+".spec"), []byte("Name: "+f+"\n"), 0o644))
	}
	return repoDir
}

// stubRequires wires a planner to a fixed BuildRequires table keyed by the
// spec file's package name.
func stubRequires(pl *Planner, table map[string][]string) {
	pl.queryBuildRequires = func(_ context.Context, specPath string) ([]string, error) {
		name := filepath.Base(filepath.Dir(specPath))
		return table[name], nil
	}
}

func TestCapabilityName(t *testing.T) {
	assert.Equal(t, "pkgconfig(foo)", capabilityName("pkgconfig(foo) >= 1.2"))
	assert.Equal(t, "gcc", capabilityName("gcc"))
	assert.Equal(t, "libbar", capabilityName("libbar\t= 2.0"))
}

func TestInternalCapability(t *testing.T) {
	assert.True(t, internalCapability("rpmlib(CompressedFileNames)"))
	assert.True(t, internalCapability("config(foo)"))
	assert.False(t, internalCapability("libfoo"))
}

func TestPlanner_BuildGraph_LocalEdgesOnly(t *testing.T) {
	repoDir := newTestRepo(t, "bar", "libfoo")
	pl := NewPlanner(repoDir, testConfig())
	stubRequires(pl, map[string][]string{
		"bar":    {"libfoo", "gcc", "make"}, // gcc/make are distribution caps
		"libfoo": {"cmake"},
	})

	g, err := pl.BuildGraph(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"libfoo"}, g.Prerequisites("bar"))
	assert.Empty(t, g.Prerequisites("libfoo"))
}

func TestPlanner_MakePlan_TriggerThenDependent(t *testing.T) {
	repoDir := newTestRepo(t, "bar", "libfoo")
	pl := NewPlanner(repoDir, testConfig())
	stubRequires(pl, map[string][]string{
		"bar": {"libfoo"},
	})

	plan, err := pl.MakePlan(context.Background(), []string{"libfoo"})
	require.NoError(t, err)
	require.Len(t, plan.Steps, 2)
	assert.Equal(t, "libfoo", plan.Steps[0].Package)
	assert.Equal(t, "trigger", plan.Steps[0].Reason)
	assert.Equal(t, "bar", plan.Steps[1].Package)
	assert.Equal(t, "dependent", plan.Steps[1].Reason)
	assert.Equal(t, []string{"libfoo"}, plan.Triggers)
}

func TestPlanner_MakePlan_TriggerPullsPrerequisite(t *testing.T) {
	repoDir := newTestRepo(t, "bar", "libfoo")
	pl := NewPlanner(repoDir, testConfig())
	stubRequires(pl, map[string][]string{
		"bar": {"libfoo"},
	})

	plan, err := pl.MakePlan(context.Background(), []string{"bar"})
	require.NoError(t, err)
	require.Len(t, plan.Steps, 2)
	assert.Equal(t, "libfoo", plan.Steps[0].Package)
	assert.Equal(t, "prerequisite", plan.Steps[0].Reason)
	assert.Equal(t, "bar", plan.Steps[1].Package)
	assert.Equal(t, "trigger", plan.Steps[1].Reason)
}

func TestPlanner_MakePlan_UnknownTrigger(t *testing.T) {
	repoDir := newTestRepo(t, "libfoo")
	pl := NewPlanner(repoDir, testConfig())
	stubRequires(pl, nil)

	_, err := pl.MakePlan(context.Background(), []string{"ghost"})
	var unknown *UnknownPackageError
	require.ErrorAs(t, err, &unknown)
}

func TestPlanner_MakePlan_CycleFails(t *testing.T) {
	repoDir := newTestRepo(t, "a", "b")
	pl := NewPlanner(repoDir, testConfig())
	stubRequires(pl, map[string][]string{
		"a": {"b"},
		"b": {"a"},
	})

	_, err := pl.MakePlan(context.Background(), []string{"a"})
	var cyc *CycleDetectedError
	require.ErrorAs(t, err, &cyc)
	assert.ElementsMatch(t, []string{"a", "b"}, cyc.Members)
}

func TestPlanner_MakePlan_CarriesPackageOptions(t *testing.T) {
	repoDir := newTestRepo(t, "bar", "libfoo")
	conf := `{"bar": {"jobs": 2}}`
	require.NoError(t, os.WriteFile(filepath.Join(forgesDir(repoDir), PackageConfName), []byte(conf), 0o644))

	pl := NewPlanner(repoDir, testConfig())
	stubRequires(pl, map[string][]string{"bar": {"libfoo"}})

	plan, err := pl.MakePlan(context.Background(), []string{"libfoo"})
	require.NoError(t, err)
	require.Len(t, plan.Steps, 2)
	require.NotNil(t, plan.Steps[1].Options.Jobs)
	assert.Equal(t, 2, *plan.Steps[1].Options.Jobs)
	assert.Nil(t, plan.Steps[0].Options.Jobs)
}

func TestPlanner_ProviderIndex_SubpackageHeuristic(t *testing.T) {
	repoDir := newTestRepo(t, "bar", "libfoo")
	// libfoo's build produced a libfoo-devel subpackage; bar requiring it
	// must resolve to the libfoo forge.
	require.NoError(t, saveArtifactIndex(repoDir, []ArtifactEntry{
		{Name: "libfoo-devel", Filename: "libfoo-devel-1.0-1.x86_64.rpm"},
	}))

	pl := NewPlanner(repoDir, testConfig())
	stubRequires(pl, map[string][]string{
		"bar": {"libfoo-devel >= 1.0"},
	})

	g, err := pl.BuildGraph(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"libfoo"}, g.Prerequisites("bar"))
}

func TestPlanner_ForgeWithoutSpecIsSkipped(t *testing.T) {
	repoDir := newTestRepo(t, "libfoo")
	require.NoError(t, os.MkdirAll(forgePath(repoDir, "empty"), 0o755))

	pl := NewPlanner(repoDir, testConfig())
	stubRequires(pl, nil)

	g, err := pl.BuildGraph(context.Background())
	require.NoError(t, err)
	// Still a node: it can be triggered, it just contributes no edges.
	affected, err := g.AffectedBy([]string{"empty"})
	require.NoError(t, err)
	assert.Len(t, affected, 1)
}
