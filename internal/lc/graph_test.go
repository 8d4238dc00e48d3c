package lc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDepGraph_AddEdge_IgnoresSelf(t *testing.T) {
	g := NewDepGraph()
	g.AddEdge("foo", "foo")
	assert.Empty(t, g.Prerequisites("foo"))
}

func TestDepGraph_AddEdge_Deduplicates(t *testing.T) {
	g := NewDepGraph()
	g.AddEdge("bar", "libfoo")
	g.AddEdge("bar", "libfoo")
	assert.Equal(t, []string{"libfoo"}, g.Prerequisites("bar"))
}

func TestDepGraph_AffectedBy_UnknownTrigger(t *testing.T) {
	g := NewDepGraph()
	g.AddNode("libfoo")

	_, err := g.AffectedBy([]string{"nope"})
	require.Error(t, err)
	var unknown *UnknownPackageError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "nope", unknown.Package)
}

func TestDepGraph_AffectedBy_IncludesDependents(t *testing.T) {
	// bar depends on libfoo; changing libfoo must rebuild bar.
	g := NewDepGraph()
	g.AddEdge("bar", "libfoo")

	affected, err := g.AffectedBy([]string{"libfoo"})
	require.NoError(t, err)
	assert.Contains(t, affected, "libfoo")
	assert.Contains(t, affected, "bar")
	assert.Equal(t, 0, affected["libfoo"])
	assert.Equal(t, 1, affected["bar"])
}

func TestDepGraph_AffectedBy_IncludesPrerequisitesOfDependents(t *testing.T) {
	// app depends on libfoo and libbar. Triggering libfoo pulls in app as a
	// dependent and libbar as app's prerequisite.
	g := NewDepGraph()
	g.AddEdge("app", "libfoo")
	g.AddEdge("app", "libbar")

	affected, err := g.AffectedBy([]string{"libfoo"})
	require.NoError(t, err)
	assert.Len(t, affected, 3)
	assert.Contains(t, affected, "libbar")
}

func TestDepGraph_AffectedBy_PrerequisitesOfTrigger(t *testing.T) {
	// Triggering bar (which depends on libfoo) rebuilds libfoo first so the
	// chain has fresh inputs.
	g := NewDepGraph()
	g.AddEdge("bar", "libfoo")

	affected, err := g.AffectedBy([]string{"bar"})
	require.NoError(t, err)
	assert.Contains(t, affected, "libfoo")
	assert.Contains(t, affected, "bar")
}

func TestDepGraph_TopoSort_PrerequisitesFirst(t *testing.T) {
	g := NewDepGraph()
	g.AddEdge("bar", "libfoo")

	affected, err := g.AffectedBy([]string{"libfoo"})
	require.NoError(t, err)
	order, err := g.TopoSort(affected)
	require.NoError(t, err)
	assert.Equal(t, []string{"libfoo", "bar"}, order)
}

func TestDepGraph_TopoSort_DeterministicTieBreak(t *testing.T) {
	// Independent packages come out in ascending name order, every time.
	g := NewDepGraph()
	g.AddNode("zeta")
	g.AddNode("alpha")
	g.AddNode("mid")

	subset := map[string]int{"zeta": 0, "alpha": 0, "mid": 0}
	for i := 0; i < 10; i++ {
		order, err := g.TopoSort(subset)
		require.NoError(t, err)
		assert.Equal(t, []string{"alpha", "mid", "zeta"}, order)
	}
}

func TestDepGraph_TopoSort_Diamond(t *testing.T) {
	// base <- libA, libB <- app
	g := NewDepGraph()
	g.AddEdge("libA", "base")
	g.AddEdge("libB", "base")
	g.AddEdge("app", "libA")
	g.AddEdge("app", "libB")

	affected, err := g.AffectedBy([]string{"base"})
	require.NoError(t, err)
	order, err := g.TopoSort(affected)
	require.NoError(t, err)
	assert.Equal(t, []string{"base", "libA", "libB", "app"}, order)
}

func TestDepGraph_TopoSort_CycleFails(t *testing.T) {
	g := NewDepGraph()
	g.AddEdge("a", "b")
	g.AddEdge("b", "c")
	g.AddEdge("c", "a")

	affected, err := g.AffectedBy([]string{"a"})
	require.NoError(t, err)
	_, err = g.TopoSort(affected)
	require.Error(t, err)

	var cyc *CycleDetectedError
	require.ErrorAs(t, err, &cyc)
	assert.Equal(t, []string{"a", "b", "c"}, cyc.Members)
}

func TestDepGraph_TopoSort_CycleNamesOnlyCycleMembers(t *testing.T) {
	// An acyclic package upstream of the cycle must not be blamed.
	g := NewDepGraph()
	g.AddEdge("a", "b")
	g.AddEdge("b", "a")
	g.AddEdge("a", "clean")

	affected, err := g.AffectedBy([]string{"clean"})
	require.NoError(t, err)
	_, err = g.TopoSort(affected)
	var cyc *CycleDetectedError
	require.ErrorAs(t, err, &cyc)
	assert.NotContains(t, cyc.Members, "clean")
}

func TestMergeSorted(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c", "d"}, mergeSorted([]string{"a", "c"}, []string{"b", "d"}))
	assert.Equal(t, []string{"a"}, mergeSorted(nil, []string{"a"}))
	assert.Equal(t, []string{"a"}, mergeSorted([]string{"a"}, nil))
}
