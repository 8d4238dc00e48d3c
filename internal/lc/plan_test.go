package lc

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlan_WriteReadRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.json")
	plan := &Plan{
		CreatedAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		Engine:    "lc/test",
		Triggers:  []string{"libfoo"},
		Steps: []PlanStep{
			{Package: "libfoo", Level: 0, Reason: "trigger"},
			{Package: "bar", Level: 1, Reason: "dependent"},
		},
	}
	require.NoError(t, WritePlan(path, plan))

	got, err := ReadPlan(path)
	require.NoError(t, err)
	assert.Equal(t, plan.Triggers, got.Triggers)
	require.Len(t, got.Steps, 2)
	assert.Equal(t, "bar", got.Steps[1].Package)
	assert.Equal(t, 1, got.Steps[1].Level)
}

func TestReadPlan_MissingFile(t *testing.T) {
	_, err := ReadPlan(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
}

func TestReadPlan_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	_, err := ReadPlan(path)
	require.Error(t, err)
}

func TestReadPlan_EmptySteps(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"steps": []}`), 0o644))
	_, err := ReadPlan(path)
	require.ErrorContains(t, err, "no steps")
}

func TestReadPlan_DuplicatePackage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.json")
	body := `{"steps": [{"package": "a"}, {"package": "a"}]}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	_, err := ReadPlan(path)
	require.ErrorContains(t, err, "appears twice")
}

func TestReadPlan_StepWithoutPackage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.json")
	body := `{"steps": [{"level": 1}]}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	_, err := ReadPlan(path)
	require.ErrorContains(t, err, "no package")
}
