package history

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cloudbench/services/orchestrator"
)

func TestNewModels(t *testing.T) {
	start := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	end := start.Add(90 * time.Second)
	report := &orchestrator.BenchmarkReport{
		RunID:       "run-1",
		Title:       "Bench",
		Provider:    "azure",
		StartedAt:   start,
		FinishedAt:  end,
		Total:       end.Sub(start),
		FailedStage: "launch",
		Outputs:     map[string]string{"resource_group_name": "rg"},
		Stages: []orchestrator.StageRecord{
			{Name: "provision", Action: orchestrator.ActionInfrastructureApply, Status: orchestrator.StatusSucceeded, StartTime: &start, EndTime: &end},
			{Name: "launch", Action: orchestrator.ActionRemoteTaskLaunch, Status: orchestrator.StatusPending},
		},
	}

	run, stages := newModels(report, "# md")
	assert.Equal(t, "run-1", run.ID)
	assert.Equal(t, "failed", run.Status)
	assert.Equal(t, int64(90000), run.TotalMS)
	assert.Equal(t, "rg", run.Outputs["resource_group_name"])
	assert.Equal(t, "# md", run.Report)

	require.Len(t, stages, 2)
	assert.Equal(t, 0, stages[0].Position)
	require.NotNil(t, stages[0].DurationMS)
	assert.Equal(t, int64(90000), *stages[0].DurationMS)
	assert.Equal(t, 1, stages[1].Position)
	assert.Nil(t, stages[1].DurationMS)
	assert.Nil(t, stages[1].StartedAt)
}

func TestNewStoreValidates(t *testing.T) {
	_, err := NewStore(nil, nil)
	assert.Error(t, err)
}

func TestSaveRequiresRunID(t *testing.T) {
	s := &Store{}
	assert.Error(t, s.Save(context.Background(), nil, ""))
	assert.Error(t, s.Save(context.Background(), &orchestrator.BenchmarkReport{}, ""))
}

func TestPruneRequiresCutoff(t *testing.T) {
	s := &Store{}
	_, err := s.Prune(context.Background(), time.Time{})
	assert.EqualError(t, err, "prune cutoff is required")
}
