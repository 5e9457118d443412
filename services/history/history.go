// Package history persists benchmark reports to Postgres and serves them over HTTP.
package history

import (
	"time"

	"gorm.io/datatypes"

	"cloudbench/services/orchestrator"
)

// RunSummary is one row of the run listing.
type RunSummary struct {
	ID          string    `json:"id" db:"id"`
	Title       string    `json:"title" db:"title"`
	Provider    string    `json:"provider" db:"provider"`
	Status      string    `json:"status" db:"status"`
	FailedStage string    `json:"failed_stage,omitempty" db:"failed_stage"`
	StartedAt   time.Time `json:"started_at" db:"started_at"`
	FinishedAt  time.Time `json:"finished_at" db:"finished_at"`
	TotalMS     int64     `json:"total_ms" db:"total_ms"`
}

// StageSummary is one persisted stage record.
type StageSummary struct {
	Position   int        `json:"position" db:"position"`
	Name       string     `json:"name" db:"name"`
	Action     string     `json:"action" db:"action"`
	Status     string     `json:"status" db:"status"`
	StartedAt  *time.Time `json:"started_at,omitempty" db:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty" db:"finished_at"`
	DurationMS *int64     `json:"duration_ms,omitempty" db:"duration_ms"`
	Error      string     `json:"error,omitempty" db:"error"`
}

// RunDetail is a run with its stages and public outputs.
type RunDetail struct {
	RunSummary
	Outputs map[string]string `json:"outputs,omitempty"`
	Stages  []StageSummary    `json:"stages"`
}

type runModel struct {
	ID          string            `gorm:"type:text;primaryKey"`
	Title       string            `gorm:"type:text"`
	Provider    string            `gorm:"type:text"`
	Status      string            `gorm:"type:text"`
	FailedStage string            `gorm:"type:text"`
	StartedAt   time.Time         `gorm:"type:timestamptz"`
	FinishedAt  time.Time         `gorm:"type:timestamptz"`
	TotalMS     int64             `gorm:"type:bigint"`
	Outputs     datatypes.JSONMap `gorm:"type:jsonb"`
	Report      string            `gorm:"type:text"`
}

func (runModel) TableName() string { return "benchmark_runs" }

type stageModel struct {
	ID         int64      `gorm:"primaryKey"`
	RunID      string     `gorm:"type:text"`
	Position   int        `gorm:"type:integer"`
	Name       string     `gorm:"type:text"`
	Action     string     `gorm:"type:text"`
	Status     string     `gorm:"type:text"`
	StartedAt  *time.Time `gorm:"type:timestamptz"`
	FinishedAt *time.Time `gorm:"type:timestamptz"`
	DurationMS *int64     `gorm:"type:bigint"`
	Error      string     `gorm:"type:text"`
}

func (stageModel) TableName() string { return "benchmark_stages" }

func newModels(report *orchestrator.BenchmarkReport, markdown string) (runModel, []stageModel) {
	outputs := datatypes.JSONMap{}
	for k, v := range report.Outputs {
		outputs[k] = v
	}

	run := runModel{
		ID:          report.RunID,
		Title:       report.Title,
		Provider:    report.Provider,
		Status:      report.Outcome(),
		FailedStage: report.FailedStage,
		StartedAt:   report.StartedAt.UTC(),
		FinishedAt:  report.FinishedAt.UTC(),
		TotalMS:     report.Total.Milliseconds(),
		Outputs:     outputs,
		Report:      markdown,
	}

	stages := make([]stageModel, 0, len(report.Stages))
	for i, st := range report.Stages {
		m := stageModel{
			RunID:      report.RunID,
			Position:   i,
			Name:       st.Name,
			Action:     st.Action,
			Status:     string(st.Status),
			StartedAt:  st.StartTime,
			FinishedAt: st.EndTime,
			Error:      st.Error,
		}
		if st.EndTime != nil {
			ms := st.Duration().Milliseconds()
			m.DurationMS = &ms
		}
		stages = append(stages, m)
	}
	return run, stages
}
