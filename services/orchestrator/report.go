package orchestrator

import (
	"time"

	"cloudbench/pkg/render"
)

const reportTemplate = "report.md.tmpl"

// BenchmarkReport is the write-once outcome of a run.
type BenchmarkReport struct {
	RunID       string            `json:"run_id"`
	Title       string            `json:"title"`
	Provider    string            `json:"provider"`
	StartedAt   time.Time         `json:"started_at"`
	FinishedAt  time.Time         `json:"finished_at"`
	Total       time.Duration     `json:"total"`
	Stages      []StageRecord     `json:"stages"`
	Outputs     map[string]string `json:"outputs,omitempty"`
	FailedStage string            `json:"failed_stage,omitempty"`
}

// Succeeded reports whether every stage succeeded.
func (r *BenchmarkReport) Succeeded() bool {
	if r == nil || r.FailedStage != "" {
		return false
	}
	for _, st := range r.Stages {
		if st.Status != StatusSucceeded {
			return false
		}
	}
	return true
}

// Outcome is "succeeded" or "failed".
func (r *BenchmarkReport) Outcome() string {
	if r.Succeeded() {
		return string(StatusSucceeded)
	}
	return string(StatusFailed)
}

var resourceLabels = []struct {
	key   string
	label string
}{
	{KeyResourceGroup, "Resource Group"},
	{KeyStorageAccount, "Storage Account"},
	{KeyBlobContainer, "Blob Container"},
	{KeyRegistryLoginServer, "Container Registry"},
	{KeyDockerImage, "Docker Image"},
	{KeyContainerGroup, "Container Group"},
	{KeyContainerGroupIP, "Container Group IP"},
	{KeyBlobName, "Output Blob"},
}

type reportRow struct {
	Name     string
	Action   string
	Status   Status
	Started  string
	Duration string
}

type reportItem struct {
	Label   string
	Value   string
	Stage   string
	Message string
}

type reportView struct {
	Title       string
	RunID       string
	Provider    string
	StartedAt   time.Time
	FinishedAt  time.Time
	Total       time.Duration
	Outcome     string
	FailedStage string
	Stages      []reportRow
	Errors      []reportItem
	Resources   []reportItem
}

// Markdown renders the report. Stages that never ran show no timings.
func (r *BenchmarkReport) Markdown(engine *render.Engine) (string, error) {
	view := reportView{
		Title:       r.Title,
		RunID:       r.RunID,
		Provider:    r.Provider,
		StartedAt:   r.StartedAt,
		FinishedAt:  r.FinishedAt,
		Total:       r.Total,
		Outcome:     r.Outcome(),
		FailedStage: r.FailedStage,
	}
	if view.Title == "" {
		view.Title = "Deployment Benchmark Report"
	}
	if view.Provider == "" {
		view.Provider = "N/A"
	}

	for _, st := range r.Stages {
		row := reportRow{Name: st.Name, Action: st.Action, Status: st.Status}
		if st.StartTime != nil {
			row.Started = st.StartTime.UTC().Format(time.TimeOnly)
		}
		if st.EndTime != nil {
			row.Duration = st.Duration().Round(time.Millisecond).String()
		}
		view.Stages = append(view.Stages, row)
		if st.Error != "" {
			view.Errors = append(view.Errors, reportItem{Stage: st.Name, Message: st.Error})
		}
	}

	for _, rl := range resourceLabels {
		if v, ok := r.Outputs[rl.key]; ok && v != "" {
			view.Resources = append(view.Resources, reportItem{Label: rl.label, Value: v})
		}
	}

	return engine.Render(reportTemplate, view)
}
