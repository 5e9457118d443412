package bus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewRequiresURL(t *testing.T) {
	_, err := New("")
	assert.EqualError(t, err, "nats url is required")
}

func TestNilBus(t *testing.T) {
	var b *Bus
	assert.Error(t, b.Publish(context.Background(), "cloudbench.runs.progress", map[string]string{"run_id": "r1"}))
	assert.Error(t, b.EnsureStream("CLOUDBENCH_RUNS", "cloudbench.runs.>"))
	assert.NotPanics(t, b.Close)
}

func TestMissingSubjects(t *testing.T) {
	assert.Nil(t, missingSubjects([]string{"cloudbench.runs.progress"}, []string{"cloudbench.runs.progress"}))
	assert.Equal(t,
		[]string{"team.alerts"},
		missingSubjects([]string{"cloudbench.runs.progress"}, []string{"cloudbench.runs.progress", "team.alerts", "team.alerts"}))
	assert.Equal(t, []string{"a", "b"}, missingSubjects(nil, []string{"a", "b"}))
}
