package orchestrator

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStageRecordForwardOnly(t *testing.T) {
	t0 := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	rec := newStageRecord(StageSpec{Name: "provision", Action: ActionInfrastructureApply})
	assert.Equal(t, StatusPending, rec.Status)

	require.Error(t, rec.finish(t0, nil), "pending cannot finish")

	require.NoError(t, rec.start(t0))
	assert.Equal(t, StatusRunning, rec.Status)
	require.Error(t, rec.start(t0), "running cannot start again")

	require.NoError(t, rec.finish(t0.Add(time.Minute), errors.New("quota")))
	assert.Equal(t, StatusFailed, rec.Status)
	assert.Equal(t, "quota", rec.Error)
	assert.Equal(t, time.Minute, rec.Duration())

	end := *rec.EndTime
	assert.Error(t, rec.finish(t0.Add(time.Hour), nil), "terminal cannot transition")
	assert.Error(t, rec.start(t0.Add(time.Hour)))
	assert.Equal(t, StatusFailed, rec.Status)
	assert.Equal(t, end, *rec.EndTime)
}

func TestAllowedTransitions(t *testing.T) {
	all := []Status{StatusPending, StatusRunning, StatusSucceeded, StatusFailed}
	allowed := map[[2]Status]bool{
		{StatusPending, StatusRunning}:   true,
		{StatusRunning, StatusSucceeded}: true,
		{StatusRunning, StatusFailed}:    true,
	}
	for _, from := range all {
		for _, to := range all {
			assert.Equal(t, allowed[[2]Status{from, to}], isAllowedTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestRunContextMerge(t *testing.T) {
	base := NewRunContext(Outputs{"resource_group_name": {Data: "rg"}})

	next, err := base.Merge(Outputs{
		"resource_group_name": {Data: "rg"},
		"acr_admin_password":  {Data: "pw", Sensitive: true},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, base.Len(), "receiver is not modified")
	assert.Equal(t, []string{"acr_admin_password", "resource_group_name"}, next.Keys())
	assert.Equal(t, map[string]string{"resource_group_name": "rg"}, next.Public())

	v, ok := next.Get("acr_admin_password")
	require.True(t, ok)
	assert.True(t, v.Sensitive)

	_, err = next.Merge(Outputs{"resource_group_name": {Data: "other"}})
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "resource_group_name", conflict.Key)
}

func TestRunContextKeepsSensitiveFlag(t *testing.T) {
	rc := NewRunContext(Outputs{"k": {Data: "v", Sensitive: true}})
	next, err := rc.Merge(Outputs{"k": {Data: "v"}})
	require.NoError(t, err)
	v, _ := next.Get("k")
	assert.True(t, v.Sensitive)
}

func TestNewRunContextCopies(t *testing.T) {
	initial := Outputs{"a": {Data: "1"}}
	rc := NewRunContext(initial)
	initial["a"] = Value{Data: "2"}
	assert.Equal(t, "1", rc.String("a"))
}
