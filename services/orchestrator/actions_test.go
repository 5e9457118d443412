package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cloudbench/services/infra"
	"cloudbench/services/workload"
)

type fakePusher struct {
	source     string
	repository string
	login      workload.RegistryLogin
	err        error
}

func (f *fakePusher) Push(_ context.Context, source, repository string, login workload.RegistryLogin) (string, error) {
	f.source, f.repository, f.login = source, repository, login
	if f.err != nil {
		return "", f.err
	}
	return login.Server + "/" + repository, nil
}

type fakeNotifier struct {
	subjects []string
	events   []RunEvent
	err      error
}

func (f *fakeNotifier) Publish(_ context.Context, subject string, v any) error {
	f.subjects = append(f.subjects, subject)
	f.events = append(f.events, v.(RunEvent))
	return f.err
}

func request(name string, params map[string]string, rc RunContext) Request {
	return Request{
		RunID:     "run-1",
		StartedAt: time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC),
		Stage:     StageSpec{Name: name, Params: params},
		Context:   rc,
	}
}

func TestLaunchRequiresStorageSettings(t *testing.T) {
	a := &Actions{Provisioner: &fakeProvisioner{}, Logger: zerolog.Nop()}
	_, err := a.launch(context.Background(), request("launch", map[string]string{"dir": "tf"}, NewRunContext(nil)))
	assert.ErrorContains(t, err, KeyStorageConnectionString)
}

func TestLaunchExtraEnv(t *testing.T) {
	prov := &fakeProvisioner{}
	a := &Actions{Provisioner: prov, Logger: zerolog.Nop()}
	rc := NewRunContext(Outputs{
		KeyStorageConnectionString: {Data: "conn", Sensitive: true},
		KeyBlobContainer:           {Data: "scraped-data"},
	})

	_, err := a.launch(context.Background(), request("launch", map[string]string{
		"dir":              "tf",
		"env.LOG_LEVEL":    "debug",
		"env.RUN_ID":       "${run_id}",
		"var.docker_image": "img",
	}, rc))
	assert.ErrorContains(t, err, "run_id")

	rc, err = rc.Merge(Outputs{KeyRunID: {Data: "run-1"}})
	require.NoError(t, err)
	_, err = a.launch(context.Background(), request("launch", map[string]string{
		"dir":              "tf",
		"env.LOG_LEVEL":    "debug",
		"env.RUN_ID":       "${run_id}",
		"var.docker_image": "img",
	}, rc))
	require.NoError(t, err)
	require.Len(t, prov.applies, 1)
	assert.Equal(t, "img", prov.applies[0].Vars["docker_image"])
	assert.JSONEq(t, `{
		"ARTIFACT_PROVIDER": "azure",
		"AZURE_STORAGE_CONNECTION_STRING": "conn",
		"AZURE_BLOB_CONTAINER": "scraped-data",
		"LOG_LEVEL": "debug",
		"RUN_ID": "run-1"
	}`, prov.applies[0].Vars["container_env"])
}

func TestApplyMarksKnownSecrets(t *testing.T) {
	out := fromInfraOutputs(map[string]infra.Output{
		KeyRegistryPassword: {Value: "pw"},
		KeyResourceGroup:    {Value: "rg"},
	})
	assert.True(t, out[KeyRegistryPassword].Sensitive)
	assert.False(t, out[KeyResourceGroup].Sensitive)
}

func TestInfraOutputsSkipEmptyValues(t *testing.T) {
	out := fromInfraOutputs(map[string]infra.Output{
		KeyResourceGroup:    {Value: "rg"},
		KeyContainerGroup:   {Value: ""},
		KeyContainerGroupIP: {Value: ""},
	})
	assert.Equal(t, Outputs{KeyResourceGroup: {Data: "rg"}}, out)

	rc, err := NewRunContext(nil).Merge(out)
	require.NoError(t, err)
	rc, err = rc.Merge(fromInfraOutputs(map[string]infra.Output{
		KeyResourceGroup:  {Value: "rg"},
		KeyContainerGroup: {Value: "aci-1"},
	}))
	require.NoError(t, err)
	assert.Equal(t, "aci-1", rc.String(KeyContainerGroup))
}

func TestDeclarationRequiresDir(t *testing.T) {
	a := &Actions{Provisioner: &fakeProvisioner{}}
	_, err := a.apply(context.Background(), request("provision", nil, NewRunContext(nil)))
	assert.ErrorContains(t, err, "dir")

	a = &Actions{}
	_, err = a.destroy(context.Background(), request("teardown", map[string]string{"dir": "tf"}, NewRunContext(nil)))
	assert.ErrorContains(t, err, "provisioner")
}

func TestPushImage(t *testing.T) {
	pusher := &fakePusher{}
	a := &Actions{Pusher: pusher}
	rc := NewRunContext(Outputs{
		KeyRegistryLoginServer: {Data: "benchacr.azurecr.io"},
		KeyRegistryUsername:    {Data: "benchacr"},
		KeyRegistryPassword:    {Data: "pw", Sensitive: true},
	})

	out, err := a.pushImage(context.Background(), request("push-image", map[string]string{
		"source":     "chrisworkspace/cloudbenchmark-scraper:latest",
		"repository": "cloudbenchmark-scraper:latest",
	}, rc))
	require.NoError(t, err)
	assert.Equal(t, "benchacr.azurecr.io/cloudbenchmark-scraper:latest", out[KeyDockerImage].Data)
	assert.Equal(t, "pw", pusher.login.Password)

	pusher.err = errors.New("denied")
	_, err = a.pushImage(context.Background(), request("push-image", nil, rc))
	assert.ErrorContains(t, err, "denied")
}

func TestPollActionErroredWorkloadFails(t *testing.T) {
	clock := newFakeClock()
	a := &Actions{
		Probers: func(context.Context, string, RunContext) (workload.Prober, error) {
			return simulatedWorkload(clock, time.Minute, workload.StateErrored), nil
		},
		Now:    clock.Now,
		Sleep:  clock.Sleep,
		Logger: zerolog.Nop(),
	}
	rc := NewRunContext(Outputs{KeyContainerGroup: {Data: "cg-scraper"}})

	_, err := a.poll(context.Background(), request("wait", map[string]string{"prober": "aci", "interval": "30s", "timeout": "5m"}, rc))
	assert.ErrorContains(t, err, "errored")
}

func TestPollActionTimeout(t *testing.T) {
	clock := newFakeClock()
	a := &Actions{
		Probers: func(context.Context, string, RunContext) (workload.Prober, error) {
			return simulatedWorkload(clock, time.Hour, workload.StateCompleted), nil
		},
		Now:    clock.Now,
		Sleep:  clock.Sleep,
		Logger: zerolog.Nop(),
	}
	rc := NewRunContext(Outputs{KeyBlobName: {Data: "articles.json"}})

	_, err := a.poll(context.Background(), request("wait", map[string]string{"interval": "1m", "timeout": "3m"}, rc))
	var timeout *WorkloadTimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, "articles.json", timeout.Handle)
}

func TestPollActionNeedsHandle(t *testing.T) {
	a := &Actions{Probers: func(context.Context, string, RunContext) (workload.Prober, error) { return nil, nil }}
	_, err := a.poll(context.Background(), request("wait", map[string]string{"prober": "aci"}, NewRunContext(nil)))
	assert.ErrorContains(t, err, KeyContainerGroup)

	_, err = a.poll(context.Background(), request("wait", map[string]string{"interval": "soon"}, NewRunContext(nil)))
	assert.ErrorContains(t, err, "interval")
}

func TestAggregateTimings(t *testing.T) {
	start := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	end := start.Add(90 * time.Second)
	a := &Actions{Now: func() time.Time { return start.Add(5 * time.Minute) }}
	req := request("collect-timing", nil, NewRunContext(nil))
	req.Completed = []StageRecord{
		{Name: "provision", Status: StatusSucceeded, StartTime: &start, EndTime: &end},
		{Name: "pending", Status: StatusPending},
	}

	out, err := a.aggregate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "1m30s", out["timing.provision"].Data)
	assert.Equal(t, "1m30s", out["timing.stages_total"].Data)
	assert.Equal(t, "5m0s", out["timing.elapsed"].Data)
	assert.NotContains(t, out, "timing.pending")
}

func TestNotify(t *testing.T) {
	a := &Actions{Logger: zerolog.Nop()}
	out, err := a.notify(context.Background(), request("notify", nil, NewRunContext(nil)))
	require.NoError(t, err, "missing notifier is skipped")
	assert.Empty(t, out)

	n := &fakeNotifier{}
	a = &Actions{Notifier: n, NotifySubject: "bench.events", Logger: zerolog.Nop()}
	_, err = a.notify(context.Background(), request("notify", map[string]string{"subject": "bench.custom"}, NewRunContext(nil)))
	require.NoError(t, err)
	assert.Equal(t, []string{"bench.custom"}, n.subjects)
	assert.Equal(t, "run-1", n.events[0].RunID)

	n.err = errors.New("no responders")
	_, err = a.notify(context.Background(), request("notify", nil, NewRunContext(nil)))
	assert.ErrorContains(t, err, "bench.events")
}
