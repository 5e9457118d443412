package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"cloudbench/services/infra"
	"cloudbench/services/workload"
)

// DefaultNotifySubject is the subject run progress events are published on.
const DefaultNotifySubject = "cloudbench.runs.progress"

// Provisioner applies and destroys IaC declarations.
type Provisioner interface {
	Apply(ctx context.Context, decl infra.Declaration) (map[string]infra.Output, error)
	Destroy(ctx context.Context, decl infra.Declaration) error
}

// ImagePusher copies the workload image into the provisioned registry.
type ImagePusher interface {
	Push(ctx context.Context, source, repository string, login workload.RegistryLogin) (string, error)
}

// Notifier publishes run events.
type Notifier interface {
	Publish(ctx context.Context, subject string, v any) error
}

// ProberFactory builds the prober named by kind from the current RunContext.
type ProberFactory func(ctx context.Context, kind string, rc RunContext) (workload.Prober, error)

// RunEvent is the payload of the notify action.
type RunEvent struct {
	RunID     string            `json:"run_id"`
	Title     string            `json:"title,omitempty"`
	Provider  string            `json:"provider,omitempty"`
	Stage     string            `json:"stage"`
	StartedAt time.Time         `json:"started_at"`
	SentAt    time.Time         `json:"sent_at"`
	Stages    []StageRecord     `json:"stages"`
	Outputs   map[string]string `json:"outputs,omitempty"`
}

// Actions holds the collaborators of the built-in stage actions.
type Actions struct {
	Provisioner   Provisioner
	Pusher        ImagePusher
	Probers       ProberFactory
	Notifier      Notifier
	NotifySubject string
	Logger        zerolog.Logger

	// Now and Sleep drive the poll action; they default to the wall clock.
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

// Registry maps every known action name to its implementation.
func (a *Actions) Registry() map[string]Action {
	return map[string]Action{
		ActionInfrastructureApply:   ActionFunc(a.apply),
		ActionImagePush:             ActionFunc(a.pushImage),
		ActionRemoteTaskLaunch:      ActionFunc(a.launch),
		ActionPollUntilComplete:     ActionFunc(a.poll),
		ActionAggregateReport:       ActionFunc(a.aggregate),
		ActionNotify:                ActionFunc(a.notify),
		ActionInfrastructureDestroy: ActionFunc(a.destroy),
	}
}

func (a *Actions) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

func (a *Actions) declaration(req Request, extra map[string]string) (infra.Declaration, error) {
	dir, err := expand(req.Stage.Param("dir", ""), req.Context)
	if err != nil {
		return infra.Declaration{}, fmt.Errorf("param dir: %w", err)
	}
	if strings.TrimSpace(dir) == "" {
		return infra.Declaration{}, errors.New("param dir is required")
	}
	vars, err := terraformVars(req.Stage, req.Context)
	if err != nil {
		return infra.Declaration{}, err
	}
	for k, v := range extra {
		vars[k] = v
	}
	return infra.Declaration{Dir: dir, Vars: vars}, nil
}

func (a *Actions) apply(ctx context.Context, req Request) (Outputs, error) {
	if a.Provisioner == nil {
		return nil, errors.New("no provisioner configured")
	}
	decl, err := a.declaration(req, nil)
	if err != nil {
		return nil, err
	}
	outs, err := a.Provisioner.Apply(ctx, decl)
	if err != nil {
		return nil, err
	}
	return fromInfraOutputs(outs), nil
}

// launch deploys the workload with a second apply, passing the storage settings the
// scraper reads from its environment as the container_env variable.
func (a *Actions) launch(ctx context.Context, req Request) (Outputs, error) {
	if a.Provisioner == nil {
		return nil, errors.New("no provisioner configured")
	}
	env, err := containerEnv(req)
	if err != nil {
		return nil, err
	}
	encoded, err := json.Marshal(env)
	if err != nil {
		return nil, err
	}
	decl, err := a.declaration(req, map[string]string{"container_env": string(encoded)})
	if err != nil {
		return nil, err
	}
	outs, err := a.Provisioner.Apply(ctx, decl)
	if err != nil {
		return nil, err
	}
	return fromInfraOutputs(outs), nil
}

func containerEnv(req Request) (map[string]string, error) {
	env := map[string]string{"ARTIFACT_PROVIDER": "azure"}
	for key, name := range map[string]string{
		KeyStorageConnectionString: "AZURE_STORAGE_CONNECTION_STRING",
		KeyBlobContainer:           "AZURE_BLOB_CONTAINER",
		KeyBlobName:                "ARTIFACT_BLOB_NAME",
	} {
		if v, ok := req.Context.Lookup(key); ok {
			env[name] = v
		}
	}
	for k, v := range req.Stage.Params {
		if !strings.HasPrefix(k, "env.") {
			continue
		}
		val, err := expand(v, req.Context)
		if err != nil {
			return nil, fmt.Errorf("param %s: %w", k, err)
		}
		env[strings.TrimPrefix(k, "env.")] = val
	}
	if env["AZURE_STORAGE_CONNECTION_STRING"] == "" || env["AZURE_BLOB_CONTAINER"] == "" {
		return nil, fmt.Errorf("run context is missing %s or %s", KeyStorageConnectionString, KeyBlobContainer)
	}
	return env, nil
}

func (a *Actions) destroy(ctx context.Context, req Request) (Outputs, error) {
	if a.Provisioner == nil {
		return nil, errors.New("no provisioner configured")
	}
	decl, err := a.declaration(req, nil)
	if err != nil {
		return nil, err
	}
	return nil, a.Provisioner.Destroy(ctx, decl)
}

func (a *Actions) pushImage(ctx context.Context, req Request) (Outputs, error) {
	if a.Pusher == nil {
		return nil, errors.New("no image pusher configured")
	}
	login := workload.RegistryLogin{
		Server:   req.Context.String(KeyRegistryLoginServer),
		Username: req.Context.String(KeyRegistryUsername),
		Password: req.Context.String(KeyRegistryPassword),
	}
	ref, err := a.Pusher.Push(ctx, req.Stage.Param("source", ""), req.Stage.Param("repository", ""), login)
	if err != nil {
		return nil, err
	}
	out := Outputs{}
	out.Set(KeyDockerImage, ref)
	return out, nil
}

func (a *Actions) poll(ctx context.Context, req Request) (Outputs, error) {
	if a.Probers == nil {
		return nil, errors.New("no prober factory configured")
	}
	interval, err := time.ParseDuration(req.Stage.Param("interval", "60s"))
	if err != nil {
		return nil, fmt.Errorf("param interval: %w", err)
	}
	maxWait, err := time.ParseDuration(req.Stage.Param("timeout", "30m"))
	if err != nil {
		return nil, fmt.Errorf("param timeout: %w", err)
	}

	kind := req.Stage.Param("prober", "blob")
	handle, err := pollHandle(req, kind)
	if err != nil {
		return nil, err
	}
	prober, err := a.Probers(ctx, kind, req.Context)
	if err != nil {
		return nil, fmt.Errorf("build %s prober: %w", kind, err)
	}

	poller := Poller{Interval: interval, MaxWait: maxWait, Now: a.Now, Sleep: a.Sleep}
	a.Logger.Info().Str("prober", kind).Str("handle", handle).Dur("interval", interval).Dur("max_wait", maxWait).Msg("waiting for workload")

	result, err := poller.Poll(ctx, prober, handle)
	if err != nil {
		return nil, err
	}
	if result.State == workload.StateErrored {
		return nil, fmt.Errorf("workload %q finished in state %s after %s", handle, result.State, result.Elapsed)
	}

	out := Outputs{}
	out.Set(KeyWorkloadState, string(result.State))
	out.Set(KeyWorkloadElapsed, result.Elapsed.Round(time.Millisecond).String())
	return out, nil
}

func pollHandle(req Request, kind string) (string, error) {
	if h := req.Stage.Param("handle", ""); h != "" {
		return expand(h, req.Context)
	}
	key := KeyBlobName
	if kind == "aci" {
		key = KeyContainerGroup
	}
	h, ok := req.Context.Lookup(key)
	if !ok || h == "" {
		return "", fmt.Errorf("run context has no %s for the %s prober", key, kind)
	}
	return h, nil
}

// aggregate records the duration of every finished stage and the elapsed run time.
func (a *Actions) aggregate(_ context.Context, req Request) (Outputs, error) {
	out := Outputs{}
	var busy time.Duration
	for _, st := range req.Completed {
		if st.EndTime == nil {
			continue
		}
		out.Set("timing."+st.Name, st.Duration().Round(time.Millisecond).String())
		busy += st.Duration()
	}
	out.Set("timing.stages_total", busy.Round(time.Millisecond).String())
	out.Set("timing.elapsed", a.now().Sub(req.StartedAt).Round(time.Millisecond).String())
	return out, nil
}

func (a *Actions) notify(ctx context.Context, req Request) (Outputs, error) {
	if a.Notifier == nil {
		a.Logger.Info().Str("run_id", req.RunID).Msg("no notifier configured, skipping")
		return nil, nil
	}
	subject := notifySubject(req.Stage, a.NotifySubject)
	evt := RunEvent{
		RunID:     req.RunID,
		Title:     req.Title,
		Provider:  req.Provider,
		Stage:     req.Stage.Name,
		StartedAt: req.StartedAt,
		SentAt:    a.now().UTC(),
		Stages:    req.Completed,
		Outputs:   req.Context.Public(),
	}
	if err := a.Notifier.Publish(ctx, subject, evt); err != nil {
		return nil, fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil, nil
}

// secretKeys are redacted even when the declaration forgets to mark them sensitive.
var secretKeys = map[string]bool{
	KeyStorageConnectionString: true,
	KeyRegistryPassword:        true,
}

// fromInfraOutputs drops empty values: a declaration reports "" for resources a
// phase has not created yet, and a later apply fills them in.
func fromInfraOutputs(outs map[string]infra.Output) Outputs {
	out := make(Outputs, len(outs))
	for name, o := range outs {
		if o.Value == "" {
			continue
		}
		out[name] = Value{Data: o.Value, Sensitive: o.Sensitive || secretKeys[name]}
	}
	return out
}
