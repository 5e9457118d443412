package orchestrator

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Action names accepted in a plan.
const (
	ActionInfrastructureApply   = "infrastructure-apply"
	ActionImagePush             = "image-push"
	ActionRemoteTaskLaunch      = "remote-task-launch"
	ActionPollUntilComplete     = "poll-until-complete"
	ActionAggregateReport       = "aggregate-report"
	ActionNotify                = "notify"
	ActionInfrastructureDestroy = "infrastructure-destroy"
)

// KnownActions lists every action a plan may name.
func KnownActions() []string {
	return []string{
		ActionInfrastructureApply,
		ActionImagePush,
		ActionRemoteTaskLaunch,
		ActionPollUntilComplete,
		ActionAggregateReport,
		ActionNotify,
		ActionInfrastructureDestroy,
	}
}

// StageSpec describes one stage of a plan.
type StageSpec struct {
	Name      string            `yaml:"name" json:"name"`
	Action    string            `yaml:"action" json:"action"`
	DependsOn string            `yaml:"depends_on,omitempty" json:"depends_on,omitempty"`
	AlwaysRun bool              `yaml:"always_run,omitempty" json:"always_run,omitempty"`
	Params    map[string]string `yaml:"params,omitempty" json:"params,omitempty"`
}

// Param returns the named parameter or def when unset.
func (s StageSpec) Param(key, def string) string {
	if v, ok := s.Params[key]; ok && strings.TrimSpace(v) != "" {
		return v
	}
	return def
}

// Plan is an ordered, strictly linear chain of stages.
type Plan struct {
	Title    string      `yaml:"title,omitempty" json:"title,omitempty"`
	Provider string      `yaml:"provider,omitempty" json:"provider,omitempty"`
	Stages   []StageSpec `yaml:"stages" json:"stages"`
}

// LoadPlan reads a YAML plan from path and validates it.
func LoadPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan: %w", err)
	}
	return ParsePlan(data)
}

// ParsePlan decodes and validates a YAML plan.
func ParsePlan(data []byte) (*Plan, error) {
	var plan Plan
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("decode plan: %w", err)
	}
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	return &plan, nil
}

// Validate checks names, actions and linearity. An empty depends_on is filled in with
// the previous stage's name.
func (p *Plan) Validate() error {
	if p == nil || len(p.Stages) == 0 {
		return errors.New("plan has no stages")
	}

	known := make(map[string]bool)
	for _, a := range KnownActions() {
		known[a] = true
	}

	seen := make(map[string]bool, len(p.Stages))
	for i := range p.Stages {
		st := &p.Stages[i]
		st.Name = strings.TrimSpace(st.Name)
		st.Action = strings.TrimSpace(st.Action)
		st.DependsOn = strings.TrimSpace(st.DependsOn)

		if st.Name == "" {
			return fmt.Errorf("stage %d: name is required", i)
		}
		if seen[st.Name] {
			return fmt.Errorf("stage %q: duplicate name", st.Name)
		}
		seen[st.Name] = true

		if !known[st.Action] {
			return fmt.Errorf("stage %q: unknown action %q", st.Name, st.Action)
		}

		if i == 0 {
			if st.DependsOn != "" {
				return fmt.Errorf("stage %q: first stage cannot depend on %q", st.Name, st.DependsOn)
			}
			continue
		}
		prev := p.Stages[i-1].Name
		if st.DependsOn == "" {
			st.DependsOn = prev
		}
		if st.DependsOn != prev {
			return fmt.Errorf("stage %q: must depend on the previous stage %q, not %q", st.Name, prev, st.DependsOn)
		}
	}
	return nil
}

// NotifySubjects returns the distinct subjects the plan's notify stages publish on,
// with def standing in for stages without a subject param.
func (p *Plan) NotifySubjects(def string) []string {
	seen := map[string]bool{}
	var subjects []string
	for _, st := range p.Stages {
		if st.Action != ActionNotify {
			continue
		}
		subj := notifySubject(st, def)
		if !seen[subj] {
			seen[subj] = true
			subjects = append(subjects, subj)
		}
	}
	sort.Strings(subjects)
	return subjects
}

func notifySubject(spec StageSpec, def string) string {
	if def == "" {
		def = DefaultNotifySubject
	}
	return strings.TrimSpace(spec.Param("subject", def))
}

// Marshal renders the plan as YAML.
func (p *Plan) Marshal() ([]byte, error) {
	return yaml.Marshal(p)
}

// DefaultPlan reproduces the benchmark chain against the Terraform declaration in dir:
// provision the registry and storage, push the scraper image, deploy the container
// group, wait for its output blob, collect timings, notify and tear down.
func DefaultPlan(dir string) *Plan {
	return &Plan{
		Title:    "Azure Deployment Benchmark Report",
		Provider: "azure",
		Stages: []StageSpec{
			{
				Name:   "provision",
				Action: ActionInfrastructureApply,
				Params: map[string]string{
					"dir":                        dir,
					"var.create_container_group": "false",
				},
			},
			{
				Name:      "push-image",
				Action:    ActionImagePush,
				DependsOn: "provision",
				Params: map[string]string{
					"source":     "chrisworkspace/cloudbenchmark-scraper:latest",
					"repository": "cloudbenchmark-scraper:latest",
				},
			},
			{
				Name:      "launch",
				Action:    ActionRemoteTaskLaunch,
				DependsOn: "push-image",
				Params: map[string]string{
					"dir":                        dir,
					"var.create_container_group": "true",
					"var.docker_image":           "${" + KeyDockerImage + "}",
				},
			},
			{
				Name:      "wait",
				Action:    ActionPollUntilComplete,
				DependsOn: "launch",
				Params: map[string]string{
					"prober":   "blob",
					"interval": "60s",
					"timeout":  "30m",
				},
			},
			{Name: "collect-timing", Action: ActionAggregateReport, DependsOn: "wait"},
			{Name: "notify", Action: ActionNotify, DependsOn: "collect-timing"},
			{
				Name:      "teardown",
				Action:    ActionInfrastructureDestroy,
				DependsOn: "notify",
				AlwaysRun: true,
				Params: map[string]string{
					"dir":                        dir,
					"var.create_container_group": "false",
				},
			},
		},
	}
}

// terraformVars collects "var.<name>" params, expanding ${key} references against rc.
func terraformVars(spec StageSpec, rc RunContext) (map[string]string, error) {
	keys := make([]string, 0, len(spec.Params))
	for k := range spec.Params {
		if strings.HasPrefix(k, "var.") {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	vars := make(map[string]string, len(keys))
	for _, k := range keys {
		v, err := expand(spec.Params[k], rc)
		if err != nil {
			return nil, fmt.Errorf("param %s: %w", k, err)
		}
		vars[strings.TrimPrefix(k, "var.")] = v
	}
	return vars, nil
}

// expand replaces ${key} with RunContext values. Unknown keys are an error.
func expand(s string, rc RunContext) (string, error) {
	var missing []string
	out := os.Expand(s, func(key string) string {
		v, ok := rc.Lookup(key)
		if !ok {
			missing = append(missing, key)
		}
		return v
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("run context has no %s", strings.Join(missing, ", "))
	}
	return out, nil
}
