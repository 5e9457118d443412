package infra

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"

	"github.com/hashicorp/terraform-exec/tfexec"
	"github.com/rs/zerolog"
)

// Runner is the subset of the Terraform CLI the controller drives.
type Runner interface {
	Init(ctx context.Context) error
	Apply(ctx context.Context, vars map[string]string) error
	Output(ctx context.Context) (map[string]tfexec.OutputMeta, error)
	Destroy(ctx context.Context, vars map[string]string) error
}

// RunnerFactory builds a Runner bound to a working directory and process environment.
type RunnerFactory func(dir string, env map[string]string) (Runner, error)

// TerraformRunners returns a RunnerFactory that invokes the terraform binary found at
// execPath (resolved through PATH when it is a bare name).
func TerraformRunners(execPath string, logger zerolog.Logger) RunnerFactory {
	return func(dir string, env map[string]string) (Runner, error) {
		resolved, err := exec.LookPath(execPath)
		if err != nil {
			return nil, fmt.Errorf("locate terraform: %w", err)
		}
		tf, err := tfexec.NewTerraform(dir, resolved)
		if err != nil {
			return nil, err
		}
		if err := tf.SetEnv(mergeEnv(os.Environ(), env)); err != nil {
			return nil, err
		}
		out := &logWriter{logger: logger.With().Str("dir", dir).Logger()}
		tf.SetStdout(out)
		tf.SetStderr(out)
		return &terraformRunner{tf: tf}, nil
	}
}

type terraformRunner struct {
	tf *tfexec.Terraform
}

func (r *terraformRunner) Init(ctx context.Context) error {
	return r.tf.Init(ctx)
}

func (r *terraformRunner) Apply(ctx context.Context, vars map[string]string) error {
	opts := make([]tfexec.ApplyOption, 0, len(vars))
	for _, v := range varFlags(vars) {
		opts = append(opts, tfexec.Var(v))
	}
	return r.tf.Apply(ctx, opts...)
}

func (r *terraformRunner) Output(ctx context.Context) (map[string]tfexec.OutputMeta, error) {
	return r.tf.Output(ctx)
}

func (r *terraformRunner) Destroy(ctx context.Context, vars map[string]string) error {
	opts := make([]tfexec.DestroyOption, 0, len(vars))
	for _, v := range varFlags(vars) {
		opts = append(opts, tfexec.Var(v))
	}
	return r.tf.Destroy(ctx, opts...)
}

// varFlags renders vars as sorted "name=value" assignments.
func varFlags(vars map[string]string) []string {
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	flags := make([]string, 0, len(keys))
	for _, k := range keys {
		flags = append(flags, k+"="+vars[k])
	}
	return flags
}

// mergeEnv overlays extra on top of the KEY=VALUE pairs in base. tfexec replaces the
// child environment wholesale once SetEnv is called, so PATH and HOME must be carried.
func mergeEnv(base []string, extra map[string]string) map[string]string {
	env := make(map[string]string, len(base)+len(extra))
	for _, kv := range base {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" || isManagedByTFExec(k) {
			continue
		}
		env[k] = v
	}
	for k, v := range extra {
		env[k] = v
	}
	return env
}

func isManagedByTFExec(key string) bool {
	switch key {
	case "TF_APPEND_USER_AGENT", "TF_IN_AUTOMATION", "TF_INPUT", "TF_LOG", "TF_LOG_CORE",
		"TF_LOG_PATH", "TF_LOG_PROVIDER", "TF_REATTACH_PROVIDERS", "TF_DISABLE_PLUGIN_TLS",
		"TF_SKIP_PROVIDER_VERIFY", "TF_WORKSPACE", "TF_CLI_ARGS", "TF_CLI_CONFIG_FILE", "CHECKPOINT_DISABLE":
		return true
	}
	return strings.HasPrefix(key, "TF_CLI_ARGS_")
}

type logWriter struct {
	logger zerolog.Logger
}

func (w *logWriter) Write(p []byte) (int, error) {
	for _, line := range strings.Split(strings.TrimRight(string(p), "\n"), "\n") {
		if strings.TrimSpace(line) != "" {
			w.logger.Debug().Msg(line)
		}
	}
	return len(p), nil
}
