// Package infra drives the external IaC tool: apply and destroy a declaration and parse
// its declared outputs.
package infra

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/terraform-exec/tfexec"
	"github.com/rs/zerolog"
)

// Declaration is a Terraform working directory plus the input variables for one call.
type Declaration struct {
	Dir  string
	Vars map[string]string
}

// Output is a single declared output value rendered as a string.
type Output struct {
	Value     string
	Sensitive bool
}

// ProvisioningError reports a failed IaC invocation.
type ProvisioningError struct {
	Op  string
	Dir string
	Err error
}

func (e *ProvisioningError) Error() string {
	return fmt.Sprintf("terraform %s in %s: %v", e.Op, e.Dir, e.Err)
}

func (e *ProvisioningError) Unwrap() error { return e.Err }

// Credentials are the four provider credential fields. They only ever reach the IaC
// process environment.
type Credentials struct {
	ClientID       string
	ClientSecret   string
	TenantID       string
	SubscriptionID string
}

// Env returns the credentials as Terraform input variables.
func (c Credentials) Env() map[string]string {
	return map[string]string{
		"TF_VAR_client_id":       c.ClientID,
		"TF_VAR_client_secret":   c.ClientSecret,
		"TF_VAR_tenant_id":       c.TenantID,
		"TF_VAR_subscription_id": c.SubscriptionID,
	}
}

// Controller applies and destroys declarations.
type Controller struct {
	runners RunnerFactory
	env     map[string]string
	logger  zerolog.Logger
}

// NewController returns a Controller that builds runners with factory and passes creds
// to every invocation.
func NewController(factory RunnerFactory, creds Credentials, logger zerolog.Logger) (*Controller, error) {
	if factory == nil {
		return nil, errors.New("runner factory is required")
	}
	return &Controller{runners: factory, env: creds.Env(), logger: logger}, nil
}

// Apply runs init and apply for decl and returns every declared output.
func (c *Controller) Apply(ctx context.Context, decl Declaration) (map[string]Output, error) {
	runner, err := c.runner(decl)
	if err != nil {
		return nil, err
	}

	c.logger.Info().Str("dir", decl.Dir).Int("vars", len(decl.Vars)).Msg("terraform apply")
	if err := runner.Init(ctx); err != nil {
		return nil, &ProvisioningError{Op: "init", Dir: decl.Dir, Err: err}
	}
	if err := runner.Apply(ctx, decl.Vars); err != nil {
		return nil, &ProvisioningError{Op: "apply", Dir: decl.Dir, Err: err}
	}

	raw, err := runner.Output(ctx)
	if err != nil {
		return nil, &ProvisioningError{Op: "output", Dir: decl.Dir, Err: err}
	}
	outputs, err := parseOutputs(raw)
	if err != nil {
		return nil, &ProvisioningError{Op: "output", Dir: decl.Dir, Err: err}
	}
	return outputs, nil
}

// Destroy tears down everything decl manages.
func (c *Controller) Destroy(ctx context.Context, decl Declaration) error {
	runner, err := c.runner(decl)
	if err != nil {
		return err
	}

	c.logger.Info().Str("dir", decl.Dir).Msg("terraform destroy")
	if err := runner.Init(ctx); err != nil {
		return &ProvisioningError{Op: "init", Dir: decl.Dir, Err: err}
	}
	if err := runner.Destroy(ctx, decl.Vars); err != nil {
		return &ProvisioningError{Op: "destroy", Dir: decl.Dir, Err: err}
	}
	return nil
}

func (c *Controller) runner(decl Declaration) (Runner, error) {
	if strings.TrimSpace(decl.Dir) == "" {
		return nil, &ProvisioningError{Op: "setup", Dir: decl.Dir, Err: errors.New("declaration directory is required")}
	}
	runner, err := c.runners(decl.Dir, c.env)
	if err != nil {
		return nil, &ProvisioningError{Op: "setup", Dir: decl.Dir, Err: err}
	}
	return runner, nil
}

func parseOutputs(raw map[string]tfexec.OutputMeta) (map[string]Output, error) {
	outputs := make(map[string]Output, len(raw))
	for name, meta := range raw {
		value, err := outputString(meta.Value)
		if err != nil {
			return nil, fmt.Errorf("output %q: %w", name, err)
		}
		outputs[name] = Output{Value: value, Sensitive: meta.Sensitive}
	}
	return outputs, nil
}

// outputString unquotes JSON strings and compacts any other JSON value.
func outputString(raw json.RawMessage) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return "", nil
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err != nil {
		return "", err
	}
	return buf.String(), nil
}
