package orchestrator

import (
	"fmt"
	"sort"
)

// Well-known RunContext keys produced by the default Terraform declaration and actions.
const (
	KeyStorageConnectionString = "storage_account_connection_string"
	KeyBlobContainer           = "blob_container_name"
	KeyRegistryLoginServer     = "acr_login_server"
	KeyRegistryUsername        = "acr_admin_username"
	KeyRegistryPassword        = "acr_admin_password"
	KeyResourceGroup           = "resource_group_name"
	KeyStorageAccount          = "storage_account_name"
	KeyContainerGroup          = "container_group_name"
	KeyContainerGroupIP        = "container_group_ip"
	KeyDockerImage             = "docker_image"
	KeyBlobName                = "blob_name"
	KeyRunID                   = "run_id"
	KeyWorkloadState           = "workload_state"
	KeyWorkloadElapsed         = "workload_elapsed"
)

// Value is one RunContext entry. Sensitive values never leave the process except as
// inputs to stage actions.
type Value struct {
	Data      string `json:"data"`
	Sensitive bool   `json:"sensitive,omitempty"`
}

// Outputs is the delta a stage action returns for merging into the RunContext.
type Outputs map[string]Value

// Set records a plain value.
func (o Outputs) Set(key, data string) {
	o[key] = Value{Data: data}
}

// SetSensitive records a value that must be redacted from reports and events.
func (o Outputs) SetSensitive(key, data string) {
	o[key] = Value{Data: data, Sensitive: true}
}

// ConflictError reports an attempt to overwrite a RunContext key with a different value.
type ConflictError struct {
	Key string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("run context key %q already set to a different value", e.Key)
}

// RunContext is an immutable snapshot of the outputs accumulated within one run.
// The zero value is an empty context.
type RunContext struct {
	values map[string]Value
}

// NewRunContext returns a snapshot holding a copy of initial.
func NewRunContext(initial Outputs) RunContext {
	values := make(map[string]Value, len(initial))
	for k, v := range initial {
		values[k] = v
	}
	return RunContext{values: values}
}

// Get returns the value stored under key.
func (c RunContext) Get(key string) (Value, bool) {
	v, ok := c.values[key]
	return v, ok
}

// Lookup returns the data stored under key.
func (c RunContext) Lookup(key string) (string, bool) {
	v, ok := c.values[key]
	return v.Data, ok
}

// String returns the data stored under key or the empty string.
func (c RunContext) String(key string) string {
	return c.values[key].Data
}

// Len is the number of keys.
func (c RunContext) Len() int { return len(c.values) }

// Keys returns every key in sorted order.
func (c RunContext) Keys() []string {
	keys := make([]string, 0, len(c.values))
	for k := range c.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Public returns the non-sensitive entries as plain strings.
func (c RunContext) Public() map[string]string {
	out := make(map[string]string, len(c.values))
	for k, v := range c.values {
		if !v.Sensitive {
			out[k] = v.Data
		}
	}
	return out
}

// Merge returns a new snapshot with delta applied. Keys are unique within a run:
// re-setting an identical value is a no-op, a different value is a ConflictError.
// The receiver is never modified.
func (c RunContext) Merge(delta Outputs) (RunContext, error) {
	keys := make([]string, 0, len(delta))
	for k := range delta {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if cur, ok := c.values[k]; ok && cur.Data != delta[k].Data {
			return c, &ConflictError{Key: k}
		}
	}

	merged := make(map[string]Value, len(c.values)+len(delta))
	for k, v := range c.values {
		merged[k] = v
	}
	for _, k := range keys {
		v := delta[k]
		if cur, ok := merged[k]; ok {
			v.Sensitive = v.Sensitive || cur.Sensitive
		}
		merged[k] = v
	}
	return RunContext{values: merged}, nil
}
