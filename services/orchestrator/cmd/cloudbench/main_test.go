package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"filippo.io/age"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cloudbench/services/orchestrator/internal/secrets"
)

func testEnv(t *testing.T) {
	t.Helper()
	t.Setenv("CLOUDBENCH_TERRAFORM_DIR", "deploy/azure")
	t.Setenv("CLOUDBENCH_PLAN_FILE", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("ARTIFACT_PROVIDER", "azure")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("LOG_FORMAT", "json")
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, exitOK, exitCode(nil))
	assert.Equal(t, exitError, exitCode(errors.New("boom")))
	assert.Equal(t, exitRunFailed, exitCode(&runFailedError{err: errors.New("stage failed")}))
	assert.Equal(t, exitRunFailed, exitCode(fmt.Errorf("wrapped: %w", &runFailedError{err: errors.New("x")})))
}

func TestPlanShowPrintsDefaultPlan(t *testing.T) {
	testEnv(t)
	var stdout, stderr bytes.Buffer

	code := execute(context.Background(), []string{"plan", "show"}, &stdout, &stderr)

	require.Equal(t, exitOK, code, stderr.String())
	assert.Contains(t, stdout.String(), "deploy/azure")
	assert.Contains(t, stdout.String(), "teardown")
}

func TestPlanValidateFromFile(t *testing.T) {
	testEnv(t)
	path := filepath.Join(t.TempDir(), "plan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
title: Smoke
stages:
  - name: aggregate
    action: aggregate-report
`), 0o644))

	var stdout, stderr bytes.Buffer
	code := execute(context.Background(), []string{"plan", "validate", "--plan", path}, &stdout, &stderr)

	require.Equal(t, exitOK, code, stderr.String())
	assert.Equal(t, "plan ok: 1 stages\n", stdout.String())
}

func TestPlanValidateRejectsMissingFile(t *testing.T) {
	testEnv(t)
	var stdout, stderr bytes.Buffer

	code := execute(context.Background(), []string{"plan", "validate", "--plan", filepath.Join(t.TempDir(), "missing.yaml")}, &stdout, &stderr)

	assert.Equal(t, exitError, code)
	assert.Contains(t, stderr.String(), "error:")
}

func TestHistoryRequiresDatabase(t *testing.T) {
	testEnv(t)
	var stdout, stderr bytes.Buffer

	code := execute(context.Background(), []string{"history", "list"}, &stdout, &stderr)

	assert.Equal(t, exitError, code)
	assert.Contains(t, stderr.String(), "DATABASE_URL")
}

func TestInvalidConfigIsAnError(t *testing.T) {
	testEnv(t)
	t.Setenv("ARTIFACT_PROVIDER", "ftp")
	var stdout, stderr bytes.Buffer

	code := execute(context.Background(), []string{"plan", "show"}, &stdout, &stderr)

	assert.Equal(t, exitError, code)
	assert.Contains(t, stderr.String(), "ARTIFACT_PROVIDER")
}

func TestHistoryPruneRejectsNonPositiveAge(t *testing.T) {
	testEnv(t)
	var stdout, stderr bytes.Buffer

	code := execute(context.Background(), []string{"history", "prune", "--older-than", "0s"}, &stdout, &stderr)

	assert.Equal(t, exitError, code)
	assert.Contains(t, stderr.String(), "--older-than must be positive")
}

func TestSecretsSeal(t *testing.T) {
	testEnv(t)
	dir := t.TempDir()
	plain := filepath.Join(dir, "credentials.env")
	require.NoError(t, os.WriteFile(plain, []byte(
		"ARM_CLIENT_ID=client\nARM_CLIENT_SECRET=secret\nARM_TENANT_ID=tenant\nARM_SUBSCRIPTION_ID=sub\n",
	), 0o600))
	sealed := filepath.Join(dir, "secrets.env.age")
	t.Setenv("CLOUDBENCH_SECRETS_FILE", sealed)

	id, err := age.GenerateX25519Identity()
	require.NoError(t, err)
	identityFile := filepath.Join(dir, "key.txt")
	require.NoError(t, os.WriteFile(identityFile, []byte(id.String()+"\n"), 0o600))

	var stdout, stderr bytes.Buffer
	code := execute(context.Background(),
		[]string{"secrets", "seal", "--in", plain, "--recipient", id.Recipient().String()},
		&stdout, &stderr)
	require.Equal(t, exitOK, code, stderr.String())
	assert.Contains(t, stdout.String(), "sealed "+sealed)

	creds, err := secrets.Resolve(secrets.Source{File: sealed, IdentityFile: identityFile})
	require.NoError(t, err)
	assert.Equal(t, "client", creds.ClientID)
	assert.Equal(t, "secret", creds.ClientSecret)
}

func TestSecretsSealNeedsRecipient(t *testing.T) {
	testEnv(t)
	var stdout, stderr bytes.Buffer

	code := execute(context.Background(),
		[]string{"secrets", "seal", "--in", "x.env", "--out", filepath.Join(t.TempDir(), "out.age")},
		&stdout, &stderr)

	assert.Equal(t, exitError, code)
	assert.Contains(t, stderr.String(), "recipient")
}
