package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"

	"cloudbench/pkg/artifact"
)

// Config holds the orchestrator's recognised settings. Everything is read once at start
// and validated before any stage runs.
type Config struct {
	TerraformDir  string `env:"CLOUDBENCH_TERRAFORM_DIR,default=infra/terraform/azure"`
	TerraformPath string `env:"CLOUDBENCH_TERRAFORM_PATH,default=terraform"`
	PlanFile      string `env:"CLOUDBENCH_PLAN_FILE"`
	ReportPath    string `env:"CLOUDBENCH_REPORT_PATH,default=azure_run_report.md"`
	ReportUpload  bool   `env:"CLOUDBENCH_REPORT_UPLOAD,default=false"`
	BlobName      string `env:"CLOUDBENCH_BLOB_NAME"`

	SecretsFile     string `env:"CLOUDBENCH_SECRETS_FILE"`
	AgeIdentityFile string `env:"CLOUDBENCH_AGE_IDENTITY_FILE"`

	NATSURL       string `env:"NATS_URL"`
	NotifySubject string `env:"CLOUDBENCH_NOTIFY_SUBJECT,default=cloudbench.runs.progress"`

	PushgatewayURL string `env:"PUSHGATEWAY_URL"`
	PushgatewayJob string `env:"PUSHGATEWAY_JOB,default=cloudbench"`

	DatabaseURL string        `env:"DATABASE_URL"`
	HTTPAddr    string        `env:"HTTP_ADDR,default=:8080"`
	HTTPTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT,default=10s"`

	// Report uploads go to a long-lived store; the benchmark's own storage account is
	// gone once teardown has run.
	ReportContainer          string `env:"CLOUDBENCH_REPORT_CONTAINER,default=reports"`
	ArtifactProvider         string `env:"ARTIFACT_PROVIDER,default=azure"`
	ArtifactConnection       string `env:"AZURE_STORAGE_CONNECTION_STRING"`
	ArtifactFileRoot         string `env:"ARTIFACT_FILE_ROOT"`
	ArtifactS3Endpoint       string `env:"S3_ENDPOINT"`
	ArtifactS3AccessKey      string `env:"S3_ACCESS_KEY"`
	ArtifactS3SecretKey      string `env:"S3_SECRET_KEY"`
	ArtifactS3Region         string `env:"S3_REGION,default=us-east-1"`
	ArtifactS3DisableTLS     bool   `env:"S3_DISABLE_TLS,default=false"`
	ArtifactS3ForcePathStyle bool   `env:"S3_FORCE_PATH_STYLE,default=true"`

	LogLevel     string `env:"LOG_LEVEL,default=info"`
	LogFormat    string `env:"LOG_FORMAT,default=console"`
	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

// Load returns a validated Config populated from environment variables.
func Load(ctx context.Context) (Config, error) {
	return load(ctx, envconfig.OsLookuper())
}

func load(ctx context.Context, lookuper envconfig.Lookuper) (Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookuper,
	}); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field requirements that struct tags cannot express.
func (c Config) Validate() error {
	if strings.TrimSpace(c.PlanFile) == "" && strings.TrimSpace(c.TerraformDir) == "" {
		return errors.New("CLOUDBENCH_TERRAFORM_DIR is required when no plan file is given")
	}
	if strings.TrimSpace(c.TerraformPath) == "" {
		return errors.New("CLOUDBENCH_TERRAFORM_PATH must not be empty")
	}
	switch c.ArtifactProvider {
	case artifact.ProviderAzure:
		if c.ReportUpload && c.ArtifactConnection == "" {
			return errors.New("AZURE_STORAGE_CONNECTION_STRING is required to upload reports")
		}
	case artifact.ProviderS3:
	case artifact.ProviderFile:
		if c.ArtifactFileRoot == "" {
			return errors.New("ARTIFACT_FILE_ROOT is required for the file provider")
		}
	default:
		return fmt.Errorf("unknown ARTIFACT_PROVIDER %q", c.ArtifactProvider)
	}
	if c.HTTPTimeout <= 0 {
		return errors.New("HTTP_SHUTDOWN_TIMEOUT must be positive")
	}
	return nil
}

// ArtifactSettings describes the store reports are uploaded to.
func (c Config) ArtifactSettings() artifact.Settings {
	return artifact.Settings{
		Provider:         c.ArtifactProvider,
		ConnectionString: c.ArtifactConnection,
		S3Endpoint:       c.ArtifactS3Endpoint,
		S3AccessKey:      c.ArtifactS3AccessKey,
		S3SecretKey:      c.ArtifactS3SecretKey,
		S3Region:         c.ArtifactS3Region,
		S3DisableTLS:     c.ArtifactS3DisableTLS,
		S3ForcePathStyle: c.ArtifactS3ForcePathStyle,
		Root:             c.ArtifactFileRoot,
	}
}

// BlobNameFor returns the configured output blob name or one derived from the run start.
func (c Config) BlobNameFor(start time.Time) string {
	if name := strings.TrimSpace(c.BlobName); name != "" {
		return name
	}
	return "articles-" + start.UTC().Format("20060102T150405Z") + ".json"
}
