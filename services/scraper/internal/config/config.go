package config

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"

	"cloudbench/pkg/artifact"
)

// Config is the scraper container's environment contract. The orchestrator injects the
// storage connection string, container and blob name when it launches the workload.
type Config struct {
	Provider         string `env:"ARTIFACT_PROVIDER,default=azure"`
	ConnectionString string `env:"AZURE_STORAGE_CONNECTION_STRING"`
	Container        string `env:"AZURE_BLOB_CONTAINER,required"`
	BlobName         string `env:"ARTIFACT_BLOB_NAME,default=articles.json"`
	Codec            string `env:"ARTIFACT_CODEC,default=json"`
	FileRoot         string `env:"ARTIFACT_FILE_ROOT"`

	S3Endpoint       string `env:"S3_ENDPOINT"`
	S3AccessKey      string `env:"S3_ACCESS_KEY"`
	S3SecretKey      string `env:"S3_SECRET_KEY"`
	S3Region         string `env:"S3_REGION,default=us-east-1"`
	S3DisableTLS     bool   `env:"S3_DISABLE_TLS,default=false"`
	S3ForcePathStyle bool   `env:"S3_FORCE_PATH_STYLE,default=true"`

	SourcesFile    string        `env:"SCRAPER_SOURCES_FILE"`
	UserAgent      string        `env:"SCRAPER_USER_AGENT"`
	RequestTimeout time.Duration `env:"SCRAPER_REQUEST_TIMEOUT,default=30s"`
	ExcerptLength  int           `env:"SCRAPER_EXCERPT_LENGTH,default=280"`

	LogLevel     string `env:"LOG_LEVEL,default=info"`
	LogFormat    string `env:"LOG_FORMAT,default=json"`
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
	switch c.Provider {
	case artifact.ProviderAzure:
		if c.ConnectionString == "" {
			return errors.New("AZURE_STORAGE_CONNECTION_STRING is required for the azure provider")
		}
	case artifact.ProviderS3:
	case artifact.ProviderFile:
		if c.FileRoot == "" {
			return errors.New("ARTIFACT_FILE_ROOT is required for the file provider")
		}
	default:
		return fmt.Errorf("unknown ARTIFACT_PROVIDER %q", c.Provider)
	}
	if c.RequestTimeout <= 0 {
		return errors.New("SCRAPER_REQUEST_TIMEOUT must be positive")
	}
	if c.ExcerptLength <= 0 {
		return errors.New("SCRAPER_EXCERPT_LENGTH must be positive")
	}
	return nil
}

// ArtifactSettings maps the config onto artifact store settings.
func (c Config) ArtifactSettings() artifact.Settings {
	return artifact.Settings{
		Provider:         c.Provider,
		ConnectionString: c.ConnectionString,
		S3Endpoint:       c.S3Endpoint,
		S3AccessKey:      c.S3AccessKey,
		S3SecretKey:      c.S3SecretKey,
		S3Region:         c.S3Region,
		S3DisableTLS:     c.S3DisableTLS,
		S3ForcePathStyle: c.S3ForcePathStyle,
		Root:             c.FileRoot,
	}
}
