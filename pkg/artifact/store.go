// Package artifact uploads and reads named blobs in a provider-specific object store.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Provider names accepted by Open.
const (
	ProviderAzure = "azure"
	ProviderS3    = "s3"
	ProviderFile  = "file"
)

// ErrNotFound is returned by Get when the blob does not exist.
var ErrNotFound = errors.New("artifact not found")

// Store writes and reads whole blobs addressed by container (bucket) and name.
// Put replaces any existing blob of the same name.
type Store interface {
	Put(ctx context.Context, container, name string, data []byte) error
	Get(ctx context.Context, container, name string) ([]byte, error)
	Exists(ctx context.Context, container, name string) (bool, error)
}

// UploadError reports a failed blob write.
type UploadError struct {
	Container string
	Name      string
	Err       error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload %s/%s: %v", e.Container, e.Name, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// Settings selects and configures a backend.
type Settings struct {
	Provider string

	// ConnectionString is the Azure storage account connection string.
	ConnectionString string

	S3Endpoint       string
	S3AccessKey      string
	S3SecretKey      string
	S3Region         string
	S3DisableTLS     bool
	S3ForcePathStyle bool

	// Root is the base directory for the file provider.
	Root string
}

// Open returns the Store described by settings.
func Open(ctx context.Context, settings Settings) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(settings.Provider)) {
	case ProviderAzure, "":
		return NewAzureStore(settings.ConnectionString)
	case ProviderS3:
		return NewS3Store(ctx, settings)
	case ProviderFile:
		return NewFileStore(settings.Root)
	default:
		return nil, fmt.Errorf("unknown artifact provider %q", settings.Provider)
	}
}

// Upload writes data through store and wraps any failure in an UploadError.
func Upload(ctx context.Context, store Store, container, name string, data []byte) error {
	if store == nil {
		return &UploadError{Container: container, Name: name, Err: errors.New("nil store")}
	}
	if strings.TrimSpace(container) == "" || strings.TrimSpace(name) == "" {
		return &UploadError{Container: container, Name: name, Err: errors.New("container and blob name are required")}
	}
	if err := store.Put(ctx, container, name, data); err != nil {
		return &UploadError{Container: container, Name: name, Err: err}
	}
	return nil
}
