package artifact

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"cloudbench/pkg/azblob"
	gos3 "cloudbench/pkg/s3"
)

// AzureStore stores blobs in an Azure storage account.
type AzureStore struct {
	client *azblob.Client
}

// NewAzureStore connects to the storage account named by connectionString.
func NewAzureStore(connectionString string) (*AzureStore, error) {
	client, err := azblob.NewClientFromConnectionString(connectionString)
	if err != nil {
		return nil, err
	}
	return &AzureStore{client: client}, nil
}

func (s *AzureStore) Put(ctx context.Context, container, name string, data []byte) error {
	return s.client.Upload(ctx, container, name, data)
}

func (s *AzureStore) Get(ctx context.Context, container, name string) ([]byte, error) {
	ok, err := s.client.Exists(ctx, container, name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return s.client.Download(ctx, container, name)
}

func (s *AzureStore) Exists(ctx context.Context, container, name string) (bool, error) {
	return s.client.Exists(ctx, container, name)
}

// S3Store stores blobs in an S3-compatible bucket.
type S3Store struct {
	client *gos3.Client
}

// NewS3Store connects to the S3 endpoint described by settings.
func NewS3Store(ctx context.Context, settings Settings) (*S3Store, error) {
	client, err := gos3.NewClient(ctx, gos3.Config{
		Endpoint:       settings.S3Endpoint,
		AccessKey:      settings.S3AccessKey,
		SecretKey:      settings.S3SecretKey,
		Region:         settings.S3Region,
		DisableTLS:     settings.S3DisableTLS,
		ForcePathStyle: settings.S3ForcePathStyle,
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}
	return &S3Store{client: client}, nil
}

func (s *S3Store) Put(ctx context.Context, container, name string, data []byte) error {
	return s.client.PutObject(ctx, container, name, data)
}

func (s *S3Store) Get(ctx context.Context, container, name string) ([]byte, error) {
	ok, err := s.client.ObjectExists(ctx, container, name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return s.client.GetObject(ctx, container, name)
}

func (s *S3Store) Exists(ctx context.Context, container, name string) (bool, error) {
	return s.client.ObjectExists(ctx, container, name)
}

// FileStore keeps blobs as files under root/<container>/<name>.
type FileStore struct {
	root string
}

// NewFileStore returns a FileStore rooted at root.
func NewFileStore(root string) (*FileStore, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, errors.New("file store root is required")
	}
	return &FileStore{root: root}, nil
}

func (s *FileStore) Put(ctx context.Context, container, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.path(container, name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create container dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (s *FileStore) Get(ctx context.Context, container, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := s.path(container, name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return data, err
}

func (s *FileStore) Exists(ctx context.Context, container, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	path, err := s.path(container, name)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}

func (s *FileStore) path(container, name string) (string, error) {
	for _, part := range []string{container, name} {
		if part == "" || !filepath.IsLocal(filepath.FromSlash(part)) {
			return "", fmt.Errorf("invalid blob path component %q", part)
		}
	}
	return filepath.Join(s.root, filepath.FromSlash(container), filepath.FromSlash(name)), nil
}
