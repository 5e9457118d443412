package artifact

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStorePutOverwrites(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "results", "articles.json", []byte(`[1]`)))
	require.NoError(t, store.Put(ctx, "results", "articles.json", []byte(`[2]`)))

	got, err := store.Get(ctx, "results", "articles.json")
	require.NoError(t, err)
	assert.Equal(t, []byte(`[2]`), got)
}

func TestFileStoreExists(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	ok, err := store.Exists(ctx, "results", "articles.json")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = store.Get(ctx, "results", "articles.json")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Put(ctx, "results", "articles.json", nil))
	ok, err = store.Exists(ctx, "results", "articles.json")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFileStoreRejectsEscapingPaths(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	err = store.Put(context.Background(), "results", "../outside.json", []byte("x"))
	assert.Error(t, err)
}

type failingStore struct{ Store }

func (failingStore) Put(context.Context, string, string, []byte) error {
	return errors.New("quota exceeded")
}

func TestUploadWrapsFailures(t *testing.T) {
	err := Upload(context.Background(), failingStore{}, "results", "articles.json", []byte("x"))

	var uploadErr *UploadError
	require.ErrorAs(t, err, &uploadErr)
	assert.Equal(t, "results", uploadErr.Container)
	assert.Equal(t, "articles.json", uploadErr.Name)
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestUploadRequiresNames(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	err = Upload(context.Background(), store, "", "articles.json", nil)
	var uploadErr *UploadError
	assert.ErrorAs(t, err, &uploadErr)
}

func TestOpenSelectsProvider(t *testing.T) {
	store, err := Open(context.Background(), Settings{Provider: "FILE", Root: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, store)

	_, err = Open(context.Background(), Settings{Provider: "gcs"})
	assert.Error(t, err)

	_, err = Open(context.Background(), Settings{Provider: ProviderAzure})
	assert.Error(t, err, "azure requires a connection string")
}
