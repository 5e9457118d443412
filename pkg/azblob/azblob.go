package azblob

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
)

// Client is a thin wrapper around the Azure Blob Storage SDK client.
type Client struct {
	api *azblob.Client
}

// NewClientFromConnectionString builds a Client from a storage account connection string
// as emitted by the storage account's Terraform outputs.
func NewClientFromConnectionString(connectionString string) (*Client, error) {
	connectionString = strings.TrimSpace(connectionString)
	if connectionString == "" {
		return nil, errors.New("azblob: connection string is required")
	}
	api, err := azblob.NewClientFromConnectionString(connectionString, nil)
	if err != nil {
		return nil, err
	}
	return &Client{api: api}, nil
}

// Upload writes data to containerName/blobName. An existing blob is overwritten.
func (c *Client) Upload(ctx context.Context, containerName, blobName string, data []byte) error {
	if c == nil {
		return errors.New("nil client")
	}
	_, err := c.api.UploadBuffer(ctx, containerName, blobName, data, nil)
	return err
}

// Download reads the full content of containerName/blobName.
func (c *Client) Download(ctx context.Context, containerName, blobName string) ([]byte, error) {
	if c == nil {
		return nil, errors.New("nil client")
	}
	resp, err := c.api.DownloadStream(ctx, containerName, blobName, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// Exists reports whether containerName/blobName is present.
func (c *Client) Exists(ctx context.Context, containerName, blobName string) (bool, error) {
	if c == nil {
		return false, errors.New("nil client")
	}
	blob := c.api.ServiceClient().NewContainerClient(containerName).NewBlobClient(blobName)
	_, err := blob.GetProperties(ctx, nil)
	switch {
	case err == nil:
		return true, nil
	case bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound):
		return false, nil
	default:
		return false, err
	}
}
