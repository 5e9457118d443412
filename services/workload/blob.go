package workload

import (
	"context"
	"errors"
	"strings"

	"cloudbench/pkg/artifact"
)

// BlobProber treats the workload as completed once its output blob exists in the
// container. The handle is the blob name.
type BlobProber struct {
	store     artifact.Store
	container string
}

// NewBlobProber returns a prober that checks container in store.
func NewBlobProber(store artifact.Store, container string) (*BlobProber, error) {
	if store == nil {
		return nil, errors.New("artifact store is required")
	}
	if strings.TrimSpace(container) == "" {
		return nil, errors.New("blob container is required")
	}
	return &BlobProber{store: store, container: container}, nil
}

func (p *BlobProber) Probe(ctx context.Context, handle string) (State, error) {
	ok, err := p.store.Exists(ctx, p.container, handle)
	if err != nil {
		return "", &ProbeError{Handle: handle, Err: err}
	}
	if ok {
		return StateCompleted, nil
	}
	return StateRunning, nil
}
