package scraper

import (
	"context"
	"errors"
	"fmt"

	"cloudbench/pkg/artifact"
)

// Task is one containerised scrape-and-upload run.
type Task struct {
	Scraper   *Scraper
	Store     artifact.Store
	Container string
	BlobName  string
	Codec     Codec
	Sources   []Source
}

// Run scrapes every source and uploads the records as a single blob. Individual source
// failures are tolerated; an upload failure is returned as an *artifact.UploadError.
func (t *Task) Run(ctx context.Context) (*Result, error) {
	if t == nil || t.Scraper == nil {
		return nil, errors.New("scraper is required")
	}

	result, err := t.Scraper.Scrape(ctx, t.Sources)
	if err != nil {
		return result, err
	}

	if err := Upload(ctx, t.Store, t.Container, t.BlobName, result.Records, t.Codec); err != nil {
		return result, err
	}
	return result, nil
}

// Upload serialises records and writes them as one blob, replacing any existing blob of
// the same name.
func Upload(ctx context.Context, store artifact.Store, container, name string, records []Record, codec Codec) error {
	data, err := Encode(records, codec)
	if err != nil {
		return &artifact.UploadError{Container: container, Name: name, Err: fmt.Errorf("encode: %w", err)}
	}
	return artifact.Upload(ctx, store, container, name, data)
}
