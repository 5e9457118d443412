package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// Bus wraps a NATS JetStream connection for publishing run events.
type Bus struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// New creates a Bus connected to the provided NATS endpoint.
func New(url string, opts ...nats.Option) (*Bus, error) {
	if url == "" {
		return nil, errors.New("nats url is required")
	}
	opts = append([]nats.Option{nats.Name("cloudbench"), nats.Timeout(10 * time.Second)}, opts...)
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, err
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, err
	}

	return &Bus{conn: nc, js: js}, nil
}

// Close shuts down the underlying NATS connection.
func (b *Bus) Close() {
	if b == nil {
		return
	}
	if err := b.conn.Drain(); err != nil {
		b.conn.Close()
	}
}

// EnsureStream creates the named stream for subjects, or adds the subjects an existing
// stream does not list yet. JetStream rejects publishes to subjects no stream captures.
func (b *Bus) EnsureStream(name string, subjects ...string) error {
	if b == nil {
		return errors.New("nil bus")
	}
	if name == "" || len(subjects) == 0 {
		return errors.New("stream name and subjects are required")
	}

	info, err := b.js.StreamInfo(name)
	switch {
	case errors.Is(err, nats.ErrStreamNotFound):
		_, err = b.js.AddStream(&nats.StreamConfig{
			Name:     name,
			Subjects: subjects,
			Storage:  nats.FileStorage,
			MaxAge:   30 * 24 * time.Hour,
		})
		if err != nil {
			return fmt.Errorf("add stream %s: %w", name, err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("stream %s: %w", name, err)
	}

	missing := missingSubjects(info.Config.Subjects, subjects)
	if len(missing) == 0 {
		return nil
	}
	cfg := info.Config
	cfg.Subjects = append(append([]string{}, cfg.Subjects...), missing...)
	if _, err := b.js.UpdateStream(&cfg); err != nil {
		return fmt.Errorf("update stream %s: %w", name, err)
	}
	return nil
}

// missingSubjects returns the wanted subjects not listed verbatim in have.
func missingSubjects(have, want []string) []string {
	listed := make(map[string]bool, len(have))
	for _, s := range have {
		listed[s] = true
	}
	var missing []string
	for _, s := range want {
		if !listed[s] {
			listed[s] = true
			missing = append(missing, s)
		}
	}
	return missing
}

// Publish encodes v as JSON and publishes it to the given subject.
func (b *Bus) Publish(ctx context.Context, subj string, v any) error {
	if b == nil {
		return errors.New("nil bus")
	}

	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	_, err = b.js.Publish(subj, data, nats.Context(ctx))
	return err
}
