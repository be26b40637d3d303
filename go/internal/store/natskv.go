package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/mcdev12/warboard/go/internal/models"
	"github.com/nats-io/nats.go/jetstream"
)

// NATSKV reads JSON war records from a JetStream key-value bucket keyed by
// war ID.
type NATSKV struct {
	kv jetstream.KeyValue
}

// NewNATSKV binds to an existing bucket.
func NewNATSKV(ctx context.Context, js jetstream.JetStream, bucket string) (*NATSKV, error) {
	kv, err := js.KeyValue(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("bind key-value bucket %s: %w", bucket, err)
	}
	return &NATSKV{kv: kv}, nil
}

// NewNATSKVFromBucket wraps an already bound bucket.
func NewNATSKVFromBucket(kv jetstream.KeyValue) *NATSKV {
	return &NATSKV{kv: kv}
}

// Fetch implements Accessor.
func (s *NATSKV) Fetch(ctx context.Context, warID string) (*models.War, error) {
	entry, err := s.kv.Get(ctx, warID)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get war %s: %w", warID, err)
	}
	return DecodeWar(entry.Value())
}

// Put writes war under warID.
func (s *NATSKV) Put(ctx context.Context, warID string, war *models.War) error {
	data, err := EncodeWar(war)
	if err != nil {
		return fmt.Errorf("encode war %s: %w", warID, err)
	}
	if _, err := s.kv.Put(ctx, warID, data); err != nil {
		return fmt.Errorf("put war %s: %w", warID, err)
	}
	return nil
}
