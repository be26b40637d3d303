package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v3"
	"github.com/mcdev12/warboard/go/internal/models"
)

const badgerKeyPrefix = "war/"

// Badger reads JSON war records from an embedded Badger database.
type Badger struct {
	db *badger.DB
}

// OpenBadger opens (or creates) a Badger database in dir. An empty dir opens
// an in-memory database.
func OpenBadger(dir string) (*Badger, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %q: %w", dir, err)
	}
	return &Badger{db: db}, nil
}

// Close releases the database.
func (b *Badger) Close() error {
	return b.db.Close()
}

// Fetch implements Accessor.
func (b *Badger) Fetch(ctx context.Context, warID string) (*models.War, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var data []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(badgerKeyPrefix + warID))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read war %s: %w", warID, err)
	}
	return DecodeWar(data)
}

// Put writes war under warID.
func (b *Badger) Put(ctx context.Context, warID string, war *models.War) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := EncodeWar(war)
	if err != nil {
		return fmt.Errorf("encode war %s: %w", warID, err)
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(badgerKeyPrefix+warID), data)
	})
}

// PutRaw stores bytes as-is, including records the decoder will reject.
func (b *Badger) PutRaw(warID string, data []byte) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(badgerKeyPrefix+warID), data)
	})
}
