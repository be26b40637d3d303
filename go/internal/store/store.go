// Package store reads raw war records from the backing data store.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mcdev12/warboard/go/internal/models"
)

var (
	// ErrNotFound is returned when no record exists for a war ID.
	ErrNotFound = errors.New("war not found")

	// ErrMalformedRecord is returned when a stored record cannot be decoded.
	ErrMalformedRecord = errors.New("malformed war record")
)

// Accessor fetches the latest raw record for a war. Implementations return
// ErrNotFound for unknown wars; any other error is transient.
type Accessor interface {
	Fetch(ctx context.Context, warID string) (*models.War, error)
}

// rawWar mirrors models.War with pointers so missing keys can be told apart
// from empty values.
type rawWar struct {
	Tag        *string `json:"tag"`
	EnemyTag   *string `json:"enemy_tag"`
	HomeScore  *[]int  `json:"home_score"`
	EnemyScore *[]int  `json:"enemy_score"`
	Diff       *[]int  `json:"diff"`
	LastDiff   *int    `json:"last_diff"`
}

// DecodeWar parses the JSON record written by the war producer.
func DecodeWar(data []byte) (*models.War, error) {
	var raw rawWar
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}

	switch {
	case raw.Tag == nil:
		return nil, fmt.Errorf("%w: missing tag", ErrMalformedRecord)
	case raw.EnemyTag == nil:
		return nil, fmt.Errorf("%w: missing enemy_tag", ErrMalformedRecord)
	case raw.HomeScore == nil:
		return nil, fmt.Errorf("%w: missing home_score", ErrMalformedRecord)
	case raw.EnemyScore == nil:
		return nil, fmt.Errorf("%w: missing enemy_score", ErrMalformedRecord)
	case raw.Diff == nil:
		return nil, fmt.Errorf("%w: missing diff", ErrMalformedRecord)
	}

	return &models.War{
		Tag:        *raw.Tag,
		EnemyTag:   *raw.EnemyTag,
		HomeScore:  *raw.HomeScore,
		EnemyScore: *raw.EnemyScore,
		Diff:       *raw.Diff,
		LastDiff:   raw.LastDiff,
	}, nil
}

// EncodeWar renders a record in the producer's JSON layout.
func EncodeWar(war *models.War) ([]byte, error) {
	w := *war
	if w.HomeScore == nil {
		w.HomeScore = []int{}
	}
	if w.EnemyScore == nil {
		w.EnemyScore = []int{}
	}
	if w.Diff == nil {
		w.Diff = []int{}
	}
	return json.Marshal(&w)
}

type timeoutAccessor struct {
	next    Accessor
	timeout time.Duration
}

// WithTimeout bounds every Fetch on next by d. A non-positive d returns next.
func WithTimeout(next Accessor, d time.Duration) Accessor {
	if d <= 0 {
		return next
	}
	return &timeoutAccessor{next: next, timeout: d}
}

func (a *timeoutAccessor) Fetch(ctx context.Context, warID string) (*models.War, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	return a.next.Fetch(ctx, warID)
}
