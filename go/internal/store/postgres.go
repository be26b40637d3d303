package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/mcdev12/warboard/go/internal/dbconfig"
	"github.com/mcdev12/warboard/go/internal/models"
	"github.com/mcdev12/warboard/go/internal/sqlutil"
)

// Schema is the table layout the Postgres backend reads. %s is the quoted
// table name.
const Schema = `CREATE TABLE IF NOT EXISTS %s (
	id           TEXT PRIMARY KEY,
	tag          TEXT NOT NULL,
	enemy_tag    TEXT NOT NULL,
	home_scores  INTEGER[] NOT NULL DEFAULT '{}',
	enemy_scores INTEGER[] NOT NULL DEFAULT '{}',
	diffs        INTEGER[] NOT NULL DEFAULT '{}',
	last_diff    INTEGER,
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Postgres reads war records from a relational table.
type Postgres struct {
	db    *sql.DB
	query string
}

// NewPostgres creates a Postgres accessor over db using the table in cfg.
func NewPostgres(db *sql.DB, cfg dbconfig.Config) *Postgres {
	return &Postgres{
		db: db,
		query: fmt.Sprintf(
			`SELECT tag, enemy_tag, home_scores, enemy_scores, diffs, last_diff FROM %s WHERE id = $1`,
			cfg.QuotedTable(),
		),
	}
}

// Fetch implements Accessor.
func (p *Postgres) Fetch(ctx context.Context, warID string) (*models.War, error) {
	var (
		war         models.War
		homeScores  []int64
		enemyScores []int64
		diffs       []int64
		lastDiff    sql.NullInt32
	)

	err := p.db.QueryRowContext(ctx, p.query, warID).Scan(
		&war.Tag,
		&war.EnemyTag,
		pq.Array(&homeScores),
		pq.Array(&enemyScores),
		pq.Array(&diffs),
		&lastDiff,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query war %s: %w", warID, err)
	}

	war.HomeScore = sqlutil.FromInt64s(homeScores)
	war.EnemyScore = sqlutil.FromInt64s(enemyScores)
	war.Diff = sqlutil.FromInt64s(diffs)
	war.LastDiff = sqlutil.FromSqlInt32(lastDiff)
	return &war, nil
}
