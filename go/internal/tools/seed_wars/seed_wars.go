package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mcdev12/warboard/go/internal/dbconfig"
	"github.com/mcdev12/warboard/go/internal/models"
	"github.com/mcdev12/warboard/go/internal/sqlutil"
	"github.com/mcdev12/warboard/go/internal/store"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/urfave/cli/v2"
)

// warWriter is implemented by every seed target
type warWriter interface {
	Put(ctx context.Context, warID string, war *models.War) error
}

func main() {
	app := &cli.App{
		Name:  "seed_wars",
		Usage: "write war records from a JSON file into a warboard store",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "backend", Value: "postgres", Usage: "postgres, nats or badger", EnvVars: []string{"STORE_BACKEND"}},
			&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Required: true, Usage: "JSON object mapping war id to record"},
			&cli.BoolFlag{Name: "schema", Usage: "create the Postgres table before writing"},
			&cli.StringFlag{Name: "nats-url", Value: nats.DefaultURL, EnvVars: []string{"NATS_URL"}},
			&cli.StringFlag{Name: "bucket", Value: "wars", Usage: "NATS key-value bucket", EnvVars: []string{"NATS_KV_BUCKET"}},
			&cli.StringFlag{Name: "badger-dir", EnvVars: []string{"BADGER_DIR"}},
			&cli.BoolFlag{Name: "announce", Usage: "publish each written war id on the update subject"},
			&cli.StringFlag{Name: "subject", Value: "warboard.wars.updated", EnvVars: []string{"NATS_UPDATE_SUBJECT"}},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "seed_wars: %v\n", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	ctx := c.Context

	// 1) Load the records
	ids, wars, err := store.LoadSeedFile(c.String("file"))
	if err != nil {
		return err
	}

	// 2) Open the target
	var nc *nats.Conn
	if c.String("backend") == "nats" || c.Bool("announce") {
		nc, err = nats.Connect(c.String("nats-url"), nats.Name("warboard-seed"))
		if err != nil {
			return fmt.Errorf("connect to NATS: %w", err)
		}
		defer nc.Close()
	}

	writer, closeWriter, err := openWriter(c, nc)
	if err != nil {
		return err
	}
	defer closeWriter()

	// 3) Write and count
	var written, errs int
	for _, id := range ids {
		if err := writer.Put(ctx, id, wars[id]); err != nil {
			fmt.Fprintf(os.Stderr, "error writing war %s: %v\n", id, err)
			errs++
			continue
		}
		written++

		if c.Bool("announce") {
			if err := nc.Publish(c.String("subject"), []byte(id)); err != nil {
				fmt.Fprintf(os.Stderr, "error announcing war %s: %v\n", id, err)
			}
		}
	}
	if nc != nil {
		if err := nc.Flush(); err != nil {
			fmt.Fprintf(os.Stderr, "error flushing NATS: %v\n", err)
		}
	}

	fmt.Printf("Processed %d wars: %d written, %d errors\n", len(ids), written, errs)
	if errs > 0 {
		return errors.New("some wars were not written")
	}
	return nil
}

func openWriter(c *cli.Context, nc *nats.Conn) (warWriter, func(), error) {
	ctx := c.Context

	switch c.String("backend") {
	case "postgres":
		cfg := dbconfig.NewConfigFromEnv()
		pool, err := pgxpool.New(ctx, cfg.DSN())
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect: %w", err)
		}
		if c.Bool("schema") {
			if _, err := pool.Exec(ctx, fmt.Sprintf(store.Schema, cfg.QuotedTable())); err != nil {
				pool.Close()
				return nil, nil, fmt.Errorf("create table: %w", err)
			}
		}
		return &pgWriter{pool: pool, table: cfg.QuotedTable()}, pool.Close, nil

	case "nats":
		js, err := jetstream.New(nc)
		if err != nil {
			return nil, nil, fmt.Errorf("create JetStream context: %w", err)
		}
		kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
			Bucket:      c.String("bucket"),
			Description: "warboard war records",
			History:     1,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("create key-value bucket: %w", err)
		}
		return store.NewNATSKVFromBucket(kv), func() {}, nil

	case "badger":
		if c.String("badger-dir") == "" {
			return nil, nil, errors.New("--badger-dir is required for the badger backend")
		}
		db, err := store.OpenBadger(c.String("badger-dir"))
		if err != nil {
			return nil, nil, err
		}
		return db, func() { _ = db.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unknown backend %q", c.String("backend"))
	}
}

// pgWriter upserts wars into the Postgres table read by store.Postgres
type pgWriter struct {
	pool  *pgxpool.Pool
	table string
}

func (w *pgWriter) Put(ctx context.Context, warID string, war *models.War) error {
	_, err := w.pool.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, tag, enemy_tag, home_scores, enemy_scores, diffs, last_diff, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (id) DO UPDATE SET
			tag = EXCLUDED.tag,
			enemy_tag = EXCLUDED.enemy_tag,
			home_scores = EXCLUDED.home_scores,
			enemy_scores = EXCLUDED.enemy_scores,
			diffs = EXCLUDED.diffs,
			last_diff = EXCLUDED.last_diff,
			updated_at = now()
	`, w.table),
		warID, war.Tag, war.EnemyTag,
		sqlutil.ToInt64s(war.HomeScore), sqlutil.ToInt64s(war.EnemyScore), sqlutil.ToInt64s(war.Diff),
		sqlutil.ToSqlInt32(war.LastDiff),
	)
	return err
}
