// Package pgstore is the PostgreSQL implementation of core.Store.
//
// All collections share one table: a record is a row keyed by collection
// and id, with the "name" attribute in its own indexed column and every
// other attribute in a JSONB document. One import run is one transaction;
// savepoints give each row (and each reference creation) its own rollback
// scope.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/JonMunkholm/xlimport/internal/core"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema creates the record table and its lookup indexes.
const Schema = `
CREATE TABLE IF NOT EXISTS import_records (
    id          BIGSERIAL PRIMARY KEY,
    collection  TEXT        NOT NULL,
    name        TEXT        NOT NULL DEFAULT '',
    attrs       JSONB       NOT NULL DEFAULT '{}'::jsonb,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS import_records_collection_name_idx
    ON import_records (collection, name);

CREATE INDEX IF NOT EXISTS import_records_collection_lower_name_idx
    ON import_records (collection, lower(name));

CREATE INDEX IF NOT EXISTS import_records_attrs_idx
    ON import_records USING GIN (attrs jsonb_path_ops);
`

var _ core.Store = (*Store)(nil)

// Store opens import transactions on a connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a Store on an existing pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Migrate creates the schema if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("migrate import_records: %w", err)
	}
	return nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Begin starts the transaction of one import run.
func (s *Store) Begin(ctx context.Context) (core.Tx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &Tx{tx: tx}, nil
}

// Tx is a run transaction. It is not safe for concurrent use.
type Tx struct {
	tx  pgx.Tx
	seq int // Savepoint name counter
}

// Collection returns a handle on one collection inside the transaction.
func (t *Tx) Collection(name string) core.Collection {
	return &collection{tx: t.tx, name: name}
}

// Savepoint runs fn between SAVEPOINT and RELEASE. If fn fails or panics the
// transaction is rolled back to the savepoint and stays usable.
func (t *Tx) Savepoint(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	t.seq++
	name := fmt.Sprintf("sp_%d", t.seq)

	if _, err := t.tx.Exec(ctx, "SAVEPOINT "+name); err != nil {
		return fmt.Errorf("create savepoint: %w", err)
	}

	defer func() {
		if r := recover(); r != nil {
			_, _ = t.tx.Exec(context.WithoutCancel(ctx), "ROLLBACK TO SAVEPOINT "+name)
			panic(r)
		}
	}()

	if err := fn(ctx); err != nil {
		// Rollback to savepoint - undoes this scope's writes, keeps the transaction valid
		if _, rbErr := t.tx.Exec(context.WithoutCancel(ctx), "ROLLBACK TO SAVEPOINT "+name); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback to savepoint: %w", rbErr))
		}
		return err
	}

	// Success - release savepoint (merges into parent transaction)
	if _, err := t.tx.Exec(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		return fmt.Errorf("release savepoint: %w", err)
	}
	return nil
}

// Commit commits the run.
func (t *Tx) Commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

// Rollback discards the run.
func (t *Tx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return core.ErrTxDone
	}
	return err
}

type collection struct {
	tx   pgx.Tx
	name string
}

func (c *collection) Search(ctx context.Context, crit core.Criteria) (*core.Record, error) {
	if len(crit.Any) == 0 {
		return nil, nil
	}
	query, args := searchQuery(c.name, crit)

	var (
		id    int64
		name  string
		attrs map[string]any
	)
	err := c.tx.QueryRow(ctx, query, args...).Scan(&id, &name, &attrs)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &core.Record{ID: id, Values: decodeValues(name, attrs)}, nil
}

func (c *collection) Create(ctx context.Context, values core.Values) (*core.Record, error) {
	name, attrs := encodeValues(values)

	var id int64
	err := c.tx.QueryRow(ctx,
		`INSERT INTO import_records (collection, name, attrs) VALUES ($1, $2, $3) RETURNING id`,
		c.name, name, attrs,
	).Scan(&id)
	if err != nil {
		return nil, err
	}
	return &core.Record{ID: id, Values: values.Clone()}, nil
}

func (c *collection) Write(ctx context.Context, rec *core.Record, values core.Values) error {
	name, attrs := encodeValues(values)
	var namePtr *string
	if _, ok := values["name"]; ok {
		namePtr = &name
	}

	tag, err := c.tx.Exec(ctx,
		`UPDATE import_records
		    SET name = COALESCE($3, name), attrs = attrs || $4, updated_at = now()
		  WHERE id = $1 AND collection = $2`,
		rec.ID, c.name, namePtr, attrs,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s record %d not found", c.name, rec.ID)
	}
	return nil
}

// searchQuery builds a lookup for the first record matching any criterion.
// "name" uses its own column, other fields are read from attrs.
func searchQuery(coll string, crit core.Criteria) (string, []any) {
	args := []any{coll}
	var conds []string
	for _, m := range crit.Any {
		var field string
		if m.Field == "name" {
			field = "name"
		} else {
			args = append(args, m.Field)
			field = fmt.Sprintf("attrs->>$%d", len(args))
		}
		args = append(args, m.Value)
		if m.Fold {
			conds = append(conds, fmt.Sprintf("lower(%s) = lower($%d)", field, len(args)))
		} else {
			conds = append(conds, fmt.Sprintf("%s = $%d", field, len(args)))
		}
	}

	query := "SELECT id, name, attrs FROM import_records WHERE collection = $1 AND (" +
		strings.Join(conds, " OR ") + ") ORDER BY id LIMIT 1"
	return query, args
}

// encodeValues splits the name off and renders the rest as JSON-ready values.
// Dates are stored as ISO dates.
func encodeValues(values core.Values) (string, map[string]any) {
	name, _ := values["name"].(string)
	attrs := make(map[string]any, len(values))
	for k, v := range values {
		if k == "name" {
			continue
		}
		if t, ok := v.(time.Time); ok {
			attrs[k] = t.Format(time.DateOnly)
			continue
		}
		attrs[k] = v
	}
	return name, attrs
}

func decodeValues(name string, attrs map[string]any) core.Values {
	values := make(core.Values, len(attrs)+1)
	for k, v := range attrs {
		values[k] = v
	}
	values["name"] = name
	return values
}
