package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when no checkpoint matches a lookup.
var ErrNotFound = errors.New("checkpoint not found")

// Checkpoint is one saved set of params for a single net.
type Checkpoint struct {
	ID        int64
	Algorithm string
	Net       string
	Ckpt      string
	Params    []byte
	CreatedAt int64
}

// SaveCheckpoint stores params for a net. An earlier save with the same tag
// is replaced, and the new row sorts as the latest.
func (db *DB) SaveCheckpoint(ctx context.Context, c *Checkpoint) error {
	c.CreatedAt = time.Now().UnixMilli()
	result, err := db.ExecContext(ctx, `
		INSERT OR REPLACE INTO checkpoints (algorithm, net, ckpt, params, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, c.Algorithm, c.Net, c.Ckpt, c.Params, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("save checkpoint %s/%s: %w", c.Algorithm, c.Net, err)
	}
	c.ID, _ = result.LastInsertId()
	return nil
}

// LatestCheckpoint returns the most recently written checkpoint of a net,
// whatever its tag.
func (db *DB) LatestCheckpoint(ctx context.Context, algorithm, net string) (*Checkpoint, error) {
	var c Checkpoint
	err := db.QueryRowContext(ctx, `
		SELECT id, algorithm, net, ckpt, params, created_at
		FROM checkpoints WHERE algorithm = ? AND net = ?
		ORDER BY id DESC LIMIT 1
	`, algorithm, net).Scan(&c.ID, &c.Algorithm, &c.Net, &c.Ckpt, &c.Params, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s/%s: %w", algorithm, net, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("latest checkpoint %s/%s: %w", algorithm, net, err)
	}
	return &c, nil
}

// ListCheckpoints returns every checkpoint of an algorithm, newest first,
// without params.
func (db *DB) ListCheckpoints(ctx context.Context, algorithm string) ([]Checkpoint, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, algorithm, net, ckpt, created_at
		FROM checkpoints WHERE algorithm = ?
		ORDER BY id DESC
	`, algorithm)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	defer rows.Close()

	var out []Checkpoint
	for rows.Next() {
		var c Checkpoint
		if err := rows.Scan(&c.ID, &c.Algorithm, &c.Net, &c.Ckpt, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan checkpoint: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
