package net

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/boristopalov/rlab/internal/store"
)

// ErrNoCheckpoint is returned when a declared net has nothing saved.
var ErrNoCheckpoint = errors.New("no checkpoint")

// Persistable is what a Builder needs from an algorithm: its name and a
// way to look its nets up by declared name.
type Persistable interface {
	Name() string
	NetNames() []string
	Net(name string) (Net, bool)
}

// Builder saves and restores the nets of an algorithm.
type Builder interface {
	SaveAlgorithm(ctx context.Context, alg Persistable, ckpt string) error
	LoadAlgorithm(ctx context.Context, alg Persistable) error
}

// SQLiteBuilder keeps net params as JSON rows in the checkpoint database.
type SQLiteBuilder struct {
	db *store.DB
}

// NewSQLiteBuilder creates a builder over an open checkpoint database
func NewSQLiteBuilder(db *store.DB) *SQLiteBuilder {
	return &SQLiteBuilder{db: db}
}

type denseJSON struct {
	Rows int       `json:"rows"`
	Cols int       `json:"cols"`
	Data []float64 `json:"data"`
}

func (b *SQLiteBuilder) SaveAlgorithm(ctx context.Context, alg Persistable, ckpt string) error {
	for _, name := range alg.NetNames() {
		n, ok := alg.Net(name)
		if !ok {
			return fmt.Errorf("save %s: net %q declared but not set", alg.Name(), name)
		}
		blob, err := encodeParams(n.Params())
		if err != nil {
			return fmt.Errorf("save %s/%s: %w", alg.Name(), name, err)
		}
		if err := b.db.SaveCheckpoint(ctx, &store.Checkpoint{
			Algorithm: alg.Name(),
			Net:       name,
			Ckpt:      ckpt,
			Params:    blob,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (b *SQLiteBuilder) LoadAlgorithm(ctx context.Context, alg Persistable) error {
	for _, name := range alg.NetNames() {
		n, ok := alg.Net(name)
		if !ok {
			return fmt.Errorf("load %s: net %q declared but not set", alg.Name(), name)
		}
		c, err := b.db.LatestCheckpoint(ctx, alg.Name(), name)
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("load %s/%s: %w", alg.Name(), name, ErrNoCheckpoint)
		}
		if err != nil {
			return err
		}
		params, err := decodeParams(c.Params)
		if err != nil {
			return fmt.Errorf("load %s/%s: %w", alg.Name(), name, err)
		}
		if err := n.SetParams(params); err != nil {
			return fmt.Errorf("load %s/%s: %w", alg.Name(), name, err)
		}
	}
	return nil
}

func encodeParams(params map[string]*mat.Dense) ([]byte, error) {
	out := make(map[string]denseJSON, len(params))
	for k, m := range params {
		r, c := m.Dims()
		data := make([]float64, 0, r*c)
		for i := 0; i < r; i++ {
			data = append(data, m.RawRowView(i)...)
		}
		out[k] = denseJSON{Rows: r, Cols: c, Data: data}
	}
	return json.Marshal(out)
}

func decodeParams(blob []byte) (map[string]*mat.Dense, error) {
	var in map[string]denseJSON
	if err := json.Unmarshal(blob, &in); err != nil {
		return nil, fmt.Errorf("decode params: %w", err)
	}
	out := make(map[string]*mat.Dense, len(in))
	for k, d := range in {
		if d.Rows*d.Cols != len(d.Data) || d.Rows == 0 || d.Cols == 0 {
			return nil, fmt.Errorf("decode params: %s has %d values for %dx%d", k, len(d.Data), d.Rows, d.Cols)
		}
		out[k] = mat.NewDense(d.Rows, d.Cols, d.Data)
	}
	return out, nil
}
