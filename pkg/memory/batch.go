package memory

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/boristopalov/rlab/pkg/core"
)

// Batch field names.
const (
	States     = "states"
	Actions    = "actions"
	Rewards    = "rewards"
	NextStates = "next_states"
	Dones      = "dones"
)

var fieldNames = []string{States, Actions, Rewards, NextStates, Dones}

// Batch is a set of transitions laid out column-wise: one row per
// transition in every field. Episodic batches also record the length of
// each episode in row order.
type Batch struct {
	Fields   map[string][][]float64
	Episodes []int
}

// NewBatch returns an empty batch with every field allocated
func NewBatch() Batch {
	b := Batch{Fields: make(map[string][][]float64, len(fieldNames))}
	for _, name := range fieldNames {
		b.Fields[name] = nil
	}
	return b
}

func (b *Batch) add(t core.Transition) {
	done := 0.0
	if t.Done {
		done = 1
	}
	b.Fields[States] = append(b.Fields[States], append([]float64(nil), t.State...))
	b.Fields[Actions] = append(b.Fields[Actions], []float64{float64(t.Action)})
	b.Fields[Rewards] = append(b.Fields[Rewards], []float64{t.Reward})
	b.Fields[NextStates] = append(b.Fields[NextStates], append([]float64(nil), t.NextState...))
	b.Fields[Dones] = append(b.Fields[Dones], []float64{done})
}

// Len is the number of transitions in the batch
func (b Batch) Len() int {
	return len(b.Fields[States])
}

// Concat joins batches in argument order, keeping each batch's rows in
// their original order.
func Concat(batches ...Batch) Batch {
	out := NewBatch()
	for _, b := range batches {
		for name, rows := range b.Fields {
			out.Fields[name] = append(out.Fields[name], rows...)
		}
		out.Episodes = append(out.Episodes, b.Episodes...)
	}
	return out
}

// TensorBatch is a Batch converted to dense matrices for a net device.
type TensorBatch struct {
	Device   string
	Fields   map[string]*mat.Dense
	Episodes []int // only kept for episodic memories
}

// Len is the number of rows in the batch
func (t TensorBatch) Len() int {
	states, ok := t.Fields[States]
	if !ok || states == nil {
		return 0
	}
	r, _ := states.Dims()
	return r
}

// ToTensor converts b into one matrix per field. Empty fields are left
// nil since gonum has no zero-row matrices.
func ToTensor(b Batch, device string, episodic bool) (TensorBatch, error) {
	out := TensorBatch{
		Device: device,
		Fields: make(map[string]*mat.Dense, len(b.Fields)),
	}
	for name, rows := range b.Fields {
		if len(rows) == 0 {
			out.Fields[name] = nil
			continue
		}
		cols := len(rows[0])
		if cols == 0 {
			return TensorBatch{}, fmt.Errorf("field %s: empty row", name)
		}
		data := make([]float64, 0, len(rows)*cols)
		for i, row := range rows {
			if len(row) != cols {
				return TensorBatch{}, fmt.Errorf("field %s: row %d has %d columns, want %d", name, i, len(row), cols)
			}
			data = append(data, row...)
		}
		out.Fields[name] = mat.NewDense(len(rows), cols, data)
	}
	if episodic {
		out.Episodes = append([]int(nil), b.Episodes...)
	}
	return out, nil
}
