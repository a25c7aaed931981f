package net

import (
	"context"
	"errors"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/boristopalov/rlab/internal/store"
)

func testMLP(t *testing.T, seed int) *MLP {
	t.Helper()
	m, err := NewMLP(map[string]any{"hid_layers": []any{4}, "seed": seed}, 3, 2, "cpu")
	if err != nil {
		t.Fatalf("NewMLP: %v", err)
	}
	return m
}

func TestMLPForwardShape(t *testing.T) {
	m := testMLP(t, 1)
	x := mat.NewDense(5, 3, nil)
	out := m.Forward(x)
	r, c := out.Dims()
	if r != 5 || c != 2 {
		t.Errorf("Forward dims = %dx%d, want 5x2", r, c)
	}
	if m.Device() != "cpu" {
		t.Errorf("Device = %q", m.Device())
	}
}

func TestMLPSetParams(t *testing.T) {
	a, b := testMLP(t, 1), testMLP(t, 2)
	x := mat.NewDense(1, 3, []float64{0.5, -1, 2})
	if mat.Equal(a.Forward(x), b.Forward(x)) {
		t.Fatal("differently seeded nets should differ")
	}
	if err := b.SetParams(a.Params()); err != nil {
		t.Fatalf("SetParams: %v", err)
	}
	if !mat.Equal(a.Forward(x), b.Forward(x)) {
		t.Error("nets should agree after copying params")
	}

	bad := a.Params()
	bad["w0"] = mat.NewDense(1, 1, nil)
	if err := b.SetParams(bad); err == nil {
		t.Error("expected shape mismatch error")
	}
}

func TestNewMLPSpecError(t *testing.T) {
	if _, err := NewMLP(map[string]any{}, 3, 2, "cpu"); err == nil {
		t.Error("expected error for missing hid_layers")
	}
}

type fakeAlgorithm struct {
	name string
	nets map[string]Net
}

func (f *fakeAlgorithm) Name() string { return f.name }
func (f *fakeAlgorithm) NetNames() []string {
	names := make([]string, 0, len(f.nets))
	for n := range f.nets {
		names = append(names, n)
	}
	return names
}
func (f *fakeAlgorithm) Net(name string) (Net, bool) {
	n, ok := f.nets[name]
	return n, ok
}

func TestSQLiteBuilderRoundTrip(t *testing.T) {
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()
	builder := NewSQLiteBuilder(db)
	ctx := context.Background()

	saved := testMLP(t, 1)
	alg := &fakeAlgorithm{name: "Reinforce", nets: map[string]Net{"net": saved}}
	if err := builder.SaveAlgorithm(ctx, alg, "c1"); err != nil {
		t.Fatalf("SaveAlgorithm: %v", err)
	}

	restored := testMLP(t, 2)
	alg.nets["net"] = restored
	if err := builder.LoadAlgorithm(ctx, alg); err != nil {
		t.Fatalf("LoadAlgorithm: %v", err)
	}

	x := mat.NewDense(1, 3, []float64{1, 2, 3})
	if !mat.Equal(saved.Forward(x), restored.Forward(x)) {
		t.Error("restored net should reproduce the saved outputs")
	}
}

func TestSQLiteBuilderNoCheckpoint(t *testing.T) {
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	alg := &fakeAlgorithm{name: "Fresh", nets: map[string]Net{"net": testMLP(t, 1)}}
	err = NewSQLiteBuilder(db).LoadAlgorithm(context.Background(), alg)
	if !errors.Is(err, ErrNoCheckpoint) {
		t.Errorf("err = %v, want ErrNoCheckpoint", err)
	}
}

func TestRegistry(t *testing.T) {
	var nilReg *Registry
	if _, ok := nilReg.Get("net"); ok {
		t.Error("nil registry should hold nothing")
	}

	r := NewRegistry()
	r.Add("critic", testMLP(t, 1))
	r.Add("actor", testMLP(t, 2))
	names := r.Names()
	if len(names) != 2 || names[0] != "actor" {
		t.Errorf("Names = %v, want sorted [actor critic]", names)
	}
}
