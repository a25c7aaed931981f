package core

import (
	"errors"
	"testing"
)

func TestShapeOf(t *testing.T) {
	shape := ShapeOf([]Coord{{0, 0}, {0, 1}, {1, 0}})
	if shape.Envs != 2 || shape.Bodies != 2 {
		t.Fatalf("ShapeOf = %+v, want 2x2", shape)
	}
	if shape.Size() != 4 {
		t.Errorf("Size = %d, want 4", shape.Size())
	}
	if !shape.Contains(Coord{1, 1}) {
		t.Error("ragged cell (1,1) should be inside the grid")
	}
	if shape.Contains(Coord{2, 0}) {
		t.Error("(2,0) should be outside the grid")
	}
}

func TestDataAbsentIsNotZero(t *testing.T) {
	d := NewData[float64]("loss", Shape{Envs: 1, Bodies: 2})
	if err := d.Set(Coord{0, 0}, 0); err != nil {
		t.Fatalf("Set: %v", err)
	}

	if v, ok := d.Get(Coord{0, 0}); !ok || v != 0 {
		t.Errorf("Get(0,0) = %v, %v; want 0, true", v, ok)
	}
	if _, ok := d.Get(Coord{0, 1}); ok {
		t.Error("Get(0,1) should report absence")
	}
	if d.Len() != 1 {
		t.Errorf("Len = %d, want 1", d.Len())
	}
}

func TestDataSetOutOfShape(t *testing.T) {
	d := NewData[int]("action", Shape{Envs: 1, Bodies: 1})
	err := d.Set(Coord{0, 3}, 1)
	if !errors.Is(err, ErrOutOfShape) {
		t.Fatalf("Set out of shape: err = %v, want ErrOutOfShape", err)
	}
}

func TestDataCoordsOrdered(t *testing.T) {
	d := NewData[string]("x", Shape{Envs: 2, Bodies: 2})
	for _, c := range []Coord{{1, 1}, {0, 1}, {1, 0}, {0, 0}} {
		d.Set(c, c.String())
	}

	want := []Coord{{0, 0}, {0, 1}, {1, 0}, {1, 1}}
	got := d.Coords()
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Coords = %v, want %v", got, want)
		}
	}

	var visited int
	d.Range(func(c Coord, v string) bool {
		visited++
		return c != (Coord{0, 1})
	})
	if visited != 2 {
		t.Errorf("Range visited %d cells, want 2", visited)
	}
}
