package core

import (
	"errors"
	"fmt"
	"sort"
)

// ErrOutOfShape is returned when a coordinate falls outside a Data's shape.
var ErrOutOfShape = errors.New("coordinate out of shape")

// Shape is the dense (environment x body) grid of an agent's space.
// Ragged configurations leave some cells of the grid without a body.
type Shape struct {
	Envs   int
	Bodies int // widest environment
}

// ShapeOf returns the smallest shape that contains every coordinate.
func ShapeOf(coords []Coord) Shape {
	var s Shape
	for _, c := range coords {
		if c.E+1 > s.Envs {
			s.Envs = c.E + 1
		}
		if c.B+1 > s.Bodies {
			s.Bodies = c.B + 1
		}
	}
	return s
}

// Contains reports whether c lies inside the grid.
func (s Shape) Contains(c Coord) bool {
	return c.E >= 0 && c.E < s.Envs && c.B >= 0 && c.B < s.Bodies
}

// Size is the number of cells in the grid.
func (s Shape) Size() int {
	return s.Envs * s.Bodies
}

// Data is a sparse container of per-body values addressed by Coord.
// Cells that were never set are absent, which is distinct from holding
// the zero value.
type Data[T any] struct {
	Name   string
	shape  Shape
	values map[Coord]T
}

// NewData allocates an empty container named name over shape.
func NewData[T any](name string, shape Shape) *Data[T] {
	return &Data[T]{
		Name:   name,
		shape:  shape,
		values: make(map[Coord]T),
	}
}

// Shape returns the grid the container was allocated over
func (d *Data[T]) Shape() Shape {
	return d.shape
}

// Set stores v at c.
func (d *Data[T]) Set(c Coord, v T) error {
	if !d.shape.Contains(c) {
		return fmt.Errorf("%s %v in %dx%d: %w", d.Name, c, d.shape.Envs, d.shape.Bodies, ErrOutOfShape)
	}
	d.values[c] = v
	return nil
}

// Get returns the value at c and whether one was set.
func (d *Data[T]) Get(c Coord) (T, bool) {
	v, ok := d.values[c]
	return v, ok
}

// Has reports whether a value was set at c
func (d *Data[T]) Has(c Coord) bool {
	_, ok := d.values[c]
	return ok
}

// Len returns the number of cells holding a value
func (d *Data[T]) Len() int {
	return len(d.values)
}

// Coords returns the set coordinates ordered by environment, then body.
func (d *Data[T]) Coords() []Coord {
	coords := make([]Coord, 0, len(d.values))
	for c := range d.values {
		coords = append(coords, c)
	}
	sort.Slice(coords, func(i, j int) bool {
		if coords[i].E != coords[j].E {
			return coords[i].E < coords[j].E
		}
		return coords[i].B < coords[j].B
	})
	return coords
}

// Range calls fn for each set cell in Coords order until fn returns false.
func (d *Data[T]) Range(fn func(c Coord, v T) bool) {
	for _, c := range d.Coords() {
		if !fn(c, d.values[c]) {
			return
		}
	}
}
