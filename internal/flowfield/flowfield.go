// Package flowfield computes per-cell navigation directions toward a single goal.
//
// Instead of pathfinding for each agent, one breadth-first flood fill from the
// goal labels every reachable cell with the direction of a neighbour that is
// one hop closer. Any number of agents then read their next step in O(1).
//
// Diagonal and orthogonal steps cost the same, so following the field from a
// cell reaches the goal in exactly its 8-connected hop distance.
//
// A Field is not safe for concurrent use. Callers that share one must
// serialize Generate against every other call, and must not mutate the map
// while Generate runs.
package flowfield

import (
	"errors"
	"fmt"

	"flow-field/internal/grid"
)

var (
	// ErrInvalidSize is returned when a field is constructed with a non-positive size.
	ErrInvalidSize = errors.New("flowfield: size must be positive")
	// ErrSizeMismatch is returned when the map and field disagree on size.
	ErrSizeMismatch = errors.New("flowfield: map size does not match field size")
	// ErrNilMap is returned when Generate is given no map.
	ErrNilMap = errors.New("flowfield: nil map")
	// ErrGoalBlocked is returned when the goal cell is an obstacle.
	ErrGoalBlocked = errors.New("flowfield: goal cell is an obstacle")
)

// neighbours in expansion order: up, down, left, right, then the diagonals.
var neighbours = [8]step{
	{-1, 0}, {1, 0}, {0, -1}, {0, 1},
	{-1, -1}, {-1, 1}, {1, -1}, {1, 1},
}

// Field stores one encoded direction per cell of a square grid.
type Field struct {
	size       int
	directions []Direction // x*size+y
	generated  bool
	reached    int

	// Scratch reused across generations, reset on every call
	visited []bool
	queue   []int
}

// New creates a field of size×size cells, all Unset.
func New(size int) (*Field, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}
	n := size * size
	f := &Field{
		size:       size,
		directions: make([]Direction, n),
		visited:    make([]bool, n),
		queue:      make([]int, 0, n),
	}
	f.reset()
	return f, nil
}

// Size returns the edge length of the field.
func (f *Field) Size() int {
	return f.size
}

// Generated reports whether the last Generate call succeeded.
func (f *Field) Generated() bool {
	return f.generated
}

// Reached returns how many cells hold a real code after the last generation,
// the goal included.
func (f *Field) Reached() int {
	return f.reached
}

func (f *Field) reset() {
	for i := range f.directions {
		f.directions[i] = Unset
	}
	for i := range f.visited {
		f.visited[i] = false
	}
	f.queue = f.queue[:0]
	f.generated = false
	f.reached = 0
}

// Generate recomputes the whole field from m's goal outward.
//
// The field is left untouched when m is nil or has a different size. When
// the goal is an obstacle every cell is reset to Unset and ErrGoalBlocked is
// returned.
//
// Time complexity: O(size²)
func (f *Field) Generate(m *grid.Map) error {
	if m == nil {
		return ErrNilMap
	}
	if m.Size() != f.size {
		return fmt.Errorf("%w: map %d, field %d", ErrSizeMismatch, m.Size(), f.size)
	}

	f.reset()

	goal := m.Goal()
	if m.IsObstacle(goal.X, goal.Y) {
		return ErrGoalBlocked
	}

	n := f.size
	goalIdx := goal.X*n + goal.Y
	f.visited[goalIdx] = true
	f.directions[goalIdx] = Arrived
	f.queue = append(f.queue, goalIdx)
	f.reached = 1

	head := 0
	for head < len(f.queue) {
		current := f.queue[head]
		head++

		cx := current / n
		cy := current % n

		for _, off := range neighbours {
			nx := cx + off.dx
			ny := cy + off.dy

			if nx < 0 || ny < 0 || nx >= n || ny >= n {
				continue
			}
			if m.IsObstacle(nx, ny) {
				continue
			}

			nIdx := nx*n + ny
			if f.visited[nIdx] {
				continue
			}

			f.visited[nIdx] = true
			// Points from the new cell back to the one it was reached from
			f.directions[nIdx] = Encode(cx-nx, cy-ny)
			f.queue = append(f.queue, nIdx)
			f.reached++
		}
	}

	f.generated = true
	return nil
}

// Direction returns the code stored at (x, y), or OutOfRange outside the grid.
// The result is a copy; mutating it never affects the field.
func (f *Field) Direction(x, y int) Direction {
	if x < 0 || y < 0 || x >= f.size || y >= f.size {
		return OutOfRange
	}
	return f.directions[x*f.size+y]
}

// Each calls fn for every cell in row-major order (x outer, y inner).
func (f *Field) Each(fn func(x, y int, d Direction)) {
	for x := 0; x < f.size; x++ {
		row := f.directions[x*f.size : (x+1)*f.size]
		for y, d := range row {
			fn(x, y, d)
		}
	}
}

// Snapshot returns a copy of the direction grid as rows indexed [x][y].
func (f *Field) Snapshot() [][]Direction {
	rows := make([][]Direction, f.size)
	for x := range rows {
		rows[x] = make([]Direction, f.size)
		copy(rows[x], f.directions[x*f.size:(x+1)*f.size])
	}
	return rows
}

// Trace follows the field from (x, y) and returns the visited cells, the
// starting cell first. ok is true when the walk ends on an Arrived cell.
// The walk stops early on an Unset or out-of-range cell, or after limit
// steps; limit <= 0 means size².
func (f *Field) Trace(x, y, limit int) (path []grid.Point, ok bool) {
	if limit <= 0 {
		limit = f.size * f.size
	}

	for steps := 0; ; steps++ {
		d := f.Direction(x, y)
		if d == OutOfRange {
			return path, false
		}
		path = append(path, grid.Point{X: x, Y: y})

		if d == Arrived {
			return path, true
		}
		dx, dy, valid := Decode(d)
		if !valid || steps >= limit {
			return path, false
		}
		x += dx
		y += dy
	}
}
