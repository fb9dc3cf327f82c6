// Package grid holds the square obstacle map a flow field is generated over.
//
// Coordinates follow the flow-field convention: x is the row (vertical) axis
// and y is the column (horizontal) axis. Cells are stored in one contiguous
// slice indexed x*size+y.
//
// The map never reports errors for coordinates: out-of-range writes are
// ignored and out-of-range reads return the zero value.
package grid

import (
	"errors"
	"fmt"
)

// ErrInvalidSize is returned when a map is constructed with a non-positive size.
var ErrInvalidSize = errors.New("grid: size must be positive")

// Point is a cell coordinate.
type Point struct {
	X int `json:"x" yaml:"x"`
	Y int `json:"y" yaml:"y"`
}

// Map is a square grid of obstacle flags with a start and a goal cell.
//
// Map is not safe for concurrent mutation. Readers may share a map as long
// as no writer runs at the same time.
type Map struct {
	size  int
	cells []bool // true = obstacle
	start Point
	goal  Point
}

// NewMap creates an all-open map of size×size cells with start and goal at (0,0).
func NewMap(size int) (*Map, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}
	return &Map{
		size:  size,
		cells: make([]bool, size*size),
	}, nil
}

// Size returns the edge length of the map.
func (m *Map) Size() int {
	return m.size
}

// InBounds reports whether (x, y) addresses a cell of the map.
func (m *Map) InBounds(x, y int) bool {
	return x >= 0 && y >= 0 && x < m.size && y < m.size
}

func (m *Map) index(x, y int) int {
	return x*m.size + y
}

// SetObstacle marks (x, y) impassable. Out-of-range coordinates are ignored.
func (m *Map) SetObstacle(x, y int) {
	if !m.InBounds(x, y) {
		return
	}
	m.cells[m.index(x, y)] = true
}

// ClearObstacle marks (x, y) open. Out-of-range coordinates are ignored.
func (m *Map) ClearObstacle(x, y int) {
	if !m.InBounds(x, y) {
		return
	}
	m.cells[m.index(x, y)] = false
}

// ToggleObstacle flips the obstacle flag at (x, y) and returns the new value.
// Out-of-range coordinates are ignored and report false.
func (m *Map) ToggleObstacle(x, y int) bool {
	if !m.InBounds(x, y) {
		return false
	}
	i := m.index(x, y)
	m.cells[i] = !m.cells[i]
	return m.cells[i]
}

// IsObstacle reports whether (x, y) is impassable.
// Out-of-range coordinates read as open; callers that traverse the map must
// bounds-check separately.
func (m *Map) IsObstacle(x, y int) bool {
	if !m.InBounds(x, y) {
		return false
	}
	return m.cells[m.index(x, y)]
}

// SetStart records the advisory spawn point. Out-of-range coordinates are ignored.
func (m *Map) SetStart(x, y int) {
	if !m.InBounds(x, y) {
		return
	}
	m.start = Point{X: x, Y: y}
}

// SetGoal records the flood-fill source. Out-of-range coordinates are ignored.
func (m *Map) SetGoal(x, y int) {
	if !m.InBounds(x, y) {
		return
	}
	m.goal = Point{X: x, Y: y}
}

// Start returns the advisory spawn point.
func (m *Map) Start() Point {
	return m.start
}

// Goal returns the flood-fill source.
func (m *Map) Goal() Point {
	return m.goal
}

// Flags classifies (x, y). Out-of-range coordinates return FlagNone.
func (m *Map) Flags(x, y int) Flags {
	if !m.InBounds(x, y) {
		return FlagNone
	}
	var f Flags
	if m.cells[m.index(x, y)] {
		f = f.Set(FlagObstacle)
	}
	if m.start.X == x && m.start.Y == y {
		f = f.Set(FlagStart)
	}
	if m.goal.X == x && m.goal.Y == y {
		f = f.Set(FlagGoal)
	}
	return f
}

// ObstacleCount returns the number of impassable cells.
func (m *Map) ObstacleCount() int {
	n := 0
	for _, blocked := range m.cells {
		if blocked {
			n++
		}
	}
	return n
}

// Obstacles returns the coordinates of all impassable cells in row-major order.
func (m *Map) Obstacles() []Point {
	out := make([]Point, 0, m.ObstacleCount())
	for i, blocked := range m.cells {
		if blocked {
			out = append(out, Point{X: i / m.size, Y: i % m.size})
		}
	}
	return out
}

// Reset clears every obstacle and moves start and goal back to (0,0).
func (m *Map) Reset() {
	for i := range m.cells {
		m.cells[i] = false
	}
	m.start = Point{}
	m.goal = Point{}
}

// Clone returns a deep copy of the map.
func (m *Map) Clone() *Map {
	cells := make([]bool, len(m.cells))
	copy(cells, m.cells)
	return &Map{
		size:  m.size,
		cells: cells,
		start: m.start,
		goal:  m.goal,
	}
}
