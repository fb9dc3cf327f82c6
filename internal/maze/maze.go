// Package maze generates obstacle layouts for square flow-field maps.
//
// Layouts come from a recursive backtracker on an odd lattice (rooms at odd
// coordinates, walls between them), optionally braided to add loops. The
// result is written straight into a grid.Map.
package maze

import (
	"math/rand"
	"time"

	"flow-field/internal/grid"
)

// Config controls generation.
type Config struct {
	// Braiding: 0.0 (perfect maze, a tree) to 1.0 (every dead end gets a loop).
	Braiding float64 `json:"braiding,omitempty" yaml:"braiding,omitempty" jsonschema:"minimum=0,maximum=1"`
	// Seed for the generator; 0 picks a time-based seed.
	Seed int64 `json:"seed,omitempty" yaml:"seed,omitempty"`
}

const (
	wall    = true
	passage = false
)

// Generate returns a size×size wall layout indexed [x][y].
// Sizes below 3 produce an all-open layout.
func Generate(size int, cfg Config) [][]bool {
	cells := make([][]bool, size)
	for x := range cells {
		cells[x] = make([]bool, size)
	}
	if size < 3 {
		return cells
	}

	for x := range cells {
		for y := range cells[x] {
			cells[x][y] = wall
		}
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	// Even sizes leave the last row and column outside the lattice as walls
	lattice := ensureOdd(size)
	carve(cells, lattice, rng)

	if cfg.Braiding > 0 {
		braid(cells, lattice, cfg.Braiding, rng)
	}
	return cells
}

// Apply generates a layout sized to m, writes it as obstacles and keeps every
// cell in keep open and 8-connected to the maze. keep is usually the map's
// start and goal.
func Apply(m *grid.Map, cfg Config, keep ...grid.Point) {
	cells := Generate(m.Size(), cfg)
	for _, p := range keep {
		if m.InBounds(p.X, p.Y) {
			connect(cells, p)
		}
	}

	for x, row := range cells {
		for y, blocked := range row {
			if blocked {
				m.SetObstacle(x, y)
			} else {
				m.ClearObstacle(x, y)
			}
		}
	}
}

// carve runs the recursive backtracker from room (1,1).
func carve(cells [][]bool, lattice int, rng *rand.Rand) {
	start := grid.Point{X: 1, Y: 1}
	stack := []grid.Point{start}
	cells[start.X][start.Y] = passage

	jumps := []grid.Point{{X: -2}, {X: 2}, {Y: -2}, {Y: 2}}
	candidates := make([]grid.Point, 0, 4)

	for len(stack) > 0 {
		curr := stack[len(stack)-1]
		candidates = candidates[:0]

		for _, d := range jumps {
			nx, ny := curr.X+d.X, curr.Y+d.Y
			if nx > 0 && nx < lattice-1 && ny > 0 && ny < lattice-1 && cells[nx][ny] == wall {
				candidates = append(candidates, d)
			}
		}

		if len(candidates) == 0 {
			stack = stack[:len(stack)-1]
			continue
		}

		d := candidates[rng.Intn(len(candidates))]
		cells[curr.X+d.X/2][curr.Y+d.Y/2] = passage
		next := grid.Point{X: curr.X + d.X, Y: curr.Y + d.Y}
		cells[next.X][next.Y] = passage
		stack = append(stack, next)
	}
}

// braid opens a wall next to dead ends with the given probability, skipping
// walls whose removal would create a 2×2 open plaza.
func braid(cells [][]bool, lattice int, probability float64, rng *rand.Rand) {
	ortho := []grid.Point{{X: -1}, {X: 1}, {Y: -1}, {Y: 1}}
	candidates := make([]grid.Point, 0, 4)

	for x := 1; x < lattice-1; x += 2 {
		for y := 1; y < lattice-1; y += 2 {
			exits := 0
			for _, d := range ortho {
				if cells[x+d.X][y+d.Y] == passage {
					exits++
				}
			}
			if exits != 1 || rng.Float64() >= probability {
				continue
			}

			candidates = candidates[:0]
			for _, d := range ortho {
				wx, wy := x+d.X, y+d.Y
				nx, ny := x+2*d.X, y+2*d.Y
				if nx <= 0 || ny <= 0 || nx >= lattice-1 || ny >= lattice-1 {
					continue
				}
				if cells[wx][wy] == wall && cells[nx][ny] == passage && !opensPlaza(cells, wx, wy) {
					candidates = append(candidates, grid.Point{X: wx, Y: wy})
				}
			}

			if len(candidates) > 0 {
				c := candidates[rng.Intn(len(candidates))]
				cells[c.X][c.Y] = passage
			}
		}
	}
}

// opensPlaza reports whether opening (x, y) completes a 2×2 block of passages.
func opensPlaza(cells [][]bool, x, y int) bool {
	open := func(tx, ty int) bool {
		if tx < 0 || ty < 0 || tx >= len(cells) || ty >= len(cells) {
			return false
		}
		return cells[tx][ty] == passage
	}
	for _, q := range [][2]int{{-1, -1}, {-1, 1}, {1, -1}, {1, 1}} {
		if open(x+q[0], y) && open(x, y+q[1]) && open(x+q[0], y+q[1]) {
			return true
		}
	}
	return false
}

// connect opens p and, if it is walled in, carves toward the centre until the
// corridor touches a cell that was already open.
func connect(cells [][]bool, p grid.Point) {
	centre := len(cells) / 2
	x, y := p.X, p.Y
	prevX, prevY := -1, -1

	for {
		touches := hasOpenNeighbour(cells, x, y, prevX, prevY)
		cells[x][y] = passage
		if touches {
			return
		}
		sx, sy := sign(centre-x), sign(centre-y)
		if sx == 0 && sy == 0 {
			return
		}
		prevX, prevY = x, y
		x += sx
		y += sy
	}
}

// hasOpenNeighbour reports an open 8-neighbour of (x, y), ignoring (skipX, skipY).
func hasOpenNeighbour(cells [][]bool, x, y, skipX, skipY int) bool {
	n := len(cells)
	for dx := -1; dx <= 1; dx++ {
		for dy := -1; dy <= 1; dy++ {
			nx, ny := x+dx, y+dy
			if (dx == 0 && dy == 0) || (nx == skipX && ny == skipY) {
				continue
			}
			if nx >= 0 && ny >= 0 && nx < n && ny < n && cells[nx][ny] == passage {
				return true
			}
		}
	}
	return false
}

func sign(v int) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

func ensureOdd(n int) int {
	if n%2 == 0 {
		return n - 1
	}
	return n
}
