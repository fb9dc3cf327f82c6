// Package scenario reads and writes flow-field scenario files.
//
// A scenario describes a map: its size, start and goal, and a stack of
// obstacle layers. Files are YAML; JSON documents are accepted too. Layers
// apply in a fixed order (maze, image, layout, rects, obstacles, clear) so a
// later layer can punch holes in an earlier one. Coordinates outside the map
// are ignored, the same as direct grid.Map writes.
package scenario

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"flow-field/internal/grid"
	"flow-field/internal/maze"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("scenario: invalid")

// Layout cell markers.
const (
	LayoutOpen     = '.'
	LayoutObstacle = '#'
	LayoutStart    = 'S'
	LayoutGoal     = 'G'
)

// Rect is a filled block of obstacles. X and Y name the first cell; H extends
// along x (rows) and W along y (columns).
type Rect struct {
	X int `json:"x" yaml:"x"`
	Y int `json:"y" yaml:"y"`
	W int `json:"w" yaml:"w" jsonschema:"minimum=0"`
	H int `json:"h" yaml:"h" jsonschema:"minimum=0"`
}

// Scenario is the on-disk description of a map.
type Scenario struct {
	Size      int          `json:"size" yaml:"size" jsonschema:"required,minimum=1,description=Edge length of the square grid"`
	Start     *grid.Point  `json:"start,omitempty" yaml:"start,omitempty" jsonschema:"description=Start cell; defaults to the origin"`
	Goal      *grid.Point  `json:"goal,omitempty" yaml:"goal,omitempty" jsonschema:"description=Goal cell; defaults to the origin"`
	Obstacles []grid.Point `json:"obstacles,omitempty" yaml:"obstacles,omitempty"`
	Clear     []grid.Point `json:"clear,omitempty" yaml:"clear,omitempty" jsonschema:"description=Cells forced open after every other layer"`
	Rects     []Rect       `json:"rects,omitempty" yaml:"rects,omitempty"`
	Layout    []string     `json:"layout,omitempty" yaml:"layout,omitempty" jsonschema:"description=One string per row: '.' open '#' obstacle 'S' start 'G' goal"`
	Maze      *maze.Config `json:"maze,omitempty" yaml:"maze,omitempty"`
	Image     string       `json:"image,omitempty" yaml:"image,omitempty" jsonschema:"description=Obstacle mask image; dark pixels become obstacles"`

	// baseDir resolves Image for scenarios loaded from disk.
	baseDir string
}

// Limits bounds what Validate accepts.
type Limits struct {
	// MaxSize caps Size; 0 means no cap.
	MaxSize int
	// AllowImage permits the image layer. Scenarios from untrusted sources
	// should leave it off since the path is read from the local disk.
	AllowImage bool
}

// Parse decodes a YAML or JSON scenario. Unknown fields are rejected.
func Parse(data []byte) (*Scenario, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrInvalid)
	}

	var s Scenario
	if trimmed[0] == '{' {
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&s); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		return &s, nil
	}

	dec := yaml.NewDecoder(bytes.NewReader(trimmed))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty document", ErrInvalid)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return &s, nil
}

// Load reads a scenario file. A relative Image path resolves against the
// file's directory.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	s.baseDir = filepath.Dir(path)
	return s, nil
}

// Validate checks the scenario against lim. Errors wrap ErrInvalid and name
// the offending field.
func (s *Scenario) Validate(lim Limits) error {
	if s.Size <= 0 {
		return fmt.Errorf("%w: size: must be positive, got %d", ErrInvalid, s.Size)
	}
	if lim.MaxSize > 0 && s.Size > lim.MaxSize {
		return fmt.Errorf("%w: size: %d exceeds limit %d", ErrInvalid, s.Size, lim.MaxSize)
	}
	for i, r := range s.Rects {
		if r.W < 0 || r.H < 0 {
			return fmt.Errorf("%w: rects[%d]: negative extent %dx%d", ErrInvalid, i, r.W, r.H)
		}
	}
	for x, row := range s.Layout {
		for y, c := range row {
			switch c {
			case LayoutOpen, LayoutObstacle, LayoutStart, LayoutGoal, ' ':
			default:
				return fmt.Errorf("%w: layout[%d][%d]: unknown marker %q", ErrInvalid, x, y, c)
			}
		}
	}
	if s.Maze != nil && (s.Maze.Braiding < 0 || s.Maze.Braiding > 1) {
		return fmt.Errorf("%w: maze.braiding: %v outside [0,1]", ErrInvalid, s.Maze.Braiding)
	}
	if s.Image != "" && !lim.AllowImage {
		return fmt.Errorf("%w: image: not allowed here", ErrInvalid)
	}
	return nil
}

// Build creates the map the scenario describes. Validate should be called
// first; Build only fails on a bad size or an unreadable image.
func (s *Scenario) Build() (*grid.Map, error) {
	m, err := grid.NewMap(s.Size)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	start, goal := s.endpoints()
	m.SetStart(start.X, start.Y)
	m.SetGoal(goal.X, goal.Y)

	if s.Maze != nil {
		maze.Apply(m, *s.Maze, m.Start(), m.Goal())
	}

	if s.Image != "" {
		mask, err := loadMask(s.imagePath(), s.Size)
		if err != nil {
			return nil, err
		}
		for x, row := range mask {
			for y, blocked := range row {
				if blocked {
					m.SetObstacle(x, y)
				}
			}
		}
	}

	for x, row := range s.Layout {
		for y, c := range []rune(row) {
			switch c {
			case LayoutObstacle:
				m.SetObstacle(x, y)
			case LayoutOpen, LayoutStart, LayoutGoal:
				m.ClearObstacle(x, y)
			}
		}
	}

	for _, r := range s.Rects {
		x0, x1 := clampSpan(r.X, r.H, s.Size)
		y0, y1 := clampSpan(r.Y, r.W, s.Size)
		for x := x0; x < x1; x++ {
			for y := y0; y < y1; y++ {
				m.SetObstacle(x, y)
			}
		}
	}

	for _, p := range s.Obstacles {
		m.SetObstacle(p.X, p.Y)
	}
	for _, p := range s.Clear {
		m.ClearObstacle(p.X, p.Y)
	}
	return m, nil
}

// clampSpan returns the half-open range [lo, hi) of [start, start+extent)
// that lies inside [0, size). It never computes start+extent when that sum
// could overflow.
func clampSpan(start, extent, size int) (lo, hi int) {
	if extent <= 0 || start >= size {
		return 0, 0
	}
	if start >= 0 {
		if extent > size-start {
			return start, size
		}
		return start, start + extent
	}
	end := start + extent
	if end <= 0 {
		return 0, 0
	}
	return 0, min(end, size)
}

// endpoints resolves start and goal: layout markers first, explicit fields win.
func (s *Scenario) endpoints() (start, goal grid.Point) {
	for x, row := range s.Layout {
		for y, c := range []rune(row) {
			switch c {
			case LayoutStart:
				start = grid.Point{X: x, Y: y}
			case LayoutGoal:
				goal = grid.Point{X: x, Y: y}
			}
		}
	}
	if s.Start != nil {
		start = *s.Start
	}
	if s.Goal != nil {
		goal = *s.Goal
	}
	return start, goal
}

func (s *Scenario) imagePath() string {
	if filepath.IsAbs(s.Image) || s.baseDir == "" {
		return s.Image
	}
	return filepath.Join(s.baseDir, s.Image)
}

// FromMap captures m as a flat scenario: size, start, goal and every obstacle.
func FromMap(m *grid.Map) *Scenario {
	start, goal := m.Start(), m.Goal()
	return &Scenario{
		Size:      m.Size(),
		Start:     &start,
		Goal:      &goal,
		Obstacles: m.Obstacles(),
	}
}

// Encode writes the scenario as YAML.
func (s *Scenario) Encode(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("encode scenario: %w", err)
	}
	return enc.Close()
}

// Save writes the scenario to path through a temp file and a rename, so a
// watcher never sees a half-written file.
func (s *Scenario) Save(path string) error {
	var buf bytes.Buffer
	if err := s.Encode(&buf); err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write scenario: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace scenario: %w", err)
	}
	return nil
}
