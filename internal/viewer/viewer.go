// Package viewer is an interactive terminal view of a flow field.
//
// The field is drawn one glyph per cell with obstacles, start and goal on
// top. Edits made with the cursor regenerate the whole field before the next
// frame. When the map came from a scenario file, saving that file reloads it.
package viewer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	log "github.com/sirupsen/logrus"

	"flow-field/internal/flowfield"
	"flow-field/internal/grid"
	"flow-field/internal/render"
	"flow-field/internal/scenario"
	"flow-field/internal/session"
)

// cellWidth is the number of screen columns per grid cell. Terminal cells
// are roughly twice as tall as wide.
const cellWidth = 2

const sessionID = "viewer"

// ErrNoSource is returned by Reload when the viewer was not opened from a file.
var ErrNoSource = errors.New("viewer: no scenario file")

var (
	styleObstacle = tcell.StyleDefault.Foreground(tcell.ColorGray)
	styleGoal     = tcell.StyleDefault.Foreground(tcell.ColorGreen).Bold(true)
	styleStart    = tcell.StyleDefault.Foreground(tcell.ColorYellow).Bold(true)
	styleUnset    = tcell.StyleDefault.Foreground(tcell.ColorRed)
	stylePath     = tcell.StyleDefault.Foreground(tcell.ColorBlue).Bold(true)
	styleStatus   = tcell.StyleDefault.Reverse(true)
)

// Viewer draws a field on screen and applies key commands to its map.
// It is driven from one goroutine.
type Viewer struct {
	screen tcell.Screen
	field  *session.Session
	source string
	limits scenario.Limits

	cursor  grid.Point
	top     int // first visible row
	left    int // first visible column
	tracing bool
	status  string
	elapsed time.Duration
}

// New shows m, which the viewer takes ownership of.
func New(screen tcell.Screen, m *grid.Map) (*Viewer, error) {
	v := &Viewer{screen: screen}
	if err := v.replace(m); err != nil {
		return nil, err
	}
	v.cursor = m.Start()
	return v, nil
}

// Open loads the scenario at path. Reload and file changes read it again.
func Open(screen tcell.Screen, path string, lim scenario.Limits) (*Viewer, error) {
	v := &Viewer{screen: screen, source: path, limits: lim}
	m, err := v.load()
	if err != nil {
		return nil, err
	}
	if err := v.replace(m); err != nil {
		return nil, err
	}
	v.cursor = m.Start()
	return v, nil
}

func (v *Viewer) load() (*grid.Map, error) {
	sc, err := scenario.Load(v.source)
	if err != nil {
		return nil, err
	}
	if err := sc.Validate(v.limits); err != nil {
		return nil, err
	}
	return sc.Build()
}

func (v *Viewer) replace(m *grid.Map) error {
	s, err := session.New(sessionID, m, v.recordGeneration)
	if err != nil {
		return err
	}
	v.field = s
	v.clampCursor()
	return nil
}

func (v *Viewer) recordGeneration(_ int, elapsed time.Duration, _ int, err error) {
	if err == nil {
		v.elapsed = elapsed
	}
}

// Reload reads the scenario file again. On failure the current field stays
// and the error is shown in the status line.
func (v *Viewer) Reload() error {
	if v.source == "" {
		v.status = "nothing to reload"
		return ErrNoSource
	}
	m, err := v.load()
	if err == nil {
		err = v.replace(m)
	}
	if err != nil {
		log.WithError(err).WithField("path", v.source).Warn("Scenario reload failed")
		v.status = "reload: " + err.Error()
		return err
	}
	log.WithField("path", v.source).Info("Scenario reloaded")
	v.status = "reloaded " + v.source
	return nil
}

// Cursor returns the selected cell.
func (v *Viewer) Cursor() grid.Point {
	return v.cursor
}

// Status returns the message shown in the status line.
func (v *Viewer) Status() string {
	return v.status
}

// Summary describes the field currently shown.
func (v *Viewer) Summary() session.Summary {
	return v.field.Summary()
}

// HandleEvent applies one terminal event. It returns false when the viewer
// should exit.
func (v *Viewer) HandleEvent(ev tcell.Event) bool {
	switch ev := ev.(type) {
	case *tcell.EventKey:
		switch ev.Key() {
		case tcell.KeyEscape, tcell.KeyCtrlC:
			return false
		case tcell.KeyUp:
			v.move(-1, 0)
		case tcell.KeyDown:
			v.move(1, 0)
		case tcell.KeyLeft:
			v.move(0, -1)
		case tcell.KeyRight:
			v.move(0, 1)
		case tcell.KeyRune:
			return v.handleRune(ev.Rune())
		}
	case *tcell.EventResize:
		v.screen.Sync()
	}
	return true
}

func (v *Viewer) handleRune(r rune) bool {
	c := v.cursor
	switch r {
	case 'q':
		return false
	case 'k':
		v.move(-1, 0)
	case 'j':
		v.move(1, 0)
	case 'h':
		v.move(0, -1)
	case 'l':
		v.move(0, 1)
	case ' ':
		v.edit("toggle obstacle", func(m *grid.Map) { m.ToggleObstacle(c.X, c.Y) })
	case 'g':
		v.edit("goal moved", func(m *grid.Map) { m.SetGoal(c.X, c.Y) })
	case 's':
		v.edit("start moved", func(m *grid.Map) { m.SetStart(c.X, c.Y) })
	case 't':
		v.tracing = !v.tracing
	case 'r':
		_ = v.Reload()
	}
	return true
}

func (v *Viewer) move(dx, dy int) {
	v.cursor.X += dx
	v.cursor.Y += dy
	v.clampCursor()
}

func (v *Viewer) clampCursor() {
	n := v.field.Summary().Size
	v.cursor.X = min(max(v.cursor.X, 0), n-1)
	v.cursor.Y = min(max(v.cursor.Y, 0), n-1)
}

// edit applies fn and regenerates. A rejected edit leaves the field as it was.
func (v *Viewer) edit(what string, fn func(m *grid.Map)) {
	_, err := v.field.Update(func(m *grid.Map) error {
		fn(m)
		return nil
	})
	if err != nil {
		v.status = what + " rejected: " + err.Error()
		return
	}
	v.status = what
}

// Draw renders the visible part of the field and the status line.
func (v *Viewer) Draw() {
	v.screen.Clear()
	width, height := v.screen.Size()
	rows := max(height-1, 1)
	cols := max(width/cellWidth, 1)
	v.scrollTo(rows, cols)

	var sum session.Summary
	var cursorDir flowfield.Direction
	_ = v.field.View(func(m *grid.Map, f *flowfield.Field) error {
		var onPath map[grid.Point]bool
		if v.tracing {
			path, _ := f.Trace(v.cursor.X, v.cursor.Y, 0)
			onPath = make(map[grid.Point]bool, len(path))
			for _, p := range path {
				onPath[p] = true
			}
		}

		n := m.Size()
		for x := v.top; x < n && x-v.top < rows; x++ {
			for y := v.left; y < n && y-v.left < cols; y++ {
				r, style := cellContent(m, f, x, y)
				if onPath[grid.Point{X: x, Y: y}] && style == tcell.StyleDefault {
					style = stylePath
				}
				if x == v.cursor.X && y == v.cursor.Y {
					style = style.Reverse(true)
				}
				v.screen.SetContent((y-v.left)*cellWidth, x-v.top, r, nil, style)
			}
		}
		cursorDir = f.Direction(v.cursor.X, v.cursor.Y)
		return nil
	})
	sum = v.field.Summary()

	line := fmt.Sprintf(" (%d,%d) %s  reached %d/%d  %v",
		v.cursor.X, v.cursor.Y, cursorDir.Name(), sum.Reached, sum.Size*sum.Size, v.elapsed.Round(time.Microsecond))
	if v.tracing {
		line += "  trace"
	}
	if v.status != "" {
		line += "  | " + v.status
	}
	v.drawText(0, height-1, width, line, styleStatus)
	v.screen.Show()
}

// scrollTo moves the viewport so the cursor is visible.
func (v *Viewer) scrollTo(rows, cols int) {
	if v.cursor.X < v.top {
		v.top = v.cursor.X
	} else if v.cursor.X >= v.top+rows {
		v.top = v.cursor.X - rows + 1
	}
	if v.cursor.Y < v.left {
		v.left = v.cursor.Y
	} else if v.cursor.Y >= v.left+cols {
		v.left = v.cursor.Y - cols + 1
	}
}

func (v *Viewer) drawText(x, y, width int, text string, style tcell.Style) {
	col := x
	for _, r := range text {
		if col >= width {
			return
		}
		v.screen.SetContent(col, y, r, nil, style)
		col++
	}
	for ; col < width; col++ {
		v.screen.SetContent(col, y, ' ', nil, style)
	}
}

func cellContent(m *grid.Map, f *flowfield.Field, x, y int) (rune, tcell.Style) {
	flags := m.Flags(x, y)
	switch {
	case flags.Has(grid.FlagObstacle):
		return '#', styleObstacle
	case flags.Has(grid.FlagGoal):
		return 'G', styleGoal
	case flags.Has(grid.FlagStart):
		return 'S', styleStart
	}
	d := f.Direction(x, y)
	if d == flowfield.Unset {
		return render.Glyph(d), styleUnset
	}
	return render.Glyph(d), tcell.StyleDefault
}

// Run draws and handles events until the user quits or ctx ends. The caller
// owns the screen and calls Fini afterwards.
func (v *Viewer) Run(ctx context.Context) error {
	events := make(chan tcell.Event, 16)
	quit := make(chan struct{})
	defer close(quit)

	go func() {
		for {
			ev := v.screen.PollEvent()
			if ev == nil {
				return
			}
			select {
			case events <- ev:
			case <-quit:
				return
			}
		}
	}()

	var changes <-chan string
	var watchErrs <-chan error
	if v.source != "" {
		w, err := scenario.Watch(v.source)
		if err != nil {
			log.WithError(err).Warn("Scenario watch disabled")
		} else {
			defer w.Close()
			changes, watchErrs = w.Events, w.Errors
		}
	}

	v.Draw()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-events:
			if !v.HandleEvent(ev) {
				return nil
			}
		case _, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			_ = v.Reload()
		case err, ok := <-watchErrs:
			if !ok {
				watchErrs = nil
				continue
			}
			log.WithError(err).Warn("Scenario watch error")
		}
		v.Draw()
	}
}
