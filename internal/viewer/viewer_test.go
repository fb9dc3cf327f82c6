package viewer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gdamore/tcell/v2"

	"flow-field/internal/grid"
	"flow-field/internal/scenario"
)

func newScreen(t *testing.T) tcell.SimulationScreen {
	t.Helper()
	screen := tcell.NewSimulationScreen("UTF-8")
	if err := screen.Init(); err != nil {
		t.Fatalf("screen init failed: %v", err)
	}
	screen.SetSize(20, 8)
	t.Cleanup(screen.Fini)
	return screen
}

// smallMap is a 3x3 map with the goal in the centre, start bottom right
// and one obstacle top left.
func smallMap(t *testing.T) *grid.Map {
	t.Helper()
	m, err := grid.NewMap(3)
	if err != nil {
		t.Fatalf("NewMap failed: %v", err)
	}
	m.SetGoal(1, 1)
	m.SetStart(2, 2)
	m.SetObstacle(0, 0)
	return m
}

func key(k tcell.Key) *tcell.EventKey {
	return tcell.NewEventKey(k, 0, tcell.ModNone)
}

func press(r rune) *tcell.EventKey {
	return tcell.NewEventKey(tcell.KeyRune, r, tcell.ModNone)
}

func cellRune(screen tcell.SimulationScreen, col, row int) rune {
	r, _, _, _ := screen.GetContent(col, row)
	return r
}

func statusLine(screen tcell.SimulationScreen) string {
	w, h := screen.Size()
	var b strings.Builder
	for col := 0; col < w; col++ {
		b.WriteRune(cellRune(screen, col, h-1))
	}
	return b.String()
}

func TestDrawShowsField(t *testing.T) {
	screen := newScreen(t)
	v, err := New(screen, smallMap(t))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	v.Draw()

	want := []string{"#v/", ">G<", "/^S"}
	for x, row := range want {
		for y, r := range row {
			if got := cellRune(screen, y*cellWidth, x); got != r {
				t.Errorf("cell (%d,%d): expected %q, got %q", x, y, r, got)
			}
		}
	}

	if status := statusLine(screen); !strings.Contains(status, "(2,2)") {
		t.Errorf("Expected cursor position in status, got %q", status)
	}

	_, _, style, _ := screen.GetContent(2*cellWidth, 2)
	_, _, attrs := style.Decompose()
	if attrs&tcell.AttrReverse == 0 {
		t.Error("Expected cursor cell to be drawn reversed")
	}
}

func TestCursorMovementClamps(t *testing.T) {
	v, err := New(newScreen(t), smallMap(t))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	steps := []struct {
		ev   *tcell.EventKey
		want grid.Point
	}{
		{key(tcell.KeyUp), grid.Point{X: 1, Y: 2}},
		{press('h'), grid.Point{X: 1, Y: 1}},
		{press('k'), grid.Point{X: 0, Y: 1}},
		{press('k'), grid.Point{X: 0, Y: 1}},
		{key(tcell.KeyLeft), grid.Point{X: 0, Y: 0}},
		{key(tcell.KeyLeft), grid.Point{X: 0, Y: 0}},
		{press('j'), grid.Point{X: 1, Y: 0}},
		{press('l'), grid.Point{X: 1, Y: 1}},
		{key(tcell.KeyRight), grid.Point{X: 1, Y: 2}},
		{key(tcell.KeyRight), grid.Point{X: 1, Y: 2}},
		{key(tcell.KeyDown), grid.Point{X: 2, Y: 2}},
		{key(tcell.KeyDown), grid.Point{X: 2, Y: 2}},
	}
	for i, step := range steps {
		if !v.HandleEvent(step.ev) {
			t.Fatalf("step %d: unexpected quit", i)
		}
		if got := v.Cursor(); got != step.want {
			t.Errorf("step %d: expected cursor %+v, got %+v", i, step.want, got)
		}
	}
}

func TestToggleObstacleRegenerates(t *testing.T) {
	v, err := New(newScreen(t), smallMap(t))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	// Cursor to (0,1) beside the existing (0,0) obstacle
	v.HandleEvent(key(tcell.KeyUp))
	v.HandleEvent(key(tcell.KeyUp))
	v.HandleEvent(key(tcell.KeyLeft))
	v.HandleEvent(press(' '))
	if sum := v.Summary(); sum.Obstacles != 2 || sum.Version != 2 {
		t.Errorf("Expected 2 obstacles at v2, got %+v", sum)
	}
	if v.Status() != "toggle obstacle" {
		t.Errorf("Unexpected status %q", v.Status())
	}

	// Toggling again clears it
	v.HandleEvent(press(' '))
	if sum := v.Summary(); sum.Obstacles != 1 || sum.Reached != 8 {
		t.Errorf("Expected obstacle cleared, got %+v", sum)
	}
}

func TestGoalOntoObstacleRejected(t *testing.T) {
	v, err := New(newScreen(t), smallMap(t))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	for i := 0; i < 2; i++ {
		v.HandleEvent(key(tcell.KeyUp))
		v.HandleEvent(key(tcell.KeyLeft))
	}

	v.HandleEvent(press('g'))
	sum := v.Summary()
	if sum.Goal != (grid.Point{X: 1, Y: 1}) || sum.Version != 1 {
		t.Errorf("Expected goal to stay at (1,1) v1, got %+v", sum)
	}
	if !strings.Contains(v.Status(), "rejected") {
		t.Errorf("Expected rejection in status, got %q", v.Status())
	}

	// Goal onto an open cell works
	v.HandleEvent(press('l'))
	v.HandleEvent(press('g'))
	if sum := v.Summary(); sum.Goal != (grid.Point{X: 0, Y: 1}) {
		t.Errorf("Expected goal at (0,1), got %+v", sum.Goal)
	}

	v.HandleEvent(press('j'))
	v.HandleEvent(press('s'))
	if sum := v.Summary(); sum.Start != (grid.Point{X: 1, Y: 1}) {
		t.Errorf("Expected start at (1,1), got %+v", sum.Start)
	}
}

func TestTraceHighlightsPath(t *testing.T) {
	screen := newScreen(t)
	m, _ := grid.NewMap(4)
	m.SetGoal(3, 3)
	v, err := New(screen, m)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	v.HandleEvent(press('t'))
	v.Draw()

	// From (0,0) the path runs down the diagonal
	for i := 1; i < 3; i++ {
		_, _, style, _ := screen.GetContent(i*cellWidth, i)
		if style != stylePath {
			t.Errorf("Expected (%d,%d) highlighted", i, i)
		}
	}
	_, _, style, _ := screen.GetContent(1*cellWidth, 0)
	if style == stylePath {
		t.Error("Expected (0,1) not highlighted")
	}
	if !strings.Contains(statusLine(screen), "trace") {
		t.Error("Expected trace marker in status line")
	}
}

func TestViewportFollowsCursor(t *testing.T) {
	screen := newScreen(t)
	m, _ := grid.NewMap(30)
	v, err := New(screen, m)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	for i := 0; i < 29; i++ {
		v.HandleEvent(key(tcell.KeyDown))
		v.HandleEvent(key(tcell.KeyRight))
	}
	v.Draw()

	// 20x8 screen: 7 field rows, 10 field columns
	if v.top != 23 || v.left != 20 {
		t.Errorf("Expected viewport at (23,20), got (%d,%d)", v.top, v.left)
	}
	_, _, style, _ := screen.GetContent(9*cellWidth, 6)
	if _, _, attrs := style.Decompose(); attrs&tcell.AttrReverse == 0 {
		t.Error("Expected cursor in bottom right of viewport")
	}
}

func TestQuitKeys(t *testing.T) {
	v, err := New(newScreen(t), smallMap(t))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	for _, ev := range []*tcell.EventKey{press('q'), key(tcell.KeyEscape), key(tcell.KeyCtrlC)} {
		if v.HandleEvent(ev) {
			t.Errorf("Expected %v to quit", ev.Name())
		}
	}
}

func writeScenario(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write scenario failed: %v", err)
	}
}

func TestOpenAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "level.yaml")
	writeScenario(t, path, "size: 4\ngoal: {x: 3, y: 3}\n")

	v, err := Open(newScreen(t), path, scenario.Limits{MaxSize: 16})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if sum := v.Summary(); sum.Size != 4 {
		t.Fatalf("Expected size 4, got %d", sum.Size)
	}

	writeScenario(t, path, "size: 6\nlayout: ['..#', 'S.G']\n")
	if err := v.Reload(); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	sum := v.Summary()
	if sum.Size != 6 || sum.Goal != (grid.Point{X: 1, Y: 2}) || sum.Obstacles != 1 {
		t.Errorf("Unexpected reloaded field: %+v", sum)
	}

	// A broken file keeps the current field
	writeScenario(t, path, "size: 99\n")
	if err := v.Reload(); !errors.Is(err, scenario.ErrInvalid) {
		t.Errorf("Expected ErrInvalid, got %v", err)
	}
	if v.Summary().Size != 6 {
		t.Error("Expected previous field to remain after failed reload")
	}
	if !strings.HasPrefix(v.Status(), "reload:") {
		t.Errorf("Expected reload error in status, got %q", v.Status())
	}
}

func TestReloadWithoutSource(t *testing.T) {
	v, err := New(newScreen(t), smallMap(t))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := v.Reload(); !errors.Is(err, ErrNoSource) {
		t.Errorf("Expected ErrNoSource, got %v", err)
	}
	if v.HandleEvent(press('r')) != true {
		t.Error("Expected r to keep the viewer running")
	}
}

func TestRunQuitsOnKey(t *testing.T) {
	screen := newScreen(t)
	v, err := New(screen, smallMap(t))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- v.Run(context.Background())
	}()
	screen.InjectKey(tcell.KeyRune, 'q', tcell.ModNone)

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected nil on quit, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after q")
	}
}

func TestRunStopsOnContext(t *testing.T) {
	v, err := New(newScreen(t), smallMap(t))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := v.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}
