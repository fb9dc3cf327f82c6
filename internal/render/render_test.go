package render

import (
	"bytes"
	"errors"
	"image/color"
	"image/png"
	"testing"

	"flow-field/internal/flowfield"
	"flow-field/internal/grid"
)

func generated(t *testing.T, size int, setup func(m *grid.Map)) (*grid.Map, *flowfield.Field) {
	t.Helper()
	m, err := grid.NewMap(size)
	if err != nil {
		t.Fatalf("NewMap failed: %v", err)
	}
	setup(m)
	f, err := flowfield.New(size)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := f.Generate(m); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	return m, f
}

// TestASCII tests glyph output for a centred goal
func TestASCII(t *testing.T) {
	_, f := generated(t, 3, func(m *grid.Map) { m.SetGoal(1, 1) })

	var buf bytes.Buffer
	if err := ASCII(&buf, f); err != nil {
		t.Fatalf("ASCII failed: %v", err)
	}

	want := "\\v/\n> <\n/^\\\n"
	if buf.String() != want {
		t.Errorf("Expected %q, got %q", want, buf.String())
	}
}

// TestASCIIUnset tests that unreachable cells print '?'
func TestASCIIUnset(t *testing.T) {
	_, f := generated(t, 3, func(m *grid.Map) {
		m.SetGoal(0, 0)
		for y := 0; y < 3; y++ {
			m.SetObstacle(1, y)
		}
	})

	var buf bytes.Buffer
	if err := ASCII(&buf, f); err != nil {
		t.Fatalf("ASCII failed: %v", err)
	}

	want := " <<\n???\n???\n"
	if buf.String() != want {
		t.Errorf("Expected %q, got %q", want, buf.String())
	}
}

// TestASCIIWithMap tests obstacle, start and goal overlays
func TestASCIIWithMap(t *testing.T) {
	m, f := generated(t, 3, func(m *grid.Map) {
		m.SetGoal(1, 1)
		m.SetStart(2, 2)
		m.SetObstacle(0, 0)
	})

	var buf bytes.Buffer
	if err := ASCIIWithMap(&buf, f, m); err != nil {
		t.Fatalf("ASCIIWithMap failed: %v", err)
	}

	want := "#v/\n>G<\n/^S\n"
	if buf.String() != want {
		t.Errorf("Expected %q, got %q", want, buf.String())
	}
}

// TestGlyphSentinels tests that sentinels never render as arrows
func TestGlyphSentinels(t *testing.T) {
	if Glyph(flowfield.Unset) != '?' || Glyph(flowfield.OutOfRange) != '?' {
		t.Error("Sentinels should render as '?'")
	}
}

// TestPackRGBA tests texel layout and channel contents
func TestPackRGBA(t *testing.T) {
	m, f := generated(t, 3, func(m *grid.Map) {
		m.SetGoal(1, 1)
		m.SetObstacle(2, 0)
	})

	pix, err := PackRGBA(f, m)
	if err != nil {
		t.Fatalf("PackRGBA failed: %v", err)
	}
	if len(pix) != 3*3*TexelBytes {
		t.Fatalf("Expected %d bytes, got %d", 3*3*TexelBytes, len(pix))
	}

	texel := func(x, y int) []byte {
		i := (x*3 + y) * TexelBytes
		return pix[i : i+TexelBytes]
	}

	// (0,1) points down toward the goal
	if got := texel(0, 1); !bytes.Equal(got, []byte{128, 0, 0, 255}) {
		t.Errorf("Texel (0,1): expected [128 0 0 255], got %v", got)
	}
	// Goal
	if got := texel(1, 1); !bytes.Equal(got, []byte{128, 128, 0, 255}) {
		t.Errorf("Texel (1,1): expected [128 128 0 255], got %v", got)
	}
	// Obstacle keeps the unset sentinel and sets B
	u := flowfield.Unset
	if got := texel(2, 0); !bytes.Equal(got, []byte{u.X, u.Y, 1, 255}) {
		t.Errorf("Texel (2,0): expected unset obstacle, got %v", got)
	}
}

// TestTextureImage tests that image coordinates map column=y, row=x
func TestTextureImage(t *testing.T) {
	m, f := generated(t, 4, func(m *grid.Map) { m.SetGoal(3, 0) })

	img, err := Texture(f, m)
	if err != nil {
		t.Fatalf("Texture failed: %v", err)
	}
	if img.Bounds().Dx() != 4 || img.Bounds().Dy() != 4 {
		t.Fatalf("Unexpected bounds %v", img.Bounds())
	}

	c := img.NRGBAAt(0, 3) // column 0, row 3 = goal
	if c.R != 128 || c.G != 128 {
		t.Errorf("Expected goal texel at (col 0,row 3), got %v", c)
	}

	var buf bytes.Buffer
	if err := WriteTexturePNG(&buf, f, m); err != nil {
		t.Fatalf("WriteTexturePNG failed: %v", err)
	}
	decoded, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("PNG decode failed: %v", err)
	}
	r, g, _, _ := decoded.At(0, 3).RGBA()
	if r>>8 != 128 || g>>8 != 128 {
		t.Errorf("PNG lost goal texel: r=%d g=%d", r>>8, g>>8)
	}
}

// TestPlot tests image size and obstacle fill
func TestPlot(t *testing.T) {
	m, f := generated(t, 5, func(m *grid.Map) {
		m.SetGoal(2, 2)
		m.SetObstacle(0, 4)
	})
	path, _ := f.Trace(4, 0, 0)

	img, err := Plot(f, m, PlotOptions{CellSize: 10, Path: path})
	if err != nil {
		t.Fatalf("Plot failed: %v", err)
	}
	if img.Bounds().Dx() != 50 || img.Bounds().Dy() != 50 {
		t.Fatalf("Expected 50x50, got %v", img.Bounds())
	}

	// Obstacle (0,4) occupies pixel columns 40-49, rows 0-9
	got := color.RGBAModel.Convert(img.At(45, 5)).(color.RGBA)
	if got != plotObstacle {
		t.Errorf("Expected obstacle colour at obstacle centre, got %v", got)
	}

	var buf bytes.Buffer
	if err := WritePlotPNG(&buf, f, m, PlotOptions{}); err != nil {
		t.Fatalf("WritePlotPNG failed: %v", err)
	}
	decoded, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("PNG decode failed: %v", err)
	}
	if decoded.Bounds().Dx() != 5*defaultPlotCell {
		t.Errorf("Expected default cell size, got width %d", decoded.Bounds().Dx())
	}
}

// TestSizeMismatch tests that renderers reject mismatched pairs
func TestSizeMismatch(t *testing.T) {
	_, f := generated(t, 3, func(m *grid.Map) {})
	other, _ := grid.NewMap(4)

	if _, err := PackRGBA(f, other); !errors.Is(err, flowfield.ErrSizeMismatch) {
		t.Errorf("PackRGBA: expected ErrSizeMismatch, got %v", err)
	}
	if err := ASCIIWithMap(&bytes.Buffer{}, f, other); !errors.Is(err, flowfield.ErrSizeMismatch) {
		t.Errorf("ASCIIWithMap: expected ErrSizeMismatch, got %v", err)
	}
	if _, err := Plot(f, other, PlotOptions{}); !errors.Is(err, flowfield.ErrSizeMismatch) {
		t.Errorf("Plot: expected ErrSizeMismatch, got %v", err)
	}
	if _, err := Texture(f, nil); !errors.Is(err, flowfield.ErrNilMap) {
		t.Errorf("Texture: expected ErrNilMap, got %v", err)
	}
}
