// Package render turns a generated flow field into formats other tools consume:
// console glyphs, a packed RGBA texture, and an arrow plot.
//
// Every function here reads the field through its public accessors only and
// never mutates it.
package render

import (
	"bufio"
	"fmt"
	"io"

	"flow-field/internal/flowfield"
	"flow-field/internal/grid"
)

// Glyph returns the console character for a direction code.
// Unknown pairs, the sentinels included, render as '?'.
func Glyph(d flowfield.Direction) rune {
	switch d {
	case flowfield.Arrived:
		return ' '
	case flowfield.Up:
		return '^'
	case flowfield.Down:
		return 'v'
	case flowfield.Left:
		return '<'
	case flowfield.Right:
		return '>'
	case flowfield.UpLeft:
		return '\\'
	case flowfield.UpRight:
		return '/'
	case flowfield.DownLeft:
		return '/'
	case flowfield.DownRight:
		return '\\'
	}
	return '?'
}

// ASCII writes one line per row of the field using Glyph.
func ASCII(w io.Writer, f *flowfield.Field) error {
	bw := bufio.NewWriter(w)
	n := f.Size()
	for x := 0; x < n; x++ {
		for y := 0; y < n; y++ {
			bw.WriteRune(Glyph(f.Direction(x, y)))
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

// ASCIIWithMap is ASCII with map overlays: '#' for obstacles, 'S' for the start
// cell and 'G' for the goal.
func ASCIIWithMap(w io.Writer, f *flowfield.Field, m *grid.Map) error {
	if err := checkSizes(f, m); err != nil {
		return err
	}

	bw := bufio.NewWriter(w)
	n := f.Size()
	for x := 0; x < n; x++ {
		for y := 0; y < n; y++ {
			flags := m.Flags(x, y)
			switch {
			case flags.Has(grid.FlagObstacle):
				bw.WriteByte('#')
			case flags.Has(grid.FlagGoal):
				bw.WriteByte('G')
			case flags.Has(grid.FlagStart):
				bw.WriteByte('S')
			default:
				bw.WriteRune(Glyph(f.Direction(x, y)))
			}
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

func checkSizes(f *flowfield.Field, m *grid.Map) error {
	if m == nil {
		return flowfield.ErrNilMap
	}
	if f.Size() != m.Size() {
		return fmt.Errorf("%w: map %d, field %d", flowfield.ErrSizeMismatch, m.Size(), f.Size())
	}
	return nil
}
