package flowfield

import "strconv"

// Axis levels of the direction encoding.
const (
	axisNeg     uint8 = 0
	axisNeutral uint8 = 128
	axisPos     uint8 = 255
)

// Direction is a two-component encoded vector. Each real component is one of
// 0 (toward the negative axis), 128 (no movement) or 255 (toward the positive
// axis). X carries the horizontal component and Y the vertical one, which is
// the layout texture consumers expect in their R and G channels.
type Direction struct {
	X, Y uint8
}

// The nine real codes.
var (
	Arrived   = Direction{axisNeutral, axisNeutral}
	Up        = Direction{axisNeutral, axisPos}
	Down      = Direction{axisNeutral, axisNeg}
	Left      = Direction{axisNeg, axisNeutral}
	Right     = Direction{axisPos, axisNeutral}
	UpLeft    = Direction{axisNeg, axisPos}
	UpRight   = Direction{axisPos, axisPos}
	DownLeft  = Direction{axisNeg, axisNeg}
	DownRight = Direction{axisPos, axisNeg}
)

// Sentinels. Both sit outside the {0,128,255} domain so they never collide
// with a real code.
var (
	// Unset marks a cell the flood fill never reached (obstacle or isolated).
	Unset = Direction{64, 64}
	// OutOfRange is returned for queries outside the grid.
	OutOfRange = Direction{192, 192}
)

// step is a grid displacement toward the goal: dx moves along rows, dy along columns.
type step struct {
	dx, dy int
}

// codes maps every non-zero step to its encoding.
var codes = map[step]Direction{
	{-1, 0}:  Up,
	{1, 0}:   Down,
	{0, -1}:  Left,
	{0, 1}:   Right,
	{-1, -1}: UpLeft,
	{-1, 1}:  UpRight,
	{1, -1}:  DownLeft,
	{1, 1}:   DownRight,
}

// Encode returns the code for the displacement (dx, dy), measured from the
// cell being labelled to the neighbour it was reached from. Anything other
// than a unit 8-connected step, including (0,0), encodes as Arrived.
func Encode(dx, dy int) Direction {
	if d, ok := codes[step{dx, dy}]; ok {
		return d
	}
	return Arrived
}

// Decode returns the grid step a code points along. ok is false for the
// sentinels and for any pair outside the nine real codes. Arrived decodes to
// (0,0) with ok true.
func Decode(d Direction) (dx, dy int, ok bool) {
	if d == Arrived {
		return 0, 0, true
	}
	for s, code := range codes {
		if code == d {
			return s.dx, s.dy, true
		}
	}
	return 0, 0, false
}

// IsValid reports whether d is one of the nine real codes.
func (d Direction) IsValid() bool {
	_, _, ok := Decode(d)
	return ok
}

// IsUnset reports whether d is the unreachable sentinel.
func (d Direction) IsUnset() bool {
	return d == Unset
}

// Name returns a lower-case label for d.
func (d Direction) Name() string {
	switch d {
	case Arrived:
		return "arrived"
	case Up:
		return "up"
	case Down:
		return "down"
	case Left:
		return "left"
	case Right:
		return "right"
	case UpLeft:
		return "up-left"
	case UpRight:
		return "up-right"
	case DownLeft:
		return "down-left"
	case DownRight:
		return "down-right"
	case Unset:
		return "unset"
	case OutOfRange:
		return "out-of-range"
	}
	return "unknown"
}

// String formats d as "(x,y)".
func (d Direction) String() string {
	return "(" + strconv.Itoa(int(d.X)) + "," + strconv.Itoa(int(d.Y)) + ")"
}

// MarshalJSON encodes d as a two-element array.
func (d Direction) MarshalJSON() ([]byte, error) {
	return []byte("[" + strconv.Itoa(int(d.X)) + "," + strconv.Itoa(int(d.Y)) + "]"), nil
}
