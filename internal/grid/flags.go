package grid

// Flags is a small bit set describing what occupies a cell.
type Flags uint8

const (
	FlagNone     Flags = 0
	FlagObstacle Flags = 1 << 0
	FlagStart    Flags = 1 << 1
	FlagGoal     Flags = 1 << 2
)

// Set returns f with every bit of o set.
func (f Flags) Set(o Flags) Flags {
	return f | o
}

// Clear returns f with every bit of o cleared.
func (f Flags) Clear(o Flags) Flags {
	return f &^ o
}

// Has reports whether every bit of o is set in f.
func (f Flags) Has(o Flags) bool {
	return o != FlagNone && f&o == o
}

// Union returns the bits set in either f or o.
func (f Flags) Union(o Flags) Flags {
	return f | o
}

// Intersect returns the bits set in both f and o.
func (f Flags) Intersect(o Flags) Flags {
	return f & o
}

// String lists the set flags, e.g. "obstacle|goal".
func (f Flags) String() string {
	if f == FlagNone {
		return "none"
	}
	s := ""
	for _, n := range []struct {
		flag Flags
		name string
	}{
		{FlagObstacle, "obstacle"},
		{FlagStart, "start"},
		{FlagGoal, "goal"},
	} {
		if f.Has(n.flag) {
			if s != "" {
				s += "|"
			}
			s += n.name
		}
	}
	return s
}
