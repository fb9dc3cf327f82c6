package grid

import "testing"

func TestFlagsOperations(t *testing.T) {
	f := FlagNone.Set(FlagObstacle).Set(FlagGoal)

	if !f.Has(FlagObstacle) || !f.Has(FlagGoal) {
		t.Errorf("Expected obstacle|goal, got %v", f)
	}
	if f.Has(FlagStart) {
		t.Error("Start should not be set")
	}
	if f.Has(FlagNone) {
		t.Error("Has(FlagNone) should be false")
	}
	if !f.Has(FlagObstacle.Union(FlagGoal)) {
		t.Error("Has should accept a union")
	}

	if got := f.Clear(FlagObstacle); got != FlagGoal {
		t.Errorf("Expected goal after clear, got %v", got)
	}
	if got := f.Intersect(FlagGoal.Union(FlagStart)); got != FlagGoal {
		t.Errorf("Expected goal from intersect, got %v", got)
	}
	if got := f.String(); got != "obstacle|goal" {
		t.Errorf("Expected 'obstacle|goal', got '%s'", got)
	}
	if got := FlagNone.String(); got != "none" {
		t.Errorf("Expected 'none', got '%s'", got)
	}
}
