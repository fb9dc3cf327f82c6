package session

import (
	"errors"
	"sync"
	"testing"
	"time"

	"flow-field/internal/flowfield"
	"flow-field/internal/grid"
)

func openMap(t *testing.T, size int, goal grid.Point) *grid.Map {
	t.Helper()
	m, err := grid.NewMap(size)
	if err != nil {
		t.Fatalf("NewMap failed: %v", err)
	}
	m.SetGoal(goal.X, goal.Y)
	return m
}

func TestCreateGenerates(t *testing.T) {
	r := NewRegistry(Config{})
	s, err := r.Create(openMap(t, 5, grid.Point{X: 2, Y: 2}))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	sum := s.Summary()
	if sum.ID != "f1" {
		t.Errorf("Expected id f1, got %s", sum.ID)
	}
	if sum.Version != 1 {
		t.Errorf("Expected version 1, got %d", sum.Version)
	}
	if sum.Reached != 25 {
		t.Errorf("Expected 25 reached cells, got %d", sum.Reached)
	}

	err = s.View(func(m *grid.Map, f *flowfield.Field) error {
		if got := f.Direction(0, 2); got != flowfield.Down {
			t.Errorf("Expected Down at (0,2), got %v", got)
		}
		return nil
	})
	if err != nil {
		t.Errorf("View failed: %v", err)
	}
}

func TestCreateGoalBlocked(t *testing.T) {
	r := NewRegistry(Config{})
	m := openMap(t, 3, grid.Point{X: 1, Y: 1})
	m.SetObstacle(1, 1)

	_, err := r.Create(m)
	if !errors.Is(err, flowfield.ErrGoalBlocked) {
		t.Fatalf("Expected ErrGoalBlocked, got %v", err)
	}
	if r.Len() != 0 {
		t.Errorf("Expected empty registry, got %d", r.Len())
	}
}

func TestRegistryFull(t *testing.T) {
	r := NewRegistry(Config{MaxSessions: 2})
	for i := 0; i < 2; i++ {
		if _, err := r.Create(openMap(t, 2, grid.Point{})); err != nil {
			t.Fatalf("Create %d failed: %v", i, err)
		}
	}
	if _, err := r.Create(openMap(t, 2, grid.Point{})); !errors.Is(err, ErrRegistryFull) {
		t.Errorf("Expected ErrRegistryFull, got %v", err)
	}

	if err := r.Delete("f1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := r.Create(openMap(t, 2, grid.Point{})); err != nil {
		t.Errorf("Expected room after delete, got %v", err)
	}
}

func TestGetDeleteNotFound(t *testing.T) {
	r := NewRegistry(Config{})
	if _, err := r.Get("f9"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound from Get, got %v", err)
	}
	if err := r.Delete("f9"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound from Delete, got %v", err)
	}
}

func TestListCreationOrder(t *testing.T) {
	r := NewRegistry(Config{})
	for i := 0; i < 12; i++ {
		if _, err := r.Create(openMap(t, 2, grid.Point{})); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}
	list := r.List()
	if len(list) != 12 {
		t.Fatalf("Expected 12 summaries, got %d", len(list))
	}
	// f10 sorts after f9, not after f1
	if list[9].ID != "f10" || list[8].ID != "f9" {
		t.Errorf("Expected creation order, got %s then %s", list[8].ID, list[9].ID)
	}
}

func TestUpdateRegenerates(t *testing.T) {
	r := NewRegistry(Config{})
	s, err := r.Create(openMap(t, 3, grid.Point{X: 0, Y: 0}))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	sum, err := s.Update(func(m *grid.Map) error {
		m.SetGoal(2, 2)
		m.SetObstacle(1, 1)
		return nil
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if sum.Version != 2 || sum.Obstacles != 1 || sum.Reached != 8 {
		t.Errorf("Expected version 2, 1 obstacle, 8 reached, got %+v", sum)
	}

	_ = s.View(func(m *grid.Map, f *flowfield.Field) error {
		if got := f.Direction(2, 2); got != flowfield.Arrived {
			t.Errorf("Expected Arrived at new goal, got %v", got)
		}
		if got := f.Direction(1, 1); got != flowfield.Unset {
			t.Errorf("Expected Unset on obstacle, got %v", got)
		}
		return nil
	})
}

func TestUpdateRollsBack(t *testing.T) {
	r := NewRegistry(Config{})
	s, err := r.Create(openMap(t, 3, grid.Point{X: 1, Y: 1}))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	_, err = s.Update(func(m *grid.Map) error {
		m.SetObstacle(1, 1)
		return nil
	})
	if !errors.Is(err, flowfield.ErrGoalBlocked) {
		t.Fatalf("Expected ErrGoalBlocked, got %v", err)
	}

	boom := errors.New("boom")
	_, err = s.Update(func(m *grid.Map) error {
		m.SetObstacle(0, 0)
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Expected callback error, got %v", err)
	}

	sum := s.Summary()
	if sum.Version != 1 || sum.Obstacles != 0 || sum.Reached != 9 {
		t.Errorf("Expected untouched session, got %+v", sum)
	}
}

func TestGenerateHook(t *testing.T) {
	var mu sync.Mutex
	var calls []error
	r := NewRegistry(Config{OnGenerate: func(size int, elapsed time.Duration, reached int, err error) {
		mu.Lock()
		calls = append(calls, err)
		mu.Unlock()
	}})

	s, err := r.Create(openMap(t, 4, grid.Point{}))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	_, _ = s.Update(func(m *grid.Map) error {
		m.SetObstacle(0, 0)
		return nil
	})

	mu.Lock()
	defer mu.Unlock()
	if len(calls) != 2 {
		t.Fatalf("Expected 2 hook calls, got %d", len(calls))
	}
	if calls[0] != nil || !errors.Is(calls[1], flowfield.ErrGoalBlocked) {
		t.Errorf("Expected success then ErrGoalBlocked, got %v", calls)
	}
}

func TestConcurrentUpdates(t *testing.T) {
	r := NewRegistry(Config{})
	s, err := r.Create(openMap(t, 16, grid.Point{X: 8, Y: 8}))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				_, _ = s.Update(func(m *grid.Map) error {
					m.ToggleObstacle(i, j)
					return nil
				})
				_ = s.View(func(m *grid.Map, f *flowfield.Field) error {
					if f.Direction(8, 8) != flowfield.Arrived {
						t.Error("Expected goal to stay Arrived")
					}
					return nil
				})
			}
		}(i)
	}
	wg.Wait()

	if got := s.Summary().Version; got != 81 {
		t.Errorf("Expected version 81, got %d", got)
	}
}

func TestStandaloneSession(t *testing.T) {
	s, err := New("viewer", openMap(t, 3, grid.Point{X: 0, Y: 0}), nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if s.ID() != "viewer" {
		t.Errorf("Expected id viewer, got %s", s.ID())
	}
	if sum := s.Summary(); sum.Reached != 9 || sum.Version != 1 {
		t.Errorf("Unexpected summary: %+v", sum)
	}
}
