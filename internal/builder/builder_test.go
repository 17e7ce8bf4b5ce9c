package builder

import (
	"testing"

	"github.com/hfoster/routinely/internal/model"
)

func dep(id int64) *int64 { return &id }

func minutes(m int) *int { return &m }

func taskIDs(b *Builder) []int64 {
	var ids []int64
	for _, e := range b.Entries() {
		ids = append(ids, e.TaskID)
	}
	return ids
}

// checkInvariant fails the test if any entry depends on a task at or after
// its own position.
func checkInvariant(t *testing.T, b *Builder) {
	t.Helper()
	entries := b.Entries()
	pos := make(map[int64]int)
	for i, e := range entries {
		pos[e.TaskID] = i
	}
	for i, e := range entries {
		if e.DependencyID == nil {
			continue
		}
		p, ok := pos[*e.DependencyID]
		if !ok {
			t.Errorf("entry %d depends on missing task %d", i, *e.DependencyID)
		} else if p >= i {
			t.Errorf("entry %d depends on task %d at position %d", i, *e.DependencyID, p)
		}
	}
}

func TestAddDeduplicates(t *testing.T) {
	b := New(nil)
	b.Add(1)
	b.Add(2)
	b.Add(1)

	ids := taskIDs(b)
	if len(ids) != 2 || ids[0] != 1 || ids[1] != 2 {
		t.Errorf("entries = %v, want [1 2]", ids)
	}
}

func TestSetDependencyOrdering(t *testing.T) {
	b := New(nil)
	b.Add(1)
	b.Add(2)
	b.Add(3)

	if err := b.SetDependency(3, 1); err != nil {
		t.Fatalf("set dependency: %v", err)
	}
	if err := b.SetDependency(1, 3); err == nil {
		t.Error("expected error for forward dependency")
	}
	if err := b.SetDependency(2, 2); err == nil {
		t.Error("expected error for self dependency")
	}
	checkInvariant(t, b)
}

func TestReorderInvalidatesForwardDependencies(t *testing.T) {
	b := New(nil)
	b.Add(1)
	b.Add(2)
	b.Add(3)
	if err := b.SetDependency(3, 1); err != nil {
		t.Fatalf("set dependency: %v", err)
	}
	if err := b.SetDependency(2, 1); err != nil {
		t.Fatalf("set dependency: %v", err)
	}

	// Move 1 to the end: both dependencies now point forward and must clear.
	b.Reorder([]int64{3, 2, 1})

	for _, e := range b.Entries() {
		if e.DependencyID != nil {
			t.Errorf("task %d kept dependency %d after reorder", e.TaskID, *e.DependencyID)
		}
	}
	checkInvariant(t, b)
}

func TestReorderKeepsValidDependencies(t *testing.T) {
	b := New(nil)
	b.Add(1)
	b.Add(2)
	b.Add(3)
	if err := b.SetDependency(3, 1); err != nil {
		t.Fatalf("set dependency: %v", err)
	}

	// 1 still precedes 3 in the new order.
	b.Reorder([]int64{2, 1, 3})

	entries := b.Entries()
	if entries[2].TaskID != 3 || entries[2].DependencyID == nil || *entries[2].DependencyID != 1 {
		t.Errorf("task 3 should keep dependency on 1, got %+v", entries[2])
	}
	checkInvariant(t, b)
}

func TestRemoveClearsDependents(t *testing.T) {
	b := New(nil)
	b.Add(1)
	b.Add(2)
	b.Add(3)
	if err := b.SetDependency(2, 1); err != nil {
		t.Fatalf("set dependency: %v", err)
	}
	if err := b.SetDependency(3, 1); err != nil {
		t.Fatalf("set dependency: %v", err)
	}

	b.Remove(1)

	ids := taskIDs(b)
	if len(ids) != 2 || ids[0] != 2 || ids[1] != 3 {
		t.Fatalf("entries = %v, want [2 3]", ids)
	}
	for _, e := range b.Entries() {
		if e.DependencyID != nil {
			t.Errorf("task %d kept dependency on removed task", e.TaskID)
		}
	}
}

func TestRemoveKeepsUnrelatedDependency(t *testing.T) {
	b := New(nil)
	b.Add(1)
	b.Add(2)
	b.Add(3)
	if err := b.SetDependency(3, 2); err != nil {
		t.Fatalf("set dependency: %v", err)
	}

	// Removing 1 compacts the list; 3's dependency on 2 must survive intact.
	b.Remove(1)

	entries := b.Entries()
	if len(entries) != 2 {
		t.Fatalf("entries = %v, want 2", taskIDs(b))
	}
	if entries[1].TaskID != 3 || entries[1].DependencyID == nil {
		t.Fatalf("task 3 lost its dependency: %+v", entries[1])
	}
	if got := *entries[1].DependencyID; got != 2 {
		t.Errorf("task 3 dependency = %d, want 2", got)
	}
	checkInvariant(t, b)
}

func TestNewRepairsStalePlan(t *testing.T) {
	// A plan whose dependency points forward (e.g. edited by hand).
	b := New([]Entry{
		{TaskID: 1, DependencyID: dep(2)},
		{TaskID: 2},
	})

	entries := b.Entries()
	if entries[0].DependencyID != nil {
		t.Error("forward dependency should be cleared on load")
	}
	checkInvariant(t, b)
}

func TestDependencyOptions(t *testing.T) {
	b := New(nil)
	b.Add(10)
	b.Add(20)
	b.Add(30)

	if opts := b.DependencyOptions(0); opts != nil {
		t.Errorf("options for first entry = %v, want none", opts)
	}
	opts := b.DependencyOptions(2)
	if len(opts) != 2 || opts[0] != 10 || opts[1] != 20 {
		t.Errorf("options = %v, want [10 20]", opts)
	}
}

func TestSummarize(t *testing.T) {
	b := New(nil)
	b.Add(1)
	b.Add(2)
	b.Add(3)

	tasks := map[int64]model.Task{
		1: {ID: 1, TimeLimitMinutes: minutes(20)},
		2: {ID: 2, TimeLimitMinutes: minutes(15)},
		3: {ID: 3}, // untimed
	}

	s, err := b.Summarize(tasks, "07:00", "07:45")
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if s.TotalMinutes != 35 {
		t.Errorf("total = %d, want 35", s.TotalMinutes)
	}
	if s.DurationMinutes != 45 {
		t.Errorf("duration = %d, want 45", s.DurationMinutes)
	}
	if s.Warning != "" {
		t.Errorf("unexpected warning %q", s.Warning)
	}

	s, err = b.Summarize(tasks, "07:00", "07:30")
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if s.Warning == "" {
		t.Error("expected overrun warning")
	}
}

func TestSummarizeOvernightWraparound(t *testing.T) {
	b := New(nil)
	b.Add(1)
	tasks := map[int64]model.Task{1: {ID: 1, TimeLimitMinutes: minutes(30)}}

	// 22:30 → 06:30 crosses midnight: 8 hours.
	s, err := b.Summarize(tasks, "22:30", "06:30")
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if s.DurationMinutes != 8*60 {
		t.Errorf("duration = %d, want %d", s.DurationMinutes, 8*60)
	}

	// Equal start and end wraps to a full day.
	s, err = b.Summarize(tasks, "08:00", "08:00")
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if s.DurationMinutes != 24*60 {
		t.Errorf("duration = %d, want %d", s.DurationMinutes, 24*60)
	}
}

func TestSummarizeBadClock(t *testing.T) {
	b := New(nil)
	if _, err := b.Summarize(nil, "7am", "08:00"); err == nil {
		t.Error("expected error for malformed start time")
	}
	if _, err := b.Summarize(nil, "07:00", "25:00"); err == nil {
		t.Error("expected error for out-of-range hour")
	}
}
