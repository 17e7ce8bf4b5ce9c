// Package builder assembles the ordered task list of a routine. It maintains
// the invariant that a dependency always points at an earlier entry: reorders
// and removals repair the list instead of failing.
package builder

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hfoster/routinely/internal/model"
)

// Entry is one position in the routine under construction. DependencyID, when
// set, is the TaskID of an entry that must appear earlier in the list.
type Entry struct {
	TaskID       int64  `json:"id"`
	DependencyID *int64 `json:"dependency_id"`
}

// Plan is the serialized form submitted alongside the routine's other fields.
type Plan struct {
	Tasks []Entry `json:"tasks"`
}

// Builder holds the ordered entries for one routine being authored.
type Builder struct {
	entries []Entry
}

// New creates a Builder seeded with existing entries (for editing). The
// dependency invariant is repaired immediately so a stale plan can't carry a
// forward reference in.
func New(entries []Entry) *Builder {
	b := &Builder{entries: append([]Entry(nil), entries...)}
	b.repairDependencies()
	return b
}

// Entries returns a copy of the current ordered list.
func (b *Builder) Entries() []Entry {
	return append([]Entry(nil), b.entries...)
}

// Add appends a task at the end of the list. Adding a task that is already
// present is a no-op.
func (b *Builder) Add(taskID int64) {
	for _, e := range b.entries {
		if e.TaskID == taskID {
			return
		}
	}
	b.entries = append(b.entries, Entry{TaskID: taskID})
}

// Remove drops the entry for taskID and clears any dependency pointing at it.
func (b *Builder) Remove(taskID int64) {
	kept := b.entries[:0]
	for _, e := range b.entries {
		if e.TaskID == taskID {
			continue
		}
		if e.DependencyID != nil && *e.DependencyID == taskID {
			e.DependencyID = nil
		}
		kept = append(kept, e)
	}
	b.entries = kept
	b.repairDependencies()
}

// SetDependency points the entry for taskID at dependsOn, which must already
// sit earlier in the list.
func (b *Builder) SetDependency(taskID, dependsOn int64) error {
	taskPos, depPos := -1, -1
	for i, e := range b.entries {
		switch e.TaskID {
		case taskID:
			taskPos = i
		case dependsOn:
			depPos = i
		}
	}
	if taskPos < 0 {
		return fmt.Errorf("task %d not in routine", taskID)
	}
	if depPos < 0 {
		return fmt.Errorf("dependency %d not in routine", dependsOn)
	}
	if depPos >= taskPos {
		return fmt.Errorf("dependency %d does not precede task %d", dependsOn, taskID)
	}
	// Copy the id: a pointer into entries would alias the backing array, which
	// Remove compacts in place.
	dep := b.entries[depPos].TaskID
	b.entries[taskPos].DependencyID = &dep
	return nil
}

// ClearDependency removes the dependency of taskID, if any.
func (b *Builder) ClearDependency(taskID int64) {
	for i, e := range b.entries {
		if e.TaskID == taskID {
			b.entries[i].DependencyID = nil
			return
		}
	}
}

// Reorder replaces the list order with the given task id permutation, e.g.
// from a drag gesture. Ids not currently present are ignored; entries missing
// from the new order keep their relative position at the end. Dependencies
// that no longer precede their depender are cleared.
func (b *Builder) Reorder(order []int64) {
	byID := make(map[int64]Entry, len(b.entries))
	for _, e := range b.entries {
		byID[e.TaskID] = e
	}

	next := make([]Entry, 0, len(b.entries))
	seen := make(map[int64]bool, len(order))
	for _, id := range order {
		if e, ok := byID[id]; ok && !seen[id] {
			next = append(next, e)
			seen[id] = true
		}
	}
	for _, e := range b.entries {
		if !seen[e.TaskID] {
			next = append(next, e)
		}
	}

	b.entries = next
	b.repairDependencies()
}

// DependencyOptions returns the task ids that entry position i may depend on:
// only entries strictly before it. This keeps the ordering invariant
// structural rather than validated after the fact.
func (b *Builder) DependencyOptions(i int) []int64 {
	if i <= 0 || i > len(b.entries) {
		return nil
	}
	opts := make([]int64, 0, i)
	for _, e := range b.entries[:i] {
		opts = append(opts, e.TaskID)
	}
	return opts
}

// Plan serializes the current list for submission.
func (b *Builder) Plan() Plan {
	return Plan{Tasks: b.Entries()}
}

// repairDependencies clears any dependency whose target does not appear
// strictly earlier in the list.
func (b *Builder) repairDependencies() {
	pos := make(map[int64]int, len(b.entries))
	for i, e := range b.entries {
		pos[e.TaskID] = i
	}
	for i, e := range b.entries {
		if e.DependencyID == nil {
			continue
		}
		depPos, ok := pos[*e.DependencyID]
		if !ok || depPos >= i {
			b.entries[i].DependencyID = nil
		}
	}
}

// Summary compares the total task time against the routine's scheduled
// window. The warning is advisory; authoring never hard-fails on it.
type Summary struct {
	TotalMinutes    int    `json:"total_minutes"`
	DurationMinutes int    `json:"duration_minutes"`
	Warning         string `json:"warning,omitempty"`
}

// Summarize sums time limits across the selected tasks and measures the
// start→end window. An end at or before the start is treated as crossing
// midnight into the next day.
func (b *Builder) Summarize(tasks map[int64]model.Task, startTime, endTime string) (Summary, error) {
	start, err := parseClock(startTime)
	if err != nil {
		return Summary{}, fmt.Errorf("start time: %w", err)
	}
	end, err := parseClock(endTime)
	if err != nil {
		return Summary{}, fmt.Errorf("end time: %w", err)
	}

	duration := end - start
	if duration <= 0 {
		duration += 24 * 60
	}

	total := 0
	for _, e := range b.entries {
		t, ok := tasks[e.TaskID]
		if !ok {
			continue
		}
		if t.TimeLimitMinutes != nil && *t.TimeLimitMinutes > 0 {
			total += *t.TimeLimitMinutes
		}
	}

	s := Summary{TotalMinutes: total, DurationMinutes: duration}
	if total > duration {
		s.Warning = "total task time exceeds routine duration"
	}
	return s, nil
}

// parseClock parses "HH:MM" into minutes since midnight.
func parseClock(v string) (int, error) {
	parts := strings.SplitN(strings.TrimSpace(v), ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid time %q", v)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour in %q", v)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", v)
	}
	return h*60 + m, nil
}
