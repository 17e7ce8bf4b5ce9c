package run

import (
	"errors"
	"testing"
	"time"

	"github.com/hfoster/routinely/internal/model"
)

// fakeClock advances only when told to, so elapsed time is exact.
type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 14, 7, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func minutes(m int) *int { return &m }

func detailWith(entries ...model.RoutineItem) model.RoutineDetail {
	return model.RoutineDetail{
		Routine: model.Routine{ID: 1, ChildID: 42, BonusPoints: 20},
		Entries: entries,
	}
}

func timedItem(rtID, taskID int64, pointValue, limitMin int) model.RoutineItem {
	return model.RoutineItem{
		RoutineTask: model.RoutineTask{ID: rtID, RoutineID: 1, TaskID: taskID},
		Task: &model.Task{
			ID:               taskID,
			Title:            "task",
			PointValue:       pointValue,
			TimeLimitMinutes: minutes(limitMin),
		},
	}
}

func playTask(t *testing.T, r *Run, clock *fakeClock, d time.Duration) StatusView {
	t.Helper()
	if err := r.StartTask(); err != nil {
		t.Fatalf("start task: %v", err)
	}
	clock.advance(d)
	view, err := r.CompleteTask()
	if err != nil {
		t.Fatalf("complete task: %v", err)
	}
	return view
}

func TestNewRefusesEmptyRoutine(t *testing.T) {
	_, err := New(detailWith(), "tok", nil)
	if !errors.Is(err, ErrNoTasks) {
		t.Fatalf("err = %v, want ErrNoTasks", err)
	}
}

func TestNewSkipsDeletedTaskTemplates(t *testing.T) {
	// Entry 1's template was deleted by the authoring layer; it must be
	// skipped, not played and not crashed on.
	ghost := model.RoutineItem{RoutineTask: model.RoutineTask{ID: 9, TaskID: 99}}
	r, err := New(detailWith(ghost, timedItem(1, 10, 10, 5)), "tok", nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if got := r.Remaining(); got != 1 {
		t.Errorf("remaining = %d, want 1", got)
	}
	if r.Current().Task.ID != 10 {
		t.Errorf("current task = %d, want 10", r.Current().Task.ID)
	}

	// A routine where every template is gone is effectively empty.
	_, err = New(detailWith(ghost), "tok", nil)
	if !errors.Is(err, ErrNoTasks) {
		t.Fatalf("err = %v, want ErrNoTasks", err)
	}
}

func TestOnTimeTask(t *testing.T) {
	clock := newFakeClock()
	r, err := New(detailWith(timedItem(1, 10, 10, 5)), "tok", clock.now)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	view := playTask(t, r, clock, 280*time.Second)

	if view.Result.AwardedPoints != 10 {
		t.Errorf("points = %d, want 10", view.Result.AwardedPoints)
	}
	if view.Result.ActualSeconds != 280 {
		t.Errorf("actual = %d, want 280", view.Result.ActualSeconds)
	}
	if view.Result.Stars != 3 {
		t.Errorf("stars = %d, want 3", view.Result.Stars)
	}
	if len(r.DrainOvertime()) != 0 {
		t.Error("on-time task should not buffer overtime")
	}

	if err := r.Advance(); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if r.State() != StateSummary {
		t.Errorf("state = %q, want %q", r.State(), StateSummary)
	}

	s := r.LocalSummary()
	if !s.BonusEligible || s.Bonus != 20 {
		t.Errorf("summary = %+v, want bonus eligible with 20", s)
	}
}

func TestLateTaskBuffersOvertimeAndDeniesBonus(t *testing.T) {
	clock := newFakeClock()
	r, err := New(detailWith(timedItem(1, 10, 10, 5)), "tok", clock.now)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	// 360s on a 300s allowance: ratio 1.2, half credit.
	view := playTask(t, r, clock, 360*time.Second)

	if view.Result.AwardedPoints != 5 {
		t.Errorf("points = %d, want 5", view.Result.AwardedPoints)
	}
	if view.Result.Stars != 2 {
		t.Errorf("stars = %d, want 2", view.Result.Stars)
	}

	if err := r.Advance(); err != nil {
		t.Fatalf("advance: %v", err)
	}
	s := r.LocalSummary()
	if s.BonusEligible || s.Bonus != 0 {
		t.Errorf("summary = %+v, want bonus denied", s)
	}

	over := r.DrainOvertime()
	if len(over) != 1 {
		t.Fatalf("overtime entries = %d, want 1", len(over))
	}
	if over[0].OvertimeSeconds != 60 {
		t.Errorf("overtime = %d, want 60", over[0].OvertimeSeconds)
	}
	if over[0].RoutineTaskID != 1 || over[0].ChildID != 42 {
		t.Errorf("entry attribution = %+v", over[0])
	}
	// Drain clears the buffer.
	if len(r.DrainOvertime()) != 0 {
		t.Error("second drain should be empty")
	}
}

func TestOverLimitTask(t *testing.T) {
	clock := newFakeClock()
	r, err := New(detailWith(timedItem(1, 10, 10, 5)), "tok", clock.now)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	// 450s on 300s: ratio 1.5, no credit.
	view := playTask(t, r, clock, 450*time.Second)

	if view.Result.AwardedPoints != 0 {
		t.Errorf("points = %d, want 0", view.Result.AwardedPoints)
	}
	if view.Result.Stars != 1 {
		t.Errorf("stars = %d, want 1", view.Result.Stars)
	}
	over := r.DrainOvertime()
	if len(over) != 1 || over[0].OvertimeSeconds != 150 {
		t.Fatalf("overtime = %+v, want one 150s entry", over)
	}
}

func TestElapsedRoundsUp(t *testing.T) {
	clock := newFakeClock()
	r, err := New(detailWith(timedItem(1, 10, 10, 5)), "tok", clock.now)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	view := playTask(t, r, clock, 279*time.Second+200*time.Millisecond)
	if view.Result.ActualSeconds != 280 {
		t.Errorf("actual = %d, want 280 (ceil)", view.Result.ActualSeconds)
	}
}

func TestUntimedTaskAlwaysFullPoints(t *testing.T) {
	clock := newFakeClock()
	item := model.RoutineItem{
		RoutineTask: model.RoutineTask{ID: 1, TaskID: 10},
		Task:        &model.Task{ID: 10, PointValue: 8},
	}
	r, err := New(detailWith(item), "tok", clock.now)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	view := playTask(t, r, clock, 2*time.Hour)
	if view.Result.AwardedPoints != 8 {
		t.Errorf("points = %d, want 8", view.Result.AwardedPoints)
	}
	if len(r.DrainOvertime()) != 0 {
		t.Error("untimed task must not log overtime")
	}
}

func TestThreeTaskRunAllOnTime(t *testing.T) {
	clock := newFakeClock()
	r, err := New(detailWith(
		timedItem(1, 10, 10, 5),
		timedItem(2, 11, 5, 3),
		timedItem(3, 12, 7, 4),
	), "tok", clock.now)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	durations := []time.Duration{280 * time.Second, 100 * time.Second, 60 * time.Second}
	for i, d := range durations {
		playTask(t, r, clock, d)
		if err := r.Advance(); err != nil {
			t.Fatalf("advance after task %d: %v", i, err)
		}
	}

	if r.State() != StateSummary {
		t.Fatalf("state = %q, want summary", r.State())
	}
	s := r.LocalSummary()
	if s.Points != 22 {
		t.Errorf("task points = %d, want 22", s.Points)
	}
	if !s.BonusEligible || s.Bonus != 20 {
		t.Errorf("bonus = %+v, want eligible 20", s)
	}
	if got := len(r.Metrics()); got != 3 {
		t.Errorf("metrics = %d, want 3", got)
	}
}

func TestDependencyEnforcedAtRuntime(t *testing.T) {
	clock := newFakeClock()
	first := timedItem(1, 10, 10, 5)
	second := timedItem(2, 11, 5, 3)
	dep := int64(1)
	second.RoutineTask.DependencyID = &dep

	r, err := New(detailWith(first, second), "tok", clock.now)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	// Completing the first task satisfies the second's dependency.
	playTask(t, r, clock, 100*time.Second)
	if err := r.Advance(); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if err := r.StartTask(); err != nil {
		t.Fatalf("start dependent task: %v", err)
	}
}

func TestDependencyOnSkippedEntrySatisfied(t *testing.T) {
	clock := newFakeClock()
	// The dependency's task template was deleted, so its entry is skipped at
	// open. The dependent task must still be startable, not blocked forever.
	ghost := model.RoutineItem{RoutineTask: model.RoutineTask{ID: 1, TaskID: 99}}
	second := timedItem(2, 11, 5, 3)
	dep := int64(1)
	second.RoutineTask.DependencyID = &dep

	r, err := New(detailWith(ghost, second), "tok", clock.now)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	playTask(t, r, clock, 100*time.Second)
	if err := r.Advance(); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if r.State() != StateSummary {
		t.Errorf("state = %q, want summary", r.State())
	}
}

func TestDependencyIncompleteRefusesStart(t *testing.T) {
	clock := newFakeClock()
	// A dependency pointing at a later entry can't have completed yet; the
	// run refuses to start the task rather than playing it out of order.
	first := timedItem(1, 10, 10, 5)
	second := timedItem(2, 11, 5, 3)
	dep := int64(2)
	first.RoutineTask.DependencyID = &dep

	r, err := New(detailWith(first, second), "tok", clock.now)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := r.StartTask(); !errors.Is(err, ErrDependencyIncomplete) {
		t.Fatalf("err = %v, want ErrDependencyIncomplete", err)
	}
}

func TestExitClearsBuffers(t *testing.T) {
	clock := newFakeClock()
	r, err := New(detailWith(timedItem(1, 10, 10, 5), timedItem(2, 11, 5, 3)), "tok", clock.now)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	playTask(t, r, clock, 400*time.Second) // buffers overtime
	r.Exit()

	if r.State() != StateIdle {
		t.Errorf("state = %q, want idle", r.State())
	}
	if len(r.Results()) != 0 {
		t.Error("results should be cleared on exit")
	}
	if len(r.DrainOvertime()) != 0 {
		t.Error("overtime buffer should be cleared on exit")
	}
}

func TestTransitionGuards(t *testing.T) {
	clock := newFakeClock()
	r, err := New(detailWith(timedItem(1, 10, 10, 5)), "tok", clock.now)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	if err := r.Advance(); err == nil {
		t.Error("advance before status screen should fail")
	}
	if _, err := r.CompleteTask(); err == nil {
		t.Error("complete before start should fail")
	}
	playTask(t, r, clock, 10*time.Second)
	if _, err := r.CompleteTask(); err == nil {
		t.Error("double complete should fail")
	}
}
