package points

import "github.com/hfoster/routinely/internal/model"

// Tier classifies how a task's actual time compares to its allowance.
type Tier string

const (
	TierOnTime     Tier = "on_time"
	TierLittleLate Tier = "little_late"
	TierOverLimit  Tier = "over_limit"
)

// The cutoff between half credit and no credit is actual <= 1.4x scheduled,
// compared as 5*actual <= 7*scheduled so the boundary is exact in integers.
const (
	lateRatioNum = 7
	lateRatioDen = 5
)

// Stars returns the 1-3 star rating shown alongside the tier.
func (t Tier) Stars() int {
	switch t {
	case TierOnTime:
		return 3
	case TierLittleLate:
		return 2
	default:
		return 1
	}
}

// Feedback returns the qualitative label for the tier.
func (t Tier) Feedback() string {
	switch t {
	case TierOnTime:
		return "On time — great job!"
	case TierLittleLate:
		return "A little late"
	default:
		return "Over the limit"
	}
}

// Award computes the points earned for a task. Untimed tasks (scheduled <= 0)
// always earn full value. Otherwise the actual/scheduled ratio decides the
// tier: on time earns full value, up to 1.4x earns half (rounded down), and
// anything slower earns nothing.
//
// This is the single authoritative tiering rule. The interactive run uses it
// for immediate feedback and settlement recomputes with it; the two must never
// diverge.
func Award(pointValue, scheduledSeconds, actualSeconds int) (int, Tier) {
	if scheduledSeconds <= 0 {
		return pointValue, TierOnTime
	}
	if actualSeconds <= scheduledSeconds {
		return pointValue, TierOnTime
	}
	if lateRatioDen*actualSeconds <= lateRatioNum*scheduledSeconds {
		return pointValue / 2, TierLittleLate
	}
	return 0, TierOverLimit
}

// Result computes a full TaskResult from a submitted metric.
func Result(pointValue int, m model.TaskMetric) model.TaskResult {
	pts, tier := Award(pointValue, m.ScheduledSeconds, m.ActualSeconds)
	return model.TaskResult{
		TaskID:           m.TaskID,
		ScheduledSeconds: m.ScheduledSeconds,
		ActualSeconds:    m.ActualSeconds,
		AwardedPoints:    pts,
		Tier:             string(tier),
		Stars:            tier.Stars(),
	}
}

// BonusEligible reports whether a run qualifies for its routine bonus: every
// task strictly on time, and at least one task in the run. The half-credit
// band already disqualifies the bonus.
func BonusEligible(results []model.TaskResult) bool {
	if len(results) == 0 {
		return false
	}
	for _, r := range results {
		if r.ScheduledSeconds > 0 && r.ActualSeconds > r.ScheduledSeconds {
			return false
		}
	}
	return true
}

// Overtime returns the overtime seconds for a metric, or 0 if the task was
// untimed or finished within its allowance. Overtime entries are logged only
// for timed tasks that ran over.
func Overtime(m model.TaskMetric) int {
	if m.ScheduledSeconds <= 0 || m.ActualSeconds <= m.ScheduledSeconds {
		return 0
	}
	return m.ActualSeconds - m.ScheduledSeconds
}
