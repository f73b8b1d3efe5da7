// Package entitlements derives an owner's access state from the stored
// billing period boundaries.
//
// The state is never persisted. It is a pure function of now and the two
// boundaries and is recomputed on every read.
package entitlements

import "time"

type State string

const (
	StateActive  State = "active"
	StateGrace   State = "grace"
	StateBlocked State = "blocked"
)

const (
	PeriodLength = 30 * 24 * time.Hour
	GraceLength  = 5 * 24 * time.Hour
)

// DeriveState maps (now, periodEnd, graceEnd) to a state. Both boundaries are
// inclusive of the lower state. A missing period end means blocked; a
// missing grace end falls back to periodEnd + GraceLength.
func DeriveState(now time.Time, periodEnd, graceEnd *time.Time) State {
	if periodEnd == nil {
		return StateBlocked
	}
	if !now.After(*periodEnd) {
		return StateActive
	}
	limit := periodEnd.Add(GraceLength)
	if graceEnd != nil {
		limit = *graceEnd
	}
	if !now.After(limit) {
		return StateGrace
	}
	return StateBlocked
}

// Allowed reports whether mutating operations may proceed in this state.
func (s State) Allowed() bool {
	return s == StateActive || s == StateGrace
}

// NeedsExpiryAlert reports whether an expiry notification should be sent.
// At most one alert per UTC calendar day; concurrent readers may both see
// true, so the guarantee is best-effort and not exactly-once.
func NeedsExpiryAlert(state State, lastAlertSentAt *time.Time, now time.Time) bool {
	if state == StateActive {
		return false
	}
	if lastAlertSentAt == nil {
		return true
	}
	return !SameUTCDay(*lastAlertSentAt, now)
}

func SameUTCDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

// NextPeriod computes the period that follows a renewal at now. The new
// period starts at the later of now and the previous end, so renewing early
// keeps the remaining paid time.
func NextPeriod(now time.Time, previousEnd *time.Time) (start, end, graceEnd time.Time) {
	start = now
	if previousEnd != nil && previousEnd.After(now) {
		start = *previousEnd
	}
	end = start.Add(PeriodLength)
	graceEnd = end.Add(GraceLength)
	return start, end, graceEnd
}
