package quota

import (
	"time"

	"github.com/kkkkikiki/surveyreview/internal/model"
)

// Due reports whether the state is DueForReset at now. A missing reset date is due.
func Due(s model.QuotaState, now time.Time) bool {
	return s.ResetDate == nil || !s.ResetDate.After(now)
}

// Rollover is the single DueForReset -> Active transition used by both the
// request path and the scheduled sweep. Applying it to its own output is a no-op.
func Rollover(s model.QuotaState, now time.Time) (model.QuotaState, bool) {
	if !Due(s, now) {
		return s, false
	}
	basis := now
	if s.ResetDate != nil {
		basis = *s.ResetDate
	}
	next := NextResetDate(basis, now)
	s.Count = 0
	s.ResetDate = &next
	return s, true
}

// NextResetDate advances basis by whole months, keeping its day-of-month
// (clamped to the month length), until the result is strictly after now.
func NextResetDate(basis, now time.Time) time.Time {
	basis = startOfDay(basis)
	for n := 1; ; n++ {
		next := AddMonthsClamped(basis, n)
		if next.After(now) {
			return next
		}
	}
}

// AddMonthsClamped adds n months to t. Days past the end of the target month
// land on its last day: Jan 31 + 1 month is Feb 28 (Feb 29 in leap years).
func AddMonthsClamped(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, t.Location())
	if last := daysIn(first.Year(), first.Month()); d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
