// Package window defines the inclusive time intervals used to select
// changed files by modification time, and the calendar-based derivations
// the CLI exposes (yesterday, month-to-date, previous month).
package window

import (
	"fmt"
	"time"
)

// Window is an inclusive [Start, End] interval. A file whose mtime equals
// either bound is inside the window.
type Window struct {
	Start time.Time
	End   time.Time
	label string
}

// New builds a window, enforcing start <= end.
func New(start, end time.Time, label string) (Window, error) {
	if end.Before(start) {
		return Window{}, fmt.Errorf("window end %s before start %s",
			end.Format(time.RFC3339), start.Format(time.RFC3339))
	}
	return Window{Start: start, End: end, label: label}, nil
}

// Contains reports whether t falls inside the window, inclusive both ends.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// Label returns the human-readable name for transfers covering this window.
func (w Window) Label() string { return w.label }

func (w Window) String() string {
	return fmt.Sprintf("%s [%s, %s]", w.label,
		w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339))
}

// Yesterday covers the previous calendar day in now's location: midnight
// through the last instant before today's midnight.
func Yesterday(now time.Time) Window {
	y := now.AddDate(0, 0, -1)
	start := time.Date(y.Year(), y.Month(), y.Day(), 0, 0, 0, 0, now.Location())
	end := start.AddDate(0, 0, 1).Add(-time.Nanosecond)
	return Window{
		Start: start,
		End:   end,
		label: "Sync_" + start.Format("2006-01-02"),
	}
}

// MonthToDate covers the first of the current month through now.
func MonthToDate(now time.Time) Window {
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	return Window{
		Start: start,
		End:   now,
		label: "Sync_MTD_" + start.Format("January_2006"),
	}
}

// PreviousMonth covers the prior calendar month: its first midnight through
// the last instant before the current month began.
func PreviousMonth(now time.Time) Window {
	firstOfThis := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	end := firstOfThis.Add(-time.Nanosecond)
	start := time.Date(end.Year(), end.Month(), 1, 0, 0, 0, 0, now.Location())
	return Window{
		Start: start,
		End:   end,
		label: "Transfer_" + start.Format("January_2006"),
	}
}
