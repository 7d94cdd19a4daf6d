package rates

import "time"

// Window is a fixed-window counter. The zero Max disables limiting. Not safe for concurrent use.
type Window struct {
	Span time.Duration
	Max  int

	start time.Time
	count int
}

// Allow counts one event at now and reports whether it fits the current window. When it does
// not, retry is the time left until the window resets.
func (w *Window) Allow(now time.Time) (ok bool, retry time.Duration) {
	if w.Span <= 0 || w.Max <= 0 {
		return true, 0
	}
	if w.start.IsZero() || now.Sub(w.start) >= w.Span {
		w.start = now
		w.count = 0
	}
	w.count++
	if w.count <= w.Max {
		return true, 0
	}
	return false, w.start.Add(w.Span).Sub(now)
}
