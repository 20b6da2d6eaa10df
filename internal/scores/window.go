package scores

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

// Range is a timeline range.
type Range string

// Interval is the aggregation step within a range.
type Interval string

const (
	RangeLive Range = "live"
	Range24h  Range = "24h"
	Range30d  Range = "30d"
	Range12m  Range = "12m"
	RangeAll  Range = "all"
)

const (
	Interval15m Interval = "15m"
	Interval1h  Interval = "1h"
	Interval1d  Interval = "1d"
	Interval1mo Interval = "1mo"
	Interval1y  Interval = "1y"
)

var allowed = map[Range][]Interval{
	RangeLive: {Interval15m, Interval1h},
	Range24h:  {Interval15m, Interval1h},
	Range30d:  {Interval1d},
	Range12m:  {Interval1mo},
	RangeAll:  {Interval1y},
}

// Ranges lists the timeline ranges in display order.
func Ranges() []Range {
	return []Range{RangeLive, Range24h, Range30d, Range12m, RangeAll}
}

// AllowedIntervals returns the intervals valid for r, first is the default.
func AllowedIntervals(r Range) []Interval {
	return slices.Clone(allowed[r])
}

// ErrInvalidWindow is wrapped by Validate and NewWindow errors.
var ErrInvalidWindow = errors.New("invalid time window")

// Window selects the time slice scores are fetched for. A zero AsOf means "now".
type Window struct {
	Range    Range     `json:"range" enum:"live,24h,30d,12m,all" doc:"Timeline range" example:"24h"`
	Interval Interval  `json:"interval" enum:"15m,1h,1d,1mo,1y" doc:"Aggregation interval" example:"1h"`
	AsOf     time.Time `json:"asOf,omitzero" required:"false" doc:"Scrub position; omitted means now"`
}

// NewWindow builds a window for r using its first allowed interval.
func NewWindow(r Range) (Window, error) {
	ivs, ok := allowed[r]
	if !ok {
		return Window{}, fmt.Errorf("%w: unknown range %q", ErrInvalidWindow, r)
	}
	return Window{Range: r, Interval: ivs[0]}, nil
}

// DefaultWindow is the live range at its first interval.
func DefaultWindow() Window {
	return Window{Range: RangeLive, Interval: Interval15m}
}

// Validate checks that the interval is allowed for the range.
func (w Window) Validate() error {
	ivs, ok := allowed[w.Range]
	if !ok {
		return fmt.Errorf("%w: unknown range %q", ErrInvalidWindow, w.Range)
	}
	if !slices.Contains(ivs, w.Interval) {
		return fmt.Errorf("%w: interval %q not allowed for range %q", ErrInvalidWindow, w.Interval, w.Range)
	}
	return nil
}

// Bounds resolves the window at now. To is AsOf (or now) truncated to the
// interval in UTC; From is zero for RangeAll.
func (w Window) Bounds(now time.Time) (from, to time.Time) {
	at := w.AsOf
	if at.IsZero() {
		at = now
	}
	to = truncate(at.UTC(), w.Interval)

	switch w.Range {
	case RangeLive:
		from = step(to, w.Interval, -1)
	case Range24h:
		from = to.Add(-24 * time.Hour)
	case Range30d:
		from = to.AddDate(0, 0, -30)
	case Range12m:
		from = to.AddDate(0, -12, 0)
	case RangeAll:
		from = time.Time{}
	}
	return from, to
}

// Key is a stable string form used for cache keys and logs.
func (w Window) Key(now time.Time) string {
	from, to := w.Bounds(now)
	return fmt.Sprintf("%s:%s:%d:%d", w.Range, w.Interval, from.Unix(), to.Unix())
}

func truncate(t time.Time, iv Interval) time.Time {
	switch iv {
	case Interval15m:
		return t.Truncate(15 * time.Minute)
	case Interval1h:
		return t.Truncate(time.Hour)
	case Interval1d:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	case Interval1mo:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	case Interval1y:
		return time.Date(t.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
	}
	return t
}

func step(t time.Time, iv Interval, n int) time.Time {
	switch iv {
	case Interval15m:
		return t.Add(time.Duration(n) * 15 * time.Minute)
	case Interval1h:
		return t.Add(time.Duration(n) * time.Hour)
	case Interval1d:
		return t.AddDate(0, 0, n)
	case Interval1mo:
		return t.AddDate(0, n, 0)
	case Interval1y:
		return t.AddDate(n, 0, 0)
	}
	return t
}
