// Package density buckets lines into fixed time windows to find hot spots.
//
// Window starts are the wall-clock floor of a line's time at its own UTC
// offset (10:07 -> 10:00 for a 10 minute width). Only non-empty windows are
// reported. Ordering is by count descending, then by start ascending, so the
// top-K selection is deterministic.
package density

import (
	"sort"
	"time"

	"github.com/compresr/chat-recap/internal/pipes"
)

// Window is one time bucket.
type Window struct {
	Start time.Time
	Count int
}

// Floor returns the start of the width-aligned window containing t.
// Alignment is on t's wall clock at t's own UTC offset, so the result is
// never after t and never more than width before it, also on DST
// transition days. width must evenly divide a day.
func Floor(t time.Time, width time.Duration) time.Time {
	_, offset := t.Zone()
	wall := time.Duration(t.UnixNano()) + time.Duration(offset)*time.Second
	rem := wall % width
	if rem < 0 {
		rem += width
	}
	return t.Add(-rem)
}

// Buckets counts lines per window, hottest first.
func Buckets(lines []pipes.Line, width time.Duration) []Window {
	if len(lines) == 0 {
		return nil
	}
	if width <= 0 {
		width = pipes.DefaultDensityWindow
	}

	counts := make(map[int64]*Window)
	for _, l := range lines {
		start := Floor(l.Time, width)
		key := start.UnixNano()
		if w, ok := counts[key]; ok {
			w.Count++
			continue
		}
		counts[key] = &Window{Start: start, Count: 1}
	}

	windows := make([]Window, 0, len(counts))
	for _, w := range counts {
		windows = append(windows, *w)
	}
	sort.Slice(windows, func(i, j int) bool {
		if windows[i].Count != windows[j].Count {
			return windows[i].Count > windows[j].Count
		}
		return windows[i].Start.Before(windows[j].Start)
	})
	return windows
}

// Hot returns the first k windows of a Buckets result.
func Hot(windows []Window, k int) []Window {
	if k <= 0 {
		return nil
	}
	if len(windows) <= k {
		return windows
	}
	return windows[:k]
}

// Index answers "is t inside a hot window" for a fixed window width.
type Index struct {
	width  time.Duration
	starts []time.Time // sorted ascending
}

// NewIndex builds an index over hot windows of the given width.
func NewIndex(hot []Window, width time.Duration) *Index {
	if width <= 0 {
		width = pipes.DefaultDensityWindow
	}
	starts := make([]time.Time, len(hot))
	for i, w := range hot {
		starts[i] = w.Start
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i].Before(starts[j]) })
	return &Index{width: width, starts: starts}
}

// Contains reports whether t falls in [start, start+width) of a hot window.
func (x *Index) Contains(t time.Time) bool {
	// First window starting after t; the candidate is the one before it.
	i := sort.Search(len(x.starts), func(i int) bool { return x.starts[i].After(t) })
	if i == 0 {
		return false
	}
	start := x.starts[i-1]
	return !t.Before(start) && t.Before(start.Add(x.width))
}

// Len returns the number of hot windows.
func (x *Index) Len() int { return len(x.starts) }

// Partition splits lines into hot and cold, preserving relative order.
func Partition(lines []pipes.Line, x *Index) (hot, cold []pipes.Line) {
	for _, l := range lines {
		if x.Contains(l.Time) {
			hot = append(hot, l)
		} else {
			cold = append(cold, l)
		}
	}
	return hot, cold
}

// Estimator bundles the density settings for the sampler.
type Estimator struct {
	cfg pipes.DensityConfig
}

// NewEstimator creates a density estimator.
func NewEstimator(cfg pipes.DensityConfig) *Estimator {
	if cfg.Window <= 0 {
		cfg.Window = pipes.DefaultDensityWindow
	}
	if cfg.HotWindows <= 0 {
		cfg.HotWindows = pipes.DefaultHotWindows
	}
	return &Estimator{cfg: cfg}
}

// Split buckets lines, selects the hot windows and partitions the lines.
func (e *Estimator) Split(lines []pipes.Line) (hot, cold []pipes.Line, windows []Window) {
	windows = Hot(Buckets(lines, e.cfg.Window), e.cfg.HotWindows)
	hot, cold = Partition(lines, NewIndex(windows, e.cfg.Window))
	return hot, cold, windows
}
