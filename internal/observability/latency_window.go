package observability

import (
	"cmp"
	"math"
	"slices"
	"sync"
	"time"
)

// Components that report into the latency window.
const (
	ComponentStore = "store"
	ComponentTone  = "tone"
)

// LatencyStats summarizes the retained calls of one component operation.
// Percentiles cover every retained call, failed ones included.
type LatencyStats struct {
	Component string  `json:"component"`
	Operation string  `json:"operation"`
	Calls     int     `json:"calls"`
	Failures  int     `json:"failures"`
	LastMS    float64 `json:"last_ms"`
	MeanMS    float64 `json:"mean_ms"`
	P50MS     float64 `json:"p50_ms"`
	P95MS     float64 `json:"p95_ms"`
	MaxMS     float64 `json:"max_ms"`
}

type LatencySnapshot struct {
	GeneratedAt time.Time      `json:"generated_at"`
	Retain      int            `json:"retain"`
	Operations  []LatencyStats `json:"operations"`
}

type callKey struct {
	component string
	operation string
}

type call struct {
	ms     float64
	failed bool
}

// callLog holds the most recent calls of one key, oldest first once full.
type callLog struct {
	calls []call
	start int
}

func (l *callLog) add(c call, retain int) {
	if len(l.calls) < retain {
		l.calls = append(l.calls, c)
		return
	}
	l.calls[l.start] = c
	l.start = (l.start + 1) % retain
}

func (l *callLog) newest() call {
	if len(l.calls) == 0 {
		return call{}
	}
	return l.calls[(l.start+len(l.calls)-1)%len(l.calls)]
}

// latencyWindow retains the last `retain` calls per component operation.
type latencyWindow struct {
	mu     sync.Mutex
	retain int
	logs   map[callKey]*callLog
}

func newLatencyWindow(retain int) *latencyWindow {
	if retain <= 0 {
		retain = 256
	}
	return &latencyWindow{retain: retain, logs: make(map[callKey]*callLog)}
}

func (w *latencyWindow) Record(component, operation string, d time.Duration, err error) {
	if component == "" || operation == "" || d < 0 {
		return
	}
	key := callKey{component: component, operation: operation}

	w.mu.Lock()
	defer w.mu.Unlock()
	l, ok := w.logs[key]
	if !ok {
		l = &callLog{}
		w.logs[key] = l
	}
	l.add(call{ms: msOf(d), failed: err != nil}, w.retain)
}

func (w *latencyWindow) Snapshot() LatencySnapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	stats := make([]LatencyStats, 0, len(w.logs))
	for key, l := range w.logs {
		if len(l.calls) == 0 {
			continue
		}
		durations := make([]float64, len(l.calls))
		var sum float64
		failures := 0
		for i, c := range l.calls {
			durations[i] = c.ms
			sum += c.ms
			if c.failed {
				failures++
			}
		}
		slices.Sort(durations)
		stats = append(stats, LatencyStats{
			Component: key.component,
			Operation: key.operation,
			Calls:     len(durations),
			Failures:  failures,
			LastMS:    round2(l.newest().ms),
			MeanMS:    round2(sum / float64(len(durations))),
			P50MS:     round2(nearestRank(durations, 50)),
			P95MS:     round2(nearestRank(durations, 95)),
			MaxMS:     round2(durations[len(durations)-1]),
		})
	}
	slices.SortFunc(stats, func(a, b LatencyStats) int {
		if c := cmp.Compare(a.Component, b.Component); c != 0 {
			return c
		}
		return cmp.Compare(a.Operation, b.Operation)
	})

	return LatencySnapshot{
		GeneratedAt: time.Now().UTC(),
		Retain:      w.retain,
		Operations:  stats,
	}
}

// nearestRank returns the smallest sample with at least pct percent of the
// samples at or below it.
func nearestRank(sorted []float64, pct int) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := (pct*len(sorted) + 99) / 100
	return sorted[max(rank, 1)-1]
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
