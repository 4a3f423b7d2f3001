package observability

import (
	"math"
	"sort"
	"sync"
	"time"
)

// DefaultStageTargets are the p95 budgets of the voice pipeline stages.
var DefaultStageTargets = map[string]time.Duration{
	"live_connect":     2500 * time.Millisecond,
	"intent_parse":     1800 * time.Millisecond,
	"symptom_analysis": 8 * time.Second,
}

type StageStats struct {
	Stage       string  `json:"stage"`
	Samples     int     `json:"samples"`
	Total       uint64  `json:"total"`
	LastMS      float64 `json:"last_ms"`
	AvgMS       float64 `json:"avg_ms"`
	P50MS       float64 `json:"p50_ms"`
	P95MS       float64 `json:"p95_ms"`
	TargetP95MS float64 `json:"target_p95_ms,omitempty"`
	// OverTarget counts windowed samples slower than the target.
	OverTarget int  `json:"over_target,omitempty"`
	Breached   bool `json:"breached"`
}

type LatencySnapshot struct {
	GeneratedAt time.Time    `json:"generated_at"`
	WindowSize  int          `json:"window_size"`
	Stages      []StageStats `json:"stages"`
	// Breached lists stages whose windowed p95 exceeds their target.
	Breached []string `json:"breached,omitempty"`
}

// LatencyWindow keeps the most recent samples of each pipeline stage
// and reports them against per-stage p95 targets.
type LatencyWindow struct {
	mu      sync.RWMutex
	size    int
	targets map[string]float64
	stages  map[string]*stageSamples
}

type stageSamples struct {
	ms    []float64
	total uint64
	last  float64
}

func (s *stageSamples) add(ms float64, size int) {
	if len(s.ms) < size {
		s.ms = append(s.ms, ms)
	} else {
		s.ms[s.total%uint64(size)] = ms
	}
	s.total++
	s.last = ms
}

// NewLatencyWindow keeps size samples per stage. A nil targets map
// uses DefaultStageTargets.
func NewLatencyWindow(size int, targets map[string]time.Duration) *LatencyWindow {
	if size <= 0 {
		size = 256
	}
	if targets == nil {
		targets = DefaultStageTargets
	}
	ms := make(map[string]float64, len(targets))
	for stage, d := range targets {
		if d > 0 {
			ms[stage] = float64(d) / float64(time.Millisecond)
		}
	}
	return &LatencyWindow{
		size:    size,
		targets: ms,
		stages:  make(map[string]*stageSamples),
	}
}

func (w *LatencyWindow) Observe(stage string, ms float64) {
	if w == nil || stage == "" || ms < 0 || math.IsNaN(ms) {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	s, ok := w.stages[stage]
	if !ok {
		s = &stageSamples{ms: make([]float64, 0, w.size)}
		w.stages[stage] = s
	}
	s.add(ms, w.size)
}

func (w *LatencyWindow) Snapshot() LatencySnapshot {
	snap := LatencySnapshot{GeneratedAt: time.Now().UTC(), Stages: []StageStats{}}
	if w == nil {
		return snap
	}
	w.mu.RLock()
	defer w.mu.RUnlock()

	snap.WindowSize = w.size
	for stage, s := range w.stages {
		if len(s.ms) == 0 {
			continue
		}
		st := w.stats(stage, s)
		snap.Stages = append(snap.Stages, st)
		if st.Breached {
			snap.Breached = append(snap.Breached, stage)
		}
	}
	sort.Slice(snap.Stages, func(i, j int) bool { return snap.Stages[i].Stage < snap.Stages[j].Stage })
	sort.Strings(snap.Breached)
	return snap
}

func (w *LatencyWindow) stats(stage string, s *stageSamples) StageStats {
	sorted := append([]float64(nil), s.ms...)
	sort.Float64s(sorted)

	target := w.targets[stage]
	sum, over := 0.0, 0
	for _, v := range sorted {
		sum += v
		if target > 0 && v > target {
			over++
		}
	}
	p95 := quantile(sorted, 0.95)
	return StageStats{
		Stage:       stage,
		Samples:     len(sorted),
		Total:       s.total,
		LastMS:      round2(s.last),
		AvgMS:       round2(sum / float64(len(sorted))),
		P50MS:       round2(quantile(sorted, 0.50)),
		P95MS:       round2(p95),
		TargetP95MS: target,
		OverTarget:  over,
		Breached:    target > 0 && p95 > target,
	}
}

func (w *LatencyWindow) Reset() {
	if w == nil {
		return
	}
	w.mu.Lock()
	w.stages = make(map[string]*stageSamples)
	w.mu.Unlock()
}

// quantile interpolates linearly between closest ranks.
func quantile(sorted []float64, q float64) float64 {
	switch n := len(sorted); {
	case n == 0:
		return 0
	case q <= 0:
		return sorted[0]
	case q >= 1:
		return sorted[n-1]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(pos)
	if lo+1 >= len(sorted) {
		return sorted[lo]
	}
	return sorted[lo] + (sorted[lo+1]-sorted[lo])*(pos-float64(lo))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
