// Package metrics provides in-memory pipeline timing statistics and the
// Prometheus series exported at /metrics.
package metrics

import (
	"sync"
	"time"
)

// OperationSnapshot provides computed stats from raw metrics.
type OperationSnapshot struct {
	Count       int64   `json:"count"`
	TotalTimeMs int64   `json:"total_time_ms"`
	AvgTimeMs   float64 `json:"avg_time_ms"`
	MinTimeMs   int64   `json:"min_time_ms"`
	MaxTimeMs   int64   `json:"max_time_ms"`

	// Token stats (nil if not applicable)
	TotalInputTokens  *int64   `json:"total_input_tokens,omitempty"`
	TotalOutputTokens *int64   `json:"total_output_tokens,omitempty"`
	AvgInputTokens    *float64 `json:"avg_input_tokens,omitempty"`
	AvgOutputTokens   *float64 `json:"avg_output_tokens,omitempty"`
	MinInputTokens    *int64   `json:"min_input_tokens,omitempty"`
	MaxInputTokens    *int64   `json:"max_input_tokens,omitempty"`
	MinOutputTokens   *int64   `json:"min_output_tokens,omitempty"`
	MaxOutputTokens   *int64   `json:"max_output_tokens,omitempty"`
}

// Snapshot represents pipeline statistics at a point in time.
type Snapshot struct {
	UptimeSeconds float64                       `json:"uptime_seconds"`
	Operations    map[string]*OperationSnapshot `json:"operations"`
}

// Operation names for the collector.
const (
	OpTranscribe = "transcribe"
	OpDiarize    = "diarize"
	OpCluster    = "cluster"
	OpReconcile  = "reconcile"
	OpEvidence   = "evidence"
	OpSynthesize = "synthesize"
	OpGenerate   = "generate"
	OpStore      = "store"
)

// tokenOps report token usage in snapshots.
var tokenOps = map[string]bool{OpGenerate: true}

// extent tracks the total and the range of a series of observations.
type extent struct {
	total, min, max int64
}

func (e *extent) add(v int64, first bool) {
	e.total += v
	if first || v < e.min {
		e.min = v
	}
	if v > e.max {
		e.max = v
	}
}

// stage accumulates observations for one operation.
type stage struct {
	calls   int64
	elapsed extent // nanoseconds
	in, out extent
	// tokenCalls counts calls that reported usage.
	tokenCalls int64
}

func (st *stage) observe(d time.Duration) {
	st.elapsed.add(int64(d), st.calls == 0)
	st.calls++
}

func (st *stage) observeTokens(in, out int64) {
	first := st.tokenCalls == 0
	st.in.add(in, first)
	st.out.add(out, first)
	st.tokenCalls++
}

func (st *stage) snapshot(withTokens bool) *OperationSnapshot {
	if st.calls == 0 {
		return nil
	}
	ms := func(ns int64) int64 { return time.Duration(ns).Milliseconds() }
	snap := &OperationSnapshot{
		Count:       st.calls,
		TotalTimeMs: ms(st.elapsed.total),
		AvgTimeMs:   float64(ms(st.elapsed.total)) / float64(st.calls),
		MinTimeMs:   ms(st.elapsed.min),
		MaxTimeMs:   ms(st.elapsed.max),
	}
	if !withTokens || st.tokenCalls == 0 || st.in.total+st.out.total == 0 {
		return snap
	}
	in, out := st.in, st.out
	avgIn := float64(in.total) / float64(st.calls)
	avgOut := float64(out.total) / float64(st.calls)
	snap.TotalInputTokens, snap.TotalOutputTokens = &in.total, &out.total
	snap.AvgInputTokens, snap.AvgOutputTokens = &avgIn, &avgOut
	snap.MinInputTokens, snap.MaxInputTokens = &in.min, &in.max
	snap.MinOutputTokens, snap.MaxOutputTokens = &out.min, &out.max
	return snap
}

// Collector aggregates in-memory runtime statistics.
// All methods are thread-safe.
type Collector struct {
	mu      sync.Mutex
	started time.Time
	stages  map[string]*stage
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{
		started: time.Now(),
		stages:  make(map[string]*stage),
	}
}

func (c *Collector) stageLocked(op string) *stage {
	st := c.stages[op]
	if st == nil {
		st = &stage{}
		c.stages[op] = st
	}
	return st
}

// RecordTiming records one call of op.
func (c *Collector) RecordTiming(op string, d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stageLocked(op).observe(d)
}

// RecordLLMUsage records timing and token usage for one model call.
func (c *Collector) RecordLLMUsage(op string, d time.Duration, inputTokens, outputTokens int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.stageLocked(op)
	st.observe(d)
	st.observeTokens(inputTokens, outputTokens)
	TokensUsed.WithLabelValues("input").Add(float64(inputTokens))
	TokensUsed.WithLabelValues("output").Add(float64(outputTokens))
}

// Snapshot returns a point-in-time copy of all statistics. Operations that
// never ran are omitted.
func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	ops := make(map[string]*OperationSnapshot, len(c.stages))
	for name, st := range c.stages {
		if snap := st.snapshot(tokenOps[name]); snap != nil {
			ops[name] = snap
		}
	}
	return Snapshot{
		UptimeSeconds: time.Since(c.started).Seconds(),
		Operations:    ops,
	}
}

// Time records the duration of fn under op and observes it in the
// stage histogram.
func (c *Collector) Time(op string, fn func() error) error {
	start := time.Now()
	err := fn()
	d := time.Since(start)
	c.RecordTiming(op, d)
	StageDuration.WithLabelValues(op).Observe(d.Seconds())
	if err != nil {
		StageErrors.WithLabelValues(op).Inc()
	}
	return err
}
