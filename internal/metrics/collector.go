// Package metrics provides in-memory runtime statistics collection.
package metrics

import (
	"math"
	"sort"
	"sync"
	"time"
)

// Operation names for the collector. Tool invocations are recorded under
// ToolOp(name).
const (
	OpEngineNext = "engine_next"
	OpTurn       = "turn"
	OpAuditWrite = "audit_write"
)

// ToolOp returns the operation name for a tool.
func ToolOp(tool string) string { return "tool:" + tool }

// OperationMetrics holds aggregated metrics for one operation.
type OperationMetrics struct {
	Count     int64
	Failures  int64
	TotalTime time.Duration
	MinTime   time.Duration
	MaxTime   time.Duration

	InputTokens  int64
	OutputTokens int64
}

// OperationSnapshot provides computed stats for one operation.
type OperationSnapshot struct {
	Name         string  `json:"name"`
	Count        int64   `json:"count"`
	Failures     int64   `json:"failures"`
	TotalTimeMs  int64   `json:"total_time_ms"`
	AvgTimeMs    float64 `json:"avg_time_ms"`
	MinTimeMs    int64   `json:"min_time_ms"`
	MaxTimeMs    int64   `json:"max_time_ms"`
	InputTokens  int64   `json:"input_tokens,omitempty"`
	OutputTokens int64   `json:"output_tokens,omitempty"`
}

// Snapshot is the full set of statistics at a point in time.
type Snapshot struct {
	UptimeSeconds float64             `json:"uptime_seconds"`
	Operations    []OperationSnapshot `json:"operations"`
}

// Collector aggregates runtime statistics. All methods are thread-safe and
// a nil *Collector ignores every call.
type Collector struct {
	mu        sync.RWMutex
	startTime time.Time
	ops       map[string]*OperationMetrics
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{
		startTime: time.Now(),
		ops:       make(map[string]*OperationMetrics),
	}
}

// getOrCreate returns the metrics for op. Caller must hold the write lock.
func (c *Collector) getOrCreate(op string) *OperationMetrics {
	m, ok := c.ops[op]
	if !ok {
		m = &OperationMetrics{MinTime: time.Duration(math.MaxInt64)}
		c.ops[op] = m
	}
	return m
}

func (m *OperationMetrics) observe(d time.Duration) {
	m.Count++
	m.TotalTime += d
	if d < m.MinTime {
		m.MinTime = d
	}
	if d > m.MaxTime {
		m.MaxTime = d
	}
}

// RecordTiming records one completed operation.
func (c *Collector) RecordTiming(op string, d time.Duration) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.getOrCreate(op).observe(d)
}

// RecordOutcome records one operation and whether it failed.
func (c *Collector) RecordOutcome(op string, d time.Duration, failed bool) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	m := c.getOrCreate(op)
	m.observe(d)
	if failed {
		m.Failures++
	}
}

// RecordFailure counts a failure without timing.
func (c *Collector) RecordFailure(op string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.getOrCreate(op).Failures++
}

// RecordLLMUsage records timing and token usage for an engine call.
func (c *Collector) RecordLLMUsage(op string, d time.Duration, inputTokens, outputTokens int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	m := c.getOrCreate(op)
	m.observe(d)
	m.InputTokens += inputTokens
	m.OutputTokens += outputTokens
}

// Snapshot returns a point-in-time copy sorted by operation name.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap := Snapshot{UptimeSeconds: time.Since(c.startTime).Seconds()}
	for name, m := range c.ops {
		s := OperationSnapshot{
			Name:         name,
			Count:        m.Count,
			Failures:     m.Failures,
			TotalTimeMs:  m.TotalTime.Milliseconds(),
			MaxTimeMs:    m.MaxTime.Milliseconds(),
			InputTokens:  m.InputTokens,
			OutputTokens: m.OutputTokens,
		}
		if m.Count > 0 {
			s.AvgTimeMs = float64(m.TotalTime.Milliseconds()) / float64(m.Count)
			s.MinTimeMs = m.MinTime.Milliseconds()
		}
		snap.Operations = append(snap.Operations, s)
	}
	sort.Slice(snap.Operations, func(i, j int) bool {
		return snap.Operations[i].Name < snap.Operations[j].Name
	})
	return snap
}

// Op returns the snapshot of a single operation.
func (s Snapshot) Op(name string) (OperationSnapshot, bool) {
	for _, o := range s.Operations {
		if o.Name == name {
			return o, true
		}
	}
	return OperationSnapshot{}, false
}
