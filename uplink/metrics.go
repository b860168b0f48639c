package uplink

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"gonum.org/v1/gonum/stat"
)

// Metrics tracks uplink activity: notes and bytes sent, syncs, and
// failed drains.
type Metrics struct {
	NotesSent   atomic.Uint64
	BytesSent   atomic.Uint64
	SyncCount   atomic.Uint64
	DrainErrors atomic.Uint64

	mu         sync.Mutex
	latencies  []float64 // seconds; bounded below
	maxSamples int
}

// NewMetrics constructs an empty Metrics, retaining up to maxSamples
// recent sync latencies for percentile estimation.
func NewMetrics(maxSamples int) *Metrics {
	if maxSamples <= 0 {
		maxSamples = 256
	}
	return &Metrics{maxSamples: maxSamples}
}

// RecordNote records one transmitted note.
func (m *Metrics) RecordNote(bytes int) {
	m.NotesSent.Add(1)
	m.BytesSent.Add(uint64(bytes))
}

// RecordSync records a completed sync's wall-clock duration.
func (m *Metrics) RecordSync(d time.Duration) {
	m.SyncCount.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latencies = append(m.latencies, d.Seconds())
	if len(m.latencies) > m.maxSamples {
		m.latencies = m.latencies[len(m.latencies)-m.maxSamples:]
	}
}

// RecordDrainError records a failed drain/sync attempt.
func (m *Metrics) RecordDrainError() { m.DrainErrors.Add(1) }

// SyncLatencyQuantile estimates the given quantile (0..1) of recent
// sync latencies.
func (m *Metrics) SyncLatencyQuantile(q float64) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.latencies) == 0 {
		return 0
	}
	sorted := append([]float64(nil), m.latencies...)
	sort.Float64s(sorted)
	return stat.Quantile(q, stat.Empirical, sorted, nil)
}
