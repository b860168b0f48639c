package imu

import (
	"sync"
	"sync/atomic"

	"gonum.org/v1/gonum/stat"
)

// Metrics tracks IMU front-end activity: samples filtered, FIFO
// overruns, and buffer swaps, following the same atomic-counter shape
// as uplink.Metrics.
type Metrics struct {
	SamplesFiltered atomic.Uint64
	FIFOOverruns    atomic.Uint64
	BufferSwaps     atomic.Uint64

	mu         sync.Mutex
	gapsS      []float64 // seconds between non-empty ReadAndFilter calls
	maxSamples int
}

// NewMetrics constructs an empty Metrics, retaining up to maxSamples
// recent inter-sample gaps for stuck-FIFO diagnosis.
func NewMetrics(maxSamples int) *Metrics {
	if maxSamples <= 0 {
		maxSamples = 256
	}
	return &Metrics{maxSamples: maxSamples}
}

// RecordGap records the wall-clock gap since the last non-empty drain,
// used to characterize how close CheckRetrieve is running to the
// TooFewSamples threshold.
func (m *Metrics) RecordGap(seconds float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gapsS = append(m.gapsS, seconds)
	if len(m.gapsS) > m.maxSamples {
		m.gapsS = m.gapsS[len(m.gapsS)-m.maxSamples:]
	}
}

// MeanGap reports the mean and standard deviation of recently observed
// inter-sample gaps.
func (m *Metrics) MeanGap() (mean, stddev float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.gapsS) == 0 {
		return 0, 0
	}
	return stat.MeanStdDev(m.gapsS, nil)
}
