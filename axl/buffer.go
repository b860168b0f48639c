package axl

import (
	"fmt"

	"github.com/gauteh/sfy-go/fir"
	"github.com/gauteh/sfy-go/orientation"
)

// ErrBufFull is returned by Sample when the buffer has already reached
// AxlSZ samples and must be taken (drained) before accepting more.
var ErrBufFull = fmt.Errorf("axl: buffer full")

// Buffer accumulates orientation-filtered, FIR-decimated IMU samples
// into a fixed-capacity payload ready to become a Packet.
type Buffer struct {
	fir    [SampleSZ]*fir.Decimator
	filter *orientation.Filter
	dt     float64
	data   []Half
}

// NewBuffer constructs an empty Buffer. dt is the native IMU sample
// period in seconds, used to drive the orientation filter's integration.
func NewBuffer(profile fir.Profile, dt float64) *Buffer {
	b := &Buffer{
		filter: orientation.New(),
		dt:     dt,
		data:   make([]Half, 0, AxlSZ),
	}
	for i := range b.fir {
		b.fir[i] = fir.NewDecimator(profile)
	}
	return b
}

// IsFull reports whether the buffer has reached capacity.
func (b *Buffer) IsFull() bool { return len(b.data) >= AxlSZ }

// Len returns the number of triples currently buffered.
func (b *Buffer) Len() int { return len(b.data) / SampleSZ }

// Capacity returns the maximum number of Half values the buffer holds.
func (b *Buffer) Capacity() int { return AxlSZ }

// Sample feeds one gyro+accel sample pair through the orientation
// filter and the three per-axis decimators, appending a new triple to
// the buffer only when all three decimators emit on the same call. Any
// other combination of emissions means the three FIR/decimate chains
// have fallen out of lock-step, which is a structural bug rather than a
// runtime condition to recover from, and panics accordingly.
func (b *Buffer) Sample(gyro, accel [3]float64) error {
	if b.IsFull() {
		return ErrBufFull
	}

	b.filter.Update(gyro[0], gyro[1], gyro[2], accel[0], accel[1], accel[2], b.dt)
	earth := b.filter.RotateToEarth(accel)

	var vals [SampleSZ]float64
	var oks [SampleSZ]bool
	for axis := 0; axis < SampleSZ; axis++ {
		vals[axis], oks[axis] = b.fir[axis].Decimate(earth[axis])
	}

	switch {
	case oks[0] && oks[1] && oks[2]:
		for axis := 0; axis < SampleSZ; axis++ {
			b.data = append(b.data, FromFloat32(float32(vals[axis])))
		}
	case !oks[0] && !oks[1] && !oks[2]:
		// No emission this call; nothing to do.
	default:
		panic("axl: decimators emitted out of phase")
	}
	return nil
}

// Take drains the buffer's contents, padding with zero Half values up
// to AxlSZ if the buffer was taken before reaching capacity, and resets
// it for reuse.
func (b *Buffer) Take() []Half {
	out := make([]Half, AxlSZ)
	copy(out, b.data)
	b.data = b.data[:0]
	return out
}
