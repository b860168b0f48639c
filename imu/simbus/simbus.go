// Package simbus provides an in-memory imu.Bus double: a small register
// file plus a FIFO of synthetic gyro/accel entries, standing in for a
// real periph.io/x/conn/v3/i2c.Dev-backed ISM330DHCX the way
// storage.NewMemVolume stands in for a real SD card and uplink/simmodem
// stands in for a real cellular modem.
package simbus

import (
	"encoding/binary"
	"errors"
	"sync"
)

// Capacity is the IMU's physical FIFO depth in entries: 256 gyro+accel
// pairs, about 1.23s at 208Hz.
const Capacity = 512

const (
	regFIFOCtrl3    = 0x09
	regFIFOCtrl4    = 0x0A
	regFIFOStatus1  = 0x3A
	regFIFOStatus2  = 0x3B
	regFIFODataTag  = 0x78
	regFIFODataOutX = 0x79

	tagGyro  byte = 0x01
	tagAccel byte = 0x02

	fifoModeBypass byte = 0x0
)

const (
	accelSensitivity = 0.122e-3 * 9.80665
	gyroSensitivity  = 17.50e-3 * 3.14159265358979 / 180.0
)

type entry struct {
	isGyro bool
	xyz    [3]float64
}

// Bus is a simulated IMU register file and FIFO.
type Bus struct {
	mu      sync.Mutex
	ctrl    map[byte]byte
	queue   []entry
	overrun bool
}

// New constructs an empty, bypass-mode simulated bus.
func New() *Bus {
	return &Bus{ctrl: make(map[byte]byte)}
}

// ErrOverrun is returned by PushPair once the FIFO has overrun; the
// caller (tests driving a stuck-consumer scenario) can check for it.
var ErrOverrun = errors.New("simbus: fifo overrun")

// PushPair appends one gyro+accel sample pair to the FIFO in gyro-then-
// accel order, matching the most common ordering the ISM330DHCX FIFO
// interleaves at equal batch data rates. Once the FIFO is at capacity,
// further pushes set the overrun flag and the pair is not stored
// (matching real hardware: an overrun FIFO stops accumulating).
func (b *Bus) PushPair(gyro, accel [3]float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.queue)+2 > Capacity {
		b.overrun = true
		return ErrOverrun
	}
	b.queue = append(b.queue, entry{isGyro: true, xyz: gyro}, entry{isGyro: false, xyz: accel})
	return nil
}

// Reset clears the FIFO and overrun flag, as a real FIFO_CTRL4 bypass
// transition does.
func (b *Bus) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queue = nil
	b.overrun = false
}

// Pending returns the number of queued FIFO entries (not pairs).
func (b *Bus) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// Tx implements imu.Bus.
func (b *Bus) Tx(w, r []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(w) == 0 {
		return errors.New("simbus: empty write")
	}
	addr := w[0]

	if len(r) == 0 {
		// Register write: addr byte followed by one data byte.
		if len(w) >= 2 {
			b.ctrl[addr] = w[1]
			if addr == regFIFOCtrl4 && w[1] == fifoModeBypass {
				b.queue = nil
				b.overrun = false
			}
		}
		return nil
	}

	switch addr {
	case regFIFOStatus1:
		n := len(b.queue)
		if len(r) >= 1 {
			r[0] = byte(n & 0xff)
		}
		if len(r) >= 2 {
			flags := byte((n >> 8) & 0x3)
			if n >= Capacity {
				flags |= 1 << 5
			}
			if b.overrun {
				flags |= 1<<6 | 1<<3
			}
			r[1] = flags
		}
	case regFIFODataTag:
		if len(b.queue) == 0 {
			r[0] = 0
			return nil
		}
		if b.queue[0].isGyro {
			r[0] = tagGyro << 3
		} else {
			r[0] = tagAccel << 3
		}
	case regFIFODataOutX:
		if len(b.queue) == 0 {
			for i := range r {
				r[i] = 0
			}
			return nil
		}
		e := b.queue[0]
		b.queue = b.queue[1:]
		sensitivity := accelSensitivity
		if e.isGyro {
			sensitivity = gyroSensitivity
		}
		for i := 0; i < 3 && 2*i+1 < len(r); i++ {
			raw := int16(e.xyz[i] / sensitivity)
			binary.LittleEndian.PutUint16(r[2*i:2*i+2], uint16(raw))
		}
	default:
		for i := range r {
			r[i] = b.ctrl[addr]
		}
	}
	return nil
}
