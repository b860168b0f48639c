// Package imu drains the IMU's FIFO, runs each sample pair through the
// orientation filter and FIR decimators, and hands full package buffers
// off to the storage pipeline.
package imu

import (
	"context"
	"encoding/binary"
	"math"
	"time"

	"github.com/golang/geo/s2"

	"github.com/gauteh/sfy-go/axl"
	"github.com/gauteh/sfy-go/fir"
	"github.com/gauteh/sfy-go/internal/logging"
	"github.com/gauteh/sfy-go/spscqueue"
)

// accelSensitivity converts a raw +-4g accelerometer LSB to m/s^2
// (0.122 mg/LSB, ISM330DHCX datasheet table for FS_XL=+-4g).
const accelSensitivity = 0.122e-3 * 9.80665

// gyroSensitivity converts a raw +-500dps gyroscope LSB to rad/s
// (17.50 mdps/LSB, ISM330DHCX datasheet table for FS_G=+-500dps).
const gyroSensitivity = 17.50e-3 * math.Pi / 180.0

// ODRHz is the IMU's native output data rate, fixed regardless of the
// FIR profile selected for decimation.
const ODRHz = 208.0

// stuckMin/stuckMax bound the "TooFewSamples" window: shorter gaps are
// normal scheduling jitter, longer ones likely mean the IMU has wedged
// in some way reset alone cannot fix.
const (
	stuckMin = 3 * time.Second
	stuckMax = 100 * time.Second
)

// Config selects the IMU front-end's build-time feature toggle.
type Config struct {
	// Hz20 selects the 20Hz-output FIR profile instead of the default
	// 50Hz one.
	Hz20 bool
}

func (c Config) profile() fir.Profile {
	if c.Hz20 {
		return fir.Hz20
	}
	return fir.Hz50
}

// Device owns an IMU bus exclusively and drains it into a package buffer.
type Device struct {
	bus     Bus
	buf     *axl.Buffer
	metrics *Metrics
	logger  *logging.Logger

	freq    float64
	lastRun time.Time

	timestampMS   int64
	offset        uint16
	lon, lat      float64
	positionTimeS uint32
}

// New configures the IMU (accel +-4g, gyro +-500dps, ODR 208Hz,
// block-data-update, LPF2, G_HM mode), boots it, and clears the FIFO.
func New(bus Bus, cfg Config, logger *logging.Logger) (*Device, error) {
	if logger == nil {
		logger = logging.Default()
	}
	d := &Device{
		bus:     bus,
		buf:     axl.NewBuffer(cfg.profile(), 1.0/ODRHz),
		metrics: NewMetrics(0),
		logger:  logger,
		// The packet sample rate is the decimated output rate, not the
		// IMU's native ODR.
		freq: fir.ParamsFor(cfg.profile()).OutFreq,
	}
	if err := d.boot(); err != nil {
		return nil, err
	}
	if err := d.disableFIFO(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Device) boot() error {
	// CTRL3_C: boot, block-data-update, auto-increment addressing.
	if err := d.regWrite(regCtrl3C, 1<<7|1<<6|1<<2); err != nil {
		return newErr("boot", CodeBusError, err)
	}
	// CTRL1_XL: ODR 208Hz, FS +-4g, LPF2 enabled.
	if err := d.regWrite(regCtrl1XL, odr208Hz<<4|fsAccel4g<<2|1<<1); err != nil {
		return newErr("boot", CodeBusError, err)
	}
	// CTRL2_G: ODR 208Hz, FS +-500dps.
	if err := d.regWrite(regCtrl2G, odr208Hz<<4|fsGyro500<<1); err != nil {
		return newErr("boot", CodeBusError, err)
	}
	// CTRL7_G: gyroscope high-performance mode on.
	if err := d.regWrite(regCtrl7G, 1<<7); err != nil {
		return newErr("boot", CodeBusError, err)
	}
	return nil
}

func (d *Device) disableFIFO() error {
	if err := d.regWrite(regFIFOCtrl4, byte(FIFOModeBypass)); err != nil {
		return newErr("disableFIFO", CodeBusError, err)
	}
	return nil
}

// EnableFIFO sets accel/gyro batch data rates to the ODR, clears
// overrun/full flags, and switches the FIFO into streaming mode. delay
// is the settle time after resetting the FIFO before its status flags
// are checked.
func (d *Device) EnableFIFO(ctx context.Context, delay time.Duration) error {
	if err := d.regWrite(regFIFOCtrl4, byte(FIFOModeBypass)); err != nil {
		return newErr("EnableFIFO", CodeBusError, err)
	}
	if err := d.regWrite(regFIFOCtrl3, bdr208Hz|bdr208Hz<<4); err != nil {
		return newErr("EnableFIFO", CodeBusError, err)
	}

	if delay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	// The latched status flags are side-effecting reads on hardware;
	// reading them once clears them before streaming starts.
	if _, err := d.regRead(regFIFOStatus2, 1); err != nil {
		return newErr("EnableFIFO", CodeBusError, err)
	}

	if err := d.regWrite(regFIFOCtrl4, byte(FIFOModeStream)); err != nil {
		return newErr("EnableFIFO", CodeBusError, err)
	}
	return nil
}

// fifoStatus decodes FIFO_STATUS1/2: the pending sample count and the
// full/overrun/overrun-latched flags.
func (d *Device) fifoStatus() (count int, full, overrun, overrunLatched bool, err error) {
	b, rerr := d.regRead(regFIFOStatus1, 2)
	if rerr != nil {
		return 0, false, false, false, newErr("fifoStatus", CodeBusError, rerr)
	}
	count = int(b[0]) | int(b[1]&0x3)<<8
	full = b[1]&(1<<5) != 0
	overrun = b[1]&(1<<6) != 0
	overrunLatched = b[1]&(1<<3) != 0
	return count, full, overrun, overrunLatched, nil
}

// fifoPop reads one tagged FIFO entry and reports whether it is a gyro
// or accel sample, decoded to physical units.
func (d *Device) fifoPop() (isGyro bool, xyz [3]float64, err error) {
	tagByte, rerr := d.regRead(regFIFODataTag, 1)
	if rerr != nil {
		return false, xyz, newErr("fifoPop", CodeBusError, rerr)
	}
	data, rerr := d.regRead(regFIFODataOutX, 6)
	if rerr != nil {
		return false, xyz, newErr("fifoPop", CodeBusError, rerr)
	}

	tag := tagByte[0] >> 3
	var sensitivity float64
	switch tag {
	case tagGyro:
		isGyro = true
		sensitivity = gyroSensitivity
	case tagAccel:
		isGyro = false
		sensitivity = accelSensitivity
	default:
		return false, xyz, newErr("fifoPop", CodeNonSampleInFIFO, nil)
	}

	for i := 0; i < 3; i++ {
		raw := int16(binary.LittleEndian.Uint16(data[2*i : 2*i+2]))
		xyz[i] = float64(raw) * sensitivity
	}
	return isGyro, xyz, nil
}

// ReadAndFilter drains pending sample pairs from the FIFO, classifies
// each pair as (gyro, accel) in either order, and pushes each pair
// through the orientation filter + FIR decimators via axl.Buffer. It
// returns the number of pairs consumed.
func (d *Device) ReadAndFilter(ctx context.Context) (int, error) {
	count, full, overrun, overrunLatched, err := d.fifoStatus()
	if err != nil {
		return 0, err
	}
	if full || overrun || overrunLatched {
		d.metrics.FIFOOverruns.Add(1)
		return 0, newErr("ReadAndFilter", CodeFIFOOverrun, nil)
	}

	pairs := count / 2
	consumed := 0
	for i := 0; i < pairs; i++ {
		if d.buf.IsFull() {
			break
		}

		g1, v1, err := d.fifoPop()
		if err != nil {
			return consumed, err
		}
		g2, v2, err := d.fifoPop()
		if err != nil {
			return consumed, err
		}

		var gyro, accel [3]float64
		switch {
		case g1 && !g2:
			gyro, accel = v1, v2
		case !g1 && g2:
			gyro, accel = v2, v1
		default:
			return consumed, newErr("ReadAndFilter", CodeNonSampleInFIFO, nil)
		}

		if err := d.buf.Sample(gyro, accel); err != nil {
			return consumed, newErr("ReadAndFilter", CodeBusError, err)
		}
		consumed++
	}

	d.metrics.SamplesFiltered.Add(uint64(consumed))
	return consumed, nil
}

// CheckRetrieve is the per-tick entry point the alarm goroutine calls:
// it drains and filters the FIFO, raises a too-few-samples error when
// the IMU has gone quiet for too long, and enqueues a full buffer onto
// q when ready.
func (d *Device) CheckRetrieve(ctx context.Context, now time.Time, pos s2.LatLng, positionTimeS uint32, q *spscqueue.Queue[axl.Packet]) error {
	n, err := d.ReadAndFilter(ctx)
	if err != nil {
		return err
	}

	if n > 0 {
		if !d.lastRun.IsZero() {
			d.metrics.RecordGap(now.Sub(d.lastRun).Seconds())
		}
		d.lastRun = now
	} else if !d.lastRun.IsZero() {
		elapsed := now.Sub(d.lastRun)
		if elapsed > stuckMin && elapsed < stuckMax {
			return &Error{Op: "CheckRetrieve", Code: CodeTooFewSamples, ElapsedMS: elapsed.Milliseconds()}
		}
	}

	if d.buf.IsFull() {
		pkt := d.TakeBuffer(now.UnixMilli(), pos, positionTimeS)
		if _, ok := q.Enqueue(pkt); !ok {
			d.logger.Warn("imu: imu queue full, dropping packet")
		}
		d.metrics.BufferSwaps.Add(1)
	}
	return nil
}

// TakeBuffer swaps out the current buffer into a Packet stamped with
// the *previous* timestamp/position/offset, then primes the device's
// state for the next window. offset is set to half the FIFO's pending
// sample count at the instant of the swap, letting a consumer recover
// per-sample timestamps.
func (d *Device) TakeBuffer(nowMS int64, pos s2.LatLng, positionTimeS uint32) axl.Packet {
	pkt := axl.Packet{
		TimestampMS:   d.timestampMS,
		Offset:        d.offset,
		PositionTimeS: d.positionTimeS,
		Lon:           d.lon,
		Lat:           d.lat,
		Freq:          float32(d.freq),
		Data:          d.buf.Take(),
	}

	d.lon = pos.Lng.Degrees()
	d.lat = pos.Lat.Degrees()
	d.positionTimeS = positionTimeS
	d.timestampMS = nowMS

	if count, _, _, _, err := d.fifoStatus(); err == nil {
		d.offset = uint16(count / 2)
	}

	return pkt
}

// IsFull, Len and Capacity report the underlying buffer's fill state as
// axl.Buffer does: Len counts decimated triples, Capacity counts Half
// values (AxlSZ).
func (d *Device) IsFull() bool  { return d.buf.IsFull() }
func (d *Device) Len() int      { return d.buf.Len() }
func (d *Device) Capacity() int { return d.buf.Capacity() }

// Metrics exposes this device's activity counters.
func (d *Device) Metrics() *Metrics { return d.metrics }

// Reset re-boots the IMU and re-opens the FIFO, the fallback for any
// IMU error raised from the alarm goroutine.
func (d *Device) Reset(ctx context.Context) error {
	if err := d.disableFIFO(); err != nil {
		return err
	}
	if err := d.boot(); err != nil {
		return err
	}
	return d.EnableFIFO(ctx, 10*time.Millisecond)
}
