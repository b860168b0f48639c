// Package control wires every other package together: the main control
// loop, the alarm goroutine standing in for an RTC interrupt, and the
// background cadences for location polling and uplink sync.
package control

import "time"

// Config carries the build variant's feature toggles and cadences as
// runtime fields.
type Config struct {
	// Feature toggles selecting the deployed variant.
	Storage     bool
	FIR         bool
	Raw         bool
	Hz20        bool
	Continuous  bool
	Deploy      bool
	DefmtSerial bool
	ExtGPS      bool

	// BuoySN and BuoyPR are the opaque serial number and product code
	// burned in by provisioning.
	BuoySN string
	BuoyPR string

	// Queue depths, sized so worst-case dwell time stays below the
	// modem round-trip for the feature set above.
	NoteQSize    int
	ImuQSize     int
	StorageQSize int

	// Cadences.
	GPSPeriod  time.Duration
	SyncPeriod time.Duration
	LoopDelay  time.Duration

	// GoodTries is the main loop's "give up and reset" budget: the
	// number of consecutive all-three-failed (location, drain, sync)
	// iterations tolerated before a whole-system reset.
	GoodTries int

	// IMUResetRetries bounds the alarm goroutine's consecutive
	// reset-then-retry attempts before it panics.
	IMUResetRetries int

	// Version is this build's reported firmware version, included in
	// the startup config listing.
	Version string
}

// DefaultConfig returns the default (non-"raw", non-deploy) build
// configuration.
func DefaultConfig() Config {
	return Config{
		Storage:         true,
		FIR:             true,
		NoteQSize:       12,
		ImuQSize:        3,
		StorageQSize:    3,
		GPSPeriod:       60 * time.Second,
		SyncPeriod:      20 * time.Minute,
		LoopDelay:       5 * time.Second,
		GoodTries:       10,
		IMUResetRetries: 5,
		Version:         "dev",
	}
}

// LogFields returns the selected-configuration listing the firmware
// reports on its debug channel every boot.
func (c Config) LogFields() []any {
	return []any{
		"BUOYSN", c.BuoySN,
		"BUOYPR", c.BuoyPR,
		"version", c.Version,
		"storage", c.Storage,
		"fir", c.FIR,
		"raw", c.Raw,
		"20Hz", c.Hz20,
		"continuous", c.Continuous,
		"deploy", c.Deploy,
		"ext-gps", c.ExtGPS,
		"NOTEQ_SZ", c.NoteQSize,
		"IMUQ_SZ", c.ImuQSize,
		"STORAGEQ_SZ", c.StorageQSize,
		"GPS_PERIOD", c.GPSPeriod,
		"SYNC_PERIOD", c.SyncPeriod,
	}
}
