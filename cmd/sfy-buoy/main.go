// sfy-buoy runs the wave buoy data pipeline: IMU sampling and
// orientation filtering, durable package storage, and opportunistic
// cellular uplink. Without real hardware attached it runs against the
// built-in simulators, which is useful for soak-testing the pipeline on
// a workbench.
package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/gauteh/sfy-go/control"
	"github.com/gauteh/sfy-go/imu"
	"github.com/gauteh/sfy-go/imu/simbus"
	"github.com/gauteh/sfy-go/internal/logging"
	"github.com/gauteh/sfy-go/logbuf"
	"github.com/gauteh/sfy-go/sharedstate"
	"github.com/gauteh/sfy-go/storage"
	"github.com/gauteh/sfy-go/uplink/simmodem"
)

// imuAddr is the ISM330DHCX's I2C address.
const imuAddr = 0x6a

func main() {
	var (
		buoySN   = flag.String("sn", os.Getenv("BUOYSN"), "buoy serial number")
		buoyPR   = flag.String("pr", os.Getenv("BUOYPR"), "hub product code")
		dataDir  = flag.String("data", "./data", "directory the storage collections are written to")
		i2cName  = flag.String("i2c", "", "I2C bus the IMU is attached to (empty: simulated IMU)")
		hz20     = flag.Bool("20hz", false, "use the 20Hz output profile instead of 50Hz")
		deploy   = flag.Bool("deploy", false, "deployment mode")
		debugLog = flag.Bool("debug", false, "debug-level logging")
	)
	flag.Parse()

	level := logging.LevelInfo
	if *debugLog {
		level = logging.LevelDebug
	}
	logger := logging.NewLogger(&logging.Config{Level: level, Develop: !*deploy})
	logging.SetDefault(logger)
	defer func() { _ = logger.Sync() }()

	// The session id ties log lines from one boot together once they
	// reach the other side of the uplink.
	logger = logger.With("session", uuid.NewString())

	cfg := control.DefaultConfig()
	cfg.BuoySN = *buoySN
	cfg.BuoyPR = *buoyPR
	cfg.Hz20 = *hz20
	cfg.Deploy = *deploy

	if err := run(cfg, *dataDir, *i2cName, logger); err != nil {
		logger.Error("sfy-buoy: fatal", "err", err)
		os.Exit(1)
	}
}

func run(cfg control.Config, dataDir, i2cName string, logger *logging.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	vol, err := storage.NewFSVolume(dataDir)
	if err != nil {
		return err
	}
	store := storage.New(vol, logger)

	bus, cleanup, err := openIMUBus(ctx, i2cName, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	dev, err := imu.New(bus, imu.Config{Hz20: cfg.Hz20}, logger)
	if err != nil {
		return fmt.Errorf("imu init: %w", err)
	}
	if err := dev.EnableFIFO(ctx, 10*time.Millisecond); err != nil {
		return fmt.Errorf("imu fifo: %w", err)
	}

	// A real notecard transport would slot in here; the simulated modem
	// keeps the rest of the pipeline exercised end to end.
	modem := simmodem.New()

	clk := clock.New()
	shared := sharedstate.New(clk)
	logq := logbuf.New(os.Stderr)

	loop, err := control.New(cfg, clk, logger, dev, store, modem, shared, logq, func() {
		// Reset vector: exit and let the supervisor restart the process
		// with a fresh collection.
		os.Exit(1)
	})
	if err != nil {
		return err
	}
	return loop.Run(ctx)
}

// openIMUBus returns the IMU transport: a periph.io I2C device when a
// bus name is given, otherwise the simulator fed with synthetic wave
// motion.
func openIMUBus(ctx context.Context, i2cName string, logger *logging.Logger) (imu.Bus, func(), error) {
	if i2cName != "" {
		if _, err := host.Init(); err != nil {
			return nil, nil, fmt.Errorf("host init: %w", err)
		}
		b, err := i2creg.Open(i2cName)
		if err != nil {
			return nil, nil, fmt.Errorf("open i2c %q: %w", i2cName, err)
		}
		logger.Info("sfy-buoy: using i2c imu", "bus", i2cName, "addr", imuAddr)
		return &i2c.Dev{Bus: b, Addr: imuAddr}, func() { _ = b.Close() }, nil
	}

	logger.Info("sfy-buoy: no i2c bus given, using simulated imu")
	bus := simbus.New()
	done := make(chan struct{})
	go feedWaves(ctx, bus, done)
	return bus, func() { <-done }, nil
}

// feedWaves pushes a synthetic swell (a slow heave plus a little chop)
// into the simulated FIFO at the IMU's nominal data rate.
func feedWaves(ctx context.Context, bus *simbus.Bus, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(time.Second / 208)
	defer ticker.Stop()

	var t float64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t += 1.0 / 208.0
			heave := 0.8 * math.Sin(2*math.Pi*0.1*t)
			chop := 0.15 * math.Sin(2*math.Pi*1.3*t)
			gyro := [3]float64{0.02 * math.Sin(2*math.Pi*0.1*t), 0.01 * math.Cos(2*math.Pi*0.08*t), 0}
			accel := [3]float64{chop, 0, 9.81 + heave}
			_ = bus.PushPair(gyro, accel)
		}
	}
}
