package control

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/gauteh/sfy-go/imu"
	"github.com/gauteh/sfy-go/imu/simbus"
	"github.com/gauteh/sfy-go/logbuf"
	"github.com/gauteh/sfy-go/sharedstate"
	"github.com/gauteh/sfy-go/storage"
	"github.com/gauteh/sfy-go/uplink/simmodem"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.BuoySN = "test-buoy"
	cfg.GPSPeriod = time.Hour
	cfg.SyncPeriod = time.Hour
	cfg.LoopDelay = 10 * time.Millisecond
	cfg.GoodTries = 3
	cfg.IMUResetRetries = 5
	return cfg
}

func newTestLoop(t *testing.T) (*Loop, *simmodem.Modem, *simbus.Bus, *clock.Mock) {
	t.Helper()
	mock := clock.NewMock()
	bus := simbus.New()
	dev, err := imu.New(bus, imu.Config{}, nil)
	require.NoError(t, err)

	modem := simmodem.New()
	shared := sharedstate.New(mock)
	logq := logbuf.New(nil)
	store := storage.New(storage.NewMemVolume(), nil)

	l, err := New(testConfig(), mock, nil, dev, store, modem, shared, logq, nil)
	require.NoError(t, err)
	return l, modem, bus, mock
}

func TestNewWiresUpAllComponents(t *testing.T) {
	l, _, _, _ := newTestLoop(t)
	require.NotNil(t, l.uplink)
	require.NotNil(t, l.mgr)
	require.NotNil(t, l.locator)
	require.Equal(t, l.cfg.GoodTries, l.goodTries)
}

func TestTickDrainsImuQueueIntoStorageAndUplink(t *testing.T) {
	l, modem, bus, _ := newTestLoop(t)

	// 100 x 50 pairs is enough for one full package at the 4:1 decimation.
	for i := 0; i < 100; i++ {
		for j := 0; j < 50; j++ {
			require.NoError(t, bus.PushPair([3]float64{0, 0, 0}, [3]float64{0, 0, 9.81}))
		}
		l.shared.UpdateCount()
		now, posTimeS, pos := l.shared.Get()
		_ = l.imuDev.CheckRetrieve(context.Background(), now, pos, posTimeS, l.imuQueue)
	}
	require.Equal(t, 1, l.imuQueue.Len())

	l.tick(context.Background())

	require.Zero(t, l.imuQueue.Len())
	_, err := l.store.Get(0)
	require.NoError(t, err, "the package should have been stored")
	require.NotEmpty(t, modem.Notes(), "the package should have reached the modem")
	require.Equal(t, l.cfg.GoodTries, l.goodTries, "progress should keep the good-tries budget full")
}

func TestTickIdleDoesNotExhaustWatchdog(t *testing.T) {
	l, modem, _, _ := newTestLoop(t)
	l.cfg.GoodTries = 2
	l.goodTries = 2

	// Nothing queued and nothing failing: the watchdog must not fire on
	// a merely idle buoy.
	for i := 0; i < 10; i++ {
		l.tick(context.Background())
	}
	require.Equal(t, 2, l.goodTries)
	require.Zero(t, modem.ResetCount())
}

func TestTickExhaustsGoodTriesAndResets(t *testing.T) {
	l, modem, _, _ := newTestLoop(t)
	l.cfg.GoodTries = 2
	l.goodTries = 2

	// All three of location, drain and sync failing is the watchdog's
	// trigger condition.
	modem.SetOffline(true)
	l.mu.Lock()
	l.lastLocErr = simmodem.ErrOffline
	l.lastSyncErr = simmodem.ErrOffline
	l.mu.Unlock()

	l.tick(context.Background())
	require.Equal(t, 1, l.goodTries)

	// The second tick exhausts the budget and runs the uplink reset
	// path, whose delays block on the mock clock; keep advancing it
	// until the tick returns.
	done := make(chan struct{})
	go func() {
		l.tick(context.Background())
		close(done)
	}()
	// The exfiltration path sleeps several seconds of real time for
	// carrier transmission; budget well past that.
	mock := l.clock.(*clock.Mock)
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	timeout := time.After(15 * time.Second)
	for {
		select {
		case <-done:
			l.mu.Lock()
			tries := l.goodTries
			l.mu.Unlock()
			require.Equal(t, l.cfg.GoodTries, tries, "exhausting good tries should refill the budget after triggering recovery")
			require.GreaterOrEqual(t, modem.ResetCount(), 1)
			return
		case <-timeout:
			t.Fatal("timed out waiting for the watchdog tick to complete")
		case <-ticker.C:
			mock.Add(100 * time.Millisecond)
		}
	}
}

func TestImuLoopStopsOnContextCancel(t *testing.T) {
	l, _, _, mock := newTestLoop(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		l.imuLoop(ctx)
		close(done)
	}()

	mock.Add(time.Second / imuTickHz)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("imuLoop did not stop after context cancellation")
	}
}
