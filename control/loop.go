package control

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/go-co-op/gocron/v2"

	"github.com/gauteh/sfy-go/axl"
	"github.com/gauteh/sfy-go/imu"
	"github.com/gauteh/sfy-go/internal/logging"
	"github.com/gauteh/sfy-go/location"
	"github.com/gauteh/sfy-go/logbuf"
	"github.com/gauteh/sfy-go/sharedstate"
	"github.com/gauteh/sfy-go/spscqueue"
	"github.com/gauteh/sfy-go/storage"
	"github.com/gauteh/sfy-go/storagemgr"
	"github.com/gauteh/sfy-go/uplink"
)

// imuTickHz is the rate the alarm goroutine polls the IMU FIFO at. The
// FIFO holds 512 entries, about 1.23s of gyro+accel pairs at 208Hz, so
// 10Hz leaves a wide margin even
// when a tick is delayed by a device reset.
const imuTickHz = 10

// Loop owns every long-running piece of the buoy: one fast alarm
// goroutine draining the IMU FIFO, a background scheduler polling
// location and triggering uplink syncs on their own cadences, and a
// slower main loop handing packages off to storage and the uplink
// queue.
type Loop struct {
	cfg    Config
	clock  clock.Clock
	logger *logging.Logger

	imuDev    *imu.Device
	imuQueue  *spscqueue.Queue[axl.Packet]
	noteQueue *spscqueue.Queue[axl.Packet]

	store     *storage.Store
	mgr       *storagemgr.Manager
	modem     uplink.Modem
	uplink    *uplink.Controller
	locator   *location.Poller
	shared    *sharedstate.State
	logq      *logbuf.Queue
	resetFn   func()
	scheduler gocron.Scheduler

	mu          sync.Mutex
	goodTries   int
	lastLocErr  error
	lastSyncErr error
}

// New wires every component Run needs. resetFn is invoked after the
// watchdog decides the process itself must restart (production wires
// this to a process exit a supervisor restarts, tests to a no-op or a
// counter).
func New(cfg Config, clk clock.Clock, logger *logging.Logger, imuDev *imu.Device, store *storage.Store, modem uplink.Modem, shared *sharedstate.State, logq *logbuf.Queue, resetFn func()) (*Loop, error) {
	if logger == nil {
		logger = logging.Default()
	}
	if clk == nil {
		clk = clock.New()
	}

	imuQueue := spscqueue.New[axl.Packet](cfg.ImuQSize)
	noteQueue := spscqueue.New[axl.Packet](cfg.NoteQSize)

	uplinkCtrl := uplink.New(modem, uplink.Config{Product: cfg.BuoyPR, SyncPeriod: cfg.SyncPeriod}, clk, logger, uplink.ResetFunc(resetFn))
	logbuf.Pin(uplinkCtrl)

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	l := &Loop{
		cfg:       cfg,
		clock:     clk,
		logger:    logger,
		imuDev:    imuDev,
		imuQueue:  imuQueue,
		noteQueue: noteQueue,
		store:     store,
		mgr:       storagemgr.New(store, imuQueue, noteQueue, logger),
		modem:     modem,
		uplink:    uplinkCtrl,
		locator:   location.New(clk),
		shared:    shared,
		logq:      logq,
		resetFn:   resetFn,
		scheduler: scheduler,
		goodTries: cfg.GoodTries,
	}
	return l, nil
}

// scheduleBackgroundJobs registers the location-poll and uplink-sync
// cadences on l.scheduler, each independent of the main loop's own
// LoopDelay tick. The jobs record their last outcome so the watchdog in
// tick can tell a merely idle buoy from one whose modem has wedged.
func (l *Loop) scheduleBackgroundJobs() error {
	if _, err := l.scheduler.NewJob(
		gocron.DurationJob(l.cfg.GPSPeriod),
		gocron.NewTask(func() {
			ctx := context.Background()
			err := l.locator.CheckRetrieve(ctx, l.modem, l.shared)
			if errors.Is(err, location.ErrNoFix) {
				// No fix yet is routine at sea; only a modem failure
				// counts against the watchdog.
				err = nil
			}
			if err != nil {
				l.logger.Warn("control: location poll failed", "err", err)
			}
			l.mu.Lock()
			l.lastLocErr = err
			l.mu.Unlock()
		}),
	); err != nil {
		return err
	}

	if _, err := l.scheduler.NewJob(
		gocron.DurationJob(l.cfg.SyncPeriod),
		gocron.NewTask(func() {
			ctx := context.Background()
			err := l.uplink.CheckAndSync(ctx)
			if err != nil {
				l.logger.Warn("control: scheduled sync failed", "err", err)
			}
			l.mu.Lock()
			l.lastSyncErr = err
			l.mu.Unlock()
		}),
	); err != nil {
		return err
	}
	return nil
}

// Run blocks until ctx is cancelled, draining the IMU FIFO on its own
// goroutine, polling location and syncing on the scheduler above, and
// ticking storage/uplink hand-off and the watchdog on cfg.LoopDelay.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info("control: starting", l.cfg.LogFields()...)

	if err := l.uplink.Init(ctx); err != nil {
		// The buoy must keep sampling even when the modem comes up
		// wedged; the watchdog resets the system if it stays that way.
		l.logger.Error("control: uplink init failed", "err", err)
		l.mu.Lock()
		l.lastSyncErr = err
		l.mu.Unlock()
	}

	if err := l.scheduleBackgroundJobs(); err != nil {
		return err
	}
	l.scheduler.Start()
	defer func() { _ = l.scheduler.Shutdown() }()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		l.imuLoop(ctx)
	}()

	ticker := l.clock.Ticker(l.cfg.LoopDelay)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return nil
		case <-ticker.C:
			l.tick(ctx)
		}
	}
}

// tick is one main-loop iteration: drain every pending package from the
// IMU queue into storage and the uplink queue, forward queued packages
// and logs to the modem, and service any replay request. The watchdog
// decrements only when location, drain and sync have all failed; any
// success restores the full budget, and exhausting it forces a
// whole-system reset rather than spinning forever on a wedged modem.
func (l *Loop) tick(ctx context.Context) {
	for {
		if err := l.mgr.Tick(ctx); err != nil {
			if !errors.Is(err, storagemgr.ErrQueueFull) {
				l.logger.Error("control: storage tick failed", "err", err)
			}
			break
		}
		if l.imuQueue.Len() == 0 {
			break
		}
	}

	if err := l.mgr.CheckReplayRequest(ctx, l.modem); err != nil {
		l.logger.Warn("control: replay request failed", "err", err)
	}

	_, drainErr := l.uplink.DrainQueue(ctx, l.noteQueue)
	if drainErr != nil {
		l.logger.Error("control: uplink drain failed", "err", drainErr)
	}

	if err := l.logq.Drain(ctx, l.uplink); err != nil {
		l.logger.Error("control: log drain failed", "err", err)
	}

	l.mu.Lock()
	allFailed := drainErr != nil && l.lastLocErr != nil && l.lastSyncErr != nil
	if allFailed {
		l.goodTries--
	} else {
		l.goodTries = l.cfg.GoodTries
	}
	exhausted := l.goodTries <= 0
	if exhausted {
		l.goodTries = l.cfg.GoodTries
	}
	l.mu.Unlock()

	if exhausted {
		l.logger.Warn("control: location, drain and sync all failing, resetting")
		logbuf.PanicExfiltrate(l.logq)
		if err := l.uplink.Reset(ctx); err != nil {
			l.logger.Error("control: uplink reset failed", "err", err)
		}
	}
}

// imuLoop stands in for the RTC alarm interrupt: pinned to its OS
// thread and driven by a fixed-rate ticker. Every IMU error triggers a
// device reset; IMUResetRetries consecutive failing ticks are treated
// as unrecoverable and panic, letting the
// deferred recover() exfiltrate the log queue before the process exits.
func (l *Loop) imuLoop(ctx context.Context) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("control: imu loop panicked, exfiltrating log", "panic", r)
			logbuf.PanicExfiltrate(l.logq)
			panic(r)
		}
	}()

	ticker := l.clock.Ticker(time.Second / imuTickHz)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.shared.UpdateCount()
			now, positionTimeS, pos := l.shared.Get()

			if err := l.imuDev.CheckRetrieve(ctx, now, pos, positionTimeS, l.imuQueue); err != nil {
				failures++
				l.logger.Warn("control: imu check_retrieve failed", "err", err, "failures", failures)
				if resetErr := l.imuDev.Reset(ctx); resetErr != nil {
					l.logger.Error("control: imu reset failed", "err", resetErr)
				}
				if failures >= l.cfg.IMUResetRetries {
					panic("control: imu unrecoverable after repeated reset attempts")
				}
				continue
			}
			failures = 0
		}
	}
}
