package uplink

import (
	"context"
	"encoding/base64"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gauteh/sfy-go/axl"
	"github.com/gauteh/sfy-go/internal/logging"
	"github.com/gauteh/sfy-go/spscqueue"
)

// noteChunkSize is the maximum base64 payload carried per note.
const noteChunkSize = 8 * 1024

// Storage-pressure thresholds: above syncTriggerPct a sync is
// requested, above drainStopPct no further notes are added until the
// modem has flushed.
const (
	drainStopPct   = 75.0
	syncTriggerPct = 30.0
)

// ResetFunc performs a whole-system reset. On an MCU this is the reset
// vector; here production wires it to a process exit a supervisor
// restarts, tests to a counter or no-op.
type ResetFunc func()

// Config configures a Controller.
type Config struct {
	Product    string
	SyncPeriod time.Duration
}

// Controller drives the cellular modem: registering templates, syncing
// on a storage-pressure schedule, and draining the outbound queue.
type Controller struct {
	modem   Modem
	cfg     Config
	clock   clock.Clock
	logger  *logging.Logger
	metrics *Metrics
	reset   ResetFunc

	syncInFlight bool
}

// New constructs a Controller. clk may be clock.New() in production or
// clock.NewMock() in tests.
func New(modem Modem, cfg Config, clk clock.Clock, logger *logging.Logger, reset ResetFunc) *Controller {
	if logger == nil {
		logger = logging.Default()
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Controller{
		modem:   modem,
		cfg:     cfg,
		clock:   clk,
		logger:  logger,
		metrics: NewMetrics(0),
		reset:   reset,
	}
}

// Metrics exposes this controller's activity counters.
func (c *Controller) Metrics() *Metrics { return c.metrics }

// Init registers the hub periodic-sync configuration, enables
// continuous location tracking, registers the axl.qo note template, and
// performs one explicit initial sync to establish connectivity.
func (c *Controller) Init(ctx context.Context) error {
	if err := c.modem.Hub(ctx, HubConfig{
		Product:          c.cfg.Product,
		Mode:             "periodic",
		SyncMins:         int(c.cfg.SyncPeriod / time.Minute),
		LocationMode:     "continuous",
		LocationTracking: true,
	}); err != nil {
		return newErr("Init", CodeModemBusError, "hub config", err)
	}

	if err := c.modem.SetTemplate(ctx, "axl.qo", AxlPacketMeta{}, noteChunkSize); err != nil {
		return newErr("Init", CodeProtocolError, "set template", err)
	}

	return c.sync(ctx)
}

// CheckAndSync triggers a sync when modem storage exceeds
// syncTriggerPct and none is already in flight.
func (c *Controller) CheckAndSync(ctx context.Context) error {
	status, err := c.modem.Status(ctx)
	if err != nil {
		return newErr("CheckAndSync", CodeModemBusError, "status", err)
	}
	if status.SyncInFlight || c.syncInFlight {
		return nil
	}
	if status.StoragePct <= syncTriggerPct {
		return nil
	}
	return c.sync(ctx)
}

func (c *Controller) sync(ctx context.Context) error {
	start := c.clock.Now()
	c.syncInFlight = true
	defer func() { c.syncInFlight = false }()

	if err := c.modem.Sync(ctx); err != nil {
		c.metrics.RecordDrainError()
		return newErr("sync", CodeModemBusError, "sync", err)
	}
	c.metrics.RecordSync(c.clock.Now().Sub(start))
	return nil
}

// DrainQueue sends every packet currently in q as one or more chunked
// notes, stopping early (without error) once modem storage exceeds
// drainStopPct.
func (c *Controller) DrainQueue(ctx context.Context, q *spscqueue.Queue[axl.Packet]) (int, error) {
	status, err := c.modem.Status(ctx)
	if err != nil {
		return 0, newErr("DrainQueue", CodeModemBusError, "status", err)
	}
	if status.StoragePct > drainStopPct {
		c.logger.Warn("uplink: modem storage above threshold, deferring drain",
			"storage_pct", status.StoragePct)
		return 0, nil
	}

	sent := 0
	for {
		p, ok := q.Dequeue()
		if !ok {
			break
		}
		if err := c.sendPacket(ctx, &p); err != nil {
			return sent, err
		}
		sent++
	}
	return sent, nil
}

func (c *Controller) sendPacket(ctx context.Context, p *axl.Packet) error {
	b64, err := p.Base64()
	if err != nil {
		return newErr("sendPacket", CodeProtocolError, "encode", err)
	}

	packetIdx := 0
	for off := 0; off < len(b64); off += noteChunkSize {
		end := off + noteChunkSize
		if end > len(b64) {
			end = len(b64)
		}
		chunk := b64[off:end]
		meta := AxlPacketMeta{
			Timestamp: p.TimestampMS,
			Offset:    p.Offset,
			Length:    len(chunk),
			Freq:      p.Freq,
			Packet:    packetIdx,
			Lon:       p.Lon,
			Lat:       p.Lat,
		}
		decoded, decErr := base64.StdEncoding.DecodeString(chunk)
		if decErr != nil {
			return newErr("sendPacket", CodeProtocolError, "re-decode chunk", decErr)
		}
		if err := c.modem.AddNote(ctx, "axl.qo", meta, decoded); err != nil {
			return newErr("sendPacket", CodeModemBusError, "add note", err)
		}
		c.metrics.RecordNote(len(decoded))
		packetIdx++
	}
	return nil
}

// logNotefile is where drained logbuf messages are forwarded.
const logNotefile = "log.qo"

// logBody is the note body for one exfiltrated log line.
type logBody struct {
	Message string `json:"message"`
}

// Log sends one log line to the modem's log notefile, the per-message
// primitive logbuf.Drain calls once per queued message.
func (c *Controller) Log(ctx context.Context, msg string) error {
	if err := c.modem.AddNote(ctx, logNotefile, logBody{Message: msg}, nil); err != nil {
		return newErr("Log", CodeModemBusError, "add log note", err)
	}
	return nil
}

// ResetResponse resets the modem's outstanding response state without a
// full restart+reset-vector cycle, the lighter-weight step
// panic_drain_log performs before draining the log queue: on hardware
// this clears whatever half-read response state a panic interrupted
// mid-transaction so the subsequent log drain starts clean.
func (c *Controller) ResetResponse(ctx context.Context) error {
	if err := c.modem.Reset(ctx); err != nil {
		return newErr("ResetResponse", CodeModemBusError, "reset", err)
	}
	return nil
}

// Reset ports the main loop's reset path: it asks the modem to reset,
// then invokes ResetFunc (if configured) after giving the modem time to
// come back and the log queue time to drain, which the caller (control.Loop)
// is responsible for triggering via logbuf.PanicExfiltrate first.
func (c *Controller) Reset(ctx context.Context) error {
	if err := c.modem.Reset(ctx); err != nil {
		c.logger.Error("uplink: modem reset failed", "err", err)
	}
	c.clock.Sleep(50 * time.Millisecond)
	if err := c.modem.Restart(ctx); err != nil {
		c.logger.Error("uplink: modem restart failed", "err", err)
	}
	c.clock.Sleep(4000 * time.Millisecond)
	if c.reset != nil {
		c.reset()
	}
	return nil
}
