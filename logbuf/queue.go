// Package logbuf implements the bounded cross-context log queue and
// its best-effort panic-time exfiltration path.
package logbuf

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/gauteh/sfy-go/internal/cobs"
	"github.com/gauteh/sfy-go/internal/logging"
	"github.com/gauteh/sfy-go/uplink"
)

// Capacity is the queue's fixed depth.
const Capacity = 4

// MaxMessageLen is the longest message carried; longer ones truncate.
const MaxMessageLen = 256

// Queue is a capacity-4, safe-from-any-goroutine (including a
// recover() in a panic path) log message ring. A full Queue rejects the
// newest message rather than blocking, which a buffered channel with a
// non-blocking send already expresses, so Queue is a thin wrapper
// around one rather than hand-rolled ring indexing.
type Queue struct {
	ch     chan string
	serial ioWriter
}

// ioWriter is the narrow Write-only interface Queue needs from the
// debug serial channel, avoiding a dependency on any particular serial
// driver type.
type ioWriter interface {
	Write(p []byte) (int, error)
}

// New constructs an empty Queue. serial, if non-nil, receives a
// COBS-framed copy of every pushed message, framed so a receiver on a
// noisy debug channel can resynchronize after a dropped or corrupted
// byte.
func New(serial ioWriter) *Queue {
	return &Queue{ch: make(chan string, Capacity), serial: serial}
}

// Push enqueues msg, truncating to MaxMessageLen bytes. If the queue
// is already full, msg is dropped — safe to call from any goroutine,
// including a recover() handler.
func (q *Queue) Push(msg string) {
	if len(msg) > MaxMessageLen {
		msg = msg[:MaxMessageLen]
	}
	if q.serial != nil {
		_, _ = q.serial.Write(cobs.Frame([]byte(msg)))
	}
	select {
	case q.ch <- msg:
	default:
	}
}

// Drain empties the queue, forwarding each message to uplink's log
// notefile.
func (q *Queue) Drain(ctx context.Context, ctrl *uplink.Controller) error {
	for {
		select {
		case msg := <-q.ch:
			if err := ctrl.Log(ctx, msg); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

// The single, never-reassigned pointer to the uplink controller the
// panic handler exfiltrates logs through, set exactly once during
// control.Loop construction.
var (
	pinnedMu   sync.Mutex
	pinnedSet  bool
	controller *uplink.Controller
	logger     = logging.Default()
)

// Pin records the process's one uplink controller for panic-time use. A
// second call is a programming error (the pointer must never move once
// interrupts/goroutines depending on it are live) and is logged but
// otherwise ignored rather than panicking recursively.
func Pin(ctrl *uplink.Controller) {
	pinnedMu.Lock()
	defer pinnedMu.Unlock()
	if pinnedSet {
		logger.Error("logbuf: Pin called more than once; ignoring second call")
		return
	}
	controller = ctrl
	pinnedSet = true
}

// PanicExfiltrate is the best-effort log drain a recover() handler
// calls before the process exits. It resets the modem's response state,
// drains q, delays for carrier transmission, and returns. It never
// panics itself, since a panic in a panic handler would abort the
// process before the log even gets out.
func PanicExfiltrate(q *Queue) {
	logger.Warn("logbuf: entering panic exfiltration")

	pinnedMu.Lock()
	ctrl := controller
	pinnedMu.Unlock()

	if ctrl == nil {
		logger.Error("logbuf: no uplink controller pinned, cannot exfiltrate log")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := ctrl.ResetResponse(ctx); err != nil {
		logger.Error("logbuf: reset response failed during panic exfiltration", "err", err)
	}
	nanosleep(50 * time.Millisecond)

	if err := q.Drain(ctx, ctrl); err != nil {
		logger.Error("logbuf: failed to drain log during panic exfiltration", "err", err)
	}
	nanosleep(4000 * time.Millisecond)
}

// nanosleep is a best-effort, allocation-free delay for the panic
// path. It goes through the syscall directly so it keeps working even
// when the runtime timer goroutines are in an unknown state.
func nanosleep(d time.Duration) {
	ts := unix.NsecToTimespec(d.Nanoseconds())
	_ = unix.Nanosleep(&ts, nil)
}
