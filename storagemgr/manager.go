// Package storagemgr bridges the IMU pipeline's package queue, the SD
// storage engine, and the cellular uplink's outbound queue.
package storagemgr

import (
	"context"
	"errors"

	"github.com/gauteh/sfy-go/axl"
	"github.com/gauteh/sfy-go/internal/logging"
	"github.com/gauteh/sfy-go/spscqueue"
	"github.com/gauteh/sfy-go/storage"
	"github.com/gauteh/sfy-go/uplink"
)

// ErrQueueFull is returned (and only logged, never treated as fatal) when
// the outbound uplink queue has no room for a freshly stored packet.
var ErrQueueFull = errors.New("storagemgr: uplink queue full")

// Manager owns the hand-off from the IMU package queue to the storage
// engine and onward to the uplink queue.
type Manager struct {
	store     *storage.Store
	imuQueue  *spscqueue.Queue[axl.Packet]
	noteQueue *spscqueue.Queue[axl.Packet]
	logger    *logging.Logger
}

// New constructs a Manager wired to the given queues and storage engine.
func New(store *storage.Store, imuQueue, noteQueue *spscqueue.Queue[axl.Packet], logger *logging.Logger) *Manager {
	if logger == nil {
		logger = logging.Default()
	}
	return &Manager{store: store, imuQueue: imuQueue, noteQueue: noteQueue, logger: logger}
}

// Tick drains at most one packet from the IMU queue, stores it, and
// forwards it to the uplink queue. It is safe to call repeatedly with no
// work pending (it simply returns nil).
func (m *Manager) Tick(ctx context.Context) error {
	p, ok := m.imuQueue.Dequeue()
	if !ok {
		return nil
	}

	if _, err := m.store.Store(&p); err != nil {
		// Even an unstored packet is still worth trying to send, so log
		// and continue rather than dropping it here.
		m.logger.Error("storagemgr: store failed", "err", err)
	}

	if _, ok := m.noteQueue.Enqueue(p); !ok {
		m.logger.Warn("storagemgr: uplink queue full, dropping packet")
		return ErrQueueFull
	}
	return nil
}

// RequestHints identifies a range of previously stored packages a
// cloud-side replay request wants re-sent, read from the modem's
// storage.db notefile.
type RequestHints struct {
	CurrentID    uint32 `json:"current_id"`
	RequestStart uint32 `json:"request_start"`
	RequestEnd   uint32 `json:"request_end"`
	SentID       uint32 `json:"sent_id"`
	Done         bool   `json:"done"`
}

// storageDB is the modem notefile carrying replay requests inbound and
// sent-id progress outbound.
const storageDB = "storage.db"

// QueueRequestedPackages replays packages in
// [max(hints.SentID, hints.RequestStart), min(hints.RequestEnd, nextID))
// (RequestEnd itself excluded) onto the uplink queue, at most 100 per
// call. A missing collection
// advances the cursor past the whole collection rather than aborting
// the replay. Returns the updated SentID for the caller to persist.
func (m *Manager) QueueRequestedPackages(ctx context.Context, hints RequestHints) (uint32, error) {
	sentID := hints.SentID
	const maxPerCall = 100

	nextID, err := m.store.NextID()
	if err != nil {
		return sentID, err
	}

	start := hints.RequestStart
	if sentID > start {
		start = sentID
	}
	end := hints.RequestEnd
	if nextID < end {
		end = nextID
	}

	count := 0
	for id := start; id < end && count < maxPerCall; id++ {
		select {
		case <-ctx.Done():
			return sentID, ctx.Err()
		default:
		}

		p, err := m.store.Get(id)
		if err != nil {
			if errors.Is(err, storage.ErrFileNotFound) {
				// Skip the remainder of the missing collection in one
				// step; id++ above then lands on the next collection.
				id = (id/storage.CollectionSize+1)*storage.CollectionSize - 1
				sentID = id + 1
				continue
			}
			return sentID, err
		}

		if _, ok := m.noteQueue.Enqueue(*p); !ok {
			return sentID, ErrQueueFull
		}
		sentID = id + 1
		count++
	}
	return sentID, nil
}

// CheckReplayRequest reads replay hints from the modem's storage.db
// notefile, queues any requested packages, and writes the sent-id
// progress and completion flag back.
func (m *Manager) CheckReplayRequest(ctx context.Context, modem uplink.Modem) error {
	var hints RequestHints
	if err := modem.ReadKV(ctx, storageDB, &hints); err != nil {
		return err
	}
	if hints.RequestEnd == 0 || hints.SentID >= hints.RequestEnd {
		return nil
	}

	sentID, qerr := m.QueueRequestedPackages(ctx, hints)
	if sentID != hints.SentID {
		nextID, _ := m.store.NextID()
		hints.SentID = sentID
		hints.CurrentID = nextID
		hints.Done = sentID >= hints.RequestEnd || sentID >= nextID
		if werr := modem.WriteKV(ctx, storageDB, hints); werr != nil {
			return werr
		}
	}
	if qerr != nil && !errors.Is(qerr, ErrQueueFull) {
		return qerr
	}
	return nil
}
