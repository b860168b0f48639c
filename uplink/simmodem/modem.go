// Package simmodem provides an in-memory uplink.Modem implementation
// for tests and for running the pipeline without real cellular hardware
// present.
package simmodem

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gauteh/sfy-go/uplink"
)

// Note is one recorded AddNote call.
type Note struct {
	Notefile string
	Body     any
	Payload  []byte
}

// Modem is an in-memory uplink.Modem.
type Modem struct {
	mu sync.Mutex

	hubCfg     uplink.HubConfig
	templates  map[string]any
	notes      []Note
	kv         map[string][]byte
	storagePct float64
	connected  bool
	resetCount int

	hasFix  bool
	fixLon  float64
	fixLat  float64
	hasTime bool
	fixTime time.Time

	offline bool
}

// ErrOffline is returned by Hub, Status, Sync, AddNote, Location and
// Time while the simulated modem is offline; the other requests still
// succeed.
var ErrOffline = errors.New("simmodem: modem offline")

// New constructs an empty simulated modem, connected by default.
func New() *Modem {
	return &Modem{
		templates: make(map[string]any),
		kv:        make(map[string][]byte),
		connected: true,
	}
}

// SetFix lets tests drive a simulated GNSS fix; clear with ok=false.
func (m *Modem) SetFix(lon, lat float64, t time.Time, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hasFix = ok
	m.fixLon = lon
	m.fixLat = lat
	m.hasTime = ok
	m.fixTime = t
}

// SetOffline makes subsequent requests fail with ErrOffline (see
// ErrOffline for which ones) until cleared, for driving failure and
// watchdog paths.
func (m *Modem) SetOffline(offline bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offline = offline
}

// SetStoragePct lets tests drive the drain/sync threshold logic.
func (m *Modem) SetStoragePct(pct float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.storagePct = pct
}

// Notes returns all notes recorded via AddNote so far.
func (m *Modem) Notes() []Note {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Note(nil), m.notes...)
}

// ResetCount returns how many times Reset has been called.
func (m *Modem) ResetCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resetCount
}

func (m *Modem) Hub(ctx context.Context, cfg uplink.HubConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.offline {
		return ErrOffline
	}
	m.hubCfg = cfg
	return nil
}

func (m *Modem) Status(ctx context.Context) (uplink.Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.offline {
		return uplink.Status{}, ErrOffline
	}
	return uplink.Status{Connected: m.connected, StoragePct: m.storagePct}, nil
}

func (m *Modem) Sync(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.offline {
		return ErrOffline
	}
	m.storagePct = 0
	return nil
}

func (m *Modem) SyncStatus(ctx context.Context) (uplink.SyncStatus, error) {
	return uplink.SyncStatus{Completed: true}, nil
}

func (m *Modem) SetTemplate(ctx context.Context, notefile string, tmpl any, payloadCapBytes int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.templates[notefile] = tmpl
	return nil
}

func (m *Modem) AddNote(ctx context.Context, notefile string, body any, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.offline {
		return ErrOffline
	}
	m.notes = append(m.notes, Note{Notefile: notefile, Body: body, Payload: append([]byte(nil), payload...)})
	m.storagePct += float64(len(payload)) / 1e6 // arbitrary but monotonic pressure signal
	return nil
}

func (m *Modem) ReadKV(ctx context.Context, notefile string, out any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.kv[notefile]
	if !ok {
		return nil
	}
	return json.Unmarshal(data, out)
}

func (m *Modem) WriteKV(ctx context.Context, notefile string, in any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.kv[notefile] = data
	return nil
}

func (m *Modem) Reset(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetCount++
	return nil
}

func (m *Modem) Restart(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = true
	return nil
}

func (m *Modem) Location(ctx context.Context) (lon, lat float64, ok bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.offline {
		return 0, 0, false, ErrOffline
	}
	return m.fixLon, m.fixLat, m.hasFix, nil
}

func (m *Modem) Time(ctx context.Context) (t time.Time, ok bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.offline {
		return time.Time{}, false, ErrOffline
	}
	return m.fixTime, m.hasTime, nil
}

var _ uplink.Modem = (*Modem)(nil)
