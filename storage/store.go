package storage

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/gauteh/sfy-go/axl"
	"github.com/gauteh/sfy-go/internal/logging"
)

// sdState is the storage state machine: Uninitialized until acquire
// succeeds, then Initialized with the next package id to allocate. Any
// I/O failure drops back to Uninitialized so the next use re-scans the
// volume before allocating further ids.
type sdState struct {
	initialized bool
	nextID      uint32
}

// Store is the SD storage engine: it owns the id allocator and the
// Volume it writes fixed-size COBS-framed records into.
type Store struct {
	mu     sync.Mutex
	vol    Volume
	state  sdState
	logger *logging.Logger
}

// New constructs a Store over the given Volume.
func New(vol Volume, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.Default()
	}
	return &Store{vol: vol, logger: logger}
}

// collectionName formats the on-disk filename for collection c.
func collectionName(c uint32) string {
	return strconv.FormatUint(uint64(c), 10) + "." + strconv.Itoa(StorageVersion)
}

// acquire initializes the id allocator by scanning for the lowest
// collection index with no file on the volume. Ids always restart at
// the beginning of a fresh collection, so a reboot never appends into a
// collection a previous run was writing — offsets stay consistent
// across resets at the cost of some unused slots.
func (s *Store) acquire() error {
	free, err := s.firstFreeCollection(0)
	if err != nil {
		return err
	}
	s.state = sdState{initialized: true, nextID: free * CollectionSize}
	s.logger.Info("storage: initialized", "collection", free, "next_id", s.state.nextID)
	return nil
}

// firstFreeCollection returns the lowest collection index >= from with
// no file on the volume.
func (s *Store) firstFreeCollection(from uint32) (uint32, error) {
	names, err := s.vol.List()
	if err != nil {
		return 0, newErr("firstFreeCollection", CodeSdBusError, "list volume", err)
	}
	existing := make(map[string]bool, len(names))
	for _, name := range names {
		existing[name] = true
	}
	c := from
	for existing[collectionName(c)] {
		c++
	}
	return c, nil
}

// advanceID returns the current id and advances the allocator. When the
// returned id would open a new collection it re-checks that the
// candidate collection file does not already exist, rounding up to the
// next free one if it does — protection against another writer (or an
// interrupted resume) having claimed the candidate in the meantime.
func (s *Store) advanceID() (uint32, error) {
	id := s.state.nextID

	if id%CollectionSize == 0 {
		free, err := s.firstFreeCollection(id / CollectionSize)
		if err != nil {
			return 0, err
		}
		id = free * CollectionSize
	}

	s.state.nextID = id + 1
	return id, nil
}

// Store allocates the next id, stamps it and the layout version into
// the packet, and writes the framed record to its slot. The packet is
// mutated before the write so a caller forwarding it onward carries the
// id it will be retrievable under; if the write itself fails the slot
// stays unwritten (a hole readers must tolerate) and the store drops
// back to Uninitialized.
func (s *Store) Store(p *axl.Packet) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// An unserializable packet must not advance the allocator.
	if len(p.Data) != axl.AxlSZ {
		return 0, newErr("Store", CodeSerializationError,
			fmt.Sprintf("data has %d samples, want %d", len(p.Data), axl.AxlSZ), nil)
	}

	if !s.state.initialized {
		if err := s.acquire(); err != nil {
			return 0, err
		}
	}

	id, err := s.advanceID()
	if err != nil {
		s.state = sdState{}
		return 0, err
	}

	ver := uint32(StorageVersion)
	p.StorageID = &id
	p.StorageVersion = &ver

	buf, err := encodePacket(p)
	if err != nil {
		return id, newErr("Store", CodeSerializationError, "", err)
	}

	collection, _, offset := IDToParts(id)
	if _, err := s.vol.WriteAt(collection, buf, int64(offset)); err != nil {
		s.state = sdState{}
		return id, newErr("Store", CodeWriteError, collection, err)
	}
	return id, nil
}

// Get reads back a previously stored packet by id.
func (s *Store) Get(id uint32) (*axl.Packet, error) {
	collection, _, offset := IDToParts(id)

	size, err := s.vol.Size(collection)
	if err != nil {
		return nil, err
	}
	if size < int64(offset)+axl.AxlPostcardSZ {
		return nil, &Error{Op: "Get", Code: CodeFileNotFound,
			Msg: fmt.Sprintf("%s holds no record at offset %d", collection, offset)}
	}

	buf := make([]byte, axl.AxlPostcardSZ)
	n, err := s.vol.ReadAt(collection, buf, int64(offset))
	if err != nil {
		return nil, err
	}
	if n != axl.AxlPostcardSZ {
		return nil, newErr("Get", CodeReadPackageError, collection, nil)
	}
	if buf[0] == 0 {
		// A slot whose first byte is zero was allocated but never
		// written (a write failed after id allocation).
		return nil, &Error{Op: "Get", Code: CodeFileNotFound,
			Msg: fmt.Sprintf("%s slot at offset %d is unwritten", collection, offset)}
	}
	return decodePacket(buf)
}

// NextID returns the id that would be allocated by the next Store call,
// acquiring first if necessary. Used by storagemgr to bound replay.
func (s *Store) NextID() (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.initialized {
		if err := s.acquire(); err != nil {
			return 0, err
		}
	}
	return s.state.nextID, nil
}
