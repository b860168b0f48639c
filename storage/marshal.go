package storage

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gauteh/sfy-go/axl"
	"github.com/gauteh/sfy-go/internal/cobs"
)

// headerSize is the size in bytes of the fixed fields preceding the
// sample payload.
const headerSize = 8 + 2 + 1 + 4 + 1 + 4 + 4 + 8 + 8 + 4

// rawPacketSZ is the size in bytes of a serialized Packet before COBS
// framing: the fixed header fields followed by the AxlSZ*2-byte sample
// payload.
const rawPacketSZ = headerSize + axl.AxlSZ*2

// encodePacket serializes a Packet field by field in little-endian
// order, COBS-frames the result so no interior byte is zero, and pads
// the frame with zero bytes out to the fixed AxlPostcardSZ record size.
// A reader that lands mid-record can resynchronize on the next zero
// byte.
func encodePacket(p *axl.Packet) ([]byte, error) {
	if len(p.Data) != axl.AxlSZ {
		return nil, newErr("encodePacket", CodeSerializationError,
			fmt.Sprintf("data has %d samples, want %d", len(p.Data), axl.AxlSZ), nil)
	}

	raw := make([]byte, rawPacketSZ)
	off := 0

	binary.LittleEndian.PutUint64(raw[off:], uint64(p.TimestampMS))
	off += 8

	binary.LittleEndian.PutUint16(raw[off:], p.Offset)
	off += 2

	if p.StorageID != nil {
		raw[off] = 1
		off++
		binary.LittleEndian.PutUint32(raw[off:], *p.StorageID)
		off += 4
	} else {
		off++
		off += 4
	}

	if p.StorageVersion != nil {
		raw[off] = 1
		off++
		binary.LittleEndian.PutUint32(raw[off:], *p.StorageVersion)
		off += 4
	} else {
		off++
		off += 4
	}

	binary.LittleEndian.PutUint32(raw[off:], p.PositionTimeS)
	off += 4

	binary.LittleEndian.PutUint64(raw[off:], math.Float64bits(p.Lon))
	off += 8
	binary.LittleEndian.PutUint64(raw[off:], math.Float64bits(p.Lat))
	off += 8
	binary.LittleEndian.PutUint32(raw[off:], math.Float32bits(p.Freq))
	off += 4

	for i, h := range p.Data {
		binary.LittleEndian.PutUint16(raw[off+2*i:], uint16(h))
	}

	framed := cobs.Frame(raw)
	if len(framed) > axl.AxlPostcardSZ {
		return nil, newErr("encodePacket", CodeSerializationError,
			fmt.Sprintf("framed record is %d bytes, exceeds slot size %d", len(framed), axl.AxlPostcardSZ), nil)
	}

	buf := make([]byte, axl.AxlPostcardSZ)
	copy(buf, framed)
	return buf, nil
}

// decodePacket is the inverse of encodePacket: it locates the frame
// delimiter (the first zero byte; the COBS body contains none),
// unstuffs the frame, and deserializes the fields.
func decodePacket(buf []byte) (*axl.Packet, error) {
	if len(buf) != axl.AxlPostcardSZ {
		return nil, newErr("decodePacket", CodeSerializationError,
			fmt.Sprintf("record has %d bytes, want %d", len(buf), axl.AxlPostcardSZ), nil)
	}

	end := bytes.IndexByte(buf, 0)
	if end < 0 {
		return nil, newErr("decodePacket", CodeSerializationError, "no frame delimiter in record", nil)
	}
	raw, err := cobs.Decode(buf[:end])
	if err != nil {
		return nil, newErr("decodePacket", CodeSerializationError, "corrupt frame", err)
	}
	if len(raw) != rawPacketSZ {
		return nil, newErr("decodePacket", CodeSerializationError,
			fmt.Sprintf("frame decodes to %d bytes, want %d", len(raw), rawPacketSZ), nil)
	}

	p := &axl.Packet{}
	off := 0

	p.TimestampMS = int64(binary.LittleEndian.Uint64(raw[off:]))
	off += 8

	p.Offset = binary.LittleEndian.Uint16(raw[off:])
	off += 2

	hasID := raw[off] == 1
	off++
	id := binary.LittleEndian.Uint32(raw[off:])
	off += 4
	if hasID {
		p.StorageID = &id
	}

	hasVer := raw[off] == 1
	off++
	ver := binary.LittleEndian.Uint32(raw[off:])
	off += 4
	if hasVer {
		p.StorageVersion = &ver
	}

	p.PositionTimeS = binary.LittleEndian.Uint32(raw[off:])
	off += 4

	p.Lon = math.Float64frombits(binary.LittleEndian.Uint64(raw[off:]))
	off += 8
	p.Lat = math.Float64frombits(binary.LittleEndian.Uint64(raw[off:]))
	off += 8
	p.Freq = math.Float32frombits(binary.LittleEndian.Uint32(raw[off:]))
	off += 4

	p.Data = make([]axl.Half, axl.AxlSZ)
	for i := range p.Data {
		p.Data[i] = axl.Half(binary.LittleEndian.Uint16(raw[off+2*i:]))
	}

	return p, nil
}
