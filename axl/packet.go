package axl

import (
	"encoding/base64"
	"fmt"
)

// SampleSZ is the number of axes per oriented sample (x, y, z).
const SampleSZ = 3

// AxlSZ is the number of Half values carried per packet: 1024 triples.
const AxlSZ = SampleSZ * 1024

// AxlOutN is the size of the base64-encoded output buffer needed to
// hold AxlSZ Half values (2 bytes each), plus a small margin.
const AxlOutN = (AxlSZ*2*4+2)/3 + 4

// AxlPostcardSZ is the fixed on-disk record size for a Packet: the
// serialized fields plus worst-case COBS framing overhead and the frame
// delimiter, rounded up slightly so every record occupies the same slot
// width regardless of content.
const AxlPostcardSZ = 6216

// Packet is one filtered, decimated burst of IMU samples ready for
// storage and/or cellular uplink.
type Packet struct {
	TimestampMS    int64
	Offset         uint16
	StorageID      *uint32
	StorageVersion *uint32
	PositionTimeS  uint32
	Lon            float64
	Lat            float64
	Freq           float32
	Data           []Half // length AxlSZ once filled
}

// Base64 encodes Data as little-endian Half values, base64-encoded.
func (p *Packet) Base64() (string, error) {
	if len(p.Data) != AxlSZ {
		return "", fmt.Errorf("axl: packet has %d samples, want %d", len(p.Data), AxlSZ)
	}
	raw := make([]byte, AxlSZ*2)
	for i, h := range p.Data {
		raw[2*i] = byte(h)
		raw[2*i+1] = byte(h >> 8)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}
