package storage

import (
	"testing"

	"github.com/gauteh/sfy-go/axl"
	"github.com/stretchr/testify/require"
)

func newTestPacket() *axl.Packet {
	id := uint32(1231255)
	ver := uint32(StorageVersion)
	data := make([]axl.Half, axl.AxlSZ)
	for i := range data {
		data[i] = axl.FromFloat32(float32(i%100) / 10.0)
	}
	return &axl.Packet{
		TimestampMS:    1700000000000,
		Offset:         17,
		StorageID:      &id,
		StorageVersion: &ver,
		PositionTimeS:  1700000000,
		Lon:            5.32,
		Lat:            60.39,
		Freq:           52.0,
		Data:           data,
	}
}

func TestEncodeDecodePacketRoundTrip(t *testing.T) {
	p := newTestPacket()
	buf, err := encodePacket(p)
	require.NoError(t, err)
	require.Len(t, buf, axl.AxlPostcardSZ)

	got, err := decodePacket(buf)
	require.NoError(t, err)
	require.Equal(t, p.TimestampMS, got.TimestampMS)
	require.Equal(t, p.Offset, got.Offset)
	require.Equal(t, *p.StorageID, *got.StorageID)
	require.Equal(t, *p.StorageVersion, *got.StorageVersion)
	require.Equal(t, p.PositionTimeS, got.PositionTimeS)
	require.InDelta(t, p.Lon, got.Lon, 1e-9)
	require.InDelta(t, p.Lat, got.Lat, 1e-9)
	require.Equal(t, p.Freq, got.Freq)
	require.Equal(t, p.Data, got.Data)
}

func TestEncodePacketNilOptionalFields(t *testing.T) {
	p := newTestPacket()
	p.StorageID = nil
	p.StorageVersion = nil

	buf, err := encodePacket(p)
	require.NoError(t, err)
	got, err := decodePacket(buf)
	require.NoError(t, err)
	require.Nil(t, got.StorageID)
	require.Nil(t, got.StorageVersion)
}

func TestEncodePacketRejectsWrongDataLength(t *testing.T) {
	p := newTestPacket()
	p.Data = p.Data[:10]
	_, err := encodePacket(p)
	require.Error(t, err)
}

func TestIDToPartsMatchesOriginalFixture(t *testing.T) {
	// id=1231255 -> collection "12312.2", fileid 55.
	collection, fileIndex, offset := IDToParts(1231255)
	require.Equal(t, "12312.2", collection)
	require.Equal(t, uint32(55), fileIndex)
	require.Equal(t, 55*axl.AxlPostcardSZ, offset)
}
