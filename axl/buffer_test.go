package axl

import (
	"testing"

	"github.com/gauteh/sfy-go/fir"
	"github.com/stretchr/testify/require"
)

func TestBufferSampleFillsInPhase(t *testing.T) {
	b := NewBuffer(fir.Hz50, 1.0/208.0)
	for i := 0; i < 4200 && !b.IsFull(); i++ {
		err := b.Sample([3]float64{0.01, -0.01, 0}, [3]float64{0, 0, 9.81})
		require.NoError(t, err)
	}
	require.True(t, b.IsFull())
	require.Equal(t, AxlSZ, b.Len()*SampleSZ)
}

func TestBufferSampleRejectsWhenFull(t *testing.T) {
	b := NewBuffer(fir.Hz50, 1.0/208.0)
	for !b.IsFull() {
		require.NoError(t, b.Sample([3]float64{}, [3]float64{0, 0, 9.81}))
	}
	err := b.Sample([3]float64{}, [3]float64{0, 0, 9.81})
	require.ErrorIs(t, err, ErrBufFull)
}

func TestBufferTakeResets(t *testing.T) {
	b := NewBuffer(fir.Hz50, 1.0/208.0)
	for i := 0; i < 10; i++ {
		require.NoError(t, b.Sample([3]float64{}, [3]float64{0, 0, 9.81}))
	}
	data := b.Take()
	require.Len(t, data, AxlSZ)
	require.Equal(t, 0, b.Len())
}

func TestPacketBase64RoundTrip(t *testing.T) {
	b := NewBuffer(fir.Hz50, 1.0/208.0)
	for !b.IsFull() {
		require.NoError(t, b.Sample([3]float64{}, [3]float64{0, 0, 9.81}))
	}
	p := &Packet{TimestampMS: 1000, Freq: 52.0, Data: b.Take()}
	s, err := p.Base64()
	require.NoError(t, err)
	require.NotEmpty(t, s)
}

func TestPacketBase64RejectsWrongLength(t *testing.T) {
	p := &Packet{Data: make([]Half, 10)}
	_, err := p.Base64()
	require.Error(t, err)
}
