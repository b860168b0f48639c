package imu

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/golang/geo/s2"
	"github.com/stretchr/testify/require"

	"github.com/gauteh/sfy-go/axl"
	"github.com/gauteh/sfy-go/imu/simbus"
	"github.com/gauteh/sfy-go/spscqueue"
)

func TestNewConfiguresAndBootsIMU(t *testing.T) {
	bus := simbus.New()
	d, err := New(bus, Config{}, nil)
	require.NoError(t, err)
	require.NotNil(t, d)
	require.Equal(t, 0, d.Len())
}

func TestReadAndFilterConsumesPairs(t *testing.T) {
	bus := simbus.New()
	d, err := New(bus, Config{}, nil)
	require.NoError(t, err)
	require.NoError(t, d.EnableFIFO(context.Background(), 0))

	for i := 0; i < 20; i++ {
		theta := float64(i) * 0.1
		gyro := [3]float64{0.01 * math.Sin(theta), 0, 0}
		accel := [3]float64{0, 0, 9.81}
		require.NoError(t, bus.PushPair(gyro, accel))
	}

	n, err := d.ReadAndFilter(context.Background())
	require.NoError(t, err)
	require.Equal(t, 20, n)
	require.Equal(t, 0, bus.Pending())
}

func TestReadAndFilterDetectsOverrun(t *testing.T) {
	bus := simbus.New()
	d, err := New(bus, Config{}, nil)
	require.NoError(t, err)
	require.NoError(t, d.EnableFIFO(context.Background(), 0))

	for i := 0; i < simbus.Capacity/2; i++ {
		require.NoError(t, bus.PushPair([3]float64{0, 0, 0}, [3]float64{0, 0, 9.81}))
	}
	// One more pair overflows the 512-entry FIFO.
	_ = bus.PushPair([3]float64{0, 0, 0}, [3]float64{0, 0, 9.81})

	_, err = d.ReadAndFilter(context.Background())
	require.Error(t, err)
	var imuErr *Error
	require.ErrorAs(t, err, &imuErr)
	require.Equal(t, CodeFIFOOverrun, imuErr.Code)
}

func TestCheckRetrieveTakesFullBuffer(t *testing.T) {
	bus := simbus.New()
	d, err := New(bus, Config{}, nil)
	require.NoError(t, err)
	require.NoError(t, d.EnableFIFO(context.Background(), 0))

	q := spscqueue.New[axl.Packet](4)
	ctx := context.Background()
	pos := s2.LatLngFromDegrees(0, 0)
	now := time.Now()

	// 50Hz profile decimates 4:1, so AxlSZ/3 (1024) output triples need
	// 4096 raw pairs; drain every 50 pushes to stay well under the FIFO's
	// 256-pair capacity.
	for i := 0; i < 4200 && q.Len() == 0; i++ {
		require.NoError(t, bus.PushPair([3]float64{0, 0, 0}, [3]float64{0, 0, 9.81}))
		if i%50 == 49 {
			require.NoError(t, d.CheckRetrieve(ctx, now, pos, 0, q))
			now = now.Add(50 * time.Millisecond)
		}
	}
	require.NoError(t, d.CheckRetrieve(ctx, now, pos, 0, q))

	pkt, ok := q.Dequeue()
	require.True(t, ok)
	require.Len(t, pkt.Data, axl.AxlSZ)
}
