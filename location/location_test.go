package location

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/geo/s2"
	"github.com/stretchr/testify/require"

	"github.com/gauteh/sfy-go/sharedstate"
	"github.com/gauteh/sfy-go/uplink/simmodem"
)

func TestCheckRetrieveSetsSharedStateOnFullFix(t *testing.T) {
	mock := clock.NewMock()
	shared := sharedstate.New(mock)
	modem := simmodem.New()
	fixTime := time.Date(2026, 7, 29, 10, 0, 0, 0, time.UTC)
	modem.SetFix(5.32, 60.39, fixTime, true)

	p := New(mock)
	err := p.CheckRetrieve(context.Background(), modem, shared)
	require.NoError(t, err)
	require.True(t, p.Status().Retrieved)

	now, posTimeS, pos := shared.Get()
	require.True(t, fixTime.Equal(now), "rtc should read the fix time, got %v", now)
	require.Equal(t, uint32(fixTime.Unix()), posTimeS)
	require.InDelta(t, 60.39, pos.Lat.Degrees(), 1e-9)
	require.InDelta(t, 5.32, pos.Lng.Degrees(), 1e-9)
}

func TestCheckRetrieveRateLimited(t *testing.T) {
	mock := clock.NewMock()
	shared := sharedstate.New(mock)
	modem := simmodem.New()
	modem.SetFix(1, 1, mock.Now(), true)

	p := New(mock)
	require.NoError(t, p.CheckRetrieve(context.Background(), modem, shared))

	modem.SetFix(2, 2, mock.Now(), true)
	require.NoError(t, p.CheckRetrieve(context.Background(), modem, shared))
	_, _, pos := shared.Get()
	require.InDelta(t, 1, pos.Lng.Degrees(), 1e-9, "second poll within LocationDiff should be skipped")

	mock.Add(LocationDiff + time.Second)
	require.NoError(t, p.CheckRetrieve(context.Background(), modem, shared))
	_, _, pos = shared.Get()
	require.InDelta(t, 2, pos.Lng.Degrees(), 1e-9)
}

func TestCheckRetrieveNoFixReturnsErrNoFix(t *testing.T) {
	mock := clock.NewMock()
	shared := sharedstate.New(mock)
	modem := simmodem.New()

	p := New(mock)
	err := p.CheckRetrieve(context.Background(), modem, shared)
	require.ErrorIs(t, err, ErrNoFix)
	require.True(t, p.Status().Trying)
}

func TestSetFromExtGPSRejectsStaleFix(t *testing.T) {
	mock := clock.NewMock()
	shared := sharedstate.New(mock)
	p := New(mock)

	fix := ExtGPSFix{
		Time:    mock.Now(),
		Pos:     s2.LatLngFromDegrees(1, 1),
		PPSTime: mock.Now().Add(-10 * time.Second),
	}
	err := p.SetFromExtGPS(fix, shared)
	require.Error(t, err)
}

func TestSetFromExtGPSAcceptsFreshFix(t *testing.T) {
	mock := clock.NewMock()
	shared := sharedstate.New(mock)
	p := New(mock)

	fix := ExtGPSFix{
		Time:    mock.Now(),
		Pos:     s2.LatLngFromDegrees(2, 3),
		PPSTime: mock.Now().Add(-time.Second),
	}
	require.NoError(t, p.SetFromExtGPS(fix, shared))
	require.True(t, p.Status().Retrieved)
}
