// Package location implements the rate-limited GPS/location polling
// state machine that keeps sharedstate.State's position fresh.
package location

import (
	"context"
	"errors"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/geo/s2"

	"github.com/gauteh/sfy-go/sharedstate"
	"github.com/gauteh/sfy-go/uplink"
)

// LocationDiff is the minimum interval between location polls.
const LocationDiff = 60 * time.Second

// ExtGPSMaxAge is the maximum age (relative to its PPS timestamp) an
// external GPS fix may have to be accepted.
const ExtGPSMaxAge = 5 * time.Second

// ErrNoFix is returned by CheckRetrieve when the poll completed but no
// full fix was available; the attempt still counts against the rate
// limit.
var ErrNoFix = errors.New("location: no fix available")

// Status is the tagged state of the location poller: Trying carries the
// timestamp of the last attempt, Retrieved the timestamp of the last
// fully successful poll (both time and location present). Before the
// first poll neither boolean is set; after it, exactly one is.
type Status struct {
	Trying      bool
	LastAttempt time.Time
	Retrieved   bool
	LastSuccess time.Time
}

// Poller periodically requests a location and time fix from the modem
// and pushes whichever came back into sharedstate.State.
type Poller struct {
	clock  clock.Clock
	status Status
}

// New constructs a Poller driven by clk (clock.New() in production,
// clock.NewMock() in tests).
func New(clk clock.Clock) *Poller {
	if clk == nil {
		clk = clock.New()
	}
	return &Poller{clock: clk}
}

// Status returns the poller's current state.
func (p *Poller) Status() Status { return p.status }

// CheckRetrieve polls the modem for location and time at most once per
// LocationDiff. Each comes back independently: a returned time sets the
// RTC, a returned location sets the last-known position; Retrieved is
// recorded only when both arrived this poll, Trying otherwise.
func (p *Poller) CheckRetrieve(ctx context.Context, modem uplink.Modem, shared *sharedstate.State) error {
	now := p.clock.Now()
	if !p.status.LastAttempt.IsZero() && now.Sub(p.status.LastAttempt) < LocationDiff {
		return nil
	}
	p.status.LastAttempt = now
	p.status.Trying = true
	p.status.Retrieved = false

	lon, lat, hasLoc, locErr := modem.Location(ctx)
	if locErr != nil {
		return newErr("CheckRetrieve", locErr)
	}

	t, hasTime, timeErr := modem.Time(ctx)
	if timeErr != nil {
		return newErr("CheckRetrieve", timeErr)
	}

	if hasTime {
		shared.SetTime(t)
	}
	if hasLoc {
		positionTimeS := uint32(now.Unix())
		if hasTime {
			positionTimeS = uint32(t.Unix())
		}
		shared.SetPosition(positionTimeS, s2.LatLngFromDegrees(lat, lon))
	}

	if hasTime && hasLoc {
		p.status.Trying = false
		p.status.Retrieved = true
		p.status.LastSuccess = now
		return nil
	}
	return ErrNoFix
}

// ExtGPSFix is a time-coherent fix paired with the PPS timestamp that
// anchored it, as produced by an external GNSS front-end.
type ExtGPSFix struct {
	Time    time.Time
	Pos     s2.LatLng
	PPSTime time.Time
}

// SetFromExtGPS accepts a fix from an external, PPS-disciplined GNSS
// receiver, rejecting it if it is older than ExtGPSMaxAge relative to
// its own PPS timestamp.
func (p *Poller) SetFromExtGPS(fix ExtGPSFix, shared *sharedstate.State) error {
	now := p.clock.Now()
	if now.Sub(fix.PPSTime) > ExtGPSMaxAge {
		return errors.New("location: ext-gps fix too old relative to PPS timestamp")
	}
	shared.SetTime(fix.Time)
	shared.SetPosition(uint32(fix.Time.Unix()), fix.Pos)
	p.status.Trying = false
	p.status.Retrieved = true
	p.status.LastSuccess = now
	return nil
}

// Error is the structured location error type. It wraps the modem's
// error, so errors.Is/errors.As reach the underlying uplink failure.
type Error struct {
	Op    string
	Inner error
}

func (e *Error) Error() string { return "location: " + e.Op + ": " + e.Inner.Error() }
func (e *Error) Unwrap() error { return e.Inner }

func newErr(op string, inner error) *Error {
	return &Error{Op: op, Inner: inner}
}
