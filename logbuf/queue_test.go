package logbuf

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/gauteh/sfy-go/uplink"
	"github.com/gauteh/sfy-go/uplink/simmodem"
)

func TestPushDropsOldestRejectedOnOverflow(t *testing.T) {
	q := New(nil)
	for i := 0; i < Capacity; i++ {
		q.Push("msg")
	}
	// One more push beyond capacity must not block.
	done := make(chan struct{})
	go func() {
		q.Push("overflow")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Push blocked on a full queue")
	}
}

func TestPushTruncatesLongMessages(t *testing.T) {
	q := New(nil)
	long := bytes.Repeat([]byte("a"), MaxMessageLen+50)
	q.Push(string(long))
	select {
	case msg := <-q.ch:
		require.Len(t, msg, MaxMessageLen)
	default:
		t.Fatal("expected a queued message")
	}
}

func TestPushWritesCOBSFramedCopyToSerial(t *testing.T) {
	var buf bytes.Buffer
	q := New(&buf)
	q.Push("hello")
	require.NotZero(t, buf.Len())
}

func TestDrainForwardsAllMessagesToUplink(t *testing.T) {
	q := New(nil)
	q.Push("one")
	q.Push("two")

	modem := simmodem.New()
	ctrl := uplink.New(modem, uplink.Config{}, clock.NewMock(), nil, nil)

	require.NoError(t, q.Drain(context.Background(), ctrl))
	require.Len(t, modem.Notes(), 2)
}
