package broadcast

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dexradar/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func event(n int) domain.Event {
	return domain.Event{Type: domain.EventArbAlert, Payload: n}
}

func TestPublishDelivers(t *testing.T) {
	b := New(4, nil, discardLogger())
	sub := b.Subscribe()
	defer sub.Close()

	b.Publish(event(1))
	b.Publish(event(2))

	assert.Equal(t, 1, (<-sub.C()).Payload)
	assert.Equal(t, 2, (<-sub.C()).Payload)
	assert.Zero(t, sub.Dropped())
}

func TestPublishDropsOldestOnOverflow(t *testing.T) {
	b := New(2, nil, discardLogger())
	sub := b.Subscribe()
	defer sub.Close()

	for i := 1; i <= 5; i++ {
		b.Publish(event(i))
	}

	// The queue holds the newest two events; the three oldest were dropped.
	assert.Equal(t, uint64(3), sub.Dropped())
	assert.Equal(t, 4, (<-sub.C()).Payload)
	assert.Equal(t, 5, (<-sub.C()).Payload)
}

func TestSlowSubscriberDoesNotAffectOthers(t *testing.T) {
	b := New(1, nil, discardLogger())
	slow := b.Subscribe()
	fast := b.Subscribe()
	defer slow.Close()

	b.Publish(event(1))
	require.Equal(t, 1, (<-fast.C()).Payload)

	b.Publish(event(2))
	assert.Equal(t, 2, (<-fast.C()).Payload)
	assert.Zero(t, fast.Dropped())

	// The slow subscriber lost its first event but got the latest.
	assert.Equal(t, uint64(1), slow.Dropped())
	assert.Equal(t, 2, (<-slow.C()).Payload)
	fast.Close()
}

func TestCloseDetaches(t *testing.T) {
	b := New(4, nil, discardLogger())
	sub := b.Subscribe()
	require.Equal(t, 1, b.SubscriberCount())

	sub.Close()
	sub.Close() // idempotent
	assert.Zero(t, b.SubscriberCount())

	_, open := <-sub.C()
	assert.False(t, open)

	// Publishing after the only subscriber detached is a no-op.
	b.Publish(event(1))
}
