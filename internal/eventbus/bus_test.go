package eventbus

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribeFiltersTypes(t *testing.T) {
	t.Parallel()
	b := New()
	all, unsubAll := b.Subscribe(4)
	defer unsubAll()
	cmds, unsubCmds := b.Subscribe(4, CommandHandled)
	defer unsubCmds()

	b.Publish(Event{Type: TriggerFired})
	b.Publish(Event{Type: CommandHandled, Data: "x"})

	require.Len(t, all, 2)
	require.Len(t, cmds, 1)
	ev := <-cmds
	assert.Equal(t, CommandHandled, ev.Type)
	assert.False(t, ev.Time.IsZero())
}

func TestSlowSubscriberDropsAndCounts(t *testing.T) {
	t.Parallel()
	b := New()
	_, unsub := b.Subscribe(1)
	defer unsub()

	for i := 0; i < 3; i++ {
		b.Publish(Event{Type: TaskStarted})
	}
	st := b.Stats()
	assert.Equal(t, uint64(3), st.Published)
	assert.Equal(t, uint64(2), st.Dropped)
	assert.Equal(t, 1, st.Subscribers)
}

func TestUnsubscribeClosesAndIsIdempotent(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(1)
	unsub()
	unsub()
	_, ok := <-ch
	assert.False(t, ok)
	assert.Zero(t, b.Stats().Subscribers)
	b.Publish(Event{Type: TaskFailed})
}

func TestConcurrentPublishAndUnsubscribe(t *testing.T) {
	t.Parallel()
	b := New()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		_, unsub := b.Subscribe(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				b.Publish(Event{Type: DeliveryRetry})
			}
		}()
		go func() {
			defer wg.Done()
			unsub()
		}()
	}
	wg.Wait()
	assert.Equal(t, uint64(800), b.Stats().Published)
}
