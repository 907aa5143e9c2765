package logbus

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishOrderPerSubscriber(t *testing.T) {
	bus := NewBus(0)
	defer bus.Close()

	sub := bus.Subscribe(1, 128)
	defer sub.Cancel()

	const n = 100
	for i := 0; i < n; i++ {
		bus.Publish(1, LogEvent{Source: SourceDev, Message: fmt.Sprintf("line %d", i)})
	}

	for i := 0; i < n; i++ {
		select {
		case evt := <-sub.Events():
			assert.Equal(t, int64(i+1), evt.Seq)
			assert.Equal(t, fmt.Sprintf("line %d", i), evt.Message)
			assert.Equal(t, int64(1), evt.AppID)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}
}

func TestReplayThenLive(t *testing.T) {
	bus := NewBus(10)
	defer bus.Close()

	for i := 0; i < 5; i++ {
		bus.Publish(3, LogEvent{Message: fmt.Sprintf("old %d", i)})
	}

	sub := bus.Subscribe(3, 16)
	defer sub.Cancel()

	bus.Publish(3, LogEvent{Message: "live"})

	var got []string
	for i := 0; i < 6; i++ {
		select {
		case evt := <-sub.Events():
			got = append(got, evt.Message)
		case <-time.After(time.Second):
			t.Fatal("timed out draining subscription")
		}
	}
	require.Len(t, got, 6)
	for i := 0; i < 5; i++ {
		assert.Equal(t, fmt.Sprintf("old %d", i), got[i])
	}
	assert.Equal(t, "live", got[5])
}

func TestRingBoundsReplay(t *testing.T) {
	bus := NewBus(3)
	defer bus.Close()

	for i := 0; i < 10; i++ {
		bus.Publish(7, LogEvent{Message: fmt.Sprintf("m%d", i)})
	}

	sub := bus.Subscribe(7, 8)
	defer sub.Cancel()

	// Only the last three survive, oldest first.
	want := []string{"m7", "m8", "m9"}
	for _, expected := range want {
		select {
		case evt := <-sub.Events():
			assert.Equal(t, expected, evt.Message)
		case <-time.After(time.Second):
			t.Fatal("timed out reading replay")
		}
	}
	select {
	case evt := <-sub.Events():
		t.Fatalf("unexpected extra event: %q", evt.Message)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSlowSubscriberDropsOldest(t *testing.T) {
	bus := NewBus(0)
	defer bus.Close()

	sub := bus.Subscribe(1, 2)
	defer sub.Cancel()

	// Capacity 2: the third publish evicts the first.
	bus.Publish(1, LogEvent{Message: "a"})
	bus.Publish(1, LogEvent{Message: "b"})
	bus.Publish(1, LogEvent{Message: "c"})

	assert.Equal(t, int64(1), sub.Dropped())

	evt := <-sub.Events()
	assert.Equal(t, "b", evt.Message)
	evt = <-sub.Events()
	assert.Equal(t, "c", evt.Message)
}

func TestSubscribersAreIsolatedByApp(t *testing.T) {
	bus := NewBus(0)
	defer bus.Close()

	subA := bus.Subscribe(1, 8)
	defer subA.Cancel()
	subB := bus.Subscribe(2, 8)
	defer subB.Cancel()

	bus.Publish(1, LogEvent{Message: "for app 1"})

	evt := <-subA.Events()
	assert.Equal(t, "for app 1", evt.Message)

	select {
	case evt := <-subB.Events():
		t.Fatalf("app 2 subscriber received %q", evt.Message)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestConcurrentPublishers(t *testing.T) {
	bus := NewBus(0)
	defer bus.Close()

	sub := bus.Subscribe(1, 1024)
	defer sub.Cancel()

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				bus.Publish(1, LogEvent{Message: "x"})
			}
		}()
	}
	wg.Wait()

	// Sequence numbers must be strictly increasing per subscriber.
	var last int64
	for i := 0; i < 200; i++ {
		evt := <-sub.Events()
		assert.Greater(t, evt.Seq, last)
		last = evt.Seq
	}
	assert.Equal(t, int64(0), sub.Dropped())
}

func TestCancelStopsDelivery(t *testing.T) {
	bus := NewBus(0)
	defer bus.Close()

	sub := bus.Subscribe(1, 8)
	sub.Cancel()
	sub.Cancel() // idempotent

	bus.Publish(1, LogEvent{Message: "after cancel"})

	_, open := <-sub.Events()
	assert.False(t, open)
}

func TestCloseReleasesSubscribers(t *testing.T) {
	bus := NewBus(0)

	sub := bus.Subscribe(1, 8)
	bus.Close()

	_, open := <-sub.Events()
	assert.False(t, open)

	// Publish and subscribe after close are safe no-ops.
	bus.Publish(1, LogEvent{Message: "ignored"})
	late := bus.Subscribe(1, 8)
	_, open = <-late.Events()
	assert.False(t, open)
}

func TestPurgeDropsTopic(t *testing.T) {
	bus := NewBus(0)
	defer bus.Close()

	bus.Publish(5, LogEvent{Message: "old"})
	sub := bus.Subscribe(5, 8)
	bus.Purge(5)

	// Channel closed; replay for a fresh subscriber is empty.
	for {
		if _, open := <-sub.Events(); !open {
			break
		}
	}
	fresh := bus.Subscribe(5, 8)
	defer fresh.Cancel()
	select {
	case evt, open := <-fresh.Events():
		if open {
			t.Fatalf("unexpected replayed event %q after purge", evt.Message)
		}
	case <-time.After(50 * time.Millisecond):
	}
}
