// Package logbus fans structured dev-server log events out to live
// subscribers. Each app workspace is its own topic with a monotonic
// sequence and a bounded replay ring; publishers never block on slow
// consumers.
package logbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// DefaultRingCapacity bounds the per-app replay ring.
const DefaultRingCapacity = 300

// Log event sources.
const (
	SourceInstall = "install"
	SourceDev     = "dev"
	SourceSystem  = "system"
)

// LogEvent is one captured output line from a workspace process.
type LogEvent struct {
	Seq       int64     `json:"seq"`
	AppID     int64     `json:"appId"`
	Source    string    `json:"source"`
	Message   string    `json:"message"`
	IsError   bool      `json:"isError"`
	Timestamp time.Time `json:"timestamp"`
}

type subscriber struct {
	id      int
	ch      chan LogEvent
	dropped *atomic.Int64
}

type appState struct {
	seq       int64
	ring      []LogEvent // circular buffer
	ringCap   int
	ringStart int // index of oldest
	subs      map[int]*subscriber
	nextSubID int
}

// Bus is an in-memory per-app log event broker.
type Bus struct {
	mu     sync.RWMutex
	apps   map[int64]*appState
	cap    int
	closed bool
}

// NewBus creates a bus with the given per-app replay ring capacity.
func NewBus(ringCapacity int) *Bus {
	if ringCapacity <= 0 {
		ringCapacity = DefaultRingCapacity
	}
	return &Bus{
		apps: make(map[int64]*appState),
		cap:  ringCapacity,
	}
}

func (b *Bus) getOrCreateApp(appID int64) *appState {
	st, ok := b.apps[appID]
	if !ok {
		st = &appState{
			ring:      make([]LogEvent, 0, b.cap),
			ringCap:   b.cap,
			subs:      make(map[int]*subscriber),
			nextSubID: 1,
		}
		b.apps[appID] = st
	}
	return st
}

// Publish stamps the event with the app's next sequence number, appends it
// to the replay ring, and fans it out. Subscribers that cannot keep up have
// their oldest buffered event dropped (counted) instead of blocking the
// publisher.
func (b *Bus) Publish(appID int64, evt LogEvent) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	evt.AppID = appID

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	st := b.getOrCreateApp(appID)
	st.seq++
	evt.Seq = st.seq

	if len(st.ring) < st.ringCap {
		st.ring = append(st.ring, evt)
	} else {
		st.ring[st.ringStart] = evt
		st.ringStart = (st.ringStart + 1) % st.ringCap
	}

	// Fan out under the lock: every send path is non-blocking, holding the
	// lock keeps delivery in sequence order and makes a send racing a
	// concurrent Cancel's close impossible.
	for _, s := range st.subs {
		select {
		case s.ch <- evt:
		default:
			// Full: evict the oldest buffered event, then retry once.
			select {
			case <-s.ch:
				s.dropped.Add(1)
			default:
			}
			select {
			case s.ch <- evt:
			default:
				s.dropped.Add(1)
			}
		}
	}
	b.mu.Unlock()
}

// Subscription is one live feed of an app's log events. Events already in
// the replay ring at subscribe time are delivered first, then live events,
// in publish order.
type Subscription struct {
	ch      chan LogEvent
	cancel  func()
	dropped *atomic.Int64
}

// Events returns the subscription channel. It is closed by Cancel and by
// Bus.Close.
func (s *Subscription) Events() <-chan LogEvent { return s.ch }

// Cancel removes the subscription and closes its channel. Safe to call more
// than once.
func (s *Subscription) Cancel() { s.cancel() }

// Dropped reports how many events were discarded because this subscriber
// fell behind.
func (s *Subscription) Dropped() int64 { return s.dropped.Load() }

// Subscribe registers a subscriber for an app's log events. The channel
// capacity is at least buffer, grown to hold the full replay so buffered
// history never counts against live headroom.
func (b *Bus) Subscribe(appID int64, buffer int) *Subscription {
	if buffer <= 0 {
		buffer = 64
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		ch := make(chan LogEvent)
		close(ch)
		return &Subscription{ch: ch, cancel: func() {}, dropped: &atomic.Int64{}}
	}

	st := b.getOrCreateApp(appID)
	replay := collectRingLocked(st)

	ch := make(chan LogEvent, buffer+len(replay))
	// Preload the replay while still holding the lock; no publish can
	// interleave, so per-subscriber order is the publish order.
	for _, e := range replay {
		ch <- e
	}

	id := st.nextSubID
	st.nextSubID++
	sub := &subscriber{id: id, ch: ch, dropped: &atomic.Int64{}}
	st.subs[id] = sub
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if st, ok := b.apps[appID]; ok {
			if s, exists := st.subs[id]; exists {
				delete(st.subs, id)
				close(s.ch)
			}
		}
	}
	return &Subscription{ch: ch, cancel: cancel, dropped: sub.dropped}
}

// collectRingLocked returns the ring contents oldest to newest.
func collectRingLocked(st *appState) []LogEvent {
	if len(st.ring) == 0 {
		return nil
	}
	out := make([]LogEvent, 0, len(st.ring))
	for i := 0; i < len(st.ring); i++ {
		out = append(out, st.ring[(st.ringStart+i)%st.ringCap])
	}
	return out
}

// Purge drops an app's topic entirely: ring, sequence, and subscribers.
// Used when the app is deleted.
func (b *Bus) Purge(appID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.apps[appID]
	if !ok {
		return
	}
	for _, s := range st.subs {
		close(s.ch)
	}
	delete(b.apps, appID)
}

// Close shuts down the bus and every subscription.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, st := range b.apps {
		for _, s := range st.subs {
			close(s.ch)
		}
		st.subs = map[int]*subscriber{}
	}
}
