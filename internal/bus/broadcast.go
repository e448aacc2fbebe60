// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0
package bus

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// DefaultSubscriberBuffer is the bounded per-subscriber backlog (spec
// §4.F: "a bounded buffer (default 1024 records)").
const DefaultSubscriberBuffer = 1024

// subscriber is one bus.Subscribe() consumer's private channel plus its
// drop bookkeeping. Generalizes BoreasLite's single-consumer ring buffer
// (boreaslite.go) to one bounded channel per subscriber, which is the
// simplest way to give every consumer an independent back-pressure
// boundary without letting a slow one stall the others.
type subscriber struct {
	ch      chan Record
	dropped atomic.Int64
	gapOpen atomic.Bool
}

// Broadcast is the multi-producer multi-consumer bus of Record values
// (spec §4.F). Publish never blocks: a subscriber that can't keep up has
// records dropped for it, with a single warning record queued into its
// own channel per contiguous gap (ahead of the first record that fits
// after the gap) rather than per dropped record.
type Broadcast struct {
	mu          sync.RWMutex
	subscribers map[int]*subscriber
	nextID      int
	bufferSize  int
}

// NewBroadcast creates a Broadcast whose subscriber channels are sized
// bufferSize (0 selects DefaultSubscriberBuffer).
func NewBroadcast(bufferSize int) *Broadcast {
	if bufferSize <= 0 {
		bufferSize = DefaultSubscriberBuffer
	}
	return &Broadcast{
		subscribers: make(map[int]*subscriber),
		bufferSize:  bufferSize,
	}
}

// Subscription is a live handle on the broadcast bus. A subscriber never
// sees records published before it called Subscribe (spec: "late
// subscribers do not see history").
type Subscription struct {
	id     int
	ch     <-chan Record
	bus    *Broadcast
	subRef *subscriber
}

// C returns the channel records for this subscription arrive on.
func (s *Subscription) C() <-chan Record { return s.ch }

// Dropped returns the number of records this subscriber has missed due
// to back-pressure.
func (s *Subscription) Dropped() int64 { return s.subRef.dropped.Load() }

// Unsubscribe removes this subscription from the bus and closes its
// channel. Safe to call once.
func (s *Subscription) Unsubscribe() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	if _, ok := s.bus.subscribers[s.id]; ok {
		delete(s.bus.subscribers, s.id)
		close(s.subRef.ch)
	}
}

// Subscribe registers a new consumer and returns its Subscription.
func (b *Broadcast) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub := &subscriber{ch: make(chan Record, b.bufferSize)}
	id := b.nextID
	b.nextID++
	b.subscribers[id] = sub
	return &Subscription{id: id, ch: sub.ch, bus: b, subRef: sub}
}

// Publish delivers rec to every current subscriber. It never blocks on a
// slow consumer: a full channel causes the record to be dropped for that
// subscriber, and exactly one MessageWarn record is enqueued for it per
// contiguous run of drops, as soon as its channel has room again and
// ahead of the next record it receives (spec §4.F).
func (b *Broadcast) Publish(rec Record) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subscribers {
		if sub.gapOpen.Load() {
			warning := NewBusRecord(MessageWarn, fmt.Sprintf("subscriber backlog exceeded %d, dropping records", b.bufferSize))
			select {
			case sub.ch <- warning:
				sub.gapOpen.Store(false)
			default:
				sub.dropped.Add(1)
				continue
			}
		}
		select {
		case sub.ch <- rec:
		default:
			sub.dropped.Add(1)
			sub.gapOpen.Store(true)
		}
	}
}

// SubscriberCount reports the number of currently attached subscribers,
// used by components (e.g. the interface server) that need to decide
// whether a mandatory consumer is still attached.
func (b *Broadcast) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
