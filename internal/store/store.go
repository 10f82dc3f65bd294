// Package store owns the bot's mutable runtime state: whether it answers text
// messages, and which webhook events were already handled.
package store

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// State is read once per inbound message and written by the talk toggles.
type State interface {
	TalkingEnabled(ctx context.Context) (bool, error)
	SetTalkingEnabled(ctx context.Context, enabled bool) error
}

// Deduper reports whether an event id was seen before, marking it seen.
type Deduper interface {
	FirstSeen(ctx context.Context, eventID string) (bool, error)
}

type MemoryState struct {
	enabled atomic.Bool
}

func NewMemoryState(defaultEnabled bool) *MemoryState {
	s := &MemoryState{}
	s.enabled.Store(defaultEnabled)
	return s
}

func (s *MemoryState) TalkingEnabled(ctx context.Context) (bool, error) {
	return s.enabled.Load(), nil
}

func (s *MemoryState) SetTalkingEnabled(ctx context.Context, enabled bool) error {
	s.enabled.Store(enabled)
	return nil
}

// MemoryDeduper keeps ids for ttl; expired ids are swept lazily on insert.
type MemoryDeduper struct {
	ttl  time.Duration
	now  func() time.Time
	mu   sync.Mutex
	seen map[string]time.Time
}

func NewMemoryDeduper(ttl time.Duration) *MemoryDeduper {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &MemoryDeduper{ttl: ttl, now: time.Now, seen: map[string]time.Time{}}
}

func (d *MemoryDeduper) FirstSeen(ctx context.Context, eventID string) (bool, error) {
	if eventID == "" {
		return true, nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	for id, exp := range d.seen {
		if now.After(exp) {
			delete(d.seen, id)
		}
	}
	if _, ok := d.seen[eventID]; ok {
		return false, nil
	}
	d.seen[eventID] = now.Add(d.ttl)
	return true, nil
}
