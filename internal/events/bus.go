// Package events fans progress updates out to at most one live subscriber per
// project. There is no buffering beyond a small channel window; producers never
// block on slow or absent consumers, except for a short bounded attempt on
// terminal events.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"clipforge-backend/internal/models"
	"clipforge-backend/internal/store"
)

const (
	subscriberWindow    = 16
	terminalSendTimeout = time.Second
)

type subscriber struct {
	ch       chan models.ProgressEvent
	done     chan struct{}
	stopOnce sync.Once
}

func (s *subscriber) stop() {
	s.stopOnce.Do(func() { close(s.done) })
}

type Bus struct {
	mu    sync.Mutex
	store *store.Store
	subs  map[uuid.UUID]*subscriber
}

func NewBus(st *store.Store) *Bus {
	return &Bus{
		store: st,
		subs:  make(map[uuid.UUID]*subscriber),
	}
}

// Subscribe attaches the caller as the project's single live subscriber,
// superseding any previous one. The first event on the returned channel is a
// snapshot reconstructed from the store. The cancel func detaches the
// subscriber; the channel is never closed, so consumers should select on their
// own shutdown signal as well.
func (b *Bus) Subscribe(projectID uuid.UUID) (<-chan models.ProgressEvent, func()) {
	sub := &subscriber{
		ch:   make(chan models.ProgressEvent, subscriberWindow),
		done: make(chan struct{}),
	}

	b.mu.Lock()
	if prev, ok := b.subs[projectID]; ok {
		prev.stop()
	}
	b.subs[projectID] = sub
	b.mu.Unlock()

	if snap, ok := b.snapshot(projectID); ok {
		sub.ch <- snap
	}

	cancel := func() {
		b.mu.Lock()
		if b.subs[projectID] == sub {
			delete(b.subs, projectID)
		}
		b.mu.Unlock()
		sub.stop()
	}
	return sub.ch, cancel
}

// Publish delivers the event to the project's subscriber if one exists,
// otherwise drops it. Intermediate events are dropped when the subscriber's
// window is full; terminal events get a bounded blocking attempt.
func (b *Bus) Publish(projectID uuid.UUID, ev models.ProgressEvent) {
	b.mu.Lock()
	sub := b.subs[projectID]
	b.mu.Unlock()
	if sub == nil {
		return
	}

	if ev.Terminal() {
		select {
		case sub.ch <- ev:
		case <-sub.done:
		case <-time.After(terminalSendTimeout):
		}
		return
	}

	select {
	case sub.ch <- ev:
	case <-sub.done:
	default:
	}
}

// snapshot rebuilds the latest known state of a project as a single event.
func (b *Bus) snapshot(projectID uuid.UUID) (models.ProgressEvent, bool) {
	p, ok := b.store.Get(projectID)
	if !ok {
		return models.ProgressEvent{}, false
	}

	ev := models.ProgressEvent{
		Progress: p.Progress,
		Message:  p.ProgressMsg,
		Status:   p.Status,
	}
	if p.Status == models.ProjectStatusCompleted {
		ev.Clips = p.Clips
	}
	return ev, true
}
