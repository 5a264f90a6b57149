package events

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"clipforge-backend/internal/models"
	"clipforge-backend/internal/store"
)

func newBusWithProject(t *testing.T) (*Bus, uuid.UUID, *store.Store) {
	t.Helper()
	st := store.New()
	p := st.Create(store.ProjectSeed{UserID: "u", Title: "t", SourceURL: "url"})
	return NewBus(st), p.ID, st
}

func recvEvent(t *testing.T, ch <-chan models.ProgressEvent) models.ProgressEvent {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for event")
		return models.ProgressEvent{}
	}
}

func TestSubscribe_SnapshotFirst(t *testing.T) {
	bus, id, st := newBusWithProject(t)

	status := models.ProjectStatusProcessing
	progress := 37
	msg := "Downloading..."
	st.Update(id, store.ProjectUpdate{Status: &status, Progress: &progress, ProgressMsg: &msg})

	ch, cancel := bus.Subscribe(id)
	defer cancel()

	snap := recvEvent(t, ch)
	if snap.Progress != 37 || snap.Status != models.ProjectStatusProcessing {
		t.Errorf("Expected snapshot 37/processing, got %d/%q", snap.Progress, snap.Status)
	}
	if snap.Message != "Downloading..." {
		t.Errorf("Expected snapshot message, got %q", snap.Message)
	}
}

func TestPublish_DeliveredToSubscriber(t *testing.T) {
	bus, id, _ := newBusWithProject(t)

	ch, cancel := bus.Subscribe(id)
	defer cancel()
	recvEvent(t, ch) // snapshot

	bus.Publish(id, models.ProgressEvent{Progress: 50, Message: "halfway", Status: models.ProjectStatusProcessing})

	ev := recvEvent(t, ch)
	if ev.Progress != 50 || ev.Message != "halfway" {
		t.Errorf("Expected published event, got %+v", ev)
	}
}

func TestPublish_NoSubscriberIsNoop(t *testing.T) {
	bus, id, _ := newBusWithProject(t)

	// Must not block or panic.
	bus.Publish(id, models.ProgressEvent{Progress: 10, Message: "dropped"})
	bus.Publish(id, models.ProgressEvent{Status: models.ProjectStatusCompleted, Progress: 100})
}

func TestPublish_AfterCancelIsDropped(t *testing.T) {
	bus, id, _ := newBusWithProject(t)

	ch, cancel := bus.Subscribe(id)
	recvEvent(t, ch)
	cancel()

	done := make(chan struct{})
	go func() {
		bus.Publish(id, models.ProgressEvent{Progress: 60, Message: "late"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked after cancel")
	}
}

func TestSubscribe_ReplacesPrevious(t *testing.T) {
	bus, id, _ := newBusWithProject(t)

	first, cancelFirst := bus.Subscribe(id)
	defer cancelFirst()
	recvEvent(t, first)

	second, cancelSecond := bus.Subscribe(id)
	defer cancelSecond()
	recvEvent(t, second)

	bus.Publish(id, models.ProgressEvent{Progress: 80, Message: "to second"})

	ev := recvEvent(t, second)
	if ev.Progress != 80 {
		t.Errorf("Expected second subscriber to receive event, got %+v", ev)
	}

	select {
	case ev := <-first:
		t.Errorf("Expected superseded subscriber to receive nothing, got %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublish_TerminalAttemptedWhenWindowFull(t *testing.T) {
	bus, id, _ := newBusWithProject(t)

	ch, cancel := bus.Subscribe(id)
	defer cancel()
	recvEvent(t, ch)

	// Fill the subscriber window with intermediate events.
	for i := 0; i < 64; i++ {
		bus.Publish(id, models.ProgressEvent{Progress: i, Message: "spam"})
	}

	done := make(chan struct{})
	go func() {
		bus.Publish(id, models.ProgressEvent{Status: models.ProjectStatusCompleted, Progress: 100, Message: "Done!"})
		close(done)
	}()

	// Drain until the terminal event shows up.
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-ch:
			if ev.Status == models.ProjectStatusCompleted {
				<-done
				return
			}
		case <-deadline:
			t.Fatal("Terminal event never delivered")
		}
	}
}
