package events

import (
	"testing"

	"github.com/verte-zerg/pitchcoach/internal/model"
)

func stateEvent(state model.SessionState) model.StatusEvent {
	return model.StatusEvent{
		Version: model.EventVersion,
		Kind:    model.EventSessionState,
		State:   &model.SessionStateChange{State: state},
	}
}

func TestHubFansOut(t *testing.T) {
	hub := NewHub(4, nil)
	a, cancelA := hub.Subscribe()
	defer cancelA()
	b, cancelB := hub.Subscribe()
	defer cancelB()

	hub.Publish(stateEvent(model.SessionStateActive))
	for _, ch := range []<-chan model.StatusEvent{a, b} {
		ev := <-ch
		if ev.State == nil || ev.State.State != model.SessionStateActive {
			t.Fatalf("unexpected event %+v", ev)
		}
	}
}

func TestHubDropsForSlowSubscriber(t *testing.T) {
	hub := NewHub(2, nil)
	slow, cancel := hub.Subscribe()
	defer cancel()
	for i := 0; i < 5; i++ {
		hub.Publish(stateEvent(model.SessionStateActive))
	}
	if hub.Dropped() != 3 {
		t.Fatalf("expected 3 dropped events, got %d", hub.Dropped())
	}
	if len(slow) != 2 {
		t.Fatalf("expected a full queue of 2, got %d", len(slow))
	}
}

func TestHubCancelAndClose(t *testing.T) {
	hub := NewHub(1, nil)
	ch, cancel := hub.Subscribe()
	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Fatalf("expected closed channel after cancel")
	}
	other, _ := hub.Subscribe()
	hub.Close()
	if _, ok := <-other; ok {
		t.Fatalf("expected closed channel after hub close")
	}
	hub.Publish(stateEvent(model.SessionStateStopped))
	late, _ := hub.Subscribe()
	if _, ok := <-late; ok {
		t.Fatalf("subscribing to a closed hub should yield a closed channel")
	}
}
