package recognition

import "testing"

func TestBroadcaster(t *testing.T) {
	b := NewBroadcaster()
	id1, ch1 := b.Subscribe()
	id2, ch2 := b.Subscribe()
	if id1 == id2 {
		t.Fatal("subscriber IDs must be unique")
	}

	b.Publish(Event{Type: EventWarning, Message: "hello"})
	for _, ch := range []<-chan Event{ch1, ch2} {
		if ev := <-ch; ev.Message != "hello" {
			t.Errorf("unexpected event %+v", ev)
		}
	}

	b.Unsubscribe(id1)
	if _, ok := <-ch1; ok {
		t.Error("expected channel to be closed after unsubscribe")
	}
	if b.Len() != 1 {
		t.Errorf("expected 1 subscriber, got %d", b.Len())
	}
	b.Unsubscribe(id1)
	b.Unsubscribe(id2)
}

func TestBroadcasterDropsWhenFull(t *testing.T) {
	b := NewBroadcaster()
	id, ch := b.Subscribe()
	defer b.Unsubscribe(id)

	for range cap(ch) + 10 {
		b.Publish(Event{Type: EventFrame})
	}
	if len(ch) != cap(ch) {
		t.Errorf("expected a full buffer of %d, got %d", cap(ch), len(ch))
	}
}
