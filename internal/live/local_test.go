package live

import (
	"context"
	"testing"
	"time"
)

func TestLocalHubFanOut(t *testing.T) {
	h := NewLocalHub()
	ctx := context.Background()

	a, cancelA := h.Subscribe(ctx, "bus-1")
	b, cancelB := h.Subscribe(ctx, "bus-1")
	other, cancelOther := h.Subscribe(ctx, "bus-2")
	defer cancelB()
	defer cancelOther()

	if err := h.Publish(ctx, "bus-1", []byte(`{"lat":1}`)); err != nil {
		t.Fatal(err)
	}

	for name, ch := range map[string]<-chan []byte{"a": a, "b": b} {
		select {
		case msg := <-ch:
			if string(msg) != `{"lat":1}` {
				t.Errorf("%s got %s", name, msg)
			}
		case <-time.After(time.Second):
			t.Fatalf("%s got nothing", name)
		}
	}

	select {
	case msg := <-other:
		t.Fatalf("bus-2 subscriber got %s", msg)
	default:
	}

	cancelA()
	cancelA()

	if _, ok := <-a; ok {
		t.Fatal("cancelled channel must be closed")
	}
}

func TestLocalHubDropsForSlowSubscriber(t *testing.T) {
	h := NewLocalHub()
	ctx := context.Background()

	ch, cancel := h.Subscribe(ctx, "bus-1")
	defer cancel()

	for i := 0; i < subscriberBuffer+5; i++ {
		if err := h.Publish(ctx, "bus-1", []byte("x")); err != nil {
			t.Fatal(err)
		}
	}

	if len(ch) != subscriberBuffer {
		t.Fatalf("buffered = %d", len(ch))
	}
}
