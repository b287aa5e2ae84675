package realtime

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"collabcanvas/core"
)

func change(typ core.ChangeType, table, id string) core.ChangeEvent {
	return core.ChangeEvent{Type: typ, Table: table, New: &core.CanvasObject{ID: id}}
}

func receive(t *testing.T, ch <-chan core.ChangeEvent) (core.ChangeEvent, bool) {
	t.Helper()
	select {
	case ev, ok := <-ch:
		return ev, ok
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return core.ChangeEvent{}, false
	}
}

func TestLocalBroker_FanOutInOrder(t *testing.T) {
	b := NewLocalBroker()
	defer b.Close()
	ctx := context.Background()

	first, _ := b.Subscribe(ctx, core.ObjectsTable)
	second, _ := b.Subscribe(ctx, core.ObjectsTable)
	other, _ := b.Subscribe(ctx, "chat")

	for _, id := range []string{"a", "b", "c"} {
		if err := b.Publish(ctx, change(core.ChangeInsert, core.ObjectsTable, id)); err != nil {
			t.Fatalf("Publish() failed: %v", err)
		}
	}

	for _, ch := range []<-chan core.ChangeEvent{first, second} {
		for _, want := range []string{"a", "b", "c"} {
			ev, ok := receive(t, ch)
			if !ok || ev.ObjectID() != want {
				t.Fatalf("got %q (open=%v), want %q", ev.ObjectID(), ok, want)
			}
		}
	}
	select {
	case ev := <-other:
		t.Errorf("subscriber of another table got %+v", ev)
	default:
	}
}

func TestLocalBroker_UnsubscribeOnCancel(t *testing.T) {
	b := NewLocalBroker()
	ctx, cancel := context.WithCancel(context.Background())

	ch, _ := b.Subscribe(ctx, core.ObjectsTable)
	cancel()

	if _, ok := receive(t, ch); ok {
		t.Error("channel still open after cancel")
	}
}

func TestLocalBroker_DropsSlowSubscriber(t *testing.T) {
	b := NewLocalBroker()
	ctx := context.Background()
	slow, _ := b.Subscribe(ctx, core.ObjectsTable)

	for i := 0; i <= subscriberBuffer; i++ {
		b.Publish(ctx, change(core.ChangeUpdate, core.ObjectsTable, "a"))
	}

	n := 0
	for range slow {
		n++
	}
	if n != subscriberBuffer {
		t.Errorf("slow subscriber drained %d events, want %d before close", n, subscriberBuffer)
	}
}

func TestLocalBroker_Close(t *testing.T) {
	b := NewLocalBroker()
	ch, _ := b.Subscribe(context.Background(), core.ObjectsTable)
	b.Close()

	if _, ok := receive(t, ch); ok {
		t.Error("channel open after Close")
	}
	if _, err := b.Subscribe(context.Background(), core.ObjectsTable); !errors.Is(err, ErrBrokerClosed) {
		t.Errorf("Subscribe() after Close error = %v, want ErrBrokerClosed", err)
	}
}

func TestGetBroker_DefaultsToLocal(t *testing.T) {
	t.Setenv("REDIS_ADDR", "")
	b, err := GetBroker(context.Background())
	if err != nil {
		t.Fatalf("GetBroker() failed: %v", err)
	}
	defer b.Close()
	if _, ok := b.(*LocalBroker); !ok {
		t.Errorf("GetBroker() = %T, want *LocalBroker", b)
	}
}

// Set REDIS_TEST_ADDR to run against a real server.
func TestRedisBroker(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b, err := NewRedisBroker(ctx, addr, "collabcanvas-test")
	if err != nil {
		t.Fatalf("NewRedisBroker() failed: %v", err)
	}
	defer b.Close()

	ch, err := b.Subscribe(ctx, core.ObjectsTable)
	if err != nil {
		t.Fatalf("Subscribe() failed: %v", err)
	}
	if err := b.Publish(ctx, change(core.ChangeDelete, core.ObjectsTable, "gone")); err != nil {
		t.Fatalf("Publish() failed: %v", err)
	}
	ev, ok := receive(t, ch)
	if !ok || ev.Type != core.ChangeDelete || ev.ObjectID() != "gone" {
		t.Errorf("received %+v (open=%v)", ev, ok)
	}
}
