package pipeline

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestDispatcher_SerializesJobs(t *testing.T) {
	d := NewDispatcher(quietLogger())
	defer d.Close()

	counter := 0
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := d.Exec(context.Background(), func() { counter++ }); err != nil {
				t.Errorf("Exec() failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if counter != 50 {
		t.Errorf("counter = %d, want 50", counter)
	}
}

func TestDispatcher_RecoversPanic(t *testing.T) {
	d := NewDispatcher(quietLogger())
	defer d.Close()

	if err := d.Exec(context.Background(), func() { panic("bad job") }); err != nil {
		t.Fatalf("Exec() of panicking job failed: %v", err)
	}
	ran := false
	if err := d.Exec(context.Background(), func() { ran = true }); err != nil || !ran {
		t.Errorf("dispatcher unusable after panic: err=%v ran=%v", err, ran)
	}
}

func TestDispatcher_Closed(t *testing.T) {
	d := NewDispatcher(quietLogger())
	d.Close()
	d.Close()

	if err := d.Exec(context.Background(), func() {}); !errors.Is(err, ErrClosed) {
		t.Errorf("Exec() after Close error = %v, want ErrClosed", err)
	}
}

func TestIDOrder(t *testing.T) {
	o := newIDOrder()

	prev, releaseA := o.enqueue([]string{"x"})
	if len(prev) != 0 {
		t.Fatalf("first enqueue has %d predecessors", len(prev))
	}
	prev, releaseB := o.enqueue([]string{"x", "y"})
	if len(prev) != 1 {
		t.Fatalf("second enqueue has %d predecessors, want 1", len(prev))
	}

	o.abandon("x")
	if live := o.live([]string{"x", "y"}); len(live) != 1 || live[0] != "y" {
		t.Errorf("live = %v, want [y]", live)
	}

	releaseA()
	select {
	case <-prev[0]:
	default:
		t.Error("release did not unblock the successor")
	}
	releaseB()

	if len(o.tails) != 0 || len(o.abandoned) != 0 {
		t.Errorf("order not cleaned up: tails=%d abandoned=%d", len(o.tails), len(o.abandoned))
	}
	o.abandon("gone")
	if len(o.abandoned) != 0 {
		t.Error("abandon of an idle id should be ignored")
	}
}
