package main

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"collabcanvas/remote/remotetest"
	"collabcanvas/renderer/headless"
	"collabcanvas/session"

	"github.com/sirupsen/logrus"
)

func openSession(t *testing.T, fake *remotetest.Fake) (*session.Session, *headless.Renderer) {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	mirror := headless.New()
	s, err := session.Open(context.Background(), session.Options{Remote: fake, Renderer: mirror, Logger: log})
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.Close(ctx)
	})
	return s, mirror
}

func TestRunScript(t *testing.T) {
	fake := remotetest.New()
	s, mirror := openSession(t, fake)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := runScript(ctx, s); err != nil {
		t.Fatalf("runScript() failed: %v", err)
	}

	calls := fake.Calls()
	var ops []string
	for _, c := range calls {
		if c.Op != remotetest.OpList {
			ops = append(ops, c.Op)
		}
	}
	want := []string{remotetest.OpInsert, remotetest.OpUpdate, remotetest.OpDelete}
	if len(ops) != len(want) {
		t.Fatalf("remote ops = %v, want %v", ops, want)
	}
	for i := range want {
		if ops[i] != want[i] {
			t.Errorf("op %d = %s, want %s", i, ops[i], want[i])
		}
	}
	if mirror.Len() != 0 || len(s.View().List()) != 0 {
		t.Errorf("canvas not empty after script: %d visuals, %d objects", mirror.Len(), len(s.View().List()))
	}
	if mirror.Created() != 1 {
		t.Errorf("visuals created = %d, want 1", mirror.Created())
	}
}

func TestRunScript_InsertRejected(t *testing.T) {
	fake := remotetest.New()
	fake.Fail(remotetest.OpInsert, errors.New("read only"))
	s, mirror := openSession(t, fake)

	if err := runScript(context.Background(), s); err == nil {
		t.Fatal("runScript() succeeded with a rejected insert")
	}
	if mirror.Len() != 0 {
		t.Errorf("rolled back rectangle still drawn: %d visuals", mirror.Len())
	}
}

func TestEnvOr(t *testing.T) {
	t.Setenv("CANVAS_TABLE", "")
	if got := envOr("CANVAS_TABLE", "canvas_objects"); got != "canvas_objects" {
		t.Errorf("envOr() = %q, want fallback", got)
	}
	t.Setenv("CANVAS_TABLE", "boards")
	if got := envOr("CANVAS_TABLE", "canvas_objects"); got != "boards" {
		t.Errorf("envOr() = %q, want boards", got)
	}
}
