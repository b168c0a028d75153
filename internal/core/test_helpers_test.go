package core

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/medianest/gateway/internal/proto"
)

func testLogger() *zerolog.Logger {
	logger := zerolog.Nop()
	return &logger
}

// mustEvent waits for the next outbound frame matching the event name.
func mustEvent(t *testing.T, conn *Connection, event string) *proto.Outbound {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-conn.Events():
			if ev.Event == event {
				return ev
			}
		case <-deadline:
			t.Fatalf("expected outbound event %q not received", event)
			return nil
		}
	}
}

// mustNoEvent asserts no outbound frame arrives within the grace period.
func mustNoEvent(t *testing.T, conn *Connection) {
	t.Helper()

	select {
	case ev := <-conn.Events():
		t.Fatalf("unexpected outbound event: %+v", ev)
	case <-time.After(150 * time.Millisecond):
	}
}

func testConn(id string, identity Identity) *Connection {
	return NewConnection(id, identity, 16)
}
