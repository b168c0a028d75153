package http

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/medianest/gateway/internal/auth"
	"github.com/medianest/gateway/internal/config"
	"github.com/medianest/gateway/internal/core"
	"github.com/medianest/gateway/internal/proto"
	"github.com/medianest/gateway/internal/status"
	"github.com/medianest/gateway/internal/store/sqlite"
)

// Seeded users: 1 alice (admin), 2 bob, 3 carol (inactive), 4 dave.
const testSchema = `
CREATE TABLE users (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	username      TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL DEFAULT '',
	email         TEXT,
	is_admin      BOOLEAN NOT NULL DEFAULT 0,
	is_active     BOOLEAN NOT NULL DEFAULT 1,
	created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE notifications (
	id         TEXT PRIMARY KEY,
	user_id    INTEGER NOT NULL,
	type       TEXT NOT NULL DEFAULT 'generic',
	payload    TEXT NOT NULL DEFAULT '{}',
	read_at    DATETIME,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (user_id) REFERENCES users(id)
);

INSERT INTO users (username, email, is_admin, is_active) VALUES
	('alice', 'alice@example.com', 1, 1),
	('bob', 'bob@example.com', 0, 1),
	('carol', 'carol@example.com', 0, 0),
	('dave', 'dave@example.com', 0, 1);
`

const testServiceKey = "test-service-key"

type testStack struct {
	ts       *httptest.Server
	gateway  *core.Gateway
	registry *core.Registry
	tracker  *status.Tracker
	jwtCfg   *auth.JWTConfig
}

type stackOptions struct {
	rateLimit  int
	rateWindow time.Duration
}

func startTestServer(t *testing.T, opts ...func(*stackOptions)) *testStack {
	t.Helper()

	o := &stackOptions{rateLimit: 100, rateWindow: time.Minute}
	for _, opt := range opts {
		opt(o)
	}

	nop := zerolog.Nop()
	logger := &nop

	st, err := sqlite.NewWithSetup(":memory:", func(db *sql.DB) error {
		_, err := db.Exec(testSchema)
		return err
	})
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	jwtCfg := &auth.JWTConfig{
		Secret:   []byte("test-secret"),
		Issuer:   "medianest",
		Audience: "medianest-gateway",
		TTL:      time.Hour,
	}
	verifier := auth.NewVerifier(st, jwtCfg)

	keyHash, err := auth.HashServiceKey(testServiceKey)
	if err != nil {
		t.Fatalf("hash service key: %v", err)
	}

	registry := core.NewRegistry()
	limiter := core.NewLimiter(o.rateLimit, o.rateWindow)
	gateway := core.NewGateway(registry, limiter, logger)
	dispatcher := core.NewDispatcher(limiter, logger)
	broadcaster := core.NewBroadcaster(registry, logger)
	tracker := status.NewTracker()
	poller := status.NewPoller(tracker, broadcaster, nil, time.Minute, logger)
	handlers := core.NewHandlers(registry, broadcaster, st, poller, logger)

	cfg := config.Default()
	cfg.JWTSecret = "test-secret"
	cfg.ServiceKeyHash = keyHash
	cfg.OutboundQueueSize = 16
	cfg.AllowedOrigin = "http://localhost:3000"

	server, _ := NewServer(gateway, dispatcher, handlers, verifier, broadcaster, tracker, st, cfg, logger)

	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return &testStack{
		ts:       ts,
		gateway:  gateway,
		registry: registry,
		tracker:  tracker,
		jwtCfg:   jwtCfg,
	}
}

func (s *testStack) token(t *testing.T, userID int64) string {
	t.Helper()

	token, err := auth.GenerateToken(s.jwtCfg, userID)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	return token
}

func (s *testStack) wsURL(token string) string {
	url := strings.Replace(s.ts.URL, "http", "ws", 1) + "/ws"
	if token != "" {
		url += "?token=" + token
	}
	return url
}

func dialWS(t *testing.T, ctx context.Context, s *testStack, userID int64) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.Dial(ctx, s.wsURL(s.token(t, userID)), nil)
	if err != nil {
		t.Fatalf("dial ws for user %d: %v", userID, err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "done") })
	return conn
}

// outboundFrame mirrors proto.Outbound with raw data for assertions.
type outboundFrame struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Error *proto.Error    `json:"error"`
}

func sendWS(t *testing.T, ctx context.Context, conn *websocket.Conn, event string, data any) {
	t.Helper()

	var raw json.RawMessage
	if data != nil {
		payload, err := json.Marshal(data)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		raw = payload
	}
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: event, Data: raw}); err != nil {
		t.Fatalf("write %s: %v", event, err)
	}
}

// mustFrame reads frames until one matches the event name.
func mustFrame(t *testing.T, ctx context.Context, conn *websocket.Conn, event string) outboundFrame {
	t.Helper()

	readCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	for {
		var frame outboundFrame
		if err := wsjson.Read(readCtx, conn, &frame); err != nil {
			t.Fatalf("waiting for %s: %v", event, err)
		}
		if frame.Event == event {
			return frame
		}
	}
}

// mustSilence asserts no frame arrives within the grace period. The read
// context expiring closes the connection, so call this last.
func mustSilence(t *testing.T, conn *websocket.Conn) {
	t.Helper()

	readCtx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	var frame outboundFrame
	if err := wsjson.Read(readCtx, conn, &frame); err == nil {
		t.Fatalf("unexpected frame: %+v", frame)
	}
}

// eventually polls an assertion until it holds or the deadline passes.
func eventually(t *testing.T, what string, fn func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition never held: %s", what)
}
