package http

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/medianest/gateway/internal/proto"
)

func pollConnect(t *testing.T, s *testStack, token string) (*http.Response, ConnectResponse) {
	t.Helper()

	req, _ := http.NewRequest(http.MethodPost, s.ts.URL+"/poll/connect", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.ts.Client().Do(req)
	if err != nil {
		t.Fatalf("poll connect: %v", err)
	}
	defer resp.Body.Close()

	var out ConnectResponse
	body, _ := io.ReadAll(resp.Body)
	_ = json.Unmarshal(body, &out)
	return resp, out
}

func pollSend(t *testing.T, s *testStack, sid, event string, data any) *http.Response {
	t.Helper()

	var raw json.RawMessage
	if data != nil {
		payload, err := json.Marshal(data)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		raw = payload
	}
	body, _ := json.Marshal(proto.Inbound{Type: event, Data: raw})

	resp, err := s.ts.Client().Post(
		s.ts.URL+"/poll/send?sid="+sid, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("poll send: %v", err)
	}
	resp.Body.Close()
	return resp
}

func pollEvents(t *testing.T, s *testStack, sid string) []outboundFrame {
	t.Helper()

	resp, err := s.ts.Client().Get(s.ts.URL + "/poll/events?sid=" + sid)
	if err != nil {
		t.Fatalf("poll events: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("poll events status: %d", resp.StatusCode)
	}
	var out struct {
		Events []outboundFrame `json:"events"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode events: %v", err)
	}
	return out.Events
}

func TestPollRejectsBadCredentials(t *testing.T) {
	s := startTestServer(t)

	resp, _ := pollConnect(t, s, "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("absent credential: %d, want 401", resp.StatusCode)
	}

	resp, _ = pollConnect(t, s, s.token(t, 3)) // carol is inactive
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("inactive user: %d, want 403", resp.StatusCode)
	}

	if s.gateway.Connections() != 0 {
		t.Fatalf("connections = %d, want 0", s.gateway.Connections())
	}
}

func TestPollRoundTrip(t *testing.T) {
	s := startTestServer(t)

	s.tracker.Set("plex", "up")

	resp, connect := pollConnect(t, s, s.token(t, 2))
	if resp.StatusCode != http.StatusOK || connect.SID == "" {
		t.Fatalf("connect: status %d, sid %q", resp.StatusCode, connect.SID)
	}
	if s.gateway.Connections() != 1 {
		t.Fatalf("connections = %d, want 1", s.gateway.Connections())
	}

	if resp := pollSend(t, s, connect.SID, proto.InboundSubscribeStatus, nil); resp.StatusCode != http.StatusAccepted {
		t.Fatalf("send: %d, want 202", resp.StatusCode)
	}

	// The snapshot is already queued, so the poll returns immediately.
	events := pollEvents(t, s, connect.SID)
	if len(events) != 1 || events[0].Event != proto.OutboundStatusSnapshot {
		t.Fatalf("unexpected events: %+v", events)
	}
	var snap proto.StatusSnapshotData
	if err := json.Unmarshal(events[0].Data, &snap); err != nil {
		t.Fatalf("unmarshal snapshot: %v", err)
	}
	if len(snap.Services) != 1 || snap.Services[0].Service != "plex" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestPollUnknownSession(t *testing.T) {
	s := startTestServer(t)

	resp, err := s.ts.Client().Get(s.ts.URL + "/poll/events?sid=nope")
	if err != nil {
		t.Fatalf("poll events: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusGone {
		t.Fatalf("unknown sid events: %d, want 410", resp.StatusCode)
	}

	sendResp := pollSend(t, s, "nope", proto.InboundSubscribeStatus, nil)
	if sendResp.StatusCode != http.StatusGone {
		t.Fatalf("unknown sid send: %d, want 410", sendResp.StatusCode)
	}
}

func TestPollSendRejectsBadEnvelope(t *testing.T) {
	s := startTestServer(t)

	_, connect := pollConnect(t, s, s.token(t, 2))

	resp, err := s.ts.Client().Post(
		s.ts.URL+"/poll/send?sid="+connect.SID, "application/json", bytes.NewReader([]byte(`{"data":{}}`)))
	if err != nil {
		t.Fatalf("poll send: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing type: %d, want 400", resp.StatusCode)
	}
}

func TestPollDisconnect(t *testing.T) {
	s := startTestServer(t)

	_, connect := pollConnect(t, s, s.token(t, 2))
	pollSend(t, s, connect.SID, proto.InboundSubscribeStatus, nil)

	req, _ := http.NewRequest(http.MethodPost, s.ts.URL+"/poll/disconnect?sid="+connect.SID, nil)
	resp, err := s.ts.Client().Do(req)
	if err != nil {
		t.Fatalf("poll disconnect: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("disconnect: %d, want 204", resp.StatusCode)
	}

	eventually(t, "session torn down", func() bool {
		return s.gateway.Connections() == 0 && s.registry.RoomCount() == 0
	})

	// The session id is unusable afterwards.
	if resp := pollSend(t, s, connect.SID, proto.InboundSubscribeStatus, nil); resp.StatusCode != http.StatusGone {
		t.Fatalf("send after disconnect: %d, want 410", resp.StatusCode)
	}
}
