package proto

import (
	"encoding/json"
	"errors"
	"strings"
)

// Inbound is the envelope for events coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Inbound event names form a closed set; anything else is ignored.
const (
	InboundSubscribeStatus        = "subscribe_status"
	InboundUnsubscribeStatus      = "unsubscribe_status"
	InboundAdminRefresh           = "admin_refresh"
	InboundSubscribeNotifications = "subscribe_notifications"
	InboundMarkNotificationRead   = "mark_notification_read"
)

// Outbound event names.
const (
	OutboundStatusSnapshot  = "status_snapshot"
	OutboundStatusUpdate    = "status_update"
	OutboundRefreshing      = "refreshing"
	OutboundNewNotification = "new_notification"
	OutboundReadAck         = "read_ack"
	OutboundReadFailed      = "read_failed"
)

// Envelope kinds for outbound frames.
const (
	OutboundTypeEvent = "event"
	OutboundTypeError = "error"
)

// Outbound is the envelope for events sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// Error describes an event-level error response. For errors triggered by
// an inbound event, the envelope's Event field names that event.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

// ServiceStatus is one monitored service's last-known state.
type ServiceStatus struct {
	Service   string `json:"service"`
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// StatusSnapshotData is sent once, right after a successful status
// subscription.
type StatusSnapshotData struct {
	Services []ServiceStatus `json:"services"`
}

// MarkReadData asks the server to mark one notification as read.
type MarkReadData struct {
	NotificationID string `json:"notification_id"`
}

// ReadAckData confirms a mark-as-read request.
type ReadAckData struct {
	NotificationID string `json:"notification_id"`
}

// ReadFailedData reports a mark-as-read request the store rejected.
type ReadFailedData struct {
	NotificationID string `json:"notification_id"`
	Message        string `json:"message"`
}

// NewNotificationData wraps an opaque notification with the server-side
// delivery timestamp.
type NewNotificationData struct {
	Notification any    `json:"notification"`
	Timestamp    string `json:"timestamp"`
}

// ErrBadPayload is returned when an inbound payload fails shape
// validation. Payloads are rejected, never coerced.
var ErrBadPayload = errors.New("bad payload")

// ParseMarkRead validates and decodes a mark_notification_read payload.
func ParseMarkRead(data json.RawMessage) (MarkReadData, error) {
	var p MarkReadData
	if len(data) == 0 {
		return p, ErrBadPayload
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return p, ErrBadPayload
	}
	if strings.TrimSpace(p.NotificationID) == "" {
		return p, ErrBadPayload
	}
	return p, nil
}

// ValidateEmpty rejects payloads on events that take none. A missing,
// null, or empty-object payload is fine.
func ValidateEmpty(data json.RawMessage) error {
	switch strings.TrimSpace(string(data)) {
	case "", "null", "{}":
		return nil
	}
	return ErrBadPayload
}
