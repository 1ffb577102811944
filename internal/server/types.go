// Package server defines the wire payload types exchanged with chat clients
// and the fallible parse step that turns raw frames into protocol operations.
package server

import (
	"encoding/json"
	"strings"
)

// Wire discriminators for every payload the relay sends or accepts.
const (
	TypeMessage    = "message"
	TypeHistory    = "history"
	TypeUsers      = "users"
	TypeGetHistory = "get_history"
)

// Message is a single chat message as it travels over the wire and as it is
// persisted. Username and Timestamp are always server-assigned; values
// supplied by clients are discarded during parsing.
type Message struct {
	Type      string `json:"type" bson:"type"`
	Content   string `json:"content" bson:"content"`
	Username  string `json:"username" bson:"username"`
	Timestamp string `json:"timestamp" bson:"timestamp"`
}

// UserEntry is one roster row in a "users" payload.
type UserEntry struct {
	Username string `json:"username"`
}

// RosterPayload is the full-roster replacement broadcast on every join and leave.
type RosterPayload struct {
	Type  string      `json:"type"`
	Users []UserEntry `json:"users"`
}

// HistoryPayload carries a history snapshot, ordered oldest first.
type HistoryPayload struct {
	Type     string    `json:"type"`
	Messages []Message `json:"messages"`
}

// FrameKind identifies which protocol operation an inbound frame requests.
type FrameKind int

// The closed set of inbound operations. Anything that parses as JSON but
// carries an unrecognized discriminator is FrameUnknown.
const (
	FramePostMessage FrameKind = iota
	FrameGetHistory
	FrameUnknown
)

// Frame is the result of parsing one inbound client frame. Only the fields
// relevant to the requested operation are populated.
type Frame struct {
	Kind    FrameKind
	Content string
	RawType string
}

// ParseFrame decodes a raw inbound frame into a Frame. A non-nil error means
// the payload was not valid JSON; the caller logs and discards it without
// touching the connection.
func ParseFrame(raw []byte) (Frame, error) {
	var env struct {
		Type    string `json:"type"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return Frame{}, err
	}

	switch env.Type {
	case TypeMessage:
		return Frame{Kind: FramePostMessage, Content: env.Content, RawType: env.Type}, nil
	case TypeGetHistory:
		return Frame{Kind: FrameGetHistory, RawType: env.Type}, nil
	default:
		return Frame{Kind: FrameUnknown, RawType: env.Type}, nil
	}
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
