package webui

import (
	"time"

	"alterego/orchestrator"
)

// Message types sent on /ws.
const (
	MessageTypeSnapshot = "snapshot"
	MessageTypeShutdown = "shutdown"
)

// WSMessage is the envelope of every websocket frame.
type WSMessage struct {
	Type      string    `json:"type"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewSnapshotMessage wraps an orchestrator snapshot.
func NewSnapshotMessage(snap orchestrator.Snapshot) WSMessage {
	return WSMessage{Type: MessageTypeSnapshot, Data: snap, Timestamp: time.Now()}
}

// NewShutdownMessage tells clients the server is going away.
func NewShutdownMessage() WSMessage {
	return WSMessage{Type: MessageTypeShutdown, Timestamp: time.Now()}
}
