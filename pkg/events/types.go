// Package events delivers live workspace logs over WebSocket. A
// ConnectionManager tracks socket connections and the apps each one has
// joined, bridging every join to a Log Bus subscription.
package events

import "github.com/webforge-labs/webforge/pkg/logbus"

// Client → server actions.
const (
	ActionJoinApp  = "join-app"
	ActionLeaveApp = "leave-app"
	ActionPing     = "ping"
)

// Server → client frame types.
const (
	FrameConnectionEstablished = "connection.established"
	FrameAppJoined             = "app.joined"
	FrameAppLeft               = "app.left"
	FrameTerminalLog           = "terminal:log"
	FramePong                  = "pong"
	FrameError                 = "error"
)

// ClientMessage is the JSON structure for client → server socket messages.
type ClientMessage struct {
	Action string `json:"action"`          // "join-app", "leave-app", "ping"
	AppID  int64  `json:"appId,omitempty"` // workspace id for join/leave
}

// LogFrame is one forwarded log event. The embedded LogEvent marshals flat,
// so clients see {type, seq, appId, source, message, isError, timestamp}.
type LogFrame struct {
	Type string `json:"type"` // always "terminal:log"
	logbus.LogEvent
}
