// Package live manages the one duplex audio session with the remote
// assistant model.
package live

import (
	"context"
	"errors"

	"github.com/ent0n29/healthpilot/internal/toolcall"
)

// State is the lifecycle position of the manager.
type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateActive     State = "active"
	StateClosing    State = "closing"
)

// ErrAbandoned is returned by Start when Stop ran before the connection
// finished opening. The late connection is closed.
var ErrAbandoned = errors.New("live session abandoned during connect")

// Blob is one realtime media payload.
type Blob struct {
	Data     []byte
	MIMEType string
}

// ServerMessage is the transport-neutral view of one inbound message.
type ServerMessage struct {
	InputTranscript  string
	OutputTranscript string
	Audio            [][]byte
	ToolCalls        []toolcall.Call
	Interrupted      bool
	TurnComplete     bool
}

// ConnectConfig is everything the remote side needs to open a session.
type ConnectConfig struct {
	Model       string
	Voice       string
	Instruction string
	Tools       []toolcall.Declaration
}

// Dialer opens transport connections.
type Dialer interface {
	Dial(ctx context.Context, cfg ConnectConfig) (Conn, error)
}

// Conn is an open duplex connection. Send methods may be called from
// several goroutines; Receive is only called from one.
type Conn interface {
	SendRealtime(b Blob) error
	SendToolResponse(ack toolcall.Ack) error
	Receive() (ServerMessage, error)
	Close() error
}
