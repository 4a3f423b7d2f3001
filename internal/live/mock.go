package live

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/ent0n29/healthpilot/internal/toolcall"
)

// MockDialer opens in-process connections. Each Dial hands the new
// connection to OnDial so a test or dev driver can script the server.
type MockDialer struct {
	// Greeting, when set, is sent as an output transcript on connect.
	Greeting string
	OnDial   func(c *MockConn)
	Err      error

	mu      sync.Mutex
	conns   []*MockConn
	configs []ConnectConfig
}

func (d *MockDialer) Dial(ctx context.Context, cfg ConnectConfig) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	if d.Err != nil {
		err := d.Err
		d.mu.Unlock()
		return nil, err
	}
	c := NewMockConn()
	d.conns = append(d.conns, c)
	d.configs = append(d.configs, cfg)
	onDial, greeting := d.OnDial, d.Greeting
	d.mu.Unlock()

	if greeting != "" {
		c.Push(ServerMessage{OutputTranscript: greeting, TurnComplete: true})
	}
	if onDial != nil {
		onDial(c)
	}
	return c, nil
}

// Conns returns every connection opened so far.
func (d *MockDialer) Conns() []*MockConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*MockConn(nil), d.conns...)
}

// Configs returns the connect configs seen so far.
func (d *MockDialer) Configs() []ConnectConfig {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]ConnectConfig(nil), d.configs...)
}

// MockConn is a loopback connection driven by Push and Fail.
type MockConn struct {
	inbound chan ServerMessage
	failCh  chan error
	closed  chan struct{}
	once    sync.Once

	mu    sync.Mutex
	media []Blob
	acks  []toolcall.Ack
}

func NewMockConn() *MockConn {
	return &MockConn{
		inbound: make(chan ServerMessage, 64),
		failCh:  make(chan error, 1),
		closed:  make(chan struct{}),
	}
}

// Push queues a server message for Receive.
func (c *MockConn) Push(msg ServerMessage) {
	select {
	case c.inbound <- msg:
	case <-c.closed:
	}
}

// Fail makes the next Receive return err.
func (c *MockConn) Fail(err error) {
	select {
	case c.failCh <- err:
	default:
	}
}

func (c *MockConn) SendRealtime(b Blob) error {
	select {
	case <-c.closed:
		return io.ErrClosedPipe
	default:
	}
	c.mu.Lock()
	c.media = append(c.media, b)
	c.mu.Unlock()
	return nil
}

func (c *MockConn) SendToolResponse(ack toolcall.Ack) error {
	select {
	case <-c.closed:
		return io.ErrClosedPipe
	default:
	}
	c.mu.Lock()
	c.acks = append(c.acks, ack)
	c.mu.Unlock()
	return nil
}

func (c *MockConn) Receive() (ServerMessage, error) {
	select {
	case err := <-c.failCh:
		return ServerMessage{}, err
	case msg := <-c.inbound:
		return msg, nil
	case <-c.closed:
		return ServerMessage{}, errors.New("mock connection closed")
	}
}

func (c *MockConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

// Closed reports whether Close was called.
func (c *MockConn) Closed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// Media returns the realtime payloads sent so far.
func (c *MockConn) Media() []Blob {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Blob(nil), c.media...)
}

// Acks returns the tool responses sent so far.
func (c *MockConn) Acks() []toolcall.Ack {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]toolcall.Ack(nil), c.acks...)
}
