package chat

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/teamspace-service/internal/domain"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second

	// Websocket frame opcodes (RFC 6455); declared here so the relay core
	// does not import the transport package.
	textMessage = 1
	pingMessage = 9
)

// Socket is the minimal write surface of an underlying websocket.
type Socket interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Connection is a long-lived duplex channel tied to exactly one verified
// identity and zero-or-one current room. Outbound writes go through a
// buffered channel drained by a single write loop, so Send is safe from
// any goroutine and a slow client never blocks a broadcast.
type Connection struct {
	ID       string
	Identity domain.Identity

	displayName string

	socket Socket
	send   chan []byte
	done   chan struct{}
	once   sync.Once
}

// ErrConnectionClosed is returned by Send after Close.
var ErrConnectionClosed = errors.New("connection closed")

// ErrSendBufferFull is returned when the client cannot keep up; the
// connection is closed to keep backpressure bounded.
var ErrSendBufferFull = errors.New("connection send buffer full")

// NewConnection wraps a socket for the given verified identity. The
// display name is resolved at attach time from the user record; it falls
// back to the token subject when empty.
func NewConnection(identity domain.Identity, displayName string, socket Socket, bufferSize int) *Connection {
	if bufferSize <= 0 {
		bufferSize = 128
	}
	return &Connection{
		ID:          uuid.NewString(),
		Identity:    identity,
		displayName: displayName,
		socket:      socket,
		send:        make(chan []byte, bufferSize),
		done:        make(chan struct{}),
	}
}

// DisplayName returns the resolved display name for the connection's user.
func (c *Connection) DisplayName() string {
	if c.displayName != "" {
		return c.displayName
	}
	return c.Identity.SubjectName
}

// Start launches the write loop. It must be called exactly once per connection.
func (c *Connection) Start() {
	go c.writeLoop()
}

// Send enqueues payload for delivery. Delivery is best-effort: a closed
// or saturated connection returns an error without blocking the caller.
func (c *Connection) Send(payload []byte) error {
	select {
	case <-c.done:
		return ErrConnectionClosed
	default:
	}

	select {
	case c.send <- payload:
		return nil
	case <-c.done:
		return ErrConnectionClosed
	default:
		c.Close()
		return ErrSendBufferFull
	}
}

// Close terminates the connection and stops the write loop. Safe to call
// more than once.
func (c *Connection) Close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
		_ = c.socket.Close()
	})
}

// Closed reports whether Close has completed.
func (c *Connection) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *Connection) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case payload := <-c.send:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.socket.WriteMessage(textMessage, payload); err != nil {
				c.Close()
				return
			}
		case <-ticker.C:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.socket.WriteMessage(pingMessage, nil); err != nil {
				c.Close()
				return
			}
		}
	}
}
