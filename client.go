// Package adbus implements the client side of the D-Bus message-bus
// IPC protocol: the binary wire codec, the SASL authentication
// handshake, and a connection level dispatcher that routes incoming
// messages to registered handlers and to a server side object model.
//
// The Connection core is single threaded: it consumes received bytes
// through Parse and emits messages through an installed send callback.
// Client wraps a Connection around a socket for the common case,
// serialising entry into the core.
package adbus

import (
	"io"
	"net"
	"os"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

type StandardBus int

const (
	SessionBus StandardBus = iota
	SystemBus
)

// Client owns a socket connection to a message bus: it authenticates,
// performs the Hello exchange, and runs the receive loop that feeds
// the dispatcher.  All entry into the core is serialised by a mutex;
// handlers always run on the receive goroutine.
type Client struct {
	conn net.Conn

	mu sync.Mutex
	c  *Connection
}

// Connect returns a client attached to the session or system bus.
func Connect(busType StandardBus) (*Client, error) {
	var address string

	switch busType {
	case SessionBus:
		address = os.Getenv("DBUS_SESSION_BUS_ADDRESS")

	case SystemBus:
		if address = os.Getenv("DBUS_SYSTEM_BUS_ADDRESS"); len(address) == 0 {
			address = "unix:path=/var/run/dbus/system_bus_socket"
		}

	default:
		return nil, errors.New("unknown bus type")
	}

	return ConnectAddress(address)
}

// ConnectAddress dials the given bus address, authenticates and
// registers with the bus daemon.
func ConnectAddress(address string) (*Client, error) {
	trans, err := newTransport(address)
	if err != nil {
		return nil, err
	}
	conn, err := trans.Dial()
	if err != nil {
		return nil, errors.Wrap(err, "dialing bus")
	}
	return NewClient(conn)
}

// NewClient authenticates over an established connection and completes
// the Hello exchange.
func NewClient(conn net.Conn) (*Client, error) {
	if err := Authenticate(conn, nil); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "authenticating")
	}

	cl := &Client{conn: conn, c: NewConnection()}
	cl.c.SetSendCallback(func(msg *Message) error {
		data, err := msg.Build()
		if err != nil {
			return err
		}
		_, err = conn.Write(data)
		return err
	})

	connected := make(chan struct{})
	cl.mu.Lock()
	err := cl.c.ConnectToBus(func(*Connection) { close(connected) })
	cl.mu.Unlock()
	if err != nil {
		conn.Close()
		return nil, err
	}

	go cl.receiveLoop()
	<-connected
	return cl, nil
}

func (cl *Client) receiveLoop() {
	for {
		buf := make([]byte, 4096)
		n, err := cl.conn.Read(buf)
		if err != nil {
			if err != io.EOF {
				log.WithError(err).Error("failed to read from bus")
			}
			return
		}
		cl.mu.Lock()
		err = cl.c.Parse(buf[:n])
		cl.mu.Unlock()
		if err != nil {
			log.WithError(err).Error("error dispatching message")
			return
		}
	}
}

func (cl *Client) Close() error {
	return cl.conn.Close()
}

// UniqueName returns the bus assigned name of this connection.
func (cl *Client) UniqueName() string {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return cl.c.UniqueName()
}

// Do runs fn with exclusive access to the dispatcher core.  This is
// the entry point for bindings that marshal work in from other
// goroutines.
func (cl *Client) Do(fn func(*Connection)) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	fn(cl.c)
}

// Send emits a message without waiting for any reply.
func (cl *Client) Send(msg *Message) error {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return cl.c.Send(msg)
}

// Call sends a method call and blocks until its reply arrives.  D-Bus
// level errors are returned as *Error.
func (cl *Client) Call(msg *Message) (*Message, error) {
	if msg.Type != TypeMethodCall {
		return nil, errors.New("only method calls have replies")
	}

	ch := make(chan *Message, 1)
	deliver := func(d *CallDetails) error {
		ch <- d.Msg
		return nil
	}

	cl.mu.Lock()
	msg.SetSerial(cl.c.NextSerial())
	id := cl.c.AddMatch(&Match{
		ReplySerial:        msg.Serial(),
		CheckReplySerial:   true,
		RemoveOnFirstMatch: true,
		Callback:           deliver,
	})
	err := cl.c.Send(msg)
	if err != nil {
		cl.c.RemoveMatch(id)
	}
	cl.mu.Unlock()
	if err != nil {
		return nil, err
	}

	reply := <-ch
	if reply.Type == TypeError {
		return nil, reply.AsError()
	}
	return reply, nil
}

// WatchSignal installs a match for inbound signals.  The callback runs
// on the receive goroutine.
func (cl *Client) WatchSignal(m *Match) uint32 {
	if m.Type == TypeInvalid {
		m.Type = TypeSignal
	}
	m.AddToBusDaemon = true
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return cl.c.AddMatch(m)
}

// RemoveMatch cancels a match installed with WatchSignal.
func (cl *Client) RemoveMatch(id uint32) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	cl.c.RemoveMatch(id)
}

// Object returns a proxy for the remote object identified by the
// given destination and path.
func (cl *Client) Object(dest string, path ObjectPath) *ObjectProxy {
	return &ObjectProxy{cl, dest, path}
}
