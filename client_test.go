package adbus

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"testing"
)

// fakeDaemon speaks just enough of the server side of the protocol to
// authenticate a client and answer bus calls.
type fakeDaemon struct {
	t      *testing.T
	conn   net.Conn
	in     *bufio.Reader
	parser StreamParser
	serial uint32
}

func startFakeDaemon(t *testing.T, conn net.Conn) *fakeDaemon {
	return &fakeDaemon{t: t, conn: conn, in: bufio.NewReader(conn)}
}

// handshake consumes the SASL exchange.
func (d *fakeDaemon) handshake() error {
	nul := make([]byte, 1)
	if _, err := d.in.Read(nul); err != nil || nul[0] != 0 {
		return fmt.Errorf("expected nul byte: %v %v", nul, err)
	}
	line, err := d.in.ReadString('\n')
	if err != nil {
		return err
	}
	if !strings.HasPrefix(line, "AUTH ") {
		return fmt.Errorf("expected AUTH, got %q", line)
	}
	if _, err := d.conn.Write([]byte("OK 1234deadbeef\r\n")); err != nil {
		return err
	}
	line, err = d.in.ReadString('\n')
	if err != nil {
		return err
	}
	if line != "BEGIN\r\n" {
		return fmt.Errorf("expected BEGIN, got %q", line)
	}
	return nil
}

// readMessage blocks until one whole message has arrived.
func (d *fakeDaemon) readMessage() (*Message, error) {
	msg := new(Message)
	buf := make([]byte, 4096)
	for {
		n, err := d.in.Read(buf)
		if err != nil {
			return nil, err
		}
		chunk := append([]byte(nil), buf[:n]...)
		_, ok, err := d.parser.Next(msg, chunk)
		if err != nil {
			return nil, err
		}
		if ok {
			return msg, nil
		}
	}
}

func (d *fakeDaemon) send(msg *Message) error {
	d.serial++
	msg.SetSerial(d.serial)
	data, err := msg.Build()
	if err != nil {
		return err
	}
	_, err = d.conn.Write(data)
	return err
}

func (d *fakeDaemon) reply(call *Message, args ...interface{}) error {
	msg := NewMethodReturnMessage(call)
	msg.Sender = BusDaemonName
	if err := msg.AppendArgs(args...); err != nil {
		return err
	}
	return d.send(msg)
}

func TestClientEndToEnd(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	daemonErr := make(chan error, 1)
	go func() {
		daemonErr <- func() error {
			d := startFakeDaemon(t, serverConn)
			if err := d.handshake(); err != nil {
				return err
			}

			hello, err := d.readMessage()
			if err != nil {
				return err
			}
			if hello.Member != "Hello" || hello.Dest != BusDaemonName {
				return fmt.Errorf("expected Hello, got %s to %s", hello.Member, hello.Dest)
			}
			if err := d.reply(hello, ":1.42"); err != nil {
				return err
			}

			// The proxy call from the test body.
			call, err := d.readMessage()
			if err != nil {
				return err
			}
			if call.Dest != "com.example" || call.Member != "Greet" {
				return fmt.Errorf("unexpected call %s to %s", call.Member, call.Dest)
			}
			var who string
			if err := call.GetArgs(&who); err != nil {
				return err
			}
			reply := NewMethodReturnMessage(call)
			reply.Sender = ":1.7"
			reply.AppendArgs("hello " + who)
			return d.send(reply)
		}()
	}()

	cl, err := NewClient(clientConn)
	if err != nil {
		t.Fatal(err)
	}
	if cl.UniqueName() != ":1.42" {
		t.Errorf("unique name = %q", cl.UniqueName())
	}

	reply, err := cl.Object("com.example", "/org/example").Call("com.example.Greeter", "Greet", "world")
	if err != nil {
		t.Fatal(err)
	}
	var greeting string
	if err := reply.GetArgs(&greeting); err != nil {
		t.Fatal(err)
	}
	if greeting != "hello world" {
		t.Errorf("greeting = %q", greeting)
	}

	if err := <-daemonErr; err != nil {
		t.Fatal(err)
	}
}

func TestClientCallError(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	go func() {
		d := startFakeDaemon(t, serverConn)
		if err := d.handshake(); err != nil {
			return
		}
		hello, err := d.readMessage()
		if err != nil {
			return
		}
		d.reply(hello, ":1.43")

		call, err := d.readMessage()
		if err != nil {
			return
		}
		errMsg := NewErrorMessage(call, "com.example.Error.NoSuchThing", "nope")
		errMsg.Sender = ":1.7"
		d.send(errMsg)
	}()

	cl, err := NewClient(clientConn)
	if err != nil {
		t.Fatal(err)
	}
	_, err = cl.Object("com.example", "/x").Call("com.example.I", "Missing")
	dbusErr, ok := err.(*Error)
	if !ok || dbusErr.Name != "com.example.Error.NoSuchThing" {
		t.Fatalf("err = %#v", err)
	}
}
