package adbus

import (
	"math"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	BusDaemonName  = "org.freedesktop.DBus"
	BusDaemonPath  = ObjectPath("/org/freedesktop/DBus")
	BusDaemonIface = "org.freedesktop.DBus"
)

// SendFunc emits one outbound message.  The connection invokes it
// synchronously from Send.
type SendFunc func(msg *Message) error

// Connection is the message dispatcher: it owns the registered object
// paths, the match registrations, the serial counters and the send
// callback.  All state mutation is expected to happen on a single
// goroutine; handlers run on the dispatching goroutine and may invoke
// any connection operation reentrantly.
type Connection struct {
	send SendFunc

	nextSerial  uint32
	nextMatchID uint32

	uniqueName string
	connected  bool

	objects       map[ObjectPath]*Object
	registrations []*Match
	services      map[string]*serviceName

	introspectable *Interface
	properties     *Interface

	parser StreamParser
}

// NewConnection creates a connection with the built-in Introspectable
// and Properties interfaces installed.
func NewConnection() *Connection {
	c := &Connection{
		nextSerial:  1,
		nextMatchID: 1,
		objects:     make(map[ObjectPath]*Object),
		services:    make(map[string]*serviceName),
	}

	c.introspectable, _ = NewInterface("org.freedesktop.DBus.Introspectable")
	m, _ := c.introspectable.AddMethod("Introspect")
	m.AddArgument(OutArgument, "xml_data", "s")
	m.SetMethodCallback(introspectCallback, nil)

	c.properties, _ = NewInterface("org.freedesktop.DBus.Properties")
	m, _ = c.properties.AddMethod("Get")
	m.AddArgument(InArgument, "interface_name", "s")
	m.AddArgument(InArgument, "property_name", "s")
	m.AddArgument(OutArgument, "value", "v")
	m.SetMethodCallback(getPropertyCallback, nil)

	m, _ = c.properties.AddMethod("GetAll")
	m.AddArgument(InArgument, "interface_name", "s")
	m.AddArgument(OutArgument, "props", "a{sv}")
	m.SetMethodCallback(getAllPropertiesCallback, nil)

	m, _ = c.properties.AddMethod("Set")
	m.AddArgument(InArgument, "interface_name", "s")
	m.AddArgument(InArgument, "property_name", "s")
	m.AddArgument(InArgument, "value", "v")
	m.SetMethodCallback(setPropertyCallback, nil)

	return c
}

// SetSendCallback installs the callback used to emit outbound
// messages.
func (c *Connection) SetSendCallback(send SendFunc) {
	c.send = send
}

// NextSerial returns the next message serial, wrapping without ever
// producing zero.
func (c *Connection) NextSerial() uint32 {
	if c.nextSerial == math.MaxUint32 {
		c.nextSerial = 1
	}
	s := c.nextSerial
	c.nextSerial++
	return s
}

func (c *Connection) nextMatchId() uint32 {
	if c.nextMatchID == math.MaxUint32 {
		c.nextMatchID = 1
	}
	id := c.nextMatchID
	c.nextMatchID++
	return id
}

// UniqueName returns the bus assigned name once the Hello exchange has
// completed.
func (c *Connection) UniqueName() string { return c.uniqueName }

func (c *Connection) Connected() bool { return c.connected }

// Send assigns a serial if the message has none and hands it to the
// send callback.
func (c *Connection) Send(msg *Message) error {
	if c.send == nil {
		return errors.New("no send callback installed")
	}
	if msg.Serial() == 0 {
		msg.SetSerial(c.NextSerial())
	}
	return c.send(msg)
}

// Parse feeds received bytes to the stream framer, dispatching every
// complete message.
func (c *Connection) Parse(data []byte) error {
	msg := new(Message)
	for {
		rest, ok, err := c.parser.Next(msg, data)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if err := c.Dispatch(msg); err != nil {
			return err
		}
		data = rest
		msg = new(Message)
	}
}

// CallDetails is the record handed to method, property and match
// callbacks.
type CallDetails struct {
	Conn *Connection
	Msg  *Message

	// Args iterates the message arguments, positioned past the
	// header.
	Args *Iterator

	// Reply is the pre-built reply scaffold for method calls; nil
	// when the caller set FlagNoReplyExpected or while scanning
	// matches.  Setting ManualReply suppresses the automatic send.
	Reply       *Message
	ManualReply bool

	// Binding is the per-binding data given to Object.Bind; User1 and
	// User2 are the per-member or per-match opaque values.
	Binding interface{}
	User1   interface{}
	User2   interface{}

	// PropertyMarshaller is set for property getters: a marshaller
	// already scoped inside a variant of the property type.
	PropertyMarshaller *Buffer

	// PropertyIterator is set for property setters: an iterator
	// positioned at the variant's inner value.
	PropertyIterator *Iterator
}

// Dispatch routes one inbound message: the bound method first, then
// the match list in insertion order.
func (c *Connection) Dispatch(msg *Message) error {
	d := &CallDetails{
		Conn: c,
		Msg:  msg,
		Args: msg.Iterator(),
	}

	if msg.Type == TypeMethodCall {
		if msg.Flags&FlagNoReplyExpected == 0 {
			d.Reply = NewMethodReturnMessage(msg)
		}
		c.dispatchMethodCall(d)
		if d.Reply != nil && !d.ManualReply {
			if err := c.Send(d.Reply); err != nil {
				return err
			}
		}
	}

	return c.dispatchMatches(msg)
}

// dispatchMethodCall resolves the object, interface and member, then
// invokes the method callback.  Failures are serialised into the reply
// scaffold using the stable error names.
func (c *Connection) dispatchMethodCall(d *CallDetails) {
	msg := d.Msg

	o, ok := c.objects[msg.Path]
	if !ok {
		d.setupError(errNameObjectNotFound,
			"The requested object path could not be found.")
		return
	}

	var member *Member
	if msg.Interface != "" {
		b := o.boundInterface(msg.Interface)
		if b == nil {
			d.setupError(errNameInterfaceNotFound,
				"The requested interface could not be found.")
			return
		}
		d.Binding = b.data
		member = b.iface.member(MethodMember, msg.Member)
	} else {
		var b *boundInterface
		member, b = o.boundMember(MethodMember, msg.Member)
		if b != nil {
			d.Binding = b.data
		}
	}

	if member == nil || member.methodCallback == nil {
		d.setupError(errNameMethodNotFound,
			"The requested method could not be found.")
		return
	}

	d.User1 = member.methodData
	if err := member.methodCallback(d); err != nil {
		d.setupErrorFrom(err)
	}
}

// setupError rewrites the reply scaffold into an error return.  With
// no reply expected the error is dropped.
func (d *CallDetails) setupError(name string, message string) {
	if d.Reply == nil {
		return
	}
	*d.Reply = *NewErrorMessage(d.Msg, name, message)
}

func (d *CallDetails) setupErrorFrom(err error) {
	switch e := err.(type) {
	case *Error:
		d.setupError(e.Name, e.Message)
	default:
		if errors.Is(err, ErrArgumentMismatch) {
			d.setupError(errNameInvalidArgument,
				"The method arguments do not match the expected types.")
		} else {
			d.setupError(errNameFailed, err.Error())
		}
	}
}

// dispatchMatches scans the registrations in insertion order.  A
// message may fire any number of matches; one-shot entries are removed
// from the list just before their callback runs, so they fire at most
// once even if the callback dispatches further messages.
func (c *Connection) dispatchMatches(msg *Message) error {
	for i := 0; i < len(c.registrations); {
		r := c.registrations[i]
		if !c.matches(r, msg) {
			i++
			continue
		}

		cb := r.Callback
		if msg.Type == TypeError && r.ErrorCallback != nil {
			cb = r.ErrorCallback
		}
		if r.RemoveOnFirstMatch {
			c.removeMatchAt(i)
		} else {
			i++
		}
		if cb != nil {
			d := &CallDetails{
				Conn:  c,
				Msg:   msg,
				Args:  msg.Iterator(),
				User1: r.User1,
				User2: r.User2,
			}
			if err := cb(d); err != nil {
				log.WithError(err).WithField("match", r.Id).
					Error("match callback failed")
			}
		}
	}
	return nil
}
