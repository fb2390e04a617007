package adbus

// ServiceCode is the result of a RequestName or ReleaseName daemon
// call.
type ServiceCode uint32

const (
	ServicePrimaryOwner  ServiceCode = 1
	ServiceInQueue       ServiceCode = 2
	ServiceExists        ServiceCode = 3
	ServiceAlreadyOwner  ServiceCode = 4
	ServiceReleased      ServiceCode = 1
	ServiceNonExistent   ServiceCode = 2
	ServiceNotOwner      ServiceCode = 3
)

// RequestName flags.
const (
	NameFlagAllowReplacement uint32 = 1 << iota
	NameFlagReplaceExisting
	NameFlagDoNotQueue
)

// ServiceFunc receives the result code of a name request or release.
type ServiceFunc func(c *Connection, code ServiceCode, user interface{})

// newBusCall starts a method call to the bus daemon.
func (c *Connection) newBusCall(member string) *Message {
	return NewMethodCallMessage(BusDaemonName, BusDaemonPath, BusDaemonIface, member)
}

// ConnectToBus sends the Hello call and registers a one-shot reply
// handler that stores the returned unique name and marks the
// connection connected.  callback, if non-nil, runs once connected.
func (c *Connection) ConnectToBus(callback func(*Connection)) error {
	msg := c.newBusCall("Hello")
	msg.SetSerial(c.NextSerial())

	c.AddMatch(&Match{
		Type:               TypeMethodReturn,
		ReplySerial:        msg.Serial(),
		CheckReplySerial:   true,
		RemoveOnFirstMatch: true,
		User1:              callback,
		Callback: func(d *CallDetails) error {
			unique, err := d.Args.CheckString()
			if err != nil {
				return err
			}
			d.Conn.uniqueName = unique
			d.Conn.connected = true
			if cb, ok := d.User1.(func(*Connection)); ok && cb != nil {
				cb(d.Conn)
			}
			return nil
		},
	})

	return c.Send(msg)
}

// serviceResult adapts a daemon reply carrying a single u32 result
// code.
func serviceResult(cb ServiceFunc, user interface{}) MethodFunc {
	return func(d *CallDetails) error {
		code, err := d.Args.CheckUint32()
		if err != nil {
			return err
		}
		if cb != nil {
			cb(d.Conn, ServiceCode(code), user)
		}
		return nil
	}
}

// RequestName asks the bus daemon for ownership of a well known name.
// The callback receives the daemon's result code.
func (c *Connection) RequestName(name string, flags uint32, cb ServiceFunc, user interface{}) error {
	if !isValidBusName(name) {
		return ErrInvalidData
	}
	msg := c.newBusCall("RequestName")
	msg.SetSerial(c.NextSerial())
	args := msg.Args()
	args.AppendSignature("su")
	args.AppendString(name)
	args.AppendUint32(flags)

	if cb != nil {
		c.AddMatch(&Match{
			Type:               TypeMethodReturn,
			ReplySerial:        msg.Serial(),
			CheckReplySerial:   true,
			RemoveOnFirstMatch: true,
			Callback:           serviceResult(cb, user),
		})
	}
	return c.Send(msg)
}

// ReleaseName gives a requested name back to the bus daemon.
func (c *Connection) ReleaseName(name string, cb ServiceFunc, user interface{}) error {
	if !isValidBusName(name) {
		return ErrInvalidData
	}
	msg := c.newBusCall("ReleaseName")
	msg.SetSerial(c.NextSerial())
	args := msg.Args()
	args.AppendSignature("s")
	args.AppendString(name)

	if cb != nil {
		c.AddMatch(&Match{
			Type:               TypeMethodReturn,
			ReplySerial:        msg.Serial(),
			CheckReplySerial:   true,
			RemoveOnFirstMatch: true,
			Callback:           serviceResult(cb, user),
		})
	}
	return c.Send(msg)
}

// AddReply registers the reply handlers for a pending call to a remote
// service: a one-shot match on (remote, reply-serial) with separate
// success and error callbacks.
func (c *Connection) AddReply(remote string, serial uint32, onReply MethodFunc, onError MethodFunc, user1, user2 interface{}) uint32 {
	return c.AddMatch(&Match{
		Sender:             remote,
		ReplySerial:        serial,
		CheckReplySerial:   true,
		RemoveOnFirstMatch: true,
		Callback:           onReply,
		ErrorCallback:      onError,
		User1:              user1,
		User2:              user2,
	})
}
