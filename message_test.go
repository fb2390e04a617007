package adbus

import (
	. "gopkg.in/check.v1"
)

var testMessage = []byte{
	'l', // Byte order
	1,   // Message type
	0,   // Flags
	1,   // Protocol
	8, 0, 0, 0, // Body length
	1, 0, 0, 0, // Serial
	127, 0, 0, 0, // Header fields array length
	1, 1, 'o', 0, // Path, type OBJECT_PATH
	21, 0, 0, 0, '/', 'o', 'r', 'g', '/', 'f', 'r', 'e', 'e', 'd', 'e', 's', 'k', 't', 'o', 'p', '/', 'D', 'B', 'u', 's', 0,
	0, 0,
	2, 1, 's', 0, // Interface, type STRING
	20, 0, 0, 0, 'o', 'r', 'g', '.', 'f', 'r', 'e', 'e', 'd', 'e', 's', 'k', 't', 'o', 'p', '.', 'D', 'B', 'u', 's', 0,
	0, 0, 0,
	3, 1, 's', 0, // Member, type STRING
	12, 0, 0, 0, 'N', 'a', 'm', 'e', 'H', 'a', 's', 'O', 'w', 'n', 'e', 'r', 0,
	0, 0, 0,
	6, 1, 's', 0, // Destination, type STRING
	20, 0, 0, 0, 'o', 'r', 'g', '.', 'f', 'r', 'e', 'e', 'd', 'e', 's', 'k', 't', 'o', 'p', '.', 'D', 'B', 'u', 's', 0,
	0, 0, 0,
	8, 1, 'g', 0, // Signature, type SIGNATURE
	1, 's', 0,
	0,
	// Message body
	3, 0, 0, 0,
	'x', 'y', 'z', 0}

func (s *S) TestUnmarshalMessage(c *C) {
	msg := new(Message)
	err := msg.SetData(append([]byte(nil), testMessage...))
	c.Assert(err, IsNil)
	c.Check(msg.Type, Equals, TypeMethodCall)
	c.Check(msg.Path, Equals, ObjectPath("/org/freedesktop/DBus"))
	c.Check(msg.Dest, Equals, "org.freedesktop.DBus")
	c.Check(msg.Interface, Equals, "org.freedesktop.DBus")
	c.Check(msg.Member, Equals, "NameHasOwner")
	c.Check(msg.Serial(), Equals, uint32(1))
	c.Check(msg.Signature(), Equals, "s")

	var name string
	c.Assert(msg.GetArgs(&name), IsNil)
	c.Check(name, Equals, "xyz")
}

func (s *S) TestMarshalMessage(c *C) {
	msg := NewMethodCallMessage("org.freedesktop.DBus",
		"/org/freedesktop/DBus", "org.freedesktop.DBus", "NameHasOwner")
	msg.SetSerial(1)
	c.Assert(msg.AppendArgs("xyz"), IsNil)

	buff, err := msg.Build()
	c.Assert(err, IsNil)
	c.Check(buff, DeepEquals, testMessage)
}

func (s *S) TestNextMessageSize(c *C) {
	c.Check(NextMessageSize(testMessage), Equals, len(testMessage))
	c.Check(NextMessageSize(testMessage[:15]), Equals, 0)
	c.Check(NextMessageSize(nil), Equals, 0)
}

// A method_call carrying a (yu) struct argument.
var structCallMessage = []byte{
	'l', 1, 0, 1,
	8, 0, 0, 0, // Body length
	1, 0, 0, 0, // Serial
	58, 0, 0, 0, // Header fields array length
	1, 1, 'o', 0, // Path = /
	1, 0, 0, 0, '/', 0,
	0, 0, 0, 0, 0, 0,
	2, 1, 's', 0, // Interface = x.Y
	3, 0, 0, 0, 'x', '.', 'Y', 0,
	0, 0, 0, 0,
	3, 1, 's', 0, // Member = M
	1, 0, 0, 0, 'M', 0,
	0, 0, 0, 0, 0, 0,
	8, 1, 'g', 0, // Signature = (yu)
	4, '(', 'y', 'u', ')', 0,
	0, 0, 0, 0, 0, 0,
	// Body: struct of u8 + u32
	0x11, 0, 0, 0,
	0x22, 0x33, 0x44, 0x55,
}

func (s *S) TestUnmarshalStructCall(c *C) {
	msg := new(Message)
	c.Assert(msg.SetData(append([]byte(nil), structCallMessage...)), IsNil)
	c.Check(msg.Type, Equals, TypeMethodCall)
	c.Check(msg.Path, Equals, ObjectPath("/"))
	c.Check(msg.Interface, Equals, "x.Y")
	c.Check(msg.Member, Equals, "M")
	c.Check(msg.Signature(), Equals, "(yu)")

	it := msg.Iterator()
	var f Field
	c.Assert(it.Next(&f), IsNil)
	c.Check(f.Type, Equals, StructBeginField)
	c.Assert(it.Next(&f), IsNil)
	c.Check(f.Type, Equals, UInt8Field)
	c.Check(f.U8, Equals, byte(0x11))
	c.Assert(it.Next(&f), IsNil)
	c.Check(f.Type, Equals, UInt32Field)
	c.Check(f.U32, Equals, uint32(0x55443322))
	c.Assert(it.Next(&f), IsNil)
	c.Check(f.Type, Equals, StructEndField)
	c.Assert(it.Next(&f), IsNil)
	c.Check(f.Type, Equals, EndField)
}

// The same call emitted by a big endian peer.
var bigEndianCallMessage = []byte{
	'B', 1, 0, 1,
	0, 0, 0, 4, // Body length
	0, 0, 0, 1, // Serial
	0, 0, 0, 39, // Header fields array length
	1, 1, 'o', 0, // Path = /
	0, 0, 0, 1, '/', 0,
	0, 0, 0, 0, 0, 0,
	3, 1, 's', 0, // Member = M
	0, 0, 0, 1, 'M', 0,
	0, 0, 0, 0, 0, 0,
	8, 1, 'g', 0, // Signature = u
	1, 'u', 0,
	0, // Pad to 8
	// Body
	0, 0, 0, 42,
}

func (s *S) TestUnmarshalBigEndian(c *C) {
	msg := new(Message)
	c.Assert(msg.SetData(append([]byte(nil), bigEndianCallMessage...)), IsNil)
	c.Check(msg.Type, Equals, TypeMethodCall)
	c.Check(msg.Member, Equals, "M")
	c.Check(msg.Serial(), Equals, uint32(1))

	var v uint32
	c.Assert(msg.GetArgs(&v), IsNil)
	c.Check(v, Equals, uint32(42))
}

func (s *S) TestEndiannessAgreement(c *C) {
	le := new(Message)
	c.Assert(le.SetData(append([]byte(nil), structCallMessage...)), IsNil)

	// Rebuild the parsed little endian message and parse it again; the
	// values observed must be unchanged.
	rebuilt := NewMethodCallMessage("", le.Path, le.Interface, le.Member)
	rebuilt.SetSerial(le.Serial())
	args := rebuilt.Args()
	c.Assert(args.AppendSignature("(yu)"), IsNil)
	args.BeginStruct()
	args.AppendUint8(0x11)
	args.AppendUint32(0x55443322)
	args.EndStruct()
	data, err := rebuilt.Build()
	c.Assert(err, IsNil)

	again := new(Message)
	c.Assert(again.SetData(data), IsNil)
	c.Check(again.Signature(), Equals, "(yu)")

	type yu struct {
		Y byte
		U uint32
	}
	var before, after yu
	c.Assert(le.GetArgs(&before), IsNil)
	c.Assert(again.GetArgs(&after), IsNil)
	c.Check(after, Equals, before)
	c.Check(after, Equals, yu{0x11, 0x55443322})
}

func (s *S) TestInvalidVersion(c *C) {
	data := append([]byte(nil), testMessage...)
	data[3] = 2
	c.Check(new(Message).SetData(data), Equals, ErrInvalidVersion)
}

func (s *S) TestInvalidEndianness(c *C) {
	data := append([]byte(nil), testMessage...)
	data[0] = 'x'
	c.Check(new(Message).SetData(data), Equals, ErrInvalidData)
}

func (s *S) TestInvalidType(c *C) {
	data := append([]byte(nil), testMessage...)
	data[1] = 0
	c.Check(new(Message).SetData(data), Equals, ErrInvalidData)
}

func (s *S) TestTruncatedMessage(c *C) {
	data := append([]byte(nil), testMessage[:len(testMessage)-1]...)
	c.Check(new(Message).SetData(data), Equals, ErrInvalidData)
}

func (s *S) TestRequiredFields(c *C) {
	// A method return without a reply serial must not build.
	msg := &Message{Type: TypeMethodReturn}
	msg.SetSerial(1)
	_, err := msg.Build()
	c.Check(err, Equals, ErrInvalidData)

	// An error without an error name must not build.
	msg = &Message{Type: TypeError}
	msg.SetSerial(1)
	msg.SetReplySerial(1)
	_, err = msg.Build()
	c.Check(err, Equals, ErrInvalidData)

	// A signal requires path, interface and member.
	msg = &Message{Type: TypeSignal, Path: "/p", Member: "M"}
	msg.SetSerial(1)
	_, err = msg.Build()
	c.Check(err, Equals, ErrInvalidData)
}

func (s *S) TestErrorRoundTrip(c *C) {
	call := NewMethodCallMessage("com.example", "/p", "a.b", "M")
	call.SetSerial(9)
	call.Sender = ":1.4"

	errMsg := NewErrorMessage(call, "com.example.Error.Boom", "it broke")
	errMsg.SetSerial(10)
	data, err := errMsg.Build()
	c.Assert(err, IsNil)

	parsed := new(Message)
	c.Assert(parsed.SetData(data), IsNil)
	c.Check(parsed.Type, Equals, TypeError)
	rs, ok := parsed.ReplySerial()
	c.Check(ok, Equals, true)
	c.Check(rs, Equals, uint32(9))
	dbusErr := parsed.AsError().(*Error)
	c.Check(dbusErr.Name, Equals, "com.example.Error.Boom")
	c.Check(dbusErr.Message, Equals, "it broke")
}
