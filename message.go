package adbus

import (
	"encoding/binary"
)

// See the D-Bus specification for information about message types.
//	http://dbus.freedesktop.org/doc/dbus-specification.html
type MessageType uint8

const (
	TypeInvalid MessageType = iota
	TypeMethodCall
	TypeMethodReturn
	TypeError
	TypeSignal
)

var messageTypeString = map[MessageType]string{
	TypeInvalid:      "invalid",
	TypeMethodCall:   "method_call",
	TypeMethodReturn: "method_return",
	TypeError:        "error",
	TypeSignal:       "signal",
}

func (t MessageType) String() string { return messageTypeString[t] }

type MessageFlag uint8

const (
	FlagNoReplyExpected MessageFlag = 1 << iota
	FlagNoAutoStart
)

// Header field codes.
const (
	fieldPath        = 1
	fieldInterface   = 2
	fieldMember      = 3
	fieldErrorName   = 4
	fieldReplySerial = 5
	fieldDestination = 6
	fieldSender      = 7
	fieldSignature   = 8
)

const (
	littleEndianFlag = 'l'
	bigEndianFlag    = 'B'
	protocolVersion  = 1

	fixedHeaderSize    = 12
	extendedHeaderSize = 16
)

// Message holds the header fields and argument blob of one D-Bus
// message.  A message is either assembled (header setters plus the
// argument marshaller, finalised by Build) or parsed from wire bytes
// with SetData.
type Message struct {
	Type      MessageType
	Flags     MessageFlag
	Path      ObjectPath
	Interface string
	Member    string
	ErrorName string
	Dest      string
	Sender    string

	serial         uint32
	replySerial    uint32
	hasReplySerial bool

	signature string
	args      *Buffer

	// Parsed state: the whole wire image and where the body starts.
	wire      []byte
	bodyStart int
	bodyLen   int
}

// NewMethodCallMessage creates a method call addressed to the given
// destination, path, interface and member.
func NewMethodCallMessage(dest string, path ObjectPath, iface string, member string) *Message {
	return &Message{
		Type:      TypeMethodCall,
		Dest:      dest,
		Path:      path,
		Interface: iface,
		Member:    member,
	}
}

// NewMethodReturnMessage creates a reply scaffold for the given method
// call.
func NewMethodReturnMessage(call *Message) *Message {
	return &Message{
		Type:           TypeMethodReturn,
		Dest:           call.Sender,
		replySerial:    call.serial,
		hasReplySerial: true,
	}
}

// NewErrorMessage creates an error reply for the given message.
func NewErrorMessage(cause *Message, name string, message string) *Message {
	msg := &Message{
		Type:           TypeError,
		Dest:           cause.Sender,
		ErrorName:      name,
		replySerial:    cause.serial,
		hasReplySerial: true,
	}
	if message != "" {
		args := msg.Args()
		args.AppendSignature("s")
		args.AppendString(message)
	}
	return msg
}

// NewSignalMessage creates a signal emitted from the given path.
func NewSignalMessage(path ObjectPath, iface string, member string) *Message {
	return &Message{
		Type:      TypeSignal,
		Path:      path,
		Interface: iface,
		Member:    member,
	}
}

// Reset returns the message to its zero state, retaining allocated
// buffers.
func (p *Message) Reset() {
	args := p.args
	*p = Message{}
	if args != nil {
		args.reset()
		p.args = args
	}
}

func (p *Message) Serial() uint32     { return p.serial }
func (p *Message) SetSerial(s uint32) { p.serial = s }

// ReplySerial returns the reply-serial header field, if present.
func (p *Message) ReplySerial() (uint32, bool) {
	return p.replySerial, p.hasReplySerial
}

func (p *Message) SetReplySerial(s uint32) {
	p.replySerial = s
	p.hasReplySerial = true
}

// Signature returns the argument signature.
func (p *Message) Signature() string {
	if p.args != nil {
		return p.args.Signature()
	}
	return p.signature
}

// Args returns the argument marshaller bound to the message body.  The
// marshaller tracks the argument signature as values are appended.
func (p *Message) Args() *Buffer {
	if p.args == nil {
		p.args = NewBuffer()
	}
	return p.args
}

// AppendArgs appends the given values to the message body, deriving
// their signatures from the Go types.
func (p *Message) AppendArgs(args ...interface{}) error {
	return p.Args().Append(args...)
}

// Iterator returns an argument iterator positioned at the start of the
// body.
func (p *Message) Iterator() *Iterator {
	if p.wire != nil {
		it := NewIterator(p.wire, p.bodyStart, p.signature)
		it.end = p.bodyStart + p.bodyLen
		return it
	}
	if p.args != nil {
		return NewIterator(p.args.Bytes(), 0, p.args.Signature())
	}
	return NewIterator(nil, 0, "")
}

// GetArgs unpacks the message arguments into the given pointers.
func (p *Message) GetArgs(args ...interface{}) error {
	return p.Iterator().Decode(args...)
}

// AsError converts a parsed error message into an *Error.  The first
// string argument, if any, becomes the message text.
func (p *Message) AsError() error {
	e := &Error{Name: p.ErrorName}
	it := p.Iterator()
	var f Field
	if err := it.Next(&f); err == nil && f.Type == StringField {
		e.Message = f.String
	}
	return e
}

// checkRequiredFields enforces the per-type header requirements.
func (p *Message) checkRequiredFields() error {
	switch p.Type {
	case TypeMethodCall:
		if p.Path == "" || p.Member == "" {
			return ErrInvalidData
		}
	case TypeMethodReturn:
		if !p.hasReplySerial {
			return ErrInvalidData
		}
	case TypeError:
		if !p.hasReplySerial || p.ErrorName == "" {
			return ErrInvalidData
		}
	case TypeSignal:
		if p.Path == "" || p.Interface == "" || p.Member == "" {
			return ErrInvalidData
		}
	default:
		return ErrInvalidData
	}
	return nil
}

// Build finalises the on-wire form: the fixed header, the header field
// array, padding to 8, then the body.  Messages are emitted in little
// endian.
func (p *Message) Build() ([]byte, error) {
	if p.serial == 0 {
		return nil, ErrInvalidData
	}
	if err := p.checkRequiredFields(); err != nil {
		return nil, err
	}

	var body []byte
	var sig string
	if p.args != nil {
		if len(p.args.stack) > 0 || p.args.sigOffset != len(p.args.sig) {
			return nil, errScopeMismatch
		}
		body = p.args.Bytes()
		sig = p.args.Signature()
	}

	hdr := NewBuffer()
	hdr.AppendSignature("yyyyuua(yv)")
	hdr.AppendUint8(littleEndianFlag)
	hdr.AppendUint8(byte(p.Type))
	hdr.AppendUint8(byte(p.Flags))
	hdr.AppendUint8(protocolVersion)
	hdr.AppendUint32(uint32(len(body)))
	hdr.AppendUint32(p.serial)

	if err := hdr.BeginArray(); err != nil {
		return nil, err
	}
	appendStringField := func(code byte, valueSig Signature, value string) error {
		hdr.BeginStruct()
		hdr.AppendUint8(code)
		hdr.BeginVariant(valueSig)
		var err error
		switch valueSig {
		case "o":
			err = hdr.AppendObjectPath(ObjectPath(value))
		case "g":
			err = hdr.AppendSignatureValue(Signature(value))
		default:
			err = hdr.AppendString(value)
		}
		if err != nil {
			return err
		}
		hdr.EndVariant()
		hdr.EndStruct()
		return nil
	}
	fieldErr := func() error {
		if p.Path != "" {
			if err := appendStringField(fieldPath, "o", string(p.Path)); err != nil {
				return err
			}
		}
		if p.Interface != "" {
			if !isValidInterfaceName(p.Interface) {
				return ErrInvalidData
			}
			if err := appendStringField(fieldInterface, "s", p.Interface); err != nil {
				return err
			}
		}
		if p.Member != "" {
			if !isValidMemberName(p.Member) {
				return ErrInvalidData
			}
			if err := appendStringField(fieldMember, "s", p.Member); err != nil {
				return err
			}
		}
		if p.ErrorName != "" {
			if err := appendStringField(fieldErrorName, "s", p.ErrorName); err != nil {
				return err
			}
		}
		if p.hasReplySerial {
			hdr.BeginStruct()
			hdr.AppendUint8(fieldReplySerial)
			hdr.BeginVariant("u")
			hdr.AppendUint32(p.replySerial)
			hdr.EndVariant()
			hdr.EndStruct()
		}
		if p.Dest != "" {
			if err := appendStringField(fieldDestination, "s", p.Dest); err != nil {
				return err
			}
		}
		if p.Sender != "" {
			if err := appendStringField(fieldSender, "s", p.Sender); err != nil {
				return err
			}
		}
		if sig != "" {
			if err := appendStringField(fieldSignature, "g", sig); err != nil {
				return err
			}
		}
		return nil
	}()
	if fieldErr != nil {
		return nil, fieldErr
	}
	if err := hdr.EndArray(); err != nil {
		return nil, err
	}

	hdr.align(8)
	out := hdr.Bytes()
	if len(out)+len(body) > MaximumMessageLength {
		return nil, errMessageTooLong
	}
	out = append(out, body...)
	return out, nil
}

// NextMessageSize peeks at a message header and returns the total
// on-wire size of the message, or 0 if data does not yet hold enough
// bytes to determine it.
func NextMessageSize(data []byte) int {
	if len(data) < extendedHeaderSize {
		return 0
	}
	var order binary.ByteOrder
	switch data[0] {
	case littleEndianFlag:
		order = binary.LittleEndian
	case bigEndianFlag:
		order = binary.BigEndian
	default:
		return extendedHeaderSize // invalid; SetData reports it
	}
	bodyLen := int(order.Uint32(data[4:]))
	fieldsLen := int(order.Uint32(data[12:]))
	return align8(extendedHeaderSize+fieldsLen) + bodyLen
}

func align8(n int) int { return (n + 7) &^ 7 }

// SetData parses one complete on-wire message.  Big-endian messages
// are byte-swapped in place so consumers always see little endian.
func (p *Message) SetData(data []byte) error {
	p.Reset()

	if len(data) < extendedHeaderSize {
		return ErrInvalidData
	}

	var order binary.ByteOrder
	switch data[0] {
	case littleEndianFlag:
		order = binary.LittleEndian
	case bigEndianFlag:
		order = binary.BigEndian
	default:
		return ErrInvalidData
	}
	if data[3] != protocolVersion {
		return ErrInvalidVersion
	}

	p.Type = MessageType(data[1])
	if p.Type == TypeInvalid || p.Type > TypeSignal {
		return ErrInvalidData
	}
	p.Flags = MessageFlag(data[2])

	bodyLen := order.Uint32(data[4:])
	p.serial = order.Uint32(data[8:])
	fieldsLen := order.Uint32(data[12:])
	if p.serial == 0 {
		return ErrInvalidData
	}
	if bodyLen > MaximumMessageLength || fieldsLen > MaximumArrayLength {
		return ErrInvalidData
	}

	headerSize := align8(extendedHeaderSize + int(fieldsLen))
	total := headerSize + int(bodyLen)
	if total > MaximumMessageLength || len(data) != total {
		return ErrInvalidData
	}

	swap := data[0] == bigEndianFlag
	if swap {
		// Rewrite the fixed header values we already consumed.  The
		// header field array length at offset 12 is left to the
		// iterator in parseHeaderFields, which reads it in wire order
		// and rewrites it as it goes.
		binary.LittleEndian.PutUint32(data[4:], bodyLen)
		binary.LittleEndian.PutUint32(data[8:], p.serial)
		data[0] = littleEndianFlag
	}

	if err := p.parseHeaderFields(data, headerSize, order, swap); err != nil {
		return err
	}
	if err := p.checkRequiredFields(); err != nil {
		return err
	}
	if bodyLen > 0 && p.signature == "" {
		return ErrInvalidData
	}

	p.wire = data
	p.bodyStart = headerSize
	p.bodyLen = int(bodyLen)

	if swap && bodyLen > 0 {
		it := NewIterator(data, headerSize, p.signature)
		it.end = total
		it.order = order
		it.swap = true
		var f Field
		for {
			if err := it.Next(&f); err != nil {
				return err
			}
			if f.Type == EndField {
				break
			}
		}
	}
	return nil
}

func (p *Message) parseHeaderFields(data []byte, headerSize int, order binary.ByteOrder, swap bool) error {
	it := NewIterator(data, fixedHeaderSize, "a(yv)")
	it.end = headerSize
	it.order = order
	it.swap = swap

	var f Field
	if err := it.Next(&f); err != nil {
		return err
	}
	if f.Type != ArrayBeginField {
		return ErrInvalidData
	}
	array := f.Scope

	takeString := func(want FieldType) (string, error) {
		if err := it.Next(&f); err != nil {
			return "", err
		}
		if f.Type != want {
			return "", ErrInvalidData
		}
		return f.String, nil
	}

	for !it.IsScopeAtEnd(array) {
		if err := it.Next(&f); err != nil {
			return err
		}
		if f.Type != StructBeginField {
			return ErrInvalidData
		}
		if err := it.Next(&f); err != nil {
			return err
		}
		if f.Type != UInt8Field {
			return ErrInvalidData
		}
		code := f.U8
		if err := it.Next(&f); err != nil {
			return err
		}
		if f.Type != VariantBeginField {
			return ErrInvalidData
		}
		variant := f.Scope

		switch code {
		case fieldPath:
			s, err := takeString(ObjectPathField)
			if err != nil {
				return err
			}
			p.Path = ObjectPath(s)
		case fieldInterface:
			s, err := takeString(StringField)
			if err != nil {
				return err
			}
			if !isValidInterfaceName(s) {
				return ErrInvalidData
			}
			p.Interface = s
		case fieldMember:
			s, err := takeString(StringField)
			if err != nil {
				return err
			}
			if !isValidMemberName(s) {
				return ErrInvalidData
			}
			p.Member = s
		case fieldErrorName:
			s, err := takeString(StringField)
			if err != nil {
				return err
			}
			p.ErrorName = s
		case fieldReplySerial:
			if err := it.Next(&f); err != nil {
				return err
			}
			if f.Type != UInt32Field {
				return ErrInvalidData
			}
			p.replySerial = f.U32
			p.hasReplySerial = true
		case fieldDestination:
			s, err := takeString(StringField)
			if err != nil {
				return err
			}
			if !isValidBusName(s) {
				return ErrInvalidData
			}
			p.Dest = s
		case fieldSender:
			s, err := takeString(StringField)
			if err != nil {
				return err
			}
			if !isValidBusName(s) {
				return ErrInvalidData
			}
			p.Sender = s
		case fieldSignature:
			s, err := takeString(SignatureField)
			if err != nil {
				return err
			}
			p.signature = s
		default:
			// Unknown header fields are skipped.
			for !it.IsScopeAtEnd(variant) {
				if err := it.Next(&f); err != nil {
					return err
				}
			}
		}

		if err := it.Next(&f); err != nil {
			return err
		}
		if f.Type != VariantEndField {
			return ErrInvalidData
		}
		if err := it.Next(&f); err != nil {
			return err
		}
		if f.Type != StructEndField {
			return ErrInvalidData
		}
	}
	if err := it.Next(&f); err != nil {
		return err
	}
	if f.Type != ArrayEndField {
		return ErrInvalidData
	}
	return nil
}
