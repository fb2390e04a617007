package adbus

import (
	"encoding/binary"
	"errors"
	"math"
)

var (
	errSignatureEnded = errors.New("adbus: append past the end of the signature")
	errSignatureType  = errors.New("adbus: append does not match the signature")
	errArrayTooLong   = errors.New("adbus: array data exceeds the maximum array length")
	errMessageTooLong = errors.New("adbus: message exceeds the maximum message length")
	errScopeMismatch  = errors.New("adbus: mismatched container begin/end")
)

type scopeKind int

const (
	arrayScope scopeKind = iota
	structScope
	dictEntryScope
	variantScope
)

type bufferScope struct {
	kind scopeKind

	// Arrays: where the u32 length prefix lives, the offset of the
	// first element after padding, and the element type bounds in the
	// signature.
	lenOffset  int
	dataOffset int
	sigStart   int
	sigEnd     int

	// Variants: the outer signature cursor to restore on end.
	savedSig       string
	savedSigOffset int
}

// Buffer marshals typed values into a growable byte slice following
// the D-Bus alignment rules.  The signature being produced is declared
// up front with AppendSignature; each typed append must match the next
// code in the signature.
type Buffer struct {
	order     binary.ByteOrder
	data      []byte
	sig       string
	sigOffset int
	stack     []bufferScope
}

// NewBuffer returns an empty little-endian marshalling buffer.
func NewBuffer() *Buffer {
	return &Buffer{order: binary.LittleEndian}
}

// NewBufferOrder returns an empty buffer writing in the given byte
// order.
func NewBufferOrder(order binary.ByteOrder) *Buffer {
	return &Buffer{order: order}
}

func (b *Buffer) Bytes() []byte      { return b.data }
func (b *Buffer) Signature() string  { return b.sig }
func (b *Buffer) Order() binary.ByteOrder { return b.order }

func (b *Buffer) reset() {
	b.data = b.data[:0]
	b.sig = ""
	b.sigOffset = 0
	b.stack = b.stack[:0]
}

// AppendSignature extends the signature the buffer is marshalling.
// It may only be called outside of any open container.
func (b *Buffer) AppendSignature(sig string) error {
	if len(b.stack) > 0 {
		return errScopeMismatch
	}
	if !validSignature(sig) || len(b.sig)+len(sig) > maximumSignatureLength {
		return errInvalidSignature
	}
	b.sig += sig
	return nil
}

func (b *Buffer) align(alignment int) {
	for len(b.data)%alignment != 0 {
		b.data = append(b.data, 0)
	}
}

// nextCode consumes the next signature code, checking it against want.
// Inside an array the element signature rewinds once per element.
func (b *Buffer) nextCode(want byte) error {
	if len(b.stack) > 0 {
		if s := &b.stack[len(b.stack)-1]; s.kind == arrayScope && b.sigOffset == s.sigEnd {
			b.sigOffset = s.sigStart
		}
	}
	if b.sigOffset >= len(b.sig) {
		return errSignatureEnded
	}
	if b.sig[b.sigOffset] != want {
		return errSignatureType
	}
	b.sigOffset++
	return nil
}

func (b *Buffer) checkLength(add int) error {
	if len(b.data)+add > MaximumMessageLength {
		return errMessageTooLong
	}
	return nil
}

func (b *Buffer) appendFixed(code byte, size int, put func([]byte)) error {
	if err := b.nextCode(code); err != nil {
		return err
	}
	if err := b.checkLength(size + 8); err != nil {
		return err
	}
	b.align(size)
	n := len(b.data)
	b.data = append(b.data, make([]byte, size)...)
	put(b.data[n:])
	return nil
}

func (b *Buffer) AppendUint8(v byte) error {
	if err := b.nextCode('y'); err != nil {
		return err
	}
	if err := b.checkLength(1); err != nil {
		return err
	}
	b.data = append(b.data, v)
	return nil
}

func (b *Buffer) AppendBool(v bool) error {
	var u uint32
	if v {
		u = 1
	}
	return b.appendFixed('b', 4, func(p []byte) { b.order.PutUint32(p, u) })
}

func (b *Buffer) AppendInt16(v int16) error {
	return b.appendFixed('n', 2, func(p []byte) { b.order.PutUint16(p, uint16(v)) })
}

func (b *Buffer) AppendUint16(v uint16) error {
	return b.appendFixed('q', 2, func(p []byte) { b.order.PutUint16(p, v) })
}

func (b *Buffer) AppendInt32(v int32) error {
	return b.appendFixed('i', 4, func(p []byte) { b.order.PutUint32(p, uint32(v)) })
}

func (b *Buffer) AppendUint32(v uint32) error {
	return b.appendFixed('u', 4, func(p []byte) { b.order.PutUint32(p, v) })
}

func (b *Buffer) AppendInt64(v int64) error {
	return b.appendFixed('x', 8, func(p []byte) { b.order.PutUint64(p, uint64(v)) })
}

func (b *Buffer) AppendUint64(v uint64) error {
	return b.appendFixed('t', 8, func(p []byte) { b.order.PutUint64(p, v) })
}

func (b *Buffer) AppendDouble(v float64) error {
	return b.appendFixed('d', 8, func(p []byte) { b.order.PutUint64(p, math.Float64bits(v)) })
}

func (b *Buffer) appendStringData(s string) error {
	if err := b.checkLength(len(s) + 16); err != nil {
		return err
	}
	b.align(4)
	var lenBuf [4]byte
	b.order.PutUint32(lenBuf[:], uint32(len(s)))
	b.data = append(b.data, lenBuf[:]...)
	b.data = append(b.data, s...)
	b.data = append(b.data, 0)
	return nil
}

func (b *Buffer) AppendString(s string) error {
	if err := b.nextCode('s'); err != nil {
		return err
	}
	return b.appendStringData(s)
}

func (b *Buffer) AppendObjectPath(p ObjectPath) error {
	if err := b.nextCode('o'); err != nil {
		return err
	}
	if !isValidObjectPath(string(p)) {
		return ErrInvalidData
	}
	return b.appendStringData(string(p))
}

// AppendSignatureValue appends a 'g' typed value.
func (b *Buffer) AppendSignatureValue(sig Signature) error {
	if err := b.nextCode('g'); err != nil {
		return err
	}
	if !validSignature(string(sig)) {
		return errInvalidSignature
	}
	return b.appendSignatureData(string(sig))
}

func (b *Buffer) appendSignatureData(sig string) error {
	if err := b.checkLength(len(sig) + 2); err != nil {
		return err
	}
	b.data = append(b.data, byte(len(sig)))
	b.data = append(b.data, sig...)
	b.data = append(b.data, 0)
	return nil
}

// BeginArray emits the u32 length placeholder and padding to the
// element alignment.  The length is fixed up by EndArray.
func (b *Buffer) BeginArray() error {
	if err := b.nextCode('a'); err != nil {
		return err
	}
	sigStart := b.sigOffset
	sigEnd, err := sigSkipType(b.sig, sigStart)
	if err != nil {
		return err
	}
	if err := b.checkLength(16); err != nil {
		return err
	}
	b.align(4)
	lenOffset := len(b.data)
	b.data = append(b.data, 0, 0, 0, 0)
	b.align(alignmentOf(b.sig[sigStart]))
	b.stack = append(b.stack, bufferScope{
		kind:       arrayScope,
		lenOffset:  lenOffset,
		dataOffset: len(b.data),
		sigStart:   sigStart,
		sigEnd:     sigEnd,
	})
	return nil
}

func (b *Buffer) EndArray() error {
	if len(b.stack) == 0 {
		return errScopeMismatch
	}
	s := b.stack[len(b.stack)-1]
	if s.kind != arrayScope {
		return errScopeMismatch
	}
	if b.sigOffset != s.sigStart && b.sigOffset != s.sigEnd {
		return errSignatureType
	}
	length := len(b.data) - s.dataOffset
	if length > MaximumArrayLength {
		return errArrayTooLong
	}
	b.order.PutUint32(b.data[s.lenOffset:], uint32(length))
	b.sigOffset = s.sigEnd
	b.stack = b.stack[:len(b.stack)-1]
	return nil
}

func (b *Buffer) BeginStruct() error {
	if err := b.nextCode('('); err != nil {
		return err
	}
	if err := b.checkLength(8); err != nil {
		return err
	}
	b.align(8)
	b.stack = append(b.stack, bufferScope{kind: structScope})
	return nil
}

func (b *Buffer) EndStruct() error {
	return b.endAggregate(structScope, ')')
}

func (b *Buffer) BeginDictEntry() error {
	if err := b.nextCode('{'); err != nil {
		return err
	}
	if err := b.checkLength(8); err != nil {
		return err
	}
	b.align(8)
	b.stack = append(b.stack, bufferScope{kind: dictEntryScope})
	return nil
}

func (b *Buffer) EndDictEntry() error {
	return b.endAggregate(dictEntryScope, '}')
}

func (b *Buffer) endAggregate(kind scopeKind, close byte) error {
	if len(b.stack) == 0 || b.stack[len(b.stack)-1].kind != kind {
		return errScopeMismatch
	}
	if b.sigOffset >= len(b.sig) || b.sig[b.sigOffset] != close {
		return errSignatureType
	}
	b.sigOffset++
	b.stack = b.stack[:len(b.stack)-1]
	return nil
}

// BeginVariant emits the inner signature and switches marshalling over
// to it until EndVariant restores the outer cursor.
func (b *Buffer) BeginVariant(sig Signature) error {
	if err := b.nextCode('v'); err != nil {
		return err
	}
	if !validSingleType(string(sig)) {
		return errInvalidSignature
	}
	if err := b.appendSignatureData(string(sig)); err != nil {
		return err
	}
	b.stack = append(b.stack, bufferScope{
		kind:           variantScope,
		savedSig:       b.sig,
		savedSigOffset: b.sigOffset,
	})
	b.sig = string(sig)
	b.sigOffset = 0
	return nil
}

func (b *Buffer) EndVariant() error {
	if len(b.stack) == 0 || b.stack[len(b.stack)-1].kind != variantScope {
		return errScopeMismatch
	}
	if b.sigOffset != len(b.sig) {
		return errSignatureType
	}
	s := b.stack[len(b.stack)-1]
	b.sig = s.savedSig
	b.sigOffset = s.savedSigOffset
	b.stack = b.stack[:len(b.stack)-1]
	return nil
}
