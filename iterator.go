package adbus

import (
	"encoding/binary"
	"math"
)

// FieldType identifies what an iterator produced: a typed value, a
// container boundary, or the end of the arguments.
type FieldType int

const (
	InvalidField FieldType = iota
	EndField
	BooleanField
	UInt8Field
	Int16Field
	UInt16Field
	Int32Field
	UInt32Field
	Int64Field
	UInt64Field
	DoubleField
	StringField
	ObjectPathField
	SignatureField
	ArrayBeginField
	ArrayEndField
	StructBeginField
	StructEndField
	DictEntryBeginField
	DictEntryEndField
	VariantBeginField
	VariantEndField
)

// Field is one demarshalled unit.  Container-begin fields carry the
// scope at which the container was opened; VariantBeginField also
// carries the inner signature in String.
type Field struct {
	Type   FieldType
	Bool   bool
	U8     byte
	I16    int16
	U16    uint16
	I32    int32
	U32    uint32
	I64    int64
	U64    uint64
	Double float64
	String string
	Scope  int
}

type iterScope struct {
	kind scopeKind

	// Arrays: where the data ends, and the element type bounds.
	dataEnd  int
	sigStart int
	sigEnd   int

	// Variants: the outer signature cursor to restore.
	savedSig       string
	savedSigOffset int
}

// Iterator walks a marshalled byte range against a signature,
// producing typed fields and enforcing the wire validation rules.
// Offsets are absolute within data so that alignment is computed from
// the start of the enclosing message.
type Iterator struct {
	data      []byte
	offset    int
	end       int
	sig       string
	sigOffset int
	order     binary.ByteOrder
	swap      bool // rewrite loads in little-endian as we go
	stack     []iterScope
}

// NewIterator returns an iterator over data[offset:end] holding values
// of the given signature.
func NewIterator(data []byte, offset int, sig string) *Iterator {
	return &Iterator{
		data:   data,
		offset: offset,
		end:    len(data),
		sig:    sig,
		order:  binary.LittleEndian,
	}
}

// Reset rewinds the iterator to a new position and signature over the
// same buffer.
func (it *Iterator) Reset(offset int, sig string) {
	it.offset = offset
	it.sig = sig
	it.sigOffset = 0
	it.stack = it.stack[:0]
}

func (it *Iterator) align(alignment int) error {
	for it.offset%alignment != 0 {
		if it.offset >= it.end || it.data[it.offset] != 0 {
			return ErrInvalidData
		}
		it.offset++
	}
	return nil
}

func (it *Iterator) need(n int) error {
	if it.end-it.offset < n {
		return ErrInvalidData
	}
	if len(it.stack) > 0 {
		if s := &it.stack[len(it.stack)-1]; s.kind == arrayScope && it.offset+n > s.dataEnd {
			return ErrInvalidData
		}
	}
	return nil
}

func (it *Iterator) readU16() (uint16, error) {
	if err := it.align(2); err != nil {
		return 0, err
	}
	if err := it.need(2); err != nil {
		return 0, err
	}
	v := it.order.Uint16(it.data[it.offset:])
	if it.swap {
		binary.LittleEndian.PutUint16(it.data[it.offset:], v)
	}
	it.offset += 2
	return v, nil
}

func (it *Iterator) readU32() (uint32, error) {
	if err := it.align(4); err != nil {
		return 0, err
	}
	if err := it.need(4); err != nil {
		return 0, err
	}
	v := it.order.Uint32(it.data[it.offset:])
	if it.swap {
		binary.LittleEndian.PutUint32(it.data[it.offset:], v)
	}
	it.offset += 4
	return v, nil
}

func (it *Iterator) readU64() (uint64, error) {
	if err := it.align(8); err != nil {
		return 0, err
	}
	if err := it.need(8); err != nil {
		return 0, err
	}
	v := it.order.Uint64(it.data[it.offset:])
	if it.swap {
		binary.LittleEndian.PutUint64(it.data[it.offset:], v)
	}
	it.offset += 8
	return v, nil
}

// readStringData reads a length-prefixed string body: no embedded NUL,
// a trailing NUL, and valid UTF-8.
func (it *Iterator) readStringData(length int) (string, error) {
	if err := it.need(length + 1); err != nil {
		return "", err
	}
	raw := it.data[it.offset : it.offset+length]
	if it.data[it.offset+length] != 0 {
		return "", ErrInvalidData
	}
	for _, c := range raw {
		if c == 0 {
			return "", ErrInvalidData
		}
	}
	if !isValidUTF8(raw) {
		return "", ErrInvalidData
	}
	it.offset += length + 1
	return string(raw), nil
}

func (it *Iterator) readString() (string, error) {
	length, err := it.readU32()
	if err != nil {
		return "", err
	}
	if length > MaximumArrayLength {
		return "", ErrInvalidData
	}
	return it.readStringData(int(length))
}

func (it *Iterator) readSignature() (string, error) {
	if err := it.need(1); err != nil {
		return "", err
	}
	length := int(it.data[it.offset])
	it.offset++
	s, err := it.readStringData(length)
	if err != nil {
		return "", err
	}
	if !validSignature(s) {
		return "", ErrInvalidData
	}
	return s, nil
}

// nextCode peeks the next signature code, handling the per-element
// signature rewind inside arrays.  A zero return means the current
// scope (or the whole argument list) has been consumed.
func (it *Iterator) nextCode() byte {
	if len(it.stack) > 0 {
		if s := &it.stack[len(it.stack)-1]; s.kind == arrayScope {
			if it.offset >= s.dataEnd {
				return 0
			}
			if it.sigOffset == s.sigEnd {
				it.sigOffset = s.sigStart
			}
		}
	}
	if it.sigOffset >= len(it.sig) {
		return 0
	}
	return it.sig[it.sigOffset]
}

// Next demarshals one field.  At the end of the arguments it produces
// EndField.
func (it *Iterator) Next(f *Field) error {
	*f = Field{}

	code := it.nextCode()
	if code == 0 {
		return it.endOfScope(f)
	}

	switch code {
	case ')':
		return it.popAggregate(f, structScope, StructEndField)
	case '}':
		return it.popAggregate(f, dictEntryScope, DictEntryEndField)
	}

	it.sigOffset++
	switch code {
	case 'y':
		if err := it.need(1); err != nil {
			return err
		}
		f.Type = UInt8Field
		f.U8 = it.data[it.offset]
		it.offset++
	case 'b':
		v, err := it.readU32()
		if err != nil {
			return err
		}
		if v > 1 {
			return ErrInvalidData
		}
		f.Type = BooleanField
		f.Bool = v == 1
	case 'n':
		v, err := it.readU16()
		if err != nil {
			return err
		}
		f.Type = Int16Field
		f.I16 = int16(v)
	case 'q':
		v, err := it.readU16()
		if err != nil {
			return err
		}
		f.Type = UInt16Field
		f.U16 = v
	case 'i':
		v, err := it.readU32()
		if err != nil {
			return err
		}
		f.Type = Int32Field
		f.I32 = int32(v)
	case 'u':
		v, err := it.readU32()
		if err != nil {
			return err
		}
		f.Type = UInt32Field
		f.U32 = v
	case 'x':
		v, err := it.readU64()
		if err != nil {
			return err
		}
		f.Type = Int64Field
		f.I64 = int64(v)
	case 't':
		v, err := it.readU64()
		if err != nil {
			return err
		}
		f.Type = UInt64Field
		f.U64 = v
	case 'd':
		v, err := it.readU64()
		if err != nil {
			return err
		}
		f.Type = DoubleField
		f.Double = math.Float64frombits(v)
	case 's':
		s, err := it.readString()
		if err != nil {
			return err
		}
		f.Type = StringField
		f.String = s
	case 'o':
		s, err := it.readString()
		if err != nil {
			return err
		}
		if !isValidObjectPath(s) {
			return ErrInvalidData
		}
		f.Type = ObjectPathField
		f.String = s
	case 'g':
		s, err := it.readSignature()
		if err != nil {
			return err
		}
		f.Type = SignatureField
		f.String = s
	case 'a':
		return it.beginArray(f)
	case '(':
		if err := it.align(8); err != nil {
			return err
		}
		f.Type = StructBeginField
		f.Scope = len(it.stack)
		it.stack = append(it.stack, iterScope{kind: structScope})
	case '{':
		if err := it.align(8); err != nil {
			return err
		}
		f.Type = DictEntryBeginField
		f.Scope = len(it.stack)
		it.stack = append(it.stack, iterScope{kind: dictEntryScope})
	case 'v':
		sig, err := it.readSignature()
		if err != nil {
			return err
		}
		if !validSingleType(sig) {
			return ErrInvalidData
		}
		f.Type = VariantBeginField
		f.String = sig
		f.Scope = len(it.stack)
		it.stack = append(it.stack, iterScope{
			kind:           variantScope,
			savedSig:       it.sig,
			savedSigOffset: it.sigOffset,
		})
		it.sig = sig
		it.sigOffset = 0
	default:
		return ErrInvalidData
	}
	return nil
}

func (it *Iterator) beginArray(f *Field) error {
	length, err := it.readU32()
	if err != nil {
		return err
	}
	if length > MaximumArrayLength {
		return ErrInvalidData
	}
	sigStart := it.sigOffset
	sigEnd, err := sigSkipType(it.sig, sigStart)
	if err != nil {
		return ErrInvalidData
	}
	if err := it.align(alignmentOf(it.sig[sigStart])); err != nil {
		return err
	}
	if err := it.need(int(length)); err != nil {
		return err
	}
	f.Type = ArrayBeginField
	f.Scope = len(it.stack)
	it.stack = append(it.stack, iterScope{
		kind:     arrayScope,
		dataEnd:  it.offset + int(length),
		sigStart: sigStart,
		sigEnd:   sigEnd,
	})
	return nil
}

func (it *Iterator) endOfScope(f *Field) error {
	if len(it.stack) == 0 {
		f.Type = EndField
		return nil
	}
	s := it.stack[len(it.stack)-1]
	switch s.kind {
	case arrayScope:
		if it.offset != s.dataEnd {
			return ErrInvalidData
		}
		f.Type = ArrayEndField
		f.Scope = len(it.stack) - 1
		it.sigOffset = s.sigEnd
		it.stack = it.stack[:len(it.stack)-1]
		return nil
	case variantScope:
		f.Type = VariantEndField
		f.Scope = len(it.stack) - 1
		it.sig = s.savedSig
		it.sigOffset = s.savedSigOffset
		it.stack = it.stack[:len(it.stack)-1]
		return nil
	}
	return ErrInvalidData
}

func (it *Iterator) popAggregate(f *Field, kind scopeKind, ft FieldType) error {
	if len(it.stack) == 0 || it.stack[len(it.stack)-1].kind != kind {
		return ErrInvalidData
	}
	it.sigOffset++
	f.Type = ft
	f.Scope = len(it.stack) - 1
	it.stack = it.stack[:len(it.stack)-1]
	return nil
}

// IsScopeAtEnd reports whether the container opened at the given scope
// has been fully consumed.
func (it *Iterator) IsScopeAtEnd(scope int) bool {
	if scope >= len(it.stack) {
		return true
	}
	if scope != len(it.stack)-1 {
		return false
	}
	s := it.stack[scope]
	switch s.kind {
	case arrayScope:
		return it.offset >= s.dataEnd
	case variantScope:
		return it.sigOffset >= len(it.sig)
	}
	c := it.nextCode()
	return c == ')' || c == '}'
}

// JumpToEndOfArray fast-forwards past the remaining elements of the
// array opened at the given scope.
func (it *Iterator) JumpToEndOfArray(scope int) error {
	if scope != len(it.stack)-1 || it.stack[scope].kind != arrayScope {
		return ErrInvalidData
	}
	it.offset = it.stack[scope].dataEnd
	it.sigOffset = it.stack[scope].sigStart
	return nil
}
