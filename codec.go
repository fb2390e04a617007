package adbus

import (
	"errors"
	"reflect"
)

// Reflection based convenience layer over the Buffer and Iterator.
// Message.AppendArgs and Message.GetArgs are implemented here.

// Append marshals the given values, deriving their signatures from
// the Go types and extending the buffer's signature accordingly.
func (b *Buffer) Append(args ...interface{}) error {
	for _, arg := range args {
		v := reflect.ValueOf(arg)
		sig, err := SignatureOf(v.Type())
		if err != nil {
			return err
		}
		if err := b.AppendSignature(string(sig)); err != nil {
			return err
		}
		if err := b.appendValue(v); err != nil {
			return err
		}
	}
	return nil
}

func (b *Buffer) appendValue(v reflect.Value) error {
	// Convert HasObjectPath values to object paths.
	if v.Type().AssignableTo(typeHasObjectPath) {
		return b.AppendObjectPath(v.Interface().(HasObjectPath).GetObjectPath())
	}

	// We want pointer values here, rather than the pointers themselves.
	for v.Kind() == reflect.Ptr || (v.Kind() == reflect.Interface && !v.IsNil()) {
		v = v.Elem()
	}

	switch v.Kind() {
	case reflect.Uint8:
		return b.AppendUint8(byte(v.Uint()))
	case reflect.Bool:
		return b.AppendBool(v.Bool())
	case reflect.Int16:
		return b.AppendInt16(int16(v.Int()))
	case reflect.Uint16:
		return b.AppendUint16(uint16(v.Uint()))
	case reflect.Int32:
		return b.AppendInt32(int32(v.Int()))
	case reflect.Uint32:
		return b.AppendUint32(uint32(v.Uint()))
	case reflect.Int64:
		return b.AppendInt64(v.Int())
	case reflect.Uint64:
		return b.AppendUint64(v.Uint())
	case reflect.Float64:
		return b.AppendDouble(v.Float())
	case reflect.String:
		if v.Type() == typeSignature {
			return b.AppendSignatureValue(Signature(v.String()))
		}
		return b.AppendString(v.String())
	case reflect.Array, reflect.Slice:
		if err := b.BeginArray(); err != nil {
			return err
		}
		for i := 0; i < v.Len(); i++ {
			if err := b.appendValue(v.Index(i)); err != nil {
				return err
			}
		}
		return b.EndArray()
	case reflect.Map:
		if err := b.BeginArray(); err != nil {
			return err
		}
		for _, key := range v.MapKeys() {
			if err := b.BeginDictEntry(); err != nil {
				return err
			}
			if err := b.appendValue(key); err != nil {
				return err
			}
			if err := b.appendValue(v.MapIndex(key)); err != nil {
				return err
			}
			if err := b.EndDictEntry(); err != nil {
				return err
			}
		}
		return b.EndArray()
	case reflect.Struct:
		if v.Type() == typeVariant {
			value := v.Interface().(Variant).Value
			sig, err := SignatureOf(reflect.TypeOf(value))
			if err != nil {
				return err
			}
			if err := b.BeginVariant(sig); err != nil {
				return err
			}
			if err := b.appendValue(reflect.ValueOf(value)); err != nil {
				return err
			}
			return b.EndVariant()
		}
		if err := b.BeginStruct(); err != nil {
			return err
		}
		for i := 0; i != v.NumField(); i++ {
			if err := b.appendValue(v.Field(i)); err != nil {
				return err
			}
		}
		return b.EndStruct()
	}
	return errors.New("adbus: can not marshal " + v.Type().String())
}

// Decode unpacks fields into the given pointers.
func (it *Iterator) Decode(args ...interface{}) error {
	for _, arg := range args {
		v := reflect.ValueOf(arg)
		// We expect to be given pointers here, so the caller can see
		// the decoded values.
		if v.Kind() != reflect.Ptr {
			return errors.New("adbus: arguments to Decode should be pointers")
		}
		if err := it.decodeValue(v.Elem()); err != nil {
			return err
		}
	}
	return nil
}

func (it *Iterator) decodeValue(v reflect.Value) error {
	var f Field
	if err := it.Next(&f); err != nil {
		return err
	}
	return it.decodeField(&f, v)
}

func (it *Iterator) setOrFail(v reflect.Value, value interface{}) error {
	rv := reflect.ValueOf(value)
	if v.Kind() == reflect.Interface && rv.Type().AssignableTo(v.Type()) {
		v.Set(rv)
		return nil
	}
	if rv.Type().ConvertibleTo(v.Type()) && v.Kind() == rv.Kind() {
		v.Set(rv.Convert(v.Type()))
		return nil
	}
	return ErrArgumentMismatch
}

func (it *Iterator) decodeField(f *Field, v reflect.Value) error {
	switch f.Type {
	case UInt8Field:
		return it.setOrFail(v, f.U8)
	case BooleanField:
		return it.setOrFail(v, f.Bool)
	case Int16Field:
		return it.setOrFail(v, f.I16)
	case UInt16Field:
		return it.setOrFail(v, f.U16)
	case Int32Field:
		return it.setOrFail(v, f.I32)
	case UInt32Field:
		return it.setOrFail(v, f.U32)
	case Int64Field:
		return it.setOrFail(v, f.I64)
	case UInt64Field:
		return it.setOrFail(v, f.U64)
	case DoubleField:
		return it.setOrFail(v, f.Double)
	case StringField:
		return it.setOrFail(v, f.String)
	case ObjectPathField:
		return it.setOrFail(v, ObjectPath(f.String))
	case SignatureField:
		return it.setOrFail(v, Signature(f.String))
	case ArrayBeginField:
		return it.decodeArray(f.Scope, v)
	case StructBeginField:
		return it.decodeStruct(f.Scope, v)
	case DictEntryBeginField:
		return it.decodeDictEntry(f.Scope, v)
	case VariantBeginField:
		return it.decodeVariant(f.Scope, v)
	}
	return ErrArgumentMismatch
}

func (it *Iterator) expectEnd(want FieldType) error {
	var f Field
	if err := it.Next(&f); err != nil {
		return err
	}
	if f.Type != want {
		return ErrArgumentMismatch
	}
	return nil
}

func (it *Iterator) decodeArray(scope int, v reflect.Value) error {
	if v.Kind() == reflect.Interface {
		array := make([]interface{}, 0)
		for !it.IsScopeAtEnd(scope) {
			var elem interface{}
			if err := it.decodeValue(reflect.ValueOf(&elem).Elem()); err != nil {
				return err
			}
			array = append(array, elem)
		}
		v.Set(reflect.ValueOf(array))
		return it.expectEnd(ArrayEndField)
	}

	switch v.Kind() {
	case reflect.Map:
		v.Set(reflect.MakeMap(v.Type()))
		var f Field
		for !it.IsScopeAtEnd(scope) {
			if err := it.Next(&f); err != nil {
				return err
			}
			if f.Type != DictEntryBeginField {
				return ErrArgumentMismatch
			}
			key := reflect.New(v.Type().Key()).Elem()
			value := reflect.New(v.Type().Elem()).Elem()
			if err := it.decodeValue(key); err != nil {
				return err
			}
			if err := it.decodeValue(value); err != nil {
				return err
			}
			if err := it.expectEnd(DictEntryEndField); err != nil {
				return err
			}
			v.SetMapIndex(key, value)
		}
		return it.expectEnd(ArrayEndField)
	case reflect.Slice:
		v.Set(reflect.MakeSlice(v.Type(), 0, 0))
		for !it.IsScopeAtEnd(scope) {
			elem := reflect.New(v.Type().Elem()).Elem()
			if err := it.decodeValue(elem); err != nil {
				return err
			}
			v.Set(reflect.Append(v, elem))
		}
		return it.expectEnd(ArrayEndField)
	}
	return ErrArgumentMismatch
}

func (it *Iterator) decodeStruct(scope int, v reflect.Value) error {
	if v.Kind() == reflect.Interface {
		fields := make([]interface{}, 0)
		for !it.IsScopeAtEnd(scope) {
			var elem interface{}
			if err := it.decodeValue(reflect.ValueOf(&elem).Elem()); err != nil {
				return err
			}
			fields = append(fields, elem)
		}
		v.Set(reflect.ValueOf(fields))
		return it.expectEnd(StructEndField)
	}
	if v.Kind() != reflect.Struct {
		return ErrArgumentMismatch
	}
	for i := 0; i != v.NumField(); i++ {
		if err := it.decodeValue(v.Field(i)); err != nil {
			return err
		}
	}
	return it.expectEnd(StructEndField)
}

// decodeDictEntry handles a dict entry met outside of a map target,
// producing a two element []interface{}.
func (it *Iterator) decodeDictEntry(scope int, v reflect.Value) error {
	if v.Kind() != reflect.Interface {
		return ErrArgumentMismatch
	}
	pair := make([]interface{}, 2)
	if err := it.decodeValue(reflect.ValueOf(&pair[0]).Elem()); err != nil {
		return err
	}
	if err := it.decodeValue(reflect.ValueOf(&pair[1]).Elem()); err != nil {
		return err
	}
	if err := it.expectEnd(DictEntryEndField); err != nil {
		return err
	}
	v.Set(reflect.ValueOf(pair))
	return nil
}

func (it *Iterator) decodeVariant(scope int, v reflect.Value) error {
	var inner interface{}
	if err := it.decodeValue(reflect.ValueOf(&inner).Elem()); err != nil {
		return err
	}
	if err := it.expectEnd(VariantEndField); err != nil {
		return err
	}
	if v.Type() == typeVariant {
		v.Set(reflect.ValueOf(Variant{inner}))
		return nil
	}
	return it.setOrFail(v, inner)
}
