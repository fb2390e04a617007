package adbus

// Check helpers read exactly one field and fail with
// ErrArgumentMismatch when the type does not match.  Method handlers
// use these for tidy argument extraction; the dispatcher translates
// the failure into a standard error reply.

func (it *Iterator) checkField(want FieldType) (Field, error) {
	var f Field
	if err := it.Next(&f); err != nil {
		return f, err
	}
	if f.Type != want {
		return f, ErrArgumentMismatch
	}
	return f, nil
}

func (it *Iterator) CheckBool() (bool, error) {
	f, err := it.checkField(BooleanField)
	return f.Bool, err
}

func (it *Iterator) CheckUint8() (byte, error) {
	f, err := it.checkField(UInt8Field)
	return f.U8, err
}

func (it *Iterator) CheckInt16() (int16, error) {
	f, err := it.checkField(Int16Field)
	return f.I16, err
}

func (it *Iterator) CheckUint16() (uint16, error) {
	f, err := it.checkField(UInt16Field)
	return f.U16, err
}

func (it *Iterator) CheckInt32() (int32, error) {
	f, err := it.checkField(Int32Field)
	return f.I32, err
}

func (it *Iterator) CheckUint32() (uint32, error) {
	f, err := it.checkField(UInt32Field)
	return f.U32, err
}

func (it *Iterator) CheckInt64() (int64, error) {
	f, err := it.checkField(Int64Field)
	return f.I64, err
}

func (it *Iterator) CheckUint64() (uint64, error) {
	f, err := it.checkField(UInt64Field)
	return f.U64, err
}

func (it *Iterator) CheckDouble() (float64, error) {
	f, err := it.checkField(DoubleField)
	return f.Double, err
}

func (it *Iterator) CheckString() (string, error) {
	f, err := it.checkField(StringField)
	return f.String, err
}

func (it *Iterator) CheckObjectPath() (ObjectPath, error) {
	f, err := it.checkField(ObjectPathField)
	return ObjectPath(f.String), err
}

func (it *Iterator) CheckSignature() (Signature, error) {
	f, err := it.checkField(SignatureField)
	return Signature(f.String), err
}

// CheckArrayBegin returns the scope used with IsScopeAtEnd and
// CheckArrayEnd.
func (it *Iterator) CheckArrayBegin() (int, error) {
	f, err := it.checkField(ArrayBeginField)
	return f.Scope, err
}

func (it *Iterator) CheckArrayEnd() error {
	_, err := it.checkField(ArrayEndField)
	return err
}

func (it *Iterator) CheckStructBegin() (int, error) {
	f, err := it.checkField(StructBeginField)
	return f.Scope, err
}

func (it *Iterator) CheckStructEnd() error {
	_, err := it.checkField(StructEndField)
	return err
}

func (it *Iterator) CheckDictEntryBegin() (int, error) {
	f, err := it.checkField(DictEntryBeginField)
	return f.Scope, err
}

func (it *Iterator) CheckDictEntryEnd() error {
	_, err := it.checkField(DictEntryEndField)
	return err
}

// CheckVariantBegin returns the variant's inner signature.
func (it *Iterator) CheckVariantBegin() (string, int, error) {
	f, err := it.checkField(VariantBeginField)
	return f.String, f.Scope, err
}

func (it *Iterator) CheckVariantEnd() error {
	_, err := it.checkField(VariantEndField)
	return err
}

// CheckEnd fails unless every argument has been consumed.
func (it *Iterator) CheckEnd() error {
	_, err := it.checkField(EndField)
	return err
}
