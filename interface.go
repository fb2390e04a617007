package adbus

import "github.com/pkg/errors"

// MemberType distinguishes the three kinds of interface members.
type MemberType int

const (
	MethodMember MemberType = iota
	SignalMember
	PropertyMember
)

// ArgumentDirection marks a member argument as input or output.
type ArgumentDirection int

const (
	InArgument ArgumentDirection = iota
	OutArgument
)

// Argument is a named, typed member argument.
type Argument struct {
	Name string
	Type string
}

// MethodFunc handles a method call or a match callback.  A non-nil
// error from a method handler causes the dispatcher to serialise an
// error reply: an *Error keeps its name, ErrArgumentMismatch maps to
// the invalid-argument error, anything else to the generic failure.
// An error from a match callback is logged and produces no reply.
type MethodFunc func(d *CallDetails) error

// Member is one method, signal or property of an interface.
type Member struct {
	Type MemberType
	Name string

	inArguments     []Argument
	outArguments    []Argument
	annotations     map[string]string
	annotationOrder []string

	methodCallback MethodFunc
	methodData     interface{}

	propertyType string
	getCallback  MethodFunc
	getData      interface{}
	setCallback  MethodFunc
	setData      interface{}
}

// AddArgument declares an argument.  Signals treat every argument as
// output.
func (m *Member) AddArgument(dir ArgumentDirection, name string, sig string) error {
	if !validSignature(sig) || sig == "" {
		return errInvalidSignature
	}
	if dir == InArgument && m.Type == MethodMember {
		m.inArguments = append(m.inArguments, Argument{name, sig})
	} else {
		m.outArguments = append(m.outArguments, Argument{name, sig})
	}
	return nil
}

func (m *Member) AddAnnotation(name string, value string) {
	if m.annotations == nil {
		m.annotations = make(map[string]string)
	}
	if _, ok := m.annotations[name]; !ok {
		m.annotationOrder = append(m.annotationOrder, name)
	}
	m.annotations[name] = value
}

func (m *Member) SetMethodCallback(cb MethodFunc, data interface{}) {
	m.methodCallback = cb
	m.methodData = data
}

// SetPropertyType declares the single complete type of a property.
func (m *Member) SetPropertyType(sig string) error {
	if !validSingleType(sig) {
		return errInvalidSignature
	}
	m.propertyType = sig
	return nil
}

func (m *Member) PropertyType() string { return m.propertyType }

func (m *Member) SetGetter(cb MethodFunc, data interface{}) {
	m.getCallback = cb
	m.getData = data
}

func (m *Member) SetSetter(cb MethodFunc, data interface{}) {
	m.setCallback = cb
	m.setData = data
}

func (m *Member) Readable() bool { return m.getCallback != nil }
func (m *Member) Writable() bool { return m.setCallback != nil }

// InSignature concatenates the input argument types of a method.
func (m *Member) InSignature() string {
	sig := ""
	for _, a := range m.inArguments {
		sig += a.Type
	}
	return sig
}

// OutSignature concatenates the output argument types.
func (m *Member) OutSignature() string {
	sig := ""
	for _, a := range m.outArguments {
		sig += a.Type
	}
	return sig
}

// Interface is a named collection of methods, signals and properties.
type Interface struct {
	name        string
	members     map[string]*Member
	memberOrder []string
}

// NewInterface creates an interface with a validated name.
func NewInterface(name string) (*Interface, error) {
	if !isValidInterfaceName(name) {
		return nil, errors.Errorf("invalid interface name %q", name)
	}
	return &Interface{
		name:    name,
		members: make(map[string]*Member),
	}, nil
}

func (i *Interface) Name() string { return i.name }

// addMember adds a member, replacing any existing member with the same
// name.
func (i *Interface) addMember(kind MemberType, name string) (*Member, error) {
	if !isValidMemberName(name) {
		return nil, errors.Errorf("invalid member name %q", name)
	}
	m := &Member{Type: kind, Name: name}
	if _, ok := i.members[name]; !ok {
		i.memberOrder = append(i.memberOrder, name)
	}
	i.members[name] = m
	return m, nil
}

func (i *Interface) AddMethod(name string) (*Member, error) {
	return i.addMember(MethodMember, name)
}

func (i *Interface) AddSignal(name string) (*Member, error) {
	return i.addMember(SignalMember, name)
}

func (i *Interface) AddProperty(name string, sig string) (*Member, error) {
	m, err := i.addMember(PropertyMember, name)
	if err != nil {
		return nil, err
	}
	if err := m.SetPropertyType(sig); err != nil {
		delete(i.members, name)
		if n := len(i.memberOrder); n > 0 && i.memberOrder[n-1] == name {
			i.memberOrder = i.memberOrder[:n-1]
		}
		return nil, err
	}
	return m, nil
}

// Member returns the named member of any kind, or nil.
func (i *Interface) Member(name string) *Member {
	return i.members[name]
}

// member returns the named member if it has the wanted kind.
func (i *Interface) member(kind MemberType, name string) *Member {
	m := i.members[name]
	if m == nil || m.Type != kind {
		return nil
	}
	return m
}

func (i *Interface) Method(name string) *Member   { return i.member(MethodMember, name) }
func (i *Interface) Signal(name string) *Member   { return i.member(SignalMember, name) }
func (i *Interface) Property(name string) *Member { return i.member(PropertyMember, name) }
