package adbus

import (
	"fmt"
	"strings"
)

// MatchArgument is a positional string equality filter: the message
// argument at position Number must be a string equal to Value.
type MatchArgument struct {
	Number int
	Value  string
}

// Match is a subscription for inbound messages filtered by header
// field equalities.  Absent (zero) fields match anything.
type Match struct {
	// TypeInvalid matches any message type.
	Type MessageType

	Sender      string
	Destination string
	Interface   string
	Member      string
	ErrorName   string
	Path        ObjectPath

	ReplySerial      uint32
	CheckReplySerial bool

	Arguments []MatchArgument

	// AddToBusDaemon sends AddMatch/RemoveMatch to the bus daemon
	// alongside the local registration.
	AddToBusDaemon bool

	// RemoveOnFirstMatch drops the registration after its first hit.
	RemoveOnFirstMatch bool

	Callback MethodFunc

	// ErrorCallback, if set, is preferred over Callback for error
	// messages.  Reply registrations use this to split success and
	// failure.
	ErrorCallback MethodFunc

	User1 interface{}
	User2 interface{}

	// Id is assigned by AddMatch when zero.
	Id uint32

	service *serviceName
}

// serviceName tracks the current unique name owning a well known bus
// name, reference counted by the matches using it.
type serviceName struct {
	name     string
	unique   string
	refCount int

	signalMatch uint32
	methodMatch uint32
}

// requiresServiceLookup reports whether a sender filter names a well
// known service whose unique name must be tracked.
func requiresServiceLookup(name string) bool {
	return name != "" && name[0] != ':' && name != BusDaemonName &&
		strings.ContainsRune(name, '.')
}

// cloneMatch deep-copies the caller's filter, canonicalising the path.
func cloneMatch(from *Match) *Match {
	m := *from
	if from.Path != "" {
		m.Path = CanonicalPath(string(from.Path))
	}
	m.Arguments = append([]MatchArgument(nil), from.Arguments...)
	m.service = nil
	return &m
}

// matchString renders the daemon rule: "type='signal',sender='…',…".
func matchString(m *Match) string {
	params := make([]string, 0, 8)
	if m.Type != TypeInvalid {
		params = append(params, fmt.Sprintf("type='%s'", m.Type))
	}
	add := func(name, value string) {
		if value != "" {
			params = append(params, fmt.Sprintf("%s='%s'", name, value))
		}
	}
	add("sender", m.Sender)
	add("interface", m.Interface)
	add("member", m.Member)
	add("path", string(m.Path))
	add("destination", m.Destination)
	for _, a := range m.Arguments {
		params = append(params, fmt.Sprintf("arg%d='%s'", a.Number, a.Value))
	}
	return strings.Join(params, ",")
}

// AddMatch clones the caller's filter, assigns an id if it was left
// zero, optionally registers the rule with the bus daemon, and
// installs the entry at the end of the scan list.
func (c *Connection) AddMatch(reg *Match) uint32 {
	m := cloneMatch(reg)
	if m.Id == 0 {
		m.Id = c.nextMatchId()
	}
	c.registrations = append(c.registrations, m)

	if m.AddToBusDaemon {
		msg := c.newBusCall("AddMatch")
		args := msg.Args()
		args.AppendSignature("s")
		args.AppendString(matchString(m))
		c.Send(msg)
	}

	if requiresServiceLookup(m.Sender) {
		s := c.refService(m.Sender)
		m.service = s
	}

	return m.Id
}

// RemoveMatch drops a registration, reversing the daemon registration
// and the service reference.
func (c *Connection) RemoveMatch(id uint32) {
	for i, m := range c.registrations {
		if m.Id == id {
			c.removeMatchAt(i)
			return
		}
	}
}

func (c *Connection) removeMatchAt(i int) {
	m := c.registrations[i]
	c.registrations = append(c.registrations[:i], c.registrations[i+1:]...)

	if m.AddToBusDaemon {
		msg := c.newBusCall("RemoveMatch")
		args := msg.Args()
		args.AppendSignature("s")
		args.AppendString(matchString(m))
		c.Send(msg)
	}

	// Unref the service after removing the match, as dropping the
	// service removes further matches.
	if m.service != nil {
		c.unrefService(m.service)
	}
}

// refService returns the tracking entry for a well known name,
// installing the NameOwnerChanged match and issuing GetNameOwner on
// first use.
func (c *Connection) refService(name string) *serviceName {
	if s, ok := c.services[name]; ok {
		s.refCount++
		return s
	}
	s := &serviceName{name: name, refCount: 1}
	c.services[name] = s

	// Watch for ownership changes before asking for the current
	// owner, so no transition is missed in between.
	s.signalMatch = c.AddMatch(&Match{
		Type:           TypeSignal,
		AddToBusDaemon: true,
		Sender:         BusDaemonName,
		Path:           BusDaemonPath,
		Interface:      BusDaemonIface,
		Member:         "NameOwnerChanged",
		Arguments:      []MatchArgument{{Number: 0, Value: name}},
		Callback:       nameOwnerChanged,
		User1:          s,
	})

	msg := c.newBusCall("GetNameOwner")
	msg.SetSerial(c.NextSerial())
	args := msg.Args()
	args.AppendSignature("s")
	args.AppendString(name)
	s.methodMatch = c.AddMatch(&Match{
		Type:               TypeMethodReturn,
		ReplySerial:        msg.Serial(),
		CheckReplySerial:   true,
		RemoveOnFirstMatch: true,
		Callback:           gotNameOwner,
		User1:              s,
	})
	c.Send(msg)

	return s
}

func (c *Connection) unrefService(s *serviceName) {
	s.refCount--
	if s.refCount > 0 {
		return
	}
	delete(c.services, s.name)
	if s.methodMatch != 0 {
		c.RemoveMatch(s.methodMatch)
	}
	if s.signalMatch != 0 {
		c.RemoveMatch(s.signalMatch)
	}
}

// gotNameOwner handles the GetNameOwner reply, seeding the unique
// name.
func gotNameOwner(d *CallDetails) error {
	s := d.User1.(*serviceName)
	s.methodMatch = 0
	unique, err := d.Args.CheckString()
	if err != nil {
		return err
	}
	s.unique = unique
	return nil
}

// nameOwnerChanged tracks ownership transitions of the service name.
func nameOwnerChanged(d *CallDetails) error {
	s := d.User1.(*serviceName)
	if _, err := d.Args.CheckString(); err != nil {
		return err
	}
	if _, err := d.Args.CheckString(); err != nil {
		return err
	}
	to, err := d.Args.CheckString()
	if err != nil {
		return err
	}
	s.unique = to
	return nil
}

// matches applies the field by field comparison rules.
func (c *Connection) matches(r *Match, msg *Message) bool {
	if r.Type != TypeInvalid && r.Type != msg.Type {
		return false
	}
	if r.CheckReplySerial {
		rs, ok := msg.ReplySerial()
		if !ok || rs != r.ReplySerial {
			return false
		}
	}
	if !c.senderMatches(r, msg.Sender) {
		return false
	}
	if !fieldMatches(r.Destination, msg.Dest) {
		return false
	}
	if !fieldMatches(string(r.Path), string(msg.Path)) {
		return false
	}
	if !fieldMatches(r.Interface, msg.Interface) {
		return false
	}
	if !fieldMatches(r.Member, msg.Member) {
		return false
	}
	if !fieldMatches(r.ErrorName, msg.ErrorName) {
		return false
	}
	if len(r.Arguments) > 0 && !argumentsMatch(r.Arguments, msg) {
		return false
	}
	return true
}

func fieldMatches(want, got string) bool {
	if want == "" {
		return true
	}
	return want == got
}

// senderMatches resolves a tracked well known sender through its
// current unique name.
func (c *Connection) senderMatches(r *Match, sender string) bool {
	if r.Sender == "" {
		return true
	}
	if r.service != nil {
		// Messages from a tracked service arrive with the unique
		// name as sender; the daemon itself still signals with its
		// well known name.
		if sender == r.Sender {
			return true
		}
		return r.service.unique != "" && sender == r.service.unique
	}
	return r.Sender == sender
}

// argumentsMatch iterates the message arguments checking every
// positional filter.
func argumentsMatch(args []MatchArgument, msg *Message) bool {
	it := msg.Iterator()
	var f Field
	pos := 0
	remaining := len(args)
	for remaining > 0 {
		if err := it.Next(&f); err != nil || f.Type == EndField {
			return false
		}
		for _, a := range args {
			if a.Number != pos {
				continue
			}
			remaining--
			if f.Type != StringField || f.String != a.Value {
				return false
			}
		}
		// Only top level fields count as positions; skip over any
		// container contents.
		if err := skipContainer(it, &f); err != nil {
			return false
		}
		pos++
	}
	return true
}

// skipContainer consumes the remainder of a container opened by f.
func skipContainer(it *Iterator, f *Field) error {
	switch f.Type {
	case ArrayBeginField:
		if err := it.JumpToEndOfArray(f.Scope); err != nil {
			return err
		}
	case StructBeginField, DictEntryBeginField, VariantBeginField:
		scope := f.Scope
		var inner Field
		for !it.IsScopeAtEnd(scope) {
			if err := it.Next(&inner); err != nil {
				return err
			}
			if err := skipContainer(it, &inner); err != nil {
				return err
			}
		}
	default:
		return nil
	}
	var end Field
	return it.Next(&end)
}
