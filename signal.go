package adbus

import "github.com/pkg/errors"

// Emit sends a signal declared on one of this object's bound
// interfaces.
func (o *Object) Emit(ifaceName string, member string, args ...interface{}) error {
	b := o.boundInterface(ifaceName)
	if b == nil {
		return errors.Errorf("interface %s is not bound to %s", ifaceName, o.path)
	}
	m := b.iface.member(SignalMember, member)
	if m == nil {
		return errors.Errorf("interface %s has no signal %s", ifaceName, member)
	}

	msg := NewSignalMessage(o.path, ifaceName, member)
	if err := msg.AppendArgs(args...); err != nil {
		return err
	}
	return o.conn.Send(msg)
}
