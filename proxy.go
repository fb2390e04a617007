package adbus

// ObjectProxy represents a remote object on the bus.  It can be used
// to simplify constructing method calls, and acts as a basis for
// D-Bus interface client stubs.
type ObjectProxy struct {
	client      *Client
	destination string
	path        ObjectPath
}

func (o *ObjectProxy) ObjectPath() ObjectPath {
	return o.path
}

// Call the given method on the remote object.
//
// On success, the reply message will be returned, whose arguments can
// be unpacked with its GetArgs() method.
//
// On failure (both network failures and D-Bus level errors), an error
// will be returned.
func (o *ObjectProxy) Call(iface string, method string, args ...interface{}) (*Message, error) {
	msg := NewMethodCallMessage(o.destination, o.path, iface, method)
	if err := msg.AppendArgs(args...); err != nil {
		return nil, err
	}
	return o.client.Call(msg)
}

// WatchSignal subscribes to a signal emitted by this object.
func (o *ObjectProxy) WatchSignal(iface string, member string, handler MethodFunc) uint32 {
	return o.client.WatchSignal(&Match{
		Type:      TypeSignal,
		Sender:    o.destination,
		Path:      o.path,
		Interface: iface,
		Member:    member,
		Callback:  handler,
	})
}

// Introspectable is a client stub for org.freedesktop.DBus.Introspectable.
type Introspectable struct {
	*ObjectProxy
}

func (o *Introspectable) Introspect() (data string, err error) {
	reply, err := o.Call("org.freedesktop.DBus.Introspectable", "Introspect")
	if err != nil {
		return
	}
	err = reply.GetArgs(&data)
	return
}

// Properties is a client stub for org.freedesktop.DBus.Properties.
type Properties struct {
	*ObjectProxy
}

func (o *Properties) Get(interfaceName string, propertyName string) (value interface{}, err error) {
	reply, err := o.Call("org.freedesktop.DBus.Properties", "Get", interfaceName, propertyName)
	if err != nil {
		return
	}
	var variant Variant
	err = reply.GetArgs(&variant)
	value = variant.Value
	return
}

func (o *Properties) Set(interfaceName string, propertyName string, value interface{}) (err error) {
	_, err = o.Call("org.freedesktop.DBus.Properties", "Set", interfaceName, propertyName, Variant{value})
	return
}

func (o *Properties) GetAll(interfaceName string) (props map[string]Variant, err error) {
	reply, err := o.Call("org.freedesktop.DBus.Properties", "GetAll", interfaceName)
	if err != nil {
		return
	}
	err = reply.GetArgs(&props)
	return
}

// BusDaemon is a client stub for the org.freedesktop.DBus interface of
// the bus daemon.
type BusDaemon struct {
	*ObjectProxy
}

func (o *BusDaemon) Hello() (uniqueName string, err error) {
	reply, err := o.Call(BusDaemonIface, "Hello")
	if err != nil {
		return
	}
	err = reply.GetArgs(&uniqueName)
	return
}

func (o *BusDaemon) RequestName(name string, flags uint32) (result uint32, err error) {
	reply, err := o.Call(BusDaemonIface, "RequestName", name, flags)
	if err != nil {
		return
	}
	err = reply.GetArgs(&result)
	return
}

func (o *BusDaemon) ReleaseName(name string) (result uint32, err error) {
	reply, err := o.Call(BusDaemonIface, "ReleaseName", name)
	if err != nil {
		return
	}
	err = reply.GetArgs(&result)
	return
}

func (o *BusDaemon) ListNames() (names []string, err error) {
	reply, err := o.Call(BusDaemonIface, "ListNames")
	if err != nil {
		return
	}
	err = reply.GetArgs(&names)
	return
}

func (o *BusDaemon) NameHasOwner(name string) (hasOwner bool, err error) {
	reply, err := o.Call(BusDaemonIface, "NameHasOwner", name)
	if err != nil {
		return
	}
	err = reply.GetArgs(&hasOwner)
	return
}

func (o *BusDaemon) GetNameOwner(name string) (owner string, err error) {
	reply, err := o.Call(BusDaemonIface, "GetNameOwner", name)
	if err != nil {
		return
	}
	err = reply.GetArgs(&owner)
	return
}

func (o *BusDaemon) AddMatch(rule string) (err error) {
	_, err = o.Call(BusDaemonIface, "AddMatch", rule)
	return
}

func (o *BusDaemon) RemoveMatch(rule string) (err error) {
	_, err = o.Call(BusDaemonIface, "RemoveMatch", rule)
	return
}
