package adbus

import "github.com/pkg/errors"

// boundInterface associates an interface with per-binding data on one
// object path.
type boundInterface struct {
	iface *Interface
	data  interface{}
}

// Object is one node in the hierarchical object path tree.  Every node
// automatically carries the built-in Introspectable and Properties
// interfaces; a node is pruned once it has no user bound interfaces
// and no children.
type Object struct {
	conn     *Connection
	path     ObjectPath
	parent   *Object
	children []*Object

	interfaces map[string]*boundInterface
	bindOrder  []string
}

// GetObject returns the node at the canonicalised path, creating it
// and any missing parents.
func (c *Connection) GetObject(path ObjectPath) *Object {
	return c.addObject(CanonicalPath(string(path)))
}

func (c *Connection) addObject(path ObjectPath) *Object {
	if o, ok := c.objects[path]; ok {
		return o
	}

	o := &Object{
		conn:       c,
		path:       path,
		interfaces: make(map[string]*boundInterface),
	}
	c.objects[path] = o
	o.bindInterface(c.introspectable, o)
	o.bindInterface(c.properties, o)

	if path != "/" {
		o.parent = c.addObject(parentPath(path))
		o.parent.children = append(o.parent.children, o)
	}
	return o
}

func (o *Object) Path() ObjectPath { return o.path }

// RelativeObject resolves a path relative to this node.
func (o *Object) RelativeObject(rel string) *Object {
	return o.conn.GetObject(CanonicalPath(string(o.path) + "/" + rel))
}

func (o *Object) bindInterface(iface *Interface, data interface{}) error {
	if _, ok := o.interfaces[iface.name]; ok {
		return errors.Errorf("interface %s already bound to %s", iface.name, o.path)
	}
	o.interfaces[iface.name] = &boundInterface{iface: iface, data: data}
	o.bindOrder = append(o.bindOrder, iface.name)
	return nil
}

// Bind associates an interface instance with the node.  data is the
// opaque per-binding value handed to method callbacks.
func (o *Object) Bind(iface *Interface, data interface{}) error {
	return o.bindInterface(iface, data)
}

// Unbind removes a bound interface, pruning the node when only the
// built-ins remain and there are no children.
func (o *Object) Unbind(iface *Interface) error {
	b, ok := o.interfaces[iface.name]
	if !ok || b.iface != iface {
		return errors.Errorf("interface %s is not bound to %s", iface.name, o.path)
	}
	delete(o.interfaces, iface.name)
	for i, name := range o.bindOrder {
		if name == iface.name {
			o.bindOrder = append(o.bindOrder[:i], o.bindOrder[i+1:]...)
			break
		}
	}
	o.checkRemove()
	return nil
}

// checkRemove prunes this node (and transitively its parents) when
// only the two built-in interfaces remain and it has no children.
func (o *Object) checkRemove() {
	if len(o.interfaces) > 2 || len(o.children) > 0 || o.parent == nil {
		return
	}
	parent := o.parent
	for i, child := range parent.children {
		if child == o {
			parent.children = append(parent.children[:i], parent.children[i+1:]...)
			break
		}
	}
	delete(o.conn.objects, o.path)
	parent.checkRemove()
}

// boundInterface looks up a bound interface by name.
func (o *Object) boundInterface(name string) *boundInterface {
	return o.interfaces[name]
}

// boundMember scans the bound interfaces, in bind order, for a member
// of the wanted kind.
func (o *Object) boundMember(kind MemberType, name string) (*Member, *boundInterface) {
	for _, ifaceName := range o.bindOrder {
		b := o.interfaces[ifaceName]
		if m := b.iface.member(kind, name); m != nil {
			return m, b
		}
	}
	return nil, nil
}
