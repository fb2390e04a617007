package adbus

import "strings"

// Built-in Introspectable and Properties implementations.  These are
// bound to every object path with the object itself as binding data.

func introspectCallback(d *CallDetails) error {
	if d.Reply == nil {
		return nil
	}
	o := d.Binding.(*Object)

	var out strings.Builder
	introspectNode(o, &out)

	args := d.Reply.Args()
	if err := args.AppendSignature("s"); err != nil {
		return err
	}
	return args.AppendString(out.String())
}

func introspectNode(o *Object, out *strings.Builder) {
	out.WriteString(
		"<!DOCTYPE node PUBLIC \"-//freedesktop/DTD D-BUS Object Introspection 1.0//EN\"\n" +
			"\"http://www.freedesktop.org/standards/dbus/1.0/introspect.dtd\">\n" +
			"<node>\n")

	for _, name := range o.bindOrder {
		introspectInterface(o.interfaces[name].iface, out)
	}

	// Child node stubs carry only the tail segment of the path.
	prefix := len(o.path)
	if o.path != "/" {
		prefix++
	}
	for _, child := range o.children {
		out.WriteString("\t<node name=\"")
		out.WriteString(string(child.path)[prefix:])
		out.WriteString("\"/>\n")
	}

	out.WriteString("</node>\n")
}

func introspectInterface(i *Interface, out *strings.Builder) {
	out.WriteString("\t<interface name=\"")
	out.WriteString(i.name)
	out.WriteString("\">\n")
	for _, name := range i.memberOrder {
		introspectMember(i.members[name], out)
	}
	out.WriteString("\t</interface>\n")
}

func introspectMember(m *Member, out *strings.Builder) {
	switch m.Type {
	case PropertyMember:
		out.WriteString("\t\t<property name=\"")
		out.WriteString(m.Name)
		out.WriteString("\" type=\"")
		out.WriteString(m.propertyType)
		out.WriteString("\" access=\"")
		switch {
		case m.Readable() && m.Writable():
			out.WriteString("readwrite")
		case m.Writable():
			out.WriteString("write")
		default:
			out.WriteString("read")
		}
		if len(m.annotations) == 0 {
			out.WriteString("\"/>\n")
		} else {
			out.WriteString("\">\n")
			introspectAnnotations(m, out)
			out.WriteString("\t\t</property>\n")
		}
	case MethodMember:
		out.WriteString("\t\t<method name=\"")
		out.WriteString(m.Name)
		out.WriteString("\">\n")
		introspectAnnotations(m, out)
		introspectArguments(m, out)
		out.WriteString("\t\t</method>\n")
	case SignalMember:
		out.WriteString("\t\t<signal name=\"")
		out.WriteString(m.Name)
		out.WriteString("\">\n")
		introspectAnnotations(m, out)
		introspectArguments(m, out)
		out.WriteString("\t\t</signal>\n")
	}
}

func introspectArguments(m *Member, out *strings.Builder) {
	writeArg := func(a Argument, direction string) {
		out.WriteString("\t\t\t<arg type=\"")
		out.WriteString(a.Type)
		if a.Name != "" {
			out.WriteString("\" name=\"")
			out.WriteString(a.Name)
		}
		out.WriteString("\" direction=\"")
		out.WriteString(direction)
		out.WriteString("\"/>\n")
	}
	for _, a := range m.inArguments {
		writeArg(a, "in")
	}
	for _, a := range m.outArguments {
		writeArg(a, "out")
	}
}

func introspectAnnotations(m *Member, out *strings.Builder) {
	for _, name := range m.annotationOrder {
		out.WriteString("\t\t\t<annotation name=\"")
		out.WriteString(name)
		out.WriteString("\" value=\"")
		out.WriteString(m.annotations[name])
		out.WriteString("\"/>\n")
	}
}

// resolveProperty reads the leading interface and property name
// arguments common to Get and Set.
func resolveProperty(d *CallDetails) (*Member, error) {
	o := d.Binding.(*Object)

	ifaceName, err := d.Args.CheckString()
	if err != nil {
		return nil, err
	}
	b := o.boundInterface(ifaceName)
	if b == nil {
		return nil, &Error{errNameInterfaceNotFound,
			"The requested interface could not be found."}
	}
	d.Binding = b.data

	propName, err := d.Args.CheckString()
	if err != nil {
		return nil, err
	}
	property := b.iface.member(PropertyMember, propName)
	if property == nil {
		return nil, &Error{errNamePropertyNotFound,
			"The requested property could not be found."}
	}
	return property, nil
}

func getPropertyCallback(d *CallDetails) error {
	property, err := resolveProperty(d)
	if err != nil {
		return err
	}
	if !property.Readable() {
		return &Error{errNameWriteOnlyProperty,
			"The requested property is write only."}
	}
	if d.Reply == nil {
		return nil
	}

	m := d.Reply.Args()
	if err := m.AppendSignature("v"); err != nil {
		return err
	}
	if err := m.BeginVariant(Signature(property.propertyType)); err != nil {
		return err
	}
	d.PropertyMarshaller = m
	d.User1 = property.getData
	if err := property.getCallback(d); err != nil {
		return err
	}
	return m.EndVariant()
}

func getAllPropertiesCallback(d *CallDetails) error {
	o := d.Binding.(*Object)

	ifaceName, err := d.Args.CheckString()
	if err != nil {
		return err
	}
	b := o.boundInterface(ifaceName)
	if b == nil {
		return &Error{errNameInterfaceNotFound,
			"The requested interface could not be found."}
	}
	d.Binding = b.data
	if d.Reply == nil {
		return nil
	}

	m := d.Reply.Args()
	if err := m.AppendSignature("a{sv}"); err != nil {
		return err
	}
	if err := m.BeginArray(); err != nil {
		return err
	}
	for _, name := range b.iface.memberOrder {
		property := b.iface.members[name]
		if property.Type != PropertyMember || !property.Readable() {
			continue
		}
		m.BeginDictEntry()
		m.AppendString(property.Name)
		if err := m.BeginVariant(Signature(property.propertyType)); err != nil {
			return err
		}
		d.PropertyMarshaller = m
		d.User1 = property.getData
		if err := property.getCallback(d); err != nil {
			return err
		}
		if err := m.EndVariant(); err != nil {
			return err
		}
		if err := m.EndDictEntry(); err != nil {
			return err
		}
	}
	return m.EndArray()
}

func setPropertyCallback(d *CallDetails) error {
	property, err := resolveProperty(d)
	if err != nil {
		return err
	}
	if !property.Writable() {
		return &Error{errNameReadOnlyProperty,
			"The requested property is read only."}
	}

	sig, _, err := d.Args.CheckVariantBegin()
	if err != nil {
		return err
	}
	if sig != property.propertyType {
		return &Error{errNameInvalidArgument,
			"The property value has the wrong type."}
	}

	d.PropertyIterator = d.Args
	d.User1 = property.setData
	if err := property.setCallback(d); err != nil {
		return err
	}
	return d.Args.CheckVariantEnd()
}
