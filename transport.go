package adbus

import (
	"net"
	"net/url"
	"os"
	"strings"

	"github.com/pkg/errors"
)

type transport interface {
	Dial() (net.Conn, error)
}

// newTransport parses a bus address of the form
// "type:key=value,key=value,…" and returns the matching dialer.
func newTransport(address string) (transport, error) {
	sep := strings.Index(address, ":")
	if sep < 0 {
		return nil, errors.Errorf("malformed bus address %q", address)
	}
	transportType := address[:sep]
	options := make(map[string]string)
	for _, option := range strings.Split(address[sep+1:], ",") {
		pair := strings.SplitN(option, "=", 2)
		if len(pair) != 2 {
			return nil, errors.Errorf("malformed bus address option %q", option)
		}
		key, err := url.QueryUnescape(pair[0])
		if err != nil {
			return nil, err
		}
		value, err := url.QueryUnescape(pair[1])
		if err != nil {
			return nil, err
		}
		options[key] = value
	}

	switch transportType {
	case "unix":
		if abstract, ok := options["abstract"]; ok {
			return &unixTransport{"@" + abstract}, nil
		} else if path, ok := options["path"]; ok {
			return &unixTransport{path}, nil
		} else if file, ok := options["file"]; ok {
			return &unixTransport{file}, nil
		}
		return nil, errors.New("unix transport requires 'path', 'file' or 'abstract' options")
	case "tcp", "nonce-tcp":
		address := options["host"] + ":" + options["port"]
		var family string
		switch options["family"] {
		case "", "ipv4":
			family = "tcp4"
		case "ipv6":
			family = "tcp6"
		default:
			return nil, errors.Errorf("unknown family for tcp transport: %q", options["family"])
		}
		if transportType == "tcp" {
			return &tcpTransport{address, family}, nil
		}
		return &nonceTcpTransport{address, family, options["noncefile"]}, nil
	}

	return nil, errors.Errorf("unhandled transport type %q", transportType)
}

type unixTransport struct {
	Address string
}

func (trans *unixTransport) Dial() (net.Conn, error) {
	return net.Dial("unix", trans.Address)
}

type tcpTransport struct {
	Address, Family string
}

func (trans *tcpTransport) Dial() (net.Conn, error) {
	return net.Dial(trans.Family, trans.Address)
}

type nonceTcpTransport struct {
	Address, Family, NonceFile string
}

func (trans *nonceTcpTransport) Dial() (net.Conn, error) {
	data, err := os.ReadFile(trans.NonceFile)
	if err != nil {
		return nil, err
	}
	conn, err := net.Dial(trans.Family, trans.Address)
	if err != nil {
		return nil, err
	}
	// Write the nonce data to the socket
	// writing at this point does not need to be synced as the connection
	// is not shared at this point.
	if _, err := conn.Write(data); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}
