package adbus

import "testing"

// buildTestCall produces the wire form of a small method call with a
// string argument padding the message out to the wanted size.
func buildTestCall(t *testing.T, serial uint32, bodyFill int) []byte {
	t.Helper()
	msg := NewMethodCallMessage("com.example", "/p", "a.b", "M")
	msg.SetSerial(serial)
	fill := make([]byte, bodyFill)
	for i := range fill {
		fill[i] = 'a'
	}
	if err := msg.AppendArgs(string(fill)); err != nil {
		t.Fatal(err)
	}
	data, err := msg.Build()
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestFramerChunked(t *testing.T) {
	wire := buildTestCall(t, 1, 120)
	if len(wire) < 180 {
		t.Fatalf("test message too small: %d", len(wire))
	}

	var p StreamParser
	msg := new(Message)
	count := 0
	feed := func(chunk []byte) {
		for {
			rest, ok, err := p.Next(msg, chunk)
			if err != nil {
				t.Fatal(err)
			}
			if !ok {
				return
			}
			count++
			chunk = rest
		}
	}

	third := len(wire) / 3
	feed(wire[:third])
	if count != 0 {
		t.Fatalf("message produced after first chunk")
	}
	feed(wire[third : 2*third])
	if count != 0 {
		t.Fatalf("message produced after second chunk")
	}
	feed(wire[2*third:])
	if count != 1 {
		t.Fatalf("count = %d after final chunk, want 1", count)
	}
	if msg.Member != "M" || msg.Serial() != 1 {
		t.Errorf("parsed message %q serial %d", msg.Member, msg.Serial())
	}
}

func TestFramerCoalesced(t *testing.T) {
	// Two whole messages plus the start of a third in one chunk.
	m1 := buildTestCall(t, 1, 10)
	m2 := buildTestCall(t, 2, 20)
	m3 := buildTestCall(t, 3, 30)
	chunk := append(append(append([]byte(nil), m1...), m2...), m3[:7]...)

	var p StreamParser
	var serials []uint32
	msg := new(Message)
	for {
		rest, ok, err := p.Next(msg, chunk)
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			break
		}
		serials = append(serials, msg.Serial())
		chunk = rest
		msg = new(Message)
	}
	if len(serials) != 2 || serials[0] != 1 || serials[1] != 2 {
		t.Fatalf("serials = %v", serials)
	}

	// The rest of the third message arrives.
	chunk = m3[7:]
	rest, ok, err := p.Next(msg, chunk)
	if err != nil || !ok {
		t.Fatalf("Next = %v %v", ok, err)
	}
	if msg.Serial() != 3 {
		t.Errorf("serial = %d", msg.Serial())
	}
	if len(rest) != 0 {
		t.Errorf("unexpected trailing data: %d bytes", len(rest))
	}
}

func TestFramerZeroCopy(t *testing.T) {
	wire := buildTestCall(t, 1, 5)
	var p StreamParser
	msg := new(Message)
	rest, ok, err := p.Next(msg, wire)
	if err != nil || !ok {
		t.Fatalf("Next = %v %v", ok, err)
	}
	if len(rest) != 0 || len(p.buf) != 0 {
		t.Errorf("rest %d buffered %d", len(rest), len(p.buf))
	}
}

func TestFramerCorrupt(t *testing.T) {
	bad := make([]byte, 32)
	bad[0] = 'x'
	var p StreamParser
	msg := new(Message)
	if _, _, err := p.Next(msg, bad); err != ErrInvalidData {
		t.Fatalf("Next on garbage = %v, want ErrInvalidData", err)
	}
	// The stream is corrupt from now on.
	if _, _, err := p.Next(msg, nil); err != ErrStreamCorrupt {
		t.Fatalf("Next after corruption = %v, want ErrStreamCorrupt", err)
	}
}
