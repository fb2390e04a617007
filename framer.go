package adbus

// StreamParser extracts whole messages from a byte stream that may
// deliver partial or coalesced messages.  When the internal buffer is
// empty and the caller's chunk already holds a full message, the
// message is parsed straight out of the caller's buffer without
// copying.
type StreamParser struct {
	buf     []byte
	corrupt bool
}

// fill copies bytes from *data into the internal buffer until it holds
// needed bytes.  It reports whether enough data was available.
func (p *StreamParser) fill(needed int, data *[]byte) bool {
	toAdd := needed - len(p.buf)
	if toAdd > len(*data) {
		p.buf = append(p.buf, *data...)
		*data = nil
		return false
	}
	if toAdd > 0 {
		p.buf = append(p.buf, (*data)[:toAdd]...)
		*data = (*data)[toAdd:]
	}
	return true
}

// Next extracts the next complete message from data into msg.  It
// returns the unconsumed remainder of data and whether a message was
// produced; call it again with the remainder until ok is false, which
// signals that more input is needed.
func (p *StreamParser) Next(msg *Message, data []byte) (remaining []byte, ok bool, err error) {
	if p.corrupt {
		return nil, false, ErrStreamCorrupt
	}

	if len(p.buf) > 0 {
		// Top up the buffer until the next message size is known,
		// then until the whole message is present.
		if !p.fill(extendedHeaderSize, &data) {
			return data, false, nil
		}
		size := NextMessageSize(p.buf)
		if !p.fill(size, &data) {
			return data, false, nil
		}
		wire := make([]byte, size)
		copy(wire, p.buf)
		p.buf = p.buf[:copy(p.buf, p.buf[size:])]
		if err := msg.SetData(wire); err != nil {
			p.corrupt = true
			return nil, false, err
		}
		return data, true, nil
	}

	size := NextMessageSize(data)
	if size == 0 || size > len(data) {
		p.buf = append(p.buf, data...)
		return nil, false, nil
	}
	if err := msg.SetData(data[:size]); err != nil {
		p.corrupt = true
		return nil, false, err
	}
	return data[size:], true, nil
}
