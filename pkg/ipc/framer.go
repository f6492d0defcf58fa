package ipc

import (
	"bytes"
	"encoding/json"
)

// Decoder splits a byte stream into Messages. Bytes are accumulated until a
// newline completes a record; the trailing fragment is kept until more data
// arrives. A record that fails to parse is dropped without disturbing the
// rest of the stream.
//
// A Decoder is owned by a single connection and is not safe for concurrent
// use.
type Decoder struct {
	buf []byte
}

// Feed appends data to the buffer and returns every message completed by it.
// Feeding a stream in arbitrary chunks yields the same messages as feeding
// it whole.
func (d *Decoder) Feed(data []byte) []Message {
	d.buf = append(d.buf, data...)

	var msgs []Message
	for {
		i := bytes.IndexByte(d.buf, '\n')
		if i < 0 {
			return msgs
		}
		line := d.buf[:i]
		d.buf = d.buf[i+1:]
		if len(line) == 0 {
			continue
		}

		var msg Message
		if err := json.Unmarshal(line, &msg); err != nil {
			continue
		}
		msgs = append(msgs, msg)
	}
}

// Reset discards any buffered partial record.
func (d *Decoder) Reset() {
	d.buf = nil
}
