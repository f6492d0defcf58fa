package ipc

import (
	"bytes"
	"encoding/json"
	"math/rand"
	"reflect"
	"testing"
)

func mustEncode(t *testing.T, msg Message) []byte {
	t.Helper()
	b, err := EncodeMessage(msg)
	if err != nil {
		t.Fatalf("EncodeMessage() error = %v", err)
	}
	return b
}

func TestEncodeMessage_SingleLine(t *testing.T) {
	// Payload strings with embedded newlines must be escaped so the record
	// itself never contains a raw delimiter byte.
	payload, _ := json.Marshal("line one\nline two")
	b := mustEncode(t, Message{ID: "a", Type: TypeRequest, Payload: payload})

	if b[len(b)-1] != '\n' {
		t.Fatalf("encoded record does not end with newline: %q", b)
	}
	if bytes.Count(b, []byte{'\n'}) != 1 {
		t.Errorf("encoded record contains interior newline: %q", b)
	}
}

func TestDecoder_Feed(t *testing.T) {
	valid := mustEncode(t, Message{ID: "1", Type: TypeRequest, Payload: json.RawMessage(`{"k":"v"}`)})

	tests := []struct {
		name    string
		input   []byte
		wantIDs []string
	}{
		{
			name:    "single complete record",
			input:   valid,
			wantIDs: []string{"1"},
		},
		{
			name: "multiple records in one chunk",
			input: bytes.Join([][]byte{
				mustEncode(t, Message{ID: "a", Type: TypeRequest}),
				mustEncode(t, Message{ID: "b", Type: TypeResponse}),
				mustEncode(t, Message{ID: "c", Type: TypeError}),
			}, nil),
			wantIDs: []string{"a", "b", "c"},
		},
		{
			name:    "malformed record skipped",
			input:   append([]byte("{not-json}\n"), valid...),
			wantIDs: []string{"1"},
		},
		{
			name:    "empty lines skipped",
			input:   append([]byte("\n\n"), valid...),
			wantIDs: []string{"1"},
		},
		{
			name:    "incomplete record retained",
			input:   valid[:len(valid)-5],
			wantIDs: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var dec Decoder
			msgs := dec.Feed(tt.input)

			var ids []string
			for _, m := range msgs {
				ids = append(ids, m.ID)
			}
			if !reflect.DeepEqual(ids, tt.wantIDs) {
				t.Errorf("Feed() ids = %v, want %v", ids, tt.wantIDs)
			}
		})
	}
}

func TestDecoder_PartialThenComplete(t *testing.T) {
	valid := mustEncode(t, Message{ID: "x", Type: TypeResponse, Payload: json.RawMessage(`42`)})
	var dec Decoder

	if msgs := dec.Feed(valid[:3]); len(msgs) != 0 {
		t.Fatalf("Feed(partial) = %d messages, want 0", len(msgs))
	}
	msgs := dec.Feed(valid[3:])
	if len(msgs) != 1 || msgs[0].ID != "x" {
		t.Fatalf("Feed(rest) = %v, want one message with id x", msgs)
	}
	if string(msgs[0].Payload) != "42" {
		t.Errorf("payload = %s, want 42", msgs[0].Payload)
	}
}

func TestDecoder_ArbitrarySplitPoints(t *testing.T) {
	// Feeding a stream in random chunks must decode the same messages as
	// feeding it whole.
	var stream []byte
	var wantIDs []string
	for i := 0; i < 25; i++ {
		id := string(rune('a' + i%26))
		payload, _ := json.Marshal(map[string]int{"seq": i})
		stream = append(stream, mustEncode(t, Message{ID: id, Type: TypeRequest, Payload: payload})...)
		wantIDs = append(wantIDs, id)
	}

	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 50; trial++ {
		var dec Decoder
		var gotIDs []string

		rest := stream
		for len(rest) > 0 {
			n := 1 + rng.Intn(len(rest))
			for _, m := range dec.Feed(rest[:n]) {
				gotIDs = append(gotIDs, m.ID)
			}
			rest = rest[n:]
		}

		if !reflect.DeepEqual(gotIDs, wantIDs) {
			t.Fatalf("trial %d: split decode ids = %v, want %v", trial, gotIDs, wantIDs)
		}
	}
}

func TestDecoder_Reset(t *testing.T) {
	valid := mustEncode(t, Message{ID: "y", Type: TypeRequest})

	var dec Decoder
	dec.Feed(valid[:4])
	dec.Reset()

	// The partial prefix is gone; a fresh complete record still decodes.
	msgs := dec.Feed(valid)
	if len(msgs) != 1 || msgs[0].ID != "y" {
		t.Fatalf("Feed after Reset = %v, want one message with id y", msgs)
	}
}
