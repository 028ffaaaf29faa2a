package relay

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestDecodeInboundChat(t *testing.T) {
	f, err := DecodeInbound([]byte(`{"type":"chat","to":7,"content":"hello"}`))
	if err != nil {
		t.Fatal(err)
	}
	if f.Type != FrameChat || f.To != 7 || f.Content != "hello" {
		t.Fatalf("unexpected frame %+v", f)
	}
}

func TestDecodeInboundHangup(t *testing.T) {
	f, err := DecodeInbound([]byte(`{"type":"hangup","to":3}`))
	if err != nil {
		t.Fatal(err)
	}
	if f.Type != FrameHangup || f.To != 3 {
		t.Fatalf("unexpected frame %+v", f)
	}
}

func TestDecodeInboundRejects(t *testing.T) {
	cases := map[string]string{
		"malformed json":   `{"type":`,
		"unknown type":     `{"type":"offer","to":3}`,
		"empty type":       `{"to":3}`,
		"chat no content":  `{"type":"chat","to":3}`,
		"missing to":       `{"type":"hangup"}`,
		"negative to":      `{"type":"chat","to":-1,"content":"x"}`,
		"receipt from peer": `{"type":"receipt","to":3}`,
	}
	for name, raw := range cases {
		if _, err := DecodeInbound([]byte(raw)); err == nil {
			t.Errorf("%s: expected error", name)
		} else if !errors.Is(err, ErrValidation) {
			t.Errorf("%s: expected validation error, got %v", name, err)
		}
	}
}

func TestFrameOmitsEmptyFields(t *testing.T) {
	frame := newFrame(FrameHangup, 4)
	data, err := json.Marshal(frame)
	if err != nil {
		t.Fatal(err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	for _, field := range []string{"sdp", "messageId", "content", "read"} {
		if _, ok := decoded[field]; ok {
			t.Errorf("hangup frame should omit %q", field)
		}
	}
	if decoded["type"] != "hangup" || decoded["from"] != float64(4) {
		t.Fatalf("unexpected frame %v", decoded)
	}
	if decoded["id"] == "" {
		t.Fatal("frame id missing")
	}
}
