package relay

import (
	"encoding/json"
	"fmt"

	"github.com/oklog/ulid/v2"
)

// FrameType discriminates live-channel frames. The union is closed:
// unrecognized types are rejected at the boundary instead of being
// passed through as loose maps.
type FrameType string

const (
	FrameOffer   FrameType = "offer"
	FrameAnswer  FrameType = "answer"
	FrameChat    FrameType = "chat"
	FrameHangup  FrameType = "hangup"
	FrameReceipt FrameType = "receipt"
)

// Frame is one outbound live-channel message. Only the fields relevant
// to the frame type are set; ID is a per-frame ULID clients may use to
// deduplicate across reconnects.
type Frame struct {
	ID   string    `json:"id"`
	Type FrameType `json:"type"`
	From int64     `json:"from"`

	// offer / answer
	Payload string `json:"sdp,omitempty"`

	// chat / receipt
	MessageID int64  `json:"messageId,omitempty"`
	Content   string `json:"content,omitempty"`
	Read      bool   `json:"read,omitempty"`
}

func newFrame(t FrameType, from int64) Frame {
	return Frame{ID: ulid.Make().String(), Type: t, From: from}
}

// InboundFrame is a client-submitted frame on the live channel.
type InboundFrame struct {
	Type    FrameType `json:"type"`
	To      int64     `json:"to"`
	Content string    `json:"content,omitempty"`
}

// DecodeInbound parses and validates a client frame. Only chat and
// hangup may originate from the live channel; everything else goes
// through the HTTP surface.
func DecodeInbound(data []byte) (*InboundFrame, error) {
	var f InboundFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: malformed frame", ErrValidation)
	}
	switch f.Type {
	case FrameChat:
		if f.Content == "" {
			return nil, fmt.Errorf("%w: chat frame requires content", ErrValidation)
		}
	case FrameHangup:
		// no extra fields
	default:
		return nil, fmt.Errorf("%w: unsupported frame type %q", ErrValidation, f.Type)
	}
	if f.To <= 0 {
		return nil, fmt.Errorf("%w: frame requires a recipient", ErrValidation)
	}
	return &f, nil
}
