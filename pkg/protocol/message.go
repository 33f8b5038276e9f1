// Package protocol defines the wire envelope exchanged with the chat endpoint.
package protocol

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// MessageEvent is the event name carried by chat text messages.
const MessageEvent = "chat_message"

// Field numbers of the envelope on the wire.
const (
	fieldEvent   protowire.Number = 1
	fieldContent protowire.Number = 2
)

// ErrMissingEvent is returned when an envelope has no event name.
var ErrMissingEvent = errors.New("envelope has no event name")

// Envelope is a named event with a text payload.
type Envelope struct {
	Event   string
	Content string
}

// NewMessage returns a chat_message envelope carrying content.
func NewMessage(content string) Envelope {
	return Envelope{Event: MessageEvent, Content: content}
}

// IsMessage reports whether the envelope carries a chat message.
func (e *Envelope) IsMessage() bool {
	return e.Event == MessageEvent
}

// Encode encodes the envelope using the protobuf wire format.
func (e *Envelope) Encode() ([]byte, error) {
	if e.Event == "" {
		return nil, fmt.Errorf("failed to encode envelope: %w", ErrMissingEvent)
	}

	b := make([]byte, 0, len(e.Event)+len(e.Content)+8)
	b = protowire.AppendTag(b, fieldEvent, protowire.BytesType)
	b = protowire.AppendString(b, e.Event)
	if e.Content != "" {
		b = protowire.AppendTag(b, fieldContent, protowire.BytesType)
		b = protowire.AppendString(b, e.Content)
	}
	return b, nil
}

// Decode decodes protobuf wire bytes into the envelope.
// Unknown fields are skipped so newer peers can add fields.
func (e *Envelope) Decode(data []byte) error {
	var env Envelope
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return fmt.Errorf("failed to decode envelope: %w", protowire.ParseError(n))
		}
		data = data[n:]

		switch {
		case num == fieldEvent && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return fmt.Errorf("failed to decode event: %w", protowire.ParseError(n))
			}
			env.Event = v
			data = data[n:]
		case num == fieldContent && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return fmt.Errorf("failed to decode content: %w", protowire.ParseError(n))
			}
			env.Content = v
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return fmt.Errorf("failed to skip field %d: %w", num, protowire.ParseError(n))
			}
			data = data[n:]
		}
	}

	if env.Event == "" {
		return fmt.Errorf("failed to decode envelope: %w", ErrMissingEvent)
	}
	*e = env
	return nil
}
