package protocol_test

import (
	"errors"
	"testing"

	"github.com/omochice/socketchat/pkg/protocol"
)

func TestEnvelope_Encode(t *testing.T) {
	tests := []struct {
		name    string
		env     protocol.Envelope
		wantErr bool
	}{
		{
			name:    "encode chat message",
			env:     protocol.NewMessage("Hello, World!"),
			wantErr: false,
		},
		{
			name:    "encode empty chat message",
			env:     protocol.NewMessage(""),
			wantErr: false,
		},
		{
			name:    "encode other event",
			env:     protocol.Envelope{Event: "typing"},
			wantErr: false,
		},
		{
			name:    "missing event",
			env:     protocol.Envelope{Content: "orphan"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := tt.env.Encode()
			if (err != nil) != tt.wantErr {
				t.Errorf("Envelope.Encode() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && len(data) == 0 {
				t.Error("Envelope.Encode() returned empty data")
			}
		})
	}
}

func TestEnvelope_Decode(t *testing.T) {
	encode := func(env protocol.Envelope) []byte {
		data, err := env.Encode()
		if err != nil {
			t.Fatalf("Encode() error = %v", err)
		}
		return data
	}

	tests := []struct {
		name    string
		data    []byte
		want    protocol.Envelope
		wantErr error
	}{
		{
			name: "chat message",
			data: encode(protocol.NewMessage("héllo 👋")),
			want: protocol.Envelope{Event: protocol.MessageEvent, Content: "héllo 👋"},
		},
		{
			name: "empty content",
			data: encode(protocol.NewMessage("")),
			want: protocol.Envelope{Event: protocol.MessageEvent},
		},
		{
			name:    "empty frame",
			data:    nil,
			wantErr: protocol.ErrMissingEvent,
		},
		{
			name:    "truncated frame",
			data:    encode(protocol.NewMessage("cut short"))[:5],
			wantErr: errAny,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got protocol.Envelope
			err := got.Decode(tt.data)
			if tt.wantErr != nil {
				if err == nil {
					t.Fatal("Envelope.Decode() error = nil, want error")
				}
				if tt.wantErr != errAny && !errors.Is(err, tt.wantErr) {
					t.Errorf("Envelope.Decode() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Envelope.Decode() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Envelope.Decode() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestEnvelope_IsMessage(t *testing.T) {
	msg := protocol.NewMessage("x")
	if !msg.IsMessage() {
		t.Error("NewMessage().IsMessage() = false, want true")
	}

	other := protocol.Envelope{Event: "typing"}
	if other.IsMessage() {
		t.Error("IsMessage() = true for typing event, want false")
	}
}

var errAny = errors.New("any error")
