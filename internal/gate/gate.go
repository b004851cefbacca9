// Package gate decodes raw broker payloads into InboundMessages and pushes
// them onto the message stream. Malformed payloads are logged and dropped;
// they never reach consumers and never affect the connection.
package gate

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"mqttaction/internal/metrics"
	"mqttaction/internal/stream"
	"mqttaction/pkg/types"
)

// ErrMalformedPayload is returned by Decode for anything that is not a JSON
// object carrying a string "text" and an integer "timestamp".
var ErrMalformedPayload = errors.New("gate: malformed payload")

// maxLoggedPayload bounds how much of a bad payload ends up in the log.
const maxLoggedPayload = 256

// wireMessage mirrors the payload; pointers distinguish missing from zero.
type wireMessage struct {
	Text      *string         `json:"text"`
	Timestamp json.RawMessage `json:"timestamp"`
}

// Decode parses a UTF-8 JSON payload. Unknown fields are ignored; a missing
// field, a wrong type or a non-integer timestamp is an error.
func Decode(payload []byte) (types.InboundMessage, error) {
	if !utf8.Valid(payload) {
		return types.InboundMessage{}, fmt.Errorf("%w: not valid UTF-8", ErrMalformedPayload)
	}

	dec := json.NewDecoder(bytes.NewReader(payload))

	var wire wireMessage
	if err := dec.Decode(&wire); err != nil {
		return types.InboundMessage{}, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	if dec.More() {
		return types.InboundMessage{}, fmt.Errorf("%w: trailing data after object", ErrMalformedPayload)
	}
	if wire.Text == nil {
		return types.InboundMessage{}, fmt.Errorf("%w: missing field \"text\"", ErrMalformedPayload)
	}
	if len(wire.Timestamp) == 0 || bytes.Equal(wire.Timestamp, []byte("null")) {
		return types.InboundMessage{}, fmt.Errorf("%w: missing field \"timestamp\"", ErrMalformedPayload)
	}

	// Unmarshalling into int64 rejects strings, fractions and overflow
	var ts int64
	if err := json.Unmarshal(wire.Timestamp, &ts); err != nil {
		return types.InboundMessage{}, fmt.Errorf("%w: timestamp %s is not an integer", ErrMalformedPayload, truncate(wire.Timestamp))
	}

	return types.InboundMessage{Text: *wire.Text, Timestamp: ts}, nil
}

// Encode renders msg in the wire format.
func Encode(msg types.InboundMessage) ([]byte, error) {
	return json.Marshal(msg)
}

// Gate turns payloads into messages on a conflated stream.
type Gate struct {
	messages *stream.Stream[types.InboundMessage]
	metrics  metrics.Recorder
	logger   zerolog.Logger
}

// New returns a gate publishing to messages.
func New(messages *stream.Stream[types.InboundMessage], rec metrics.Recorder, logger zerolog.Logger) *Gate {
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &Gate{messages: messages, metrics: rec, logger: logger}
}

// Handle decodes one payload and publishes it. It never blocks on consumers.
// The signature matches mqtt.MessageHandler.
func (g *Gate) Handle(topic string, payload []byte) {
	msg, err := Decode(payload)
	if err != nil {
		g.metrics.Received(false)
		g.logger.Error().
			Err(err).
			Str("event", "gate.decode_failed").
			Str("topic", topic).
			Str("payload", truncate(payload)).
			Msg("dropping malformed payload")
		return
	}

	g.metrics.Received(true)
	g.logger.Debug().
		Str("event", "gate.message").
		Str("topic", topic).
		Int64("timestamp", msg.Timestamp).
		Msg("message decoded")
	g.messages.Publish(msg)
}

func truncate(payload []byte) string {
	if len(payload) <= maxLoggedPayload {
		return string(payload)
	}
	return string(payload[:maxLoggedPayload]) + "..."
}
