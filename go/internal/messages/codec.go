package messages

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrMalformed is returned when a frame is not a valid envelope.
var ErrMalformed = errors.New("malformed message")

type envelope struct {
	ID      uuid.UUID       `json:"id"`
	Version uint8           `json:"ver"`
	Msg     json.RawMessage `json:"msg"`
}

func (m OutboundMessage) MarshalJSON() ([]byte, error) {
	body, err := encodePayload(m.Payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{ID: m.ID, Version: m.Version, Msg: body})
}

func (m *OutboundMessage) UnmarshalJSON(data []byte) error {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	payload, err := decodeOutbound(env.Msg)
	if err != nil {
		return err
	}
	*m = OutboundMessage{ID: env.ID, Version: env.Version, Payload: payload}
	return nil
}

func (m InboundMessage) MarshalJSON() ([]byte, error) {
	body, err := encodePayload(m.Payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{ID: m.ID, Version: m.Version, Msg: body})
}

func (m *InboundMessage) UnmarshalJSON(data []byte) error {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	payload, err := decodeInbound(env.Msg)
	if err != nil {
		return err
	}
	*m = InboundMessage{ID: env.ID, Version: env.Version, Payload: payload}
	return nil
}

// Encode renders an outbound message as a wire frame.
func Encode(m OutboundMessage) ([]byte, error) {
	return json.Marshal(m)
}

// DecodeInbound parses a wire frame from the server. When the envelope parses
// but its payload does not, the returned message carries the id and version
// with a nil Payload alongside an ErrMalformed error, so the frame can still
// be acknowledged.
func DecodeInbound(frame []byte) (InboundMessage, error) {
	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return InboundMessage{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	m := InboundMessage{ID: env.ID, Version: env.Version}
	payload, err := decodeInbound(env.Msg)
	if err != nil {
		if errors.Is(err, ErrMalformed) {
			return m, err
		}
		return m, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	m.Payload = payload
	return m, nil
}

func encodePayload(payload any) ([]byte, error) {
	switch p := payload.(type) {
	case nil:
		return nil, fmt.Errorf("%w: empty payload", ErrMalformed)
	case NoOp:
		return json.Marshal(TagNoOp)
	case Ack:
		return tagged(TagAck, p.ID)
	case Subscribe:
		return tagged(TagSubscribe, p)
	case ApplicationStateReport:
		return tagged(TagApplicationState, p)
	case Unsubscribe:
		return tagged(TagCompetition, TagUnsubscribe)
	case Unknown:
		return p.Raw, nil
	case Mark, Summary, Penalty, Signal, Status, Lock, Trend, Reset, AlterStarter, LockUpdate:
		inner, err := tagged(p.(interface{ Tag() string }).Tag(), p)
		if err != nil {
			return nil, err
		}
		return tagged(TagCompetition, json.RawMessage(inner))
	default:
		return nil, fmt.Errorf("%w: cannot encode %T", ErrMalformed, payload)
	}
}

func decodeOutbound(data json.RawMessage) (Outbound, error) {
	tag, body, err := splitTag(data)
	if err != nil {
		return nil, err
	}

	switch tag {
	case TagNoOp:
		return NoOp{}, nil
	case TagAck:
		return decodeAck(body)
	case TagSubscribe:
		return decode[Subscribe](body)
	case TagApplicationState:
		return decode[ApplicationStateReport](body)
	case TagCompetition:
		sub, subBody, err := splitTag(body)
		if err != nil {
			return nil, err
		}
		switch sub {
		case TagUnsubscribe:
			return Unsubscribe{}, nil
		case TagMark:
			return decode[Mark](subBody)
		case TagSummary:
			return decode[Summary](subBody)
		case TagPenalty:
			return decode[Penalty](subBody)
		case TagSignal:
			return decode[Signal](subBody)
		case TagStatus:
			return decode[Status](subBody)
		case TagLock:
			return decode[Lock](subBody)
		}
		return Unknown{Name: TagCompetition + "." + sub, Raw: cloneBytes(data)}, nil
	default:
		return Unknown{Name: tag, Raw: cloneBytes(data)}, nil
	}
}

func decodeInbound(data json.RawMessage) (Inbound, error) {
	tag, body, err := splitTag(data)
	if err != nil {
		return nil, err
	}

	switch tag {
	case TagAck:
		return decodeAck(body)
	case TagApplicationState:
		return decode[ApplicationStateReport](body)
	case TagCompetition:
		sub, subBody, err := splitTag(body)
		if err != nil {
			return nil, err
		}
		switch sub {
		case TagUnsubscribe:
			return Unsubscribe{}, nil
		case TagTrend:
			return decode[Trend](subBody)
		case TagReset:
			return decode[Reset](subBody)
		case TagSignal:
			return decode[Signal](subBody)
		case TagAlterStarter:
			return decode[AlterStarter](subBody)
		case TagStatus:
			return decode[Status](subBody)
		case TagLock:
			return decode[LockUpdate](subBody)
		}
		return Unknown{Name: TagCompetition + "." + sub, Raw: cloneBytes(data)}, nil
	default:
		return Unknown{Name: tag, Raw: cloneBytes(data)}, nil
	}
}

func decodeAck(body json.RawMessage) (Ack, error) {
	var id uuid.UUID
	if err := json.Unmarshal(body, &id); err != nil {
		return Ack{}, fmt.Errorf("%w: ack: %v", ErrMalformed, err)
	}
	return Ack{ID: id}, nil
}

func decode[T any](body json.RawMessage) (T, error) {
	var v T
	if err := json.Unmarshal(body, &v); err != nil {
		return v, fmt.Errorf("%w: %T: %v", ErrMalformed, v, err)
	}
	return v, nil
}

func tagged(tag string, v any) ([]byte, error) {
	return json.Marshal(map[string]any{tag: v})
}

// splitTag reads an externally tagged value: either a bare string naming a
// unit variant, or an object with exactly one key.
func splitTag(data json.RawMessage) (string, json.RawMessage, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return "", nil, fmt.Errorf("%w: empty payload", ErrMalformed)
	}
	if data[0] == '"' {
		var tag string
		if err := json.Unmarshal(data, &tag); err != nil {
			return "", nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return tag, nil, nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(obj) != 1 {
		return "", nil, fmt.Errorf("%w: expected one tag, got %d", ErrMalformed, len(obj))
	}
	for tag, body := range obj {
		return tag, body, nil
	}
	return "", nil, nil
}

func cloneBytes(b []byte) []byte {
	return append([]byte(nil), b...)
}
