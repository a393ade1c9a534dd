package session

import (
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
	"google.golang.org/protobuf/encoding/protowire"
)

// ErrMalformed is returned when a payload cannot be decoded.
var ErrMalformed = errors.New("malformed session payload")

// Field numbers. They are part of the wire format and must not be reused.
const (
	valueKind   protowire.Number = 1
	valueBool   protowire.Number = 2
	valueInt    protowire.Number = 3
	valueString protowire.Number = 4

	msgKind      protowire.Number = 1
	msgOutcome   protowire.Number = 2
	msgFrom      protowire.Number = 3
	msgRequester protowire.Number = 4
	msgTarget    protowire.Number = 5
	msgReason    protowire.Number = 6
	msgValue     protowire.Number = 7

	objID        protowire.Number = 1
	objKind      protowire.Number = 2
	objX         protowire.Number = 3
	objY         protowire.Number = 4
	objZ         protowire.Number = 5
	objDestroyed protowire.Number = 6

	evKind        protowire.Number = 1
	evTo          protowire.Number = 2
	evScopeKind   protowire.Number = 3
	evScopeID     protowire.Number = 4
	evKey         protowire.Number = 5
	evValue       protowire.Number = 6
	evMessage     protowire.Number = 7
	evAuthority   protowire.Number = 8
	evParticipant protowire.Number = 9
	evJoined      protowire.Number = 10
	evObject      protowire.Number = 11
)

// EncodeValue serializes v.
func EncodeValue(v Value) []byte {
	return appendValue(nil, v)
}

// DecodeValue parses a payload produced by EncodeValue.
func DecodeValue(b []byte) (Value, error) {
	var v Value
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, field []byte) (int, error) {
		switch {
		case num == valueKind && typ == protowire.VarintType:
			x, n := protowire.ConsumeVarint(field)
			v.kind = ValueKind(x)
			return n, nil
		case num == valueBool && typ == protowire.VarintType:
			x, n := protowire.ConsumeVarint(field)
			v.b = protowire.DecodeBool(x)
			return n, nil
		case num == valueInt && typ == protowire.VarintType:
			x, n := protowire.ConsumeVarint(field)
			v.i = protowire.DecodeZigZag(x)
			return n, nil
		case num == valueString && typ == protowire.BytesType:
			s, n := protowire.ConsumeString(field)
			v.s = s
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, field), nil
	})
	if err != nil {
		return Value{}, err
	}
	if v.kind > KindString {
		return Value{}, fmt.Errorf("%w: value kind %d", ErrMalformed, v.kind)
	}
	return v, nil
}

// EncodeMessage serializes m.
func EncodeMessage(m Message) []byte {
	return appendMessage(nil, m)
}

// DecodeMessage parses a payload produced by EncodeMessage.
func DecodeMessage(b []byte) (Message, error) {
	var m Message
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, field []byte) (int, error) {
		switch {
		case num == msgKind && typ == protowire.BytesType:
			s, n := protowire.ConsumeString(field)
			m.Kind = s
			return n, nil
		case num == msgOutcome && typ == protowire.VarintType:
			x, n := protowire.ConsumeVarint(field)
			m.Outcome = Outcome(x)
			return n, nil
		case num == msgFrom && typ == protowire.BytesType:
			return consumeUUID(field, &m.From)
		case num == msgRequester && typ == protowire.BytesType:
			return consumeUUID(field, &m.Requester)
		case num == msgTarget && typ == protowire.BytesType:
			s, n := protowire.ConsumeString(field)
			m.Target = s
			return n, nil
		case num == msgReason && typ == protowire.BytesType:
			s, n := protowire.ConsumeString(field)
			m.Reason = s
			return n, nil
		case num == msgValue && typ == protowire.BytesType:
			return consumeNested(field, func(b []byte) (err error) {
				m.Value, err = DecodeValue(b)
				return err
			})
		}
		return protowire.ConsumeFieldValue(num, typ, field), nil
	})
	if err != nil {
		return Message{}, err
	}
	return m, nil
}

// EncodeObject serializes o.
func EncodeObject(o SharedObject) []byte {
	return appendObject(nil, o)
}

// DecodeObject parses a payload produced by EncodeObject.
func DecodeObject(b []byte) (SharedObject, error) {
	var o SharedObject
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, field []byte) (int, error) {
		switch {
		case num == objID && typ == protowire.BytesType:
			return consumeUUID(field, &o.ID)
		case num == objKind && typ == protowire.BytesType:
			s, n := protowire.ConsumeString(field)
			o.Kind = s
			return n, nil
		case num == objX && typ == protowire.Fixed64Type:
			return consumeFloat(field, &o.Position.X)
		case num == objY && typ == protowire.Fixed64Type:
			return consumeFloat(field, &o.Position.Y)
		case num == objZ && typ == protowire.Fixed64Type:
			return consumeFloat(field, &o.Position.Z)
		case num == objDestroyed && typ == protowire.VarintType:
			x, n := protowire.ConsumeVarint(field)
			o.Destroyed = protowire.DecodeBool(x)
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, field), nil
	})
	if err != nil {
		return SharedObject{}, err
	}
	return o, nil
}

// EncodeEvent serializes e.
func EncodeEvent(e Event) []byte {
	b := protowire.AppendTag(nil, evKind, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(e.Kind))
	b = appendUUID(b, evTo, e.To)

	switch e.Kind {
	case EventProperty:
		b = protowire.AppendTag(b, evScopeKind, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(e.Property.Scope.Kind))
		b = appendUUID(b, evScopeID, e.Property.Scope.Participant)
		b = protowire.AppendTag(b, evKey, protowire.BytesType)
		b = protowire.AppendString(b, e.Property.Key)
		b = protowire.AppendTag(b, evValue, protowire.BytesType)
		b = protowire.AppendBytes(b, EncodeValue(e.Property.Value))
	case EventMessage:
		b = protowire.AppendTag(b, evMessage, protowire.BytesType)
		b = protowire.AppendBytes(b, EncodeMessage(e.Message))
	case EventAuthority:
		b = appendUUID(b, evAuthority, e.Authority)
	case EventMembership:
		b = appendUUID(b, evParticipant, e.Participant)
		b = protowire.AppendTag(b, evJoined, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeBool(e.Joined))
	case EventObject:
		b = protowire.AppendTag(b, evObject, protowire.BytesType)
		b = protowire.AppendBytes(b, EncodeObject(e.Object))
	}
	return b
}

// DecodeEvent parses a payload produced by EncodeEvent.
func DecodeEvent(b []byte) (Event, error) {
	var e Event
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, field []byte) (int, error) {
		switch {
		case num == evKind && typ == protowire.VarintType:
			x, n := protowire.ConsumeVarint(field)
			e.Kind = EventKind(x)
			return n, nil
		case num == evTo && typ == protowire.BytesType:
			return consumeUUID(field, &e.To)
		case num == evScopeKind && typ == protowire.VarintType:
			x, n := protowire.ConsumeVarint(field)
			e.Property.Scope.Kind = ScopeKind(x)
			return n, nil
		case num == evScopeID && typ == protowire.BytesType:
			return consumeUUID(field, &e.Property.Scope.Participant)
		case num == evKey && typ == protowire.BytesType:
			s, n := protowire.ConsumeString(field)
			e.Property.Key = s
			return n, nil
		case num == evValue && typ == protowire.BytesType:
			return consumeNested(field, func(b []byte) (err error) {
				e.Property.Value, err = DecodeValue(b)
				return err
			})
		case num == evMessage && typ == protowire.BytesType:
			return consumeNested(field, func(b []byte) (err error) {
				e.Message, err = DecodeMessage(b)
				return err
			})
		case num == evAuthority && typ == protowire.BytesType:
			return consumeUUID(field, &e.Authority)
		case num == evParticipant && typ == protowire.BytesType:
			return consumeUUID(field, &e.Participant)
		case num == evJoined && typ == protowire.VarintType:
			x, n := protowire.ConsumeVarint(field)
			e.Joined = protowire.DecodeBool(x)
			return n, nil
		case num == evObject && typ == protowire.BytesType:
			return consumeNested(field, func(b []byte) (err error) {
				e.Object, err = DecodeObject(b)
				return err
			})
		}
		return protowire.ConsumeFieldValue(num, typ, field), nil
	})
	if err != nil {
		return Event{}, err
	}
	if e.Kind < EventProperty || e.Kind > EventObject {
		return Event{}, fmt.Errorf("%w: event kind %d", ErrMalformed, e.Kind)
	}
	return e, nil
}

func appendValue(b []byte, v Value) []byte {
	b = protowire.AppendTag(b, valueKind, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(v.kind))
	switch v.kind {
	case KindBool:
		b = protowire.AppendTag(b, valueBool, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeBool(v.b))
	case KindInt:
		b = protowire.AppendTag(b, valueInt, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeZigZag(v.i))
	case KindString:
		b = protowire.AppendTag(b, valueString, protowire.BytesType)
		b = protowire.AppendString(b, v.s)
	}
	return b
}

func appendMessage(b []byte, m Message) []byte {
	b = protowire.AppendTag(b, msgKind, protowire.BytesType)
	b = protowire.AppendString(b, m.Kind)
	b = protowire.AppendTag(b, msgOutcome, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.Outcome))
	b = appendUUID(b, msgFrom, m.From)
	b = appendUUID(b, msgRequester, m.Requester)
	if m.Target != "" {
		b = protowire.AppendTag(b, msgTarget, protowire.BytesType)
		b = protowire.AppendString(b, m.Target)
	}
	if m.Reason != "" {
		b = protowire.AppendTag(b, msgReason, protowire.BytesType)
		b = protowire.AppendString(b, m.Reason)
	}
	if !m.Value.IsZero() {
		b = protowire.AppendTag(b, msgValue, protowire.BytesType)
		b = protowire.AppendBytes(b, EncodeValue(m.Value))
	}
	return b
}

func appendObject(b []byte, o SharedObject) []byte {
	b = appendUUID(b, objID, o.ID)
	b = protowire.AppendTag(b, objKind, protowire.BytesType)
	b = protowire.AppendString(b, o.Kind)
	b = protowire.AppendTag(b, objX, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, math.Float64bits(o.Position.X))
	b = protowire.AppendTag(b, objY, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, math.Float64bits(o.Position.Y))
	b = protowire.AppendTag(b, objZ, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, math.Float64bits(o.Position.Z))
	if o.Destroyed {
		b = protowire.AppendTag(b, objDestroyed, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeBool(true))
	}
	return b
}

func appendUUID(b []byte, num protowire.Number, id uuid.UUID) []byte {
	if id == uuid.Nil {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, id[:])
}

// walkFields calls fn for every field in b. fn returns how many bytes of the
// field value it consumed, or a negative protowire error code.
func walkFields(b []byte, fn func(protowire.Number, protowire.Type, []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]

		m, err := fn(num, typ, b)
		if err != nil {
			return err
		}
		if m < 0 {
			return fmt.Errorf("%w: field %d: %v", ErrMalformed, num, protowire.ParseError(m))
		}
		b = b[m:]
	}
	return nil
}

func consumeUUID(b []byte, dst *uuid.UUID) (int, error) {
	raw, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return n, nil
	}
	id, err := uuid.FromBytes(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	*dst = id
	return n, nil
}

func consumeFloat(b []byte, dst *float64) (int, error) {
	x, n := protowire.ConsumeFixed64(b)
	if n < 0 {
		return n, nil
	}
	*dst = math.Float64frombits(x)
	return n, nil
}

func consumeNested(b []byte, decode func([]byte) error) (int, error) {
	raw, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return n, nil
	}
	if err := decode(raw); err != nil {
		return 0, err
	}
	return n, nil
}
