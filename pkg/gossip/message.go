package gossip

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// MaxDatagramSize bounds an encoded envelope; there is no fragmentation.
const MaxDatagramSize = 2048

// Field numbers of the envelope on the wire. The layout is the protobuf
// encoding of
//
//	message GossipEnvelope {
//	  uint64 msg_id    = 1;
//	  uint64 sender_id = 2;
//	  bytes  payload   = 3;
//	}
const (
	fieldMessageID protowire.Number = 1
	fieldSenderID  protowire.Number = 2
	fieldPayload   protowire.Number = 3
)

// Envelope is the only message exchanged between nodes. MessageID is
// derived once by the origin (see MessageID) and carried unchanged by relays.
type Envelope struct {
	MessageID uint64
	SenderID  uint64
	Payload   []byte
}

// MarshalAppend appends the wire encoding of e to b. Zero-valued fields are
// omitted as in proto3.
func (e Envelope) MarshalAppend(b []byte) []byte {
	if e.MessageID != 0 {
		b = protowire.AppendTag(b, fieldMessageID, protowire.VarintType)
		b = protowire.AppendVarint(b, e.MessageID)
	}
	if e.SenderID != 0 {
		b = protowire.AppendTag(b, fieldSenderID, protowire.VarintType)
		b = protowire.AppendVarint(b, e.SenderID)
	}
	if len(e.Payload) > 0 {
		b = protowire.AppendTag(b, fieldPayload, protowire.BytesType)
		b = protowire.AppendBytes(b, e.Payload)
	}
	return b
}

func (e Envelope) Size() int {
	n := 0
	if e.MessageID != 0 {
		n += protowire.SizeTag(fieldMessageID) + protowire.SizeVarint(e.MessageID)
	}
	if e.SenderID != 0 {
		n += protowire.SizeTag(fieldSenderID) + protowire.SizeVarint(e.SenderID)
	}
	if len(e.Payload) > 0 {
		n += protowire.SizeTag(fieldPayload) + protowire.SizeBytes(len(e.Payload))
	}
	return n
}

// Encode returns the datagram for e, or ErrEnvelopeTooLarge if it would not
// fit in MaxDatagramSize.
func (e Envelope) Encode() ([]byte, error) {
	if size := e.Size(); size > MaxDatagramSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrEnvelopeTooLarge, size)
	}
	return e.MarshalAppend(make([]byte, 0, e.Size())), nil
}

// DecodeEnvelope parses a datagram. Unknown fields are skipped and a
// repeated scalar keeps its last value. Any structural problem yields an
// error wrapping ErrMalformedEnvelope. The returned payload does not alias b.
func DecodeEnvelope(b []byte) (Envelope, error) {
	var e Envelope
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Envelope{}, malformed("tag", n)
		}
		b = b[n:]

		switch num {
		case fieldMessageID, fieldSenderID:
			if typ != protowire.VarintType {
				return Envelope{}, fmt.Errorf("%w: field %d has wire type %d", ErrMalformedEnvelope, num, typ)
			}
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return Envelope{}, malformed("varint", n)
			}
			if num == fieldMessageID {
				e.MessageID = v
			} else {
				e.SenderID = v
			}
			b = b[n:]
		case fieldPayload:
			if typ != protowire.BytesType {
				return Envelope{}, fmt.Errorf("%w: field %d has wire type %d", ErrMalformedEnvelope, num, typ)
			}
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return Envelope{}, malformed("payload", n)
			}
			e.Payload = append([]byte(nil), v...)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return Envelope{}, malformed("unknown field", n)
			}
			b = b[n:]
		}
	}
	return e, nil
}

func malformed(what string, code int) error {
	return fmt.Errorf("%w: %s: %v", ErrMalformedEnvelope, what, protowire.ParseError(code))
}
