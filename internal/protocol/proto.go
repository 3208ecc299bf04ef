package protocol

import (
	"github.com/cockroachdb/errors"
	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of the protobuf envelope:
//
//	message Envelope {
//	  uint32 kind = 1;
//	  string key = 2;
//	  string value = 3;
//	  repeated string keys = 4;
//	  repeated string values = 5;
//	  string msg = 6;
//	}
const (
	fieldKind   protowire.Number = 1
	fieldKey    protowire.Number = 2
	fieldValue  protowire.Number = 3
	fieldKeys   protowire.Number = 4
	fieldValues protowire.Number = 5
	fieldMsg    protowire.Number = 6
)

type protoCodec struct{}

// Proto returns a codec producing protobuf wire format for Envelope.
// Unknown fields are skipped on decode.
func Proto() Codec { return protoCodec{} }

func (protoCodec) Name() string { return "proto" }
func (protoCodec) ID() byte     { return CodecIDProto }

func (protoCodec) Marshal(e *Envelope) ([]byte, error) {
	var b []byte
	b = protowire.AppendTag(b, fieldKind, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(e.Kind))
	b = appendString(b, fieldKey, e.Key)
	b = appendString(b, fieldValue, e.Value)
	for _, k := range e.Keys {
		b = protowire.AppendTag(b, fieldKeys, protowire.BytesType)
		b = protowire.AppendString(b, k)
	}
	for _, v := range e.Values {
		b = protowire.AppendTag(b, fieldValues, protowire.BytesType)
		b = protowire.AppendString(b, v)
	}
	b = appendString(b, fieldMsg, e.Msg)
	return b, nil
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func (protoCodec) Unmarshal(data []byte, e *Envelope) error {
	*e = Envelope{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return errors.Wrap(protowire.ParseError(n), "proto tag")
		}
		data = data[n:]

		switch {
		case num == fieldKind && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(data)
			if m < 0 {
				return errors.Wrap(protowire.ParseError(m), "proto kind")
			}
			if v > 0xff {
				return errors.Wrapf(ErrUnknownKind, "kind %d", v)
			}
			e.Kind = Kind(v)
			n = m
		case typ == protowire.BytesType && num >= fieldKey && num <= fieldMsg:
			s, m := protowire.ConsumeString(data)
			if m < 0 {
				return errors.Wrapf(protowire.ParseError(m), "proto field %d", num)
			}
			switch num {
			case fieldKey:
				e.Key = s
			case fieldValue:
				e.Value = s
			case fieldKeys:
				e.Keys = append(e.Keys, s)
			case fieldValues:
				e.Values = append(e.Values, s)
			case fieldMsg:
				e.Msg = s
			}
			n = m
		default:
			n = protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return errors.Wrapf(protowire.ParseError(n), "proto field %d", num)
			}
		}
		data = data[n:]
	}
	return nil
}
