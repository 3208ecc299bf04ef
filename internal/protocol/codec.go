package protocol

import (
	"encoding/json"
	"sort"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
	cbor "github.com/fxamacker/cbor/v2"
)

// Codec marshals envelopes to and from bytes. Every frame records the ID of
// the codec that produced its payload, so a peer can answer in kind.
type Codec interface {
	Name() string
	ID() byte
	Marshal(e *Envelope) ([]byte, error)
	Unmarshal(data []byte, e *Envelope) error
}

// Codec identifiers carried in the frame header
const (
	CodecIDCBOR  byte = 1
	CodecIDJSON  byte = 2
	CodecIDProto byte = 3
)

// ErrUnknownCodec is returned for a codec name or frame codec ID that is
// not registered
var ErrUnknownCodec = errors.New("unknown codec")

// ErrInvalidUTF8 is returned by codecs that can only carry UTF-8 text when
// a key, value or message holds other bytes
var ErrInvalidUTF8 = errors.New("not valid UTF-8")

// Registry maps codec names and IDs to codecs
type Registry struct {
	byName map[string]Codec
	byID   map[byte]Codec
}

// NewRegistry constructs a registry preloaded with the CBOR, JSON and
// protobuf codecs
func NewRegistry() *Registry {
	r := &Registry{byName: make(map[string]Codec), byID: make(map[byte]Codec)}
	r.Register(CBOR())
	r.Register(JSON())
	r.Register(Proto())
	return r
}

// Register adds a codec, replacing any codec with the same name or ID
func (r *Registry) Register(c Codec) {
	r.byName[c.Name()] = c
	r.byID[c.ID()] = c
}

// Lookup returns the codec registered under name
func (r *Registry) Lookup(name string) (Codec, error) {
	if c, ok := r.byName[name]; ok {
		return c, nil
	}
	return nil, errors.Wrapf(ErrUnknownCodec, "%q", name)
}

// ByID returns the codec registered under id
func (r *Registry) ByID(id byte) (Codec, error) {
	if c, ok := r.byID[id]; ok {
		return c, nil
	}
	return nil, errors.Wrapf(ErrUnknownCodec, "id %d", id)
}

// Names lists registered codec names, sorted
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type cborCodec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

// CBOR returns a deterministic CBOR codec (RFC 8949, canonical profile).
// Strings travel as byte strings so keys and values need not be UTF-8;
// text strings from other encoders are accepted without UTF-8 checks.
func CBOR() Codec {
	opts := cbor.CanonicalEncOptions()
	opts.String = cbor.StringToByteString
	em, err := opts.EncMode()
	if err != nil {
		panic(err)
	}
	dm, err := cbor.DecOptions{UTF8: cbor.UTF8DecodeInvalid}.DecMode()
	if err != nil {
		panic(err)
	}
	return cborCodec{enc: em, dec: dm}
}

func (cborCodec) Name() string { return "cbor" }
func (cborCodec) ID() byte     { return CodecIDCBOR }

func (c cborCodec) Marshal(e *Envelope) ([]byte, error) { return c.enc.Marshal(e) }

func (c cborCodec) Unmarshal(data []byte, e *Envelope) error {
	return errors.Wrap(c.dec.Unmarshal(data, e), "cbor")
}

type jsonCodec struct{}

// JSON returns a JSON codec, handy for debugging captures. JSON strings
// are UTF-8 only: Marshal refuses envelopes carrying other bytes with
// ErrInvalidUTF8 rather than letting encoding/json replace them.
func JSON() Codec { return jsonCodec{} }

func (jsonCodec) Name() string { return "json" }
func (jsonCodec) ID() byte     { return CodecIDJSON }

func (jsonCodec) Marshal(e *Envelope) ([]byte, error) {
	if err := checkUTF8(e); err != nil {
		return nil, errors.Wrap(err, "json")
	}
	return json.Marshal(e)
}

// checkUTF8 reports the first envelope field that is not valid UTF-8
func checkUTF8(e *Envelope) error {
	for _, f := range []struct {
		name string
		vals []string
	}{
		{"key", []string{e.Key}},
		{"value", []string{e.Value}},
		{"keys", e.Keys},
		{"values", e.Values},
		{"msg", []string{e.Msg}},
	} {
		for i, v := range f.vals {
			if !utf8.ValidString(v) {
				return errors.Wrapf(ErrInvalidUTF8, "%s %s[%d]", e.Kind, f.name, i)
			}
		}
	}
	return nil
}

func (jsonCodec) Unmarshal(data []byte, e *Envelope) error {
	if !utf8.Valid(data) {
		return errors.Wrap(ErrInvalidUTF8, "json")
	}
	return errors.Wrap(json.Unmarshal(data, e), "json")
}
