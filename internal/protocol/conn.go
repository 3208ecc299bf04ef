package protocol

import (
	"net"
	"time"

	"github.com/cockroachdb/errors"
)

// Conn exchanges framed messages over a stream connection. A Conn is used
// by one goroutine at a time: the client side alternates SendRequest and
// RecvResponse, the server side alternates RecvRequest and SendResponse.
type Conn struct {
	net.Conn

	codecs   *Registry
	codec    Codec // used for outgoing frames
	maxFrame int
}

// NewConn wraps c. codec is used for outgoing frames until a received
// frame switches it; maxFrame <= 0 selects DefaultMaxFrame.
func NewConn(c net.Conn, codecs *Registry, codec Codec, maxFrame int) *Conn {
	if codecs == nil {
		codecs = NewRegistry()
	}
	if codec == nil {
		codec = CBOR()
	}
	return &Conn{Conn: c, codecs: codecs, codec: codec, maxFrame: maxFrame}
}

// Codec returns the codec used for the next outgoing frame
func (c *Conn) Codec() Codec {
	return c.codec
}

// SendRequest encodes and writes req
func (c *Conn) SendRequest(req Request) error {
	env, err := RequestEnvelope(req)
	if err != nil {
		return err
	}
	return c.send(env)
}

// RecvRequest reads the next request. Replies sent afterwards use the
// codec the peer chose for it.
func (c *Conn) RecvRequest() (Request, error) {
	env, err := c.recv()
	if err != nil {
		return nil, err
	}
	return env.Request()
}

// SendResponse encodes and writes resp
func (c *Conn) SendResponse(resp Response) error {
	env, err := ResponseEnvelope(resp)
	if err != nil {
		return err
	}
	return c.send(env)
}

// RecvResponse reads the next response
func (c *Conn) RecvResponse() (Response, error) {
	env, err := c.recv()
	if err != nil {
		return nil, err
	}
	return env.Response()
}

// Deadline sets both read and write deadlines d from now; d <= 0 clears them
func (c *Conn) Deadline(d time.Duration) error {
	if d <= 0 {
		return c.SetDeadline(time.Time{})
	}
	return c.SetDeadline(time.Now().Add(d))
}

func (c *Conn) send(env *Envelope) error {
	payload, err := c.codec.Marshal(env)
	if err != nil {
		return errors.Wrapf(err, "encoding %s", env.Kind)
	}
	return WriteFrame(c.Conn, c.codec.ID(), payload, c.maxFrame)
}

func (c *Conn) recv() (*Envelope, error) {
	id, payload, err := ReadFrame(c.Conn, c.maxFrame)
	if err != nil {
		return nil, err
	}
	codec, err := c.codecs.ByID(id)
	if err != nil {
		return nil, err
	}
	c.codec = codec
	var env Envelope
	if err := codec.Unmarshal(payload, &env); err != nil {
		return nil, errors.Wrap(err, "decoding frame")
	}
	return &env, nil
}
