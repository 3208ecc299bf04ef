// Package client talks to a bucketkv server. Every call dials a fresh
// connection, sends one request, reads one response, and hangs up.
package client

import (
	"context"
	"net"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/dreamware/bucketkv/internal/protocol"
	"github.com/dreamware/bucketkv/internal/storage"
)

var (
	// ErrNoResponse marks calls that failed before a response arrived:
	// dial, send, or receive errors
	ErrNoResponse = errors.New("no response")

	// ErrServer marks an ErrorResponse whose message is not a known store error
	ErrServer = errors.New("server error")

	// ErrUnexpectedResponse is returned when the response variant does not
	// match the request
	ErrUnexpectedResponse = errors.New("unexpected response")
)

// DefaultTimeout bounds one exchange when the context carries no deadline
const DefaultTimeout = 5 * time.Second

// Client issues requests to one server address
type Client struct {
	addr     string
	codec    protocol.Codec
	timeout  time.Duration
	maxFrame int
	dialer   net.Dialer
}

// New returns a client for addr. A nil codec selects CBOR; timeout <= 0
// selects DefaultTimeout.
func New(addr string, codec protocol.Codec, timeout time.Duration) *Client {
	if codec == nil {
		codec = protocol.CBOR()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{addr: addr, codec: codec, timeout: timeout}
}

// Addr returns the server address
func (c *Client) Addr() string {
	return c.addr
}

// Do performs one request/response exchange. Transport failures are
// marked with ErrNoResponse; an ErrorResponse is returned as a response,
// not as an error.
func (c *Client) Do(ctx context.Context, req protocol.Request) (protocol.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	nc, err := c.dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return nil, c.noResponse(err, "dial")
	}
	conn := protocol.NewConn(nc, nil, c.codec, c.maxFrame)
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	if err := conn.SendRequest(req); err != nil {
		if errors.Is(err, protocol.ErrInvalidUTF8) {
			return nil, errors.Wrapf(err, "codec %s", c.codec.Name())
		}
		return nil, c.noResponse(err, "send "+req.Kind().String())
	}
	resp, err := conn.RecvResponse()
	if err != nil {
		return nil, c.noResponse(err, "receive "+req.Kind().String())
	}
	return resp, nil
}

// Get returns the value stored under key
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	resp, err := call[protocol.GetResponse](ctx, c, protocol.GetRequest{Key: key})
	if err != nil {
		return "", errors.Wrapf(err, "get %q", key)
	}
	return resp.Value, nil
}

// Put stores value under key
func (c *Client) Put(ctx context.Context, key, value string) error {
	_, err := call[protocol.PutResponse](ctx, c, protocol.PutRequest{Key: key, Value: value})
	return errors.Wrapf(err, "put %q", key)
}

// Append appends value to the value stored under key
func (c *Client) Append(ctx context.Context, key, value string) error {
	_, err := call[protocol.AppendResponse](ctx, c, protocol.AppendRequest{Key: key, Value: value})
	return errors.Wrapf(err, "append %q", key)
}

// Delete removes key and returns the value it held
func (c *Client) Delete(ctx context.Context, key string) (string, error) {
	resp, err := call[protocol.DeleteResponse](ctx, c, protocol.DeleteRequest{Key: key})
	if err != nil {
		return "", errors.Wrapf(err, "delete %q", key)
	}
	return resp.Value, nil
}

// MultiGet returns the values of keys, in order, read atomically
func (c *Client) MultiGet(ctx context.Context, keys []string) ([]string, error) {
	resp, err := call[protocol.MultiGetResponse](ctx, c, protocol.MultiGetRequest{Keys: keys})
	if err != nil {
		return nil, errors.Wrapf(err, "multiget %d keys", len(keys))
	}
	return resp.Values, nil
}

// MultiPut stores values[i] under keys[i] atomically
func (c *Client) MultiPut(ctx context.Context, keys, values []string) error {
	_, err := call[protocol.MultiPutResponse](ctx, c, protocol.MultiPutRequest{Keys: keys, Values: values})
	return errors.Wrapf(err, "multiput %d keys", len(keys))
}

// GDPRDelete removes every post of user and empties the user's post list.
// The list lives under "<user>_posts" as comma separated post keys;
// whitespace inside an entry is ignored. Posts that are already gone are
// skipped. The user entry itself is kept.
func (c *Client) GDPRDelete(ctx context.Context, user string) error {
	listKey := user + "_posts"
	list, err := c.Get(ctx, listKey)
	if err != nil {
		return errors.Wrapf(err, "user %q", user)
	}

	for _, post := range strings.Split(list, ",") {
		post = strings.Join(strings.Fields(post), "")
		if post == "" {
			continue
		}
		if _, err := c.Delete(ctx, post); err != nil && !errors.Is(err, storage.ErrKeyNotFound) {
			return errors.Wrapf(err, "user %q", user)
		}
	}
	return errors.Wrapf(c.Put(ctx, listKey, ""), "user %q", user)
}

// call performs req and expects a response of type R
func call[R protocol.Response](ctx context.Context, c *Client, req protocol.Request) (R, error) {
	var zero R
	resp, err := c.Do(ctx, req)
	if err != nil {
		return zero, err
	}
	switch r := resp.(type) {
	case R:
		return r, nil
	case protocol.ErrorResponse:
		return zero, ResponseError(r)
	default:
		return zero, errors.Wrapf(ErrUnexpectedResponse, "%s for %s", resp.Kind(), req.Kind())
	}
}

// ResponseError converts an ErrorResponse back into an error. Known store
// messages map to the storage sentinels so callers can use errors.Is.
func ResponseError(r protocol.ErrorResponse) error {
	switch r.Msg {
	case storage.ErrKeyNotFound.Error():
		return storage.ErrKeyNotFound
	case storage.ErrArityMismatch.Error():
		return storage.ErrArityMismatch
	default:
		return errors.Mark(errors.Newf("server: %s", r.Msg), ErrServer)
	}
}

// noResponse marks a transport failure with ErrNoResponse and puts its
// message in the text
func (c *Client) noResponse(err error, op string) error {
	return errors.Wrapf(errors.Mark(err, ErrNoResponse), "%s %s: %s", op, c.addr, ErrNoResponse)
}
