// Package server implements the dispatcher in front of a storage.Store.
//
// An acceptor goroutine pushes every accepted connection onto a
// queue.BlockingQueue; a fixed pool of worker goroutines pops connections
// and serves them one at a time, executing each request synchronously
// against the shared store and writing the response back on the same
// connection. A connection may carry any number of request/response
// exchanges; the worker moves on when the peer closes it.
//
// Shutdown (context cancellation or Close) closes the listener, stops the
// queue so idle workers return, interrupts reads on connections being
// served, and closes connections still waiting in the queue.
package server

import (
	"context"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dreamware/bucketkv/internal/protocol"
	"github.com/dreamware/bucketkv/internal/queue"
	"github.com/dreamware/bucketkv/internal/storage"
)

// ErrServing is returned by Serve when the dispatcher is already serving
var ErrServing = errors.New("dispatcher already serving")

// Options configures a Dispatcher
type Options struct {
	Workers     int           // size of the worker pool, at least 1
	QueueWarn   int           // warn when this many connections are queued; 0 disables
	IdleTimeout time.Duration // close connections idle this long; 0 disables
	MaxFrame    int           // largest accepted payload; 0 selects protocol.DefaultMaxFrame
	Codecs      *protocol.Registry
	// Codec answers frames whose codec is not registered; nil selects CBOR.
	// Every other reply uses the codec of the request.
	Codec  protocol.Codec
	Logger *zap.Logger
}

// Conn is one accepted client connection waiting for, or held by, a worker
type Conn struct {
	*protocol.Conn
	ID       uuid.UUID
	Accepted time.Time
}

// Stats is a snapshot of dispatcher counters
type Stats struct {
	Accepted uint64 `json:"accepted"`
	Requests uint64 `json:"requests"`
	Queued   int    `json:"queued"`
	Active   int    `json:"active"`
	Workers  int    `json:"workers"`
}

// Dispatcher hands connections from an acceptor to a pool of workers
type Dispatcher struct {
	store storage.Store
	queue *queue.BlockingQueue[*Conn]
	opts  Options
	log   *zap.Logger

	mu      sync.Mutex
	ln      net.Listener
	closing bool
	active  map[*Conn]struct{}
	done    chan struct{}
	once    sync.Once

	accepted atomic.Uint64
	requests atomic.Uint64
}

// New creates a dispatcher executing requests against store
func New(store storage.Store, opts Options) *Dispatcher {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Codecs == nil {
		opts.Codecs = protocol.NewRegistry()
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		store:  store,
		queue:  queue.New[*Conn](),
		opts:   opts,
		log:    log.Named("server"),
		active: make(map[*Conn]struct{}),
		done:   make(chan struct{}),
	}
}

// Serve accepts connections on ln and serves them until ctx is cancelled
// or Close is called. It returns once every worker has exited. A nil
// return means an orderly shutdown.
func (d *Dispatcher) Serve(ctx context.Context, ln net.Listener) error {
	d.mu.Lock()
	if d.ln != nil {
		d.mu.Unlock()
		return ErrServing
	}
	d.ln = ln
	closing := d.closing
	d.mu.Unlock()
	if closing {
		_ = ln.Close()
		d.shutdown()
		return nil
	}

	d.log.Info("serving",
		zap.Stringer("addr", ln.Addr()),
		zap.Int("workers", d.opts.Workers))

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < d.opts.Workers; i++ {
		worker := i
		g.Go(func() error {
			d.work(worker)
			return nil
		})
	}
	g.Go(func() error {
		defer d.shutdown()
		return d.accept(ln)
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
			d.Close()
		case <-d.done:
		}
		return nil
	})

	err := g.Wait()
	d.log.Info("stopped",
		zap.Uint64("accepted", d.accepted.Load()),
		zap.Uint64("requests", d.requests.Load()))
	return err
}

// Close stops accepting and begins shutdown. It does not wait; Serve
// returns when shutdown completes.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closing {
		return
	}
	d.closing = true
	if d.ln != nil {
		_ = d.ln.Close()
	}
}

// Stats returns current dispatcher counters
func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	active := len(d.active)
	d.mu.Unlock()
	return Stats{
		Accepted: d.accepted.Load(),
		Requests: d.requests.Load(),
		Queued:   d.queue.Size(),
		Active:   active,
		Workers:  d.opts.Workers,
	}
}

func (d *Dispatcher) accept(ln net.Listener) error {
	for {
		nc, err := ln.Accept()
		if err != nil {
			if d.isClosing() {
				return nil
			}
			return errors.Wrap(err, "accept")
		}

		c := &Conn{
			Conn:     protocol.NewConn(nc, d.opts.Codecs, d.opts.Codec, d.opts.MaxFrame),
			ID:       uuid.New(),
			Accepted: time.Now(),
		}
		d.accepted.Add(1)
		d.queue.Push(c)

		if n := d.queue.Size(); d.opts.QueueWarn > 0 && n >= d.opts.QueueWarn {
			d.log.Warn("connections waiting for a worker", zap.Int("queued", n))
		}
	}
}

// shutdown runs once, after the acceptor has stopped pushing
func (d *Dispatcher) shutdown() {
	d.once.Do(func() {
		d.Close()
		d.queue.Stop()

		d.mu.Lock()
		for c := range d.active {
			_ = c.SetReadDeadline(time.Now())
		}
		d.mu.Unlock()

		pending := d.queue.Flush()
		for _, c := range pending {
			_ = c.Close()
		}
		if len(pending) > 0 {
			d.log.Info("closed queued connections", zap.Int("count", len(pending)))
		}
		close(d.done)
	})
}

func (d *Dispatcher) work(worker int) {
	log := d.log.With(zap.Int("worker", worker))
	for {
		c, stopped := d.queue.Pop()
		if stopped {
			return
		}
		d.serveConn(c, log)
	}
}

func (d *Dispatcher) serveConn(c *Conn, log *zap.Logger) {
	log = log.With(zap.Stringer("conn", c.ID), zap.Stringer("remote", c.RemoteAddr()))
	if !d.track(c) {
		_ = c.Close()
		return
	}
	defer func() {
		d.untrack(c)
		_ = c.Close()
	}()

	log.Debug("serving connection", zap.Duration("queued_for", time.Since(c.Accepted)))
	for {
		if !d.armRead(c) {
			return
		}
		req, err := c.RecvRequest()
		if err != nil {
			if errors.Is(err, protocol.ErrUnknownKind) || errors.Is(err, protocol.ErrUnknownCodec) ||
				errors.Is(err, protocol.ErrInvalidUTF8) {
				// Frame boundaries are intact; answer and keep reading
				if err := c.SendResponse(protocol.ErrorResponse{Msg: err.Error()}); err != nil {
					log.Warn("send failed", zap.Error(err))
					return
				}
				continue
			}
			d.logRecvError(log, err)
			return
		}

		resp := protocol.Execute(d.store, req)
		d.requests.Add(1)
		if e, ok := resp.(protocol.ErrorResponse); ok {
			log.Debug("request failed", zap.Stringer("kind", req.Kind()), zap.String("msg", e.Msg))
		}

		err = c.SendResponse(resp)
		if errors.Is(err, protocol.ErrInvalidUTF8) {
			// Nothing was written; the peer's codec cannot carry this value
			err = c.SendResponse(protocol.ErrorResponse{Msg: err.Error()})
		}
		if err != nil {
			log.Warn("send failed", zap.Stringer("kind", req.Kind()), zap.Error(err))
			return
		}
	}
}

func (d *Dispatcher) logRecvError(log *zap.Logger, err error) {
	var ne net.Error
	switch {
	case errors.Is(err, io.EOF):
		log.Debug("connection closed by peer")
	case errors.As(err, &ne) && ne.Timeout():
		log.Debug("connection idle or shutting down")
	default:
		log.Warn("receive failed", zap.Error(err))
	}
}

func (d *Dispatcher) track(c *Conn) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closing {
		return false
	}
	d.active[c] = struct{}{}
	return true
}

func (d *Dispatcher) untrack(c *Conn) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.active, c)
}

// armRead sets the read deadline for the next request. It holds mu so a
// concurrent shutdown cannot be overwritten with a later deadline.
func (d *Dispatcher) armRead(c *Conn) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closing {
		return false
	}
	var deadline time.Time
	if d.opts.IdleTimeout > 0 {
		deadline = time.Now().Add(d.opts.IdleTimeout)
	}
	_ = c.SetReadDeadline(deadline)
	return true
}

func (d *Dispatcher) isClosing() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closing
}
