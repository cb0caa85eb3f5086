// Package bridge is a small RPC layer in the shape of remoteCall(method,
// ...args): a Host exposes named handlers, a Client calls them, and both sides
// exchange CBOR payloads in length-prefixed frames over any byte stream.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"pkt.systems/pslog"
)

var (
	// ErrUnknownMethod is returned for a call to a method the host did not register.
	ErrUnknownMethod = errors.New("bridge: unknown method")
	// ErrMissingArgument is returned by Args.Decode for an index past the end.
	ErrMissingArgument = errors.New("bridge: missing argument")
	// ErrReplyMismatch marks a reply whose id matches no pending call.
	ErrReplyMismatch = errors.New("bridge: reply does not match a pending call")
	// ErrClosed is returned for calls on a closed client.
	ErrClosed = errors.New("bridge: closed")
)

const codeUnknownMethod = "unknown_method"

// RemoteError is an error raised by a handler, as seen by the caller.
type RemoteError struct {
	Method  string `cbor:"method"`
	Code    string `cbor:"code"`
	Message string `cbor:"message"`
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote %s: %s", e.Method, e.Message)
}

// Is lets errors.Is(err, ErrUnknownMethod) see through the wire.
func (e *RemoteError) Is(target error) bool {
	return target == ErrUnknownMethod && e.Code == codeUnknownMethod
}

// Args are the encoded arguments of one call.
type Args []cbor.RawMessage

func (a Args) Len() int { return len(a) }

// Decode unmarshals argument i into v.
func (a Args) Decode(i int, v any) error {
	if i < 0 || i >= len(a) {
		return fmt.Errorf("%w: %d", ErrMissingArgument, i)
	}
	if err := cbor.Unmarshal(a[i], v); err != nil {
		return fmt.Errorf("decode argument %d: %w", i, err)
	}
	return nil
}

// Optional decodes argument i into v if it was passed and is not nil.
func (a Args) Optional(i int, v any) error {
	if i >= len(a) || isCBORNull(a[i]) {
		return nil
	}
	return a.Decode(i, v)
}

func isCBORNull(b cbor.RawMessage) bool {
	return len(b) == 1 && (b[0] == 0xf6 || b[0] == 0xf7)
}

// Handler serves one method. The returned value is CBOR-encoded as the
// result; a returned error becomes a *RemoteError on the caller's side.
type Handler func(ctx context.Context, args Args) (any, error)

// Host dispatches incoming calls to registered handlers.
type Host struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewHost() *Host {
	return &Host{handlers: map[string]Handler{}}
}

// Register binds method to h, replacing any previous handler.
func (h *Host) Register(method string, handler Handler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers[method] = handler
}

// Methods lists the registered method names.
func (h *Host) Methods() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.handlers))
	for m := range h.handlers {
		out = append(out, m)
	}
	return out
}

// Serve reads frames from conn until it is closed or ctx ends. Requests are
// handled concurrently; notifications are handled in arrival order.
func (h *Host) Serve(ctx context.Context, conn io.ReadWriteCloser) error {
	log := pslog.Ctx(ctx)
	var (
		writeMu sync.Mutex
		wg      sync.WaitGroup
	)
	defer wg.Wait()

	// Handlers still running when the connection goes away are cancelled.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		header, payload, err := ReadFrame(conn)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read frame: %w", err)
		}
		var req Request
		if err := cbor.Unmarshal(payload, &req); err != nil {
			log.Warn("bridge dropped undecodable frame", "type", header.Type.String(), "err", err)
			continue
		}

		switch header.Type {
		case FrameNotify:
			if _, err := h.dispatch(ctx, req); err != nil {
				log.Debug("bridge notify failed", "method", req.Method, "err", err)
			}
		case FrameRequest:
			wg.Add(1)
			go func() {
				defer wg.Done()
				reply := h.call(ctx, req)
				frame, err := EncodeFrame(FrameReply, reply)
				if err != nil {
					log.Error("bridge encode reply", "method", req.Method, "id", req.ID, "err", err)
					return
				}
				writeMu.Lock()
				_, err = conn.Write(frame)
				writeMu.Unlock()
				if err != nil && ctx.Err() == nil {
					log.Warn("bridge write reply", "method", req.Method, "id", req.ID, "err", err)
				}
			}()
		default:
			log.Warn("bridge dropped unexpected frame", "type", header.Type.String())
		}
	}
}

func (h *Host) call(ctx context.Context, req Request) Reply {
	start := time.Now()
	reply := Reply{ID: req.ID}
	result, err := h.dispatch(ctx, req)
	if err == nil {
		reply.Result, err = cbor.Marshal(result)
	}
	if err != nil {
		code := "error"
		if errors.Is(err, ErrUnknownMethod) {
			code = codeUnknownMethod
		}
		reply.Result = nil
		reply.Error = &RemoteError{Method: req.Method, Code: code, Message: err.Error()}
	}
	pslog.Ctx(ctx).Debug("bridge call", "method", req.Method, "id", req.ID, "elapsed", time.Since(start), "ok", err == nil)
	return reply
}

func (h *Host) dispatch(ctx context.Context, req Request) (any, error) {
	h.mu.RLock()
	handler, ok := h.handlers[req.Method]
	h.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMethod, req.Method)
	}
	return handler(ctx, Args(req.Args))
}

// Client issues calls over a connection served by a Host.
type Client struct {
	conn    io.ReadWriteCloser
	log     pslog.Logger
	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan Reply
	closed  bool
	done    chan struct{}
	err     error
}

// NewClient starts reading replies from conn. log may be nil.
func NewClient(conn io.ReadWriteCloser, log pslog.Logger) *Client {
	c := &Client{
		conn:    conn,
		log:     log,
		pending: map[string]chan Reply{},
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// Pipe serves h over an in-memory connection and returns a client for it.
// Closing the client stops the host.
func Pipe(ctx context.Context, h *Host) *Client {
	hostConn, clientConn := net.Pipe()
	go func() {
		if err := h.Serve(ctx, hostConn); err != nil {
			pslog.Ctx(ctx).Warn("bridge host stopped", "err", err)
		}
	}()
	return NewClient(clientConn, pslog.Ctx(ctx))
}

// Call invokes method with args and decodes the result into out, which may be
// nil to discard it. Handler failures come back as *RemoteError.
func (c *Client) Call(ctx context.Context, method string, out any, args ...any) error {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("request id: %w", err)
	}
	enc, err := encodeArgs(args)
	if err != nil {
		return err
	}
	frame, err := EncodeFrame(FrameRequest, Request{ID: id.String(), Method: method, Args: enc})
	if err != nil {
		return err
	}

	ch := make(chan Reply, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.pending[id.String()] = ch
	c.mu.Unlock()
	defer c.forget(id.String())

	if err := c.write(frame); err != nil {
		return fmt.Errorf("call %s: %w", method, err)
	}

	select {
	case reply := <-ch:
		if reply.Error != nil {
			return reply.Error
		}
		if out == nil || len(reply.Result) == 0 {
			return nil
		}
		if err := cbor.Unmarshal(reply.Result, out); err != nil {
			return fmt.Errorf("call %s: decode result: %w", method, err)
		}
		return nil
	case <-c.done:
		return fmt.Errorf("call %s: %w", method, c.closeErr())
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Notify sends a call that has no reply.
func (c *Client) Notify(method string, args ...any) error {
	enc, err := encodeArgs(args)
	if err != nil {
		return err
	}
	frame, err := EncodeFrame(FrameNotify, Request{Method: method, Args: enc})
	if err != nil {
		return err
	}
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}
	return c.write(frame)
}

// Close closes the connection and fails every pending call.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	err := c.conn.Close()
	<-c.done
	return err
}

func (c *Client) write(frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err := c.conn.Write(frame)
	return err
}

func (c *Client) forget(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Client) closeErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	return ErrClosed
}

func (c *Client) readLoop() {
	defer close(c.done)
	for {
		header, payload, err := ReadFrame(c.conn)
		if err != nil {
			c.mu.Lock()
			c.closed = true
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) && !errors.Is(err, net.ErrClosed) {
				c.err = err
			}
			c.mu.Unlock()
			return
		}
		if header.Type != FrameReply {
			c.logDebug("bridge client dropped frame", "type", header.Type.String())
			continue
		}
		var reply Reply
		if err := cbor.Unmarshal(payload, &reply); err != nil {
			c.logDebug("bridge client dropped undecodable reply", "err", err)
			continue
		}
		c.mu.Lock()
		ch, ok := c.pending[reply.ID]
		c.mu.Unlock()
		if !ok {
			c.logDebug("bridge client dropped reply", "id", reply.ID, "err", ErrReplyMismatch)
			continue
		}
		ch <- reply
	}
}

func (c *Client) logDebug(msg string, kv ...any) {
	if c.log != nil {
		c.log.Debug(msg, kv...)
	}
}
