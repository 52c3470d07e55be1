// Package jrpc serves JSON-RPC 2.0 over websockets.  Besides answering requests, an Endpoint keeps track of its
// connected clients so that the service can notify all of them at once.
package jrpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/swdunlop/html-go/hog"
	"nhooyr.io/websocket"

	"github.com/swdunlop/assetrig-go/rig/api"
	"github.com/swdunlop/assetrig-go/rig/jrpc/internal/protocol"
)

// API returns an api.Option that serves the endpoint at the specified route.
func API(route string, ep *Endpoint) api.Option {
	return api.Handle(route, ep)
}

// ReadLimit specifies the maximum size of a read message.  Defaults to -1 which imposes no limit.
func ReadLimit(limit int64) Option {
	return func(ep *Endpoint) { ep.readLimit = limit }
}

// WriteTimeout limits how long a notification may wait on a slow client.  Defaults to 5 seconds.
func WriteTimeout(timeout time.Duration) Option {
	return func(ep *Endpoint) { ep.writeTimeout = timeout }
}

// Handle returns an Endpoint that upgrades connections to a WebSocket and handles RPC requests until the connection
// is closed.
func Handle(options ...Option) *Endpoint {
	ep := new(Endpoint)
	ep.init(options...)
	return ep
}

// Use specifies middleware that is applied to all requests.
func Use(fn func(Handler) Handler) Option {
	return func(ep *Endpoint) {
		ep.handler = fn(ep.handler)
	}
}

// For creates a new context for the given request and send function.  Generally this is not necessary but it can
// be useful for testing.
func For(ctx context.Context, req protocol.Request, send func(bin []byte) error) *Scope {
	self := &Scope{Context: ctx, Request: req, send: send}
	self.Context = context.WithValue(ctx, ctxKey{}, self)
	return self
}

// From returns the context of the request from a Go context.  May return nil if there is no RPC
// context in the Go context.
func From(ctx context.Context) *Scope {
	rcx, _ := ctx.Value(ctxKey{}).(*Scope)
	return rcx
}

type ctxKey struct{}

// A Scope describes the scope of an RPC request.
type Scope struct {
	context.Context
	protocol.Request
	send func(bin []byte) error
}

// Succ sends a success response to the client.
func (ctx *Scope) Succ(result any) error { return ctx.respond(protocol.Response{Result: result}) }

// Fail sends an error response to the client.  Notifications never get a response, so failures are only logged.
func (ctx *Scope) Fail(code int, msg string) error {
	if ctx.ID == `` {
		hog.From(ctx).Warn().Str(`method`, ctx.Method).Int(`code`, code).Msg(msg)
		return nil
	}
	err := ctx.respond(protocol.Response{Error: &protocol.Error{Code: code, Message: msg}})
	ctx.send = nil
	return err
}

// Notify sends a notification to the client.
func (ctx *Scope) Notify(method string, params any) error {
	js, err := encodeNotification(method, params)
	if err != nil {
		return err
	}
	return ctx.send(js)
}

func (ctx *Scope) respond(ret protocol.Response) error {
	if ctx.send == nil {
		// This happens if the context has ended or when the context was created with a
		// nil send function.  This is a programming error.
		return fmt.Errorf(`response not supported`)
	}
	ret.JSONRPC = protocol.Version
	ret.ID = ctx.ID
	msg, err := json.Marshal(&ret)
	if err != nil {
		return fmt.Errorf(`%w while encoding response`, err)
	}
	return ctx.send(msg)
}

func encodeNotification(method string, params any) ([]byte, error) {
	js, err := json.Marshal(protocol.Notification{
		JSONRPC: protocol.Version,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, fmt.Errorf(`%w while encoding %q notification`, err, method)
	}
	return js, nil
}

// An Option affects an Endpoint.
type Option func(*Endpoint)

// An Endpoint is a http.Handler for JSON-RPC clients.
type Endpoint struct {
	handler      Handler
	readLimit    int64
	writeTimeout time.Duration
	procHandlers map[string]Handler
	callHandlers map[string]Handler

	mu       sync.Mutex
	sessions map[*websocket.Conn]struct{}
}

func (ep *Endpoint) init(options ...Option) {
	ep.readLimit = -1
	ep.writeTimeout = 5 * time.Second
	ep.handler = ep.handleRequest
	ep.procHandlers = make(map[string]Handler, len(options))
	ep.callHandlers = make(map[string]Handler, len(options))
	ep.sessions = make(map[*websocket.Conn]struct{})
	for _, opt := range options {
		opt(ep)
	}
}

// Sessions returns the number of connected clients.
func (ep *Endpoint) Sessions() int {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	return len(ep.sessions)
}

// Notify sends a notification to every connected client.  Clients that cannot be written to are disconnected.
func (ep *Endpoint) Notify(ctx context.Context, method string, params any) error {
	js, err := encodeNotification(method, params)
	if err != nil {
		return err
	}
	ep.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(ep.sessions))
	for c := range ep.sessions {
		conns = append(conns, c)
	}
	ep.mu.Unlock()

	for _, c := range conns {
		wctx, cancel := context.WithTimeout(ctx, ep.writeTimeout)
		err := c.Write(wctx, websocket.MessageText, js)
		cancel()
		if err != nil {
			hog.From(ctx).Debug().Err(err).Msg(`dropping RPC client`)
			ep.leave(c)
			_ = c.Close(websocket.StatusGoingAway, `write failed`)
		}
	}
	return nil
}

func (ep *Endpoint) join(c *websocket.Conn) {
	ep.mu.Lock()
	ep.sessions[c] = struct{}{}
	ep.mu.Unlock()
}

func (ep *Endpoint) leave(c *websocket.Conn) {
	ep.mu.Lock()
	delete(ep.sessions, c)
	ep.mu.Unlock()
}

// ServeHTTP implements http.Handler.
func (ep *Endpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	err := ep.serveHTTP(w, r)
	if err != nil {
		hog.For(r).Error().Err(err).Msg(`RPC error`)
	}
}

func (ep *Endpoint) serveHTTP(w http.ResponseWriter, r *http.Request) error {
	c, err := websocket.Accept(w, r, nil)
	if err != nil {
		// Accept has already written an error response.
		return err
	}
	defer func() { _ = c.CloseNow() }()
	c.SetReadLimit(ep.readLimit)
	ep.join(c)
	defer ep.leave(c)

	ctx := r.Context()
	send := func(bin []byte) error {
		return c.Write(ctx, websocket.MessageText, bin)
	}
	handle := ep.handler

	var group sync.WaitGroup
	defer group.Wait()
	for {
		mt, msg, err := c.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) < 0 && ctx.Err() == nil {
				return err
			}
			return nil
		}
		if mt != websocket.MessageText {
			continue
		}
		var req protocol.Request
		err = json.Unmarshal(msg, &req)
		if err != nil {
			_ = For(ctx, protocol.Request{}, send).Fail(protocol.ParseError, err.Error())
			continue
		}
		group.Add(1)
		go func() {
			defer group.Done()
			handle(For(ctx, req, send))
		}()
	}
}

func (ep *Endpoint) handleRequest(ctx *Scope) {
	var table map[string]Handler
	if ctx.ID == `` {
		table = ep.procHandlers
	} else {
		table = ep.callHandlers
	}
	handler := table[ctx.Method]
	if handler == nil {
		_ = ctx.Fail(protocol.MethodNotFound, fmt.Sprintf(`function %q not found`, ctx.Method))
		return
	}
	handler(ctx)
}

// A Proc is a function that handles a notification.
func Proc[I any](function string, fn func(*Scope, I)) Option {
	return func(ep *Endpoint) {
		ep.procHandlers[function] = func(ctx *Scope) {
			in := new(I)
			err := decodeParams(ctx.Params, in)
			if err != nil {
				_ = ctx.Fail(protocol.InvalidParams, fmt.Sprintf(`%v while decoding input`, err))
				return
			}
			fn(ctx, *in)
		}
	}
}

// A Fn is a function that handles a request.
func Fn[I, O any](
	function string, fn func(*Scope, I) (O, error),
) Option {
	return func(ep *Endpoint) {
		ep.callHandlers[function] = func(ctx *Scope) {
			in := new(I)
			err := decodeParams(ctx.Params, in)
			if err != nil {
				_ = ctx.Fail(protocol.InvalidParams, fmt.Sprintf(`%v while decoding input`, err))
				return
			}
			out, err := fn(ctx, *in)
			if err != nil {
				_ = ctx.Fail(protocol.InternalError, err.Error())
				return
			}
			_ = ctx.Succ(out)
		}
	}
}

// decodeParams accepts absent params as the zero value.
func decodeParams(params json.RawMessage, v any) error {
	if len(params) == 0 || string(params) == `null` {
		return nil
	}
	return json.Unmarshal(params, v)
}

// A Handler is a function that handles an RPC request.
type Handler func(*Scope)
