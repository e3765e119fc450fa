package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/erc7824/nitrolite/walletprovider/pkg/log"
)

const tracerName = "github.com/erc7824/nitrolite/walletprovider/pkg/rpc"

// Handler defines the function signature for request processors in the
// Engine pipeline. A handler either settles the response or calls c.Next()
// to delegate to the rest of the chain.
type Handler func(c *Context)

// Context carries one request through the middleware chain.
type Context struct {
	// Context is the standard Go context of the call. Its logger is
	// available through log.FromContext.
	Context context.Context
	// Request is the request being dispatched. Middleware may rewrite it.
	Request *Request
	// Response is settled by the handler that answers the request.
	Response *Response

	handlers []Handler
}

// Next advances the middleware chain by executing the next handler.
// If there are no more handlers in the chain, Next returns immediately.
func (c *Context) Next() {
	if len(c.handlers) == 0 {
		return
	}

	handler := c.handlers[0]
	c.handlers = c.handlers[1:]
	handler(c)
}

// Succeed settles the response with result marshaled as JSON. A nil result
// is encoded as JSON null.
func (c *Context) Succeed(result any) {
	raw, err := json.Marshal(result)
	if err != nil {
		c.Fail(fmt.Errorf("failed to marshal result: %w", err))
		return
	}
	c.SucceedRaw(raw)
}

// SucceedRaw settles the response with an already encoded result.
func (c *Context) SucceedRaw(result json.RawMessage) {
	if len(result) == 0 {
		result = json.RawMessage("null")
	}
	c.Response.Result = result
	c.Response.Error = nil
}

// Fail settles the response with err. Errors that are not an *Error are
// reported as internal errors.
func (c *Context) Fail(err error) {
	c.Response.Result = nil
	c.Response.Error = AsError(err)
}

// Engine dispatches requests through an ordered chain of middleware.
// It is safe for concurrent use; handlers pushed while requests are in flight
// only affect later requests.
type Engine struct {
	lg     log.Logger
	tracer trace.Tracer

	mu       sync.RWMutex
	handlers []Handler
}

// NewEngine creates an empty Engine. A nil logger disables logging.
func NewEngine(lg log.Logger) *Engine {
	return &Engine{
		lg:     log.OrNoop(lg).WithName("rpc-engine"),
		tracer: otel.Tracer(tracerName),
	}
}

// Push appends handlers to the end of the chain.
func (e *Engine) Push(handlers ...Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.handlers = append(e.handlers, handlers...)
}

// Handle dispatches req and blocks until the chain settles a response.
// The returned error is the response's error object, if any; the response is
// returned in both cases. The caller's request is never modified.
func (e *Engine) Handle(ctx context.Context, req *Request) (*Response, error) {
	if req == nil {
		return nil, ErrNilRequest
	}

	e.mu.RLock()
	handlers := make([]Handler, len(e.handlers))
	copy(handlers, e.handlers)
	e.mu.RUnlock()

	ctx, span := e.tracer.Start(ctx, "rpc "+req.Method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("rpc.system", "jsonrpc"),
			attribute.String("rpc.method", req.Method),
		),
	)
	defer span.End()

	call := *req
	call.JSONRPC = Version

	c := &Context{
		Context:  log.SetContextLogger(ctx, e.lg.WithKV("method", req.Method)),
		Request:  &call,
		Response: &Response{JSONRPC: Version, ID: req.ID},
		handlers: handlers,
	}
	c.Next()

	res := c.Response
	res.JSONRPC = Version
	res.ID = req.ID
	if !res.Settled() {
		e.lg.Error("request was not settled", "method", req.Method)
		res.Error = NewInternalError(fmt.Errorf("%w: %s", ErrNotHandled, req.Method))
	}

	if res.Error != nil {
		span.SetAttributes(attribute.Int("rpc.jsonrpc.error_code", res.Error.Code))
		span.SetStatus(codes.Error, res.Error.Message)
		return res, res.Error
	}
	return res, nil
}

// HandleBatch dispatches every request concurrently and returns the
// responses in request order. Per-request failures are reported in the
// corresponding response; the error is only set for an invalid batch.
func (e *Engine) HandleBatch(ctx context.Context, reqs []*Request) ([]*Response, error) {
	if len(reqs) == 0 {
		return nil, ErrEmptyBatch
	}
	for _, req := range reqs {
		if req == nil {
			return nil, ErrNilRequest
		}
	}

	responses := make([]*Response, len(reqs))
	var wg sync.WaitGroup
	wg.Add(len(reqs))
	for i, req := range reqs {
		go func() {
			defer wg.Done()
			responses[i], _ = e.Handle(ctx, req)
		}()
	}
	wg.Wait()

	return responses, nil
}
