// Package rpc provides the JSON-RPC 2.0 plumbing behind a wallet provider.
//
// The package has three parts:
//
//   - Message types: Request, Response, Notification and the Error object,
//     together with the standard and provider-specific error codes.
//   - Engine: a dispatch pipeline of middleware Handlers. Each call travels
//     down the chain through Context.Next until a handler settles the
//     response with Context.Succeed or Context.Fail.
//   - StreamConnection: a terminal middleware that forwards requests over a
//     transport.Duplex, correlates responses by id, and delivers unsolicited
//     notifications to a registered callback.
//
// # Dispatching a Request
//
//	engine := rpc.NewEngine(logger)
//	engine.Push(rpc.IDRemapMiddleware())
//	engine.Push(conn.Middleware())
//
//	res, err := engine.Handle(ctx, &rpc.Request{ID: rpc.NewID(), Method: "eth_chainId"})
//	if err != nil {
//	    var rpcErr *rpc.Error
//	    if errors.As(err, &rpcErr) {
//	        // the wallet answered with an error object
//	    }
//	}
//
// # Writing Middleware
//
//	func logRequests(c *rpc.Context) {
//	    lg := log.FromContext(c.Context)
//	    lg.Debug("request", "method", c.Request.Method)
//	    c.Next()
//	    if c.Response.Error != nil {
//	        lg.Warn("request failed", "code", c.Response.Error.Code)
//	    }
//	}
//
// Handlers that neither settle the response nor call Next leave the request
// unhandled; the engine then answers with an internal error wrapping
// ErrNotHandled.
package rpc
