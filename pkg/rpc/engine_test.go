package rpc_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erc7824/nitrolite/walletprovider/pkg/rpc"
)

func TestEngine_MiddlewareOrder(t *testing.T) {
	t.Parallel()

	var trail []string
	engine := rpc.NewEngine(nil)
	engine.Push(func(c *rpc.Context) {
		trail = append(trail, "first:before")
		c.Next()
		trail = append(trail, "first:after")
	})
	engine.Push(func(c *rpc.Context) {
		trail = append(trail, "second")
		c.Succeed(map[string]string{"method": c.Request.Method})
	})
	engine.Push(func(c *rpc.Context) {
		trail = append(trail, "unreachable")
	})

	res, err := engine.Handle(context.Background(), &rpc.Request{ID: json.RawMessage("7"), Method: "eth_chainId"})
	require.NoError(t, err)

	assert.Equal(t, []string{"first:before", "second", "first:after"}, trail)
	assert.Equal(t, rpc.Version, res.JSONRPC)
	assert.Equal(t, "7", string(res.ID))
	assert.JSONEq(t, `{"method":"eth_chainId"}`, string(res.Result))
}

func TestEngine_Fail(t *testing.T) {
	t.Parallel()

	engine := rpc.NewEngine(nil)
	engine.Push(func(c *rpc.Context) {
		c.Fail(rpc.NewProviderError(rpc.CodeUserRejected, ""))
	})

	res, err := engine.Handle(context.Background(), &rpc.Request{ID: json.RawMessage("1"), Method: "eth_requestAccounts"})
	require.Error(t, err)

	var rpcErr *rpc.Error
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, rpc.CodeUserRejected, rpcErr.Code)
	assert.Equal(t, "User rejected the request.", rpcErr.Message)
	assert.Same(t, res.Error, rpcErr)
	assert.Nil(t, res.Result)
}

func TestEngine_PlainErrorBecomesInternal(t *testing.T) {
	t.Parallel()

	cause := errors.New("disk on fire")
	engine := rpc.NewEngine(nil)
	engine.Push(func(c *rpc.Context) { c.Fail(cause) })

	_, err := engine.Handle(context.Background(), &rpc.Request{Method: "x"})
	var rpcErr *rpc.Error
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, rpc.CodeInternal, rpcErr.Code)
	assert.ErrorIs(t, err, cause)
}

func TestEngine_NotHandled(t *testing.T) {
	t.Parallel()

	engine := rpc.NewEngine(nil)
	engine.Push(func(c *rpc.Context) {})

	res, err := engine.Handle(context.Background(), &rpc.Request{Method: "eth_blockNumber"})
	assert.ErrorIs(t, err, rpc.ErrNotHandled)
	require.NotNil(t, res.Error)
	assert.Equal(t, rpc.CodeInternal, res.Error.Code)
}

func TestEngine_NilResultIsNull(t *testing.T) {
	t.Parallel()

	engine := rpc.NewEngine(nil)
	engine.Push(func(c *rpc.Context) { c.Succeed(nil) })

	res, err := engine.Handle(context.Background(), &rpc.Request{Method: "eth_coinbase"})
	require.NoError(t, err)
	assert.Equal(t, "null", string(res.Result))
}

func TestEngine_NilRequest(t *testing.T) {
	t.Parallel()

	_, err := rpc.NewEngine(nil).Handle(context.Background(), nil)
	assert.ErrorIs(t, err, rpc.ErrNilRequest)
}

func TestEngine_DoesNotModifyCallerRequest(t *testing.T) {
	t.Parallel()

	engine := rpc.NewEngine(nil)
	engine.Push(rpc.IDRemapMiddleware())
	engine.Push(func(c *rpc.Context) {
		c.Request.Method = "rewritten"
		c.Succeed(true)
	})

	req := &rpc.Request{ID: json.RawMessage(`"abc"`), Method: "eth_accounts"}
	_, err := engine.Handle(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "eth_accounts", req.Method)
	assert.Equal(t, `"abc"`, string(req.ID))
	assert.Empty(t, req.JSONRPC)
}

func TestEngine_HandleBatch(t *testing.T) {
	t.Parallel()

	engine := rpc.NewEngine(nil)
	engine.Push(func(c *rpc.Context) {
		if c.Request.Method == "bad" {
			c.Fail(rpc.NewMethodNotFoundError(c.Request.Method))
			return
		}
		c.Succeed(c.Request.Method)
	})

	res, err := engine.HandleBatch(context.Background(), []*rpc.Request{
		{ID: json.RawMessage("1"), Method: "eth_chainId"},
		{ID: json.RawMessage("2"), Method: "bad"},
		{ID: json.RawMessage("3"), Method: "net_version"},
	})
	require.NoError(t, err)
	require.Len(t, res, 3)

	assert.Equal(t, `"eth_chainId"`, string(res[0].Result))
	assert.Equal(t, "1", string(res[0].ID))
	require.NotNil(t, res[1].Error)
	assert.Equal(t, rpc.CodeMethodNotFound, res[1].Error.Code)
	assert.Equal(t, `"net_version"`, string(res[2].Result))

	_, err = engine.HandleBatch(context.Background(), nil)
	assert.ErrorIs(t, err, rpc.ErrEmptyBatch)

	_, err = engine.HandleBatch(context.Background(), []*rpc.Request{nil})
	assert.ErrorIs(t, err, rpc.ErrNilRequest)
}

func TestIDRemapMiddleware(t *testing.T) {
	t.Parallel()

	var seen []string
	engine := rpc.NewEngine(nil)
	engine.Push(rpc.IDRemapMiddleware())
	engine.Push(func(c *rpc.Context) {
		seen = append(seen, string(c.Request.ID))
		c.Succeed(true)
	})

	for range 2 {
		res, err := engine.Handle(context.Background(), &rpc.Request{ID: json.RawMessage("1"), Method: "eth_chainId"})
		require.NoError(t, err)
		assert.Equal(t, "1", string(res.ID))
	}

	require.Len(t, seen, 2)
	assert.NotEqual(t, "1", seen[0])
	assert.NotEqual(t, seen[0], seen[1])
}
