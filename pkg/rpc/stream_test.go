package rpc_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erc7824/nitrolite/walletprovider/pkg/rpc"
	"github.com/erc7824/nitrolite/walletprovider/pkg/transport"
)

// peer answers requests read from d with answer until d ends.
func peer(d transport.Duplex, answer func(req rpc.Request) any) {
	go func() {
		for raw := range d.Inbound() {
			var req rpc.Request
			if err := json.Unmarshal(raw, &req); err != nil {
				continue
			}
			res := answer(req)
			if res == nil {
				continue
			}
			out, _ := json.Marshal(res)
			_ = d.Write(out)
		}
	}()
}

func newServedStream(t *testing.T) (*rpc.StreamConnection, transport.Duplex, chan error) {
	t.Helper()

	local, remote := transport.Pipe()
	conn := rpc.NewStreamConnection(rpc.DefaultStreamConnectionConfig, nil)
	closed := make(chan error, 1)
	require.NoError(t, conn.Serve(context.Background(), local, func(err error) { closed <- err }))
	return conn, remote, closed
}

func TestStreamConnection_RequestResponse(t *testing.T) {
	t.Parallel()

	conn, remote, _ := newServedStream(t)
	peer(remote, func(req rpc.Request) any {
		if req.Method == "eth_chainId" {
			return rpc.Response{JSONRPC: rpc.Version, ID: req.ID, Result: json.RawMessage(`"0x1"`)}
		}
		return rpc.Response{JSONRPC: rpc.Version, ID: req.ID, Error: rpc.NewMethodNotFoundError(req.Method)}
	})

	engine := rpc.NewEngine(nil)
	engine.Push(rpc.IDRemapMiddleware())
	engine.Push(conn.Middleware())

	res, err := engine.Handle(context.Background(), &rpc.Request{ID: json.RawMessage("1"), Method: "eth_chainId"})
	require.NoError(t, err)
	assert.Equal(t, `"0x1"`, string(res.Result))
	assert.Equal(t, "1", string(res.ID))

	_, err = engine.Handle(context.Background(), &rpc.Request{ID: json.RawMessage("1"), Method: "eth_foo"})
	var rpcErr *rpc.Error
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, rpc.CodeMethodNotFound, rpcErr.Code)
}

func TestStreamConnection_ConcurrentCallsAreCorrelated(t *testing.T) {
	t.Parallel()

	conn, remote, _ := newServedStream(t)
	peer(remote, func(req rpc.Request) any {
		return rpc.Response{JSONRPC: rpc.Version, ID: req.ID, Result: json.RawMessage(`"` + req.Method + `"`)}
	})

	engine := rpc.NewEngine(nil)
	engine.Push(rpc.IDRemapMiddleware(), conn.Middleware())

	methods := []string{"a", "b", "c", "d", "e"}
	var wg sync.WaitGroup
	for _, method := range methods {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := engine.Handle(context.Background(), &rpc.Request{ID: json.RawMessage("1"), Method: method})
			assert.NoError(t, err)
			assert.Equal(t, `"`+method+`"`, string(res.Result))
		}()
	}
	wg.Wait()
}

func TestStreamConnection_NotificationsInOrder(t *testing.T) {
	t.Parallel()

	local, remote := transport.Pipe()
	conn := rpc.NewStreamConnection(rpc.DefaultStreamConnectionConfig, nil)

	got := make(chan rpc.Notification, 3)
	conn.OnNotification(func(n rpc.Notification) { got <- n })
	require.NoError(t, conn.Serve(context.Background(), local, func(error) {}))

	for _, method := range []string{"first", "second", "third"} {
		raw, _ := json.Marshal(rpc.Notification{JSONRPC: rpc.Version, Method: method, Params: json.RawMessage(`[]`)})
		require.NoError(t, remote.Write(raw))
	}

	for _, method := range []string{"first", "second", "third"} {
		select {
		case n := <-got:
			assert.Equal(t, method, n.Method)
			assert.Equal(t, "[]", string(n.Params))
		case <-time.After(time.Second):
			require.FailNow(t, "notification not delivered")
		}
	}
}

func TestStreamConnection_NotificationHandlerMayCall(t *testing.T) {
	t.Parallel()

	local, remote := transport.Pipe()
	conn := rpc.NewStreamConnection(rpc.DefaultStreamConnectionConfig, nil)

	answered := make(chan string, 1)
	conn.OnNotification(func(n rpc.Notification) {
		res, err := conn.Call(context.Background(), &rpc.Request{ID: rpc.NewID(), Method: "eth_accounts"})
		if assert.NoError(t, err) {
			answered <- string(res.Result)
		}
	})
	require.NoError(t, conn.Serve(context.Background(), local, func(error) {}))

	peer(remote, func(req rpc.Request) any {
		return rpc.Response{JSONRPC: rpc.Version, ID: req.ID, Result: json.RawMessage(`["0xabc"]`)}
	})
	raw, _ := json.Marshal(rpc.Notification{JSONRPC: rpc.Version, Method: "metamask_unlockStateChanged"})
	require.NoError(t, remote.Write(raw))

	select {
	case res := <-answered:
		assert.Equal(t, `["0xabc"]`, res)
	case <-time.After(time.Second):
		require.FailNow(t, "nested call did not complete")
	}
}

func TestStreamConnection_PendingFailOnClose(t *testing.T) {
	t.Parallel()

	conn, remote, closed := newServedStream(t)
	peer(remote, func(rpc.Request) any { return nil })

	errCh := make(chan error, 1)
	go func() {
		_, err := conn.Call(context.Background(), &rpc.Request{ID: json.RawMessage("9"), Method: "eth_sign"})
		errCh <- err
	}()

	// Give the call time to register before the stream dies.
	time.Sleep(50 * time.Millisecond)
	cause := errors.New("transport died")
	require.NoError(t, remote.Close(cause))

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, rpc.ErrConnectionClosed)
	case <-time.After(time.Second):
		require.FailNow(t, "pending call was not failed")
	}

	select {
	case err := <-closed:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		require.FailNow(t, "closure not reported")
	}

	_, err := conn.Call(context.Background(), &rpc.Request{ID: json.RawMessage("10"), Method: "eth_sign"})
	assert.ErrorIs(t, err, rpc.ErrConnectionClosed)
}

func TestStreamConnection_ContextCancelled(t *testing.T) {
	t.Parallel()

	conn, remote, _ := newServedStream(t)
	peer(remote, func(rpc.Request) any { return nil })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := conn.Call(ctx, &rpc.Request{ID: json.RawMessage("1"), Method: "eth_sign"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// The id is free again after the caller gave up.
	ctx2, cancel2 := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel2()
	_, err = conn.Call(ctx2, &rpc.Request{ID: json.RawMessage("1"), Method: "eth_sign"})
	assert.NotErrorIs(t, err, rpc.ErrDuplicateID)
}

func TestStreamConnection_Misuse(t *testing.T) {
	t.Parallel()

	conn := rpc.NewStreamConnection(rpc.StreamConnectionConfig{}, nil)
	_, err := conn.Call(context.Background(), &rpc.Request{ID: json.RawMessage("1"), Method: "x"})
	assert.ErrorIs(t, err, rpc.ErrNotConnected)

	_, err = conn.Call(context.Background(), &rpc.Request{Method: "x"})
	assert.ErrorIs(t, err, rpc.ErrMissingID)

	_, err = conn.Call(context.Background(), nil)
	assert.ErrorIs(t, err, rpc.ErrNilRequest)

	local, _ := transport.Pipe()
	require.NoError(t, conn.Serve(context.Background(), local, func(error) {}))
	assert.Error(t, conn.Serve(context.Background(), local, func(error) {}))
}
