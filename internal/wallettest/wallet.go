// Package wallettest provides a scripted wallet peer for exercising providers
// without a real wallet.
package wallettest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/erc7824/nitrolite/walletprovider/pkg/log"
	"github.com/erc7824/nitrolite/walletprovider/pkg/rpc"
	"github.com/erc7824/nitrolite/walletprovider/pkg/transport"
)

// Handler answers one request. Returning an *rpc.Error sends that error
// object; any other error is sent as an internal error.
type Handler func(params json.RawMessage, publish Publisher) (any, error)

// Publisher pushes a notification to the provider.
type Publisher func(method string, params any)

// ProviderState is the answer to the provider state query.
type ProviderState struct {
	Accounts       []string `json:"accounts"`
	ChainID        string   `json:"chainId"`
	IsUnlocked     bool     `json:"isUnlocked"`
	NetworkVersion string   `json:"networkVersion"`
}

// Wallet plays the remote wallet on the far end of an in-memory pipe. It
// answers requests arriving on the JSON-RPC substream with registered
// handlers and can push notifications at any time.
type Wallet struct {
	lg     log.Logger
	end    transport.Duplex
	mux    *transport.Mux
	stream *transport.Substream

	mu       sync.Mutex
	handlers map[string]Handler
	requests []rpc.Request
}

// New starts a wallet serving the substream streamName. It returns the wallet
// and the duplex end to hand to a provider.
func New(streamName string, lg log.Logger) (*Wallet, transport.Duplex) {
	providerEnd, walletEnd := transport.Pipe()

	mux := transport.NewMux(walletEnd, lg)
	stream, err := mux.CreateStream(streamName)
	if err != nil {
		panic(fmt.Sprintf("wallettest: %v", err))
	}

	w := &Wallet{
		lg:       log.OrNoop(lg).WithName("wallet"),
		end:      walletEnd,
		mux:      mux,
		stream:   stream,
		handlers: make(map[string]Handler),
	}
	mux.Serve(context.Background(), func(error) {})
	go w.serve()

	return w, providerEnd
}

// RegisterHandler answers method with handler from now on.
func (w *Wallet) RegisterHandler(method string, handler Handler) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.handlers[method] = handler
}

// RegisterResult answers method with a fixed result.
func (w *Wallet) RegisterResult(method string, result any) {
	w.RegisterHandler(method, func(json.RawMessage, Publisher) (any, error) {
		return result, nil
	})
}

// ServeProviderState answers the provider state query with a snapshot for
// the given chain.
func (w *Wallet) ServeProviderState(chainID uint64, networkVersion string, accounts []string, isUnlocked bool) {
	w.RegisterResult("metamask_getProviderState", ProviderState{
		Accounts:       accounts,
		ChainID:        hexutil.EncodeUint64(chainID),
		IsUnlocked:     isUnlocked,
		NetworkVersion: networkVersion,
	})
}

// Notify pushes a notification to the provider.
func (w *Wallet) Notify(method string, params any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return err
	}
	msg, err := json.Marshal(rpc.Notification{JSONRPC: rpc.Version, Method: method, Params: raw})
	if err != nil {
		return err
	}
	return w.stream.Write(msg)
}

// SwitchChain announces a chain switch.
func (w *Wallet) SwitchChain(chainID uint64, networkVersion string) error {
	return w.Notify("metamask_chainChanged", map[string]string{
		"chainId":        hexutil.EncodeUint64(chainID),
		"networkVersion": networkVersion,
	})
}

// Requests returns the requests received so far.
func (w *Wallet) Requests() []rpc.Request {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]rpc.Request, len(w.requests))
	copy(out, w.requests)
	return out
}

// RequestCount returns how many requests for method were received.
func (w *Wallet) RequestCount(method string) int {
	n := 0
	for _, req := range w.Requests() {
		if req.Method == method {
			n++
		}
	}
	return n
}

// Close ends the wallet's side of the pipe. A non-nil cause destroys it.
func (w *Wallet) Close(cause error) error {
	return w.end.Close(cause)
}

func (w *Wallet) serve() {
	for raw := range w.stream.Inbound() {
		var req rpc.Request
		if err := json.Unmarshal(raw, &req); err != nil {
			w.lg.Warn("malformed request", "message", string(raw), "error", err)
			continue
		}

		w.mu.Lock()
		w.requests = append(w.requests, req)
		handler, ok := w.handlers[req.Method]
		w.mu.Unlock()

		res := rpc.Response{JSONRPC: rpc.Version, ID: req.ID}
		if !ok {
			res.Error = rpc.NewMethodNotFoundError(req.Method)
		} else if result, err := handler(req.Params, w.publish); err != nil {
			res.Error = rpc.AsError(err)
		} else if res.Result, err = json.Marshal(result); err != nil {
			res.Error = rpc.NewInternalError(err)
		}

		if len(req.ID) == 0 {
			continue
		}
		out, err := json.Marshal(res)
		if err != nil {
			w.lg.Error("failed to marshal response", "error", err)
			continue
		}
		if err := w.stream.Write(out); err != nil {
			w.lg.Warn("failed to send response", "error", err)
			return
		}
	}
}

func (w *Wallet) publish(method string, params any) {
	if err := w.Notify(method, params); err != nil {
		w.lg.Warn("failed to publish notification", "method", method, "error", err)
	}
}
