package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/erc7824/nitrolite/walletprovider/pkg/events"
	"github.com/erc7824/nitrolite/walletprovider/pkg/log"
	"github.com/erc7824/nitrolite/walletprovider/pkg/rpc"
	"github.com/erc7824/nitrolite/walletprovider/pkg/transport"
)

var (
	_ Transitions   = (*LegacyProvider)(nil)
	_ events.Source = (*LegacyProvider)(nil)
)

// LegacyProvider keeps the deprecated provider surface working on top of a
// StreamProvider. Every deprecated symbol logs a warning the first time it is
// used.
type LegacyProvider struct {
	*StreamProvider

	lg       log.Logger
	warnings *warnings

	netMu          sync.RWMutex
	networkVersion string

	experimental ExperimentalAPI
}

// NewLegacyProvider binds a legacy provider to duplex and starts serving it.
func NewLegacyProvider(ctx context.Context, duplex transport.Duplex, cfg Config) (*LegacyProvider, error) {
	lg := log.OrNoop(cfg.Logger)
	cfg.Middleware = append([]rpc.Handler{DeprecatedMethodWarningMiddleware(lg, cfg.Metrics)}, cfg.Middleware...)

	sp, err := newStreamProvider(duplex, cfg)
	if err != nil {
		return nil, err
	}

	l := &LegacyProvider{
		StreamProvider: sp,
		lg:             lg.WithName("legacy-provider"),
		warnings:       newWarnings(lg.WithName("legacy-provider"), cfg.Metrics),
	}
	l.experimental = warnOnAccess{
		api:  experimentalAPI{core: sp.Core},
		warn: func() { l.warnings.warnOnce("experimentalMethods") },
	}

	sp.setOuter(l)
	if err := sp.serve(ctx); err != nil {
		return nil, err
	}
	return l, nil
}

// ChainID returns the active chain id, or "" when unknown.
//
// Deprecated: request eth_chainId instead.
func (l *LegacyProvider) ChainID() string {
	l.warnings.warnOnce("chainId")
	return l.Core.ChainID()
}

// NetworkVersion returns the active network version, or "" when unknown.
//
// Deprecated: request net_version instead.
func (l *LegacyProvider) NetworkVersion() string {
	l.warnings.warnOnce("networkVersion")
	return l.cachedNetworkVersion()
}

// SelectedAddress returns the first known account, or "" when none.
//
// Deprecated: request eth_accounts instead.
func (l *LegacyProvider) SelectedAddress() string {
	l.warnings.warnOnce("selectedAddress")
	return l.Core.SelectedAddress()
}

func (l *LegacyProvider) cachedNetworkVersion() string {
	l.netMu.RLock()
	defer l.netMu.RUnlock()

	return l.networkVersion
}

// Experimental returns the non-standard API. Its first use logs a warning.
func (l *LegacyProvider) Experimental() ExperimentalAPI {
	return l.experimental
}

// Enable requests the wallet's accounts.
//
// Deprecated: request eth_requestAccounts instead.
func (l *LegacyProvider) Enable(ctx context.Context) ([]string, error) {
	l.warnings.warnOnce("enable")

	res, err := l.Request(ctx, RequestArguments{Method: "eth_requestAccounts", Params: []any{}})
	if err != nil {
		return nil, err
	}

	var accounts []string
	if err := json.Unmarshal(res, &accounts); err != nil {
		return nil, rpc.NewInternalError(fmt.Errorf("malformed accounts result: %w", err))
	}
	return accounts, nil
}

// SendInput is one of the call shapes accepted by Send: SendMethod,
// SendWithCallback or SendSyncPayload.
type SendInput interface {
	isSendInput()
}

// SendMethod sends Method with Params and returns the full response.
type SendMethod struct {
	Method string
	Params []any
}

// SendWithCallback sends Payload and invokes Callback with the response.
type SendWithCallback struct {
	Payload  rpc.Request
	Callback func(res *rpc.Response, err error)
}

// SendSyncPayload answers Payload from cached state, see SendSync.
type SendSyncPayload struct {
	Payload rpc.Request
}

func (SendMethod) isSendInput()       {}
func (SendWithCallback) isSendInput() {}
func (SendSyncPayload) isSendInput()  {}

// Send dispatches in according to its shape. SendMethod blocks and returns
// the response; SendWithCallback returns immediately with a nil response;
// SendSyncPayload returns the SendSync answer.
//
// Deprecated: use Request instead.
func (l *LegacyProvider) Send(ctx context.Context, in SendInput) (*rpc.Response, error) {
	l.warnings.warnOnce("send")

	switch in := in.(type) {
	case SendMethod:
		args := RequestArguments{Method: in.Method}
		if in.Params != nil {
			args.Params = in.Params
		}
		req, err := l.buildRequest(args)
		if err != nil {
			return nil, err
		}
		return l.rpcRequest(ctx, req)

	case SendWithCallback:
		l.SendAsync(ctx, in.Payload, in.Callback)
		return nil, nil

	case SendSyncPayload:
		return l.SendSync(in.Payload)

	default:
		return nil, rpc.NewInvalidRequestError("unsupported send input", in)
	}
}

// SendAsync sends payload and invokes callback exactly once, on its own
// goroutine, with the response or the error.
func (l *LegacyProvider) SendAsync(ctx context.Context, payload rpc.Request, callback func(res *rpc.Response, err error)) {
	go func() {
		res, err := l.rpcRequest(ctx, &payload)
		if callback != nil {
			callback(res, err)
		}
	}()
}

// SendSync answers eth_accounts, eth_coinbase, eth_uninstallFilter and
// net_version without waiting for the wallet. eth_uninstallFilter is still
// forwarded, without waiting for its answer. Any other method fails with
// ErrUnsupportedSyncMethod.
func (l *LegacyProvider) SendSync(payload rpc.Request) (*rpc.Response, error) {
	var result any

	switch payload.Method {
	case "eth_accounts":
		result = []string{}
		if selected := l.Core.SelectedAddress(); selected != "" {
			result = []string{selected}
		}

	case "eth_coinbase":
		if selected := l.Core.SelectedAddress(); selected != "" {
			result = selected
		}

	case "eth_uninstallFilter":
		req := payload
		go func() {
			if _, err := l.rpcRequest(context.Background(), &req); err != nil {
				l.lg.Debug("eth_uninstallFilter failed", "error", err)
			}
		}()
		result = true

	case "net_version":
		if nv := l.cachedNetworkVersion(); nv != "" {
			result = nv
		}

	default:
		return nil, fmt.Errorf("%w: %s requires a callback or the request method", ErrUnsupportedSyncMethod, payload.Method)
	}

	raw, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	return &rpc.Response{JSONRPC: rpc.Version, ID: payload.ID, Result: raw}, nil
}

// HandleDisconnect clears the cached network version on a non-recoverable
// disconnect and then emits the deprecated EventClose.
func (l *LegacyProvider) HandleDisconnect(isRecoverable bool, message string) {
	err := l.disconnect(isRecoverable, message)
	if isRecoverable {
		return
	}

	l.netMu.Lock()
	l.networkVersion = ""
	l.netMu.Unlock()

	if err != nil {
		l.Emit(EventClose, err)
	}
}

// HandleChainChanged also tracks the network version and emits
// EventNetworkChanged when it changes on a connected, initialized provider.
func (l *LegacyProvider) HandleChainChanged(params ChainChangedParams) {
	l.StreamProvider.HandleChainChanged(params)

	if !l.IsConnected() || params.NetworkVersion == "" || params.NetworkVersion == networkVersionLoading {
		return
	}

	l.netMu.Lock()
	if l.networkVersion == params.NetworkVersion {
		l.netMu.Unlock()
		return
	}
	l.networkVersion = params.NetworkVersion
	l.netMu.Unlock()

	if l.IsInitialized() {
		l.Emit(EventNetworkChanged, params.NetworkVersion)
	}
}

func (l *LegacyProvider) handleSubscription(n rpc.Notification) {
	l.Emit(EventData, n)

	var params struct {
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(n.Params, &params); err != nil {
		l.lg.Warn("received malformed subscription notification", "params", string(n.Params), "error", err)
		return
	}
	l.Emit(EventNotification, params.Result)
}

func (l *LegacyProvider) warnEvent(event string) {
	if symbol, ok := deprecatedEvents[event]; ok {
		l.warnings.warnOnce(symbol)
	}
}

// On subscribes fn to event. Subscribing to a deprecated event logs its
// deprecation warning the first time.
func (l *LegacyProvider) On(event string, fn events.Listener) func() {
	l.warnEvent(event)
	return l.Emitter.On(event, fn)
}

// AddListener is an alias of On.
func (l *LegacyProvider) AddListener(event string, fn events.Listener) func() {
	l.warnEvent(event)
	return l.Emitter.AddListener(event, fn)
}

// Once subscribes fn to the next emission of event only. Deprecated events
// warn as with On.
func (l *LegacyProvider) Once(event string, fn events.Listener) func() {
	l.warnEvent(event)
	return l.Emitter.Once(event, fn)
}

// PrependListener subscribes fn ahead of the existing listeners of event.
// Deprecated events warn as with On.
func (l *LegacyProvider) PrependListener(event string, fn events.Listener) func() {
	l.warnEvent(event)
	return l.Emitter.PrependListener(event, fn)
}

// PrependOnceListener combines PrependListener and Once.
func (l *LegacyProvider) PrependOnceListener(event string, fn events.Listener) func() {
	l.warnEvent(event)
	return l.Emitter.PrependOnceListener(event, fn)
}
