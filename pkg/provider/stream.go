package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/erc7824/nitrolite/walletprovider/pkg/log"
	"github.com/erc7824/nitrolite/walletprovider/pkg/rpc"
	"github.com/erc7824/nitrolite/walletprovider/pkg/transport"
)

const networkVersionLoading = "loading"

// errPermanentlyDisconnected destroys the transport when the wallet reports a stream failure.
var errPermanentlyDisconnected = errors.New("disconnected from the wallet background, page reload required")

// emittedNotifications are re-emitted to applications as EventMessage.
var emittedNotifications = map[string]bool{
	MethodSubscription: true,
}

// subscriptionHandler is implemented by layers that publish subscription
// notifications beyond EventMessage.
type subscriptionHandler interface {
	handleSubscription(n rpc.Notification)
}

var _ Transitions = (*StreamProvider)(nil)

// StreamProvider is a provider whose wallet is reached over a multiplexed
// duplex transport. JSON-RPC travels on a dedicated substream; wallet
// notifications on that substream drive the provider transitions.
type StreamProvider struct {
	*Core

	lg        log.Logger
	mux       *transport.Mux
	rpcStream *transport.Substream
	conn      *rpc.StreamConnection
}

// NewStreamProvider binds a new provider to duplex and starts serving it until
// the transport ends or ctx is done. It fails with ErrInvalidDuplex when
// duplex is nil. Callers normally follow with InitializeStateAsync.
func NewStreamProvider(ctx context.Context, duplex transport.Duplex, cfg Config) (*StreamProvider, error) {
	sp, err := newStreamProvider(duplex, cfg)
	if err != nil {
		return nil, err
	}
	sp.setOuter(sp)
	if err := sp.serve(ctx); err != nil {
		return nil, err
	}
	return sp, nil
}

func newStreamProvider(duplex transport.Duplex, cfg Config) (*StreamProvider, error) {
	if duplex == nil {
		return nil, ErrInvalidDuplex
	}
	if cfg.JSONRPCStreamName == "" {
		cfg.JSONRPCStreamName = DefaultJSONRPCStreamName
	}

	lg := log.OrNoop(cfg.Logger)
	mux := transport.NewMux(duplex, lg)
	rpcStream, err := mux.CreateStream(cfg.JSONRPCStreamName)
	if err != nil {
		return nil, fmt.Errorf("failed to create JSON-RPC substream: %w", err)
	}

	sp := &StreamProvider{
		Core:      NewCore(cfg),
		lg:        lg.WithName("stream-provider"),
		mux:       mux,
		rpcStream: rpcStream,
		conn:      rpc.NewStreamConnection(rpc.DefaultStreamConnectionConfig, lg),
	}
	sp.conn.OnNotification(sp.routeNotification)
	sp.engine.Push(rpc.IDRemapMiddleware(), sp.conn.Middleware())
	return sp, nil
}

func (sp *StreamProvider) serve(ctx context.Context) error {
	sp.mux.Serve(ctx, func(err error) {
		sp.handleStreamDisconnect("wallet transport", err)
	})
	return sp.conn.Serve(ctx, sp.rpcStream, func(err error) {
		sp.handleStreamDisconnect(sp.rpcStream.Name(), err)
	})
}

// Mux returns the multiplexer, for callers that need further substreams.
func (sp *StreamProvider) Mux() *transport.Mux {
	return sp.mux
}

// Close ends the transport. The provider becomes permanently disconnected.
func (sp *StreamProvider) Close() error {
	return sp.mux.Destroy(nil)
}

// InitializeStateAsync queries the wallet for its provider state and
// initializes the provider with the answer. A failed query is logged and
// initializes the provider without a snapshot. The returned channel receives
// the InitializeState result.
func (sp *StreamProvider) InitializeStateAsync(ctx context.Context) <-chan error {
	done := make(chan error, 1)
	go func() {
		done <- sp.initializeStateFromWallet(ctx)
	}()
	return done
}

func (sp *StreamProvider) initializeStateFromWallet(ctx context.Context) error {
	var initial *InitialState

	res, err := sp.Request(ctx, RequestArguments{Method: MethodGetProviderState})
	if err != nil {
		sp.lg.Error("failed to get initial state, please report this bug", "error", err)
	} else if err := json.Unmarshal(res, &initial); err != nil {
		sp.lg.Error("received malformed initial state", "state", string(res), "error", err)
		initial = nil
	}

	return sp.InitializeState(initial)
}

// HandleChainChanged validates both the chain id and the network version. A
// network version of "loading" signals a wallet-side network switch and is
// reported as a recoverable disconnect instead of a chain change.
func (sp *StreamProvider) HandleChainChanged(params ChainChangedParams) {
	if validate.Var(params.ChainID, "required,startswith=0x") != nil || validate.Var(params.NetworkVersion, "required") != nil {
		sp.lg.Error("received invalid network parameters", "chainId", params.ChainID, "networkVersion", params.NetworkVersion)
		return
	}

	if params.NetworkVersion == networkVersionLoading {
		sp.transitions().HandleDisconnect(true, "")
		return
	}
	sp.Core.HandleChainChanged(params)
}

// handleStreamDisconnect is called when either the transport or the JSON-RPC
// substream ends. Losing either is never recoverable.
func (sp *StreamProvider) handleStreamDisconnect(streamName string, err error) {
	warning := fmt.Sprintf("lost connection to %q", streamName)
	if err != nil {
		warning = fmt.Sprintf("%s: %v", warning, err)
	}
	sp.lg.Warn(warning)

	if sp.ListenerCount(EventError) > 0 {
		sp.Emit(EventError, warning)
	}

	message := ""
	if err != nil {
		message = err.Error()
	}

	sp.transitionMu.Lock()
	defer sp.transitionMu.Unlock()
	sp.transitions().HandleDisconnect(false, message)
}

func (sp *StreamProvider) routeNotification(n rpc.Notification) {
	sp.metrics.recordNotification(n.Method)

	sp.transitionMu.Lock()
	defer sp.transitionMu.Unlock()

	t := sp.transitions()
	switch n.Method {
	case MethodAccountsChanged:
		t.HandleAccountsChanged(accountsFromJSON(sp.lg, n.Params), false)

	case MethodUnlockStateChanged:
		var params struct {
			Accounts   json.RawMessage `json:"accounts"`
			IsUnlocked *bool           `json:"isUnlocked"`
		}
		if err := json.Unmarshal(n.Params, &params); err != nil {
			sp.lg.Error("received invalid unlock state parameters", "params", string(n.Params), "error", err)
			return
		}
		var accounts []string
		if len(params.Accounts) > 0 && string(params.Accounts) != "null" {
			accounts = accountsFromJSON(sp.lg, params.Accounts)
		}
		t.HandleUnlockStateChanged(UnlockStateParams{Accounts: accounts, IsUnlocked: params.IsUnlocked})

	case MethodChainChanged:
		var params ChainChangedParams
		if err := json.Unmarshal(n.Params, &params); err != nil {
			sp.lg.Error("received invalid network parameters", "params", string(n.Params), "error", err)
			return
		}
		t.HandleChainChanged(params)

	case MethodStreamFailure:
		sp.lg.Error("wallet reported a stream failure")
		if err := sp.mux.Destroy(errPermanentlyDisconnected); err != nil {
			sp.lg.Warn("failed to destroy transport", "error", err)
		}

	default:
		if !emittedNotifications[n.Method] {
			sp.lg.Debug("ignoring notification", "method", n.Method)
			return
		}
		sp.Emit(EventMessage, Message{Type: n.Method, Data: n.Params})
		if sh, ok := t.(subscriptionHandler); ok {
			sh.handleSubscription(n)
		}
	}
}
