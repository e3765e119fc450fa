package provider

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-playground/validator/v10"

	"github.com/erc7824/nitrolite/walletprovider/pkg/events"
	"github.com/erc7824/nitrolite/walletprovider/pkg/log"
	"github.com/erc7824/nitrolite/walletprovider/pkg/rpc"
)

var validate = validator.New()

// Config contains the collaborators of a provider.
type Config struct {
	// Logger receives diagnostics. Defaults to a NoopLogger.
	Logger log.Logger
	// Metrics records provider metrics. Nil disables metrics.
	Metrics *Metrics
	// Middleware is pushed onto the dispatch engine before any transport middleware.
	Middleware []rpc.Handler
	// JSONRPCStreamName names the multiplexed substream carrying JSON-RPC.
	JSONRPCStreamName string
}

// DefaultJSONRPCStreamName is the substream name used when Config leaves it empty.
const DefaultJSONRPCStreamName = "metamask-provider"

// RequestArguments are the arguments of Core.Request. Params, when set, must
// marshal to a JSON array or object.
type RequestArguments struct {
	Method string `json:"method" validate:"required"`
	Params any    `json:"params,omitempty"`
}

var (
	_ Transitions   = (*Core)(nil)
	_ events.Source = (*Core)(nil)
)

// Core is the transport-agnostic provider state machine. It owns the
// provider state and emits lifecycle events; requests are dispatched through
// its rpc.Engine.
type Core struct {
	*events.Emitter

	lg      log.Logger
	metrics *Metrics
	engine  *rpc.Engine

	mu              sync.RWMutex
	state           state
	chainID         string
	selectedAddress string
	outer           Transitions

	// transitionMu serializes compound transitions: notification routing,
	// state initialization and transport failure handling.
	transitionMu sync.Mutex

	emitMu     sync.Mutex
	pending    []queuedEvent
	delivering bool
}

type queuedEvent struct {
	name    string
	payload any
}

// NewCore creates a Core with an engine holding cfg.Middleware. Without a
// terminal middleware pushed by a transport layer every request fails.
func NewCore(cfg Config) *Core {
	c := &Core{
		Emitter: events.NewEmitter(),
		lg:      log.OrNoop(cfg.Logger),
		metrics: cfg.Metrics,
		engine:  rpc.NewEngine(cfg.Logger),
	}
	c.outer = c
	c.engine.Push(cfg.Middleware...)
	return c
}

func (c *Core) setOuter(t Transitions) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.outer = t
}

func (c *Core) transitions() Transitions {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.outer
}

// Engine returns the dispatch engine requests are sent through.
func (c *Core) Engine() *rpc.Engine {
	return c.engine
}

// IsConnected reports whether the provider can reach the wallet.
func (c *Core) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.state.isConnected
}

// IsUnlockedState reports the last unlock state reported by the wallet.
func (c *Core) IsUnlockedState() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.state.isUnlocked
}

// IsInitialized reports whether InitializeState has completed.
func (c *Core) IsInitialized() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.state.initialized
}

// IsPermanentlyDisconnected reports whether a non-recoverable disconnect occurred.
func (c *Core) IsPermanentlyDisconnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.state.isPermanentlyDisconnected
}

// Accounts returns a copy of the known accounts, or nil if the wallet never
// reported them.
func (c *Core) Accounts() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.state.accounts == nil {
		return nil
	}
	return cloneAccounts(c.state.accounts)
}

// ChainID returns the active chain id, or "" when unknown.
func (c *Core) ChainID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.chainID
}

// ChainIDUint64 decodes the active chain id.
func (c *Core) ChainIDUint64() (uint64, error) {
	return hexutil.DecodeUint64(c.ChainID())
}

// SelectedAddress returns the first known account, or "" when none.
func (c *Core) SelectedAddress() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.selectedAddress
}

// Request submits a JSON-RPC request to the wallet and returns its result.
// Malformed arguments fail with an invalid request error carrying args as
// data. Cancelling ctx stops the wait; it does not retract the request.
func (c *Core) Request(ctx context.Context, args RequestArguments) (json.RawMessage, error) {
	req, err := c.buildRequest(args)
	if err != nil {
		return nil, err
	}

	res, err := c.rpcRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	return res.Result, nil
}

func (c *Core) buildRequest(args RequestArguments) (*rpc.Request, error) {
	if err := validate.Struct(args); err != nil {
		return nil, rpc.NewInvalidRequestError("'args.method' must be a non-empty string.", args)
	}

	req := &rpc.Request{ID: rpc.NewID(), Method: args.Method}
	if args.Params == nil {
		return req, nil
	}

	params, err := rpc.Params(args.Params)
	trimmed := strings.TrimSpace(string(params))
	if err != nil || !(strings.HasPrefix(trimmed, "[") || strings.HasPrefix(trimmed, "{")) {
		return nil, rpc.NewInvalidRequestError("'args.params' must be an object or array if provided.", args)
	}
	req.Params = params
	return req, nil
}

// rpcRequest dispatches req. Account-returning methods feed their result to
// the accounts transition before the caller sees the response.
func (c *Core) rpcRequest(ctx context.Context, req *rpc.Request) (*rpc.Response, error) {
	res, err := c.engine.Handle(ctx, req)

	code := 0
	if res != nil && res.Error != nil {
		code = res.Error.Code
	}
	c.metrics.recordRequest(req.Method, code)

	if req.Method == "eth_accounts" || req.Method == "eth_requestAccounts" {
		if ctx.Err() == nil || !errors.Is(err, ctx.Err()) {
			accounts := []string{}
			if err == nil && res != nil && len(res.Result) > 0 {
				accounts = accountsFromJSON(c.lg, res.Result)
			}
			c.transitions().HandleAccountsChanged(accounts, req.Method == "eth_accounts")
		}
	}

	return res, err
}

// InitializeState populates the provider state once. With a non-nil initial
// snapshot it drives connect, chain, unlock and accounts transitions in that
// order before latching the initialized flag and emitting EventInitialized.
// A second call fails with ErrAlreadyInitialized.
func (c *Core) InitializeState(initial *InitialState) error {
	c.transitionMu.Lock()
	defer c.transitionMu.Unlock()

	return c.initializeState(initial)
}

func (c *Core) initializeState(initial *InitialState) error {
	if c.IsInitialized() {
		return ErrAlreadyInitialized
	}

	if initial != nil {
		t := c.transitions()
		isUnlocked := initial.IsUnlocked
		t.HandleConnect(initial.ChainID)
		t.HandleChainChanged(ChainChangedParams{ChainID: initial.ChainID, NetworkVersion: initial.NetworkVersion})
		t.HandleUnlockStateChanged(UnlockStateParams{Accounts: initial.Accounts, IsUnlocked: &isUnlocked})
		t.HandleAccountsChanged(initial.Accounts, false)
	}

	c.mu.Lock()
	c.state.initialized = true
	c.enqueue(EventInitialized, nil)
	c.mu.Unlock()

	c.deliver()
	return nil
}

// Emit delivers event to its listeners. Events are delivered one at a time,
// in the order the state changes behind them were made; an event emitted
// from inside a listener is delivered after that listener returns.
func (c *Core) Emit(event string, payload any) {
	c.enqueue(event, payload)
	c.deliver()
}

// enqueue queues an event. Transitions call it while holding c.mu so the
// queue order matches the order of the state updates.
func (c *Core) enqueue(event string, payload any) {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()

	c.pending = append(c.pending, queuedEvent{name: event, payload: payload})
}

// deliver drains the queue unless another goroutine is already draining it.
// That goroutine then delivers the events queued here as well.
func (c *Core) deliver() {
	for {
		c.emitMu.Lock()
		if c.delivering || len(c.pending) == 0 {
			c.emitMu.Unlock()
			return
		}
		c.delivering = true
		c.emitMu.Unlock()

		c.drain()
	}
}

func (c *Core) drain() {
	defer func() {
		c.emitMu.Lock()
		c.delivering = false
		c.emitMu.Unlock()
	}()

	for {
		c.emitMu.Lock()
		if len(c.pending) == 0 {
			c.emitMu.Unlock()
			return
		}
		ev := c.pending[0]
		c.pending = c.pending[1:]
		c.emitMu.Unlock()

		c.Emitter.Emit(ev.name, ev.payload)
	}
}

// HandleConnect marks the provider connected. Repeated calls are no-ops.
// EventConnect is only emitted once the provider is initialized.
func (c *Core) HandleConnect(chainID string) {
	c.mu.Lock()
	if c.state.isConnected {
		c.mu.Unlock()
		return
	}
	c.state.isConnected = true
	if c.state.initialized {
		c.enqueue(EventConnect, ConnectInfo{ChainID: chainID})
	}
	c.mu.Unlock()

	c.metrics.recordConnect()
	c.lg.Debug("connected", "chainId", chainID)
	c.deliver()
}

// HandleDisconnect marks the provider disconnected and emits EventDisconnect
// with an *rpc.Error. A non-recoverable disconnect also clears the chain, the
// accounts and the unlock state, and latches the permanent flag.
func (c *Core) HandleDisconnect(isRecoverable bool, message string) {
	c.disconnect(isRecoverable, message)
}

// disconnect returns the emitted error, or nil when the transition was suppressed.
func (c *Core) disconnect(isRecoverable bool, message string) *rpc.Error {
	c.mu.Lock()
	permanent := c.state.isPermanentlyDisconnected
	if !c.state.isConnected && (permanent || isRecoverable) && !(permanent && isRecoverable) {
		c.mu.Unlock()
		return nil
	}
	c.state.isConnected = false

	var err *rpc.Error
	if isRecoverable {
		err = rpc.NewProviderError(rpc.CodeTryAgainLater, message)
	} else {
		err = rpc.NewProviderError(rpc.CodeConnectionLost, message)
		c.chainID = ""
		c.state.accounts = nil
		c.selectedAddress = ""
		c.state.isUnlocked = false
		c.state.isPermanentlyDisconnected = true
	}
	c.enqueue(EventDisconnect, err)
	c.mu.Unlock()

	c.metrics.recordDisconnect(isRecoverable)
	if isRecoverable {
		c.lg.Debug("disconnected", "error", err.Message, "code", err.Code)
	} else {
		c.lg.Error("disconnected", "error", err.Message, "code", err.Code)
	}

	c.deliver()
	return err
}

// HandleChainChanged records a chain report. Reports without a 0x prefixed
// chain id are logged and ignored. A valid report implies connectivity;
// EventChainChanged is emitted only for a changed chain after initialization.
func (c *Core) HandleChainChanged(params ChainChangedParams) {
	if err := validate.Var(params.ChainID, "required,startswith=0x"); err != nil {
		c.lg.Error("received invalid network parameters", "chainId", params.ChainID)
		return
	}

	c.transitions().HandleConnect(params.ChainID)

	c.mu.Lock()
	if c.chainID == params.ChainID {
		c.mu.Unlock()
		return
	}
	c.chainID = params.ChainID
	if c.state.initialized {
		c.enqueue(EventChainChanged, params.ChainID)
	}
	c.mu.Unlock()

	c.deliver()
}

// HandleAccountsChanged records an account report. A nil slice counts as no
// accounts. Listeners of EventAccountsChanged receive their own copy.
func (c *Core) HandleAccountsChanged(accounts []string, isKnownReadMethod bool) {
	next := cloneAccounts(accounts)

	c.mu.Lock()
	prev := c.state.accounts
	if prev != nil && slices.Equal(prev, next) {
		c.mu.Unlock()
		return
	}

	c.state.accounts = next
	selected := ""
	if len(next) > 0 {
		selected = next[0]
	}
	c.selectedAddress = selected
	if c.state.initialized {
		c.enqueue(EventAccountsChanged, cloneAccounts(next))
	}
	c.mu.Unlock()

	if isKnownReadMethod && prev != nil {
		c.lg.Error("accounts unexpectedly changed by a read method", "previous", prev, "accounts", next)
	}
	c.deliver()
}

// HandleUnlockStateChanged records an unlock report and re-asserts the
// reported accounts when the unlock state changes.
func (c *Core) HandleUnlockStateChanged(params UnlockStateParams) {
	if params.IsUnlocked == nil {
		c.lg.Error("received invalid isUnlocked parameter")
		return
	}

	c.mu.Lock()
	if c.state.isUnlocked == *params.IsUnlocked {
		c.mu.Unlock()
		return
	}
	c.state.isUnlocked = *params.IsUnlocked
	c.mu.Unlock()

	accounts := params.Accounts
	if accounts == nil {
		accounts = []string{}
	}
	c.transitions().HandleAccountsChanged(accounts, false)
}
