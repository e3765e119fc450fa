package provider

import (
	"sync"

	"github.com/erc7824/nitrolite/walletprovider/pkg/log"
	"github.com/erc7824/nitrolite/walletprovider/pkg/rpc"
)

// Deprecation messages, keyed by the symbol they are tracked under.
var deprecationMessages = map[string]string{
	"chainId":             "'provider.chainId' is deprecated and may be removed in the future; use the 'eth_chainId' method instead",
	"networkVersion":      "'provider.networkVersion' is deprecated and may be removed in the future; use the 'net_version' method instead",
	"selectedAddress":     "'provider.selectedAddress' is deprecated and may be removed in the future; use the 'eth_accounts' method instead",
	"enable":              "'provider.enable()' is deprecated and may be removed in the future; use the 'eth_requestAccounts' method instead",
	"send":                "'provider.send()' is deprecated and may be removed in the future; use 'provider.request()' instead",
	"experimentalMethods": "'provider._metamask' exposes non-standard, experimental methods that may change without warning",
	"events.close":        "the provider 'close' event is deprecated and may be removed in the future; use 'disconnect' instead",
	"events.data":         "the provider 'data' event is deprecated and will be removed in the future; use 'message' instead",
	"events.networkChanged": "the provider 'networkChanged' event is deprecated and may be removed in the future; " +
		"use 'chainChanged' instead",
	"events.notification": "the provider 'notification' event is deprecated and may be removed in the future; use 'message' instead",

	"eth_decrypt":                "the RPC method 'eth_decrypt' is deprecated and may be removed in the future",
	"eth_getEncryptionPublicKey": "the RPC method 'eth_getEncryptionPublicKey' is deprecated and may be removed in the future",
}

var deprecatedEvents = map[string]string{
	EventClose:          "events.close",
	EventData:           "events.data",
	EventNetworkChanged: "events.networkChanged",
	EventNotification:   "events.notification",
}

var deprecatedMethods = []string{"eth_decrypt", "eth_getEncryptionPublicKey"}

// warnings logs each deprecation at most once per instance.
type warnings struct {
	lg      log.Logger
	metrics *Metrics

	mu   sync.Mutex
	sent map[string]bool
}

func newWarnings(lg log.Logger, metrics *Metrics) *warnings {
	return &warnings{
		lg:      log.OrNoop(lg),
		metrics: metrics,
		sent:    make(map[string]bool),
	}
}

// warnOnce logs the deprecation of symbol if it was not logged before and
// reports whether it did.
func (w *warnings) warnOnce(symbol string) bool {
	w.mu.Lock()
	if w.sent[symbol] {
		w.mu.Unlock()
		return false
	}
	w.sent[symbol] = true
	w.mu.Unlock()

	w.lg.Warn(deprecationMessages[symbol], "symbol", symbol)
	w.metrics.recordDeprecation(symbol)
	return true
}

// DeprecatedMethodWarningMiddleware logs a one-time warning the first time
// each deprecated RPC method is requested, then passes the request on.
func DeprecatedMethodWarningMiddleware(lg log.Logger, metrics *Metrics) rpc.Handler {
	w := newWarnings(log.OrNoop(lg).WithName("rpc-warnings"), metrics)
	tracked := make(map[string]bool, len(deprecatedMethods))
	for _, method := range deprecatedMethods {
		tracked[method] = true
	}

	return func(c *rpc.Context) {
		if tracked[c.Request.Method] {
			w.warnOnce(c.Request.Method)
		}
		c.Next()
	}
}
