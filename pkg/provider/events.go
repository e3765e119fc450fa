package provider

import "encoding/json"

// Events emitted to applications.
const (
	EventConnect         = "connect"
	EventDisconnect      = "disconnect"
	EventChainChanged    = "chainChanged"
	EventAccountsChanged = "accountsChanged"
	EventMessage         = "message"
	EventError           = "error"
	EventInitialized     = "_initialized"

	// Legacy events, emitted by LegacyProvider only.
	EventNetworkChanged = "networkChanged"
	EventClose          = "close"
	EventData           = "data"
	EventNotification   = "notification"
)

// Wallet notification methods understood by the stream router.
const (
	MethodAccountsChanged    = "metamask_accountsChanged"
	MethodUnlockStateChanged = "metamask_unlockStateChanged"
	MethodChainChanged       = "metamask_chainChanged"
	MethodSubscription       = "eth_subscription"
	MethodStreamFailure      = "METAMASK_STREAM_FAILURE"
	MethodGetProviderState   = "metamask_getProviderState"
)

// ConnectInfo is the payload of EventConnect.
type ConnectInfo struct {
	ChainID string `json:"chainId"`
}

// Message is the payload of EventMessage.
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}
