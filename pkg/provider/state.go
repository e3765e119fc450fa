package provider

import (
	"encoding/json"

	"github.com/erc7824/nitrolite/walletprovider/pkg/log"
)

// state is the provider's lifecycle state. A nil accounts slice means the
// account set was never reported; an empty one means the wallet reported no
// accounts.
type state struct {
	accounts                  []string
	isConnected               bool
	isUnlocked                bool
	initialized               bool
	isPermanentlyDisconnected bool
}

// InitialState is the snapshot used to initialize a provider, as returned by
// the wallet's provider-state query.
type InitialState struct {
	Accounts       []string `json:"accounts"`
	ChainID        string   `json:"chainId"`
	IsUnlocked     bool     `json:"isUnlocked"`
	NetworkVersion string   `json:"networkVersion"`
}

// ChainChangedParams is a chain report from the wallet.
type ChainChangedParams struct {
	ChainID        string `json:"chainId"`
	NetworkVersion string `json:"networkVersion"`
}

// UnlockStateParams is an unlock report from the wallet. IsUnlocked is nil
// when the report did not carry a boolean.
type UnlockStateParams struct {
	Accounts   []string `json:"accounts"`
	IsUnlocked *bool    `json:"isUnlocked"`
}

// Transitions are the state transitions driven by wallet reports. Every
// provider layer implements them; the outermost layer receives the calls.
type Transitions interface {
	HandleConnect(chainID string)
	HandleDisconnect(isRecoverable bool, message string)
	HandleChainChanged(params ChainChangedParams)
	HandleAccountsChanged(accounts []string, isKnownReadMethod bool)
	HandleUnlockStateChanged(params UnlockStateParams)
}

func cloneAccounts(accounts []string) []string {
	out := make([]string, len(accounts))
	copy(out, accounts)
	return out
}

// accountsFromJSON decodes an account list reported by the wallet. Anything
// but an array of strings is logged and replaced by an empty list.
func accountsFromJSON(lg log.Logger, raw json.RawMessage) []string {
	var items []any
	if err := json.Unmarshal(raw, &items); err != nil || items == nil {
		lg.Error("received invalid accounts parameter", "accounts", string(raw))
		return []string{}
	}

	accounts := make([]string, 0, len(items))
	for _, item := range items {
		account, ok := item.(string)
		if !ok {
			lg.Error("received non-string account", "accounts", string(raw))
			return []string{}
		}
		accounts = append(accounts, account)
	}
	return accounts
}
