package provider_test

import (
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/erc7824/nitrolite/walletprovider/internal/wallettest"
	"github.com/erc7824/nitrolite/walletprovider/pkg/events"
	"github.com/erc7824/nitrolite/walletprovider/pkg/log"
	"github.com/erc7824/nitrolite/walletprovider/pkg/provider"
)

const waitFor = time.Second

type recordedEvent struct {
	Name    string
	Payload any
}

// eventRecorder keeps every emission of the subscribed events in order.
type eventRecorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

func recordEvents(src events.Source, names ...string) *eventRecorder {
	r := &eventRecorder{}
	for _, name := range names {
		src.On(name, func(payload any) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.events = append(r.events, recordedEvent{Name: name, Payload: payload})
		})
	}
	return r
}

func (r *eventRecorder) all() []recordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()

	return slices.Clone(r.events)
}

func (r *eventRecorder) named(name string) []any {
	var payloads []any
	for _, e := range r.all() {
		if e.Name == name {
			payloads = append(payloads, e.Payload)
		}
	}
	return payloads
}

func (r *eventRecorder) names() []string {
	var names []string
	for _, e := range r.all() {
		names = append(names, e.Name)
	}
	return names
}

func (r *eventRecorder) waitCount(t *testing.T, name string, n int) []any {
	t.Helper()

	require.Eventually(t, func() bool { return len(r.named(name)) >= n }, waitFor, 5*time.Millisecond,
		"expected %d %q events", n, name)
	return r.named(name)
}

func newStreamProvider(t *testing.T) (*provider.StreamProvider, *wallettest.Wallet, *log.RecordingLogger) {
	t.Helper()

	lg := log.NewRecordingLogger()
	wallet, duplex := wallettest.New(provider.DefaultJSONRPCStreamName, nil)
	sp, err := provider.NewStreamProvider(t.Context(), duplex, provider.Config{Logger: lg})
	require.NoError(t, err)
	return sp, wallet, lg
}

// initialized returns a stream provider bootstrapped from the wallet on chain 1.
func initializedStreamProvider(t *testing.T, accounts ...string) (*provider.StreamProvider, *wallettest.Wallet, *log.RecordingLogger) {
	t.Helper()

	sp, wallet, lg := newStreamProvider(t)
	wallet.ServeProviderState(1, "1", accounts, true)
	require.NoError(t, <-sp.InitializeStateAsync(t.Context()))
	return sp, wallet, lg
}

func newLegacyProvider(t *testing.T) (*provider.LegacyProvider, *wallettest.Wallet, *log.RecordingLogger) {
	t.Helper()

	lg := log.NewRecordingLogger()
	wallet, duplex := wallettest.New(provider.DefaultJSONRPCStreamName, nil)
	lp, err := provider.NewLegacyProvider(t.Context(), duplex, provider.Config{Logger: lg})
	require.NoError(t, err)
	return lp, wallet, lg
}
