package provider

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// otherMethodLabel replaces method names outside knownMethods in metric
// labels. Method names come from applications and the wallet.
const otherMethodLabel = "other"

var knownMethods = map[string]bool{
	MethodAccountsChanged:    true,
	MethodUnlockStateChanged: true,
	MethodChainChanged:       true,
	MethodSubscription:       true,
	MethodStreamFailure:      true,
	MethodGetProviderState:   true,

	"eth_accounts":               true,
	"eth_requestAccounts":        true,
	"eth_chainId":                true,
	"eth_coinbase":               true,
	"net_version":                true,
	"eth_blockNumber":            true,
	"eth_call":                   true,
	"eth_estimateGas":            true,
	"eth_getBalance":             true,
	"eth_sendTransaction":        true,
	"eth_sign":                   true,
	"personal_sign":              true,
	"eth_signTypedData_v4":       true,
	"eth_subscribe":              true,
	"eth_unsubscribe":            true,
	"eth_uninstallFilter":        true,
	"wallet_switchEthereumChain": true,
	"wallet_addEthereumChain":    true,
	"eth_decrypt":                true,
	"eth_getEncryptionPublicKey": true,
}

func methodLabel(method string) string {
	if knownMethods[method] {
		return method
	}
	return otherMethodLabel
}

// Metrics contains the Prometheus metrics of a provider. A nil *Metrics
// records nothing.
type Metrics struct {
	Requests            *prometheus.CounterVec
	RequestFailures     *prometheus.CounterVec
	Notifications       *prometheus.CounterVec
	Disconnects         *prometheus.CounterVec
	DeprecationWarnings *prometheus.CounterVec
	Connected           prometheus.Gauge
}

// NewMetrics initializes and registers metrics with the default registerer.
func NewMetrics() *Metrics {
	return NewMetricsWithRegistry(nil)
}

// NewMetricsWithRegistry initializes and registers metrics with a custom registry.
func NewMetricsWithRegistry(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		Requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "walletprovider_requests_total",
			Help: "The total number of requests dispatched to the wallet",
		}, []string{"method"}),
		RequestFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "walletprovider_request_failures_total",
			Help: "The total number of failed requests",
		}, []string{"method", "code"}),
		Notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "walletprovider_notifications_total",
			Help: "The total number of notifications received from the wallet",
		}, []string{"method"}),
		Disconnects: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "walletprovider_disconnects_total",
			Help: "The total number of disconnect transitions",
		}, []string{"recoverable"}),
		DeprecationWarnings: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "walletprovider_deprecation_warnings_total",
			Help: "The total number of deprecation warnings logged",
		}, []string{"symbol"}),
		Connected: factory.NewGauge(prometheus.GaugeOpts{
			Name: "walletprovider_connected",
			Help: "Whether the provider is connected (1) or not (0)",
		}),
	}
}

func (m *Metrics) recordRequest(method string, code int) {
	if m == nil {
		return
	}
	label := methodLabel(method)
	m.Requests.WithLabelValues(label).Inc()
	if code != 0 {
		m.RequestFailures.WithLabelValues(label, strconv.Itoa(code)).Inc()
	}
}

func (m *Metrics) recordNotification(method string) {
	if m == nil {
		return
	}
	m.Notifications.WithLabelValues(methodLabel(method)).Inc()
}

func (m *Metrics) recordConnect() {
	if m == nil {
		return
	}
	m.Connected.Set(1)
}

func (m *Metrics) recordDisconnect(isRecoverable bool) {
	if m == nil {
		return
	}
	m.Connected.Set(0)
	m.Disconnects.WithLabelValues(strconv.FormatBool(isRecoverable)).Inc()
}

func (m *Metrics) recordDeprecation(symbol string) {
	if m == nil {
		return
	}
	m.DeprecationWarnings.WithLabelValues(symbol).Inc()
}
