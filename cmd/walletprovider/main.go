package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/erc7824/nitrolite/walletprovider/pkg/log"
	"github.com/erc7824/nitrolite/walletprovider/pkg/provider"
	"github.com/erc7824/nitrolite/walletprovider/pkg/transport"
)

func main() {
	config, err := LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %s\n", err)
		os.Exit(1)
	}

	logger := log.NewZapLogger(config.Log).WithName("walletprovider")
	if config.dotEnvLoaded {
		logger.Info("loaded .env file", "path", config.dotEnvPath)
	} else {
		logger.Warn(".env file not found", "path", config.dotEnvPath)
	}

	ctx, cancel := context.WithCancel(log.SetContextLogger(context.Background(), logger))
	defer cancel()

	duplex, err := transport.DialWebsocket(ctx, config.BridgeURL, transport.DefaultWebsocketConfig)
	if err != nil {
		logger.Fatal("failed to dial wallet bridge", "url", config.BridgeURL, "error", err)
	}

	metrics := provider.NewMetrics()
	p, err := provider.NewLegacyProvider(ctx, duplex, provider.Config{
		Logger:            logger,
		Metrics:           metrics,
		JSONRPCStreamName: config.RPCStream,
	})
	if err != nil {
		logger.Fatal("failed to create provider", "error", err)
	}

	lost := make(chan struct{})
	var lostOnce sync.Once
	logEvents(p, logger, func() { lostOnce.Do(func() { close(lost) }) })

	metricsEndpoint := "/metrics"
	metricsMux := http.NewServeMux()
	metricsMux.Handle(metricsEndpoint, promhttp.Handler())
	metricsServer := &http.Server{
		Addr:    config.MetricsAddr,
		Handler: metricsMux,
	}

	go func() {
		logger.Info("Prometheus metrics available", "listenAddr", config.MetricsAddr, "endpoint", metricsEndpoint)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failure", "error", err)
		}
	}()

	go func() {
		if err := <-p.InitializeStateAsync(ctx); err != nil {
			logger.Error("failed to initialize provider", "error", err)
			return
		}
		logger.Info("provider initialized", "connected", p.IsConnected())
		queryWallet(ctx, p, logger)
	}()

	// Wait for shutdown signal or a permanent disconnect.
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	select {
	case <-stop:
	case <-lost:
		logger.Warn("wallet connection lost permanently")
	}

	logger.Info("shutting down")

	if err := p.Close(); err != nil {
		logger.Error("failed to close provider", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shut down metrics server", "error", err)
	}

	logger.Info("shutdown complete")
}

// logEvents logs every provider lifecycle event; onPermanentDisconnect runs
// once the provider can no longer recover.
func logEvents(p *provider.LegacyProvider, logger log.Logger, onPermanentDisconnect func()) {
	p.On(provider.EventConnect, func(payload any) {
		logger.Info("connected", "chainId", payload.(provider.ConnectInfo).ChainID)
	})
	p.On(provider.EventDisconnect, func(payload any) {
		logger.Warn("disconnected", "error", payload)
		if p.IsPermanentlyDisconnected() {
			onPermanentDisconnect()
		}
	})
	p.On(provider.EventChainChanged, func(payload any) {
		logger.Info("chain changed", "chainId", payload)
	})
	p.On(provider.EventAccountsChanged, func(payload any) {
		logger.Info("accounts changed", "accounts", payload)
	})
	p.On(provider.EventNetworkChanged, func(payload any) {
		logger.Info("network changed", "networkVersion", payload)
	})
	p.On(provider.EventMessage, func(payload any) {
		msg := payload.(provider.Message)
		logger.Debug("wallet message", "type", msg.Type, "data", string(msg.Data))
	})
}

func queryWallet(ctx context.Context, p *provider.LegacyProvider, logger log.Logger) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	raw, err := p.Request(ctx, provider.RequestArguments{Method: "eth_chainId"})
	if err != nil {
		logger.Error("eth_chainId failed", "error", err)
		return
	}
	var chainIDHex string
	if err := json.Unmarshal(raw, &chainIDHex); err != nil {
		logger.Error("malformed eth_chainId result", "result", string(raw), "error", err)
		return
	}
	chainID, err := hexutil.DecodeUint64(chainIDHex)
	if err != nil {
		logger.Error("malformed chain id", "chainId", chainIDHex, "error", err)
		return
	}
	logger.Info("active chain", "chainId", chainID)

	raw, err = p.Request(ctx, provider.RequestArguments{Method: "eth_accounts"})
	if err != nil {
		logger.Error("eth_accounts failed", "error", err)
		return
	}
	var accounts []string
	if err := json.Unmarshal(raw, &accounts); err != nil {
		logger.Error("malformed eth_accounts result", "result", string(raw), "error", err)
		return
	}
	logger.Info("wallet accounts", "accounts", accounts)
}
