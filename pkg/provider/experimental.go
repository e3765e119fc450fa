package provider

import (
	"context"
	"sync"

	"github.com/erc7824/nitrolite/walletprovider/pkg/rpc"
)

// ExperimentalAPI holds non-standard provider methods.
type ExperimentalAPI interface {
	// IsUnlocked waits for the provider to be initialized and reports whether
	// the wallet is unlocked.
	IsUnlocked(ctx context.Context) (bool, error)
	// RequestBatch sends requests as one batch and returns one response per
	// request, in order. An empty batch yields no responses.
	RequestBatch(ctx context.Context, requests []RequestArguments) ([]*rpc.Response, error)
}

type experimentalAPI struct {
	core *Core
}

func (e experimentalAPI) IsUnlocked(ctx context.Context) (bool, error) {
	if !e.core.IsInitialized() {
		initialized := make(chan struct{})
		var once sync.Once
		off := e.core.Once(EventInitialized, func(any) {
			once.Do(func() { close(initialized) })
		})
		defer off()

		if !e.core.IsInitialized() {
			select {
			case <-initialized:
			case <-ctx.Done():
				return false, ctx.Err()
			}
		}
	}
	return e.core.IsUnlockedState(), nil
}

func (e experimentalAPI) RequestBatch(ctx context.Context, requests []RequestArguments) ([]*rpc.Response, error) {
	if len(requests) == 0 {
		return []*rpc.Response{}, nil
	}

	reqs := make([]*rpc.Request, 0, len(requests))
	for _, args := range requests {
		req, err := e.core.buildRequest(args)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, req)
	}
	return e.core.engine.HandleBatch(ctx, reqs)
}

// warnOnAccess logs the experimental API warning on first use, then forwards.
type warnOnAccess struct {
	api  ExperimentalAPI
	warn func()
}

func (w warnOnAccess) IsUnlocked(ctx context.Context) (bool, error) {
	w.warn()
	return w.api.IsUnlocked(ctx)
}

func (w warnOnAccess) RequestBatch(ctx context.Context, requests []RequestArguments) ([]*rpc.Response, error) {
	w.warn()
	return w.api.RequestBatch(ctx, requests)
}
