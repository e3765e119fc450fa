package provider

import "errors"

var (
	// ErrAlreadyInitialized is returned by a second InitializeState call.
	ErrAlreadyInitialized = errors.New("provider state already initialized")
	// ErrInvalidDuplex is returned when a StreamProvider is built without a duplex transport.
	ErrInvalidDuplex = errors.New("must provide a duplex transport")
	// ErrUnsupportedSyncMethod is returned by SendSync for methods that need the wallet.
	ErrUnsupportedSyncMethod = errors.New("unsupported synchronous method")
)
