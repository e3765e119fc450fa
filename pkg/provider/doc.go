// Package provider implements an EIP-1193 wallet provider in three layers.
//
// Core tracks wallet state (connectivity, accounts, unlock status and the
// active chain) and exposes Request plus the lifecycle events applications
// observe. StreamProvider binds a Core to a transport.Duplex: JSON-RPC flows
// over a named substream and wallet notifications drive the Core's
// transitions. LegacyProvider adds the deprecated enable/send/sendAsync
// surface on top of a StreamProvider and warns once per deprecated symbol.
//
// Layers compose rather than inherit. Each layer holds the layer below it and
// calls it explicitly; the outermost layer is registered with the Core as its
// Transitions so that notifications and state bootstrap reach the most
// specific implementation of every transition.
//
// Events are delivered synchronously on the goroutine that caused the
// transition, after internal state has been updated. Listeners may call
// accessors and issue requests, but must not block waiting for further
// notifications.
package provider
