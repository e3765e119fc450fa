// Package transport provides the message channels a stream-backed provider
// talks over.
//
// A Duplex is an ordered, message-oriented, bidirectional channel. Inbound
// messages are delivered on the channel returned by Inbound, which is closed
// once the Duplex ends; Err then reports why (nil for a graceful end).
//
// Three implementations are provided:
//
//   - Pipe: a connected in-memory pair, used by tests and in-process wallets
//   - WebsocketDuplex: a gorilla/websocket connection with keep-alive pings
//   - Substream: a named channel carved out of a parent Duplex by a Mux
//
// The Mux wraps every outgoing message in a {"name": ..., "data": ...}
// envelope and routes incoming envelopes to the substream with that name.
// When the parent ends, every substream ends with the same cause.
package transport
