// Package core defines the shared domain types of Parley: messages,
// conversations, subjects (child profiles), exploration state and the stream
// event union that flows over the wire. It also declares the store contracts
// the delivery pipeline consumes; concrete implementations live in the store
// and session packages.
package core
