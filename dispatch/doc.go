// Package dispatch is the entry point of the delivery pipeline. The
// Dispatcher validates a request, serializes work per conversation, routes
// the message to the exploration sub-dialogue or a specialist, forwards
// stream events as they are produced, and persists the exchange exactly
// once after a successful stream.
package dispatch
