package core

import "errors"

// Error taxonomy of the delivery pipeline. Validation failures are returned
// synchronously before any stream opens; everything else surfaces as a single
// terminal error event on an already-open stream.
var (
	// ErrValidation covers missing or malformed request fields. Wrapped with
	// field detail at the point of rejection.
	ErrValidation = errors.New("validation error")

	// ErrUnknownAgent means the addressed specialist id resolves to nothing.
	ErrUnknownAgent = errors.New("unknown agent")

	// ErrUpstreamModel means a language-model call failed. Recovered per
	// pipeline step via fallback text and normally never reaches the client.
	ErrUpstreamModel = errors.New("upstream model error")

	// ErrStore means a persistence read or write failed. The stream is
	// terminated and no partial state is committed.
	ErrStore = errors.New("store error")

	// ErrConversationNotFound is returned by store lookups for unknown ids.
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrSubjectNotFound is returned by the subject directory for unknown ids.
	ErrSubjectNotFound = errors.New("subject not found")

	// ErrExplorationNotFound means no topic is in flight for a conversation.
	ErrExplorationNotFound = errors.New("exploration not found")

	// ErrNoPendingQuestion means an answer arrived with no question awaiting
	// one. State is left unchanged.
	ErrNoPendingQuestion = errors.New("no pending exploration question")

	// ErrExplorationComplete means an answer arrived after the topic already
	// completed. State is left unchanged.
	ErrExplorationComplete = errors.New("exploration already completed")

	// ErrConversationBusy rejects a second in-flight request for the same
	// conversation. The first request keeps exclusive mutation rights.
	ErrConversationBusy = errors.New("conversation busy")

	// ErrSessionNotFound is returned for unknown session ids.
	ErrSessionNotFound = errors.New("session not found")
)
