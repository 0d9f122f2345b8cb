// Package store provides the conversation, subject and exploration
// persistence backends: an in-memory implementation for tests and demo
// servers, and a SQLite implementation for durable deployments. Both satisfy
// the contracts declared in core.
package store
