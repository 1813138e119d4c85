// Package inkwell is a content-orchestration kit for building CMS backends.
//
// The core Service owns the business rules for creating, updating,
// publishing, trashing, restoring and permanently deleting versioned content
// items, together with optimistic concurrency control (etags and If-Match
// preconditions), cooperative TTL-scoped edit locks, append-only history
// snapshots and content-type-specific public payload rendering.
//
// Persistence stays behind the Connector port (see repo/memory and
// repo/postgres for adapters). Rate limiting, unlock tokens and authorization
// live in their own subpackages and are consulted at the HTTP boundary,
// independent of the core's logic.
//
// Basic usage:
//
//	svc, err := inkwell.New(
//	    inkwell.WithConnector(memory.New()),
//	    inkwell.WithEventSink(inkwell.SlogSink(slog.Default())),
//	)
package inkwell
