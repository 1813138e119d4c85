package inkwell

import (
	"context"
	"time"
)

// Connector is the persistence port the service core depends on. Adapters own
// their storage format entirely; the core only relies on the contracts below.
//
// UpdateHead is version-guarded: when expectVersion >= 0 the adapter must only
// apply the write if the stored version_number still equals expectVersion, and
// return ErrVersionConflict otherwise. Adapters that can enforce this as an
// atomic compare-and-swap at the storage layer (e.g. a conditional UPDATE)
// should; the guard is what closes the read-then-write race on concurrent
// updates to the same uid. expectVersion < 0 skips the guard.
//
// Lock acquisition and release are the one write that reuses the current
// (uid, version_number) pair: the lock is advisory UX state, not content
// state, and bumping the version would invalidate every open editor's etag.
// The accepted consequence is that a full-row update loaded before a lock
// write passes the version guard and overwrites the lock fields on commit.
type Connector interface {
	GetByUID(ctx context.Context, uid string) (*ContentHead, error)
	Insert(ctx context.Context, head *ContentHead) error
	UpdateHead(ctx context.Context, head *ContentHead, expectVersion int) error
	DeleteByUID(ctx context.Context, uid string) error
	List(ctx context.Context, filters ListFilters) ([]*ContentHead, error)

	// GetPublishedBySlug resolves the public lookup triple. It must only
	// return rows with status=published, no archived_at, and
	// published_at <= now; anything else is ErrNotFound.
	GetPublishedBySlug(ctx context.Context, postType, locale, slug string, now time.Time) (*ContentHead, error)

	InsertHistory(ctx context.Context, rev *HistoryRevision) error
	ListHistory(ctx context.Context, uid string, filters HistoryFilters) ([]*HistoryRevision, error)
	GetHistoryByID(ctx context.Context, id int64) (*HistoryRevision, error)
	UpdateHistoryByID(ctx context.Context, rev *HistoryRevision) error
	DeleteHistoryByID(ctx context.Context, id int64) error

	ListCollaborators(ctx context.Context, uid string) ([]*Collaborator, error)
	ReplaceCollaborators(ctx context.Context, uid string, collaborators []*Collaborator) error
}

// PublicHeadConnector is an optional capability: a cheap, body-free projection
// of a published row for cache validation and password gating. The service
// detects it once at construction with a single interface assertion; adapters
// that lack it fall back to a full-row fetch plus client-side projection.
type PublicHeadConnector interface {
	GetPublicHeadBySlug(ctx context.Context, postType, locale, slug string, now time.Time) (*PublicHead, error)
}
