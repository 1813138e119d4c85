package inkwell

import (
	"context"
)

// Service is the content-orchestration core. It owns the business rules for
// the content lifecycle; persistence stays behind the Connector port and
// authorization, rate limiting and unlock tokens stay at the boundary.
//
// Every mutating operation follows the same shape: load the head, assert the
// If-Match precondition, snapshot the pre-mutation state into history
// (best-effort), apply the change, bump the version and recompute the etag,
// persist through the connector, then fire the after-write hook
// (fire-and-forget).
type Service interface {
	// Head operations
	Create(ctx context.Context, req CreateContentRequest, actorUID string) (*ContentHead, error)
	GetByUID(ctx context.Context, uid string) (*ContentHead, error)
	List(ctx context.Context, filters ListFilters) ([]*ContentHead, error)
	UpdateByUID(ctx context.Context, req UpdateContentRequest) (*ContentHead, error)

	// Lifecycle transitions
	PublishByUID(ctx context.Context, uid, ifMatch, actorUID string) (*ContentHead, error)
	TrashByUID(ctx context.Context, uid, ifMatch, actorUID string) (*ContentHead, error)
	RestoreByUID(ctx context.Context, uid, ifMatch, actorUID string) (*ContentHead, error)
	DeleteByUID(ctx context.Context, uid string) error
	EmptyTrash(ctx context.Context, limit int) (int, error)

	// Advisory edit locks
	LockByUID(ctx context.Context, uid, actorUID string) (*ContentHead, error)
	UnlockByUID(ctx context.Context, uid, actorUID string, force bool) (*ContentHead, error)

	// History
	ListHistory(ctx context.Context, uid string, filters HistoryFilters) ([]*HistoryRevision, error)
	RestoreHistoryRevision(ctx context.Context, uid string, historyID int64, ifMatch, actorUID string) (*ContentHead, error)
	SoftDeleteHistoryRevision(ctx context.Context, uid string, historyID int64, actorUID string) error
	HardDeleteHistoryRevision(ctx context.Context, uid string, historyID int64) error

	// Collaborators
	ListCollaborators(ctx context.Context, uid string) ([]*Collaborator, error)
	ReplaceCollaborators(ctx context.Context, uid string, collaborators []*Collaborator) ([]*Collaborator, error)

	// Public reads
	GetPublicHead(ctx context.Context, postType, locale, slug string) (*PublicHead, error)
	GetPublicPayloadBySlug(ctx context.Context, req PublicPayloadRequest) (*PublicPayload, error)
	VerifyPublicPassword(ctx context.Context, postType, locale, slug, password string) (*PublicHead, error)
}
