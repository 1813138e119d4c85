package inkwell

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	// DefaultLockTTL is how long an edit lock stays live without renewal.
	DefaultLockTTL = 10 * time.Minute

	// emptyTrashMaxBatch caps a single EmptyTrash sweep.
	emptyTrashMaxBatch = 500

	// historyPageCap caps a single history listing page.
	historyPageCap = 200

	passwordHashCost = 12
)

// service implements the Service interface.
type service struct {
	connector   Connector
	publicHeads PublicHeadConnector // nil when the connector lacks the capability
	sink        EventSink
	renderer    *Renderer
	logger      *slog.Logger
	postTypes   []string
	lockTTL     time.Duration
	now         func() time.Time
}

// Option represents a functional option for configuring the service.
type Option func(*service)

// WithConnector sets the persistence connector (required).
func WithConnector(c Connector) Option {
	return func(s *service) {
		s.connector = c
	}
}

// WithEventSink sets the after-write event sink.
func WithEventSink(sink EventSink) Option {
	return func(s *service) {
		s.sink = sink
	}
}

// WithLogger sets the structured logger used for best-effort failures.
func WithLogger(logger *slog.Logger) Option {
	return func(s *service) {
		s.logger = logger
	}
}

// WithRenderer overrides the public payload renderer.
func WithRenderer(r *Renderer) Option {
	return func(s *service) {
		s.renderer = r
	}
}

// WithPostTypes replaces the set of accepted post types.
func WithPostTypes(postTypes ...string) Option {
	return func(s *service) {
		s.postTypes = postTypes
	}
}

// WithLockTTL overrides the edit-lock TTL.
func WithLockTTL(ttl time.Duration) Option {
	return func(s *service) {
		s.lockTTL = ttl
	}
}

// WithClock overrides the time source. Tests use it to drive lock expiry.
func WithClock(now func() time.Time) Option {
	return func(s *service) {
		s.now = now
	}
}

// New creates a new service instance with the given options. The optional
// public-head capability of the connector is negotiated here, once, rather
// than probed on every read.
func New(options ...Option) (Service, error) {
	s := &service{
		postTypes: defaultPostTypes,
		lockTTL:   DefaultLockTTL,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, option := range options {
		option(s)
	}
	if s.connector == nil {
		return nil, ErrConnectorRequired
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.renderer == nil {
		s.renderer = NewRenderer()
	}
	if ph, ok := s.connector.(PublicHeadConnector); ok {
		s.publicHeads = ph
	}
	return s, nil
}

// load fetches a head or maps the connector failure.
func (s *service) load(ctx context.Context, uid string) (*ContentHead, error) {
	head, err := s.connector.GetByUID(ctx, uid)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, &ContentError{UID: uid, Op: "get", Err: err}
	}
	return head, nil
}

// snapshot appends the pre-mutation state to history. History is an audit
// aid, not a correctness-critical path: failures are logged and the
// surrounding write proceeds.
func (s *service) snapshot(ctx context.Context, current *ContentHead, actorUID string) {
	rev := &HistoryRevision{
		CMSUID:    current.UID,
		Revision:  current.VersionNumber,
		Snapshot:  current.Clone(),
		CreatedBy: actorUID,
		CreatedAt: s.now(),
	}
	if err := s.connector.InsertHistory(ctx, rev); err != nil {
		s.logger.Error("history snapshot failed",
			"uid", current.UID, "revision", current.VersionNumber, "error", err)
	}
}

// advance bumps the version and recomputes the etag on a head about to be
// persisted.
func (s *service) advance(head *ContentHead) {
	head.VersionNumber++
	head.ETag = ComputeETag(head.UID, head.VersionNumber)
	head.UpdatedAt = s.now()
}

// persist writes a mutated head, guarded on the version the mutation was
// computed from.
func (s *service) persist(ctx context.Context, op string, head *ContentHead, expectVersion int) error {
	if err := s.connector.UpdateHead(ctx, head, expectVersion); err != nil {
		if errors.Is(err, ErrVersionConflict) {
			return &ConflictError{Actual: head.ETag, Reason: "content was modified concurrently"}
		}
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return &ContentError{UID: head.UID, Op: op, Err: err}
	}
	return nil
}

func hashPassword(plain string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(plain), passwordHashCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hashed), nil
}

// Create validates and persists a new head in draft at version 1.
func (s *service) Create(ctx context.Context, req CreateContentRequest, actorUID string) (*ContentHead, error) {
	req.Slug = CanonicalizeSlug(req.Slug)
	req.Locale = NormalizeLocale(req.Locale)
	if err := req.Validate(); err != nil {
		return nil, err
	}

	uid := req.UID
	if uid == "" {
		uid = uuid.New().String()
	}

	now := s.now()
	head := &ContentHead{
		UID:           uid,
		OwnerUserUID:  actorUID,
		Slug:          req.Slug,
		Locale:        req.Locale,
		PostType:      req.PostType,
		Title:         req.Title,
		Content:       req.Content,
		ContentType:   req.ContentType,
		Options:       req.Options,
		Tags:          req.Tags,
		Status:        StatusDraft,
		VersionNumber: 1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if req.Password != "" {
		hashed, err := hashPassword(req.Password)
		if err != nil {
			return nil, err
		}
		head.PasswordHash = hashed
		head.PasswordVersion = 1
	}
	if err := validateHead(head, s.postTypes); err != nil {
		return nil, err
	}
	head.ETag = ComputeETag(head.UID, head.VersionNumber)

	if err := s.connector.Insert(ctx, head); err != nil {
		return nil, &ContentError{UID: uid, Op: "create", Err: err}
	}

	s.emit(ctx, EventCreate, head)
	return head.Clone(), nil
}

func (s *service) GetByUID(ctx context.Context, uid string) (*ContentHead, error) {
	return s.load(ctx, uid)
}

func (s *service) List(ctx context.Context, filters ListFilters) ([]*ContentHead, error) {
	return s.connector.List(ctx, filters)
}

// UpdateByUID applies a partial patch under the If-Match precondition.
func (s *service) UpdateByUID(ctx context.Context, req UpdateContentRequest) (*ContentHead, error) {
	current, err := s.load(ctx, req.UID)
	if err != nil {
		return nil, err
	}
	if err := AssertMatch(req.IfMatch, current.ETag); err != nil {
		return nil, err
	}

	next := current.Clone()
	p := req.Patch

	if p.Title != nil {
		next.Title = *p.Title
	}
	if p.Content != nil {
		next.Content = *p.Content
	}
	if p.ContentType != nil {
		next.ContentType = *p.ContentType
	}
	if p.Locale != nil {
		next.Locale = NormalizeLocale(*p.Locale)
	}
	if p.PostType != nil {
		next.PostType = *p.PostType
	}
	if p.Options != nil {
		next.Options = *p.Options
	}
	if p.Tags != nil {
		next.Tags = *p.Tags
	}
	if p.Slug != nil {
		slug := CanonicalizeSlug(*p.Slug)
		if slug != current.Slug && current.Status == StatusPublished && !req.ConfirmSlugChange {
			return nil, &ConflictError{Reason: "slug change on published content requires confirmation"}
		}
		next.Slug = slug
	}
	if p.Password != nil {
		if *p.Password == "" {
			next.PasswordHash = ""
		} else {
			hashed, err := hashPassword(*p.Password)
			if err != nil {
				return nil, err
			}
			next.PasswordHash = hashed
		}
		next.PasswordVersion++
	}

	if err := validateHead(next, s.postTypes); err != nil {
		return nil, err
	}

	s.snapshot(ctx, current, req.ActorUID)
	s.advance(next)
	if err := s.persist(ctx, "update", next, current.VersionNumber); err != nil {
		return nil, err
	}

	s.emit(ctx, EventUpdate, next)
	return next.Clone(), nil
}

// transition is the shared shape of publish/trash/restore.
func (s *service) transition(ctx context.Context, uid, ifMatch, actorUID string, event WriteEvent, apply func(*ContentHead) error) (*ContentHead, error) {
	current, err := s.load(ctx, uid)
	if err != nil {
		return nil, err
	}
	if err := AssertMatch(ifMatch, current.ETag); err != nil {
		return nil, err
	}

	next := current.Clone()
	if err := apply(next); err != nil {
		return nil, err
	}

	s.snapshot(ctx, current, actorUID)
	s.advance(next)
	if err := s.persist(ctx, string(event), next, current.VersionNumber); err != nil {
		return nil, err
	}

	s.emit(ctx, event, next)
	return next.Clone(), nil
}

func (s *service) PublishByUID(ctx context.Context, uid, ifMatch, actorUID string) (*ContentHead, error) {
	return s.transition(ctx, uid, ifMatch, actorUID, EventPublish, func(h *ContentHead) error {
		if h.Status == StatusTrash {
			return newValidationError("cannot publish trashed content; restore it first")
		}
		if err := s.assertSlugFree(ctx, h); err != nil {
			return err
		}
		now := s.now()
		h.Status = StatusPublished
		h.PublishedAt = &now
		if h.FirstPublishedAt == nil {
			h.FirstPublishedAt = &now
		}
		return nil
	})
}

// assertSlugFree enforces the published-slug uniqueness of the lookup triple.
func (s *service) assertSlugFree(ctx context.Context, h *ContentHead) error {
	existing, err := s.connector.GetPublishedBySlug(ctx, h.PostType, h.Locale, h.Slug, s.now())
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return &ContentError{UID: h.UID, Op: "publish", Err: err}
	}
	if existing.UID != h.UID {
		return &ConflictError{Reason: fmt.Sprintf("slug %q is already published for %s/%s", h.Slug, h.PostType, h.Locale)}
	}
	return nil
}

func (s *service) TrashByUID(ctx context.Context, uid, ifMatch, actorUID string) (*ContentHead, error) {
	return s.transition(ctx, uid, ifMatch, actorUID, EventTrash, func(h *ContentHead) error {
		if h.Status == StatusTrash {
			return newValidationError("content is already in trash")
		}
		now := s.now()
		h.Status = StatusTrash
		h.TrashedAt = &now
		h.TrashedBy = &actorUID
		return nil
	})
}

func (s *service) RestoreByUID(ctx context.Context, uid, ifMatch, actorUID string) (*ContentHead, error) {
	return s.transition(ctx, uid, ifMatch, actorUID, EventRestore, func(h *ContentHead) error {
		if h.Status != StatusTrash {
			return newValidationError("only trashed content can be restored")
		}
		h.Status = StatusDraft
		h.TrashedAt = nil
		h.TrashedBy = nil
		return nil
	})
}

// DeleteByUID permanently removes a head. Only trashed content may be
// deleted; the row simply disappears with no version bump. History revisions
// survive independently.
func (s *service) DeleteByUID(ctx context.Context, uid string) error {
	current, err := s.load(ctx, uid)
	if err != nil {
		return err
	}
	if current.Status != StatusTrash {
		return newValidationError("only trashed content can be permanently deleted")
	}
	if err := s.connector.DeleteByUID(ctx, uid); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return &ContentError{UID: uid, Op: "delete", Err: err}
	}
	s.emit(ctx, EventDelete, current)
	return nil
}

// EmptyTrash deletes up to limit trashed items, tolerating individual
// failures, and returns the number actually deleted.
func (s *service) EmptyTrash(ctx context.Context, limit int) (int, error) {
	if limit < 1 {
		limit = 1
	}
	if limit > emptyTrashMaxBatch {
		limit = emptyTrashMaxBatch
	}

	status := StatusTrash
	trashed, err := s.connector.List(ctx, ListFilters{Status: &status, Limit: &limit})
	if err != nil {
		return 0, &ContentError{Op: "empty_trash", Err: err}
	}

	deleted := 0
	for _, head := range trashed {
		if err := s.connector.DeleteByUID(ctx, head.UID); err != nil {
			s.logger.Warn("empty trash: delete failed", "uid", head.UID, "error", err)
			continue
		}
		s.emit(ctx, EventDelete, head)
		deleted++
	}
	return deleted, nil
}

// LockByUID grants the advisory edit lock when it is free, already held by
// the same actor, or expired (silent takeover). Lock changes do not bump the
// version: the lock is UX state, not content state.
func (s *service) LockByUID(ctx context.Context, uid, actorUID string) (*ContentHead, error) {
	current, err := s.load(ctx, uid)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if current.LockedBy != nil && *current.LockedBy != actorUID {
		if current.LockedAt != nil && now.Sub(*current.LockedAt) < s.lockTTL {
			return nil, &LockedError{UID: uid, HeldBy: *current.LockedBy, LockedAt: *current.LockedAt}
		}
	}

	next := current.Clone()
	next.LockedBy = &actorUID
	next.LockedAt = &now
	if err := s.persist(ctx, "lock", next, current.VersionNumber); err != nil {
		return nil, err
	}
	return next.Clone(), nil
}

// UnlockByUID releases the lock for its holder, or for anyone when force is
// set. Unlocking an unlocked head is a no-op.
func (s *service) UnlockByUID(ctx context.Context, uid, actorUID string, force bool) (*ContentHead, error) {
	current, err := s.load(ctx, uid)
	if err != nil {
		return nil, err
	}
	if current.LockedBy == nil {
		return current.Clone(), nil
	}
	if *current.LockedBy != actorUID && !force {
		lockedAt := time.Time{}
		if current.LockedAt != nil {
			lockedAt = *current.LockedAt
		}
		return nil, &LockedError{UID: uid, HeldBy: *current.LockedBy, LockedAt: lockedAt}
	}

	next := current.Clone()
	next.LockedBy = nil
	next.LockedAt = nil
	if err := s.persist(ctx, "unlock", next, current.VersionNumber); err != nil {
		return nil, err
	}
	return next.Clone(), nil
}

func (s *service) ListCollaborators(ctx context.Context, uid string) ([]*Collaborator, error) {
	if _, err := s.load(ctx, uid); err != nil {
		return nil, err
	}
	return s.connector.ListCollaborators(ctx, uid)
}

// ReplaceCollaborators swaps the full collaborator set for a head.
func (s *service) ReplaceCollaborators(ctx context.Context, uid string, collaborators []*Collaborator) ([]*Collaborator, error) {
	if _, err := s.load(ctx, uid); err != nil {
		return nil, err
	}
	for i, c := range collaborators {
		if c.UserUID == "" || c.Role == "" {
			return nil, &ValidationError{
				Message: "invalid collaborator",
				Fields:  map[string]string{fmt.Sprintf("collaborators.%d", i): "user_uid and role are required"},
			}
		}
		c.CMSUID = uid
	}
	if err := s.connector.ReplaceCollaborators(ctx, uid, collaborators); err != nil {
		return nil, &ContentError{UID: uid, Op: "replace_collaborators", Err: err}
	}
	return s.connector.ListCollaborators(ctx, uid)
}
