package inkwell

import (
	"context"
	"errors"
)

// ListHistory returns revisions for a head newest-first, capped to 200 per
// page. Soft-deleted revisions are excluded unless the filter asks for them.
func (s *service) ListHistory(ctx context.Context, uid string, filters HistoryFilters) ([]*HistoryRevision, error) {
	if _, err := s.load(ctx, uid); err != nil {
		return nil, err
	}
	limit := historyPageCap
	if filters.Limit != nil && *filters.Limit > 0 && *filters.Limit < historyPageCap {
		limit = *filters.Limit
	}
	filters.Limit = &limit
	return s.connector.ListHistory(ctx, uid, filters)
}

// loadRevision fetches a revision and checks it belongs to the given head.
func (s *service) loadRevision(ctx context.Context, uid string, historyID int64) (*HistoryRevision, error) {
	rev, err := s.connector.GetHistoryByID(ctx, historyID)
	if err != nil {
		if errors.Is(err, ErrHistoryNotFound) || errors.Is(err, ErrNotFound) {
			return nil, ErrHistoryNotFound
		}
		return nil, &ContentError{UID: uid, Op: "get_history", Err: err}
	}
	if rev.CMSUID != uid {
		return nil, ErrHistoryNotFound
	}
	return rev, nil
}

// RestoreHistoryRevision overwrites the mutable content fields of the head
// from a revision's snapshot. The current state is snapshotted first, so
// restoring is itself undoable.
func (s *service) RestoreHistoryRevision(ctx context.Context, uid string, historyID int64, ifMatch, actorUID string) (*ContentHead, error) {
	current, err := s.load(ctx, uid)
	if err != nil {
		return nil, err
	}
	if err := AssertMatch(ifMatch, current.ETag); err != nil {
		return nil, err
	}
	rev, err := s.loadRevision(ctx, uid, historyID)
	if err != nil {
		return nil, err
	}
	if rev.Snapshot == nil {
		return nil, ErrHistoryNotFound
	}

	next := current.Clone()
	snap := rev.Snapshot
	next.Title = snap.Title
	next.Content = snap.Content
	next.ContentType = snap.ContentType
	next.Slug = snap.Slug
	next.Locale = snap.Locale
	next.PostType = snap.PostType
	next.Options = snap.Options
	next.Tags = snap.Tags

	if err := validateHead(next, s.postTypes); err != nil {
		return nil, err
	}

	s.snapshot(ctx, current, actorUID)
	s.advance(next)
	if err := s.persist(ctx, "history_restore", next, current.VersionNumber); err != nil {
		return nil, err
	}

	s.emit(ctx, EventHistoryRestore, next)
	return next.Clone(), nil
}

// SoftDeleteHistoryRevision hides a revision from default listings. The row
// survives and the stamp is reversible by the connector's standards; only a
// hard delete removes data.
func (s *service) SoftDeleteHistoryRevision(ctx context.Context, uid string, historyID int64, actorUID string) error {
	if _, err := s.load(ctx, uid); err != nil {
		return err
	}
	rev, err := s.loadRevision(ctx, uid, historyID)
	if err != nil {
		return err
	}
	now := s.now()
	rev.SoftDeletedAt = &now
	rev.SoftDeletedBy = &actorUID
	if err := s.connector.UpdateHistoryByID(ctx, rev); err != nil {
		return &ContentError{UID: uid, Op: "soft_delete_history", Err: err}
	}
	return nil
}

// HardDeleteHistoryRevision permanently removes a revision row.
func (s *service) HardDeleteHistoryRevision(ctx context.Context, uid string, historyID int64) error {
	if _, err := s.load(ctx, uid); err != nil {
		return err
	}
	if _, err := s.loadRevision(ctx, uid, historyID); err != nil {
		return err
	}
	if err := s.connector.DeleteHistoryByID(ctx, historyID); err != nil {
		return &ContentError{UID: uid, Op: "hard_delete_history", Err: err}
	}
	return nil
}
