// Package memory provides an in-memory Connector for tests and development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/inkwell-cms/inkwell/pkg/inkwell"
)

// Repository implements inkwell.Connector (including the public-head
// capability) with in-process maps. Values are copied on the way in and out
// so callers can never mutate shared state.
type Repository struct {
	mu            sync.RWMutex
	heads         map[string]*inkwell.ContentHead
	history       map[int64]*inkwell.HistoryRevision
	historyByUID  map[string][]int64
	collaborators map[string][]*inkwell.Collaborator
	nextHistoryID int64
}

// New creates an empty in-memory connector.
func New() *Repository {
	return &Repository{
		heads:         make(map[string]*inkwell.ContentHead),
		history:       make(map[int64]*inkwell.HistoryRevision),
		historyByUID:  make(map[string][]int64),
		collaborators: make(map[string][]*inkwell.Collaborator),
	}
}

func (r *Repository) GetByUID(ctx context.Context, uid string) (*inkwell.ContentHead, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	head, ok := r.heads[uid]
	if !ok {
		return nil, inkwell.ErrNotFound
	}
	return head.Clone(), nil
}

func (r *Repository) Insert(ctx context.Context, head *inkwell.ContentHead) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.heads[head.UID] = head.Clone()
	return nil
}

// UpdateHead applies a version-guarded write. The guard runs under the same
// lock as the write, making it a true compare-and-swap for this adapter.
func (r *Repository) UpdateHead(ctx context.Context, head *inkwell.ContentHead, expectVersion int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.heads[head.UID]
	if !ok {
		return inkwell.ErrNotFound
	}
	if expectVersion >= 0 && stored.VersionNumber != expectVersion {
		return inkwell.ErrVersionConflict
	}
	r.heads[head.UID] = head.Clone()
	return nil
}

// DeleteByUID removes the head row. History revisions survive; their
// lifecycle is independent of the head's.
func (r *Repository) DeleteByUID(ctx context.Context, uid string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.heads[uid]; !ok {
		return inkwell.ErrNotFound
	}
	delete(r.heads, uid)
	delete(r.collaborators, uid)
	return nil
}

func (r *Repository) List(ctx context.Context, filters inkwell.ListFilters) ([]*inkwell.ContentHead, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*inkwell.ContentHead
	for _, head := range r.heads {
		if !matches(head, filters) {
			continue
		}
		result = append(result, head.Clone())
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].UpdatedAt.After(result[j].UpdatedAt)
	})

	offset := 0
	if filters.Offset != nil && *filters.Offset > 0 {
		offset = *filters.Offset
	}
	if offset >= len(result) {
		return nil, nil
	}
	result = result[offset:]
	if filters.Limit != nil && *filters.Limit > 0 && *filters.Limit < len(result) {
		result = result[:*filters.Limit]
	}
	return result, nil
}

func matches(head *inkwell.ContentHead, filters inkwell.ListFilters) bool {
	if filters.Status != nil && head.Status != *filters.Status {
		return false
	}
	if filters.PostType != nil && head.PostType != *filters.PostType {
		return false
	}
	if filters.Locale != nil && head.Locale != *filters.Locale {
		return false
	}
	if filters.OwnerUID != nil && head.OwnerUserUID != *filters.OwnerUID {
		return false
	}
	if filters.Tag != nil {
		found := false
		for _, tag := range head.Tags {
			if tag == *filters.Tag {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (r *Repository) findPublished(postType, locale, slug string, now time.Time) *inkwell.ContentHead {
	for _, head := range r.heads {
		if head.PostType != postType || head.Locale != locale || head.Slug != slug {
			continue
		}
		if head.Status != inkwell.StatusPublished {
			continue
		}
		if head.ArchivedAt != nil {
			continue
		}
		if head.PublishedAt == nil || head.PublishedAt.After(now) {
			continue
		}
		return head
	}
	return nil
}

func (r *Repository) GetPublishedBySlug(ctx context.Context, postType, locale, slug string, now time.Time) (*inkwell.ContentHead, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	head := r.findPublished(postType, locale, slug, now)
	if head == nil {
		return nil, inkwell.ErrNotFound
	}
	return head.Clone(), nil
}

// GetPublicHeadBySlug implements the optional public-head capability.
func (r *Repository) GetPublicHeadBySlug(ctx context.Context, postType, locale, slug string, now time.Time) (*inkwell.PublicHead, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	head := r.findPublished(postType, locale, slug, now)
	if head == nil {
		return nil, inkwell.ErrNotFound
	}
	return inkwell.ProjectPublicHead(head), nil
}

// History operations

func cloneRevision(rev *inkwell.HistoryRevision) *inkwell.HistoryRevision {
	c := *rev
	c.Snapshot = rev.Snapshot.Clone()
	if rev.SoftDeletedAt != nil {
		t := *rev.SoftDeletedAt
		c.SoftDeletedAt = &t
	}
	if rev.SoftDeletedBy != nil {
		s := *rev.SoftDeletedBy
		c.SoftDeletedBy = &s
	}
	return &c
}

func (r *Repository) InsertHistory(ctx context.Context, rev *inkwell.HistoryRevision) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextHistoryID++
	rev.ID = r.nextHistoryID
	r.history[rev.ID] = cloneRevision(rev)
	r.historyByUID[rev.CMSUID] = append(r.historyByUID[rev.CMSUID], rev.ID)
	return nil
}

func (r *Repository) ListHistory(ctx context.Context, uid string, filters inkwell.HistoryFilters) ([]*inkwell.HistoryRevision, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.historyByUID[uid]
	var result []*inkwell.HistoryRevision
	// Newest first: ids are appended in insertion order.
	for i := len(ids) - 1; i >= 0; i-- {
		rev := r.history[ids[i]]
		if rev == nil {
			continue
		}
		if rev.SoftDeletedAt != nil && !filters.IncludeSoftDeleted {
			continue
		}
		result = append(result, cloneRevision(rev))
	}

	offset := 0
	if filters.Offset != nil && *filters.Offset > 0 {
		offset = *filters.Offset
	}
	if offset >= len(result) {
		return nil, nil
	}
	result = result[offset:]
	if filters.Limit != nil && *filters.Limit > 0 && *filters.Limit < len(result) {
		result = result[:*filters.Limit]
	}
	return result, nil
}

func (r *Repository) GetHistoryByID(ctx context.Context, id int64) (*inkwell.HistoryRevision, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rev, ok := r.history[id]
	if !ok {
		return nil, inkwell.ErrHistoryNotFound
	}
	return cloneRevision(rev), nil
}

func (r *Repository) UpdateHistoryByID(ctx context.Context, rev *inkwell.HistoryRevision) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.history[rev.ID]; !ok {
		return inkwell.ErrHistoryNotFound
	}
	r.history[rev.ID] = cloneRevision(rev)
	return nil
}

func (r *Repository) DeleteHistoryByID(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rev, ok := r.history[id]
	if !ok {
		return inkwell.ErrHistoryNotFound
	}
	delete(r.history, id)
	ids := r.historyByUID[rev.CMSUID]
	for i, hid := range ids {
		if hid == id {
			r.historyByUID[rev.CMSUID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	return nil
}

// Collaborator operations

func (r *Repository) ListCollaborators(ctx context.Context, uid string) ([]*inkwell.Collaborator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.collaborators[uid]
	result := make([]*inkwell.Collaborator, 0, len(set))
	for _, c := range set {
		copied := *c
		result = append(result, &copied)
	}
	return result, nil
}

// ReplaceCollaborators swaps the whole set for a uid.
func (r *Repository) ReplaceCollaborators(ctx context.Context, uid string, collaborators []*inkwell.Collaborator) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	set := make([]*inkwell.Collaborator, 0, len(collaborators))
	for _, c := range collaborators {
		copied := *c
		copied.CMSUID = uid
		set = append(set, &copied)
	}
	r.collaborators[uid] = set
	return nil
}
