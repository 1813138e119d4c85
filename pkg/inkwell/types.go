package inkwell

import (
	"time"
)

// Status is the lifecycle state of a content head.
type Status string

// Content status constants (typed).
const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
	StatusTrash     Status = "trash"
)

// ContentType identifies how the raw body of a content head is interpreted
// when a public payload is rendered.
type ContentType string

// Supported content types.
const (
	ContentTypeHTML     ContentType = "text/html"
	ContentTypeMarkdown ContentType = "text/markdown"
	ContentTypeJSON     ContentType = "application/json"
	ContentTypePlain    ContentType = "text/plain"
)

// ContentHead is the mutable "current" record for one content item. Historic
// states live in HistoryRevision rows; the head row always reflects the latest
// successful mutation.
//
// The (Slug, Locale, PostType) triple is the public lookup address and is
// unique while the item is published. ETag is always recomputable from
// (UID, VersionNumber); see ComputeETag.
type ContentHead struct {
	UID          string `json:"uid"`
	OwnerUserUID string `json:"owner_user_uid"`

	// Advisory edit lock. A lock is live while now-LockedAt < lock TTL;
	// it never blocks writes, it only signals collaborative editing.
	LockedBy *string    `json:"locked_by,omitempty"`
	LockedAt *time.Time `json:"locked_at,omitempty"`

	Slug     string `json:"slug"`
	Locale   string `json:"locale"`
	PostType string `json:"post_type"`

	Title       string                 `json:"title"`
	Content     string                 `json:"content"`
	ContentType ContentType            `json:"content_type"`
	Options     map[string]interface{} `json:"options,omitempty"`
	Tags        []string               `json:"tags,omitempty"`

	// PasswordVersion is monotonic and bumped on every password change so
	// previously issued unlock tokens stop verifying.
	PasswordHash    string `json:"-"`
	PasswordVersion int    `json:"password_version"`

	Status           Status     `json:"status"`
	PublishedAt      *time.Time `json:"published_at,omitempty"`
	FirstPublishedAt *time.Time `json:"first_published_at,omitempty"`
	TrashedAt        *time.Time `json:"trashed_at,omitempty"`
	TrashedBy        *string    `json:"trashed_by,omitempty"`
	ArchivedAt       *time.Time `json:"archived_at,omitempty"`

	VersionNumber int    `json:"version_number"`
	ETag          string `json:"etag"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasPassword reports whether the item is password protected.
func (h *ContentHead) HasPassword() bool {
	return h.PasswordHash != ""
}

// Clone returns a deep copy of the head. Snapshots and connector adapters use
// it so callers can never mutate shared state through a returned pointer.
func (h *ContentHead) Clone() *ContentHead {
	if h == nil {
		return nil
	}
	c := *h
	c.LockedBy = cloneStringPtr(h.LockedBy)
	c.LockedAt = cloneTimePtr(h.LockedAt)
	c.PublishedAt = cloneTimePtr(h.PublishedAt)
	c.FirstPublishedAt = cloneTimePtr(h.FirstPublishedAt)
	c.TrashedAt = cloneTimePtr(h.TrashedAt)
	c.TrashedBy = cloneStringPtr(h.TrashedBy)
	c.ArchivedAt = cloneTimePtr(h.ArchivedAt)
	if h.Options != nil {
		c.Options = make(map[string]interface{}, len(h.Options))
		for k, v := range h.Options {
			c.Options[k] = v
		}
	}
	if h.Tags != nil {
		c.Tags = append([]string(nil), h.Tags...)
	}
	return &c
}

func cloneStringPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTimePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// HistoryRevision is an immutable snapshot of a content head captured just
// before a mutation. Revisions are append-only; only an explicit hard delete
// removes a row, and a soft delete merely hides it from default listings.
type HistoryRevision struct {
	ID            int64        `json:"id"`
	CMSUID        string       `json:"cms_uid"`
	Revision      int          `json:"revision"`
	Snapshot      *ContentHead `json:"snapshot"`
	CreatedBy     string       `json:"created_by"`
	CreatedAt     time.Time    `json:"created_at"`
	SoftDeletedAt *time.Time   `json:"soft_deleted_at,omitempty"`
	SoftDeletedBy *string      `json:"soft_deleted_by,omitempty"`
}

// Collaborator grants a user a role on one content item. The set for a given
// uid is always replaced whole, never patched.
type Collaborator struct {
	CMSUID  string `json:"cms_uid"`
	UserUID string `json:"user_uid"`
	Role    string `json:"role"`
}

// PublicHead is a lightweight projection of a published head (no body) used
// for cache validation and password gating on public reads.
type PublicHead struct {
	UID             string     `json:"uid"`
	Status          Status     `json:"status"`
	ETag            string     `json:"etag"`
	VersionNumber   int        `json:"version_number"`
	PasswordVersion int        `json:"password_version"`
	HasPassword     bool       `json:"has_password"`
	PublishedAt     *time.Time `json:"published_at,omitempty"`
	ArchivedAt      *time.Time `json:"archived_at,omitempty"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// ProjectPublicHead builds a PublicHead from a full head row. Connectors
// without the public-head capability fall back to this client-side projection.
func ProjectPublicHead(h *ContentHead) *PublicHead {
	return &PublicHead{
		UID:             h.UID,
		Status:          h.Status,
		ETag:            h.ETag,
		VersionNumber:   h.VersionNumber,
		PasswordVersion: h.PasswordVersion,
		HasPassword:     h.HasPassword(),
		PublishedAt:     cloneTimePtr(h.PublishedAt),
		ArchivedAt:      cloneTimePtr(h.ArchivedAt),
		UpdatedAt:       h.UpdatedAt,
	}
}

// PublicPayload is the rendered, public-facing view of a published item.
// Rendered holds the content-type-specific rendering: sanitized HTML for HTML
// and Markdown bodies, the parsed value for JSON, the raw body for plain text,
// and nothing for unknown content types. Protected payloads carry no body at
// all until the caller presents a valid unlock token.
type PublicPayload struct {
	UID         string                 `json:"uid"`
	Slug        string                 `json:"slug"`
	Locale      string                 `json:"locale"`
	PostType    string                 `json:"post_type"`
	Title       string                 `json:"title"`
	ContentType ContentType            `json:"content_type"`
	Rendered    interface{}            `json:"rendered,omitempty"`
	Options     map[string]interface{} `json:"options,omitempty"`
	Tags        []string               `json:"tags,omitempty"`
	Protected   bool                   `json:"protected"`
	ETag        string                 `json:"etag"`
	PublishedAt *time.Time             `json:"published_at,omitempty"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

// ListFilters defines filtering and pagination for admin content listings.
type ListFilters struct {
	Status   *Status
	PostType *string
	Locale   *string
	Tag      *string
	OwnerUID *string
	Limit    *int
	Offset   *int
}

// HistoryFilters defines pagination for history listings. Soft-deleted
// revisions are excluded unless IncludeSoftDeleted is set.
type HistoryFilters struct {
	IncludeSoftDeleted bool
	Limit              *int
	Offset             *int
}
