// Package postgres provides a pgx-backed Connector.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/inkwell-cms/inkwell/pkg/inkwell"
)

// DBTX is satisfied by both a pgx pool and a transaction, so callers can run
// repository operations inside their own transactions when they need to.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Repository implements inkwell.Connector (plus the public-head capability)
// on PostgreSQL. Options and tags are stored as JSONB; history snapshots are
// the full head serialized as JSONB, which keeps the history table immune to
// head-schema churn.
type Repository struct {
	db DBTX
}

// New creates a repository over an existing DBTX.
func New(db DBTX) *Repository {
	return &Repository{db: db}
}

// NewWithPool creates a repository over a connection pool.
func NewWithPool(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

func (r *Repository) handlePostgresError(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			if strings.Contains(pgErr.ConstraintName, "slug") {
				return fmt.Errorf("%s: slug already in use", operation)
			}
			return fmt.Errorf("%s: duplicate entry", operation)
		case "23503": // foreign_key_violation
			return fmt.Errorf("%s: referenced record not found", operation)
		case "23502": // not_null_violation
			return fmt.Errorf("%s: required field %s is missing", operation, pgErr.ColumnName)
		case "42P01": // undefined_table
			return fmt.Errorf("%s: table does not exist - database migration required", operation)
		}
		return fmt.Errorf("database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
	}
	return fmt.Errorf("database error in %s: %w", operation, err)
}

const headColumns = `
	uid, owner_user_uid, locked_by, locked_at, slug, locale, post_type,
	title, content, content_type, options, tags,
	password_hash, password_version,
	status, published_at, first_published_at, trashed_at, trashed_by, archived_at,
	version_number, etag, created_at, updated_at`

func scanHead(row pgx.Row) (*inkwell.ContentHead, error) {
	var (
		head    inkwell.ContentHead
		options []byte
		tags    []byte
	)
	err := row.Scan(
		&head.UID, &head.OwnerUserUID, &head.LockedBy, &head.LockedAt,
		&head.Slug, &head.Locale, &head.PostType,
		&head.Title, &head.Content, &head.ContentType, &options, &tags,
		&head.PasswordHash, &head.PasswordVersion,
		&head.Status, &head.PublishedAt, &head.FirstPublishedAt,
		&head.TrashedAt, &head.TrashedBy, &head.ArchivedAt,
		&head.VersionNumber, &head.ETag, &head.CreatedAt, &head.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(options) > 0 {
		if err := json.Unmarshal(options, &head.Options); err != nil {
			return nil, fmt.Errorf("decode options: %w", err)
		}
	}
	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &head.Tags); err != nil {
			return nil, fmt.Errorf("decode tags: %w", err)
		}
	}
	return &head, nil
}

func encodeJSON(v interface{}) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func (r *Repository) GetByUID(ctx context.Context, uid string) (*inkwell.ContentHead, error) {
	query := `SELECT` + headColumns + ` FROM cms_content WHERE uid = $1`

	head, err := scanHead(r.db.QueryRow(ctx, query, uid))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, inkwell.ErrNotFound
		}
		return nil, r.handlePostgresError("get content", err)
	}
	return head, nil
}

func (r *Repository) Insert(ctx context.Context, head *inkwell.ContentHead) error {
	options, err := encodeJSON(head.Options)
	if err != nil {
		return err
	}
	tags, err := encodeJSON(head.Tags)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO cms_content (` + headColumns + `
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
		          $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24)`

	_, err = r.db.Exec(ctx, query,
		head.UID, head.OwnerUserUID, head.LockedBy, head.LockedAt,
		head.Slug, head.Locale, head.PostType,
		head.Title, head.Content, head.ContentType, options, tags,
		head.PasswordHash, head.PasswordVersion,
		head.Status, head.PublishedAt, head.FirstPublishedAt,
		head.TrashedAt, head.TrashedBy, head.ArchivedAt,
		head.VersionNumber, head.ETag, head.CreatedAt, head.UpdatedAt)
	if err != nil {
		return r.handlePostgresError("insert content", err)
	}
	return nil
}

// UpdateHead writes the full head row. When expectVersion >= 0 the UPDATE is
// conditioned on the stored version_number, making the guard a single atomic
// compare-and-swap; zero affected rows is disambiguated into ErrNotFound or
// ErrVersionConflict with a follow-up existence probe.
func (r *Repository) UpdateHead(ctx context.Context, head *inkwell.ContentHead, expectVersion int) error {
	options, err := encodeJSON(head.Options)
	if err != nil {
		return err
	}
	tags, err := encodeJSON(head.Tags)
	if err != nil {
		return err
	}

	query := `
		UPDATE cms_content SET
			owner_user_uid = $2, locked_by = $3, locked_at = $4,
			slug = $5, locale = $6, post_type = $7,
			title = $8, content = $9, content_type = $10, options = $11, tags = $12,
			password_hash = $13, password_version = $14,
			status = $15, published_at = $16, first_published_at = $17,
			trashed_at = $18, trashed_by = $19, archived_at = $20,
			version_number = $21, etag = $22, updated_at = $23
		WHERE uid = $1`
	args := []interface{}{
		head.UID, head.OwnerUserUID, head.LockedBy, head.LockedAt,
		head.Slug, head.Locale, head.PostType,
		head.Title, head.Content, head.ContentType, options, tags,
		head.PasswordHash, head.PasswordVersion,
		head.Status, head.PublishedAt, head.FirstPublishedAt,
		head.TrashedAt, head.TrashedBy, head.ArchivedAt,
		head.VersionNumber, head.ETag, head.UpdatedAt,
	}
	if expectVersion >= 0 {
		query += ` AND version_number = $24`
		args = append(args, expectVersion)
	}

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return r.handlePostgresError("update content", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.db.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM cms_content WHERE uid = $1)`,
			head.UID).Scan(&exists); err != nil {
			return r.handlePostgresError("update content", err)
		}
		if !exists {
			return inkwell.ErrNotFound
		}
		return inkwell.ErrVersionConflict
	}
	return nil
}

// DeleteByUID removes the head and its collaborators. History rows are left
// in place; their lifecycle is independent of the head's.
func (r *Repository) DeleteByUID(ctx context.Context, uid string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM cms_content WHERE uid = $1`, uid)
	if err != nil {
		return r.handlePostgresError("delete content", err)
	}
	if tag.RowsAffected() == 0 {
		return inkwell.ErrNotFound
	}
	if _, err := r.db.Exec(ctx, `DELETE FROM cms_content_collaborator WHERE cms_uid = $1`, uid); err != nil {
		return r.handlePostgresError("delete collaborators", err)
	}
	return nil
}

func (r *Repository) List(ctx context.Context, filters inkwell.ListFilters) ([]*inkwell.ContentHead, error) {
	var (
		where []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filters.Status != nil {
		where = append(where, "status = "+arg(*filters.Status))
	}
	if filters.PostType != nil {
		where = append(where, "post_type = "+arg(*filters.PostType))
	}
	if filters.Locale != nil {
		where = append(where, "locale = "+arg(*filters.Locale))
	}
	if filters.OwnerUID != nil {
		where = append(where, "owner_user_uid = "+arg(*filters.OwnerUID))
	}
	if filters.Tag != nil {
		where = append(where, "tags @> "+arg(fmt.Sprintf(`["%s"]`, *filters.Tag)))
	}

	query := `SELECT` + headColumns + ` FROM cms_content`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY updated_at DESC"
	if filters.Limit != nil && *filters.Limit > 0 {
		query += " LIMIT " + arg(*filters.Limit)
	}
	if filters.Offset != nil && *filters.Offset > 0 {
		query += " OFFSET " + arg(*filters.Offset)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, r.handlePostgresError("list content", err)
	}
	defer rows.Close()

	var heads []*inkwell.ContentHead
	for rows.Next() {
		head, err := scanHead(rows)
		if err != nil {
			return nil, err
		}
		heads = append(heads, head)
	}
	return heads, rows.Err()
}

const publishedFilter = `
	post_type = $1 AND locale = $2 AND slug = $3
	AND status = 'published' AND archived_at IS NULL
	AND published_at IS NOT NULL AND published_at <= $4`

func (r *Repository) GetPublishedBySlug(ctx context.Context, postType, locale, slug string, now time.Time) (*inkwell.ContentHead, error) {
	query := `SELECT` + headColumns + ` FROM cms_content WHERE` + publishedFilter

	head, err := scanHead(r.db.QueryRow(ctx, query, postType, locale, slug, now))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, inkwell.ErrNotFound
		}
		return nil, r.handlePostgresError("get published content", err)
	}
	return head, nil
}

// GetPublicHeadBySlug implements the public-head capability with a body-free
// projection query, which public traffic hits far more often than full reads.
func (r *Repository) GetPublicHeadBySlug(ctx context.Context, postType, locale, slug string, now time.Time) (*inkwell.PublicHead, error) {
	query := `
		SELECT uid, status, etag, version_number, password_version,
		       password_hash <> '', published_at, archived_at, updated_at
		FROM cms_content WHERE` + publishedFilter

	var head inkwell.PublicHead
	err := r.db.QueryRow(ctx, query, postType, locale, slug, now).Scan(
		&head.UID, &head.Status, &head.ETag, &head.VersionNumber,
		&head.PasswordVersion, &head.HasPassword,
		&head.PublishedAt, &head.ArchivedAt, &head.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, inkwell.ErrNotFound
		}
		return nil, r.handlePostgresError("get public head", err)
	}
	return &head, nil
}

// History operations

func (r *Repository) InsertHistory(ctx context.Context, rev *inkwell.HistoryRevision) error {
	snapshot, err := json.Marshal(rev.Snapshot)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	query := `
		INSERT INTO cms_content_history (cms_uid, revision, snapshot, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	err = r.db.QueryRow(ctx, query,
		rev.CMSUID, rev.Revision, snapshot, rev.CreatedBy, rev.CreatedAt).Scan(&rev.ID)
	if err != nil {
		return r.handlePostgresError("insert history", err)
	}
	return nil
}

const historyColumns = `id, cms_uid, revision, snapshot, created_by, created_at, soft_deleted_at, soft_deleted_by`

func scanRevision(row pgx.Row) (*inkwell.HistoryRevision, error) {
	var (
		rev      inkwell.HistoryRevision
		snapshot []byte
	)
	err := row.Scan(&rev.ID, &rev.CMSUID, &rev.Revision, &snapshot,
		&rev.CreatedBy, &rev.CreatedAt, &rev.SoftDeletedAt, &rev.SoftDeletedBy)
	if err != nil {
		return nil, err
	}
	if len(snapshot) > 0 {
		rev.Snapshot = &inkwell.ContentHead{}
		if err := json.Unmarshal(snapshot, rev.Snapshot); err != nil {
			return nil, fmt.Errorf("decode snapshot: %w", err)
		}
	}
	return &rev, nil
}

func (r *Repository) ListHistory(ctx context.Context, uid string, filters inkwell.HistoryFilters) ([]*inkwell.HistoryRevision, error) {
	args := []interface{}{uid}
	query := `SELECT ` + historyColumns + ` FROM cms_content_history WHERE cms_uid = $1`
	if !filters.IncludeSoftDeleted {
		query += ` AND soft_deleted_at IS NULL`
	}
	query += ` ORDER BY revision DESC`
	if filters.Limit != nil && *filters.Limit > 0 {
		args = append(args, *filters.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filters.Offset != nil && *filters.Offset > 0 {
		args = append(args, *filters.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, r.handlePostgresError("list history", err)
	}
	defer rows.Close()

	var revs []*inkwell.HistoryRevision
	for rows.Next() {
		rev, err := scanRevision(rows)
		if err != nil {
			return nil, err
		}
		revs = append(revs, rev)
	}
	return revs, rows.Err()
}

func (r *Repository) GetHistoryByID(ctx context.Context, id int64) (*inkwell.HistoryRevision, error) {
	query := `SELECT ` + historyColumns + ` FROM cms_content_history WHERE id = $1`

	rev, err := scanRevision(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, inkwell.ErrHistoryNotFound
		}
		return nil, r.handlePostgresError("get history", err)
	}
	return rev, nil
}

func (r *Repository) UpdateHistoryByID(ctx context.Context, rev *inkwell.HistoryRevision) error {
	query := `
		UPDATE cms_content_history SET
			soft_deleted_at = $2, soft_deleted_by = $3
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, rev.ID, rev.SoftDeletedAt, rev.SoftDeletedBy)
	if err != nil {
		return r.handlePostgresError("update history", err)
	}
	if tag.RowsAffected() == 0 {
		return inkwell.ErrHistoryNotFound
	}
	return nil
}

func (r *Repository) DeleteHistoryByID(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM cms_content_history WHERE id = $1`, id)
	if err != nil {
		return r.handlePostgresError("delete history", err)
	}
	if tag.RowsAffected() == 0 {
		return inkwell.ErrHistoryNotFound
	}
	return nil
}

// Collaborator operations

func (r *Repository) ListCollaborators(ctx context.Context, uid string) ([]*inkwell.Collaborator, error) {
	query := `
		SELECT cms_uid, user_uid, role
		FROM cms_content_collaborator WHERE cms_uid = $1
		ORDER BY user_uid`

	rows, err := r.db.Query(ctx, query, uid)
	if err != nil {
		return nil, r.handlePostgresError("list collaborators", err)
	}
	defer rows.Close()

	collaborators := []*inkwell.Collaborator{}
	for rows.Next() {
		var c inkwell.Collaborator
		if err := rows.Scan(&c.CMSUID, &c.UserUID, &c.Role); err != nil {
			return nil, err
		}
		collaborators = append(collaborators, &c)
	}
	return collaborators, rows.Err()
}

// ReplaceCollaborators swaps the whole set for a uid in one statement pair.
// Callers that need atomicity run it inside a transaction via DBTX.
func (r *Repository) ReplaceCollaborators(ctx context.Context, uid string, collaborators []*inkwell.Collaborator) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM cms_content_collaborator WHERE cms_uid = $1`, uid); err != nil {
		return r.handlePostgresError("replace collaborators", err)
	}
	for _, c := range collaborators {
		_, err := r.db.Exec(ctx,
			`INSERT INTO cms_content_collaborator (cms_uid, user_uid, role) VALUES ($1, $2, $3)`,
			uid, c.UserUID, c.Role)
		if err != nil {
			return r.handlePostgresError("replace collaborators", err)
		}
	}
	return nil
}
