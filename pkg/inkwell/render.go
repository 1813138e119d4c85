package inkwell

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"golang.org/x/crypto/bcrypt"
)

// Renderer turns a head into its content-type-specific public payload.
type Renderer struct {
	markdown goldmark.Markdown
	policy   *bluemonday.Policy
}

// NewRenderer builds the default renderer: GFM markdown and the bluemonday
// UGC sanitization policy.
func NewRenderer() *Renderer {
	return &Renderer{
		markdown: goldmark.New(goldmark.WithExtensions(extension.GFM)),
		policy:   bluemonday.UGCPolicy(),
	}
}

// NewRendererWithPolicy builds a renderer with a host-supplied sanitization
// policy.
func NewRendererWithPolicy(policy *bluemonday.Policy) *Renderer {
	return &Renderer{
		markdown: goldmark.New(goldmark.WithExtensions(extension.GFM)),
		policy:   policy,
	}
}

// Render builds the public payload for a head. unlocked controls whether a
// password-protected body is included.
func (r *Renderer) Render(head *ContentHead, unlocked bool) *PublicPayload {
	payload := &PublicPayload{
		UID:         head.UID,
		Slug:        head.Slug,
		Locale:      head.Locale,
		PostType:    head.PostType,
		Title:       head.Title,
		ContentType: head.ContentType,
		Options:     head.Options,
		Tags:        head.Tags,
		Protected:   head.HasPassword(),
		ETag:        head.ETag,
		PublishedAt: head.PublishedAt,
		UpdatedAt:   head.UpdatedAt,
	}
	if payload.Protected && !unlocked {
		return payload
	}
	payload.Rendered = r.renderBody(head)
	return payload
}

// renderBody applies the content-type-specific rendering. Unknown content
// types yield no rendered field; a JSON parse failure is non-fatal and yields
// null.
func (r *Renderer) renderBody(head *ContentHead) interface{} {
	switch head.ContentType {
	case ContentTypeHTML:
		return r.policy.Sanitize(head.Content)
	case ContentTypeMarkdown:
		var buf bytes.Buffer
		if err := r.markdown.Convert([]byte(head.Content), &buf); err != nil {
			return nil
		}
		return string(r.policy.SanitizeBytes(buf.Bytes()))
	case ContentTypeJSON:
		var parsed interface{}
		if err := json.Unmarshal([]byte(head.Content), &parsed); err != nil {
			return nil
		}
		return parsed
	case ContentTypePlain:
		return head.Content
	}
	return nil
}

// GetPublicHead returns the lightweight projection for a published item. It
// prefers the connector's public-head capability and falls back to fetching
// the full row and projecting client-side.
func (s *service) GetPublicHead(ctx context.Context, postType, locale, slug string) (*PublicHead, error) {
	locale = NormalizeLocale(locale)
	slug = CanonicalizeSlug(slug)
	if s.publicHeads != nil {
		return s.publicHeads.GetPublicHeadBySlug(ctx, postType, locale, slug, s.now())
	}
	head, err := s.connector.GetPublishedBySlug(ctx, postType, locale, slug, s.now())
	if err != nil {
		return nil, err
	}
	return ProjectPublicHead(head), nil
}

// GetPublicPayloadBySlug fetches the published row for the lookup triple and
// renders it. Not-found, not-yet-published and archived rows all surface as
// ErrNotFound; the connector enforces that gating.
func (s *service) GetPublicPayloadBySlug(ctx context.Context, req PublicPayloadRequest) (*PublicPayload, error) {
	head, err := s.connector.GetPublishedBySlug(ctx, req.PostType, NormalizeLocale(req.Locale), CanonicalizeSlug(req.Slug), s.now())
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, &ContentError{Op: "public_payload", Err: err}
	}
	return s.renderer.Render(head, req.Unlocked), nil
}

// VerifyPublicPassword checks a plaintext password against a published,
// protected item and returns its public head on success. The boundary uses
// the head's uid and password version to mint an unlock token.
func (s *service) VerifyPublicPassword(ctx context.Context, postType, locale, slug, password string) (*PublicHead, error) {
	head, err := s.connector.GetPublishedBySlug(ctx, postType, NormalizeLocale(locale), CanonicalizeSlug(slug), s.now())
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, &ContentError{Op: "verify_password", Err: err}
	}
	if !head.HasPassword() {
		return nil, newValidationError("content is not password protected")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(head.PasswordHash), []byte(password)); err != nil {
		return nil, &ValidationError{Message: "password mismatch", Fields: map[string]string{"password": "incorrect password"}}
	}
	return ProjectPublicHead(head), nil
}
