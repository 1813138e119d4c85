package inkwell_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkwell-cms/inkwell/pkg/inkwell"
)

func publishContent(t *testing.T, svc inkwell.Service, req inkwell.CreateContentRequest) *inkwell.ContentHead {
	t.Helper()
	head, err := svc.Create(context.Background(), req, "author-1")
	require.NoError(t, err)
	published, err := svc.PublishByUID(context.Background(), head.UID, head.ETag, "publisher-1")
	require.NoError(t, err)
	return published
}

func TestRenderer(t *testing.T) {
	r := inkwell.NewRenderer()

	head := func(ct inkwell.ContentType, body string) *inkwell.ContentHead {
		return &inkwell.ContentHead{
			UID: "r-1", Slug: "rendered", Locale: "en", PostType: "post",
			Title: "Rendered", ContentType: ct, Content: body,
		}
	}

	t.Run("html is sanitized", func(t *testing.T) {
		p := r.Render(head(inkwell.ContentTypeHTML, `<p>ok</p><script>alert(1)</script>`), false)
		rendered, ok := p.Rendered.(string)
		require.True(t, ok)
		assert.Contains(t, rendered, "<p>ok</p>")
		assert.NotContains(t, rendered, "script")
	})

	t.Run("markdown converts then sanitizes", func(t *testing.T) {
		p := r.Render(head(inkwell.ContentTypeMarkdown, "# Title\n\n<script>x</script>**bold**"), false)
		rendered, ok := p.Rendered.(string)
		require.True(t, ok)
		assert.Contains(t, rendered, "<h1>")
		assert.Contains(t, rendered, "<strong>bold</strong>")
		assert.NotContains(t, rendered, "<script>")
	})

	t.Run("json is parsed", func(t *testing.T) {
		p := r.Render(head(inkwell.ContentTypeJSON, `{"blocks":[{"kind":"hero"}]}`), false)
		parsed, ok := p.Rendered.(map[string]interface{})
		require.True(t, ok)
		assert.Contains(t, parsed, "blocks")
	})

	t.Run("invalid json yields null body", func(t *testing.T) {
		p := r.Render(head(inkwell.ContentTypeJSON, `{broken`), false)
		assert.Nil(t, p.Rendered)
	})

	t.Run("plain passes through", func(t *testing.T) {
		p := r.Render(head(inkwell.ContentTypePlain, "raw text <unchanged>"), false)
		assert.Equal(t, "raw text <unchanged>", p.Rendered)
	})

	t.Run("unknown content type has no body", func(t *testing.T) {
		p := r.Render(head(inkwell.ContentType("application/x-weird"), "body"), false)
		assert.Nil(t, p.Rendered)
	})

	t.Run("protected body withheld until unlocked", func(t *testing.T) {
		h := head(inkwell.ContentTypePlain, "the secret body")
		h.PasswordHash = "$2a$12$fakefakefakefakefakefake"

		locked := r.Render(h, false)
		assert.True(t, locked.Protected)
		assert.Nil(t, locked.Rendered)
		assert.Equal(t, "Rendered", locked.Title, "metadata stays visible")

		open := r.Render(h, true)
		assert.True(t, open.Protected)
		assert.Equal(t, "the secret body", open.Rendered)
	})
}

func TestGetPublicPayloadBySlug(t *testing.T) {
	ctx := context.Background()
	svc := setupService(t)

	published := publishContent(t, svc, inkwell.CreateContentRequest{
		Title: "Public Post", Content: "# Hello", ContentType: inkwell.ContentTypeMarkdown,
		Slug: "public-post", Locale: "en", PostType: "post",
	})

	t.Run("published resolves", func(t *testing.T) {
		payload, err := svc.GetPublicPayloadBySlug(ctx, inkwell.PublicPayloadRequest{
			PostType: "post", Locale: "en", Slug: "public-post",
		})
		require.NoError(t, err)
		assert.Equal(t, published.UID, payload.UID)
		assert.Contains(t, payload.Rendered, "<h1>")
	})

	t.Run("lookup normalizes locale and slug", func(t *testing.T) {
		payload, err := svc.GetPublicPayloadBySlug(ctx, inkwell.PublicPayloadRequest{
			PostType: "post", Locale: "EN", Slug: "Public Post",
		})
		require.NoError(t, err)
		assert.Equal(t, published.UID, payload.UID)
	})

	t.Run("draft is invisible", func(t *testing.T) {
		draft := createDraft(t, svc, "hidden-draft")
		_, err := svc.GetPublicPayloadBySlug(ctx, inkwell.PublicPayloadRequest{
			PostType: "post", Locale: "en", Slug: draft.Slug,
		})
		assert.ErrorIs(t, err, inkwell.ErrNotFound)
	})

	t.Run("trashed is invisible", func(t *testing.T) {
		gone := publishContent(t, svc, inkwell.CreateContentRequest{
			Title: "Gone", ContentType: inkwell.ContentTypePlain,
			Slug: "soon-gone", Locale: "en", PostType: "post",
		})
		_, err := svc.TrashByUID(ctx, gone.UID, gone.ETag, "author-1")
		require.NoError(t, err)

		_, err = svc.GetPublicPayloadBySlug(ctx, inkwell.PublicPayloadRequest{
			PostType: "post", Locale: "en", Slug: "soon-gone",
		})
		assert.ErrorIs(t, err, inkwell.ErrNotFound)
	})
}

func TestGetPublicHead(t *testing.T) {
	ctx := context.Background()
	svc := setupService(t)

	published := publishContent(t, svc, inkwell.CreateContentRequest{
		Title: "Headed", Content: "body", ContentType: inkwell.ContentTypePlain,
		Slug: "headed", Locale: "en", PostType: "post", Password: "pw",
	})

	head, err := svc.GetPublicHead(ctx, "post", "en", "headed")
	require.NoError(t, err)
	assert.Equal(t, published.UID, head.UID)
	assert.Equal(t, published.ETag, head.ETag)
	assert.True(t, head.HasPassword)
	assert.Equal(t, 1, head.PasswordVersion)

	_, err = svc.GetPublicHead(ctx, "post", "en", "missing")
	assert.ErrorIs(t, err, inkwell.ErrNotFound)
}

func TestVerifyPublicPassword(t *testing.T) {
	ctx := context.Background()
	svc := setupService(t)

	publishContent(t, svc, inkwell.CreateContentRequest{
		Title: "Members Only", Content: "secret", ContentType: inkwell.ContentTypePlain,
		Slug: "members-only", Locale: "en", PostType: "post", Password: "open-sesame",
	})

	t.Run("correct password", func(t *testing.T) {
		head, err := svc.VerifyPublicPassword(ctx, "post", "en", "members-only", "open-sesame")
		require.NoError(t, err)
		assert.True(t, head.HasPassword)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := svc.VerifyPublicPassword(ctx, "post", "en", "members-only", "guess")
		var ve *inkwell.ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Contains(t, ve.Fields, "password")
	})

	t.Run("unprotected content", func(t *testing.T) {
		publishContent(t, svc, inkwell.CreateContentRequest{
			Title: "Open", Content: "free", ContentType: inkwell.ContentTypePlain,
			Slug: "open-post", Locale: "en", PostType: "post",
		})
		_, err := svc.VerifyPublicPassword(ctx, "post", "en", "open-post", "whatever")
		var ve *inkwell.ValidationError
		assert.ErrorAs(t, err, &ve)
	})

	t.Run("unknown slug", func(t *testing.T) {
		_, err := svc.VerifyPublicPassword(ctx, "post", "en", "missing", "pw")
		assert.ErrorIs(t, err, inkwell.ErrNotFound)
	})
}
