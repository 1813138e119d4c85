package inkwell

import (
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Post types accepted by default. Hosts can extend the set through the
// WithPostTypes service option.
var defaultPostTypes = []string{"page", "post", "snippet"}

// Slugs that collide with routing or administrative surfaces and can never be
// assigned to content.
var reservedSlugs = map[string]struct{}{
	"admin":   {},
	"api":     {},
	"assets":  {},
	"static":  {},
	"login":   {},
	"logout":  {},
	"trash":   {},
	"history": {},
	"unlock":  {},
}

var (
	slugStripRe    = regexp.MustCompile(`[^a-z0-9-]+`)
	slugCollapseRe = regexp.MustCompile(`-+`)
	slugValidRe    = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)
	localeRe       = regexp.MustCompile(`^[a-z]{2,3}(?:-[a-z0-9]{2,8})*$`)
)

// CanonicalizeSlug lowercases, hyphenates whitespace, strips everything
// outside [a-z0-9-], collapses runs of hyphens and trims them from the ends.
func CanonicalizeSlug(input string) string {
	s := strings.ToLower(strings.TrimSpace(input))
	s = strings.ReplaceAll(s, " ", "-")
	s = slugStripRe.ReplaceAllString(s, "")
	s = slugCollapseRe.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// NormalizeLocale lowercases a locale tag and folds underscores to hyphens
// ("en_US" -> "en-us").
func NormalizeLocale(input string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(input), "_", "-"))
}

// IsReservedSlug reports whether a canonical slug is reserved.
func IsReservedSlug(slug string) bool {
	_, ok := reservedSlugs[slug]
	return ok
}

func validContentType(ct ContentType) bool {
	switch ct {
	case ContentTypeHTML, ContentTypeMarkdown, ContentTypeJSON, ContentTypePlain:
		return true
	}
	return false
}

// fieldErrors converts ozzo's error map into the ValidationError detail map.
func fieldErrors(msg string, err error) error {
	if err == nil {
		return nil
	}
	ve := &ValidationError{Message: msg, Fields: map[string]string{}}
	if verrs, ok := err.(validation.Errors); ok {
		for field, ferr := range verrs {
			ve.Fields[field] = ferr.Error()
		}
		return ve
	}
	ve.Fields["_"] = err.Error()
	return ve
}

// validateHead checks the invariant fields of a head after request
// normalization: slug shape and reservation, locale shape, content and post
// types. allowedPostTypes comes from service configuration.
func validateHead(h *ContentHead, allowedPostTypes []string) error {
	fields := map[string]string{}

	if !slugValidRe.MatchString(h.Slug) {
		fields["slug"] = "must contain only lowercase letters, digits and hyphens"
	} else if IsReservedSlug(h.Slug) {
		fields["slug"] = "slug is reserved"
	}
	if !localeRe.MatchString(h.Locale) {
		fields["locale"] = "must be a lowercase BCP 47 style tag"
	}
	if !validContentType(h.ContentType) {
		fields["content_type"] = "unsupported content type"
	}
	found := false
	for _, pt := range allowedPostTypes {
		if pt == h.PostType {
			found = true
			break
		}
	}
	if !found {
		fields["post_type"] = "unsupported post type"
	}

	if len(fields) > 0 {
		return &ValidationError{Message: "invalid content", Fields: fields}
	}
	return nil
}

// Validate checks the shape of a create request. Slug and locale are expected
// to be canonicalized before validation; the service does both.
func (r CreateContentRequest) Validate() error {
	err := validation.ValidateStruct(&r,
		validation.Field(&r.Title, validation.Required, validation.Length(1, 512)),
		validation.Field(&r.Slug, validation.Required, validation.Length(1, 256)),
		validation.Field(&r.Locale, validation.Required, validation.Length(2, 16)),
		validation.Field(&r.PostType, validation.Required),
		validation.Field(&r.ContentType, validation.Required),
	)
	return fieldErrors("invalid create request", err)
}
