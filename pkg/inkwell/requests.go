package inkwell

// Request DTOs

// CreateContentRequest contains parameters for creating new content. UID is
// optional; one is generated when absent. Password, when set, is hashed before
// the head is persisted.
type CreateContentRequest struct {
	UID         string
	Title       string
	Content     string
	ContentType ContentType
	Slug        string
	Locale      string
	PostType    string
	Options     map[string]interface{}
	Tags        []string
	Password    string
}

// UpdatePatch carries the fields an update may change. Nil pointers mean
// "leave as is"; a pointer to the zero value clears the field where that is
// meaningful (an empty Password clears protection).
type UpdatePatch struct {
	Title       *string
	Content     *string
	ContentType *ContentType
	Slug        *string
	Locale      *string
	PostType    *string
	Options     *map[string]interface{}
	Tags        *[]string
	Password    *string
}

// UpdateContentRequest contains parameters for updating a head. IfMatch is
// the etag the caller last observed (empty or "*" forces). Changing the slug
// of published content additionally requires ConfirmSlugChange.
type UpdateContentRequest struct {
	UID               string
	Patch             UpdatePatch
	IfMatch           string
	ActorUID          string
	ConfirmSlugChange bool
}

// PublicPayloadRequest contains parameters for rendering a public payload.
// Unlocked is set by the boundary after it has verified an unlock token; the
// core itself never inspects tokens.
type PublicPayloadRequest struct {
	PostType string
	Locale   string
	Slug     string
	Unlocked bool
}
