package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/inkwell-cms/inkwell/pkg/inkwell"
	"github.com/inkwell-cms/inkwell/pkg/inkwell/authz"
)

// AdminHandler serves the administrative content API. The host mounts its
// Routes under an admin prefix of its choosing, behind the authz gate.
type AdminHandler struct {
	service inkwell.Service
}

// NewAdminHandler creates an admin handler backed by the given service.
func NewAdminHandler(service inkwell.Service) *AdminHandler {
	return &AdminHandler{service: service}
}

// Routes returns the admin routes. Middleware passed in wraps only the
// publisher-level endpoints (publish, trash, restore, delete, empty trash,
// hard history deletion); mount author-level guards on the parent router.
func (h *AdminHandler) Routes(publisherOnly ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.List)
	r.Post("/", h.Create)

	r.Get("/{uid}", h.Get)
	r.Put("/{uid}", h.Update)

	r.Post("/{uid}/lock", h.Lock)
	r.Delete("/{uid}/lock", h.Unlock)

	r.Get("/{uid}/collaborators", h.ListCollaborators)
	r.Put("/{uid}/collaborators", h.ReplaceCollaborators)

	r.Get("/{uid}/history", h.ListHistory)
	r.Post("/{uid}/history/{id}/restore", h.RestoreHistoryRevision)
	r.Post("/{uid}/history/{id}/delete", h.SoftDeleteHistoryRevision)

	r.Group(func(r chi.Router) {
		for _, mw := range publisherOnly {
			r.Use(mw)
		}
		r.Post("/trash/empty", h.EmptyTrash)
		r.Delete("/{uid}", h.Delete)
		r.Post("/{uid}/publish", h.Publish)
		r.Post("/{uid}/trash", h.Trash)
		r.Post("/{uid}/restore", h.Restore)
		r.Delete("/{uid}/history/{id}", h.HardDeleteHistoryRevision)
	})

	return r
}

func actorUID(r *http.Request) string {
	if actor := authz.ActorFromContext(r.Context()); actor != nil {
		return actor.UID
	}
	return ""
}

func setETag(w http.ResponseWriter, head *inkwell.ContentHead) {
	w.Header().Set("ETag", head.ETag)
}

// CreateRequest is the JSON body for creating content.
type CreateRequest struct {
	UID         string                 `json:"uid,omitempty"`
	Title       string                 `json:"title"`
	Content     string                 `json:"content"`
	ContentType string                 `json:"content_type"`
	Slug        string                 `json:"slug"`
	Locale      string                 `json:"locale"`
	PostType    string                 `json:"post_type"`
	Options     map[string]interface{} `json:"options,omitempty"`
	Tags        []string               `json:"tags,omitempty"`
	Password    string                 `json:"password,omitempty"`
}

// UpdateRequest is the JSON body for updating content. Absent fields stay
// untouched.
type UpdateRequest struct {
	Title             *string                 `json:"title,omitempty"`
	Content           *string                 `json:"content,omitempty"`
	ContentType       *string                 `json:"content_type,omitempty"`
	Slug              *string                 `json:"slug,omitempty"`
	Locale            *string                 `json:"locale,omitempty"`
	PostType          *string                 `json:"post_type,omitempty"`
	Options           *map[string]interface{} `json:"options,omitempty"`
	Tags              *[]string               `json:"tags,omitempty"`
	Password          *string                 `json:"password,omitempty"`
	ConfirmSlugChange bool                    `json:"confirm_slug_change,omitempty"`
}

func (h *AdminHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, &inkwell.ValidationError{Message: "invalid request body"})
		return
	}

	head, err := h.service.Create(r.Context(), inkwell.CreateContentRequest{
		UID:         req.UID,
		Title:       req.Title,
		Content:     req.Content,
		ContentType: inkwell.ContentType(req.ContentType),
		Slug:        req.Slug,
		Locale:      req.Locale,
		PostType:    req.PostType,
		Options:     req.Options,
		Tags:        req.Tags,
		Password:    req.Password,
	}, actorUID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}

	setETag(w, head)
	writeData(w, r, http.StatusCreated, head)
}

func (h *AdminHandler) Get(w http.ResponseWriter, r *http.Request) {
	head, err := h.service.GetByUID(r.Context(), chi.URLParam(r, "uid"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	setETag(w, head)
	writeData(w, r, http.StatusOK, head)
}

func (h *AdminHandler) List(w http.ResponseWriter, r *http.Request) {
	filters := inkwell.ListFilters{}
	q := r.URL.Query()
	if v := q.Get("status"); v != "" {
		status := inkwell.Status(v)
		filters.Status = &status
	}
	if v := q.Get("post_type"); v != "" {
		filters.PostType = &v
	}
	if v := q.Get("locale"); v != "" {
		filters.Locale = &v
	}
	if v := q.Get("tag"); v != "" {
		filters.Tag = &v
	}
	if v := q.Get("owner"); v != "" {
		filters.OwnerUID = &v
	}
	if limit, err := strconv.Atoi(q.Get("limit")); err == nil && limit > 0 {
		filters.Limit = &limit
	}
	if offset, err := strconv.Atoi(q.Get("offset")); err == nil && offset > 0 {
		filters.Offset = &offset
	}

	heads, err := h.service.List(r.Context(), filters)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, heads)
}

func (h *AdminHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, &inkwell.ValidationError{Message: "invalid request body"})
		return
	}

	var contentType *inkwell.ContentType
	if req.ContentType != nil {
		ct := inkwell.ContentType(*req.ContentType)
		contentType = &ct
	}

	head, err := h.service.UpdateByUID(r.Context(), inkwell.UpdateContentRequest{
		UID: chi.URLParam(r, "uid"),
		Patch: inkwell.UpdatePatch{
			Title:       req.Title,
			Content:     req.Content,
			ContentType: contentType,
			Slug:        req.Slug,
			Locale:      req.Locale,
			PostType:    req.PostType,
			Options:     req.Options,
			Tags:        req.Tags,
			Password:    req.Password,
		},
		IfMatch:           r.Header.Get("If-Match"),
		ActorUID:          actorUID(r),
		ConfirmSlugChange: req.ConfirmSlugChange,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	setETag(w, head)
	writeData(w, r, http.StatusOK, head)
}

func (h *AdminHandler) Publish(w http.ResponseWriter, r *http.Request) {
	head, err := h.service.PublishByUID(r.Context(), chi.URLParam(r, "uid"), r.Header.Get("If-Match"), actorUID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	setETag(w, head)
	writeData(w, r, http.StatusOK, head)
}

func (h *AdminHandler) Trash(w http.ResponseWriter, r *http.Request) {
	// Trash is the one transition where an absent If-Match defaults to the
	// wildcard: moving to trash is always recoverable.
	ifMatch := r.Header.Get("If-Match")
	if ifMatch == "" {
		ifMatch = inkwell.IfMatchAny
	}
	head, err := h.service.TrashByUID(r.Context(), chi.URLParam(r, "uid"), ifMatch, actorUID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	setETag(w, head)
	writeData(w, r, http.StatusOK, head)
}

func (h *AdminHandler) Restore(w http.ResponseWriter, r *http.Request) {
	head, err := h.service.RestoreByUID(r.Context(), chi.URLParam(r, "uid"), r.Header.Get("If-Match"), actorUID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	setETag(w, head)
	writeData(w, r, http.StatusOK, head)
}

func (h *AdminHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteByUID(r.Context(), chi.URLParam(r, "uid")); err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, map[string]bool{"deleted": true})
}

// EmptyTrashRequest is the JSON body for a bulk purge.
type EmptyTrashRequest struct {
	Limit int `json:"limit"`
}

func (h *AdminHandler) EmptyTrash(w http.ResponseWriter, r *http.Request) {
	var req EmptyTrashRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	deleted, err := h.service.EmptyTrash(r.Context(), req.Limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, map[string]int{"deleted": deleted})
}

func (h *AdminHandler) Lock(w http.ResponseWriter, r *http.Request) {
	head, err := h.service.LockByUID(r.Context(), chi.URLParam(r, "uid"), actorUID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, head)
}

func (h *AdminHandler) Unlock(w http.ResponseWriter, r *http.Request) {
	force := r.URL.Query().Get("force") == "true"
	head, err := h.service.UnlockByUID(r.Context(), chi.URLParam(r, "uid"), actorUID(r), force)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, head)
}

func (h *AdminHandler) ListCollaborators(w http.ResponseWriter, r *http.Request) {
	collaborators, err := h.service.ListCollaborators(r.Context(), chi.URLParam(r, "uid"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, collaborators)
}

// ReplaceCollaboratorsRequest is the JSON body replacing the collaborator
// set.
type ReplaceCollaboratorsRequest struct {
	Collaborators []*inkwell.Collaborator `json:"collaborators"`
}

func (h *AdminHandler) ReplaceCollaborators(w http.ResponseWriter, r *http.Request) {
	var req ReplaceCollaboratorsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, &inkwell.ValidationError{Message: "invalid request body"})
		return
	}
	collaborators, err := h.service.ReplaceCollaborators(r.Context(), chi.URLParam(r, "uid"), req.Collaborators)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, collaborators)
}

func (h *AdminHandler) ListHistory(w http.ResponseWriter, r *http.Request) {
	filters := inkwell.HistoryFilters{
		IncludeSoftDeleted: r.URL.Query().Get("include_deleted") == "true",
	}
	if limit, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && limit > 0 {
		filters.Limit = &limit
	}
	if offset, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && offset > 0 {
		filters.Offset = &offset
	}

	revisions, err := h.service.ListHistory(r.Context(), chi.URLParam(r, "uid"), filters)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, revisions)
}

func historyID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func (h *AdminHandler) RestoreHistoryRevision(w http.ResponseWriter, r *http.Request) {
	id, err := historyID(r)
	if err != nil {
		writeError(w, r, inkwell.ErrHistoryNotFound)
		return
	}
	head, err := h.service.RestoreHistoryRevision(r.Context(), chi.URLParam(r, "uid"), id, r.Header.Get("If-Match"), actorUID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	setETag(w, head)
	writeData(w, r, http.StatusOK, head)
}

func (h *AdminHandler) SoftDeleteHistoryRevision(w http.ResponseWriter, r *http.Request) {
	id, err := historyID(r)
	if err != nil {
		writeError(w, r, inkwell.ErrHistoryNotFound)
		return
	}
	if err := h.service.SoftDeleteHistoryRevision(r.Context(), chi.URLParam(r, "uid"), id, actorUID(r)); err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, map[string]bool{"soft_deleted": true})
}

func (h *AdminHandler) HardDeleteHistoryRevision(w http.ResponseWriter, r *http.Request) {
	id, err := historyID(r)
	if err != nil {
		writeError(w, r, inkwell.ErrHistoryNotFound)
		return
	}
	if err := h.service.HardDeleteHistoryRevision(r.Context(), chi.URLParam(r, "uid"), id); err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, map[string]bool{"deleted": true})
}
