package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/inkwell-cms/inkwell/pkg/inkwell"
	"github.com/inkwell-cms/inkwell/pkg/inkwell/unlock"
)

// UnlockTokenHeader carries an unlock token on public reads. A token may
// alternatively be passed as the "unlock" query parameter.
const UnlockTokenHeader = "X-Unlock-Token"

// PublicHandler serves public reads and the password-unlock flow. Unlock
// tokens are verified here, at the boundary; the service core never sees
// them.
type PublicHandler struct {
	service inkwell.Service
	signer  *unlock.Signer
}

// NewPublicHandler creates a public handler. signer may be nil when the host
// serves no password-protected content.
func NewPublicHandler(service inkwell.Service, signer *unlock.Signer) *PublicHandler {
	return &PublicHandler{service: service, signer: signer}
}

// Routes returns the public routes.
func (h *PublicHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/{postType}/{locale}/{slug}", h.GetPayload)
	r.Head("/{postType}/{locale}/{slug}", h.GetHead)
	r.Post("/{postType}/{locale}/{slug}/unlock", h.Unlock)

	return r
}

func lookupTriple(r *http.Request) (postType, locale, slug string) {
	return chi.URLParam(r, "postType"), chi.URLParam(r, "locale"), chi.URLParam(r, "slug")
}

func unlockToken(r *http.Request) string {
	if token := r.Header.Get(UnlockTokenHeader); token != "" {
		return token
	}
	return r.URL.Query().Get("unlock")
}

// GetPayload renders the public payload for a published item. The cheap head
// projection is fetched first for cache validation and password gating; the
// full row is only rendered afterwards.
func (h *PublicHandler) GetPayload(w http.ResponseWriter, r *http.Request) {
	postType, locale, slug := lookupTriple(r)

	head, err := h.service.GetPublicHead(r.Context(), postType, locale, slug)
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("ETag", head.ETag)
	if match := r.Header.Get("If-None-Match"); match != "" && match == head.ETag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	unlocked := false
	if head.HasPassword && h.signer != nil {
		if token := unlockToken(r); token != "" {
			_, verr := h.signer.Verify(token, unlock.Expectation{
				UID:             head.UID,
				PostType:        postType,
				Locale:          inkwell.NormalizeLocale(locale),
				Slug:            inkwell.CanonicalizeSlug(slug),
				PasswordVersion: head.PasswordVersion,
			})
			unlocked = verr == nil
		}
	}

	payload, err := h.service.GetPublicPayloadBySlug(r.Context(), inkwell.PublicPayloadRequest{
		PostType: postType,
		Locale:   locale,
		Slug:     slug,
		Unlocked: unlocked,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, payload)
}

// GetHead answers HEAD requests from the body-free projection.
func (h *PublicHandler) GetHead(w http.ResponseWriter, r *http.Request) {
	postType, locale, slug := lookupTriple(r)
	head, err := h.service.GetPublicHead(r.Context(), postType, locale, slug)
	if err != nil {
		status, _, _, _ := mapError(err)
		w.WriteHeader(status)
		return
	}
	w.Header().Set("ETag", head.ETag)
	w.WriteHeader(http.StatusOK)
}

// UnlockRequest is the JSON body for the password-unlock flow.
type UnlockRequest struct {
	Password string `json:"password"`
}

// UnlockResponse carries a freshly minted unlock token.
type UnlockResponse struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expires_in"`
}

// Unlock verifies a content password and mints a time-limited unlock token
// bound to the item and its current password version.
func (h *PublicHandler) Unlock(w http.ResponseWriter, r *http.Request) {
	if h.signer == nil {
		writeError(w, r, &inkwell.ValidationError{Message: "unlock is not enabled"})
		return
	}

	var req UnlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, &inkwell.ValidationError{Message: "invalid request body"})
		return
	}

	postType, locale, slug := lookupTriple(r)
	head, err := h.service.VerifyPublicPassword(r.Context(), postType, locale, slug, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}

	token, err := h.signer.Sign(unlock.Expectation{
		UID:             head.UID,
		PostType:        postType,
		Locale:          inkwell.NormalizeLocale(locale),
		Slug:            inkwell.CanonicalizeSlug(slug),
		PasswordVersion: head.PasswordVersion,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeData(w, r, http.StatusOK, UnlockResponse{
		Token:     token,
		ExpiresIn: int(h.signer.TTL().Seconds()),
	})
}
