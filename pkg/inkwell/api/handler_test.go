package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkwell-cms/inkwell/pkg/inkwell"
	"github.com/inkwell-cms/inkwell/pkg/inkwell/api"
	"github.com/inkwell-cms/inkwell/pkg/inkwell/authz"
	"github.com/inkwell-cms/inkwell/pkg/inkwell/repo/memory"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Code    string          `json:"code"`
	Details json.RawMessage `json:"details"`
}

func setupAdmin(t *testing.T) (inkwell.Service, http.Handler) {
	t.Helper()
	svc, err := inkwell.New(inkwell.WithConnector(memory.New()))
	require.NoError(t, err)
	return svc, api.NewAdminHandler(svc).Routes()
}

// asActor injects a resolved actor the way the gate middleware would.
func asActor(r *http.Request, uid string) *http.Request {
	return r.WithContext(authz.WithActor(r.Context(), &authz.Actor{UID: uid}))
}

func doJSON(t *testing.T, handler http.Handler, method, target string, body interface{}, headers map[string]string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := asActor(httptest.NewRequest(method, target, &buf), "actor-1")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func createViaAPI(t *testing.T, handler http.Handler, slug string) inkwell.ContentHead {
	t.Helper()
	rec, env := doJSON(t, handler, http.MethodPost, "/", map[string]interface{}{
		"title":        "API Post",
		"content":      "body",
		"content_type": "text/plain",
		"slug":         slug,
		"locale":       "en",
		"post_type":    "post",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var head inkwell.ContentHead
	require.NoError(t, json.Unmarshal(env.Data, &head))
	return head
}

func TestCreateEndpoint(t *testing.T) {
	_, handler := setupAdmin(t)

	t.Run("created with etag header", func(t *testing.T) {
		rec, env := doJSON(t, handler, http.MethodPost, "/", map[string]interface{}{
			"title": "Hello", "content_type": "text/plain",
			"slug": "hello", "locale": "en", "post_type": "post",
		}, nil)
		require.Equal(t, http.StatusCreated, rec.Code)
		assert.True(t, env.Success)

		var head inkwell.ContentHead
		require.NoError(t, json.Unmarshal(env.Data, &head))
		assert.Equal(t, head.ETag, rec.Header().Get("ETag"))
		assert.Equal(t, "actor-1", head.OwnerUserUID)
	})

	t.Run("validation error is 400 with fields", func(t *testing.T) {
		rec, env := doJSON(t, handler, http.MethodPost, "/", map[string]interface{}{
			"title": "Bad", "content_type": "text/plain",
			"slug": "admin", "locale": "en", "post_type": "post",
		}, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.False(t, env.Success)
		assert.Equal(t, "VALIDATION", env.Code)
		assert.Contains(t, string(env.Details), "slug")
	})

	t.Run("malformed body is 400", func(t *testing.T) {
		req := asActor(httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString("{broken")), "actor-1")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestGetAndListEndpoints(t *testing.T) {
	_, handler := setupAdmin(t)
	head := createViaAPI(t, handler, "gettable")

	t.Run("get by uid", func(t *testing.T) {
		rec, env := doJSON(t, handler, http.MethodGet, "/"+head.UID, nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, head.ETag, rec.Header().Get("ETag"))
		assert.True(t, env.Success)
	})

	t.Run("missing uid is 404", func(t *testing.T) {
		rec, env := doJSON(t, handler, http.MethodGet, "/no-such-uid", nil, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "NOT_FOUND", env.Code)
	})

	t.Run("list filters by status", func(t *testing.T) {
		rec, env := doJSON(t, handler, http.MethodGet, "/?status=draft", nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var heads []inkwell.ContentHead
		require.NoError(t, json.Unmarshal(env.Data, &heads))
		assert.NotEmpty(t, heads)
	})
}

func TestUpdateEndpoint(t *testing.T) {
	_, handler := setupAdmin(t)
	head := createViaAPI(t, handler, "updatable")

	t.Run("update with matching etag", func(t *testing.T) {
		rec, env := doJSON(t, handler, http.MethodPut, "/"+head.UID,
			map[string]interface{}{"title": "Renamed"},
			map[string]string{"If-Match": head.ETag})
		require.Equal(t, http.StatusOK, rec.Code)

		var updated inkwell.ContentHead
		require.NoError(t, json.Unmarshal(env.Data, &updated))
		assert.Equal(t, "Renamed", updated.Title)
		assert.Equal(t, 2, updated.VersionNumber)
	})

	t.Run("stale etag is 409 with both tags", func(t *testing.T) {
		rec, env := doJSON(t, handler, http.MethodPut, "/"+head.UID,
			map[string]interface{}{"title": "Too Late"},
			map[string]string{"If-Match": head.ETag})
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "CONFLICT", env.Code)
		assert.Contains(t, string(env.Details), "expected_etag")
		assert.Contains(t, string(env.Details), "actual_etag")
	})
}

func TestLifecycleEndpoints(t *testing.T) {
	_, handler := setupAdmin(t)
	head := createViaAPI(t, handler, "lifecycle")

	rec, env := doJSON(t, handler, http.MethodPost, "/"+head.UID+"/publish", nil,
		map[string]string{"If-Match": head.ETag})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var published inkwell.ContentHead
	require.NoError(t, json.Unmarshal(env.Data, &published))
	assert.Equal(t, inkwell.StatusPublished, published.Status)

	t.Run("trash works without if-match", func(t *testing.T) {
		rec, env := doJSON(t, handler, http.MethodPost, "/"+head.UID+"/trash", nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var trashed inkwell.ContentHead
		require.NoError(t, json.Unmarshal(env.Data, &trashed))
		assert.Equal(t, inkwell.StatusTrash, trashed.Status)
	})

	t.Run("restore then delete", func(t *testing.T) {
		rec, _ := doJSON(t, handler, http.MethodPost, "/"+head.UID+"/restore", nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		rec, env := doJSON(t, handler, http.MethodDelete, "/"+head.UID, nil, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "delete requires trash first")
		assert.Equal(t, "VALIDATION", env.Code)

		rec, _ = doJSON(t, handler, http.MethodPost, "/"+head.UID+"/trash", nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		rec, _ = doJSON(t, handler, http.MethodDelete, "/"+head.UID, nil, nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestEmptyTrashEndpoint(t *testing.T) {
	_, handler := setupAdmin(t)
	for i := 0; i < 2; i++ {
		head := createViaAPI(t, handler, fmt.Sprintf("bulk-%d", i))
		rec, _ := doJSON(t, handler, http.MethodPost, "/"+head.UID+"/trash", nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec, env := doJSON(t, handler, http.MethodPost, "/trash/empty",
		map[string]int{"limit": 10}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"deleted":2}`, string(env.Data))
}

func TestLockEndpoints(t *testing.T) {
	svc, handler := setupAdmin(t)
	head := createViaAPI(t, handler, "lock-api")

	rec, _ := doJSON(t, handler, http.MethodPost, "/"+head.UID+"/lock", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	t.Run("other actor sees 423 with holder details", func(t *testing.T) {
		req := asActor(httptest.NewRequest(http.MethodPost, "/"+head.UID+"/lock", nil), "actor-2")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusLocked, rec.Code)

		var env envelope
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
		assert.Equal(t, "LOCKED", env.Code)
		assert.Contains(t, string(env.Details), "locked_by")
	})

	t.Run("force unlock", func(t *testing.T) {
		req := asActor(httptest.NewRequest(http.MethodDelete, "/"+head.UID+"/lock?force=true", nil), "actor-2")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)

		reloaded, err := svc.GetByUID(req.Context(), head.UID)
		require.NoError(t, err)
		assert.Nil(t, reloaded.LockedBy)
	})
}

func TestHistoryEndpoints(t *testing.T) {
	_, handler := setupAdmin(t)
	head := createViaAPI(t, handler, "history-api")

	rec, env := doJSON(t, handler, http.MethodPut, "/"+head.UID,
		map[string]interface{}{"title": "Second"},
		map[string]string{"If-Match": head.ETag})
	require.Equal(t, http.StatusOK, rec.Code)
	var updated inkwell.ContentHead
	require.NoError(t, json.Unmarshal(env.Data, &updated))

	rec, env = doJSON(t, handler, http.MethodGet, "/"+head.UID+"/history", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var revs []inkwell.HistoryRevision
	require.NoError(t, json.Unmarshal(env.Data, &revs))
	require.Len(t, revs, 1)

	t.Run("restore revision", func(t *testing.T) {
		target := fmt.Sprintf("/%s/history/%d/restore", head.UID, revs[0].ID)
		rec, env := doJSON(t, handler, http.MethodPost, target, nil,
			map[string]string{"If-Match": updated.ETag})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var restored inkwell.ContentHead
		require.NoError(t, json.Unmarshal(env.Data, &restored))
		assert.Equal(t, "API Post", restored.Title)
	})

	t.Run("soft delete then hard delete", func(t *testing.T) {
		rec, _ := doJSON(t, handler, http.MethodPost,
			fmt.Sprintf("/%s/history/%d/delete", head.UID, revs[0].ID), nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		rec, _ = doJSON(t, handler, http.MethodDelete,
			fmt.Sprintf("/%s/history/%d", head.UID, revs[0].ID), nil, nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("non-numeric id is 404", func(t *testing.T) {
		rec, _ := doJSON(t, handler, http.MethodDelete, "/"+head.UID+"/history/abc", nil, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

// setupGatedAdmin mounts the admin routes the way cmd/server does: the whole
// tree behind RequireAuthor, the lifecycle endpoints additionally behind
// RequirePublisher.
func setupGatedAdmin(t *testing.T) http.Handler {
	t.Helper()
	svc, err := inkwell.New(inkwell.WithConnector(memory.New()))
	require.NoError(t, err)

	gate, err := authz.NewGate(
		func(r *http.Request) (*authz.Actor, error) {
			uid := r.Header.Get("X-Test-UID")
			if uid == "" {
				return nil, nil
			}
			return &authz.Actor{UID: uid, Roles: []string{r.Header.Get("X-Test-Role")}}, nil
		},
		func(permission string, roles []string) bool {
			for _, role := range roles {
				if role == "publisher" {
					return true
				}
				if role == "author" && permission == authz.PermissionAuthor {
					return true
				}
			}
			return false
		})
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Use(gate.RequireAuthor())
	r.Mount("/", api.NewAdminHandler(svc).Routes(gate.RequirePublisher()))
	return r
}

func TestPublisherGuardedRoutes(t *testing.T) {
	handler := setupGatedAdmin(t)

	doAs := func(t *testing.T, role, method, target string, body interface{}, headers map[string]string) (*httptest.ResponseRecorder, envelope) {
		t.Helper()
		var buf bytes.Buffer
		if body != nil {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
		req := httptest.NewRequest(method, target, &buf)
		req.Header.Set("X-Test-UID", role+"-1")
		req.Header.Set("X-Test-Role", role)
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		var env envelope
		if rec.Body.Len() > 0 {
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
		}
		return rec, env
	}

	rec, env := doAs(t, "author", http.MethodPost, "/", map[string]interface{}{
		"title": "Gated", "content_type": "text/plain",
		"slug": "gated", "locale": "en", "post_type": "post",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var head inkwell.ContentHead
	require.NoError(t, json.Unmarshal(env.Data, &head))

	t.Run("author cannot publish", func(t *testing.T) {
		rec, _ := doAs(t, "author", http.MethodPost, "/"+head.UID+"/publish", nil,
			map[string]string{"If-Match": head.ETag})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("author cannot delete or empty the trash", func(t *testing.T) {
		rec, _ := doAs(t, "author", http.MethodDelete, "/"+head.UID, nil, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)

		rec, _ = doAs(t, "author", http.MethodPost, "/trash/empty", nil, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("author keeps write access to drafts", func(t *testing.T) {
		rec, _ := doAs(t, "author", http.MethodPut, "/"+head.UID,
			map[string]interface{}{"title": "Still Mine"},
			map[string]string{"If-Match": head.ETag})
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("publisher publishes and trashes", func(t *testing.T) {
		rec, _ := doAs(t, "publisher", http.MethodPost, "/"+head.UID+"/publish", nil,
			map[string]string{"If-Match": "*"})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		rec, _ = doAs(t, "publisher", http.MethodPost, "/"+head.UID+"/trash", nil, nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("anonymous is 401", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestCollaboratorEndpoints(t *testing.T) {
	_, handler := setupAdmin(t)
	head := createViaAPI(t, handler, "collab-api")

	rec, env := doJSON(t, handler, http.MethodPut, "/"+head.UID+"/collaborators",
		map[string]interface{}{
			"collaborators": []map[string]string{
				{"user_uid": "user-a", "role": "editor"},
			},
		}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var set []inkwell.Collaborator
	require.NoError(t, json.Unmarshal(env.Data, &set))
	require.Len(t, set, 1)
	assert.Equal(t, head.UID, set[0].CMSUID)

	rec, env = doJSON(t, handler, http.MethodGet, "/"+head.UID+"/collaborators", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &set))
	assert.Len(t, set, 1)
}
