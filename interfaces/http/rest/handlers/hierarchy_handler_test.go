package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"catalog-staging/application/session"
)

func newHierarchyRouter(t *testing.T) (http.Handler, *session.Manager) {
	t.Helper()

	manager := session.NewManager(session.ManagerConfig{
		Gateway:  &fakeGateway{},
		Sessions: newFakeSessions(),
	})
	hierarchyHandler := NewHierarchyHandler(manager, zap.NewNop())
	changesHandler := NewChangesHandler(manager, zap.NewNop())

	r := chi.NewRouter()
	r.Use(withTestUser("admin-1"))
	r.Get("/hierarchy", hierarchyHandler.GetHierarchy)
	r.Post("/hierarchy/refresh", hierarchyHandler.Refresh)
	r.Post("/changes/addition", changesHandler.RecordAddition)
	return r, manager
}

func TestGetHierarchy(t *testing.T) {
	router, _ := newHierarchyRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/hierarchy", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	data := decodeData(t, rec)
	roots, _ := data["hierarchy"].([]interface{})
	require.Len(t, roots, 1)
	root, _ := roots[0].(map[string]interface{})
	assert.Equal(t, "cat-1", root["id"])
	assert.Equal(t, float64(0), data["pendingChanges"])
}

func TestGetHierarchy_IncludesStagedAdditions(t *testing.T) {
	router, _ := newHierarchyRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/changes/addition", map[string]interface{}{
		"type": "product", "name": "Stove", "parentId": "cat-1",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/hierarchy", nil)
	data := decodeData(t, rec)
	assert.Equal(t, float64(1), data["pendingChanges"])
}

func TestRefresh_ReplacesWorkspace(t *testing.T) {
	router, manager := newHierarchyRouter(t)

	ctx := context.Background()
	first, err := manager.Get(ctx, "admin-1")
	require.NoError(t, err)

	rec := doJSON(t, router, http.MethodPost, "/hierarchy/refresh", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	second, err := manager.Get(ctx, "admin-1")
	require.NoError(t, err)
	assert.NotSame(t, first, second)
}
