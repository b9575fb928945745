package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"catalog-staging/application/session"
	"catalog-staging/pkg/common"
	"catalog-staging/pkg/errors"
)

// HierarchyHandler serves the working-copy hierarchy
type HierarchyHandler struct {
	manager *session.Manager
	logger  *zap.Logger
}

// NewHierarchyHandler creates a hierarchy handler
func NewHierarchyHandler(manager *session.Manager, logger *zap.Logger) *HierarchyHandler {
	return &HierarchyHandler{manager: manager, logger: logger}
}

// GetHierarchy returns the session's working copy, including staged
// additions and any pending field edits already applied to it
func (h *HierarchyHandler) GetHierarchy(w http.ResponseWriter, r *http.Request) {
	userID, ok := common.GetUserID(r.Context())
	if !ok {
		common.RespondError(w, http.StatusUnauthorized,
			common.StandardErrorCodes.Unauthorized, "Missing user context")
		return
	}

	ws, err := h.manager.Get(r.Context(), userID)
	if err != nil {
		h.respondError(w, err)
		return
	}

	common.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"hierarchy":      ws.Tree.Snapshot(),
		"pendingChanges": ws.Store.TotalChangeCount(),
	})
}

// Refresh rebuilds the working copy from the connector. Persisted
// pending changes are replayed onto the fresh tree.
func (h *HierarchyHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	userID, ok := common.GetUserID(r.Context())
	if !ok {
		common.RespondError(w, http.StatusUnauthorized,
			common.StandardErrorCodes.Unauthorized, "Missing user context")
		return
	}

	ws, err := h.manager.Refresh(r.Context(), userID)
	if err != nil {
		h.respondError(w, err)
		return
	}

	common.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"hierarchy":      ws.Tree.Snapshot(),
		"pendingChanges": ws.Store.TotalChangeCount(),
	})
}

func (h *HierarchyHandler) respondError(w http.ResponseWriter, err error) {
	if appErr := errors.GetAppError(err); appErr != nil {
		h.logger.Debug("request failed", zap.Error(err))
		common.RespondError(w, appErr.HTTPStatus, string(appErr.Type), appErr.Message)
		return
	}
	h.logger.Error("unexpected error", zap.Error(err))
	common.RespondError(w, http.StatusInternalServerError,
		common.StandardErrorCodes.InternalError, "Internal server error")
}
