package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"catalog-staging/application/session"
	"catalog-staging/domain/staging"
	"catalog-staging/pkg/common"
	"catalog-staging/pkg/errors"
	"catalog-staging/pkg/utils"
)

const maxBodyBytes = 1 << 20

// ChangesHandler serves the staging endpoints
type ChangesHandler struct {
	manager *session.Manager
	logger  *zap.Logger
}

// NewChangesHandler creates a changes handler
func NewChangesHandler(manager *session.Manager, logger *zap.Logger) *ChangesHandler {
	return &ChangesHandler{manager: manager, logger: logger}
}

// workspace resolves the caller's staging workspace from the
// authenticated user id
func (h *ChangesHandler) workspace(w http.ResponseWriter, r *http.Request) *session.Workspace {
	userID, ok := common.GetUserID(r.Context())
	if !ok {
		common.RespondError(w, http.StatusUnauthorized,
			common.StandardErrorCodes.Unauthorized, "Missing user context")
		return nil
	}

	ws, err := h.manager.Get(r.Context(), userID)
	if err != nil {
		h.respondError(w, err)
		return nil
	}
	return ws
}

type recordFieldChangeRequest struct {
	NodeID    string      `json:"nodeId" validate:"required"`
	FieldName string      `json:"fieldName" validate:"required"`
	OldValue  interface{} `json:"oldValue"`
	NewValue  interface{} `json:"newValue"`
}

// RecordFieldChange stages a field edit
func (h *ChangesHandler) RecordFieldChange(w http.ResponseWriter, r *http.Request) {
	ws := h.workspace(w, r)
	if ws == nil {
		return
	}

	var req recordFieldChangeRequest
	if err := common.ParseJSONBody(r, &req, maxBodyBytes); err != nil {
		common.RespondError(w, http.StatusBadRequest,
			common.StandardErrorCodes.BadRequest, "Invalid request body")
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		common.RespondError(w, http.StatusBadRequest,
			common.StandardErrorCodes.ValidationError, err.Error())
		return
	}

	ws.Store.RecordFieldChange(r.Context(), req.NodeID, req.FieldName, req.OldValue, req.NewValue)
	h.respondSummary(w, ws)
}

type recordAdditionRequest struct {
	TempID      string                 `json:"tempId"`
	Type        string                 `json:"type" validate:"required,oneof=catalog category product"`
	Name        string                 `json:"name" validate:"required"`
	Description string                 `json:"description"`
	IsActive    *bool                  `json:"isActive"`
	ParentID    string                 `json:"parentId"`
	Fields      map[string]interface{} `json:"fields"`
}

// RecordAddition stages a new node
func (h *ChangesHandler) RecordAddition(w http.ResponseWriter, r *http.Request) {
	ws := h.workspace(w, r)
	if ws == nil {
		return
	}

	var req recordAdditionRequest
	if err := common.ParseJSONBody(r, &req, maxBodyBytes); err != nil {
		common.RespondError(w, http.StatusBadRequest,
			common.StandardErrorCodes.BadRequest, "Invalid request body")
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		common.RespondError(w, http.StatusBadRequest,
			common.StandardErrorCodes.ValidationError, err.Error())
		return
	}

	tempID, err := ws.Store.RecordAddition(r.Context(), staging.NodeData{
		TempID:      req.TempID,
		Type:        req.Type,
		Name:        req.Name,
		Description: req.Description,
		IsActive:    req.IsActive,
		ParentID:    req.ParentID,
		Fields:      req.Fields,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}

	common.RespondJSON(w, http.StatusCreated, map[string]interface{}{
		"tempId":       tempID,
		"totalChanges": ws.Store.TotalChangeCount(),
	})
}

type recordDeletionRequest struct {
	NodeID         string `json:"nodeId" validate:"required"`
	DeleteChildren bool   `json:"deleteChildren"`
	NewParentID    string `json:"newParentId"`
}

// RecordDeletion stages a node deletion
func (h *ChangesHandler) RecordDeletion(w http.ResponseWriter, r *http.Request) {
	ws := h.workspace(w, r)
	if ws == nil {
		return
	}

	var req recordDeletionRequest
	if err := common.ParseJSONBody(r, &req, maxBodyBytes); err != nil {
		common.RespondError(w, http.StatusBadRequest,
			common.StandardErrorCodes.BadRequest, "Invalid request body")
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		common.RespondError(w, http.StatusBadRequest,
			common.StandardErrorCodes.ValidationError, err.Error())
		return
	}

	err := ws.Store.RecordDeletion(r.Context(), staging.DeletionInfo{
		NodeID:         req.NodeID,
		DeleteChildren: req.DeleteChildren,
		NewParentID:    req.NewParentID,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondSummary(w, ws)
}

type nodeSummary struct {
	NodeID      string `json:"nodeId"`
	NodeName    string `json:"nodeName"`
	ChangeCount int    `json:"changeCount"`
}

// GetChanges returns the pending change summary
func (h *ChangesHandler) GetChanges(w http.ResponseWriter, r *http.Request) {
	ws := h.workspace(w, r)
	if ws == nil {
		return
	}

	changes := ws.Store.AllChanges()

	// per-node rollup with display names resolved from the tree
	var nodes []nodeSummary
	seen := make(map[string]int)
	for _, ch := range changes {
		if idx, ok := seen[ch.NodeID]; ok {
			nodes[idx].ChangeCount++
			continue
		}
		name := ch.NodeID
		if node := ws.Tree.Node(ch.NodeID); node != nil {
			name = node.Name()
		}
		seen[ch.NodeID] = len(nodes)
		nodes = append(nodes, nodeSummary{NodeID: ch.NodeID, NodeName: name, ChangeCount: 1})
	}

	common.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"totalChanges":  ws.Store.TotalChangeCount(),
		"modifiedNodes": ws.Store.ModifiedNodeCount(),
		"changes":       changes,
		"nodes":         nodes,
		"additions":     ws.Store.PendingAdditions(),
		"deletions":     ws.Store.PendingDeletions(),
		"canUndo":       ws.Store.CanUndo(),
		"canRedo":       ws.Store.CanRedo(),
	})
}

// DiscardField drops one staged field edit
func (h *ChangesHandler) DiscardField(w http.ResponseWriter, r *http.Request) {
	ws := h.workspace(w, r)
	if ws == nil {
		return
	}

	nodeID := chi.URLParam(r, "nodeID")
	fieldName := chi.URLParam(r, "fieldName")
	ws.Store.DiscardField(r.Context(), nodeID, fieldName)
	h.respondSummary(w, ws)
}

// DiscardNode drops all staged records for a node
func (h *ChangesHandler) DiscardNode(w http.ResponseWriter, r *http.Request) {
	ws := h.workspace(w, r)
	if ws == nil {
		return
	}

	ws.Store.DiscardNode(r.Context(), chi.URLParam(r, "nodeID"))
	h.respondSummary(w, ws)
}

// DiscardAll drops every staged record
func (h *ChangesHandler) DiscardAll(w http.ResponseWriter, r *http.Request) {
	ws := h.workspace(w, r)
	if ws == nil {
		return
	}

	ws.Store.DiscardAll(r.Context())
	h.respondSummary(w, ws)
}

// UndoAddition removes a staged addition
func (h *ChangesHandler) UndoAddition(w http.ResponseWriter, r *http.Request) {
	ws := h.workspace(w, r)
	if ws == nil {
		return
	}

	ws.Store.UndoAddition(r.Context(), chi.URLParam(r, "nodeID"))
	h.respondSummary(w, ws)
}

// UndoDeletion removes a staged deletion
func (h *ChangesHandler) UndoDeletion(w http.ResponseWriter, r *http.Request) {
	ws := h.workspace(w, r)
	if ws == nil {
		return
	}

	ws.Store.UndoDeletion(r.Context(), chi.URLParam(r, "nodeID"))
	h.respondSummary(w, ws)
}

// Undo steps the history back one entry
func (h *ChangesHandler) Undo(w http.ResponseWriter, r *http.Request) {
	ws := h.workspace(w, r)
	if ws == nil {
		return
	}

	applied := ws.Store.Undo(r.Context())
	common.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"applied":      applied,
		"totalChanges": ws.Store.TotalChangeCount(),
		"canUndo":      ws.Store.CanUndo(),
		"canRedo":      ws.Store.CanRedo(),
	})
}

// Redo re-applies the next history entry
func (h *ChangesHandler) Redo(w http.ResponseWriter, r *http.Request) {
	ws := h.workspace(w, r)
	if ws == nil {
		return
	}

	applied := ws.Store.Redo(r.Context())
	common.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"applied":      applied,
		"totalChanges": ws.Store.TotalChangeCount(),
		"canUndo":      ws.Store.CanUndo(),
		"canRedo":      ws.Store.CanRedo(),
	})
}

// Validate dry-runs the pending payload against the connector
func (h *ChangesHandler) Validate(w http.ResponseWriter, r *http.Request) {
	ws := h.workspace(w, r)
	if ws == nil {
		return
	}

	result := ws.Coordinator.Validate(r.Context())
	common.RespondJSON(w, http.StatusOK, result)
}

type commitRequest struct {
	ConfirmWarnings bool `json:"confirmWarnings"`
}

// Commit submits the pending changes. Validation warnings are
// returned with 409 until the caller re-submits with confirmWarnings.
func (h *ChangesHandler) Commit(w http.ResponseWriter, r *http.Request) {
	ws := h.workspace(w, r)
	if ws == nil {
		return
	}

	var req commitRequest
	if r.ContentLength > 0 {
		if err := common.ParseJSONBody(r, &req, maxBodyBytes); err != nil {
			common.RespondError(w, http.StatusBadRequest,
				common.StandardErrorCodes.BadRequest, "Invalid request body")
			return
		}
	}

	var pendingWarnings []string
	result, err := ws.Coordinator.Commit(r.Context(), func(warnings []string) bool {
		if req.ConfirmWarnings {
			return true
		}
		pendingWarnings = warnings
		return false
	})
	if err != nil {
		h.respondError(w, err)
		return
	}

	if len(pendingWarnings) > 0 {
		common.RespondErrorWithDetails(w, http.StatusConflict,
			common.StandardErrorCodes.Conflict,
			"Validation produced warnings; re-submit with confirmWarnings to proceed",
			map[string]interface{}{"warnings": pendingWarnings})
		return
	}

	status := http.StatusOK
	if !result.Success {
		status = http.StatusUnprocessableEntity
	}
	common.RespondJSON(w, status, result)
}

// History returns committed batches for the caller's session
func (h *ChangesHandler) History(w http.ResponseWriter, r *http.Request) {
	ws := h.workspace(w, r)
	if ws == nil {
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	batches, err := h.manager.SessionHistory(r.Context(), ws.SessionID, limit)
	if err != nil {
		h.respondError(w, err)
		return
	}

	common.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"history": batches,
		"total":   len(batches),
	})
}

func (h *ChangesHandler) respondSummary(w http.ResponseWriter, ws *session.Workspace) {
	common.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"totalChanges":  ws.Store.TotalChangeCount(),
		"modifiedNodes": ws.Store.ModifiedNodeCount(),
		"canUndo":       ws.Store.CanUndo(),
		"canRedo":       ws.Store.CanRedo(),
	})
}

func (h *ChangesHandler) respondError(w http.ResponseWriter, err error) {
	if appErr := errors.GetAppError(err); appErr != nil {
		h.logger.Debug("request failed", zap.Error(err))
		common.RespondError(w, appErr.HTTPStatus, string(appErr.Type), appErr.Message)
		return
	}
	h.logger.Error("unexpected error", zap.Error(err))
	common.RespondError(w, http.StatusInternalServerError,
		common.StandardErrorCodes.InternalError, "Internal server error")
}
