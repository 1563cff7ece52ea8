package handler

import (
	"errors"
	"net/http"

	"github.com/doclane/doclane/internal/ctxkeys"
	"github.com/doclane/doclane/internal/repository"
	"github.com/doclane/doclane/internal/service"
)

type AdminHandler struct {
	documentService *service.DocumentService
	authService     *service.AuthService
}

func NewAdminHandler(documentService *service.DocumentService, authService *service.AuthService) *AdminHandler {
	return &AdminHandler{documentService: documentService, authService: authService}
}

func (h *AdminHandler) PendingDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := h.documentService.PendingApproval()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list pending documents")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

type decisionRequest struct {
	DocumentIDs []string `json:"document_ids"`
	Reason      string   `json:"reason"`
}

// Approve handles a batch approval; per-member outcomes are reported,
// the batch never fails atomically.
func (h *AdminHandler) Approve(w http.ResponseWriter, r *http.Request) {
	admin := ctxkeys.User(r.Context())

	var req decisionRequest
	if err := decodeJSON(r, &req); err != nil || len(req.DocumentIDs) == 0 {
		respondError(w, http.StatusBadRequest, "document_ids is required")
		return
	}
	respondJSON(w, http.StatusOK, h.documentService.Approve(admin.ID, req.DocumentIDs))
}

func (h *AdminHandler) Reject(w http.ResponseWriter, r *http.Request) {
	admin := ctxkeys.User(r.Context())

	var req decisionRequest
	if err := decodeJSON(r, &req); err != nil || len(req.DocumentIDs) == 0 {
		respondError(w, http.StatusBadRequest, "document_ids is required")
		return
	}
	respondJSON(w, http.StatusOK, h.documentService.Reject(admin.ID, req.DocumentIDs, req.Reason))
}

// Vectorize enqueues a chunking/vectorization pass for a document.
// ?summary=true restricts it to the summary chunks.
func (h *AdminHandler) Vectorize(w http.ResponseWriter, r *http.Request) {
	summaryOnly := r.URL.Query().Get("summary") == "true"

	taskID, err := h.documentService.RequestVectorize(r.Context(), r.PathValue("id"), summaryOnly)
	if err != nil {
		if errors.Is(err, repository.ErrDocumentNotFound) {
			respondError(w, http.StatusNotFound, "document not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to enqueue vectorization")
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"task_id": taskID})
}

// PendingUsers lists accounts awaiting approval.
func (h *AdminHandler) PendingUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.authService.PendingUsers()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list pending users")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"users": users})
}

// ApproveUser grants an account access; the user can log in afterwards.
func (h *AdminHandler) ApproveUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.authService.ApproveUser(r.PathValue("id"))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			respondError(w, http.StatusNotFound, "user not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to approve user")
		return
	}
	user.PasswordHash = ""
	respondJSON(w, http.StatusOK, user)
}

func (h *AdminHandler) ActivateUser(w http.ResponseWriter, r *http.Request) {
	h.setUserActive(w, r, true)
}

func (h *AdminHandler) DeactivateUser(w http.ResponseWriter, r *http.Request) {
	h.setUserActive(w, r, false)
}

func (h *AdminHandler) setUserActive(w http.ResponseWriter, r *http.Request, active bool) {
	user, err := h.authService.SetUserActive(r.PathValue("id"), active)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			respondError(w, http.StatusNotFound, "user not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to update user")
		return
	}
	user.PasswordHash = ""
	respondJSON(w, http.StatusOK, user)
}

// DeleteVectors enqueues removal of a document's chunks and vectors.
func (h *AdminHandler) DeleteVectors(w http.ResponseWriter, r *http.Request) {
	taskID, err := h.documentService.RequestVectorDelete(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, repository.ErrDocumentNotFound) {
			respondError(w, http.StatusNotFound, "document not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to enqueue vector deletion")
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"task_id": taskID})
}
