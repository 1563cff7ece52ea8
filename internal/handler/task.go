package handler

import (
	"errors"
	"net/http"

	"github.com/doclane/doclane/internal/task"
)

type TaskHandler struct {
	queue *task.Queue
}

func NewTaskHandler(queue *task.Queue) *TaskHandler {
	return &TaskHandler{queue: queue}
}

// Status returns a task's externally observable state by id.
func (h *TaskHandler) Status(w http.ResponseWriter, r *http.Request) {
	status, err := h.queue.Status(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, task.ErrTaskNotFound) {
			respondError(w, http.StatusNotFound, "task not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to load task status")
		return
	}
	respondJSON(w, http.StatusOK, status)
}

// Revoke cancels a task before it starts, or best-effort mid-flight.
func (h *TaskHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	status, err := h.queue.Status(r.Context(), id)
	if err != nil {
		if errors.Is(err, task.ErrTaskNotFound) {
			respondError(w, http.StatusNotFound, "task not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to load task status")
		return
	}

	// Finished tasks cannot be revoked. Revoke re-checks this under a
	// watch, so a task finishing right now still gets the conflict.
	if task.IsTerminal(status.Status) {
		respondError(w, http.StatusConflict, "task already finished")
		return
	}

	if err := h.queue.Revoke(r.Context(), id); err != nil {
		if errors.Is(err, task.ErrTaskFinished) {
			respondError(w, http.StatusConflict, "task already finished")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to revoke task")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"task_id": id, "status": task.StatusRevoked})
}
