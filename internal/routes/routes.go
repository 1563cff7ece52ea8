package routes

import (
	"net/http"

	"github.com/doclane/doclane/internal/app"
	"github.com/doclane/doclane/internal/handler"
	"github.com/doclane/doclane/internal/middleware"
)

func SetupRoutes(app *app.App) http.Handler {
	// Handlers
	auth := handler.NewAuthHandler(app.AuthService)
	document := handler.NewDocumentHandler(app.DocumentService, app.UploadService, app.ChunkRepository)
	taskH := handler.NewTaskHandler(app.Queue)
	admin := handler.NewAdminHandler(app.DocumentService, app.AuthService)

	mux := http.NewServeMux()

	// Health
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// Auth (rate limited)
	rateLimiter := middleware.RateLimitAuth()
	mux.HandleFunc("POST /api/auth/register", rateLimiter(auth.Register))
	mux.HandleFunc("POST /api/auth/login", rateLimiter(auth.Login))

	// Documents
	mux.HandleFunc("POST /api/documents", middleware.RequireAuth(document.Create))
	mux.HandleFunc("GET /api/documents", middleware.RequireAuth(document.List))
	mux.HandleFunc("GET /api/documents/{id}", middleware.RequireAuth(document.Get))
	mux.HandleFunc("DELETE /api/documents/{id}", middleware.RequireAuth(document.Delete))
	mux.HandleFunc("GET /api/documents/{id}/status", middleware.RequireAuth(document.Status))
	mux.HandleFunc("GET /api/documents/{id}/chunks", middleware.RequireAuth(document.Chunks))

	// Files
	mux.HandleFunc("POST /api/documents/{id}/files", middleware.RequireAuth(document.Upload))
	mux.HandleFunc("DELETE /api/documents/{id}/files/{fileId}", middleware.RequireAuth(document.DeleteFile))
	mux.HandleFunc("POST /api/documents/{id}/files/{fileId}/reupload", middleware.RequireAuth(document.Reupload))
	mux.HandleFunc("GET /api/documents/{id}/files/{fileId}/download", middleware.RequireAuth(document.Download))

	// Tasks
	mux.HandleFunc("GET /api/tasks/{id}", middleware.RequireAuth(taskH.Status))
	mux.HandleFunc("POST /api/tasks/{id}/revoke", middleware.RequireAuth(taskH.Revoke))

	// Admin
	mux.HandleFunc("GET /api/admin/documents/pending", middleware.RequireAdmin(admin.PendingDocuments))
	mux.HandleFunc("POST /api/admin/documents/approve", middleware.RequireAdmin(admin.Approve))
	mux.HandleFunc("POST /api/admin/documents/reject", middleware.RequireAdmin(admin.Reject))
	mux.HandleFunc("POST /api/admin/documents/{id}/vectorize", middleware.RequireAdmin(admin.Vectorize))
	mux.HandleFunc("DELETE /api/admin/documents/{id}/vectors", middleware.RequireAdmin(admin.DeleteVectors))
	mux.HandleFunc("GET /api/admin/users/pending", middleware.RequireAdmin(admin.PendingUsers))
	mux.HandleFunc("POST /api/admin/users/{id}/approve", middleware.RequireAdmin(admin.ApproveUser))
	mux.HandleFunc("POST /api/admin/users/{id}/activate", middleware.RequireAdmin(admin.ActivateUser))
	mux.HandleFunc("POST /api/admin/users/{id}/deactivate", middleware.RequireAdmin(admin.DeactivateUser))

	return middleware.Chain(mux,
		middleware.RequestLogging,
		middleware.Auth(app.AuthService, app.UserRepository),
	)
}
