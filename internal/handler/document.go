package handler

import (
	"errors"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/doclane/doclane/internal/ctxkeys"
	"github.com/doclane/doclane/internal/model"
	"github.com/doclane/doclane/internal/repository"
	"github.com/doclane/doclane/internal/service"
)

// maxUploadMemory bounds the in-memory part of multipart parsing;
// larger files spill to temp files.
const maxUploadMemory = 32 << 20

type DocumentHandler struct {
	documentService *service.DocumentService
	uploadService   *service.UploadService
	chunkRepository repository.ChunkRepository
}

func NewDocumentHandler(
	documentService *service.DocumentService,
	uploadService *service.UploadService,
	chunkRepository repository.ChunkRepository,
) *DocumentHandler {
	return &DocumentHandler{
		documentService: documentService,
		uploadService:   uploadService,
		chunkRepository: chunkRepository,
	}
}

type createDocumentRequest struct {
	Title     string     `json:"title"`
	Summary   string     `json:"summary"`
	Tags      []string   `json:"tags"`
	IsPublic  bool       `json:"is_public"`
	StartDate *time.Time `json:"start_date"`
	EndDate   *time.Time `json:"end_date"`
}

func (h *DocumentHandler) Create(w http.ResponseWriter, r *http.Request) {
	user := ctxkeys.User(r.Context())

	var req createDocumentRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Title == "" {
		respondError(w, http.StatusBadRequest, "title is required")
		return
	}

	doc, err := h.documentService.Create(user.ID, service.CreateDocumentInput{
		Title:     req.Title,
		Summary:   req.Summary,
		Tags:      req.Tags,
		IsPublic:  req.IsPublic,
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create document")
		return
	}
	respondJSON(w, http.StatusCreated, doc)
}

// Upload accepts a multipart batch of files for a document. The
// "deferred" form value selects async handling (default true).
func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	user := ctxkeys.User(r.Context())
	documentID := r.PathValue("id")

	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		respondError(w, http.StatusBadRequest, "invalid multipart request")
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		respondError(w, http.StatusBadRequest, "no files provided")
		return
	}

	deferred := r.FormValue("deferred") != "false"

	uploads, closers, err := openUploads(headers)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer func() {
		for _, c := range closers {
			_ = c.Close()
		}
	}()

	results, err := h.uploadService.AcceptBatch(r.Context(), uploads, user.ID, documentID, deferred)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrExtensionNotAllowed):
			respondError(w, http.StatusUnprocessableEntity, err.Error())
		case errors.Is(err, service.ErrDocumentRequired):
			respondError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, service.ErrEmptyBatch):
			respondError(w, http.StatusBadRequest, err.Error())
		default:
			respondError(w, http.StatusInternalServerError, "upload failed")
		}
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]any{"files": results})
}

func openUploads(headers []*multipart.FileHeader) ([]service.FileUpload, []multipart.File, error) {
	uploads := make([]service.FileUpload, 0, len(headers))
	closers := make([]multipart.File, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			for _, c := range closers {
				_ = c.Close()
			}
			return nil, nil, errors.New("failed to read uploaded file " + fh.Filename)
		}
		closers = append(closers, f)
		uploads = append(uploads, service.FileUpload{
			Filename:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Size:        fh.Size,
			Body:        f,
		})
	}
	return uploads, closers, nil
}

func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	user := ctxkeys.User(r.Context())

	if q := r.URL.Query().Get("q"); q != "" {
		docs, err := h.documentService.Search(user.ID, q)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "search failed")
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{"documents": docs})
		return
	}

	docs, err := h.documentService.ByUser(user.ID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list documents")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	doc, ok := h.authorizedDocument(w, r)
	if !ok {
		return
	}
	// Reads through this endpoint count as views.
	if viewed, err := h.documentService.View(doc.ID); err == nil {
		doc = viewed
	}
	respondJSON(w, http.StatusOK, doc)
}

// Status reports the document with per-file processing state, for
// owner/admin polling while deferred uploads run.
func (h *DocumentHandler) Status(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.authorizedDocument(w, r); !ok {
		return
	}
	view, err := h.documentService.Status(r.PathValue("id"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load status")
		return
	}
	respondJSON(w, http.StatusOK, view)
}

// Chunks lists a document's chunks ordered by (file_id, chunk_index).
func (h *DocumentHandler) Chunks(w http.ResponseWriter, r *http.Request) {
	doc, ok := h.authorizedDocument(w, r)
	if !ok {
		return
	}
	chunks, err := h.chunkRepository.ByDocument(doc.ID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list chunks")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"chunks": chunks, "count": len(chunks)})
}

func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.authorizedDocument(w, r); !ok {
		return
	}
	if err := h.documentService.Delete(r.Context(), r.PathValue("id")); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to delete document")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *DocumentHandler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	if !h.authorizeFile(w, r) {
		return
	}
	if err := h.documentService.DeleteFile(r.Context(), r.PathValue("fileId")); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to delete file")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// Reupload replaces the bytes of a failed file with a fresh upload.
func (h *DocumentHandler) Reupload(w http.ResponseWriter, r *http.Request) {
	if !h.authorizeFile(w, r) {
		return
	}

	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		respondError(w, http.StatusBadRequest, "invalid multipart request")
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	f, fh, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer f.Close()

	res, err := h.documentService.Reupload(r.Context(), r.PathValue("fileId"), service.FileUpload{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Size:        fh.Size,
		Body:        f,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotReuploadable):
			respondError(w, http.StatusConflict, err.Error())
		case errors.Is(err, repository.ErrFileNotFound):
			respondError(w, http.StatusNotFound, err.Error())
		default:
			respondError(w, http.StatusInternalServerError, "reupload failed")
		}
		return
	}
	respondJSON(w, http.StatusAccepted, res)
}

// Download returns a presigned URL for a completed file.
func (h *DocumentHandler) Download(w http.ResponseWriter, r *http.Request) {
	if !h.authorizeFile(w, r) {
		return
	}
	url, err := h.documentService.DownloadURL(r.Context(), r.PathValue("fileId"))
	if err != nil {
		if errors.Is(err, repository.ErrFileNotFound) {
			respondError(w, http.StatusNotFound, err.Error())
			return
		}
		respondError(w, http.StatusConflict, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"url": url})
}

// authorizedDocument loads the path's document and checks the caller
// may act on it: the owner, an admin, or anyone for approved public
// documents on read.
func (h *DocumentHandler) authorizedDocument(w http.ResponseWriter, r *http.Request) (*model.Document, bool) {
	user := ctxkeys.User(r.Context())
	doc, err := h.documentService.ByID(r.PathValue("id"))
	if err != nil {
		if errors.Is(err, repository.ErrDocumentNotFound) {
			respondError(w, http.StatusNotFound, "document not found")
			return nil, false
		}
		respondError(w, http.StatusInternalServerError, "failed to load document")
		return nil, false
	}

	if doc.UserID == user.ID || user.IsAdmin() {
		return doc, true
	}
	if r.Method == http.MethodGet && doc.IsPublic && doc.Status == model.DocumentStatusApproved {
		return doc, true
	}
	respondError(w, http.StatusForbidden, service.ErrNotOwner.Error())
	return nil, false
}

func (h *DocumentHandler) authorizeFile(w http.ResponseWriter, r *http.Request) bool {
	user := ctxkeys.User(r.Context())
	view, err := h.documentService.Status(r.PathValue("id"))
	if err != nil {
		if errors.Is(err, repository.ErrDocumentNotFound) {
			respondError(w, http.StatusNotFound, "document not found")
			return false
		}
		respondError(w, http.StatusInternalServerError, "failed to load document")
		return false
	}

	if view.Document.UserID != user.ID && !user.IsAdmin() {
		respondError(w, http.StatusForbidden, service.ErrNotOwner.Error())
		return false
	}

	fileID := r.PathValue("fileId")
	for _, f := range view.Files {
		if f.ID == fileID {
			return true
		}
	}
	respondError(w, http.StatusNotFound, "file not found in document")
	return false
}
