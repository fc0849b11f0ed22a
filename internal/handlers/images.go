package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"time"

	"github.com/feedgraph/apiserver/internal/auth"
	"github.com/feedgraph/apiserver/internal/images"
	"github.com/feedgraph/apiserver/internal/storage"
	"github.com/go-chi/chi/v5"
)

const (
	maxUploadBytes     = 10 << 20
	maxMultipartMemory = 8 << 20
	formFieldImage     = "image"
	formFieldOldPath   = "oldPath"
)

// ImageStore saves uploads and opens stored images.
type ImageStore interface {
	Save(ctx context.Context, header *multipart.FileHeader) (string, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// ImageCleaner schedules best-effort removal of a stored image.
type ImageCleaner interface {
	Remove(ctx context.Context, path string)
}

// UploadResponse is returned when an image was stored.
type UploadResponse struct {
	Message  string `json:"message"`
	FilePath string `json:"filePath"`
}

// ImageHandler serves image upload and download.
type ImageHandler struct {
	store   ImageStore
	cleaner ImageCleaner
	logger  *slog.Logger
}

func NewImageHandler(store ImageStore, cleaner ImageCleaner, logger *slog.Logger) *ImageHandler {
	return &ImageHandler{store: store, cleaner: cleaner, logger: logger}
}

// ImageRouter registers PUT /post-image and GET /images/{key}.
func ImageRouter(r chi.Router, store ImageStore, cleaner ImageCleaner, logger *slog.Logger) {
	handler := NewImageHandler(store, cleaner, logger)

	r.Put("/post-image", handler.Upload)
	r.Get(images.Prefix+"{key}", handler.Serve)
}

// Upload stores the "image" file field. Files of other types are ignored
// and reported as missing. A non-empty "oldPath" field names a previous
// image to remove once the new one is stored.
func (h *ImageHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if !auth.VerdictFromContext(r.Context()).Authenticated {
		writeError(w, http.StatusUnauthorized, "Not Authenticated")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "image too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	if r.MultipartForm != nil {
		defer func() { _ = r.MultipartForm.RemoveAll() }()
	}

	header := acceptedImage(r)
	if header == nil {
		writeError(w, http.StatusOK, "File not provided")
		return
	}

	filePath, err := h.store.Save(r.Context(), header)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "store image failed", "filename", header.Filename, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to store image")
		return
	}

	if oldPath := r.FormValue(formFieldOldPath); oldPath != "" {
		h.cleaner.Remove(r.Context(), oldPath)
	}

	writeJSON(w, http.StatusCreated, UploadResponse{Message: "File Stored", FilePath: filePath})
}

// Serve streams a stored image.
func (h *ImageHandler) Serve(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if storage.ValidateKey(key) != nil {
		http.NotFound(w, r)
		return
	}

	obj, err := h.store.Open(r.Context(), key)
	if err != nil {
		if errors.Is(err, storage.ErrNotExist) {
			http.NotFound(w, r)
			return
		}
		h.logger.ErrorContext(r.Context(), "open image failed", "key", key, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read image")
		return
	}
	defer obj.Close()

	if contentType := mime.TypeByExtension(filepath.Ext(key)); contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	if rs, ok := obj.(io.ReadSeeker); ok {
		http.ServeContent(w, r, key, time.Time{}, rs)
		return
	}
	_, _ = io.Copy(w, obj)
}

func acceptedImage(r *http.Request) *multipart.FileHeader {
	if r.MultipartForm == nil {
		return nil
	}
	files := r.MultipartForm.File[formFieldImage]
	if len(files) == 0 {
		return nil
	}
	header := files[0]
	if !images.Accept(header.Header.Get("Content-Type")) {
		return nil
	}
	return header
}
