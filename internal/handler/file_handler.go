package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"orbitdrive/internal/auth"
	"orbitdrive/internal/domain"
	"orbitdrive/internal/service"
)

// maxUploadBytes caps the whole upload request body; larger requests are
// rejected, not spooled.
const maxUploadBytes = 100 << 20 // 100MB

type FileHandler struct {
	fileService *service.FileService
}

func NewFileHandler(fileService *service.FileService) *FileHandler {
	return &FileHandler{
		fileService: fileService,
	}
}

// UploadFile accepts a multipart form with a single "file" part and stores
// it through the provider orchestrator.
func (h *FileHandler) UploadFile(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.VerifyToken(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if r.ContentLength > maxUploadBytes {
		http.Error(w, "File too large", http.StatusRequestEntityTooLarge)
		return
	}
	// Backstop for chunked requests that carry no Content-Length.
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			http.Error(w, "File too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "Failed to parse form", http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "No file uploaded", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		log.Printf("[Upload] failed to read form file: %v", err)
		http.Error(w, "Failed to read file", http.StatusBadRequest)
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	uploaded, err := h.fileService.Upload(r.Context(), userID, header.Filename, contentType, data)
	if err != nil {
		writeServiceError(w, "upload", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(uploaded)
}

func (h *FileHandler) ListFiles(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.VerifyToken(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	files, err := h.fileService.List(r.Context(), userID)
	if err != nil {
		log.Printf("[Files] failed to list files: %v", err)
		http.Error(w, "Failed to list files", http.StatusInternalServerError)
		return
	}
	if files == nil {
		files = []domain.File{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(files)
}

func (h *FileHandler) GetFileMetadata(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.VerifyToken(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	fileUUID, err := uuid.Parse(chi.URLParam(r, "uuid"))
	if err != nil {
		http.Error(w, "Invalid file UUID", http.StatusBadRequest)
		return
	}

	file, err := h.fileService.GetMetadata(r.Context(), fileUUID, userID)
	if err != nil {
		writeServiceError(w, "metadata", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(file)
}

// DownloadFile streams the file body with a Content-Disposition carrying the
// original name.
func (h *FileHandler) DownloadFile(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.VerifyToken(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	fileUUID, err := uuid.Parse(chi.URLParam(r, "uuid"))
	if err != nil {
		http.Error(w, "Invalid file UUID", http.StatusBadRequest)
		return
	}

	file, obj, err := h.fileService.OpenDownload(r.Context(), fileUUID, userID)
	if err != nil {
		writeServiceError(w, "download", err)
		return
	}
	defer obj.Close()

	encodedName := url.QueryEscape(file.Name)
	asciiName := strings.ReplaceAll(file.Name, `"`, `\"`)
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="%s"; filename*=UTF-8''%s`, asciiName, encodedName))
	w.Header().Set("Content-Type", file.MIMEType)
	w.Header().Set("Content-Length", strconv.FormatInt(file.SizeBytes, 10))

	if _, err := io.Copy(w, obj); err != nil {
		// Headers are gone; all we can do is log the broken stream.
		log.Printf("[Download] streaming %s interrupted: %v", file.UUID, err)
	}
}

func (h *FileHandler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.VerifyToken(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	fileUUID, err := uuid.Parse(chi.URLParam(r, "uuid"))
	if err != nil {
		http.Error(w, "Invalid file UUID", http.StatusBadRequest)
		return
	}

	if err := h.fileService.Delete(r.Context(), fileUUID, userID); err != nil {
		writeServiceError(w, "delete", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"success": true})
}

// writeServiceError maps domain errors to HTTP statuses. Unavailability is a
// retry-later signal and keeps upload and download messages distinct: for a
// download the object still exists at its recorded provider.
func writeServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, domain.ErrQuotaExceeded):
		http.Error(w, "Storage quota exceeded", http.StatusRequestEntityTooLarge)
	case errors.Is(err, domain.ErrFileNotFound):
		http.Error(w, "File not found", http.StatusNotFound)
	case errors.Is(err, domain.ErrUserNotFound):
		http.Error(w, "User not found", http.StatusNotFound)
	case errors.Is(err, domain.ErrAllProvidersUnavailable):
		if op == "download" {
			http.Error(w, "Storage temporarily unreachable, the file is not lost - try again later", http.StatusServiceUnavailable)
		} else {
			http.Error(w, "Storage temporarily unavailable, try again later", http.StatusServiceUnavailable)
		}
	default:
		log.Printf("[Files] %s failed: %v", op, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
