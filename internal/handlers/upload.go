package handlers

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"lihtc-backend/internal/storage"
)

// Income documents are PDFs or photos of paper documents; 10 MB covers a
// multi-page scan.
const maxUploadSize = 10 << 20

var allowedUploadTypes = map[string]bool{
	"application/pdf": true,
	"image/jpeg":      true,
	"image/jpg":       true,
	"image/png":       true,
}

// UploadHandler stores raw income-document files. The OCR collaborator
// reads them from the returned URL; the extracted fields come back later
// through the document endpoints.
type UploadHandler struct {
	store    storage.Store
	localDir string // serving root for local storage; empty when using R2
}

// NewUploadHandler creates an UploadHandler with the given storage backend.
func NewUploadHandler(store storage.Store, localDir string) *UploadHandler {
	return &UploadHandler{store: store, localDir: localDir}
}

// Upload handles POST /api/upload — multipart/form-data with a "file"
// field. Returns the stored file's metadata for the caller to attach to a
// document record.
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)

	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		JSONError(w, http.StatusBadRequest, "File too large. Maximum size is 10MB.")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		JSONError(w, http.StatusBadRequest, "Missing 'file' field in form data.")
		return
	}
	defer file.Close()

	// MIME sniff the first 512 bytes; the client's Content-Type is not
	// trusted for compliance files.
	buffer := make([]byte, 512)
	n, err := file.Read(buffer)
	if err != nil && err != io.EOF {
		JSONError(w, http.StatusBadRequest, "Could not read file.")
		return
	}
	contentType := http.DetectContentType(buffer[:n])

	if !allowedUploadTypes[contentType] {
		JSONError(w, http.StatusBadRequest, fmt.Sprintf(
			"File type '%s' not allowed. Accepted: PDF, JPG, PNG.", contentType,
		))
		return
	}

	if _, err := file.Seek(0, io.SeekStart); err != nil {
		JSONError(w, http.StatusInternalServerError, "Failed to process file.")
		return
	}

	// Scope the path by resident when given so a resident's documents live
	// together in the bucket.
	prefix := "income-documents"
	if residentID := r.FormValue("residentId"); residentID != "" {
		prefix = "income-documents/" + filepath.Base(residentID)
	}

	safeName := sanitizeFilename(header.Filename)
	storagePath := fmt.Sprintf("%s/%d_%s", prefix, time.Now().Unix(), safeName)

	info, err := h.store.Save(r.Context(), storagePath, file, contentType)
	if err != nil {
		log.Printf("Upload failed: %v", err)
		JSONError(w, http.StatusInternalServerError, "Failed to save file.")
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{"data": info})
}

// ServeFile handles GET /api/files/* — redirects to the CDN for R2,
// serves from disk for local storage.
func (h *UploadHandler) ServeFile(w http.ResponseWriter, r *http.Request) {
	filePath := strings.TrimPrefix(r.URL.Path, "/api/files/")
	if filePath == "" {
		JSONError(w, http.StatusBadRequest, "File path required.")
		return
	}

	if url := h.store.URL(filePath); strings.HasPrefix(url, "https://") {
		http.Redirect(w, r, url, http.StatusTemporaryRedirect)
		return
	}

	http.ServeFile(w, r, filepath.Join(h.localDir, filepath.Clean(filePath)))
}

// sanitizeFilename strips directory components and URL-unsafe spaces.
func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	return strings.ReplaceAll(name, " ", "_")
}
