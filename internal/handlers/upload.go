package handlers

import (
	"net/http"
	"strings"

	"github.com/AnshRaj112/bazaar-backend/internal/services"
)

const maxUploadBytes = 10 << 20

// UploadHandler stores listing images. A nil store means uploads are disabled.
type UploadHandler struct {
	images services.ImageStore
}

func NewUploadHandler(images services.ImageStore) *UploadHandler {
	return &UploadHandler{images: images}
}

func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if h.images == nil {
		writeMessage(w, http.StatusServiceUnavailable, "Image uploads are not configured")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes+1<<20)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeMessage(w, http.StatusBadRequest, "Failed to parse form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "No file provided")
		return
	}
	defer file.Close()

	if header.Size > maxUploadBytes {
		writeMessage(w, http.StatusBadRequest, "File is larger than 10MB")
		return
	}
	contentType := header.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		writeMessage(w, http.StatusBadRequest, "Only image uploads are allowed")
		return
	}

	ctx, cancel := withTimeout(r)
	defer cancel()

	url, err := h.images.Upload(ctx, file, header.Size, header.Filename, contentType)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "File uploaded successfully",
		"url":     url,
	})
}
