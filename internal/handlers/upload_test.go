package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
)

type stubImageStore struct {
	url          string
	lastName     string
	lastType     string
	lastSize     int64
	lastContents string
}

func (s *stubImageStore) Upload(_ context.Context, r io.Reader, size int64, filename, contentType string) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	s.lastContents, s.lastSize, s.lastName, s.lastType = string(data), size, filename, contentType
	return s.url, nil
}

func multipartRequest(t *testing.T, filename, contentType string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	part.Write(data)
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUploadStoresImage(t *testing.T) {
	images := &stubImageStore{url: "https://cdn.example/listings/a.png"}
	h := NewUploadHandler(images)

	rec := httptest.NewRecorder()
	h.Upload(rec, multipartRequest(t, "a.png", "image/png", []byte("png-bytes")))

	var payload map[string]any
	json.Unmarshal(rec.Body.Bytes(), &payload)
	if rec.Code != http.StatusOK || payload["url"] != images.url {
		t.Fatalf("unexpected response %d %v", rec.Code, payload)
	}
	if images.lastName != "a.png" || images.lastType != "image/png" || images.lastContents != "png-bytes" || images.lastSize != 9 {
		t.Fatalf("unexpected upload args %+v", images)
	}
}

func TestUploadRejectsNonImages(t *testing.T) {
	images := &stubImageStore{}
	h := NewUploadHandler(images)

	rec := httptest.NewRecorder()
	h.Upload(rec, multipartRequest(t, "notes.txt", "text/plain", []byte("hello")))
	if rec.Code != http.StatusBadRequest || images.lastName != "" {
		t.Fatalf("expected 400 without upload, got %d", rec.Code)
	}
}

func TestUploadWithoutStoreIsUnavailable(t *testing.T) {
	rec := httptest.NewRecorder()
	NewUploadHandler(nil).Upload(rec, multipartRequest(t, "a.png", "image/png", []byte("x")))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}
