package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/AnshRaj112/bazaar-backend/internal/middleware"
	"github.com/AnshRaj112/bazaar-backend/internal/models"
	"github.com/AnshRaj112/bazaar-backend/internal/services"
	"github.com/go-chi/chi/v5"
)

type stubListingService struct {
	listResult  []models.Listing
	getResult   *models.Listing
	createErr   error
	updateErr   error
	deleteErr   error
	listErr     error
	lastAll     bool
	lastOwnerID string
	lastID      string
	lastInput   models.ListingInput
	lastPatch   models.ListingPatch
	lastActor   services.Actor
}

func (s *stubListingService) ListAll(context.Context) ([]models.Listing, error) {
	s.lastAll = true
	return s.listResult, s.listErr
}

func (s *stubListingService) ListActive(context.Context) ([]models.Listing, error) {
	return s.listResult, s.listErr
}

func (s *stubListingService) ListByOwner(_ context.Context, ownerID string) ([]models.Listing, error) {
	s.lastOwnerID = ownerID
	return s.listResult, s.listErr
}

func (s *stubListingService) Get(_ context.Context, id string) (*models.Listing, error) {
	s.lastID = id
	return s.getResult, nil
}

func (s *stubListingService) Create(_ context.Context, in models.ListingInput) (*models.Listing, error) {
	s.lastInput = in
	if s.createErr != nil {
		return nil, s.createErr
	}
	return &models.Listing{ID: "new", Title: in.Title, UserID: in.UserID, Status: models.StatusPending}, nil
}

func (s *stubListingService) Update(_ context.Context, actor services.Actor, id string, patch models.ListingPatch) (*models.Listing, error) {
	s.lastActor = actor
	s.lastID = id
	s.lastPatch = patch
	return s.getResult, s.updateErr
}

func (s *stubListingService) Delete(_ context.Context, actor services.Actor, id string) (bool, error) {
	s.lastActor = actor
	s.lastID = id
	return s.deleteErr == nil, s.deleteErr
}

func listingRouter(h *ListingHandler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Identity)
	r.Get("/api/listings", h.List)
	r.Post("/api/listings", h.Create)
	r.Get("/api/listings/{id}", h.Get)
	r.Put("/api/listings/{id}", h.Update)
	r.Delete("/api/listings/{id}", h.Delete)
	r.Get("/api/me/listings", h.Mine)
	return r
}

func do(t *testing.T, h http.Handler, method, path, user, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if user != "" {
		req.Header.Set(middleware.UserIDHeader, user)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return rec, payload
}

func TestListReturnsActiveOrAll(t *testing.T) {
	service := &stubListingService{listResult: []models.Listing{{ID: "a"}, {ID: "b"}}}
	h := listingRouter(NewListingHandler(service))

	rec, payload := do(t, h, http.MethodGet, "/api/listings", "", "")
	if rec.Code != http.StatusOK || payload["success"] != true || payload["count"] != float64(2) {
		t.Fatalf("unexpected response %d %v", rec.Code, payload)
	}
	if service.lastAll {
		t.Fatal("browse should not list every status")
	}

	do(t, h, http.MethodGet, "/api/listings?all=1", "", "")
	if !service.lastAll {
		t.Fatal("?all=1 should list every status")
	}
}

func TestGetMissingListingIs404(t *testing.T) {
	service := &stubListingService{}
	h := listingRouter(NewListingHandler(service))

	rec, payload := do(t, h, http.MethodGet, "/api/listings/nope", "", "")
	if rec.Code != http.StatusNotFound || payload["success"] != false {
		t.Fatalf("expected 404 envelope, got %d %v", rec.Code, payload)
	}
	if service.lastID != "nope" {
		t.Fatalf("expected id from path, got %q", service.lastID)
	}
}

func TestCreateTakesOwnerFromIdentity(t *testing.T) {
	service := &stubListingService{}
	h := listingRouter(NewListingHandler(service))

	rec, payload := do(t, h, http.MethodPost, "/api/listings", "seller-1", `{"title":"Bike","price":120,"userId":"someone-else"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d %v", rec.Code, payload)
	}
	if service.lastInput.UserID != "seller-1" || service.lastInput.Title != "Bike" || service.lastInput.Price != 120 {
		t.Fatalf("unexpected input %+v", service.lastInput)
	}
	listing := payload["listing"].(map[string]any)
	if listing["status"] != string(models.StatusPending) {
		t.Fatalf("expected pending listing, got %v", listing)
	}
}

func TestCreateMapsValidationErrorTo400(t *testing.T) {
	service := &stubListingService{createErr: services.ErrOwnerRequired}
	h := listingRouter(NewListingHandler(service))

	rec, payload := do(t, h, http.MethodPost, "/api/listings", "", `{"title":"Bike"}`)
	if rec.Code != http.StatusBadRequest || payload["message"] != services.ErrOwnerRequired.Error() {
		t.Fatalf("expected 400 with message, got %d %v", rec.Code, payload)
	}
}

func TestCreateRejectsMalformedBody(t *testing.T) {
	h := listingRouter(NewListingHandler(&stubListingService{}))
	rec, _ := do(t, h, http.MethodPost, "/api/listings", "u1", `{"title":`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestUpdateAsOwner(t *testing.T) {
	service := &stubListingService{getResult: &models.Listing{ID: "l1", Status: models.StatusPending}}
	h := listingRouter(NewListingHandler(service))

	rec, _ := do(t, h, http.MethodPut, "/api/listings/l1", "seller-1", `{"title":"New title"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if service.lastActor.UserID != "seller-1" || service.lastActor.IsAdmin {
		t.Fatalf("unexpected actor %+v", service.lastActor)
	}
	if service.lastPatch.Title == nil || *service.lastPatch.Title != "New title" || service.lastPatch.Price != nil {
		t.Fatalf("unexpected patch %+v", service.lastPatch)
	}
}

func TestUpdateErrors(t *testing.T) {
	cases := []struct {
		desc    string
		service *stubListingService
		want    int
	}{
		{"missing", &stubListingService{}, http.StatusNotFound},
		{"forbidden", &stubListingService{updateErr: services.ErrForbidden}, http.StatusForbidden},
		{"store failure", &stubListingService{updateErr: errors.New("mongo down")}, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			h := listingRouter(NewListingHandler(tc.service))
			rec, payload := do(t, h, http.MethodPut, "/api/listings/l1", "u1", `{}`)
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, rec.Code)
			}
			if tc.want == http.StatusInternalServerError && strings.Contains(payload["message"].(string), "mongo") {
				t.Fatalf("internal error leaked: %v", payload)
			}
		})
	}
}

func TestDeleteAndMine(t *testing.T) {
	service := &stubListingService{}
	h := listingRouter(NewListingHandler(service))

	rec, _ := do(t, h, http.MethodDelete, "/api/listings/l9", "u1", "")
	if rec.Code != http.StatusOK || service.lastID != "l9" || service.lastActor.UserID != "u1" {
		t.Fatalf("unexpected delete: %d %+v", rec.Code, service)
	}

	rec, _ = do(t, h, http.MethodGet, "/api/me/listings", "u1", "")
	if rec.Code != http.StatusOK || service.lastOwnerID != "u1" {
		t.Fatalf("unexpected mine: %d owner=%q", rec.Code, service.lastOwnerID)
	}
}

func doWithHeader(t *testing.T, h http.Handler, method, path, body, key, value string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(key, value)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return rec.Code, payload
}
