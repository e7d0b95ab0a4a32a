package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ayusman/memora/internal/store"
)

func postJSON(router http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestMemberHandler_PostUpdate(t *testing.T) {
	s := newTestStore(t)
	router := newRouter(NewMemberHandler(s, nil))
	s.Members().Create(&store.Member{ID: "m-1", Name: "Priya"})

	tests := []struct {
		name     string
		path     string
		body     string
		wantCode int
	}{
		{name: "valid", path: "/api/members/m-1/updates", body: `{"update":" Adopted a puppy ","date":"2026-10-01"}`, wantCode: http.StatusCreated},
		{name: "empty update", path: "/api/members/m-1/updates", body: `{"update":"   "}`, wantCode: http.StatusBadRequest},
		{name: "invalid json", path: "/api/members/m-1/updates", body: `{"update":`, wantCode: http.StatusBadRequest},
		{name: "unknown member", path: "/api/members/ghost/updates", body: `{"update":"hi"}`, wantCode: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postJSON(router, tt.path, tt.body)
			if rec.Code != tt.wantCode {
				t.Errorf("expected status %d, got %d: %s", tt.wantCode, rec.Code, rec.Body.String())
			}
		})
	}

	latest, err := s.Updates().Latest("m-1")
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if latest.Content != "Adopted a puppy" || latest.Date != "2026-10-01" {
		t.Errorf("stored update = %+v", latest)
	}
}

func TestMemberHandler_ListUpdates(t *testing.T) {
	s := newTestStore(t)
	router := newRouter(NewMemberHandler(s, nil))
	s.Members().Create(&store.Member{ID: "m-1", Name: "Priya"})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/members/m-1/updates", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"updates":[]`) {
		t.Errorf("empty feed body = %s", rec.Body.String())
	}

	postJSON(router, "/api/members/m-1/updates", `{"update":"Visited the lake"}`)
	postJSON(router, "/api/members/m-1/updates", `{"update":"Started a new job"}`)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/members/m-1/updates", nil))

	var response listUpdatesResponse
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(response.Updates) != 2 || response.Updates[0].Update != "Started a new job" {
		t.Errorf("updates = %+v, want newest first", response.Updates)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/members/ghost/updates", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown member: expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
}
