package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cthiel42/ipamd/internal/ipam"
	"github.com/cthiel42/ipamd/internal/store"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	svc := ipam.NewService(store.NewMemoryStore(), nil)
	return NewRouter(svc, nil)
}

func doJSON(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestCreateAndListRoots(t *testing.T) {
	r := newTestRouter(t)

	rec := doJSON(t, r, http.MethodPost, "/roots/prod", createRootRequest{CIDR: "10.0.0.0/24"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, r, http.MethodGet, "/roots/prod", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var roots []rootDTO
	if err := json.Unmarshal(rec.Body.Bytes(), &roots); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(roots) != 1 || roots[0].CIDR != "10.0.0.0/24" {
		t.Fatalf("unexpected roots: %+v", roots)
	}
}

func TestCreateReservationByPrefixLength(t *testing.T) {
	r := newTestRouter(t)
	doJSON(t, r, http.MethodPost, "/roots/prod", createRootRequest{CIDR: "10.0.0.0/24"})

	size := 26
	rec := doJSON(t, r, http.MethodPost, "/reservations/prod", createReservationRequest{PrefixLength: &size, Comment: "first"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var res reservationDTO
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if res.CIDR != "10.0.0.0/26" || res.Comment != "first" {
		t.Fatalf("unexpected reservation: %+v", res)
	}
}

func TestCreateReservationRequiresCIDROrPrefixLength(t *testing.T) {
	r := newTestRouter(t)
	doJSON(t, r, http.MethodPost, "/roots/prod", createRootRequest{CIDR: "10.0.0.0/24"})

	rec := doJSON(t, r, http.MethodPost, "/reservations/prod", createReservationRequest{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestDeleteReservation(t *testing.T) {
	r := newTestRouter(t)
	doJSON(t, r, http.MethodPost, "/roots/prod", createRootRequest{CIDR: "10.0.0.0/24"})
	size := 28
	rec := doJSON(t, r, http.MethodPost, "/reservations/prod", createReservationRequest{PrefixLength: &size})
	var res reservationDTO
	json.Unmarshal(rec.Body.Bytes(), &res) //nolint:errcheck

	rec = doJSON(t, r, http.MethodDelete, "/reservations/prod/"+res.CIDR, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var msg msgResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &msg); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if msg.Msg != "ok" {
		t.Fatalf("expected ok, got %q", msg.Msg)
	}
}

func TestErrorsReturn400WithMsgEnvelope(t *testing.T) {
	r := newTestRouter(t)

	rec := doJSON(t, r, http.MethodDelete, "/roots/prod/10.0.0.0/24", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var msg msgResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &msg); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if msg.Msg == "" {
		t.Fatalf("expected a non-empty error message")
	}
}

func TestUIRedirect(t *testing.T) {
	r := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/ui/", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusMovedPermanently {
		t.Fatalf("expected 301, got %d", rec.Code)
	}
}
