package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"

	"bizledger/internal/core"
)

func TestResponseBuilder_JSON(t *testing.T) {
	w := httptest.NewRecorder()

	NewResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/expenses/1").
		JSON(map[string]string{"id": "1"}).
		Write(w)

	if w.Code != http.StatusCreated {
		t.Errorf("Status code = %d, want %d", w.Code, http.StatusCreated)
	}
	if got := w.Header().Get("Content-Type"); got != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", got)
	}
	if got := w.Header().Get("Location"); got != "/api/expenses/1" {
		t.Errorf("Location = %q", got)
	}
	if got := w.Body.String(); got != "{\"id\":\"1\"}\n" {
		t.Errorf("Body = %q", got)
	}
}

func TestResponseBuilder_EncodeFailure(t *testing.T) {
	w := httptest.NewRecorder()
	NewResponse().JSON(map[string]any{"bad": make(chan int)}).Write(w)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("Status code = %d, want 500", w.Code)
	}
}

func TestResponseBuilder_NoBody(t *testing.T) {
	w := httptest.NewRecorder()
	NewResponse().Status(http.StatusNoContent).Write(w)
	if w.Code != http.StatusNoContent || w.Body.Len() != 0 {
		t.Errorf("got %d with %d bytes", w.Code, w.Body.Len())
	}
	if w.Header().Get("Content-Type") != "" {
		t.Error("Content-Type set on empty response")
	}
}

func TestErrorFrom(t *testing.T) {
	verr := &core.ValidationError{}
	verr.Add("amount", core.ErrInvalidAmount)
	verr.Add("date", errors.New("bad date"))

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantFields int
	}{
		{"validation", verr, http.StatusUnprocessableEntity, 2},
		{"wrapped validation", fmt.Errorf("commit: %w", verr), http.StatusUnprocessableEntity, 2},
		{"stale", &core.StaleLedgerError{VehicleID: "van", Expected: decimal.NewFromInt(1000), Actual: decimal.NewFromInt(1350)}, http.StatusConflict, 0},
		{"not found", fmt.Errorf("vehicle x: %w", core.ErrNotFound), http.StatusNotFound, 0},
		{"upstream", core.Upstream("list types", errors.New("disk full")), http.StatusBadGateway, 0},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			ErrorFrom(tt.err).Write(w)
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			var body ErrorBody
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Error == "" {
				t.Error("error message empty")
			}
			if len(body.Fields) != tt.wantFields {
				t.Errorf("fields = %+v, want %d", body.Fields, tt.wantFields)
			}
		})
	}
}

func TestErrorFrom_UpstreamHidesCause(t *testing.T) {
	w := httptest.NewRecorder()
	ErrorFrom(core.Upstream("get vehicle", errors.New("password=hunter2"))).Write(w)
	if got := w.Body.String(); got != "{\"error\":\"upstream store failure\"}\n" {
		t.Errorf("Body = %q", got)
	}
}
