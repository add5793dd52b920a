// This file implements parsing and validation of request data shared by the
// handlers: JSON bodies, path years, list filters and the owner header.

package http

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"bizledger/internal/core"
	"bizledger/internal/store"
)

// OwnerHeader carries the caller's owner id.
const OwnerHeader = "X-Owner-ID"

const maxBodyBytes = 1 << 20

var (
	errEmptyBody = errors.New("request body is empty")
	errBadYear   = errors.New("year must be between 1900 and 9999")
)

// decodeJSON reads one JSON object from r into dst. Unknown fields and
// trailing data are rejected.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return fmt.Errorf("decode body: %w", err)
	}
	if dec.More() {
		return errors.New("decode body: unexpected data after JSON object")
	}
	return nil
}

// ownerFrom reads the owner from the request header, falling back to def.
func ownerFrom(r *http.Request, def string) store.OwnerContext {
	id := sanitizeInput(r.Header.Get(OwnerHeader))
	if id == "" {
		id = def
	}
	return store.OwnerContext{UserID: id}
}

// parseYear validates a year path or query value.
func parseYear(v string) (int, error) {
	y, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || y < 1900 || y > 9999 {
		return 0, errBadYear
	}
	return y, nil
}

// ParseExpenseFilter builds a list filter from ?year=&method=. Absent values
// match everything; malformed ones are validation errors.
func ParseExpenseFilter(query url.Values) (store.ExpenseFilter, error) {
	var f store.ExpenseFilter
	verr := &core.ValidationError{}
	if v := strings.TrimSpace(query.Get("year")); v != "" {
		y, err := parseYear(v)
		verr.Add("year", err)
		f.Year = y
	}
	if v := strings.TrimSpace(query.Get("method")); v != "" {
		m := core.ExpenseMethod(v)
		if !m.Valid() {
			verr.Add("method", core.ErrUnknownExpense)
		}
		f.ExpenseMethod = m
	}
	if v := strings.TrimSpace(query.Get("vehicle_id")); v != "" {
		f.VehicleID = sanitizeInput(v)
	}
	if err := verr.Err(); err != nil {
		return store.ExpenseFilter{}, err
	}
	return f, nil
}

// sanitizeInput removes control characters except tab, newline and carriage
// return, and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s)
}

// generateRequestID creates a unique request ID for tracing.
func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}
