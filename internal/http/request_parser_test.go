package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"bizledger/internal/core"
)

func TestParseExpenseFilter(t *testing.T) {
	tests := []struct {
		name       string
		query      url.Values
		wantYear   int
		wantMethod core.ExpenseMethod
		wantErr    bool
	}{
		{name: "empty matches everything", query: url.Values{}},
		{name: "year and method", query: url.Values{"year": {"2024"}, "method": {"mileage"}}, wantYear: 2024, wantMethod: core.ExpenseMethodMileage},
		{name: "year trimmed", query: url.Values{"year": {" 2023 "}}, wantYear: 2023},
		{name: "year not a number", query: url.Values{"year": {"abc"}}, wantErr: true},
		{name: "year out of range", query: url.Values{"year": {"99"}}, wantErr: true},
		{name: "unknown method", query: url.Values{"method": {"barter"}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := ParseExpenseFilter(tt.query)
			if tt.wantErr {
				if !errors.Is(err, core.ErrValidation) {
					t.Fatalf("err = %v, want validation error", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if f.Year != tt.wantYear {
				t.Errorf("Year = %d, want %d", f.Year, tt.wantYear)
			}
			if f.ExpenseMethod != tt.wantMethod {
				t.Errorf("ExpenseMethod = %q, want %q", f.ExpenseMethod, tt.wantMethod)
			}
		})
	}
}

func TestParseExpenseFilter_CollectsEveryField(t *testing.T) {
	_, err := ParseExpenseFilter(url.Values{"year": {"x"}, "method": {"y"}})
	var verr *core.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v", err)
	}
	if !verr.Has("year") || !verr.Has("method") {
		t.Errorf("fields = %+v", verr.Fields)
	}
}

func TestOwnerFrom(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	if got := ownerFrom(r, "default").UserID; got != "default" {
		t.Errorf("missing header owner = %q", got)
	}
	r.Header.Set(OwnerHeader, " acme\x00 ")
	if got := ownerFrom(r, "default").UserID; got != "acme" {
		t.Errorf("owner = %q, want acme", got)
	}
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"valid", `{"name":"x"}`, false},
		{"empty", ``, true},
		{"unknown field", `{"name":"x","extra":1}`, true},
		{"trailing object", `{"name":"x"}{"name":"y"}`, true},
		{"not json", `name=x`, true},
		{"too large", `{"name":"` + strings.Repeat("a", maxBodyBytes) + `"}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var p payload
			err := decodeJSON(httptest.NewRecorder(), r, &p)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSanitizeInput(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  hello  ", "hello"},
		{"a\x00b\x07c", "abc"},
		{"line\nbreak\ttab", "line\nbreak\ttab"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := sanitizeInput(tt.in); got != tt.want {
			t.Errorf("sanitizeInput(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestGenerateRequestID(t *testing.T) {
	a, b := generateRequestID(), generateRequestID()
	if !strings.HasPrefix(a, "req_") || len(a) != len("req_")+16 {
		t.Errorf("id = %q", a)
	}
	if a == b {
		t.Error("ids repeat")
	}
}

func TestExtractClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		xri        string
		want       string
	}{
		{"direct", "203.0.113.7:5000", "", "", "203.0.113.7"},
		{"untrusted peer ignores forwarding", "203.0.113.7:5000", "198.51.100.1", "", "203.0.113.7"},
		{"trusted proxy forwards", "10.0.0.2:5000", "198.51.100.1, 10.0.0.9", "", "198.51.100.1"},
		{"trusted proxy real ip", "127.0.0.1:5000", "", "198.51.100.2", "198.51.100.2"},
		{"trusted proxy garbage", "127.0.0.1:5000", "not-an-ip", "", "127.0.0.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				r.Header.Set("X-Real-IP", tt.xri)
			}
			if got := extractClientIP(r); got != tt.want {
				t.Errorf("extractClientIP = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSuspiciousReason(t *testing.T) {
	tests := []struct {
		name    string
		method  string
		target  string
		agent   string
		flagged bool
	}{
		{"plain api call", http.MethodGet, "/api/grid/2024", "curl/8.0", false},
		{"traversal", http.MethodGet, "/api/../../etc/passwd", "", true},
		{"scanner agent", http.MethodGet, "/", "sqlmap/1.7", true},
		{"trace method", "TRACE", "/", "", true},
		{"probe in query", http.MethodGet, "/api/expenses?file=.env", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(tt.method, tt.target, nil)
			r.Header.Set("User-Agent", tt.agent)
			if got := suspiciousReason(r) != ""; got != tt.flagged {
				t.Errorf("flagged = %v, want %v", got, tt.flagged)
			}
		})
	}
}

func TestRateLimiterWindowAndCleanup(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	rl := newRateLimiter(3, time.Minute)
	rl.now = func() time.Time { return now }
	metrics := &securityMetrics{}

	for i := 0; i < 3; i++ {
		if !rl.allow("a", metrics) {
			t.Fatalf("request %d denied", i)
		}
	}
	if rl.allow("a", metrics) {
		t.Fatal("fourth request allowed")
	}
	if !rl.allow("b", metrics) {
		t.Fatal("other client denied")
	}
	if metrics.snapshot().RateLimitHits != 1 {
		t.Errorf("hits = %d", metrics.snapshot().RateLimitHits)
	}

	now = now.Add(time.Minute)
	if !rl.allow("a", metrics) {
		t.Fatal("new window denied")
	}

	now = now.Add(5 * time.Minute)
	rl.allow("b", metrics)
	now = now.Add(6 * time.Minute)
	if removed := rl.CleanExpired(); removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if rl.size() != 1 {
		t.Errorf("size = %d, want 1", rl.size())
	}
}
