package httputil

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
)

func TestParsePathString(t *testing.T) {
	tests := []struct {
		name        string
		vars        map[string]string
		key         string
		want        string
		expectError bool
	}{
		{
			name: "present",
			vars: map[string]string{"package": "serde"},
			key:  "package",
			want: "serde",
		},
		{
			name:        "missing",
			vars:        map[string]string{},
			key:         "package",
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/test", nil)
			req = mux.SetURLVars(req, tt.vars)

			got, err := ParsePathString(req, tt.key)

			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestParsePathStringOrError(t *testing.T) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/test", nil)
	req = mux.SetURLVars(req, map[string]string{})

	_, ok := ParsePathStringOrError(w, req, "package")

	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestParseQueryDate(t *testing.T) {
	fallback := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		query string
		want  time.Time
	}{
		{
			name:  "valid date",
			query: "?before_date=2024-01-31",
			want:  time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
		},
		{
			name:  "missing falls back",
			query: "",
			want:  fallback,
		},
		{
			name:  "malformed falls back",
			query: "?before_date=not-a-date",
			want:  fallback,
		},
		{
			name:  "wrong format falls back",
			query: "?before_date=01%2F31%2F2024",
			want:  fallback,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/test"+tt.query, nil)
			got := ParseQueryDate(req, "before_date", fallback)
			assert.True(t, got.Equal(tt.want), "got %v, want %v", got, tt.want)
		})
	}
}

func TestParseQueryInt(t *testing.T) {
	req := httptest.NewRequest("GET", "/test?limit=25", nil)

	got, err := ParseQueryInt(req, "limit", 10)
	assert.NoError(t, err)
	assert.Equal(t, 25, got)

	got, err = ParseQueryInt(req, "offset", 5)
	assert.NoError(t, err)
	assert.Equal(t, 5, got)

	req = httptest.NewRequest("GET", "/test?limit=abc", nil)
	_, err = ParseQueryInt(req, "limit", 10)
	assert.Error(t, err)
}

func TestWantsJSON(t *testing.T) {
	tests := []struct {
		name   string
		accept string
		want   bool
	}{
		{
			name:   "json accept",
			accept: "application/json",
			want:   true,
		},
		{
			name:   "json among others",
			accept: "text/html, application/json",
			want:   true,
		},
		{
			name:   "no accept header",
			accept: "",
			want:   false,
		},
		{
			name:   "html only",
			accept: "text/html",
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/test", nil)
			if tt.accept != "" {
				req.Header.Set("Accept", tt.accept)
			}
			assert.Equal(t, tt.want, WantsJSON(req))
		})
	}
}
