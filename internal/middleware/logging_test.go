// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

// captureLog routes the default logger into a buffer for the test.
func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestLoggerRecordsAPIRequest(t *testing.T) {
	tests := []struct {
		name      string
		method    string
		path      string
		status    int
		body      string
		wantLevel string
	}{
		{"feed read", http.MethodGet, "/api/feed", http.StatusOK, `{"items":[]}`, "INFO"},
		{"missing prompt", http.MethodGet, "/api/prompts/x", http.StatusNotFound, `{"error":"Not found."}`, "INFO"},
		{"failed create", http.MethodPost, "/api/prompts", http.StatusServiceUnavailable, `{"error":"Service temporarily unavailable, try again."}`, "ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := captureLog(t)
			handler := Logger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			req := httptest.NewRequest(tt.method, tt.path, nil)
			req.Header.Set("X-Forwarded-For", "203.0.113.9")
			handler.ServeHTTP(httptest.NewRecorder(), req)

			var line struct {
				Level  string `json:"level"`
				Msg    string `json:"msg"`
				Method string `json:"method"`
				Path   string `json:"path"`
				Status int    `json:"status"`
				Bytes  int    `json:"bytes"`
				Client string `json:"client"`
			}
			if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
				t.Fatalf("decode log line %q: %v", buf.String(), err)
			}
			if line.Level != tt.wantLevel || line.Msg != "http request" {
				t.Errorf("level %s msg %q, want %s http request", line.Level, line.Msg, tt.wantLevel)
			}
			if line.Method != tt.method || line.Path != tt.path || line.Status != tt.status {
				t.Errorf("logged %s %s %d, want %s %s %d", line.Method, line.Path, line.Status, tt.method, tt.path, tt.status)
			}
			if line.Bytes != len(tt.body) || line.Client != "203.0.113.9" {
				t.Errorf("bytes %d client %q, want %d 203.0.113.9", line.Bytes, line.Client, len(tt.body))
			}
		})
	}
}

func TestResponseWriterKeepsFirstStatus(t *testing.T) {
	rw := &responseWriter{ResponseWriter: httptest.NewRecorder(), statusCode: http.StatusOK}
	rw.WriteHeader(http.StatusCreated)
	rw.WriteHeader(http.StatusInternalServerError)
	rw.Write([]byte(`{"id":"p1"}`))
	rw.Write([]byte("\n"))

	if rw.statusCode != http.StatusCreated {
		t.Errorf("statusCode = %d, want 201", rw.statusCode)
	}
	if rw.bytes != 12 {
		t.Errorf("bytes = %d, want 12", rw.bytes)
	}

	implicit := &responseWriter{ResponseWriter: httptest.NewRecorder(), statusCode: http.StatusTeapot}
	implicit.Write([]byte("{}"))
	if implicit.statusCode != http.StatusOK || !implicit.written {
		t.Errorf("implicit write: status %d written %v, want 200 true", implicit.statusCode, implicit.written)
	}
}
