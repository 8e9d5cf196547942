package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
)

func brotliEngine(body, contentType string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Brotli())
	handler := func(c *gin.Context) { c.Data(http.StatusOK, contentType, []byte(body)) }
	r.GET("/x", handler)
	r.GET("/metrics", handler)
	return r
}

func fetch(r *gin.Engine, path string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestBrotli(t *testing.T) {
	large := strings.Repeat("assessment ", 500)
	br := map[string]string{"Accept-Encoding": "gzip, br"}

	t.Run("compresses large bodies", func(t *testing.T) {
		w := fetch(brotliEngine(large, "application/json"), "/x", br)
		if w.Header().Get("Content-Encoding") != "br" {
			t.Fatalf("expected br encoding, headers %v", w.Header())
		}
		got, err := io.ReadAll(brotli.NewReader(w.Body))
		if err != nil {
			t.Fatal(err)
		}
		if string(got) != large {
			t.Fatal("round trip mismatch")
		}
	})

	tests := []struct {
		name        string
		body        string
		contentType string
		path        string
		header      map[string]string
	}{
		{name: "small body", body: "{}", contentType: "application/json", path: "/x", header: br},
		{name: "client without br", body: large, contentType: "application/json", path: "/x", header: map[string]string{"Accept-Encoding": "gzip"}},
		{name: "spreadsheet", body: large, contentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", path: "/x", header: br},
		{name: "metrics", body: large, contentType: "text/plain", path: "/metrics", header: br},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := fetch(brotliEngine(tt.body, tt.contentType), tt.path, tt.header)
			if enc := w.Header().Get("Content-Encoding"); enc != "" {
				t.Fatalf("expected identity encoding, got %q", enc)
			}
			if w.Body.String() != tt.body {
				t.Fatal("body must pass through unchanged")
			}
		})
	}
}
