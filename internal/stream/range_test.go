package stream

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func writeTestFile(t *testing.T, size int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "movie.mp4")
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	return path
}

func TestServeDirect_NoRangeServesWholeFile(t *testing.T) {
	path := writeTestFile(t, 1024)

	req := httptest.NewRequest(http.MethodGet, "/v2/stream/x", nil)
	rec := httptest.NewRecorder()

	if err := ServeDirect(rec, req, path); err != nil {
		t.Fatalf("serve: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.Len() != 1024 {
		t.Fatalf("expected 1024 bytes, got %d", rec.Body.Len())
	}
	if rec.Header().Get("Accept-Ranges") != "bytes" {
		t.Fatalf("expected Accept-Ranges: bytes")
	}
}

func TestServeDirect_PartialRange(t *testing.T) {
	const size = 10 * 1024 * 1024
	path := writeTestFile(t, size)

	req := httptest.NewRequest(http.MethodGet, "/v2/stream/x", nil)
	req.Header.Set("Range", "bytes=0-1023")
	rec := httptest.NewRecorder()

	if err := ServeDirect(rec, req, path); err != nil {
		t.Fatalf("serve: %v", err)
	}
	if rec.Code != http.StatusPartialContent {
		t.Fatalf("expected 206, got %d", rec.Code)
	}
	if rec.Body.Len() != 1024 {
		t.Fatalf("expected 1024 bytes, got %d", rec.Body.Len())
	}
	want := "bytes 0-1023/10485760"
	if got := rec.Header().Get("Content-Range"); got != want {
		t.Fatalf("Content-Range = %q, want %q", got, want)
	}
}

func TestServeDirect_RangeWithoutEndDefaultsToEOF(t *testing.T) {
	path := writeTestFile(t, 2048)

	req := httptest.NewRequest(http.MethodGet, "/v2/stream/x", nil)
	req.Header.Set("Range", "bytes=1024-")
	rec := httptest.NewRecorder()

	if err := ServeDirect(rec, req, path); err != nil {
		t.Fatalf("serve: %v", err)
	}
	if rec.Body.Len() != 1024 {
		t.Fatalf("expected 1024 bytes, got %d", rec.Body.Len())
	}
}

func TestServeDirect_OutOfRangeReportsUnsatisfiable(t *testing.T) {
	path := writeTestFile(t, 1024)

	req := httptest.NewRequest(http.MethodGet, "/v2/stream/x", nil)
	req.Header.Set("Range", "bytes=2048-")
	rec := httptest.NewRecorder()

	err := ServeDirect(rec, req, path)
	if err != ErrRangeNotSatisfiable {
		t.Fatalf("expected ErrRangeNotSatisfiable, got %v", err)
	}
}
