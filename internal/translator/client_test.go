package translator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/reelkeep/reelkeep/internal/models"
)

// fakeOllama echoes back a bracket-numbered translation for every line it
// receives, prefixing each with "X-" so the test can tell real lines from
// padding, and records how many requests it saw plus the last keep_alive.
func fakeOllama(t *testing.T, callCount *int32, lastKeepAlive *string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(callCount, 1)
		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		*lastKeepAlive = req.KeepAlive

		var b strings.Builder
		for _, line := range strings.Split(req.Prompt, "\n") {
			line = strings.TrimSpace(line)
			if !strings.HasPrefix(line, "[") {
				continue
			}
			idx := strings.Index(line, "]")
			if idx < 0 {
				continue
			}
			b.WriteString(line[:idx+1])
			b.WriteString(" X-")
			b.WriteString(strings.TrimSpace(line[idx+1:]))
			b.WriteString("\n")
		}
		resp := generateResponse{Response: b.String()}
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestTranslate_BatchesAndPreservesCountOrderAndTimestamps(t *testing.T) {
	var calls int32
	var lastKeepAlive string
	srv := fakeOllama(t, &calls, &lastKeepAlive)
	defer srv.Close()

	client := NewClient(srv.URL, "llama3.1")
	tr := New(client)

	var segments []models.TranscriptionSegment
	for i := 0; i < 15; i++ {
		segments = append(segments, models.TranscriptionSegment{
			StartTime: float64(i), EndTime: float64(i) + 1, Text: "line " + strconv.Itoa(i),
		})
	}

	out, err := tr.Translate(context.Background(), segments, "en", "hu")
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if len(out) != len(segments) {
		t.Fatalf("count mismatch: got %d, want %d", len(out), len(segments))
	}
	if calls != 2 {
		t.Fatalf("expected 2 batches of <=10 for 15 segments, got %d calls", calls)
	}
	for i, seg := range out {
		if seg.StartTime != segments[i].StartTime || seg.EndTime != segments[i].EndTime {
			t.Fatalf("timestamps should be untouched at %d: got %+v, want %+v", i, seg, segments[i])
		}
		if !strings.HasPrefix(seg.Text, "X-line "+strconv.Itoa(i)) {
			t.Fatalf("unexpected translated text at %d: %q", i, seg.Text)
		}
	}
	if lastKeepAlive != "" {
		t.Fatalf("multi-batch translation should use default keep_alive, got %q", lastKeepAlive)
	}
}

func TestTranslate_SingleSegmentUsesZeroKeepAlive(t *testing.T) {
	var calls int32
	var lastKeepAlive string
	srv := fakeOllama(t, &calls, &lastKeepAlive)
	defer srv.Close()

	client := NewClient(srv.URL, "llama3.1")
	tr := New(client)

	segments := []models.TranscriptionSegment{{StartTime: 0, EndTime: 1, Text: "hello"}}
	if _, err := tr.Translate(context.Background(), segments, "en", "de"); err != nil {
		t.Fatalf("translate: %v", err)
	}
	if lastKeepAlive != "0" {
		t.Fatalf("single-segment translation should request keep_alive=0, got %q", lastKeepAlive)
	}
}
