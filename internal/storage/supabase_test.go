package storage

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/chadiek/interview-agent/internal/interview"
)

func TestConfigEnabled(t *testing.T) {
	if (Config{}).Enabled() {
		t.Fatal("empty config must be disabled")
	}
	if !(Config{URL: "https://x.supabase.co", ServiceRoleKey: "k"}).Enabled() {
		t.Fatal("complete config must be enabled")
	}
}

func TestSaveSummaryUploadsJSON(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"Key":"ok"}`))
	}))
	defer srv.Close()

	store, err := New(Config{URL: srv.URL, ServiceRoleKey: "service-key", Bucket: "interview-transcripts"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	sum := interview.Summary{TotalMessages: 3, DurationSeconds: 120}
	if err := store.SaveSummary("itv-42", sum); err != nil {
		t.Fatalf("SaveSummary: %v", err)
	}
	if !strings.Contains(gotPath, "interview-transcripts") || !strings.Contains(gotPath, "itv-42") {
		t.Fatalf("unexpected upload path %q", gotPath)
	}
}

func TestNopStore(t *testing.T) {
	if err := (NopStore{}).SaveSummary("x", interview.Summary{}); err != nil {
		t.Fatalf("NopStore: %v", err)
	}
}
