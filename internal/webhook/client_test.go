package webhook

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifyRetriesWithStableDeliveryID(t *testing.T) {
	var mu sync.Mutex
	var deliveryIDs []string
	var attempts int

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var envelope map[string]any
		if err := json.NewDecoder(r.Body).Decode(&envelope); err != nil {
			t.Errorf("decode: %v", err)
		}
		mu.Lock()
		attempts++
		deliveryIDs = append(deliveryIDs, envelope["delivery_id"].(string))
		n := attempts
		mu.Unlock()

		if n < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewClient(Config{URL: srv.URL, Backoff: time.Millisecond}, discard())
	ok := client.Notify(context.Background(), "job-1", "job_summary", map[string]any{"status": "done"})

	if !ok {
		t.Fatal("delivery reported failed after eventual 200")
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}
	if deliveryIDs[0] == "" || deliveryIDs[0] != deliveryIDs[1] || deliveryIDs[1] != deliveryIDs[2] {
		t.Fatalf("delivery id changed across retries: %v", deliveryIDs)
	}
}

func TestNotifyEnvelope(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %q", ct)
		}
		if s := r.Header.Get("X-Webhook-Secret"); s != "hunter2" {
			t.Errorf("secret header = %q", s)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := NewClient(Config{URL: srv.URL, Secret: "hunter2", Backoff: time.Millisecond}, discard())
	if !client.Notify(context.Background(), "job-7", "job_summary", map[string]any{
		"status":          "done",
		"total_extracted": 12,
	}) {
		t.Fatal("delivery failed")
	}

	if got["job_id"] != "job-7" || got["payload_type"] != "job_summary" {
		t.Fatalf("envelope = %v", got)
	}
	if got["status"] != "done" || got["total_extracted"] != float64(12) {
		t.Fatalf("payload fields missing: %v", got)
	}
	if got["delivery_id"] == "" || got["delivery_id"] == nil {
		t.Fatal("no delivery_id in envelope")
	}
}

func TestNotifyCallerSuppliedDeliveryID(t *testing.T) {
	var mu sync.Mutex
	var deliveryIDs []string
	var attempts int

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var envelope map[string]any
		json.NewDecoder(r.Body).Decode(&envelope)
		mu.Lock()
		attempts++
		deliveryIDs = append(deliveryIDs, envelope["delivery_id"].(string))
		n := attempts
		mu.Unlock()

		if n < 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewClient(Config{URL: srv.URL, Backoff: time.Millisecond}, discard())
	if !client.Notify(context.Background(), "job-3", "job_summary", nil, "direct-42") {
		t.Fatal("delivery failed")
	}
	for _, id := range deliveryIDs {
		if id != "direct-42" {
			t.Fatalf("delivery ids = %v, want the supplied id on every attempt", deliveryIDs)
		}
	}

	// a blank supplied id still gets a minted one
	var minted string
	srv2 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var envelope map[string]any
		json.NewDecoder(r.Body).Decode(&envelope)
		minted, _ = envelope["delivery_id"].(string)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv2.Close()
	client = NewClient(Config{URL: srv2.URL, Backoff: time.Millisecond}, discard())
	if !client.Notify(context.Background(), "job-4", "job_summary", nil, "") {
		t.Fatal("delivery failed")
	}
	if minted == "" {
		t.Fatal("blank supplied id should fall back to a minted one")
	}
}

func TestNotifyGivesUpAfterAttempts(t *testing.T) {
	var attempts int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(Config{URL: srv.URL, Backoff: time.Millisecond}, discard())
	if client.Notify(context.Background(), "job-1", "job_summary", nil) {
		t.Fatal("delivery reported ok against a failing consumer")
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}
}

func TestNotifyDisabledWithoutURL(t *testing.T) {
	client := NewClient(Config{}, discard())
	if client.Enabled() {
		t.Fatal("enabled without URL")
	}
	if client.Notify(context.Background(), "job-1", "job_summary", nil) {
		t.Fatal("notify succeeded without URL")
	}
}
