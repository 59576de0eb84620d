package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/liqtrade/offer-extractor/internal/llm"
)

func completionServer(t *testing.T, content string, capture *map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("authorization = %q", auth)
		}
		if capture != nil {
			json.NewDecoder(r.Body).Decode(capture)
		}
		fmt.Fprintf(w, `{"choices": [{"message": {"content": %q}}]}`, content)
	}))
}

func newTestClient(baseURL string) *Client {
	return NewClient(Config{APIKey: "test-key", BaseURL: baseURL},
		slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestInterpretReturnsContent(t *testing.T) {
	var req map[string]any
	srv := completionServer(t, `{"products": [{"product_name": "Absolut 12x700ml"}]}`, &req)
	defer srv.Close()

	client := newTestClient(srv.URL)
	content, err := client.Interpret(context.Background(), llm.ExtractRequest{
		Rows:      [][]string{{"Absolut", "12x700ml"}},
		UnitTotal: 1,
	})
	if err != nil {
		t.Fatalf("interpret: %v", err)
	}

	products, perr := llm.ParseProducts(content)
	if perr != nil || len(products) != 1 {
		t.Fatalf("content unparsable: %v %v", products, perr)
	}

	if req["response_format"].(map[string]any)["type"] != "json_object" {
		t.Fatalf("response_format = %v", req["response_format"])
	}
	messages := req["messages"].([]any)
	if len(messages) != 2 {
		t.Fatalf("messages = %d", len(messages))
	}
	system := messages[0].(map[string]any)
	if system["role"] != "system" || system["content"] == "" {
		t.Fatalf("system message = %v", system)
	}
}

func TestInterpretServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "overloaded"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	if _, err := client.Interpret(context.Background(), llm.ExtractRequest{Text: "x", UnitTotal: 1}); err == nil {
		t.Fatal("no error from 429 response")
	}
}

func TestRateToEUR(t *testing.T) {
	srv := completionServer(t, `{"rate": 0.92}`, nil)
	defer srv.Close()

	client := newTestClient(srv.URL)
	rate, err := client.RateToEUR(context.Background(), "USD")
	if err != nil {
		t.Fatalf("rate: %v", err)
	}
	if rate != 0.92 {
		t.Fatalf("rate = %v", rate)
	}
}

func TestRateToEURRejectsNonPositive(t *testing.T) {
	srv := completionServer(t, `{"rate": 0}`, nil)
	defer srv.Close()

	client := newTestClient(srv.URL)
	if _, err := client.RateToEUR(context.Background(), "USD"); err == nil {
		t.Fatal("zero rate accepted")
	}
}
