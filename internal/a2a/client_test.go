package a2a

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func envelope(text string) string {
	env := map[string]any{
		"result": map[string]any{
			"status": map[string]any{
				"message": map[string]any{
					"parts": []map[string]any{
						{"kind": "text", "text": text},
					},
				},
			},
		},
	}
	data, _ := json.Marshal(env)
	return string(data)
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "test-key", 5*time.Second), srv
}

func TestSendUnknownProviderFailsBeforeNetwork(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	})

	_, err := client.Send(context.Background(), Provider("oracle"), "hello", SendOptions{})

	var unknownErr *UnknownProviderError
	if !errors.As(err, &unknownErr) {
		t.Fatalf("Send() error = %v, want UnknownProviderError", err)
	}
	if got := calls.Load(); got != 0 {
		t.Fatalf("server received %d calls, want 0", got)
	}
}

func TestSendParsesEnvelopeAndJSON(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if !strings.HasSuffix(r.URL.Path, "/supportiq_watcher") {
			t.Errorf("path = %s, want supportiq_watcher suffix", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "ApiKey test-key" {
			t.Errorf("Authorization = %q", got)
		}

		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		if req.Method != "message/send" {
			t.Errorf("rpc method = %q, want message/send", req.Method)
		}
		if len(req.Params.Message.Parts) == 0 || req.Params.Message.Parts[0].Text != "enrich this" {
			t.Errorf("message parts = %+v", req.Params.Message.Parts)
		}

		fmt.Fprint(w, envelope(`{"ticket_id": "TKT-1", "enrichment": {"similar_count": 3}}`))
	})

	resp, err := client.Send(context.Background(), ProviderWatcher, "enrich this", SendOptions{})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if !resp.Success {
		t.Fatal("Success = false, want true")
	}
	if got := resp.Payload.Fields["ticket_id"]; got != "TKT-1" {
		t.Fatalf("ticket_id = %v, want TKT-1", got)
	}
	if resp.SessionID == "" || resp.RequestID == "" {
		t.Fatal("session and request ids must be assigned")
	}
}

func TestSendStripsCodeFence(t *testing.T) {
	reply := "```json\n{\"quality_score\": 0.8, \"decision\": \"APPROVED\"}\n```"
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, envelope(reply))
	})

	resp, err := client.Send(context.Background(), ProviderCritic, "evaluate", SendOptions{})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if !resp.Success {
		t.Fatal("Success = false, want true")
	}
	if got := resp.Payload.Fields["decision"]; got != "APPROVED" {
		t.Fatalf("decision = %v, want APPROVED", got)
	}
}

func TestSendUnparseableTextIsDegradedNotError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, envelope("I could not produce JSON, sorry."))
	})

	resp, err := client.Send(context.Background(), ProviderSolver, "resolve", SendOptions{})
	if err != nil {
		t.Fatalf("Send() error = %v, want nil for unparseable text", err)
	}
	if resp.Success {
		t.Fatal("Success = true, want false")
	}
	if resp.Payload.Parsed() {
		t.Fatal("Payload.Parsed() = true, want false")
	}
	if resp.Payload.Raw != "I could not produce JSON, sorry." {
		t.Fatalf("Raw = %q", resp.Payload.Raw)
	}
}

func TestSendMalformedEnvelopeFallsBackToBody(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"unexpected": true}`)
	})

	resp, err := client.Send(context.Background(), ProviderJudge, "triage", SendOptions{})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	// The raw body happens to be a JSON object, so the fallback still parses.
	if !resp.Success {
		t.Fatal("Success = false, want true")
	}
	if got, ok := resp.Payload.Fields["unexpected"].(bool); !ok || !got {
		t.Fatalf("Fields = %v", resp.Payload.Fields)
	}
}

func TestSendNonSuccessStatusFails(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "provider exploded", http.StatusBadGateway)
	})

	_, err := client.Send(context.Background(), ProviderWatcher, "enrich", SendOptions{})

	var callErr *CallFailedError
	if !errors.As(err, &callErr) {
		t.Fatalf("Send() error = %v, want CallFailedError", err)
	}
	if callErr.StatusCode != http.StatusBadGateway {
		t.Fatalf("StatusCode = %d, want 502", callErr.StatusCode)
	}
	if !strings.Contains(callErr.Body, "provider exploded") {
		t.Fatalf("Body = %q", callErr.Body)
	}
}

func TestCardIsMemoized(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, `{"name": "SupportIQ Watcher", "description": "intake agent"}`)
	})

	for i := 0; i < 3; i++ {
		card, err := client.Card(context.Background(), ProviderWatcher)
		if err != nil {
			t.Fatalf("Card() error = %v", err)
		}
		if card.Name != "SupportIQ Watcher" {
			t.Fatalf("Name = %q", card.Name)
		}
	}

	if got := calls.Load(); got != 1 {
		t.Fatalf("server received %d calls, want 1", got)
	}
}

func TestPingAllReportsPerProvider(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "supportiq_critic") {
			http.Error(w, "offline", http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"name": "ok"}`)
	})

	results := client.PingAll(context.Background())
	if len(results) != len(Providers()) {
		t.Fatalf("len(results) = %d, want %d", len(results), len(Providers()))
	}
	if results[ProviderCritic].Status != "error" {
		t.Fatalf("critic status = %q, want error", results[ProviderCritic].Status)
	}
	if results[ProviderWatcher].Status != "online" {
		t.Fatalf("watcher status = %q, want online", results[ProviderWatcher].Status)
	}
}
