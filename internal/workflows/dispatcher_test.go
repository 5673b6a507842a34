package workflows

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestTriggerActionPostsToWorkflowPath(t *testing.T) {
	var gotPath, gotXSRF, gotAuth string
	var gotPayload map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotXSRF = r.Header.Get("kbn-xsrf")
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotPayload)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	d := NewDispatcher(server.URL, "secret", "", time.Second)
	err := d.TriggerAction(context.Background(), "crm_update", map[string]any{"ticket_id": "TICK-1"})
	if err != nil {
		t.Fatalf("TriggerAction failed: %v", err)
	}

	if gotPath != "/api/workflows/execute/supportiq/resolve" {
		t.Errorf("unexpected path %q", gotPath)
	}
	if gotXSRF != "true" {
		t.Errorf("missing kbn-xsrf header, got %q", gotXSRF)
	}
	if gotAuth != "ApiKey secret" {
		t.Errorf("unexpected auth header %q", gotAuth)
	}
	if gotPayload["ticket_id"] != "TICK-1" {
		t.Errorf("payload not forwarded: %v", gotPayload)
	}
}

func TestTriggerActionUnknownActionIsNoOp(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer server.Close()

	d := NewDispatcher(server.URL, "", "", time.Second)
	if err := d.TriggerAction(context.Background(), "nonsuch", nil); err != nil {
		t.Fatalf("unknown action should not error, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 0 {
		t.Errorf("expected no HTTP calls for unknown action, got %d", calls)
	}
}

func TestTriggerActionRetriesOnServerError(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	d := NewDispatcher(server.URL, "", "", time.Second)
	if err := d.TriggerAction(context.Background(), "ghost_alert", map[string]any{"service": "payments"}); err != nil {
		t.Fatalf("expected retry to recover, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Errorf("expected 2 attempts, got %d", calls)
	}
}

func TestNotifyUsesSeverityEmoji(t *testing.T) {
	var gotText string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		gotText = body["text"]
	}))
	defer server.Close()

	d := NewDispatcher("http://kibana.invalid", "", server.URL, time.Second)
	if err := d.Notify(context.Background(), "ticket escalated", "critical"); err != nil {
		t.Fatalf("Notify failed: %v", err)
	}
	if !strings.HasPrefix(gotText, ":sos:") {
		t.Errorf("expected :sos: prefix, got %q", gotText)
	}
}

func TestNotifyWithoutWebhookIsNoOp(t *testing.T) {
	d := NewDispatcher("http://kibana.invalid", "", "", time.Second)
	if err := d.Notify(context.Background(), "hello", "info"); err != nil {
		t.Fatalf("expected nil without webhook, got %v", err)
	}
}
