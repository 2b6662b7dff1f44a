package platform

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/trieungoctam/chatbot-orchestrator/internal/job"
	"github.com/trieungoctam/chatbot-orchestrator/pkg/config"
	"github.com/trieungoctam/chatbot-orchestrator/pkg/log"
)

func TestNotifier_Notify(t *testing.T) {
	var gotPath string
	var gotBody map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewNotifier(config.PlatformConfig{BaseURL: srv.URL}, log.Nop())
	err := n.Notify(context.Background(), "conv-1", &job.Result{ResponseText: "hi", Intent: "greet"})
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if gotPath != "/api/v1/conversations/conv-1/reply" {
		t.Errorf("path: %q", gotPath)
	}
	if gotBody["response_text"] != "hi" {
		t.Errorf("body: %v", gotBody)
	}
}

func TestNotifier_NoBaseURLIsNoop(t *testing.T) {
	n := NewNotifier(config.PlatformConfig{}, log.Nop())
	if err := n.Notify(context.Background(), "conv-1", &job.Result{}); err != nil {
		t.Errorf("Notify without base URL: %v", err)
	}
}
