package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ollama/ollama/api"
)

func newChatServer(t *testing.T, content string, got *api.ChatRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(got); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(api.ChatResponse{
			Model:   got.Model,
			Message: api.Message{Role: "assistant", Content: content},
			Done:    true,
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNewClient(t *testing.T) {
	for _, u := range []string{"http://localhost:11434", "http://localhost:11435/api/chat"} {
		if _, err := NewClient(u); err != nil {
			t.Errorf("NewClient(%q) failed: %v", u, err)
		}
	}
	for _, u := range []string{"", "localhost", "://bad"} {
		if _, err := NewClient(u); err == nil {
			t.Errorf("NewClient(%q) should fail", u)
		}
	}
}

func TestLocateRegions(t *testing.T) {
	var got api.ChatRequest
	answer := `{"regions":[{"label":"face","confidence":0.92,"box":{"x":0.1,"y":0.2,"w":0.3,"h":0.4}},],"description":"a person"}`
	srv := newChatServer(t, answer, &got)

	c, err := NewClient(srv.URL + "/api/chat")
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	res, err := c.LocateRegions(context.Background(), "openbmb/minicpm-v4.5", "find faces", "aGVsbG8=")
	if err != nil {
		t.Fatalf("LocateRegions failed: %v", err)
	}
	if len(res.Regions) != 1 || res.Regions[0].Label != "face" || res.Description != "a person" {
		t.Errorf("unexpected result %+v", res)
	}

	if got.Model != "openbmb/minicpm-v4.5" {
		t.Errorf("unexpected model %q", got.Model)
	}
	if len(got.Messages) != 1 || len(got.Messages[0].Images) != 1 || string(got.Messages[0].Images[0]) != "hello" {
		t.Errorf("image not forwarded: %+v", got.Messages)
	}
	if got.Options["num_ctx"] == nil {
		t.Error("expected minicpm specific options")
	}
}

func TestLocateRegionsErrors(t *testing.T) {
	var got api.ChatRequest
	srv := newChatServer(t, "I cannot help with that.", &got)
	c, _ := NewClient(srv.URL)

	if _, err := c.LocateRegions(context.Background(), "llava", "p", "aGVsbG8="); err == nil {
		t.Error("expected error for a non JSON answer")
	}
	if _, err := c.LocateRegions(context.Background(), "llava", "p", "%%%"); err == nil {
		t.Error("expected error for invalid base64")
	}
}

func TestSimpleQuery(t *testing.T) {
	var got api.ChatRequest
	srv := newChatServer(t, "A gray square.", &got)
	c, _ := NewClient(srv.URL)

	answer, err := c.SimpleQuery(context.Background(), "llava", "What do you see?", "aGVsbG8=")
	if err != nil {
		t.Fatalf("SimpleQuery failed: %v", err)
	}
	if answer != "A gray square." {
		t.Errorf("unexpected answer %q", answer)
	}
	if got.Options != nil {
		t.Errorf("simple query should not set options, got %v", got.Options)
	}
}
