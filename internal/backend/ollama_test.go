package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/orpheuslabs/orpheusd/internal/config"
	"github.com/orpheuslabs/orpheusd/internal/protocol"
)

func ollamaCfg(endpoint string) config.BackendConfig {
	cfg := config.Default().Backend
	cfg.Mode = "ollama"
	cfg.Endpoint = endpoint
	return cfg
}

func testRequest() Request {
	return Request{
		SessionID: "s1",
		Prompt:    BuildPrompt("tara", "hello"),
		Params:    SamplingParams{Temperature: 0.6, TopP: 0.9, RepetitionPenalty: 1.1},
		MaxUnits:  4096,
	}
}

func TestOllamaStreamsUnitsInOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		fmt.Fprintln(w, `{"response":"<custom_token_10>","done":false}`)
		fmt.Fprintln(w, `{"response":"<custom_token_11>","done":false}`)
		fmt.Fprintln(w, `{"response":"","done":true}`)
	}))
	defer srv.Close()

	gen := NewOllamaGenerator(ollamaCfg(srv.URL))
	var tokens []string
	err := gen.Generate(context.Background(), testRequest(), func(u Unit) error {
		tokens = append(tokens, u.Token)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tokens) != 3 {
		t.Fatalf("expected 3 units, got %d", len(tokens))
	}
	if tokens[0] != "<custom_token_10>" || tokens[1] != "<custom_token_11>" {
		t.Fatalf("units out of order: %v", tokens)
	}
}

func TestOllamaConnectionRefusedIsUnavailable(t *testing.T) {
	gen := NewOllamaGenerator(ollamaCfg("http://127.0.0.1:1"))
	err := gen.Generate(context.Background(), testRequest(), func(Unit) error { return nil })
	if kind, ok := protocol.KindOf(err); !ok || kind != protocol.KindBackendUnavailable {
		t.Fatalf("expected backend_unavailable, got %v", err)
	}
}

func TestOllamaMalformedLineIsProtocolError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `not json at all`)
	}))
	defer srv.Close()

	gen := NewOllamaGenerator(ollamaCfg(srv.URL))
	err := gen.Generate(context.Background(), testRequest(), func(Unit) error { return nil })
	if kind, ok := protocol.KindOf(err); !ok || kind != protocol.KindBackendProtocolError {
		t.Fatalf("expected backend_protocol_error, got %v", err)
	}
}

func TestOllamaErrorStatusIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	gen := NewOllamaGenerator(ollamaCfg(srv.URL))
	err := gen.Generate(context.Background(), testRequest(), func(Unit) error { return nil })
	if kind, ok := protocol.KindOf(err); !ok || kind != protocol.KindBackendUnavailable {
		t.Fatalf("expected backend_unavailable, got %v", err)
	}
}

func TestOllamaMaxUnitsCapStopsCleanly(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for i := 0; i < 100; i++ {
			fmt.Fprintf(w, "{\"response\":\"t%d\",\"done\":false}\n", i)
		}
		fmt.Fprintln(w, `{"response":"","done":true}`)
	}))
	defer srv.Close()

	req := testRequest()
	req.MaxUnits = 5
	gen := NewOllamaGenerator(ollamaCfg(srv.URL))
	count := 0
	err := gen.Generate(context.Background(), req, func(Unit) error {
		count++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 5 {
		t.Fatalf("expected cap at 5 units, got %d", count)
	}
}

func TestOllamaConsumerErrorAbortsRun(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"response":"a","done":false}`)
		fmt.Fprintln(w, `{"response":"b","done":false}`)
		fmt.Fprintln(w, `{"response":"","done":true}`)
	}))
	defer srv.Close()

	sentinel := errors.New("stop")
	gen := NewOllamaGenerator(ollamaCfg(srv.URL))
	err := gen.Generate(context.Background(), testRequest(), func(Unit) error { return sentinel })
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected consumer error back, got %v", err)
	}
}

func TestBuildPromptDeterministic(t *testing.T) {
	a := BuildPrompt("tara", "Hello <laugh> world")
	b := BuildPrompt("tara", "Hello <laugh> world")
	if a != b {
		t.Fatal("prompt construction must be deterministic")
	}
	if a != "tara: Hello <laugh> world" {
		t.Fatalf("unexpected prompt %q", a)
	}
}
