package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-audio/wav"

	"github.com/orpheuslabs/orpheusd/internal/audio"
	"github.com/orpheuslabs/orpheusd/internal/backend"
	"github.com/orpheuslabs/orpheusd/internal/config"
	"github.com/orpheuslabs/orpheusd/internal/protocol"
	"github.com/orpheuslabs/orpheusd/internal/synth"
)

func testHandler(t *testing.T) http.Handler {
	t.Helper()
	cfg := config.Default()
	gen := backend.NewMockGenerator(cfg.Synthesis.SampleRate, cfg.Synthesis.Channels)
	decoders, err := audio.NewDecoderFactory(cfg.Synthesis.Decoder)
	if err != nil {
		t.Fatalf("decoder factory: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	manager, err := synth.NewManager(cfg, gen, decoders, nil, logger)
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	return New(manager, gen, logger).Routes()
}

func postJSON(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestTTSReturnsCompleteWAV(t *testing.T) {
	h := testHandler(t)
	rec := postJSON(t, h, "/tts", `{"text":"Hello <laugh> world","voice":"tara"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "audio/wav" {
		t.Fatalf("expected audio/wav, got %q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "tts_output_") {
		t.Fatalf("expected attachment disposition, got %q", cd)
	}

	dec := wav.NewDecoder(bytes.NewReader(rec.Body.Bytes()))
	if !dec.IsValidFile() {
		t.Fatal("response is not a valid wav file")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		t.Fatalf("decode wav: %v", err)
	}
	if buf.Format.SampleRate != 24000 || buf.Format.NumChannels != 1 {
		t.Fatalf("unexpected format %+v", buf.Format)
	}
	if len(buf.Data) == 0 {
		t.Fatal("expected non-empty audio")
	}
}

func TestValidationErrors(t *testing.T) {
	h := testHandler(t)
	cases := []struct {
		name string
		body string
		kind protocol.ErrorKind
	}{
		{"missing text", `{"text":""}`, protocol.KindMissingText},
		{"unknown voice", `{"text":"hi","voice":"unknown_voice_xyz"}`, protocol.KindUnknownVoice},
		{"temperature out of range", `{"text":"hi","temperature":5.0}`, protocol.KindParameterOutOfRange},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := postJSON(t, h, "/tts", tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}
			var resp protocol.ErrorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode error body: %v", err)
			}
			if resp.Kind != tc.kind {
				t.Fatalf("expected kind %s, got %s", tc.kind, resp.Kind)
			}
		})
	}
}

func TestBackendUnavailableIs503(t *testing.T) {
	cfg := config.Default()
	cfg.Backend.Mode = "ollama"
	cfg.Backend.Endpoint = "http://127.0.0.1:1"
	cfg.Synthesis.Decoder.Mode = "mock"

	gen := backend.NewOllamaGenerator(cfg.Backend)
	decoders, err := audio.NewDecoderFactory(cfg.Synthesis.Decoder)
	if err != nil {
		t.Fatalf("decoder factory: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	manager, err := synth.NewManager(cfg, gen, decoders, nil, logger)
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	h := New(manager, gen, logger).Routes()

	rec := postJSON(t, h, "/tts", `{"text":"hi"}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp protocol.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if resp.Kind != protocol.KindBackendUnavailable {
		t.Fatalf("expected backend_unavailable, got %s", resp.Kind)
	}
}

func TestStreamEmitsHeaderThenChunks(t *testing.T) {
	h := testHandler(t)
	rec := postJSON(t, h, "/tts/stream", `{"text":"streaming please"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := rec.Body.Bytes()
	if len(body) <= 44 {
		t.Fatalf("expected header plus audio, got %d bytes", len(body))
	}
	if string(body[0:4]) != "RIFF" || string(body[8:12]) != "WAVE" {
		t.Fatal("stream does not start with a wav header")
	}
}

func TestStreamMatchesBufferedOutput(t *testing.T) {
	h := testHandler(t)
	body := `{"text":"same request twice","voice":"zac"}`

	buffered := postJSON(t, h, "/tts", body)
	streamed := postJSON(t, h, "/tts/stream", body)

	if buffered.Code != http.StatusOK || streamed.Code != http.StatusOK {
		t.Fatalf("expected both 200, got %d and %d", buffered.Code, streamed.Code)
	}
	if !bytes.Equal(buffered.Body.Bytes()[44:], streamed.Body.Bytes()[44:]) {
		t.Fatal("streamed audio differs from buffered audio")
	}
}

func TestVoices(t *testing.T) {
	h := testHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/voices", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var voices map[string][]string
	if err := json.Unmarshal(rec.Body.Bytes(), &voices); err != nil {
		t.Fatalf("decode voices: %v", err)
	}
	english := voices["english"]
	if len(english) != 8 || english[0] != "tara" {
		t.Fatalf("unexpected voice list %v", english)
	}
}

func TestEmotions(t *testing.T) {
	h := testHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/emotions", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var emotions []string
	if err := json.Unmarshal(rec.Body.Bytes(), &emotions); err != nil {
		t.Fatalf("decode emotions: %v", err)
	}
	if len(emotions) != 8 || emotions[0] != "<laugh>" {
		t.Fatalf("unexpected emotion list %v", emotions)
	}
}

func TestHealthWithMockBackend(t *testing.T) {
	h := testHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp protocol.HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if resp.Status != "healthy" || resp.BackendStatus != "connected" {
		t.Fatalf("unexpected health %+v", resp)
	}
}

func TestInvalidJSONBodyIs400(t *testing.T) {
	h := testHandler(t)
	rec := postJSON(t, h, "/tts", `{not json`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
