package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Synthesis.DefaultVoice != "tara" {
		t.Fatalf("expected default voice tara, got %q", cfg.Synthesis.DefaultVoice)
	}
	if cfg.Synthesis.SampleRate != 24000 {
		t.Fatalf("expected default sample rate 24000, got %d", cfg.Synthesis.SampleRate)
	}
	if cfg.Synthesis.Workers != 1 {
		t.Fatalf("expected single worker default, got %d", cfg.Synthesis.Workers)
	}
	if cfg.Backend.Endpoint != "http://localhost:11434" {
		t.Fatalf("expected default endpoint, got %q", cfg.Backend.Endpoint)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ORPHEUS_MODEL_NAME", "orpheus-3b")
	t.Setenv("ORPHEUS_BACKEND_MODE", "ollama")
	t.Setenv("ORPHEUS_BACKEND_ENDPOINT", "http://ollama:11434")
	t.Setenv("ORPHEUS_TEMPERATURE", "0.8")
	t.Setenv("ORPHEUS_TOP_P", "0.95")
	t.Setenv("ORPHEUS_REPEAT_PENALTY", "1.3")
	t.Setenv("ORPHEUS_SAMPLE_RATE", "22050")
	t.Setenv("ORPHEUS_WORKERS", "2")
	t.Setenv("ORPHEUS_DECODER_MODE", "exec")
	t.Setenv("ORPHEUS_DECODER_COMMAND", "snac-decode --stream")
	t.Setenv("ORPHEUS_BUS_ENABLED", "true")
	t.Setenv("ORPHEUS_BUS_SERVERS", "nats://one:4222, nats://two:4222")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Backend.Model != "orpheus-3b" {
		t.Fatalf("expected model override, got %q", cfg.Backend.Model)
	}
	if cfg.Backend.Mode != "ollama" {
		t.Fatalf("expected backend mode override")
	}
	if cfg.Synthesis.Temperature != 0.8 || cfg.Synthesis.TopP != 0.95 || cfg.Synthesis.RepetitionPenalty != 1.3 {
		t.Fatalf("expected sampling overrides, got %+v", cfg.Synthesis)
	}
	if cfg.Synthesis.SampleRate != 22050 {
		t.Fatalf("expected sample rate override, got %d", cfg.Synthesis.SampleRate)
	}
	if cfg.Synthesis.Workers != 2 {
		t.Fatalf("expected workers override, got %d", cfg.Synthesis.Workers)
	}
	if cfg.Synthesis.Decoder.Mode != "exec" || cfg.Synthesis.Decoder.Command != "snac-decode --stream" {
		t.Fatalf("expected decoder override, got %+v", cfg.Synthesis.Decoder)
	}
	if len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected 2 bus servers, got %v", cfg.Bus.Servers)
	}
}

func TestValidateRejectsTokenBackendWithoutDecoder(t *testing.T) {
	t.Setenv("ORPHEUS_BACKEND_MODE", "ollama")

	if _, err := Load(""); err == nil {
		t.Fatal("expected error for ollama backend with passthrough decoder")
	}
}

func TestValidateRejectsBadWorkerCount(t *testing.T) {
	t.Setenv("ORPHEUS_WORKERS", "0")

	if _, err := Load(""); err == nil {
		t.Fatal("expected error for zero workers")
	}
}
