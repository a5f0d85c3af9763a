// Package backend drives the generative model that turns a voice-prefixed
// prompt into incremental generation output.
package backend

import (
	"context"
	"fmt"

	"github.com/orpheuslabs/orpheusd/internal/config"
	"github.com/orpheuslabs/orpheusd/internal/request"
)

// SamplingParams are the decoding parameters forwarded to the backend.
type SamplingParams struct {
	Temperature       float64
	TopP              float64
	RepetitionPenalty float64
}

// Request describes one generation run.
type Request struct {
	SessionID string
	Prompt    string
	Params    SamplingParams
	MaxUnits  int
}

// Unit is one incremental output item. Token-bearing backends fill Token
// and leave PCM for the decoder; runner backends that decode out-of-process
// fill PCM directly. Final marks the backend's end-of-sequence signal.
type Unit struct {
	Index int
	Token string
	PCM   []byte
	Final bool
}

// Generator is the uniform contract over concrete backends. The consumer is
// invoked once per unit, in generation order; a consumer error aborts the
// run. The sequence is finite and non-restartable.
type Generator interface {
	Generate(ctx context.Context, req Request, consumer func(Unit) error) error
}

// Pinger is implemented by backends that can cheaply report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// BuildPrompt formats text with the voice prefix Orpheus expects.
// Deterministic: the same request always yields the same prompt.
func BuildPrompt(voice, text string) string {
	return voice + ": " + text
}

// NewRequest builds a backend request from a validated synthesis request.
func NewRequest(sessionID string, req request.Request, maxUnits int) Request {
	return Request{
		SessionID: sessionID,
		Prompt:    BuildPrompt(req.Voice, req.Text),
		Params: SamplingParams{
			Temperature:       req.Temperature,
			TopP:              req.TopP,
			RepetitionPenalty: req.RepetitionPenalty,
		},
		MaxUnits: maxUnits,
	}
}

// New selects the configured backend.
func New(cfg config.BackendConfig, synth config.SynthesisConfig) (Generator, error) {
	switch cfg.Mode {
	case "ollama":
		return NewOllamaGenerator(cfg), nil
	case "exec":
		return NewExecGenerator(cfg, synth.SampleRate, synth.Channels)
	case "mock":
		return NewMockGenerator(synth.SampleRate, synth.Channels), nil
	default:
		return nil, fmt.Errorf("unknown backend mode %q", cfg.Mode)
	}
}
