// Package request validates incoming synthesis requests and owns the fixed
// voice and emotion-tag registries.
package request

import (
	"strings"

	"github.com/orpheuslabs/orpheusd/internal/config"
	"github.com/orpheuslabs/orpheusd/internal/protocol"
)

// Voices is the fixed set of voices the Orpheus model was trained on,
// in the order they are advertised.
var Voices = []string{"tara", "leah", "jess", "leo", "dan", "mia", "zac", "zoe"}

// EmotionTags is the closed vocabulary of inline vocal cues. Tags are
// embedded in text as "<laugh>" and interpreted by the backend; anything
// outside this list is passed through as plain text.
var EmotionTags = []string{"laugh", "chuckle", "sigh", "cough", "sniffle", "groan", "yawn", "gasp"}

// Request is a validated, immutable synthesis request.
type Request struct {
	Text              string
	Voice             string
	Temperature       float64
	TopP              float64
	RepetitionPenalty float64
}

// VoicesByLocale returns the voice list grouped by locale for /voices.
func VoicesByLocale() map[string][]string {
	return map[string][]string{"english": append([]string(nil), Voices...)}
}

// EmotionMarkers returns the emotion tags formatted as they appear in prompts.
func EmotionMarkers() []string {
	markers := make([]string, len(EmotionTags))
	for i, tag := range EmotionTags {
		markers[i] = "<" + tag + ">"
	}
	return markers
}

func validVoice(voice string) bool {
	for _, v := range Voices {
		if v == voice {
			return true
		}
	}
	return false
}

// Validate checks raw against the declared ranges and applies defaults for
// omitted fields. Out-of-range parameters are rejected, never clamped, so
// generation stays predictable. Pure: no side effects.
func Validate(raw protocol.SynthesisRequest, defaults config.SynthesisConfig) (Request, error) {
	text := strings.TrimSpace(raw.Text)
	if text == "" {
		return Request{}, protocol.Errorf(protocol.KindMissingText, "text must not be empty")
	}

	voice := raw.Voice
	if voice == "" {
		voice = defaults.DefaultVoice
	}
	if !validVoice(voice) {
		return Request{}, protocol.Errorf(protocol.KindUnknownVoice, "unknown voice %q", voice)
	}

	req := Request{
		Text:              text,
		Voice:             voice,
		Temperature:       defaults.Temperature,
		TopP:              defaults.TopP,
		RepetitionPenalty: defaults.RepetitionPenalty,
	}
	if raw.Temperature != nil {
		req.Temperature = *raw.Temperature
	}
	if raw.TopP != nil {
		req.TopP = *raw.TopP
	}
	if raw.RepetitionPenalty != nil {
		req.RepetitionPenalty = *raw.RepetitionPenalty
	}

	if req.Temperature < 0 || req.Temperature > 2 {
		return Request{}, protocol.Errorf(protocol.KindParameterOutOfRange, "temperature %v outside [0, 2]", req.Temperature)
	}
	if req.TopP <= 0 || req.TopP > 1 {
		return Request{}, protocol.Errorf(protocol.KindParameterOutOfRange, "top_p %v outside (0, 1]", req.TopP)
	}
	if req.RepetitionPenalty < 1 {
		return Request{}, protocol.Errorf(protocol.KindParameterOutOfRange, "repetition_penalty %v below 1", req.RepetitionPenalty)
	}
	return req, nil
}
