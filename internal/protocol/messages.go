package protocol

import "time"

// SynthesisRequest is the JSON body accepted by /tts and /tts/stream.
// Sampling parameters are pointers so an omitted field is distinguishable
// from an explicit zero; defaults are applied during validation.
type SynthesisRequest struct {
	Text              string   `json:"text"`
	Voice             string   `json:"voice,omitempty"`
	Temperature       *float64 `json:"temperature,omitempty"`
	TopP              *float64 `json:"top_p,omitempty"`
	RepetitionPenalty *float64 `json:"repetition_penalty,omitempty"`
}

// ErrorResponse is the JSON error body returned on any non-2xx response.
type ErrorResponse struct {
	Error string    `json:"error"`
	Kind  ErrorKind `json:"kind"`
}

// HealthResponse reports service liveness and backend reachability.
type HealthResponse struct {
	Status        string `json:"status"`
	BackendStatus string `json:"backend_status"`
	Message       string `json:"message,omitempty"`
}

// AudioChunk mirrors one emitted audio chunk on the bus.
type AudioChunk struct {
	SessionID  string `json:"session_id"`
	Sequence   int    `json:"sequence"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
	PCM        []byte `json:"pcm"`
	Final      bool   `json:"final"`
}

// SynthesisDone signals completion of one session on the bus.
type SynthesisDone struct {
	SessionID string    `json:"session_id"`
	Completed bool      `json:"completed"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	SubjectAudioPrefix   = "tts.audio"
	SubjectSynthesisDone = "tts.done"
)
