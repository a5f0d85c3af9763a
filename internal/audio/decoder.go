// Package audio converts backend generation units into PCM and frames the
// result as WAV, either as one complete file or as a live chunk stream.
package audio

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"

	"github.com/orpheuslabs/orpheusd/internal/backend"
	"github.com/orpheuslabs/orpheusd/internal/config"
)

// Decoder turns one generation unit into 16-bit little-endian PCM bytes.
// A decoder instance belongs to a single session; any running decode state
// lives inside the instance (or its external process), never in a global.
type Decoder interface {
	Decode(u backend.Unit) ([]byte, error)
	Close() error
}

// DecoderFactory creates a fresh Decoder per session.
type DecoderFactory func() (Decoder, error)

// NewDecoderFactory selects the configured decode strategy.
func NewDecoderFactory(cfg config.DecoderConfig) (DecoderFactory, error) {
	switch cfg.Mode {
	case "passthrough":
		return func() (Decoder, error) { return passthroughDecoder{}, nil }, nil
	case "exec":
		return newExecDecoderFactory(cfg.Command)
	case "mock":
		return func() (Decoder, error) { return mockDecoder{}, nil }, nil
	default:
		return nil, fmt.Errorf("unknown decoder mode %q", cfg.Mode)
	}
}

// passthroughDecoder is for backends whose units already carry PCM.
type passthroughDecoder struct{}

func (passthroughDecoder) Decode(u backend.Unit) ([]byte, error) { return u.PCM, nil }
func (passthroughDecoder) Close() error                          { return nil }

// mockDecoder produces deterministic PCM from token text, used in tests and
// development against token-emitting backends without a real codec runner.
type mockDecoder struct{}

func (mockDecoder) Decode(u backend.Unit) ([]byte, error) {
	if len(u.PCM) > 0 {
		return u.PCM, nil
	}
	if u.Token == "" {
		return nil, nil
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(u.Token))
	seed := h.Sum32()
	pcm := make([]byte, 120*2)
	for s := 0; s < len(pcm); s += 2 {
		binary.LittleEndian.PutUint16(pcm[s:], uint16(int16((seed+uint32(s*13))%4096)))
	}
	return pcm, nil
}

func (mockDecoder) Close() error { return nil }
