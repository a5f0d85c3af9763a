package backend

import (
	"context"
	"encoding/binary"
	"hash/fnv"
)

const (
	mockUnits          = 3
	mockSamplesPerUnit = 240
	mockBytesPerSample = 2
)

type mockGenerator struct {
	sampleRate int
	channels   int
}

// NewMockGenerator emits a short, fully deterministic PCM unit sequence
// derived from the prompt. Identical requests always produce identical
// output, which the audio tests rely on.
func NewMockGenerator(sampleRate, channels int) Generator {
	return &mockGenerator{sampleRate: sampleRate, channels: channels}
}

func (m *mockGenerator) Generate(ctx context.Context, req Request, consumer func(Unit) error) error {
	h := fnv.New32a()
	_, _ = h.Write([]byte(req.Prompt))
	seed := h.Sum32()

	units := mockUnits
	if req.MaxUnits > 0 && req.MaxUnits < units {
		units = req.MaxUnits
	}
	for i := 0; i < units; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		pcm := make([]byte, mockSamplesPerUnit*mockBytesPerSample*m.channels)
		for s := 0; s < len(pcm); s += 2 {
			sample := int16((seed + uint32(i*31) + uint32(s*7)) % 8192)
			binary.LittleEndian.PutUint16(pcm[s:], uint16(sample))
		}
		if err := consumer(Unit{Index: i, PCM: pcm, Final: i == units-1}); err != nil {
			return err
		}
	}
	return nil
}

func (m *mockGenerator) Ping(ctx context.Context) error { return nil }
