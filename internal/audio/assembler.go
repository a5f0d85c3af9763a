package audio

import (
	"bytes"
	"context"

	"github.com/orpheuslabs/orpheusd/internal/backend"
)

// FileBuilder accumulates decoded PCM for buffered (non-streaming)
// responses and packages it as one WAV file.
type FileBuilder struct {
	format Format
	dec    Decoder
	pcm    bytes.Buffer
}

func NewFileBuilder(format Format, dec Decoder) *FileBuilder {
	return &FileBuilder{format: format, dec: dec}
}

// Consume decodes one unit and appends its samples.
func (b *FileBuilder) Consume(u backend.Unit) error {
	pcm, err := b.dec.Decode(u)
	if err != nil {
		return err
	}
	_, _ = b.pcm.Write(pcm)
	return nil
}

// PCMBytes returns the accumulated raw sample count in bytes.
func (b *FileBuilder) PCMBytes() int { return b.pcm.Len() }

// Bytes finalizes the WAV file.
func (b *FileBuilder) Bytes() ([]byte, error) {
	return EncodeWAV(b.pcm.Bytes(), b.format)
}

// StreamAssembler decodes units and emits frame-aligned chunks on a
// bounded channel. When the channel is full, Consume blocks, which pauses
// the generation pull — that bound is the streaming backpressure.
type StreamAssembler struct {
	format     Format
	dec        Decoder
	chunkBytes int
	pending    []byte
	out        chan []byte
}

// NewStreamAssembler sizes chunks to chunkDurationMS of audio, rounded
// down to a whole number of sample frames so a chunk never splits a sample.
func NewStreamAssembler(format Format, dec Decoder, chunkDurationMS, buffer int) *StreamAssembler {
	frame := format.FrameBytes()
	chunkBytes := format.SampleRate * chunkDurationMS / 1000 * frame
	if chunkBytes < frame {
		chunkBytes = frame
	}
	chunkBytes -= chunkBytes % frame
	return &StreamAssembler{
		format:     format,
		dec:        dec,
		chunkBytes: chunkBytes,
		out:        make(chan []byte, buffer),
	}
}

// Header returns the streaming-safe WAV header, emitted before any chunk.
func (s *StreamAssembler) Header() []byte { return StreamHeader(s.format) }

// Chunks is the outbound chunk sequence, in strict generation order.
// It is closed by CloseSend once generation is finished.
func (s *StreamAssembler) Chunks() <-chan []byte { return s.out }

// Consume decodes one unit and emits any complete chunks.
func (s *StreamAssembler) Consume(ctx context.Context, u backend.Unit) error {
	pcm, err := s.dec.Decode(u)
	if err != nil {
		return err
	}
	s.pending = append(s.pending, pcm...)
	for len(s.pending) >= s.chunkBytes {
		chunk := make([]byte, s.chunkBytes)
		copy(chunk, s.pending[:s.chunkBytes])
		s.pending = s.pending[s.chunkBytes:]
		if err := s.send(ctx, chunk); err != nil {
			return err
		}
	}
	return nil
}

// Flush emits the remaining sample frames after the final unit. A trailing
// partial frame would mean a desynchronized decoder; it is dropped rather
// than emitted as a torn sample.
func (s *StreamAssembler) Flush(ctx context.Context) error {
	frame := s.format.FrameBytes()
	rest := len(s.pending) - len(s.pending)%frame
	if rest == 0 {
		s.pending = nil
		return nil
	}
	chunk := make([]byte, rest)
	copy(chunk, s.pending[:rest])
	s.pending = nil
	return s.send(ctx, chunk)
}

// CloseSend marks the end of the chunk sequence.
func (s *StreamAssembler) CloseSend() { close(s.out) }

func (s *StreamAssembler) send(ctx context.Context, chunk []byte) error {
	select {
	case s.out <- chunk:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
