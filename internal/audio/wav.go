package audio

import (
	"encoding/binary"
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const bitDepth = 16

// Format is the process-wide output audio format.
type Format struct {
	SampleRate int
	Channels   int
}

// FrameBytes is the size of one full sample frame; chunk boundaries are
// always multiples of this.
func (f Format) FrameBytes() int { return f.Channels * bitDepth / 8 }

// EncodeWAV wraps raw 16-bit LE PCM in a complete WAV container whose
// declared data length equals exactly len(pcm).
func EncodeWAV(pcm []byte, f Format) ([]byte, error) {
	if len(pcm)%2 != 0 {
		return nil, fmt.Errorf("pcm payload not sample aligned")
	}
	samples := make([]int, len(pcm)/2)
	for i := range samples {
		samples[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}
	buffer := &goaudio.IntBuffer{
		Format: &goaudio.Format{NumChannels: f.Channels, SampleRate: f.SampleRate},
		Data:   samples,
	}

	ws := &seekBuffer{}
	enc := wav.NewEncoder(ws, f.SampleRate, bitDepth, f.Channels, 1)
	if err := enc.Write(buffer); err != nil {
		return nil, fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("close wav encoder: %w", err)
	}
	return ws.data, nil
}

// StreamHeader returns a 44-byte WAV header with the conventional
// 0xFFFFFFFF streaming placeholder in the RIFF and data size fields, for
// responses whose total length is unknown up front.
func StreamHeader(f Format) []byte {
	const unknown = 0xFFFFFFFF
	byteRate := f.SampleRate * f.Channels * bitDepth / 8

	h := make([]byte, 44)
	copy(h[0:4], "RIFF")
	binary.LittleEndian.PutUint32(h[4:8], unknown)
	copy(h[8:12], "WAVE")
	copy(h[12:16], "fmt ")
	binary.LittleEndian.PutUint32(h[16:20], 16)
	binary.LittleEndian.PutUint16(h[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(h[22:24], uint16(f.Channels))
	binary.LittleEndian.PutUint32(h[24:28], uint32(f.SampleRate))
	binary.LittleEndian.PutUint32(h[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(h[32:34], uint16(f.FrameBytes()))
	binary.LittleEndian.PutUint16(h[34:36], bitDepth)
	copy(h[36:40], "data")
	binary.LittleEndian.PutUint32(h[40:44], unknown)
	return h
}

// seekBuffer is an in-memory io.WriteSeeker for the wav encoder, which
// rewrites the header size fields on Close.
type seekBuffer struct {
	data []byte
	pos  int
}

func (b *seekBuffer) Write(p []byte) (int, error) {
	if need := b.pos + len(p); need > len(b.data) {
		grown := make([]byte, need)
		copy(grown, b.data)
		b.data = grown
	}
	copy(b.data[b.pos:], p)
	b.pos += len(p)
	return len(p), nil
}

func (b *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	var pos int64
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = int64(b.pos) + offset
	case io.SeekEnd:
		pos = int64(len(b.data)) + offset
	default:
		return 0, fmt.Errorf("invalid whence %d", whence)
	}
	if pos < 0 {
		return 0, fmt.Errorf("negative seek position")
	}
	b.pos = int(pos)
	return pos, nil
}
