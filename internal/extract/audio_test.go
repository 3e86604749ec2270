package extract

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildWAV assembles a minimal valid PCM WAV file (mono, 16-bit) for tests,
// since go-audio/wav's decoder needs a real RIFF header to parse.
func buildWAV(samples []int16, sampleRate int) []byte {
	const bitsPerSample = 16
	const numChannels = 1
	byteRate := sampleRate * numChannels * bitsPerSample / 8
	blockAlign := numChannels * bitsPerSample / 8
	dataSize := len(samples) * 2

	buf := make([]byte, 0, 44+dataSize)
	buf = append(buf, "RIFF"...)
	buf = appendUint32(buf, uint32(36+dataSize))
	buf = append(buf, "WAVE"...)
	buf = append(buf, "fmt "...)
	buf = appendUint32(buf, 16)
	buf = appendUint16(buf, 1) // PCM
	buf = appendUint16(buf, uint16(numChannels))
	buf = appendUint32(buf, uint32(sampleRate))
	buf = appendUint32(buf, uint32(byteRate))
	buf = appendUint16(buf, uint16(blockAlign))
	buf = appendUint16(buf, bitsPerSample)
	buf = append(buf, "data"...)
	buf = appendUint32(buf, uint32(dataSize))
	for _, s := range samples {
		buf = appendUint16(buf, uint16(s))
	}
	return buf
}

func appendUint32(buf []byte, v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return append(buf, b...)
}

func appendUint16(buf []byte, v uint16) []byte {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, v)
	return append(buf, b...)
}

func TestDecodeWAV_MonoPCM(t *testing.T) {
	samples := []int16{0, 16384, -16384, 32767}
	data := buildWAV(samples, 16000)

	pcm, sampleRate, err := decodeWAV(data)
	require.NoError(t, err)
	assert.Equal(t, 16000, sampleRate)
	require.Len(t, pcm, len(samples))
	assert.InDelta(t, 0.5, pcm[1], 0.01)
}

func TestTranscribeAttachment_UsesTranscriber(t *testing.T) {
	data := buildWAV([]int16{0, 100, -100}, 8000)
	raw := RawDocument{Content: data, Filename: "memo.wav"}
	opt := Options{Transcriber: fakeTranscriber{text: "hello there"}}

	text, err := transcribeAttachment(context.Background(), raw, opt)
	require.NoError(t, err)
	assert.Equal(t, "hello there", text)
}
