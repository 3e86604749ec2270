package extract

import (
	"bytes"
	"context"
	"fmt"

	"github.com/go-audio/wav"
)

// transcribeAttachment decodes a WAV payload into mono float32 PCM and
// hands it to the configured Transcriber. Voice-memo attachments are folded
// into the parent document as an attachment section rather than becoming a
// sibling RawDocument, since the pipeline has no independent ASR stage.
func transcribeAttachment(ctx context.Context, raw RawDocument, opt Options) (string, error) {
	pcm, sampleRate, err := decodeWAV(raw.Content)
	if err != nil {
		return "", fmt.Errorf("decode wav %q: %w", raw.Filename, err)
	}
	return opt.Transcriber.Transcribe(ctx, pcm, sampleRate)
}

// decodeWAV reads a WAV file with go-audio/wav and converts the decoded PCM
// buffer to normalized mono float32 samples, the shape whisper.cpp's Go
// bindings expect (grounded in the teacher's cmd/whisper-go, which reads the
// RIFF header by hand; this repurposes the pack's already-declared
// go-audio/wav dependency to do the same job instead).
func decodeWAV(data []byte) ([]float32, int, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return nil, 0, fmt.Errorf("not a valid wav file")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, err
	}
	format := buf.Format
	bitDepth := dec.BitDepth
	if bitDepth == 0 {
		bitDepth = 16
	}
	maxVal := float32(int(1) << (bitDepth - 1))

	numChannels := 1
	if format != nil && format.NumChannels > 0 {
		numChannels = format.NumChannels
	}

	out := make([]float32, 0, len(buf.Data)/numChannels)
	for i := 0; i < len(buf.Data); i += numChannels {
		var sum float32
		for c := 0; c < numChannels && i+c < len(buf.Data); c++ {
			sum += float32(buf.Data[i+c]) / maxVal
		}
		out = append(out, sum/float32(numChannels))
	}

	sampleRate := 16000
	if format != nil && format.SampleRate > 0 {
		sampleRate = format.SampleRate
	}
	return out, sampleRate, nil
}
