package extract

import "context"

// OCREngine is the consumed image-in/text-out collaborator. Confidence is
// in [0,1]; extractors fall back to VisualLLM when it is below
// Options.VisualLLMThreshold.
type OCREngine interface {
	Recognize(ctx context.Context, imageBytes []byte, mimeType string) (text string, confidence float64, err error)
}

// VisualLLM is the consumed visual-LLM collaborator, returning structured
// text plus a coarse summary for a page image that defeated both
// embedded-text extraction and OCR.
type VisualLLM interface {
	DescribePage(ctx context.Context, imageBytes []byte, mimeType string) (text, summary string, err error)
}

// Transcriber is the consumed speech-to-text collaborator backing the audio
// attachment path, grounded on the teacher's cmd/whisper-go + whisper.cpp
// bindings.
type Transcriber interface {
	Transcribe(ctx context.Context, pcm []float32, sampleRate int) (text string, err error)
}

// Options configures format dispatch and the OCR/visual-LLM/audio fallback
// chain. Zero-valued thresholds fall back to sane defaults in Extract.
type Options struct {
	OCR         OCREngine
	Visual      VisualLLM
	Transcriber Transcriber

	// TextDensityThreshold is the minimum average extracted-characters-per-
	// page below which a PDF page is treated as image-only and routed to
	// OCR.
	TextDensityThreshold float64
	// DictionaryWordRatioThreshold: OCR output below this ratio of
	// recognized dictionary words is considered a failure and triggers the
	// visual-LLM fallback.
	DictionaryWordRatioThreshold float64
	// VisualLLMConfidenceThreshold: OCR confidence scores below this value
	// also trigger the visual-LLM fallback, independent of word ratio.
	VisualLLMConfidenceThreshold float64
	// MaxContentChars bounds extracted text length; 0 disables the bound.
	MaxContentChars int
	// MaxConcurrentImageExtractions bounds how many OCR/visual-LLM
	// extractions may run at once process-wide.
	MaxConcurrentImageExtractions int
}

// DefaultOptions returns the package's documented defaults.
func DefaultOptions() Options {
	return Options{
		TextDensityThreshold:           200,
		DictionaryWordRatioThreshold:   0.5,
		VisualLLMConfidenceThreshold:   0.5,
		MaxContentChars:               0,
		MaxConcurrentImageExtractions: 2,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.TextDensityThreshold == 0 {
		o.TextDensityThreshold = d.TextDensityThreshold
	}
	if o.DictionaryWordRatioThreshold == 0 {
		o.DictionaryWordRatioThreshold = d.DictionaryWordRatioThreshold
	}
	if o.VisualLLMConfidenceThreshold == 0 {
		o.VisualLLMConfidenceThreshold = d.VisualLLMConfidenceThreshold
	}
	if o.MaxConcurrentImageExtractions == 0 {
		o.MaxConcurrentImageExtractions = d.MaxConcurrentImageExtractions
	}
	return o
}

func truncate(s string, maxChars int) (string, bool) {
	if maxChars <= 0 {
		return s, false
	}
	r := []rune(s)
	if len(r) <= maxChars {
		return s, false
	}
	return string(r[:maxChars]), true
}
