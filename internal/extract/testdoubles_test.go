package extract

import "context"

type fakeOCR struct {
	text       string
	confidence float64
	err        error
}

func (f fakeOCR) Recognize(_ context.Context, _ []byte, _ string) (string, float64, error) {
	return f.text, f.confidence, f.err
}

type fakeVisual struct {
	text    string
	summary string
	err     error
}

func (f fakeVisual) DescribePage(_ context.Context, _ []byte, _ string) (string, string, error) {
	return f.text, f.summary, f.err
}

type fakeTranscriber struct {
	text string
	err  error
}

func (f fakeTranscriber) Transcribe(_ context.Context, _ []float32, _ int) (string, error) {
	return f.text, f.err
}
