package extract

import (
	"context"
	"net/http"
)

// extractImage OCRs a standalone image or scanned page, escalating to the
// visual LLM when OCR confidence or legibility is too low, mirroring the
// per-page fallback extractPDF uses for image-only PDF pages.
func extractImage(ctx context.Context, raw RawDocument, opt Options) (ExtractedDocument, error) {
	if opt.OCR == nil && opt.Visual == nil {
		return ExtractedDocument{}, fatal(ReasonUnsupportedFormat, nil)
	}

	mimeType := raw.MIMEHint
	if mimeType == "" {
		mimeType = http.DetectContentType(raw.Content)
	}

	var (
		text       string
		confidence float64
		method     string
	)
	if opt.OCR != nil {
		if t, c, err := opt.OCR.Recognize(ctx, raw.Content, mimeType); err == nil {
			text, confidence = t, c
			method = "ocr"
		}
	}

	if opt.Visual != nil && (method == "" || confidence < opt.VisualLLMConfidenceThreshold || dictionaryWordRatio(text) < opt.DictionaryWordRatioThreshold) {
		if t, _, err := opt.Visual.DescribePage(ctx, raw.Content, mimeType); err == nil && t != "" {
			text = t
			method = "visual_llm"
		}
	}

	if text == "" {
		return ExtractedDocument{}, recoverable(ReasonOCRFailed, nil)
	}

	return ExtractedDocument{
		Text:             text,
		DocumentType:     TypeImage,
		ExtractionMethod: method,
		PageCost:         boolToCost(method == "visual_llm"),
	}, nil
}

func boolToCost(b bool) int {
	if b {
		return 1
	}
	return 0
}
