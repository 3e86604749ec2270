package extract

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"
)

// extractPDF pulls embedded text page by page with ledongthuc/pdf, routing
// any page whose text density falls below opt.TextDensityThreshold through
// OCR, and any page that then still reads as gibberish through the
// visual-LLM fallback. Grounded on the teacher's parser.PDFParser, adapted
// from path-based pdf.Open to the in-memory pdf.NewReader this package's
// byte-oriented RawDocument requires.
func extractPDF(ctx context.Context, raw RawDocument, opt Options) (ExtractedDocument, error) {
	reader, err := pdf.NewReader(bytes.NewReader(raw.Content), int64(len(raw.Content)))
	if err != nil {
		return ExtractedDocument{}, fatal(ReasonCorruptInput, err)
	}

	total := reader.NumPage()
	var (
		pageTexts []string
		method    = "embedded_text"
		pageCost  int
		sawOCR    bool
		sawVisual bool
	)

	for i := 1; i <= total; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			pageTexts = append(pageTexts, "")
			continue
		}
		text, _ := page.GetPlainText(nil)
		text = strings.TrimSpace(text)

		density := float64(len(text))
		if density < opt.TextDensityThreshold {
			fallback, cost := ocrOrVisualFallback(ctx, raw, i, opt, pageCost, &sawOCR, &sawVisual)
			pageCost = cost
			if strings.TrimSpace(fallback) != "" {
				text = fallback
			}
		}
		pageTexts = append(pageTexts, text)
	}

	if sawVisual {
		method = "visual_llm"
	} else if sawOCR {
		method = "ocr"
	}

	full := strings.TrimSpace(strings.Join(pageTexts, "\n\n"))
	if full == "" {
		return ExtractedDocument{}, recoverable(ReasonEmptyText, nil)
	}

	title := pdfTitle(reader)
	return ExtractedDocument{
		Text:               full,
		DocumentType:       TypePDF,
		StructuralMetadata: parseMarkdownStructure([]byte(full)),
		Source:             SourceMetadata{Title: title},
		ExtractionMethod:   method,
		PageCost:           pageCost,
	}, nil
}

// ocrOrVisualFallback runs OCR on a low-density page and escalates to the
// visual LLM when OCR confidence or its dictionary-word ratio is too low to
// trust. Callers without an OCR/visual collaborator configured keep
// whatever embedded text (even if sparse) the page already had.
func ocrOrVisualFallback(ctx context.Context, raw RawDocument, pageNum int, opt Options, cost int, sawOCR, sawVisual *bool) (string, int) {
	img, mimeType, ok := rasterizePage(raw, pageNum)
	if !ok {
		return "", cost
	}

	var ocrText string
	var confidence float64
	if opt.OCR != nil {
		if t, c, err := opt.OCR.Recognize(ctx, img, mimeType); err == nil {
			ocrText, confidence = t, c
			*sawOCR = true
		}
	}

	needsVisual := opt.OCR == nil ||
		confidence < opt.VisualLLMConfidenceThreshold ||
		dictionaryWordRatio(ocrText) < opt.DictionaryWordRatioThreshold

	if needsVisual && opt.Visual != nil {
		if text, _, err := opt.Visual.DescribePage(ctx, img, mimeType); err == nil && strings.TrimSpace(text) != "" {
			*sawVisual = true
			return text, cost + 1
		}
	}
	return ocrText, cost
}

// rasterizePage is a placeholder for page-to-image conversion: the pack
// carries no PDF rasterizer, so callers that need OCR/visual fallback must
// supply pre-rendered page images via ProvidedMetadata, keyed
// "page_image_<n>". Returns ok=false when no such image is available,
// leaving the thin embedded text as the best available result.
func rasterizePage(raw RawDocument, pageNum int) ([]byte, string, bool) {
	key := fmt.Sprintf("page_image_%d", pageNum)
	b64, ok := raw.ProvidedMetadata[key]
	if !ok || b64 == "" {
		return nil, "", false
	}
	return []byte(b64), "image/png", true
}

func dictionaryWordRatio(s string) float64 {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return 0
	}
	recognized := 0
	for _, w := range fields {
		letters := 0
		for _, r := range w {
			if unicode.IsLetter(r) {
				letters++
			}
		}
		if letters >= len(w)/2 && letters > 0 {
			recognized++
		}
	}
	return float64(recognized) / float64(len(fields))
}

func pdfTitle(reader *pdf.Reader) string {
	trailer := reader.Trailer()
	info := trailer.Key("Info")
	if info.IsNull() {
		return ""
	}
	return info.Key("Title").Text()
}
