package extract

import (
	"context"
	"net/http"
	"strings"
)

// Extract dispatches on raw.DeclaredType, sniffing from filename/content
// when it is unset, and returns the canonicalized ExtractedDocument.
func Extract(ctx context.Context, raw RawDocument, opt Options) (ExtractedDocument, error) {
	opt = opt.withDefaults()

	dt := raw.DeclaredType
	if dt == "" {
		dt = sniff(raw)
	}

	var (
		doc ExtractedDocument
		err error
	)
	switch dt {
	case TypePDF:
		doc, err = extractPDF(ctx, raw, opt)
	case TypeEmail:
		doc, err = extractEmail(ctx, raw, opt)
	case TypeOffice:
		doc, err = extractOffice(ctx, raw, opt)
	case TypeMarkdown, TypeText:
		doc, err = extractMarkdownOrText(ctx, raw, opt, dt)
	case TypeImage, TypeScanned:
		doc, err = extractImage(ctx, raw, opt)
	case TypeLLMChat:
		doc, err = extractLLMChat(ctx, raw, opt)
	case TypeWhatsApp:
		doc, err = extractWhatsApp(ctx, raw, opt)
	default:
		doc, err = extractOther(ctx, raw, opt)
	}
	if err != nil {
		return ExtractedDocument{}, err
	}

	if strings.TrimSpace(doc.Text) == "" && len(doc.ChatTurns) == 0 {
		return ExtractedDocument{}, recoverable(ReasonEmptyText, nil)
	}

	if t, truncated := truncate(doc.Text, opt.MaxContentChars); truncated {
		doc.Text = t
		doc.Truncated = true
	}
	if doc.ExtractionMethod == "" {
		doc.ExtractionMethod = "embedded_text"
	}
	return doc, nil
}

// sniff guesses a DocumentType from filename extension and content-type
// sniffing when the caller did not declare one.
func sniff(raw RawDocument) DocumentType {
	name := strings.ToLower(raw.Filename)
	switch {
	case strings.HasSuffix(name, ".eml"):
		return TypeEmail
	case strings.HasSuffix(name, ".pdf"):
		return TypePDF
	case strings.HasSuffix(name, ".md"), strings.HasSuffix(name, ".markdown"):
		return TypeMarkdown
	case strings.HasSuffix(name, ".txt") && looksLikeWhatsApp(raw.Content):
		return TypeWhatsApp
	case strings.HasSuffix(name, ".txt"):
		return TypeText
	case strings.HasSuffix(name, ".doc"), strings.HasSuffix(name, ".xls"),
		strings.HasSuffix(name, ".ppt"), strings.HasSuffix(name, ".xlsx"),
		strings.HasSuffix(name, ".xlsm"):
		return TypeOffice
	case strings.HasSuffix(name, ".png"), strings.HasSuffix(name, ".jpg"),
		strings.HasSuffix(name, ".jpeg"), strings.HasSuffix(name, ".tiff"),
		strings.HasSuffix(name, ".webp"):
		return TypeImage
	case strings.HasSuffix(name, ".json") && looksLikeChatExport(raw.Content):
		return TypeLLMChat
	case strings.HasSuffix(name, ".html"), strings.HasSuffix(name, ".htm"):
		return TypeOther
	case strings.HasSuffix(name, ".wav"), strings.HasSuffix(name, ".mp3"),
		strings.HasSuffix(name, ".m4a"):
		return TypeOther
	}

	ct := http.DetectContentType(raw.Content)
	switch {
	case strings.HasPrefix(ct, "image/"):
		return TypeImage
	case strings.HasPrefix(ct, "application/pdf"):
		return TypePDF
	case strings.HasPrefix(ct, "text/"):
		if looksLikeWhatsApp(raw.Content) {
			return TypeWhatsApp
		}
		return TypeText
	}
	return TypeOther
}
