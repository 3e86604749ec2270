package extract

import (
	"context"
	"net/url"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	readability "github.com/go-shiori/go-readability"
)

// htmlToMarkdown extracts the main article content with go-shiori/
// go-readability (falling back to the raw document when extraction yields
// nothing) and converts it to markdown with html-to-markdown/v2, exactly
// the pipeline the teacher's internal/tools/web.Fetcher uses for clipped
// web pages.
func htmlToMarkdown(_ context.Context, html, baseURL string) (markdown, title string, err error) {
	articleHTML := html
	base, _ := url.Parse(baseURL)
	if art, rerr := readability.FromReader(strings.NewReader(html), base); rerr == nil && strings.TrimSpace(art.Content) != "" {
		articleHTML = art.Content
		title = strings.TrimSpace(art.Title)
	}

	var opts []converter.Option
	if baseURL != "" {
		opts = append(opts, converter.WithDomain(baseURL))
	}
	md, err := htmltomarkdown.ConvertString(articleHTML, opts...)
	if err != nil {
		return "", title, err
	}
	if title != "" && !strings.HasPrefix(strings.TrimSpace(md), "# ") {
		md = "# " + title + "\n\n" + md
	}
	return strings.TrimSpace(md), title, nil
}

// extractOther handles the document types left as a residual catch-all:
// HTML clippings and audio-only uploads.
func extractOther(ctx context.Context, raw RawDocument, opt Options) (ExtractedDocument, error) {
	name := strings.ToLower(raw.Filename)
	switch {
	case strings.HasSuffix(name, ".html"), strings.HasSuffix(name, ".htm"):
		md, title, err := htmlToMarkdown(ctx, string(raw.Content), "")
		if err != nil {
			return ExtractedDocument{}, recoverable(ReasonDependencyError, err)
		}
		return ExtractedDocument{
			Text:               md,
			DocumentType:       TypeOther,
			StructuralMetadata: parseMarkdownStructure([]byte(md)),
			Source:             SourceMetadata{Title: title},
			ExtractionMethod:   "html_to_markdown",
		}, nil
	case isAudioFilename(raw.Filename):
		if opt.Transcriber == nil {
			return ExtractedDocument{}, fatal(ReasonUnsupportedFormat, nil)
		}
		transcript, err := transcribeAttachment(ctx, raw, opt)
		if err != nil || strings.TrimSpace(transcript) == "" {
			return ExtractedDocument{}, recoverable(ReasonDependencyError, err)
		}
		return ExtractedDocument{
			Text:             transcript,
			DocumentType:     TypeOther,
			ExtractionMethod: "whisper",
		}, nil
	}
	return ExtractedDocument{}, fatal(ReasonUnsupportedFormat, nil)
}
