package extract

import (
	"bufio"
	"context"
	"encoding/base64"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"strings"
	"time"
)

// extractEmail parses an .eml message's headers, body, and attachments.
// RFC 5322/2045 parsing has no natural home among the pack's dependencies,
// so this is the one format that deliberately stays on net/mail +
// mime/multipart (noted in DESIGN.md) rather than reaching for a library.
func extractEmail(ctx context.Context, raw RawDocument, opt Options) (ExtractedDocument, error) {
	msg, err := mail.ReadMessage(strings.NewReader(string(raw.Content)))
	if err != nil {
		return ExtractedDocument{}, fatal(ReasonCorruptInput, err)
	}
	h := msg.Header

	src := SourceMetadata{
		From:      h.Get("From"),
		To:        h.Get("To"),
		Cc:        h.Get("Cc"),
		Subject:   h.Get("Subject"),
		MessageID: h.Get("Message-ID"),
		InReplyTo: h.Get("In-Reply-To"),
	}
	if refs := h.Get("References"); refs != "" {
		src.References = strings.Fields(refs)
	}

	created := time.Now().UTC()
	if d, err := h.Date(); err == nil {
		created = d.UTC()
	}

	mediaType, params, _ := mime.ParseMediaType(h.Get("Content-Type"))

	var (
		plainBody   string
		htmlBody    string
		attachments []RawDocument
	)
	if strings.HasPrefix(mediaType, "multipart/") {
		plainBody, htmlBody, attachments, err = walkMultipart(msg.Body, params["boundary"], src.MessageID)
		if err != nil {
			return ExtractedDocument{}, recoverable(ReasonCorruptInput, err)
		}
	} else {
		body, _ := io.ReadAll(msg.Body)
		body = decodeTransferEncoding(body, h.Get("Content-Transfer-Encoding"))
		if strings.HasPrefix(mediaType, "text/html") {
			htmlBody = string(body)
		} else {
			plainBody = string(body)
		}
	}

	text := plainBody
	method := "embedded_text"
	if strings.TrimSpace(text) == "" && htmlBody != "" {
		if md, _, err := htmlToMarkdown(ctx, htmlBody, ""); err == nil {
			text = md
		} else {
			text = htmlBody
		}
		method = "html_to_markdown"
	}

	var audioSections []string
	for i := range attachments {
		at := &attachments[i]
		if isAudioFilename(at.Filename) && opt.Transcriber != nil {
			if transcript, err := transcribeAttachment(ctx, *at, opt); err == nil && transcript != "" {
				audioSections = append(audioSections, "### Voice memo: "+at.Filename+"\n"+transcript)
			}
		}
	}
	if len(audioSections) > 0 {
		text = strings.TrimSpace(text) + "\n\n" + strings.Join(audioSections, "\n\n")
	}

	doc := ExtractedDocument{
		Text:               text,
		DocumentType:       TypeEmail,
		StructuralMetadata: parseMarkdownStructure([]byte(text)),
		Source:             src,
		CreatedDate:        created.Format(time.RFC3339),
		ExtractionMethod:   method,
		Attachments:        attachments,
	}
	return doc, nil
}

func walkMultipart(body io.Reader, boundary, parentMessageID string) (plain, html string, attachments []RawDocument, err error) {
	if boundary == "" {
		return "", "", nil, nil
	}
	mr := multipart.NewReader(body, boundary)
	for {
		part, perr := mr.NextPart()
		if perr == io.EOF {
			break
		}
		if perr != nil {
			return plain, html, attachments, perr
		}
		ct := part.Header.Get("Content-Type")
		mediaType, params, _ := mime.ParseMediaType(ct)
		disposition := part.Header.Get("Content-Disposition")

		data, _ := io.ReadAll(part)
		data = decodeTransferEncoding(data, part.Header.Get("Content-Transfer-Encoding"))

		filename := part.FileName()
		isAttachment := strings.Contains(disposition, "attachment") || (filename != "" && !strings.HasPrefix(mediaType, "multipart/") && !strings.HasPrefix(mediaType, "text/"))

		switch {
		case strings.HasPrefix(mediaType, "multipart/"):
			p2, h2, a2, e2 := walkMultipart(strings.NewReader(string(data)), params["boundary"], parentMessageID)
			if plain == "" {
				plain = p2
			}
			if html == "" {
				html = h2
			}
			attachments = append(attachments, a2...)
			if e2 != nil {
				err = e2
			}
		case isAttachment:
			attachments = append(attachments, RawDocument{
				Content:         data,
				Filename:        filename,
				MIMEHint:        mediaType,
				ParentMessageID: parentMessageID,
			})
		case strings.HasPrefix(mediaType, "text/plain"):
			if plain == "" {
				plain = string(data)
			}
		case strings.HasPrefix(mediaType, "text/html"):
			if html == "" {
				html = string(data)
			}
		}
	}
	return plain, html, attachments, nil
}

func decodeTransferEncoding(data []byte, enc string) []byte {
	switch strings.ToLower(strings.TrimSpace(enc)) {
	case "quoted-printable":
		decoded, err := io.ReadAll(quotedprintable.NewReader(bufioReader(data)))
		if err == nil {
			return decoded
		}
	case "base64":
		decoded := make([]byte, base64.StdEncoding.DecodedLen(len(data)))
		n, err := base64.StdEncoding.Decode(decoded, bytesTrimSpace(data))
		if err == nil {
			return decoded[:n]
		}
	}
	return data
}

// bytesTrimSpace strips whitespace/newlines base64-encoded MIME bodies are
// typically wrapped with at 76 columns.
func bytesTrimSpace(data []byte) []byte {
	out := make([]byte, 0, len(data))
	for _, b := range data {
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		out = append(out, b)
	}
	return out
}

func bufioReader(data []byte) io.Reader {
	return bufio.NewReader(strings.NewReader(string(data)))
}

func isAudioFilename(name string) bool {
	name = strings.ToLower(name)
	for _, ext := range []string{".wav", ".mp3", ".m4a", ".ogg"} {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}
