package chunk

import "regexp"

// ignoreBlockRe matches paired RAG:IGNORE markers, mirroring the HTML
// comment convention spec.md §4.5 and the glossary describe. Content inside
// is stripped before chunking (never embedded) but the exporter renders it
// verbatim from the original ExtractedDocument text, so stripping only
// happens on the copy handed to the Chunker.
var ignoreBlockRe = regexp.MustCompile(`(?s)<!--\s*RAG:IGNORE-START\s*-->.*?<!--\s*RAG:IGNORE-END\s*-->`)

// stripIgnoreBlocks removes every paired ignore block from text.
func stripIgnoreBlocks(text string) string {
	return ignoreBlockRe.ReplaceAllString(text, "")
}
