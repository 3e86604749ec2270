package triage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/knowledgeforge/ingest/internal/extract"
)

type fakeLookup struct {
	byScalar map[string]string
}

func (f fakeLookup) ByScalar(_ context.Context, field, value string) (string, bool, error) {
	id, ok := f.byScalar[field+"="+value]
	return id, ok, nil
}

func TestDecide_ExactDuplicate(t *testing.T) {
	fp := Compute("Kita schedule: Mon 08:00, Wed 08:00", "Kita schedule", nil, "")
	lookup := fakeLookup{byScalar: map[string]string{"content_sha256=" + fp.ContentSHA256: "doc-1"}}
	svc := NewService(lookup, nil, 0)

	doc := extract.ExtractedDocument{Text: "Kita schedule: Mon 08:00, Wed 08:00", DocumentType: extract.TypeMarkdown}
	d := svc.Decide(context.Background(), doc, fp)

	assert.Equal(t, CategoryDuplicate, d.Category)
	assert.Equal(t, ActionStop, d.Action)
	assert.Equal(t, 1.0, d.Confidence)
	assert.Equal(t, "doc-1", d.MatchedDocID)
}

func TestDecide_EmailMessageIDDuplicate(t *testing.T) {
	fp := Compute("hello world", "Re: hello", nil, "<abc@mail>")
	lookup := fakeLookup{byScalar: map[string]string{"email_message_id=<abc@mail>": "doc-2"}}
	svc := NewService(lookup, nil, 0)

	doc := extract.ExtractedDocument{Text: "hello world", DocumentType: extract.TypeEmail}
	d := svc.Decide(context.Background(), doc, fp)

	assert.Equal(t, CategoryDuplicate, d.Category)
	assert.Equal(t, "doc-2", d.MatchedDocID)
}

func TestDecide_NearDuplicateViaFuzzyIndex(t *testing.T) {
	original := "The quarterly report shows revenue growth across all three regions this year."
	nearCopy := "The quarterly report shows revenue growth across all three regions this past year."

	fuzzy := NewFuzzyIndex()
	origFP := Compute(original, "Report", nil, "")
	fuzzy.Add("doc-orig", origFP.FuzzyHash)

	svc := NewService(nil, fuzzy, 0.5) // loosened threshold; real text differs by one token
	newFP := Compute(nearCopy, "Report", nil, "")
	doc := extract.ExtractedDocument{Text: nearCopy, DocumentType: extract.TypeText}
	d := svc.Decide(context.Background(), doc, newFP)

	assert.Equal(t, CategoryNearDuplicate, d.Category)
	assert.Equal(t, ActionStop, d.Action)
	assert.Equal(t, "doc-orig", d.MatchedDocID)
}

func TestDecide_JunkTooShort(t *testing.T) {
	doc := extract.ExtractedDocument{Text: "ok thanks", DocumentType: extract.TypeText}
	fp := Compute(doc.Text, "", nil, "")
	svc := NewService(nil, NewFuzzyIndex(), 0)

	d := svc.Decide(context.Background(), doc, fp)
	assert.Equal(t, CategoryJunk, d.Category)
	assert.Equal(t, ActionStop, d.Action)
}

func TestDecide_ActionablePatternContinues(t *testing.T) {
	text := "Attached is your invoice for this month. Payment due within 30 days of receipt to avoid late fees."
	doc := extract.ExtractedDocument{Text: text, DocumentType: extract.TypeEmail}
	fp := Compute(text, "Invoice", nil, "")
	svc := NewService(nil, NewFuzzyIndex(), 0)

	d := svc.Decide(context.Background(), doc, fp)
	assert.Equal(t, CategoryActionableFinancial, d.Category)
	assert.Equal(t, ActionContinue, d.Action)
}

func TestDecide_DefaultArchival(t *testing.T) {
	text := "Notes from today's walk around the park, nothing in particular to report but pleasant weather throughout."
	doc := extract.ExtractedDocument{Text: text, DocumentType: extract.TypeText}
	fp := Compute(text, "Walk notes", nil, "")
	svc := NewService(nil, NewFuzzyIndex(), 0)

	d := svc.Decide(context.Background(), doc, fp)
	assert.Equal(t, CategoryArchival, d.Category)
	assert.Equal(t, ActionContinue, d.Action)
	assert.Equal(t, 0.5, d.Confidence)
}

func TestDecide_FailOpenOnPanic(t *testing.T) {
	svc := NewService(panickingLookup{}, NewFuzzyIndex(), 0)
	doc := extract.ExtractedDocument{Text: "some content here that is long enough to not be junk at all really", DocumentType: extract.TypeText}
	fp := Compute(doc.Text, "", nil, "")

	d := svc.Decide(context.Background(), doc, fp)
	assert.Equal(t, CategoryArchival, d.Category)
	assert.Equal(t, ActionContinue, d.Action)
	assert.Equal(t, "triage_error", d.Reasoning)
}

type panickingLookup struct{}

func (panickingLookup) ByScalar(context.Context, string, string) (string, bool, error) {
	panic("boom")
}

func TestSimHash_SimilarTextsAreClose(t *testing.T) {
	a := SimHash(NormalizeText("the quick brown fox jumps over the lazy dog today"), 5)
	b := SimHash(NormalizeText("the quick brown fox jumps over the lazy dog yesterday"), 5)
	sim := Similarity(a, b)
	assert.Greater(t, sim, 0.7)
}

func TestSimHash_DifferentTextsAreFar(t *testing.T) {
	a := SimHash(NormalizeText("the quick brown fox jumps over the lazy dog"), 5)
	b := SimHash(NormalizeText("quantum mechanics describes the behavior of subatomic particles"), 5)
	sim := Similarity(a, b)
	assert.Less(t, sim, 0.7)
}
