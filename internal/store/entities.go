package store

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/knowledgeforge/ingest/internal/enrich"
)

// EntityRef is one entity mentioned in a document, resolved to its stub
// location under refs/<kind>/<slug>.md.
type EntityRef struct {
	Kind  string // persons, orgs, technologies, places
	Label string
	Slug  string
}

// Path is the vault-relative wiki-link target, e.g. refs/persons/ada-lovelace.
func (r EntityRef) Path() string {
	return fmt.Sprintf("refs/%s/%s", r.Kind, r.Slug)
}

// EntityRefs groups a document's resolved entities by kind, in the shape
// the body template and Xref block both need.
type EntityRefs struct {
	People        []EntityRef
	Organizations []EntityRef
	Technologies  []EntityRef
	Places        []EntityRef
}

func (r EntityRefs) all() []EntityRef {
	out := make([]EntityRef, 0, len(r.People)+len(r.Organizations)+len(r.Technologies)+len(r.Places))
	out = append(out, r.People...)
	out = append(out, r.Organizations...)
	out = append(out, r.Technologies...)
	out = append(out, r.Places...)
	return out
}

func (r EntityRefs) labels(refs []EntityRef) []string {
	out := make([]string, len(refs))
	for i, ref := range refs {
		out[i] = ref.Label
	}
	return out
}

// BuildEntityRefs resolves enrichment entities into vault stub locations.
// Entities are deduplicated by slug within a kind, since the LLM may emit
// the same person under slightly different surface forms that still
// resolve to the same vocabulary concept. Kind strings match spec.md's
// fixed refs/ wire format: refs/persons/, refs/orgs/, refs/technologies/,
// refs/places/.
func BuildEntityRefs(m enrich.Metadata) EntityRefs {
	return EntityRefs{
		People:        refsFor("persons", m.People),
		Organizations: refsFor("orgs", m.Organizations),
		Technologies:  refsFor("technologies", m.Technologies),
		Places:        refsForLabels("places", m.Places),
	}
}

func refsFor(kind string, entities []enrich.Entity) []EntityRef {
	seen := make(map[string]bool)
	out := make([]EntityRef, 0, len(entities))
	for _, e := range entities {
		label := e.PrefLabel
		if label == "" {
			label = e.Label
		}
		slug := slugify(label)
		if slug == "" || seen[slug] {
			continue
		}
		seen[slug] = true
		out = append(out, EntityRef{Kind: kind, Label: label, Slug: slug})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out
}

// refsForLabels is refsFor for fields that are closed-vocabulary label
// strings rather than enrich.Entity values (enrich/types.go's comment on
// Metadata.Places: "every entry is a vocab.Concept ID" with no separate
// confidence/category shape to preserve).
func refsForLabels(kind string, labels []string) []EntityRef {
	seen := make(map[string]bool)
	out := make([]EntityRef, 0, len(labels))
	for _, label := range labels {
		slug := slugify(label)
		if slug == "" || seen[slug] {
			continue
		}
		seen[slug] = true
		out = append(out, EntityRef{Kind: kind, Label: label, Slug: slug})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out
}

var wikiLinkRe = regexp.MustCompile(`\[\[[^\]]*\]\]`)

// autoLink wraps the first occurrence of each entity's label in document
// prose with a wiki-link, per spec.md's export_auto_link option. It skips
// fenced code blocks and text already inside a wiki-link. When linkAll is
// true every occurrence is linked instead of just the first.
func autoLink(text string, refs EntityRefs, linkAll bool) string {
	all := refs.all()
	if len(all) == 0 {
		return text
	}
	sort.Slice(all, func(i, j int) bool { return len(all[i].Label) > len(all[j].Label) })

	linked := make(map[string]bool, len(all))
	var out strings.Builder
	inCode := false
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			inCode = !inCode
			out.WriteString(line)
			out.WriteString("\n")
			continue
		}
		if inCode {
			out.WriteString(line)
			out.WriteString("\n")
			continue
		}
		out.WriteString(linkLine(line, all, linked, linkAll))
		out.WriteString("\n")
	}
	s := out.String()
	return strings.TrimSuffix(s, "\n")
}

func linkLine(line string, refs []EntityRef, linked map[string]bool, linkAll bool) string {
	existing := wikiLinkRe.FindAllStringIndex(line, -1)
	inExisting := func(pos int) bool {
		for _, span := range existing {
			if pos >= span[0] && pos < span[1] {
				return true
			}
		}
		return false
	}

	for _, ref := range refs {
		if !linkAll && linked[ref.Slug] {
			continue
		}
		from := 0
		for {
			rel := strings.Index(line[from:], ref.Label)
			if rel < 0 {
				break
			}
			idx := from + rel
			if inExisting(idx) {
				if !linkAll {
					break
				}
				from = idx + len(ref.Label)
				continue
			}
			replacement := fmt.Sprintf("[[%s|%s]]", ref.Path(), ref.Label)
			line = line[:idx] + replacement + line[idx+len(ref.Label):]
			linked[ref.Slug] = true
			existing = wikiLinkRe.FindAllStringIndex(line, -1)
			if !linkAll {
				break
			}
			from = idx + len(replacement)
		}
	}
	return line
}

// ensureEntityStub creates refs/<kind>/<slug>.md if absent, and otherwise
// appends docID to its Dataview-style backlink query if not already
// present. Creation is CAS via O_EXCL so concurrent first-mentions of the
// same entity never clobber each other's stub.
func (v *Vault) ensureEntityStub(ref EntityRef, docID, docPath string) error {
	dir := filepath.Join(v.cfg.RootDir, v.cfg.EntitiesDir, ref.Kind)
	path := filepath.Join(dir, ref.Slug+".md")

	unlock := v.locks.lock(path)
	defer unlock()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return v.createEntityStub(path, ref, docID, docPath)
	} else if err != nil {
		return err
	}
	return v.appendBacklink(path, docID, docPath)
}

func (v *Vault) createEntityStub(path string, ref EntityRef, docID, docPath string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "---\n")
	fmt.Fprintf(&b, "type: %s\n", strings.TrimSuffix(ref.Kind, "s"))
	fmt.Fprintf(&b, "name: %q\n", ref.Label)
	fmt.Fprintf(&b, "aliases: []\n")
	fmt.Fprintf(&b, "---\n\n")
	fmt.Fprintf(&b, "# %s\n\n", ref.Label)
	b.WriteString("## Mentioned In\n\n")
	fmt.Fprintf(&b, "```dataview\nLIST FROM [[%s]]\n```\n\n", ref.Slug)
	b.WriteString("<!-- backlinks -->\n")
	fmt.Fprintf(&b, "- [[%s]] (%s)\n", strings.TrimSuffix(filepath.Base(docPath), ".md"), docID)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return v.appendBacklink(path, docID, docPath)
		}
		return err
	}
	defer f.Close()
	_, err = f.WriteString(b.String())
	return err
}

func (v *Vault) appendBacklink(path, docID, docPath string) error {
	existing, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	marker := fmt.Sprintf("(%s)", docID)
	if strings.Contains(string(existing), marker) {
		return nil
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = fmt.Fprintf(f, "- [[%s]] (%s)\n", strings.TrimSuffix(filepath.Base(docPath), ".md"), docID)
	return err
}

// DateRef is a structured date mentioned in a document, resolved to its
// refs/dates/<date>.md stub. This is distinct from the daily/weekly/monthly
// roll-up notes under <daily_notes_dir>/, which are keyed by the document's
// own created_date rather than dates mentioned in its content.
type DateRef struct {
	ISO   string
	Label string
}

// BuildDateRefs resolves enrich.Metadata.Dates entries with a known ISO date
// into refs/dates stub locations, deduplicated by date.
func BuildDateRefs(dates []enrich.DateRecord) []DateRef {
	seen := make(map[string]bool)
	out := make([]DateRef, 0, len(dates))
	for _, d := range dates {
		if len(d.ISO) < 10 {
			continue
		}
		iso := d.ISO[:10]
		if seen[iso] {
			continue
		}
		seen[iso] = true
		label := d.Raw
		if label == "" {
			label = iso
		}
		out = append(out, DateRef{ISO: iso, Label: label})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ISO < out[j].ISO })
	return out
}

// ensureDateStub creates refs/dates/<iso>.md if absent, and otherwise
// appends docID to its backlink list. Mirrors ensureEntityStub's CAS
// creation, keyed by ISO date instead of an entity slug.
func (v *Vault) ensureDateStub(ref DateRef, docID, docPath string) error {
	dir := filepath.Join(v.cfg.RootDir, v.cfg.EntitiesDir, "dates")
	path := filepath.Join(dir, ref.ISO+".md")

	unlock := v.locks.lock(path)
	defer unlock()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return v.createDateStub(path, ref, docID, docPath)
	} else if err != nil {
		return err
	}
	return v.appendBacklink(path, docID, docPath)
}

func (v *Vault) createDateStub(path string, ref DateRef, docID, docPath string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "---\n")
	fmt.Fprintf(&b, "type: date\n")
	fmt.Fprintf(&b, "date: %s\n", ref.ISO)
	fmt.Fprintf(&b, "---\n\n")
	fmt.Fprintf(&b, "# %s\n\n", ref.ISO)
	b.WriteString("## Mentioned In\n\n")
	fmt.Fprintf(&b, "```dataview\nLIST FROM [[%s]]\n```\n\n", ref.ISO)
	b.WriteString("<!-- backlinks -->\n")
	fmt.Fprintf(&b, "- [[%s]] (%s)\n", strings.TrimSuffix(filepath.Base(docPath), ".md"), docID)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return v.appendBacklink(path, docID, docPath)
		}
		return err
	}
	defer f.Close()
	_, err = f.WriteString(b.String())
	return err
}

// hasLine reports whether any line of path contains want as a substring,
// used by the daily rollup to dedup by doc_id and by the weekly/monthly
// rollups to dedup by date, without parsing YAML.
func hasLine(path, want string) (bool, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if strings.Contains(scanner.Text(), want) {
			return true, nil
		}
	}
	return false, scanner.Err()
}
