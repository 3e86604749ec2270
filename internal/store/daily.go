package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knowledgeforge/ingest/internal/extract"
)

// appendDailyNote links a document into its day's roll-up note, grouped by
// doc type, then ensures the week and month notes link that daily note in
// turn. Each note is created on first touch and otherwise appended to,
// deduped by doc ID so re-ingesting a document is a no-op here.
func (v *Vault) appendDailyNote(created time.Time, docType extract.DocumentType, docID, docPath, title string) error {
	day := created.Format("2006-01-02")
	dailyPath := filepath.Join(v.cfg.RootDir, v.cfg.DailyNotesDir, day+".md")
	if err := v.appendUnderSection(dailyPath, string(docType), docID, docPath, title); err != nil {
		return err
	}

	year, week := created.ISOWeek()
	weekPath := filepath.Join(v.cfg.RootDir, v.cfg.WeeklyNotesDir, fmt.Sprintf("%d-W%02d.md", year, week))
	if err := v.appendDayLink(weekPath, day); err != nil {
		return err
	}

	monthPath := filepath.Join(v.cfg.RootDir, v.cfg.MonthlyNotesDir, created.Format("2006-01")+".md")
	return v.appendDayLink(monthPath, day)
}

// appendUnderSection appends "- [[<docPath stem>|title]] (docID)" under a
// "## <doctype>" heading in the given note, creating both the note and the
// section as needed, and skipping the entry if docID is already present.
func (v *Vault) appendUnderSection(path, section, docID, docPath, title string) error {
	unlock := v.locks.lock(path)
	defer unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	exists, err := hasLine(path, "("+docID+")")
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	content, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}

	heading := "## " + section
	stem := strings.TrimSuffix(filepath.Base(docPath), ".md")
	entry := fmt.Sprintf("- [[%s|%s]] (%s)\n", stem, title, docID)

	text := string(content)
	if text == "" {
		text = "# " + filepath.Base(strings.TrimSuffix(path, ".md")) + "\n\n"
	}
	if strings.Contains(text, heading+"\n") {
		idx := strings.Index(text, heading+"\n") + len(heading) + 1
		text = text[:idx] + entry + text[idx:]
	} else {
		if !strings.HasSuffix(text, "\n\n") {
			text = strings.TrimRight(text, "\n") + "\n\n"
		}
		text += heading + "\n" + entry
	}

	return os.WriteFile(path, []byte(text), 0o644)
}

// appendDayLink links a daily note from its parent week/month note,
// skipping duplicates by the daily note's own date stamp.
func (v *Vault) appendDayLink(path, day string) error {
	unlock := v.locks.lock(path)
	defer unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	exists, err := hasLine(path, day)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	content, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	text := string(content)
	if text == "" {
		text = "# " + filepath.Base(strings.TrimSuffix(path, ".md")) + "\n\n## Days\n\n"
	}
	text += fmt.Sprintf("- [[%s]]\n", day)
	return os.WriteFile(path, []byte(text), 0o644)
}
