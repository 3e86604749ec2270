package enrich

import (
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday,
	"wednesday": time.Wednesday, "thursday": time.Thursday, "friday": time.Friday,
	"saturday": time.Saturday,
}

// resolveDate turns one candidateDate into a DateRecord, resolving relative
// phrases ("next Monday", "tomorrow") against anchor (created_date if known,
// else ingestion time) and parsing absolute/implicit strings with
// araddon/dateparse. Resolution failures keep Raw but leave ISO empty, per
// spec.md §4.3.
func resolveDate(cd candidateDate, anchor time.Time) DateRecord {
	rec := DateRecord{Raw: cd.Raw, Type: cd.Type, ContextReference: cd.ContextReference}

	switch cd.Type {
	case "relative":
		if t, ok := resolveRelative(cd.Raw, anchor); ok {
			rec.ISO = t.Format("2006-01-02")
			return rec
		}
	}

	if t, err := dateparse.ParseAny(cd.Raw); err == nil {
		rec.ISO = t.UTC().Format("2006-01-02")
	}
	return rec
}

// resolveRelative handles the common relative-date phrases spec.md §4.3
// calls out explicitly ("next Monday", "tomorrow", "yesterday", "today").
func resolveRelative(raw string, anchor time.Time) (time.Time, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	switch s {
	case "today":
		return anchor, true
	case "tomorrow":
		return anchor.AddDate(0, 0, 1), true
	case "yesterday":
		return anchor.AddDate(0, 0, -1), true
	}

	fields := strings.Fields(s)
	if len(fields) == 2 {
		qualifier, dayName := fields[0], fields[1]
		if wd, ok := weekdays[dayName]; ok {
			switch qualifier {
			case "next":
				return nextWeekday(anchor, wd, true), true
			case "last":
				return nextWeekday(anchor, wd, false), true
			case "this":
				return nextWeekday(anchor, wd, true), true
			}
		}
	}
	return time.Time{}, false
}

func nextWeekday(from time.Time, target time.Weekday, forward bool) time.Time {
	if forward {
		for i := 1; i <= 7; i++ {
			candidate := from.AddDate(0, 0, i)
			if candidate.Weekday() == target {
				return candidate
			}
		}
	} else {
		for i := 1; i <= 7; i++ {
			candidate := from.AddDate(0, 0, -i)
			if candidate.Weekday() == target {
				return candidate
			}
		}
	}
	return from
}
