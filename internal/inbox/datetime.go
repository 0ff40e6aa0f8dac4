package inbox

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Extraction is the raw text of a date/time proposal found in a reply
// body. EndText may be empty when the sender only named a start time.
type Extraction struct {
	DateText  string
	StartText string
	EndText   string
}

const monthPattern = `(?:January|February|March|April|May|June|July|August|September|October|November|December|Jan|Feb|Mar|Apr|Jun|Jul|Aug|Sept|Sep|Oct|Nov|Dec)`

var (
	// Combined "date time - time" proposal, e.g. "June 5, 2025 1:00 PM - 2:00 PM".
	reDateRange = regexp.MustCompile(`(?i)\b(` + monthPattern + `\.?\s+\d{1,2},?\s+\d{4})[,\s]+(\d{1,2}(?::\d{2})?\s*(?:AM|PM))\s*(?:-|to|until)\s*(\d{1,2}(?::\d{2})?\s*(?:AM|PM))`)

	// Isolated date and time tokens, used when the combined pattern misses.
	reDateToken = regexp.MustCompile(`(?i)\b(?:` + monthPattern + `\.?\s+\d{1,2},?\s+\d{4}|\d{1,2}\s+` + monthPattern + `\.?\s+\d{4}|\d{1,2}[/-]\d{1,2}[/-]\d{4}|\d{4}[/-]\d{1,2}[/-]\d{1,2})\b`)
	reTimeToken = regexp.MustCompile(`(?i)\b\d{1,2}(?::\d{2})?\s*(?:AM|PM)\b|\b\d{1,2}:\d{2}\b`)
)

// Extract scans free text for a proposed date with one or two times. The
// combined range pattern wins; otherwise an isolated date token plus
// separately matched time tokens is accepted. ok is false when no date or
// no time could be located.
func Extract(text string) (Extraction, bool) {
	if m := reDateRange.FindStringSubmatch(text); m != nil {
		return Extraction{DateText: m[1], StartText: m[2], EndText: m[3]}, true
	}

	date := reDateToken.FindString(text)
	if date == "" {
		return Extraction{}, false
	}
	times := reTimeToken.FindAllString(text, 2)
	if len(times) == 0 {
		return Extraction{}, false
	}
	ext := Extraction{DateText: date, StartText: times[0]}
	if len(times) > 1 {
		ext.EndText = times[1]
	}
	return ext, true
}

var dateLayouts = []string{
	"Jan 2, 2006",
	"January 2, 2006",
	"Jan. 2, 2006",
	"Jan 2 2006",
	"01/02/2006",
	"01-02-2006",
	"2006-01-02",
	"2006/01/02",
	"2 Jan 2006",
	"2 January 2006",
}

var timeLayouts = []string{
	"3:04 PM",
	"3:04PM",
	"3 PM",
	"3PM",
	"15:04",
}

// NormalizeDate canonicalizes a free-form date into "2006-01-02". Layouts
// are tried in order; on total failure the input comes back unchanged so
// callers can log the raw token.
func NormalizeDate(s string) string {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return s
}

// NormalizeTime canonicalizes a clock time into zero-padded 12-hour form,
// e.g. "2:00 pm" -> "02:00 PM". Unparseable input comes back unchanged.
func NormalizeTime(s string) string {
	candidate := strings.ToUpper(strings.TrimSpace(s))
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, candidate); err == nil {
			return t.Format("03:04 PM")
		}
	}
	return s
}

// ParseSlot turns a raw extraction into concrete start and end instants.
// Both times must resolve; a reply naming only a start time is not enough
// to schedule against.
func ParseSlot(ext Extraction) (start, end time.Time, err error) {
	date := NormalizeDate(ext.DateText)
	if ext.EndText == "" {
		return time.Time{}, time.Time{}, fmt.Errorf("no end time in proposal %q", ext.DateText+" "+ext.StartText)
	}
	start, err = time.Parse("2006-01-02 03:04 PM", date+" "+NormalizeTime(ext.StartText))
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parse proposed start: %w", err)
	}
	end, err = time.Parse("2006-01-02 03:04 PM", date+" "+NormalizeTime(ext.EndText))
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parse proposed end: %w", err)
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("proposed end %s not after start %s", end.Format("03:04 PM"), start.Format("03:04 PM"))
	}
	return start, end, nil
}
