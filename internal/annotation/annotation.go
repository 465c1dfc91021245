// Package annotation extracts the embedded date tag from note bodies and
// derives a short display title from the remaining text.
//
// An annotation is the escape marker followed by a day-first date:
//
//	Dentist \@05-03-2026
//
// Only the first annotation counts for the date; every occurrence is
// removed when deriving the title.
package annotation

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// UntitledEvent is substituted by calendar projection when a body yields no title.
const UntitledEvent = "Untitled Event"

var annotationRe = regexp.MustCompile(`\\@(\d{2})-(\d{2})-(\d{4})`)

// Extractor applies the annotation grammar. The zero value is usable:
// it tags keywords with the default Tagger and resolves dates in time.Local.
type Extractor struct {
	Keywords KeywordExtractor
	Location *time.Location
}

// Default is the shared extractor behind ExtractDate and ExtractTitle.
var Default = &Extractor{Keywords: NewTagger()}

// ExtractDate returns midnight of the first annotated date in body.
func ExtractDate(body string) (time.Time, bool) { return Default.Date(body) }

// ExtractTitle returns the noun and verb tokens of body with annotations removed.
func ExtractTitle(body string) string { return Default.Title(body) }

// Date returns midnight (in e.Location) of the first annotation in body.
// It reports false when there is no annotation or it is not a real date.
func (e *Extractor) Date(body string) (time.Time, bool) {
	m := annotationRe.FindStringSubmatch(body)
	if m == nil {
		return time.Time{}, false
	}
	day, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	year, _ := strconv.Atoi(m[3])
	if month < 1 || month > 12 || day < 1 {
		return time.Time{}, false
	}
	d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, e.location())
	// time.Date normalises overflow (31-02 -> 03-03); reject it.
	if d.Day() != day || int(d.Month()) != month || d.Year() != year {
		return time.Time{}, false
	}
	return d, true
}

// Title strips every annotation, reduces Markdown to text and keeps only
// the tokens the keyword extractor accepts, joined by single spaces.
func (e *Extractor) Title(body string) string {
	plain := PlainText(Strip(body))
	return strings.Join(e.keywords().Keywords(plain), " ")
}

// Strip removes every annotation from body.
func Strip(body string) string {
	return annotationRe.ReplaceAllString(body, "")
}

func (e *Extractor) location() *time.Location {
	if e == nil || e.Location == nil {
		return time.Local
	}
	return e.Location
}

func (e *Extractor) keywords() KeywordExtractor {
	if e == nil || e.Keywords == nil {
		return defaultTagger
	}
	return e.Keywords
}
