package agenda

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"cloud.google.com/go/civil"

	appLog "tourcal/internal/log"
	"tourcal/internal/model"
)

// Lines shorter than this are trusted as date headers even without a
// "day"/"date" prefix.
const maxHeaderLen = 30

var (
	datePattern     = regexp.MustCompile(`(\d{1,2})([/-])(\d{1,2})([/-])(\d{2,4})`)
	timePattern     = regexp.MustCompile(`\d{1,2}:\d{2}(?:\s*(?i:am|pm)\b)?`)
	leadPunct       = regexp.MustCompile(`^[-:]\s*`)
	locationPattern = regexp.MustCompile(`\bat\s+([^.,]+)`)
	durationPattern = regexp.MustCompile(`(?i)(\d+)\s*(hours?|hrs?|h|minutes?|mins?)\b`)
)

// Parser turns free-form agenda text into itinerary items.
type Parser struct {
	classifier *Classifier
}

// NewParser returns a parser using c for the classification pass. A nil
// classifier means DefaultClassifier.
func NewParser(c *Classifier) *Parser {
	if c == nil {
		c = DefaultClassifier()
	}
	return &Parser{classifier: c}
}

// Parse parses text with the default classifier.
func Parse(text string) []model.ItineraryItem {
	return NewParser(nil).Parse(text)
}

// parseStats is only used for the debug summary.
type parseStats struct {
	lines     int
	headers   int
	notes     int
	discarded int
}

// Parse runs a single forward pass over the non-blank lines of text.
//
//   - A short line (or one starting with "day"/"date") holding a date sets
//     the date context and produces nothing else.
//   - A line holding a time token starts a new item.
//   - Other lines add location, duration or notes to the open item, or are
//     dropped when no item is open yet.
//
// Parse never fails; unrecognized input only lowers extraction quality.
func (p *Parser) Parse(text string) []model.ItineraryItem {
	items := make([]model.ItineraryItem, 0)

	var (
		current  *model.ItineraryItem
		dateCtx  *civil.Date
		stats    parseStats
		commitFn = func() {
			if current != nil && current.Activity != "" {
				items = append(items, *current)
			}
		}
	)

	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		stats.lines++

		if d, ok := dateHeader(line); ok {
			dc := d
			dateCtx = &dc
			stats.headers++
			continue
		}

		if loc := timePattern.FindStringIndex(line); loc != nil {
			commitFn()
			current = newItem(line, loc, dateCtx)
			continue
		}

		if current == nil {
			stats.discarded++
			continue
		}

		if !applyDetails(current, line) {
			current.Notes = append(current.Notes, line)
			stats.notes++
		}
	}
	commitFn()

	for i := range items {
		items[i].Type = p.classifier.Classify(items[i].Activity)
	}

	appLog.Debug("agenda parse completed",
		"lines", stats.lines,
		"items", len(items),
		"date_headers", stats.headers,
		"notes", stats.notes,
		"discarded", stats.discarded,
	)
	return items
}

// dateHeader reports whether line is a date header and returns its date.
// A malformed date is not a header; the caller keeps processing the line.
func dateHeader(line string) (civil.Date, bool) {
	m := datePattern.FindStringSubmatch(line)
	if m == nil {
		return civil.Date{}, false
	}
	lower := strings.ToLower(line)
	if utf8.RuneCountInString(line) >= maxHeaderLen &&
		!strings.HasPrefix(lower, "day") && !strings.HasPrefix(lower, "date") {
		return civil.Date{}, false
	}
	if m[2] != m[4] {
		return civil.Date{}, false
	}

	month, _ := strconv.Atoi(m[1])
	day, _ := strconv.Atoi(m[3])
	year, _ := strconv.Atoi(m[5])
	if year < 100 {
		year += 2000
	}

	d := civil.Date{Year: year, Month: time.Month(month), Day: day}
	if !d.IsValid() {
		appLog.Debug("agenda: ignoring invalid date header", "line", line)
		return civil.Date{}, false
	}
	return d, true
}

// newItem starts an item from a line whose time token spans loc.
func newItem(line string, loc []int, dateCtx *civil.Date) *model.ItineraryItem {
	item := &model.ItineraryItem{
		Time: strings.TrimSpace(line[loc[0]:loc[1]]),
	}
	if dateCtx != nil {
		d := *dateCtx
		item.Date = &d
	}
	if c, err := model.ParseClock(item.Time); err == nil {
		item.Clock = &c
	}

	activity := strings.TrimSpace(line[loc[1]:])
	activity = strings.TrimSpace(leadPunct.ReplaceAllString(activity, ""))
	if activity == "" {
		activity = model.UnknownActivity
	}
	item.Activity = activity
	return item
}

// applyDetails sets location and duration from line. It reports whether
// either field was set; later matches overwrite earlier ones. The location
// cue is a lowercase "at" word, so "At least" or "Attic" are left alone. A
// duration too large for minutes in an int is ignored.
func applyDetails(item *model.ItineraryItem, line string) bool {
	matched := false

	if m := locationPattern.FindStringSubmatch(line); m != nil {
		if loc := strings.TrimSpace(m[1]); loc != "" {
			item.Location = loc
			matched = true
		}
	}

	if m := durationPattern.FindStringSubmatch(line); m != nil {
		if minutes, ok := durationMinutes(m[1], m[2]); ok {
			item.DurationMinutes = &minutes
			matched = true
		}
	}

	return matched
}

func durationMinutes(amount, unit string) (int, bool) {
	n, err := strconv.Atoi(amount)
	if err != nil {
		return 0, false
	}
	if strings.HasPrefix(strings.ToLower(unit), "m") {
		return n, true
	}
	if n > math.MaxInt/60 {
		return 0, false
	}
	return n * 60, true
}
