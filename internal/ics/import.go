package ics

import (
	"io"
	"strings"
	"time"

	"cloud.google.com/go/civil"

	"tourcal/internal/agenda"
	appLog "tourcal/internal/log"
	"tourcal/internal/model"
)

// DefaultHorizon bounds an import when no range end is given.
const DefaultHorizon = 30 * 24 * time.Hour

// ImportOptions controls how a calendar becomes itinerary items.
type ImportOptions struct {
	// Location is the zone item dates and times are expressed in.
	// Nil means time.Local.
	Location *time.Location

	// RangeStart defaults to the earliest event start. RangeEnd defaults to
	// RangeStart plus Horizon.
	RangeStart time.Time
	RangeEnd   time.Time
	Horizon    time.Duration

	// Classifier types events whose CATEGORIES name no known activity type.
	// Nil means agenda.DefaultClassifier().
	Classifier *agenda.Classifier

	MaxOccurrencesPerEvent int
}

// Import reads an iCalendar stream and returns its occurrences as itinerary
// items ordered by start time. All-day events become items with a date and
// no time.
func Import(r io.Reader, opts ImportOptions) ([]model.ItineraryItem, error) {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Classifier == nil {
		opts.Classifier = agenda.DefaultClassifier()
	}
	if opts.Horizon <= 0 {
		opts.Horizon = DefaultHorizon
	}

	events, err := ReadEvents(r, opts.Location)
	if err != nil {
		return nil, err
	}

	if opts.RangeStart.IsZero() {
		opts.RangeStart = earliestStart(events)
	}
	if opts.RangeEnd.IsZero() {
		opts.RangeEnd = opts.RangeStart.Add(opts.Horizon)
	}

	occs, err := Expand(events, ExpandConfig{
		Location:               opts.Location,
		RangeStart:             opts.RangeStart,
		RangeEnd:               opts.RangeEnd,
		MaxOccurrencesPerEvent: opts.MaxOccurrencesPerEvent,
	})
	if err != nil {
		return nil, err
	}

	items := make([]model.ItineraryItem, 0, len(occs))
	for _, occ := range occs {
		items = append(items, itemFromOccurrence(occ, opts.Classifier))
	}

	appLog.Info("ics: calendar imported", "events", len(events), "items", len(items))
	return items, nil
}

func earliestStart(events []ParsedEvent) time.Time {
	var first time.Time
	for _, ev := range events {
		if ev.IsOverride() {
			continue
		}
		if first.IsZero() || ev.Start.Before(first) {
			first = ev.Start
		}
	}
	return first
}

func itemFromOccurrence(occ Occurrence, c *agenda.Classifier) model.ItineraryItem {
	d := civil.DateOf(occ.Start)
	item := model.ItineraryItem{
		Date:     &d,
		Activity: occ.Summary,
		Location: occ.Location,
		Notes:    noteLines(occ.Description),
	}
	if item.Activity == "" {
		item.Activity = model.UnknownActivity
	}

	if !occ.AllDay {
		ct := civil.TimeOf(occ.Start)
		clock := civil.Time{Hour: ct.Hour, Minute: ct.Minute}
		item.Clock = &clock
		item.Time = model.FormatClock(clock)

		if mins := int(occ.End.Sub(occ.Start) / time.Minute); mins > 0 {
			item.DurationMinutes = &mins
		}
	}

	item.Type = c.Classify(item.Activity)
	for _, cat := range occ.Categories {
		if t, err := model.ParseActivityType(cat); err == nil {
			item.Type = t
			break
		}
	}
	return item
}

func noteLines(desc string) []string {
	var notes []string
	for _, line := range strings.Split(desc, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			notes = append(notes, line)
		}
	}
	return notes
}
