package ics

import (
	"errors"
	"io"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "tourcal/internal/log"
)

// ErrNoEvents is returned when a calendar holds no usable VEVENT.
var ErrNoEvents = errors.New("ics: calendar has no events")

// ParsedEvent is a VEVENT reduced to the fields an itinerary needs.
// Recurrences are kept unexpanded; see expand.go.
type ParsedEvent struct {
	UID string

	Summary     string
	Description string
	Location    string
	Categories  []string

	Start  time.Time
	End    time.Time
	AllDay bool

	RawRRule string
	ExDates  []time.Time

	// Recurrence is the RECURRENCE-ID of an override instance.
	Recurrence *time.Time
}

// IsOverride reports whether the event replaces one instance of a
// recurring event.
func (ev ParsedEvent) IsOverride() bool {
	return ev.Recurrence != nil
}

// ReadEvents parses an iCalendar stream. Events that cannot be read are
// logged and skipped; the call fails only if the stream itself is invalid
// or no event survives.
func ReadEvents(r io.Reader, loc *time.Location) ([]ParsedEvent, error) {
	if loc == nil {
		loc = time.Local
	}

	cal, err := ical.ParseCalendar(r)
	if err != nil {
		return nil, err
	}

	events := make([]ParsedEvent, 0)
	for _, ve := range cal.Events() {
		ev, err := readEvent(ve, loc)
		if err != nil {
			appLog.Warn("ics: skipping event", "uid", ve.Id(), "reason", err.Error())
			continue
		}
		events = append(events, ev)
	}
	if len(events) == 0 {
		return nil, ErrNoEvents
	}

	appLog.Debug("ics: events read", "count", len(events))
	return events, nil
}

func readEvent(ve *ical.VEvent, loc *time.Location) (ParsedEvent, error) {
	ev := ParsedEvent{
		UID:         ve.Id(),
		Summary:     propValue(ve, ical.ComponentPropertySummary),
		Description: propValue(ve, ical.ComponentPropertyDescription),
		Location:    propValue(ve, ical.ComponentPropertyLocation),
	}
	if ev.UID == "" {
		return ev, errors.New("missing UID")
	}

	for _, p := range ve.GetProperties(ical.ComponentPropertyCategories) {
		for _, c := range strings.Split(p.Value, ",") {
			if c = strings.TrimSpace(c); c != "" {
				ev.Categories = append(ev.Categories, c)
			}
		}
	}

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil {
		return ev, errors.New("missing DTSTART")
	}
	ev.AllDay = isDateValue(dtStart)

	var err error
	if ev.AllDay {
		ev.Start, err = ve.GetAllDayStartAt()
	} else {
		ev.Start, err = ve.GetStartAt()
	}
	if err != nil {
		return ev, err
	}
	ev.Start = floating(dtStart, ev.Start, loc)

	switch end, endErr := ve.GetEndAt(); {
	case endErr == nil:
		ev.End = floating(ve.GetProperty(ical.ComponentPropertyDtEnd), end, loc)
	case ev.AllDay:
		ev.End = ev.Start.AddDate(0, 0, 1)
	default:
		ev.End = ev.Start
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		ev.RawRRule = p.Value
	}

	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		pLoc := paramLocation(p, loc)
		for _, part := range strings.Split(p.Value, ",") {
			if t, err := parseStamp(part, pLoc); err == nil {
				ev.ExDates = append(ev.ExDates, t)
			}
		}
	}

	if p := ve.GetProperty(ical.ComponentPropertyRecurrenceId); p != nil {
		if t, err := parseStamp(p.Value, paramLocation(p, loc)); err == nil {
			ev.Recurrence = &t
		}
	}

	return ev, nil
}

func propValue(ve *ical.VEvent, prop ical.ComponentProperty) string {
	if p := ve.GetProperty(prop); p != nil {
		return strings.TrimSpace(p.Value)
	}
	return ""
}

// isDateValue reports whether a DTSTART holds a date without a time.
func isDateValue(p *ical.IANAProperty) bool {
	if vs, ok := p.ICalParameters[string(ical.ParameterValue)]; ok && len(vs) > 0 &&
		strings.EqualFold(vs[0], string(ical.ValueDataTypeDate)) {
		return true
	}
	return !strings.Contains(p.Value, "T")
}

// floating re-reads a local time without TZID in loc. The calendar
// library places such values in time.Local.
func floating(p *ical.IANAProperty, t time.Time, loc *time.Location) time.Time {
	if p == nil || strings.HasSuffix(p.Value, "Z") {
		return t
	}
	if _, ok := p.ICalParameters[string(ical.ParameterTzid)]; ok {
		return t
	}
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, loc)
}

// paramLocation honours a TZID parameter, falling back to def.
func paramLocation(p *ical.IANAProperty, def *time.Location) *time.Location {
	if tzs, ok := p.ICalParameters[string(ical.ParameterTzid)]; ok && len(tzs) > 0 {
		if l, err := time.LoadLocation(tzs[0]); err == nil {
			return l
		}
	}
	return def
}

// parseStamp parses the basic DATE / DATE-TIME / UTC forms used by EXDATE
// and RECURRENCE-ID.
func parseStamp(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	switch {
	case v == "":
		return time.Time{}, errors.New("empty time value")
	case strings.HasSuffix(v, "Z"):
		return time.Parse("20060102T150405Z", v)
	case strings.Contains(v, "T"):
		return time.ParseInLocation("20060102T150405", v, loc)
	case len(v) == 8:
		return time.ParseInLocation("20060102", v, loc)
	default:
		return time.Time{}, errors.New("unsupported time value " + strconv.Quote(v))
	}
}
