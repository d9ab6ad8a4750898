package ics

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	appLog "tourcal/internal/log"
	"tourcal/internal/model"
)

const productID = "-//tourcal//itinerary//EN"

// uidSpace namespaces the name-based UIDs of exported events, so exporting
// the same itinerary twice yields the same UIDs.
var uidSpace = uuid.MustParse("6f2f1f0e-7b53-4c3e-9d5c-0b1c7a6e2d41")

// ExportOptions controls calendar export.
type ExportOptions struct {
	// Location is the zone item dates and times are read in. Nil means
	// time.Local.
	Location *time.Location

	// DefaultDate is used for items without a date. When nil such items are
	// skipped.
	DefaultDate *civil.Date

	// LeadMinutes adds a display alarm this many minutes before each start.
	// Zero disables alarms.
	LeadMinutes int

	CalendarName string

	// Stamp is written as DTSTAMP. Zero means time.Now().
	Stamp time.Time
}

// Export writes items as an iCalendar document with one VEVENT per item
// that has a usable date and time. It returns how many events were written.
func Export(w io.Writer, items []model.ItineraryItem, opts ExportOptions) (int, error) {
	if opts.LeadMinutes < 0 {
		return 0, errors.New("ics: lead minutes must not be negative")
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Stamp.IsZero() {
		opts.Stamp = time.Now()
	}

	cal := ical.NewCalendar()
	cal.SetProductId(productID)
	cal.SetMethod(ical.MethodPublish)
	if opts.CalendarName != "" {
		cal.SetXWRCalName(opts.CalendarName)
	}

	written, skipped := 0, 0
	for i, it := range items {
		start, ok := itemStart(it, opts.DefaultDate, opts.Location)
		if !ok {
			skipped++
			continue
		}

		ev := cal.AddEvent(eventUID(i, it, start))
		ev.SetDtStampTime(opts.Stamp)
		ev.SetStartAt(start)
		ev.SetEndAt(start.Add(time.Duration(it.Duration()) * time.Minute))
		ev.SetSummary(it.Activity)
		if it.Location != "" {
			ev.SetLocation(it.Location)
		}
		if len(it.Notes) > 0 {
			ev.SetDescription(strings.Join(it.Notes, "\n"))
		}
		if it.Type != "" {
			ev.AddProperty(ical.ComponentPropertyCategories, string(it.Type))
		}
		if opts.LeadMinutes > 0 {
			alarm := ev.AddAlarm()
			alarm.SetAction(ical.ActionDisplay)
			alarm.SetTrigger(fmt.Sprintf("-PT%dM", opts.LeadMinutes))
			alarm.SetProperty(ical.ComponentPropertyDescription, it.Activity)
		}
		written++
	}

	if skipped > 0 {
		appLog.Debug("ics: items without date or time skipped", "count", skipped)
	}
	if err := cal.SerializeTo(w); err != nil {
		return 0, err
	}
	return written, nil
}

func itemStart(it model.ItineraryItem, def *civil.Date, loc *time.Location) (time.Time, bool) {
	clock, err := it.ResolveClock()
	if err != nil {
		return time.Time{}, false
	}
	d := def
	if it.Date != nil {
		d = it.Date
	}
	if d == nil {
		return time.Time{}, false
	}
	return civil.DateTime{Date: *d, Time: clock}.In(loc), true
}

func eventUID(idx int, it model.ItineraryItem, start time.Time) string {
	name := fmt.Sprintf("%d|%s|%s", idx, start.UTC().Format(time.RFC3339), it.Activity)
	return uuid.NewSHA1(uidSpace, []byte(name)).String() + "@tourcal"
}
