package model

import (
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/civil"
)

// UnknownActivity is used when a time line carries no description.
const UnknownActivity = "Unknown activity"

// ActivityType is the coarse category assigned to an itinerary item.
type ActivityType string

const (
	TypeMeal           ActivityType = "meal"
	TypeAttraction     ActivityType = "attraction"
	TypeAccommodation  ActivityType = "accommodation"
	TypeTransportation ActivityType = "transportation"
	TypeOther          ActivityType = "other"
)

// ActivityTypes lists every type in classification order.
var ActivityTypes = []ActivityType{
	TypeMeal,
	TypeAttraction,
	TypeAccommodation,
	TypeTransportation,
	TypeOther,
}

// ParseActivityType validates a type name coming from manual entry or config.
func ParseActivityType(s string) (ActivityType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, t := range ActivityTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown activity type %q", s)
}

// ItineraryItem is one scheduled activity of a tour agenda.
type ItineraryItem struct {
	// Date is the day of the activity, inherited from the nearest preceding
	// date header. Nil means the day is unknown.
	Date *civil.Date `json:"date,omitempty"`

	// Time is the start time as written in the source (display form).
	Time string `json:"time"`
	// Clock is Time parsed into a time of day. Nil when Time could not be
	// parsed; ordering never falls back to comparing Time strings.
	Clock *civil.Time `json:"-"`

	Activity string `json:"activity"`
	Location string `json:"location,omitempty"`

	DurationMinutes *int     `json:"duration_minutes,omitempty"`
	Notes           []string `json:"notes,omitempty"`

	Type ActivityType `json:"type"`

	// NotificationID is attached by the schedule resolver.
	NotificationID string `json:"notification_id,omitempty"`
}

// NewManualItem builds an item entered by hand. Manual items carry an
// explicit type and are never passed through keyword classification.
func NewManualItem(date civil.Date, clock civil.Time, activity, location string, durationMinutes int, notes string, typ ActivityType) (ItineraryItem, error) {
	activity = strings.TrimSpace(activity)
	if activity == "" {
		return ItineraryItem{}, errors.New("activity is required")
	}
	if !date.IsValid() {
		return ItineraryItem{}, fmt.Errorf("invalid date %v", date)
	}
	if !clock.IsValid() {
		return ItineraryItem{}, fmt.Errorf("invalid time %v", clock)
	}
	if durationMinutes < 0 {
		return ItineraryItem{}, errors.New("duration must not be negative")
	}
	if _, err := ParseActivityType(string(typ)); err != nil {
		return ItineraryItem{}, err
	}

	d := date
	c := civil.Time{Hour: clock.Hour, Minute: clock.Minute}
	dur := durationMinutes
	item := ItineraryItem{
		Date:            &d,
		Time:            FormatClock(c),
		Clock:           &c,
		Activity:        activity,
		Location:        strings.TrimSpace(location),
		DurationMinutes: &dur,
		Type:            typ,
	}
	if n := strings.TrimSpace(notes); n != "" {
		item.Notes = []string{n}
	}
	return item, nil
}

// HasDate reports whether the item is attached to a calendar day.
func (it ItineraryItem) HasDate() bool {
	return it.Date != nil
}

// Duration returns the duration in minutes, or 0 if unknown.
func (it ItineraryItem) Duration() int {
	if it.DurationMinutes == nil {
		return 0
	}
	return *it.DurationMinutes
}

// ResolveClock returns the item's time of day, parsing Time when the item was
// built without a Clock.
func (it ItineraryItem) ResolveClock() (civil.Time, error) {
	if it.Clock != nil {
		return *it.Clock, nil
	}
	return ParseClock(it.Time)
}
