package schedule

import (
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"

	appLog "tourcal/internal/log"
	"tourcal/internal/model"
)

// DefaultLeadMinutes is how long before an activity its reminder fires.
const DefaultLeadMinutes = 15

// Notifier records a reminder and returns its identifier.
type Notifier interface {
	Add(title, message string, scheduledAt time.Time) string
}

// ReminderTime returns when the reminder for item should fire: the item's
// date (or now's date when the item has none) at its start time, minus
// leadMinutes, in now's location.
func ReminderTime(item model.ItineraryItem, leadMinutes int, now time.Time) (time.Time, error) {
	if leadMinutes < 0 {
		return time.Time{}, errors.New("lead time must not be negative")
	}
	start, err := item.ResolveClock()
	if err != nil {
		return time.Time{}, err
	}

	day := civil.DateOf(now)
	if item.Date != nil {
		day = *item.Date
	}
	if !day.IsValid() {
		return time.Time{}, fmt.Errorf("invalid date %v", day)
	}

	at := civil.DateTime{Date: day, Time: start}.In(now.Location())
	return at.Add(-time.Duration(leadMinutes) * time.Minute), nil
}

// ScheduleReminder creates a reminder for item through n.
//
// Nothing is created, and ok is false, when the item's time cannot be
// parsed or when the fire time is not after now. Errors are never returned
// to the caller.
func ScheduleReminder(n Notifier, item model.ItineraryItem, leadMinutes int, now time.Time) (id string, ok bool) {
	if n == nil {
		return "", false
	}

	fireAt, err := ReminderTime(item, leadMinutes, now)
	if err != nil {
		appLog.Debug("reminder not scheduled", "activity", item.Activity, "time", item.Time, "reason", err.Error())
		return "", false
	}
	if !fireAt.After(now) {
		appLog.Debug("reminder not scheduled; fire time already passed",
			"activity", item.Activity,
			"fire_at", fireAt.Format(time.RFC3339),
		)
		return "", false
	}

	activity := item.Activity
	if activity == "" {
		activity = "upcoming activity"
	}
	title := "Upcoming: " + activity
	message := fmt.Sprintf("Starting in %d minutes", leadMinutes)
	if item.Location != "" {
		message += " at " + item.Location
	}

	id = n.Add(title, message, fireAt)
	if id == "" {
		return "", false
	}
	appLog.Info("reminder scheduled", "id", id, "activity", activity, "fire_at", fireAt.Format(time.RFC3339))
	return id, true
}

// ScheduleAll schedules reminders for every item dated today or later and
// returns a copy of items with NotificationID filled in where one was
// created. Undated and past-dated items are skipped.
func ScheduleAll(n Notifier, items []model.ItineraryItem, leadMinutes int, now time.Time) []model.ItineraryItem {
	out := make([]model.ItineraryItem, len(items))
	copy(out, items)

	today := civil.DateOf(now)
	scheduled := 0
	for i := range out {
		if out[i].Date == nil || out[i].Date.Before(today) {
			continue
		}
		if id, ok := ScheduleReminder(n, out[i], leadMinutes, now); ok {
			out[i].NotificationID = id
			scheduled++
		}
	}

	appLog.Info("reminders scheduled for itinerary", "items", len(items), "scheduled", scheduled, "lead_minutes", leadMinutes)
	return out
}
