package model

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"cloud.google.com/go/civil"
)

var clockPattern = regexp.MustCompile(`(?i)^(\d{1,2}):(\d{2})\s*(AM|PM)?$`)

// ParseClock parses "H:MM AM/PM" (space optional, any case) or a bare
// 24-hour "H:MM" into a time of day.
//
// The hour must be 0..23 in every form. 12 AM is hour 0 and PM adds 12
// only to hours below 12, so "0:30 AM" and "13:00 PM" read as 24-hour
// values.
func ParseClock(s string) (civil.Time, error) {
	m := clockPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return civil.Time{}, fmt.Errorf("unrecognized time %q", s)
	}

	hour, err := strconv.Atoi(m[1])
	if err != nil {
		return civil.Time{}, err
	}
	minute, err := strconv.Atoi(m[2])
	if err != nil {
		return civil.Time{}, err
	}
	if hour > 23 {
		return civil.Time{}, fmt.Errorf("hour out of range in %q", s)
	}
	if minute > 59 {
		return civil.Time{}, fmt.Errorf("minute out of range in %q", s)
	}

	switch strings.ToUpper(m[3]) {
	case "AM":
		if hour == 12 {
			hour = 0
		}
	case "PM":
		if hour < 12 {
			hour += 12
		}
	}

	return civil.Time{Hour: hour, Minute: minute}, nil
}

// FormatClock renders a time of day as "3:04 PM" with no hour padding.
func FormatClock(t civil.Time) string {
	h := t.Hour % 12
	if h == 0 {
		h = 12
	}
	suffix := "AM"
	if t.Hour >= 12 {
		suffix = "PM"
	}
	return fmt.Sprintf("%d:%02d %s", h, t.Minute, suffix)
}
