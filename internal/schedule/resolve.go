package schedule

import (
	"time"

	"cloud.google.com/go/civil"

	"tourcal/internal/model"
)

// DefaultLookahead is the number of upcoming items shown after the current one.
const DefaultLookahead = 3

// FindCurrent returns the index of the item in progress at now.
//
// Only items dated on now's calendar day are considered. Among them, the
// first item starting after now (at minute precision) is "not yet started"
// and the index right before it is returned, clamped at 0. When every item
// of the day has started the last one is current. With no items for today
// the result is 0.
//
// Start times are compared numerically; items whose time cannot be parsed
// count as already started.
func FindCurrent(items []model.ItineraryItem, now time.Time) int {
	today := civil.DateOf(now)
	nowClock := civil.Time{Hour: now.Hour(), Minute: now.Minute()}

	todayIdx := make([]int, 0)
	for i, it := range items {
		if it.Date != nil && *it.Date == today {
			todayIdx = append(todayIdx, i)
		}
	}
	if len(todayIdx) == 0 {
		return 0
	}

	for _, idx := range todayIdx {
		start, err := items[idx].ResolveClock()
		if err != nil {
			continue
		}
		if start.After(nowClock) {
			return max(0, idx-1)
		}
	}
	return todayIdx[len(todayIdx)-1]
}

// NextItems returns up to count items strictly after current. An out of
// range current or a non-positive count yields an empty slice.
func NextItems(items []model.ItineraryItem, current, count int) []model.ItineraryItem {
	if current < 0 || current >= len(items) || count <= 0 {
		return []model.ItineraryItem{}
	}
	end := min(current+count+1, len(items))
	out := make([]model.ItineraryItem, end-current-1)
	copy(out, items[current+1:end])
	return out
}

// View is the "where am I now" snapshot of an itinerary.
type View struct {
	CurrentIndex int                   `json:"current_index"`
	Current      *model.ItineraryItem  `json:"current,omitempty"`
	Next         []model.ItineraryItem `json:"next"`
}

// Resolve combines FindCurrent and NextItems.
func Resolve(items []model.ItineraryItem, now time.Time, lookahead int) View {
	idx := FindCurrent(items, now)
	v := View{
		CurrentIndex: idx,
		Next:         NextItems(items, idx, lookahead),
	}
	if idx < len(items) {
		cur := items[idx]
		v.Current = &cur
	}
	return v
}
