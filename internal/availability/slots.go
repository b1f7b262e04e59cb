package availability

import (
	"sort"

	"github.com/jwalitptl/clinic-portal/internal/model"
)

const (
	PeriodMorning   = "Morning"
	PeriodAfternoon = "Afternoon"
	PeriodEvening   = "Evening"
)

// EmptyMessage is shown when no slot in the list can be booked.
const EmptyMessage = "No available time slots for this date. Please choose another date."

type SlotGroup struct {
	Period string           `json:"period"`
	Slots  []model.TimeSlot `json:"slots"`
}

// SlotPicker is the presentation of one day's slots. Empty is a distinct
// state, never an empty grid.
type SlotPicker struct {
	Groups  []SlotGroup `json:"groups"`
	Empty   bool        `json:"empty"`
	Message string      `json:"message,omitempty"`
}

// PeriodOf buckets an HH:MM time: before 12:00 morning, 12:00 to 17:59
// afternoon, from 18:00 evening.
func PeriodOf(hhmm string) string {
	t := model.TruncateTime(hhmm)
	switch {
	case t < "12:00":
		return PeriodMorning
	case t < "18:00":
		return PeriodAfternoon
	default:
		return PeriodEvening
	}
}

// GroupSlots keeps only available slots, normalizes times to HH:MM and
// groups them by period. Periods without slots are omitted.
func GroupSlots(slots []model.TimeSlot) SlotPicker {
	buckets := map[string][]model.TimeSlot{}
	for _, s := range slots {
		if !s.Available {
			continue
		}
		s.Time = model.TruncateTime(s.Time)
		p := PeriodOf(s.Time)
		buckets[p] = append(buckets[p], s)
	}

	var picker SlotPicker
	for _, p := range []string{PeriodMorning, PeriodAfternoon, PeriodEvening} {
		list := buckets[p]
		if len(list) == 0 {
			continue
		}
		sort.Slice(list, func(i, j int) bool { return list[i].Time < list[j].Time })
		picker.Groups = append(picker.Groups, SlotGroup{Period: p, Slots: list})
	}
	if len(picker.Groups) == 0 {
		picker.Groups = []SlotGroup{}
		picker.Empty = true
		picker.Message = EmptyMessage
	}
	return picker
}

// FindAvailable returns the available slot with the given time, matching
// "09:00" against "09:00:00".
func FindAvailable(slots []model.TimeSlot, hhmm string) (model.TimeSlot, bool) {
	want := model.TruncateTime(hhmm)
	for _, s := range slots {
		if s.Available && model.TruncateTime(s.Time) == want {
			return s, true
		}
	}
	return model.TimeSlot{}, false
}
