// Package availability turns doctor schedules, exceptions and
// server-computed slots into what the booking screens present: a month
// calendar, grouped time slots and per-day availability.
package availability

import (
	"fmt"
	"sort"
	"time"

	"github.com/jwalitptl/clinic-portal/internal/model"
)

// Window is a half-open [Start, End) range of HH:MM times.
type Window struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// DayAvailability describes one calendar date for a doctor.
type DayAvailability struct {
	Date      string       `json:"date"`
	Weekday   time.Weekday `json:"weekday"`
	Available bool         `json:"available"`
	// Blocked is set when a full-day exception covers the date.
	Blocked bool     `json:"blocked"`
	Reason  string   `json:"reason,omitempty"`
	Windows []Window `json:"windows"`
}

// Resolver answers availability questions from one doctor's recurring
// schedules and exceptions. Exceptions win over schedules for their date.
type Resolver struct {
	byDay      map[time.Weekday][]Window
	exceptions map[string][]model.ScheduleException
}

func NewResolver(schedules []model.DoctorSchedule, exceptions []model.ScheduleException) *Resolver {
	r := &Resolver{
		byDay:      make(map[time.Weekday][]Window),
		exceptions: make(map[string][]model.ScheduleException),
	}
	for _, s := range schedules {
		if !s.IsActive || s.DayOfWeek < 0 || s.DayOfWeek > 6 {
			continue
		}
		w := Window{Start: model.TruncateTime(s.StartTime), End: model.TruncateTime(s.EndTime)}
		if w.End <= w.Start {
			continue
		}
		r.byDay[s.Weekday()] = append(r.byDay[s.Weekday()], w)
	}
	for day := range r.byDay {
		ws := r.byDay[day]
		sort.Slice(ws, func(i, j int) bool { return ws[i].Start < ws[j].Start })
	}
	for _, e := range exceptions {
		r.exceptions[e.Date()] = append(r.exceptions[e.Date()], e)
	}
	return r
}

// Day resolves a single date.
func (r *Resolver) Day(date time.Time) DayAvailability {
	key := model.FormatDate(date)
	day := DayAvailability{Date: key, Weekday: date.Weekday()}
	windows := append([]Window(nil), r.byDay[date.Weekday()]...)

	for _, e := range r.exceptions[key] {
		if e.IsFullDay() {
			day.Blocked = true
			if e.Reason != nil {
				day.Reason = *e.Reason
			}
			windows = nil
			break
		}
		windows = subtract(windows, Window{
			Start: model.TruncateTime(*e.StartTime),
			End:   model.TruncateTime(*e.EndTime),
		})
		if e.Reason != nil && day.Reason == "" {
			day.Reason = *e.Reason
		}
	}

	day.Windows = windows
	if day.Windows == nil {
		day.Windows = []Window{}
	}
	day.Available = len(windows) > 0
	return day
}

// Range resolves days consecutive dates starting at from.
func (r *Resolver) Range(from time.Time, days int) []DayAvailability {
	out := make([]DayAvailability, 0, days)
	start := dateOnly(from)
	for i := 0; i < days; i++ {
		out = append(out, r.Day(start.AddDate(0, 0, i)))
	}
	return out
}

// Week resolves the seven days starting on the Sunday on or before date.
func (r *Resolver) Week(date time.Time) []DayAvailability {
	d := dateOnly(date)
	return r.Range(d.AddDate(0, 0, -int(d.Weekday())), 7)
}

// Month resolves every day of the month containing date.
func (r *Resolver) Month(date time.Time) []DayAvailability {
	first := time.Date(date.Year(), date.Month(), 1, 0, 0, 0, 0, date.Location())
	return r.Range(first, first.AddDate(0, 1, -1).Day())
}

// AvailableDates lists YYYY-MM-DD dates within [from, from+days) that have
// at least one open window.
func (r *Resolver) AvailableDates(from time.Time, days int) []string {
	var out []string
	for _, d := range r.Range(from, days) {
		if d.Available {
			out = append(out, d.Date)
		}
	}
	return out
}

// subtract removes cut from every window, splitting where needed.
func subtract(windows []Window, cut Window) []Window {
	if cut.End <= cut.Start {
		return windows
	}
	var out []Window
	for _, w := range windows {
		if cut.End <= w.Start || cut.Start >= w.End {
			out = append(out, w)
			continue
		}
		if cut.Start > w.Start {
			out = append(out, Window{Start: w.Start, End: cut.Start})
		}
		if cut.End < w.End {
			out = append(out, Window{Start: cut.End, End: w.End})
		}
	}
	return out
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func (w Window) String() string {
	return fmt.Sprintf("%s-%s", w.Start, w.End)
}
