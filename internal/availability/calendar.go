package availability

import (
	"fmt"
	"time"

	"github.com/jwalitptl/clinic-portal/internal/model"
)

// Day is one cell of the month grid.
type Day struct {
	Date       string `json:"date"`
	Day        int    `json:"day"`
	InMonth    bool   `json:"inMonth"`
	Today      bool   `json:"today"`
	Selected   bool   `json:"selected"`
	Selectable bool   `json:"selectable"`
}

// Calendar is a month view. Its only own state is the displayed month;
// the selected date is owned by the caller and passed in.
type Calendar struct {
	month    time.Time
	today    time.Time
	selected string
	disabled map[string]bool
	allowed  map[string]bool
}

type CalendarOption func(*Calendar)

// WithDisabled marks dates that can never be picked.
func WithDisabled(dates ...string) CalendarOption {
	return func(c *Calendar) {
		for _, d := range dates {
			c.disabled[model.NormalizeDate(d)] = true
		}
	}
}

// WithAllowed restricts picking to the given dates. An empty list still
// installs an allowlist, so nothing is selectable.
func WithAllowed(dates []string) CalendarOption {
	return func(c *Calendar) {
		c.allowed = make(map[string]bool, len(dates))
		for _, d := range dates {
			c.allowed[model.NormalizeDate(d)] = true
		}
	}
}

// WithSelected sets the externally controlled selection.
func WithSelected(date string) CalendarOption {
	return func(c *Calendar) { c.selected = model.NormalizeDate(date) }
}

// NewCalendar shows the month of the selection if any, else of today.
func NewCalendar(today time.Time, opts ...CalendarOption) *Calendar {
	c := &Calendar{today: dateOnly(today), disabled: make(map[string]bool)}
	for _, opt := range opts {
		opt(c)
	}
	anchor := c.today
	if c.selected != "" {
		if t, err := model.ParseDate(c.selected, today.Location()); err == nil {
			anchor = t
		}
	}
	c.month = time.Date(anchor.Year(), anchor.Month(), 1, 0, 0, 0, 0, today.Location())
	return c
}

func (c *Calendar) Month() time.Time { return c.month }

// Title is e.g. "October 2026".
func (c *Calendar) Title() string {
	return fmt.Sprintf("%s %d", c.month.Month(), c.month.Year())
}

func (c *Calendar) NextMonth() { c.month = c.month.AddDate(0, 1, 0) }

// PrevMonth never moves before the current month: earlier dates are all in
// the past.
func (c *Calendar) PrevMonth() {
	prev := c.month.AddDate(0, -1, 0)
	if prev.Before(time.Date(c.today.Year(), c.today.Month(), 1, 0, 0, 0, 0, c.today.Location())) {
		return
	}
	c.month = prev
}

// SetSelected updates the externally controlled selection.
func (c *Calendar) SetSelected(date string) { c.selected = model.NormalizeDate(date) }

// Selectable reports whether date can be picked: not in the past, not
// disabled and, if an allowlist exists, in it.
func (c *Calendar) Selectable(date string) bool {
	date = model.NormalizeDate(date)
	t, err := model.ParseDate(date, c.today.Location())
	if err != nil {
		return false
	}
	if t.Before(c.today) {
		return false
	}
	if c.disabled[date] {
		return false
	}
	if c.allowed != nil && !c.allowed[date] {
		return false
	}
	return true
}

// Select forwards date to onSelect when selectable. It changes nothing in
// the calendar itself.
func (c *Calendar) Select(date string, onSelect func(string)) bool {
	if !c.Selectable(date) {
		return false
	}
	if onSelect != nil {
		onSelect(model.NormalizeDate(date))
	}
	return true
}

// Grid returns the displayed month as weeks starting on Sunday, padded with
// the neighbouring months' days.
func (c *Calendar) Grid() [][]Day {
	first := c.month
	start := first.AddDate(0, 0, -int(first.Weekday()))
	last := first.AddDate(0, 1, -1)
	end := last.AddDate(0, 0, 6-int(last.Weekday()))

	var weeks [][]Day
	var week []Day
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		key := model.FormatDate(d)
		week = append(week, Day{
			Date:       key,
			Day:        d.Day(),
			InMonth:    d.Month() == first.Month(),
			Today:      d.Equal(c.today),
			Selected:   key == c.selected,
			Selectable: d.Month() == first.Month() && c.Selectable(key),
		})
		if len(week) == 7 {
			weeks = append(weeks, week)
			week = nil
		}
	}
	return weeks
}
