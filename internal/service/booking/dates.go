package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/jwalitptl/clinic-portal/internal/apiclient"
	"github.com/jwalitptl/clinic-portal/internal/availability"
	"github.com/jwalitptl/clinic-portal/internal/model"
)

// DateSource lists the dates offered at the select-date step.
type DateSource interface {
	AvailableDates(ctx context.Context, doctorID string, service model.MedicalService) ([]string, error)
}

const (
	DateSourceSchedule    = "schedule"
	DateSourcePlaceholder = "placeholder"
)

// PlaceholderDates offers every day of the window except Sundays, starting
// today, without asking the API.
type PlaceholderDates struct {
	Days int
	Now  func() time.Time
}

func (p PlaceholderDates) AvailableDates(_ context.Context, _ string, _ model.MedicalService) ([]string, error) {
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	today := now()
	start := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, today.Location())
	var out []string
	for i := 0; i < p.Days; i++ {
		d := start.AddDate(0, 0, i)
		if d.Weekday() == time.Sunday {
			continue
		}
		out = append(out, model.FormatDate(d))
	}
	return out, nil
}

// ScheduleDates derives the dates from the doctor's recurring schedules and
// exceptions.
type ScheduleDates struct {
	Schedules  ScheduleLister
	Exceptions ExceptionLister
	Days       int
	Now        func() time.Time
}

func (s ScheduleDates) AvailableDates(ctx context.Context, doctorID string, _ model.MedicalService) ([]string, error) {
	schedules, err := s.Schedules.ListByDoctor(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("failed to load schedules: %w", err)
	}
	exceptions, err := s.Exceptions.ListByDoctor(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("failed to load exceptions: %w", err)
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	return availability.NewResolver(schedules, exceptions).AvailableDates(now(), s.Days), nil
}

// NewDateSource builds the configured source for one authenticated client.
func NewDateSource(kind string, days int, c *apiclient.Client, now func() time.Time) DateSource {
	if kind == DateSourcePlaceholder {
		return PlaceholderDates{Days: days, Now: now}
	}
	return ScheduleDates{Schedules: c.Schedules, Exceptions: c.Exceptions, Days: days, Now: now}
}
