// Package dashboard assembles the landing page of each role from
// independent API calls issued concurrently.
package dashboard

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jwalitptl/clinic-portal/internal/apiclient"
	"github.com/jwalitptl/clinic-portal/internal/model"
	"github.com/jwalitptl/clinic-portal/internal/service/appointment"
	apperrors "github.com/jwalitptl/clinic-portal/pkg/errors"
	"github.com/jwalitptl/clinic-portal/pkg/logger"
)

type Session interface {
	User() (model.User, bool)
	Client() *apiclient.Client
	PatientID(ctx context.Context) (string, error)
	DoctorID(ctx context.Context) (string, error)
}

type DoctorStats struct {
	Today           []model.Appointment `json:"today"`
	Upcoming        []model.Appointment `json:"upcoming"`
	PendingConfirm  int                 `json:"pendingConfirmation"`
	ActiveServices  int                 `json:"activeServices"`
	ActiveSchedules int                 `json:"activeSchedules"`
}

type PatientStats struct {
	Upcoming     []model.Appointment             `json:"upcoming"`
	Completed    int                             `json:"completed"`
	Histories    []model.GeneratedMedicalHistory `json:"histories"`
	HasHistory   bool                            `json:"hasHistory"`
	HistoryError string                          `json:"historyError,omitempty"`
}

type Service struct {
	log *logger.Logger
	now func() time.Time
}

func NewService(log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{log: log, now: time.Now}
}

// Doctor loads the doctor's appointments, services and schedules at once.
// Any failed call fails the dashboard.
func (s *Service) Doctor(ctx context.Context, sess Session) (*DoctorStats, error) {
	doctorID, err := sess.DoctorID(ctx)
	if err != nil {
		return nil, err
	}
	client := sess.Client()

	var (
		appts     []model.Appointment
		services  []model.MedicalService
		schedules []model.DoctorSchedule
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		list, err := client.Appointments.ListByDoctor(gctx, doctorID)
		if err != nil {
			return fmt.Errorf("failed to load appointments: %w", err)
		}
		appts = list
		return nil
	})
	g.Go(func() error {
		list, err := client.Services.ListByDoctor(gctx, doctorID)
		if err != nil {
			return fmt.Errorf("failed to load services: %w", err)
		}
		services = list
		return nil
	})
	g.Go(func() error {
		list, err := client.Schedules.ListByDoctor(gctx, doctorID)
		if err != nil {
			return fmt.Errorf("failed to load schedules: %w", err)
		}
		schedules = list
		return nil
	})
	if err := g.Wait(); err != nil {
		s.log.WithContext(ctx).Error(err, "doctor dashboard failed", "doctor", doctorID)
		return nil, err
	}

	today := model.FormatDate(s.now())
	stats := &DoctorStats{Today: []model.Appointment{}, Upcoming: []model.Appointment{}}
	appointment.SortChronologically(appts)
	for _, a := range appts {
		if a.Status.Terminal() {
			continue
		}
		switch date := a.Date(); {
		case date == today:
			stats.Today = append(stats.Today, a)
		case date > today:
			stats.Upcoming = append(stats.Upcoming, a)
		}
		if a.Date() >= today && model.ActionConfirm.CanApply(a.Status) {
			stats.PendingConfirm++
		}
	}
	for _, sv := range services {
		if sv.IsActive {
			stats.ActiveServices++
		}
	}
	for _, sc := range schedules {
		if sc.IsActive {
			stats.ActiveSchedules++
		}
	}
	return stats, nil
}

// Patient loads appointments and histories at once. The history list is
// secondary: its failure is reported in HistoryError instead of failing
// the whole dashboard.
func (s *Service) Patient(ctx context.Context, sess Session) (*PatientStats, error) {
	patientID, err := sess.PatientID(ctx)
	if err != nil {
		return nil, err
	}
	client := sess.Client()

	var (
		appts      []model.Appointment
		histories  []model.GeneratedMedicalHistory
		historyErr error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		list, err := client.Appointments.ListByPatient(gctx, patientID)
		if err != nil {
			return fmt.Errorf("failed to load appointments: %w", err)
		}
		appts = list
		return nil
	})
	g.Go(func() error {
		histories, historyErr = client.MedicalHistory.ListByPatient(gctx, patientID)
		return nil
	})
	if err := g.Wait(); err != nil {
		s.log.WithContext(ctx).Error(err, "patient dashboard failed", "patient", patientID)
		return nil, err
	}

	today := model.FormatDate(s.now())
	stats := &PatientStats{Upcoming: []model.Appointment{}, Histories: histories}
	appointment.SortChronologically(appts)
	for _, a := range appts {
		if a.Status == model.AppointmentStatusCompleted {
			stats.Completed++
		}
		if !a.Status.Terminal() && a.Date() >= today {
			stats.Upcoming = append(stats.Upcoming, a)
		}
	}
	if historyErr != nil {
		s.log.WithContext(ctx).Warn("history list unavailable", "patient", patientID, "error", historyErr.Error())
		stats.HistoryError = apperrors.UserMessage(historyErr)
		stats.Histories = nil
	}
	stats.HasHistory = len(stats.Histories) > 0
	return stats, nil
}
