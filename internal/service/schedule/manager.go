package schedule

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jwalitptl/clinic-portal/internal/availability"
	"github.com/jwalitptl/clinic-portal/internal/model"
	apperrors "github.com/jwalitptl/clinic-portal/pkg/errors"
	"github.com/jwalitptl/clinic-portal/pkg/logger"
	"github.com/jwalitptl/clinic-portal/pkg/validator"
)

type ScheduleClient interface {
	ListByDoctor(ctx context.Context, doctorID string) ([]model.DoctorSchedule, error)
	Create(ctx context.Context, req model.CreateScheduleRequest) (*model.DoctorSchedule, error)
	Update(ctx context.Context, id string, req model.UpdateScheduleRequest) (*model.DoctorSchedule, error)
	SetActive(ctx context.Context, id string, active bool) error
	Delete(ctx context.Context, id string) error
}

type ExceptionClient interface {
	ListByDoctor(ctx context.Context, doctorID string) ([]model.ScheduleException, error)
	Create(ctx context.Context, req model.CreateExceptionRequest) (*model.ScheduleException, error)
	Delete(ctx context.Context, id string) error
}

// ScheduleForm is the create/edit form of a weekly window.
type ScheduleForm struct {
	DayOfWeek int    `json:"dayOfWeek" validate:"min=0,max=6"`
	StartTime string `json:"startTime" validate:"required,hhmm"`
	EndTime   string `json:"endTime" validate:"required,hhmm,timeafter=StartTime"`
	IsActive  *bool  `json:"isActive,omitempty"`
}

// ExceptionForm is the create form of a date exception. FullDay discards
// any times entered.
type ExceptionForm struct {
	ExceptionDate string `json:"exceptionDate" validate:"required,isodate"`
	FullDay       bool   `json:"fullDay"`
	StartTime     string `json:"startTime,omitempty"`
	EndTime       string `json:"endTime,omitempty"`
	Reason        string `json:"reason,omitempty" validate:"max=255"`
}

// Manager holds one doctor's schedules and exceptions as last loaded.
type Manager struct {
	doctor     model.Doctor
	schedules  ScheduleClient
	exceptions ExceptionClient
	validate   validator.Validator
	log        *logger.Logger

	mu           sync.Mutex
	scheduleList []model.DoctorSchedule
	exceptList   []model.ScheduleException
	loaded       bool
	lastErr      string
}

// NewManager builds a manager over explicit clients.
func NewManager(doctor model.Doctor, schedules ScheduleClient, exceptions ExceptionClient, v validator.Validator, log *logger.Logger) *Manager {
	if v == nil {
		v = validator.New()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Manager{doctor: doctor, schedules: schedules, exceptions: exceptions, validate: v, log: log}
}

func (m *Manager) Doctor() model.Doctor { return m.doctor }

// Reload replaces both lists with the API's current state.
func (m *Manager) Reload(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reload(ctx)
}

func (m *Manager) reload(ctx context.Context) error {
	schedules, err := m.schedules.ListByDoctor(ctx, m.doctor.ID)
	if err != nil {
		m.lastErr = apperrors.UserMessage(err)
		return fmt.Errorf("failed to load schedules: %w", err)
	}
	exceptions, err := m.exceptions.ListByDoctor(ctx, m.doctor.ID)
	if err != nil {
		m.lastErr = apperrors.UserMessage(err)
		return fmt.Errorf("failed to load schedule exceptions: %w", err)
	}
	sort.SliceStable(schedules, func(i, j int) bool {
		if schedules[i].DayOfWeek != schedules[j].DayOfWeek {
			return schedules[i].DayOfWeek < schedules[j].DayOfWeek
		}
		return model.TruncateTime(schedules[i].StartTime) < model.TruncateTime(schedules[j].StartTime)
	})
	sort.SliceStable(exceptions, func(i, j int) bool {
		return exceptions[i].Date() < exceptions[j].Date()
	})
	m.scheduleList = schedules
	m.exceptList = exceptions
	m.loaded = true
	m.lastErr = ""
	return nil
}

// View is what a schedule screen renders.
type View struct {
	Doctor     model.Doctor              `json:"doctor"`
	Schedules  []model.DoctorSchedule    `json:"schedules"`
	Exceptions []model.ScheduleException `json:"exceptions"`
	Loaded     bool                      `json:"loaded"`
	Error      string                    `json:"error,omitempty"`
}

func (m *Manager) View() View {
	m.mu.Lock()
	defer m.mu.Unlock()
	return View{
		Doctor:     m.doctor,
		Schedules:  append([]model.DoctorSchedule(nil), m.scheduleList...),
		Exceptions: append([]model.ScheduleException(nil), m.exceptList...),
		Loaded:     m.loaded,
		Error:      m.lastErr,
	}
}

// Week resolves the week containing date against the loaded lists.
func (m *Manager) Week(date time.Time) []availability.DayAvailability {
	m.mu.Lock()
	defer m.mu.Unlock()
	return availability.NewResolver(m.scheduleList, m.exceptList).Week(date)
}

// Month resolves every day of date's month against the loaded lists.
func (m *Manager) Month(date time.Time) []availability.DayAvailability {
	m.mu.Lock()
	defer m.mu.Unlock()
	return availability.NewResolver(m.scheduleList, m.exceptList).Month(date)
}

func (m *Manager) checkForm(form *ScheduleForm, exceptID string) error {
	form.StartTime = model.TruncateTime(strings.TrimSpace(form.StartTime))
	form.EndTime = model.TruncateTime(strings.TrimSpace(form.EndTime))
	if err := m.validate.Validate(form); err != nil {
		return apperrors.Validation(err)
	}
	for _, s := range m.scheduleList {
		if s.ID == exceptID || s.DayOfWeek != form.DayOfWeek {
			continue
		}
		if form.StartTime < model.TruncateTime(s.EndTime) && model.TruncateTime(s.StartTime) < form.EndTime {
			return apperrors.Conflict(fmt.Sprintf("window overlaps %s-%s on the same day",
				model.TruncateTime(s.StartTime), model.TruncateTime(s.EndTime)))
		}
	}
	return nil
}

// CreateSchedule adds a weekly window. Invalid input never reaches the API.
func (m *Manager) CreateSchedule(ctx context.Context, form ScheduleForm) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkForm(&form, ""); err != nil {
		return err
	}
	req := model.CreateScheduleRequest{
		DoctorID:  m.doctor.ID,
		DayOfWeek: form.DayOfWeek,
		StartTime: form.StartTime,
		EndTime:   form.EndTime,
		IsActive:  form.IsActive,
	}
	if _, err := m.schedules.Create(ctx, req); err != nil {
		m.lastErr = apperrors.UserMessage(err)
		return fmt.Errorf("failed to create schedule: %w", err)
	}
	m.log.WithContext(ctx).Info("schedule created", "doctor", m.doctor.ID, "day", form.DayOfWeek)
	return m.reload(ctx)
}

func (m *Manager) UpdateSchedule(ctx context.Context, id string, form ScheduleForm) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.findSchedule(id); !ok {
		return apperrors.NotFound("schedule", nil)
	}
	if err := m.checkForm(&form, id); err != nil {
		return err
	}
	req := model.UpdateScheduleRequest{
		DayOfWeek: form.DayOfWeek,
		StartTime: form.StartTime,
		EndTime:   form.EndTime,
		IsActive:  form.IsActive,
	}
	if _, err := m.schedules.Update(ctx, id, req); err != nil {
		m.lastErr = apperrors.UserMessage(err)
		return fmt.Errorf("failed to update schedule: %w", err)
	}
	m.log.WithContext(ctx).Info("schedule updated", "doctor", m.doctor.ID, "schedule", id)
	return m.reload(ctx)
}

// ToggleSchedule flips the active flag of a loaded schedule.
func (m *Manager) ToggleSchedule(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.findSchedule(id)
	if !ok {
		return apperrors.NotFound("schedule", nil)
	}
	if err := m.schedules.SetActive(ctx, id, !s.IsActive); err != nil {
		m.lastErr = apperrors.UserMessage(err)
		return fmt.Errorf("failed to toggle schedule: %w", err)
	}
	m.log.WithContext(ctx).Info("schedule toggled", "doctor", m.doctor.ID, "schedule", id, "active", !s.IsActive)
	return m.reload(ctx)
}

func (m *Manager) DeleteSchedule(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.findSchedule(id); !ok {
		return apperrors.NotFound("schedule", nil)
	}
	if err := m.schedules.Delete(ctx, id); err != nil {
		m.lastErr = apperrors.UserMessage(err)
		return fmt.Errorf("failed to delete schedule: %w", err)
	}
	m.log.WithContext(ctx).Info("schedule deleted", "doctor", m.doctor.ID, "schedule", id)
	return m.reload(ctx)
}

func (m *Manager) findSchedule(id string) (model.DoctorSchedule, bool) {
	for _, s := range m.scheduleList {
		if s.ID == id {
			return s, true
		}
	}
	return model.DoctorSchedule{}, false
}

// ExceptionRequest validates form and builds the API request. A full-day
// exception carries no times; a partial one needs both, end after start.
func ExceptionRequest(v validator.Validator, doctorID string, form ExceptionForm) (model.CreateExceptionRequest, error) {
	form.ExceptionDate = strings.TrimSpace(form.ExceptionDate)
	form.Reason = strings.TrimSpace(form.Reason)
	if err := v.Validate(form); err != nil {
		return model.CreateExceptionRequest{}, apperrors.Validation(err)
	}
	req := model.CreateExceptionRequest{
		DoctorID:      doctorID,
		ExceptionDate: form.ExceptionDate,
	}
	if form.Reason != "" {
		reason := form.Reason
		req.Reason = &reason
	}
	if form.FullDay {
		return req, nil
	}
	start := strings.TrimSpace(form.StartTime)
	end := strings.TrimSpace(form.EndTime)
	if start == "" || end == "" {
		return model.CreateExceptionRequest{}, apperrors.Validation(fmt.Errorf("startTime and endTime are required unless the whole day is blocked"))
	}
	if !validator.IsHHMM(start) || !validator.IsHHMM(end) {
		return model.CreateExceptionRequest{}, apperrors.Validation(fmt.Errorf("times must be 24-hour HH:MM"))
	}
	if !validator.TimeAfter(start, end) {
		return model.CreateExceptionRequest{}, apperrors.Validation(fmt.Errorf("endTime must be later than startTime"))
	}
	req.StartTime = &start
	req.EndTime = &end
	return req, nil
}

func (m *Manager) CreateException(ctx context.Context, form ExceptionForm) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, err := ExceptionRequest(m.validate, m.doctor.ID, form)
	if err != nil {
		return err
	}
	if _, err := m.exceptions.Create(ctx, req); err != nil {
		m.lastErr = apperrors.UserMessage(err)
		return fmt.Errorf("failed to create schedule exception: %w", err)
	}
	m.log.WithContext(ctx).Info("schedule exception created", "doctor", m.doctor.ID, "date", req.ExceptionDate, "fullDay", form.FullDay)
	return m.reload(ctx)
}

func (m *Manager) DeleteException(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	found := false
	for _, e := range m.exceptList {
		if e.ID == id {
			found = true
			break
		}
	}
	if !found {
		return apperrors.NotFound("schedule exception", nil)
	}
	if err := m.exceptions.Delete(ctx, id); err != nil {
		m.lastErr = apperrors.UserMessage(err)
		return fmt.Errorf("failed to delete schedule exception: %w", err)
	}
	m.log.WithContext(ctx).Info("schedule exception deleted", "doctor", m.doctor.ID, "exception", id)
	return m.reload(ctx)
}
