// Package medhistory drives the AI medical history screens: generation,
// listing, viewing, PDF download and deletion. Generation and rendering
// happen upstream.
package medhistory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jwalitptl/clinic-portal/internal/apiclient"
	"github.com/jwalitptl/clinic-portal/internal/model"
	apperrors "github.com/jwalitptl/clinic-portal/pkg/errors"
	"github.com/jwalitptl/clinic-portal/pkg/logger"
	"github.com/jwalitptl/clinic-portal/pkg/validator"
)

const (
	TypeComplete  = "COMPLETE"
	TypeSummary   = "SUMMARY"
	TypeDateRange = "DATE_RANGE"
)

type Session interface {
	User() (model.User, bool)
	Client() *apiclient.Client
	PatientID(ctx context.Context) (string, error)
}

type Events interface {
	Emit(ctx context.Context, eventType string, payload interface{})
}

type Service struct {
	events   Events
	validate validator.Validator
	log      *logger.Logger
	now      func() time.Time
}

func NewService(events Events, v validator.Validator, log *logger.Logger) *Service {
	if v == nil {
		v = validator.New()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Service{events: events, validate: v, log: log, now: time.Now}
}

// patientFor decides whose histories the session may touch. Patients are
// pinned to their own record; staff must name one.
func (s *Service) patientFor(ctx context.Context, sess Session, requested string) (string, error) {
	user, ok := sess.User()
	if !ok {
		return "", apperrors.Unauthorized(nil)
	}
	requested = strings.TrimSpace(requested)
	if user.Role == model.RolePatient {
		own, err := sess.PatientID(ctx)
		if err != nil {
			return "", err
		}
		if requested != "" && requested != own {
			return "", apperrors.Forbidden("patients can only access their own medical history")
		}
		return own, nil
	}
	if requested == "" {
		return "", apperrors.BadRequest("patientId is required", nil)
	}
	return requested, nil
}

// Result of a generation. When the list refresh after a successful
// generation fails, History is set and RefreshError says why the list is
// stale.
type Result struct {
	History      *model.GeneratedMedicalHistory  `json:"history"`
	Histories    []model.GeneratedMedicalHistory `json:"histories"`
	RefreshError string                          `json:"refreshError,omitempty"`
}

func (r Result) Partial() bool { return r.RefreshError != "" }

// Generate asks the API for a new history and then reloads the list.
func (s *Service) Generate(ctx context.Context, sess Session, patientID string, req model.GenerateHistoryRequest) (*Result, error) {
	patientID, err := s.patientFor(ctx, sess, patientID)
	if err != nil {
		return nil, err
	}
	if req.Type == "" {
		req.Type = TypeComplete
	}
	req.StartDate = model.NormalizeDate(req.StartDate)
	req.EndDate = model.NormalizeDate(req.EndDate)
	if err := s.validate.Validate(req); err != nil {
		return nil, apperrors.Validation(err)
	}
	if req.Type == TypeDateRange {
		if req.StartDate == "" || req.EndDate == "" {
			return nil, apperrors.Validation(fmt.Errorf("startDate and endDate are required for a date range history"))
		}
		if req.EndDate < req.StartDate {
			return nil, apperrors.Validation(fmt.Errorf("endDate must not be before startDate"))
		}
	}

	user, _ := sess.User()
	client := sess.Client()
	h, err := client.MedicalHistory.Generate(ctx, patientID, user.ID, req)
	if err != nil {
		return nil, fmt.Errorf("failed to generate medical history: %w", err)
	}
	s.log.WithContext(ctx).Info("medical history generated", "patient", patientID, "history", h.ID, "type", req.Type)
	if s.events != nil {
		s.events.Emit(ctx, "medical_history.generated", h)
	}

	res := &Result{History: h}
	list, err := client.MedicalHistory.ListByPatient(ctx, patientID)
	if err != nil {
		s.log.WithContext(ctx).Error(err, "history generated but list refresh failed", "patient", patientID)
		res.RefreshError = apperrors.UserMessage(err)
		return res, nil
	}
	sortNewestFirst(list)
	res.Histories = list
	return res, nil
}

func sortNewestFirst(list []model.GeneratedMedicalHistory) {
	sort.SliceStable(list, func(i, j int) bool { return list[i].CreatedAt > list[j].CreatedAt })
}

func (s *Service) List(ctx context.Context, sess Session, patientID string) ([]model.GeneratedMedicalHistory, error) {
	patientID, err := s.patientFor(ctx, sess, patientID)
	if err != nil {
		return nil, err
	}
	list, err := sess.Client().MedicalHistory.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("failed to list medical histories: %w", err)
	}
	sortNewestFirst(list)
	return list, nil
}

// Get fetches one history; a patient only sees their own.
func (s *Service) Get(ctx context.Context, sess Session, id string) (*model.GeneratedMedicalHistory, error) {
	h, err := sess.Client().MedicalHistory.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get medical history: %w", err)
	}
	if _, err := s.patientFor(ctx, sess, h.PatientID); err != nil {
		if apperrors.HasCode(err, apperrors.ErrForbidden) {
			return nil, apperrors.NotFound("medical history", nil)
		}
		return nil, err
	}
	return h, nil
}

// HasHistory reports whether any history exists. Errors degrade to false.
func (s *Service) HasHistory(ctx context.Context, sess Session, patientID string) bool {
	list, err := s.List(ctx, sess, patientID)
	if err != nil {
		s.log.WithContext(ctx).Debug("history probe failed", "patient", patientID, "error", err.Error())
		return false
	}
	return len(list) > 0
}

// Download is a fetched PDF ready to be saved.
type Download struct {
	Data        []byte
	ContentType string
	Filename    string
}

// DefaultFilename is Historial_Medico_<YYYYMMDD>.pdf for day t.
func DefaultFilename(t time.Time) string {
	return fmt.Sprintf("Historial_Medico_%s.pdf", t.Format("20060102"))
}

// Download fetches the PDF of a history. filename overrides the default
// name.
func (s *Service) Download(ctx context.Context, sess Session, id, filename string) (*Download, error) {
	if _, err := s.Get(ctx, sess, id); err != nil {
		return nil, err
	}
	pdf, err := sess.Client().MedicalHistory.DownloadPDF(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to download medical history: %w", err)
	}
	name := strings.TrimSpace(filename)
	if name == "" {
		name = DefaultFilename(s.now())
	}
	if !strings.HasSuffix(strings.ToLower(name), ".pdf") {
		name += ".pdf"
	}
	contentType := pdf.ContentType
	if contentType == "" {
		contentType = "application/pdf"
	}
	return &Download{Data: pdf.Data, ContentType: contentType, Filename: name}, nil
}

func (s *Service) Delete(ctx context.Context, sess Session, id string) error {
	if _, err := s.Get(ctx, sess, id); err != nil {
		return err
	}
	if err := sess.Client().MedicalHistory.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete medical history: %w", err)
	}
	s.log.WithContext(ctx).Info("medical history deleted", "history", id)
	return nil
}
