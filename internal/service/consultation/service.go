package consultation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/clinic-portal/internal/apiclient"
	"github.com/jwalitptl/clinic-portal/internal/model"
	apperrors "github.com/jwalitptl/clinic-portal/pkg/errors"
	"github.com/jwalitptl/clinic-portal/pkg/logger"
	"github.com/jwalitptl/clinic-portal/pkg/metrics"
	"github.com/jwalitptl/clinic-portal/pkg/validator"
)

type Session interface {
	ID() string
	User() (model.User, bool)
	Client() *apiclient.Client
}

// Service keeps consultation wizards keyed by session.
type Service struct {
	wizards    *cache.Cache
	reconciler Reconciler
	validate   validator.Validator
	log        *logger.Logger
	metrics    *metrics.Metrics
}

func NewService(ttl time.Duration, reconciler Reconciler, v validator.Validator, log *logger.Logger, m *metrics.Metrics) *Service {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if v == nil {
		v = validator.New()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		wizards:    cache.New(ttl, 5*time.Minute),
		reconciler: reconciler,
		validate:   v,
		log:        log,
		metrics:    m,
	}
}

func key(sessionID, wizardID string) string {
	return sessionID + "/" + wizardID
}

// Start opens a wizard for a doctor. A missing or unknown patient is a
// navigation error back to the appointment list.
func (s *Service) Start(ctx context.Context, sess Session, target Target) (*Wizard, error) {
	user, ok := sess.User()
	if !ok {
		return nil, apperrors.Unauthorized(nil)
	}
	if user.Role != model.RoleDoctor {
		return nil, apperrors.Forbidden("only doctors can register consultations")
	}
	target.PatientID = strings.TrimSpace(target.PatientID)
	target.AppointmentID = strings.TrimSpace(target.AppointmentID)
	if target.PatientID == "" {
		return nil, apperrors.Navigation("a patient is required to register a consultation", AppointmentsPath)
	}

	client := sess.Client()
	if _, err := client.Patients.Get(ctx, target.PatientID); err != nil {
		if apperrors.HasCode(err, apperrors.ErrNotFound) {
			return nil, apperrors.Navigation("patient not found", AppointmentsPath)
		}
		return nil, fmt.Errorf("failed to load patient: %w", err)
	}

	doctorID := user.DoctorID
	if doctorID == "" {
		doctor, err := client.Doctors.GetByUser(ctx, user.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve doctor: %w", err)
		}
		doctorID = doctor.ID
	}

	w, err := NewWizard(Options{
		Target:        target,
		DoctorID:      doctorID,
		Consultations: client.Consultations,
		Appointments:  client.Appointments,
		Reconciler:    s.reconciler,
		Validator:     s.validate,
		Logger:        s.log,
		Metrics:       s.metrics,
	})
	if err != nil {
		return nil, err
	}
	s.wizards.SetDefault(key(sess.ID(), w.ID()), w)
	return w, nil
}

func (s *Service) Get(sessionID, wizardID string) (*Wizard, error) {
	k := key(sessionID, wizardID)
	v, ok := s.wizards.Get(k)
	if !ok {
		return nil, apperrors.NotFound("consultation", nil)
	}
	s.wizards.SetDefault(k, v)
	return v.(*Wizard), nil
}

// Discard drops a wizard. A wizard still pending completion stays with the
// reconciler.
func (s *Service) Discard(sessionID, wizardID string) {
	s.wizards.Delete(key(sessionID, wizardID))
}

// DropSession forgets the wizards of a session that ended. Completions
// still pending are withdrawn from the reconciler as well, since their
// client lost its credentials with the session.
func (s *Service) DropSession(sessionID string) {
	prefix := sessionID + "/"
	for k, item := range s.wizards.Items() {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		w := item.Object.(*Wizard)
		if s.reconciler != nil && w.Phase() == PhasePendingCompletion {
			s.reconciler.Done(w.target.AppointmentID)
			s.log.Warn("dropping pending appointment completion", "session", sessionID, "appointment", w.target.AppointmentID)
		}
		s.wizards.Delete(k)
	}
}

// Pending lists the session's wizards waiting for appointment completion.
func (s *Service) Pending(sessionID string) []Snapshot {
	prefix := sessionID + "/"
	var out []Snapshot
	for k, item := range s.wizards.Items() {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		w := item.Object.(*Wizard)
		if w.Phase() == PhasePendingCompletion {
			out = append(out, w.Snapshot())
		}
	}
	return out
}
