// Package schedule manages a doctor's recurring schedules, date exceptions
// and medical services. Every mutation is followed by a full reload from
// the API; nothing is updated optimistically.
package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/clinic-portal/internal/apiclient"
	"github.com/jwalitptl/clinic-portal/internal/model"
	apperrors "github.com/jwalitptl/clinic-portal/pkg/errors"
	"github.com/jwalitptl/clinic-portal/pkg/logger"
	"github.com/jwalitptl/clinic-portal/pkg/validator"
)

// Session is the slice of a portal session the schedule service needs.
type Session interface {
	ID() string
	User() (model.User, bool)
	Client() *apiclient.Client
}

// DoctorResolver finds the doctor record of a user.
type DoctorResolver interface {
	GetByUser(ctx context.Context, userID string) (*model.Doctor, error)
}

type Service struct {
	doctors  *cache.Cache
	validate validator.Validator
	log      *logger.Logger
}

func NewService(memoTTL time.Duration, v validator.Validator, log *logger.Logger) *Service {
	if memoTTL <= 0 {
		memoTTL = 10 * time.Minute
	}
	if v == nil {
		v = validator.New()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		doctors:  cache.New(memoTTL, 2*memoTTL),
		validate: v,
		log:      log,
	}
}

// DoctorFor resolves the doctor behind sess. The lookup is memoized per
// user, so reopening a screen does not repeat it.
func (s *Service) DoctorFor(ctx context.Context, sess Session) (*model.Doctor, error) {
	user, ok := sess.User()
	if !ok {
		return nil, apperrors.Unauthorized(nil)
	}
	if user.Role != model.RoleDoctor {
		return nil, apperrors.Forbidden("only doctors can manage schedules")
	}
	return s.resolve(ctx, user.ID, sess.Client().Doctors)
}

func (s *Service) resolve(ctx context.Context, userID string, doctors DoctorResolver) (*model.Doctor, error) {
	if v, ok := s.doctors.Get(userID); ok {
		d := v.(model.Doctor)
		return &d, nil
	}
	d, err := doctors.GetByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve doctor: %w", err)
	}
	s.doctors.SetDefault(userID, *d)
	return d, nil
}

// Forget drops the memoized doctor of a user.
func (s *Service) Forget(userID string) {
	s.doctors.Delete(userID)
}

// Open resolves the doctor and loads schedules and exceptions. Opening
// again yields a fresh manager with the same doctor; lists are replaced,
// never appended to.
func (s *Service) Open(ctx context.Context, sess Session) (*Manager, error) {
	doctor, err := s.DoctorFor(ctx, sess)
	if err != nil {
		return nil, err
	}
	client := sess.Client()
	m := NewManager(*doctor, client.Schedules, client.Exceptions, s.validate, s.log)
	if err := m.Reload(ctx); err != nil {
		return m, err
	}
	return m, nil
}

// OpenCatalog resolves the doctor and loads the doctor's services.
func (s *Service) OpenCatalog(ctx context.Context, sess Session) (*Catalog, error) {
	doctor, err := s.DoctorFor(ctx, sess)
	if err != nil {
		return nil, err
	}
	c := NewCatalog(*doctor, sess.Client().Services, s.validate, s.log)
	if err := c.Reload(ctx); err != nil {
		return c, err
	}
	return c, nil
}
