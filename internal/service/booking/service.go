package booking

import (
	"context"
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

// Session is the slice of a portal session the booking service needs.
type Session interface {
	ID() string
	User() (model.User, bool)
	Client() *apiclient.Client
}

type Config struct {
	DateSource string
	WindowDays int
	WizardTTL  time.Duration
}

// Service keeps wizards in progress, keyed by session so one user can never
// reach another user's wizard.
type Service struct {
	cfg      Config
	wizards  *cache.Cache
	events   Events
	validate validator.Validator
	log      *logger.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewService(cfg Config, events Events, v validator.Validator, log *logger.Logger, m *metrics.Metrics) *Service {
	if cfg.WizardTTL <= 0 {
		cfg.WizardTTL = 30 * time.Minute
	}
	if cfg.WindowDays <= 0 {
		cfg.WindowDays = 30
	}
	if log == nil {
		log = logger.Nop()
	}
	if v == nil {
		v = validator.New()
	}
	return &Service{
		cfg:      cfg,
		wizards:  cache.New(cfg.WizardTTL, 5*time.Minute),
		events:   events,
		validate: v,
		log:      log,
		metrics:  m,
		now:      time.Now,
	}
}

func key(sessionID, wizardID string) string {
	return sessionID + "/" + wizardID
}

// Start opens a new wizard for sess and loads the doctor list.
func (s *Service) Start(ctx context.Context, sess Session) (*Wizard, error) {
	user, ok := sess.User()
	if !ok {
		return nil, apperrors.Unauthorized(nil)
	}
	if user.Role != model.RolePatient {
		return nil, apperrors.Forbidden("only patients can book appointments")
	}
	client := sess.Client()
	w := NewWizard(Options{
		Deps:      DepsFromClient(client),
		Dates:     NewDateSource(s.cfg.DateSource, s.cfg.WindowDays, client, s.now),
		Identity:  sess,
		Events:    s.events,
		Validator: s.validate,
		Logger:    s.log,
		Metrics:   s.metrics,
	})
	s.wizards.SetDefault(key(sess.ID(), w.ID()), w)

	// The wizard exists even if the first load fails; the caller sees the
	// error in the step's error slot and may retry.
	if _, err := w.LoadDoctors(ctx); err != nil {
		return w, err
	}
	return w, nil
}

// Get returns a wizard owned by sess and refreshes its expiry.
func (s *Service) Get(sessionID, wizardID string) (*Wizard, error) {
	k := key(sessionID, wizardID)
	v, ok := s.wizards.Get(k)
	if !ok {
		return nil, apperrors.NotFound("booking", nil)
	}
	s.wizards.SetDefault(k, v)
	return v.(*Wizard), nil
}

// Discard drops one wizard.
func (s *Service) Discard(sessionID, wizardID string) {
	s.wizards.Delete(key(sessionID, wizardID))
}

// DropSession forgets every wizard of a session. It is registered as a
// session teardown hook.
func (s *Service) DropSession(sessionID string) {
	prefix := sessionID + "/"
	for k := range s.wizards.Items() {
		if strings.HasPrefix(k, prefix) {
			s.wizards.Delete(k)
		}
	}
}
