// Package session holds the authenticated identity of one portal user. A
// Session is an explicit object created by a Manager; there is no process
// wide login state.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/clinic-portal/internal/apiclient"
	"github.com/jwalitptl/clinic-portal/internal/model"
	"github.com/jwalitptl/clinic-portal/pkg/auth"
	apperrors "github.com/jwalitptl/clinic-portal/pkg/errors"
	"github.com/jwalitptl/clinic-portal/pkg/logger"
	"github.com/jwalitptl/clinic-portal/pkg/validator"
)

// LoginPath is where a cleared session is sent.
const LoginPath = "/login"

type Manager struct {
	store    Store
	api      *apiclient.Client
	validate validator.Validator
	log      *logger.Logger
	ttl      time.Duration
	now      func() time.Time

	// live keeps bound sessions so concurrent requests share one Session;
	// entries idle for a TTL are dropped.
	live *cache.Cache

	mu       sync.Mutex
	onLogout []func(id string)
}

type ManagerConfig struct {
	Store     Store
	API       *apiclient.Client
	Validator validator.Validator
	Logger    *logger.Logger
	TTL       time.Duration
}

func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Validator == nil {
		cfg.Validator = validator.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 12 * time.Hour
	}
	return &Manager{
		store:    cfg.Store,
		api:      cfg.API,
		validate: cfg.Validator,
		log:      cfg.Logger,
		ttl:      cfg.TTL,
		now:      time.Now,
		live:     cache.New(cfg.TTL, 10*time.Minute),
	}
}

// OnTeardown registers fn to run whenever a session is cleared, by logout
// or by a rejected token. Wizard stores use it to drop per-session state.
func (m *Manager) OnTeardown(fn func(id string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onLogout = append(m.onLogout, fn)
}

// Login authenticates against the clinic API and returns a new session.
func (m *Manager) Login(ctx context.Context, email, password string) (*Session, error) {
	return m.LoginWithID(ctx, uuid.NewString(), email, password)
}

// LoginWithID is Login with a caller-chosen session id. The CLI keeps one
// fixed id so its session file holds a single login.
func (m *Manager) LoginWithID(ctx context.Context, id, email, password string) (*Session, error) {
	req := model.LoginRequest{Email: email, Password: password}
	if err := m.validate.Validate(req); err != nil {
		return nil, apperrors.Validation(err)
	}

	resp, err := m.api.Auth.Login(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.AccessToken == "" {
		return nil, apperrors.Internal(fmt.Errorf("login response carried no token"))
	}
	user, err := UserFromRemote(resp.User)
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("failed to read user from login: %w", err))
	}

	st := &State{Token: resp.AccessToken, User: user, ExpiresAt: auth.Expiry(resp.AccessToken)}
	if err := m.store.Save(ctx, id, st, m.ttlFor(st)); err != nil {
		return nil, fmt.Errorf("failed to persist session: %w", err)
	}

	s := m.bind(id, st)
	m.log.WithContext(ctx).Info("user logged in", "session", id, "user", user.ID, "role", string(user.Role))
	return s, nil
}

// Get restores a session. The store stays authoritative for live sessions
// too: an entry deleted or expired there, possibly by another replica,
// ends the session here as well.
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, apperrors.Unauthorized(ErrNotFound)
	}
	var s *Session
	v, live := m.live.Get(id)
	if live {
		s = v.(*Session)
	}
	if live && !s.Authenticated() {
		return nil, apperrors.Unauthorized(ErrNotFound)
	}

	st, err := m.store.Load(ctx, id)
	if errors.Is(err, ErrNotFound) {
		if live {
			m.evict(ctx, s)
		}
		return nil, apperrors.Unauthorized(err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if !st.ExpiresAt.IsZero() && m.now().After(st.ExpiresAt) {
		if live {
			m.evict(ctx, s)
		} else {
			_ = m.store.Delete(ctx, id)
		}
		return nil, apperrors.Unauthorized(fmt.Errorf("token expired"))
	}
	if live {
		s.refresh(st)
		m.live.SetDefault(id, s)
		return s, nil
	}
	return m.bind(id, st), nil
}

// evict ends a live session whose store entry is gone or expired.
func (m *Manager) evict(ctx context.Context, s *Session) {
	if !s.clear() {
		return
	}
	m.log.WithContext(ctx).Info("session expired", "session", s.id)
	m.teardown(ctx, s.id)
}

func (m *Manager) bind(id string, st *State) *Session {
	s := &Session{id: id, state: st, manager: m}
	s.client = m.api.For(s)
	m.live.SetDefault(id, s)
	return s
}

func (m *Manager) ttlFor(st *State) time.Duration {
	if st.ExpiresAt.IsZero() {
		return m.ttl
	}
	if d := st.ExpiresAt.Sub(m.now()); d > 0 && d < m.ttl {
		return d
	}
	return m.ttl
}

func (m *Manager) teardown(ctx context.Context, id string) {
	if err := m.store.Delete(ctx, id); err != nil {
		m.log.Error(err, "failed to delete session", "session", id)
	}
	m.live.Delete(id)
	m.mu.Lock()
	hooks := append([]func(string){}, m.onLogout...)
	m.mu.Unlock()
	for _, fn := range hooks {
		fn(id)
	}
}

// Session is one authenticated user. It implements apiclient.Credentials.
type Session struct {
	id      string
	manager *Manager
	client  *apiclient.Client

	mu      sync.Mutex
	state   *State
	cleared bool
	// redirect is handed out once after a forced logout.
	redirect string
}

func (s *Session) ID() string { return s.id }

// Client is the clinic API client authenticated as this session.
func (s *Session) Client() *apiclient.Client { return s.client }

func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil {
		return ""
	}
	return s.state.Token
}

func (s *Session) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state != nil
}

// User returns the identity, or false once the session was cleared.
func (s *Session) User() (model.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil {
		return model.User{}, false
	}
	return s.state.User, true
}

// HandleUnauthorized clears the credentials after the API rejected them.
// Concurrent and repeated calls clear once and schedule one redirect.
func (s *Session) HandleUnauthorized() {
	if !s.clear() {
		return
	}
	s.mu.Lock()
	s.redirect = LoginPath
	s.mu.Unlock()
	s.manager.log.Warn("session cleared after 401", "session", s.id)
	s.manager.teardown(context.Background(), s.id)
}

// TakeRedirect returns the pending forced-logout redirect, at most once.
func (s *Session) TakeRedirect() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.redirect == "" {
		return "", false
	}
	r := s.redirect
	s.redirect = ""
	return r, true
}

// Logout is the explicit teardown.
func (s *Session) Logout(ctx context.Context) {
	if !s.clear() {
		return
	}
	s.manager.log.WithContext(ctx).Info("user logged out", "session", s.id)
	s.manager.teardown(ctx, s.id)
}

// refresh adopts the stored state unless the session was cleared meanwhile.
func (s *Session) refresh(st *State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != nil {
		s.state = st
	}
}

func (s *Session) clear() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cleared {
		return false
	}
	s.cleared = true
	s.state = nil
	return true
}

// CheckAuth verifies the stored token is still accepted and refreshes the
// user from the profile endpoint. An expired token is cleared without a
// network call.
func (s *Session) CheckAuth(ctx context.Context) (bool, error) {
	s.mu.Lock()
	st := s.state
	s.mu.Unlock()
	if st == nil || st.Token == "" {
		return false, nil
	}
	if !st.ExpiresAt.IsZero() && s.manager.now().After(st.ExpiresAt) {
		s.HandleUnauthorized()
		return false, nil
	}

	remote, err := s.client.Auth.Profile(ctx)
	if err != nil {
		if apperrors.HasCode(err, apperrors.ErrUnauthorized) {
			return false, nil
		}
		return false, err
	}
	user, err := UserFromRemote(*remote)
	if err != nil {
		return false, apperrors.Internal(err)
	}
	// Profile may omit the linked ids login returned.
	if user.PatientID == "" {
		user.PatientID = st.User.PatientID
	}
	if user.DoctorID == "" {
		user.DoctorID = st.User.DoctorID
	}

	s.mu.Lock()
	if s.state == nil {
		s.mu.Unlock()
		return false, nil
	}
	s.state.User = user
	updated := *s.state
	s.mu.Unlock()

	if err := s.manager.store.Save(ctx, s.id, &updated, s.manager.ttlFor(&updated)); err != nil {
		return true, fmt.Errorf("failed to persist session: %w", err)
	}
	return true, nil
}

// SetLinkedIDs records patient or doctor ids resolved after login.
func (s *Session) SetLinkedIDs(ctx context.Context, patientID, doctorID string) error {
	s.mu.Lock()
	if s.state == nil {
		s.mu.Unlock()
		return apperrors.Unauthorized(ErrNotFound)
	}
	if patientID != "" {
		s.state.User.PatientID = patientID
	}
	if doctorID != "" {
		s.state.User.DoctorID = doctorID
	}
	updated := *s.state
	s.mu.Unlock()
	return s.manager.store.Save(ctx, s.id, &updated, s.manager.ttlFor(&updated))
}
