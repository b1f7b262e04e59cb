package session

import (
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-portal/internal/apiclient"
	"github.com/jwalitptl/clinic-portal/internal/apiclient/apitest"
	"github.com/jwalitptl/clinic-portal/internal/model"
	apperrors "github.com/jwalitptl/clinic-portal/pkg/errors"
)

func newManager(t *testing.T, api *apitest.Server, store Store) *Manager {
	t.Helper()
	client, err := apiclient.New(apiclient.Config{BaseURL: api.URL})
	require.NoError(t, err)
	return NewManager(ManagerConfig{Store: store, API: client})
}

func TestNormalizeRole(t *testing.T) {
	tests := []struct {
		raw  string
		want model.Role
		ok   bool
	}{
		{`"DOCTOR"`, model.RoleDoctor, true},
		{`"patient"`, model.RolePatient, true},
		{`{"name":"ADMIN","id":1}`, model.RoleAdmin, true},
		{`{"name":"doctor"}`, model.RoleDoctor, true},
		{`"NURSE"`, "", false},
		{`null`, "", false},
		{`42`, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			role, err := NormalizeRole(json.RawMessage(tt.raw))
			if !tt.ok {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, role)
		})
	}
}

func TestUserFromRemoteNestedIDs(t *testing.T) {
	u, err := UserFromRemote(model.RemoteUser{
		ID:      "u1",
		Role:    json.RawMessage(`{"name":"PATIENT"}`),
		Patient: &model.Ref{ID: "p1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "p1", u.PatientID)
	assert.Equal(t, model.RolePatient, u.Role)
}

func TestLoginPersistsAndRestores(t *testing.T) {
	api := apitest.New(t)
	api.AddAccount("ana@clinic.test", "secret",
		model.User{ID: "u1", FirstName: "Ana", Role: model.RolePatient, PatientID: "p1"},
		map[string]string{"name": "patient"})
	store := NewMemoryStore(time.Hour)
	m := newManager(t, api, store)

	s, err := m.Login(context.Background(), "ana@clinic.test", "secret")
	require.NoError(t, err)
	user, ok := s.User()
	require.True(t, ok)
	assert.Equal(t, model.RolePatient, user.Role)
	assert.Equal(t, "p1", user.PatientID)

	// A fresh manager over the same store sees the session.
	restored, err := newManager(t, api, store).Get(context.Background(), s.ID())
	require.NoError(t, err)
	assert.Equal(t, s.Token(), restored.Token())
}

func TestLoginValidationNeverReachesNetwork(t *testing.T) {
	api := apitest.New(t)
	m := newManager(t, api, NewMemoryStore(time.Hour))

	_, err := m.Login(context.Background(), "not-an-email", "")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrValidation))
	assert.Empty(t, api.Calls("", ""))
}

func TestLoginWrongPassword(t *testing.T) {
	api := apitest.New(t)
	api.AddAccount("ana@clinic.test", "secret", model.User{ID: "u1", Role: model.RolePatient}, nil)
	m := newManager(t, api, NewMemoryStore(time.Hour))

	_, err := m.Login(context.Background(), "ana@clinic.test", "nope")
	require.Error(t, err)
	assert.Equal(t, "Credenciales inválidas", apperrors.UserMessage(err))
}

func TestUnauthorizedClearsOnceWithoutLooping(t *testing.T) {
	api := apitest.New(t)
	token := api.AddAccount("ana@clinic.test", "secret", model.User{ID: "u1", Role: model.RolePatient}, nil)
	store := NewMemoryStore(time.Hour)
	m := newManager(t, api, store)

	var teardowns int32
	m.OnTeardown(func(string) { atomic.AddInt32(&teardowns, 1) })

	s, err := m.Login(context.Background(), "ana@clinic.test", "secret")
	require.NoError(t, err)
	api.Revoke(token)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Client().Doctors.List(context.Background())
			assert.True(t, apperrors.HasCode(err, apperrors.ErrUnauthorized))
		}()
	}
	wg.Wait()

	assert.False(t, s.Authenticated())
	assert.Empty(t, s.Token())
	assert.EqualValues(t, 1, atomic.LoadInt32(&teardowns))

	redirect, ok := s.TakeRedirect()
	assert.True(t, ok)
	assert.Equal(t, "/login", redirect)
	_, ok = s.TakeRedirect()
	assert.False(t, ok)

	_, err = store.Load(context.Background(), s.ID())
	assert.ErrorIs(t, err, ErrNotFound)

	// A cleared session sends no token, so later calls do not re-trigger
	// the teardown.
	_, _ = s.Client().Doctors.List(context.Background())
	assert.EqualValues(t, 1, atomic.LoadInt32(&teardowns))
	assert.Empty(t, api.Calls(http.MethodGet, "/doctors")[5].Header.Get("Authorization"))
}

func TestCheckAuth(t *testing.T) {
	api := apitest.New(t)
	token := api.AddAccount("doc@clinic.test", "secret", model.User{ID: "u2", FirstName: "Luis", Role: model.RoleDoctor}, nil)
	m := newManager(t, api, NewMemoryStore(time.Hour))

	s, err := m.Login(context.Background(), "doc@clinic.test", "secret")
	require.NoError(t, err)

	ok, err := s.CheckAuth(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)

	api.Revoke(token)
	ok, err = s.CheckAuth(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, s.Authenticated())
}

func TestFileStoreRoundTrip(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "nested", "session.json"))
	ctx := context.Background()

	_, err := store.Load(ctx, "cli")
	assert.ErrorIs(t, err, ErrNotFound)

	st := &State{Token: "t", User: model.User{ID: "u1", Role: model.RoleDoctor}}
	require.NoError(t, store.Save(ctx, "cli", st, time.Hour))

	got, err := store.Load(ctx, "cli")
	require.NoError(t, err)
	assert.Equal(t, "t", got.Token)
	assert.Equal(t, model.RoleDoctor, got.User.Role)

	require.NoError(t, store.Delete(ctx, "cli"))
	_, err = store.Load(ctx, "cli")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLiveSessionFollowsStoreExpiry(t *testing.T) {
	api := apitest.New(t)
	api.AddAccount("ana@clinic.test", "secret", model.User{ID: "u1", Role: model.RolePatient}, nil)
	client, err := apiclient.New(apiclient.Config{BaseURL: api.URL})
	require.NoError(t, err)
	store := NewMemoryStore(time.Hour)
	m := NewManager(ManagerConfig{Store: store, API: client, TTL: 50 * time.Millisecond})

	var teardowns int32
	m.OnTeardown(func(string) { atomic.AddInt32(&teardowns, 1) })

	s, err := m.Login(context.Background(), "ana@clinic.test", "secret")
	require.NoError(t, err)
	got, err := m.Get(context.Background(), s.ID())
	require.NoError(t, err)
	assert.Same(t, s, got)

	time.Sleep(150 * time.Millisecond)
	_, err = store.Load(context.Background(), s.ID())
	require.ErrorIs(t, err, ErrNotFound)

	_, err = m.Get(context.Background(), s.ID())
	assert.True(t, apperrors.HasCode(err, apperrors.ErrUnauthorized))
	assert.False(t, s.Authenticated())
	assert.EqualValues(t, 1, atomic.LoadInt32(&teardowns))

	_, err = m.Get(context.Background(), s.ID())
	assert.True(t, apperrors.HasCode(err, apperrors.ErrUnauthorized))
	assert.EqualValues(t, 1, atomic.LoadInt32(&teardowns))
}

func TestLiveSessionEndsWhenStoreEntryDeleted(t *testing.T) {
	api := apitest.New(t)
	api.AddAccount("ana@clinic.test", "secret", model.User{ID: "u1", Role: model.RolePatient}, nil)
	store := NewMemoryStore(time.Hour)
	m := newManager(t, api, store)

	s, err := m.Login(context.Background(), "ana@clinic.test", "secret")
	require.NoError(t, err)

	// another replica logging the user out
	require.NoError(t, store.Delete(context.Background(), s.ID()))

	_, err = m.Get(context.Background(), s.ID())
	assert.True(t, apperrors.HasCode(err, apperrors.ErrUnauthorized))
	assert.False(t, s.Authenticated())
}

func TestLiveSessionWithExpiredToken(t *testing.T) {
	api := apitest.New(t)
	store := NewMemoryStore(time.Hour)
	m := newManager(t, api, store)
	now := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	ctx := context.Background()
	st := &State{Token: "t", User: model.User{ID: "u1", Role: model.RoleDoctor}, ExpiresAt: now.Add(time.Hour)}
	require.NoError(t, store.Save(ctx, "s1", st, time.Hour))

	s, err := m.Get(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, s.Authenticated())

	now = now.Add(2 * time.Hour)
	_, err = m.Get(ctx, "s1")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrUnauthorized))
	assert.False(t, s.Authenticated())
	_, err = store.Load(ctx, "s1")
	assert.ErrorIs(t, err, ErrNotFound)
}
