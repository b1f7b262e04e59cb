package apitest

import (
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-portal/internal/model"
)

func fetch(s *Server, path, token string) (int, error) {
	req, err := http.NewRequest(http.MethodGet, s.URL+path, nil)
	if err != nil {
		return 0, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}

func get(t *testing.T, s *Server, path, token string) int {
	t.Helper()
	code, err := fetch(s, path, token)
	require.NoError(t, err)
	return code
}

func TestAuthenticatedRequestsReachHandlers(t *testing.T) {
	s := New(t)
	token := s.AddAccount("ana@clinic.test", "secret", model.User{ID: "u1", Role: model.RolePatient}, nil)
	s.Doctors = []model.Doctor{{ID: "d1", FirstName: "Luis", IsAvailable: true}}

	var wg sync.WaitGroup
	codes := make([]int, 8)
	errs := make([]error, len(codes))
	for i := range codes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			codes[i], errs[i] = fetch(s, "/doctors", token)
		}(i)
	}
	wg.Wait()
	for i, code := range codes {
		require.NoError(t, errs[i])
		assert.Equal(t, http.StatusOK, code)
	}
	assert.Len(t, s.Calls(http.MethodGet, "/doctors"), len(codes))
}

func TestRevokedAndMissingTokens(t *testing.T) {
	s := New(t)
	token := s.AddAccount("ana@clinic.test", "secret", model.User{ID: "u1", Role: model.RolePatient}, nil)

	assert.Equal(t, http.StatusUnauthorized, get(t, s, "/auth/profile", ""))
	assert.Equal(t, http.StatusUnauthorized, get(t, s, "/auth/profile", "token-unknown"))
	assert.Equal(t, http.StatusOK, get(t, s, "/auth/profile", token))

	s.Revoke(token)
	assert.Equal(t, http.StatusUnauthorized, get(t, s, "/auth/profile", token))
}
