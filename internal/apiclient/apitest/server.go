// Package apitest runs an in-memory clinic API for tests. It records every
// call so tests can assert on the exact requests a workflow produced.
package apitest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/clinic-portal/internal/model"
)

// Call is one recorded request.
type Call struct {
	Method string
	Path   string
	Query  string
	Header http.Header
	Body   []byte
}

// Decode unmarshals the recorded body into v.
func (c Call) Decode(v interface{}) error {
	return json.Unmarshal(c.Body, v)
}

// Account is a login the fake accepts. Role is sent verbatim, so tests can
// use either "DOCTOR" or map[string]string{"name": "doctor"}.
type Account struct {
	Password string
	Token    string
	User     model.User
	Role     interface{}
}

type failure struct {
	status  int
	message string
}

type Server struct {
	*httptest.Server

	mu            sync.Mutex
	calls         []Call
	failures      map[string][]failure
	revoked       map[string]bool
	nextID        int
	Accounts      map[string]*Account
	Doctors       []model.Doctor
	Services      []model.MedicalService
	Patients      []model.Patient
	Appointments  []*model.Appointment
	Schedules     []model.DoctorSchedule
	Exceptions    []model.ScheduleException
	Slots         map[string][]model.TimeSlot
	SlotsWrapped  bool
	Consultations []model.Consultation
	Histories     []model.GeneratedMedicalHistory
	PDF           []byte
}

// New starts a fake API and closes it when the test ends.
func New(t testing.TB) *Server {
	gin.SetMode(gin.TestMode)
	s := &Server{
		failures: make(map[string][]failure),
		revoked:  make(map[string]bool),
		Accounts: make(map[string]*Account),
		Slots:    make(map[string][]model.TimeSlot),
		PDF:      []byte("%PDF-1.4 fake"),
	}
	s.Server = httptest.NewServer(s.routes())
	t.Cleanup(s.Close)
	return s
}

// AddAccount registers a login and returns its token.
func (s *Server) AddAccount(email, password string, user model.User, role interface{}) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	user.Email = email
	token := fmt.Sprintf("token-%s", user.ID)
	if role == nil {
		role = string(user.Role)
	}
	s.Accounts[email] = &Account{Password: password, Token: token, User: user, Role: role}
	return token
}

// Revoke makes every later request with token answer 401.
func (s *Server) Revoke(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked[token] = true
}

// FailNext makes the next request matching method and path answer status
// with {"message": message}.
func (s *Server) FailNext(method, path string, status int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := method + " " + path
	s.failures[key] = append(s.failures[key], failure{status: status, message: message})
}

// Calls returns recorded requests matching method and path. An empty
// method or path matches anything.
func (s *Server) Calls(method, path string) []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Call
	for _, c := range s.calls {
		if (method == "" || c.Method == method) && (path == "" || c.Path == path) {
			out = append(out, c)
		}
	}
	return out
}

// CallsWithPrefix returns recorded requests whose path starts with prefix.
func (s *Server) CallsWithPrefix(method, prefix string) []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Call
	for _, c := range s.calls {
		if (method == "" || c.Method == method) && strings.HasPrefix(c.Path, prefix) {
			out = append(out, c)
		}
	}
	return out
}

// Reset forgets recorded calls.
func (s *Server) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
}

// SetSlots configures the availability answer for one doctor and date.
func (s *Server) SetSlots(doctorID, date string, slots []model.TimeSlot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Slots[doctorID+"|"+date] = slots
}

func (s *Server) id(prefix string) string {
	s.nextID++
	return fmt.Sprintf("%s-%d", prefix, s.nextID)
}

func (s *Server) routes() http.Handler {
	r := gin.New()
	r.Use(s.record, s.inject)

	r.POST("/auth/login", s.login)

	authed := r.Group("", s.authenticate)
	authed.GET("/auth/profile", s.profile)

	authed.GET("/doctors", s.listDoctors)
	authed.GET("/doctors/:id", s.getDoctor)
	authed.GET("/doctors/user/:userId", s.getDoctorByUser)

	authed.GET("/services/doctor/:doctorId", s.listServices)
	authed.POST("/services", s.createService)
	authed.PATCH("/services/:id", s.updateService)
	authed.DELETE("/services/:id", s.deleteService)

	authed.GET("/patients/:id", s.getPatient)
	authed.GET("/patients/user/:userId", s.getPatientByUser)

	authed.POST("/appointments", s.createAppointment)
	authed.GET("/appointments/:id", s.getAppointment)
	authed.GET("/appointments/patient/:id", s.listPatientAppointments)
	authed.GET("/appointments/doctor/:id", s.listDoctorAppointments)
	authed.PATCH("/appointments/:id/:action", s.applyAction)

	authed.GET("/availability/doctor/:id", s.availability)

	authed.GET("/schedules/doctor/:id", s.listSchedules)
	authed.POST("/schedules", s.createSchedule)
	authed.PATCH("/schedules/:id", s.updateSchedule)
	authed.PATCH("/schedules/:id/:action", s.toggleSchedule)
	authed.DELETE("/schedules/:id", s.deleteSchedule)

	authed.GET("/schedule-exceptions/doctor/:id", s.listExceptions)
	authed.POST("/schedule-exceptions", s.createException)
	authed.DELETE("/schedule-exceptions/:id", s.deleteException)

	authed.POST("/consultations", s.createConsultation)
	authed.GET("/consultations/:id", s.getConsultation)
	authed.GET("/consultations/patient/:id", s.listConsultations)

	authed.POST("/medical-history/patient/:id/generate", s.generateHistory)
	authed.GET("/medical-history/patient/:id", s.listHistories)
	authed.GET("/medical-history/:id", s.getHistory)
	authed.GET("/medical-history/:id/pdf", s.historyPDF)
	authed.DELETE("/medical-history/:id", s.deleteHistory)

	return r
}

func (s *Server) record(c *gin.Context) {
	body, _ := io.ReadAll(c.Request.Body)
	c.Request.Body = io.NopCloser(bytes.NewReader(body))
	s.mu.Lock()
	s.calls = append(s.calls, Call{
		Method: c.Request.Method,
		Path:   c.Request.URL.Path,
		Query:  c.Request.URL.RawQuery,
		Header: c.Request.Header.Clone(),
		Body:   body,
	})
	s.mu.Unlock()
	c.Next()
}

func (s *Server) inject(c *gin.Context) {
	key := c.Request.Method + " " + c.Request.URL.Path
	s.mu.Lock()
	queue := s.failures[key]
	var f *failure
	if len(queue) > 0 {
		f = &queue[0]
		s.failures[key] = queue[1:]
	}
	s.mu.Unlock()
	if f != nil {
		c.AbortWithStatusJSON(f.status, gin.H{"message": f.message, "statusCode": f.status})
		return
	}
	c.Next()
}

// authenticate resolves the bearer token under the lock and runs the
// handler without it, since handlers take s.mu themselves.
func (s *Server) authenticate(c *gin.Context) {
	token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	acc := s.accountFor(token)
	if acc == nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Unauthorized", "statusCode": 401})
		return
	}
	c.Set("account", acc)
	c.Next()
}

func (s *Server) accountFor(token string) *Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	if token == "" || s.revoked[token] {
		return nil
	}
	for _, acc := range s.Accounts {
		if acc.Token == token {
			return acc
		}
	}
	return nil
}

func notFound(c *gin.Context, what string) {
	c.JSON(http.StatusNotFound, gin.H{"message": what + " not found", "statusCode": 404})
}

func userJSON(acc *Account) gin.H {
	u := acc.User
	h := gin.H{
		"id":        u.ID,
		"email":     u.Email,
		"firstName": u.FirstName,
		"lastName":  u.LastName,
		"role":      acc.Role,
	}
	if u.PatientID != "" {
		h["patient"] = gin.H{"id": u.PatientID}
	}
	if u.DoctorID != "" {
		h["doctorId"] = u.DoctorID
	}
	return h
}

func (s *Server) login(c *gin.Context) {
	var req model.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": []string{"email must be an email"}})
		return
	}
	s.mu.Lock()
	acc, ok := s.Accounts[req.Email]
	s.mu.Unlock()
	if !ok || acc.Password != req.Password {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Credenciales inválidas", "statusCode": 401})
		return
	}
	c.JSON(http.StatusOK, gin.H{"accessToken": acc.Token, "user": userJSON(acc)})
}

func (s *Server) profile(c *gin.Context) {
	acc := c.MustGet("account").(*Account)
	c.JSON(http.StatusOK, userJSON(acc))
}
