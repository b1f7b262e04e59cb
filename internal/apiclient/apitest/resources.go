package apitest

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/clinic-portal/internal/model"
)

func (s *Server) listDoctors(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]model.Doctor{}, s.Doctors...)
	c.JSON(http.StatusOK, out)
}

func (s *Server) getDoctor(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.Doctors {
		if d.ID == c.Param("id") {
			c.JSON(http.StatusOK, d)
			return
		}
	}
	notFound(c, "Doctor")
}

func (s *Server) getDoctorByUser(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.Doctors {
		if d.UserID == c.Param("userId") {
			c.JSON(http.StatusOK, d)
			return
		}
	}
	notFound(c, "Doctor")
}

func (s *Server) listServices(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.MedicalService{}
	for _, sv := range s.Services {
		if sv.DoctorID == c.Param("doctorId") {
			out = append(out, sv)
		}
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) createService(c *gin.Context) {
	var req model.CreateServiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sv := model.MedicalService{
		ID:          s.id("svc"),
		DoctorID:    req.DoctorID,
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Duration:    req.Duration,
		IsActive:    req.IsActive == nil || *req.IsActive,
	}
	s.Services = append(s.Services, sv)
	c.JSON(http.StatusCreated, sv)
}

func (s *Server) updateService(c *gin.Context) {
	var req model.UpdateServiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.Services {
		sv := &s.Services[i]
		if sv.ID != c.Param("id") {
			continue
		}
		if req.Name != nil {
			sv.Name = *req.Name
		}
		if req.Description != nil {
			sv.Description = *req.Description
		}
		if req.Price != nil {
			sv.Price = *req.Price
		}
		if req.Duration != nil {
			sv.Duration = *req.Duration
		}
		if req.IsActive != nil {
			sv.IsActive = *req.IsActive
		}
		c.JSON(http.StatusOK, sv)
		return
	}
	notFound(c, "Service")
}

func (s *Server) deleteService(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, sv := range s.Services {
		if sv.ID == c.Param("id") {
			s.Services = append(s.Services[:i], s.Services[i+1:]...)
			c.Status(http.StatusNoContent)
			return
		}
	}
	notFound(c, "Service")
}

func (s *Server) getPatient(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.Patients {
		if p.ID == c.Param("id") {
			c.JSON(http.StatusOK, p)
			return
		}
	}
	notFound(c, "Patient")
}

func (s *Server) getPatientByUser(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.Patients {
		if p.UserID == c.Param("userId") {
			c.JSON(http.StatusOK, p)
			return
		}
	}
	notFound(c, "Patient")
}

func (s *Server) createAppointment(c *gin.Context) {
	var req model.CreateAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.Appointments {
		if a.DoctorID == req.DoctorID && a.Date() == req.AppointmentDate &&
			model.TruncateTime(a.AppointmentTime) == req.AppointmentTime && !a.Status.Terminal() {
			c.JSON(http.StatusConflict, gin.H{"message": "El horario ya no está disponible"})
			return
		}
	}
	a := &model.Appointment{
		ID:              s.id("apt"),
		PatientID:       req.PatientID,
		DoctorID:        req.DoctorID,
		ServiceID:       req.ServiceID,
		AppointmentDate: req.AppointmentDate,
		AppointmentTime: req.AppointmentTime + ":00",
		Duration:        req.Duration,
		Status:          model.AppointmentStatusScheduled,
		ReasonForVisit:  req.ReasonForVisit,
		Notes:           req.Notes,
	}
	s.Appointments = append(s.Appointments, a)
	c.JSON(http.StatusCreated, a)
}

func (s *Server) findAppointment(id string) *model.Appointment {
	for _, a := range s.Appointments {
		if a.ID == id {
			return a
		}
	}
	return nil
}

func (s *Server) getAppointment(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a := s.findAppointment(c.Param("id")); a != nil {
		c.JSON(http.StatusOK, a)
		return
	}
	notFound(c, "Appointment")
}

func (s *Server) listPatientAppointments(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*model.Appointment{}
	for _, a := range s.Appointments {
		if a.PatientID == c.Param("id") {
			out = append(out, a)
		}
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) listDoctorAppointments(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*model.Appointment{}
	for _, a := range s.Appointments {
		if a.DoctorID == c.Param("id") {
			out = append(out, a)
		}
	}
	c.JSON(http.StatusOK, out)
}

var actionStatus = map[model.AppointmentAction]model.AppointmentStatus{
	model.ActionConfirm:    model.AppointmentStatusConfirmed,
	model.ActionCancel:     model.AppointmentStatusCancelled,
	model.ActionComplete:   model.AppointmentStatusCompleted,
	model.ActionNoShow:     model.AppointmentStatusNoShow,
	model.ActionReschedule: model.AppointmentStatusRescheduled,
}

func (s *Server) applyAction(c *gin.Context) {
	action, ok := model.ParseAction(c.Param("action"))
	if !ok {
		notFound(c, "Route")
		return
	}
	var req model.ActionRequest
	_ = c.ShouldBindJSON(&req)

	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.findAppointment(c.Param("id"))
	if a == nil {
		notFound(c, "Appointment")
		return
	}
	if !action.CanApply(a.Status) {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Transición de estado inválida"})
		return
	}
	a.Status = actionStatus[action]
	if req.CancellationReason != "" {
		a.CancellationReason = req.CancellationReason
	}
	if action == model.ActionReschedule {
		a.AppointmentDate = req.AppointmentDate
		a.AppointmentTime = req.AppointmentTime
	}
	c.JSON(http.StatusOK, a)
}

func (s *Server) availability(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	slots, ok := s.Slots[c.Param("id")+"|"+c.Query("date")]
	if !ok {
		slots = []model.TimeSlot{}
	}
	if d, err := strconv.Atoi(c.Query("duration")); err == nil {
		for i := range slots {
			if slots[i].Duration == 0 {
				slots[i].Duration = d
			}
		}
	}
	if s.SlotsWrapped {
		c.JSON(http.StatusOK, gin.H{"date": c.Query("date"), "slots": slots})
		return
	}
	c.JSON(http.StatusOK, slots)
}

func (s *Server) listSchedules(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.DoctorSchedule{}
	for _, sc := range s.Schedules {
		if sc.DoctorID == c.Param("id") {
			out = append(out, sc)
		}
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) createSchedule(c *gin.Context) {
	var req model.CreateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sc := model.DoctorSchedule{
		ID:        s.id("sch"),
		DoctorID:  req.DoctorID,
		DayOfWeek: req.DayOfWeek,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		IsActive:  req.IsActive == nil || *req.IsActive,
	}
	s.Schedules = append(s.Schedules, sc)
	c.JSON(http.StatusCreated, sc)
}

func (s *Server) updateSchedule(c *gin.Context) {
	var req model.UpdateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.Schedules {
		sc := &s.Schedules[i]
		if sc.ID == c.Param("id") {
			sc.DayOfWeek = req.DayOfWeek
			sc.StartTime = req.StartTime
			sc.EndTime = req.EndTime
			if req.IsActive != nil {
				sc.IsActive = *req.IsActive
			}
			c.JSON(http.StatusOK, sc)
			return
		}
	}
	notFound(c, "Schedule")
}

func (s *Server) toggleSchedule(c *gin.Context) {
	var active bool
	switch c.Param("action") {
	case "activate":
		active = true
	case "deactivate":
	default:
		notFound(c, "Route")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.Schedules {
		if s.Schedules[i].ID == c.Param("id") {
			s.Schedules[i].IsActive = active
			c.JSON(http.StatusOK, s.Schedules[i])
			return
		}
	}
	notFound(c, "Schedule")
}

func (s *Server) deleteSchedule(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, sc := range s.Schedules {
		if sc.ID == c.Param("id") {
			s.Schedules = append(s.Schedules[:i], s.Schedules[i+1:]...)
			c.Status(http.StatusNoContent)
			return
		}
	}
	notFound(c, "Schedule")
}

func (s *Server) listExceptions(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.ScheduleException{}
	for _, e := range s.Exceptions {
		if e.DoctorID == c.Param("id") {
			out = append(out, e)
		}
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) createException(c *gin.Context) {
	var req model.CreateExceptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e := model.ScheduleException{
		ID:            s.id("exc"),
		DoctorID:      req.DoctorID,
		ExceptionDate: req.ExceptionDate,
		StartTime:     req.StartTime,
		EndTime:       req.EndTime,
		Reason:        req.Reason,
	}
	s.Exceptions = append(s.Exceptions, e)
	c.JSON(http.StatusCreated, e)
}

func (s *Server) deleteException(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.Exceptions {
		if e.ID == c.Param("id") {
			s.Exceptions = append(s.Exceptions[:i], s.Exceptions[i+1:]...)
			c.Status(http.StatusNoContent)
			return
		}
	}
	notFound(c, "Exception")
}

func (s *Server) createConsultation(c *gin.Context) {
	var req model.CreateConsultationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cons := model.Consultation{
		VitalSigns:     req.VitalSigns,
		ID:             s.id("con"),
		AppointmentID:  req.AppointmentID,
		PatientID:      req.PatientID,
		DoctorID:       req.DoctorID,
		ChiefComplaint: req.ChiefComplaint,
		Diagnosis:      req.Diagnosis,
		TreatmentPlan:  req.TreatmentPlan,
		Prescriptions:  req.Prescriptions,
		Notes:          req.Notes,
		FollowUpDate:   req.FollowUpDate,
	}
	s.Consultations = append(s.Consultations, cons)
	c.JSON(http.StatusCreated, cons)
}

func (s *Server) getConsultation(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cons := range s.Consultations {
		if cons.ID == c.Param("id") {
			c.JSON(http.StatusOK, cons)
			return
		}
	}
	notFound(c, "Consultation")
}

func (s *Server) listConsultations(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.Consultation{}
	for _, cons := range s.Consultations {
		if cons.PatientID == c.Param("id") {
			out = append(out, cons)
		}
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) generateHistory(c *gin.Context) {
	if c.GetHeader("x-user-id") == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "x-user-id header is required"})
		return
	}
	var req model.GenerateHistoryRequest
	_ = c.ShouldBindJSON(&req)
	s.mu.Lock()
	defer s.mu.Unlock()
	h := model.GeneratedMedicalHistory{
		ID:        s.id("hist"),
		PatientID: c.Param("id"),
		Content:   "Historia clínica generada",
		Format:    "MARKDOWN",
		Type:      "COMPLETE",
		Language:  "es",
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
		CreatedAt: "2026-10-19T09:00:00.000Z",
	}
	if req.Type != "" {
		h.Type = req.Type
	}
	s.Histories = append(s.Histories, h)
	c.JSON(http.StatusCreated, h)
}

func (s *Server) listHistories(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.GeneratedMedicalHistory{}
	for _, h := range s.Histories {
		if h.PatientID == c.Param("id") {
			out = append(out, h)
		}
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) getHistory(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range s.Histories {
		if h.ID == c.Param("id") {
			c.JSON(http.StatusOK, h)
			return
		}
	}
	notFound(c, "History")
}

func (s *Server) historyPDF(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range s.Histories {
		if h.ID == c.Param("id") {
			c.Data(http.StatusOK, "application/pdf", s.PDF)
			return
		}
	}
	notFound(c, "History")
}

func (s *Server) deleteHistory(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, h := range s.Histories {
		if h.ID == c.Param("id") {
			s.Histories = append(s.Histories[:i], s.Histories[i+1:]...)
			c.Status(http.StatusNoContent)
			return
		}
	}
	notFound(c, "History")
}
