package session

import (
	"context"
	"fmt"

	"github.com/jwalitptl/clinic-portal/internal/model"
	apperrors "github.com/jwalitptl/clinic-portal/pkg/errors"
)

// PatientID returns the patient record id of a PATIENT session, asking the
// API once when login did not carry it.
func (s *Session) PatientID(ctx context.Context) (string, error) {
	user, ok := s.User()
	if !ok {
		return "", apperrors.Unauthorized(nil)
	}
	if user.Role != model.RolePatient {
		return "", apperrors.Forbidden("not a patient account")
	}
	if user.PatientID != "" {
		return user.PatientID, nil
	}
	p, err := s.client.Patients.GetByUser(ctx, user.ID)
	if err != nil {
		return "", fmt.Errorf("failed to resolve patient: %w", err)
	}
	if err := s.SetLinkedIDs(ctx, p.ID, ""); err != nil {
		s.manager.log.WithContext(ctx).Warn("could not persist patient id", "session", s.id, "error", err.Error())
	}
	return p.ID, nil
}

// DoctorID is the DOCTOR counterpart of PatientID.
func (s *Session) DoctorID(ctx context.Context) (string, error) {
	user, ok := s.User()
	if !ok {
		return "", apperrors.Unauthorized(nil)
	}
	if user.Role != model.RoleDoctor {
		return "", apperrors.Forbidden("not a doctor account")
	}
	if user.DoctorID != "" {
		return user.DoctorID, nil
	}
	d, err := s.client.Doctors.GetByUser(ctx, user.ID)
	if err != nil {
		return "", fmt.Errorf("failed to resolve doctor: %w", err)
	}
	if err := s.SetLinkedIDs(ctx, "", d.ID); err != nil {
		s.manager.log.WithContext(ctx).Warn("could not persist doctor id", "session", s.id, "error", err.Error())
	}
	return d.ID, nil
}
