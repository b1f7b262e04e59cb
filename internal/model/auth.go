package model

import "encoding/json"

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RemoteUser is the user object as the clinic API sends it. Role arrives
// either as a bare string or as an object with a name; the session layer
// normalizes it into Role.
type RemoteUser struct {
	ID        string          `json:"id"`
	Email     string          `json:"email"`
	FirstName string          `json:"firstName"`
	LastName  string          `json:"lastName"`
	Role      json.RawMessage `json:"role"`
	PatientID string          `json:"patientId,omitempty"`
	DoctorID  string          `json:"doctorId,omitempty"`
	Patient   *Ref            `json:"patient,omitempty"`
	Doctor    *Ref            `json:"doctor,omitempty"`
}

// Ref is a nested {id} reference.
type Ref struct {
	ID string `json:"id"`
}

type LoginResponse struct {
	AccessToken string     `json:"accessToken"`
	User        RemoteUser `json:"user"`
}
