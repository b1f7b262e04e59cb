package model

type GeneratedMedicalHistory struct {
	ID        string `json:"id"`
	PatientID string `json:"patientId"`
	Content   string `json:"content"`
	Format    string `json:"format"`
	Type      string `json:"type"`
	Language  string `json:"language"`
	StartDate string `json:"startDate,omitempty"`
	EndDate   string `json:"endDate,omitempty"`
	CreatedAt string `json:"createdAt"`
}

type GenerateHistoryRequest struct {
	Type      string `json:"type,omitempty" validate:"omitempty,oneof=COMPLETE SUMMARY DATE_RANGE"`
	Language  string `json:"language,omitempty" validate:"omitempty,oneof=es en"`
	Format    string `json:"format,omitempty" validate:"omitempty,oneof=TEXT MARKDOWN HTML"`
	StartDate string `json:"startDate,omitempty" validate:"omitempty,isodate"`
	EndDate   string `json:"endDate,omitempty" validate:"omitempty,isodate"`
}
