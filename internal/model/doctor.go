package model

import "strings"

type Doctor struct {
	ID                string  `json:"id"`
	UserID            string  `json:"userId"`
	FirstName         string  `json:"firstName"`
	LastName          string  `json:"lastName"`
	Specialty         string  `json:"specialty"`
	LicenseNumber     string  `json:"licenseNumber"`
	YearsOfExperience int     `json:"yearsOfExperience"`
	ConsultationPrice float64 `json:"consultationPrice"`
	IsAvailable       bool    `json:"isAvailable"`
}

func (d Doctor) FullName() string {
	return strings.TrimSpace(d.FirstName + " " + d.LastName)
}
