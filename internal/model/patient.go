package model

type Patient struct {
	ID          string `json:"id"`
	UserID      string `json:"userId"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	DateOfBirth string `json:"dateOfBirth,omitempty"`
	Gender      string `json:"gender,omitempty"`
	Phone       string `json:"phone,omitempty"`
	BloodType   string `json:"bloodType,omitempty"`
	Allergies   string `json:"allergies,omitempty"`
}
