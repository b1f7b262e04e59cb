package model

// MedicalService is a bookable service offered by one doctor.
type MedicalService struct {
	ID          string  `json:"id"`
	DoctorID    string  `json:"doctorId"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Price       float64 `json:"price"`
	Duration    int     `json:"duration"`
	IsActive    bool    `json:"isActive"`
}

type CreateServiceRequest struct {
	DoctorID    string  `json:"doctorId" validate:"required"`
	Name        string  `json:"name" validate:"required,max=120"`
	Description string  `json:"description,omitempty" validate:"max=1000"`
	Price       float64 `json:"price" validate:"gte=0"`
	Duration    int     `json:"duration" validate:"gt=0"`
	IsActive    *bool   `json:"isActive,omitempty"`
}

type UpdateServiceRequest struct {
	Name        *string  `json:"name,omitempty" validate:"omitempty,max=120"`
	Description *string  `json:"description,omitempty" validate:"omitempty,max=1000"`
	Price       *float64 `json:"price,omitempty" validate:"omitempty,gte=0"`
	Duration    *int     `json:"duration,omitempty" validate:"omitempty,gt=0"`
	IsActive    *bool    `json:"isActive,omitempty"`
}
