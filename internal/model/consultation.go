package model

// VitalSigns are all optional; a consultation may record any subset.
type VitalSigns struct {
	BloodPressureSystolic  *int     `json:"bloodPressureSystolic,omitempty" validate:"omitempty,min=40,max=300"`
	BloodPressureDiastolic *int     `json:"bloodPressureDiastolic,omitempty" validate:"omitempty,min=20,max=200"`
	HeartRate              *int     `json:"heartRate,omitempty" validate:"omitempty,min=20,max=250"`
	Temperature            *float64 `json:"temperature,omitempty" validate:"omitempty,min=30,max=45"`
	RespiratoryRate        *int     `json:"respiratoryRate,omitempty" validate:"omitempty,min=5,max=80"`
	OxygenSaturation       *int     `json:"oxygenSaturation,omitempty" validate:"omitempty,min=50,max=100"`
	Weight                 *float64 `json:"weight,omitempty" validate:"omitempty,gt=0,max=500"`
	Height                 *float64 `json:"height,omitempty" validate:"omitempty,gt=0,max=300"`
	BMI                    *float64 `json:"bmi,omitempty"`
}

type Prescription struct {
	Medication   string `json:"medication" validate:"required,max=200"`
	Dosage       string `json:"dosage" validate:"required,max=100"`
	Frequency    string `json:"frequency" validate:"required,max=100"`
	Duration     string `json:"duration" validate:"required,max=100"`
	Instructions string `json:"instructions,omitempty" validate:"max=500"`
}

type Consultation struct {
	VitalSigns
	ID             string `json:"id"`
	AppointmentID  string `json:"appointmentId,omitempty"`
	PatientID      string `json:"patientId"`
	DoctorID       string `json:"doctorId"`
	ChiefComplaint string `json:"chiefComplaint"`
	Diagnosis      string `json:"diagnosis"`
	TreatmentPlan  string `json:"treatmentPlan,omitempty"`
	Prescriptions  string `json:"prescriptions,omitempty"`
	Notes          string `json:"notes,omitempty"`
	FollowUpDate   string `json:"followUpDate,omitempty"`
	CreatedAt      string `json:"createdAt,omitempty"`
}

type CreateConsultationRequest struct {
	VitalSigns
	AppointmentID  string `json:"appointmentId,omitempty"`
	PatientID      string `json:"patientId"`
	DoctorID       string `json:"doctorId"`
	ChiefComplaint string `json:"chiefComplaint"`
	Diagnosis      string `json:"diagnosis"`
	TreatmentPlan  string `json:"treatmentPlan,omitempty"`
	Prescriptions  string `json:"prescriptions,omitempty"`
	Notes          string `json:"notes,omitempty"`
	FollowUpDate   string `json:"followUpDate,omitempty"`
}
