package consultation

import (
	"fmt"
	"math"
	"strings"

	"github.com/jwalitptl/clinic-portal/internal/model"
)

// BMI derives the body mass index from weight in kilograms and height in
// centimetres, rounded to one decimal. It returns nil unless both are
// present and positive.
func BMI(weight, height *float64) *float64 {
	if weight == nil || height == nil || *weight <= 0 || *height <= 0 {
		return nil
	}
	m := *height / 100
	v := math.Round(*weight/(m*m)*10) / 10
	return &v
}

// checkBloodPressure enforces diastolic < systolic when both are given.
func checkBloodPressure(v model.VitalSigns) error {
	if v.BloodPressureSystolic == nil || v.BloodPressureDiastolic == nil {
		return nil
	}
	if *v.BloodPressureDiastolic >= *v.BloodPressureSystolic {
		return fmt.Errorf("bloodPressureDiastolic must be lower than bloodPressureSystolic")
	}
	return nil
}

// FlattenPrescriptions renders the prescriptions as the single text block
// the API stores, one numbered line per medication.
func FlattenPrescriptions(list []model.Prescription) string {
	lines := make([]string, 0, len(list))
	for i, p := range list {
		line := fmt.Sprintf("%d. %s - %s - %s - %s", i+1,
			strings.TrimSpace(p.Medication),
			strings.TrimSpace(p.Dosage),
			strings.TrimSpace(p.Frequency),
			strings.TrimSpace(p.Duration))
		if instr := strings.TrimSpace(p.Instructions); instr != "" {
			line += fmt.Sprintf(" (%s)", instr)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}
