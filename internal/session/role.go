package session

import (
	"encoding/json"
	"fmt"

	"github.com/jwalitptl/clinic-portal/internal/model"
)

// NormalizeRole accepts the two shapes the clinic API uses for a role, a
// bare string or an object with a name, and returns the closed enum.
func NormalizeRole(raw json.RawMessage) (model.Role, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", fmt.Errorf("user has no role")
	}
	var name string
	if err := json.Unmarshal(raw, &name); err != nil {
		var obj struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(raw, &obj); err != nil {
			return "", fmt.Errorf("unrecognized role shape %s", string(raw))
		}
		name = obj.Name
	}
	role, ok := model.ParseRole(name)
	if !ok {
		return "", fmt.Errorf("unknown role %q", name)
	}
	return role, nil
}

// UserFromRemote converts the API user into the portal identity.
func UserFromRemote(u model.RemoteUser) (model.User, error) {
	role, err := NormalizeRole(u.Role)
	if err != nil {
		return model.User{}, err
	}
	out := model.User{
		ID:        u.ID,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Role:      role,
		PatientID: u.PatientID,
		DoctorID:  u.DoctorID,
	}
	if out.PatientID == "" && u.Patient != nil {
		out.PatientID = u.Patient.ID
	}
	if out.DoctorID == "" && u.Doctor != nil {
		out.DoctorID = u.Doctor.ID
	}
	return out, nil
}
