package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type window struct {
	DayOfWeek int    `json:"dayOfWeek" validate:"min=0,max=6"`
	StartTime string `json:"startTime" validate:"required,hhmm"`
	EndTime   string `json:"endTime" validate:"required,hhmm,timeafter=StartTime"`
}

func TestIsHHMM(t *testing.T) {
	for _, ok := range []string{"00:00", "08:30", "23:59", "12:00"} {
		assert.True(t, IsHHMM(ok), ok)
	}
	for _, bad := range []string{"24:00", "8:30", "08:60", "08:30:00", "", "ab:cd"} {
		assert.False(t, IsHHMM(bad), bad)
	}
}

func TestIsISODate(t *testing.T) {
	assert.True(t, IsISODate("2026-10-19"))
	assert.False(t, IsISODate("2026-13-01"))
	assert.False(t, IsISODate("2026-1-5"))
	assert.False(t, IsISODate("19/10/2026"))
}

func TestTimeAfterRejectsEqualAndInverted(t *testing.T) {
	assert.True(t, TimeAfter("08:00", "17:00"))
	assert.False(t, TimeAfter("08:00", "08:00"))
	assert.False(t, TimeAfter("17:00", "08:00"))
	assert.False(t, TimeAfter("8:00", "17:00"))
}

func TestValidateStruct(t *testing.T) {
	v := New()

	require.NoError(t, v.Validate(window{DayOfWeek: 0, StartTime: "08:00", EndTime: "17:00"}))

	err := v.Validate(window{DayOfWeek: 7, StartTime: "08:00", EndTime: "17:00"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dayOfWeek")

	err = v.Validate(window{DayOfWeek: 1, StartTime: "09:00", EndTime: "09:00"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "endTime must be later than StartTime")

	err = v.Validate(window{DayOfWeek: 1, StartTime: "9:00", EndTime: "10:00"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "startTime must be a 24-hour HH:MM time")
}

func TestValidateField(t *testing.T) {
	v := New()
	assert.NoError(t, v.ValidateField("reasonForVisit", "Chequeo", "required", "max=500"))
	err := v.ValidateField("reasonForVisit", "", "required")
	require.Error(t, err)
	assert.Equal(t, "reasonForVisit is required", err.Error())
}
