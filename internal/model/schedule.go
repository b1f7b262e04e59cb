package model

import "time"

// DoctorSchedule is a recurring weekly window. DayOfWeek follows
// time.Weekday: 0 is Sunday.
type DoctorSchedule struct {
	ID        string `json:"id"`
	DoctorID  string `json:"doctorId"`
	DayOfWeek int    `json:"dayOfWeek"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
	IsActive  bool   `json:"isActive"`
}

func (s DoctorSchedule) Weekday() time.Weekday {
	return time.Weekday(s.DayOfWeek)
}

// ScheduleException overrides the schedule for one date. Absent times mean
// the whole day is blocked.
type ScheduleException struct {
	ID            string  `json:"id"`
	DoctorID      string  `json:"doctorId"`
	ExceptionDate string  `json:"exceptionDate"`
	StartTime     *string `json:"startTime,omitempty"`
	EndTime       *string `json:"endTime,omitempty"`
	Reason        *string `json:"reason,omitempty"`
}

func (e ScheduleException) IsFullDay() bool {
	return e.StartTime == nil || e.EndTime == nil || *e.StartTime == "" || *e.EndTime == ""
}

func (e ScheduleException) Date() string {
	return NormalizeDate(e.ExceptionDate)
}

type CreateScheduleRequest struct {
	DoctorID  string `json:"doctorId" validate:"required"`
	DayOfWeek int    `json:"dayOfWeek" validate:"min=0,max=6"`
	StartTime string `json:"startTime" validate:"required,hhmm"`
	EndTime   string `json:"endTime" validate:"required,hhmm,timeafter=StartTime"`
	IsActive  *bool  `json:"isActive,omitempty"`
}

type UpdateScheduleRequest struct {
	DayOfWeek int    `json:"dayOfWeek" validate:"min=0,max=6"`
	StartTime string `json:"startTime" validate:"required,hhmm"`
	EndTime   string `json:"endTime" validate:"required,hhmm,timeafter=StartTime"`
	IsActive  *bool  `json:"isActive,omitempty"`
}

type CreateExceptionRequest struct {
	DoctorID      string  `json:"doctorId"`
	ExceptionDate string  `json:"exceptionDate"`
	StartTime     *string `json:"startTime,omitempty"`
	EndTime       *string `json:"endTime,omitempty"`
	Reason        *string `json:"reason,omitempty"`
}
