package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/jwalitptl/clinic-portal/internal/model"
	apperrors "github.com/jwalitptl/clinic-portal/pkg/errors"
)

type AvailabilityClient struct{ c *Client }

// Slots returns the server-computed slots for one doctor and date. The API
// answers either with a bare array or with an object holding "slots"; both
// are accepted.
func (a *AvailabilityClient) Slots(ctx context.Context, doctorID, date string, duration int) ([]model.TimeSlot, error) {
	q := url.Values{}
	q.Set("date", date)
	if duration > 0 {
		q.Set("duration", strconv.Itoa(duration))
	}
	resp, err := a.c.send(ctx, http.MethodGet, "/availability/doctor/"+escape(doctorID), nil, WithQuery(q))
	if err != nil {
		return nil, err
	}
	slots, err := decodeSlots(resp.body)
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("failed to decode availability: %w", err))
	}
	return slots, nil
}

func decodeSlots(body []byte) ([]model.TimeSlot, error) {
	var list []model.TimeSlot
	if err := json.Unmarshal(body, &list); err == nil {
		return list, nil
	}
	var wrapped struct {
		Slots []model.TimeSlot `json:"slots"`
	}
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return nil, err
	}
	return wrapped.Slots, nil
}
