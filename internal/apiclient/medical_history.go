package apiclient

import (
	"context"
	"mime"
	"net/http"

	"github.com/jwalitptl/clinic-portal/internal/model"
)

type MedicalHistoryClient struct{ c *Client }

// Generate asks the API to produce a new history. Generation is slow, so
// the call runs with the extended generation timeout.
func (m *MedicalHistoryClient) Generate(ctx context.Context, patientID, userID string, req model.GenerateHistoryRequest) (*model.GeneratedMedicalHistory, error) {
	var out model.GeneratedMedicalHistory
	path := "/medical-history/patient/" + escape(patientID) + "/generate"
	err := m.c.do(ctx, http.MethodPost, path, req, &out,
		WithTimeout(m.c.generateTimeout),
		WithHeader("x-user-id", userID),
	)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (m *MedicalHistoryClient) ListByPatient(ctx context.Context, patientID string) ([]model.GeneratedMedicalHistory, error) {
	var out []model.GeneratedMedicalHistory
	if err := m.c.do(ctx, http.MethodGet, "/medical-history/patient/"+escape(patientID), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (m *MedicalHistoryClient) Get(ctx context.Context, id string) (*model.GeneratedMedicalHistory, error) {
	var out model.GeneratedMedicalHistory
	if err := m.c.do(ctx, http.MethodGet, "/medical-history/"+escape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PDF is a downloaded document. Filename is whatever the API suggested in
// Content-Disposition, possibly empty.
type PDF struct {
	Data        []byte
	ContentType string
	Filename    string
}

func (m *MedicalHistoryClient) DownloadPDF(ctx context.Context, id string) (*PDF, error) {
	resp, err := m.c.send(ctx, http.MethodGet, "/medical-history/"+escape(id)+"/pdf", nil,
		WithTimeout(m.c.downloadTimeout),
		WithHeader("Accept", "application/pdf"),
	)
	if err != nil {
		return nil, err
	}
	pdf := &PDF{Data: resp.body, ContentType: resp.header.Get("Content-Type")}
	if cd := resp.header.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil {
			pdf.Filename = params["filename"]
		}
	}
	return pdf, nil
}

func (m *MedicalHistoryClient) Delete(ctx context.Context, id string) error {
	return m.c.do(ctx, http.MethodDelete, "/medical-history/"+escape(id), nil, nil)
}
