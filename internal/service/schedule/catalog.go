package schedule

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/jwalitptl/clinic-portal/internal/model"
	apperrors "github.com/jwalitptl/clinic-portal/pkg/errors"
	"github.com/jwalitptl/clinic-portal/pkg/logger"
	"github.com/jwalitptl/clinic-portal/pkg/validator"
)

type ServiceClient interface {
	ListByDoctor(ctx context.Context, doctorID string) ([]model.MedicalService, error)
	Create(ctx context.Context, req model.CreateServiceRequest) (*model.MedicalService, error)
	Update(ctx context.Context, id string, req model.UpdateServiceRequest) (*model.MedicalService, error)
	Delete(ctx context.Context, id string) error
}

// ServiceForm is the create form of a medical service.
type ServiceForm struct {
	Name        string  `json:"name" validate:"required,max=120"`
	Description string  `json:"description,omitempty" validate:"max=1000"`
	Price       float64 `json:"price" validate:"gte=0"`
	Duration    int     `json:"duration" validate:"gt=0"`
	IsActive    *bool   `json:"isActive,omitempty"`
}

// Catalog is a doctor's list of medical services.
type Catalog struct {
	doctor   model.Doctor
	services ServiceClient
	validate validator.Validator
	log      *logger.Logger

	mu   sync.Mutex
	list []model.MedicalService
}

func NewCatalog(doctor model.Doctor, services ServiceClient, v validator.Validator, log *logger.Logger) *Catalog {
	if v == nil {
		v = validator.New()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Catalog{doctor: doctor, services: services, validate: v, log: log}
}

func (c *Catalog) Doctor() model.Doctor { return c.doctor }

func (c *Catalog) Reload(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reload(ctx)
}

func (c *Catalog) reload(ctx context.Context) error {
	list, err := c.services.ListByDoctor(ctx, c.doctor.ID)
	if err != nil {
		return fmt.Errorf("failed to load services: %w", err)
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	c.list = list
	return nil
}

// Services returns every service, inactive ones included.
func (c *Catalog) Services() []model.MedicalService {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.MedicalService(nil), c.list...)
}

func (c *Catalog) find(id string) (model.MedicalService, bool) {
	for _, s := range c.list {
		if s.ID == id {
			return s, true
		}
	}
	return model.MedicalService{}, false
}

func (c *Catalog) Create(ctx context.Context, form ServiceForm) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	form.Name = strings.TrimSpace(form.Name)
	form.Description = strings.TrimSpace(form.Description)
	if err := c.validate.Validate(form); err != nil {
		return apperrors.Validation(err)
	}
	req := model.CreateServiceRequest{
		DoctorID:    c.doctor.ID,
		Name:        form.Name,
		Description: form.Description,
		Price:       form.Price,
		Duration:    form.Duration,
		IsActive:    form.IsActive,
	}
	if _, err := c.services.Create(ctx, req); err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}
	c.log.WithContext(ctx).Info("service created", "doctor", c.doctor.ID, "name", form.Name)
	return c.reload(ctx)
}

func (c *Catalog) Update(ctx context.Context, id string, req model.UpdateServiceRequest) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.find(id); !ok {
		return apperrors.NotFound("service", nil)
	}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return apperrors.Validation(fmt.Errorf("name is required"))
		}
		req.Name = &name
	}
	if err := c.validate.Validate(req); err != nil {
		return apperrors.Validation(err)
	}
	if _, err := c.services.Update(ctx, id, req); err != nil {
		return fmt.Errorf("failed to update service: %w", err)
	}
	c.log.WithContext(ctx).Info("service updated", "doctor", c.doctor.ID, "service", id)
	return c.reload(ctx)
}

// Toggle flips isActive of a loaded service.
func (c *Catalog) Toggle(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.find(id)
	if !ok {
		return apperrors.NotFound("service", nil)
	}
	active := !s.IsActive
	if _, err := c.services.Update(ctx, id, model.UpdateServiceRequest{IsActive: &active}); err != nil {
		return fmt.Errorf("failed to toggle service: %w", err)
	}
	return c.reload(ctx)
}

func (c *Catalog) Delete(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.find(id); !ok {
		return apperrors.NotFound("service", nil)
	}
	if err := c.services.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete service: %w", err)
	}
	c.log.WithContext(ctx).Info("service deleted", "doctor", c.doctor.ID, "service", id)
	return c.reload(ctx)
}
