package service

import (
	"reflect"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// CreateTenantInput is the request to create and provision a tenant.
type CreateTenantInput struct {
	Name      string         `json:"name" validate:"required,max=200"`
	Plan      Plan           `json:"plan" validate:"required,oneof=free standard enterprise"`
	Status    Status         `json:"status,omitempty" validate:"omitempty,oneof=active suspended trial"`
	Owner     Owner          `json:"owner"`
	Settings  map[string]any `json:"settings,omitempty"`
	PartnerID *uuid.UUID     `json:"partnerId,omitempty"`
}

// UpdateTenantInput carries the fields to merge into a tenant; nil fields are left untouched.
// Settings are merged key by key, a nil value removes the key.
type UpdateTenantInput struct {
	Name     *string        `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	Plan     *Plan          `json:"plan,omitempty" validate:"omitempty,oneof=free standard enterprise"`
	Status   *Status        `json:"status,omitempty" validate:"omitempty,oneof=active suspended trial"`
	Owner    *Owner         `json:"owner,omitempty"`
	Limits   *Limits        `json:"limits,omitempty"`
	Settings map[string]any `json:"settings,omitempty"`
	Usage    *Usage         `json:"usage,omitempty"`
}

// ListTenantsOptions filters ListTenants.
type ListTenantsOptions struct {
	Status *Status
}

// AddMemberInput describes the user to add to a tenant.
type AddMemberInput struct {
	UserID    string     `json:"userId" validate:"required"`
	Role      Role       `json:"role" validate:"required,oneof=owner admin recruiter interviewer viewer partner_manager"`
	Scopes    []string   `json:"scopes,omitempty" validate:"omitempty,dive,required"`
	InvitedBy string     `json:"invitedBy,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// CreatePartnerInput is the request to register a partner.
type CreatePartnerInput struct {
	Name           string               `json:"name" validate:"required,max=200"`
	TenantID       uuid.UUID            `json:"tenantId" validate:"required"`
	BusinessType   string               `json:"businessType,omitempty"`
	Contact        Contact              `json:"contact"`
	RevenueShare   *float64             `json:"revenueSharePercent,omitempty" validate:"omitempty,gte=0,lte=100"`
	Commission     *CommissionStructure `json:"commission,omitempty"`
	Capabilities   []string             `json:"capabilities,omitempty"`
	Certifications []string             `json:"certifications,omitempty"`
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if id, ok := field.Interface().(uuid.UUID); ok && id != uuid.Nil {
			return id.String()
		}
		return ""
	}, uuid.UUID{})
	return v
}

func (s *Service) check(input any) error {
	if err := s.validate.Struct(input); err != nil {
		return &ValidationError{Err: err}
	}
	return nil
}
