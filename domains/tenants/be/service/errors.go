package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Errors returned by the service layer.
var (
	ErrTenantNotFound     = errors.New("tenant not found")
	ErrPartnerNotFound    = errors.New("partner not found")
	ErrMembershipNotFound = errors.New("membership not found")
	ErrConfigNotFound     = errors.New("tenant config not found")
	ErrServiceClosed      = errors.New("tenant provisioning service closed")
)

// ValidationError reports rejected input.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string { return "invalid input: " + e.Err.Error() }

func (e *ValidationError) Unwrap() error { return e.Err }

// Fields lists the offending input fields, when known.
func (e *ValidationError) Fields() []string {
	var verrs validator.ValidationErrors
	if !errors.As(e.Err, &verrs) {
		return nil
	}
	out := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, fe.Namespace())
	}
	return out
}

// PartialProvisioningError is returned when a multi-step tenant operation fails after at
// least one step took effect. Completed steps were compensated in reverse order; when
// CompensationErr is non-nil some of that state is still in place.
type PartialProvisioningError struct {
	Operation       string
	TenantID        uuid.UUID
	Completed       []string
	FailedStep      string
	Err             error
	CompensationErr error
}

func (e *PartialProvisioningError) Error() string {
	msg := fmt.Sprintf("%s %s: step %q failed after [%s]: %v",
		e.Operation, e.TenantID, e.FailedStep, strings.Join(e.Completed, ", "), e.Err)
	if e.CompensationErr != nil {
		msg += "; compensation failed: " + e.CompensationErr.Error()
	}
	return msg
}

func (e *PartialProvisioningError) Unwrap() error { return e.Err }

// Compensated reports whether every completed step was rolled back.
func (e *PartialProvisioningError) Compensated() bool { return e.CompensationErr == nil }
