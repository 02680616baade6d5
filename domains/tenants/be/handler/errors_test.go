package handler

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-tenancy/domains/tenants/be/service"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/lock"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/persistence"
)

func TestProblemForPartialFailureKeepsSteps(t *testing.T) {
	h := &Handler{logger: zap.NewNop()}
	r := httptest.NewRequest(http.MethodDelete, "/tenants/x", nil)

	causes := map[string]error{
		"conflict":  fmt.Errorf("unlink partner: %w", persistence.ErrConcurrencyConflict),
		"not found": fmt.Errorf("%w: p-1", service.ErrPartnerNotFound),
	}
	for name, cause := range causes {
		t.Run(name, func(t *testing.T) {
			err := fmt.Errorf("wrapped: %w", &service.PartialProvisioningError{
				Operation:  "delete tenant",
				TenantID:   uuid.New(),
				Completed:  []string{service.StepDropDatabase},
				FailedStep: service.StepDeleteMetadata,
				Err:        cause,
			})

			problem := h.problemForError(r, err)
			require.Equal(t, http.StatusBadGateway, problem.Status)
			require.Equal(t, problemTypeProvisioning, problem.Type)
			require.Equal(t, service.StepDeleteMetadata, problem.FailedStep)
			require.Equal(t, []string{service.StepDropDatabase}, problem.Completed)
			require.NotNil(t, problem.Compensated)
			require.True(t, *problem.Compensated)
		})
	}
}

func TestProblemForErrorStatuses(t *testing.T) {
	h := &Handler{logger: zap.NewNop()}
	r := httptest.NewRequest(http.MethodGet, "/tenants", nil)

	cases := []struct {
		name string
		err  error
		want int
	}{
		{"tenant missing", fmt.Errorf("%w: t-1", service.ErrTenantNotFound), http.StatusNotFound},
		{"version conflict", persistence.ErrConcurrencyConflict, http.StatusConflict},
		{"lease held", fmt.Errorf("acquire provisioning lease: %w", lock.ErrNotAcquired), http.StatusConflict},
		{"closed", service.ErrServiceClosed, http.StatusServiceUnavailable},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, h.problemForError(r, tc.err).Status)
		})
	}
}
