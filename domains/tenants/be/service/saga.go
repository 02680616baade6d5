package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type sagaStep struct {
	name       string
	run        func(ctx context.Context) error
	compensate func(ctx context.Context) error
}

// saga runs steps in order and, when one fails, compensates the completed ones in reverse.
type saga struct {
	operation string
	tenantID  uuid.UUID
	logger    *zap.Logger
	steps     []sagaStep
}

func (sg *saga) execute(ctx context.Context) error {
	logger := sg.logger.With(
		zap.String("operation", sg.operation),
		zap.String("tenant_id", sg.tenantID.String()),
	)

	done := make([]sagaStep, 0, len(sg.steps))
	for _, step := range sg.steps {
		logger.Info("provisioning step", zap.String("step", step.name))
		if err := step.run(ctx); err != nil {
			logger.Error("provisioning step failed", zap.String("step", step.name), zap.Error(err))
			if len(done) == 0 {
				return fmt.Errorf("%s %s: %s: %w", sg.operation, sg.tenantID, step.name, err)
			}

			perr := &PartialProvisioningError{
				Operation:  sg.operation,
				TenantID:   sg.tenantID,
				FailedStep: step.name,
				Err:        err,
			}
			for _, d := range done {
				perr.Completed = append(perr.Completed, d.name)
			}
			perr.CompensationErr = sg.compensate(context.WithoutCancel(ctx), logger, done)
			return perr
		}
		done = append(done, step)
	}
	return nil
}

func (sg *saga) compensate(ctx context.Context, logger *zap.Logger, done []sagaStep) error {
	var errs []error
	for i := len(done) - 1; i >= 0; i-- {
		step := done[i]
		if step.compensate == nil {
			continue
		}
		logger.Warn("compensating provisioning step", zap.String("step", step.name))
		if err := step.compensate(ctx); err != nil {
			logger.Error("compensation failed", zap.String("step", step.name), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", step.name, err))
		}
	}
	return errors.Join(errs...)
}
