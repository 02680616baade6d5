package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-tenancy/platform/go/persistence"
)

// CreatePartner registers a partner in pending status.
func (s *Service) CreatePartner(ctx context.Context, input CreatePartnerInput) (Partner, error) {
	if err := s.check(input); err != nil {
		return Partner{}, err
	}

	now := s.now()
	p := Partner{
		ID:             uuid.New(),
		Name:           input.Name,
		Status:         PartnerPending,
		TenantID:       input.TenantID,
		Customers:      []uuid.UUID{},
		BusinessType:   input.BusinessType,
		Contact:        input.Contact,
		RevenueShare:   DefaultRevenueShare,
		Commission:     CommissionStructure{Model: "flat"},
		Capabilities:   input.Capabilities,
		Certifications: input.Certifications,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if input.RevenueShare != nil {
		p.RevenueShare = *input.RevenueShare
	}
	if input.Commission != nil {
		p.Commission = *input.Commission
	}

	err := s.withManagement(ctx, func(sess persistence.Session) error {
		var owner Tenant
		if err := loadTenant(ctx, sess, input.TenantID, &owner); err != nil {
			return err
		}
		return sess.Store(collectionPartners, p.ID.String(), p)
	})
	if err != nil {
		return Partner{}, err
	}

	s.logger.Info("partner created", zap.String("partner_id", p.ID.String()), zap.String("tenant_id", p.TenantID.String()))
	return p, nil
}

// GetPartner loads a partner from the management database.
func (s *Service) GetPartner(ctx context.Context, id uuid.UUID) (Partner, error) {
	var p Partner
	err := s.withManagement(ctx, func(sess persistence.Session) error {
		return loadPartner(ctx, sess, id, &p)
	})
	if err != nil {
		return Partner{}, err
	}
	return p, nil
}

func loadPartner(ctx context.Context, sess persistence.Session, id uuid.UUID, dst *Partner) error {
	if err := sess.Load(ctx, collectionPartners, id.String(), dst); err != nil {
		if errors.Is(err, persistence.ErrDocumentNotFound) {
			return fmt.Errorf("%w: %s", ErrPartnerNotFound, id)
		}
		return fmt.Errorf("load partner %s: %w", id, err)
	}
	return nil
}

// ListPartners returns every partner ordered by name.
func (s *Service) ListPartners(ctx context.Context) ([]Partner, error) {
	var out []Partner
	err := s.withManagement(ctx, func(sess persistence.Session) error {
		var err error
		out, err = persistence.QueryInto[Partner](ctx, sess, collectionPartners, nil)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list partners: %w", err)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// AssignPartnerCustomer makes the partner manage the tenant. Both records change in one commit.
func (s *Service) AssignPartnerCustomer(ctx context.Context, partnerID, tenantID uuid.UUID) (Partner, error) {
	var p Partner
	err := s.withManagement(ctx, func(sess persistence.Session) error {
		var t Tenant
		if err := loadTenant(ctx, sess, tenantID, &t); err != nil {
			return err
		}
		if t.PartnerID != nil && *t.PartnerID != partnerID {
			if err := s.unlinkPartnerCustomer(ctx, sess, *t.PartnerID, tenantID); err != nil {
				return err
			}
		}
		if err := s.linkPartnerCustomer(ctx, sess, partnerID, tenantID); err != nil {
			return err
		}
		if err := loadPartner(ctx, sess, partnerID, &p); err != nil {
			return err
		}

		t.PartnerID = &partnerID
		t.UpdatedAt = s.now()
		return sess.Store(collectionTenants, tenantID.String(), t)
	})
	if err != nil {
		return Partner{}, err
	}
	return p, nil
}

// linkPartnerCustomer schedules the partner update adding tenantID to its customers.
func (s *Service) linkPartnerCustomer(ctx context.Context, sess persistence.Session, partnerID, tenantID uuid.UUID) error {
	var p Partner
	if err := loadPartner(ctx, sess, partnerID, &p); err != nil {
		return err
	}
	if slices.Contains(p.Customers, tenantID) {
		return nil
	}
	p.Customers = append(p.Customers, tenantID)
	p.Metrics.ActiveCustomers = len(p.Customers)
	p.UpdatedAt = s.now()
	return sess.Store(collectionPartners, partnerID.String(), p)
}

func (s *Service) unlinkPartnerCustomer(ctx context.Context, sess persistence.Session, partnerID, tenantID uuid.UUID) error {
	var p Partner
	err := loadPartner(ctx, sess, partnerID, &p)
	if errors.Is(err, ErrPartnerNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	p.Customers = removeID(p.Customers, tenantID)
	p.Metrics.ActiveCustomers = len(p.Customers)
	p.UpdatedAt = s.now()
	return sess.Store(collectionPartners, partnerID.String(), p)
}
