package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-tenancy/platform/go/persistence"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/tenant"
)

// Saga step names.
const (
	StepStoreMetadata  = "store-metadata"
	StepCreateDatabase = "create-database"
	StepSeedConfig     = "seed-config"
	StepMarkReady      = "mark-ready"
	StepDropDatabase   = "drop-database"
	StepDeleteMetadata = "delete-metadata"

	StepStoreMembership  = "store-membership"
	StepMirrorMembership = "mirror-membership"
	StepRemoveMembership = "remove-membership"
	StepRemoveMirror     = "remove-mirror"
)

// CreateTenant registers a tenant in the management database, then creates and seeds its
// dedicated database under the provisioning lease of that database. A failure after the
// metadata commit is compensated and reported as *PartialProvisioningError.
func (s *Service) CreateTenant(ctx context.Context, input CreateTenantInput) (Tenant, error) {
	if err := s.check(input); err != nil {
		return Tenant{}, err
	}

	id := tenant.NewID()
	now := s.now()
	t := Tenant{
		ID:           id,
		Name:         input.Name,
		Plan:         input.Plan,
		Status:       input.Status,
		DatabaseName: tenant.BuildDatabaseName(id),
		Owner:        input.Owner,
		Limits:       LimitsFor(input.Plan),
		Settings:     cloneSettings(input.Settings),
		PartnerID:    input.PartnerID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if t.Status == "" {
		t.Status = StatusActive
	}

	tenantCfg, topology, err := s.tenantDatabaseConfig(t.DatabaseName)
	if err != nil {
		return Tenant{}, err
	}

	release, err := s.holdProvisioning(ctx, t.DatabaseName)
	if err != nil {
		return Tenant{}, fmt.Errorf("create tenant %s: %w", id, err)
	}
	defer release()

	sg := &saga{
		operation: "create tenant",
		tenantID:  id,
		logger:    s.logger,
		steps: []sagaStep{
			{
				name: StepStoreMetadata,
				run: func(ctx context.Context) error {
					return s.withManagement(ctx, func(sess persistence.Session) error {
						if t.PartnerID != nil {
							if err := s.linkPartnerCustomer(ctx, sess, *t.PartnerID, id); err != nil {
								return err
							}
						}
						return sess.Store(collectionTenants, id.String(), t)
					})
				},
				compensate: func(ctx context.Context) error {
					return s.deleteTenantMetadata(ctx, t)
				},
			},
			{
				name: StepCreateDatabase,
				run: func(ctx context.Context) error {
					_, err := s.provisioner.Ensure(ctx, DatabaseRequest{
						Name:              t.DatabaseName,
						ReplicationFactor: topology.ReplicationFactor,
						Topology:          topology,
					})
					return err
				},
				compensate: func(ctx context.Context) error {
					return s.provisioner.Drop(ctx, t.DatabaseName)
				},
			},
			{
				name: StepSeedConfig,
				run: func(ctx context.Context) error {
					return s.seedSystemConfig(ctx, tenantCfg, t)
				},
			},
			{
				name: StepMarkReady,
				run: func(ctx context.Context) error {
					provisionedAt := s.now()
					t.Provisioning = ProvisioningStatus{DatabaseReady: true, LastProvisionedAt: &provisionedAt}
					return s.withManagement(ctx, func(sess persistence.Session) error {
						var stored Tenant
						if err := sess.Load(ctx, collectionTenants, id.String(), &stored); err != nil {
							return err
						}
						stored.Provisioning = t.Provisioning
						return sess.Store(collectionTenants, id.String(), stored)
					})
				},
			},
		},
	}

	if err := sg.execute(ctx); err != nil {
		return Tenant{}, err
	}

	s.logger.Info("tenant created",
		zap.String("tenant_id", id.String()),
		zap.String("database", t.DatabaseName),
		zap.String("plan", string(t.Plan)),
	)
	return t, nil
}

func provisioningKey(database string) string {
	return "provision:" + database
}

// holdProvisioning takes the lease guarding creation and removal of one tenant database.
// The returned release ignores cancellation of ctx.
func (s *Service) holdProvisioning(ctx context.Context, database string) (func(), error) {
	lease, err := s.locker.Acquire(ctx, provisioningKey(database), s.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire provisioning lease %s: %w", database, err)
	}
	return func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("release provisioning lease", zap.String("database", database), zap.Error(err))
		}
	}, nil
}

// seedSystemConfig writes the initial system config through a short-lived connection.
func (s *Service) seedSystemConfig(ctx context.Context, cfg persistence.DatabaseConfig, t Tenant) error {
	payload := map[string]any{
		"plan":     string(t.Plan),
		"features": FeaturesFor(t.Plan),
		"limits":   t.Limits,
	}
	normalized, raw, err := normalizePayload(payload)
	if err != nil {
		return err
	}
	if err := s.configs.Validate(ctx, string(ConfigSystem), raw); err != nil {
		return fmt.Errorf("validate system config: %w", err)
	}

	h := s.newHandle(cfg)
	if err := h.Initialize(ctx); err != nil {
		return err
	}
	defer h.Dispose()

	now := s.now()
	doc := TenantConfig{
		ID:            configKey(t.ID, ConfigSystem),
		TenantID:      t.ID,
		Type:          ConfigSystem,
		Config:        normalized,
		Version:       1,
		IsActive:      true,
		ChangeHistory: []ChangeEntry{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	return h.WithSession(ctx, func(sess persistence.Session) error {
		return sess.Store(collectionTenantConfigs, doc.ID, doc)
	})
}

// GetTenant loads a tenant from the management database.
func (s *Service) GetTenant(ctx context.Context, id uuid.UUID) (Tenant, error) {
	var t Tenant
	err := s.withManagement(ctx, func(sess persistence.Session) error {
		return loadTenant(ctx, sess, id, &t)
	})
	if err != nil {
		return Tenant{}, err
	}
	return t, nil
}

func loadTenant(ctx context.Context, sess persistence.Session, id uuid.UUID, dst *Tenant) error {
	if err := sess.Load(ctx, collectionTenants, id.String(), dst); err != nil {
		if errors.Is(err, persistence.ErrDocumentNotFound) {
			return fmt.Errorf("%w: %s", ErrTenantNotFound, id)
		}
		return fmt.Errorf("load tenant %s: %w", id, err)
	}
	return nil
}

// UpdateTenant merges input into the stored tenant and bumps UpdatedAt.
// The database name is never changed.
func (s *Service) UpdateTenant(ctx context.Context, id uuid.UUID, input UpdateTenantInput) (Tenant, error) {
	if err := s.check(input); err != nil {
		return Tenant{}, err
	}

	var t Tenant
	err := s.withManagement(ctx, func(sess persistence.Session) error {
		if err := loadTenant(ctx, sess, id, &t); err != nil {
			return err
		}
		applyTenantUpdate(&t, input)
		t.UpdatedAt = s.now()
		return sess.Store(collectionTenants, id.String(), t)
	})
	if err != nil {
		return Tenant{}, err
	}
	return t, nil
}

func applyTenantUpdate(t *Tenant, in UpdateTenantInput) {
	if in.Name != nil {
		t.Name = *in.Name
	}
	if in.Plan != nil {
		t.Plan = *in.Plan
	}
	if in.Status != nil {
		t.Status = *in.Status
	}
	if in.Owner != nil {
		t.Owner = *in.Owner
	}
	if in.Limits != nil {
		t.Limits = *in.Limits
	}
	if in.Usage != nil {
		t.Usage = *in.Usage
	}
	if len(in.Settings) > 0 {
		if t.Settings == nil {
			t.Settings = make(map[string]any, len(in.Settings))
		}
		for k, v := range in.Settings {
			if v == nil {
				delete(t.Settings, k)
				continue
			}
			t.Settings[k] = v
		}
	}
}

// DeleteTenant evicts the cached connection, drops the tenant database, then removes the
// tenant record together with its membership mirror and partner linkage. It fails with
// lock.ErrNotAcquired while the tenant database is being provisioned or deleted elsewhere.
func (s *Service) DeleteTenant(ctx context.Context, id uuid.UUID) error {
	t, err := s.GetTenant(ctx, id)
	if err != nil {
		return err
	}

	release, err := s.holdProvisioning(ctx, t.DatabaseName)
	if err != nil {
		return fmt.Errorf("delete tenant %s: %w", id, err)
	}
	defer release()

	s.evictClient(id)

	sg := &saga{
		operation: "delete tenant",
		tenantID:  id,
		logger:    s.logger,
		steps: []sagaStep{
			{
				name: StepDropDatabase,
				run: func(ctx context.Context) error {
					return s.provisioner.Drop(ctx, t.DatabaseName)
				},
			},
			{
				name: StepDeleteMetadata,
				run: func(ctx context.Context) error {
					return s.deleteTenantMetadata(ctx, t)
				},
			},
		},
	}
	if err := sg.execute(ctx); err != nil {
		return err
	}

	s.logger.Info("tenant deleted", zap.String("tenant_id", id.String()), zap.String("database", t.DatabaseName))
	return nil
}

func (s *Service) deleteTenantMetadata(ctx context.Context, t Tenant) error {
	return s.withManagement(ctx, func(sess persistence.Session) error {
		mirrored, err := persistence.QueryInto[UserMembership](ctx, sess, collectionMemberships, map[string]any{
			"tenantId": t.ID.String(),
		})
		if err != nil {
			return fmt.Errorf("query memberships: %w", err)
		}
		for _, m := range mirrored {
			if err := sess.Delete(collectionMemberships, m.ID); err != nil {
				return err
			}
		}

		if t.PartnerID != nil {
			if err := s.unlinkPartnerCustomer(ctx, sess, *t.PartnerID, t.ID); err != nil {
				return err
			}
		}

		return sess.Delete(collectionTenants, t.ID.String())
	})
}

// ListTenants returns tenants ordered by creation time, optionally filtered by status.
func (s *Service) ListTenants(ctx context.Context, opts ListTenantsOptions) ([]Tenant, error) {
	var filter map[string]any
	if opts.Status != nil {
		filter = map[string]any{"status": string(*opts.Status)}
	}

	var out []Tenant
	err := s.withManagement(ctx, func(sess persistence.Session) error {
		var err error
		out, err = persistence.QueryInto[Tenant](ctx, sess, collectionTenants, filter)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// normalizePayload round-trips v through JSON so values compare like stored ones.
func normalizePayload(v any) (map[string]any, []byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, nil, fmt.Errorf("encode payload: %w", err)
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, nil, fmt.Errorf("decode payload: %w", err)
	}
	return out, raw, nil
}

func removeID(ids []uuid.UUID, id uuid.UUID) []uuid.UUID {
	out := ids[:0:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func cloneSettings(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	return maps.Clone(m)
}
