package service

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"

	"github.com/google/uuid"

	"github.com/zenGate-Global/palmyra-tenancy/platform/go/persistence"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/requesttrace"
)

// GetTenantConfig loads a config document from the tenant database.
func (s *Service) GetTenantConfig(ctx context.Context, tenantID uuid.UUID, typ ConfigType) (TenantConfig, error) {
	if !typ.Valid() {
		return TenantConfig{}, &ValidationError{Err: fmt.Errorf("unknown config type %q", typ)}
	}
	client, err := s.GetTenantClient(ctx, tenantID)
	if err != nil {
		return TenantConfig{}, err
	}

	var cfg TenantConfig
	err = client.WithSession(ctx, func(sess persistence.Session) error {
		return loadConfig(ctx, sess, tenantID, typ, &cfg)
	})
	if err != nil {
		return TenantConfig{}, err
	}
	return cfg, nil
}

func loadConfig(ctx context.Context, sess persistence.Session, tenantID uuid.UUID, typ ConfigType, dst *TenantConfig) error {
	key := configKey(tenantID, typ)
	if err := sess.Load(ctx, collectionTenantConfigs, key, dst); err != nil {
		if errors.Is(err, persistence.ErrDocumentNotFound) {
			return fmt.Errorf("%w: %s", ErrConfigNotFound, key)
		}
		return fmt.Errorf("load config %s: %w", key, err)
	}
	return nil
}

// UpdateTenantConfig merges patch into the config's top-level fields; a nil value removes
// a field. The result is validated against the schema of typ, the version is bumped and a
// change entry attributed to the request actor is appended. A patch that changes nothing
// returns the stored config untouched. Missing configs are created at version 1.
func (s *Service) UpdateTenantConfig(ctx context.Context, tenantID uuid.UUID, typ ConfigType, patch map[string]any) (TenantConfig, error) {
	if !typ.Valid() {
		return TenantConfig{}, &ValidationError{Err: fmt.Errorf("unknown config type %q", typ)}
	}
	normalizedPatch, _, err := normalizePayload(patch)
	if err != nil {
		return TenantConfig{}, &ValidationError{Err: err}
	}

	client, err := s.GetTenantClient(ctx, tenantID)
	if err != nil {
		return TenantConfig{}, err
	}

	actor := requesttrace.FromContextOrSystem(ctx).Actor()

	var cfg TenantConfig
	err = client.WithSession(ctx, func(sess persistence.Session) error {
		now := s.now()
		err := loadConfig(ctx, sess, tenantID, typ, &cfg)
		switch {
		case errors.Is(err, ErrConfigNotFound):
			cfg = TenantConfig{
				ID:            configKey(tenantID, typ),
				TenantID:      tenantID,
				Type:          typ,
				Config:        map[string]any{},
				IsActive:      true,
				ChangeHistory: []ChangeEntry{},
				CreatedAt:     now,
			}
		case err != nil:
			return err
		}
		if cfg.Config == nil {
			cfg.Config = map[string]any{}
		}

		changes := diffConfig(cfg.Config, normalizedPatch)
		if len(changes) == 0 {
			return nil
		}

		merged := make(map[string]any, len(cfg.Config)+len(normalizedPatch))
		for k, v := range cfg.Config {
			merged[k] = v
		}
		for k, v := range normalizedPatch {
			if v == nil {
				delete(merged, k)
				continue
			}
			merged[k] = v
		}

		_, raw, err := normalizePayload(merged)
		if err != nil {
			return err
		}
		if err := s.configs.Validate(ctx, string(typ), raw); err != nil {
			return &ValidationError{Err: err}
		}

		cfg.Config = merged
		cfg.Version++
		cfg.UpdatedAt = now
		cfg.ChangeHistory = append(cfg.ChangeHistory, ChangeEntry{
			Version:   cfg.Version,
			ChangedAt: now,
			ChangedBy: actor,
			Changes:   changes,
		})
		return sess.Store(collectionTenantConfigs, cfg.ID, cfg)
	})
	if err != nil {
		return TenantConfig{}, err
	}
	return cfg, nil
}

// diffConfig lists the top-level fields of patch whose value differs from current, by field name.
func diffConfig(current, patch map[string]any) []FieldChange {
	fields := make([]string, 0, len(patch))
	for k := range patch {
		fields = append(fields, k)
	}
	sort.Strings(fields)

	var changes []FieldChange
	for _, field := range fields {
		old, had := current[field]
		next := patch[field]
		if next == nil && !had {
			continue
		}
		if had && reflect.DeepEqual(old, next) {
			continue
		}
		changes = append(changes, FieldChange{Field: field, Old: old, New: next})
	}
	return changes
}
