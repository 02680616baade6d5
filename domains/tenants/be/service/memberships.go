package service

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-tenancy/platform/go/persistence"
)

// AddUserToTenant writes the membership into the tenant database and mirrors it into the
// management database, which serves the per-user lookups. Adding an existing member
// replaces its role and scopes and reactivates it. When the mirror write fails the tenant
// side is restored and *PartialProvisioningError is returned.
func (s *Service) AddUserToTenant(ctx context.Context, tenantID uuid.UUID, input AddMemberInput) (UserMembership, error) {
	if err := s.check(input); err != nil {
		return UserMembership{}, err
	}

	client, err := s.GetTenantClient(ctx, tenantID)
	if err != nil {
		return UserMembership{}, err
	}

	scopes := input.Scopes
	if len(scopes) == 0 {
		scopes = DefaultScopes(input.Role)
	}
	m := UserMembership{
		ID:        membershipKey(input.UserID, tenantID),
		TenantID:  tenantID,
		UserID:    input.UserID,
		Role:      input.Role,
		Scopes:    slices.Clone(scopes),
		InvitedBy: input.InvitedBy,
		InvitedAt: s.now(),
		IsActive:  true,
		ExpiresAt: input.ExpiresAt,
	}

	var previous *UserMembership
	sg := &saga{
		operation: "add member",
		tenantID:  tenantID,
		logger:    s.logger,
		steps: []sagaStep{
			{
				name: StepStoreMembership,
				run: func(ctx context.Context) error {
					return client.WithSession(ctx, func(sess persistence.Session) error {
						var err error
						previous, err = upsertMembership(ctx, sess, &m)
						return err
					})
				},
				compensate: func(ctx context.Context) error {
					return client.WithSession(ctx, func(sess persistence.Session) error {
						return restoreMembership(ctx, sess, m.ID, previous)
					})
				},
			},
			{
				name: StepMirrorMembership,
				run: func(ctx context.Context) error {
					mirror := m
					return s.withManagement(ctx, func(sess persistence.Session) error {
						_, err := upsertMembership(ctx, sess, &mirror)
						return err
					})
				},
			},
		},
	}
	if err := sg.execute(ctx); err != nil {
		return UserMembership{}, err
	}

	s.logger.Info("member added",
		zap.String("tenant_id", tenantID.String()),
		zap.String("user_id", input.UserID),
		zap.String("role", string(input.Role)),
	)
	return m, nil
}

// upsertMembership keeps the original invitation time of an existing membership and
// returns the replaced document, nil when m is new.
func upsertMembership(ctx context.Context, sess persistence.Session, m *UserMembership) (*UserMembership, error) {
	var existing UserMembership
	err := sess.Load(ctx, collectionMemberships, m.ID, &existing)
	switch {
	case err == nil:
		m.InvitedAt = existing.InvitedAt
		m.AcceptedAt = existing.AcceptedAt
		if m.InvitedBy == "" {
			m.InvitedBy = existing.InvitedBy
		}
	case errors.Is(err, persistence.ErrDocumentNotFound):
		return nil, sess.Store(collectionMemberships, m.ID, *m)
	default:
		return nil, err
	}
	return &existing, sess.Store(collectionMemberships, m.ID, *m)
}

// restoreMembership puts back the state seen before a membership write; nil means absent.
func restoreMembership(ctx context.Context, sess persistence.Session, id string, previous *UserMembership) error {
	var current UserMembership
	err := sess.Load(ctx, collectionMemberships, id, &current)
	switch {
	case errors.Is(err, persistence.ErrDocumentNotFound):
		if previous == nil {
			return nil
		}
	case err != nil:
		return err
	case previous == nil:
		return sess.Delete(collectionMemberships, id)
	}
	return sess.Store(collectionMemberships, id, *previous)
}

// RemoveUserFromTenant hard deletes the membership and its mirror. When the mirror delete
// fails the tenant side membership is put back and *PartialProvisioningError is returned.
func (s *Service) RemoveUserFromTenant(ctx context.Context, tenantID uuid.UUID, userID string) error {
	client, err := s.GetTenantClient(ctx, tenantID)
	if err != nil {
		return err
	}

	key := membershipKey(userID, tenantID)
	var removed UserMembership
	sg := &saga{
		operation: "remove member",
		tenantID:  tenantID,
		logger:    s.logger,
		steps: []sagaStep{
			{
				name: StepRemoveMembership,
				run: func(ctx context.Context) error {
					return client.WithSession(ctx, func(sess persistence.Session) error {
						if err := sess.Load(ctx, collectionMemberships, key, &removed); err != nil {
							if errors.Is(err, persistence.ErrDocumentNotFound) {
								return fmt.Errorf("%w: %s", ErrMembershipNotFound, key)
							}
							return err
						}
						return sess.Delete(collectionMemberships, key)
					})
				},
				compensate: func(ctx context.Context) error {
					return client.WithSession(ctx, func(sess persistence.Session) error {
						return restoreMembership(ctx, sess, key, &removed)
					})
				},
			},
			{
				name: StepRemoveMirror,
				run: func(ctx context.Context) error {
					return s.withManagement(ctx, func(sess persistence.Session) error {
						return sess.Delete(collectionMemberships, key)
					})
				},
			},
		},
	}
	if err := sg.execute(ctx); err != nil {
		return err
	}

	s.logger.Info("member removed", zap.String("tenant_id", tenantID.String()), zap.String("user_id", userID))
	return nil
}

// GetTenantMembers lists active memberships from the tenant database itself.
func (s *Service) GetTenantMembers(ctx context.Context, tenantID uuid.UUID) ([]UserMembership, error) {
	client, err := s.GetTenantClient(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	var out []UserMembership
	err = client.WithSession(ctx, func(sess persistence.Session) error {
		var err error
		out, err = persistence.QueryInto[UserMembership](ctx, sess, collectionMemberships, map[string]any{"isActive": true})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list tenant members: %w", err)
	}
	return out, nil
}

// GetUserMemberships returns the active memberships of a user across every tenant.
func (s *Service) GetUserMemberships(ctx context.Context, userID string) ([]UserMembership, error) {
	var out []UserMembership
	err := s.withManagement(ctx, func(sess persistence.Session) error {
		var err error
		out, err = persistence.QueryInto[UserMembership](ctx, sess, collectionMemberships, map[string]any{
			"userId":   userID,
			"isActive": true,
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("query user memberships: %w", err)
	}
	return out, nil
}

// GetUserTenants returns the tenants a user is an active member of. Memberships whose
// tenant no longer exists are skipped.
func (s *Service) GetUserTenants(ctx context.Context, userID string) ([]Tenant, error) {
	memberships, err := s.GetUserMemberships(ctx, userID)
	if err != nil {
		return nil, err
	}

	out := make([]Tenant, 0, len(memberships))
	for _, m := range memberships {
		t, err := s.GetTenant(ctx, m.TenantID)
		if errors.Is(err, ErrTenantNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}
