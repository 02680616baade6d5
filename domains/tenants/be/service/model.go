package service

import (
	"time"

	"github.com/google/uuid"
)

// Document collections.
const (
	collectionTenants       = "tenants"
	collectionPartners      = "partners"
	collectionMemberships   = "memberships"
	collectionTenantConfigs = "tenant-configs"
)

// Plan is the commercial tier of a tenant.
type Plan string

const (
	PlanFree       Plan = "free"
	PlanStandard   Plan = "standard"
	PlanEnterprise Plan = "enterprise"
)

// Status is the lifecycle state of a tenant.
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusTrial     Status = "trial"
)

// Limits caps what a tenant may consume. Derived from the plan at creation, editable afterwards.
type Limits struct {
	CompanyLimit   int `json:"companyLimit" validate:"gte=0"`
	UserLimit      int `json:"userLimit" validate:"gte=0"`
	StorageLimitGB int `json:"storageLimitGB" validate:"gte=0"`
}

// LimitsFor returns the default limits of a plan.
func LimitsFor(plan Plan) Limits {
	switch plan {
	case PlanEnterprise:
		return Limits{CompanyLimit: 50, UserLimit: 500, StorageLimitGB: 1000}
	case PlanStandard:
		return Limits{CompanyLimit: 5, UserLimit: 25, StorageLimitGB: 100}
	default:
		return Limits{CompanyLimit: 1, UserLimit: 5, StorageLimitGB: 10}
	}
}

// FeaturesFor returns the feature flags enabled by a plan.
func FeaturesFor(plan Plan) map[string]bool {
	standard := plan == PlanStandard || plan == PlanEnterprise
	enterprise := plan == PlanEnterprise
	return map[string]bool{
		"basicEvaluations":  true,
		"aiEvaluations":     standard,
		"customWorkflows":   standard,
		"integrations":      standard,
		"advancedAnalytics": enterprise,
		"whiteLabel":        enterprise,
		"sso":               enterprise,
	}
}

// Owner identifies the user that owns a tenant.
type Owner struct {
	UserID string `json:"userId" validate:"required"`
	Email  string `json:"email" validate:"required,email"`
	Name   string `json:"name,omitempty"`
}

// Usage is the last known consumption snapshot of a tenant.
type Usage struct {
	Companies int        `json:"companies"`
	Users     int        `json:"users"`
	StorageGB float64    `json:"storageGB"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

// ProvisioningStatus captures the state of the tenant database.
type ProvisioningStatus struct {
	DatabaseReady     bool       `json:"databaseReady"`
	LastProvisionedAt *time.Time `json:"lastProvisionedAt,omitempty"`
	LastError         *string    `json:"lastError,omitempty"`
}

// Tenant is the registry entry of an isolated customer organization.
type Tenant struct {
	ID           uuid.UUID          `json:"id"`
	Name         string             `json:"name"`
	Plan         Plan               `json:"plan"`
	Status       Status             `json:"status"`
	DatabaseName string             `json:"databaseName"`
	Owner        Owner              `json:"owner"`
	Limits       Limits             `json:"limits"`
	Settings     map[string]any     `json:"settings,omitempty"`
	Usage        Usage              `json:"usage"`
	PartnerID    *uuid.UUID         `json:"partnerId,omitempty"`
	Provisioning ProvisioningStatus `json:"provisioning"`
	CreatedAt    time.Time          `json:"createdAt"`
	UpdatedAt    time.Time          `json:"updatedAt"`
}

// Role is what a user may do inside a tenant.
type Role string

const (
	RoleOwner          Role = "owner"
	RoleAdmin          Role = "admin"
	RoleRecruiter      Role = "recruiter"
	RoleInterviewer    Role = "interviewer"
	RoleViewer         Role = "viewer"
	RolePartnerManager Role = "partner_manager"
)

// DefaultScopes returns the scopes granted to a role when none are given explicitly.
func DefaultScopes(role Role) []string {
	switch role {
	case RoleOwner:
		return []string{"*"}
	case RoleAdmin:
		return []string{"users", "companies", "jobs", "reports", "settings"}
	case RoleRecruiter:
		return []string{"candidates", "jobs", "applications", "interviews"}
	case RoleInterviewer:
		return []string{"evaluations", "candidates"}
	case RoleViewer:
		return []string{"read"}
	case RolePartnerManager:
		return []string{"customers", "reports", "analytics"}
	default:
		return []string{}
	}
}

// UserMembership links a user to a tenant.
type UserMembership struct {
	ID         string     `json:"id"`
	TenantID   uuid.UUID  `json:"tenantId"`
	UserID     string     `json:"userId"`
	Role       Role       `json:"role"`
	Scopes     []string   `json:"scopes"`
	InvitedBy  string     `json:"invitedBy,omitempty"`
	InvitedAt  time.Time  `json:"invitedAt"`
	AcceptedAt *time.Time `json:"acceptedAt,omitempty"`
	IsActive   bool       `json:"isActive"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
}

func membershipKey(userID string, tenantID uuid.UUID) string {
	return userID + "-" + tenantID.String()
}

// PartnerStatus is the lifecycle state of a partner.
type PartnerStatus string

const (
	PartnerActive    PartnerStatus = "active"
	PartnerSuspended PartnerStatus = "suspended"
	PartnerPending   PartnerStatus = "pending"
)

// DefaultRevenueShare is the percentage given to new partners.
const DefaultRevenueShare = 10.0

// Contact is how to reach a partner.
type Contact struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty" validate:"omitempty,email"`
	Phone string `json:"phone,omitempty"`
}

// CommissionStructure describes how a partner is paid.
type CommissionStructure struct {
	Model string           `json:"model"`
	Tiers []CommissionTier `json:"tiers,omitempty"`
}

// CommissionTier applies Percent once a partner's revenue reaches MinRevenue.
type CommissionTier struct {
	MinRevenue float64 `json:"minRevenue"`
	Percent    float64 `json:"percent"`
}

// PartnerMetrics is the last known performance snapshot of a partner.
type PartnerMetrics struct {
	ActiveCustomers int        `json:"activeCustomers"`
	TotalRevenue    float64    `json:"totalRevenue"`
	UpdatedAt       *time.Time `json:"updatedAt,omitempty"`
}

// Partner is a reseller managing customer tenants.
type Partner struct {
	ID             uuid.UUID           `json:"id"`
	Name           string              `json:"name"`
	Status         PartnerStatus       `json:"status"`
	TenantID       uuid.UUID           `json:"tenantId"`
	Customers      []uuid.UUID         `json:"customerTenantIds"`
	BusinessType   string              `json:"businessType,omitempty"`
	Contact        Contact             `json:"contact"`
	RevenueShare   float64             `json:"revenueSharePercent"`
	Commission     CommissionStructure `json:"commission"`
	Capabilities   []string            `json:"capabilities,omitempty"`
	Certifications []string            `json:"certifications,omitempty"`
	Metrics        PartnerMetrics      `json:"metrics"`
	CreatedAt      time.Time           `json:"createdAt"`
	UpdatedAt      time.Time           `json:"updatedAt"`
}

// ConfigType tags the purpose of a TenantConfig.
type ConfigType string

const (
	ConfigWorkflow    ConfigType = "workflow"
	ConfigEvaluation  ConfigType = "evaluation"
	ConfigAI          ConfigType = "ai"
	ConfigIntegration ConfigType = "integration"
	ConfigSystem      ConfigType = "system"
)

// Valid reports whether t is a known config type.
func (t ConfigType) Valid() bool {
	switch t {
	case ConfigWorkflow, ConfigEvaluation, ConfigAI, ConfigIntegration, ConfigSystem:
		return true
	}
	return false
}

// FieldChange is one top-level field difference recorded in a config's history.
type FieldChange struct {
	Field string `json:"field"`
	Old   any    `json:"old,omitempty"`
	New   any    `json:"new,omitempty"`
}

// ChangeEntry records one version bump of a TenantConfig.
type ChangeEntry struct {
	Version   int           `json:"version"`
	ChangedAt time.Time     `json:"changedAt"`
	ChangedBy string        `json:"changedBy"`
	Changes   []FieldChange `json:"changes"`
}

// TenantConfig is a versioned configuration document stored in the tenant database.
type TenantConfig struct {
	ID            string         `json:"id"`
	TenantID      uuid.UUID      `json:"tenantId"`
	Type          ConfigType     `json:"type"`
	Config        map[string]any `json:"config"`
	Version       int            `json:"version"`
	IsActive      bool           `json:"isActive"`
	ChangeHistory []ChangeEntry  `json:"changeHistory"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

// configKey keeps the system config at the tenant id and suffixes every other type.
func configKey(tenantID uuid.UUID, t ConfigType) string {
	if t == ConfigSystem {
		return tenantID.String()
	}
	return tenantID.String() + "-" + string(t)
}
