package tenant

import (
	"strings"

	"github.com/google/uuid"
)

// DatabasePrefix starts every tenant database name.
const DatabasePrefix = "tenant_"

// NewID returns a fresh tenant identifier.
func NewID() uuid.UUID {
	return uuid.New()
}

// BuildDatabaseName returns the dedicated database name of a tenant: "tenant_" followed by the
// dashless hex of its id. The result is a valid unquoted PostgreSQL identifier.
func BuildDatabaseName(id uuid.UUID) string {
	return DatabasePrefix + hex(id)
}

// ParseDatabaseName recovers the tenant id from a database name produced by BuildDatabaseName.
func ParseDatabaseName(name string) (uuid.UUID, bool) {
	raw, ok := strings.CutPrefix(name, DatabasePrefix)
	if !ok || len(raw) != 32 {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// ShortID returns the first 8 hexadecimal characters of a UUID (without dashes).
func ShortID(id uuid.UUID) string {
	return hex(id)[:8]
}

func hex(id uuid.UUID) string {
	return strings.ReplaceAll(id.String(), "-", "")
}
