package persistence

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var collectionPattern = regexp.MustCompile(`^[a-z][a-z0-9-]*$`)

// validateDocumentKey enforces lowercase kebab-case collection names and non-empty ids.
func validateDocumentKey(collection, id string) error {
	if !collectionPattern.MatchString(collection) {
		return fmt.Errorf("invalid collection %q: must match ^[a-z][a-z0-9-]*$", collection)
	}
	if strings.TrimSpace(id) == "" {
		return errors.New("document id is required")
	}
	return nil
}

var databaseNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,62}$`)

// ValidateDatabaseName ensures the name can be used verbatim as a database identifier.
func ValidateDatabaseName(name string) error {
	if !databaseNamePattern.MatchString(name) {
		return fmt.Errorf("invalid database name %q: must match ^[a-z][a-z0-9_]{0,62}$", name)
	}
	return nil
}
