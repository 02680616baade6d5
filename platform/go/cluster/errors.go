package cluster

import (
	"errors"
	"fmt"
)

var (
	// ErrClusterNotFound is returned by Lookup for unregistered topology names.
	ErrClusterNotFound = errors.New("cluster topology not found")
	// ErrInvalidTopology is returned when a topology does not have exactly one primary.
	ErrInvalidTopology = errors.New("invalid cluster topology")
)

// ConfigurationError reports a missing or malformed environment input.
type ConfigurationError struct {
	Setting string
	Reason  string
}

func (e *ConfigurationError) Error() string {
	if e.Setting == "" {
		return "configuration error: " + e.Reason
	}
	return fmt.Sprintf("configuration error (%s): %s", e.Setting, e.Reason)
}
