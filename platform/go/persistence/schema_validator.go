package persistence

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	sqlassets "github.com/zenGate-Global/palmyra-tenancy/database"
)

// ErrSchemaNotFound is returned when no schema definition exists for the requested name.
var ErrSchemaNotFound = errors.New("schema not found")

// SchemaValidator validates payloads against JSON Schemas compiled via santhosh-tekuri/jsonschema.
// Definitions are looked up as <name>.json in the provided filesystem.
type SchemaValidator struct {
	definitions fs.FS
	mu          sync.RWMutex
	cache       map[string]*jsonschema.Schema
}

// NewSchemaValidator returns a validator with an empty schema cache.
func NewSchemaValidator(definitions fs.FS) *SchemaValidator {
	if definitions == nil {
		panic("schema validator requires definitions")
	}
	return &SchemaValidator{
		definitions: definitions,
		cache:       make(map[string]*jsonschema.Schema),
	}
}

// NewConfigSchemaValidator validates tenant config payloads against the embedded per-type schemas.
func NewConfigSchemaValidator() *SchemaValidator {
	sub, err := fs.Sub(sqlassets.ConfigSchemas, "schema/configs")
	if err != nil {
		panic(fmt.Sprintf("config schemas: %v", err))
	}
	return NewSchemaValidator(sub)
}

// Validate ensures the payload matches the named schema.
func (v *SchemaValidator) Validate(ctx context.Context, name string, payload []byte) error {
	if len(payload) == 0 {
		return fmt.Errorf("payload is required for validation")
	}

	compiled, err := v.getOrCompile(name)
	if err != nil {
		return err
	}

	var document any
	if err := json.Unmarshal(payload, &document); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}

	if err := compiled.Validate(document); err != nil {
		return fmt.Errorf("schema validation: %w", err)
	}

	return nil
}

func (v *SchemaValidator) getOrCompile(name string) (*jsonschema.Schema, error) {
	key := "memory://schemas/" + name + ".json"

	v.mu.RLock()
	compiled, ok := v.cache[key]
	v.mu.RUnlock()
	if ok {
		return compiled, nil
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	// another goroutine may have populated the cache while we were waiting
	if compiled, ok = v.cache[key]; ok {
		return compiled, nil
	}

	definition, err := fs.ReadFile(v.definitions, name+".json")
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSchemaNotFound, name)
		}
		return nil, fmt.Errorf("read schema %s: %w", name, err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(key, bytes.NewReader(definition)); err != nil {
		return nil, fmt.Errorf("register schema %s: %w", key, err)
	}

	newCompiled, err := compiler.Compile(key)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", key, err)
	}

	v.cache[key] = newCompiled
	return newCompiled, nil
}
