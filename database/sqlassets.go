package sqlassets

import "embed"

//go:embed schema/documents.sql
var DocumentsSQL string

// ConfigSchemas holds one JSON Schema per tenant config type, named <type>.json.
//
//go:embed schema/configs/*.json
var ConfigSchemas embed.FS
