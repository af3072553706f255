package wtf

import (
	"sync"

	"github.com/invopop/jsonschema"
)

const (
	schemaID = "https://vcon.dev/schemas/wtf-1.0.json"

	// Inlined schemas use nothing newer than draft-07.
	schemaDraft = "http://json-schema.org/draft-07/schema#"
)

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
)

// Schema returns the JSON Schema of Document, reflected from the Go types.
func Schema() *jsonschema.Schema {
	schemaOnce.Do(func() {
		reflector := jsonschema.Reflector{
			AllowAdditionalProperties: false,
			DoNotReference:            true,
		}
		schema = reflector.Reflect(&Document{})
		schema.Version = schemaDraft
		schema.ID = schemaID
		schema.Title = "WTF transcript"
	})
	return schema
}
