package service

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Payload schemas for each accepted workflow event. Validated before
// dispatch so handler code can assume shape.
var payloadSchemas = map[string]string{
	EventInvoiceCreate: `{
		"$schema": "https://json-schema.org/draft/2020-12/schema",
		"type": "object",
		"properties": {
			"partner_name": { "type": "string", "minLength": 1 },
			"amount": { "type": "number", "exclusiveMinimum": 0 },
			"description": { "type": "string" }
		},
		"required": ["partner_name", "amount"],
		"additionalProperties": false
	}`,
	EventOrderCreate: `{
		"$schema": "https://json-schema.org/draft/2020-12/schema",
		"type": "object",
		"properties": {
			"partner_name": { "type": "string", "minLength": 1 },
			"lines": {
				"type": "array",
				"minItems": 1,
				"items": {
					"type": "object",
					"properties": {
						"entity_id": { "type": "string", "minLength": 1 },
						"quantity": { "type": "number", "exclusiveMinimum": 0 }
					},
					"required": ["entity_id", "quantity"],
					"additionalProperties": false
				}
			}
		},
		"required": ["partner_name", "lines"],
		"additionalProperties": false
	}`,
	EventEnergyLog: `{
		"$schema": "https://json-schema.org/draft/2020-12/schema",
		"type": "object",
		"properties": {
			"entity_id": { "type": "string", "minLength": 1 },
			"value": { "type": "number" },
			"timestamp": { "type": "string" }
		},
		"required": ["entity_id", "value"],
		"additionalProperties": false
	}`,
	EventProductUpdate: `{
		"$schema": "https://json-schema.org/draft/2020-12/schema",
		"type": "object",
		"properties": {
			"entity_id": { "type": "string", "minLength": 1 },
			"fields": {
				"type": "object",
				"minProperties": 1
			}
		},
		"required": ["entity_id", "fields"],
		"additionalProperties": false
	}`,
	EventSyncRequest: `{
		"$schema": "https://json-schema.org/draft/2020-12/schema",
		"type": "object",
		"properties": {
			"entity_id": { "type": "string", "minLength": 1 }
		},
		"additionalProperties": false
	}`,
}

// compileSchemas compiles every payload schema once at service construction.
func compileSchemas() (map[string]*jsonschema.Schema, error) {
	compiled := make(map[string]*jsonschema.Schema, len(payloadSchemas))
	for event, definition := range payloadSchemas {
		compiler := jsonschema.NewCompiler()
		url := "memory://workflow-events/" + event
		if err := compiler.AddResource(url, strings.NewReader(definition)); err != nil {
			return nil, fmt.Errorf("register schema %s: %w", event, err)
		}
		schema, err := compiler.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", event, err)
		}
		compiled[event] = schema
	}
	return compiled, nil
}
