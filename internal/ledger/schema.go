package ledger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const entrySchemaURL = "https://riskledger.local/schemas/ledger-entry.schema.json"

// entrySchema is the fixed shape every ledger line must satisfy.
const entrySchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "additionalProperties": false,
  "required": [
    "entry_id", "ts", "action_type", "event_key", "snapshot_id", "status",
    "payload_hash", "payload", "token_delta", "actor", "schema_version"
  ],
  "properties": {
    "entry_id":       {"type": "string", "minLength": 1},
    "ts":             {"type": "string", "minLength": 1},
    "action_type":    {"type": "string", "pattern": "^[A-Z][A-Z0-9_]*$"},
    "event_key":      {"type": "string", "minLength": 1},
    "snapshot_id":    {"type": "string", "minLength": 1},
    "status":         {"enum": ["SUCCESS", "FAIL"]},
    "payload_hash":   {"type": "string", "pattern": "^[0-9a-f]{64}$"},
    "payload":        {"type": "object"},
    "token_delta":    {"type": "integer"},
    "actor":          {"type": "string", "minLength": 1},
    "schema_version": {"const": 1}
  }
}`

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func loadEntrySchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		if err := c.AddResource(entrySchemaURL, strings.NewReader(entrySchema)); err != nil {
			schemaErr = fmt.Errorf("entry schema load failed: %w", err)
			return
		}
		compiledSchema, schemaErr = c.Compile(entrySchemaURL)
		if schemaErr != nil {
			schemaErr = fmt.Errorf("entry schema compile failed: %w", schemaErr)
		}
	})
	return compiledSchema, schemaErr
}

// ValidateLine checks one encoded entry against the entry schema.
func ValidateLine(line []byte) error {
	schema, err := loadEntrySchema()
	if err != nil {
		return err
	}

	dec := json.NewDecoder(bytes.NewReader(line))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("entry is not valid JSON: %w", err)
	}
	if dec.More() {
		return fmt.Errorf("trailing data after entry")
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("entry schema validation failed: %w", err)
	}
	return nil
}
