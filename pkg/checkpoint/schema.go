package checkpoint

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/ledgerseal/auditcore/pkg/auditerr"
)

const wireSchemaURL = "https://ledgerseal.example/schemas/checkpoint.schema.json"

const wireSchemaDoc = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["schema_version", "checkpoint_number", "period_start", "period_end",
		"first_sequence", "last_sequence", "event_count", "merkle_root", "tree_shape", "signature"],
	"properties": {
		"schema_version": {"type": "string"},
		"checkpoint_number": {"type": "integer", "minimum": 0},
		"period_start": {"type": "string"},
		"period_end": {"type": "string"},
		"first_sequence": {"type": "integer", "minimum": 0},
		"last_sequence": {"type": "integer", "minimum": 0},
		"event_count": {"type": "integer", "minimum": 1},
		"merkle_root": {"type": "string", "pattern": "^[0-9a-f]{64}$"},
		"tree_shape": {"type": "string", "enum": ["batch", "incremental"]},
		"previous_checkpoint_id": {"type": ["string", "null"]},
		"previous_merkle_root": {"type": ["string", "null"], "pattern": "^[0-9a-f]{64}$"},
		"signature": {
			"type": "object",
			"required": ["algorithm", "key_id", "bytes", "signed_at"],
			"properties": {
				"algorithm": {"type": "string"},
				"key_id": {"type": "string", "minLength": 1},
				"bytes": {"type": "string", "minLength": 1},
				"signed_at": {"type": "string"}
			}
		}
	}
}`

var (
	wireSchemaOnce     sync.Once
	wireSchemaCompiled *jsonschema.Schema
	wireSchemaErr      error
)

func compiledWireSchema() (*jsonschema.Schema, error) {
	wireSchemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		if err := c.AddResource(wireSchemaURL, strings.NewReader(wireSchemaDoc)); err != nil {
			wireSchemaErr = fmt.Errorf("checkpoint: load wire schema: %w", err)
			return
		}
		wireSchemaCompiled, wireSchemaErr = c.Compile(wireSchemaURL)
	})
	return wireSchemaCompiled, wireSchemaErr
}

// ValidateWireJSON checks marshaled checkpoint wire bytes against the
// structural schema before they are handed to a Store. It catches a
// malformed checkpoint before it is ever written to immutable storage,
// where it could not be corrected without a new checkpoint.
func ValidateWireJSON(data []byte) error {
	schema, err := compiledWireSchema()
	if err != nil {
		return err
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return auditerr.New("checkpoint.ValidateWireJSON", auditerr.KindCanonicalization, err)
	}

	if err := schema.Validate(doc); err != nil {
		return auditerr.New("checkpoint.ValidateWireJSON", auditerr.KindCanonicalization, err)
	}
	return nil
}
