package config

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/c360/scanbridge/errors"
)

// configSchema is the JSON Schema (draft-07) every config file must satisfy
// before field-level validation runs.
const configSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "title": "scanbridge configuration",
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "port": {"type": "integer", "minimum": 1, "maximum": 65535},
    "path": {"type": "string", "pattern": "^/"},
    "allowed_origins": {
      "type": "array",
      "items": {"type": "string", "minLength": 1}
    },
    "environment": {"type": "string", "enum": ["development", "production", "test"]},
    "output_dir": {"type": "string", "minLength": 1},
    "scanimage_path": {"type": "string", "minLength": 1},
    "cleanup_delay": {"type": "string"},
    "job_timeout": {"type": "string"},
    "sim_step_delay": {"type": "string"},
    "metrics_port": {"type": "integer", "minimum": 0, "maximum": 65535}
  }
}`

// ValidateSchema checks raw config JSON against the embedded schema.
func ValidateSchema(data []byte) error {
	schemaLoader := gojsonschema.NewStringLoader(configSchema)
	documentLoader := gojsonschema.NewBytesLoader(data)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return errors.WrapInvalid(err, "config", "ValidateSchema", "run schema validation")
	}

	if !result.Valid() {
		var problems []string
		for _, desc := range result.Errors() {
			problems = append(problems, desc.String())
		}
		return errors.WrapInvalid(
			fmt.Errorf("schema violations: %s", strings.Join(problems, "; ")),
			"config", "ValidateSchema", "check config document")
	}
	return nil
}
