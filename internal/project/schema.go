package project

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

const metadataSchema = `{
  "type": "object",
  "required": ["id", "name", "created_at"],
  "properties": {
    "id":          {"type": "string", "minLength": 1},
    "name":        {"type": "string"},
    "description": {"type": "string"},
    "language":    {"type": "string"},
    "created_at":  {"type": "integer"},
    "updated_at":  {"type": "integer"},
    "root_path":   {"type": "string"}
  }
}`

var metadataSchemaLoader = gojsonschema.NewStringLoader(metadataSchema)

// ValidationError lists the schema violations of a project.json file.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", MetadataFile, strings.Join(e.Errors, "; "))
}

func validateMetadata(data []byte) error {
	result, err := gojsonschema.Validate(metadataSchemaLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	if !result.Valid() {
		var msgs []string
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return &ValidationError{Errors: msgs}
	}
	return nil
}
