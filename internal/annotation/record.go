package annotation

import (
	"bytes"
	"encoding/json"
	"fmt"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"

	"image-annotator/internal/model"
)

const recordSchemaID = "inmemory://metadata-record.json"

const recordSchema = `{
  "type": "object",
  "required": ["title", "description"],
  "properties": {
    "title": {"type": "string"},
    "description": {"type": "string"}
  }
}`

var compiledRecordSchema = mustCompileRecordSchema()

func mustCompileRecordSchema() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(recordSchemaID, bytes.NewReader([]byte(recordSchema))); err != nil {
		panic(fmt.Sprintf("add metadata schema: %v", err))
	}
	return compiler.MustCompile(recordSchemaID)
}

// EncodeRecord serializes a metadata record the way it is stored.
func EncodeRecord(record model.Metadata) ([]byte, error) {
	payload, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata failed: %w", err)
	}
	return payload, nil
}

// DecodeRecord parses a stored metadata object and checks its shape.
func DecodeRecord(data []byte) (model.Metadata, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return model.Metadata{}, fmt.Errorf("decode metadata failed: %w", err)
	}
	if err := compiledRecordSchema.Validate(raw); err != nil {
		return model.Metadata{}, fmt.Errorf("metadata schema validation failed: %w", err)
	}

	var record model.Metadata
	if err := json.Unmarshal(data, &record); err != nil {
		return model.Metadata{}, fmt.Errorf("decode metadata failed: %w", err)
	}
	return record, nil
}
