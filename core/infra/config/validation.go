package config

import (
	"bytes"
	"fmt"

	configschema "github.com/cordum/zipmark/core/infra/schema"
	"gopkg.in/yaml.v3"
)

// documentSchemas maps a config document kind to its embedded schema.
var documentSchemas = map[string]string{
	"rules": rulesSchemaFile,
}

// validateDocument checks a YAML or JSON document against the schema
// registered for kind. Blank documents are valid and decode to zero values.
func validateDocument(kind string, data []byte) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	schemaPath, ok := documentSchemas[kind]
	if !ok {
		return fmt.Errorf("no schema registered for %s config", kind)
	}
	schemaBytes, err := configSchemaFS.ReadFile(schemaPath)
	if err != nil {
		return fmt.Errorf("load %s schema: %w", kind, err)
	}
	var payload any
	if err := yaml.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("parse %s config: %w", kind, err)
	}
	if err := configschema.ValidateSchema("zipmark-"+kind, schemaBytes, payload); err != nil {
		return fmt.Errorf("validate %s config: %w", kind, err)
	}
	return nil
}
