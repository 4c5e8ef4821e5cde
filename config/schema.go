package config

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// Schema returns the JSON schema of .flx.yaml, indented.
func Schema() ([]byte, error) {
	reflector := &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	schema := reflector.Reflect(&Config{})
	schema.Title = "flx project config"
	schema.Description = "Settings read from " + FileName + " in the project root"

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to render schema: %w", err)
	}
	return data, nil
}
