package devices

import (
	"encoding/json"
	"fmt"
	"strings"

	_ "embed"

	"github.com/KevinKickass/OpenDriveEmulator/internal/types"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema/device-description-v1.json
var descriptionSchemaJSON string

//go:embed schema/device-configuration-v1.json
var configurationSchemaJSON string

// Validator checks decoded description sources against embedded schemas.
type Validator struct {
	description   *jsonschema.Schema
	configuration *jsonschema.Schema
}

func NewValidator() (*Validator, error) {
	description, err := compileSchema("device-description-v1.json", descriptionSchemaJSON)
	if err != nil {
		return nil, err
	}
	configuration, err := compileSchema("device-configuration-v1.json", configurationSchemaJSON)
	if err != nil {
		return nil, err
	}

	return &Validator{description: description, configuration: configuration}, nil
}

func compileSchema(name, source string) (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()

	if err := compiler.AddResource(name, strings.NewReader(source)); err != nil {
		return nil, fmt.Errorf("failed to add schema resource %s: %w", name, err)
	}

	schema, err := compiler.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema %s: %w", name, err)
	}
	return schema, nil
}

func (v *Validator) ValidateDescription(doc *types.DeviceDescription) error {
	return validate(v.description, doc)
}

func (v *Validator) ValidateConfiguration(doc *types.DeviceConfiguration) error {
	return validate(v.configuration, doc)
}

// validate round-trips doc through JSON so the schema sees the same field
// names the json tags declare.
func validate(schema *jsonschema.Schema, doc any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}

	var generic interface{}
	if err := json.Unmarshal(data, &generic); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}

	if err := schema.Validate(generic); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}
