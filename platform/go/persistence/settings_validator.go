package persistence

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed settings_schema.json
var settingsSchemaJSON string

// SettingsValidator validates tenant settings documents against the embedded
// JSON Schema before they are persisted.
type SettingsValidator struct {
	once     sync.Once
	compiled *jsonschema.Schema
	err      error
}

// NewSettingsValidator returns a validator; the schema compiles lazily on first use.
func NewSettingsValidator() *SettingsValidator {
	return &SettingsValidator{}
}

// Validate ensures the payload matches the settings schema.
func (v *SettingsValidator) Validate(ctx context.Context, payload []byte) error {
	if len(payload) == 0 {
		return fmt.Errorf("settings document is required")
	}

	compiled, err := v.schema()
	if err != nil {
		return err
	}

	var document any
	if err := json.Unmarshal(payload, &document); err != nil {
		return fmt.Errorf("decode settings document: %w", err)
	}

	if err := compiled.Validate(document); err != nil {
		return fmt.Errorf("settings validation: %w", err)
	}
	return nil
}

func (v *SettingsValidator) schema() (*jsonschema.Schema, error) {
	v.once.Do(func() {
		const key = "memory://schemas/tenant-settings"
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(key, strings.NewReader(settingsSchemaJSON)); err != nil {
			v.err = fmt.Errorf("register settings schema: %w", err)
			return
		}
		v.compiled, v.err = compiler.Compile(key)
	})
	return v.compiled, v.err
}
