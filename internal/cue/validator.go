package cue

import (
	"embed"
	"fmt"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	yamlv3 "gopkg.in/yaml.v3"
)

//go:embed schemas/*.cue
var schemaFS embed.FS

// ValidationError represents a validation error
type ValidationError struct {
	File     string
	Message  string
	Severity string // error, warning
	Schema   string
	Line     int
	Column   int
}

// Validator checks artifact, context, and report documents against the
// embedded CUE schemas
type Validator struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
}

// NewValidator creates a new Validator instance
func NewValidator() *Validator {
	return &Validator{
		ctx:     cuecontext.New(),
		schemas: make(map[string]cue.Value),
	}
}

// LoadSchemas loads all CUE schema files from the embedded filesystem
func (v *Validator) LoadSchemas() error {
	entries, err := schemaFS.ReadDir("schemas")
	if err != nil {
		return fmt.Errorf("could not read embedded schemas: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() && filepath.Ext(entry.Name()) == ".cue" {
			content, err := schemaFS.ReadFile(filepath.Join("schemas", entry.Name()))
			if err != nil {
				continue
			}

			inst := v.ctx.CompileBytes(content, cue.Filename(entry.Name()))
			if instErr := inst.Err(); instErr != nil {
				// Log but don't fail - schema files might have issues
				continue
			}

			// Extract base name (artifact.cue -> artifact)
			schemaName := entry.Name()[:len(entry.Name())-4]
			v.schemas[schemaName] = inst.Value()
		}
	}

	if len(v.schemas) == 0 {
		return fmt.Errorf("no CUE schemas loaded")
	}

	return nil
}

// ValidateArtifact validates artifact data against the artifact schema
func (v *Validator) ValidateArtifact(data map[string]any) ([]ValidationError, error) {
	schema, ok := v.schemas["artifact"]
	if !ok {
		// Schema missing, skip validation rather than fail the run
		return nil, nil
	}
	return v.validateAgainstSchema(schema, data, "artifact")
}

// ValidateContext validates context data against the context schema
func (v *Validator) ValidateContext(data map[string]any) ([]ValidationError, error) {
	schema, ok := v.schemas["context"]
	if !ok {
		return nil, nil
	}
	return v.validateAgainstSchema(schema, data, "context")
}

// ValidateReport validates a tool report against the report schema
func (v *Validator) ValidateReport(data map[string]any) ([]ValidationError, error) {
	schema, ok := v.schemas["report"]
	if !ok {
		return nil, nil
	}
	return v.validateAgainstSchema(schema, data, "report")
}

// validateAgainstSchema validates data against a CUE schema
func (v *Validator) validateAgainstSchema(schema cue.Value, data map[string]any, schemaType string) ([]ValidationError, error) {
	dataValue := v.ctx.Encode(data)
	if encErr := dataValue.Err(); encErr != nil {
		return nil, fmt.Errorf("error encoding data: %w", encErr)
	}

	// Extract the #Artifact, #Context, etc. definition from the schema
	defPath := cue.ParsePath(fmt.Sprintf("#%s", strings.ToUpper(schemaType[:1])+schemaType[1:]))

	def := schema.LookupPath(defPath)
	if !def.Exists() {
		// Schema definition not found, nothing to check against
		return nil, nil
	}

	unified := def.Unify(dataValue)
	if err := unified.Err(); err != nil {
		return v.extractErrorsFromCUE(err, schemaType), nil
	}

	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return v.extractErrorsFromCUE(err, schemaType), nil
	}

	return nil, nil
}

// extractErrorsFromCUE extracts user-friendly validation errors from CUE errors
func (v *Validator) extractErrorsFromCUE(err error, schemaType string) []ValidationError {
	return []ValidationError{{
		Message:  fmt.Sprintf("Schema validation failed: %v", err),
		Severity: "error",
		Schema:   schemaType,
	}}
}

// ParseDocument parses a JSON or YAML document into a map. YAML is a
// superset of JSON, so one decoder covers both.
func ParseDocument(content []byte) (map[string]any, error) {
	var data map[string]any
	if err := yamlv3.Unmarshal(content, &data); err != nil {
		return nil, fmt.Errorf("error parsing document: %w", err)
	}
	if data == nil {
		data = make(map[string]any)
	}
	return data, nil
}

// ValidateFile validates raw file content based on its document type
func (v *Validator) ValidateFile(path string, content []byte, docType string) ([]ValidationError, error) {
	data, err := ParseDocument(content)
	if err != nil {
		return []ValidationError{{
			File:     path,
			Message:  err.Error(),
			Severity: "error",
		}}, nil
	}

	switch docType {
	case "artifact":
		return v.ValidateArtifact(data)
	case "context":
		return v.ValidateContext(data)
	case "report":
		return v.ValidateReport(data)
	default:
		return nil, fmt.Errorf("unknown document type: %s", docType)
	}
}
