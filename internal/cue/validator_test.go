package cue

import (
	"strings"
	"testing"
)

// TestNewValidator tests the Validator constructor
func TestNewValidator(t *testing.T) {
	v := NewValidator()
	if v == nil {
		t.Fatal("NewValidator returned nil")
	}
	if v.ctx == nil {
		t.Error("Validator.ctx is nil")
	}
	if v.schemas == nil {
		t.Error("Validator.schemas is nil")
	}
	if len(v.schemas) != 0 {
		t.Errorf("Expected empty schemas map, got %d entries", len(v.schemas))
	}
}

// TestLoadSchemas tests loading embedded CUE schemas
func TestLoadSchemas(t *testing.T) {
	v := NewValidator()
	err := v.LoadSchemas()

	if err != nil {
		t.Errorf("LoadSchemas failed: %v", err)
	}

	expectedSchemas := []string{"artifact", "context", "report"}
	for _, name := range expectedSchemas {
		if _, ok := v.schemas[name]; !ok {
			t.Errorf("Expected schema %q to be loaded", name)
		}
	}
}

// TestValidateArtifact tests artifact validation with valid and invalid data
func TestValidateArtifact(t *testing.T) {
	v := NewValidator()
	if err := v.LoadSchemas(); err != nil {
		t.Fatalf("LoadSchemas failed: %v", err)
	}

	tests := []struct {
		name      string
		data      map[string]any
		wantError bool
	}{
		{
			name: "valid artifact",
			data: map[string]any{
				"success":        true,
				"files_modified": []any{"main.go", "main_test.go"},
				"diff_summary":   "added validation",
			},
			wantError: false,
		},
		{
			name:      "empty artifact",
			data:      map[string]any{},
			wantError: false,
		},
		{
			name: "unknown fields pass through",
			data: map[string]any{
				"custom_field": map[string]any{"nested": 1},
			},
			wantError: false,
		},
		{
			name: "success must be a bool",
			data: map[string]any{
				"success": "yes",
			},
			wantError: true,
		},
		{
			name: "files_modified must be strings",
			data: map[string]any{
				"files_modified": []any{1, 2},
			},
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs, err := v.ValidateArtifact(tt.data)
			if err != nil {
				t.Fatalf("ValidateArtifact returned error: %v", err)
			}
			if tt.wantError && len(errs) == 0 {
				t.Error("Expected validation errors, got none")
			}
			if !tt.wantError && len(errs) > 0 {
				t.Errorf("Expected no validation errors, got: %v", errs)
			}
		})
	}
}

// TestValidateContext tests context validation
func TestValidateContext(t *testing.T) {
	v := NewValidator()
	if err := v.LoadSchemas(); err != nil {
		t.Fatalf("LoadSchemas failed: %v", err)
	}

	tests := []struct {
		name      string
		data      map[string]any
		wantError bool
	}{
		{
			name: "valid context",
			data: map[string]any{
				"test_results": map[string]any{
					"total":     10,
					"failed":    1,
					"pass_rate": 0.9,
					"coverage":  0.8,
				},
				"security_scan": map[string]any{"critical": 0, "high": 2},
			},
			wantError: false,
		},
		{
			name: "valid review sub-object",
			data: map[string]any{
				"review": map[string]any{
					"score":  85,
					"issues": []any{"minor nit"},
				},
			},
			wantError: false,
		},
		{
			name: "review score out of range",
			data: map[string]any{
				"review": map[string]any{"score": 150},
			},
			wantError: true,
		},
		{
			name: "negative test counts rejected",
			data: map[string]any{
				"test_results": map[string]any{"total": -1},
			},
			wantError: true,
		},
		{
			name: "pass_rate above one rejected",
			data: map[string]any{
				"test_results": map[string]any{"pass_rate": 1.5},
			},
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs, err := v.ValidateContext(tt.data)
			if err != nil {
				t.Fatalf("ValidateContext returned error: %v", err)
			}
			if tt.wantError && len(errs) == 0 {
				t.Error("Expected validation errors, got none")
			}
			if !tt.wantError && len(errs) > 0 {
				t.Errorf("Expected no validation errors, got: %v", errs)
			}
		})
	}
}

// TestValidateReport tests report validation
func TestValidateReport(t *testing.T) {
	v := NewValidator()
	if err := v.LoadSchemas(); err != nil {
		t.Fatalf("LoadSchemas failed: %v", err)
	}

	tests := []struct {
		name      string
		data      map[string]any
		wantError bool
	}{
		{
			name:      "valid test report",
			data:      map[string]any{"kind": "test", "total": 10, "failed": 0, "passed": true},
			wantError: false,
		},
		{
			name:      "valid security report",
			data:      map[string]any{"kind": "security", "critical": 1, "high": 3},
			wantError: false,
		},
		{
			name:      "missing kind",
			data:      map[string]any{"total": 10},
			wantError: true,
		},
		{
			name:      "unknown kind",
			data:      map[string]any{"kind": "style"},
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs, err := v.ValidateReport(tt.data)
			if err != nil {
				t.Fatalf("ValidateReport returned error: %v", err)
			}
			if tt.wantError && len(errs) == 0 {
				t.Error("Expected validation errors, got none")
			}
			if !tt.wantError && len(errs) > 0 {
				t.Errorf("Expected no validation errors, got: %v", errs)
			}
		})
	}
}

// TestParseDocument tests JSON and YAML parsing
func TestParseDocument(t *testing.T) {
	jsonDoc := []byte(`{"success": true, "files_modified": ["a.go"]}`)
	data, err := ParseDocument(jsonDoc)
	if err != nil {
		t.Fatalf("ParseDocument(json) failed: %v", err)
	}
	if data["success"] != true {
		t.Errorf("success = %v, want true", data["success"])
	}

	yamlDoc := []byte("success: false\nerrors:\n  - broke the build\n")
	data, err = ParseDocument(yamlDoc)
	if err != nil {
		t.Fatalf("ParseDocument(yaml) failed: %v", err)
	}
	if data["success"] != false {
		t.Errorf("success = %v, want false", data["success"])
	}

	if _, err := ParseDocument([]byte("a: [1,\nb: 2")); err == nil {
		t.Error("Expected parse error for malformed document")
	}

	data, err = ParseDocument(nil)
	if err != nil {
		t.Fatalf("ParseDocument(nil) failed: %v", err)
	}
	if data == nil {
		t.Error("Expected empty map for empty document")
	}
}

// TestValidateFile tests content-level validation dispatch
func TestValidateFile(t *testing.T) {
	v := NewValidator()
	if err := v.LoadSchemas(); err != nil {
		t.Fatalf("LoadSchemas failed: %v", err)
	}

	errs, err := v.ValidateFile("artifact.json", []byte(`{"success": true}`), "artifact")
	if err != nil {
		t.Fatalf("ValidateFile failed: %v", err)
	}
	if len(errs) != 0 {
		t.Errorf("Expected no errors, got %v", errs)
	}

	errs, err = v.ValidateFile("report.yaml", []byte("kind: nonsense\n"), "report")
	if err != nil {
		t.Fatalf("ValidateFile failed: %v", err)
	}
	if len(errs) == 0 {
		t.Error("Expected validation errors for unknown report kind")
	}

	if _, err := v.ValidateFile("x", []byte("{}"), "mystery"); err == nil {
		t.Error("Expected error for unknown document type")
	} else if !strings.Contains(err.Error(), "unknown document type") {
		t.Errorf("Unexpected error: %v", err)
	}

	errs, err = v.ValidateFile("bad.yaml", []byte("a: [1,\nb: 2"), "artifact")
	if err != nil {
		t.Fatalf("ValidateFile failed: %v", err)
	}
	if len(errs) != 1 || errs[0].File != "bad.yaml" {
		t.Errorf("Expected one parse error naming the file, got %v", errs)
	}
}
