package tools

import (
	"testing"

	"github.com/pablo-camprubi/salesforce-mcp/api"
)

func TestRegistryClosedSet(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	want := []string{
		"run_soql_query",
		"run_sosl_search",
		"get_object_fields",
		"describe_object",
		"describe_relationship_fields",
		"get_fields_by_type",
		"get_picklist_values",
		"create_record",
		"update_record",
		"delete_record",
		"create_object",
		"create_object_with_fields",
		"delete_object_fields",
		"create_tab",
		"create_custom_app",
		"create_report_folder",
		"create_dashboard_folder",
		"create_validation_rule",
		"get_validation_rules",
		"create_einstein_model",
	}
	names := map[string]bool{}
	for _, n := range r.Names() {
		names[n] = true
	}
	for _, n := range want {
		if !names[n] {
			t.Errorf("registry missing %s", n)
		}
	}
	if len(names) != len(want) {
		t.Fatalf("registry carries %d tools, expected %d: %v", len(names), len(want), r.Names())
	}
	if _, ok := r.Lookup("define_tabs_on_app"); ok {
		t.Fatal("registry must not expose unimplemented operations")
	}
}

func TestDescriptorsCarrySchemas(t *testing.T) {
	t.Parallel()

	for _, d := range NewRegistry().Descriptors() {
		if d.Description == "" {
			t.Errorf("%s has no description", d.Name)
		}
		if d.InputSchema["type"] != "object" {
			t.Errorf("%s schema is not an object", d.Name)
		}
		if _, ok := d.InputSchema["properties"].(map[string]any); !ok {
			t.Errorf("%s schema has no properties", d.Name)
		}
	}
}

func TestValidateRequired(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	op, _ := r.Lookup("run_soql_query")
	if err := op.Validate(map[string]any{}); !api.IsKind(err, api.KindInvalidArguments) {
		t.Fatalf("expected invalid_arguments for missing query, got %v", err)
	}
	if err := op.Validate(map[string]any{"query": ""}); !api.IsKind(err, api.KindInvalidArguments) {
		t.Fatalf("expected invalid_arguments for empty query, got %v", err)
	}
	if err := op.Validate(map[string]any{"query": "SELECT Id FROM Account"}); err != nil {
		t.Fatalf("valid args rejected: %v", err)
	}
}

func TestValidateEnums(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	op, _ := r.Lookup("create_tab")
	err := op.Validate(map[string]any{"tab_api_name": "X__c", "tab_type": "Dashboard"})
	if !api.IsKind(err, api.KindInvalidArguments) {
		t.Fatalf("expected invalid_arguments for bad tab_type, got %v", err)
	}
	err = op.Validate(map[string]any{"tab_api_name": "X__c", "tab_type": "CustomObject"})
	if err != nil {
		t.Fatalf("valid enum rejected: %v", err)
	}
}
