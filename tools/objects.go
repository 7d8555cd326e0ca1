package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/pablo-camprubi/salesforce-mcp/api"
	"github.com/pablo-camprubi/salesforce-mcp/salesforce"
)

var fieldTypeEnum = []string{"Text", "Number", "Lookup", "LongText"}

func objectOperations() []*Operation {
	fieldsProp := map[string]any{
		"type":        "array",
		"description": "Custom fields to create on the object",
		"items": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"name":         prop("string", "Field API name without the __c suffix"),
				"label":        prop("string", "Field label"),
				"type":         enumProp("Field type", fieldTypeEnum...),
				"reference_to": prop("string", "Referenced object for Lookup fields"),
			},
			"required": []string{"name", "type"},
		},
	}
	return []*Operation{
		{
			Name:        "create_object",
			Description: "Creates a new custom object via a Metadata API deploy.",
			Properties: map[string]any{
				"name":        prop("string", "Object label, also used to derive the API name"),
				"plural_name": prop("string", "Plural label"),
				"api_name":    prop("string", "Optional explicit API name including the __c suffix"),
			},
			Required: []string{"name", "plural_name"},
			Invoke:   createObject,
		},
		{
			Name:        "create_object_with_fields",
			Description: "Creates a new custom object together with its custom fields via a Metadata API deploy.",
			Properties: map[string]any{
				"name":        prop("string", "Object label, also used to derive the API name"),
				"plural_name": prop("string", "Plural label"),
				"api_name":    prop("string", "Optional explicit API name including the __c suffix"),
				"fields":      fieldsProp,
			},
			Required: []string{"name", "plural_name", "fields"},
			Invoke:   createObjectWithFields,
		},
		{
			Name:        "delete_object_fields",
			Description: "Removes custom fields from an object via a destructive Metadata API deploy.",
			Properties: map[string]any{
				"object_name": prop("string", "API name of the object including the __c suffix"),
				"fields": map[string]any{
					"type":        "array",
					"description": "Custom field API names to delete",
					"items":       map[string]any{"type": "string"},
				},
			},
			Required: []string{"object_name", "fields"},
			Invoke:   deleteObjectFields,
		},
	}
}

func objectAPIName(args map[string]any) string {
	if explicit := stringArg(args, "api_name"); explicit != "" {
		return explicit
	}
	name := strings.ReplaceAll(stringArg(args, "name"), " ", "_")
	if !strings.HasSuffix(name, "__c") {
		name += "__c"
	}
	return name
}

func createObject(ctx context.Context, s *salesforce.Session, args map[string]any) (string, error) {
	return deployObject(ctx, s, args, nil)
}

func createObjectWithFields(ctx context.Context, s *salesforce.Session, args map[string]any) (string, error) {
	rawFields, err := objectSliceArg("create_object_with_fields", "fields", args)
	if err != nil {
		return "", err
	}
	if len(rawFields) == 0 {
		return "", api.Failf(api.KindInvalidArguments, "create_object_with_fields: at least one field is required")
	}
	specs := make([]salesforce.CustomFieldSpec, 0, len(rawFields))
	for _, raw := range rawFields {
		spec := salesforce.CustomFieldSpec{
			Name:        stringArg(raw, "name"),
			Label:       stringArg(raw, "label"),
			Type:        stringArg(raw, "type"),
			ReferenceTo: stringArg(raw, "reference_to"),
		}
		if spec.Name == "" || spec.Type == "" {
			return "", api.Failf(api.KindInvalidArguments, "create_object_with_fields: each field needs a name and a type")
		}
		if !validFieldType(spec.Type) {
			return "", api.Failf(api.KindInvalidArguments, "create_object_with_fields: field %q has unsupported type %q (expected one of %v)", spec.Name, spec.Type, fieldTypeEnum)
		}
		if spec.Type == "Lookup" && spec.ReferenceTo == "" {
			return "", api.Failf(api.KindInvalidArguments, "create_object_with_fields: lookup field %q needs reference_to", spec.Name)
		}
		specs = append(specs, spec)
	}
	return deployObject(ctx, s, args, specs)
}

func validFieldType(t string) bool {
	for _, candidate := range fieldTypeEnum {
		if t == candidate {
			return true
		}
	}
	return false
}

func deployObject(ctx context.Context, s *salesforce.Session, args map[string]any, fields []salesforce.CustomFieldSpec) (string, error) {
	apiName := objectAPIName(args)
	pkg, err := salesforce.BuildObjectPackage(apiName, stringArg(args, "name"), stringArg(args, "plural_name"), s.APIVersion(), fields)
	if err != nil {
		return "", api.Failf(api.KindInvalidArguments, "build object package: %v", err)
	}
	deployID, err := deployPackage(ctx, s, pkg)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Deploy of custom object %s submitted (deploy id %s, %d fields).", apiName, deployID, len(fields)), nil
}

func deleteObjectFields(ctx context.Context, s *salesforce.Session, args map[string]any) (string, error) {
	object := stringArg(args, "object_name")
	fields, err := stringSliceArg("delete_object_fields", "fields", args)
	if err != nil {
		return "", err
	}
	if len(fields) == 0 {
		return "", api.Failf(api.KindInvalidArguments, "delete_object_fields: at least one field is required")
	}
	pkg, err := salesforce.BuildFieldDeletionPackage(object, fields, s.APIVersion())
	if err != nil {
		return "", api.Failf(api.KindInvalidArguments, "build deletion package: %v", err)
	}
	deployID, err := deployPackage(ctx, s, pkg)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Destructive deploy removing %d fields from %s submitted (deploy id %s).", len(fields), object, deployID), nil
}

func deployPackage(ctx context.Context, s *salesforce.Session, pkg salesforce.MetadataPackage) (string, error) {
	raw, err := pkg.Zip()
	if err != nil {
		return "", fmt.Errorf("zip metadata package: %w", err)
	}
	return s.Deploy(ctx, raw)
}
