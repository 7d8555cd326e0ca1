package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/pablo-camprubi/salesforce-mcp/api"
	"github.com/pablo-camprubi/salesforce-mcp/salesforce"
)

func describeOperations() []*Operation {
	objectNameProp := map[string]any{
		"object_name": prop("string", "API name of the object, for example Account or Invoice__c"),
	}
	return []*Operation{
		{
			Name:        "get_object_fields",
			Description: "Lists every field of an object with its API name, label, and type.",
			Properties:  objectNameProp,
			Required:    []string{"object_name"},
			Invoke:      getObjectFields,
		},
		{
			Name:        "describe_object",
			Description: "Returns a full description of an object: properties, record prefix, and a field table.",
			Properties:  objectNameProp,
			Required:    []string{"object_name"},
			Invoke:      describeObject,
		},
		{
			Name:        "describe_relationship_fields",
			Description: "Lists the lookup and master-detail fields of an object and the objects they reference.",
			Properties:  objectNameProp,
			Required:    []string{"object_name"},
			Invoke:      describeRelationshipFields,
		},
		{
			Name:        "get_fields_by_type",
			Description: "Lists the fields of an object filtered by field type, for example picklist or reference.",
			Properties: map[string]any{
				"object_name": prop("string", "API name of the object"),
				"field_type":  prop("string", "Field type to filter on; omit to group all fields by type"),
			},
			Required: []string{"object_name"},
			Invoke:   getFieldsByType,
		},
		{
			Name:        "get_picklist_values",
			Description: "Lists the active picklist values of one field.",
			Properties: map[string]any{
				"object_name": prop("string", "API name of the object"),
				"field_name":  prop("string", "API name of the picklist field"),
			},
			Required: []string{"object_name", "field_name"},
			Invoke:   getPicklistValues,
		},
	}
}

func getObjectFields(ctx context.Context, s *salesforce.Session, args map[string]any) (string, error) {
	desc, err := s.Describe(ctx, stringArg(args, "object_name"))
	if err != nil {
		return "", err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s has %d fields:\n", desc.Name, len(desc.Fields))
	for _, f := range desc.Fields {
		fmt.Fprintf(&b, "- %s (%s): %s\n", f.Name, f.Type, f.Label)
	}
	return b.String(), nil
}

func describeObject(ctx context.Context, s *salesforce.Session, args map[string]any) (string, error) {
	desc, err := s.Describe(ctx, stringArg(args, "object_name"))
	if err != nil {
		return "", err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "# %s (%s)\n\n", desc.Label, desc.Name)
	fmt.Fprintf(&b, "Custom: %t | Key prefix: %s | Queryable: %t | Createable: %t | Updateable: %t | Deletable: %t\n\n",
		desc.Custom, desc.KeyPrefix, desc.Queryable, desc.Createable, desc.Updateable, desc.Deletable)
	b.WriteString("| Field | Label | Type | Required |\n|---|---|---|---|\n")
	for _, f := range desc.Fields {
		required := !f.Nillable && f.Createable && f.Type != "boolean"
		fmt.Fprintf(&b, "| %s | %s | %s | %t |\n", f.Name, f.Label, f.Type, required)
	}
	return b.String(), nil
}

func describeRelationshipFields(ctx context.Context, s *salesforce.Session, args map[string]any) (string, error) {
	desc, err := s.Describe(ctx, stringArg(args, "object_name"))
	if err != nil {
		return "", err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Relationship fields on %s:\n", desc.Name)
	count := 0
	for _, f := range desc.Fields {
		if f.Type != "reference" || len(f.ReferenceTo) == 0 {
			continue
		}
		count++
		fmt.Fprintf(&b, "- %s -> %s (relationship name %s)\n", f.Name, strings.Join(f.ReferenceTo, ", "), f.RelationshipName)
	}
	if count == 0 {
		return fmt.Sprintf("%s has no relationship fields.", desc.Name), nil
	}
	return b.String(), nil
}

func getFieldsByType(ctx context.Context, s *salesforce.Session, args map[string]any) (string, error) {
	desc, err := s.Describe(ctx, stringArg(args, "object_name"))
	if err != nil {
		return "", err
	}
	filter := strings.ToLower(stringArg(args, "field_type"))
	var b strings.Builder
	if filter != "" {
		fmt.Fprintf(&b, "Fields of type %s on %s:\n", filter, desc.Name)
		found := 0
		for _, f := range desc.Fields {
			if strings.ToLower(f.Type) != filter {
				continue
			}
			found++
			fmt.Fprintf(&b, "- %s: %s\n", f.Name, f.Label)
		}
		if found == 0 {
			return fmt.Sprintf("%s has no fields of type %s.", desc.Name, filter), nil
		}
		return b.String(), nil
	}
	byType := map[string][]string{}
	for _, f := range desc.Fields {
		byType[f.Type] = append(byType[f.Type], f.Name)
	}
	fmt.Fprintf(&b, "Fields on %s grouped by type:\n", desc.Name)
	grouped := make(map[string]any, len(byType))
	for t := range byType {
		grouped[t] = nil
	}
	for _, t := range sortedKeys(grouped) {
		fmt.Fprintf(&b, "- %s: %s\n", t, strings.Join(byType[t], ", "))
	}
	return b.String(), nil
}

func getPicklistValues(ctx context.Context, s *salesforce.Session, args map[string]any) (string, error) {
	objectName := stringArg(args, "object_name")
	fieldName := stringArg(args, "field_name")
	desc, err := s.Describe(ctx, objectName)
	if err != nil {
		return "", err
	}
	for _, f := range desc.Fields {
		if !strings.EqualFold(f.Name, fieldName) {
			continue
		}
		if len(f.PicklistValues) == 0 {
			return fmt.Sprintf("%s.%s has no picklist values.", objectName, f.Name), nil
		}
		var b strings.Builder
		fmt.Fprintf(&b, "Picklist values for %s.%s:\n", objectName, f.Name)
		for _, v := range f.PicklistValues {
			if !v.Active {
				continue
			}
			fmt.Fprintf(&b, "- %s (%s)\n", v.Value, v.Label)
		}
		return b.String(), nil
	}
	return "", api.Failf(api.KindInvalidArguments, "get_picklist_values: field %q not found on %s", fieldName, objectName)
}
