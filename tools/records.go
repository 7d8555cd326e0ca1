package tools

import (
	"context"
	"fmt"

	"github.com/pablo-camprubi/salesforce-mcp/salesforce"
)

func recordOperations() []*Operation {
	return []*Operation{
		{
			Name:        "create_record",
			Description: "Inserts a new record of the given object with the supplied field values.",
			Properties: map[string]any{
				"object_name": prop("string", "API name of the object"),
				"data":        prop("object", "Field values for the new record"),
			},
			Required: []string{"object_name", "data"},
			Invoke:   createRecord,
		},
		{
			Name:        "update_record",
			Description: "Applies a partial update to an existing record.",
			Properties: map[string]any{
				"object_name": prop("string", "API name of the object"),
				"record_id":   prop("string", "Id of the record to update"),
				"data":        prop("object", "Field values to change"),
			},
			Required: []string{"object_name", "record_id", "data"},
			Invoke:   updateRecord,
		},
		{
			Name:        "delete_record",
			Description: "Deletes one record by Id.",
			Properties: map[string]any{
				"object_name": prop("string", "API name of the object"),
				"record_id":   prop("string", "Id of the record to delete"),
			},
			Required: []string{"object_name", "record_id"},
			Invoke:   deleteRecord,
		},
	}
}

func createRecord(ctx context.Context, s *salesforce.Session, args map[string]any) (string, error) {
	object := stringArg(args, "object_name")
	data, err := objectArg("create_record", "data", args)
	if err != nil {
		return "", err
	}
	id, err := s.CreateRecord(ctx, object, data)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Created %s record %s.", object, id), nil
}

func updateRecord(ctx context.Context, s *salesforce.Session, args map[string]any) (string, error) {
	object := stringArg(args, "object_name")
	id := stringArg(args, "record_id")
	data, err := objectArg("update_record", "data", args)
	if err != nil {
		return "", err
	}
	if err := s.UpdateRecord(ctx, object, id, data); err != nil {
		return "", err
	}
	return fmt.Sprintf("Updated %s record %s.", object, id), nil
}

func deleteRecord(ctx context.Context, s *salesforce.Session, args map[string]any) (string, error) {
	object := stringArg(args, "object_name")
	id := stringArg(args, "record_id")
	if err := s.DeleteRecord(ctx, object, id); err != nil {
		return "", err
	}
	return fmt.Sprintf("Deleted %s record %s.", object, id), nil
}
