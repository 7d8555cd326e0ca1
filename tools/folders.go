package tools

import (
	"context"
	"fmt"

	"github.com/pablo-camprubi/salesforce-mcp/salesforce"
)

func folderOperations() []*Operation {
	folderProps := func(kind string) map[string]any {
		return map[string]any{
			"folder_api_name": prop("string", "Developer name of the "+kind+" folder"),
			"folder_label":    prop("string", "Display label of the folder"),
			"access_type":     enumProp("Folder access, defaults to Private", "Private", "Public", "Shared"),
		}
	}
	return []*Operation{
		{
			Name:        "create_report_folder",
			Description: "Creates a report folder.",
			Properties:  folderProps("report"),
			Required:    []string{"folder_api_name", "folder_label"},
			Enums: map[string][]string{
				"access_type": {"Private", "Public", "Shared"},
			},
			Invoke: func(ctx context.Context, s *salesforce.Session, args map[string]any) (string, error) {
				return createFolder(ctx, s, args, "Report")
			},
		},
		{
			Name:        "create_dashboard_folder",
			Description: "Creates a dashboard folder.",
			Properties:  folderProps("dashboard"),
			Required:    []string{"folder_api_name", "folder_label"},
			Enums: map[string][]string{
				"access_type": {"Private", "Public", "Shared"},
			},
			Invoke: func(ctx context.Context, s *salesforce.Session, args map[string]any) (string, error) {
				return createFolder(ctx, s, args, "Dashboard")
			},
		},
	}
}

func createFolder(ctx context.Context, s *salesforce.Session, args map[string]any, folderType string) (string, error) {
	accessType := stringArg(args, "access_type")
	if accessType == "" {
		accessType = "Private"
	}
	id, err := s.CreateRecord(ctx, "Folder", map[string]any{
		"DeveloperName": stringArg(args, "folder_api_name"),
		"Name":          stringArg(args, "folder_label"),
		"AccessType":    accessType,
		"Type":          folderType,
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s folder %s created (Id: %s).", folderType, stringArg(args, "folder_label"), id), nil
}
