package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/pablo-camprubi/salesforce-mcp/api"
	"github.com/pablo-camprubi/salesforce-mcp/salesforce"
)

func tabAndAppOperations() []*Operation {
	return []*Operation{
		{
			Name:        "create_tab",
			Description: "Creates a custom tab for an object, a Visualforce page, or a web URL via a Metadata API deploy.",
			Properties: map[string]any{
				"tab_api_name": prop("string", "API name of the tab; for object tabs it must equal the object API name"),
				"label":        prop("string", "Tab label, required for page and web tabs"),
				"tab_type":     enumProp("Kind of tab to create", "CustomObject", "VisualforcePage", "Web"),
				"object_name":  prop("string", "Object API name, required for CustomObject tabs"),
				"vf_page_name": prop("string", "Visualforce page name, required for VisualforcePage tabs"),
				"web_url":      prop("string", "Target URL, required for Web tabs"),
				"motif":        prop("string", "Tab motif, for example 'Custom20: Airplane'"),
			},
			Required: []string{"tab_api_name", "tab_type"},
			Enums: map[string][]string{
				"tab_type": {"CustomObject", "VisualforcePage", "Web"},
			},
			Invoke: createTab,
		},
		{
			Name:        "create_custom_app",
			Description: "Creates a custom Lightning application with the given tabs via a Metadata API deploy.",
			Properties: map[string]any{
				"api_name":  prop("string", "Application API name, alphanumeric and underscores only"),
				"app_label": prop("string", "Application label"),
				"nav_type":  enumProp("Navigation style", "Standard", "Console"),
				"tabs": map[string]any{
					"type":        "array",
					"description": "Tab API names to include",
					"items":       map[string]any{"type": "string"},
				},
				"form_factors": map[string]any{
					"type":        "array",
					"description": "Supported form factors, Small and/or Large",
					"items":       map[string]any{"type": "string", "enum": []string{"Small", "Large"}},
				},
				"setup_experience": prop("string", "Setup experience, defaults to all"),
			},
			Required: []string{"api_name", "app_label"},
			Enums: map[string][]string{
				"nav_type": {"Standard", "Console"},
			},
			Invoke: createCustomApp,
		},
	}
}

func createTab(ctx context.Context, s *salesforce.Session, args map[string]any) (string, error) {
	tabName := stringArg(args, "tab_api_name")
	tabType := stringArg(args, "tab_type")
	spec := salesforce.TabSpec{
		FullName: tabName,
		Label:    stringArg(args, "label"),
		Motif:    stringArg(args, "motif"),
	}
	switch tabType {
	case "CustomObject":
		objectName := stringArg(args, "object_name")
		if objectName == "" {
			return "", api.Failf(api.KindInvalidArguments, "create_tab: object_name is required for CustomObject tabs")
		}
		if objectName != tabName {
			return "", api.Failf(api.KindInvalidArguments, "create_tab: tab_api_name must equal object_name for CustomObject tabs")
		}
		spec.ObjectName = objectName
	case "VisualforcePage":
		page := stringArg(args, "vf_page_name")
		if page == "" {
			return "", api.Failf(api.KindInvalidArguments, "create_tab: vf_page_name is required for VisualforcePage tabs")
		}
		if spec.Label == "" {
			return "", api.Failf(api.KindInvalidArguments, "create_tab: label is required for VisualforcePage tabs")
		}
		spec.PageName = page
	case "Web":
		webURL := stringArg(args, "web_url")
		if !strings.HasPrefix(webURL, "http://") && !strings.HasPrefix(webURL, "https://") {
			return "", api.Failf(api.KindInvalidArguments, "create_tab: web_url must start with http:// or https://")
		}
		if spec.Label == "" {
			return "", api.Failf(api.KindInvalidArguments, "create_tab: label is required for Web tabs")
		}
		spec.WebURL = webURL
	}
	pkg, err := salesforce.BuildTabPackage(spec, s.APIVersion())
	if err != nil {
		return "", api.Failf(api.KindInvalidArguments, "build tab package: %v", err)
	}
	deployID, err := deployPackage(ctx, s, pkg)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Deploy of %s tab %s submitted (deploy id %s).", tabType, tabName, deployID), nil
}

func createCustomApp(ctx context.Context, s *salesforce.Session, args map[string]any) (string, error) {
	apiName := stringArg(args, "api_name")
	if !isAPIName(apiName) {
		return "", api.Failf(api.KindInvalidArguments, "create_custom_app: api_name may only contain letters, digits, and underscores")
	}
	tabs, err := stringSliceArg("create_custom_app", "tabs", args)
	if err != nil {
		return "", err
	}
	formFactors, err := stringSliceArg("create_custom_app", "form_factors", args)
	if err != nil {
		return "", err
	}
	for _, ff := range formFactors {
		if ff != "Small" && ff != "Large" {
			return "", api.Failf(api.KindInvalidArguments, "create_custom_app: form factor %q must be Small or Large", ff)
		}
	}
	spec := salesforce.AppSpec{
		APIName:         apiName,
		Label:           stringArg(args, "app_label"),
		NavType:         stringArg(args, "nav_type"),
		Tabs:            tabs,
		FormFactors:     formFactors,
		SetupExperience: stringArg(args, "setup_experience"),
	}
	pkg, err := salesforce.BuildAppPackage(spec, s.APIVersion())
	if err != nil {
		return "", api.Failf(api.KindInvalidArguments, "build app package: %v", err)
	}
	deployID, err := deployPackage(ctx, s, pkg)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Deploy of custom app %s submitted (deploy id %s, %d tabs).", apiName, deployID, len(tabs)), nil
}
