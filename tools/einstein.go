package tools

import (
	"context"
	"fmt"

	"github.com/pablo-camprubi/salesforce-mcp/api"
	"github.com/pablo-camprubi/salesforce-mcp/salesforce"
)

func einsteinOperations() []*Operation {
	return []*Operation{
		{
			Name:        "create_einstein_model",
			Description: "Creates an Einstein Analytics template bundle via a Metadata API deploy.",
			Properties: map[string]any{
				"api_name":    prop("string", "Template API name, alphanumeric and underscores only"),
				"label":       prop("string", "Template label"),
				"description": prop("string", "Optional template description"),
			},
			Required: []string{"api_name", "label"},
			Invoke:   createEinsteinModel,
		},
	}
}

func createEinsteinModel(ctx context.Context, s *salesforce.Session, args map[string]any) (string, error) {
	apiName := stringArg(args, "api_name")
	if !isAPIName(apiName) {
		return "", api.Failf(api.KindInvalidArguments, "create_einstein_model: api_name may only contain letters, digits, and underscores")
	}
	pkg, err := salesforce.BuildEinsteinTemplatePackage(apiName, stringArg(args, "label"), stringArg(args, "description"), s.APIVersion())
	if err != nil {
		return "", api.Failf(api.KindInvalidArguments, "build template package: %v", err)
	}
	deployID, err := deployPackage(ctx, s, pkg)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Deploy of Einstein template %s submitted (deploy id %s).", apiName, deployID), nil
}
