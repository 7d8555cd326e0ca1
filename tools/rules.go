package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/pablo-camprubi/salesforce-mcp/api"
	"github.com/pablo-camprubi/salesforce-mcp/salesforce"
)

func ruleOperations() []*Operation {
	return []*Operation{
		{
			Name:        "create_validation_rule",
			Description: "Creates a validation rule on an object via the Tooling API.",
			Properties: map[string]any{
				"object_name":             prop("string", "API name of the object the rule applies to"),
				"rule_name":               prop("string", "Developer name of the rule"),
				"error_condition_formula": prop("string", "Formula that flags invalid records when true"),
				"error_message":           prop("string", "Message shown when the rule fires"),
				"description":             prop("string", "Optional rule description"),
				"active":                  prop("boolean", "Whether the rule is active, defaults to true"),
			},
			Required: []string{"object_name", "rule_name", "error_condition_formula", "error_message"},
			Invoke:   createValidationRule,
		},
		{
			Name:        "get_validation_rules",
			Description: "Lists the validation rules defined on an object.",
			Properties: map[string]any{
				"object_name": prop("string", "API name of the object"),
			},
			Required: []string{"object_name"},
			Invoke:   getValidationRules,
		},
	}
}

func createValidationRule(ctx context.Context, s *salesforce.Session, args map[string]any) (string, error) {
	objectName := stringArg(args, "object_name")
	ruleName := stringArg(args, "rule_name")

	// Custom objects are addressed by their CustomObject id in the
	// Tooling API; standard objects by their API name.
	tableEnumOrID := objectName
	if strings.HasSuffix(objectName, "__c") {
		res, err := s.ToolingQuery(ctx, fmt.Sprintf("SELECT Id FROM CustomObject WHERE DeveloperName = '%s'", soqlEscape(strings.TrimSuffix(objectName, "__c"))))
		if err != nil {
			return "", err
		}
		if len(res.Records) == 0 {
			return "", api.Failf(api.KindInvalidArguments, "create_validation_rule: custom object %q not found", objectName)
		}
		id, _ := res.Records[0]["Id"].(string)
		if id == "" {
			return "", fmt.Errorf("tooling query for %s returned no id", objectName)
		}
		tableEnumOrID = id
	}

	payload := map[string]any{
		"DeveloperName":         ruleName,
		"TableEnumOrId":         tableEnumOrID,
		"Active":                boolArg(args, "active", true),
		"ErrorConditionFormula": stringArg(args, "error_condition_formula"),
		"ErrorMessage":          stringArg(args, "error_message"),
		"Description":           stringArg(args, "description"),
	}
	id, err := s.ToolingCreate(ctx, "ValidationRule", payload)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Validation rule %s created on %s (Id: %s).", ruleName, objectName, id), nil
}

func getValidationRules(ctx context.Context, s *salesforce.Session, args map[string]any) (string, error) {
	objectName := stringArg(args, "object_name")
	lookup := objectName
	if strings.HasSuffix(objectName, "__c") {
		lookup = strings.TrimSuffix(objectName, "__c")
	}
	res, err := s.ToolingQuery(ctx, fmt.Sprintf(
		"SELECT Id, ValidationName, Active, Description, ErrorMessage FROM ValidationRule WHERE EntityDefinition.DeveloperName = '%s'",
		soqlEscape(lookup)))
	if err != nil {
		return "", err
	}
	if len(res.Records) == 0 {
		return fmt.Sprintf("%s has no validation rules.", objectName), nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Validation rules on %s:\n", objectName)
	for _, rec := range res.Records {
		name, _ := rec["ValidationName"].(string)
		active, _ := rec["Active"].(bool)
		message, _ := rec["ErrorMessage"].(string)
		fmt.Fprintf(&b, "- %s (active %t): %s\n", name, active, message)
	}
	return b.String(), nil
}

// soqlEscape quotes single quotes and backslashes so tool-supplied
// names can not break out of a SOQL string literal.
func soqlEscape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}
