package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pablo-camprubi/salesforce-mcp/salesforce"
)

func queryOperations() []*Operation {
	return []*Operation{
		{
			Name:        "run_soql_query",
			Description: "Executes a SOQL query against the org, including archived and deleted records, and returns all matching rows.",
			Properties: map[string]any{
				"query": prop("string", "The SOQL query to execute"),
			},
			Required: []string{"query"},
			Invoke:   runSOQLQuery,
		},
		{
			Name:        "run_sosl_search",
			Description: "Executes a SOSL full-text search across objects, for example 'FIND {Acme} IN ALL FIELDS'.",
			Properties: map[string]any{
				"search": prop("string", "The SOSL search to execute"),
			},
			Required: []string{"search"},
			Invoke:   runSOSLSearch,
		},
	}
}

func runSOQLQuery(ctx context.Context, s *salesforce.Session, args map[string]any) (string, error) {
	result, err := s.Query(ctx, stringArg(args, "query"))
	if err != nil {
		return "", err
	}
	body, err := json.MarshalIndent(stripAttributes(result.Records), "", "  ")
	if err != nil {
		return "", fmt.Errorf("render query result: %w", err)
	}
	return fmt.Sprintf("Query returned %d records:\n%s", result.TotalSize, body), nil
}

func runSOSLSearch(ctx context.Context, s *salesforce.Session, args map[string]any) (string, error) {
	result, err := s.Search(ctx, stringArg(args, "search"))
	if err != nil {
		return "", err
	}
	body, err := json.MarshalIndent(stripAttributes(result.SearchRecords), "", "  ")
	if err != nil {
		return "", fmt.Errorf("render search result: %w", err)
	}
	return fmt.Sprintf("Search returned %d records:\n%s", len(result.SearchRecords), body), nil
}

// stripAttributes drops the per-record attributes envelope Salesforce
// attaches to query rows; callers only care about the field values.
func stripAttributes(records []map[string]any) []map[string]any {
	out := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		clean := make(map[string]any, len(rec))
		for k, v := range rec {
			if k == "attributes" {
				continue
			}
			clean[k] = v
		}
		out = append(out, clean)
	}
	return out
}
