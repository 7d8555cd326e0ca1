package salesforce

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// APIError is a non-2xx response from a Salesforce REST or Tooling
// endpoint, carrying the first error code and message from the body.
type APIError struct {
	Status  int
	Code    string
	Message string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("salesforce api status %d: %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("salesforce api status %d: %s", e.Status, e.Message)
}

// QueryResult is one page (or the merged whole) of a SOQL query.
type QueryResult struct {
	TotalSize      int              `json:"totalSize"`
	Done           bool             `json:"done"`
	NextRecordsURL string           `json:"nextRecordsUrl,omitempty"`
	Records        []map[string]any `json:"records"`
}

// SearchResult is the outcome of a SOSL search.
type SearchResult struct {
	SearchRecords []map[string]any `json:"searchRecords"`
}

// SaveResult is the outcome of a record create.
type SaveResult struct {
	ID      string `json:"id"`
	Success bool   `json:"success"`
	Errors  []any  `json:"errors"`
}

// PicklistValue is one entry of a picklist field describe.
type PicklistValue struct {
	Label  string `json:"label"`
	Value  string `json:"value"`
	Active bool   `json:"active"`
}

// FieldDescribe is the subset of a field describe the tools consume.
type FieldDescribe struct {
	Name             string          `json:"name"`
	Label            string          `json:"label"`
	Type             string          `json:"type"`
	Length           int             `json:"length"`
	Custom           bool            `json:"custom"`
	Nillable         bool            `json:"nillable"`
	Updateable       bool            `json:"updateable"`
	Createable       bool            `json:"createable"`
	RelationshipName string          `json:"relationshipName"`
	ReferenceTo      []string        `json:"referenceTo"`
	PicklistValues   []PicklistValue `json:"picklistValues"`
}

// ObjectDescribe is the subset of an sobject describe the tools consume.
type ObjectDescribe struct {
	Name           string          `json:"name"`
	Label          string          `json:"label"`
	LabelPlural    string          `json:"labelPlural"`
	Custom         bool            `json:"custom"`
	KeyPrefix      string          `json:"keyPrefix"`
	Queryable      bool            `json:"queryable"`
	Createable     bool            `json:"createable"`
	Updateable     bool            `json:"updateable"`
	Deletable      bool            `json:"deletable"`
	Fields         []FieldDescribe `json:"fields"`
	ChildRelations []any           `json:"childRelationships"`
}

// Query runs a SOQL statement through the queryAll endpoint and follows
// nextRecordsUrl until the full result set is assembled.
func (s *Session) Query(ctx context.Context, soql string) (*QueryResult, error) {
	var out QueryResult
	path := fmt.Sprintf("/services/data/v%s/queryAll?q=%s", s.apiVersion, url.QueryEscape(soql))
	if err := s.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, fmt.Errorf("soql query: %w", err)
	}
	for !out.Done && out.NextRecordsURL != "" {
		var page QueryResult
		if err := s.do(ctx, http.MethodGet, out.NextRecordsURL, nil, &page); err != nil {
			return nil, fmt.Errorf("soql query more: %w", err)
		}
		out.Records = append(out.Records, page.Records...)
		out.Done = page.Done
		out.NextRecordsURL = page.NextRecordsURL
	}
	out.NextRecordsURL = ""
	return &out, nil
}

// Search runs a SOSL search.
func (s *Session) Search(ctx context.Context, sosl string) (*SearchResult, error) {
	var out SearchResult
	path := fmt.Sprintf("/services/data/v%s/search?q=%s", s.apiVersion, url.QueryEscape(sosl))
	if err := s.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, fmt.Errorf("sosl search: %w", err)
	}
	return &out, nil
}

// CreateRecord inserts one record and returns its id.
func (s *Session) CreateRecord(ctx context.Context, object string, fields map[string]any) (string, error) {
	var out SaveResult
	path := fmt.Sprintf("/services/data/v%s/sobjects/%s", s.apiVersion, url.PathEscape(object))
	if err := s.do(ctx, http.MethodPost, path, fields, &out); err != nil {
		return "", fmt.Errorf("create %s: %w", object, err)
	}
	return out.ID, nil
}

// UpdateRecord applies a partial update to one record.
func (s *Session) UpdateRecord(ctx context.Context, object, id string, fields map[string]any) error {
	path := fmt.Sprintf("/services/data/v%s/sobjects/%s/%s", s.apiVersion, url.PathEscape(object), url.PathEscape(id))
	if err := s.do(ctx, http.MethodPatch, path, fields, nil); err != nil {
		return fmt.Errorf("update %s %s: %w", object, id, err)
	}
	return nil
}

// DeleteRecord removes one record.
func (s *Session) DeleteRecord(ctx context.Context, object, id string) error {
	path := fmt.Sprintf("/services/data/v%s/sobjects/%s/%s", s.apiVersion, url.PathEscape(object), url.PathEscape(id))
	if err := s.do(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("delete %s %s: %w", object, id, err)
	}
	return nil
}

// Describe fetches the sobject describe for object.
func (s *Session) Describe(ctx context.Context, object string) (*ObjectDescribe, error) {
	var out ObjectDescribe
	path := fmt.Sprintf("/services/data/v%s/sobjects/%s/describe", s.apiVersion, url.PathEscape(object))
	if err := s.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, fmt.Errorf("describe %s: %w", object, err)
	}
	return &out, nil
}

// ToolingQuery runs a SOQL statement against the Tooling API.
func (s *Session) ToolingQuery(ctx context.Context, soql string) (*QueryResult, error) {
	var out QueryResult
	path := fmt.Sprintf("/services/data/v%s/tooling/query?q=%s", s.apiVersion, url.QueryEscape(soql))
	if err := s.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, fmt.Errorf("tooling query: %w", err)
	}
	return &out, nil
}

// ToolingCreate inserts one Tooling API record and returns its id.
func (s *Session) ToolingCreate(ctx context.Context, object string, fields map[string]any) (string, error) {
	var out SaveResult
	path := fmt.Sprintf("/services/data/v%s/tooling/sobjects/%s", s.apiVersion, url.PathEscape(object))
	if err := s.do(ctx, http.MethodPost, path, fields, &out); err != nil {
		return "", fmt.Errorf("tooling create %s: %w", object, err)
	}
	return out.ID, nil
}

// do issues one authenticated REST call. path is either absolute
// (starting with /services) or a nextRecordsUrl returned by a prior
// query. A nil out discards the response body.
func (s *Session) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.instanceURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.sessionID)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("salesforce request failed: %s", redactURLError(err))
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apiErrorFrom(resp.StatusCode, raw)
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func apiErrorFrom(status int, body []byte) *APIError {
	var items []struct {
		Message   string `json:"message"`
		ErrorCode string `json:"errorCode"`
	}
	if err := json.Unmarshal(body, &items); err == nil && len(items) > 0 {
		return &APIError{Status: status, Code: items[0].ErrorCode, Message: items[0].Message}
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 512 {
		msg = msg[:512]
	}
	return &APIError{Status: status, Message: msg}
}
