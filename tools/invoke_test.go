package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pablo-camprubi/salesforce-mcp/api"
	"github.com/pablo-camprubi/salesforce-mcp/credentials"
	"github.com/pablo-camprubi/salesforce-mcp/salesforce"
)

const fakeLoginResponse = `<?xml version="1.0" encoding="UTF-8"?>
<soapenv:Envelope xmlns:soapenv="http://schemas.xmlsoap.org/soap/envelope/">
  <soapenv:Body>
    <loginResponse><result><serverUrl>%s</serverUrl><sessionId>SESSION</sessionId></result></loginResponse>
  </soapenv:Body>
</soapenv:Envelope>`

func newToolSession(t *testing.T, mux *http.ServeMux) *salesforce.Session {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	mux.HandleFunc("/services/Soap/u/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/xml; charset=UTF-8")
		fmt.Fprintf(w, fakeLoginResponse, srv.URL)
	})
	s, err := salesforce.Connect(context.Background(), credentials.Record{
		Username: "user@example.com",
		Password: "pw",
	}, salesforce.Options{LoginURL: srv.URL})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func invoke(t *testing.T, s *salesforce.Session, name string, args map[string]any) (string, error) {
	t.Helper()
	op, ok := NewRegistry().Lookup(name)
	if !ok {
		t.Fatalf("tool %s not registered", name)
	}
	if err := op.Validate(args); err != nil {
		return "", err
	}
	return op.Invoke(context.Background(), s, args)
}

func TestRunSOQLQueryInvoke(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/services/data/v58.0/queryAll", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(salesforce.QueryResult{
			TotalSize: 1,
			Done:      true,
			Records: []map[string]any{{
				"attributes": map[string]any{"type": "Account"},
				"Id":         "001A",
				"Name":       "Acme",
			}},
		})
	})
	s := newToolSession(t, mux)

	text, err := invoke(t, s, "run_soql_query", map[string]any{"query": "SELECT Id, Name FROM Account"})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if !strings.Contains(text, "Query returned 1 records") || !strings.Contains(text, `"Name": "Acme"`) {
		t.Fatalf("unexpected text:\n%s", text)
	}
	if strings.Contains(text, "attributes") {
		t.Fatal("attributes envelope must be stripped from results")
	}
}

func TestCreateRecordInvoke(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/services/data/v58.0/sobjects/Account", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(salesforce.SaveResult{ID: "001NEW", Success: true})
	})
	s := newToolSession(t, mux)

	text, err := invoke(t, s, "create_record", map[string]any{
		"object_name": "Account",
		"data":        map[string]any{"Name": "Acme"},
	})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if !strings.Contains(text, "001NEW") {
		t.Fatalf("unexpected text %q", text)
	}

	_, err = invoke(t, s, "create_record", map[string]any{"object_name": "Account", "data": "oops"})
	if !api.IsKind(err, api.KindInvalidArguments) {
		t.Fatalf("expected invalid_arguments for non-object data, got %v", err)
	}
}

func TestCreateObjectWithFieldsInvoke(t *testing.T) {
	t.Parallel()

	var deployedZip bool
	mux := http.NewServeMux()
	mux.HandleFunc("/services/Soap/m/58.0", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if strings.Contains(string(body), "<met:ZipFile>") {
			deployedZip = true
		}
		w.Header().Set("Content-Type", "text/xml; charset=UTF-8")
		fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?>
<soapenv:Envelope xmlns:soapenv="http://schemas.xmlsoap.org/soap/envelope/">
  <soapenv:Body>
    <deployResponse><result><id>0AfDEPLOY</id><done>false</done><state>InProgress</state></result></deployResponse>
  </soapenv:Body>
</soapenv:Envelope>`)
	})
	s := newToolSession(t, mux)

	text, err := invoke(t, s, "create_object_with_fields", map[string]any{
		"name":        "Invoice",
		"plural_name": "Invoices",
		"fields": []any{
			map[string]any{"name": "Amount", "type": "Number"},
			map[string]any{"name": "Customer", "type": "Lookup", "reference_to": "Account"},
		},
	})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if !strings.Contains(text, "0AfDEPLOY") || !deployedZip {
		t.Fatalf("deploy not submitted: %q", text)
	}

	_, err = invoke(t, s, "create_object_with_fields", map[string]any{
		"name":        "Invoice",
		"plural_name": "Invoices",
		"fields":      []any{map[string]any{"name": "Geo", "type": "Geolocation"}},
	})
	if !api.IsKind(err, api.KindInvalidArguments) {
		t.Fatalf("expected invalid_arguments for unsupported type, got %v", err)
	}
}

func TestCreateTabValidationRules(t *testing.T) {
	t.Parallel()

	s := newToolSession(t, http.NewServeMux())

	tests := []struct {
		name string
		args map[string]any
	}{
		{
			name: "object tab name mismatch",
			args: map[string]any{"tab_api_name": "Invoice__c", "tab_type": "CustomObject", "object_name": "Order__c"},
		},
		{
			name: "vf tab without page",
			args: map[string]any{"tab_api_name": "My_Tab", "tab_type": "VisualforcePage", "label": "My Tab"},
		},
		{
			name: "web tab without scheme",
			args: map[string]any{"tab_api_name": "Docs", "tab_type": "Web", "label": "Docs", "web_url": "docs.example.com"},
		},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := invoke(t, s, "create_tab", tc.args)
			if !api.IsKind(err, api.KindInvalidArguments) {
				t.Fatalf("expected invalid_arguments, got %v", err)
			}
		})
	}
}

func TestCreateValidationRuleInvoke(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/services/data/v58.0/tooling/query", func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Query().Get("q"), "DeveloperName = 'Invoice'") {
			t.Errorf("unexpected tooling query %q", r.URL.Query().Get("q"))
		}
		_ = json.NewEncoder(w).Encode(salesforce.QueryResult{
			TotalSize: 1, Done: true,
			Records: []map[string]any{{"Id": "01ICUSTOBJ"}},
		})
	})
	mux.HandleFunc("/services/data/v58.0/tooling/sobjects/ValidationRule", func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		_ = json.NewDecoder(r.Body).Decode(&payload)
		if payload["TableEnumOrId"] != "01ICUSTOBJ" {
			t.Errorf("expected custom object id, got %v", payload["TableEnumOrId"])
		}
		if payload["Active"] != true {
			t.Errorf("expected active default true, got %v", payload["Active"])
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(salesforce.SaveResult{ID: "03dRULE", Success: true})
	})
	s := newToolSession(t, mux)

	text, err := invoke(t, s, "create_validation_rule", map[string]any{
		"object_name":             "Invoice__c",
		"rule_name":               "Amount_Positive",
		"error_condition_formula": "Amount__c <= 0",
		"error_message":           "Amount must be positive",
	})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if !strings.Contains(text, "03dRULE") {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestCreateFolderInvoke(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/services/data/v58.0/sobjects/Folder", func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		_ = json.NewDecoder(r.Body).Decode(&payload)
		if payload["Type"] != "Dashboard" || payload["AccessType"] != "Private" {
			t.Errorf("unexpected folder payload %v", payload)
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(salesforce.SaveResult{ID: "00lFOLDER", Success: true})
	})
	s := newToolSession(t, mux)

	text, err := invoke(t, s, "create_dashboard_folder", map[string]any{
		"folder_api_name": "Ops_Dashboards",
		"folder_label":    "Ops Dashboards",
	})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if !strings.Contains(text, "00lFOLDER") {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestCreateCustomAppAPINameCheck(t *testing.T) {
	t.Parallel()

	s := newToolSession(t, http.NewServeMux())
	_, err := invoke(t, s, "create_custom_app", map[string]any{
		"api_name":  "Bad App!",
		"app_label": "Bad App",
	})
	if !api.IsKind(err, api.KindInvalidArguments) {
		t.Fatalf("expected invalid_arguments, got %v", err)
	}
}
