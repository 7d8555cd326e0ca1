package salesforce

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/pablo-camprubi/salesforce-mcp/api"
)

const metadataNamespace = "http://soap.sforce.com/2006/04/metadata"

// MetadataPackage is a set of files, keyed by path inside the deploy
// zip. package.xml is always present.
type MetadataPackage map[string][]byte

// CustomFieldSpec describes one custom field in a CustomObject package.
// Type is one of Text, Number, LongText, or Lookup; ReferenceTo is only
// consulted for lookups.
type CustomFieldSpec struct {
	Name        string
	Label       string
	Type        string
	ReferenceTo string
}

type packageXML struct {
	XMLName xml.Name          `xml:"Package"`
	Xmlns   string            `xml:"xmlns,attr"`
	Types   []packageXMLTypes `xml:"types"`
	Version string            `xml:"version"`
}

type packageXMLTypes struct {
	Members []string `xml:"members"`
	Name    string   `xml:"name"`
}

type customObjectXML struct {
	XMLName          xml.Name         `xml:"CustomObject"`
	Xmlns            string           `xml:"xmlns,attr"`
	Label            string           `xml:"label"`
	PluralLabel      string           `xml:"pluralLabel"`
	NameField        *nameFieldXML    `xml:"nameField,omitempty"`
	DeploymentStatus string           `xml:"deploymentStatus"`
	SharingModel     string           `xml:"sharingModel"`
	Fields           []customFieldXML `xml:"fields"`
}

type nameFieldXML struct {
	Type  string `xml:"type"`
	Label string `xml:"label"`
}

type customFieldXML struct {
	FullName          string `xml:"fullName"`
	Label             string `xml:"label"`
	Type              string `xml:"type"`
	Length            int    `xml:"length,omitempty"`
	Precision         int    `xml:"precision,omitempty"`
	Scale             string `xml:"scale,omitempty"`
	VisibleLines      int    `xml:"visibleLines,omitempty"`
	ReferenceTo       string `xml:"referenceTo,omitempty"`
	RelationshipLabel string `xml:"relationshipLabel,omitempty"`
	RelationshipName  string `xml:"relationshipName,omitempty"`
}

type customTabXML struct {
	XMLName      xml.Name `xml:"CustomTab"`
	Xmlns        string   `xml:"xmlns,attr"`
	Label        string   `xml:"label,omitempty"`
	Motif        string   `xml:"motif"`
	CustomObject string   `xml:"customObject,omitempty"`
	Page         string   `xml:"page,omitempty"`
	URL          string   `xml:"url,omitempty"`
}

type customApplicationXML struct {
	XMLName         xml.Name `xml:"CustomApplication"`
	Xmlns           string   `xml:"xmlns,attr"`
	Label           string   `xml:"label"`
	NavType         string   `xml:"navType"`
	Tabs            []string `xml:"tabs"`
	UIType          string   `xml:"uiType"`
	FormFactors     []string `xml:"formFactors"`
	SetupExperience string   `xml:"setupExperience"`
}

// BuildObjectPackage assembles a CustomObject deploy package. apiName
// must already carry the __c suffix.
func BuildObjectPackage(apiName, label, pluralLabel, apiVersion string, fields []CustomFieldSpec) (MetadataPackage, error) {
	obj := customObjectXML{
		Xmlns:            metadataNamespace,
		Label:            label,
		PluralLabel:      pluralLabel,
		NameField:        &nameFieldXML{Type: "Text", Label: label + " Name"},
		DeploymentStatus: "Deployed",
		SharingModel:     "ReadWrite",
	}
	for _, f := range fields {
		fieldXML, err := buildFieldXML(f)
		if err != nil {
			return nil, err
		}
		obj.Fields = append(obj.Fields, fieldXML)
	}
	body, err := marshalMetadataXML(obj)
	if err != nil {
		return nil, err
	}
	pkg := MetadataPackage{
		"objects/" + apiName + ".object": body,
	}
	if err := addManifest(pkg, apiVersion, packageXMLTypes{Members: []string{apiName}, Name: "CustomObject"}); err != nil {
		return nil, err
	}
	return pkg, nil
}

func buildFieldXML(f CustomFieldSpec) (customFieldXML, error) {
	fullName := f.Name
	if !strings.HasSuffix(fullName, "__c") {
		fullName += "__c"
	}
	label := f.Label
	if label == "" {
		label = f.Name
	}
	out := customFieldXML{FullName: fullName, Label: label}
	switch f.Type {
	case "Text":
		out.Type = "Text"
		out.Length = 100
	case "Number":
		out.Type = "Number"
		out.Precision = 18
		out.Scale = "0"
	case "LongText":
		out.Type = "LongTextArea"
		out.Length = 32768
		out.VisibleLines = 3
	case "Lookup":
		if f.ReferenceTo == "" {
			return customFieldXML{}, fmt.Errorf("lookup field %s requires a reference object", f.Name)
		}
		out.Type = "Lookup"
		out.ReferenceTo = f.ReferenceTo
		out.RelationshipLabel = label
		out.RelationshipName = strings.TrimSuffix(fullName, "__c")
	default:
		return customFieldXML{}, fmt.Errorf("unsupported field type %q for %s", f.Type, f.Name)
	}
	return out, nil
}

// TabSpec describes one custom tab. Exactly one of ObjectName, PageName,
// or WebURL is set, matching the tab type.
type TabSpec struct {
	FullName   string
	Label      string
	Motif      string
	ObjectName string
	PageName   string
	WebURL     string
}

// BuildTabPackage assembles a CustomTab deploy package.
func BuildTabPackage(spec TabSpec, apiVersion string) (MetadataPackage, error) {
	tab := customTabXML{Xmlns: metadataNamespace, Motif: spec.Motif}
	if tab.Motif == "" {
		tab.Motif = "Custom20: Airplane"
	}
	switch {
	case spec.ObjectName != "":
		// Object tabs take their label from the object itself.
		tab.CustomObject = "true"
	case spec.PageName != "":
		tab.Label = spec.Label
		tab.Page = spec.PageName
	case spec.WebURL != "":
		tab.Label = spec.Label
		tab.URL = spec.WebURL
	default:
		return nil, fmt.Errorf("tab %s missing target", spec.FullName)
	}
	body, err := marshalMetadataXML(tab)
	if err != nil {
		return nil, err
	}
	pkg := MetadataPackage{
		"tabs/" + spec.FullName + ".tab": body,
	}
	if err := addManifest(pkg, apiVersion, packageXMLTypes{Members: []string{spec.FullName}, Name: "CustomTab"}); err != nil {
		return nil, err
	}
	return pkg, nil
}

// AppSpec describes one custom Lightning application.
type AppSpec struct {
	APIName         string
	Label           string
	NavType         string
	Tabs            []string
	FormFactors     []string
	SetupExperience string
}

// BuildAppPackage assembles a CustomApplication deploy package.
func BuildAppPackage(spec AppSpec, apiVersion string) (MetadataPackage, error) {
	app := customApplicationXML{
		Xmlns:           metadataNamespace,
		Label:           spec.Label,
		NavType:         spec.NavType,
		Tabs:            spec.Tabs,
		UIType:          "Lightning",
		FormFactors:     spec.FormFactors,
		SetupExperience: spec.SetupExperience,
	}
	if app.NavType == "" {
		app.NavType = "Standard"
	}
	if len(app.FormFactors) == 0 {
		app.FormFactors = []string{"Small", "Large"}
	}
	if app.SetupExperience == "" {
		app.SetupExperience = "all"
	}
	body, err := marshalMetadataXML(app)
	if err != nil {
		return nil, err
	}
	pkg := MetadataPackage{
		"applications/" + spec.APIName + ".app": body,
	}
	if err := addManifest(pkg, apiVersion, packageXMLTypes{Members: []string{spec.APIName}, Name: "CustomApplication"}); err != nil {
		return nil, err
	}
	return pkg, nil
}

// BuildEinsteinTemplatePackage assembles an AppFrameworkTemplateBundle
// package carrying one analytics template definition.
func BuildEinsteinTemplatePackage(apiName, label, description, apiVersion string) (MetadataPackage, error) {
	templateInfo := fmt.Sprintf(`{
  "name": %q,
  "label": %q,
  "description": %q,
  "assetVersion": 58.0,
  "templateType": "app"
}
`, apiName, label, description)
	pkg := MetadataPackage{
		"waveTemplates/" + apiName + "/template-info.json": []byte(templateInfo),
	}
	if err := addManifest(pkg, apiVersion, packageXMLTypes{Members: []string{apiName}, Name: "WaveTemplateBundle"}); err != nil {
		return nil, err
	}
	return pkg, nil
}

// BuildFieldDeletionPackage assembles a destructive-changes package that
// removes the named custom fields from object.
func BuildFieldDeletionPackage(object string, fields []string, apiVersion string) (MetadataPackage, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("no fields to delete")
	}
	members := make([]string, 0, len(fields))
	for _, f := range fields {
		name := f
		if !strings.HasSuffix(name, "__c") {
			name += "__c"
		}
		members = append(members, object+"."+name)
	}
	sort.Strings(members)
	destructive, err := xml.MarshalIndent(packageXML{
		Xmlns:   metadataNamespace,
		Types:   []packageXMLTypes{{Members: members, Name: "CustomField"}},
		Version: apiVersion,
	}, "", "    ")
	if err != nil {
		return nil, fmt.Errorf("encode destructiveChanges.xml: %w", err)
	}
	pkg := MetadataPackage{
		"destructiveChanges.xml": append([]byte(xml.Header), destructive...),
	}
	if err := addManifest(pkg, apiVersion); err != nil {
		return nil, err
	}
	return pkg, nil
}

func addManifest(pkg MetadataPackage, apiVersion string, types ...packageXMLTypes) error {
	manifest, err := xml.MarshalIndent(packageXML{
		Xmlns:   metadataNamespace,
		Types:   types,
		Version: apiVersion,
	}, "", "    ")
	if err != nil {
		return fmt.Errorf("encode package.xml: %w", err)
	}
	pkg["package.xml"] = append([]byte(xml.Header), manifest...)
	return nil
}

func marshalMetadataXML(v any) ([]byte, error) {
	body, err := xml.MarshalIndent(v, "", "    ")
	if err != nil {
		return nil, fmt.Errorf("encode metadata xml: %w", err)
	}
	return append([]byte(xml.Header), body...), nil
}

// Zip renders the package as an in-memory deploy archive.
func (p MetadataPackage) Zip() ([]byte, error) {
	paths := make([]string, 0, len(p))
	for path := range p {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, path := range paths {
		f, err := w.Create(path)
		if err != nil {
			return nil, fmt.Errorf("zip create %s: %w", path, err)
		}
		if _, err := f.Write(p[path]); err != nil {
			return nil, fmt.Errorf("zip write %s: %w", path, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("zip close: %w", err)
	}
	return buf.Bytes(), nil
}

const deployEnvelopeFormat = `<?xml version="1.0" encoding="utf-8"?>
<soapenv:Envelope xmlns:soapenv="http://schemas.xmlsoap.org/soap/envelope/" xmlns:met="http://soap.sforce.com/2006/04/metadata">
  <soapenv:Header>
    <met:SessionHeader>
      <met:sessionId>%s</met:sessionId>
    </met:SessionHeader>
  </soapenv:Header>
  <soapenv:Body>
    <met:deploy>
      <met:ZipFile>%s</met:ZipFile>
      <met:DeployOptions>
        <met:rollbackOnError>true</met:rollbackOnError>
        <met:singlePackage>true</met:singlePackage>
      </met:DeployOptions>
    </met:deploy>
  </soapenv:Body>
</soapenv:Envelope>`

const checkDeployEnvelopeFormat = `<?xml version="1.0" encoding="utf-8"?>
<soapenv:Envelope xmlns:soapenv="http://schemas.xmlsoap.org/soap/envelope/" xmlns:met="http://soap.sforce.com/2006/04/metadata">
  <soapenv:Header>
    <met:SessionHeader>
      <met:sessionId>%s</met:sessionId>
    </met:SessionHeader>
  </soapenv:Header>
  <soapenv:Body>
    <met:checkDeployStatus>
      <met:asyncProcessId>%s</met:asyncProcessId>
      <met:includeDetails>false</met:includeDetails>
    </met:checkDeployStatus>
  </soapenv:Body>
</soapenv:Envelope>`

type deployEnvelope struct {
	Body struct {
		Fault *struct {
			Code    string `xml:"faultcode"`
			Message string `xml:"faultstring"`
		} `xml:"Fault"`
		DeployResponse *struct {
			Result struct {
				ID    string `xml:"id"`
				Done  bool   `xml:"done"`
				State string `xml:"state"`
			} `xml:"result"`
		} `xml:"deployResponse"`
		CheckDeployStatusResponse *struct {
			Result DeployStatus `xml:"result"`
		} `xml:"checkDeployStatusResponse"`
	} `xml:"Body"`
}

// DeployStatus is the state of an asynchronous metadata deploy.
type DeployStatus struct {
	ID           string `xml:"id"`
	Done         bool   `xml:"done"`
	Success      bool   `xml:"success"`
	Status       string `xml:"status"`
	ErrorMessage string `xml:"errorMessage"`
}

// Deploy submits a metadata package zip through the Metadata SOAP API
// and returns the async deploy id. The deploy continues server-side;
// poll CheckDeployStatus for the outcome.
func (s *Session) Deploy(ctx context.Context, zipBytes []byte) (string, error) {
	encoded := base64.StdEncoding.EncodeToString(zipBytes)
	body := fmt.Sprintf(deployEnvelopeFormat, xmlEscape(s.sessionID), encoded)
	envelope, err := s.metadataCall(ctx, body)
	if err != nil {
		return "", fmt.Errorf("metadata deploy: %w", err)
	}
	if envelope.Body.DeployResponse == nil || envelope.Body.DeployResponse.Result.ID == "" {
		return "", fmt.Errorf("metadata deploy: response missing async id")
	}
	id := envelope.Body.DeployResponse.Result.ID
	s.logger.Info("salesforce.metadata.deploy",
		"deploy_id", id,
		"package_size", humanize.Bytes(uint64(len(zipBytes))))
	return id, nil
}

// CheckDeployStatus fetches the current state of an async deploy.
func (s *Session) CheckDeployStatus(ctx context.Context, deployID string) (*DeployStatus, error) {
	body := fmt.Sprintf(checkDeployEnvelopeFormat, xmlEscape(s.sessionID), xmlEscape(deployID))
	envelope, err := s.metadataCall(ctx, body)
	if err != nil {
		return nil, fmt.Errorf("check deploy status: %w", err)
	}
	if envelope.Body.CheckDeployStatusResponse == nil {
		return nil, fmt.Errorf("check deploy status: malformed response")
	}
	status := envelope.Body.CheckDeployStatusResponse.Result
	return &status, nil
}

func (s *Session) metadataCall(ctx context.Context, body string) (*deployEnvelope, error) {
	endpoint := fmt.Sprintf("%s/services/Soap/m/%s", s.instanceURL, s.apiVersion)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build metadata request: %w", err)
	}
	req.Header.Set("Content-Type", "text/xml; charset=UTF-8")
	req.Header.Set("SOAPAction", `""`)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("metadata endpoint unreachable: %s", redactURLError(err))
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read metadata response: %w", err)
	}
	var envelope deployEnvelope
	if err := xml.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("metadata response not a SOAP envelope (status %d)", resp.StatusCode)
	}
	if envelope.Body.Fault != nil {
		return nil, &api.Failure{
			Kind:    api.KindOperationFailure,
			Message: "metadata api fault",
			Detail:  fmt.Sprintf("%s: %s", envelope.Body.Fault.Code, envelope.Body.Fault.Message),
		}
	}
	return &envelope, nil
}
