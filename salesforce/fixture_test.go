package salesforce

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pablo-camprubi/salesforce-mcp/credentials"
)

const testSessionID = "00Dxx0000001gPz!session"

// fakeOrg is an httptest-backed Salesforce endpoint: it answers the SOAP
// login handshake and lets tests register REST routes on its mux.
type fakeOrg struct {
	srv *httptest.Server
	mux *http.ServeMux
}

func newFakeOrg(t *testing.T) *fakeOrg {
	t.Helper()
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	org := &fakeOrg{srv: srv, mux: mux}
	mux.HandleFunc("/services/Soap/u/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/xml; charset=UTF-8")
		fmt.Fprintf(w, loginResponseFormat, srv.URL+"/services/Soap/u/58.0", testSessionID)
	})
	return org
}

const loginResponseFormat = `<?xml version="1.0" encoding="UTF-8"?>
<soapenv:Envelope xmlns:soapenv="http://schemas.xmlsoap.org/soap/envelope/">
  <soapenv:Body>
    <loginResponse>
      <result>
        <serverUrl>%s</serverUrl>
        <sessionId>%s</sessionId>
      </result>
    </loginResponse>
  </soapenv:Body>
</soapenv:Envelope>`

const loginFaultResponse = `<?xml version="1.0" encoding="UTF-8"?>
<soapenv:Envelope xmlns:soapenv="http://schemas.xmlsoap.org/soap/envelope/">
  <soapenv:Body>
    <soapenv:Fault>
      <faultcode>INVALID_LOGIN</faultcode>
      <faultstring>Invalid username, password, security token; or user locked out.</faultstring>
    </soapenv:Fault>
  </soapenv:Body>
</soapenv:Envelope>`

func (o *fakeOrg) connect(t *testing.T) *Session {
	t.Helper()
	s, err := Connect(context.Background(), credentials.Record{
		Username: "user@example.com",
		Password: "pw",
	}, Options{LoginURL: o.srv.URL})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}
