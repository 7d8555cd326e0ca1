package sfmcp

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// fakeOrg is an httptest-backed Salesforce endpoint that answers the
// SOAP login handshake and lets tests register REST routes. The session
// id embeds the username so handlers can tell callers apart.
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
		body, _ := io.ReadAll(r.Body)
		user := usernameFromEnvelope(string(body))
		w.Header().Set("Content-Type", "text/xml; charset=UTF-8")
		if user == "locked@example.com" {
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprint(w, fakeLoginFault)
			return
		}
		fmt.Fprintf(w, fakeLoginResponseFormat, srv.URL+"/services/Soap/u/58.0", "session-for-"+user)
	})
	return org
}

func usernameFromEnvelope(body string) string {
	const open, closing = "<urn:username>", "</urn:username>"
	start := strings.Index(body, open)
	if start < 0 {
		return ""
	}
	rest := body[start+len(open):]
	end := strings.Index(rest, closing)
	if end < 0 {
		return ""
	}
	return rest[:end]
}

const fakeLoginResponseFormat = `<?xml version="1.0" encoding="UTF-8"?>
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

const fakeLoginFault = `<?xml version="1.0" encoding="UTF-8"?>
<soapenv:Envelope xmlns:soapenv="http://schemas.xmlsoap.org/soap/envelope/">
  <soapenv:Body>
    <soapenv:Fault>
      <faultcode>INVALID_LOGIN</faultcode>
      <faultstring>Invalid username, password, security token; or user locked out.</faultstring>
    </soapenv:Fault>
  </soapenv:Body>
</soapenv:Envelope>`
