// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package wstrust

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	adalErrors "github.com/AzureAD/azure-activedirectory-library-for-go/apps/errors"
	"github.com/AzureAD/azure-activedirectory-library-for-go/apps/internal/logger"
	"github.com/AzureAD/azure-activedirectory-library-for-go/apps/internal/oauth/ops/authority"
	"github.com/AzureAD/azure-activedirectory-library-for-go/apps/internal/oauth/ops/internal/grant"
	"github.com/AzureAD/azure-activedirectory-library-for-go/apps/internal/oauth/ops/wstrust/defs"
	"github.com/kylelemons/godebug/pretty"
	"github.com/rs/zerolog"
)

type fakeXMLCaller struct {
	err      bool
	giveResp string

	gotAction   string
	gotEndpoint string
	gotBody     string
}

func (f *fakeXMLCaller) SOAPCall(ctx context.Context, endpoint, action string, headers http.Header, qv url.Values, body string, resp interface{}) error {
	if f.err {
		return errors.New("error")
	}
	f.gotEndpoint = endpoint
	f.gotAction = action
	f.gotBody = body
	return xml.Unmarshal([]byte(f.giveResp), resp)
}

const samlV1RSTR = `<s:Envelope xmlns:s="http://www.w3.org/2003/05/soap-envelope" xmlns:a="http://www.w3.org/2005/08/addressing">
<s:Body>
<trust:RequestSecurityTokenResponseCollection xmlns:trust="http://docs.oasis-open.org/ws-sx/ws-trust/200512">
<trust:RequestSecurityTokenResponse>
<trust:RequestedSecurityToken><saml:Assertion MajorVersion="1" MinorVersion="1" AssertionID="_1" xmlns:saml="urn:oasis:names:tc:SAML:1.0:assertion"><saml:Conditions/></saml:Assertion></trust:RequestedSecurityToken>
</trust:RequestSecurityTokenResponse>
</trust:RequestSecurityTokenResponseCollection>
</s:Body>
</s:Envelope>`

const samlV2RSTR = `<s:Envelope xmlns:s="http://www.w3.org/2003/05/soap-envelope">
<s:Body>
<trust:RequestSecurityTokenResponseCollection xmlns:trust="http://docs.oasis-open.org/ws-sx/ws-trust/200512">
<trust:RequestSecurityTokenResponse>
<trust:RequestedSecurityToken><Assertion ID="_2" Version="2.0" xmlns="urn:oasis:names:tc:SAML:2.0:assertion"><Issuer>fs</Issuer></Assertion></trust:RequestedSecurityToken>
</trust:RequestSecurityTokenResponse>
</trust:RequestSecurityTokenResponseCollection>
</s:Body>
</s:Envelope>`

const trust2005RSTR = `<s:Envelope xmlns:s="http://www.w3.org/2003/05/soap-envelope">
<s:Body>
<t:RequestSecurityTokenResponse xmlns:t="http://schemas.xmlsoap.org/ws/2005/02/trust">
<t:RequestedSecurityToken><saml:Assertion MajorVersion="1" xmlns:saml="urn:oasis:names:tc:SAML:1.0:assertion"/></t:RequestedSecurityToken>
</t:RequestSecurityTokenResponse>
</s:Body>
</s:Envelope>`

const faultRSTR = `<s:Envelope xmlns:s="http://www.w3.org/2003/05/soap-envelope">
<s:Body>
<s:Fault>
<s:Code><s:Value>s:Sender</s:Value><s:Subcode><s:Value xmlns:a="http://docs.oasis-open.org/ws-sx/ws-trust/200512">a:FailedAuthentication</s:Value></s:Subcode></s:Code>
<s:Reason><s:Text xml:lang="en-US">MSIS3127: The specified request failed.</s:Text></s:Reason>
</s:Fault>
</s:Body>
</s:Envelope>`

const emptyRSTR = `<s:Envelope xmlns:s="http://www.w3.org/2003/05/soap-envelope"><s:Body></s:Body></s:Envelope>`

func TestSAMLTokenInfo(t *testing.T) {
	authParams := authority.AuthParams{
		Username: "user@contoso.com",
		Password: "p&ssword",
		ClientID: "clientID",
	}
	endpoint13 := defs.Endpoint{Version: defs.Trust13, URL: "https://fs.contoso.com/adfs/services/trust/13/usernamemixed"}
	endpoint2005 := defs.Endpoint{Version: defs.Trust2005, URL: "https://fs.contoso.com/adfs/services/trust/2005/usernamemixed"}

	tests := []struct {
		desc       string
		commErr    bool
		endpoint   defs.Endpoint
		giveResp   string
		wantAction string
		want       SamlTokenInfo
		err        bool
		wantFault  bool
	}{
		{
			desc:     "Error: comm returns error",
			commErr:  true,
			endpoint: endpoint13,
			err:      true,
		},
		{
			desc:     "Error: unknown endpoint version",
			endpoint: defs.Endpoint{URL: "https://fs.contoso.com"},
			err:      true,
		},
		{
			desc:      "Error: SOAP fault",
			endpoint:  endpoint13,
			giveResp:  faultRSTR,
			err:       true,
			wantFault: true,
		},
		{
			desc:     "Error: no assertion",
			endpoint: endpoint13,
			giveResp: emptyRSTR,
			err:      true,
		},
		{
			desc:       "Success: SAML 1.1",
			endpoint:   endpoint13,
			giveResp:   samlV1RSTR,
			wantAction: "http://docs.oasis-open.org/ws-sx/ws-trust/200512/RST/Issue",
			want: SamlTokenInfo{
				AssertionType: grant.SAMLV1,
				Assertion:     `<saml:Assertion MajorVersion="1" MinorVersion="1" AssertionID="_1" xmlns:saml="urn:oasis:names:tc:SAML:1.0:assertion"><saml:Conditions/></saml:Assertion>`,
			},
		},
		{
			desc:       "Success: SAML 2.0",
			endpoint:   endpoint13,
			giveResp:   samlV2RSTR,
			wantAction: "http://docs.oasis-open.org/ws-sx/ws-trust/200512/RST/Issue",
			want: SamlTokenInfo{
				AssertionType: grant.SAMLV2,
				Assertion:     `<Assertion ID="_2" Version="2.0" xmlns="urn:oasis:names:tc:SAML:2.0:assertion"><Issuer>fs</Issuer></Assertion>`,
			},
		},
		{
			desc:       "Success: WS-Trust 2005",
			endpoint:   endpoint2005,
			giveResp:   trust2005RSTR,
			wantAction: "http://schemas.xmlsoap.org/ws/2005/02/trust/RST/Issue",
			want: SamlTokenInfo{
				AssertionType: grant.SAMLV1,
				Assertion:     `<saml:Assertion MajorVersion="1" xmlns:saml="urn:oasis:names:tc:SAML:1.0:assertion"/>`,
			},
		},
	}

	for _, test := range tests {
		fake := &fakeXMLCaller{err: test.commErr, giveResp: test.giveResp}
		client := Client{Comm: fake}

		got, err := client.GetSAMLTokenInfo(context.Background(), authParams, "", test.endpoint)
		switch {
		case err == nil && test.err:
			t.Errorf("TestSAMLTokenInfo(%s): got err == nil, want err != nil", test.desc)
			continue
		case err != nil && !test.err:
			t.Errorf("TestSAMLTokenInfo(%s): got err == %s, want err == nil", test.desc, err)
			continue
		case err != nil:
			var fault *adalErrors.WSTrustFaultError
			if test.wantFault {
				if !errors.As(err, &fault) {
					t.Errorf("TestSAMLTokenInfo(%s): got %T, want *errors.WSTrustFaultError", test.desc, err)
				} else if fault.Code != "a:FailedAuthentication" {
					t.Errorf("TestSAMLTokenInfo(%s): got fault code %q", test.desc, fault.Code)
				}
			}
			continue
		}

		if fake.gotAction != test.wantAction {
			t.Errorf("TestSAMLTokenInfo(%s): got action %s, want %s", test.desc, fake.gotAction, test.wantAction)
		}
		if fake.gotEndpoint != test.endpoint.URL {
			t.Errorf("TestSAMLTokenInfo(%s): got endpoint %s, want %s", test.desc, fake.gotEndpoint, test.endpoint.URL)
		}
		if !strings.Contains(fake.gotBody, "<wsse:Password>p&amp;ssword</wsse:Password>") {
			t.Errorf("TestSAMLTokenInfo(%s): RST did not carry the escaped password:\n%s", test.desc, fake.gotBody)
		}
		if !strings.Contains(fake.gotBody, "<wsa:Address>urn:federation:MicrosoftOnline</wsa:Address>") {
			t.Errorf("TestSAMLTokenInfo(%s): RST did not apply to the default audience", test.desc)
		}
		if diff := pretty.Compare(test.want, got); diff != "" {
			t.Errorf("TestSAMLTokenInfo(%s): -want/+got:\n%s", test.desc, diff)
		}
	}
}

func TestRSTIsLoggedWithoutCredentials(t *testing.T) {
	var buf bytes.Buffer
	z := zerolog.New(&buf).Level(zerolog.DebugLevel)

	client := Client{Comm: &fakeXMLCaller{giveResp: samlV1RSTR}, Logger: logger.New(&z)}
	authParams := authority.AuthParams{Username: "user@contoso.com", Password: "secret-password"}
	endpoint := defs.Endpoint{Version: defs.Trust13, URL: "https://fs.contoso.com/adfs/services/trust/13/usernamemixed"}

	if _, err := client.GetSAMLTokenInfo(context.Background(), authParams, "", endpoint); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "sending RST") {
		t.Fatalf("TestRSTIsLoggedWithoutCredentials: RST was not logged")
	}
	if strings.Contains(out, "secret-password") || strings.Contains(out, "user@contoso.com") {
		t.Errorf("TestRSTIsLoggedWithoutCredentials: credentials leaked into the log:\n%s", out)
	}
}

func TestNewEnvelope(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	env, err := defs.NewEnvelope(defs.Endpoint{Version: defs.Trust13, URL: "https://fs/13"}, AppliesTo, "u", "p", now)
	if err != nil {
		t.Fatal(err)
	}
	ts := env.Header.Security.Timestamp
	if ts.Created != "2024-05-01T10:00:00.000Z" || ts.Expires != "2024-05-01T10:10:00.000Z" {
		t.Errorf("TestNewEnvelope: got timestamp window %s - %s", ts.Created, ts.Expires)
	}
	if !strings.HasPrefix(env.Header.MessageID, "urn:uuid:") {
		t.Errorf("TestNewEnvelope: got message id %q", env.Header.MessageID)
	}
	other, err := defs.NewEnvelope(defs.Endpoint{Version: defs.Trust13, URL: "https://fs/13"}, AppliesTo, "u", "p", now)
	if err != nil {
		t.Fatal(err)
	}
	if other.Header.MessageID == env.Header.MessageID {
		t.Errorf("TestNewEnvelope: message ids must be unique")
	}
	s, err := env.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(s, `<s:Envelope xmlns:s="http://www.w3.org/2003/05/soap-envelope"`) {
		t.Errorf("TestNewEnvelope: unexpected envelope start: %s", s)
	}
}

func TestEndpointFromRealm(t *testing.T) {
	tests := []struct {
		realm authority.UserRealm
		want  defs.Endpoint
		err   bool
	}{
		{
			realm: authority.UserRealm{FederationActiveAuthURL: "https://fs/adfs/services/trust/13/usernamemixed"},
			want:  defs.Endpoint{Version: defs.Trust13, URL: "https://fs/adfs/services/trust/13/usernamemixed"},
		},
		{
			realm: authority.UserRealm{FederationActiveAuthURL: "https://fs/adfs/services/trust/2005/usernamemixed"},
			want:  defs.Endpoint{Version: defs.Trust2005, URL: "https://fs/adfs/services/trust/2005/usernamemixed"},
		},
		{
			realm: authority.UserRealm{},
			err:   true,
		},
	}
	for _, test := range tests {
		got, err := EndpointFromRealm(test.realm)
		if (err != nil) != test.err {
			t.Errorf("TestEndpointFromRealm(%s): got err == %v", test.realm.FederationActiveAuthURL, err)
			continue
		}
		if diff := pretty.Compare(test.want, got); diff != "" {
			t.Errorf("TestEndpointFromRealm: -want/+got:\n%s", diff)
		}
	}
}
