// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package defs

import "encoding/xml"

// SAMLDefinitions is the RSTR envelope returned by a WS-Trust endpoint. Only the
// parts needed to extract the assertion or a fault are decoded.
type SAMLDefinitions struct {
	XMLName xml.Name `xml:"Envelope"`
	Text    string   `xml:",chardata"`
	S       string   `xml:"s,attr"`
	A       string   `xml:"a,attr"`
	U       string   `xml:"u,attr"`
	Header  Header   `xml:"Header"`
	Body    Body     `xml:"Body"`
}

type Header struct {
	Text   string `xml:",chardata"`
	Action struct {
		Text           string `xml:",chardata"`
		MustUnderstand string `xml:"mustUnderstand,attr"`
	} `xml:"Action"`
	Security struct {
		Text           string `xml:",chardata"`
		MustUnderstand string `xml:"mustUnderstand,attr"`
		O              string `xml:"o,attr"`
		Timestamp      struct {
			Text    string `xml:",chardata"`
			ID      string `xml:"Id,attr"`
			Created Text   `xml:"Created"`
			Expires Text   `xml:"Expires"`
		} `xml:"Timestamp"`
	} `xml:"Security"`
}

type Body struct {
	Text                                   string                                 `xml:",chardata"`
	Fault                                  *Fault                                 `xml:"Fault"`
	RequestSecurityTokenResponseCollection RequestSecurityTokenResponseCollection `xml:"RequestSecurityTokenResponseCollection"`
	// RequestSecurityTokenResponse is used by WS-Trust 2005 endpoints, which do not wrap the response.
	RequestSecurityTokenResponse []RequestSecurityTokenResponse `xml:"RequestSecurityTokenResponse"`
}

// Fault is a SOAP 1.2 fault.
type Fault struct {
	Code struct {
		Value   string `xml:"Value"`
		Subcode struct {
			Value string `xml:"Value"`
		} `xml:"Subcode"`
	} `xml:"Code"`
	Reason struct {
		Text []string `xml:"Text"`
	} `xml:"Reason"`
}

type RequestSecurityTokenResponseCollection struct {
	Text                         string                         `xml:",chardata"`
	Trust                        string                         `xml:"trust,attr"`
	RequestSecurityTokenResponse []RequestSecurityTokenResponse `xml:"RequestSecurityTokenResponse"`
}

type RequestSecurityTokenResponse struct {
	Text                   string                 `xml:",chardata"`
	Lifetime               Lifetime               `xml:"Lifetime"`
	AppliesTo              AppliesTo              `xml:"AppliesTo"`
	RequestedSecurityToken RequestedSecurityToken `xml:"RequestedSecurityToken"`
	TokenType              Text                   `xml:"TokenType"`
	RequestType            Text                   `xml:"RequestType"`
	KeyType                Text                   `xml:"KeyType"`
}

type Lifetime struct {
	Text    string       `xml:",chardata"`
	Created WSUTimestamp `xml:"Created"`
	Expires WSUTimestamp `xml:"Expires"`
}

type AppliesTo struct {
	Text              string `xml:",chardata"`
	Wsp               string `xml:"wsp,attr"`
	EndpointReference struct {
		Text    string `xml:",chardata"`
		Wsa     string `xml:"wsa,attr"`
		Address Text   `xml:"Address"`
	} `xml:"EndpointReference"`
}

type RequestedSecurityToken struct {
	Text            string    `xml:",chardata"`
	AssertionRawXML string    `xml:",innerxml"`
	Assertion       Assertion `xml:"Assertion"`
}

type Assertion struct {
	XMLName      xml.Name
	Text         string `xml:",chardata"`
	MajorVersion string `xml:"MajorVersion,attr"`
	MinorVersion string `xml:"MinorVersion,attr"`
	AssertionID  string `xml:"AssertionID,attr"`
	Issuer       string `xml:"Issuer,attr"`
	IssueInstant string `xml:"IssueInstant,attr"`
	Saml         string `xml:"saml,attr"`
}

type WSUTimestamp struct {
	Text string `xml:",chardata"`
	Wsu  string `xml:"wsu,attr"`
}

type Text struct {
	Text string `xml:",chardata"`
}
