// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

// Package defs holds the XML definitions of the WS-Trust messages exchanged with
// federated identity providers.
package defs

import (
	"encoding/xml"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Version is the WS-Trust protocol version of an endpoint.
type Version int

const (
	TrustUnknown Version = iota
	Trust2005
	Trust13
)

func (v Version) String() string {
	switch v {
	case Trust2005:
		return "Trust2005"
	case Trust13:
		return "Trust13"
	}
	return "TrustUnknown"
}

// Endpoint is a WS-Trust username/password endpoint.
type Endpoint struct {
	Version Version
	URL     string
}

const (
	soapNS       = "http://www.w3.org/2003/05/soap-envelope"
	addressingNS = "http://www.w3.org/2005/08/addressing"
	utilityNS    = "http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-wssecurity-utility-1.0.xsd"
	secextNS     = "http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-wssecurity-secext-1.0.xsd"
	policyNS     = "http://schemas.xmlsoap.org/ws/2004/09/policy"
	anonymous    = "http://www.w3.org/2005/08/addressing/anonymous"

	timeFormat = "2006-01-02T15:04:05.000Z"
)

// trust holds the values that differ between WS-Trust versions.
type trust struct {
	action      string
	ns          string
	keyType     string
	requestType string
}

var trustVersions = map[Version]trust{
	Trust13: {
		action:      "http://docs.oasis-open.org/ws-sx/ws-trust/200512/RST/Issue",
		ns:          "http://docs.oasis-open.org/ws-sx/ws-trust/200512",
		keyType:     "http://docs.oasis-open.org/ws-sx/ws-trust/200512/Bearer",
		requestType: "http://docs.oasis-open.org/ws-sx/ws-trust/200512/Issue",
	},
	Trust2005: {
		action:      "http://schemas.xmlsoap.org/ws/2005/02/trust/RST/Issue",
		ns:          "http://schemas.xmlsoap.org/ws/2005/02/trust",
		keyType:     "http://schemas.xmlsoap.org/ws/2005/05/identity/NoProofKey",
		requestType: "http://schemas.xmlsoap.org/ws/2005/02/trust/Issue",
	},
}

// SOAPAction returns the SOAPAction header value for the endpoint's version.
func (e Endpoint) SOAPAction() (string, error) {
	t, ok := trustVersions[e.Version]
	if !ok {
		return "", fmt.Errorf("the SOAP endpoint for a wstrust call had an invalid version: %v", e.Version)
	}
	return t.action, nil
}

type mustUnderstand struct {
	Text           string `xml:",chardata"`
	MustUnderstand string `xml:"s:mustUnderstand,attr"`
}

type address struct {
	Address string `xml:"wsa:Address"`
}

type usernameToken struct {
	ID       string `xml:"wsu:Id,attr"`
	Username string `xml:"wsse:Username"`
	Password string `xml:"wsse:Password"`
}

type timestamp struct {
	ID      string `xml:"wsu:Id,attr"`
	Created string `xml:"wsu:Created"`
	Expires string `xml:"wsu:Expires"`
}

type security struct {
	MustUnderstand string        `xml:"s:mustUnderstand,attr"`
	Wsse           string        `xml:"xmlns:wsse,attr"`
	Timestamp      timestamp     `xml:"wsu:Timestamp"`
	UsernameToken  usernameToken `xml:"wsse:UsernameToken"`
}

type rstHeader struct {
	Action    mustUnderstand `xml:"wsa:Action"`
	MessageID string         `xml:"wsa:messageID"`
	ReplyTo   address        `xml:"wsa:ReplyTo"`
	To        mustUnderstand `xml:"wsa:To"`
	Security  security       `xml:"wsse:Security"`
}

type rstAppliesTo struct {
	Wsp               string  `xml:"xmlns:wsp,attr"`
	EndpointReference address `xml:"wsa:EndpointReference"`
}

type requestSecurityToken struct {
	Wst         string       `xml:"xmlns:wst,attr"`
	AppliesTo   rstAppliesTo `xml:"wsp:AppliesTo"`
	KeyType     string       `xml:"wst:KeyType"`
	RequestType string       `xml:"wst:RequestType"`
}

type rstBody struct {
	RequestSecurityToken requestSecurityToken `xml:"wst:RequestSecurityToken"`
}

// Envelope is a WS-Trust RequestSecurityToken message.
type Envelope struct {
	XMLName xml.Name  `xml:"s:Envelope"`
	S       string    `xml:"xmlns:s,attr"`
	Wsa     string    `xml:"xmlns:wsa,attr"`
	Wsu     string    `xml:"xmlns:wsu,attr"`
	Header  rstHeader `xml:"s:Header"`
	Body    rstBody   `xml:"s:Body"`
}

// NewEnvelope builds the RST for a username/password exchange against e. The security
// timestamp is valid from now for ten minutes.
func NewEnvelope(e Endpoint, appliesTo, username, password string, now time.Time) (Envelope, error) {
	t, ok := trustVersions[e.Version]
	if !ok {
		return Envelope{}, fmt.Errorf("the SOAP endpoint for a wstrust call had an invalid version: %v", e.Version)
	}
	now = now.UTC()

	env := Envelope{
		S:   soapNS,
		Wsa: addressingNS,
		Wsu: utilityNS,
	}
	env.Header.Action = mustUnderstand{Text: t.action, MustUnderstand: "1"}
	env.Header.MessageID = "urn:uuid:" + uuid.New().String()
	env.Header.ReplyTo.Address = anonymous
	env.Header.To = mustUnderstand{Text: e.URL, MustUnderstand: "1"}
	env.Header.Security = security{
		MustUnderstand: "1",
		Wsse:           secextNS,
		Timestamp: timestamp{
			ID:      "_0",
			Created: now.Format(timeFormat),
			Expires: now.Add(10 * time.Minute).Format(timeFormat),
		},
		UsernameToken: usernameToken{
			ID:       "ADALUsernameToken",
			Username: username,
			Password: password,
		},
	}
	env.Body.RequestSecurityToken = requestSecurityToken{
		Wst: t.ns,
		AppliesTo: rstAppliesTo{
			Wsp:               policyNS,
			EndpointReference: address{Address: appliesTo},
		},
		KeyType:     t.keyType,
		RequestType: t.requestType,
	}
	return env, nil
}

// Redacted returns a copy of the envelope with the credentials replaced, suitable for logging.
func (e Envelope) Redacted() Envelope {
	e.Header.Security.UsernameToken.Username = "[USERNAME]"
	e.Header.Security.UsernameToken.Password = "[PASSWORD]"
	return e
}

// Marshal returns the XML text of the envelope.
func (e Envelope) Marshal() (string, error) {
	b, err := xml.Marshal(e)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
