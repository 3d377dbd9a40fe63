// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

// Package errors holds the error types returned by this module. Callers test for
// sentinel values with errors.Is() and for the structured types with errors.As().
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/kylelemons/godebug/pretty"
)

var prettyConf = &pretty.Config{IncludeUnexported: false, SkipZeroFields: true, TrackCycles: true}

type verboser interface {
	Verbose() string
}

// Verbose prints the most verbose error that the error message has.
func Verbose(err error) string {
	var v verboser
	if errors.As(err, &v) {
		return v.Verbose()
	}
	return err.Error()
}

// New is equivalent to errors.New().
func New(text string) error {
	return errors.New(text)
}

var (
	// ErrAmbiguousMatch is returned when more than one cached token satisfies a lookup.
	ErrAmbiguousMatch = errors.New("More than one token matches the criteria. The result is ambiguous.")

	// ErrNotFound is returned by cache only lookups that find nothing.
	ErrNotFound = errors.New("entry not found in cache")

	// ErrPollingCancelled is returned by a device code poll that was cancelled.
	ErrPollingCancelled = errors.New("Polling_Request_Cancelled")

	// ErrPollingExpired is returned when the device code expired before the user signed in.
	ErrPollingExpired = errors.New("the device code expired before the user completed sign in")

	// ErrNoPendingRequest is returned when cancelling a device code that is not being polled.
	ErrNoPendingRequest = errors.New("No acquireTokenWithDeviceCodeRequest existed to be cancelled")

	// ErrDeviceCodePending is returned when a device code is already being polled.
	ErrDeviceCodePending = errors.New("a token request for this device code is already in progress")
)

// ArgumentError reports a missing or malformed caller supplied value.
type ArgumentError struct {
	// Name is the name of the offending parameter.
	Name string
	// Msg overrides the default message.
	Msg string
}

func (e *ArgumentError) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	return fmt.Sprintf("The %s parameter is required.", e.Name)
}

// Required returns an *ArgumentError for a missing parameter.
func Required(name string) error {
	return &ArgumentError{Name: name}
}

// ParseError is returned when a server response cannot be decoded.
type ParseError struct {
	Op  string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ValidationError is returned when a 2xx token response lacks required fields.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

// ProtocolError is a non-2xx HTTP response that did not carry an OAuth error body.
type ProtocolError struct {
	// Op names the request, for example "Get Token".
	Op         string
	StatusCode int
	Host       string
	Body       string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s request returned http error: %d and server response: %s (host %s)", e.Op, e.StatusCode, e.Body, e.Host)
}

// OAuthError is a non-2xx response carrying an OAuth2 error body.
type OAuthError struct {
	// Op names the request, "Get Token" when empty.
	Op            string
	StatusCode    int
	Code          string
	Description   string
	ErrorCodes    []int
	CorrelationID string
	Host          string
}

func (e *OAuthError) Error() string {
	op := e.Op
	if op == "" {
		op = "Get Token"
	}
	b := strings.Builder{}
	fmt.Fprintf(&b, "%s request returned http error: %d and server response: %s", op, e.StatusCode, e.Code)
	if e.Description != "" {
		fmt.Fprintf(&b, ": %s", e.Description)
	}
	if e.Host != "" {
		fmt.Fprintf(&b, " (host %s)", e.Host)
	}
	return b.String()
}

// WSTrustFaultError is a SOAP fault returned by a WS-Trust endpoint.
type WSTrustFaultError struct {
	Code   string
	Reason string
}

func (e *WSTrustFaultError) Error() string {
	return fmt.Sprintf("server returned a WS-Trust fault: %s: %s", e.Code, e.Reason)
}

// IsOAuthCode reports whether err is an *OAuthError with the given code.
func IsOAuthCode(err error, code string) bool {
	var oe *OAuthError
	if errors.As(err, &oe) {
		return oe.Code == code
	}
	return false
}

// CallErr represents an HTTP call error. Has a Verbose() method that allows getting the
// http.Request and Response objects. Implements error.
type CallErr struct {
	Req *http.Request
	// Resp contains response body
	Resp *http.Response
	Err  error
}

// Error implements error.Error().
func (e CallErr) Error() string {
	return e.Err.Error()
}

// Unwrap returns the wrapped error.
func (e CallErr) Unwrap() error {
	return e.Err
}

// Verbose prints a verbose error message with the request or response.
func (e CallErr) Verbose() string {
	if e.Resp != nil {
		resp := *e.Resp
		resp.Request = nil // pulls in TLS state we don't need
		resp.TLS = nil
		e.Resp = &resp
	}
	return fmt.Sprintf("%s:\nRequest:\n%s\nResponse:\n%s", e.Err, prettyConf.Sprint(e.Req), prettyConf.Sprint(e.Resp))
}
