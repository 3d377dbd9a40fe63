// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package errors

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
)

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		desc string
		err  error
		want string
	}{
		{
			desc: "required argument",
			err:  Required("userCodeInfo"),
			want: "The userCodeInfo parameter is required.",
		},
		{
			desc: "argument with message",
			err:  &ArgumentError{Name: "interval", Msg: "invalid refresh interval"},
			want: "invalid refresh interval",
		},
		{
			desc: "ambiguous",
			err:  ErrAmbiguousMatch,
			want: "More than one token matches the criteria. The result is ambiguous.",
		},
		{
			desc: "cancelled",
			err:  ErrPollingCancelled,
			want: "Polling_Request_Cancelled",
		},
		{
			desc: "protocol",
			err:  &ProtocolError{Op: "Get Token", StatusCode: 503, Host: "login.windows.net", Body: "down"},
			want: "Get Token request returned http error: 503 and server response: down (host login.windows.net)",
		},
		{
			desc: "oauth",
			err:  &OAuthError{StatusCode: 400, Code: "invalid_grant", Description: "AADSTS70000", Host: "login.windows.net"},
			want: "Get Token request returned http error: 400 and server response: invalid_grant: AADSTS70000 (host login.windows.net)",
		},
	}

	for _, test := range tests {
		if got := test.err.Error(); got != test.want {
			t.Errorf("TestErrorMessages(%s): got %q, want %q", test.desc, got, test.want)
		}
	}
}

func TestIsOAuthCode(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", &OAuthError{StatusCode: 400, Code: "authorization_pending"})
	if !IsOAuthCode(err, "authorization_pending") {
		t.Errorf("TestIsOAuthCode: wrapped authorization_pending was not detected")
	}
	if IsOAuthCode(err, "slow_down") {
		t.Errorf("TestIsOAuthCode: matched the wrong code")
	}
	if IsOAuthCode(errors.New("authorization_pending"), "authorization_pending") {
		t.Errorf("TestIsOAuthCode: a plain error must not match")
	}
}

func TestVerbose(t *testing.T) {
	req, err := http.NewRequest(http.MethodPost, "https://login.windows.net/tenant/oauth2/token", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp := &http.Response{
		StatusCode: http.StatusBadRequest,
		Body:       io.NopCloser(strings.NewReader("body")),
		Request:    req,
	}
	callErr := CallErr{Req: req, Resp: resp, Err: errors.New("http call(https://login.windows.net)(POST) error: reply status code was 400")}

	wrapped := fmt.Errorf("outer: %w", callErr)
	got := Verbose(wrapped)
	if !strings.Contains(got, "Request:") || !strings.Contains(got, "Response:") {
		t.Errorf("TestVerbose: got %q, want request and response dumps", got)
	}
	if resp.Request == nil {
		t.Errorf("TestVerbose: Verbose() must not mutate the caller's response")
	}

	if got := Verbose(ErrNotFound); got != ErrNotFound.Error() {
		t.Errorf("TestVerbose: got %q, want %q", got, ErrNotFound.Error())
	}
}
