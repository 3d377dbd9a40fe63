// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

// Package mock provides a scripted HTTP client and canned server bodies for tests.
package mock

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

type response struct {
	body     []byte
	callback func(*http.Request)
	code     int
	headers  http.Header
	err      error
}

type responseOption interface {
	apply(*response)
}

type respOpt func(*response)

func (fn respOpt) apply(r *response) {
	fn(r)
}

// WithBody sets the HTTP response's body to the specified value.
func WithBody(b []byte) responseOption {
	return respOpt(func(r *response) {
		r.body = b
	})
}

// WithCallback sets a callback to invoke before returning the response.
func WithCallback(callback func(*http.Request)) responseOption {
	return respOpt(func(r *response) {
		r.callback = callback
	})
}

// WithHTTPHeader sets the HTTP headers of the response to the specified value.
func WithHTTPHeader(header http.Header) responseOption {
	return respOpt(func(r *response) {
		r.headers = header
	})
}

// WithHTTPStatusCode sets the HTTP statusCode of response to the specified value.
func WithHTTPStatusCode(statusCode int) responseOption {
	return respOpt(func(r *response) {
		r.code = statusCode
	})
}

// WithTransportError makes Do fail with err instead of returning a response.
func WithTransportError(err error) responseOption {
	return respOpt(func(r *response) {
		r.err = err
	})
}

// Client is a mock HTTP client that returns a sequence of responses. Use AppendResponse to specify the sequence.
// It is safe for concurrent use.
type Client struct {
	mu       sync.Mutex
	resp     []response
	requests []*http.Request
	// Repeat keeps returning the last response once the sequence is exhausted.
	Repeat bool
}

func NewClient() *Client {
	return &Client{}
}

func (c *Client) AppendResponse(opts ...responseOption) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r := response{code: http.StatusOK, headers: http.Header{}}
	for _, o := range opts {
		o.apply(&r)
	}
	c.resp = append(c.resp, r)
}

func (c *Client) Do(req *http.Request) (*http.Response, error) {
	c.mu.Lock()
	if len(c.resp) == 0 {
		c.mu.Unlock()
		panic(fmt.Sprintf(`no response for "%s"`, req.URL.String()))
	}
	resp := c.resp[0]
	if len(c.resp) > 1 || !c.Repeat {
		c.resp = c.resp[1:]
	}
	c.requests = append(c.requests, req)
	c.mu.Unlock()

	if resp.callback != nil {
		resp.callback(req)
	}
	if resp.err != nil {
		return nil, resp.err
	}
	res := http.Response{Header: resp.headers, StatusCode: resp.code, Request: req}
	res.Body = io.NopCloser(bytes.NewReader(resp.body))
	return &res, nil
}

// CloseIdleConnections implements the comm.HTTPClient interface
func (*Client) CloseIdleConnections() {}

// Requests returns the requests received so far.
func (c *Client) Requests() []*http.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*http.Request(nil), c.requests...)
}

// Pending is the number of scripted responses not yet returned.
func (c *Client) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.resp)
}

// TokenBody describes a token endpoint reply.
type TokenBody struct {
	AccessToken  string
	RefreshToken string
	IDToken      string
	Resource     string
	ExpiresIn    int
}

// Bytes renders the reply the way the v1 endpoint does, with numbers sent as strings.
func (b TokenBody) Bytes() []byte {
	m := map[string]string{
		"token_type":   "Bearer",
		"access_token": b.AccessToken,
		"expires_in":   fmt.Sprint(b.ExpiresIn),
		"expires_on":   fmt.Sprint(time.Now().Add(time.Duration(b.ExpiresIn) * time.Second).Unix()),
	}
	if b.RefreshToken != "" {
		m["refresh_token"] = b.RefreshToken
	}
	if b.IDToken != "" {
		m["id_token"] = b.IDToken
	}
	if b.Resource != "" {
		m["resource"] = b.Resource
	}
	out, _ := json.Marshal(m)
	return out
}

// GetAccessTokenBody returns a token reply for resource that expires in an hour.
func GetAccessTokenBody(accessToken, refreshToken, idToken, resource string) []byte {
	return TokenBody{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		IDToken:      idToken,
		Resource:     resource,
		ExpiresIn:    3600,
	}.Bytes()
}

// GetIDToken returns an unsigned id_token with the given claims.
func GetIDToken(claims map[string]interface{}) string {
	now := time.Now().Unix()
	payload := map[string]interface{}{"iat": now, "exp": now + 3600}
	for k, v := range claims {
		payload[k] = v
	}
	b, _ := json.Marshal(payload)
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"typ":"JWT","alg":"none"}`))
	sig := base64.RawURLEncoding.EncodeToString([]byte("signature"))
	return fmt.Sprintf("%s.%s.%s", header, base64.RawURLEncoding.EncodeToString(b), sig)
}

// GetOAuthErrorBody returns an OAuth2 error reply.
func GetOAuthErrorBody(code, description string) []byte {
	b, _ := json.Marshal(map[string]interface{}{
		"error":             code,
		"error_description": description,
		"error_codes":       []int{70016},
		"correlation_id":    "corr",
	})
	return b
}

// GetDeviceCodeBody returns a device code endpoint reply.
func GetDeviceCodeBody(deviceCode, userCode string, expiresIn, interval int) []byte {
	b, _ := json.Marshal(map[string]interface{}{
		"device_code":      deviceCode,
		"user_code":        userCode,
		"verification_url": "https://microsoft.com/devicelogin",
		"expires_in":       fmt.Sprint(expiresIn),
		"interval":         fmt.Sprint(interval),
		"message":          fmt.Sprintf("To sign in, use a web browser to open the page https://microsoft.com/devicelogin and enter the code %s to authenticate.", userCode),
	})
	return b
}

// GetUserRealmBody returns a user realm reply. A federated realm advertises activeAuthURL.
func GetUserRealmBody(accountType, domain, activeAuthURL string) []byte {
	m := map[string]string{
		"ver":                 "1.0",
		"account_type":        accountType,
		"domain_name":         domain,
		"cloud_instance_name": "microsoftonline.com",
		"cloud_audience_urn":  "urn:federation:MicrosoftOnline",
	}
	if activeAuthURL != "" {
		m["federation_protocol"] = "WSTrust"
		m["federation_metadata_url"] = "https://sts.example.com/adfs/services/trust/mex"
		m["federation_active_auth_url"] = activeAuthURL
	}
	b, _ := json.Marshal(m)
	return b
}
