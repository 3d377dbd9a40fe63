// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package requests

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/AzureAD/azure-activedirectory-library-for-go/apps/cache"
	"github.com/AzureAD/azure-activedirectory-library-for-go/apps/errors"
	"github.com/AzureAD/azure-activedirectory-library-for-go/apps/internal/logger"
)

const (
	authorizationPending = "authorization_pending"
	slowDown             = "slow_down"

	// slowDownStep is added to the polling interval each time the server asks us to slow down.
	slowDownStep = 5
)

// UserCodeInfo is the user code handed out by the device code endpoint. The caller shows
// Message to the user and passes the value to AcquireTokenWithDeviceCode.
type UserCodeInfo struct {
	DeviceCode      string `json:"device_code"`
	UserCode        string `json:"user_code"`
	VerificationURL string `json:"verification_url"`
	// Interval is the number of seconds between polls.
	Interval int `json:"interval"`
	// ExpiresIn is the number of seconds the device code is valid for.
	ExpiresIn int    `json:"expires_in"`
	Message   string `json:"message"`
}

// validateForCancel checks the fields a cancel needs, which is only the device code.
func (u *UserCodeInfo) validateForCancel() error {
	if u == nil {
		return &errors.ArgumentError{Name: "userCodeInfo", Msg: "The userCodeInfo parameter is required"}
	}
	if u.DeviceCode == "" {
		return &errors.ArgumentError{Name: "userCodeInfo", Msg: "The userCodeInfo is missing device_code"}
	}
	return nil
}

func (u *UserCodeInfo) validate() error {
	if err := u.validateForCancel(); err != nil {
		return err
	}
	if u.ExpiresIn == 0 {
		return &errors.ArgumentError{Name: "userCodeInfo", Msg: "The userCodeInfo is missing expires_in"}
	}
	// An absent interval decodes as 0, so it is reported the same way as an explicit 0.
	if u.Interval < 1 {
		return &errors.ArgumentError{Name: "interval", Msg: "invalid refresh interval"}
	}
	return nil
}

// DeviceCodeState is the state of a device code poll.
type DeviceCodeState int

const (
	Idle DeviceCodeState = iota
	Polling
	Succeeded
	Failed
	Cancelled
	Expired
)

func (s DeviceCodeState) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Polling:
		return "Polling"
	case Succeeded:
		return "Succeeded"
	case Failed:
		return "Failed"
	case Cancelled:
		return "Cancelled"
	case Expired:
		return "Expired"
	}
	return fmt.Sprintf("DeviceCodeState(%d)", int(s))
}

// pendingRequest is a device code that is being polled, or was polled and has not
// expired yet.
type pendingRequest struct {
	mu      sync.Mutex
	state   DeviceCodeState
	cancel  chan struct{}
	expires time.Time
}

// finish moves a polling request to a terminal state. It reports false when the
// request already left Polling, which can only mean it was cancelled.
func (p *pendingRequest) finish(to DeviceCodeState) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != Polling {
		return false
	}
	p.state = to
	return true
}

func (p *pendingRequest) State() DeviceCodeState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

type pollRegistry struct {
	mu      sync.Mutex
	pending map[string]*pendingRequest
}

func newPollRegistry() *pollRegistry {
	return &pollRegistry{pending: map[string]*pendingRequest{}}
}

// register starts tracking deviceCode. A code that is still polling can not be registered
// again. A code whose poll has ended is replaced, and ended polls of expired codes are dropped.
func (r *pollRegistry) register(deviceCode string, expires time.Time) (*pendingRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.pending[deviceCode]; ok && p.State() == Polling {
		return nil, errors.ErrDeviceCodePending
	}
	now := time.Now()
	for code, p := range r.pending {
		if p.State() != Polling && now.After(p.expires) {
			delete(r.pending, code)
		}
	}
	p := &pendingRequest{state: Polling, cancel: make(chan struct{}), expires: expires}
	r.pending[deviceCode] = p
	return p, nil
}

func (r *pollRegistry) get(deviceCode string) (*pendingRequest, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pending[deviceCode]
	return p, ok
}

// GetUserCode asks the authority for a user code. language is sent as the mkt parameter
// and may be empty.
func (r *TokenRequest) GetUserCode(ctx context.Context, language string) (UserCodeInfo, error) {
	r.log(ctx, "getting user code")
	params := r.authParams()
	params.Language = language

	dc, err := r.ctx.protocol.DeviceCode(ctx, params)
	if err != nil {
		return UserCodeInfo{}, err
	}
	return UserCodeInfo{
		DeviceCode:      dc.DeviceCode,
		UserCode:        dc.UserCode,
		VerificationURL: dc.VerificationURL,
		Interval:        int(dc.Interval.N),
		ExpiresIn:       int(dc.ExpiresIn.N),
		Message:         dc.Message,
	}, nil
}

// AcquireTokenWithDeviceCode polls the token endpoint until the user completes sign in
// with info's user code. It blocks until the token is issued, the code expires, the
// server reports an error, ctx is done, or CancelRequestToGetTokenWithDeviceCode is called.
func (r *TokenRequest) AcquireTokenWithDeviceCode(ctx context.Context, info *UserCodeInfo) (cache.Entry, error) {
	if err := info.validate(); err != nil {
		return cache.Entry{}, err
	}
	p, err := r.ctx.polls.register(info.DeviceCode, time.Now().Add(time.Duration(info.ExpiresIn)*r.ctx.PollUnit))
	if err != nil {
		return cache.Entry{}, err
	}

	r.log(ctx, "polling for device code token", logger.Field("interval", info.Interval), logger.Field("expires_in", info.ExpiresIn))
	return r.poll(ctx, info, p)
}

func (r *TokenRequest) poll(ctx context.Context, info *UserCodeInfo, p *pendingRequest) (cache.Entry, error) {
	unit := r.ctx.PollUnit
	interval := time.Duration(info.Interval) * unit
	deadline := time.Now().Add(time.Duration(info.ExpiresIn) * unit)
	maxPolls := info.ExpiresIn / info.Interval
	if maxPolls < 1 {
		maxPolls = 1
	}

	params := r.authParams()
	d := r.driver(nil)
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for attempt := 0; attempt < maxPolls; attempt++ {
		if attempt > 0 {
			if time.Now().Add(interval).After(deadline) {
				break
			}
			timer.Reset(interval)
		}
		select {
		case <-ctx.Done():
			if !p.finish(Failed) {
				return cache.Entry{}, errors.ErrPollingCancelled
			}
			return cache.Entry{}, ctx.Err()
		case <-p.cancel:
			return cache.Entry{}, errors.ErrPollingCancelled
		case <-timer.C:
		}
		// Cancellation may have raced the timer.
		select {
		case <-p.cancel:
			return cache.Entry{}, errors.ErrPollingCancelled
		default:
		}

		resp, err := r.ctx.protocol.DeviceCodeToken(ctx, params, info.DeviceCode)
		switch {
		case err == nil:
			p.mu.Lock()
			if p.state != Polling {
				p.mu.Unlock()
				r.log(ctx, "device code token arrived after cancellation, discarding it")
				return cache.Entry{}, errors.ErrPollingCancelled
			}
			entry, err := d.ManageCache(ctx, resp)
			if err != nil {
				p.state = Failed
			} else {
				p.state = Succeeded
			}
			p.mu.Unlock()
			return entry, err
		case errors.IsOAuthCode(err, authorizationPending):
			r.ctx.log.Log(ctx, logger.Debug, "authorization pending")
		case errors.IsOAuthCode(err, slowDown):
			interval += slowDownStep * unit
			r.ctx.log.Log(ctx, logger.Debug, "slowing down device code polling", logger.Field("interval", interval.String()))
		default:
			if !p.finish(Failed) {
				return cache.Entry{}, errors.ErrPollingCancelled
			}
			return cache.Entry{}, err
		}
	}

	if !p.finish(Expired) {
		return cache.Entry{}, errors.ErrPollingCancelled
	}
	return cache.Entry{}, errors.ErrPollingExpired
}

// CancelRequestToGetTokenWithDeviceCode stops the poll for info's device code. The
// blocked AcquireTokenWithDeviceCode call returns errors.ErrPollingCancelled.
func (c *Context) CancelRequestToGetTokenWithDeviceCode(info *UserCodeInfo) error {
	if err := info.validateForCancel(); err != nil {
		return err
	}
	p, ok := c.polls.get(info.DeviceCode)
	if !ok {
		return errors.ErrNoPendingRequest
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != Polling {
		return errors.ErrNoPendingRequest
	}
	p.state = Cancelled
	close(p.cancel)
	return nil
}

// DeviceCodeState returns the state of the poll for deviceCode. A finished poll keeps
// reporting how it ended until the code expires or is polled again. Idle means the
// code is unknown.
func (c *Context) DeviceCodeState(deviceCode string) DeviceCodeState {
	p, ok := c.polls.get(deviceCode)
	if !ok {
		return Idle
	}
	return p.State()
}
