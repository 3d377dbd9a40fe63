// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package time

import (
	"encoding/json"
	"testing"
	"time"
)

func TestUnmarshal(t *testing.T) {
	tests := []struct {
		desc        string
		input       string
		wantExpIn   Seconds
		wantExpOn   time.Time
		wantCreated time.Time
		err         bool
	}{
		{
			desc:      "strings",
			input:     `{"expires_in": "3599", "expires_on": "1700000000"}`,
			wantExpIn: Seconds{Set: true, N: 3599},
			wantExpOn: time.Unix(1700000000, 0),
		},
		{
			desc:        "numbers",
			input:       `{"expires_in": 3599, "expires_on": 1700000000, "created_on": 1699996400}`,
			wantExpIn:   Seconds{Set: true, N: 3599},
			wantExpOn:   time.Unix(1700000000, 0),
			wantCreated: time.Unix(1699996400, 0),
		},
		{
			desc:      "float",
			input:     `{"expires_in": "3599.0"}`,
			wantExpIn: Seconds{Set: true, N: 3599},
		},
		{
			desc:  "missing",
			input: `{}`,
		},
		{
			desc:  "empty string",
			input: `{"expires_in": ""}`,
		},
		{
			desc:  "Error: garbage",
			input: `{"expires_in": "soon"}`,
			err:   true,
		},
	}

	for _, test := range tests {
		got := struct {
			ExpiresIn Seconds `json:"expires_in"`
			ExpiresOn Unix    `json:"expires_on"`
			CreatedOn Unix    `json:"created_on"`
		}{}
		err := json.Unmarshal([]byte(test.input), &got)
		switch {
		case err == nil && test.err:
			t.Errorf("TestUnmarshal(%s): got err == nil, want err != nil", test.desc)
			continue
		case err != nil && !test.err:
			t.Errorf("TestUnmarshal(%s): got err == %s, want err == nil", test.desc, err)
			continue
		case err != nil:
			continue
		}
		if got.ExpiresIn != test.wantExpIn {
			t.Errorf("TestUnmarshal(%s): got expires_in %+v, want %+v", test.desc, got.ExpiresIn, test.wantExpIn)
		}
		if !got.ExpiresOn.T.Equal(test.wantExpOn) {
			t.Errorf("TestUnmarshal(%s): got expires_on %v, want %v", test.desc, got.ExpiresOn.T, test.wantExpOn)
		}
		if !got.CreatedOn.T.Equal(test.wantCreated) {
			t.Errorf("TestUnmarshal(%s): got created_on %v, want %v", test.desc, got.CreatedOn.T, test.wantCreated)
		}
	}
}

func TestSecondsDuration(t *testing.T) {
	if got := (Seconds{N: 5}).Duration(); got != 5*time.Second {
		t.Errorf("TestSecondsDuration: got %v, want 5s", got)
	}
}
