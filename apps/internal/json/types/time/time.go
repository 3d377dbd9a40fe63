// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

// Package time provides for custom types to translate time from JSON into Go values.
// Token endpoints send numeric fields either as JSON numbers or as strings, so every
// type here accepts both.
package time

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

func parseInt(b []byte) (int64, bool, error) {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		return 0, false, nil
	}
	i, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		// Some endpoints send floating point values, e.g. "3599.0".
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			return 0, false, fmt.Errorf("value(%s) could not be converted to an integer: %w", string(b), err)
		}
		i = int64(f)
	}
	return i, true, nil
}

// Unix provides a type that can marshal and unmarshal a string or numeric representation
// of the unix epoch into a time.Time object.
type Unix struct {
	T time.Time
}

// MarshalJSON implements encoding/json.MarshalJSON().
func (u Unix) MarshalJSON() ([]byte, error) {
	if u.T.IsZero() {
		return []byte(`""`), nil
	}
	return []byte(fmt.Sprintf("%q", strconv.FormatInt(u.T.Unix(), 10))), nil
}

// UnmarshalJSON implements encoding/json.UnmarshalJSON().
func (u *Unix) UnmarshalJSON(b []byte) error {
	i, ok, err := parseInt(b)
	if err != nil {
		return fmt.Errorf("unix time: %w", err)
	}
	if !ok {
		u.T = time.Time{}
		return nil
	}
	u.T = time.Unix(i, 0)
	return nil
}

// Seconds is a count of seconds, such as expires_in, sent as a number or a string.
type Seconds struct {
	// Set is true when the field was present.
	Set bool
	N   int64
}

// Duration returns the value as a time.Duration.
func (s Seconds) Duration() time.Duration {
	return time.Duration(s.N) * time.Second
}

// MarshalJSON implements encoding/json.MarshalJSON().
func (s Seconds) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatInt(s.N, 10)), nil
}

// UnmarshalJSON implements encoding/json.UnmarshalJSON().
func (s *Seconds) UnmarshalJSON(b []byte) error {
	i, ok, err := parseInt(b)
	if err != nil {
		return fmt.Errorf("seconds: %w", err)
	}
	s.N, s.Set = i, ok
	return nil
}
