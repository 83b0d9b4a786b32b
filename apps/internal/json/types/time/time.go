// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

// Package time provides for custom types to translate time from JSON and other formats
// into time.Time objects.
package time

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var null = []byte("null")

// Unix provides a type that can marshal and unmarshal a string representation
// of the unix epoch into a time.Time object. Cache entities written by the browser
// libraries store these as strings ("1592049600"), brokers sometimes send numbers.
type Unix struct {
	T time.Time
}

// MarshalJSON implements encoding/json.MarshalJSON().
func (u Unix) MarshalJSON() ([]byte, error) {
	if u.T.IsZero() {
		return null, nil
	}
	return []byte(fmt.Sprintf("%q", strconv.FormatInt(u.T.Unix(), 10))), nil
}

// UnmarshalJSON implements encoding/json.UnmarshalJSON().
func (u *Unix) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(bytes.TrimSpace(b)), `"`)
	if s == "" || s == "null" {
		u.T = time.Time{}
		return nil
	}
	i, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("unix time(%s) could not be converted from string to int: %w", string(b), err)
	}
	u.T = time.Unix(i, 0).UTC()
	return nil
}

// Date handles the serialized form of a JavaScript Date, which is how an authentication
// result's expiry travels over the broker channel. RFC 3339 strings are the norm, but
// unix seconds (as a number or a string) are accepted.
type Date struct {
	T time.Time
}

// MarshalJSON implements encoding/json.MarshalJSON().
func (d Date) MarshalJSON() ([]byte, error) {
	if d.T.IsZero() {
		return null, nil
	}
	return []byte(strconv.Quote(d.T.UTC().Format(time.RFC3339Nano))), nil
}

// UnmarshalJSON implements encoding/json.UnmarshalJSON().
func (d *Date) UnmarshalJSON(b []byte) error {
	str := strings.Trim(string(bytes.TrimSpace(b)), `"`)
	if str == "" || str == "null" {
		d.T = time.Time{}
		return nil
	}

	if parsed, err := time.Parse(time.RFC3339Nano, str); err == nil {
		d.T = parsed
		return nil
	}

	i, err := strconv.ParseInt(str, 10, 64)
	if err != nil {
		return fmt.Errorf("date(%s) is neither RFC 3339 nor unix seconds: %w", string(b), err)
	}
	d.T = time.Unix(i, 0).UTC()
	return nil
}
