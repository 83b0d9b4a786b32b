// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

// Package errors holds the error kinds returned when a broker response is processed.
// Callers should branch on kind with errors.As / errors.Is rather than on messages.
package errors

import (
	"encoding/json"
	"errors"
	"fmt"
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

// Is is equivalent to errors.Is().
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As is equivalent to errors.As().
func As(err error, target any) bool {
	return errors.As(err, target)
}

// ErrNotApplicable is returned when a message that does not belong to the broker protocol
// is handed to a processing call. Validation itself never returns it; it reports false instead.
var ErrNotApplicable = errors.New("message is not a broker authentication response")

// BrokerErr is a failure reported by the broker: the flow ran and did not produce a token
// (user cancellation, consent denied, network failure on the broker side...).
// It is returned to the caller exactly as the broker described it.
type BrokerErr struct {
	// Code is the broker's errorCode, for example "user_cancelled".
	Code string `json:"errorCode,omitempty"`
	// Message is the broker's errorMessage.
	Message string `json:"errorMessage,omitempty"`
	// SubError is an optional finer grained code.
	SubError string `json:"subError,omitempty"`
	// Name is the name of the error class the broker raised, for example "BrowserAuthError".
	Name string `json:"name,omitempty"`
	// CorrelationID ties the failure to the request that triggered it.
	CorrelationID string `json:"correlationId,omitempty"`
}

// Error implements error.Error().
func (e *BrokerErr) Error() string {
	var parts []string
	if e.Code != "" {
		parts = append(parts, e.Code)
	}
	if e.SubError != "" {
		parts = append(parts, e.SubError)
	}
	msg := "broker reported a failure"
	if len(parts) > 0 {
		msg += " (" + strings.Join(parts, "/") + ")"
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

// Verbose prints every field of the error.
func (e *BrokerErr) Verbose() string {
	return fmt.Sprintf("%s:\n%s", e.Error(), prettyConf.Sprint(e))
}

// UnmarshalJSON implements json.Unmarshaler. Brokers serialize errors as objects, but a bare
// string is accepted as the message.
func (e *BrokerErr) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*e = BrokerErr{Message: s}
		return nil
	}

	type plain BrokerErr
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	// The browser library's AuthError also carries the message as "message".
	if p.Message == "" {
		var alt struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(b, &alt); err == nil {
			p.Message = alt.Message
		}
	}
	*e = BrokerErr(p)
	return nil
}

// ProtocolErr is returned when a message passed validation but its success payload is
// missing structure the broker contract requires, such as part of the token bundle.
// Nothing is written to the cache when it is returned.
type ProtocolErr struct {
	// Reason describes which part of the contract was violated.
	Reason string
	// Err is the underlying decode error, if any.
	Err error
}

// Error implements error.Error().
func (e *ProtocolErr) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("broker protocol violation: %s: %s", e.Reason, e.Err)
	}
	return "broker protocol violation: " + e.Reason
}

// Unwrap returns the underlying error.
func (e *ProtocolErr) Unwrap() error {
	return e.Err
}

// Verbose prints every field of the error.
func (e *ProtocolErr) Verbose() string {
	return fmt.Sprintf("%s:\n%s", e.Error(), prettyConf.Sprint(e))
}
