// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package broker

import (
	"bytes"
	"encoding/json"

	"github.com/AzureAD/msal-broker-go/apps/errors"
)

// MessageType discriminates the messages of the broker protocol.
type MessageType string

// Broker protocol message types. Any other value on the channel is not part of the protocol.
const (
	HandshakeRequest  MessageType = "BrokerHandshakeRequest"
	HandshakeResponse MessageType = "BrokerHandshakeResponse"
	AuthRequest       MessageType = "BrokerAuthRequest"
	AuthResultMessage MessageType = "BrokerAuthResult"
)

// Known reports whether t is one of the protocol's message types.
func (t MessageType) Known() bool {
	switch t {
	case HandshakeRequest, HandshakeResponse, AuthRequest, AuthResultMessage:
		return true
	}
	return false
}

// InteractionType is the mechanism the broker used to obtain the result. It is carried through
// for bookkeeping; values other than the ones below are accepted as long as they are set.
type InteractionType string

const (
	Redirect InteractionType = "redirect"
	Popup    InteractionType = "popup"
	Silent   InteractionType = "silent"
	None     InteractionType = "none"
)

// Event is one delivery on the channel shared with the broker. Data is whatever the sender
// posted and may have nothing to do with this protocol.
type Event struct {
	// Origin identifies the sender, if the transport knows it. It is informational only.
	Origin string
	// Data is the posted payload.
	Data []byte
}

// Response is a validated broker authentication response. Values are only produced by
// Validate and Classify, and are meant to be processed once and dropped.
type Response struct {
	MessageType     MessageType
	InteractionType InteractionType
	// Version is the protocol version the broker declared, empty if it declared none.
	Version string
	// Result is set when the broker flow succeeded.
	Result *Result
	// Err is set when the broker flow failed.
	Err *errors.BrokerErr
}

// Result is the success payload of a Response: the caller-facing AuthResult and the token
// bundle that must be written to the cache before the result is handed out.
type Result struct {
	AuthResult
	TokensToCache *TokensToCache
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *Result) UnmarshalJSON(b []byte) error {
	var bundle struct {
		TokensToCache *TokensToCache `json:"tokensToCache"`
	}
	if err := json.Unmarshal(b, &bundle); err != nil {
		return err
	}
	var ar AuthResult
	if err := json.Unmarshal(b, &ar); err != nil {
		return err
	}
	*r = Result{AuthResult: ar, TokensToCache: bundle.TokensToCache}
	return nil
}

// TokensToCache holds the raw cache entities the broker relays. They contain unwrapped token
// material and are never returned to the caller.
type TokensToCache struct {
	AccessToken json.RawMessage `json:"accessToken"`
	IDToken     json.RawMessage `json:"idToken"`
	Account     json.RawMessage `json:"account"`
}

// Kind is the classification of an inbound message.
type Kind int

const (
	// NotApplicable messages are not broker authentication responses. They are expected on a
	// shared channel and are ignored.
	NotApplicable Kind = iota
	// Accepted messages are well formed broker authentication responses.
	Accepted
	// Malformed messages carry the authentication result discriminant but break another
	// rule of the protocol. They are ignored like NotApplicable ones; Reason says why.
	Malformed
)

func (k Kind) String() string {
	switch k {
	case NotApplicable:
		return "not applicable"
	case Accepted:
		return "accepted"
	case Malformed:
		return "malformed"
	}
	return "unknown"
}

// Outcome is the result of classifying an Event.
type Outcome struct {
	Kind Kind
	// Response is set only when Kind is Accepted.
	Response Response
	// Reason describes why a message was not accepted.
	Reason string
}

func notApplicable(reason string) Outcome {
	return Outcome{Kind: NotApplicable, Reason: reason}
}

func malformed(reason string) Outcome {
	return Outcome{Kind: Malformed, Reason: reason}
}

// wireMessage is the loosest shape a broker message can take. Every field stays raw until
// the acceptance rules have looked at it.
type wireMessage struct {
	MessageType     json.RawMessage `json:"messageType"`
	InteractionType json.RawMessage `json:"interactionType"`
	Version         json.RawMessage `json:"version"`
	Result          json.RawMessage `json:"result"`
	Error           json.RawMessage `json:"error"`
}

// falsy are the JSON encodings of values that do not count as a populated field.
var falsy = [][]byte{[]byte("null"), []byte(`""`), []byte("false"), []byte("0")}

func populated(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return false
	}
	for _, f := range falsy {
		if bytes.Equal(raw, f) {
			return false
		}
	}
	return true
}

func isObject(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '{'
}

// rawString decodes raw as a JSON string, reporting false for anything else.
func rawString(raw json.RawMessage) (string, bool) {
	if !populated(raw) {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// Classify decides whether ev is a broker authentication response that this side of the
// protocol can process, given the protocol version it supports. It has no side effects.
func Classify(ev Event, supportedVersion string) Outcome {
	if !isObject(ev.Data) {
		return notApplicable("payload is not a JSON object")
	}
	var msg wireMessage
	if err := json.Unmarshal(ev.Data, &msg); err != nil {
		return notApplicable("payload is not valid JSON")
	}

	mt, ok := rawString(msg.MessageType)
	if !ok || MessageType(mt) != AuthResultMessage {
		return notApplicable("messageType is not " + string(AuthResultMessage))
	}

	it, ok := rawString(msg.InteractionType)
	if !ok || it == "" {
		return malformed("interactionType is missing")
	}

	hasResult, hasError := populated(msg.Result), populated(msg.Error)
	if !hasResult && !hasError {
		return malformed("neither result nor error is set")
	}

	var version string
	if populated(msg.Version) {
		v, ok := rawString(msg.Version)
		if !ok {
			return malformed("version is not a string")
		}
		if err := checkVersion(supportedVersion, v); err != nil {
			return malformed(err.Error())
		}
		version = v
	}

	resp := Response{
		MessageType:     AuthResultMessage,
		InteractionType: InteractionType(it),
		Version:         version,
	}
	if hasResult {
		if !isObject(msg.Result) {
			return malformed("result is not an object")
		}
		resp.Result = &Result{}
		if err := json.Unmarshal(msg.Result, resp.Result); err != nil {
			return malformed("result could not be decoded: " + err.Error())
		}
	}
	if hasError {
		resp.Err = &errors.BrokerErr{}
		if err := json.Unmarshal(msg.Error, resp.Err); err != nil {
			return malformed("error could not be decoded: " + err.Error())
		}
	}

	return Outcome{Kind: Accepted, Response: resp}
}

// Validate returns the broker authentication response carried by ev. ok is false for any
// message that is not one, which is not an error: the channel is shared with other senders.
func Validate(ev Event) (resp Response, ok bool) {
	out := Classify(ev, DefaultProtocolVersion)
	return out.Response, out.Kind == Accepted
}
