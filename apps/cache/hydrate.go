// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package cache

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotObject is returned by ToObject when the raw blob is missing or is not a JSON object.
var ErrNotObject = errors.New("cache entity is not a JSON object")

// ToObject copies the fields of a raw entity blob onto entity, which should be a pointer to
// an empty cache entity. Fields absent from raw keep the value already in entity; fields that
// entity does not know are dropped.
func ToObject(raw json.RawMessage, entity any) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return ErrNotObject
	}
	if err := json.Unmarshal(trimmed, entity); err != nil {
		return fmt.Errorf("cache entity %T could not be decoded: %w", entity, err)
	}
	return nil
}
