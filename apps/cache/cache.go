// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

/*
Package cache defines the token cache entities that a broker response is persisted as, and
the contracts that let third parties keep the serialized cache in external storage.

Entities follow the schema the browser libraries write (camelCase fields, lower-cased keys),
so a token bundle relayed by a broker can be copied onto them field by field with ToObject.

The data stored and extracted through ExportReplaceCtx represents the entire cache partition.
This data is considered opaque and there are no guarantees to implementers on the format
being passed.
*/
package cache

import "context"

// Marshaler marshals data from an internal cache to bytes that can be stored.
type Marshaler interface {
	Marshal() ([]byte, error)
}

// Unmarshaler unmarshals data from a storage medium into the internal cache, overwriting it.
type Unmarshaler interface {
	Unmarshal([]byte) error
}

// Serializer can serialize the cache to binary or from binary into the cache.
type Serializer interface {
	Marshaler
	Unmarshaler
}

// ExportReplaceCtx is used to export or replace what is in the cache around each broker write.
// nil Context is not supported and we do not define the outcome of passing one. A Context
// without a timeout must receive a default timeout specified by the implementor. Retries must
// be implemented inside the implementation.
type ExportReplaceCtx interface {
	// ReplaceCtx replaces the cache with what is in external storage.
	// key is the suggested key which can be used for partioning the cache.
	// Implementors should honor Context cancellations and return a context.Canceled or
	// context.DeadlineExceeded in those cases.
	ReplaceCtx(ctx context.Context, cache Unmarshaler, key string) error
	// ExportCtx writes the binary representation of the cache (cache.Marshal()) to
	// external storage. This is considered opaque.
	// key is the suggested key which can be used for partioning the cache.
	// Context cancellations should be honorted as in ReplaceCtx.
	ExportCtx(ctx context.Context, cache Marshaler, key string) error
}
