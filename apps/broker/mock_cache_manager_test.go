// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package broker

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/AzureAD/msal-broker-go/apps/cache"
)

type mockCacheManager struct {
	mock.Mock
}

func (mock *mockCacheManager) SaveCacheRecord(ctx context.Context, record cache.Record) error {
	args := mock.Called(ctx, record)
	return args.Error(0)
}

// saved returns the record passed to the i'th SaveCacheRecord call.
func (mock *mockCacheManager) saved(i int) cache.Record {
	return mock.Calls[i].Arguments.Get(1).(cache.Record)
}
