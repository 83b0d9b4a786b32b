// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package rediscache

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/AzureAD/msal-broker-go/apps/internal/seal"
)

// blob is a cache that holds raw bytes.
type blob struct {
	data []byte
	err  error
}

func (b *blob) Marshal() ([]byte, error) {
	return b.data, b.err
}

func (b *blob) Unmarshal(data []byte) error {
	b.data = append([]byte(nil), data...)
	return nil
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)
	a := New(client)

	require.NoError(t, a.ExportCtx(ctx, &blob{data: []byte(`{"Account":{}}`)}, "uid.utid"))
	stored, err := mr.Get("msal:cache:uid.utid")
	require.NoError(t, err)
	require.Equal(t, `{"Account":{}}`, stored)

	got := &blob{}
	require.NoError(t, a.ReplaceCtx(ctx, got, "uid.utid"))
	require.Equal(t, []byte(`{"Account":{}}`), got.data)
}

func TestReplaceMissingPartition(t *testing.T) {
	_, client := newTestRedis(t)
	a := New(client)

	got := &blob{data: []byte("untouched")}
	require.NoError(t, a.ReplaceCtx(context.Background(), got, "nobody"))
	require.Equal(t, []byte("untouched"), got.data)
}

func TestEmptyPartitionKey(t *testing.T) {
	mr, client := newTestRedis(t)
	a := New(client, WithPrefix("app"))

	require.NoError(t, a.ExportCtx(context.Background(), &blob{data: []byte("x")}, ""))
	require.True(t, mr.Exists("app:default"))
}

func TestTTL(t *testing.T) {
	mr, client := newTestRedis(t)
	a := New(client, WithTTL(time.Minute))

	require.NoError(t, a.ExportCtx(context.Background(), &blob{data: []byte("x")}, "k"))
	require.Equal(t, time.Minute, mr.TTL("msal:cache:k"))

	mr.FastForward(2 * time.Minute)
	got := &blob{}
	require.NoError(t, a.ReplaceCtx(context.Background(), got, "k"))
	require.Nil(t, got.data)
}

func TestSealed(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)
	sealer, err := seal.New(bytes.Repeat([]byte{7}, 32))
	require.NoError(t, err)
	a := New(client, WithSealer(sealer))

	require.NoError(t, a.ExportCtx(ctx, &blob{data: []byte("secret-token")}, "uid.utid"))
	stored, err := mr.Get("msal:cache:uid.utid")
	require.NoError(t, err)
	require.NotContains(t, stored, "secret-token")

	got := &blob{}
	require.NoError(t, a.ReplaceCtx(ctx, got, "uid.utid"))
	require.Equal(t, []byte("secret-token"), got.data)

	// A blob moved to another partition does not open.
	require.NoError(t, mr.Set("msal:cache:other", stored))
	err = a.ReplaceCtx(ctx, &blob{}, "other")
	require.ErrorIs(t, err, seal.ErrOpen)
}

func TestExportMarshalError(t *testing.T) {
	_, client := newTestRedis(t)
	a := New(client)

	want := errors.New("boom")
	err := a.ExportCtx(context.Background(), &blob{err: want}, "k")
	require.ErrorIs(t, err, want)
}

func TestRedisUnavailable(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	a := New(client, WithTimeout(time.Second))

	require.Error(t, a.ExportCtx(context.Background(), &blob{data: []byte("x")}, "k"))
	require.Error(t, a.ReplaceCtx(context.Background(), &blob{}, "k"))
}
