// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package broker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/AzureAD/msal-broker-go/apps/cache"
	"github.com/AzureAD/msal-broker-go/apps/errors"
	"github.com/AzureAD/msal-broker-go/apps/internal/logger"
	"github.com/AzureAD/msal-broker-go/apps/internal/storage"
)

// Options configures the Client's behavior.
type Options struct {
	// CacheManager receives the cache writes. By default an in-memory cache is used.
	// This can be set with the WithCacheManager() option.
	CacheManager CacheManager

	// Accessor controls persistence of the in-memory cache. By default there is no cache
	// persistence. This can be set with the WithCache() option.
	Accessor cache.ExportReplaceCtx

	// Logger receives the client's structured logs. The default is slog.Default().
	// This can be set with the WithLogger() option.
	Logger *slog.Logger

	// ProtocolVersion is the broker protocol version the client speaks. The default is
	// DefaultProtocolVersion. This can be changed with the WithProtocolVersion() option.
	ProtocolVersion string
}

func (o *Options) validate() error {
	if _, _, err := parseVersion(o.ProtocolVersion); err != nil {
		return fmt.Errorf("ProtocolVersion option is invalid: %w", err)
	}
	if o.Accessor != nil && o.CacheManager != nil {
		return errors.New("a cache accessor can only be used with the built-in cache, not with a custom CacheManager")
	}
	return nil
}

// Option is an optional argument to the New constructor.
type Option func(o *Options)

// WithCacheManager routes cache writes to cm instead of the built-in in-memory cache.
func WithCacheManager(cm CacheManager) Option {
	return func(o *Options) {
		o.CacheManager = cm
	}
}

// WithCache persists the built-in cache through accessor, partitioned by home account ID.
// Each write loads the account's partition, adds the record and exports the partition back.
// The partition with the empty key holds the index of cached accounts, without tokens.
func WithCache(accessor cache.ExportReplaceCtx) Option {
	return func(o *Options) {
		o.Accessor = accessor
	}
}

// WithLogger sets the logger the client writes to.
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}

// WithProtocolVersion sets the broker protocol version the client speaks. Brokers declaring a
// different major version are rejected.
func WithProtocolVersion(version string) Option {
	return func(o *Options) {
		o.ProtocolVersion = version
	}
}

// Client validates and processes broker authentication responses for one application.
// It is safe for concurrent use.
type Client struct {
	manager CacheManager
	// storage is the built-in cache, nil when a custom CacheManager is used. It is only
	// read and written when there is no accessor.
	storage  *storage.Manager
	accessor cache.ExportReplaceCtx
	// accessorMu serializes replace, write, export cycles against the accessor.
	accessorMu sync.Mutex
	log        logger.LoggerInterface
	version    string
}

// New is the constructor for Client.
func New(options ...Option) (*Client, error) {
	opts := Options{ProtocolVersion: DefaultProtocolVersion}
	for _, o := range options {
		o(&opts)
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}

	c := &Client{
		manager:  opts.CacheManager,
		accessor: opts.Accessor,
		log:      logger.New(opts.Logger),
		version:  opts.ProtocolVersion,
	}
	if c.manager == nil {
		c.storage = storage.New()
		c.manager = c.storage
	}
	return c, nil
}

// Classify is Classify using the client's protocol version.
func (c *Client) Classify(ev Event) Outcome {
	return Classify(ev, c.version)
}

// Validate returns the broker authentication response carried by ev, see Validate.
func (c *Client) Validate(ev Event) (Response, bool) {
	out := c.Classify(ev)
	return out.Response, out.Kind == Accepted
}

// ProcessResponse validates ev and processes it. A message that is not a broker authentication
// response returns an error wrapping errors.ErrNotApplicable and is otherwise ignored.
func (c *Client) ProcessResponse(ctx context.Context, ev Event) (AuthResult, error) {
	out := c.Classify(ev)
	switch out.Kind {
	case Accepted:
		return c.Process(ctx, out.Response)
	case Malformed:
		c.log.Log(ctx, logger.Warn, "ignoring malformed broker response",
			logger.Field("origin", ev.Origin), logger.Field("reason", out.Reason))
	default:
		c.log.Log(ctx, logger.Debug, "ignoring message", logger.Field("origin", ev.Origin), logger.Field("reason", out.Reason))
	}
	return AuthResult{}, fmt.Errorf("%w: %s", errors.ErrNotApplicable, out.Reason)
}

// Process turns a validated response into the caller's result, see Process. The cache writes
// go to the client's CacheManager.
func (c *Client) Process(ctx context.Context, resp Response) (AuthResult, error) {
	correlationID := responseCorrelationID(resp)
	fields := []any{
		logger.Field("correlationId", correlationID),
		logger.Field("interactionType", string(resp.InteractionType)),
	}

	ar, err := process(ctx, resp, c.save)
	if err != nil {
		var brokerErr *errors.BrokerErr
		if errors.As(err, &brokerErr) {
			c.log.Log(ctx, logger.Warn, "broker reported a failure", append(fields, logger.Field("errorCode", brokerErr.Code))...)
		} else {
			c.log.Log(ctx, logger.Err, "could not process broker response", append(fields, logger.Field("error", err.Error()))...)
		}
		return AuthResult{}, err
	}

	if ar.Account != nil {
		fields = append(fields, logger.Field("homeAccountId", ar.Account.HomeAccountID))
	}
	c.log.Log(ctx, logger.Info, "broker tokens cached", fields...)
	return ar, nil
}

// accountIndexKey is the accessor partition listing every cached account.
const accountIndexKey = ""

// save writes record to the client's cache manager. With an accessor, the record goes to its
// account's partition and the account is added to the account index.
func (c *Client) save(ctx context.Context, record cache.Record) error {
	if c.accessor == nil {
		return c.manager.SaveCacheRecord(ctx, record)
	}

	c.accessorMu.Lock()
	defer c.accessorMu.Unlock()

	key := record.Account.HomeAccountID
	if err := c.writePartition(ctx, key, record); err != nil {
		return err
	}
	if key == accountIndexKey {
		return nil
	}
	return c.writePartition(ctx, accountIndexKey, cache.Record{Account: record.Account})
}

// writePartition adds record to the accessor partition key. Callers hold accessorMu.
func (c *Client) writePartition(ctx context.Context, key string, record cache.Record) error {
	m, err := c.load(ctx, key)
	if err != nil {
		return err
	}
	if err := m.SaveCacheRecord(ctx, record); err != nil {
		return err
	}
	if err := c.accessor.ExportCtx(ctx, m, key); err != nil {
		return fmt.Errorf("could not export the cache to external storage: %w", err)
	}
	return nil
}

// load returns the cache holding partition key. Without an accessor that is the built-in
// cache. With one, it is a new cache filled from the accessor, so it never holds data from
// other partitions.
func (c *Client) load(ctx context.Context, key string) (*storage.Manager, error) {
	if c.accessor == nil {
		return c.storage, nil
	}
	m := storage.New()
	if err := c.accessor.ReplaceCtx(ctx, m, key); err != nil {
		return nil, fmt.Errorf("could not replace the cache from external storage: %w", err)
	}
	return m, nil
}

// Accounts gets all cached accounts. With an accessor they are read from the account index.
// It returns nothing when a custom CacheManager is in use.
func (c *Client) Accounts(ctx context.Context) ([]cache.Account, error) {
	if c.storage == nil {
		return nil, nil
	}
	m, err := c.load(ctx, accountIndexKey)
	if err != nil {
		return nil, err
	}
	return m.AllAccounts(), nil
}

// Account gets the cached account with homeAccountID. If none is found, the zero Account is
// returned.
func (c *Client) Account(ctx context.Context, homeAccountID string) (cache.Account, error) {
	if c.storage == nil {
		return cache.Account{}, nil
	}
	m, err := c.load(ctx, homeAccountID)
	if err != nil {
		return cache.Account{}, err
	}
	return m.Account(homeAccountID), nil
}

// CachedAccessToken returns an unexpired access token the broker relayed for homeAccountID and
// clientID that covers scopes.
func (c *Client) CachedAccessToken(ctx context.Context, homeAccountID, clientID string, scopes []string) (cache.AccessToken, error) {
	if c.storage == nil {
		return cache.AccessToken{}, errors.New("cached tokens are only readable from the built-in cache")
	}
	m, err := c.load(ctx, homeAccountID)
	if err != nil {
		return cache.AccessToken{}, err
	}
	return m.ReadAccessToken(homeAccountID, clientID, scopes)
}

// responseCorrelationID returns the correlation ID the broker sent, or a fresh one so the
// client's logs for one response can still be tied together.
func responseCorrelationID(resp Response) string {
	switch {
	case resp.Result != nil && resp.Result.CorrelationID != "":
		return resp.Result.CorrelationID
	case resp.Err != nil && resp.Err.CorrelationID != "":
		return resp.Err.CorrelationID
	}
	return uuid.NewString()
}
