// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

/*
Package broker handles the responses an authentication broker sends back to an embedded
application after acquiring tokens on its behalf.

Messages arrive on a channel the application shares with other senders, so most of them are
not broker responses. Validate (or Classify, for a reason) decides whether a message is one.
Process then either returns the failure the broker reported, or writes the relayed token bundle
to the cache and returns the AuthResult with the bundle removed.

A Client bundles both steps with a cache, logging and an optional persistence accessor:

	client, err := broker.New(broker.WithCache(accessor))
	if err != nil {
		// Do something with the error.
	}
	result, err := client.ProcessResponse(ctx, broker.Event{Origin: origin, Data: payload})
	if errors.Is(err, msalerrors.ErrNotApplicable) {
		// Not for us.
	}
*/
package broker
