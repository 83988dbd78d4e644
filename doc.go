// Package creditgate is an embeddable usage-quota and credit ledger.
//
// It gates two resources: search, capped per calendar day, and
// verification, a credit balance owned by a remote service and cached
// locally. Spends are atomic against the persisted store, so concurrent
// callers never overspend, and a periodic sync reconciles the cached
// balance without losing spends made while the fetch was in flight.
//
//	client, err := creditgate.Open(ctx,
//	    creditgate.WithBadger("/var/lib/myapp/credits"),
//	    creditgate.WithRemote("https://api.example.com", token),
//	    creditgate.WithTier("basic"),
//	)
//	if err != nil { ... }
//	defer client.Close()
//
//	if client.Spend(ctx, creditgate.Search, 1) == creditgate.Granted {
//	    // run the search
//	}
package creditgate
