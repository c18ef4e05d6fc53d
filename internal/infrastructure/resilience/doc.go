/*
Package resilience provides the circuit breaker used for remote module fetches.

A Breaker has three states:

	Closed --[failures]-> Open --[timeout]-> Half-Open --[successes]-> Closed
	                                           |
	                                       [failure]
	                                           v
	                                         Open

Group keeps one breaker per key so a single unreachable host does not block
fetches from the others:

	group := resilience.NewGroup("module-fetch", resilience.Settings{
		Timeout:     30 * time.Second,
		ReadyToTrip: func(c resilience.Counts) bool { return c.ConsecutiveFailures >= 5 },
	})

	body, err := resilience.Do(ctx, group.Get(host), func(ctx context.Context) ([]byte, error) {
		return fetch(ctx, url)
	})

Cancellation by the caller is not counted against the dependency.
*/
package resilience
