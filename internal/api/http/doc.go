// Package http holds the gin handlers of the request front-end.
//
// Every request on the root route, whatever its method, dispatches a
// "request" event with a null payload to the configured event target and
// answers 200 "hello there" once the dispatch finished or timed out.
package http
