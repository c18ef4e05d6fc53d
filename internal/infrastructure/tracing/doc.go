/*
Package tracing provides lightweight request tracing.

Each HTTP request gets a span whose trace ID is taken from the X-Trace-ID
header or generated as a ULID. Child spans (such as the event dispatch a
request triggers) inherit the trace ID through the context. Completed spans
are handed to a buffered collector that logs them through zap.

	tracer := tracing.New("scriptbridge", logger)
	defer tracer.Close()
	router.Use(tracing.HTTPMiddleware(tracer))

	span, ctx := tracer.StartSpan(ctx, "dispatch")
	defer tracer.End(span)

Headers:
  - X-Trace-ID: identifies the whole request flow
  - X-Span-ID: identifies the current operation
*/
package tracing
