/*
Package tracing records building block expansions as spans.

Every expansion opens a span. Expansions started while the engine visits
generated content inherit the span from the context and become its
children, so one trace covers a top-level macro and everything nested in
it.

# Usage

	tracer := tracing.New(logger)
	defer tracer.Close()

	eng := engine.New(engine.WithTracer(tracer))

	// Manual span creation
	span, ctx := tracer.StartSpan(ctx, "Card", tracing.SpanID(expansionID))
	defer func() {
		span.Finish()
		tracer.Submit(span)
	}()

Spans are buffered (1000) and logged by a collector goroutine: completed
spans at debug level, failed ones at warn level.
*/
package tracing
