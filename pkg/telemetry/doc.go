// Package telemetry groups Vesta's observability concerns.
//
//   - logging: structured logging on the six-severity ladder with
//     credential redaction
//   - metrics: Prometheus instrumentation for the dispatch engine plus
//     the scheduled dispatch summary
package telemetry
