// Package observability provides a hook extension that records
// coordinator lifecycle metrics through OpenTelemetry.
package observability
