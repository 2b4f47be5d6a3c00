// Package core defines the domain model shared by the Argus analysis and
// response pipeline.
//
// The core package provides:
//   - Domain types (SecurityEvent, TelemetrySample, Device, Incident, IOC,
//     ResponseAction) with validation methods
//   - The error taxonomy used across component boundaries
//   - Shared infrastructure primitives (Redis cache, circuit breaker,
//     per-entity keyed mutex)
//
// Interfaces are defined where used (consumer package), kept small, and take
// context.Context as the first parameter on blocking operations. Errors are
// typed and wrapped so callers can classify them with errors.Is/As.
package core
