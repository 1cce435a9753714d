// Package domain defines the core types of the ad classification engine.
//
// Types in this package are value objects with no storage or transport
// dependencies. They are the shared language between the engine, the
// repositories and the worker.
//
// Rules for this package:
//   - No imports from other internal/ packages except internal/pkg helpers
//   - No *sql.DB, no http.Request, no context.Context in struct fields
//   - JSON tags are allowed (they're metadata, not behavior)
//   - Validation methods are allowed (they're pure functions on the type)
//   - Constants and enums belong here
package domain
