// Package storage provides the flat key-value persistence used for settings.
//
// Each key holds one JSON document (an aggregate such as "pushServices").
// Drivers:
//   - "memory": process-local map (tests, or storage.driver=none)
//   - "file":   a single JSON object file, rewritten atomically
//   - "sqlite": settings(key, value) table
//   - "redis":  one hash, one field per key
package storage
