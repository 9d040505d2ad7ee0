// Package postgres implements the service repository contracts against
// PostgreSQL using database/sql and lib/pq.
//
// Concurrency-sensitive writes (suppression upserts, reputation upserts)
// rely on unique constraints with ON CONFLICT so per-key serialization is
// the database's problem, not the caller's.
package postgres
