// Package reputation computes per-tenant sending reputation.
//
// A background sweep recomputes every active tenant's bounce and complaint
// rates over the trailing 24 hours, derives a score and throttle decision,
// and upserts the record unconditionally so updated_at always reflects the
// last evaluation. Cycles for a single tenant are serialized; tenants are
// processed concurrently up to a bounded parallelism.
//
// Admission reads the in-memory snapshot only. Staleness of up to one sweep
// interval is an accepted trade-off: the admission path must never block on
// a recomputation.
package reputation
