// Package suppression implements the deny-list registry.
//
// This is the single source of truth for whether an address may receive
// mail. Entries flow in from bounce and complaint event processing and from
// explicit admin actions, at global or per-tenant scope, and are checked on
// every admission decision.
//
// Expiry is lazy: a soft-bounce entry past its expiry simply stops matching
// at read time; nothing sweeps it unless the repository's eviction pass runs.
//
// The service layer contains pure business logic and depends on the
// Repository interface defined in repository.go. It never imports
// net/http or database/sql directly.
package suppression
