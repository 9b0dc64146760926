// Package identity implements a federated-directory identity provider:
// stateless email confirmation and password reset links, per-viewer
// profile projection, list membership checkin/checkout, and an OAuth2
// authorization-code flow with session login and consent tracking.
//
// The package is transport-thin: IdentityController binds HTTP to the
// command handlers and the Broker, and every domain decision lives in
// the handlers, the ProofTokenService, the projector and the
// repositories. Concurrency-sensitive writes (duplicate checkins,
// consent appends, code exchange) are settled by atomic storage
// statements rather than read-then-write checks.
package identity
