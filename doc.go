// Package tokenauth manages the lifecycle of paired access and refresh
// tokens backed by one persisted session record per principal.
//
// An [Engine] built by [Builder.Build] issues a token pair on [Engine.Login],
// verifies access tokens on [Engine.Validate] without touching storage,
// rotates the access-token binding on [Engine.Refresh], revokes sessions on
// [Engine.Logout] and removes expired records with [Engine.SweepExpired] or
// the cron-driven sweeper. Engine methods are safe for concurrent use.
//
// # Architecture boundaries
//
// tokenauth is the public surface. Token encoding lives in the jwt package,
// session persistence behind the [session.Store] interface, and operation
// orchestration under internal/flows. Credential checks happen before Login
// and are the caller's concern.
//
// # Errors
//
// Every failure of Login, Refresh, Validate and ResumeSession is an
// [*AuthError] whose message is "unauthorized". The specific reason is
// available with errors.Is for logs and metrics and must not be shown to
// clients.
//
// # What this package must NOT do
//
//   - Log, audit or persist access or refresh token strings.
//   - Read the session store on Validate.
//   - Import any sub-package that re-imports tokenauth.
package tokenauth
