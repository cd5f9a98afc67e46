// Package middleware adapts tokenauth.Engine to net/http.
//
// # Guards
//
//   - [RequireJWTOnly]: stateless verification with Engine.Validate.
//   - [RequireSession]: Engine.ResumeSession, which also rejects revoked or
//     rotated-away tokens.
//
// Each guard reads the Authorization header, verifies the bearer token and
// stores the claims in the request context ([ClaimsFromContext]). Every
// rejection is a bare 401 "unauthorized".
package middleware
