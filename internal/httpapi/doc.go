// Package httpapi serves the token lifecycle over HTTP with a chi router:
// login against a bcrypt credential directory, refresh, auto-login,
// logout and a claims echo. It is the transport used by cmd/tokenauthd.
package httpapi
