// Package flows contains pure-function orchestrators for every Engine operation.
//
// Each flow function (RunIssue, RunValidate, RunRefresh, etc.) accepts a typed
// dependency struct and returns a result carrying a FailureKind instead of a
// caller-facing error. The root package maps kinds to sentinels, audit events
// and metrics, which keeps the Engine type thin and the flows testable with
// fake stores and fixed clocks.
//
// # Architecture boundaries
//
// Flow functions coordinate calls to the session store and the token codec.
// They do NOT own either resource; ownership stays with the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import tokenauth (to avoid import cycles).
//   - Perform I/O directly; all I/O is mediated through dependency interfaces.
package flows
