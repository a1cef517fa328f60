// Package services implements the transport to the repertoire backend.
//
// # Executor
//
// [Executor] performs one HTTP call per [Request]. Protected requests carry the current bearer
// token, read from an [oauth2.TokenSource] (normally the session store) and attached with
// [oauth2.Token.SetAuthHeader]. Public requests never carry one. Without a token, protected
// requests fail locally with a 401 [RequestError] wrapping [shared.ErrNotAuthenticated].
//
// The executor does not retry and does not interpret status codes. Those concerns live in the
// pipeline package, which composes layers that all satisfy [Doer].
//
// # Authentication
//
// [AuthService] covers the endpoints of the sign-in flow:
//   - sign-in is built as a public, refresh-exempt [Request] and sent through the pipeline
//   - refresh goes through a dedicated executor with no token source
//   - the realtime connection token is fetched with the base executor
//
// # Error Handling
//
// Non-2xx responses are returned together with a [*RequestError]. Its Unwrap maps the status to
// the shared sentinels:
//   - 401 : [shared.ErrTokenExpired]
//   - 403 : [shared.ErrForbidden]
//   - 404 : [shared.ErrNotFound]
//   - other : [shared.ErrAPIRequest]
//
// Transport failures have StatusCode 0 and wrap the underlying error.
package services
