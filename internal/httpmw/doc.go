// Package httpmw holds the middleware shared by the site, the secrets API
// and the ops server.
//
// httpserver composes them outermost first: Recover, SecurityHeaders,
// RequestID, ClientIP, rate limiting, tracing, ContentHeaders, metrics,
// WithLogger and AccessLog. Request bodies and query strings never reach the
// logs because API requests carry plaintext secrets.
package httpmw
