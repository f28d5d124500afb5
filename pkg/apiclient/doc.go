// Package apiclient is the HTTP client adapter for the learnhub REST backend.
//
// A Client carries a base URL, a default timeout and an ordered list of
// interceptors. Every call goes through the same pipeline:
//
//  1. the caller's Request is cloned, so interceptors may mutate it freely
//  2. request interceptors run in registration order
//  3. an X-Request-ID header is stamped if absent
//  4. the HTTP round trip is made and the response envelope decoded
//  5. on failure, error interceptors run in registration order; the first
//     one that returns a Response resolves the call
//
// The backend wraps payloads in an envelope:
//
//	{"code": 0, "message": "ok", "data": {...}}
//
// A non-2xx HTTP status or a non-success envelope code produces an *Error.
// Failures without any HTTP response produce a *TransportError.
//
// Interceptors are registered by identity: Use returns false when the same
// interceptor value is already installed, which makes wiring idempotent.
//
//	client := apiclient.New("https://api.learnhub.example",
//		apiclient.WithTimeout(5*time.Second),
//		apiclient.WithLogger(logger),
//	)
//
//	var me Profile
//	if err := client.Get(ctx, "/users/me", &me); err != nil {
//		var apiErr *apiclient.Error
//		if errors.As(err, &apiErr) && apiErr.Unauthorized() {
//			// ...
//		}
//	}
package apiclient
