// Package apicore is a retry-aware HTTP client core for JSON REST APIs.
//
// It layers request construction, response decoding, error classification,
// retry with exponential backoff, and pagination on top of net/http:
//
//	client := apicore.New(
//		apicore.WithBaseURL("https://api.example.com"),
//		apicore.WithBearerAuth(token),
//		apicore.WithMaxRetries(3),
//	)
//
//	var user User
//	err := client.Get(ctx, "/users/1", &user)
//
// Requests are described by RequestOptions; per-call options layer over
// client defaults, with the Omit sentinel removing an inherited header or
// parameter. Failed responses become typed *Error values classified by
// status code, and retryable failures are re-sent with retry-after or
// exponential backoff delays. List endpoints paginate through Page, with
// lazy iteration via Page.All and future-based prefetch via
// Page.NextPageAsync.
package apicore
