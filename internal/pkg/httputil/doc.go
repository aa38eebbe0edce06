// Package httputil provides shared helpers for HTTP handlers: a standard
// JSON response envelope, error responses that never leak internals, and
// request body decoding.
package httputil
