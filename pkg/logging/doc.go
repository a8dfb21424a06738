// Package logging provides a thin structured-logging layer over log/slog.
//
// Every log call carries a subsystem tag so output from the OAuth flow, the
// rate limiter, and the API client can be filtered independently. Credentials
// and token values must never be passed to these helpers.
package logging
