// Package graph implements the Microsoft Graph REST transport used by the
// migration pipeline.
//
// Client brackets every tenant session with Connect and Disconnect, follows
// @odata.nextLink continuation links for collection reads, and surfaces
// non-2xx responses as APIError values carrying the status code and response
// body. Transient failures (429 and 5xx) are retried with exponential
// backoff.
package graph
