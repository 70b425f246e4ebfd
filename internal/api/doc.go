// Package api handles incoming HTTP requests for review jobs: submission,
// status and result queries, report download, cancellation and the
// server-sent event progress stream. It translates HTTP concerns into
// service operations and maps service errors onto status codes.
package api
