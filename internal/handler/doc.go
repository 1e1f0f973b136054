// Package handler implements HTTP request handlers for the TrafficWarden API.
//
// This package provides the HTTP layer over the QoS services, handling
// requests for policy management, traffic class configuration, policy
// application, and compliance test runs.
//
// # API Design
//
// All handlers follow REST conventions:
// - GET for retrieval
// - POST for creation and actions
// - PUT for updates
// - DELETE for removal
//
// Service errors carry a kind that maps directly to an HTTP status:
// validation to 400, not found to 404, unavailable to 503. The error body
// is JSON with {error, kind, details}.
//
// # Blocking Operations
//
// POST /api/tests/run is synchronous: the response arrives once the
// scenario's traffic run and analysis complete. Canceling the request
// cancels the run.
//
// # Server-Sent Events
//
// The /api/events endpoint streams every published service event, letting
// clients follow policy changes and application outcomes live.
package handler
