// Package service implements the QoS business logic for trafficwarden.
//
// This package coordinates between the HTTP handlers, the repository layer,
// and the adapter ports, implementing validation rules, the policy
// application algorithm, and compliance testing.
//
// # Services
//
// PolicyService manages QoS policy CRUD with unique-name enforcement.
//
// TrafficClassService manages a policy's traffic classes and their
// classifiers: per-policy name uniqueness, bandwidth percentage bounds, and
// the rule that a class owning classifiers cannot be deleted.
//
// PolicyApplicationEngine translates a policy's classes into live shaping
// state through the TrafficController port: percentages become absolute
// rates against the interface's configured capacity, priorities become
// scheduling ranks, and classifiers become filters. Apply is
// clear-then-install, so reapplying never accumulates duplicate filters.
// Operations on one (interface, direction) pair are serialized internally.
//
// ComplianceTestingEngine runs timed synthetic-traffic tests: it starts a
// traffic generator, samples interface metrics at a fixed cadence for the
// profile duration, aggregates the samples, and evaluates the worst-case
// statistics against the scenario's SLA thresholds. It always returns a
// result, degrading to Success=false on any failure.
//
// # Event System
//
// All services publish domain events via EventBus. Handlers run
// synchronously in registration order on the publisher's goroutine; panics
// are isolated and logged. PublishAsync is the escape hatch for listeners
// that must not block a mutation. A wildcard subscription feeds the SSE hub.
package service
