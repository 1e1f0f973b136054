// Package adapter defines the ports through which the QoS core reaches the
// outside world (traffic control, traffic generation, monitoring, probing)
// and their concrete implementations.
package adapter

import (
	"context"

	"trafficwarden/internal/domain"
)

// ClassShare is one traffic class translated into concrete shaping terms:
// an absolute rate derived from the class's percentage of interface capacity,
// a ceiling it may borrow up to, and a scheduling rank.
type ClassShare struct {
	// ClassRef identifies the shaping class on the device, e.g. "1:10".
	ClassRef string
	Name     string
	// Rank is the scheduling priority; lower gets first claim on spare
	// bandwidth.
	Rank       int
	RateBps    int64
	CeilBps    int64
	BurstBytes int64
	DSCP       string
}

// TrafficController programs live shaping state on an interface. All calls
// for one interface/direction pair assume exclusive access for their
// duration; the application engine serializes callers.
type TrafficController interface {
	// SetTrafficPrioritization replaces the interface's shaping hierarchy
	// with the given class shares.
	SetTrafficPrioritization(ctx context.Context, iface string, direction domain.Direction, shares []ClassShare) error

	// AddTrafficFilter binds a classifier's match (protocol, port range,
	// optional DSCP) to the shaping class identified by classRef.
	AddTrafficFilter(ctx context.Context, iface string, direction domain.Direction, classifier domain.TrafficClassifier, classRef string) error

	// Clear resets the interface/direction to an unshaped baseline. It is
	// a no-op when no shaping state exists.
	Clear(ctx context.Context, iface string, direction domain.Direction) error

	// InterfaceStats returns the device's raw statistics blob for iface.
	InterfaceStats(ctx context.Context, iface string) (string, error)

	// TestConnection verifies the traffic-control backend is reachable.
	TestConnection(ctx context.Context) error
}

// TrafficGenerator drives synthetic load at a target for the lifetime of one
// compliance test.
type TrafficGenerator interface {
	// Start begins generating traffic. A returned error means nothing was
	// started and Stop must not be called.
	Start(ctx context.Context) error
	// Stop terminates generation and releases resources. Safe to call
	// exactly once after a successful Start.
	Stop() error
}

// GeneratorFactory builds a generator bound to one target and profile.
type GeneratorFactory interface {
	New(targetAddress string, profile domain.TrafficProfile) TrafficGenerator
}

// Monitor samples instantaneous performance metrics for an interface.
type Monitor interface {
	InterfaceMetrics(ctx context.Context, interfaceName string) (*domain.MetricSample, error)
}

// TargetProber checks that a compliance-test target is reachable before load
// is offered at it.
type TargetProber interface {
	Probe(ctx context.Context, targetAddress string, port int, protocol domain.Protocol) error
}
