package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"trafficwarden/internal/adapter"
	"trafficwarden/internal/domain"
)

// RunState tracks where a compliance test run is in its lifecycle.
type RunState string

const (
	RunStateInit       RunState = "init"
	RunStateGenerating RunState = "generating"
	RunStateSampling   RunState = "sampling"
	RunStateStopped    RunState = "stopped"
	RunStateAnalyzed   RunState = "analyzed"
)

// ComplianceTestingEngine runs timed traffic tests and evaluates measured
// performance against a scenario's SLA thresholds. A run never returns an
// error: every failure mode degrades to a result with Success=false.
type ComplianceTestingEngine struct {
	generators adapter.GeneratorFactory
	monitor    adapter.Monitor
	// prober, when set, verifies target reachability before any load is
	// offered. A failed probe aborts the run the same way a generator
	// start failure does.
	prober         adapter.TargetProber
	sampleInterval time.Duration
	log            *logrus.Logger
}

// NewComplianceTestingEngine creates a compliance engine. prober may be nil.
func NewComplianceTestingEngine(generators adapter.GeneratorFactory, monitor adapter.Monitor, prober adapter.TargetProber, sampleInterval time.Duration, log *logrus.Logger) *ComplianceTestingEngine {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if sampleInterval <= 0 {
		sampleInterval = time.Second
	}
	return &ComplianceTestingEngine{
		generators:     generators,
		monitor:        monitor,
		prober:         prober,
		sampleInterval: sampleInterval,
		log:            log,
	}
}

// RunTest generates the scenario's traffic at targetAddress, samples
// interfaceName's metrics for the profile duration, and evaluates the
// aggregate against the scenario's thresholds. Cancelling ctx ends sampling
// early; the generator is stopped on every exit path after a successful
// start.
func (e *ComplianceTestingEngine) RunTest(ctx context.Context, policy *domain.QoSPolicy, scenario domain.QoSTestScenario, targetAddress, interfaceName string) *domain.QoSTestResult {
	started := time.Now()
	state := RunStateInit
	log := e.log.WithFields(logrus.Fields{
		"scenario":  scenario.Name,
		"interface": interfaceName,
		"target":    targetAddress,
	})
	if policy != nil {
		log = log.WithField("policy", policy.Name)
	}

	fail := func(msg string) *domain.QoSTestResult {
		return &domain.QoSTestResult{
			Scenario:    scenario,
			Success:     false,
			Details:     domain.ResultDetails{Error: msg},
			StartedAt:   started,
			CompletedAt: time.Now(),
		}
	}

	if err := scenario.Validate(); err != nil {
		log.WithError(err).Warn("invalid scenario")
		return fail(err.Error())
	}

	if e.prober != nil {
		if err := e.prober.Probe(ctx, targetAddress, scenario.TrafficProfile.Port, scenario.TrafficProfile.Protocol); err != nil {
			log.WithError(err).Warn("target preflight failed")
			return fail("target unreachable: " + err.Error())
		}
	}

	state = RunStateGenerating
	log.WithField("state", state).Debug("starting traffic generator")
	generator := e.generators.New(targetAddress, scenario.TrafficProfile)
	if err := generator.Start(ctx); err != nil {
		// Nothing started, so there is nothing to stop.
		log.WithError(err).Warn("traffic generator failed to start")
		return fail("traffic generator failed to start: " + err.Error())
	}

	state = RunStateSampling
	log.WithField("state", state).Debug("sampling interface metrics")
	samples, canceled := e.sample(ctx, interfaceName, scenario.TrafficProfile.Duration, log)

	state = RunStateStopped
	log.WithField("state", state).Debug("stopping traffic generator")
	if err := generator.Stop(); err != nil {
		log.WithError(err).Warn("traffic generator stop reported an error")
	}

	actual := analyzeMetrics(samples)
	success, details := checkCompliance(actual, scenario.ExpectedMetrics)
	if canceled {
		success = false
		details.Error = "test canceled before completing"
	}

	state = RunStateAnalyzed
	log.WithFields(logrus.Fields{
		"state":   state,
		"samples": actual.SampleCount,
		"success": success,
	}).Info("compliance test finished")

	return &domain.QoSTestResult{
		Scenario:      scenario,
		Success:       success,
		ActualMetrics: actual,
		Details:       details,
		StartedAt:     started,
		CompletedAt:   time.Now(),
	}
}

// sample collects one metrics reading per tick until the duration elapses or
// ctx is canceled. A failed tick is logged and skipped; it never aborts the
// run.
func (e *ComplianceTestingEngine) sample(ctx context.Context, interfaceName string, duration time.Duration, log *logrus.Entry) (samples []domain.MetricSample, canceled bool) {
	ticker := time.NewTicker(e.sampleInterval)
	defer ticker.Stop()
	deadline := time.NewTimer(duration)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			log.WithError(ctx.Err()).Warn("sampling canceled")
			return samples, true
		case <-deadline.C:
			return samples, false
		case <-ticker.C:
			sample, err := e.monitor.InterfaceMetrics(ctx, interfaceName)
			if err != nil {
				log.WithError(err).Debug("skipping failed metrics sample")
				continue
			}
			if sample.Timestamp.IsZero() {
				sample.Timestamp = time.Now()
			}
			samples = append(samples, *sample)
		}
	}
}

// analyzeMetrics aggregates raw samples into means and worst cases. Observed
// bandwidth is converted from bits/sec to kbps so it compares directly with
// the scenario thresholds. An empty sample list yields a zeroed aggregate.
func analyzeMetrics(samples []domain.MetricSample) domain.AggregatedMetrics {
	agg := domain.AggregatedMetrics{SampleCount: len(samples)}
	if len(samples) == 0 {
		return agg
	}

	var sumLatency, sumJitter, sumLoss, sumBandwidth float64
	agg.MinBandwidthKbps = samples[0].BandwidthBps / 1000

	for _, s := range samples {
		sumLatency += s.LatencyMs
		sumJitter += s.JitterMs
		sumLoss += s.PacketLossPct
		sumBandwidth += s.BandwidthBps

		if s.LatencyMs > agg.MaxLatencyMs {
			agg.MaxLatencyMs = s.LatencyMs
		}
		if s.JitterMs > agg.MaxJitterMs {
			agg.MaxJitterMs = s.JitterMs
		}
		if s.PacketLossPct > agg.MaxPacketLossPct {
			agg.MaxPacketLossPct = s.PacketLossPct
		}
		if kbps := s.BandwidthBps / 1000; kbps < agg.MinBandwidthKbps {
			agg.MinBandwidthKbps = kbps
		}
	}

	n := float64(len(samples))
	agg.AvgLatencyMs = sumLatency / n
	agg.AvgJitterMs = sumJitter / n
	agg.AvgPacketLossPct = sumLoss / n
	agg.AvgBandwidthKbps = sumBandwidth / n / 1000
	return agg
}

// checkCompliance compares the aggregate's worst-case statistics against the
// thresholds, one fixed direction per category: latency, jitter, and loss
// must stay at or below their maxima, bandwidth must stay at or above its
// minimum. Success is the AND of all four.
func checkCompliance(actual domain.AggregatedMetrics, expected domain.ExpectedMetrics) (bool, domain.ResultDetails) {
	atMost := func(actual, threshold float64) domain.CheckStatus {
		if actual <= threshold {
			return domain.CheckPassed
		}
		return domain.CheckFailed
	}
	atLeast := func(actual, threshold float64) domain.CheckStatus {
		if actual >= threshold {
			return domain.CheckPassed
		}
		return domain.CheckFailed
	}

	details := domain.ResultDetails{
		Latency: &domain.MetricCheck{
			Threshold: expected.MaxLatencyMs,
			Actual:    actual.MaxLatencyMs,
			Status:    atMost(actual.MaxLatencyMs, expected.MaxLatencyMs),
		},
		Jitter: &domain.MetricCheck{
			Threshold: expected.MaxJitterMs,
			Actual:    actual.MaxJitterMs,
			Status:    atMost(actual.MaxJitterMs, expected.MaxJitterMs),
		},
		PacketLoss: &domain.MetricCheck{
			Threshold: expected.MaxPacketLossPct,
			Actual:    actual.MaxPacketLossPct,
			Status:    atMost(actual.MaxPacketLossPct, expected.MaxPacketLossPct),
		},
		Bandwidth: &domain.MetricCheck{
			Threshold: expected.MinBandwidthKbps,
			Actual:    actual.MinBandwidthKbps,
			Status:    atLeast(actual.MinBandwidthKbps, expected.MinBandwidthKbps),
		},
	}

	success := details.Latency.Status == domain.CheckPassed &&
		details.Jitter.Status == domain.CheckPassed &&
		details.PacketLoss.Status == domain.CheckPassed &&
		details.Bandwidth.Status == domain.CheckPassed
	return success, details
}
