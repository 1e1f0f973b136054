package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"trafficwarden/internal/adapter"
	"trafficwarden/internal/domain"
)

type fakeGenerator struct {
	startErr error
	started  bool
	stopped  bool
}

func (g *fakeGenerator) Start(context.Context) error {
	if g.startErr != nil {
		return g.startErr
	}
	g.started = true
	return nil
}

func (g *fakeGenerator) Stop() error {
	g.stopped = true
	return nil
}

type fakeFactory struct {
	generator *fakeGenerator
}

func (f *fakeFactory) New(string, domain.TrafficProfile) adapter.TrafficGenerator {
	return f.generator
}

// fakeMonitor replays a fixed sample sequence; entries with err set simulate
// a failed tick.
type fakeMonitor struct {
	samples []domain.MetricSample
	errs    []error
	next    int
}

func (m *fakeMonitor) InterfaceMetrics(context.Context, string) (*domain.MetricSample, error) {
	i := m.next
	m.next++
	if i < len(m.errs) && m.errs[i] != nil {
		return nil, m.errs[i]
	}
	if len(m.samples) == 0 {
		return &domain.MetricSample{}, nil
	}
	s := m.samples[i%len(m.samples)]
	return &s, nil
}

func testScenario(duration time.Duration) domain.QoSTestScenario {
	return domain.QoSTestScenario{
		Name: "voice-sla",
		TrafficProfile: domain.TrafficProfile{
			Name:         "voice-load",
			Protocol:     domain.ProtocolUDP,
			Port:         5060,
			BandwidthBps: 1_000_000,
			PacketSize:   200,
			Duration:     duration,
		},
		ExpectedMetrics: domain.ExpectedMetrics{
			MaxLatencyMs:     20,
			MaxJitterMs:      5,
			MaxPacketLossPct: 0.5,
			MinBandwidthKbps: 800,
		},
	}
}

func TestAnalyzeMetrics(t *testing.T) {
	t.Run("aggregates means and worst cases", func(t *testing.T) {
		samples := []domain.MetricSample{
			{LatencyMs: 10, JitterMs: 2, PacketLossPct: 0.1, BandwidthBps: 1_000_000},
			{LatencyMs: 15, JitterMs: 3, PacketLossPct: 0.2, BandwidthBps: 900_000},
		}

		agg := analyzeMetrics(samples)

		checks := []struct {
			name string
			got  float64
			want float64
		}{
			{"avg_latency", agg.AvgLatencyMs, 12.5},
			{"max_latency", agg.MaxLatencyMs, 15.0},
			{"avg_jitter", agg.AvgJitterMs, 2.5},
			{"max_jitter", agg.MaxJitterMs, 3.0},
			{"avg_packet_loss", agg.AvgPacketLossPct, 0.15},
			{"max_packet_loss", agg.MaxPacketLossPct, 0.2},
			{"avg_bandwidth_kbps", agg.AvgBandwidthKbps, 950.0},
			{"min_bandwidth_kbps", agg.MinBandwidthKbps, 900.0},
		}
		for _, c := range checks {
			if diff := c.got - c.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("%s: expected %v, got %v", c.name, c.want, c.got)
			}
		}
		if agg.SampleCount != 2 {
			t.Errorf("expected 2 samples, got %d", agg.SampleCount)
		}
	})

	t.Run("empty input yields zeroed aggregate", func(t *testing.T) {
		agg := analyzeMetrics(nil)
		if agg != (domain.AggregatedMetrics{}) {
			t.Errorf("expected zero aggregate, got %+v", agg)
		}
	})
}

func TestCheckCompliance(t *testing.T) {
	expected := domain.ExpectedMetrics{
		MaxLatencyMs:     20,
		MaxJitterMs:      5,
		MaxPacketLossPct: 0.5,
		MinBandwidthKbps: 800,
	}

	t.Run("all categories within thresholds pass", func(t *testing.T) {
		actual := domain.AggregatedMetrics{
			MaxLatencyMs:     15,
			MaxJitterMs:      3,
			MaxPacketLossPct: 0.2,
			MinBandwidthKbps: 900,
		}
		success, details := checkCompliance(actual, expected)
		if !success {
			t.Error("expected success")
		}
		for name, check := range map[string]*domain.MetricCheck{
			"latency": details.Latency, "jitter": details.Jitter,
			"packet_loss": details.PacketLoss, "bandwidth": details.Bandwidth,
		} {
			if check.Status != domain.CheckPassed {
				t.Errorf("%s: expected passed, got %s", name, check.Status)
			}
		}
	})

	t.Run("violations fail their categories only", func(t *testing.T) {
		actual := domain.AggregatedMetrics{
			MaxLatencyMs:     25,
			MaxJitterMs:      3,
			MaxPacketLossPct: 0.6,
			MinBandwidthKbps: 700,
		}
		success, details := checkCompliance(actual, expected)
		if success {
			t.Error("expected failure")
		}
		if details.Latency.Status != domain.CheckFailed {
			t.Error("expected latency failed")
		}
		if details.Jitter.Status != domain.CheckPassed {
			t.Error("expected jitter passed")
		}
		if details.PacketLoss.Status != domain.CheckFailed {
			t.Error("expected packet loss failed")
		}
		if details.Bandwidth.Status != domain.CheckFailed {
			t.Error("expected bandwidth failed")
		}
	})

	t.Run("thresholds are inclusive", func(t *testing.T) {
		actual := domain.AggregatedMetrics{
			MaxLatencyMs:     20,
			MaxJitterMs:      5,
			MaxPacketLossPct: 0.5,
			MinBandwidthKbps: 800,
		}
		if success, _ := checkCompliance(actual, expected); !success {
			t.Error("expected boundary values to pass")
		}
	})
}

func TestRunTest(t *testing.T) {
	newEngine := func(gen *fakeGenerator, mon *fakeMonitor, interval time.Duration) *ComplianceTestingEngine {
		log := newTestBus().log
		return NewComplianceTestingEngine(&fakeFactory{generator: gen}, mon, nil, interval, log)
	}

	t.Run("successful run samples and evaluates", func(t *testing.T) {
		gen := &fakeGenerator{}
		mon := &fakeMonitor{samples: []domain.MetricSample{
			{LatencyMs: 10, JitterMs: 2, PacketLossPct: 0.1, BandwidthBps: 1_000_000},
		}}
		engine := newEngine(gen, mon, 5*time.Millisecond)

		result := engine.RunTest(context.Background(), nil, testScenario(60*time.Millisecond), "10.0.0.2", "eth0")

		if !gen.stopped {
			t.Error("expected generator stopped")
		}
		if result.ActualMetrics.SampleCount == 0 {
			t.Fatal("expected at least one sample")
		}
		if !result.Success {
			t.Errorf("expected success, got %+v", result.Details)
		}
	})

	t.Run("generator start failure aborts without sampling or stop", func(t *testing.T) {
		gen := &fakeGenerator{startErr: errors.New("iperf3 not found")}
		mon := &fakeMonitor{}
		engine := newEngine(gen, mon, time.Millisecond)

		result := engine.RunTest(context.Background(), nil, testScenario(50*time.Millisecond), "10.0.0.2", "eth0")

		if result.Success {
			t.Error("expected failure")
		}
		if result.Details.Error == "" {
			t.Error("expected error detail")
		}
		if result.ActualMetrics.SampleCount != 0 {
			t.Error("expected no samples")
		}
		if gen.stopped {
			t.Error("stop must not be called when start failed")
		}
		if mon.next != 0 {
			t.Error("expected no monitor queries")
		}
	})

	t.Run("failed ticks are skipped, not fatal", func(t *testing.T) {
		gen := &fakeGenerator{}
		mon := &fakeMonitor{
			samples: []domain.MetricSample{
				{LatencyMs: 10, JitterMs: 2, PacketLossPct: 0.1, BandwidthBps: 1_000_000},
			},
			errs: []error{errors.New("prometheus timeout"), nil, errors.New("prometheus timeout")},
		}
		engine := newEngine(gen, mon, 5*time.Millisecond)

		result := engine.RunTest(context.Background(), nil, testScenario(80*time.Millisecond), "10.0.0.2", "eth0")

		if !gen.stopped {
			t.Error("expected generator stopped")
		}
		if result.ActualMetrics.SampleCount == 0 {
			t.Error("expected surviving samples despite failed ticks")
		}
	})

	t.Run("zero samples still yields a result and stops the generator", func(t *testing.T) {
		gen := &fakeGenerator{}
		// Every tick fails.
		mon := &fakeMonitor{errs: []error{
			errors.New("down"), errors.New("down"), errors.New("down"),
			errors.New("down"), errors.New("down"), errors.New("down"),
			errors.New("down"), errors.New("down"), errors.New("down"),
			errors.New("down"), errors.New("down"), errors.New("down"),
		}}
		engine := newEngine(gen, mon, 5*time.Millisecond)

		result := engine.RunTest(context.Background(), nil, testScenario(30*time.Millisecond), "10.0.0.2", "eth0")

		if !gen.stopped {
			t.Error("expected generator stopped even with zero samples")
		}
		if result.ActualMetrics.SampleCount != 0 {
			t.Errorf("expected zero samples, got %d", result.ActualMetrics.SampleCount)
		}
		// Zeroed bandwidth cannot meet the minimum threshold.
		if result.Success {
			t.Error("expected failure with zero samples")
		}
	})

	t.Run("cancellation ends sampling early and fails the run", func(t *testing.T) {
		gen := &fakeGenerator{}
		mon := &fakeMonitor{samples: []domain.MetricSample{
			{LatencyMs: 10, JitterMs: 2, PacketLossPct: 0.1, BandwidthBps: 1_000_000},
		}}
		engine := newEngine(gen, mon, 5*time.Millisecond)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		result := engine.RunTest(ctx, nil, testScenario(10*time.Second), "10.0.0.2", "eth0")

		if !gen.stopped {
			t.Error("expected generator stopped on cancellation")
		}
		if result.Success {
			t.Error("expected canceled run to fail")
		}
		if result.Details.Error == "" {
			t.Error("expected cancellation recorded in details")
		}
	})

	t.Run("unreachable preflight target aborts before generating", func(t *testing.T) {
		gen := &fakeGenerator{}
		mon := &fakeMonitor{}
		log := newTestBus().log
		engine := NewComplianceTestingEngine(
			&fakeFactory{generator: gen}, mon,
			proberFunc(func(context.Context, string, int, domain.Protocol) error {
				return errors.New("host down")
			}),
			time.Millisecond, log,
		)

		result := engine.RunTest(context.Background(), nil, testScenario(50*time.Millisecond), "10.0.0.2", "eth0")

		if result.Success {
			t.Error("expected failure")
		}
		if gen.started {
			t.Error("expected generator never started")
		}
	})
}

type proberFunc func(context.Context, string, int, domain.Protocol) error

func (f proberFunc) Probe(ctx context.Context, target string, port int, proto domain.Protocol) error {
	return f(ctx, target, port, proto)
}
