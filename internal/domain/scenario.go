package domain

import (
	"strings"
	"time"
)

// QoSTestScenario fully defines one compliance test: what traffic to offer
// and what the measured performance must satisfy.
type QoSTestScenario struct {
	Name            string          `json:"name"`
	Description     string          `json:"description,omitempty"`
	TrafficProfile  TrafficProfile  `json:"traffic_profile"`
	ExpectedMetrics ExpectedMetrics `json:"expected_metrics"`
}

// Validate checks the scenario and its embedded value objects.
func (s QoSTestScenario) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return Validation("scenario name must not be empty")
	}
	if err := s.TrafficProfile.Validate(); err != nil {
		return err
	}
	return s.ExpectedMetrics.Validate()
}

// MetricSample is one instantaneous reading from the monitoring source.
// Latency and jitter are milliseconds, loss is a percentage, bandwidth is
// bits per second as observed on the wire.
type MetricSample struct {
	LatencyMs     float64   `json:"latency_ms"`
	JitterMs      float64   `json:"jitter_ms"`
	PacketLossPct float64   `json:"packet_loss_pct"`
	BandwidthBps  float64   `json:"bandwidth_bps"`
	Timestamp     time.Time `json:"timestamp"`
}

// AggregatedMetrics are the statistics computed over a test run's samples.
// Bandwidth figures are converted to kbps so they compare directly against
// ExpectedMetrics.MinBandwidthKbps.
type AggregatedMetrics struct {
	AvgLatencyMs     float64 `json:"avg_latency_ms"`
	MaxLatencyMs     float64 `json:"max_latency_ms"`
	AvgJitterMs      float64 `json:"avg_jitter_ms"`
	MaxJitterMs      float64 `json:"max_jitter_ms"`
	AvgPacketLossPct float64 `json:"avg_packet_loss_pct"`
	MaxPacketLossPct float64 `json:"max_packet_loss_pct"`
	AvgBandwidthKbps float64 `json:"avg_bandwidth_kbps"`
	MinBandwidthKbps float64 `json:"min_bandwidth_kbps"`
	SampleCount      int     `json:"sample_count"`
}

// CheckStatus is the outcome of one metric category's compliance check.
type CheckStatus string

const (
	CheckPassed CheckStatus = "passed"
	CheckFailed CheckStatus = "failed"
)

// MetricCheck records one category's threshold, the measured worst case, and
// whether it passed.
type MetricCheck struct {
	Threshold float64     `json:"threshold"`
	Actual    float64     `json:"actual"`
	Status    CheckStatus `json:"status"`
}

// ResultDetails is the per-category breakdown of a test result. Error is set
// only when the run aborted before producing checks.
type ResultDetails struct {
	Latency    *MetricCheck `json:"latency,omitempty"`
	Jitter     *MetricCheck `json:"jitter,omitempty"`
	PacketLoss *MetricCheck `json:"packet_loss,omitempty"`
	Bandwidth  *MetricCheck `json:"bandwidth,omitempty"`
	Error      string       `json:"error,omitempty"`
}

// QoSTestResult is the immutable outcome of one compliance test run.
type QoSTestResult struct {
	Scenario      QoSTestScenario   `json:"scenario"`
	Success       bool              `json:"success"`
	ActualMetrics AggregatedMetrics `json:"actual_metrics"`
	Details       ResultDetails     `json:"details"`
	StartedAt     time.Time         `json:"started_at"`
	CompletedAt   time.Time         `json:"completed_at"`
}
