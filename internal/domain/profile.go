package domain

import (
	"strings"
	"time"
)

// TrafficProfile describes the synthetic traffic a compliance test generates.
// It is a value object: construct it once, never mutate it.
type TrafficProfile struct {
	Name       string   `json:"name"`
	Protocol   Protocol `json:"protocol"`
	Port       int      `json:"port"`
	// BandwidthBps is the target offered load in bits per second.
	BandwidthBps int64 `json:"bandwidth_bps"`
	// PacketSize is the payload size in bytes.
	PacketSize int           `json:"packet_size"`
	Duration   time.Duration `json:"duration"`
}

// NewTrafficProfile validates and returns a traffic profile.
func NewTrafficProfile(name string, protocol Protocol, port int, bandwidthBps int64, packetSize int, duration time.Duration) (TrafficProfile, error) {
	p := TrafficProfile{
		Name:         name,
		Protocol:     protocol,
		Port:         port,
		BandwidthBps: bandwidthBps,
		PacketSize:   packetSize,
		Duration:     duration,
	}
	if err := p.Validate(); err != nil {
		return TrafficProfile{}, err
	}
	return p, nil
}

// Validate checks the profile's fields.
func (p TrafficProfile) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return Validation("traffic profile name must not be empty")
	}
	if !p.Protocol.Valid() || p.Protocol == ProtocolAny {
		return Validation("traffic profile protocol must be tcp or udp, got %q", p.Protocol)
	}
	if p.Port < 1 || p.Port > 65535 {
		return Validation("traffic profile port must be within [1,65535], got %d", p.Port)
	}
	if p.BandwidthBps <= 0 {
		return Validation("traffic profile bandwidth must be positive")
	}
	if p.PacketSize <= 0 {
		return Validation("traffic profile packet size must be positive")
	}
	if p.Duration <= 0 {
		return Validation("traffic profile duration must be positive")
	}
	return nil
}

// ExpectedMetrics holds the SLA thresholds a compliance scenario must meet.
// Latency and jitter are milliseconds, packet loss is a percentage, bandwidth
// is kilobits per second.
type ExpectedMetrics struct {
	MaxLatencyMs     float64 `json:"max_latency_ms"`
	MaxJitterMs      float64 `json:"max_jitter_ms"`
	MaxPacketLossPct float64 `json:"max_packet_loss_pct"`
	MinBandwidthKbps float64 `json:"min_bandwidth_kbps"`
}

// Validate checks the thresholds.
func (m ExpectedMetrics) Validate() error {
	if m.MaxLatencyMs < 0 || m.MaxJitterMs < 0 {
		return Validation("latency and jitter thresholds must not be negative")
	}
	if m.MaxPacketLossPct < 0 || m.MaxPacketLossPct > 100 {
		return Validation("max_packet_loss_pct must be within [0,100], got %v", m.MaxPacketLossPct)
	}
	if m.MinBandwidthKbps < 0 {
		return Validation("min_bandwidth_kbps must not be negative")
	}
	return nil
}
