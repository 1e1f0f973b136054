package adapter

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-ping/ping"
	"github.com/sirupsen/logrus"

	"trafficwarden/internal/domain"
)

// PingMonitor implements Monitor with ICMP probes for latency, jitter, and
// loss, and interface byte counters for observed transmit bandwidth. Each
// interface is associated with a probe target (typically the device on the
// far side of the link) via the targets map.
type PingMonitor struct {
	targets    map[string]string
	count      int
	timeout    time.Duration
	privileged bool
	log        *logrus.Logger

	mu   sync.Mutex
	last map[string]counterReading
}

type counterReading struct {
	bytes int64
	at    time.Time
}

// NewPingMonitor creates a monitor. targets maps interface names to the
// address pinged when that interface is sampled.
func NewPingMonitor(targets map[string]string, count int, timeout time.Duration, privileged bool, log *logrus.Logger) *PingMonitor {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if count <= 0 {
		count = 3
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &PingMonitor{
		targets:    targets,
		count:      count,
		timeout:    timeout,
		privileged: privileged,
		log:        log,
		last:       make(map[string]counterReading),
	}
}

// InterfaceMetrics probes the interface's target and reads its transmit
// counter, returning one instantaneous sample.
func (m *PingMonitor) InterfaceMetrics(ctx context.Context, interfaceName string) (*domain.MetricSample, error) {
	target, ok := m.targets[interfaceName]
	if !ok {
		return nil, domain.NotFound("no probe target configured for interface %s", interfaceName)
	}

	pinger, err := ping.NewPinger(target)
	if err != nil {
		return nil, fmt.Errorf("creating pinger for %s: %w", target, err)
	}
	pinger.Count = m.count
	pinger.Timeout = m.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < pinger.Timeout {
			pinger.Timeout = remaining
		}
	}
	pinger.SetPrivileged(m.privileged)

	if err := pinger.Run(); err != nil {
		return nil, domain.Unavailable(err, "probing %s", target)
	}
	stats := pinger.Statistics()
	if stats.PacketsRecv == 0 {
		return nil, domain.Unavailable(nil, "no probe replies from %s", target)
	}

	sample := &domain.MetricSample{
		LatencyMs:     float64(stats.AvgRtt) / float64(time.Millisecond),
		JitterMs:      float64(stats.StdDevRtt) / float64(time.Millisecond),
		PacketLossPct: stats.PacketLoss,
		BandwidthBps:  m.observedBandwidth(interfaceName),
		Timestamp:     time.Now(),
	}
	return sample, nil
}

// observedBandwidth derives bits/sec from the delta of the interface's
// transmit byte counter since the previous sample. The first sample on an
// interface reports zero.
func (m *PingMonitor) observedBandwidth(interfaceName string) float64 {
	bytes, err := readTxBytes(interfaceName)
	if err != nil {
		m.log.WithError(err).WithField("interface", interfaceName).Debug("cannot read tx counter")
		return 0
	}
	now := time.Now()

	m.mu.Lock()
	prev, ok := m.last[interfaceName]
	m.last[interfaceName] = counterReading{bytes: bytes, at: now}
	m.mu.Unlock()

	if !ok || bytes < prev.bytes {
		return 0
	}
	elapsed := now.Sub(prev.at).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(bytes-prev.bytes) * 8 / elapsed
}

func readTxBytes(interfaceName string) (int64, error) {
	path := fmt.Sprintf("/sys/class/net/%s/statistics/tx_bytes", interfaceName)
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
}
