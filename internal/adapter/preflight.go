package adapter

import (
	"context"
	"fmt"
	"strconv"
	"time"

	nmap "github.com/Ullaakut/nmap/v3"

	"trafficwarden/internal/domain"
)

// NmapProber implements TargetProber with a one-host nmap scan, verifying
// the compliance-test target is up and listening on the profile's port
// before any load is offered at it.
type NmapProber struct {
	Timeout time.Duration
}

// Probe scans the target's port. It returns an unavailable error when the
// host is down or the port is not open.
func (p *NmapProber) Probe(ctx context.Context, targetAddress string, port int, protocol domain.Protocol) error {
	timeout := p.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	opts := []nmap.Option{
		nmap.WithTargets(targetAddress),
		nmap.WithPorts(strconv.Itoa(port)),
		nmap.WithSkipHostDiscovery(),
	}
	if protocol == domain.ProtocolUDP {
		opts = append(opts, nmap.WithUDPScan())
	}

	scanner, err := nmap.NewScanner(ctx, opts...)
	if err != nil {
		return domain.Unavailable(err, "creating scanner for %s", targetAddress)
	}

	result, _, err := scanner.Run()
	if err != nil {
		return domain.Unavailable(err, "probing %s", targetAddress)
	}

	for _, host := range result.Hosts {
		if host.Status.State != "up" {
			continue
		}
		for _, p := range host.Ports {
			// UDP scans commonly report open|filtered for live ports.
			if int(p.ID) == port && (p.State.State == "open" || p.State.State == "open|filtered") {
				return nil
			}
		}
	}
	return domain.Unavailable(fmt.Errorf("port %d/%s not open", port, protocol),
		"target %s not ready", targetAddress)
}
