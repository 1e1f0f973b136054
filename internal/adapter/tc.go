package adapter

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"trafficwarden/internal/domain"
)

// TCAdapter implements TrafficController by driving the Linux tc(8) tool
// through a CommandRunner, either on this host or over SSH on a remote
// shaping device. Egress shaping installs an HTB hierarchy on the interface
// itself; ingress shaping targets the interface's ifb companion device, onto
// which ingress traffic is assumed to be redirected.
type TCAdapter struct {
	runner CommandRunner
	log    *logrus.Logger

	mu sync.Mutex
	// marks remembers, per device, which DSCP mark each installed class
	// carries, so filters added afterwards can attach the marking action.
	marks map[string]map[string]string
}

// NewTCAdapter creates a tc-backed traffic controller.
func NewTCAdapter(runner CommandRunner, log *logrus.Logger) *TCAdapter {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &TCAdapter{
		runner: runner,
		log:    log,
		marks:  make(map[string]map[string]string),
	}
}

func device(iface string, direction domain.Direction) string {
	if direction == domain.DirectionIngress {
		return "ifb-" + iface
	}
	return iface
}

// SetTrafficPrioritization replaces the device's root qdisc with an HTB
// hierarchy holding one class per share. Unclassified traffic defaults to
// the last (lowest-priority) class.
func (a *TCAdapter) SetTrafficPrioritization(ctx context.Context, iface string, direction domain.Direction, shares []ClassShare) error {
	if len(shares) == 0 {
		return fmt.Errorf("no class shares to install on %s", iface)
	}
	dev := device(iface, direction)

	defaultMinor := strings.TrimPrefix(shares[len(shares)-1].ClassRef, "1:")
	if _, err := a.runner.Run(ctx, "tc",
		"qdisc", "replace", "dev", dev, "root", "handle", "1:", "htb", "default", defaultMinor); err != nil {
		return fmt.Errorf("installing root qdisc on %s: %w", dev, err)
	}

	marks := make(map[string]string, len(shares))
	for _, share := range shares {
		args := []string{
			"class", "replace", "dev", dev, "parent", "1:", "classid", share.ClassRef,
			"htb", "rate", formatRate(share.RateBps), "ceil", formatRate(share.CeilBps),
			"prio", fmt.Sprintf("%d", share.Rank),
		}
		if share.BurstBytes > 0 {
			args = append(args, "burst", fmt.Sprintf("%db", share.BurstBytes))
		}
		if _, err := a.runner.Run(ctx, "tc", args...); err != nil {
			return fmt.Errorf("installing class %s (%s) on %s: %w", share.ClassRef, share.Name, dev, err)
		}
		if share.DSCP != "" {
			marks[share.ClassRef] = share.DSCP
		}
	}

	a.mu.Lock()
	a.marks[dev] = marks
	a.mu.Unlock()

	a.log.WithFields(logrus.Fields{"device": dev, "classes": len(shares)}).Debug("class hierarchy installed")
	return nil
}

// AddTrafficFilter installs a flower filter steering the classifier's match
// into the shaping class, attaching a DSCP-marking action when the class
// carries a mark. A protocol of "any" installs one filter per transport,
// since flower cannot match a port range without a transport protocol.
func (a *TCAdapter) AddTrafficFilter(ctx context.Context, iface string, direction domain.Direction, classifier domain.TrafficClassifier, classRef string) error {
	dev := device(iface, direction)

	protocols := []domain.Protocol{classifier.Protocol}
	if classifier.Protocol == domain.ProtocolAny {
		protocols = []domain.Protocol{domain.ProtocolTCP, domain.ProtocolUDP}
	}

	a.mu.Lock()
	mark := a.marks[dev][classRef]
	a.mu.Unlock()

	for _, proto := range protocols {
		args := []string{
			"filter", "add", "dev", dev, "parent", "1:", "protocol", "ip",
			"flower", "ip_proto", string(proto),
			"dst_port", fmt.Sprintf("%d-%d", classifier.DestinationPortStart, classifier.DestinationPortEnd),
		}
		if classifier.DSCPMarking != "" {
			if v, ok := DSCPValue(classifier.DSCPMarking); ok {
				args = append(args, "ip_tos", fmt.Sprintf("0x%x/0xfc", v<<2))
			}
		}
		if mark != "" {
			if v, ok := DSCPValue(mark); ok {
				args = append(args,
					"action", "pedit", "ex", "munge", "ip", "dsfield",
					"set", fmt.Sprintf("0x%x", v<<2), "retain", "0xfc", "pipe")
			}
		}
		args = append(args, "classid", classRef)

		if _, err := a.runner.Run(ctx, "tc", args...); err != nil {
			return fmt.Errorf("installing filter %q on %s: %w", classifier.Name, dev, err)
		}
	}
	return nil
}

// Clear deletes the device's root qdisc, resetting it to an unshaped
// baseline. A device with no qdisc installed is already clear.
func (a *TCAdapter) Clear(ctx context.Context, iface string, direction domain.Direction) error {
	dev := device(iface, direction)
	out, err := a.runner.Run(ctx, "tc", "qdisc", "del", "dev", dev, "root")
	if err != nil && !qdiscAbsent(out) {
		return fmt.Errorf("clearing qdisc on %s: %w", dev, err)
	}

	a.mu.Lock()
	delete(a.marks, dev)
	a.mu.Unlock()
	return nil
}

// qdiscAbsent recognizes tc's complaints about deleting a qdisc that was
// never installed.
func qdiscAbsent(out string) bool {
	return strings.Contains(out, "No such file or directory") ||
		strings.Contains(out, "Cannot delete qdisc with handle of zero")
}

// InterfaceStats returns tc's raw qdisc statistics blob for the interface.
func (a *TCAdapter) InterfaceStats(ctx context.Context, iface string) (string, error) {
	out, err := a.runner.Run(ctx, "tc", "-s", "qdisc", "show", "dev", iface)
	if err != nil {
		return "", fmt.Errorf("reading qdisc stats for %s: %w", iface, err)
	}
	return out, nil
}

// TestConnection verifies the tc binary is reachable through the runner.
func (a *TCAdapter) TestConnection(ctx context.Context) error {
	if _, err := a.runner.Run(ctx, "tc", "-V"); err != nil {
		return fmt.Errorf("tc unreachable: %w", err)
	}
	return nil
}

// formatRate renders a bits-per-second rate in tc's unit syntax, using the
// largest whole unit.
func formatRate(bps int64) string {
	switch {
	case bps >= 1_000_000_000 && bps%1_000_000_000 == 0:
		return fmt.Sprintf("%dgbit", bps/1_000_000_000)
	case bps >= 1_000_000 && bps%1_000_000 == 0:
		return fmt.Sprintf("%dmbit", bps/1_000_000)
	case bps >= 1_000 && bps%1_000 == 0:
		return fmt.Sprintf("%dkbit", bps/1_000)
	default:
		return fmt.Sprintf("%dbit", bps)
	}
}
