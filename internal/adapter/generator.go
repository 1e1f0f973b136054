package adapter

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"trafficwarden/internal/domain"
)

// IperfFactory builds traffic generators that drive load with an iperf3
// client process. The target address is expected to run an iperf3 server on
// the profile's port.
type IperfFactory struct {
	// BinPath is the iperf3 binary; defaults to "iperf3" on PATH.
	BinPath string
	Log     *logrus.Logger
}

// New returns a generator bound to one target and profile.
func (f *IperfFactory) New(targetAddress string, profile domain.TrafficProfile) TrafficGenerator {
	bin := f.BinPath
	if bin == "" {
		bin = "iperf3"
	}
	log := f.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &iperfGenerator{
		bin:     bin,
		target:  targetAddress,
		profile: profile,
		log:     log,
	}
}

type iperfGenerator struct {
	bin     string
	target  string
	profile domain.TrafficProfile

	mu       sync.Mutex
	cmd      *exec.Cmd
	waitDone chan error
	log      *logrus.Logger
}

// Start launches the iperf3 client. On error nothing is running and Stop
// must not be called.
func (g *iperfGenerator) Start(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cmd != nil {
		return fmt.Errorf("generator already started")
	}

	args := []string{
		"-c", g.target,
		"-p", strconv.Itoa(g.profile.Port),
		"-b", strconv.FormatInt(g.profile.BandwidthBps, 10),
		"-l", strconv.Itoa(g.profile.PacketSize),
		// Run a little past the sampling window; Stop kills the process
		// once sampling is done.
		"-t", strconv.Itoa(int(g.profile.Duration/time.Second) + 5),
	}
	if g.profile.Protocol == domain.ProtocolUDP {
		args = append(args, "-u")
	}

	cmd := exec.Command(g.bin, args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting %s: %w", g.bin, err)
	}

	// Fail fast if the client exits immediately (e.g. no server listening).
	exited := make(chan error, 1)
	go func() { exited <- cmd.Wait() }()
	select {
	case err := <-exited:
		return fmt.Errorf("%s exited immediately: %v", g.bin, err)
	case <-time.After(500 * time.Millisecond):
	case <-ctx.Done():
		cmd.Process.Kill()
		<-exited
		return ctx.Err()
	}

	g.cmd = cmd
	g.waitDone = exited
	g.log.WithFields(logrus.Fields{"target": g.target, "profile": g.profile.Name}).Debug("traffic generator started")
	return nil
}

// Stop kills the client process and reaps it.
func (g *iperfGenerator) Stop() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cmd == nil {
		return fmt.Errorf("generator not started")
	}

	if err := g.cmd.Process.Kill(); err != nil {
		g.log.WithError(err).Warn("killing traffic generator")
	}
	<-g.waitDone
	g.cmd = nil
	return nil
}
