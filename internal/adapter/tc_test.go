package adapter

import (
	"context"
	"errors"
	"strings"
	"testing"

	"trafficwarden/internal/domain"
)

// fakeRunner records rendered command lines and can fail or answer
// particular commands.
type fakeRunner struct {
	commands []string
	failWith error
	output   string
}

func (r *fakeRunner) Run(_ context.Context, name string, args ...string) (string, error) {
	r.commands = append(r.commands, name+" "+strings.Join(args, " "))
	if r.failWith != nil {
		return r.output, r.failWith
	}
	return r.output, nil
}

func testShares() []ClassShare {
	return []ClassShare{
		{ClassRef: "1:10", Name: "voice", Rank: 0, RateBps: 300_000_000, CeilBps: 1_000_000_000, DSCP: "ef"},
		{ClassRef: "1:11", Name: "bulk", Rank: 4, RateBps: 100_000_000, CeilBps: 1_000_000_000, BurstBytes: 15000},
	}
}

func TestSetTrafficPrioritization(t *testing.T) {
	runner := &fakeRunner{}
	tc := NewTCAdapter(runner, nil)

	err := tc.SetTrafficPrioritization(context.Background(), "eth0", domain.DirectionEgress, testShares())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	want := []string{
		"tc qdisc replace dev eth0 root handle 1: htb default 11",
		"tc class replace dev eth0 parent 1: classid 1:10 htb rate 300mbit ceil 1gbit prio 0",
		"tc class replace dev eth0 parent 1: classid 1:11 htb rate 100mbit ceil 1gbit prio 4 burst 15000b",
	}
	if len(runner.commands) != len(want) {
		t.Fatalf("unexpected commands: %v", runner.commands)
	}
	for i, cmd := range want {
		if runner.commands[i] != cmd {
			t.Errorf("command %d:\n  want %q\n  got  %q", i, cmd, runner.commands[i])
		}
	}
}

func TestSetTrafficPrioritizationIngressUsesIFB(t *testing.T) {
	runner := &fakeRunner{}
	tc := NewTCAdapter(runner, nil)

	if err := tc.SetTrafficPrioritization(context.Background(), "eth0", domain.DirectionIngress, testShares()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.Contains(runner.commands[0], "dev ifb-eth0") {
		t.Errorf("expected ifb device for ingress, got %q", runner.commands[0])
	}
}

func TestAddTrafficFilter(t *testing.T) {
	classifier := domain.TrafficClassifier{
		Name:                 "rtp",
		Protocol:             domain.ProtocolUDP,
		DestinationPortStart: 10000,
		DestinationPortEnd:   20000,
	}

	t.Run("filter steers to the class", func(t *testing.T) {
		runner := &fakeRunner{}
		tc := NewTCAdapter(runner, nil)

		if err := tc.AddTrafficFilter(context.Background(), "eth0", domain.DirectionEgress, classifier, "1:10"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(runner.commands) != 1 {
			t.Fatalf("expected one command, got %v", runner.commands)
		}
		cmd := runner.commands[0]
		for _, fragment := range []string{"flower", "ip_proto udp", "dst_port 10000-20000", "classid 1:10"} {
			if !strings.Contains(cmd, fragment) {
				t.Errorf("expected %q in %q", fragment, cmd)
			}
		}
	})

	t.Run("class mark becomes a pedit action", func(t *testing.T) {
		runner := &fakeRunner{}
		tc := NewTCAdapter(runner, nil)

		// Install the hierarchy first so the adapter knows 1:10 marks ef.
		if err := tc.SetTrafficPrioritization(context.Background(), "eth0", domain.DirectionEgress, testShares()); err != nil {
			t.Fatalf("prioritize: %v", err)
		}
		runner.commands = nil

		if err := tc.AddTrafficFilter(context.Background(), "eth0", domain.DirectionEgress, classifier, "1:10"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		// ef is 46; shifted into the dsfield it is 0xb8.
		if !strings.Contains(runner.commands[0], "pedit ex munge ip dsfield set 0xb8") {
			t.Errorf("expected dscp marking action, got %q", runner.commands[0])
		}
	})

	t.Run("protocol any installs tcp and udp filters", func(t *testing.T) {
		runner := &fakeRunner{}
		tc := NewTCAdapter(runner, nil)

		anyClassifier := classifier
		anyClassifier.Protocol = domain.ProtocolAny
		if err := tc.AddTrafficFilter(context.Background(), "eth0", domain.DirectionEgress, anyClassifier, "1:10"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(runner.commands) != 2 {
			t.Fatalf("expected two commands, got %v", runner.commands)
		}
		if !strings.Contains(runner.commands[0], "ip_proto tcp") || !strings.Contains(runner.commands[1], "ip_proto udp") {
			t.Errorf("expected tcp and udp filters, got %v", runner.commands)
		}
	})
}

func TestClear(t *testing.T) {
	t.Run("issues a root qdisc delete", func(t *testing.T) {
		runner := &fakeRunner{}
		tc := NewTCAdapter(runner, nil)

		if err := tc.Clear(context.Background(), "eth0", domain.DirectionEgress); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if runner.commands[0] != "tc qdisc del dev eth0 root" {
			t.Errorf("unexpected command: %q", runner.commands[0])
		}
	})

	t.Run("absent qdisc is not an error", func(t *testing.T) {
		runner := &fakeRunner{
			failWith: errors.New("exit status 2"),
			output:   "Error: Cannot delete qdisc with handle of zero.",
		}
		tc := NewTCAdapter(runner, nil)

		if err := tc.Clear(context.Background(), "eth0", domain.DirectionEgress); err != nil {
			t.Errorf("expected absent qdisc to be tolerated, got %v", err)
		}
	})

	t.Run("other failures propagate", func(t *testing.T) {
		runner := &fakeRunner{
			failWith: errors.New("exit status 1"),
			output:   "RTNETLINK answers: Operation not permitted",
		}
		tc := NewTCAdapter(runner, nil)

		if err := tc.Clear(context.Background(), "eth0", domain.DirectionEgress); err == nil {
			t.Error("expected error")
		}
	})
}

func TestFormatRate(t *testing.T) {
	cases := []struct {
		bps  int64
		want string
	}{
		{1_000_000_000, "1gbit"},
		{300_000_000, "300mbit"},
		{1_500_000, "1500kbit"},
		{64_000, "64kbit"},
		{1500, "1500bit"},
	}
	for _, c := range cases {
		if got := formatRate(c.bps); got != c.want {
			t.Errorf("formatRate(%d): expected %s, got %s", c.bps, c.want, got)
		}
	}
}

func TestDSCPValue(t *testing.T) {
	if v, ok := DSCPValue("ef"); !ok || v != 46 {
		t.Errorf("ef: expected 46, got %d (%v)", v, ok)
	}
	if v, ok := DSCPValue("af41"); !ok || v != 34 {
		t.Errorf("af41: expected 34, got %d (%v)", v, ok)
	}
	if _, ok := DSCPValue("platinum"); ok {
		t.Error("expected unknown code point to miss")
	}
}
