package domain

import (
	"strings"
	"time"
)

// Protocol selects which transport a classifier matches.
type Protocol string

const (
	ProtocolTCP Protocol = "tcp"
	ProtocolUDP Protocol = "udp"
	ProtocolAny Protocol = "any"
)

// Valid reports whether p is a known protocol.
func (p Protocol) Valid() bool {
	return p == ProtocolTCP || p == ProtocolUDP || p == ProtocolAny
}

// TrafficClassifier matches packets to a traffic class by transport protocol
// and destination port range.
type TrafficClassifier struct {
	ID                   string   `json:"id"`
	ClassID              string   `json:"class_id"`
	Name                 string   `json:"name"`
	Protocol             Protocol `json:"protocol"`
	DestinationPortStart int      `json:"destination_port_start"`
	DestinationPortEnd   int      `json:"destination_port_end"`
	// DSCPMarking optionally narrows the match to packets already carrying
	// this code point.
	DSCPMarking string    `json:"dscp_marking,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Validate checks the classifier's own fields.
func (c *TrafficClassifier) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return Validation("classifier name must not be empty")
	}
	if !c.Protocol.Valid() {
		return Validation("invalid protocol %q", c.Protocol).
			WithDetail("protocol", string(c.Protocol))
	}
	if c.DestinationPortStart < 0 || c.DestinationPortStart > 65535 ||
		c.DestinationPortEnd < 0 || c.DestinationPortEnd > 65535 {
		return Validation("ports must be within [0,65535]")
	}
	if c.DestinationPortStart > c.DestinationPortEnd {
		return Validation("destination_port_start %d exceeds destination_port_end %d",
			c.DestinationPortStart, c.DestinationPortEnd)
	}
	return nil
}
