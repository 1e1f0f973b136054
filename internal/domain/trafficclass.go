package domain

import (
	"strings"
	"time"
)

// Priority is a traffic class scheduling priority. Lower rank means first
// claim on spare bandwidth under HTB-style shaping.
type Priority string

const (
	PriorityHighest Priority = "highest"
	PriorityHigh    Priority = "high"
	PriorityNormal  Priority = "normal"
	PriorityLow     Priority = "low"
	PriorityLowest  Priority = "lowest"
)

var priorityRanks = map[Priority]int{
	PriorityHighest: 0,
	PriorityHigh:    1,
	PriorityNormal:  2,
	PriorityLow:     3,
	PriorityLowest:  4,
}

// Rank returns the numeric scheduling rank for p (0 = highest). Unknown
// priorities rank last.
func (p Priority) Rank() int {
	if r, ok := priorityRanks[p]; ok {
		return r
	}
	return len(priorityRanks)
}

// Valid reports whether p is one of the five known priorities.
func (p Priority) Valid() bool {
	_, ok := priorityRanks[p]
	return ok
}

// TrafficClass is one slice of a policy's bandwidth. Class names are unique
// within their policy, not globally.
type TrafficClass struct {
	ID       string   `json:"id"`
	PolicyID string   `json:"policy_id"`
	Name     string   `json:"name"`
	Priority Priority `json:"priority"`
	// BandwidthPercentage is this class's guaranteed share of the
	// interface capacity, in [0,100].
	BandwidthPercentage float64 `json:"bandwidth_percentage"`
	// DSCPMarking is the DiffServ code point name applied to matching
	// traffic, e.g. "ef" or "af41".
	DSCPMarking string `json:"dscp_marking,omitempty"`
	// MaxBurst caps burst size in bytes; zero means unset.
	MaxBurst int64 `json:"max_burst,omitempty"`
	// MaxLatencyMs is an informational latency target; zero means unset.
	MaxLatencyMs float64   `json:"max_latency_ms,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Validate checks the class's own fields. Per-policy name uniqueness is
// checked by the service, which can see the siblings.
func (c *TrafficClass) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return Validation("traffic class name must not be empty")
	}
	if !c.Priority.Valid() {
		return Validation("invalid priority %q", c.Priority).
			WithDetail("priority", string(c.Priority))
	}
	if c.BandwidthPercentage < 0 || c.BandwidthPercentage > 100 {
		return Validation("bandwidth_percentage must be within [0,100], got %v", c.BandwidthPercentage).
			WithDetail("bandwidth_percentage", c.BandwidthPercentage)
	}
	if c.MaxBurst < 0 {
		return Validation("max_burst must not be negative")
	}
	if c.MaxLatencyMs < 0 {
		return Validation("max_latency_ms must not be negative")
	}
	return nil
}

// TrafficClassUpdate is a partial update; nil fields are left unchanged.
type TrafficClassUpdate struct {
	Name                *string   `json:"name,omitempty"`
	Priority            *Priority `json:"priority,omitempty"`
	BandwidthPercentage *float64  `json:"bandwidth_percentage,omitempty"`
	DSCPMarking         *string   `json:"dscp_marking,omitempty"`
	MaxBurst            *int64    `json:"max_burst,omitempty"`
	MaxLatencyMs        *float64  `json:"max_latency_ms,omitempty"`
}

// Apply copies the set fields onto c and returns a map describing what
// changed, suitable for an update event payload.
func (u TrafficClassUpdate) Apply(c *TrafficClass) map[string]any {
	changes := make(map[string]any)
	if u.Name != nil && *u.Name != c.Name {
		changes["name"] = *u.Name
		c.Name = *u.Name
	}
	if u.Priority != nil && *u.Priority != c.Priority {
		changes["priority"] = string(*u.Priority)
		c.Priority = *u.Priority
	}
	if u.BandwidthPercentage != nil && *u.BandwidthPercentage != c.BandwidthPercentage {
		changes["bandwidth_percentage"] = *u.BandwidthPercentage
		c.BandwidthPercentage = *u.BandwidthPercentage
	}
	if u.DSCPMarking != nil && *u.DSCPMarking != c.DSCPMarking {
		changes["dscp_marking"] = *u.DSCPMarking
		c.DSCPMarking = *u.DSCPMarking
	}
	if u.MaxBurst != nil && *u.MaxBurst != c.MaxBurst {
		changes["max_burst"] = *u.MaxBurst
		c.MaxBurst = *u.MaxBurst
	}
	if u.MaxLatencyMs != nil && *u.MaxLatencyMs != c.MaxLatencyMs {
		changes["max_latency_ms"] = *u.MaxLatencyMs
		c.MaxLatencyMs = *u.MaxLatencyMs
	}
	return changes
}
