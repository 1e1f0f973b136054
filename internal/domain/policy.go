package domain

import (
	"strings"
	"time"
)

// QoSPolicy is a named set of traffic classes that together describe how an
// interface's bandwidth should be divided. Policies own their classes:
// deleting a policy removes every class (and classifier) under it.
type QoSPolicy struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	IsActive    bool      `json:"is_active"`
	// Priority orders policies when two of them compete for the same
	// interface assignment. Higher wins.
	Priority  int       `json:"priority"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewQoSPolicy creates a policy with timestamps initialized.
func NewQoSPolicy(id, name, description string) *QoSPolicy {
	now := time.Now()
	return &QoSPolicy{
		ID:          id,
		Name:        name,
		Description: description,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Validate checks the policy's own fields.
func (p *QoSPolicy) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return Validation("policy name must not be empty")
	}
	return nil
}

// Direction says which side of an interface a policy shapes.
type Direction string

const (
	DirectionIngress Direction = "ingress"
	DirectionEgress  Direction = "egress"
)

// ValidDirection reports whether d is a known direction.
func ValidDirection(d Direction) bool {
	return d == DirectionIngress || d == DirectionEgress
}

// InterfaceQoSPolicy records that a policy is applied to one interface in one
// direction. At most one assignment per (interface, direction) may be active.
type InterfaceQoSPolicy struct {
	ID          string    `json:"id"`
	InterfaceID string    `json:"interface_id"`
	PolicyID    string    `json:"policy_id"`
	Direction   Direction `json:"direction"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
