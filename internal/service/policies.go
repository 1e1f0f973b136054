package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"trafficwarden/internal/domain"
	"trafficwarden/internal/repository"
)

// PolicyService provides CRUD over QoS policies.
type PolicyService struct {
	store repository.Store
	bus   *EventBus
	log   *logrus.Logger
}

// NewPolicyService creates a policy service.
func NewPolicyService(store repository.Store, bus *EventBus, log *logrus.Logger) *PolicyService {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &PolicyService{store: store, bus: bus, log: log}
}

// CreatePolicy validates and persists a new policy.
func (s *PolicyService) CreatePolicy(ctx context.Context, name, description string, priority int) (*domain.QoSPolicy, error) {
	name = strings.TrimSpace(name)
	policy := domain.NewQoSPolicy(uuid.NewString(), name, description)
	policy.Priority = priority
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	existing, err := s.store.GetPolicyByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("checking policy name: %w", err)
	}
	if existing != nil {
		return nil, domain.Validation("policy %q already exists", name).WithDetail("name", name)
	}

	if err := s.store.CreatePolicy(ctx, policy); err != nil {
		return nil, fmt.Errorf("persisting policy: %w", err)
	}

	s.log.WithField("policy", name).Info("policy created")
	s.bus.Publish(Event{
		Type:     EventPolicyCreated,
		Entity:   "policy",
		EntityID: policy.ID,
	})
	return policy, nil
}

// GetPolicy loads one policy.
func (s *PolicyService) GetPolicy(ctx context.Context, id string) (*domain.QoSPolicy, error) {
	policy, err := s.store.GetPolicy(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading policy: %w", err)
	}
	if policy == nil {
		return nil, domain.NotFound("policy %s not found", id)
	}
	return policy, nil
}

// ListPolicies returns every policy.
func (s *PolicyService) ListPolicies(ctx context.Context) ([]domain.QoSPolicy, error) {
	return s.store.ListPolicies(ctx)
}

// ListAssignments returns the policy's interface assignments.
func (s *PolicyService) ListAssignments(ctx context.Context, policyID string) ([]domain.InterfaceQoSPolicy, error) {
	policy, err := s.store.GetPolicy(ctx, policyID)
	if err != nil {
		return nil, fmt.Errorf("loading policy: %w", err)
	}
	if policy == nil {
		return nil, domain.NotFound("policy %s not found", policyID)
	}
	return s.store.ListAssignments(ctx, policyID)
}

// PolicyUpdate is a partial policy update; nil fields are unchanged.
type PolicyUpdate struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	IsActive    *bool   `json:"is_active,omitempty"`
	Priority    *int    `json:"priority,omitempty"`
}

// UpdatePolicy applies a partial update and publishes the changes map.
func (s *PolicyService) UpdatePolicy(ctx context.Context, id string, update PolicyUpdate) (*domain.QoSPolicy, error) {
	policy, err := s.store.GetPolicy(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading policy: %w", err)
	}
	if policy == nil {
		return nil, domain.NotFound("policy %s not found", id)
	}

	changes := make(map[string]any)
	if update.Name != nil && *update.Name != policy.Name {
		name := strings.TrimSpace(*update.Name)
		other, err := s.store.GetPolicyByName(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("checking policy name: %w", err)
		}
		if other != nil && other.ID != id {
			return nil, domain.Validation("policy %q already exists", name).WithDetail("name", name)
		}
		changes["name"] = name
		policy.Name = name
	}
	if update.Description != nil && *update.Description != policy.Description {
		changes["description"] = *update.Description
		policy.Description = *update.Description
	}
	if update.IsActive != nil && *update.IsActive != policy.IsActive {
		changes["is_active"] = *update.IsActive
		policy.IsActive = *update.IsActive
	}
	if update.Priority != nil && *update.Priority != policy.Priority {
		changes["priority"] = *update.Priority
		policy.Priority = *update.Priority
	}
	if len(changes) == 0 {
		return policy, nil
	}

	if err := policy.Validate(); err != nil {
		return nil, err
	}
	policy.UpdatedAt = time.Now()
	if err := s.store.UpdatePolicy(ctx, policy); err != nil {
		return nil, fmt.Errorf("persisting policy: %w", err)
	}

	s.bus.Publish(Event{
		Type:     EventPolicyUpdated,
		Entity:   "policy",
		EntityID: id,
		Changes:  changes,
	})
	return policy, nil
}

// DeletePolicy removes a policy and, by cascade, its classes and
// classifiers. A policy that is actively applied to an interface is refused:
// remove it from the interface first so no live shaping state is orphaned.
func (s *PolicyService) DeletePolicy(ctx context.Context, id string) error {
	policy, err := s.store.GetPolicy(ctx, id)
	if err != nil {
		return fmt.Errorf("loading policy: %w", err)
	}
	if policy == nil {
		return domain.NotFound("policy %s not found", id)
	}

	assignments, err := s.store.ListAssignments(ctx, id)
	if err != nil {
		return fmt.Errorf("listing assignments: %w", err)
	}
	for _, a := range assignments {
		if a.IsActive {
			return domain.Validation("policy %q is applied to interface %s (%s); remove it first",
				policy.Name, a.InterfaceID, a.Direction).
				WithDetail("interface_id", a.InterfaceID)
		}
	}

	if err := s.store.DeletePolicy(ctx, id); err != nil {
		return fmt.Errorf("deleting policy: %w", err)
	}

	s.log.WithField("policy", policy.Name).Info("policy deleted")
	s.bus.Publish(Event{
		Type:     EventPolicyDeleted,
		Entity:   "policy",
		EntityID: id,
	})
	return nil
}
