package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"trafficwarden/internal/adapter"
	"trafficwarden/internal/domain"
	"trafficwarden/internal/repository"
)

// PolicyApplicationEngine translates a policy's classes into live shaping
// state on one interface/direction through the traffic-control port.
//
// Operations on the same (interface, direction) pair are serialized with an
// internal lock, so two concurrent applies cannot interleave their tc
// commands or both record an active assignment.
type PolicyApplicationEngine struct {
	store      repository.Store
	tc         adapter.TrafficController
	bus        *EventBus
	capacities map[string]int64
	log        *logrus.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewPolicyApplicationEngine creates an application engine. capacities maps
// interface names to their configured capacity in bits per second.
func NewPolicyApplicationEngine(store repository.Store, tc adapter.TrafficController, bus *EventBus, capacities map[string]int64, log *logrus.Logger) *PolicyApplicationEngine {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &PolicyApplicationEngine{
		store:      store,
		tc:         tc,
		bus:        bus,
		capacities: capacities,
		log:        log,
		locks:      make(map[string]*sync.Mutex),
	}
}

func (e *PolicyApplicationEngine) pairLock(iface string, direction domain.Direction) *sync.Mutex {
	key := iface + "|" + string(direction)
	e.mu.Lock()
	defer e.mu.Unlock()
	if l, ok := e.locks[key]; ok {
		return l
	}
	l := &sync.Mutex{}
	e.locks[key] = l
	return l
}

// ApplyPolicy programs the policy's classes onto the interface in the given
// direction and records the assignment. Re-applying is idempotent: existing
// shaping state is cleared before the new hierarchy is installed.
func (e *PolicyApplicationEngine) ApplyPolicy(ctx context.Context, policyID, interfaceID string, direction domain.Direction) (*domain.InterfaceQoSPolicy, error) {
	if !domain.ValidDirection(direction) {
		return nil, domain.Validation("invalid direction %q", direction)
	}

	lock := e.pairLock(interfaceID, direction)
	lock.Lock()
	defer lock.Unlock()

	return e.applyLocked(ctx, policyID, interfaceID, direction)
}

// applyLocked is the apply sequence; callers hold the pair lock.
func (e *PolicyApplicationEngine) applyLocked(ctx context.Context, policyID, interfaceID string, direction domain.Direction) (*domain.InterfaceQoSPolicy, error) {
	policy, err := e.store.GetPolicy(ctx, policyID)
	if err != nil {
		return nil, fmt.Errorf("loading policy: %w", err)
	}
	if policy == nil {
		return nil, domain.NotFound("policy %s not found", policyID)
	}

	classes, err := e.store.ListTrafficClasses(ctx, policyID)
	if err != nil {
		return nil, fmt.Errorf("loading traffic classes: %w", err)
	}
	if len(classes) == 0 {
		return nil, domain.Validation("policy %q has no traffic classes, nothing to apply", policy.Name)
	}

	capacity, ok := e.capacities[interfaceID]
	if !ok {
		return nil, domain.NotFound("interface %s has no configured capacity", interfaceID)
	}

	ordered := orderClasses(classes)
	shares := BuildShares(ordered, capacity)

	existing, err := e.store.GetActiveAssignment(ctx, interfaceID, direction)
	if err != nil {
		return nil, fmt.Errorf("loading active assignment: %w", err)
	}

	// Clear first so a re-apply never accumulates duplicate filters.
	if err := e.tc.Clear(ctx, interfaceID, direction); err != nil {
		return nil, domain.Unavailable(err, "clearing shaping state on %s/%s", interfaceID, direction)
	}

	if err := e.tc.SetTrafficPrioritization(ctx, interfaceID, direction, shares); err != nil {
		e.deactivateAfterFailure(ctx, existing)
		return nil, domain.Unavailable(err, "installing class hierarchy on %s/%s", interfaceID, direction)
	}

	for i, class := range ordered {
		classifiers, err := e.store.ListClassifiers(ctx, class.ID)
		if err != nil {
			e.deactivateAfterFailure(ctx, existing)
			return nil, fmt.Errorf("loading classifiers for %s: %w", class.Name, err)
		}
		for _, classifier := range classifiers {
			if err := e.tc.AddTrafficFilter(ctx, interfaceID, direction, classifier, shares[i].ClassRef); err != nil {
				e.deactivateAfterFailure(ctx, existing)
				return nil, domain.Unavailable(err, "adding filter %q on %s/%s", classifier.Name, interfaceID, direction)
			}
		}
	}

	now := time.Now()
	assignment := existing
	if assignment != nil && assignment.PolicyID != policyID {
		// A different policy holds the active slot; it was cleared from the
		// wire above, so release its row before taking the slot.
		if err := e.store.SetAssignmentActive(ctx, assignment.ID, false); err != nil {
			return nil, fmt.Errorf("releasing previous assignment: %w", err)
		}
		assignment = nil
	}
	if assignment == nil {
		// Reuse a disabled row for this policy/pair so toggling keeps the
		// assignment's identity.
		prior, err := e.findAssignment(ctx, policyID, interfaceID, direction)
		if err != nil {
			return nil, err
		}
		assignment = prior
	}
	if assignment == nil {
		assignment = &domain.InterfaceQoSPolicy{
			ID:          uuid.NewString(),
			InterfaceID: interfaceID,
			PolicyID:    policyID,
			Direction:   direction,
			CreatedAt:   now,
		}
	}
	assignment.IsActive = true
	assignment.UpdatedAt = now
	if err := e.store.UpsertAssignment(ctx, assignment); err != nil {
		return nil, fmt.Errorf("recording assignment: %w", err)
	}

	e.log.WithFields(logrus.Fields{
		"policy":    policy.Name,
		"interface": interfaceID,
		"direction": direction,
		"classes":   len(classes),
	}).Info("policy applied")
	e.bus.Publish(Event{
		Type:        EventPolicyApplied,
		Entity:      "interface_qos_policy",
		EntityID:    assignment.ID,
		PolicyID:    policyID,
		InterfaceID: interfaceID,
		Direction:   direction,
	})
	return assignment, nil
}

// findAssignment returns the policy's assignment row for the pair, active or
// not, or nil when none exists.
func (e *PolicyApplicationEngine) findAssignment(ctx context.Context, policyID, interfaceID string, direction domain.Direction) (*domain.InterfaceQoSPolicy, error) {
	assignments, err := e.store.ListAssignments(ctx, policyID)
	if err != nil {
		return nil, fmt.Errorf("listing assignments: %w", err)
	}
	for i := range assignments {
		if assignments[i].InterfaceID == interfaceID && assignments[i].Direction == direction {
			return &assignments[i], nil
		}
	}
	return nil, nil
}

// deactivateAfterFailure makes sure a half-applied interface is not recorded
// as actively shaped.
func (e *PolicyApplicationEngine) deactivateAfterFailure(ctx context.Context, existing *domain.InterfaceQoSPolicy) {
	if existing == nil {
		return
	}
	if err := e.store.SetAssignmentActive(ctx, existing.ID, false); err != nil {
		e.log.WithError(err).WithField("assignment", existing.ID).
			Error("failed to deactivate assignment after apply failure")
	}
}

// RemovePolicy clears the interface/direction's shaping state as a unit and
// deletes the assignment record.
func (e *PolicyApplicationEngine) RemovePolicy(ctx context.Context, assignmentID string) error {
	assignment, err := e.store.GetAssignment(ctx, assignmentID)
	if err != nil {
		return fmt.Errorf("loading assignment: %w", err)
	}
	if assignment == nil {
		return domain.NotFound("interface policy %s not found", assignmentID)
	}

	lock := e.pairLock(assignment.InterfaceID, assignment.Direction)
	lock.Lock()
	defer lock.Unlock()

	if err := e.tc.Clear(ctx, assignment.InterfaceID, assignment.Direction); err != nil {
		return domain.Unavailable(err, "clearing shaping state on %s/%s",
			assignment.InterfaceID, assignment.Direction)
	}

	if err := e.store.DeleteAssignment(ctx, assignmentID); err != nil {
		return fmt.Errorf("deleting assignment: %w", err)
	}

	e.bus.Publish(Event{
		Type:        EventPolicyRemoved,
		Entity:      "interface_qos_policy",
		EntityID:    assignmentID,
		PolicyID:    assignment.PolicyID,
		InterfaceID: assignment.InterfaceID,
		Direction:   assignment.Direction,
	})
	return nil
}

// ToggleStatus pauses or resumes an assignment without losing its
// configuration. Disabling clears the wire state; enabling re-runs the full
// apply sequence.
func (e *PolicyApplicationEngine) ToggleStatus(ctx context.Context, assignmentID string, active bool) error {
	assignment, err := e.store.GetAssignment(ctx, assignmentID)
	if err != nil {
		return fmt.Errorf("loading assignment: %w", err)
	}
	if assignment == nil {
		return domain.NotFound("interface policy %s not found", assignmentID)
	}
	if assignment.IsActive == active {
		return nil
	}
	oldActive := assignment.IsActive

	lock := e.pairLock(assignment.InterfaceID, assignment.Direction)
	lock.Lock()
	defer lock.Unlock()

	if active {
		if _, err := e.applyLocked(ctx, assignment.PolicyID, assignment.InterfaceID, assignment.Direction); err != nil {
			return err
		}
	} else {
		if err := e.tc.Clear(ctx, assignment.InterfaceID, assignment.Direction); err != nil {
			return domain.Unavailable(err, "clearing shaping state on %s/%s",
				assignment.InterfaceID, assignment.Direction)
		}
		if err := e.store.SetAssignmentActive(ctx, assignmentID, false); err != nil {
			return fmt.Errorf("deactivating assignment: %w", err)
		}
	}

	e.bus.Publish(Event{
		Type:        EventStatusChanged,
		Entity:      "interface_qos_policy",
		EntityID:    assignmentID,
		PolicyID:    assignment.PolicyID,
		InterfaceID: assignment.InterfaceID,
		Direction:   assignment.Direction,
		OldActive:   &oldActive,
		NewActive:   &active,
	})
	return nil
}

// BuildShares translates classes into concrete shaping shares against the
// interface capacity. The result is deterministic for a given class set:
// classes are ordered by priority rank, then id, and class refs are assigned
// from that ordering. Every class may borrow up to the full capacity when
// higher-ranked classes leave bandwidth unused.
func BuildShares(classes []domain.TrafficClass, capacityBps int64) []adapter.ClassShare {
	ordered := orderClasses(classes)
	shares := make([]adapter.ClassShare, len(ordered))
	for i, class := range ordered {
		shares[i] = adapter.ClassShare{
			ClassRef:   fmt.Sprintf("1:%d", 10+i),
			Name:       class.Name,
			Rank:       class.Priority.Rank(),
			RateBps:    int64(float64(capacityBps) * class.BandwidthPercentage / 100),
			CeilBps:    capacityBps,
			BurstBytes: class.MaxBurst,
			DSCP:       class.DSCPMarking,
		}
	}
	return shares
}

// orderClasses sorts by priority rank, breaking ties by id, so share
// assignment is stable for a given class set.
func orderClasses(classes []domain.TrafficClass) []domain.TrafficClass {
	ordered := make([]domain.TrafficClass, len(classes))
	copy(ordered, classes)
	sort.SliceStable(ordered, func(i, j int) bool {
		ri, rj := ordered[i].Priority.Rank(), ordered[j].Priority.Rank()
		if ri != rj {
			return ri < rj
		}
		return ordered[i].ID < ordered[j].ID
	})
	return ordered
}
