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

// TrafficClassService provides validated CRUD over a policy's traffic classes
// and their classifiers. Every mutation validates first, persists second, and
// publishes an event last, so a failure leaves no partial state behind.
type TrafficClassService struct {
	store repository.Store
	bus   *EventBus
	log   *logrus.Logger
}

// NewTrafficClassService creates a traffic class service.
func NewTrafficClassService(store repository.Store, bus *EventBus, log *logrus.Logger) *TrafficClassService {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &TrafficClassService{store: store, bus: bus, log: log}
}

// CreateTrafficClass validates and persists a new class under the given
// policy, then publishes a created event.
func (s *TrafficClassService) CreateTrafficClass(ctx context.Context, policyID string, class domain.TrafficClass) (*domain.TrafficClass, error) {
	policy, err := s.store.GetPolicy(ctx, policyID)
	if err != nil {
		return nil, fmt.Errorf("loading policy: %w", err)
	}
	if policy == nil {
		return nil, domain.NotFound("policy %s not found", policyID)
	}

	class.PolicyID = policyID
	class.Name = strings.TrimSpace(class.Name)
	if err := class.Validate(); err != nil {
		return nil, err
	}
	if err := s.checkNameUnique(ctx, policyID, class.Name, ""); err != nil {
		return nil, err
	}

	now := time.Now()
	class.ID = uuid.NewString()
	class.CreatedAt = now
	class.UpdatedAt = now

	if err := s.store.CreateTrafficClass(ctx, &class); err != nil {
		return nil, fmt.Errorf("persisting traffic class: %w", err)
	}

	s.log.WithFields(logrus.Fields{"class": class.Name, "policy": policyID}).Info("traffic class created")
	s.bus.Publish(Event{
		Type:     EventClassCreated,
		Entity:   "traffic_class",
		EntityID: class.ID,
		PolicyID: policyID,
	})
	return &class, nil
}

// UpdateTrafficClass applies a partial update to a class, re-validating the
// result, and publishes an updated event carrying the changes map.
func (s *TrafficClassService) UpdateTrafficClass(ctx context.Context, id string, update domain.TrafficClassUpdate) (*domain.TrafficClass, error) {
	class, err := s.store.GetTrafficClass(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading traffic class: %w", err)
	}
	if class == nil {
		return nil, domain.NotFound("traffic class %s not found", id)
	}

	changes := update.Apply(class)
	if len(changes) == 0 {
		return class, nil
	}
	class.Name = strings.TrimSpace(class.Name)

	if err := class.Validate(); err != nil {
		return nil, err
	}
	if _, renamed := changes["name"]; renamed {
		if err := s.checkNameUnique(ctx, class.PolicyID, class.Name, class.ID); err != nil {
			return nil, err
		}
	}

	class.UpdatedAt = time.Now()
	if err := s.store.UpdateTrafficClass(ctx, class); err != nil {
		return nil, fmt.Errorf("persisting traffic class: %w", err)
	}

	s.bus.Publish(Event{
		Type:     EventClassUpdated,
		Entity:   "traffic_class",
		EntityID: class.ID,
		PolicyID: class.PolicyID,
		Changes:  changes,
	})
	return class, nil
}

// DeleteTrafficClass removes a class. A class that still owns classifiers is
// refused; delete the classifiers first.
func (s *TrafficClassService) DeleteTrafficClass(ctx context.Context, id string) error {
	class, err := s.store.GetTrafficClass(ctx, id)
	if err != nil {
		return fmt.Errorf("loading traffic class: %w", err)
	}
	if class == nil {
		return domain.NotFound("traffic class %s not found", id)
	}

	n, err := s.store.CountClassifiers(ctx, id)
	if err != nil {
		return fmt.Errorf("counting classifiers: %w", err)
	}
	if n > 0 {
		return domain.Validation("traffic class %s still owns %d classifier(s)", class.Name, n).
			WithDetail("classifier_count", n)
	}

	if err := s.store.DeleteTrafficClass(ctx, id); err != nil {
		return fmt.Errorf("deleting traffic class: %w", err)
	}

	s.bus.Publish(Event{
		Type:     EventClassDeleted,
		Entity:   "traffic_class",
		EntityID: id,
		PolicyID: class.PolicyID,
	})
	return nil
}

// TrafficClassesByPolicy returns the policy's classes ordered by priority.
func (s *TrafficClassService) TrafficClassesByPolicy(ctx context.Context, policyID string) ([]domain.TrafficClass, error) {
	policy, err := s.store.GetPolicy(ctx, policyID)
	if err != nil {
		return nil, fmt.Errorf("loading policy: %w", err)
	}
	if policy == nil {
		return nil, domain.NotFound("policy %s not found", policyID)
	}
	return s.store.ListTrafficClasses(ctx, policyID)
}

func (s *TrafficClassService) checkNameUnique(ctx context.Context, policyID, name, excludeID string) error {
	siblings, err := s.store.ListTrafficClasses(ctx, policyID)
	if err != nil {
		return fmt.Errorf("listing sibling classes: %w", err)
	}
	for _, sib := range siblings {
		if sib.ID != excludeID && strings.EqualFold(sib.Name, name) {
			return domain.Validation("traffic class %q already exists in policy", name).
				WithDetail("name", name)
		}
	}
	return nil
}

// ============================================================================
// Classifiers
// ============================================================================

// CreateClassifier validates and persists a classifier under a class.
func (s *TrafficClassService) CreateClassifier(ctx context.Context, classID string, classifier domain.TrafficClassifier) (*domain.TrafficClassifier, error) {
	class, err := s.store.GetTrafficClass(ctx, classID)
	if err != nil {
		return nil, fmt.Errorf("loading traffic class: %w", err)
	}
	if class == nil {
		return nil, domain.NotFound("traffic class %s not found", classID)
	}

	classifier.ClassID = classID
	classifier.Name = strings.TrimSpace(classifier.Name)
	if err := classifier.Validate(); err != nil {
		return nil, err
	}

	now := time.Now()
	classifier.ID = uuid.NewString()
	classifier.CreatedAt = now
	classifier.UpdatedAt = now

	if err := s.store.CreateClassifier(ctx, &classifier); err != nil {
		return nil, fmt.Errorf("persisting classifier: %w", err)
	}

	s.bus.Publish(Event{
		Type:     EventClassifierCreated,
		Entity:   "traffic_classifier",
		EntityID: classifier.ID,
	})
	return &classifier, nil
}

// DeleteClassifier removes a classifier.
func (s *TrafficClassService) DeleteClassifier(ctx context.Context, id string) error {
	classifier, err := s.store.GetClassifier(ctx, id)
	if err != nil {
		return fmt.Errorf("loading classifier: %w", err)
	}
	if classifier == nil {
		return domain.NotFound("classifier %s not found", id)
	}

	if err := s.store.DeleteClassifier(ctx, id); err != nil {
		return fmt.Errorf("deleting classifier: %w", err)
	}

	s.bus.Publish(Event{
		Type:     EventClassifierDeleted,
		Entity:   "traffic_classifier",
		EntityID: id,
	})
	return nil
}

// ClassifiersByClass returns a class's classifiers.
func (s *TrafficClassService) ClassifiersByClass(ctx context.Context, classID string) ([]domain.TrafficClassifier, error) {
	class, err := s.store.GetTrafficClass(ctx, classID)
	if err != nil {
		return nil, fmt.Errorf("loading traffic class: %w", err)
	}
	if class == nil {
		return nil, domain.NotFound("traffic class %s not found", classID)
	}
	return s.store.ListClassifiers(ctx, classID)
}
