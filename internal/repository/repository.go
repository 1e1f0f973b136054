package repository

import (
	"context"

	"trafficwarden/internal/domain"
)

// Store is the persistence port for policies, classes, classifiers, and
// interface assignments. Lookups return (nil, nil) when the row does not
// exist; services translate that into a typed not-found error.
type Store interface {
	// Policies
	CreatePolicy(ctx context.Context, p *domain.QoSPolicy) error
	GetPolicy(ctx context.Context, id string) (*domain.QoSPolicy, error)
	GetPolicyByName(ctx context.Context, name string) (*domain.QoSPolicy, error)
	ListPolicies(ctx context.Context) ([]domain.QoSPolicy, error)
	UpdatePolicy(ctx context.Context, p *domain.QoSPolicy) error
	// DeletePolicy cascades to the policy's classes and their classifiers.
	DeletePolicy(ctx context.Context, id string) error

	// Traffic classes
	CreateTrafficClass(ctx context.Context, c *domain.TrafficClass) error
	GetTrafficClass(ctx context.Context, id string) (*domain.TrafficClass, error)
	// ListTrafficClasses returns the policy's classes ordered by priority
	// rank, then name.
	ListTrafficClasses(ctx context.Context, policyID string) ([]domain.TrafficClass, error)
	UpdateTrafficClass(ctx context.Context, c *domain.TrafficClass) error
	DeleteTrafficClass(ctx context.Context, id string) error
	CountClassifiers(ctx context.Context, classID string) (int, error)

	// Classifiers
	CreateClassifier(ctx context.Context, f *domain.TrafficClassifier) error
	GetClassifier(ctx context.Context, id string) (*domain.TrafficClassifier, error)
	ListClassifiers(ctx context.Context, classID string) ([]domain.TrafficClassifier, error)
	DeleteClassifier(ctx context.Context, id string) error

	// Interface assignments
	UpsertAssignment(ctx context.Context, a *domain.InterfaceQoSPolicy) error
	GetAssignment(ctx context.Context, id string) (*domain.InterfaceQoSPolicy, error)
	// GetActiveAssignment returns the single active assignment for an
	// interface/direction pair, if any.
	GetActiveAssignment(ctx context.Context, interfaceID string, direction domain.Direction) (*domain.InterfaceQoSPolicy, error)
	ListAssignments(ctx context.Context, policyID string) ([]domain.InterfaceQoSPolicy, error)
	SetAssignmentActive(ctx context.Context, id string, active bool) error
	DeleteAssignment(ctx context.Context, id string) error

	Close() error
}
