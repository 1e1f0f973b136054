package sqlite

import (
	"context"
	"testing"
	"time"

	"trafficwarden/internal/domain"
)

// ============================================================================
// Test Helpers
// ============================================================================

// newTestRepo creates an in-memory SQLite repository for testing.
func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test repository: %v", err)
	}
	t.Cleanup(func() {
		repo.Close()
	})
	return repo
}

func assertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func seedPolicy(t *testing.T, repo *Repository, id, name string) *domain.QoSPolicy {
	t.Helper()
	p := domain.NewQoSPolicy(id, name, "test policy")
	assertNoError(t, repo.CreatePolicy(context.Background(), p))
	return p
}

func seedClass(t *testing.T, repo *Repository, id, policyID, name string, priority domain.Priority, pct float64) *domain.TrafficClass {
	t.Helper()
	now := time.Now()
	c := &domain.TrafficClass{
		ID:                  id,
		PolicyID:            policyID,
		Name:                name,
		Priority:            priority,
		BandwidthPercentage: pct,
		DSCPMarking:         "af21",
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	assertNoError(t, repo.CreateTrafficClass(context.Background(), c))
	return c
}

// ============================================================================
// Tests
// ============================================================================

func TestPolicyCRUD(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	p := seedPolicy(t, repo, "p1", "gold")

	t.Run("get by id and name", func(t *testing.T) {
		got, err := repo.GetPolicy(ctx, "p1")
		assertNoError(t, err)
		if got == nil || got.Name != "gold" {
			t.Fatalf("unexpected policy: %+v", got)
		}

		byName, err := repo.GetPolicyByName(ctx, "gold")
		assertNoError(t, err)
		if byName == nil || byName.ID != "p1" {
			t.Fatalf("unexpected policy by name: %+v", byName)
		}
	})

	t.Run("missing policy is nil", func(t *testing.T) {
		got, err := repo.GetPolicy(ctx, "nope")
		assertNoError(t, err)
		if got != nil {
			t.Fatalf("expected nil, got %+v", got)
		}
	})

	t.Run("duplicate name is rejected", func(t *testing.T) {
		dup := domain.NewQoSPolicy("p2", "gold", "")
		if err := repo.CreatePolicy(ctx, dup); err == nil {
			t.Fatal("expected unique constraint error")
		}
	})

	t.Run("update", func(t *testing.T) {
		p.Description = "updated"
		p.Priority = 10
		p.UpdatedAt = time.Now()
		assertNoError(t, repo.UpdatePolicy(ctx, p))

		got, err := repo.GetPolicy(ctx, "p1")
		assertNoError(t, err)
		if got.Description != "updated" || got.Priority != 10 {
			t.Fatalf("update not persisted: %+v", got)
		}
	})

	t.Run("delete cascades to classes and classifiers", func(t *testing.T) {
		c := seedClass(t, repo, "c1", "p1", "voice", domain.PriorityHighest, 30)
		now := time.Now()
		assertNoError(t, repo.CreateClassifier(ctx, &domain.TrafficClassifier{
			ID: "f1", ClassID: c.ID, Name: "sip", Protocol: domain.ProtocolUDP,
			DestinationPortStart: 5060, DestinationPortEnd: 5061,
			CreatedAt: now, UpdatedAt: now,
		}))

		assertNoError(t, repo.DeletePolicy(ctx, "p1"))

		gotClass, err := repo.GetTrafficClass(ctx, "c1")
		assertNoError(t, err)
		if gotClass != nil {
			t.Fatal("expected class removed by cascade")
		}
		gotClassifier, err := repo.GetClassifier(ctx, "f1")
		assertNoError(t, err)
		if gotClassifier != nil {
			t.Fatal("expected classifier removed by cascade")
		}
	})
}

func TestTrafficClassOrdering(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	seedPolicy(t, repo, "p1", "gold")

	// Insert out of priority order.
	seedClass(t, repo, "c-bulk", "p1", "bulk", domain.PriorityLowest, 10)
	seedClass(t, repo, "c-voice", "p1", "voice", domain.PriorityHighest, 30)
	seedClass(t, repo, "c-video", "p1", "video", domain.PriorityHigh, 40)
	seedClass(t, repo, "c-web", "p1", "web", domain.PriorityNormal, 20)

	classes, err := repo.ListTrafficClasses(ctx, "p1")
	assertNoError(t, err)

	want := []string{"voice", "video", "web", "bulk"}
	if len(classes) != len(want) {
		t.Fatalf("expected %d classes, got %d", len(want), len(classes))
	}
	for i, name := range want {
		if classes[i].Name != name {
			t.Errorf("position %d: expected %s, got %s", i, name, classes[i].Name)
		}
	}
}

func TestTrafficClassNameScopedPerPolicy(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	seedPolicy(t, repo, "p1", "gold")
	seedPolicy(t, repo, "p2", "silver")

	seedClass(t, repo, "c1", "p1", "voice", domain.PriorityHighest, 30)

	// Same name in another policy is fine.
	seedClass(t, repo, "c2", "p2", "voice", domain.PriorityHighest, 30)

	// Same name in the same policy violates the unique index.
	dup := &domain.TrafficClass{
		ID: "c3", PolicyID: "p1", Name: "voice", Priority: domain.PriorityLow,
		BandwidthPercentage: 5, CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	if err := repo.CreateTrafficClass(ctx, dup); err == nil {
		t.Fatal("expected unique constraint error for duplicate name in policy")
	}
}

func TestClassifierCRUDAndCount(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	seedPolicy(t, repo, "p1", "gold")
	seedClass(t, repo, "c1", "p1", "voice", domain.PriorityHighest, 30)

	now := time.Now()
	for i, name := range []string{"rtp", "sip"} {
		assertNoError(t, repo.CreateClassifier(ctx, &domain.TrafficClassifier{
			ID: name, ClassID: "c1", Name: name, Protocol: domain.ProtocolUDP,
			DestinationPortStart: 5000 + i, DestinationPortEnd: 5000 + i,
			CreatedAt: now, UpdatedAt: now,
		}))
	}

	n, err := repo.CountClassifiers(ctx, "c1")
	assertNoError(t, err)
	if n != 2 {
		t.Fatalf("expected 2 classifiers, got %d", n)
	}

	list, err := repo.ListClassifiers(ctx, "c1")
	assertNoError(t, err)
	if len(list) != 2 || list[0].Name != "rtp" {
		t.Fatalf("unexpected classifier list: %+v", list)
	}

	assertNoError(t, repo.DeleteClassifier(ctx, "sip"))
	n, err = repo.CountClassifiers(ctx, "c1")
	assertNoError(t, err)
	if n != 1 {
		t.Fatalf("expected 1 classifier after delete, got %d", n)
	}
}

func TestAssignmentActiveUniqueness(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	seedPolicy(t, repo, "p1", "gold")
	seedPolicy(t, repo, "p2", "silver")

	now := time.Now()
	a1 := &domain.InterfaceQoSPolicy{
		ID: "a1", InterfaceID: "eth0", PolicyID: "p1",
		Direction: domain.DirectionEgress, IsActive: true,
		CreatedAt: now, UpdatedAt: now,
	}
	assertNoError(t, repo.UpsertAssignment(ctx, a1))

	t.Run("second active assignment on the pair is rejected", func(t *testing.T) {
		a2 := &domain.InterfaceQoSPolicy{
			ID: "a2", InterfaceID: "eth0", PolicyID: "p2",
			Direction: domain.DirectionEgress, IsActive: true,
			CreatedAt: now, UpdatedAt: now,
		}
		if err := repo.UpsertAssignment(ctx, a2); err == nil {
			t.Fatal("expected unique index violation")
		}
	})

	t.Run("inactive assignment on the pair coexists", func(t *testing.T) {
		a2 := &domain.InterfaceQoSPolicy{
			ID: "a2", InterfaceID: "eth0", PolicyID: "p2",
			Direction: domain.DirectionEgress, IsActive: false,
			CreatedAt: now, UpdatedAt: now,
		}
		assertNoError(t, repo.UpsertAssignment(ctx, a2))
	})

	t.Run("other direction is independent", func(t *testing.T) {
		a3 := &domain.InterfaceQoSPolicy{
			ID: "a3", InterfaceID: "eth0", PolicyID: "p2",
			Direction: domain.DirectionIngress, IsActive: true,
			CreatedAt: now, UpdatedAt: now,
		}
		assertNoError(t, repo.UpsertAssignment(ctx, a3))
	})

	t.Run("active lookup finds the single active row", func(t *testing.T) {
		got, err := repo.GetActiveAssignment(ctx, "eth0", domain.DirectionEgress)
		assertNoError(t, err)
		if got == nil || got.ID != "a1" {
			t.Fatalf("unexpected active assignment: %+v", got)
		}
	})

	t.Run("deactivate then activate the other", func(t *testing.T) {
		assertNoError(t, repo.SetAssignmentActive(ctx, "a1", false))
		assertNoError(t, repo.SetAssignmentActive(ctx, "a2", true))

		got, err := repo.GetActiveAssignment(ctx, "eth0", domain.DirectionEgress)
		assertNoError(t, err)
		if got == nil || got.ID != "a2" {
			t.Fatalf("unexpected active assignment: %+v", got)
		}
	})

	t.Run("upsert rewrites in place", func(t *testing.T) {
		a1.IsActive = false
		a1.UpdatedAt = time.Now()
		assertNoError(t, repo.UpsertAssignment(ctx, a1))

		list, err := repo.ListAssignments(ctx, "")
		assertNoError(t, err)
		if len(list) != 3 {
			t.Fatalf("expected 3 assignments, got %d", len(list))
		}
	})
}
