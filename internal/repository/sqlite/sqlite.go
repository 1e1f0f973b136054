// Package sqlite implements repository.Store on an embedded SQLite database
// using the CGo-free modernc driver.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"trafficwarden/internal/domain"

	_ "modernc.org/sqlite"
)

// Repository implements repository.Store using SQLite.
type Repository struct {
	db *sql.DB
}

// New opens (or creates) the database at path and runs migrations.
// Use ":memory:" for an ephemeral database.
func New(path string) (*Repository, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// An in-memory database exists per connection; keep the pool at one so
	// every query sees the same data.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	repo := &Repository{db: db}
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return repo, nil
}

// Close releases the underlying database handle.
func (r *Repository) Close() error {
	return r.db.Close()
}

func (r *Repository) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS qos_policies (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		description TEXT NOT NULL DEFAULT '',
		is_active INTEGER NOT NULL DEFAULT 1,
		priority INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS traffic_classes (
		id TEXT PRIMARY KEY,
		policy_id TEXT NOT NULL,
		name TEXT NOT NULL,
		priority TEXT NOT NULL,
		bandwidth_pct REAL NOT NULL,
		dscp_marking TEXT NOT NULL DEFAULT '',
		max_burst INTEGER NOT NULL DEFAULT 0,
		max_latency_ms REAL NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		UNIQUE (policy_id, name),
		FOREIGN KEY (policy_id) REFERENCES qos_policies(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS traffic_classifiers (
		id TEXT PRIMARY KEY,
		class_id TEXT NOT NULL,
		name TEXT NOT NULL,
		protocol TEXT NOT NULL,
		port_start INTEGER NOT NULL,
		port_end INTEGER NOT NULL,
		dscp_marking TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		FOREIGN KEY (class_id) REFERENCES traffic_classes(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS interface_policies (
		id TEXT PRIMARY KEY,
		interface_id TEXT NOT NULL,
		policy_id TEXT NOT NULL,
		direction TEXT NOT NULL,
		is_active INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		FOREIGN KEY (policy_id) REFERENCES qos_policies(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_classes_policy ON traffic_classes(policy_id);
	CREATE INDEX IF NOT EXISTS idx_classifiers_class ON traffic_classifiers(class_id);
	-- One active policy per interface/direction pair.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_active_assignment
		ON interface_policies(interface_id, direction) WHERE is_active = 1;
	`

	_, err := r.db.Exec(schema)
	return err
}

// ============================================================================
// Policies
// ============================================================================

// CreatePolicy inserts a new policy row.
func (r *Repository) CreatePolicy(ctx context.Context, p *domain.QoSPolicy) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO qos_policies (id, name, description, is_active, priority, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.Name, p.Description, boolToInt(p.IsActive), p.Priority, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert policy: %w", err)
	}
	return nil
}

// GetPolicy returns the policy with the given id, or nil if absent.
func (r *Repository) GetPolicy(ctx context.Context, id string) (*domain.QoSPolicy, error) {
	return r.scanPolicy(r.db.QueryRowContext(ctx, `
		SELECT id, name, description, is_active, priority, created_at, updated_at
		FROM qos_policies WHERE id = ?
	`, id))
}

// GetPolicyByName returns the policy with the given name, or nil if absent.
func (r *Repository) GetPolicyByName(ctx context.Context, name string) (*domain.QoSPolicy, error) {
	return r.scanPolicy(r.db.QueryRowContext(ctx, `
		SELECT id, name, description, is_active, priority, created_at, updated_at
		FROM qos_policies WHERE name = ?
	`, name))
}

func (r *Repository) scanPolicy(row *sql.Row) (*domain.QoSPolicy, error) {
	var (
		p      domain.QoSPolicy
		active int
	)
	err := row.Scan(&p.ID, &p.Name, &p.Description, &active, &p.Priority, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan policy: %w", err)
	}
	p.IsActive = active != 0
	return &p, nil
}

// ListPolicies returns all policies ordered by priority (highest first),
// then name.
func (r *Repository) ListPolicies(ctx context.Context) ([]domain.QoSPolicy, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, description, is_active, priority, created_at, updated_at
		FROM qos_policies ORDER BY priority DESC, name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query policies: %w", err)
	}
	defer rows.Close()

	var policies []domain.QoSPolicy
	for rows.Next() {
		var (
			p      domain.QoSPolicy
			active int
		)
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &active, &p.Priority, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan policy: %w", err)
		}
		p.IsActive = active != 0
		policies = append(policies, p)
	}
	return policies, rows.Err()
}

// UpdatePolicy rewrites a policy row.
func (r *Repository) UpdatePolicy(ctx context.Context, p *domain.QoSPolicy) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE qos_policies
		SET name = ?, description = ?, is_active = ?, priority = ?, updated_at = ?
		WHERE id = ?
	`, p.Name, p.Description, boolToInt(p.IsActive), p.Priority, p.UpdatedAt, p.ID)
	if err != nil {
		return fmt.Errorf("failed to update policy: %w", err)
	}
	return requireRow(res)
}

// DeletePolicy removes a policy; classes and classifiers cascade.
func (r *Repository) DeletePolicy(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM qos_policies WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete policy: %w", err)
	}
	return requireRow(res)
}

// ============================================================================
// Traffic classes
// ============================================================================

// CreateTrafficClass inserts a new class row.
func (r *Repository) CreateTrafficClass(ctx context.Context, c *domain.TrafficClass) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO traffic_classes
			(id, policy_id, name, priority, bandwidth_pct, dscp_marking, max_burst, max_latency_ms, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.PolicyID, c.Name, string(c.Priority), c.BandwidthPercentage,
		c.DSCPMarking, c.MaxBurst, c.MaxLatencyMs, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert traffic class: %w", err)
	}
	return nil
}

// GetTrafficClass returns the class with the given id, or nil if absent.
func (r *Repository) GetTrafficClass(ctx context.Context, id string) (*domain.TrafficClass, error) {
	var c domain.TrafficClass
	var priority string
	err := r.db.QueryRowContext(ctx, `
		SELECT id, policy_id, name, priority, bandwidth_pct, dscp_marking, max_burst, max_latency_ms, created_at, updated_at
		FROM traffic_classes WHERE id = ?
	`, id).Scan(&c.ID, &c.PolicyID, &c.Name, &priority, &c.BandwidthPercentage,
		&c.DSCPMarking, &c.MaxBurst, &c.MaxLatencyMs, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan traffic class: %w", err)
	}
	c.Priority = domain.Priority(priority)
	return &c, nil
}

// ListTrafficClasses returns the policy's classes ordered by priority rank,
// then name.
func (r *Repository) ListTrafficClasses(ctx context.Context, policyID string) ([]domain.TrafficClass, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, policy_id, name, priority, bandwidth_pct, dscp_marking, max_burst, max_latency_ms, created_at, updated_at
		FROM traffic_classes
		WHERE policy_id = ?
		ORDER BY CASE priority
			WHEN 'highest' THEN 0
			WHEN 'high' THEN 1
			WHEN 'normal' THEN 2
			WHEN 'low' THEN 3
			WHEN 'lowest' THEN 4
			ELSE 5
		END, name ASC
	`, policyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query traffic classes: %w", err)
	}
	defer rows.Close()

	var classes []domain.TrafficClass
	for rows.Next() {
		var c domain.TrafficClass
		var priority string
		if err := rows.Scan(&c.ID, &c.PolicyID, &c.Name, &priority, &c.BandwidthPercentage,
			&c.DSCPMarking, &c.MaxBurst, &c.MaxLatencyMs, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan traffic class: %w", err)
		}
		c.Priority = domain.Priority(priority)
		classes = append(classes, c)
	}
	return classes, rows.Err()
}

// UpdateTrafficClass rewrites a class row.
func (r *Repository) UpdateTrafficClass(ctx context.Context, c *domain.TrafficClass) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE traffic_classes
		SET name = ?, priority = ?, bandwidth_pct = ?, dscp_marking = ?, max_burst = ?, max_latency_ms = ?, updated_at = ?
		WHERE id = ?
	`, c.Name, string(c.Priority), c.BandwidthPercentage, c.DSCPMarking,
		c.MaxBurst, c.MaxLatencyMs, c.UpdatedAt, c.ID)
	if err != nil {
		return fmt.Errorf("failed to update traffic class: %w", err)
	}
	return requireRow(res)
}

// DeleteTrafficClass removes a class; classifiers cascade.
func (r *Repository) DeleteTrafficClass(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM traffic_classes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete traffic class: %w", err)
	}
	return requireRow(res)
}

// CountClassifiers returns how many classifiers a class owns.
func (r *Repository) CountClassifiers(ctx context.Context, classID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM traffic_classifiers WHERE class_id = ?`, classID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count classifiers: %w", err)
	}
	return n, nil
}

// ============================================================================
// Classifiers
// ============================================================================

// CreateClassifier inserts a new classifier row.
func (r *Repository) CreateClassifier(ctx context.Context, f *domain.TrafficClassifier) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO traffic_classifiers
			(id, class_id, name, protocol, port_start, port_end, dscp_marking, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, f.ID, f.ClassID, f.Name, string(f.Protocol), f.DestinationPortStart,
		f.DestinationPortEnd, f.DSCPMarking, f.CreatedAt, f.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert classifier: %w", err)
	}
	return nil
}

// GetClassifier returns the classifier with the given id, or nil if absent.
func (r *Repository) GetClassifier(ctx context.Context, id string) (*domain.TrafficClassifier, error) {
	var f domain.TrafficClassifier
	var protocol string
	err := r.db.QueryRowContext(ctx, `
		SELECT id, class_id, name, protocol, port_start, port_end, dscp_marking, created_at, updated_at
		FROM traffic_classifiers WHERE id = ?
	`, id).Scan(&f.ID, &f.ClassID, &f.Name, &protocol, &f.DestinationPortStart,
		&f.DestinationPortEnd, &f.DSCPMarking, &f.CreatedAt, &f.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan classifier: %w", err)
	}
	f.Protocol = domain.Protocol(protocol)
	return &f, nil
}

// ListClassifiers returns the class's classifiers ordered by name.
func (r *Repository) ListClassifiers(ctx context.Context, classID string) ([]domain.TrafficClassifier, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, class_id, name, protocol, port_start, port_end, dscp_marking, created_at, updated_at
		FROM traffic_classifiers WHERE class_id = ? ORDER BY name ASC
	`, classID)
	if err != nil {
		return nil, fmt.Errorf("failed to query classifiers: %w", err)
	}
	defer rows.Close()

	var classifiers []domain.TrafficClassifier
	for rows.Next() {
		var f domain.TrafficClassifier
		var protocol string
		if err := rows.Scan(&f.ID, &f.ClassID, &f.Name, &protocol, &f.DestinationPortStart,
			&f.DestinationPortEnd, &f.DSCPMarking, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan classifier: %w", err)
		}
		f.Protocol = domain.Protocol(protocol)
		classifiers = append(classifiers, f)
	}
	return classifiers, rows.Err()
}

// DeleteClassifier removes a classifier row.
func (r *Repository) DeleteClassifier(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM traffic_classifiers WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete classifier: %w", err)
	}
	return requireRow(res)
}

// ============================================================================
// Interface assignments
// ============================================================================

// UpsertAssignment inserts or rewrites an assignment row keyed by id.
func (r *Repository) UpsertAssignment(ctx context.Context, a *domain.InterfaceQoSPolicy) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO interface_policies (id, interface_id, policy_id, direction, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			interface_id = excluded.interface_id,
			policy_id = excluded.policy_id,
			direction = excluded.direction,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at
	`, a.ID, a.InterfaceID, a.PolicyID, string(a.Direction), boolToInt(a.IsActive), a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert assignment: %w", err)
	}
	return nil
}

// GetAssignment returns the assignment with the given id, or nil if absent.
func (r *Repository) GetAssignment(ctx context.Context, id string) (*domain.InterfaceQoSPolicy, error) {
	return r.scanAssignment(r.db.QueryRowContext(ctx, `
		SELECT id, interface_id, policy_id, direction, is_active, created_at, updated_at
		FROM interface_policies WHERE id = ?
	`, id))
}

// GetActiveAssignment returns the active assignment for an
// interface/direction pair, or nil if none.
func (r *Repository) GetActiveAssignment(ctx context.Context, interfaceID string, direction domain.Direction) (*domain.InterfaceQoSPolicy, error) {
	return r.scanAssignment(r.db.QueryRowContext(ctx, `
		SELECT id, interface_id, policy_id, direction, is_active, created_at, updated_at
		FROM interface_policies
		WHERE interface_id = ? AND direction = ? AND is_active = 1
	`, interfaceID, string(direction)))
}

func (r *Repository) scanAssignment(row *sql.Row) (*domain.InterfaceQoSPolicy, error) {
	var (
		a         domain.InterfaceQoSPolicy
		direction string
		active    int
	)
	err := row.Scan(&a.ID, &a.InterfaceID, &a.PolicyID, &direction, &active, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan assignment: %w", err)
	}
	a.Direction = domain.Direction(direction)
	a.IsActive = active != 0
	return &a, nil
}

// ListAssignments returns assignments, optionally filtered by policy id.
func (r *Repository) ListAssignments(ctx context.Context, policyID string) ([]domain.InterfaceQoSPolicy, error) {
	query := `
		SELECT id, interface_id, policy_id, direction, is_active, created_at, updated_at
		FROM interface_policies
	`
	var args []any
	if policyID != "" {
		query += ` WHERE policy_id = ?`
		args = append(args, policyID)
	}
	query += ` ORDER BY interface_id ASC, direction ASC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query assignments: %w", err)
	}
	defer rows.Close()

	var assignments []domain.InterfaceQoSPolicy
	for rows.Next() {
		var (
			a         domain.InterfaceQoSPolicy
			direction string
			active    int
		)
		if err := rows.Scan(&a.ID, &a.InterfaceID, &a.PolicyID, &direction, &active, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		a.Direction = domain.Direction(direction)
		a.IsActive = active != 0
		assignments = append(assignments, a)
	}
	return assignments, rows.Err()
}

// SetAssignmentActive flips the is_active flag on one assignment.
func (r *Repository) SetAssignmentActive(ctx context.Context, id string, active bool) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE interface_policies SET is_active = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`, boolToInt(active), id)
	if err != nil {
		return fmt.Errorf("failed to set assignment active: %w", err)
	}
	return requireRow(res)
}

// DeleteAssignment removes an assignment row.
func (r *Repository) DeleteAssignment(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM interface_policies WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete assignment: %w", err)
	}
	return requireRow(res)
}
