package rolegate

import (
	"context"
	"database/sql"
	"fmt"

	"usic-gateway/internal/resilience/circuitbreaker"
)

// Registry answers whether a subject holds the privileged role. An error
// means the registry could not answer.
type Registry interface {
	IsPrivileged(ctx context.Context, subjectID string) (bool, error)
}

// Pinger is implemented by registries with a health check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StaticRegistry is a fixed set of privileged subjects.
type StaticRegistry struct {
	subjects map[string]struct{}
}

// NewStaticRegistry creates a registry over subjects.
func NewStaticRegistry(subjects []string) *StaticRegistry {
	r := &StaticRegistry{subjects: make(map[string]struct{}, len(subjects))}
	for _, s := range subjects {
		if s != "" {
			r.subjects[s] = struct{}{}
		}
	}
	return r
}

// IsPrivileged implements Registry.
func (r *StaticRegistry) IsPrivileged(ctx context.Context, subjectID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, ok := r.subjects[subjectID]
	return ok, nil
}

const privilegedQuery = `SELECT EXISTS(SELECT 1 FROM privileged_users WHERE subject_id = $1 AND revoked_at IS NULL)`

// PostgresRegistry reads active grants from the privileged_users table.
// Every query runs through a circuit breaker.
type PostgresRegistry struct {
	db *circuitbreaker.DB
}

// NewPostgresRegistry creates a registry over db.
func NewPostgresRegistry(db *sql.DB, cfg circuitbreaker.Config) *PostgresRegistry {
	return &PostgresRegistry{db: circuitbreaker.NewDB(db, cfg)}
}

// IsPrivileged implements Registry.
func (r *PostgresRegistry) IsPrivileged(ctx context.Context, subjectID string) (bool, error) {
	var privileged bool
	if err := r.db.QueryRowScan(ctx, privilegedQuery, []any{subjectID}, &privileged); err != nil {
		return false, fmt.Errorf("query privileged_users: %w", err)
	}
	return privileged, nil
}

// Ping implements Pinger.
func (r *PostgresRegistry) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
