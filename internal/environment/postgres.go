// internal/environment/postgres.go
package environment

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/mediflow-e2e/internal/config"
)

// DBConn is the slice of pgxpool.Pool the provisioner needs. It exists so
// tests can substitute pgxmock.
type DBConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ConnectFunc opens a connection and returns a release function.
type ConnectFunc func(ctx context.Context, url string) (DBConn, func(), error)

// ConnectPool is the production ConnectFunc.
func ConnectPool(ctx context.Context, url string) (DBConn, func(), error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	return pool, pool.Close, nil
}

// PostgresCreator creates the database with CREATE DATABASE on a server the
// harness can reach directly.
type PostgresCreator struct {
	AdminURL string
	Prefix   string
	Connect  ConnectFunc
	Logger   *zap.Logger
	// NewSuffix defaults to a dashless UUID.
	NewSuffix func() string
}

// DatabaseName builds a valid, unique Postgres identifier.
func (c *PostgresCreator) DatabaseName() string {
	suffix := c.NewSuffix
	if suffix == nil {
		suffix = func() string { return strings.ReplaceAll(uuid.NewString(), "-", "") }
	}
	return strings.ToLower(c.Prefix + "_" + suffix())
}

func (c *PostgresCreator) CreateDatabase(ctx context.Context) (string, error) {
	db, release, err := c.Connect(ctx, c.AdminURL)
	if err != nil {
		return "", &ProvisionError{Stage: StageCreateDatabase, Err: err}
	}
	defer release()

	name := c.DatabaseName()
	// Identifiers cannot be bound as parameters.
	sql := "CREATE DATABASE " + pgx.Identifier{name}.Sanitize()
	if _, err := db.Exec(ctx, sql); err != nil {
		return "", &ProvisionError{Stage: StageCreateDatabase, Err: fmt.Errorf("failed to create database %s: %w", name, err)}
	}
	c.Logger.Info("Database created.", zap.String("database", name))
	return name, nil
}

// FixtureVerifier checks, right after seeding, that the database holds the
// fixed fixture set: one account per role and no patients.
type FixtureVerifier struct {
	URLTemplate string
	Connect     ConnectFunc
	Logger      *zap.Logger
}

// RequiredRoles are the user_type values the seed must create.
var RequiredRoles = []string{"admin", "terapeuta", "secretaria"}

const (
	sqlCountUsersByRole = `SELECT user_type, COUNT(*) FROM users WHERE deleted_at IS NULL GROUP BY user_type`
	sqlCountPatients    = `SELECT COUNT(*) FROM patients`
)

func (v *FixtureVerifier) Verify(ctx context.Context, database string) error {
	url := strings.ReplaceAll(v.URLTemplate, config.DatabasePlaceholder, database)
	db, release, err := v.Connect(ctx, url)
	if err != nil {
		return &ProvisionError{Stage: StageVerifyFixtures, Err: err}
	}
	defer release()

	rows, err := db.Query(ctx, sqlCountUsersByRole)
	if err != nil {
		return &ProvisionError{Stage: StageVerifyFixtures, Err: fmt.Errorf("failed to count users: %w", err)}
	}
	counts := make(map[string]int64)
	for rows.Next() {
		var role string
		var n int64
		if err := rows.Scan(&role, &n); err != nil {
			rows.Close()
			return &ProvisionError{Stage: StageVerifyFixtures, Err: fmt.Errorf("failed to scan user count: %w", err)}
		}
		counts[role] = n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return &ProvisionError{Stage: StageVerifyFixtures, Err: err}
	}

	var missing []string
	for _, role := range RequiredRoles {
		if counts[role] == 0 {
			missing = append(missing, role)
		}
	}
	if len(missing) > 0 {
		return &ProvisionError{Stage: StageVerifyFixtures, Err: fmt.Errorf("no %s users seeded", strings.Join(missing, ", "))}
	}

	var patients int64
	if err := db.QueryRow(ctx, sqlCountPatients).Scan(&patients); err != nil {
		return &ProvisionError{Stage: StageVerifyFixtures, Err: fmt.Errorf("failed to count patients: %w", err)}
	}
	if patients != 0 {
		return &ProvisionError{Stage: StageVerifyFixtures, Err: fmt.Errorf("expected no patients, found %d", patients)}
	}

	v.Logger.Info("Fixtures verified.", zap.String("database", database), zap.Any("users_by_role", counts))
	return nil
}
