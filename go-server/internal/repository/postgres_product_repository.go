package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/fonsecaaso/goodproducts/go-server/internal/metrics"
	"github.com/fonsecaaso/goodproducts/go-server/internal/model"
)

const backendPostgres = "postgres"

// querier is the subset of *pgxpool.Pool used by the repository
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresProductRepository implements ProductRepository against the products table directly
type PostgresProductRepository struct {
	db     querier
	table  string
	logger *zap.Logger
}

// NewPostgresProductRepository creates a new PostgresProductRepository
func NewPostgresProductRepository(db *pgxpool.Pool, table string) *PostgresProductRepository {
	return newPostgresProductRepository(db, table)
}

func newPostgresProductRepository(db querier, table string) *PostgresProductRepository {
	return &PostgresProductRepository{
		db:     db,
		table:  pgx.Identifier{table}.Sanitize(),
		logger: zap.L().With(zap.String("component", "PostgresProductRepository")),
	}
}

// Create inserts one submission row
func (r *PostgresProductRepository) Create(ctx context.Context, record *model.SubmissionRecord) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()
	defer metrics.ObserveStoreCall(backendPostgres, "create", time.Now())

	createdAt, err := time.Parse(time.RFC3339Nano, record.CreatedAt)
	if err != nil {
		return fmt.Errorf("%w: invalid created_at %q: %v", ErrDatabaseError, record.CreatedAt, err)
	}

	query := `INSERT INTO ` + r.table + ` (name, description, website, "Tags", email, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err = r.db.Exec(ctx, query,
		record.Name, record.Description, record.Website, record.Tags, record.Email, createdAt)
	if err != nil {
		r.logger.Error("Failed to insert product", zap.Error(err), zap.String("name", record.Name))
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}

	return nil
}

// Latest returns the most recently created rows, newest first
func (r *PostgresProductRepository) Latest(ctx context.Context, limit int) ([]model.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()
	defer metrics.ObserveStoreCall(backendPostgres, "latest", time.Now())

	query := `SELECT id::text, name, description, website, "Tags", email, created_at
		FROM ` + r.table + ` ORDER BY created_at DESC LIMIT $1`

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		r.logger.Error("Database query error", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}

	products, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Product, error) {
		var p model.Product
		err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Website, &p.Tags, &p.Email, &p.CreatedAt)
		return p, err
	})
	if err != nil {
		r.logger.Error("Failed to scan products", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}

	return products, nil
}
