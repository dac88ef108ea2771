package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/fonsecaaso/goodproducts/go-server/internal/metrics"
	"github.com/fonsecaaso/goodproducts/go-server/internal/model"
)

const backendREST = "rest"

// restStore is the subset of *database.RestClient used by the repository
type restStore interface {
	Insert(ctx context.Context, table string, rows any) error
	Select(ctx context.Context, table string, query url.Values, out any) error
}

// RestProductRepository implements ProductRepository over a PostgREST endpoint
type RestProductRepository struct {
	client restStore
	table  string
	logger *zap.Logger
}

// NewRestProductRepository creates a new RestProductRepository
func NewRestProductRepository(client restStore, table string) *RestProductRepository {
	return &RestProductRepository{
		client: client,
		table:  table,
		logger: zap.L().With(zap.String("component", "RestProductRepository")),
	}
}

// Create inserts one submission row
func (r *RestProductRepository) Create(ctx context.Context, record *model.SubmissionRecord) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()
	defer metrics.ObserveStoreCall(backendREST, "create", time.Now())

	if err := r.client.Insert(ctx, r.table, []*model.SubmissionRecord{record}); err != nil {
		r.logger.Error("Failed to insert product", zap.Error(err), zap.String("name", record.Name))
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}

	return nil
}

// Latest returns the most recently created rows, newest first
func (r *RestProductRepository) Latest(ctx context.Context, limit int) ([]model.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()
	defer metrics.ObserveStoreCall(backendREST, "latest", time.Now())

	query := url.Values{
		"select": {"*"},
		"order":  {"created_at.desc"},
		"limit":  {strconv.Itoa(limit)},
	}

	var rows []restProductRow
	if err := r.client.Select(ctx, r.table, query, &rows); err != nil {
		r.logger.Error("Failed to select products", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}

	products := make([]model.Product, 0, len(rows))
	for _, row := range rows {
		products = append(products, r.toProduct(row))
	}

	return products, nil
}

// restProductRow accepts whatever id and created_at shapes the table uses
type restProductRow struct {
	ID          json.RawMessage `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Website     string          `json:"website"`
	Tags        string          `json:"Tags"`
	Email       string          `json:"email"`
	CreatedAt   string          `json:"created_at"`
}

func (r *RestProductRepository) toProduct(row restProductRow) model.Product {
	p := model.Product{
		ID:          rowID(row.ID),
		Name:        row.Name,
		Description: row.Description,
		Website:     row.Website,
		Tags:        row.Tags,
		Email:       row.Email,
	}

	if row.CreatedAt != "" {
		createdAt, err := model.ParseStoredTimestamp(row.CreatedAt)
		if err != nil {
			r.logger.Warn("Unparseable created_at on product row",
				zap.String("id", p.ID),
				zap.Error(err),
			)
		}
		p.CreatedAt = createdAt
	}

	return p
}

// rowID renders a JSON id as text: strings are unquoted, numbers kept verbatim
func rowID(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
