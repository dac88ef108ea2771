package repository

import (
	"context"
	"errors"
	"time"

	"github.com/fonsecaaso/goodproducts/go-server/internal/model"
)

var (
	ErrDatabaseError = errors.New("database error")
)

const dbTimeout = 5 * time.Second

// ProductRepository defines the remote store operations on the products collection
type ProductRepository interface {
	Create(ctx context.Context, record *model.SubmissionRecord) error
	Latest(ctx context.Context, limit int) ([]model.Product, error)
}
