package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fonsecaaso/goodproducts/go-server/internal/metrics"
	"github.com/fonsecaaso/goodproducts/go-server/internal/model"
	"github.com/fonsecaaso/goodproducts/go-server/internal/repository"
	"github.com/fonsecaaso/goodproducts/go-server/internal/tracing"
)

var (
	ErrSubmissionFailed = errors.New("submission failed")
)

// LatestLimit is the number of rows read back after a successful submission
const LatestLimit = 5

type ProductService struct {
	repo   repository.ProductRepository
	logger *zap.Logger
	now    func() time.Time
}

func NewProductService(repo repository.ProductRepository) *ProductService {
	return &ProductService{
		repo:   repo,
		logger: zap.L().With(zap.String("component", "ProductService")),
		now:    time.Now,
	}
}

// Submit stores the form as a new products row stamped with the current time.
// Identical forms produce separate rows.
func (s *ProductService) Submit(ctx context.Context, form model.FormState) (record *model.SubmissionRecord, err error) {
	ctx, span := tracing.StartSpan(ctx, "ProductService.Submit",
		attribute.String("product.name", form.ProductName),
	)
	defer func() {
		metrics.SubmissionsTotal.WithLabelValues(metrics.Outcome(err)).Inc()
		tracing.EndSpan(span, err)
	}()

	record = model.NewSubmissionRecord(form, s.now())

	if err = s.repo.Create(ctx, record); err != nil {
		s.logger.Error("Failed to store submission",
			zap.Error(err),
			zap.String("product_name", record.Name),
		)
		return nil, fmt.Errorf("%w: %v", ErrSubmissionFailed, err)
	}

	s.logger.Info("Product submitted",
		zap.String("product_name", record.Name),
		zap.String("created_at", record.CreatedAt),
	)
	return record, nil
}

// VerifyLatest reads back the most recent rows and logs them. Failures are logged only.
func (s *ProductService) VerifyLatest(ctx context.Context) {
	ctx, span := tracing.StartSpan(ctx, "ProductService.VerifyLatest")

	products, err := s.repo.Latest(ctx, LatestLimit)
	metrics.DiagnosticReadsTotal.WithLabelValues(metrics.Outcome(err)).Inc()
	tracing.EndSpan(span, err)

	if err != nil {
		s.logger.Error("Error verifying data", zap.Error(err))
		return
	}

	s.logger.Info("Latest products in database",
		zap.Int("count", len(products)),
		zap.Array("products", productSummaries(products)),
	)
}

// productSummaries logs rows by id, name and created_at only; submitter
// emails stay out of the logs
type productSummaries []model.Product

func (ps productSummaries) MarshalLogArray(enc zapcore.ArrayEncoder) error {
	for _, p := range ps {
		if err := enc.AppendObject(productSummary(p)); err != nil {
			return err
		}
	}
	return nil
}

type productSummary model.Product

func (p productSummary) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("id", p.ID)
	enc.AddString("name", p.Name)
	enc.AddTime("created_at", p.CreatedAt)
	return nil
}

// Latest returns up to limit products, newest first
func (s *ProductService) Latest(ctx context.Context, limit int) ([]model.Product, error) {
	ctx, span := tracing.StartSpan(ctx, "ProductService.Latest", attribute.Int("limit", limit))

	products, err := s.repo.Latest(ctx, limit)
	tracing.EndSpan(span, err)
	return products, err
}
