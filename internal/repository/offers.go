package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/liqtrade/offer-extractor/internal/entity"
)

// ProductArchive persists finished jobs' records. A handful of columns are
// lifted out of the document for indexing; the full schema-valid record
// lives in a jsonb column so the archive never lags a schema revision.
type ProductArchive struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewProductArchive(pool *pgxpool.Pool, logger *slog.Logger) *ProductArchive {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProductArchive{pool: pool, logger: logger}
}

const insertProduct = `
INSERT INTO offer_products
	(uid, job_id, product_key, product_name, supplier_name, currency, needs_manual_review, record)
VALUES
	($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (uid) DO NOTHING`

// ArchiveProducts inserts all records for jobID in one batch. Re-archiving
// a job is a no-op per record; uids are minted once at stamp time.
func (a *ProductArchive) ArchiveProducts(ctx context.Context, jobID string, records []entity.ProductRecord) error {
	if len(records) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, rec := range records {
		doc, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode record %s: %w", rec.UID, err)
		}
		batch.Queue(insertProduct,
			rec.UID, jobID, rec.ProductKey, rec.ProductName,
			rec.SupplierName, rec.Currency, rec.NeedsManualReview, doc)
	}

	results := a.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range records {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("archive job %s: %w", jobID, err)
		}
	}

	a.logger.Info("archive.products", "job_id", jobID, "count", len(records))
	return nil
}
